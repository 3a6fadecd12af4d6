package repo

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/klauspost/compress/zlib"

	"github.com/odvcencio/forgevcs/pkg/object"
)

func setAncestryLimitForTest(t *testing.T, limit int) {
	t.Helper()
	prev := ancestryStepsLimit
	ancestryStepsLimit = limit
	t.Cleanup(func() { ancestryStepsLimit = prev })
}

// graph builds:
//
//	R - M1 ------ X      (X = merge of M1 and F1)
//	 \           /
//	  F1 ------ +- F2
type graph struct {
	R, M1, F1, X, F2 object.Hash
}

func buildGraph(t *testing.T, r *Repo) graph {
	t.Helper()
	var g graph
	g.R = writeRawCommit(t, r, "root")
	g.M1 = writeRawCommit(t, r, "m1", g.R)
	g.F1 = writeRawCommit(t, r, "f1", g.R)
	g.X = writeRawCommit(t, r, "merge f1", g.M1, g.F1)
	g.F2 = writeRawCommit(t, r, "f2", g.F1)
	return g
}

func TestFindMergeBaseLinearAndDiverged(t *testing.T) {
	r := newTestRepo(t)
	g := buildGraph(t, r)

	tests := []struct {
		a, b, want object.Hash
	}{
		{g.M1, g.F1, g.R},
		{g.F1, g.M1, g.R},
		{g.F2, g.F1, g.F1},
		{g.X, g.M1, g.M1},
		{g.R, g.R, g.R},
		// Second parents are not followed, so F1 is not found from X.
		{g.X, g.F2, g.R},
	}
	for _, tt := range tests {
		base, found, err := r.FindMergeBase(tt.a, tt.b)
		if err != nil {
			t.Fatalf("FindMergeBase(%s, %s): %v", tt.a.Short(), tt.b.Short(), err)
		}
		if !found || base != tt.want {
			t.Errorf("FindMergeBase(%s, %s) = %s, %v; want %s", tt.a.Short(), tt.b.Short(), base.Short(), found, tt.want.Short())
		}
	}
}

func TestFindMergeBaseDisjoint(t *testing.T) {
	r := newTestRepo(t)
	a := writeRawCommit(t, r, "a")
	b := writeRawCommit(t, r, "b")
	for i := 0; i < 2; i++ {
		base, found, err := r.FindMergeBase(a, b)
		if err != nil {
			t.Fatalf("FindMergeBase: %v", err)
		}
		if found || base != "" {
			t.Fatalf("FindMergeBase(disjoint) = %q, %v; want not found", base, found)
		}
	}
}

func TestFindMergeBaseMissingCommit(t *testing.T) {
	r := newTestRepo(t)
	a := writeRawCommit(t, r, "a")
	missing := object.Hash("0123456789abcdef0123456789abcdef01234567")
	if _, _, err := r.FindMergeBase(a, missing); !errors.Is(err, object.ErrObjectNotFound) {
		t.Fatalf("err = %v, want ErrObjectNotFound", err)
	}
}

func TestIsAncestorFollowsAllParents(t *testing.T) {
	r := newTestRepo(t)
	g := buildGraph(t, r)

	tests := []struct {
		ancestor, descendant object.Hash
		want                 bool
	}{
		{g.F1, g.X, true},
		{g.R, g.X, true},
		{g.M1, g.X, true},
		{g.X, g.X, true},
		{g.X, g.M1, false},
		{g.F2, g.X, false},
		{g.M1, g.F2, false},
		{"", g.X, false},
	}
	for _, tt := range tests {
		got, err := r.IsAncestor(tt.ancestor, tt.descendant)
		if err != nil {
			t.Fatalf("IsAncestor: %v", err)
		}
		if got != tt.want {
			t.Errorf("IsAncestor(%s, %s) = %v, want %v", tt.ancestor.Short(), tt.descendant.Short(), got, tt.want)
		}
	}
}

func TestGenerationNumbers(t *testing.T) {
	r := newTestRepo(t)
	g := buildGraph(t, r)
	want := map[object.Hash]uint64{g.R: 1, g.M1: 2, g.F1: 2, g.X: 3, g.F2: 3}
	for h, gen := range want {
		got, err := r.generation(h)
		if err != nil {
			t.Fatalf("generation(%s): %v", h.Short(), err)
		}
		if got != gen {
			t.Errorf("generation(%s) = %d, want %d", h.Short(), got, gen)
		}
	}
}

func TestGenerationDeepHistoryIsIterative(t *testing.T) {
	r := newTestRepo(t)
	tip := writeRawCommit(t, r, "c0")
	for i := 1; i < 2000; i++ {
		tip = writeRawCommit(t, r, fmt.Sprintf("c%d", i), tip)
	}
	got, err := r.generation(tip)
	if err != nil {
		t.Fatalf("generation: %v", err)
	}
	if got != 2000 {
		t.Fatalf("generation = %d, want 2000", got)
	}
}

func TestFirstParentRange(t *testing.T) {
	r := newTestRepo(t)
	g := buildGraph(t, r)

	got, err := r.FirstParentRange(g.R, g.X)
	if err != nil {
		t.Fatalf("FirstParentRange: %v", err)
	}
	if want := []object.Hash{g.M1, g.X}; !reflect.DeepEqual(got, want) {
		t.Fatalf("FirstParentRange(R, X) = %v, want %v", got, want)
	}

	all, err := r.FirstParentRange("", g.F2)
	if err != nil {
		t.Fatalf("FirstParentRange(root): %v", err)
	}
	if want := []object.Hash{g.R, g.F1, g.F2}; !reflect.DeepEqual(all, want) {
		t.Fatalf("FirstParentRange('', F2) = %v, want %v", all, want)
	}

	empty, err := r.FirstParentRange(g.X, g.X)
	if err != nil || len(empty) != 0 {
		t.Fatalf("FirstParentRange(X, X) = %v, %v; want empty", empty, err)
	}

	if _, err := r.FirstParentRange(g.F1, g.X); !errors.Is(err, ErrNotAncestor) {
		t.Fatalf("FirstParentRange(F1, X) err = %v, want ErrNotAncestor", err)
	}
}

func TestAncestryStepLimit(t *testing.T) {
	r := newTestRepo(t)
	root := writeRawCommit(t, r, "root")
	tip := root
	for i := 0; i < 6; i++ {
		tip = writeRawCommit(t, r, fmt.Sprintf("c%d", i), tip)
	}
	side := writeRawCommit(t, r, "side", root)

	setAncestryLimitForTest(t, 3)
	if _, _, err := r.FindMergeBase(tip, side); !errors.Is(err, ErrAncestryLimit) {
		t.Fatalf("FindMergeBase err = %v, want ErrAncestryLimit", err)
	}
	if _, err := r.FirstParentRange(root, tip); !errors.Is(err, ErrAncestryLimit) {
		t.Fatalf("FirstParentRange err = %v, want ErrAncestryLimit", err)
	}
	if _, err := r.IsAncestor(root, tip); !errors.Is(err, ErrAncestryLimit) {
		t.Fatalf("IsAncestor err = %v, want ErrAncestryLimit", err)
	}
}

// writeCorruptCommitAtHash stores commit under an id that does not match its
// content, which is the only way to get a cycle into the graph.
func writeCorruptCommitAtHash(t *testing.T, r *Repo, h object.Hash, commit *object.CommitObj) {
	t.Helper()
	data := object.MarshalCommit(commit)
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	fmt.Fprintf(zw, "%s %d\x00", object.TypeCommit, len(data))
	zw.Write(data)
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	objPath := filepath.Join(r.Root, "objects", string(h[:2]), string(h[2:]))
	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(objPath, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestCorruptCycleReturnsError(t *testing.T) {
	r := newTestRepo(t)
	cyclic := object.Hash("1111111111111111111111111111111111111111")
	writeCorruptCommitAtHash(t, r, cyclic, &object.CommitObj{
		TreeHash:  object.EmptyTreeHash,
		Parents:   []object.Hash{cyclic},
		Author:    testSig("mallory"),
		Committer: testSig("mallory"),
		Message:   "loop\n",
	})
	other := writeRawCommit(t, r, "other")

	if _, _, err := r.FindMergeBase(cyclic, other); !errors.Is(err, ErrCommitGraphCycle) {
		t.Fatalf("FindMergeBase err = %v, want ErrCommitGraphCycle", err)
	}
	if _, err := r.IsAncestor(other, cyclic); !errors.Is(err, ErrCommitGraphCycle) {
		t.Fatalf("IsAncestor err = %v, want ErrCommitGraphCycle", err)
	}
	if _, err := r.FirstParentRange(other, cyclic); !errors.Is(err, ErrCommitGraphCycle) {
		t.Fatalf("FirstParentRange err = %v, want ErrCommitGraphCycle", err)
	}
}
