package history

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/odvcencio/forgevcs/pkg/object"
	"github.com/odvcencio/forgevcs/pkg/repo"
)

var epoch = time.Unix(1_700_000_000, 0).UTC()

func at(minutes int) object.Signature {
	return object.Signature{Name: "alice", Email: "alice@example.com", When: epoch.Add(time.Duration(minutes) * time.Minute)}
}

func commitAt(t *testing.T, r *repo.Repo, branch, path, msg string, minutes int) object.Hash {
	t.Helper()
	h, err := r.CommitChanges(repo.CommitRequest{
		Branch:    branch,
		Files:     map[string][]byte{path: []byte(msg + "\n")},
		Message:   msg,
		Committer: at(minutes),
	})
	if err != nil {
		t.Fatalf("CommitChanges(%s): %v", msg, err)
	}
	return h
}

type graph struct {
	root, m1, f1, f2, merge object.Hash
}

// buildGraph creates
//
//	root(0) -- m1(2) ------- merge(4)
//	     \                  /
//	      f1(1) -- f2(3) --
func buildGraph(t *testing.T) (*repo.Repo, graph) {
	t.Helper()
	r, err := repo.Init(t.TempDir(), "main")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	var g graph
	g.root = commitAt(t, r, "main", "README.md", "root", 0)
	if err := r.CreateBranch("feature", g.root); err != nil {
		t.Fatal(err)
	}
	g.f1 = commitAt(t, r, "feature", "f1.txt", "f1", 1)
	g.m1 = commitAt(t, r, "main", "m1.txt", "m1", 2)
	g.f2 = commitAt(t, r, "feature", "f2.txt", "f2", 3)

	out, err := r.Merge(repo.MergeOptions{Ours: g.m1, Theirs: g.f2, Message: "merge feature", Committer: at(4)})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	g.merge = out.Commit
	if err := r.WriteRef("refs/heads/main", g.merge, repo.RefUpdate{Expected: g.m1}); err != nil {
		t.Fatal(err)
	}
	return r, g
}

func hashes(entries []Entry) []object.Hash {
	out := make([]object.Hash, len(entries))
	for i, e := range entries {
		out[i] = e.Hash
	}
	return out
}

func TestLogFirstParent(t *testing.T) {
	r, g := buildGraph(t)

	entries, err := Log(r, "main", Options{})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	want := []object.Hash{g.merge, g.m1, g.root}
	if got := hashes(entries); !reflect.DeepEqual(got, want) {
		t.Fatalf("first-parent log = %v, want %v", got, want)
	}
	if entries[0].Commit.Message != "merge feature\n" {
		t.Fatalf("head message = %q", entries[0].Commit.Message)
	}

	entries, err = Log(r, "main", Options{Depth: 2})
	if err != nil {
		t.Fatal(err)
	}
	if got := hashes(entries); !reflect.DeepEqual(got, want[:2]) {
		t.Fatalf("depth 2 log = %v, want %v", got, want[:2])
	}
}

func TestLogAllParentsOrdersByCommitterTime(t *testing.T) {
	r, g := buildGraph(t)

	entries, err := Log(r, "main", Options{AllParents: true})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	want := []object.Hash{g.merge, g.f2, g.m1, g.f1, g.root}
	if got := hashes(entries); !reflect.DeepEqual(got, want) {
		t.Fatalf("all-parents log = %v, want %v", got, want)
	}

	entries, err = Log(r, string(g.merge), Options{AllParents: true, Depth: 3})
	if err != nil {
		t.Fatal(err)
	}
	if got := hashes(entries); !reflect.DeepEqual(got, want[:3]) {
		t.Fatalf("depth 3 log = %v, want %v", got, want[:3])
	}
}

func TestLogUnknownRef(t *testing.T) {
	r, _ := buildGraph(t)
	if _, err := Log(r, "nope", Options{}); err == nil {
		t.Fatal("expected error for unknown ref")
	}
}

func TestBranches(t *testing.T) {
	r, g := buildGraph(t)
	ghost := object.Hash("1111111111111111111111111111111111111111")
	if err := os.WriteFile(filepath.Join(r.Root, "refs", "heads", "ghost"), []byte(string(ghost)+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	branches, err := Branches(r)
	if err != nil {
		t.Fatalf("Branches: %v", err)
	}
	if len(branches) != 3 {
		t.Fatalf("got %d branches, want 3: %+v", len(branches), branches)
	}

	feature, ghostBranch, main := branches[0], branches[1], branches[2]
	if feature.Name != "feature" || feature.Head != g.f2 || feature.Message != "f2" || feature.Default {
		t.Fatalf("feature = %+v", feature)
	}
	if !feature.Date.Equal(at(3).When) || feature.Author != "alice" || feature.Email != "alice@example.com" {
		t.Fatalf("feature metadata = %+v", feature)
	}
	if main.Name != "main" || main.Head != g.merge || !main.Default || main.Message != "merge feature" {
		t.Fatalf("main = %+v", main)
	}

	// An unreadable head is still listed, with empty metadata.
	if ghostBranch.Name != "ghost" || ghostBranch.Head != ghost {
		t.Fatalf("ghost = %+v", ghostBranch)
	}
	if ghostBranch.Message != "" || ghostBranch.Author != "" || !ghostBranch.Date.IsZero() {
		t.Fatalf("ghost metadata should be empty: %+v", ghostBranch)
	}
}

func TestBranchesEmptyRepo(t *testing.T) {
	r, err := repo.Init(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	branches, err := Branches(r)
	if err != nil {
		t.Fatalf("Branches: %v", err)
	}
	if len(branches) != 0 {
		t.Fatalf("branches = %+v, want none", branches)
	}
}
