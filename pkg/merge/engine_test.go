package merge

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/odvcencio/forgevcs/pkg/object"
	"github.com/odvcencio/forgevcs/pkg/repo"
)

var invoker = object.Signature{Name: "bob", Email: "bob@example.com"}

func newRepo(t *testing.T) *repo.Repo {
	t.Helper()
	r, err := repo.Init(t.TempDir(), "main")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return r
}

func commit(t *testing.T, r *repo.Repo, branch string, files map[string]string, msg string) object.Hash {
	t.Helper()
	data := make(map[string][]byte, len(files))
	for p, c := range files {
		data[p] = []byte(c)
	}
	h, err := r.CommitChanges(repo.CommitRequest{
		Branch:  branch,
		Files:   data,
		Message: msg,
		Author:  object.Signature{Name: "alice", Email: "alice@example.com"},
	})
	if err != nil {
		t.Fatalf("CommitChanges(%s, %q): %v", branch, msg, err)
	}
	return h
}

func head(t *testing.T, r *repo.Repo, branch string) object.Hash {
	t.Helper()
	h, err := r.ResolveRef(branch)
	if err != nil {
		t.Fatalf("ResolveRef(%s): %v", branch, err)
	}
	return h
}

func readCommit(t *testing.T, r *repo.Repo, h object.Hash) *object.CommitObj {
	t.Helper()
	c, err := r.Store.ReadCommit(h)
	if err != nil {
		t.Fatalf("ReadCommit(%s): %v", h, err)
	}
	return c
}

// diverged builds main: root -> m1 and feature: root -> f1 -> f2.
func diverged(t *testing.T) (*repo.Repo, object.Hash) {
	t.Helper()
	r := newRepo(t)
	root := commit(t, r, "main", map[string]string{"README.md": "# demo\n", "shared.txt": "a\nb\nc\n"}, "initial")
	if err := r.CreateBranch("feature", root); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	commit(t, r, "main", map[string]string{"main.txt": "main\n"}, "main work")
	commit(t, r, "feature", map[string]string{"f1.txt": "one\n"}, "feature one")
	commit(t, r, "feature", map[string]string{"shared.txt": "a\nb\nC\n"}, "feature two")
	return r, root
}

func TestMergeCommitStrategy(t *testing.T) {
	r, root := diverged(t)
	target := head(t, r, "main")
	source := head(t, r, "feature")

	e := NewEngine(r)
	res, err := e.Merge(context.Background(), Request{Source: "feature", Target: "main", Strategy: StrategyMerge, Committer: invoker})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.AlreadyMerged || res.Base != root || res.PreviousHead != target || res.OperationID == "" {
		t.Fatalf("result = %+v", res)
	}
	if got := head(t, r, "main"); got != res.CommitID {
		t.Fatalf("main = %s, want %s", got, res.CommitID)
	}
	c := readCommit(t, r, res.CommitID)
	if !reflect.DeepEqual(c.Parents, []object.Hash{target, source}) {
		t.Fatalf("parents = %v, want [target source]", c.Parents)
	}
	if c.Committer.Name != "bob" || c.Message != "Merge branch 'feature' into main\n" {
		t.Fatalf("commit = %+v", c)
	}
	data, _, err := r.ReadFileAt(res.CommitID, "shared.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "a\nb\nC\n" {
		t.Fatalf("shared.txt = %q", data)
	}
	if got := head(t, r, "feature"); got != source {
		t.Fatalf("source branch moved to %s", got)
	}
}

func TestMergeCommitIdempotent(t *testing.T) {
	r, _ := diverged(t)
	e := NewEngine(r)
	req := Request{Source: "feature", Target: "main", Strategy: StrategyMerge}

	first, err := e.Merge(context.Background(), req)
	if err != nil {
		t.Fatalf("first Merge: %v", err)
	}
	second, err := e.Merge(context.Background(), req)
	if err != nil {
		t.Fatalf("second Merge: %v", err)
	}
	if !second.AlreadyMerged {
		t.Fatal("second merge should be a no-op")
	}
	if second.CommitID != first.CommitID {
		t.Fatalf("second CommitID = %s, want %s", second.CommitID, first.CommitID)
	}
	if got := head(t, r, "main"); got != first.CommitID {
		t.Fatalf("main = %s, want %s", got, first.CommitID)
	}
}

func TestSquashStrategy(t *testing.T) {
	r, _ := diverged(t)
	target := head(t, r, "main")
	source := head(t, r, "feature")

	res, err := NewEngine(r).Merge(context.Background(), Request{Source: "feature", Target: "main", Strategy: StrategySquash, Committer: invoker})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	c := readCommit(t, r, res.CommitID)
	if c.TreeHash != readCommit(t, r, source).TreeHash {
		t.Fatal("squash tree differs from the source head tree")
	}
	if !reflect.DeepEqual(c.Parents, []object.Hash{target}) {
		t.Fatalf("parents = %v, want [%s]", c.Parents, target)
	}
	if c.Author.Name != "bob" || c.Committer.Name != "bob" {
		t.Fatalf("author/committer = %q/%q, want the invoker", c.Author.Name, c.Committer.Name)
	}
	if c.Message != "Squash merge branch 'feature' into main\n" {
		t.Fatalf("message = %q", c.Message)
	}
	if got := head(t, r, "main"); got != res.CommitID {
		t.Fatalf("main = %s, want %s", got, res.CommitID)
	}
}

func TestRebaseStrategy(t *testing.T) {
	r, root := diverged(t)
	target := head(t, r, "main")
	originals, err := r.FirstParentRange(root, head(t, r, "feature"))
	if err != nil {
		t.Fatal(err)
	}
	before, err := r.FirstParentRange("", target)
	if err != nil {
		t.Fatal(err)
	}

	res, err := NewEngine(r).Merge(context.Background(), Request{Source: "feature", Target: "main", Strategy: StrategyRebase, Committer: invoker})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(res.Replayed) != len(originals) {
		t.Fatalf("replayed %d commits, want %d", len(res.Replayed), len(originals))
	}
	if res.CommitID != res.Replayed[len(res.Replayed)-1] {
		t.Fatalf("CommitID = %s, want last replayed", res.CommitID)
	}

	parent := target
	for i, h := range res.Replayed {
		c := readCommit(t, r, h)
		orig := readCommit(t, r, originals[i])
		sameAuthor := c.Author.Name == orig.Author.Name && c.Author.Email == orig.Author.Email && c.Author.When.Equal(orig.Author.When)
		if c.TreeHash != orig.TreeHash || c.Message != orig.Message || !sameAuthor {
			t.Fatalf("replay %d does not copy tree/message/author of %s", i, originals[i])
		}
		if c.Committer.Name != "bob" {
			t.Fatalf("replay %d committer = %q, want bob", i, c.Committer.Name)
		}
		if !reflect.DeepEqual(c.Parents, []object.Hash{parent}) {
			t.Fatalf("replay %d parents = %v, want [%s]", i, c.Parents, parent)
		}
		parent = h
	}

	after, err := r.FirstParentRange("", head(t, r, "main"))
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(before)+len(originals) {
		t.Fatalf("first-parent chain %d -> %d, want +%d", len(before), len(after), len(originals))
	}
}

func TestRebaseNoCommonAncestor(t *testing.T) {
	r := newRepo(t)
	commit(t, r, "main", map[string]string{"a": "a\n"}, "a")
	commit(t, r, "orphan", map[string]string{"b": "b\n"}, "b")
	target := head(t, r, "main")

	for _, s := range []Strategy{StrategyRebase, StrategyMerge} {
		_, err := NewEngine(r).Merge(context.Background(), Request{Source: "orphan", Target: "main", Strategy: s})
		if !errors.Is(err, ErrMergeFailed) || !errors.Is(err, repo.ErrNoCommonAncestor) {
			t.Fatalf("%s err = %v, want ErrMergeFailed wrapping ErrNoCommonAncestor", s, err)
		}
	}
	if got := head(t, r, "main"); got != target {
		t.Fatalf("main moved to %s", got)
	}
}

func TestMergeConflictLeavesRef(t *testing.T) {
	r := newRepo(t)
	root := commit(t, r, "main", map[string]string{"f.txt": "base\n"}, "initial")
	if err := r.CreateBranch("feature", root); err != nil {
		t.Fatal(err)
	}
	target := commit(t, r, "main", map[string]string{"f.txt": "main\n"}, "main")
	commit(t, r, "feature", map[string]string{"f.txt": "feature\n"}, "feature")

	_, err := NewEngine(r).Merge(context.Background(), Request{Source: "feature", Target: "main", Strategy: StrategyMerge})
	if !errors.Is(err, ErrMergeFailed) || !errors.Is(err, repo.ErrMergeConflict) {
		t.Fatalf("err = %v, want ErrMergeFailed wrapping ErrMergeConflict", err)
	}
	var me *MergeError
	if !errors.As(err, &me) {
		t.Fatalf("err = %T, want *MergeError", err)
	}
	if me.State != StateBaseFound || me.Strategy != StrategyMerge || me.Source != "feature" || me.Target != "main" {
		t.Fatalf("MergeError = %+v", me)
	}
	if got := head(t, r, "main"); got != target {
		t.Fatalf("main moved to %s", got)
	}
}

func TestConcurrentWriterLosesRace(t *testing.T) {
	r, _ := diverged(t)
	intruder := commit(t, r, "hotfix", map[string]string{"hot.txt": "fix\n"}, "hotfix")

	e := NewEngine(r)
	e.beforeRefUpdate = func() {
		if err := r.WriteRef("refs/heads/main", intruder, repo.RefUpdate{Force: true}); err != nil {
			t.Errorf("intruding WriteRef: %v", err)
		}
	}
	_, err := e.Merge(context.Background(), Request{Source: "feature", Target: "main", Strategy: StrategySquash})
	if !errors.Is(err, ErrMergeFailed) || !errors.Is(err, repo.ErrRefUpdateConflict) {
		t.Fatalf("err = %v, want ErrMergeFailed wrapping ErrRefUpdateConflict", err)
	}
	var me *MergeError
	if !errors.As(err, &me) || me.State != StateApplied {
		t.Fatalf("err = %+v, want failure at %s", err, StateApplied)
	}
	if got := head(t, r, "main"); got != intruder {
		t.Fatalf("main = %s, want the concurrent writer's %s", got, intruder)
	}

	// The whole merge can be retried against the new head.
	e.beforeRefUpdate = nil
	res, err := e.Merge(context.Background(), Request{Source: "feature", Target: "main", Strategy: StrategySquash})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.PreviousHead != intruder {
		t.Fatalf("retry PreviousHead = %s, want %s", res.PreviousHead, intruder)
	}
}

func TestParallelMergesSingleWinner(t *testing.T) {
	r, _ := diverged(t)
	target := head(t, r, "main")

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	results := make(chan *Result, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := NewEngine(r).Merge(context.Background(), Request{Source: "feature", Target: "main", Strategy: StrategySquash})
			if err != nil {
				errs <- err
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(errs)
	close(results)

	for err := range errs {
		if !errors.Is(err, repo.ErrRefUpdateConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// Losers either conflict or start after the winner and squash again on
	// top of it, so every success must chain from a distinct previous head.
	seen := map[object.Hash]bool{}
	for res := range results {
		if seen[res.PreviousHead] {
			t.Fatalf("two merges applied on top of %s", res.PreviousHead)
		}
		seen[res.PreviousHead] = true
	}
	if !seen[target] {
		t.Fatal("no merge applied on top of the original head")
	}
}

func TestUnknownStrategyAndMissingBranch(t *testing.T) {
	r, _ := diverged(t)
	e := NewEngine(r)

	_, err := e.Merge(context.Background(), Request{Source: "feature", Target: "main", Strategy: "octopus"})
	if !errors.Is(err, ErrUnknownStrategy) || !errors.Is(err, ErrMergeFailed) {
		t.Fatalf("err = %v, want ErrUnknownStrategy", err)
	}

	_, err = e.Merge(context.Background(), Request{Source: "nope", Target: "main", Strategy: StrategyMerge})
	if !errors.Is(err, repo.ErrRefNotFound) || !errors.Is(err, ErrMergeFailed) {
		t.Fatalf("err = %v, want ErrRefNotFound", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Merge(ctx, Request{Source: "feature", Target: "main", Strategy: StrategyMerge})
	if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrMergeFailed) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestParseStrategy(t *testing.T) {
	tests := map[string]Strategy{
		"merge":        StrategyMerge,
		"merge-commit": StrategyMerge,
		" Squash ":     StrategySquash,
		"REBASE":       StrategyRebase,
	}
	for in, want := range tests {
		got, err := ParseStrategy(in)
		if err != nil || got != want {
			t.Errorf("ParseStrategy(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseStrategy("ff-only"); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("err = %v, want ErrUnknownStrategy", err)
	}
}

type recorderFunc func(ctx context.Context, rec Record) error

func (f recorderFunc) Record(ctx context.Context, rec Record) error { return f(ctx, rec) }

func TestRecorderAndStateLog(t *testing.T) {
	r, _ := diverged(t)
	core, logs := observer.New(zapcore.DebugLevel)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	var got []Record
	rec := recorderFunc(func(_ context.Context, rec Record) error {
		got = append(got, rec)
		return errors.New("journal offline")
	})
	e := NewEngine(r,
		WithLogger(zap.New(core)),
		WithRecorder(rec),
		WithProject("demo"),
		WithClock(func() time.Time { return at }),
	)

	res, err := e.Merge(context.Background(), Request{Source: "feature", Target: "main", Strategy: StrategyRebase})
	if err != nil {
		t.Fatalf("Merge must not fail when the recorder does: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("recorder calls = %d, want 1", len(got))
	}
	want := Record{
		OperationID:  res.OperationID,
		Project:      "demo",
		Source:       "feature",
		Target:       "main",
		Strategy:     StrategyRebase,
		Commit:       res.CommitID,
		PreviousHead: res.PreviousHead,
		Replayed:     2,
		At:           at,
	}
	if got[0] != want {
		t.Fatalf("record = %+v, want %+v", got[0], want)
	}
	if logs.FilterMessage("merge recorder failed").Len() != 1 {
		t.Fatal("recorder failure was not logged")
	}

	var states []string
	for _, entry := range logs.FilterMessage("merge state").All() {
		states = append(states, entry.ContextMap()["state"].(string))
	}
	wantStates := []string{"start", "base-found", "applied", "ref-updated", "done"}
	if !reflect.DeepEqual(states, wantStates) {
		t.Fatalf("states = %v, want %v", states, wantStates)
	}
	for _, entry := range logs.All() {
		if entry.ContextMap()["operation_id"] != res.OperationID {
			t.Fatalf("log entry %q lacks the operation id", entry.Message)
		}
	}
}
