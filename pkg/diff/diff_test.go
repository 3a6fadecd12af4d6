package diff

import (
	"testing"
)

func TestDiffTrees_SameTreeIsEmpty(t *testing.T) {
	s := newStore(t)
	tree := writeTree(t, s, map[string]string{"a.txt": "1", "dir/b.txt": "2"})
	c := writeCommit(t, s, tree)

	changes, err := DiffCommits(s, c, c)
	if err != nil {
		t.Fatalf("DiffCommits: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("changes = %+v, want none", changes)
	}
}

func TestDiffTrees_AddedFileOnly(t *testing.T) {
	s := newStore(t)
	a := writeTree(t, s, map[string]string{"a.txt": "1"})
	b := writeTree(t, s, map[string]string{"a.txt": "1", "b.txt": "2"})

	changes, err := DiffTrees(s, a, b)
	if err != nil {
		t.Fatalf("DiffTrees: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("changes = %+v, want exactly one", changes)
	}
	got := changes[0]
	if got.Path != "b.txt" || got.Status != StatusAdded || got.OldHash != "" || got.NewHash != blobID("2") {
		t.Fatalf("change = %+v", got)
	}
}

func TestDiffTrees_ClassifiesNestedChanges(t *testing.T) {
	s := newStore(t)
	a := writeTree(t, s, map[string]string{
		"keep.txt":        "same",
		"src/main.go":     "package main\n",
		"src/old.go":      "package old\n",
		"docs/guide.md":   "v1\n",
		"vendor/x/lib.go": "lib\n",
	})
	b := writeTree(t, s, map[string]string{
		"keep.txt":        "same",
		"src/main.go":     "package main\n\nfunc main() {}\n",
		"src/new.go":      "package new\n",
		"docs/guide.md":   "v1\n",
		"vendor/x/lib.go": "lib\n",
	})

	changes, err := DiffTrees(s, a, b)
	if err != nil {
		t.Fatalf("DiffTrees: %v", err)
	}
	want := []struct {
		path   string
		status Status
	}{
		{"src/main.go", StatusModified},
		{"src/new.go", StatusAdded},
		{"src/old.go", StatusDeleted},
	}
	if len(changes) != len(want) {
		t.Fatalf("changes = %+v, want %d", changes, len(want))
	}
	for i, w := range want {
		if changes[i].Path != w.path || changes[i].Status != w.status {
			t.Errorf("change %d = %s %s, want %s %s", i, changes[i].Status, changes[i].Path, w.status, w.path)
		}
	}
	if changes[0].OldHash == "" || changes[0].NewHash == "" || changes[0].OldMode != "100644" {
		t.Errorf("modified change missing ids: %+v", changes[0])
	}
}

func TestDiffTrees_FileReplacedByDirectory(t *testing.T) {
	s := newStore(t)
	a := writeTree(t, s, map[string]string{"node": "file\n"})
	b := writeTree(t, s, map[string]string{"node/one": "1\n", "node/two": "2\n"})

	changes, err := DiffTrees(s, a, b)
	if err != nil {
		t.Fatalf("DiffTrees: %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("changes = %+v, want 3", changes)
	}
	if changes[0].Path != "node" || changes[0].Status != StatusDeleted {
		t.Errorf("first change = %+v, want node deleted", changes[0])
	}
	if changes[1].Path != "node/one" || changes[1].Status != StatusAdded || changes[2].Path != "node/two" {
		t.Errorf("directory leaves = %+v", changes[1:])
	}

	// And the reverse direction.
	changes, err = DiffTrees(s, b, a)
	if err != nil {
		t.Fatalf("DiffTrees reverse: %v", err)
	}
	if len(changes) != 3 || changes[2].Path != "node/two" || changes[2].Status != StatusDeleted {
		t.Fatalf("reverse changes = %+v", changes)
	}
}

func TestDiffCommits_RootCommitAgainstEmpty(t *testing.T) {
	s := newStore(t)
	tree := writeTree(t, s, map[string]string{"a": "1", "b/c": "2"})
	c := writeCommit(t, s, tree)

	changes, err := DiffCommits(s, "", c)
	if err != nil {
		t.Fatalf("DiffCommits: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("changes = %+v", changes)
	}
	for _, ch := range changes {
		if ch.Status != StatusAdded {
			t.Errorf("%s: status %s, want added", ch.Path, ch.Status)
		}
	}
}

func TestDiffCommits_MissingCommit(t *testing.T) {
	s := newStore(t)
	if _, err := DiffCommits(s, "", blobID("nope")); err == nil {
		t.Fatal("expected error for missing commit")
	}
}
