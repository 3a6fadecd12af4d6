package repo

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/odvcencio/forgevcs/pkg/object"
)

const testEpoch = 1_700_000_000

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := Init(t.TempDir(), "")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	var tick atomic.Int64
	r.now = func() time.Time {
		return time.Unix(testEpoch+tick.Add(1), 0).UTC()
	}
	return r
}

func testSig(name string) object.Signature {
	return object.Signature{
		Name:  name,
		Email: name + "@example.com",
		When:  time.Unix(testEpoch, 0).UTC(),
	}
}

// commitFiles commits files on top of branch and returns the new head.
func commitFiles(t *testing.T, r *Repo, branch string, files map[string]string, msg string) object.Hash {
	t.Helper()
	data := make(map[string][]byte, len(files))
	for p, content := range files {
		data[p] = []byte(content)
	}
	h, err := r.CommitChanges(CommitRequest{
		Branch:  branch,
		Files:   data,
		Message: msg,
		Author:  testSig("alice"),
	})
	if err != nil {
		t.Fatalf("CommitChanges(%s, %q): %v", branch, msg, err)
	}
	return h
}

// writeRawCommit writes a commit with an empty tree and explicit parents
// without touching any ref.
func writeRawCommit(t *testing.T, r *Repo, msg string, parents ...object.Hash) object.Hash {
	t.Helper()
	tree, err := r.BuildTree(nil)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	h, err := r.Store.WriteCommit(&object.CommitObj{
		TreeHash:  tree,
		Parents:   parents,
		Author:    testSig("alice"),
		Committer: testSig("alice"),
		Message:   msg + "\n",
	})
	if err != nil {
		t.Fatalf("WriteCommit(%q): %v", msg, err)
	}
	return h
}

func mustResolve(t *testing.T, r *Repo, name string) object.Hash {
	t.Helper()
	h, err := r.ResolveRef(name)
	if err != nil {
		t.Fatalf("ResolveRef(%q): %v", name, err)
	}
	return h
}
