// Package repo manages a bare repository: its refs, trees, snapshot commits,
// ancestry queries and the native three-way merge primitive.
package repo

import (
	"sync"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/odvcencio/forgevcs/pkg/object"
)

// DefaultIdentity signs reflog entries and commits when the caller supplies
// no identity of its own.
var DefaultIdentity = object.Signature{Name: "forgevcs", Email: "forgevcs@localhost"}

// Repo represents an opened bare repository.
type Repo struct {
	Root  string        // repository directory (holds HEAD, objects/, refs/)
	Store *object.Store // content-addressed object store

	// Identity is used for reflog entries and as the fallback committer.
	Identity object.Signature

	// now is overridable in tests.
	now func() time.Time

	gitStorageOnce sync.Once
	gitStorage     *filesystem.Storage

	ancestryOnce sync.Once
	ancestry     *ancestryCache
}

func newRepo(root string) *Repo {
	return &Repo{
		Root:     root,
		Store:    object.NewStore(root),
		Identity: DefaultIdentity,
		now:      time.Now,
	}
}

// refStorage returns go-git's view of the repository. It is only used to
// read and rewrite packed-refs; loose refs are handled directly.
func (r *Repo) refStorage() *filesystem.Storage {
	r.gitStorageOnce.Do(func() {
		r.gitStorage = filesystem.NewStorage(osfs.New(r.Root), cache.NewObjectLRUDefault())
	})
	return r.gitStorage
}

func (r *Repo) ancestryState() *ancestryCache {
	r.ancestryOnce.Do(func() {
		r.ancestry = newAncestryCache()
	})
	return r.ancestry
}

// signature fills in a missing identity or timestamp.
func (r *Repo) signature(sig object.Signature) object.Signature {
	if sig.Name == "" && sig.Email == "" {
		sig.Name, sig.Email = r.Identity.Name, r.Identity.Email
	}
	if sig.When.IsZero() {
		sig.When = r.now()
	}
	return sig
}
