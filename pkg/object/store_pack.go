package object

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// packSource serves objects that live only in packfiles. This store never
// writes packs; they arrive from git clients pushing over the forge's
// transport layer and are decoded by go-git's filesystem storage.
//
// go-git loads pack indexes once, so the storage is rebuilt whenever the set
// of pack files on disk changes.
type packSource struct {
	root string

	mu      sync.Mutex
	packSet string
	storage *filesystem.Storage
}

func newPackSource(root string) *packSource {
	return &packSource{root: root}
}

// current returns a storage matching the packs currently on disk, or nil if
// the repository has no packfiles.
func (p *packSource) current() (*filesystem.Storage, error) {
	names, err := p.listPacks()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}
	set := strings.Join(names, ",")

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.storage == nil || p.packSet != set {
		p.storage = filesystem.NewStorage(osfs.New(p.root), cache.NewObjectLRUDefault())
		p.packSet = set
	}
	return p.storage, nil
}

func (p *packSource) listPacks() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(p.root, "objects", "pack"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list packs: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".pack") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (p *packSource) has(h Hash) bool {
	st, err := p.current()
	if err != nil || st == nil {
		return false
	}
	return st.HasEncodedObject(plumbing.NewHash(string(h))) == nil
}

func (p *packSource) read(h Hash) (ObjectType, []byte, error) {
	st, err := p.current()
	if err != nil {
		return "", nil, err
	}
	if st == nil {
		return "", nil, ErrObjectNotFound
	}

	obj, err := st.EncodedObject(plumbing.AnyObject, plumbing.NewHash(string(h)))
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return "", nil, ErrObjectNotFound
		}
		return "", nil, fmt.Errorf("pack read: %w", err)
	}

	rd, err := obj.Reader()
	if err != nil {
		return "", nil, fmt.Errorf("pack read: %w", err)
	}
	defer rd.Close()
	data, err := io.ReadAll(rd)
	if err != nil {
		return "", nil, fmt.Errorf("pack read: %w", err)
	}

	switch obj.Type() {
	case plumbing.BlobObject:
		return TypeBlob, data, nil
	case plumbing.TreeObject:
		return TypeTree, data, nil
	case plumbing.CommitObject:
		return TypeCommit, data, nil
	case plumbing.TagObject:
		return TypeTag, data, nil
	default:
		return "", nil, fmt.Errorf("pack read: unsupported object type %s", obj.Type())
	}
}
