package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/forgevcs/pkg/object"
)

var ErrPathNotFound = errors.New("path not found")

// TreeEntryAtPath returns the entry at relPath inside the tree treeHash.
// Directory entries are returned too. A missing path is ErrPathNotFound.
func (r *Repo) TreeEntryAtPath(treeHash object.Hash, relPath string) (object.TreeEntry, error) {
	relPath, err := CleanPath(relPath)
	if err != nil {
		return object.TreeEntry{}, err
	}
	parts := strings.Split(relPath, "/")
	current := treeHash

	for i, part := range parts {
		treeObj, err := r.Store.ReadTree(current)
		if err != nil {
			return object.TreeEntry{}, fmt.Errorf("read tree %s: %w", current, err)
		}

		var (
			entry object.TreeEntry
			found bool
		)
		for _, te := range treeObj.Entries {
			if te.Name == part {
				entry = te
				found = true
				break
			}
		}
		if !found {
			return object.TreeEntry{}, fmt.Errorf("%q: %w", relPath, ErrPathNotFound)
		}
		if i == len(parts)-1 {
			return entry, nil
		}
		if !entry.IsDir() {
			return object.TreeEntry{}, fmt.Errorf("%q: %w", relPath, ErrPathNotFound)
		}
		current = entry.Hash
	}
	return object.TreeEntry{}, fmt.Errorf("%q: %w", relPath, ErrPathNotFound)
}

// ReadFileAt returns the blob content at relPath in the given commit.
func (r *Repo) ReadFileAt(commit object.Hash, relPath string) ([]byte, object.TreeEntry, error) {
	c, err := r.Store.ReadCommit(commit)
	if err != nil {
		return nil, object.TreeEntry{}, fmt.Errorf("read file: %w", err)
	}
	entry, err := r.TreeEntryAtPath(c.TreeHash, relPath)
	if err != nil {
		return nil, object.TreeEntry{}, fmt.Errorf("read file: %w", err)
	}
	if entry.Type() != object.TypeBlob {
		return nil, entry, fmt.Errorf("read file %q: not a file: %w", relPath, ErrPathNotFound)
	}
	blob, err := r.Store.ReadBlob(entry.Hash)
	if err != nil {
		return nil, entry, fmt.Errorf("read file %q: %w", relPath, err)
	}
	return blob.Data, entry, nil
}
