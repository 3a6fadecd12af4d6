package repo

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/odvcencio/forgevcs/pkg/object"
)

var ErrInvalidPath = errors.New("invalid path")

// TreeFileEntry represents a single file in a flattened tree.
type TreeFileEntry struct {
	Path string
	Hash object.Hash
	Mode string
}

// PathConflictError reports a path that is used both as a file and as a
// directory in the same tree.
type PathConflictError struct {
	Path string
}

func (e *PathConflictError) Error() string {
	return fmt.Sprintf("path %q is both a file and a directory", e.Path)
}

// CleanPath normalizes a repository-relative path to forward slashes without
// leading or trailing separators. Absolute paths and paths escaping the root
// are rejected.
func CleanPath(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if p == "" || strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	for _, part := range strings.Split(cleaned, "/") {
		if part == ".git" || strings.ContainsRune(part, 0) {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return cleaned, nil
}

// treeNode is one directory level while building trees bottom-up.
type treeNode struct {
	files map[string]TreeFileEntry
	dirs  map[string]*treeNode
}

func newTreeNode() *treeNode {
	return &treeNode{files: make(map[string]TreeFileEntry), dirs: make(map[string]*treeNode)}
}

// BuildTree writes the hierarchy described by files (keyed by path) to the
// store and returns the root tree hash. Every subtree is written. An empty map
// yields the empty tree. Entries without a mode default to a regular file.
func (r *Repo) BuildTree(files map[string]TreeFileEntry) (object.Hash, error) {
	root := newTreeNode()

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, raw := range paths {
		entry := files[raw]
		p, err := CleanPath(raw)
		if err != nil {
			return "", fmt.Errorf("build tree: %w", err)
		}
		entry.Path = p
		if entry.Mode == "" {
			entry.Mode = object.TreeModeFile
		}

		parts := strings.Split(p, "/")
		node := root
		for i, dir := range parts[:len(parts)-1] {
			if _, isFile := node.files[dir]; isFile {
				return "", fmt.Errorf("build tree: %w", &PathConflictError{Path: strings.Join(parts[:i+1], "/")})
			}
			child, ok := node.dirs[dir]
			if !ok {
				child = newTreeNode()
				node.dirs[dir] = child
			}
			node = child
		}
		name := parts[len(parts)-1]
		if _, isDir := node.dirs[name]; isDir {
			return "", fmt.Errorf("build tree: %w", &PathConflictError{Path: p})
		}
		node.files[name] = entry
	}
	return r.writeTreeNode(root, "")
}

func (r *Repo) writeTreeNode(n *treeNode, prefix string) (object.Hash, error) {
	entries := make([]object.TreeEntry, 0, len(n.files)+len(n.dirs))
	for name, f := range n.files {
		entries = append(entries, object.TreeEntry{Name: name, Mode: f.Mode, Hash: f.Hash})
	}
	for name, child := range n.dirs {
		childPrefix := name
		if prefix != "" {
			childPrefix = prefix + "/" + name
		}
		sub, err := r.writeTreeNode(child, childPrefix)
		if err != nil {
			return "", err
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: object.TreeModeDir, Hash: sub})
	}

	h, err := r.Store.WriteTree(&object.TreeObj{Entries: entries})
	if err != nil {
		return "", fmt.Errorf("write tree (prefix=%q): %w", prefix, err)
	}
	return h, nil
}

// FlattenTree walks a tree object recursively, returning all non-directory
// entries with their full forward-slash paths, in git order. The empty tree
// needs no object in the store.
func (r *Repo) FlattenTree(h object.Hash) ([]TreeFileEntry, error) {
	if h == "" || h == object.EmptyTreeHash {
		return nil, nil
	}
	var result []TreeFileEntry
	if err := r.flattenTreeRec(h, "", &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Repo) flattenTreeRec(h object.Hash, prefix string, out *[]TreeFileEntry) error {
	treeObj, err := r.Store.ReadTree(h)
	if err != nil {
		return fmt.Errorf("flatten tree: read %s: %w", h, err)
	}

	for _, entry := range treeObj.Entries {
		fullPath := entry.Name
		if prefix != "" {
			fullPath = prefix + "/" + entry.Name
		}
		if entry.IsDir() {
			if err := r.flattenTreeRec(entry.Hash, fullPath, out); err != nil {
				return err
			}
			continue
		}
		*out = append(*out, TreeFileEntry{Path: fullPath, Hash: entry.Hash, Mode: entry.Mode})
	}
	return nil
}

// FlattenTreeMap is FlattenTree keyed by path.
func (r *Repo) FlattenTreeMap(h object.Hash) (map[string]TreeFileEntry, error) {
	entries, err := r.FlattenTree(h)
	if err != nil {
		return nil, err
	}
	out := make(map[string]TreeFileEntry, len(entries))
	for _, e := range entries {
		out[e.Path] = e
	}
	return out, nil
}
