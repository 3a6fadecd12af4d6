// Package diff compares commit trees and renders per-file unified patches.
package diff

import (
	"fmt"
	"path"

	"github.com/odvcencio/forgevcs/pkg/object"
)

// Status classifies what happened to a file path between two trees.
type Status string

const (
	StatusAdded    Status = "added"    // Path exists only in the new tree.
	StatusDeleted  Status = "deleted"  // Path exists only in the old tree.
	StatusModified Status = "modified" // Path exists in both with different ids.
)

// Change records a single leaf-level difference between two trees.
type Change struct {
	Path    string      `json:"path"`
	Status  Status      `json:"status"`
	OldHash object.Hash `json:"oldHash,omitempty"`
	NewHash object.Hash `json:"newHash,omitempty"`
	OldMode string      `json:"oldMode,omitempty"`
	NewMode string      `json:"newMode,omitempty"`
}

// TreeReader reads tree objects.
type TreeReader interface {
	ReadTree(h object.Hash) (*object.TreeObj, error)
}

// CommitTreeReader reads trees and commits.
type CommitTreeReader interface {
	TreeReader
	ReadCommit(h object.Hash) (*object.CommitObj, error)
}

// DiffTrees walks treeA and treeB in lock-step and reports every leaf path
// that was added, deleted or modified, in git tree order. An empty hash
// stands for a missing tree. Entries are compared by object id only and
// subtrees with equal ids are not descended. A path that changes between
// file and directory is reported as the file being deleted (or added) and
// every leaf under the directory being added (or deleted).
func DiffTrees(objects TreeReader, treeA, treeB object.Hash) ([]Change, error) {
	var changes []Change
	if err := diffTreeRec(objects, treeA, treeB, "", &changes); err != nil {
		return nil, err
	}
	return changes, nil
}

// DiffCommits resolves both commits to their root trees and diffs them.
// An empty commitA diffs against the empty tree.
func DiffCommits(objects CommitTreeReader, commitA, commitB object.Hash) ([]Change, error) {
	treeA, err := commitTree(objects, commitA)
	if err != nil {
		return nil, err
	}
	treeB, err := commitTree(objects, commitB)
	if err != nil {
		return nil, err
	}
	return DiffTrees(objects, treeA, treeB)
}

func commitTree(objects CommitTreeReader, h object.Hash) (object.Hash, error) {
	if h == "" {
		return "", nil
	}
	c, err := objects.ReadCommit(h)
	if err != nil {
		return "", fmt.Errorf("diff: read commit %s: %w", h, err)
	}
	return c.TreeHash, nil
}

func readEntries(objects TreeReader, h object.Hash) ([]object.TreeEntry, error) {
	if h == "" || h == object.EmptyTreeHash {
		return nil, nil
	}
	tr, err := objects.ReadTree(h)
	if err != nil {
		return nil, fmt.Errorf("diff: read tree %s: %w", h, err)
	}
	entries := make([]object.TreeEntry, len(tr.Entries))
	copy(entries, tr.Entries)
	object.SortTreeEntries(entries)
	return entries, nil
}

func diffTreeRec(objects TreeReader, treeA, treeB object.Hash, prefix string, out *[]Change) error {
	if treeA == treeB {
		return nil
	}
	a, err := readEntries(objects, treeA)
	if err != nil {
		return err
	}
	b, err := readEntries(objects, treeB)
	if err != nil {
		return err
	}

	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j >= len(b):
			if err := emitSide(objects, a[i], prefix, StatusDeleted, out); err != nil {
				return err
			}
			i++
		case i >= len(a):
			if err := emitSide(objects, b[j], prefix, StatusAdded, out); err != nil {
				return err
			}
			j++
		default:
			ka, kb := sortKey(a[i]), sortKey(b[j])
			switch {
			case ka < kb:
				if err := emitSide(objects, a[i], prefix, StatusDeleted, out); err != nil {
					return err
				}
				i++
			case ka > kb:
				if err := emitSide(objects, b[j], prefix, StatusAdded, out); err != nil {
					return err
				}
				j++
			default:
				if err := diffPair(objects, a[i], b[j], prefix, out); err != nil {
					return err
				}
				i++
				j++
			}
		}
	}
	return nil
}

// diffPair compares two entries with the same name and kind.
func diffPair(objects TreeReader, ea, eb object.TreeEntry, prefix string, out *[]Change) error {
	if ea.Hash == eb.Hash {
		return nil
	}
	p := joinPath(prefix, ea.Name)
	if ea.IsDir() {
		return diffTreeRec(objects, ea.Hash, eb.Hash, p, out)
	}
	*out = append(*out, Change{
		Path:    p,
		Status:  StatusModified,
		OldHash: ea.Hash,
		NewHash: eb.Hash,
		OldMode: ea.Mode,
		NewMode: eb.Mode,
	})
	return nil
}

// emitSide reports an entry present on one side only; directories expand
// into their leaves.
func emitSide(objects TreeReader, e object.TreeEntry, prefix string, status Status, out *[]Change) error {
	p := joinPath(prefix, e.Name)
	if e.IsDir() {
		if status == StatusAdded {
			return diffTreeRec(objects, "", e.Hash, p, out)
		}
		return diffTreeRec(objects, e.Hash, "", p, out)
	}
	c := Change{Path: p, Status: status}
	if status == StatusAdded {
		c.NewHash, c.NewMode = e.Hash, e.Mode
	} else {
		c.OldHash, c.OldMode = e.Hash, e.Mode
	}
	*out = append(*out, c)
	return nil
}

func sortKey(e object.TreeEntry) string {
	if e.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
