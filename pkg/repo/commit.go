package repo

import (
	"errors"
	"fmt"
	"sort"

	"github.com/odvcencio/forgevcs/pkg/object"
)

var ErrNothingToCommit = errors.New("nothing to commit")

// CommitRequest describes a snapshot commit: files to write and paths to
// delete on top of the branch head's tree.
type CommitRequest struct {
	Branch string
	// Files maps repository paths to their new content.
	Files map[string][]byte
	// Modes optionally overrides the mode of a path in Files.
	Modes   map[string]string
	Deletes []string
	Message string

	Author    object.Signature
	Committer object.Signature

	// AllowEmpty records a commit even when the tree is unchanged.
	AllowEmpty bool
}

// CommitChanges writes the requested blobs, derives the new tree from the
// branch head's tree and commits it with the head as single parent, or as a
// root commit when the branch does not exist yet. The branch is moved with a
// compare-and-swap against the head observed at the start, so a concurrent
// writer makes this call fail with ErrRefUpdateConflict.
func (r *Repo) CommitChanges(req CommitRequest) (object.Hash, error) {
	branch := req.Branch
	if branch == "" {
		var err error
		if branch, err = r.DefaultBranch(); err != nil {
			return "", fmt.Errorf("commit: %w", err)
		}
		if branch == "" {
			return "", fmt.Errorf("commit: HEAD is detached and no branch was given")
		}
	}
	if err := ValidateBranchName(branch); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	refName := "refs/heads/" + branch

	parent, err := r.ResolveRef(refName)
	if err != nil && !errors.Is(err, ErrRefNotFound) {
		return "", fmt.Errorf("commit: %w", err)
	}

	files := make(map[string]TreeFileEntry)
	baseTree := object.EmptyTreeHash
	if parent != "" {
		pc, err := r.Store.ReadCommit(parent)
		if err != nil {
			return "", fmt.Errorf("commit: read head %s: %w", parent, err)
		}
		baseTree = pc.TreeHash
		if files, err = r.FlattenTreeMap(pc.TreeHash); err != nil {
			return "", fmt.Errorf("commit: %w", err)
		}
	}

	for _, raw := range req.Deletes {
		p, err := CleanPath(raw)
		if err != nil {
			return "", fmt.Errorf("commit: delete: %w", err)
		}
		if _, ok := files[p]; !ok {
			return "", fmt.Errorf("commit: delete %q: %w", p, ErrPathNotFound)
		}
		delete(files, p)
	}

	paths := make([]string, 0, len(req.Files))
	for p := range req.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, raw := range paths {
		p, err := CleanPath(raw)
		if err != nil {
			return "", fmt.Errorf("commit: %w", err)
		}
		h, err := r.Store.WriteBlob(&object.Blob{Data: req.Files[raw]})
		if err != nil {
			return "", fmt.Errorf("commit: write blob %q: %w", p, err)
		}
		mode := req.Modes[raw]
		if mode == "" {
			mode = object.TreeModeFile
			if prev, ok := files[p]; ok {
				mode = prev.Mode
			}
		}
		files[p] = TreeFileEntry{Path: p, Hash: h, Mode: mode}
	}

	treeHash, err := r.BuildTree(files)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if treeHash == baseTree && parent != "" && !req.AllowEmpty {
		return "", fmt.Errorf("commit to %q: %w", branch, ErrNothingToCommit)
	}

	committer := r.signature(req.Committer)
	author := req.Author
	if author.Name == "" && author.Email == "" {
		author = committer
	}
	author = r.signature(author)

	var parents []object.Hash
	if parent != "" {
		parents = []object.Hash{parent}
	}
	commitHash, err := r.Store.WriteCommit(&object.CommitObj{
		TreeHash:  treeHash,
		Parents:   parents,
		Author:    author,
		Committer: committer,
		Message:   ensureTrailingNewline(req.Message),
	})
	if err != nil {
		return "", fmt.Errorf("commit: write commit: %w", err)
	}

	reason := "commit: " + firstLine(req.Message)
	if parent == "" {
		reason = "commit (initial): " + firstLine(req.Message)
	}
	err = r.WriteRef(refName, commitHash, RefUpdate{Expected: parent, Reason: reason, Committer: committer})
	if err != nil {
		var reflogErr *RefUpdateReflogError
		if errors.As(err, &reflogErr) {
			return commitHash, err
		}
		return "", fmt.Errorf("commit: %w", err)
	}
	return commitHash, nil
}

func ensureTrailingNewline(msg string) string {
	if msg == "" || msg[len(msg)-1] == '\n' {
		return msg
	}
	return msg + "\n"
}

func firstLine(msg string) string {
	for i := 0; i < len(msg); i++ {
		if msg[i] == '\n' {
			return msg[:i]
		}
	}
	return msg
}
