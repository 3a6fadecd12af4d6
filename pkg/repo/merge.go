package repo

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/forgevcs/pkg/diff3"
	"github.com/odvcencio/forgevcs/pkg/object"
)

var (
	ErrNoCommonAncestor = errors.New("no common ancestor")
	ErrMergeConflict    = errors.New("merge conflict")
)

// ConflictError lists the paths a three-way merge could not reconcile.
type ConflictError struct {
	Paths []string
}

func (e *ConflictError) Error() string {
	if len(e.Paths) == 1 {
		return fmt.Sprintf("%s in %s", ErrMergeConflict, e.Paths[0])
	}
	return fmt.Sprintf("%s in %d paths: %s", ErrMergeConflict, len(e.Paths), strings.Join(e.Paths, ", "))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrMergeConflict
}

// MergeKind classifies the outcome of Repo.Merge.
type MergeKind int

const (
	// MergeUpToDate means theirs is already reachable from ours.
	MergeUpToDate MergeKind = iota
	// MergeFastForward means ours is an ancestor of theirs and fast-forward
	// was allowed; Commit is theirs.
	MergeFastForward
	// MergeCommitted means a new two-parent commit was written.
	MergeCommitted
)

func (k MergeKind) String() string {
	switch k {
	case MergeUpToDate:
		return "up-to-date"
	case MergeFastForward:
		return "fast-forward"
	case MergeCommitted:
		return "merged"
	default:
		return fmt.Sprintf("MergeKind(%d)", int(k))
	}
}

// MergeOptions selects the two commits of a bare three-way merge.
type MergeOptions struct {
	Ours   object.Hash
	Theirs object.Hash

	Message   string
	Author    object.Signature
	Committer object.Signature

	// FastForward allows returning theirs unchanged when ours is its
	// ancestor instead of writing a merge commit.
	FastForward bool
}

// MergeOutcome is the result of Repo.Merge.
type MergeOutcome struct {
	Kind   MergeKind
	Commit object.Hash
	// Base is the merge base used; empty for up-to-date and fast-forward.
	Base object.Hash
}

// Merge performs a three-way merge of two commits without a working tree.
// On success the merged commit has parents [ours, theirs]. No ref is moved;
// the caller decides where the result goes. Any conflicting path fails the
// whole merge with a *ConflictError and nothing but blobs is written.
func (r *Repo) Merge(opts MergeOptions) (*MergeOutcome, error) {
	if opts.Ours == "" || opts.Theirs == "" {
		return nil, fmt.Errorf("merge: both commits are required")
	}
	oursCommit, err := r.readCommitCached(opts.Ours)
	if err != nil {
		return nil, fmt.Errorf("merge: ours: %w", err)
	}
	theirsCommit, err := r.readCommitCached(opts.Theirs)
	if err != nil {
		return nil, fmt.Errorf("merge: theirs: %w", err)
	}

	merged, err := r.IsAncestor(opts.Theirs, opts.Ours)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if merged {
		return &MergeOutcome{Kind: MergeUpToDate, Commit: opts.Ours}, nil
	}
	if opts.FastForward {
		ff, err := r.IsAncestor(opts.Ours, opts.Theirs)
		if err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		if ff {
			return &MergeOutcome{Kind: MergeFastForward, Commit: opts.Theirs}, nil
		}
	}

	base, found, err := r.FindMergeBase(opts.Ours, opts.Theirs)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("merge %s into %s: %w", opts.Theirs.Short(), opts.Ours.Short(), ErrNoCommonAncestor)
	}
	baseCommit, err := r.readCommitCached(base)
	if err != nil {
		return nil, fmt.Errorf("merge: base: %w", err)
	}

	treeHash, err := r.MergeTrees(baseCommit.TreeHash, oursCommit.TreeHash, theirsCommit.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	committer := r.signature(opts.Committer)
	author := opts.Author
	if author.Name == "" && author.Email == "" {
		author = committer
	}
	message := opts.Message
	if strings.TrimSpace(message) == "" {
		message = fmt.Sprintf("Merge commit %s into %s", opts.Theirs.Short(), opts.Ours.Short())
	}

	commitHash, err := r.Store.WriteCommit(&object.CommitObj{
		TreeHash:  treeHash,
		Parents:   []object.Hash{opts.Ours, opts.Theirs},
		Author:    r.signature(author),
		Committer: committer,
		Message:   ensureTrailingNewline(message),
	})
	if err != nil {
		return nil, fmt.Errorf("merge: write commit: %w", err)
	}
	return &MergeOutcome{Kind: MergeCommitted, Commit: commitHash, Base: base}, nil
}

// MergeTrees merges ours and theirs relative to base path by path and
// writes the resulting tree. Paths changed on both sides are merged line by
// line when both sides are text files.
func (r *Repo) MergeTrees(baseTree, oursTree, theirsTree object.Hash) (object.Hash, error) {
	baseMap, err := r.FlattenTreeMap(baseTree)
	if err != nil {
		return "", fmt.Errorf("flatten base tree: %w", err)
	}
	oursMap, err := r.FlattenTreeMap(oursTree)
	if err != nil {
		return "", fmt.Errorf("flatten ours tree: %w", err)
	}
	theirsMap, err := r.FlattenTreeMap(theirsTree)
	if err != nil {
		return "", fmt.Errorf("flatten theirs tree: %w", err)
	}

	result := make(map[string]TreeFileEntry)
	var conflicts []string

	for _, path := range collectAllPaths(baseMap, oursMap, theirsMap) {
		b, inBase := baseMap[path]
		o, inOurs := oursMap[path]
		t, inTheirs := theirsMap[path]

		switch {
		case sameEntry(o, inOurs, t, inTheirs):
			// Both sides agree, including both deleting.
			if inOurs {
				result[path] = o
			}
		case sameEntry(o, inOurs, b, inBase):
			// Only theirs changed.
			if inTheirs {
				result[path] = t
			}
		case sameEntry(t, inTheirs, b, inBase):
			// Only ours changed.
			if inOurs {
				result[path] = o
			}
		case inOurs && inTheirs:
			entry, ok, err := r.mergeFile(path, b, inBase, o, t)
			if err != nil {
				return "", err
			}
			if !ok {
				conflicts = append(conflicts, path)
				continue
			}
			result[path] = entry
		default:
			// Delete on one side, modify on the other.
			conflicts = append(conflicts, path)
		}
	}
	if len(conflicts) > 0 {
		return "", &ConflictError{Paths: conflicts}
	}

	h, err := r.BuildTree(result)
	if err != nil {
		var pc *PathConflictError
		if errors.As(err, &pc) {
			return "", &ConflictError{Paths: []string{pc.Path}}
		}
		return "", err
	}
	return h, nil
}

// mergeFile three-way merges one path present on both sides and changed on
// both. ok is false when the sides cannot be reconciled.
func (r *Repo) mergeFile(path string, base TreeFileEntry, inBase bool, ours, theirs TreeFileEntry) (TreeFileEntry, bool, error) {
	mode, ok := mergeMode(base.Mode, inBase, ours.Mode, theirs.Mode)
	if !ok || !isTextMode(ours.Mode) || !isTextMode(theirs.Mode) {
		return TreeFileEntry{}, false, nil
	}
	if ours.Hash == theirs.Hash {
		return TreeFileEntry{Path: path, Hash: ours.Hash, Mode: mode}, true, nil
	}

	var baseData []byte
	if inBase {
		if !isTextMode(base.Mode) {
			return TreeFileEntry{}, false, nil
		}
		data, err := r.readBlobData(base.Hash)
		if err != nil {
			return TreeFileEntry{}, false, fmt.Errorf("merge %q: base: %w", path, err)
		}
		baseData = data
	}
	oursData, err := r.readBlobData(ours.Hash)
	if err != nil {
		return TreeFileEntry{}, false, fmt.Errorf("merge %q: ours: %w", path, err)
	}
	theirsData, err := r.readBlobData(theirs.Hash)
	if err != nil {
		return TreeFileEntry{}, false, fmt.Errorf("merge %q: theirs: %w", path, err)
	}
	if isBinary(baseData) || isBinary(oursData) || isBinary(theirsData) {
		return TreeFileEntry{}, false, nil
	}

	res := diff3.Merge(baseData, oursData, theirsData)
	if res.HasConflicts {
		return TreeFileEntry{}, false, nil
	}
	h, err := r.Store.WriteBlob(&object.Blob{Data: res.Merged})
	if err != nil {
		return TreeFileEntry{}, false, fmt.Errorf("merge %q: write blob: %w", path, err)
	}
	return TreeFileEntry{Path: path, Hash: h, Mode: mode}, true, nil
}

func mergeMode(base string, inBase bool, ours, theirs string) (string, bool) {
	switch {
	case ours == theirs:
		return ours, true
	case inBase && ours == base:
		return theirs, true
	case inBase && theirs == base:
		return ours, true
	default:
		return "", false
	}
}

func isTextMode(mode string) bool {
	return mode == object.TreeModeFile || mode == object.TreeModeExecutable
}

func isBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0
}

func sameEntry(a TreeFileEntry, aok bool, b TreeFileEntry, bok bool) bool {
	if aok != bok {
		return false
	}
	return !aok || (a.Hash == b.Hash && a.Mode == b.Mode)
}

// readBlobData reads a blob from the store and returns its raw data.
func (r *Repo) readBlobData(h object.Hash) ([]byte, error) {
	blob, err := r.Store.ReadBlob(h)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", h, err)
	}
	return blob.Data, nil
}

// collectAllPaths returns a sorted, deduplicated list of all file paths
// across three file maps.
func collectAllPaths(base, ours, theirs map[string]TreeFileEntry) []string {
	seen := make(map[string]bool)
	for p := range base {
		seen[p] = true
	}
	for p := range ours {
		seen[p] = true
	}
	for p := range theirs {
		seen[p] = true
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
