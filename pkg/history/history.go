// Package history reports branch heads and commit logs of a repository.
package history

import (
	"container/heap"
	"errors"
	"fmt"
	"time"

	"github.com/odvcencio/forgevcs/pkg/object"
	"github.com/odvcencio/forgevcs/pkg/repo"
)

// Branch is one refs/heads entry with the metadata of its head commit.
// Message, Author, Email and Date are empty when the head cannot be read.
type Branch struct {
	Name    string      `json:"name"`
	Head    object.Hash `json:"head"`
	Message string      `json:"message"`
	Author  string      `json:"author"`
	Email   string      `json:"email"`
	Date    time.Time   `json:"date"`
	// Default marks the branch HEAD points at.
	Default bool `json:"default"`
}

// Branches lists every branch sorted by name.
func Branches(r *repo.Repo) ([]Branch, error) {
	refs, err := r.ListRefs("heads")
	if err != nil {
		return nil, fmt.Errorf("branches: %w", err)
	}
	current, err := r.DefaultBranch()
	if err != nil {
		return nil, fmt.Errorf("branches: %w", err)
	}

	names := repo.SortedRefNames(refs)
	out := make([]Branch, 0, len(names))
	for _, ref := range names {
		b := Branch{Name: ref[len("heads/"):], Head: refs[ref]}
		b.Default = b.Name == current
		if c, err := r.Store.ReadCommit(b.Head); err == nil {
			b.Message = subject(c.Message)
			b.Author = c.Author.Name
			b.Email = c.Author.Email
			b.Date = c.Author.When
		}
		out = append(out, b)
	}
	return out, nil
}

// Options controls Log.
type Options struct {
	// Depth caps the number of entries; zero or less means no limit.
	Depth int
	// AllParents follows every parent instead of only the first, ordering
	// commits by committer time.
	AllParents bool
}

// Entry is one commit of a log.
type Entry struct {
	Hash   object.Hash
	Commit *object.CommitObj
}

// Log returns the history of ref, newest first. ref is anything
// repo.ResolveRef accepts. A parent missing from the store ends that line of
// history, as it does for shallow pushes.
func Log(r *repo.Repo, ref string, opts Options) ([]Entry, error) {
	start, err := r.ResolveRef(ref)
	if err != nil {
		return nil, fmt.Errorf("log %s: %w", ref, err)
	}
	c, err := r.Store.ReadCommit(start)
	if err != nil {
		return nil, fmt.Errorf("log %s: %w", ref, err)
	}
	if opts.AllParents {
		return logAllParents(r, Entry{Hash: start, Commit: c}, opts.Depth)
	}

	var out []Entry
	for {
		out = append(out, Entry{Hash: start, Commit: c})
		if len(c.Parents) == 0 || (opts.Depth > 0 && len(out) >= opts.Depth) {
			return out, nil
		}
		start = c.Parents[0]
		if c, err = r.Store.ReadCommit(start); err != nil {
			if errors.Is(err, object.ErrObjectNotFound) {
				return out, nil
			}
			return nil, fmt.Errorf("log: read commit %s: %w", start, err)
		}
	}
}

func logAllParents(r *repo.Repo, first Entry, depth int) ([]Entry, error) {
	seen := map[object.Hash]struct{}{first.Hash: {}}
	q := &commitTimeHeap{first}

	var out []Entry
	for q.Len() > 0 && (depth <= 0 || len(out) < depth) {
		e := heap.Pop(q).(Entry)
		out = append(out, e)
		for _, p := range e.Commit.Parents {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			pc, err := r.Store.ReadCommit(p)
			if err != nil {
				if errors.Is(err, object.ErrObjectNotFound) {
					continue
				}
				return nil, fmt.Errorf("log: read commit %s: %w", p, err)
			}
			heap.Push(q, Entry{Hash: p, Commit: pc})
		}
	}
	return out, nil
}

func subject(msg string) string {
	for i := 0; i < len(msg); i++ {
		if msg[i] == '\n' {
			return msg[:i]
		}
	}
	return msg
}

// commitTimeHeap pops the most recently committed entry first; equal times
// pop in hash order so logs are stable.
type commitTimeHeap []Entry

func (h commitTimeHeap) Len() int { return len(h) }

func (h commitTimeHeap) Less(i, j int) bool {
	ti, tj := h[i].Commit.Committer.When, h[j].Commit.Committer.When
	if !ti.Equal(tj) {
		return ti.After(tj)
	}
	return h[i].Hash < h[j].Hash
}

func (h commitTimeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *commitTimeHeap) Push(x any) { *h = append(*h, x.(Entry)) }

func (h *commitTimeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
