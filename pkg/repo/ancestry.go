package repo

import (
	"container/heap"
	"errors"
	"fmt"

	"github.com/odvcencio/forgevcs/pkg/object"
)

var (
	// ErrCommitGraphCycle is returned when a walk meets a commit twice on
	// the same path, which only a corrupt repository can produce.
	ErrCommitGraphCycle = errors.New("commit graph cycle")
	// ErrAncestryLimit is returned when a history walk exceeds its step
	// budget.
	ErrAncestryLimit = errors.New("history walk exceeded step limit")
	// ErrNotAncestor is returned by FirstParentRange when base is not on
	// head's first-parent chain.
	ErrNotAncestor = errors.New("not a first-parent ancestor")
)

const maxAncestrySteps = 1_000_000

// Tests may tighten the limit; it is never raised above maxAncestrySteps.
var ancestryStepsLimit = maxAncestrySteps

func ancestryLimit() int {
	if ancestryStepsLimit <= 0 || ancestryStepsLimit > maxAncestrySteps {
		return maxAncestrySteps
	}
	return ancestryStepsLimit
}

func ancestryLimitError(op string, limit int) error {
	return fmt.Errorf("%s: %w (%d)", op, ErrAncestryLimit, limit)
}

// FindMergeBase returns the first commit shared by the first-parent chains
// of a and b. found is false when the histories are disjoint. Second parents
// are never followed, so after merge commits this is not necessarily the
// lowest common ancestor over the full graph.
func (r *Repo) FindMergeBase(a, b object.Hash) (base object.Hash, found bool, err error) {
	if a == "" || b == "" {
		return "", false, nil
	}
	if _, err := r.readCommitCached(a); err != nil {
		return "", false, fmt.Errorf("find merge base: %w", err)
	}
	if a == b {
		return a, true, nil
	}
	if _, err := r.readCommitCached(b); err != nil {
		return "", false, fmt.Errorf("find merge base: %w", err)
	}

	cache := r.ancestryState()
	if cached, ok := cache.loadMergeBase(a, b); ok {
		return cached.base, cached.found, nil
	}

	chainA, err := r.firstParentSet(a)
	if err != nil {
		return "", false, err
	}

	limit := ancestryLimit()
	seen := make(map[object.Hash]struct{})
	cur := b
	for steps := 0; cur != ""; steps++ {
		if steps >= limit {
			return "", false, ancestryLimitError("find merge base", limit)
		}
		if _, ok := chainA[cur]; ok {
			cache.storeMergeBase(a, b, cur, true)
			return cur, true, nil
		}
		if _, dup := seen[cur]; dup {
			return "", false, fmt.Errorf("find merge base: %w at %s", ErrCommitGraphCycle, cur)
		}
		seen[cur] = struct{}{}
		c, err := r.readCommitCached(cur)
		if err != nil {
			return "", false, fmt.Errorf("find merge base: %w", err)
		}
		cur = c.FirstParent()
	}

	cache.storeMergeBase(a, b, "", false)
	return "", false, nil
}

func (r *Repo) firstParentSet(start object.Hash) (map[object.Hash]struct{}, error) {
	limit := ancestryLimit()
	set := make(map[object.Hash]struct{})
	cur := start
	for steps := 0; cur != ""; steps++ {
		if steps >= limit {
			return nil, ancestryLimitError("find merge base", limit)
		}
		if _, dup := set[cur]; dup {
			return nil, fmt.Errorf("find merge base: %w at %s", ErrCommitGraphCycle, cur)
		}
		set[cur] = struct{}{}
		c, err := r.readCommitCached(cur)
		if err != nil {
			return nil, fmt.Errorf("find merge base: %w", err)
		}
		cur = c.FirstParent()
	}
	return set, nil
}

// FirstParentRange returns the commits on head's first-parent chain after
// base, oldest first. An empty base walks to the root commit. If base is
// never reached, ErrNotAncestor is returned.
func (r *Repo) FirstParentRange(base, head object.Hash) ([]object.Hash, error) {
	limit := ancestryLimit()
	var chain []object.Hash
	seen := make(map[object.Hash]struct{})
	cur := head
	for steps := 0; cur != base; steps++ {
		if cur == "" {
			return nil, fmt.Errorf("first-parent range %s..%s: %w", base.Short(), head.Short(), ErrNotAncestor)
		}
		if steps >= limit {
			return nil, ancestryLimitError("first-parent range", limit)
		}
		if _, dup := seen[cur]; dup {
			return nil, fmt.Errorf("first-parent range: %w at %s", ErrCommitGraphCycle, cur)
		}
		seen[cur] = struct{}{}
		c, err := r.readCommitCached(cur)
		if err != nil {
			return nil, fmt.Errorf("first-parent range: %w", err)
		}
		chain = append(chain, cur)
		cur = c.FirstParent()
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// IsAncestor reports whether ancestor is reachable from descendant through
// any parent. A commit is its own ancestor.
func (r *Repo) IsAncestor(ancestor, descendant object.Hash) (bool, error) {
	if ancestor == "" || descendant == "" {
		return false, nil
	}
	if ancestor == descendant {
		return true, nil
	}

	genAncestor, err := r.generation(ancestor)
	if err != nil {
		return false, fmt.Errorf("is ancestor: %w", err)
	}
	genDescendant, err := r.generation(descendant)
	if err != nil {
		return false, fmt.Errorf("is ancestor: %w", err)
	}
	if genAncestor >= genDescendant {
		return false, nil
	}

	limit := ancestryLimit()
	visited := map[object.Hash]struct{}{descendant: {}}
	queue := generationMaxHeap{{hash: descendant, generation: genDescendant}}
	for steps := 0; queue.Len() > 0; steps++ {
		if steps >= limit {
			return false, ancestryLimitError("is ancestor", limit)
		}
		item := heap.Pop(&queue).(generationQueueItem)
		if item.hash == ancestor {
			return true, nil
		}
		// Everything at or below the ancestor's generation other than the
		// ancestor itself cannot contain it.
		if item.generation <= genAncestor {
			continue
		}

		c, err := r.readCommitCached(item.hash)
		if err != nil {
			return false, fmt.Errorf("is ancestor: %w", err)
		}
		for _, p := range c.Parents {
			if _, ok := visited[p]; ok {
				continue
			}
			visited[p] = struct{}{}
			g, err := r.generation(p)
			if err != nil {
				return false, fmt.Errorf("is ancestor: %w", err)
			}
			if g < genAncestor {
				continue
			}
			heap.Push(&queue, generationQueueItem{hash: p, generation: g})
		}
	}
	return false, nil
}

// generation returns 1 + the maximum generation of the commit's parents,
// 1 for root commits. The graph is walked with an explicit stack.
func (r *Repo) generation(h object.Hash) (uint64, error) {
	cache := r.ancestryState()
	if g, ok := cache.generations.Get(h); ok {
		return g, nil
	}

	type frame struct {
		hash    object.Hash
		parents []object.Hash
		next    int
		max     uint64
	}

	local := make(map[object.Hash]uint64)
	onStack := make(map[object.Hash]bool)
	lookup := func(h object.Hash) (uint64, bool) {
		if g, ok := local[h]; ok {
			return g, true
		}
		return cache.generations.Get(h)
	}

	var stack []*frame
	push := func(h object.Hash) error {
		c, err := r.readCommitCached(h)
		if err != nil {
			return err
		}
		stack = append(stack, &frame{hash: h, parents: c.Parents})
		onStack[h] = true
		return nil
	}

	limit := ancestryLimit()
	if err := push(h); err != nil {
		return 0, err
	}
	for steps := 1; len(stack) > 0; {
		top := stack[len(stack)-1]
		if top.next < len(top.parents) {
			p := top.parents[top.next]
			top.next++
			if g, ok := lookup(p); ok {
				if g > top.max {
					top.max = g
				}
				continue
			}
			if onStack[p] {
				return 0, fmt.Errorf("generation: %w at %s", ErrCommitGraphCycle, p)
			}
			steps++
			if steps > limit {
				return 0, ancestryLimitError("generation", limit)
			}
			if err := push(p); err != nil {
				return 0, err
			}
			continue
		}

		g := top.max + 1
		local[top.hash] = g
		cache.generations.Add(top.hash, g)
		delete(onStack, top.hash)
		stack = stack[:len(stack)-1]
		if len(stack) > 0 {
			if parent := stack[len(stack)-1]; g > parent.max {
				parent.max = g
			}
		}
	}
	return local[h], nil
}
