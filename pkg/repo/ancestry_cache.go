package repo

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/odvcencio/forgevcs/pkg/object"
)

const (
	commitCacheSize     = 4096
	generationCacheSize = 1 << 16
	mergeBaseCacheSize  = 1024
)

type mergeBaseCacheKey struct {
	left  object.Hash
	right object.Hash
}

type mergeBaseCacheEntry struct {
	base  object.Hash
	found bool
}

// ancestryCache memoizes commit reads, generation numbers and merge bases for
// one repository. Commits are immutable, so entries never go stale; the LRUs
// only bound memory.
type ancestryCache struct {
	commits     *lru.Cache[object.Hash, *object.CommitObj]
	generations *lru.Cache[object.Hash, uint64]
	mergeBases  *lru.Cache[mergeBaseCacheKey, mergeBaseCacheEntry]
}

func newAncestryCache() *ancestryCache {
	return &ancestryCache{
		commits:     mustLRU[object.Hash, *object.CommitObj](commitCacheSize),
		generations: mustLRU[object.Hash, uint64](generationCacheSize),
		mergeBases:  mustLRU[mergeBaseCacheKey, mergeBaseCacheEntry](mergeBaseCacheSize),
	}
}

func mustLRU[K comparable, V any](size int) *lru.Cache[K, V] {
	c, err := lru.New[K, V](size)
	if err != nil {
		panic(fmt.Sprintf("ancestry cache: %v", err))
	}
	return c
}

// Merge bases on first-parent chains are symmetric, so (a, b) and (b, a)
// share one entry.
func canonicalMergeBaseCacheKey(a, b object.Hash) mergeBaseCacheKey {
	if a <= b {
		return mergeBaseCacheKey{left: a, right: b}
	}
	return mergeBaseCacheKey{left: b, right: a}
}

func (c *ancestryCache) loadMergeBase(a, b object.Hash) (mergeBaseCacheEntry, bool) {
	return c.mergeBases.Get(canonicalMergeBaseCacheKey(a, b))
}

func (c *ancestryCache) storeMergeBase(a, b, base object.Hash, found bool) {
	c.mergeBases.Add(canonicalMergeBaseCacheKey(a, b), mergeBaseCacheEntry{base: base, found: found})
}

func (r *Repo) readCommitCached(h object.Hash) (*object.CommitObj, error) {
	cache := r.ancestryState()
	if c, ok := cache.commits.Get(h); ok {
		return c, nil
	}
	c, err := r.Store.ReadCommit(h)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", h, err)
	}
	cache.commits.Add(h, c)
	return c, nil
}
