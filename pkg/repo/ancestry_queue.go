package repo

import "github.com/odvcencio/forgevcs/pkg/object"

type generationQueueItem struct {
	hash       object.Hash
	generation uint64
}

// generationMaxHeap pops the highest generation first, ties by hash.
type generationMaxHeap []generationQueueItem

func (h generationMaxHeap) Len() int { return len(h) }

func (h generationMaxHeap) Less(i, j int) bool {
	if h[i].generation == h[j].generation {
		return h[i].hash < h[j].hash
	}
	return h[i].generation > h[j].generation
}

func (h generationMaxHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *generationMaxHeap) Push(x any) {
	*h = append(*h, x.(generationQueueItem))
}

func (h *generationMaxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
