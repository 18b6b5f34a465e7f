package hnsw

import "container/heap"

// minHeap orders candidates by ascending distance (closest first); used
// to drive the search frontier during beam search.
type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// PushC and PopC are typed convenience wrappers around container/heap's
// interface{}-based Push/Pop.
func (h *minHeap) PushC(c candidate) { heap.Push(h, c) }
func (h *minHeap) PopC() candidate   { return heap.Pop(h).(candidate) }

// maxHeap orders candidates by descending distance (farthest first), so
// the root is always the current worst kept result — the one to evict
// when a closer candidate is found.
type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (h *maxHeap) PushC(c candidate) { heap.Push(h, c) }
func (h *maxHeap) PopC() candidate   { return heap.Pop(h).(candidate) }
