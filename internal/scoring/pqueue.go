package scoring

import "container/heap"

// candidateHeap is a min-heap over candidate.fireAt, the single
// scheduling primitive the coordinator goroutine uses instead of one
// timer/goroutine per candidate (SPEC_FULL §9's suspend-and-resume note).
type candidateHeap []*candidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[i].fireAt.Before(h[j].fireAt) }
func (h candidateHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *candidateHeap) Push(x interface{}) {
	c := x.(*candidate)
	c.heapIndex = len(*h)
	*h = append(*h, c)
}

func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	c.heapIndex = -1
	*h = old[:n-1]
	return c
}

// fix re-heapifies after a candidate's fireAt changes, rather than
// spawning a new timer.
func (h *candidateHeap) fix(c *candidate) {
	heap.Fix(h, c.heapIndex)
}
