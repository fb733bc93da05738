package matcher

import "container/heap"

// claim is one face's current bid for a student.
type claim struct {
	distance float64
	faceIdx  int
	candIdx  int
}

type claimHeap []claim

func (h claimHeap) Len() int { return len(h) }
func (h claimHeap) Less(i, j int) bool {
	if h[i].distance != h[j].distance {
		return h[i].distance < h[j].distance
	}
	return h[i].faceIdx < h[j].faceIdx
}
func (h claimHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *claimHeap) Push(x interface{}) { *h = append(*h, x.(claim)) }
func (h *claimHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// resolveConflicts assigns each face at most one student so that no student is
// claimed by more than one face. Claims are settled lowest-distance first from
// a priority queue; a losing face is demoted to its next-best unclaimed
// candidate and re-queued, until it lands on a free student or exhausts its
// ranking (then it stays unassigned). The loop is a bounded fixed point: each
// re-queue strictly advances a face's candidate index, so pathological
// many-to-one inputs terminate after at most faces x candidates iterations.
//
// Returned slice holds, per face, the index into its ranked candidate list
// that was kept, or -1 when nothing could be claimed.
func resolveConflicts(ranked [][]Candidate, thresholds Thresholds) []int {
	assignments := make([]int, len(ranked))
	for i := range assignments {
		assignments[i] = -1
	}

	h := &claimHeap{}
	for i, candidates := range ranked {
		if len(candidates) == 0 {
			continue
		}
		// LOW-confidence bests never claim a student
		if candidates[0].Distance >= thresholds.Medium {
			continue
		}
		*h = append(*h, claim{distance: candidates[0].Distance, faceIdx: i, candIdx: 0})
	}
	heap.Init(h)

	claimed := make(map[uint]bool)
	for h.Len() > 0 {
		c := heap.Pop(h).(claim)
		candidates := ranked[c.faceIdx]
		student := candidates[c.candIdx].StudentID

		if !claimed[student] {
			claimed[student] = true
			assignments[c.faceIdx] = c.candIdx
			continue
		}

		// demote to the next unclaimed candidate still inside the match band
		next := c.candIdx + 1
		for next < len(candidates) && claimed[candidates[next].StudentID] {
			next++
		}
		if next >= len(candidates) || candidates[next].Distance >= thresholds.Medium {
			continue // exhausted: face stays unassigned
		}
		heap.Push(h, claim{distance: candidates[next].Distance, faceIdx: c.faceIdx, candIdx: next})
	}

	return assignments
}
