package queue

import (
	"container/heap"

	"github.com/aliendabz/evalqueue"
	"github.com/aliendabz/evalqueue/id"
)

// Entry is a job's place in the ready queue.
type Entry struct {
	JobID    id.JobID
	Priority evalqueue.Priority
	Position uint64

	weight int
	index  int
}

// Ready is a priority queue of pending jobs.
type Ready struct {
	weights evalqueue.PriorityWeights
	h       entryHeap
	byID    map[string]*Entry
}

// NewReady creates an empty ready queue ordered by the given weights.
func NewReady(weights evalqueue.PriorityWeights) *Ready {
	return &Ready{
		weights: weights,
		byID:    make(map[string]*Entry),
	}
}

// Push adds a job. Pushing a job that is already queued replaces its
// priority and position.
func (r *Ready) Push(jobID id.JobID, p evalqueue.Priority, position uint64) {
	key := jobID.String()
	if e, ok := r.byID[key]; ok {
		e.Priority = p
		e.Position = position
		e.weight = r.weights.Weight(p)
		heap.Fix(&r.h, e.index)
		return
	}
	e := &Entry{
		JobID:    jobID,
		Priority: p,
		Position: position,
		weight:   r.weights.Weight(p),
	}
	r.byID[key] = e
	heap.Push(&r.h, e)
}

// Pop removes and returns the next job to dispatch.
func (r *Ready) Pop() (Entry, bool) {
	if r.h.Len() == 0 {
		return Entry{}, false
	}
	e := heap.Pop(&r.h).(*Entry)
	delete(r.byID, e.JobID.String())
	return *e, true
}

// Peek returns the next job without removing it.
func (r *Ready) Peek() (Entry, bool) {
	if r.h.Len() == 0 {
		return Entry{}, false
	}
	return *r.h[0], true
}

// Remove drops a job from the queue. It reports whether it was queued.
func (r *Ready) Remove(jobID id.JobID) bool {
	key := jobID.String()
	e, ok := r.byID[key]
	if !ok {
		return false
	}
	heap.Remove(&r.h, e.index)
	delete(r.byID, key)
	return true
}

// Contains reports whether the job is queued.
func (r *Ready) Contains(jobID id.JobID) bool {
	_, ok := r.byID[jobID.String()]
	return ok
}

// Ahead returns how many queued jobs would be dispatched before a job
// with the given priority and position.
func (r *Ready) Ahead(p evalqueue.Priority, position uint64) int {
	target := &Entry{Position: position, weight: r.weights.Weight(p)}
	n := 0
	for _, e := range r.h {
		if e.Position != position && before(e, target) {
			n++
		}
	}
	return n
}

// Len returns the number of queued jobs.
func (r *Ready) Len() int { return r.h.Len() }

// Clear empties the queue.
func (r *Ready) Clear() {
	r.h = nil
	r.byID = make(map[string]*Entry)
}

func before(a, b *Entry) bool {
	if a.weight != b.weight {
		return a.weight > b.weight
	}
	return a.Position < b.Position
}

type entryHeap []*Entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return before(h[i], h[j]) }

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
