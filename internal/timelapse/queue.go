package timelapse

import (
	"sort"
	"sync"
)

// item identifies one camera-day needing finalization.
type item struct {
	Camera string
	Day    string
}

// Queue is an idempotent set-backed work queue of camera-days. A day
// enqueued many times, once per capture, is finalized once.
type Queue struct {
	mu      sync.Mutex
	pending map[item]struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{pending: make(map[item]struct{})}
}

// Enqueue registers a camera-day. Duplicate calls are no-ops.
func (q *Queue) Enqueue(camera, day string) {
	q.mu.Lock()
	q.pending[item{Camera: camera, Day: day}] = struct{}{}
	q.mu.Unlock()
}

// Remove drops one entry, typically after successful finalization.
func (q *Queue) Remove(camera, day string) {
	q.mu.Lock()
	delete(q.pending, item{Camera: camera, Day: day})
	q.mu.Unlock()
}

// Len returns the number of pending camera-days.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Snapshot returns the pending entries sorted oldest day first so
// catch-up work after downtime happens in chronological order.
func (q *Queue) Snapshot() []item {
	q.mu.Lock()
	items := make([]item, 0, len(q.pending))
	for it := range q.pending {
		items = append(items, it)
	}
	q.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].Day != items[j].Day {
			return items[i].Day < items[j].Day
		}
		return items[i].Camera < items[j].Camera
	})
	return items
}
