package client

import "sync"

// recentIDs is a bounded remember-what-you-saw set; the oldest entry falls
// out when capacity is reached.
type recentIDs struct {
	mu    sync.Mutex
	cap   int
	seen  map[int64]struct{}
	order []int64
}

func newRecentIDs(capacity int) *recentIDs {
	if capacity <= 0 {
		capacity = 128
	}
	return &recentIDs{cap: capacity, seen: make(map[int64]struct{}, capacity)}
}

// Seen records the id and reports whether it was already present.
func (r *recentIDs) Seen(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	r.order = append(r.order, id)
	if len(r.order) > r.cap {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.seen, oldest)
	}
	return false
}
