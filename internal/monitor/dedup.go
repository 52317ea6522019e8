package monitor

import "sync"

// dedupWindow is a bounded set of recently seen identifiers. When the window
// is full the oldest entry is evicted, so memory stays constant regardless of
// stream volume.
type dedupWindow struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	head  int
	cap   int
}

func newDedupWindow(capacity int) *dedupWindow {
	if capacity <= 0 {
		capacity = 1024
	}
	return &dedupWindow{
		seen:  make(map[string]struct{}, capacity),
		order: make([]string, capacity),
		cap:   capacity,
	}
}

// Observe records id and reports whether it was already in the window.
func (w *dedupWindow) Observe(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[id]; ok {
		return true
	}

	if evicted := w.order[w.head]; evicted != "" {
		delete(w.seen, evicted)
	}
	w.order[w.head] = id
	w.head = (w.head + 1) % w.cap
	w.seen[id] = struct{}{}
	return false
}

// Len returns the number of identifiers currently held.
func (w *dedupWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}
