package crawler

import "sync"

// FrontierEntry is a URL waiting to be crawled.
type FrontierEntry struct {
	URL   string `json:"url"`
	Depth int    `json:"depth"`
}

// frontier is a FIFO queue that refuses entries deeper than maxDepth and
// URLs that are already waiting.
type frontier struct {
	mu       sync.Mutex
	maxDepth int
	items    []FrontierEntry
	pending  map[string]struct{}
}

func newFrontier(maxDepth int) *frontier {
	return &frontier{
		maxDepth: maxDepth,
		pending:  make(map[string]struct{}),
	}
}

// push appends e and reports whether it was accepted.
func (f *frontier) push(e FrontierEntry) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if e.Depth > f.maxDepth {
		return false
	}
	if _, ok := f.pending[e.URL]; ok {
		return false
	}
	f.pending[e.URL] = struct{}{}
	f.items = append(f.items, e)
	return true
}

// pop removes and returns the oldest entry.
func (f *frontier) pop() (FrontierEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.items) == 0 {
		return FrontierEntry{}, false
	}
	e := f.items[0]
	f.items[0] = FrontierEntry{}
	f.items = f.items[1:]
	delete(f.pending, e.URL)
	return e, true
}

func (f *frontier) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// snapshot returns a copy of the waiting entries in queue order.
func (f *frontier) snapshot() []FrontierEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FrontierEntry(nil), f.items...)
}
