package engine

import "sync"

// StreamLocks serializes work per stream key. Entries are dropped once no caller
// holds or waits on them.
type StreamLocks struct {
	mu      sync.Mutex
	entries map[string]*streamLock
}

type streamLock struct {
	mu   sync.Mutex
	refs int
}

// NewStreamLocks returns an empty lock table.
func NewStreamLocks() *StreamLocks {
	return &StreamLocks{entries: make(map[string]*streamLock)}
}

// Lock blocks until the caller owns key and returns the matching unlock func.
func (l *StreamLocks) Lock(key string) func() {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[string]*streamLock)
	}
	entry, ok := l.entries[key]
	if !ok {
		entry = &streamLock{}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}

func (l *StreamLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
