package service

import (
	"sync"

	"github.com/google/uuid"
)

// sessionLocks serializes operations per session id. Two concurrent
// submit/report/complete calls for the same session take turns; different
// sessions never contend.
type sessionLocks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{entries: make(map[uuid.UUID]*lockEntry)}
}

// Acquire blocks until the session's lock is held and returns the release
// function. Entries are reference-counted so the map does not grow with
// dead sessions.
func (l *sessionLocks) Acquire(id uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.entries[id]
	if !ok {
		entry = &lockEntry{}
		l.entries[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}
