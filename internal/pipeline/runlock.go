package pipeline

import (
	"errors"
	"sync"
)

// ErrRunInFlight reports a submission against a conversation that already has
// a run in progress. Concurrent runs within one conversation are rejected,
// not queued.
var ErrRunInFlight = errors.New("a pipeline run is already in flight for this conversation")

type runLocks struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newRunLocks() *runLocks {
	return &runLocks{active: make(map[string]struct{})}
}

func (l *runLocks) acquire(conversationID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.active[conversationID]; held {
		return false
	}
	l.active[conversationID] = struct{}{}
	return true
}

func (l *runLocks) release(conversationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, conversationID)
}
