package history

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store for tests and single-node dry runs.
type Memory struct {
	mu      sync.Mutex
	entries map[int64]entry
}

type entry struct {
	at      time.Time
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: map[int64]entry{}}
}

var _ Store = (*Memory)(nil)

func (m *Memory) LastSend(_ context.Context, recipientID int64) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[recipientID]
	if !ok {
		return time.Time{}, false, nil
	}
	if time.Now().After(e.expires) {
		delete(m.entries, recipientID)
		return time.Time{}, false, nil
	}
	return e.at, true, nil
}

func (m *Memory) MarkSend(_ context.Context, recipientID int64, at time.Time, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[recipientID] = entry{at: at, expires: at.Add(ttl)}
	return nil
}
