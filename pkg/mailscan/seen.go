package mailscan

import (
	"context"
	"sync"
)

// SeenStore records which messages have already been delivered as alerts.
// storage.Storage satisfies it through its seen_messages table.
type SeenStore interface {
	// IsMessageSeen reports whether key was recorded.
	IsMessageSeen(ctx context.Context, key string) (bool, error)
	// MarkMessageSeen records key and reports whether it was new.
	MarkMessageSeen(ctx context.Context, key string) (bool, error)
}

// MemorySeen is a process-local SeenStore.
type MemorySeen struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewMemorySeen creates an empty store.
func NewMemorySeen() *MemorySeen {
	return &MemorySeen{keys: make(map[string]struct{})}
}

func (m *MemorySeen) IsMessageSeen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok, nil
}

func (m *MemorySeen) MarkMessageSeen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = struct{}{}
	return true, nil
}

// Len returns the number of remembered keys.
func (m *MemorySeen) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}
