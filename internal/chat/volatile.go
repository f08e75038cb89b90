package chat

import (
	"context"
	"sync"
)

// VolatileBackend keeps conversations in process memory. It is the fallback
// when Redis is unconfigured or unreachable; contents are lost on restart.
//
// The RWMutex only guards the map structure against concurrent access from
// different users' goroutines. Read-modify-write atomicity for a single user
// is the Store's job, via its per-user critical section.
type VolatileBackend struct {
	mu        sync.RWMutex
	histories map[string][]Message
}

func NewVolatileBackend() *VolatileBackend {
	return &VolatileBackend{histories: make(map[string][]Message)}
}

func (b *VolatileBackend) Get(_ context.Context, userID string) ([]Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	stored := b.histories[userID]
	if len(stored) == 0 {
		return nil, nil
	}
	out := make([]Message, len(stored))
	copy(out, stored)
	return out, nil
}

func (b *VolatileBackend) Set(_ context.Context, userID string, history []Message) error {
	stored := make([]Message, len(history))
	copy(stored, history)
	b.mu.Lock()
	b.histories[userID] = stored
	b.mu.Unlock()
	return nil
}

func (b *VolatileBackend) Delete(_ context.Context, userID string) error {
	b.mu.Lock()
	delete(b.histories, userID)
	b.mu.Unlock()
	return nil
}

func (b *VolatileBackend) Keys(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	keys := make([]string, 0, len(b.histories))
	for k := range b.histories {
		keys = append(keys, k)
	}
	return keys, nil
}

func (b *VolatileBackend) Close() error { return nil }
