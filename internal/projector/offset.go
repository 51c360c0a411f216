package projector

import (
	"context"
	"sync"
)

// MemoryOffsetStore keeps the projector's offset in process memory; replay
// starts from 0 on restart, which the projector's idempotent projection
// tolerates by design.
type MemoryOffsetStore struct {
	mu     sync.Mutex
	offset int64
}

func NewMemoryOffsetStore() *MemoryOffsetStore {
	return &MemoryOffsetStore{}
}

func (m *MemoryOffsetStore) Load(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offset, nil
}

func (m *MemoryOffsetStore) Save(_ context.Context, offset int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offset = offset
	return nil
}
