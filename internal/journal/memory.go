package journal

import (
	"context"
	"sync"

	"github.com/jermoo/realms-core/internal/realmdomain"
)

// MemoryJournal is an in-process EventJournal+SnapshotStore used by tests
// and by single-node deployments that don't need a real Postgres instance.
type MemoryJournal struct {
	mu        sync.Mutex
	events    map[string][]realmdomain.Event // persistenceID -> ordered events
	snapshots map[string]realmdomain.State
	tail      []TailEntry
}

// NewMemoryJournal constructs an empty MemoryJournal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		events:    make(map[string][]realmdomain.Event),
		snapshots: make(map[string]realmdomain.State),
	}
}

// Append implements EventJournal.
func (m *MemoryJournal) Append(_ context.Context, persistenceID string, event realmdomain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.events[persistenceID]
	lastRev := 0
	if n := len(existing); n > 0 {
		lastRev = existing[n-1].EventRev()
	}
	if event.EventRev() != lastRev+1 {
		return ErrRevisionConflict
	}

	m.events[persistenceID] = append(existing, event)
	m.tail = append(m.tail, TailEntry{
		Sequence:      int64(len(m.tail) + 1),
		PersistenceID: persistenceID,
		Label:         event.EventLabel(),
		Event:         event,
	})
	return nil
}

// Load implements EventJournal.
func (m *MemoryJournal) Load(_ context.Context, persistenceID string, afterRev int) ([]realmdomain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.events[persistenceID]
	out := make([]realmdomain.Event, 0, len(all))
	for _, e := range all {
		if e.EventRev() > afterRev {
			out = append(out, e)
		}
	}
	return out, nil
}

// Tail implements EventJournal.
func (m *MemoryJournal) Tail(_ context.Context, after int64, limit int) ([]TailEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]TailEntry, 0, limit)
	for _, entry := range m.tail {
		if entry.Sequence <= after {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// SaveSnapshot implements SnapshotStore.
func (m *MemoryJournal) SaveSnapshot(_ context.Context, persistenceID string, state realmdomain.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[persistenceID] = state
	return nil
}

// LoadSnapshot implements SnapshotStore.
func (m *MemoryJournal) LoadSnapshot(_ context.Context, persistenceID string) (realmdomain.State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[persistenceID]
	return s, ok, nil
}
