package index

import (
	"context"
	"sort"
	"sync"

	"github.com/jermoo/realms-core/internal/realmdomain"
	"github.com/jermoo/realms-core/internal/token"
)

// Memory is an in-process Index for tests and single-node deployments.
type Memory struct {
	mu        sync.RWMutex
	resources map[realmdomain.Label]Resource
}

// NewMemory constructs an empty Memory index.
func NewMemory() *Memory {
	return &Memory{resources: make(map[realmdomain.Label]Resource)}
}

// Put implements Index, enforcing last-writer-wins by revision.
func (m *Memory) Put(_ context.Context, r Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.resources[r.ID]; ok && existing.Rev >= r.Rev {
		return nil
	}
	m.resources[r.ID] = r
	return nil
}

// Get implements Index.
func (m *Memory) Get(_ context.Context, id realmdomain.Label) (Resource, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resources[id]
	return r, ok, nil
}

// List implements Index, sorted by createdAt ascending.
func (m *Memory) List(_ context.Context) ([]Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Resource, 0, len(m.resources))
	for _, r := range m.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ActiveRealmByIssuer implements token.RealmLookup.
func (m *Memory) ActiveRealmByIssuer(_ context.Context, issuer string) (token.ActiveRealm, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.resources {
		if !r.Deprecated && r.Active != nil && r.Active.Issuer == issuer {
			return token.ActiveRealm{ID: string(r.ID), Keys: r.Active.Keys}, true, nil
		}
	}
	return token.ActiveRealm{}, false, nil
}

// ActiveLabelWithIssuer implements realmdomain.IssuerIndex.
func (m *Memory) ActiveLabelWithIssuer(_ context.Context, issuer string, excluding realmdomain.Label) (realmdomain.Label, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.resources {
		if r.ID == excluding {
			continue
		}
		if !r.Deprecated && r.Active != nil && r.Active.Issuer == issuer {
			return r.ID, true, nil
		}
	}
	return "", false, nil
}
