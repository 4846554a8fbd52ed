// Package store keeps the local tenant directory.
package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"voltgrid/internal/tenant/models"
	"voltgrid/pkg/domain"
	"voltgrid/pkg/platform/sentinel"
)

// InMemory stores tenants in a map guarded by a RWMutex.
type InMemory struct {
	mu    sync.RWMutex
	byID  map[domain.TenantID]*models.Tenant
	byKey map[string]domain.TenantID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:  make(map[domain.TenantID]*models.Tenant),
		byKey: make(map[string]domain.TenantID),
	}
}

// CreateIfIdentityAvailable inserts t unless another tenant already uses its identity.
func (s *InMemory) CreateIfIdentityAvailable(_ context.Context, t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := t.Identity.Key()
	if _, taken := s.byKey[key]; taken {
		return fmt.Errorf("tenant %s: %w", key, sentinel.ErrConflict)
	}
	cp := *t
	s.byID[t.ID] = &cp
	s.byKey[key] = t.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.TenantID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", id, sentinel.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *InMemory) FindByIdentity(_ context.Context, identity domain.PartyIdentity) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[identity.Key()]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", identity, sentinel.ErrNotFound)
	}
	cp := *s.byID[id]
	return &cp, nil
}

// List returns every tenant ordered by identity key.
func (s *InMemory) List(_ context.Context) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Tenant, 0, len(s.byID))
	for _, t := range s.byID {
		cp := *t
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *models.Tenant) int {
		return strings.Compare(a.Identity.Key(), b.Identity.Key())
	})
	return out, nil
}

// Execute runs validate then mutate on the tenant while holding the write
// lock, so the check and the change are atomic.
func (s *InMemory) Execute(_ context.Context, identity domain.PartyIdentity, validate func(*models.Tenant) error, mutate func(*models.Tenant)) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byKey[identity.Key()]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", identity, sentinel.ErrNotFound)
	}
	t := s.byID[id]
	if err := validate(t); err != nil {
		return nil, err
	}
	mutate(t)
	cp := *t
	return &cp, nil
}
