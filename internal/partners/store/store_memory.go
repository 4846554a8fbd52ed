// Package store persists the partner directory.
package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"voltgrid/internal/partners/models"
	"voltgrid/pkg/domain"
	"voltgrid/pkg/platform/sentinel"
)

type InMemory struct {
	mu       sync.RWMutex
	partners map[string]*models.Partner
}

func NewInMemory() *InMemory {
	return &InMemory{partners: make(map[string]*models.Partner)}
}

func (s *InMemory) Get(_ context.Context, identity domain.PartyIdentity) (*models.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.partners[identity.Key()]
	if !ok {
		return nil, fmt.Errorf("partner %s: %w", identity, sentinel.ErrNotFound)
	}
	return p.Clone(), nil
}

func (s *InMemory) Save(_ context.Context, p *models.Partner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partners[p.Identity.Key()] = p.Clone()
	return nil
}

// List returns every partner ordered by identity key.
func (s *InMemory) List(_ context.Context) ([]*models.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Partner, 0, len(s.partners))
	for _, p := range s.partners {
		out = append(out, p.Clone())
	}
	sortByKey(out)
	return out, nil
}

func sortByKey(ps []*models.Partner) {
	slices.SortFunc(ps, func(a, b *models.Partner) int {
		return strings.Compare(a.Identity.Key(), b.Identity.Key())
	})
}
