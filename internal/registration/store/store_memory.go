// Package store persists registration records. Every backend implements the
// same compare-and-set commit: a write only lands when the stored status
// still equals the status the caller read and, for an update of the same
// record, the stored revision still equals the record's Revision.
package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"voltgrid/internal/registration/models"
	vermodels "voltgrid/internal/versions/models"
	"voltgrid/pkg/domain"
	"voltgrid/pkg/platform/sentinel"
)

// InMemory is a process-local registration store.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]*models.Record
	// byToken indexes the remote token of Registered records.
	byToken map[string]string
	history map[string][]*models.Record
}

func NewInMemory() *InMemory {
	return &InMemory{
		records: make(map[string]*models.Record),
		byToken: make(map[string]string),
		history: make(map[string][]*models.Record),
	}
}

// Get returns a copy of the live record for identity.
func (s *InMemory) Get(_ context.Context, identity domain.PartyIdentity) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[identity.Key()]
	if !ok {
		return nil, fmt.Errorf("registration %s: %w", identity, sentinel.ErrNotFound)
	}
	return rec.Clone(), nil
}

// FindByRemoteToken returns the Registered record whose remote token matches.
func (s *InMemory) FindByRemoteToken(_ context.Context, token string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byToken[token]
	if !ok || token == "" {
		return nil, fmt.Errorf("registration by token: %w", sentinel.ErrNotFound)
	}
	return s.records[key].Clone(), nil
}

// History returns the records retired for identity, oldest first.
func (s *InMemory) History(_ context.Context, identity domain.PartyIdentity) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	retired := s.history[identity.Key()]
	out := make([]*models.Record, len(retired))
	for i, r := range retired {
		out[i] = r.Clone()
	}
	return out, nil
}

// List returns copies of every live record.
func (s *InMemory) List(_ context.Context) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	return out, nil
}

// ListByModule returns Registered records that negotiated the given module.
func (s *InMemory) ListByModule(_ context.Context, module vermodels.ModuleID) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Record
	for _, r := range s.records {
		if r.Status == models.StatusRegistered && slices.Contains(vermodels.Identifiers(r.NegotiatedEndpoints), module) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// Commit stores rec if the current status equals expected and rec was read
// at the stored revision. A missing record counts as StatusUnregistered. A
// lost race returns sentinel.ErrConflict. On success rec.Revision holds the
// committed revision.
func (s *InMemory) Commit(ctx context.Context, rec *models.Record, expected models.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil {
		return models.ValidateCommit(nil, nil)
	}
	key := rec.Identity.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.records[key]
	current := models.StatusUnregistered
	if stored != nil {
		current = stored.Status
	}
	if current != expected {
		return fmt.Errorf("registration %s is %s, expected %s: %w", key, current, expected, sentinel.ErrConflict)
	}
	if models.Stale(stored, rec) {
		return fmt.Errorf("registration %s is at revision %d, read at %d: %w", key, stored.Revision, rec.Revision, sentinel.ErrConflict)
	}
	if err := models.ValidateCommit(stored, rec); err != nil {
		return err
	}
	if owner, taken := s.byToken[rec.RemoteCredentials.Token]; taken && owner != key && rec.Status == models.StatusRegistered {
		return fmt.Errorf("remote token already bound to %s: %w", owner, sentinel.ErrConflict)
	}

	if stored != nil {
		delete(s.byToken, stored.RemoteCredentials.Token)
		if stored.ID != rec.ID {
			s.history[key] = append(s.history[key], stored)
		}
	}
	rec.Revision = models.NextRevision(stored)
	next := rec.Clone()
	s.records[key] = next
	if next.Status == models.StatusRegistered && next.RemoteCredentials.Token != "" {
		s.byToken[next.RemoteCredentials.Token] = key
	}
	return nil
}
