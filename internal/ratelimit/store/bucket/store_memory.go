// Package bucket holds sliding-window request counters.
package bucket

import (
	"context"
	"math"
	"sync"
	"time"

	"voltgrid/internal/ratelimit/models"
)

// InMemory keeps one timestamp slice per key. It suits a single replica;
// a fleet shares counters through the Redis variant.
type InMemory struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

type Option func(*InMemory)

// WithClock replaces time.Now, used by tests to move time.
func WithClock(now func() time.Time) Option {
	return func(s *InMemory) {
		s.now = now
	}
}

func NewInMemory(opts ...Option) *InMemory {
	s := &InMemory{windows: make(map[string][]time.Time), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AllowN admits cost requests when they fit in the window, recording them.
// A denied call records nothing.
func (s *InMemory) AllowN(_ context.Context, key string, cost, limit int, window time.Duration) (*models.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	valid := s.prune(key, now, window)

	if len(valid)+cost > limit {
		resetAt := now.Add(window)
		if len(valid) > 0 {
			resetAt = valid[0].Add(window)
		}
		s.windows[key] = valid
		return &models.Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  max(0, limit-len(valid)),
			ResetAt:    resetAt,
			RetryAfter: retryAfter(resetAt, now),
		}, nil
	}

	for range cost {
		valid = append(valid, now)
	}
	s.windows[key] = valid
	return &models.Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(valid),
		ResetAt:   valid[0].Add(window),
	}, nil
}

// Count returns how many events are still inside the window.
func (s *InMemory) Count(_ context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	valid := s.prune(key, s.now(), window)
	if len(valid) == 0 {
		delete(s.windows, key)
	} else {
		s.windows[key] = valid
	}
	return len(valid), nil
}

func (s *InMemory) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

func (s *InMemory) prune(key string, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	stamps := s.windows[key]
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}

func retryAfter(resetAt, now time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	return max(1, secs)
}
