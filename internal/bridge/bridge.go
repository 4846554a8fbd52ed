// Package bridge announces committed handshake outcomes to downstream modules.
//
// Publish copies an event into the mailbox of every open subscription and
// returns immediately. Each subscription drains its own mailbox, so a slow or
// abandoned subscriber never holds up Publish or its peers. Subscriptions see
// only events published after they were opened.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
	"voltgrid/pkg/requestcontext"
)

// ErrClosed is returned by Next once a subscription is closed and drained.
var ErrClosed = errors.New("bridge subscription closed")

type Bridge struct {
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	closed  bool
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

type Option func(*Bridge)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Bridge) {
		b.now = now
	}
}

func New(opts ...Option) *Bridge {
	b := &Bridge{
		subs:   make(map[*Subscription]struct{}),
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish fans ev out to every open subscription without waiting for any of
// them. A missing ID or timestamp is filled in.
func (b *Bridge) Publish(ctx context.Context, ev Event) error {
	if !ev.Kind.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown event kind")
	}
	if ev.Identity.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "event identity required")
	}
	if ev.ID.IsNil() {
		ev.ID = domain.NewEventID()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = b.now().UTC()
	}
	ev.NegotiatedEndpoints = slices.Clone(ev.NegotiatedEndpoints)

	// The fan-out runs under the lock so every mailbox sees the same order.
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for sub := range b.subs {
		sub.deliver(ev)
	}
	b.metrics.incPublished(ev.Kind)
	b.logger.DebugContext(ctx, "handshake event published",
		"event_id", ev.ID.String(),
		"kind", ev.Kind,
		"identity", ev.Identity.Key(),
		"subscribers", len(b.subs),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// Subscribe opens a subscription for module. Events published before this
// call are not replayed.
func (b *Bridge) Subscribe(module string) *Subscription {
	sub := &Subscription{
		module: module,
		bridge: b,
		box:    newMailbox(0),
		notify: make(chan struct{}, 1),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closed = true
		return sub
	}
	b.subs[sub] = struct{}{}
	b.metrics.addSubscribers(1)
	return sub
}

// Close stops accepting events and closes every subscription. Subscribers
// can still drain what was queued before Close.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = map[*Subscription]struct{}{}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.markClosed()
	}
	b.metrics.addSubscribers(-len(subs))
}

func (b *Bridge) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		b.metrics.addSubscribers(-1)
	}
}
