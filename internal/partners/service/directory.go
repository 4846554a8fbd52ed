// Package service maintains the partner directory from handshake events.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"

	"voltgrid/internal/bridge"
	"voltgrid/internal/partners/metrics"
	"voltgrid/internal/partners/models"
	"voltgrid/internal/platform/kafka/consumer"
	vermodels "voltgrid/internal/versions/models"
	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
	"voltgrid/pkg/platform/sentinel"
)

type Store interface {
	Get(ctx context.Context, identity domain.PartyIdentity) (*models.Partner, error)
	Save(ctx context.Context, p *models.Partner) error
	List(ctx context.Context) ([]*models.Partner, error)
}

// Directory is a single-writer projection: Apply must not run concurrently
// for the same identity. Both feeds guarantee that, the bridge through one
// subscription and Kafka through identity-keyed partitions.
type Directory struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Directory)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Directory) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Directory) {
		d.metrics = m
	}
}

func New(store Store, opts ...Option) *Directory {
	d := &Directory{store: store, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Apply folds one event into the directory. Replays and events for unknown
// partners other than registrations are skipped without error.
func (d *Directory) Apply(ctx context.Context, ev bridge.Event) error {
	current, err := d.store.Get(ctx, ev.Identity)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return fmt.Errorf("load partner: %w", err)
	}

	var next *models.Partner
	var from string
	switch {
	case current == nil:
		p, ok := models.FromEvent(ev)
		if !ok {
			d.skip(ctx, ev, "unknown_partner")
			return nil
		}
		next = p
	default:
		from = string(current.Status)
		next = current.Clone()
		if !next.Apply(ev) {
			d.skip(ctx, ev, "stale")
			return nil
		}
	}

	if err := d.store.Save(ctx, next); err != nil {
		return fmt.Errorf("save partner: %w", err)
	}
	d.metrics.IncrementEvent(string(ev.Kind), "applied")
	d.metrics.Transition(from, string(next.Status))
	d.logger.DebugContext(ctx, "partner updated",
		"identity", ev.Identity.Key(),
		"kind", ev.Kind,
		"status", next.Status,
	)
	return nil
}

func (d *Directory) skip(ctx context.Context, ev bridge.Event, reason string) {
	d.metrics.IncrementEvent(string(ev.Kind), reason)
	d.logger.DebugContext(ctx, "partner event skipped",
		"identity", ev.Identity.Key(),
		"kind", ev.Kind,
		"event_id", ev.ID,
		"reason", reason,
	)
}

// Consume applies events from an in-process subscription until ctx ends or
// the bridge closes.
func (d *Directory) Consume(ctx context.Context, sub *bridge.Subscription) error {
	for {
		ev, err := sub.Next(ctx)
		if errors.Is(err, bridge.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := d.Apply(ctx, ev); err != nil {
			d.logger.ErrorContext(ctx, "partner event not applied",
				"identity", ev.Identity.Key(),
				"kind", ev.Kind,
				"error", err,
			)
		}
	}
}

// KafkaHandler decodes events relayed to Kafka. Undecodable records are
// permanent failures and are not retried.
func (d *Directory) KafkaHandler(codec bridge.Codec) consumer.Handler {
	return consumer.HandlerFunc(func(ctx context.Context, msg *consumer.Message) error {
		if ct := msg.Headers["content_type"]; ct != "" && ct != codec.ContentType() {
			return backoff.Permanent(fmt.Errorf("unexpected content type %q", ct))
		}
		var ev bridge.Event
		if err := codec.Unmarshal(msg.Value, &ev); err != nil {
			return backoff.Permanent(fmt.Errorf("decode event: %w", err))
		}
		if !ev.Kind.IsValid() || ev.Identity.IsZero() {
			return backoff.Permanent(fmt.Errorf("malformed event at offset %d", msg.Offset))
		}
		return d.Apply(ctx, ev)
	})
}

// List returns partners, optionally only active ones that negotiated module.
func (d *Directory) List(ctx context.Context, module vermodels.ModuleID) ([]*models.Partner, error) {
	all, err := d.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "partner directory failure")
	}
	if module == "" {
		return all, nil
	}
	out := make([]*models.Partner, 0, len(all))
	for _, p := range all {
		if p.Status == models.StatusActive && p.Supports(module) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (d *Directory) Get(ctx context.Context, identity domain.PartyIdentity) (*models.Partner, error) {
	p, err := d.store.Get(ctx, identity)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "partner not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "partner directory failure")
	}
	return p, nil
}
