package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"voltgrid/pkg/platform/circuit"
)

// Sink delivers events to an external broker. Send must be safe to repeat:
// the relay retries until the broker acknowledges.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

var errCircuitOpen = errors.New("sink circuit open")

// Relay drains one subscription into a Sink, one event at a time, so the
// sink sees the subscription's order.
type Relay struct {
	sub        *Subscription
	sink       Sink
	breaker    *circuit.Breaker
	maxElapsed time.Duration
	logger     *slog.Logger
	metrics    *Metrics
	newBackOff func() backoff.BackOff
}

type RelayOption func(*Relay)

func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithRelayMetrics(m *Metrics) RelayOption {
	return func(r *Relay) {
		r.metrics = m
	}
}

// WithMaxElapsed bounds retries per event. Zero retries until the context ends.
func WithMaxElapsed(d time.Duration) RelayOption {
	return func(r *Relay) {
		r.maxElapsed = d
	}
}

func WithBreaker(b *circuit.Breaker) RelayOption {
	return func(r *Relay) {
		r.breaker = b
	}
}

// WithBackOff replaces the exponential policy, mainly for tests.
func WithBackOff(factory func() backoff.BackOff) RelayOption {
	return func(r *Relay) {
		r.newBackOff = factory
	}
}

func NewRelay(sub *Subscription, sink Sink, opts ...RelayOption) *Relay {
	r := &Relay{
		sub:     sub,
		sink:    sink,
		breaker: circuit.New("bridge-" + sink.Name()),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.newBackOff == nil {
		r.newBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = r.maxElapsed
			return b
		}
	}
	return r
}

// Run forwards events until ctx ends or the subscription is closed and
// drained. A closed subscription is a clean stop.
func (r *Relay) Run(ctx context.Context) error {
	for {
		ev, err := r.sub.Next(ctx)
		if errors.Is(err, ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := r.forward(ctx, ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.metrics.incRelayDropped(r.sink.Name())
			r.logger.ErrorContext(ctx, "dropping handshake event after retries",
				"sink", r.sink.Name(),
				"event_id", ev.ID.String(),
				"kind", ev.Kind,
				"identity", ev.Identity.Key(),
				"error", err,
			)
		}
	}
}

func (r *Relay) forward(ctx context.Context, ev Event) error {
	name := r.sink.Name()
	attempt := func() error {
		if !r.breaker.Allow() {
			return errCircuitOpen
		}
		if err := r.sink.Send(ctx, ev); err != nil {
			r.metrics.incRelayFailure(name)
			if change := r.breaker.RecordFailure(); change.Opened {
				r.metrics.setCircuitOpen(name, true)
				r.logger.WarnContext(ctx, "relay circuit opened", "sink", name)
			}
			return err
		}
		if change := r.breaker.RecordSuccess(); change.Closed {
			r.metrics.setCircuitOpen(name, false)
			r.logger.InfoContext(ctx, "relay circuit closed", "sink", name)
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		r.logger.DebugContext(ctx, "relay send failed, retrying",
			"sink", name,
			"event_id", ev.ID.String(),
			"wait", wait,
			"error", err,
		)
	}
	if err := backoff.RetryNotify(attempt, backoff.WithContext(r.newBackOff(), ctx), notify); err != nil {
		return err
	}
	r.metrics.incRelaySent(name)
	return nil
}
