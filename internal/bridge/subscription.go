package bridge

import (
	"context"
	"iter"
	"sync"
)

// Subscription is one consumer's ordered view of the event stream.
type Subscription struct {
	module string
	bridge *Bridge

	mu     sync.Mutex
	box    *mailbox
	closed bool
	notify chan struct{}
}

func (s *Subscription) Module() string {
	return s.module
}

// Pending returns the number of queued events.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.box.len()
}

// Next blocks until an event is available, ctx is done, or the subscription
// is closed and drained.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	for {
		s.mu.Lock()
		ev, ok := s.box.pop()
		closed := s.closed
		backlog := s.box.len()
		s.mu.Unlock()

		if ok {
			s.bridge.metrics.incDelivered(s.module)
			s.bridge.metrics.setBacklog(s.module, backlog)
			return ev, nil
		}
		if closed {
			return Event{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// All yields events until ctx is done or the subscription is closed. Breaking
// out of the loop leaves the subscription open for a later All or Next.
func (s *Subscription) All(ctx context.Context) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			ev, err := s.Next(ctx)
			if err != nil {
				return
			}
			if !yield(ev) {
				return
			}
		}
	}
}

// Close detaches the subscription. Queued events remain readable.
func (s *Subscription) Close() {
	s.bridge.unsubscribe(s)
	s.markClosed()
}

func (s *Subscription) deliver(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.box.push(ev)
	backlog := s.box.len()
	s.mu.Unlock()

	s.bridge.metrics.setBacklog(s.module, backlog)
	s.wake()
}

func (s *Subscription) markClosed() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
