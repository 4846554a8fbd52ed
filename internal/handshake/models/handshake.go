package models

import (
	"fmt"
	"time"

	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
)

// State is the progress of one handshake invocation.
type State string

const (
	StateIdle        State = "idle"
	StateNegotiating State = "negotiating"
	StateExchanging  State = "exchanging"
	StateCommitting  State = "committing"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

var forward = map[State]State{
	StateIdle:        StateNegotiating,
	StateNegotiating: StateExchanging,
	StateExchanging:  StateCommitting,
	StateCommitting:  StateDone,
}

// Handshake tracks one inbound or outbound registration attempt. It is never
// persisted; the registration record is the only durable outcome.
//
// Invariants:
//   - State only moves forward along Idle, Negotiating, Exchanging, Committing, Done
//   - Failed is reachable from every non-terminal state and records the failure code
//   - Done and Failed are terminal
type Handshake struct {
	Identity  domain.PartyIdentity
	Direction string
	State     State
	// FailedIn is the state the handshake was in when it failed.
	FailedIn  State
	Failure   dErrors.Code
	StartedAt time.Time
}

func New(identity domain.PartyIdentity, direction string, now time.Time) *Handshake {
	return &Handshake{Identity: identity, Direction: direction, State: StateIdle, StartedAt: now}
}

// CanAdvance checks that next is the single forward step from the current state.
func (h *Handshake) CanAdvance(next State) error {
	if want, ok := forward[h.State]; !ok || want != next {
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("handshake cannot move %s -> %s", h.State, next))
	}
	return nil
}

// Advance moves to next. Call CanAdvance first.
func (h *Handshake) Advance(next State) {
	h.State = next
}

// Fail records err and moves to StateFailed. Failing a terminal handshake is a no-op.
func (h *Handshake) Fail(err error) {
	if h.State.IsTerminal() {
		return
	}
	h.FailedIn = h.State
	h.Failure = dErrors.CodeOf(err)
	h.State = StateFailed
}

// Outcome labels the handshake for metrics: "done" or the failure code.
func (h *Handshake) Outcome() string {
	if h.State == StateFailed {
		return string(h.Failure)
	}
	return string(h.State)
}
