package models

import (
	"fmt"
	"slices"
	"time"

	credmodels "voltgrid/internal/credentials/models"
	vermodels "voltgrid/internal/versions/models"
	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
)

// Status is the registration lifecycle state of a counterparty.
type Status string

const (
	StatusUnregistered Status = "UNREGISTERED"
	StatusPending      Status = "PENDING_REGISTRATION"
	StatusRegistered   Status = "REGISTERED"
	StatusDeregistered Status = "DEREGISTERED"
)

var edges = map[Status][]Status{
	StatusUnregistered: {StatusPending},
	StatusPending:      {StatusRegistered},
	StatusRegistered:   {StatusPending, StatusDeregistered},
}

func (s Status) IsValid() bool {
	switch s {
	case StatusUnregistered, StatusPending, StatusRegistered, StatusDeregistered:
		return true
	}
	return false
}

// CanTransitionTo reports whether next directly follows s.
func (s Status) CanTransitionTo(next Status) bool {
	return slices.Contains(edges[s], next)
}

// CanCommit reports whether a single commit may move a record from s to
// next. The pending phase of a handshake is held by the caller, so a commit
// may cover s -> Pending -> next in one step.
func (s Status) CanCommit(next Status) bool {
	if s.CanTransitionTo(next) {
		return true
	}
	return s.CanTransitionTo(StatusPending) && StatusPending.CanTransitionTo(next)
}

func (s Status) String() string {
	return string(s)
}

// Record is the registration aggregate for one counterparty.
//
// Invariants:
//   - Identity never changes for a given ID
//   - Status only moves along the edges in CanTransitionTo
//   - RemoteCredentials.Token changes on every committed re-registration
//   - NegotiatedEndpoints only lists modules both parties advertised
//   - a Deregistered record is never revived; a returning party gets a new ID
//   - Revision grows by one on every commit of the same identity
type Record struct {
	ID                  domain.RecordID                `json:"id"`
	Identity            domain.PartyIdentity           `json:"identity"`
	Status              Status                         `json:"status"`
	LocalCredentials    credmodels.Credentials         `json:"local_credentials"`
	RemoteCredentials   credmodels.Credentials         `json:"remote_credentials"`
	NegotiatedVersion   domain.VersionNumber           `json:"negotiated_version"`
	NegotiatedEndpoints []vermodels.EndpointCapability `json:"negotiated_endpoints"`
	CreatedAt           time.Time                      `json:"created_at"`
	LastUpdated         time.Time                      `json:"last_updated"`
	// Revision is the store revision the record was read at. Stores set it
	// on commit; callers only carry it from Get to Commit.
	Revision int64 `json:"revision"`
}

// NewRecord starts a record for a counterparty seen for the first time.
func NewRecord(identity domain.PartyIdentity, now time.Time) (*Record, error) {
	if identity.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "identity required")
	}
	return &Record{
		ID:          domain.NewRecordID(),
		Identity:    identity,
		Status:      StatusUnregistered,
		CreatedAt:   now,
		LastUpdated: now,
	}, nil
}

func (r *Record) IsRegistered() bool {
	return r != nil && r.Status == StatusRegistered
}

// CanRegister checks that a handshake may complete on this record.
func (r *Record) CanRegister() error {
	if !r.Status.CanCommit(StatusRegistered) {
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("cannot register from %s", r.Status))
	}
	return nil
}

// ApplyRegistration stores the outcome of a completed handshake.
// Call CanRegister first.
func (r *Record) ApplyRegistration(local, remote credmodels.Credentials, version domain.VersionNumber, endpoints []vermodels.EndpointCapability, now time.Time) {
	r.Status = StatusRegistered
	r.LocalCredentials = local.Clone()
	r.RemoteCredentials = remote.Clone()
	r.NegotiatedVersion = version
	r.NegotiatedEndpoints = slices.Clone(endpoints)
	r.LastUpdated = now
}

func (r *Record) CanDeregister() error {
	if !r.Status.CanTransitionTo(StatusDeregistered) {
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("cannot deregister from %s", r.Status))
	}
	return nil
}

// ApplyDeregistration retires the record. Credentials are kept for audit.
func (r *Record) ApplyDeregistration(now time.Time) {
	r.Status = StatusDeregistered
	r.LastUpdated = now
}

// Clone returns a deep copy so callers never share store state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.LocalCredentials = r.LocalCredentials.Clone()
	out.RemoteCredentials = r.RemoteCredentials.Clone()
	out.NegotiatedEndpoints = slices.Clone(r.NegotiatedEndpoints)
	return &out
}

// Stale reports whether next was built from an older read of stored. A
// record replacing a retired one carries a new ID and is guarded by the
// status precondition alone.
func Stale(stored, next *Record) bool {
	return stored != nil && next != nil && stored.ID == next.ID && stored.Revision != next.Revision
}

// NextRevision is the revision a commit over stored writes.
func NextRevision(stored *Record) int64 {
	if stored == nil {
		return 1
	}
	return stored.Revision + 1
}

// ValidateCommit checks that next may replace stored, which is nil when the
// identity has no record yet. Stores call it inside their commit.
func ValidateCommit(stored, next *Record) error {
	if next == nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "record required")
	}
	if next.ID.IsNil() || next.Identity.IsZero() {
		return dErrors.New(dErrors.CodeInvariantViolation, "record id and identity required")
	}
	if !next.Status.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("unknown status %q", next.Status))
	}

	prior := StatusUnregistered
	if stored != nil {
		prior = stored.Status
		if !stored.Identity.Equal(next.Identity) {
			return dErrors.New(dErrors.CodeInvariantViolation, "identity cannot change")
		}
	}

	if prior == StatusDeregistered {
		if next.ID == stored.ID {
			return dErrors.New(dErrors.CodeInvariantViolation, "a deregistered record cannot be revived")
		}
		if next.Status != StatusRegistered {
			return dErrors.New(dErrors.CodeInvariantViolation, "a returning party must complete registration")
		}
		return nil
	}
	if stored != nil && stored.ID != next.ID {
		return dErrors.New(dErrors.CodeInvariantViolation, "record id cannot change")
	}
	if !prior.CanCommit(next.Status) {
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("illegal transition %s -> %s", prior, next.Status))
	}
	if prior == StatusRegistered && next.Status == StatusRegistered &&
		next.RemoteCredentials.Token == stored.RemoteCredentials.Token {
		return dErrors.New(dErrors.CodeInvariantViolation, "re-registration must rotate the remote token")
	}
	return nil
}
