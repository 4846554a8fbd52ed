package models

import (
	"slices"
	"time"

	"voltgrid/internal/bridge"
	vermodels "voltgrid/internal/versions/models"
	"voltgrid/pkg/domain"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusRetired Status = "retired"
)

// Partner is the read-side view of a registered counterpart: what it speaks
// and where, built from handshake events. Tokens are never kept here.
//
// Invariants:
//   - Identity never changes
//   - events older than UpdatedAt, or already seen, are ignored
//   - a retired partner comes back only through a new Registered event
type Partner struct {
	Identity       domain.PartyIdentity           `json:"identity"`
	Status         Status                         `json:"status"`
	Version        domain.VersionNumber           `json:"version"`
	Endpoints      []vermodels.EndpointCapability `json:"endpoints"`
	TokenRotations int                            `json:"token_rotations"`
	LastEventID    domain.EventID                 `json:"last_event_id"`
	RegisteredAt   time.Time                      `json:"registered_at"`
	UpdatedAt      time.Time                      `json:"updated_at"`
}

// FromEvent starts a partner from its first event. Only Registered events
// create partners.
func FromEvent(ev bridge.Event) (*Partner, bool) {
	if ev.Kind != bridge.KindRegistered {
		return nil, false
	}
	p := &Partner{Identity: ev.Identity}
	p.Apply(ev)
	return p, true
}

// Apply folds ev into the view and reports whether anything changed.
func (p *Partner) Apply(ev bridge.Event) bool {
	if !ev.Identity.Equal(p.Identity) || p.seen(ev) {
		return false
	}
	switch ev.Kind {
	case bridge.KindRegistered:
		p.Status = StatusActive
		p.Version = ev.NegotiatedVersion
		p.Endpoints = slices.Clone(ev.NegotiatedEndpoints)
		p.RegisteredAt = ev.OccurredAt
	case bridge.KindTokenRotated:
		if p.Status != StatusActive {
			return false
		}
		p.TokenRotations++
	case bridge.KindDeregistered:
		if p.Status == StatusRetired {
			return false
		}
		p.Status = StatusRetired
	default:
		return false
	}
	p.LastEventID = ev.ID
	p.UpdatedAt = ev.OccurredAt
	return true
}

func (p *Partner) seen(ev bridge.Event) bool {
	if !ev.ID.IsNil() && ev.ID == p.LastEventID {
		return true
	}
	return !p.UpdatedAt.IsZero() && ev.OccurredAt.Before(p.UpdatedAt)
}

// Supports reports whether the partner negotiated module.
func (p *Partner) Supports(module vermodels.ModuleID) bool {
	return slices.ContainsFunc(p.Endpoints, func(ep vermodels.EndpointCapability) bool {
		return ep.Identifier == module
	})
}

func (p *Partner) Clone() *Partner {
	out := *p
	out.Endpoints = slices.Clone(p.Endpoints)
	return &out
}
