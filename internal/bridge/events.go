package bridge

import (
	"time"

	vermodels "voltgrid/internal/versions/models"
	"voltgrid/pkg/domain"
)

// Kind names a handshake outcome.
type Kind string

const (
	KindRegistered   Kind = "registered"
	KindTokenRotated Kind = "token_rotated"
	KindDeregistered Kind = "deregistered"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindRegistered, KindTokenRotated, KindDeregistered:
		return true
	}
	return false
}

// Event announces a committed handshake outcome to downstream modules.
// NegotiatedEndpoints is set for KindRegistered, NewLocalToken for
// KindTokenRotated; Deregistered carries the identity only.
type Event struct {
	ID                  domain.EventID                 `json:"id"`
	Kind                Kind                           `json:"kind"`
	Identity            domain.PartyIdentity           `json:"identity"`
	NegotiatedVersion   domain.VersionNumber           `json:"negotiated_version,omitempty"`
	NegotiatedEndpoints []vermodels.EndpointCapability `json:"negotiated_endpoints,omitempty"`
	NewLocalToken       string                         `json:"new_local_token,omitempty"`
	OccurredAt          time.Time                      `json:"occurred_at"`
}

func Registered(identity domain.PartyIdentity, version domain.VersionNumber, endpoints []vermodels.EndpointCapability) Event {
	return Event{Kind: KindRegistered, Identity: identity, NegotiatedVersion: version, NegotiatedEndpoints: endpoints}
}

func TokenRotated(identity domain.PartyIdentity, newLocalToken string) Event {
	return Event{Kind: KindTokenRotated, Identity: identity, NewLocalToken: newLocalToken}
}

func Deregistered(identity domain.PartyIdentity) Event {
	return Event{Kind: KindDeregistered, Identity: identity}
}
