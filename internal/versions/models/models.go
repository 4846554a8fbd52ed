package models

import (
	"fmt"
	"slices"
	"strings"

	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
)

// ModuleID names an OCPI module, e.g. "credentials" or "locations".
type ModuleID string

const (
	ModuleCredentials      ModuleID = "credentials"
	ModuleLocations        ModuleID = "locations"
	ModuleSessions         ModuleID = "sessions"
	ModuleCDRs             ModuleID = "cdrs"
	ModuleTariffs          ModuleID = "tariffs"
	ModuleTokens           ModuleID = "tokens"
	ModuleCommands         ModuleID = "commands"
	ModuleChargingProfiles ModuleID = "chargingprofiles"
	ModuleHubClientInfo    ModuleID = "hubclientinfo"
)

// InterfaceRole is the side of a module an endpoint implements (2.2+).
type InterfaceRole string

const (
	InterfaceSender   InterfaceRole = "SENDER"
	InterfaceReceiver InterfaceRole = "RECEIVER"
)

// VersionInfo is one entry of a party's version list.
type VersionInfo struct {
	Version domain.VersionNumber `json:"version"`
	URL     string               `json:"url"`
}

// EndpointCapability is the address at which a module is reachable.
type EndpointCapability struct {
	Identifier ModuleID      `json:"identifier"`
	Role       InterfaceRole `json:"role,omitempty"`
	URL        string        `json:"url"`
}

// VersionDetails is the endpoint list a party publishes for one version.
type VersionDetails struct {
	Version   domain.VersionNumber `json:"version"`
	Endpoints []EndpointCapability `json:"endpoints"`
}

// NegotiationResult is the agreed version and the endpoints usable on it.
type NegotiationResult struct {
	Version       domain.VersionNumber
	RemoteVersion VersionInfo
	Endpoints     []EndpointCapability
}

// Endpoint returns the first negotiated endpoint for id. When a module has
// both a SENDER and a RECEIVER interface, preferRole picks between them.
func (r NegotiationResult) Endpoint(id ModuleID, preferRole InterfaceRole) (EndpointCapability, bool) {
	var fallback *EndpointCapability
	for i := range r.Endpoints {
		ep := r.Endpoints[i]
		if ep.Identifier != id {
			continue
		}
		if preferRole == "" || ep.Role == "" || ep.Role == preferRole {
			return ep, true
		}
		if fallback == nil {
			fallback = &r.Endpoints[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return EndpointCapability{}, false
}

// Identifiers returns the distinct module identifiers in endpoints, in first-seen order.
func Identifiers(endpoints []EndpointCapability) []ModuleID {
	out := make([]ModuleID, 0, len(endpoints))
	for _, ep := range endpoints {
		if !slices.Contains(out, ep.Identifier) {
			out = append(out, ep.Identifier)
		}
	}
	return out
}

// Platform is the local party's own advertisement: which versions it serves
// and which module endpoints it exposes on each.
type Platform struct {
	versions  []VersionInfo
	endpoints map[domain.VersionNumber][]EndpointCapability
}

// EndpointDefinition describes one locally served endpoint. An empty URL is
// derived as {publicURL}/ocpi/{version}/{identifier}.
type EndpointDefinition struct {
	Identifier string
	Role       string
	URL        string
}

type VersionDefinition struct {
	Version   string
	Endpoints []EndpointDefinition
}

// NewPlatform validates the local advertisement. Versions are kept highest first.
func NewPlatform(publicURL string, defs []VersionDefinition) (*Platform, error) {
	publicURL = strings.TrimRight(publicURL, "/")
	if publicURL == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "public URL required")
	}
	if len(defs) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "at least one version required")
	}

	p := &Platform{endpoints: make(map[domain.VersionNumber][]EndpointCapability, len(defs))}
	for _, def := range defs {
		v, err := domain.ParseVersionNumber(def.Version)
		if err != nil {
			return nil, err
		}
		if _, dup := p.endpoints[v]; dup {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("version %s listed twice", v))
		}
		var hasCredentials bool
		eps := make([]EndpointCapability, 0, len(def.Endpoints))
		for _, e := range def.Endpoints {
			id := ModuleID(strings.ToLower(strings.TrimSpace(e.Identifier)))
			if id == "" {
				return nil, dErrors.New(dErrors.CodeInvariantViolation, "endpoint identifier required")
			}
			role := InterfaceRole(strings.ToUpper(strings.TrimSpace(e.Role)))
			if role != "" && role != InterfaceSender && role != InterfaceReceiver {
				return nil, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("endpoint %s: unknown role %q", id, e.Role))
			}
			url := e.URL
			if url == "" {
				url = fmt.Sprintf("%s/ocpi/%s/%s", publicURL, v, id)
			}
			hasCredentials = hasCredentials || id == ModuleCredentials
			eps = append(eps, EndpointCapability{Identifier: id, Role: role, URL: url})
		}
		if !hasCredentials {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("version %s must expose credentials", v))
		}
		p.endpoints[v] = eps
		p.versions = append(p.versions, VersionInfo{Version: v, URL: fmt.Sprintf("%s/ocpi/%s", publicURL, v)})
	}
	slices.SortFunc(p.versions, func(a, b VersionInfo) int { return b.Version.Compare(a.Version) })
	return p, nil
}

// Versions returns a copy of the advertised version list, highest first.
func (p *Platform) Versions() []VersionInfo {
	return slices.Clone(p.versions)
}

// VersionNumbers returns the advertised versions, highest first.
func (p *Platform) VersionNumbers() []domain.VersionNumber {
	out := make([]domain.VersionNumber, len(p.versions))
	for i, v := range p.versions {
		out[i] = v.Version
	}
	return out
}

// Details returns the local endpoint list for v. "2.2" matches "2.2.0".
func (p *Platform) Details(v domain.VersionNumber) (VersionDetails, bool) {
	for known, eps := range p.endpoints {
		if known.Compare(v) == 0 {
			return VersionDetails{Version: known, Endpoints: slices.Clone(eps)}, true
		}
	}
	return VersionDetails{}, false
}
