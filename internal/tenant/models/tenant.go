package models

import (
	"time"

	credmodels "voltgrid/internal/credentials/models"
	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
)

type TenantStatus string

const (
	TenantStatusActive   TenantStatus = "active"
	TenantStatusInactive TenantStatus = "inactive"
)

// CanTransitionTo allows active <-> inactive only.
func (s TenantStatus) CanTransitionTo(next TenantStatus) bool {
	return (s == TenantStatusActive && next == TenantStatusInactive) ||
		(s == TenantStatusInactive && next == TenantStatusActive)
}

// Tenant is a local party hosted by this platform.
//
// Invariants:
//   - Identity is valid and unique across tenants
//   - BusinessDetails.Name is non-empty and at most 128 characters
//   - Status transitions: active <-> inactive only
//
// An inactive tenant is left out of every credentials object we issue and
// refuses handshakes addressed to it. Existing registrations stay as they are.
type Tenant struct {
	ID              domain.TenantID            `json:"id"`
	Identity        domain.PartyIdentity       `json:"identity"`
	BusinessDetails credmodels.BusinessDetails `json:"business_details"`
	Status          TenantStatus               `json:"status"`
	CreatedAt       time.Time                  `json:"created_at"`
	UpdatedAt       time.Time                  `json:"updated_at"`
}

func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// Role renders the tenant as a credentials role entry.
func (t *Tenant) Role() credmodels.CredentialsRole {
	return credmodels.CredentialsRole{
		Role:            t.Identity.Role,
		BusinessDetails: t.BusinessDetails,
		PartyID:         t.Identity.PartyID,
		CountryCode:     t.Identity.CountryCode,
	}
}

func (t *Tenant) CanDeactivate() error {
	if !t.Status.CanTransitionTo(TenantStatusInactive) {
		return dErrors.New(dErrors.CodeInvariantViolation, "tenant is already inactive")
	}
	return nil
}

// ApplyDeactivation transitions the tenant to inactive status.
// Call CanDeactivate first.
func (t *Tenant) ApplyDeactivation(now time.Time) {
	t.Status = TenantStatusInactive
	t.UpdatedAt = now
}

func (t *Tenant) CanReactivate() error {
	if !t.Status.CanTransitionTo(TenantStatusActive) {
		return dErrors.New(dErrors.CodeInvariantViolation, "tenant is already active")
	}
	return nil
}

func (t *Tenant) ApplyReactivation(now time.Time) {
	t.Status = TenantStatusActive
	t.UpdatedAt = now
}

func NewTenant(tenantID domain.TenantID, identity domain.PartyIdentity, details credmodels.BusinessDetails, now time.Time) (*Tenant, error) {
	if identity.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant identity cannot be empty")
	}
	if details.Name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant name cannot be empty")
	}
	if len(details.Name) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tenant name must be 128 characters or less")
	}
	return &Tenant{
		ID:              tenantID,
		Identity:        identity,
		BusinessDetails: details,
		Status:          TenantStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}
