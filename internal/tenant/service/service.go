package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	credmodels "voltgrid/internal/credentials/models"
	"voltgrid/internal/platform/config"
	tenantmetrics "voltgrid/internal/tenant/metrics"
	"voltgrid/internal/tenant/models"
	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
	"voltgrid/pkg/platform/sentinel"
	"voltgrid/pkg/requestcontext"
)

type TenantStore interface {
	CreateIfIdentityAvailable(ctx context.Context, tenant *models.Tenant) error
	FindByIdentity(ctx context.Context, identity domain.PartyIdentity) (*models.Tenant, error)
	List(ctx context.Context) ([]*models.Tenant, error)
	Execute(ctx context.Context, identity domain.PartyIdentity, validate func(*models.Tenant) error, mutate func(*models.Tenant)) (*models.Tenant, error)
}

// Service is the directory of local parties hosted by this platform.
type Service struct {
	tenants TenantStore
	logger  *slog.Logger
	metrics *tenantmetrics.Metrics
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *tenantmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(tenants TenantStore, opts ...Option) *Service {
	s := &Service{tenants: tenants, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed creates the tenants listed in the party file. Tenants that already
// exist are left alone.
func (s *Service) Seed(ctx context.Context, specs []config.TenantSpec) error {
	now := requestcontext.Now(ctx)
	for _, spec := range specs {
		identity, err := domain.ParsePartyIdentity(spec.CountryCode, spec.PartyID, spec.Role)
		if err != nil {
			return err
		}
		details := credmodels.BusinessDetails{Name: spec.BusinessDetails.Name, Website: spec.BusinessDetails.Website}
		if spec.BusinessDetails.LogoURL != "" {
			details.Logo = &credmodels.Image{URL: spec.BusinessDetails.LogoURL}
		}
		t, err := models.NewTenant(domain.NewTenantID(), identity, details, now)
		if err != nil {
			return err
		}
		if spec.Inactive {
			t.ApplyDeactivation(now)
		}
		if err := s.tenants.CreateIfIdentityAvailable(ctx, t); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				continue
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed tenant")
		}
		s.logger.InfoContext(ctx, "tenant seeded", "identity", identity.Key(), "status", t.Status)
	}
	return nil
}

// FindTenantByIdentity returns the local party with the given identity.
func (s *Service) FindTenantByIdentity(ctx context.Context, identity domain.PartyIdentity) (*models.Tenant, error) {
	t, err := s.tenants.FindByIdentity(ctx, identity)
	if err != nil {
		return nil, wrapTenantErr(err)
	}
	return t, nil
}

// LocalRoles returns the roles we present in credentials. With a non-zero
// identity only that tenant is used and it must be active; otherwise every
// active tenant is included.
func (s *Service) LocalRoles(ctx context.Context, only domain.PartyIdentity) (roles []credmodels.CredentialsRole, err error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			outcome := "ok"
			if err != nil {
				outcome = string(dErrors.CodeOf(err))
			}
			s.metrics.ObserveResolveRoles(outcome, start)
		}
	}()

	if !only.IsZero() {
		t, err := s.FindTenantByIdentity(ctx, only)
		if err != nil {
			return nil, err
		}
		if !t.IsActive() {
			return nil, dErrors.New(dErrors.CodeForbidden, "local party is inactive")
		}
		return []credmodels.CredentialsRole{t.Role()}, nil
	}

	all, err := s.tenants.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tenants")
	}
	for _, t := range all {
		if t.IsActive() {
			roles = append(roles, t.Role())
		}
	}
	if len(roles) == 0 {
		return nil, dErrors.New(dErrors.CodeForbidden, "no active local party")
	}
	return roles, nil
}

func (s *Service) List(ctx context.Context) ([]*models.Tenant, error) {
	all, err := s.tenants.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tenants")
	}
	return all, nil
}

// DeactivateTenant takes a local party out of future handshakes.
func (s *Service) DeactivateTenant(ctx context.Context, identity domain.PartyIdentity) (*models.Tenant, error) {
	now := requestcontext.Now(ctx)
	t, err := s.tenants.Execute(ctx, identity,
		func(t *models.Tenant) error {
			if err := t.CanDeactivate(); err != nil {
				return dErrors.New(dErrors.CodeConflict, "tenant is already inactive")
			}
			return nil
		},
		func(t *models.Tenant) {
			t.ApplyDeactivation(now)
		},
	)
	if err != nil {
		return nil, wrapTenantErr(err)
	}
	s.logger.InfoContext(ctx, "tenant deactivated",
		"identity", identity.Key(),
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementStatusChange(string(models.TenantStatusInactive))
	}
	return t, nil
}

func (s *Service) ReactivateTenant(ctx context.Context, identity domain.PartyIdentity) (*models.Tenant, error) {
	now := requestcontext.Now(ctx)
	t, err := s.tenants.Execute(ctx, identity,
		func(t *models.Tenant) error {
			if err := t.CanReactivate(); err != nil {
				return dErrors.New(dErrors.CodeConflict, "tenant is already active")
			}
			return nil
		},
		func(t *models.Tenant) {
			t.ApplyReactivation(now)
		},
	)
	if err != nil {
		return nil, wrapTenantErr(err)
	}
	s.logger.InfoContext(ctx, "tenant reactivated",
		"identity", identity.Key(),
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.IncrementStatusChange(string(models.TenantStatusActive))
	}
	return t, nil
}

func wrapTenantErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "tenant not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "tenant store failure")
}
