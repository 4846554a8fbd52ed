package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	credmodels "voltgrid/internal/credentials/models"
	"voltgrid/internal/tenant/models"
	"voltgrid/pkg/domain"
	"voltgrid/pkg/platform/sentinel"
)

type TenantStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *TenantStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestTenantStoreSuite(t *testing.T) {
	suite.Run(t, new(TenantStoreSuite))
}

func (s *TenantStoreSuite) newTenant(party string, role domain.Role) *models.Tenant {
	t, err := models.NewTenant(domain.NewTenantID(),
		domain.PartyIdentity{CountryCode: "NL", PartyID: party, Role: role},
		credmodels.BusinessDetails{Name: "Voltgrid " + party},
		time.Now())
	s.Require().NoError(err)
	return t
}

// TestCreationAndLookups verifies the store correctly creates and retrieves tenants.
func (s *TenantStoreSuite) TestCreationAndLookups() {
	s.Run("creates and finds tenant by identity", func() {
		tenant := s.newTenant("VGR", domain.RoleCPO)
		s.Require().NoError(s.store.CreateIfIdentityAvailable(s.ctx, tenant))

		found, err := s.store.FindByIdentity(s.ctx, tenant.Identity)
		s.Require().NoError(err)
		s.Equal(tenant.ID, found.ID)

		byID, err := s.store.FindByID(s.ctx, tenant.ID)
		s.Require().NoError(err)
		s.Equal(tenant.Identity, byID.Identity)
	})

	s.Run("returns ErrNotFound for unknown identity", func() {
		_, err := s.store.FindByIdentity(s.ctx, domain.PartyIdentity{CountryCode: "DE", PartyID: "XXX", Role: domain.RoleCPO})
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *TenantStoreSuite) TestIdentityUniqueness() {
	s.Require().NoError(s.store.CreateIfIdentityAvailable(s.ctx, s.newTenant("VGR", domain.RoleCPO)))
	err := s.store.CreateIfIdentityAvailable(s.ctx, s.newTenant("VGR", domain.RoleCPO))
	s.ErrorIs(err, sentinel.ErrConflict)

	s.NoError(s.store.CreateIfIdentityAvailable(s.ctx, s.newTenant("VGR", domain.RoleEMSP)), "same party in another role is distinct")

	all, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 2)
	s.Equal("NL:VGR:CPO", all[0].Identity.Key())
}

func (s *TenantStoreSuite) TestExecuteValidatesBeforeMutating() {
	tenant := s.newTenant("VGR", domain.RoleCPO)
	s.Require().NoError(s.store.CreateIfIdentityAvailable(s.ctx, tenant))

	errStop := errors.New("stop")
	_, err := s.store.Execute(s.ctx, tenant.Identity,
		func(*models.Tenant) error { return errStop },
		func(t *models.Tenant) { t.ApplyDeactivation(time.Now()) },
	)
	s.ErrorIs(err, errStop)
	found, _ := s.store.FindByIdentity(s.ctx, tenant.Identity)
	s.True(found.IsActive())

	updated, err := s.store.Execute(s.ctx, tenant.Identity,
		func(t *models.Tenant) error { return t.CanDeactivate() },
		func(t *models.Tenant) { t.ApplyDeactivation(time.Now()) },
	)
	s.Require().NoError(err)
	s.False(updated.IsActive())
}
