package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voltgrid/internal/partners/models"
	vermodels "voltgrid/internal/versions/models"
	"voltgrid/pkg/domain"
	"voltgrid/pkg/platform/sentinel"
)

func TestInMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	msp := domain.PartyIdentity{CountryCode: "US", PartyID: "MSP", Role: domain.RoleEMSP}

	_, err := s.Get(ctx, msp)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	p := &models.Partner{Identity: msp, Status: models.StatusActive, Endpoints: []vermodels.EndpointCapability{{Identifier: "sessions", URL: "u"}}}
	require.NoError(t, s.Save(ctx, p))
	p.Endpoints[0].URL = "mutated"

	got, err := s.Get(ctx, msp)
	require.NoError(t, err)
	assert.Equal(t, "u", got.Endpoints[0].URL)
}

func TestInMemoryListIsOrdered(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	for _, pid := range []string{"ZZZ", "AAA", "MMM"} {
		require.NoError(t, s.Save(ctx, &models.Partner{Identity: domain.PartyIdentity{CountryCode: "NL", PartyID: pid, Role: domain.RoleCPO}}))
	}
	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "AAA", list[0].Identity.PartyID)
	assert.Equal(t, "ZZZ", list[2].Identity.PartyID)
}
