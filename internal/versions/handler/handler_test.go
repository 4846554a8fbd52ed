package handler

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voltgrid/internal/ocpi/wire"
	"voltgrid/internal/platform/logger"
	"voltgrid/internal/versions/models"
	"voltgrid/pkg/domain"
	"voltgrid/pkg/testutil"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	platform, err := models.NewPlatform("https://a.example", []models.VersionDefinition{
		{Version: "2.2", Endpoints: []models.EndpointDefinition{
			{Identifier: "credentials", Role: "RECEIVER", URL: "https://a.example/a/creds"},
			{Identifier: "locations", Role: "SENDER", URL: "https://a.example/a/locs"},
		}},
		{Version: "2.1.1", Endpoints: []models.EndpointDefinition{{Identifier: "credentials"}}},
	})
	require.NoError(t, err)
	r := chi.NewRouter()
	New(platform, logger.Discard()).Register(r)
	return r
}

func TestListVersions(t *testing.T) {
	router := newRouter(t)

	req := testutil.NewRequest(t, http.MethodGet, "/ocpi/versions")
	req.Header.Set("Authorization", "Token token-a")
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusOK(t, rr)
	resp := testutil.UnmarshalResponse[wire.Response[[]models.VersionInfo]](t, rr)
	assert.Equal(t, wire.StatusSuccess, resp.StatusCode)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "2.2", resp.Data[0].Version.String())
	assert.Equal(t, "https://a.example/ocpi/2.2", resp.Data[0].URL)
}

func TestVersionDetails(t *testing.T) {
	router := newRouter(t)

	req := testutil.WithOCPIToken(testutil.NewRequest(t, http.MethodGet, "/ocpi/2.2"), "token-a", domain.Version22)
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatusOK(t, rr)
	resp := testutil.UnmarshalResponse[wire.Response[models.VersionDetails]](t, rr)
	assert.Equal(t, []models.ModuleID{models.ModuleCredentials, models.ModuleLocations}, models.Identifiers(resp.Data.Endpoints))
	assert.Equal(t, "https://a.example/a/creds", resp.Data.Endpoints[0].URL)
}

func TestVersionDetailsRejectsUnservedVersion(t *testing.T) {
	router := newRouter(t)

	req := testutil.NewRequest(t, http.MethodGet, "/ocpi/2.0")
	req.Header.Set("Authorization", "Token token-a")
	rr := testutil.DoRequest(router, req)

	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestDiscoveryRequiresToken(t *testing.T) {
	router := newRouter(t)

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/ocpi/versions"))
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}
