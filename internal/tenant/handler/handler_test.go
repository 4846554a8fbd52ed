package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voltgrid/internal/platform/config"
	"voltgrid/internal/tenant/service"
	"voltgrid/internal/tenant/store"
	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
	"voltgrid/pkg/platform/middleware/admin"
)

const adminToken = "secret-token"

func newTenantRouter(t *testing.T) (http.Handler, *service.Service) {
	t.Helper()
	svc := service.New(store.NewInMemory())
	require.NoError(t, svc.Seed(context.Background(), []config.TenantSpec{
		{CountryCode: "nl", PartyID: "vgr", Role: "cpo", BusinessDetails: config.BusinessDetailsSpec{Name: "Voltgrid CPO"}},
		{CountryCode: "NL", PartyID: "VGM", Role: "EMSP", BusinessDetails: config.BusinessDetailsSpec{Name: "Voltgrid MSP"}, Inactive: true},
	}))
	logger := slog.New(slog.DiscardHandler)

	r := chi.NewRouter()
	r.Use(admin.RequireAdminToken(adminToken, logger))
	New(svc, logger).Register(r)
	return r, svc
}

func do(router http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Admin-Token", adminToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAdminTokenRequired(t *testing.T) {
	router, _ := newTenantRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/tenants", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListTenants(t *testing.T) {
	router, _ := newTenantRouter(t)
	rec := do(router, http.MethodGet, "/admin/tenants")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tenants []tenantResponse `json:"tenants"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Tenants, 2)
	assert.Equal(t, "VGM", body.Tenants[0].PartyID)
	assert.Equal(t, "inactive", body.Tenants[0].Status)
	assert.Equal(t, "VGR", body.Tenants[1].PartyID)
	assert.Equal(t, "active", body.Tenants[1].Status)
}

func TestDeactivationExcludesTenantFromRoles(t *testing.T) {
	router, svc := newTenantRouter(t)
	ctx := context.Background()

	roles, err := svc.LocalRoles(ctx, domain.PartyIdentity{})
	require.NoError(t, err)
	require.Len(t, roles, 1)

	rec := do(router, http.MethodPost, "/admin/tenants/NL/VGR/CPO/deactivate")
	require.Equal(t, http.StatusOK, rec.Code)

	_, err = svc.LocalRoles(ctx, domain.PartyIdentity{})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))

	rec = do(router, http.MethodPost, "/admin/tenants/NL/VGR/CPO/deactivate")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(router, http.MethodPost, "/admin/tenants/NL/VGM/EMSP/reactivate")
	require.Equal(t, http.StatusOK, rec.Code)
	roles, err = svc.LocalRoles(ctx, domain.PartyIdentity{CountryCode: "NL", PartyID: "VGM", Role: domain.RoleEMSP})
	require.NoError(t, err)
	assert.Equal(t, "Voltgrid MSP", roles[0].BusinessDetails.Name)
}

func TestStatusChangeValidation(t *testing.T) {
	router, _ := newTenantRouter(t)

	assert.Equal(t, http.StatusBadRequest, do(router, http.MethodPost, "/admin/tenants/NLD/VGR/CPO/deactivate").Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodPost, "/admin/tenants/DE/XYZ/CPO/deactivate").Code)
}
