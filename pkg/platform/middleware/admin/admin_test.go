package admin

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voltgrid/pkg/secrets"
)

func serve(mw func(http.Handler) http.Handler, token string) int {
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/admin/partners", nil)
	if token != "" {
		req.Header.Set("X-Admin-Token", token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr.Code
}

func TestRequireAdminToken(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	mw := RequireAdminToken("secret-token", logger)

	assert.Equal(t, http.StatusUnauthorized, serve(mw, ""))
	assert.Equal(t, http.StatusUnauthorized, serve(mw, "wrong"))
	assert.Equal(t, http.StatusNoContent, serve(mw, "secret-token"))

	disabled := RequireAdminToken("", logger)
	assert.Equal(t, http.StatusUnauthorized, serve(disabled, ""))
}

func TestRequireAdminTokenHash(t *testing.T) {
	hash, err := secrets.Hash("secret-token")
	require.NoError(t, err)
	mw := RequireAdminTokenHash(hash, slog.New(slog.DiscardHandler))

	assert.Equal(t, http.StatusUnauthorized, serve(mw, ""))
	assert.Equal(t, http.StatusUnauthorized, serve(mw, "wrong"))
	assert.Equal(t, http.StatusNoContent, serve(mw, "secret-token"))
}
