package auth

import (
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
	"voltgrid/pkg/platform/httputil"
	"voltgrid/pkg/requestcontext"
)

func TestParseAuthorization(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("token-c"))

	t.Run("2.2 decodes base64", func(t *testing.T) {
		got, ok := ParseAuthorization("Token "+encoded, domain.Version22)
		require.True(t, ok)
		assert.Equal(t, "token-c", got)
	})

	t.Run("2.1.1 keeps raw value", func(t *testing.T) {
		got, ok := ParseAuthorization("Token "+encoded, domain.Version211)
		require.True(t, ok)
		assert.Equal(t, encoded, got)
	})

	t.Run("2.2 falls back to raw value", func(t *testing.T) {
		got, ok := ParseAuthorization("Token not*base64", domain.Version22)
		require.True(t, ok)
		assert.Equal(t, "not*base64", got)
	})

	t.Run("rejects other schemes", func(t *testing.T) {
		_, ok := ParseAuthorization("Bearer abc", domain.Version22)
		assert.False(t, ok)
		_, ok = ParseAuthorization("Token ", domain.Version22)
		assert.False(t, ok)
	})

	t.Run("format round trip", func(t *testing.T) {
		for _, v := range []domain.VersionNumber{domain.Version211, domain.Version22} {
			got, ok := ParseAuthorization(FormatAuthorization("abc-123", v), v)
			require.True(t, ok)
			assert.Equal(t, "abc-123", got)
		}
	})
}

func TestRequireToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var seen string
	h := RequireToken(logger, httputil.WriteError)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.PresentedToken(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), string(dErrors.CodeInvalidToken))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Token abc")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "abc", seen)
}
