// Package auth extracts the OCPI credentials token from the Authorization header.
package auth

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
	"unicode"

	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
	"voltgrid/pkg/requestcontext"
)

// ErrorWriter renders an authentication failure in the caller's wire format.
type ErrorWriter func(w http.ResponseWriter, err error)

const tokenPrefix = "Token "

// ParseAuthorization returns the credentials token carried by an
// "Authorization: Token <value>" header. From OCPI 2.2 on the value is
// base64 encoded; older peers send it raw, so a value that does not decode to
// printable text is taken as is.
func ParseAuthorization(header string, version domain.VersionNumber) (string, bool) {
	value, ok := strings.CutPrefix(header, tokenPrefix)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	if version.IsNil() || !version.IsAtLeast(domain.Version22) {
		return value, true
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil && printable(decoded) {
		return string(decoded), true
	}
	return value, true
}

// FormatAuthorization is the inverse of ParseAuthorization for outbound calls.
func FormatAuthorization(token string, version domain.VersionNumber) string {
	if !version.IsNil() && version.IsAtLeast(domain.Version22) {
		return tokenPrefix + base64.StdEncoding.EncodeToString([]byte(token))
	}
	return tokenPrefix + token
}

func printable(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, r := range string(b) {
		if r == unicode.ReplacementChar || !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// RequireToken rejects requests without a credentials token and stores the
// token in the context for the credentials service to validate.
func RequireToken(logger *slog.Logger, writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := ParseAuthorization(r.Header.Get("Authorization"), requestcontext.OCPIVersion(ctx))
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeError(w, dErrors.New(dErrors.CodeInvalidToken, "missing or invalid Authorization header"))
				return
			}
			ctx = requestcontext.WithPresentedToken(ctx, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
