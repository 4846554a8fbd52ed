// Package version provides middleware for OCPI version extraction from the route.
package version

import (
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
	"voltgrid/pkg/requestcontext"
)

// ErrorWriter renders a version failure in the caller's wire format.
type ErrorWriter func(w http.ResponseWriter, err error)

// ExtractVersion reads the {version} path parameter, rejects versions the
// platform does not serve, and sets the version in the context.
//
// Usage:
//
//	r.Route("/ocpi/{version}", func(r chi.Router) {
//	    r.Use(version.ExtractVersion("version", served, wire.WriteError))
//	    // ... routes
//	})
func ExtractVersion(param string, served []domain.VersionNumber, writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v, err := domain.ParseVersionNumber(chi.URLParam(r, param))
			if err != nil {
				writeError(w, dErrors.New(dErrors.CodeNotFound, "unknown OCPI version"))
				return
			}
			idx := slices.IndexFunc(served, func(s domain.VersionNumber) bool { return s.Compare(v) == 0 })
			if idx < 0 {
				writeError(w, dErrors.New(dErrors.CodeNotFound, "OCPI version not served"))
				return
			}
			ctx := requestcontext.WithOCPIVersion(r.Context(), served[idx])
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
