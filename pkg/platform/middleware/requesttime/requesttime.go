// Package requesttime pins one "now" per request, so a registration's
// LastUpdated and the event it publishes carry the same instant.
package requesttime

import (
	"net/http"
	"time"

	"voltgrid/pkg/requestcontext"
)

// Middleware stores clock() in UTC on the request context.
func Middleware(clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), clock().UTC())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
