// Package requestcontext carries request-scoped values from middleware to
// services without importing net/http.
package requestcontext

import (
	"context"
	"time"

	"voltgrid/pkg/domain"
)

type (
	presentedTokenKey struct{}
	ocpiVersionKey    struct{}
	requestIDKey      struct{}
	requestTimeKey    struct{}
)

func value[T any](ctx context.Context, key any) T {
	v, _ := ctx.Value(key).(T)
	return v
}

// PresentedToken is the counterparty's credentials token, already decoded
// from the Authorization header.
func PresentedToken(ctx context.Context) string {
	return value[string](ctx, presentedTokenKey{})
}

func WithPresentedToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, presentedTokenKey{}, token)
}

// OCPIVersion is the protocol version in the route being served, or empty
// outside versioned routes.
func OCPIVersion(ctx context.Context) domain.VersionNumber {
	return value[domain.VersionNumber](ctx, ocpiVersionKey{})
}

func WithOCPIVersion(ctx context.Context, v domain.VersionNumber) context.Context {
	return context.WithValue(ctx, ocpiVersionKey{}, v)
}

func RequestID(ctx context.Context) string {
	return value[string](ctx, requestIDKey{})
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// Now is the instant pinned by the requesttime middleware. Relays and
// consumers run outside a request and get the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
