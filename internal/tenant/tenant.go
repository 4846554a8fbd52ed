// Package tenant is the directory of local parties this platform speaks for.
package tenant

import (
	"context"
	"fmt"
	"log/slog"

	"voltgrid/internal/platform/config"
	"voltgrid/internal/tenant/handler"
	"voltgrid/internal/tenant/service"
	"voltgrid/internal/tenant/store"
)

type (
	Service = service.Service
	Handler = handler.Handler
)

// NewDirectory builds an in-memory directory holding the tenants of the
// party file. Handshakes for any other local identity are refused.
func NewDirectory(ctx context.Context, seeds []config.TenantSpec, opts ...service.Option) (*Service, error) {
	svc := service.New(store.NewInMemory(), opts...)
	if err := svc.Seed(ctx, seeds); err != nil {
		return nil, fmt.Errorf("seed tenants: %w", err)
	}
	return svc, nil
}

// NewHandler exposes the directory on the admin API.
func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}
