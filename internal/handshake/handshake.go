package handshake

import (
	"log/slog"

	credhandler "voltgrid/internal/credentials/handler"
	"voltgrid/internal/handshake/handler"
	"voltgrid/internal/handshake/service"
	"voltgrid/pkg/domain"
)

// Orchestrator drives credentials handshakes in both directions.
type Orchestrator = service.Orchestrator

// AdminHandler serves operator routes for registrations.
type AdminHandler = handler.Handler

// CredentialsHandler serves the OCPI credentials module.
type CredentialsHandler = credhandler.Handler

func NewOrchestrator(store service.RegistrationStore, exchanger service.Exchanger, publisher service.Publisher, opts ...service.Option) (*Orchestrator, error) {
	return service.New(store, exchanger, publisher, opts...)
}

func NewAdminHandler(o *Orchestrator, logger *slog.Logger) *AdminHandler {
	return handler.New(o, logger)
}

func NewCredentialsHandler(o *Orchestrator, served []domain.VersionNumber, logger *slog.Logger) *CredentialsHandler {
	return credhandler.New(o, served, logger)
}
