package partners

import (
	"log/slog"

	"voltgrid/internal/partners/handler"
	"voltgrid/internal/partners/service"
)

// Directory is the read model of registered counterparts.
type Directory = service.Directory

type Handler = handler.Handler

func NewDirectory(store service.Store, opts ...service.Option) *Directory {
	return service.New(store, opts...)
}

func NewHandler(d *Directory, logger *slog.Logger) *Handler {
	return handler.New(d, logger)
}
