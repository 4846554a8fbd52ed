package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"voltgrid/internal/ocpi/wire"
	"voltgrid/internal/versions/models"
	"voltgrid/pkg/platform/middleware/auth"
	"voltgrid/pkg/platform/middleware/version"
	"voltgrid/pkg/requestcontext"
)

// Handler serves the local platform's version list and per-version endpoint
// details to counterparties during discovery.
type Handler struct {
	platform *models.Platform
	logger   *slog.Logger
}

func New(platform *models.Platform, logger *slog.Logger) *Handler {
	return &Handler{platform: platform, logger: logger}
}

// Register mounts GET /ocpi/versions and GET /ocpi/{version}.
// Any presented token is accepted: discovery precedes registration.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireToken(h.logger, wire.WriteError))
		r.Get("/ocpi/versions", h.handleListVersions)
		r.With(version.ExtractVersion("version", h.platform.VersionNumbers(), wire.WriteError)).
			Get("/ocpi/{version}", h.handleVersionDetails)
	})
}

func (h *Handler) handleListVersions(w http.ResponseWriter, r *http.Request) {
	wire.WriteData(w, http.StatusOK, h.platform.Versions(), requestcontext.Now(r.Context()))
}

func (h *Handler) handleVersionDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	details, ok := h.platform.Details(requestcontext.OCPIVersion(ctx))
	if !ok {
		// ExtractVersion only admits served versions.
		h.logger.ErrorContext(ctx, "served version without details",
			"request_id", requestcontext.RequestID(ctx),
			"version", requestcontext.OCPIVersion(ctx),
		)
		http.NotFound(w, r)
		return
	}
	wire.WriteData(w, http.StatusOK, details, requestcontext.Now(ctx))
}
