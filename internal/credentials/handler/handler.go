// Package handler serves the OCPI credentials module:
// GET, POST, PUT and DELETE on /ocpi/{version}/credentials.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	credmodels "voltgrid/internal/credentials/models"
	hsservice "voltgrid/internal/handshake/service"
	"voltgrid/internal/ocpi/wire"
	regmodels "voltgrid/internal/registration/models"
	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
	"voltgrid/pkg/platform/httputil"
	"voltgrid/pkg/platform/middleware/auth"
	"voltgrid/pkg/platform/middleware/version"
	"voltgrid/pkg/requestcontext"
)

// Service is the handshake surface the credentials module needs.
type Service interface {
	Register(ctx context.Context, req hsservice.RegisterRequest) (*hsservice.Result, error)
	Lookup(ctx context.Context, token string) (*regmodels.Record, error)
	Deregister(ctx context.Context, token string) (*regmodels.Record, error)
}

type Handler struct {
	svc    Service
	served []domain.VersionNumber
	logger *slog.Logger
}

func New(svc Service, served []domain.VersionNumber, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, served: served, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/ocpi/{version}/credentials", func(r chi.Router) {
		r.Use(version.ExtractVersion("version", h.served, wire.WriteError))
		r.Use(auth.RequireToken(h.logger, wire.WriteError))
		r.Get("/", h.handleGet)
		r.Post("/", h.handleRegister(false))
		r.Put("/", h.handleRegister(true))
		r.Delete("/", h.handleDelete)
	})
}

// handleGet returns the credentials we issued to the caller.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := h.svc.Lookup(ctx, requestcontext.PresentedToken(ctx))
	if err != nil {
		h.writeError(ctx, w, "credentials lookup failed", err)
		return
	}
	wire.WriteData(w, http.StatusOK, rec.LocalCredentials.ForVersion(requestcontext.OCPIVersion(ctx)), requestcontext.Now(ctx))
}

func (h *Handler) handleRegister(update bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var offered credmodels.Credentials
		if err := httputil.DecodeJSON(r, &offered); err != nil {
			wire.WriteError(w, err)
			return
		}
		res, err := h.svc.Register(ctx, hsservice.RegisterRequest{
			Offered:        offered,
			PresentedToken: requestcontext.PresentedToken(ctx),
			Update:         update,
		})
		if err != nil {
			h.writeError(ctx, w, "credentials registration failed", err)
			return
		}
		wire.WriteData(w, http.StatusOK, res.Record.LocalCredentials.ForVersion(requestcontext.OCPIVersion(ctx)), requestcontext.Now(ctx))
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := h.svc.Deregister(ctx, requestcontext.PresentedToken(ctx)); err != nil {
		h.writeError(ctx, w, "credentials deregistration failed", err)
		return
	}
	wire.WriteData[any](w, http.StatusOK, nil, requestcontext.Now(ctx))
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"code", dErrors.CodeOf(err),
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	wire.WriteError(w, err)
}
