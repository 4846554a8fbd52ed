package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"voltgrid/internal/partners/models"
	vermodels "voltgrid/internal/versions/models"
	"voltgrid/pkg/domain"
	"voltgrid/pkg/platform/httputil"
	"voltgrid/pkg/requestcontext"
)

type Service interface {
	List(ctx context.Context, module vermodels.ModuleID) ([]*models.Partner, error)
	Get(ctx context.Context, identity domain.PartyIdentity) (*models.Partner, error)
}

// Handler serves the partner directory to operators and internal modules.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the partner routes. Callers apply the admin middleware.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/partners", h.handleList)
	r.Get("/admin/partners/{country}/{party}/{role}", h.handleGet)
}

type partnerResponse struct {
	CountryCode    string                         `json:"country_code"`
	PartyID        string                         `json:"party_id"`
	Role           string                         `json:"role"`
	Status         string                         `json:"status"`
	Version        string                         `json:"version,omitempty"`
	Endpoints      []vermodels.EndpointCapability `json:"endpoints"`
	TokenRotations int                            `json:"token_rotations"`
	RegisteredAt   time.Time                      `json:"registered_at"`
	UpdatedAt      time.Time                      `json:"updated_at"`
}

func toResponse(p *models.Partner) partnerResponse {
	eps := p.Endpoints
	if eps == nil {
		eps = []vermodels.EndpointCapability{}
	}
	return partnerResponse{
		CountryCode:    p.Identity.CountryCode,
		PartyID:        p.Identity.PartyID,
		Role:           string(p.Identity.Role),
		Status:         string(p.Status),
		Version:        p.Version.String(),
		Endpoints:      eps,
		TokenRotations: p.TokenRotations,
		RegisteredAt:   p.RegisteredAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	partners, err := h.svc.List(ctx, vermodels.ModuleID(r.URL.Query().Get("module")))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list partners",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	out := make([]partnerResponse, 0, len(partners))
	for _, p := range partners {
		out = append(out, toResponse(p))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"partners": out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	identity, err := httputil.PartyFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.svc.Get(r.Context(), identity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(p))
}
