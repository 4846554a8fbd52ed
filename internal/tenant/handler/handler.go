package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"voltgrid/internal/tenant/models"
	"voltgrid/pkg/domain"
	"voltgrid/pkg/platform/httputil"
	"voltgrid/pkg/requestcontext"
)

type Service interface {
	List(ctx context.Context) ([]*models.Tenant, error)
	DeactivateTenant(ctx context.Context, identity domain.PartyIdentity) (*models.Tenant, error)
	ReactivateTenant(ctx context.Context, identity domain.PartyIdentity) (*models.Tenant, error)
}

// Handler serves the admin view of local parties.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the tenant routes. Callers apply the admin middleware.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/tenants", h.handleList)
	r.Post("/admin/tenants/{country}/{party}/{role}/deactivate", h.handleDeactivate)
	r.Post("/admin/tenants/{country}/{party}/{role}/reactivate", h.handleReactivate)
}

type tenantResponse struct {
	ID          string    `json:"id"`
	CountryCode string    `json:"country_code"`
	PartyID     string    `json:"party_id"`
	Role        string    `json:"role"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toResponse(t *models.Tenant) tenantResponse {
	return tenantResponse{
		ID:          t.ID.String(),
		CountryCode: t.Identity.CountryCode,
		PartyID:     t.Identity.PartyID,
		Role:        string(t.Identity.Role),
		Name:        t.BusinessDetails.Name,
		Status:      string(t.Status),
		UpdatedAt:   t.UpdatedAt,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.svc.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list tenants",
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, err)
		return
	}
	out := make([]tenantResponse, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, toResponse(t))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"tenants": out})
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.svc.DeactivateTenant)
}

func (h *Handler) handleReactivate(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.svc.ReactivateTenant)
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request, op func(context.Context, domain.PartyIdentity) (*models.Tenant, error)) {
	ctx := r.Context()
	identity, err := httputil.PartyFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	t, err := op(ctx, identity)
	if err != nil {
		h.logger.WarnContext(ctx, "tenant status change failed",
			"identity", identity.Key(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(t))
}
