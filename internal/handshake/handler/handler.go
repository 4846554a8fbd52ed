package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	hsservice "voltgrid/internal/handshake/service"
	regmodels "voltgrid/internal/registration/models"
	vermodels "voltgrid/internal/versions/models"
	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
	"voltgrid/pkg/platform/httputil"
	"voltgrid/pkg/requestcontext"
)

type Service interface {
	Initiate(ctx context.Context, req hsservice.InitiateRequest) (*hsservice.Result, error)
	Registration(ctx context.Context, identity domain.PartyIdentity) (*regmodels.Record, error)
	Registrations(ctx context.Context, module vermodels.ModuleID) ([]*regmodels.Record, error)
	History(ctx context.Context, identity domain.PartyIdentity) ([]*regmodels.Record, error)
}

// Handler serves the operator view of counterpart registrations.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the registration routes. Callers apply the admin middleware.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/registrations", h.handleInitiate)
	r.Get("/admin/registrations", h.handleList)
	r.Get("/admin/registrations/{country}/{party}/{role}", h.handleGet)
	r.Get("/admin/registrations/{country}/{party}/{role}/history", h.handleHistory)
}

type initiateRequest struct {
	CountryCode string `json:"country_code"`
	PartyID     string `json:"party_id"`
	Role        string `json:"role"`
	VersionsURL string `json:"versions_url"`
	Token       string `json:"token"`
	// Local picks which hosted party registers; empty offers all of them.
	Local *partyRequest `json:"local,omitempty"`
}

type partyRequest struct {
	CountryCode string `json:"country_code"`
	PartyID     string `json:"party_id"`
	Role        string `json:"role"`
}

func (r initiateRequest) toService() (hsservice.InitiateRequest, error) {
	identity, err := domain.ParsePartyIdentity(r.CountryCode, r.PartyID, r.Role)
	if err != nil {
		return hsservice.InitiateRequest{}, err
	}
	out := hsservice.InitiateRequest{Identity: identity, VersionsURL: r.VersionsURL, Token: r.Token}
	if r.Local != nil {
		local, err := domain.ParsePartyIdentity(r.Local.CountryCode, r.Local.PartyID, r.Local.Role)
		if err != nil {
			return hsservice.InitiateRequest{}, err
		}
		out.LocalIdentity = local
	}
	return out, nil
}

type endpointResponse struct {
	Identifier string `json:"identifier"`
	Role       string `json:"role,omitempty"`
	URL        string `json:"url"`
}

type registrationResponse struct {
	ID          string             `json:"id"`
	CountryCode string             `json:"country_code"`
	PartyID     string             `json:"party_id"`
	Role        string             `json:"role"`
	Status      string             `json:"status"`
	Version     string             `json:"version,omitempty"`
	VersionsURL string             `json:"versions_url,omitempty"`
	Endpoints   []endpointResponse `json:"endpoints"`
	Rotated     bool               `json:"rotated,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	LastUpdated time.Time          `json:"last_updated"`
}

// toResponse never carries tokens.
func toResponse(rec *regmodels.Record) registrationResponse {
	eps := make([]endpointResponse, 0, len(rec.NegotiatedEndpoints))
	for _, ep := range rec.NegotiatedEndpoints {
		eps = append(eps, endpointResponse{Identifier: string(ep.Identifier), Role: string(ep.Role), URL: ep.URL})
	}
	return registrationResponse{
		ID:          rec.ID.String(),
		CountryCode: rec.Identity.CountryCode,
		PartyID:     rec.Identity.PartyID,
		Role:        string(rec.Identity.Role),
		Status:      string(rec.Status),
		Version:     rec.NegotiatedVersion.String(),
		VersionsURL: rec.RemoteCredentials.URL,
		Endpoints:   eps,
		CreatedAt:   rec.CreatedAt,
		LastUpdated: rec.LastUpdated,
	}
}

func toResponses(recs []*regmodels.Record) []registrationResponse {
	out := make([]registrationResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toResponse(rec))
	}
	return out
}

func (h *Handler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body initiateRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, err := body.toService()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.svc.Initiate(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "outbound registration failed",
			"identity", req.Identity.Key(),
			"code", dErrors.CodeOf(err),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Rotation {
		status = http.StatusOK
	}
	out := toResponse(res.Record)
	out.Rotated = res.Rotation
	httputil.WriteJSON(w, status, out)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recs, err := h.svc.Registrations(ctx, vermodels.ModuleID(r.URL.Query().Get("module")))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list registrations",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"registrations": toResponses(recs)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	identity, err := httputil.PartyFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.svc.Registration(r.Context(), identity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	identity, err := httputil.PartyFromPath(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	recs, err := h.svc.History(r.Context(), identity)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"history": toResponses(recs)})
}
