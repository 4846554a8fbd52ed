// Package httputil writes JSON responses and maps domain error codes to HTTP statuses.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
)

// maxBodyBytes bounds request bodies; credentials payloads are small.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a domain error as {"error","error_description"}.
// Descriptions of server-side failures are never exposed.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := errorResponse{Error: string(code)}
	if ExposesDescription(code) {
		resp.ErrorDescription = dErrors.MessageOf(err)
	}
	WriteJSON(w, StatusFor(code), resp)
}

// StatusFor maps a domain code to its HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeAlreadyRegistered, dErrors.CodeConcurrentModification, dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeNoCommonVersion, dErrors.CodeNegotiationFailed:
		return http.StatusUnprocessableEntity
	case dErrors.CodeNetwork:
		return http.StatusBadGateway
	case dErrors.CodeInvalidToken, dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ExposesDescription reports whether a code's message is safe to show the caller.
func ExposesDescription(code dErrors.Code) bool {
	switch code {
	case dErrors.CodeInternal, dErrors.CodeTimeout:
		return false
	default:
		return true
	}
}

// DecodeJSON decodes a bounded JSON body into dst.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return dErrors.New(dErrors.CodeBadRequest, "request body required")
		}
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}

// PartyFromPath reads the {country}/{party}/{role} route parameters.
func PartyFromPath(r *http.Request) (domain.PartyIdentity, error) {
	return domain.ParsePartyIdentity(chi.URLParam(r, "country"), chi.URLParam(r, "party"), chi.URLParam(r, "role"))
}
