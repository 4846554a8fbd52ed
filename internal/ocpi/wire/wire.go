// Package wire implements the OCPI response envelope shared by every module.
package wire

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	dErrors "voltgrid/pkg/domain-errors"
	"voltgrid/pkg/platform/httputil"
)

// OCPI status codes carried in the envelope, independent of the HTTP status.
const (
	StatusSuccess              = 1000
	StatusClientError          = 2000
	StatusInvalidParameters    = 2001
	StatusNotEnoughInformation = 2002
	StatusServerError          = 3000
	StatusUnableToUseClientAPI = 3001
	StatusUnsupportedVersion   = 3002
	StatusNoMatchingEndpoints  = 3003
)

// Response is the envelope every OCPI endpoint returns.
type Response[T any] struct {
	Data          T         `json:"data,omitempty"`
	StatusCode    int       `json:"status_code"`
	StatusMessage string    `json:"status_message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// WriteData writes a success envelope.
func WriteData[T any](w http.ResponseWriter, httpStatus int, data T, now time.Time) {
	httputil.WriteJSON(w, httpStatus, Response[T]{
		Data:       data,
		StatusCode: StatusSuccess,
		Timestamp:  now.UTC(),
	})
}

// WriteError writes a failure envelope. The HTTP status follows the domain
// code mapping; server-side failures carry no message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := Response[any]{
		StatusCode: StatusCodeFor(code),
		Timestamp:  time.Now().UTC(),
	}
	if httputil.ExposesDescription(code) {
		resp.StatusMessage = string(code) + ": " + dErrors.MessageOf(err)
	} else {
		resp.StatusMessage = string(code)
	}
	httputil.WriteJSON(w, httputil.StatusFor(code), resp)
}

// StatusCodeFor maps a domain code to the OCPI envelope status code.
func StatusCodeFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNoCommonVersion:
		return StatusUnsupportedVersion
	case dErrors.CodeNegotiationFailed:
		return StatusNoMatchingEndpoints
	case dErrors.CodeNetwork:
		return StatusUnableToUseClientAPI
	case dErrors.CodeAlreadyRegistered, dErrors.CodeInvalidToken, dErrors.CodeUnauthorized,
		dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvariantViolation:
		return StatusInvalidParameters
	case dErrors.CodeForbidden, dErrors.CodeNotFound, dErrors.CodeConflict, dErrors.CodeRateLimited:
		return StatusClientError
	default:
		return StatusServerError
	}
}

// StatusError is a non-success envelope received from a counterparty.
type StatusError struct {
	StatusCode    int
	StatusMessage string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ocpi status %d: %s", e.StatusCode, e.StatusMessage)
}

// Decode reads an envelope and returns its data, or *StatusError when the
// counterparty reported a non-1xxx status.
func Decode[T any](r io.Reader) (T, error) {
	var resp Response[T]
	var zero T
	if err := json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(&resp); err != nil {
		return zero, fmt.Errorf("decode ocpi envelope: %w", err)
	}
	if resp.StatusCode < 1000 || resp.StatusCode >= 2000 {
		return zero, &StatusError{StatusCode: resp.StatusCode, StatusMessage: resp.StatusMessage}
	}
	return resp.Data, nil
}
