package wire

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "voltgrid/pkg/domain-errors"
)

func TestWriteErrorMapsHandshakeFailures(t *testing.T) {
	cases := []struct {
		code       dErrors.Code
		httpStatus int
		ocpiStatus int
	}{
		{dErrors.CodeAlreadyRegistered, http.StatusConflict, StatusInvalidParameters},
		{dErrors.CodeNoCommonVersion, http.StatusUnprocessableEntity, StatusUnsupportedVersion},
		{dErrors.CodeNetwork, http.StatusBadGateway, StatusUnableToUseClientAPI},
		{dErrors.CodeConcurrentModification, http.StatusConflict, StatusServerError},
		{dErrors.CodeInvalidToken, http.StatusUnauthorized, StatusInvalidParameters},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, dErrors.New(tc.code, "detail"))

			assert.Equal(t, tc.httpStatus, rr.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.EqualValues(t, tc.ocpiStatus, body["status_code"])
			assert.True(t, strings.HasPrefix(body["status_message"].(string), string(tc.code)))
			assert.NotContains(t, body, "data")
		})
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, dErrors.Wrap(errors.New("pq: relation missing"), dErrors.CodeInternal, "load record"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "relation")
}

func TestDecode(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteData(rr, http.StatusOK, []string{"2.2"}, time.Now())

	data, err := Decode[[]string](rr.Body)
	require.NoError(t, err)
	assert.Equal(t, []string{"2.2"}, data)

	_, err = Decode[[]string](strings.NewReader(`{"status_code":3002,"status_message":"unsupported"}`))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StatusUnsupportedVersion, se.StatusCode)

	_, err = Decode[[]string](strings.NewReader(`<html>`))
	assert.Error(t, err)
}
