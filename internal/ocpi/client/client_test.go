package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	credmodels "voltgrid/internal/credentials/models"
	"voltgrid/internal/ocpi/wire"
	vermodels "voltgrid/internal/versions/models"
	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
)

// spanRecorder notes every span started through it.
type spanRecorder struct {
	noop.Tracer
	mu    sync.Mutex
	names []string
	attrs [][]attribute.KeyValue
}

func (r *spanRecorder) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	r.mu.Lock()
	r.names = append(r.names, name)
	r.attrs = append(r.attrs, cfg.Attributes())
	r.mu.Unlock()
	return r.Tracer.Start(ctx, name, opts...)
}

type ClientSuite struct {
	suite.Suite
	calls   atomic.Int32
	handler http.HandlerFunc
	server  *httptest.Server
	client  *Client
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) SetupTest() {
	s.calls.Store(0)
	s.handler = nil
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		s.handler(w, r)
	}))
	s.client = New(500*time.Millisecond, WithGetRetry(3, time.Millisecond))
}

func (s *ClientSuite) TearDownTest() {
	s.server.Close()
}

func (s *ClientSuite) TestFetchVersionsSendsEncodedToken() {
	var authHeader string
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		wire.WriteData(w, http.StatusOK, []vermodels.VersionInfo{{Version: "2.2", URL: "https://b.example/2.2"}}, time.Now())
	}

	got, err := s.client.FetchVersions(context.Background(), s.server.URL, "token-a")

	s.Require().NoError(err)
	s.Equal([]vermodels.VersionInfo{{Version: "2.2", URL: "https://b.example/2.2"}}, got)
	s.Equal("Token "+base64.StdEncoding.EncodeToString([]byte("token-a")), authHeader)
}

func (s *ClientSuite) TestFetchVersionsFallsBackToRawToken() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token token-a" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		wire.WriteData(w, http.StatusOK, []vermodels.VersionInfo{{Version: "2.1.1", URL: "https://b.example/2.1.1"}}, time.Now())
	}

	got, err := s.client.FetchVersions(context.Background(), s.server.URL, "token-a")

	s.Require().NoError(err)
	s.Len(got, 1)
	s.Equal(int32(2), s.calls.Load())
}

func (s *ClientSuite) TestGetRetriesServerErrors() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		if s.calls.Load() < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		wire.WriteData(w, http.StatusOK, vermodels.VersionDetails{Version: "2.2"}, time.Now())
	}

	got, err := s.client.FetchVersionDetails(context.Background(), s.server.URL, "t", domain.Version22)

	s.Require().NoError(err)
	s.Equal(domain.VersionNumber("2.2"), got.Version)
	s.Equal(int32(3), s.calls.Load())
}

func (s *ClientSuite) TestGetGivesUpAfterMaxTries() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}

	_, err := s.client.FetchVersionDetails(context.Background(), s.server.URL, "t", domain.Version22)

	s.True(dErrors.HasCode(err, dErrors.CodeNetwork))
	s.Equal(int32(3), s.calls.Load())
}

func (s *ClientSuite) TestClientErrorsAreNotRetried() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}

	_, err := s.client.FetchVersionDetails(context.Background(), s.server.URL, "t", domain.Version22)

	s.True(dErrors.HasCode(err, dErrors.CodeNetwork))
	s.Equal(int32(1), s.calls.Load())
}

func (s *ClientSuite) TestTimeoutIsNetworkError() {
	s.client = New(20*time.Millisecond, WithGetRetry(1, time.Millisecond))
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(200 * time.Millisecond):
		}
	}

	_, err := s.client.FetchVersions(context.Background(), s.server.URL, "t")

	s.True(dErrors.HasCode(err, dErrors.CodeNetwork))
}

func (s *ClientSuite) TestEnvelopeStatusIsMapped() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status_code":    wire.StatusUnsupportedVersion,
			"status_message": "unsupported version",
			"timestamp":      time.Now().UTC(),
		})
	}

	_, err := s.client.FetchVersionDetails(context.Background(), s.server.URL, "t", domain.Version22)

	s.True(dErrors.HasCode(err, dErrors.CodeNoCommonVersion))
	s.Equal(int32(1), s.calls.Load())
}

func (s *ClientSuite) TestPostCredentialsIsNeverRetried() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	_, err := s.client.PostCredentials(context.Background(), s.server.URL, "t", domain.Version22, credmodels.Credentials{Token: "mine"})

	s.True(dErrors.HasCode(err, dErrors.CodeNetwork))
	s.Equal(int32(1), s.calls.Load())
}

func (s *ClientSuite) TestPutCredentialsRoundTrip() {
	var received credmodels.Credentials
	var method string
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		s.NoError(json.NewDecoder(r.Body).Decode(&received))
		wire.WriteData(w, http.StatusOK, credmodels.Credentials{
			Token: "theirs",
			URL:   "https://b.example/versions",
			Roles: []credmodels.CredentialsRole{{Role: domain.RoleEMSP, PartyID: "MSP", CountryCode: "US"}},
		}, time.Now())
	}

	got, err := s.client.PutCredentials(context.Background(), s.server.URL, "current", domain.Version22, credmodels.Credentials{
		Token: "mine",
		URL:   "https://a.example/ocpi/versions",
		Roles: []credmodels.CredentialsRole{{Role: domain.RoleCPO, PartyID: "CPO", CountryCode: "US"}},
	})

	s.Require().NoError(err)
	s.Equal(http.MethodPut, method)
	s.Equal("mine", received.Token)
	s.Equal("theirs", got.Token)
}

func (s *ClientSuite) TestRejectedTokenIsInvalidToken() {
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}

	_, err := s.client.PostCredentials(context.Background(), s.server.URL, "t", domain.Version211, credmodels.Credentials{Token: "mine"})

	s.True(dErrors.HasCode(err, dErrors.CodeInvalidToken))
}

func (s *ClientSuite) TestEveryAttemptOpensClientSpan() {
	tracer := &spanRecorder{}
	s.client = New(500*time.Millisecond, WithGetRetry(3, time.Millisecond), WithTracer(tracer))
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		if s.calls.Load() < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		wire.WriteData(w, http.StatusOK, vermodels.VersionDetails{Version: "2.2"}, time.Now())
	}

	_, err := s.client.FetchVersionDetails(context.Background(), s.server.URL, "t", domain.Version22)

	s.Require().NoError(err)
	s.Equal([]string{"ocpi.client GET", "ocpi.client GET"}, tracer.names)
	s.Contains(tracer.attrs[0], attribute.String("url.full", s.server.URL))
	s.Contains(tracer.attrs[0], attribute.String("http.request.method", http.MethodGet))
}
