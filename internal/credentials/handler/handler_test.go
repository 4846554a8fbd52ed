package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"voltgrid/internal/credentials/handler/mocks"
	credmodels "voltgrid/internal/credentials/models"
	hsservice "voltgrid/internal/handshake/service"
	"voltgrid/internal/ocpi/wire"
	"voltgrid/internal/platform/logger"
	regmodels "voltgrid/internal/registration/models"
	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
	"voltgrid/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl   *gomock.Controller
	svc    *mocks.MockService
	router http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.svc = mocks.NewMockService(s.ctrl)
	r := chi.NewRouter()
	New(s.svc, []domain.VersionNumber{domain.Version22, domain.Version211}, logger.Discard()).Register(r)
	s.router = r
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) offered() credmodels.Credentials {
	return credmodels.Credentials{
		Token: "token-b",
		URL:   "https://b.example/versions",
		Roles: []credmodels.CredentialsRole{{
			Role: domain.RoleEMSP, CountryCode: "US", PartyID: "MSP",
			BusinessDetails: credmodels.BusinessDetails{Name: "B"},
		}},
	}
}

func (s *HandlerSuite) record() *regmodels.Record {
	return &regmodels.Record{
		Status: regmodels.StatusRegistered,
		LocalCredentials: credmodels.Credentials{
			Token: "token-c",
			URL:   "https://a.example/ocpi/versions",
			Roles: []credmodels.CredentialsRole{{
				Role: domain.RoleCPO, CountryCode: "US", PartyID: "CPO",
				BusinessDetails: credmodels.BusinessDetails{Name: "A"},
			}},
		},
	}
}

func (s *HandlerSuite) send(method, path, token string, body any) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	if token != "" {
		testutil.WithOCPIToken(req, token, domain.Version22)
	}
	return testutil.DoRequest(s.router, req)
}

// =============================================================================
// POST / PUT
// =============================================================================

func (s *HandlerSuite) TestPostRegistersAndReturnsOurCredentials() {
	s.svc.EXPECT().
		Register(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, req hsservice.RegisterRequest) (*hsservice.Result, error) {
			s.False(req.Update)
			s.Equal("token-a", req.PresentedToken)
			s.Equal("token-b", req.Offered.Token)
			return &hsservice.Result{Record: s.record()}, nil
		})

	rr := s.send(http.MethodPost, "/ocpi/2.2/credentials", "token-a", s.offered())

	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[wire.Response[credmodels.Credentials]](s.T(), rr)
	s.Equal(wire.StatusSuccess, resp.StatusCode)
	s.Equal("token-c", resp.Data.Token)
	s.Require().Len(resp.Data.Roles, 1)
	s.Equal("CPO", resp.Data.Roles[0].PartyID)
}

func (s *HandlerSuite) TestPutIsAnUpdate() {
	s.svc.EXPECT().
		Register(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, req hsservice.RegisterRequest) (*hsservice.Result, error) {
			s.True(req.Update)
			return &hsservice.Result{Record: s.record(), Rotation: true}, nil
		})

	rr := s.send(http.MethodPut, "/ocpi/2.2/credentials", "token-c", s.offered())
	testutil.AssertStatusOK(s.T(), rr)
}

func (s *HandlerSuite) TestLegacyVersionGetsFlatBody() {
	s.svc.EXPECT().Register(gomock.Any(), gomock.Any()).Return(&hsservice.Result{Record: s.record()}, nil)

	rr := s.send(http.MethodPost, "/ocpi/2.1.1/credentials", "token-a", s.offered())

	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[wire.Response[map[string]any]](s.T(), rr)
	s.Equal("CPO", resp.Data["party_id"])
	s.Equal("US", resp.Data["country_code"])
	s.NotContains(resp.Data, "roles")
}

func (s *HandlerSuite) TestAlreadyRegisteredIsConflict() {
	s.svc.EXPECT().Register(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeAlreadyRegistered, "party already registered"))

	rr := s.send(http.MethodPost, "/ocpi/2.2/credentials", "token-x", s.offered())

	testutil.AssertStatus(s.T(), rr, http.StatusConflict)
	resp := testutil.UnmarshalResponse[wire.Response[any]](s.T(), rr)
	s.Equal(wire.StatusInvalidParameters, resp.StatusCode)
	s.Contains(resp.StatusMessage, string(dErrors.CodeAlreadyRegistered))
}

func (s *HandlerSuite) TestFailureMapping() {
	cases := []struct {
		code   dErrors.Code
		status int
	}{
		{dErrors.CodeNoCommonVersion, http.StatusUnprocessableEntity},
		{dErrors.CodeNetwork, http.StatusBadGateway},
		{dErrors.CodeConcurrentModification, http.StatusConflict},
		{dErrors.CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		s.Run(string(tc.code), func() {
			s.svc.EXPECT().Register(gomock.Any(), gomock.Any()).Return(nil, dErrors.New(tc.code, "boom"))
			rr := s.send(http.MethodPost, "/ocpi/2.2/credentials", "token-a", s.offered())
			testutil.AssertStatus(s.T(), rr, tc.status)
		})
	}
}

func (s *HandlerSuite) TestMalformedBodyNeverReachesService() {
	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/ocpi/2.2/credentials", "{not json")
	req.Header.Set("Authorization", "Token token-a")
	rr := testutil.DoRequest(s.router, req)

	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

// =============================================================================
// GET / DELETE
// =============================================================================

func (s *HandlerSuite) TestGetReturnsCredentialsForToken() {
	s.svc.EXPECT().Lookup(gomock.Any(), "token-b").Return(s.record(), nil)

	rr := s.send(http.MethodGet, "/ocpi/2.2/credentials", "token-b", nil)

	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[wire.Response[credmodels.Credentials]](s.T(), rr)
	s.Equal("token-c", resp.Data.Token)
}

func (s *HandlerSuite) TestGetWithUnknownToken() {
	s.svc.EXPECT().Lookup(gomock.Any(), "nope").Return(nil, dErrors.New(dErrors.CodeInvalidToken, "unknown token"))

	rr := s.send(http.MethodGet, "/ocpi/2.2/credentials", "nope", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func (s *HandlerSuite) TestDeleteDeregisters() {
	s.svc.EXPECT().Deregister(gomock.Any(), "token-b").Return(s.record(), nil)

	rr := s.send(http.MethodDelete, "/ocpi/2.2/credentials", "token-b", nil)

	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[wire.Response[any]](s.T(), rr)
	s.Equal(wire.StatusSuccess, resp.StatusCode)
	s.Nil(resp.Data)
}

// =============================================================================
// Routing
// =============================================================================

// Justification: the token check runs before any service call.
func (s *HandlerSuite) TestMissingTokenIsRejected() {
	rr := s.send(http.MethodGet, "/ocpi/2.2/credentials", "", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func (s *HandlerSuite) TestUnservedVersionIsRejected() {
	rr := s.send(http.MethodGet, "/ocpi/2.0/credentials", "token-b", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
}
