package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	credmodels "voltgrid/internal/credentials/models"
	regmodels "voltgrid/internal/registration/models"
	vermodels "voltgrid/internal/versions/models"
	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
	"voltgrid/pkg/requestcontext"
	"voltgrid/pkg/secrets"
)

// Negotiator runs version and endpoint discovery against a counterparty.
type Negotiator interface {
	Discover(ctx context.Context, versionsURL, token string) (*vermodels.NegotiationResult, error)
}

// CredentialsClient sends our credentials to a counterparty. Calls are never retried.
type CredentialsClient interface {
	PostCredentials(ctx context.Context, credentialsURL, token string, version domain.VersionNumber, offered credmodels.Credentials) (*credmodels.Credentials, error)
	PutCredentials(ctx context.Context, credentialsURL, token string, version domain.VersionNumber, offered credmodels.Credentials) (*credmodels.Credentials, error)
}

// RoleDirectory resolves the local roles we present. A zero identity asks
// for every active local party.
type RoleDirectory interface {
	LocalRoles(ctx context.Context, only domain.PartyIdentity) ([]credmodels.CredentialsRole, error)
}

// Direction says which side started the handshake.
type Direction string

const (
	// DirectionInbound: the counterparty registers with us.
	DirectionInbound Direction = "inbound"
	// DirectionOutbound: we register with the counterparty.
	DirectionOutbound Direction = "outbound"
)

// ExchangeRequest is one token exchange.
type ExchangeRequest struct {
	// Identity is the counterparty.
	Identity  domain.PartyIdentity
	Direction Direction
	// Offered is the body the counterparty sent (inbound), or the
	// registration token and versions URL we were given for it (outbound).
	Offered credmodels.Credentials
	// PresentedToken is the bearer of an inbound call.
	PresentedToken string
	// Current is the stored record read before the exchange, nil if none.
	Current *regmodels.Record
	// LocalIdentity narrows the local roles to one tenant when set.
	LocalIdentity domain.PartyIdentity
	// OnNegotiated, if set, is called once version and endpoint discovery
	// succeeded and before any token is issued.
	OnNegotiated func(*vermodels.NegotiationResult)
}

func (r ExchangeRequest) negotiated(res *vermodels.NegotiationResult) {
	if r.OnNegotiated != nil {
		r.OnNegotiated(res)
	}
}

// ExchangeResult is what the caller commits.
type ExchangeResult struct {
	Local       credmodels.Credentials
	Remote      credmodels.Credentials
	Negotiation *vermodels.NegotiationResult
	// Rotation is true when an existing registration was renewed.
	Rotation bool
}

// Exchanger performs version discovery, endpoint discovery and the token
// exchange. It does not persist anything.
type Exchanger struct {
	negotiator  Negotiator
	client      CredentialsClient
	roles       RoleDirectory
	versionsURL string
	newToken    func() (string, error)
	logger      *slog.Logger
}

type Option func(*Exchanger)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Exchanger) {
		e.logger = logger
	}
}

// WithTokenGenerator replaces secrets.Generate.
func WithTokenGenerator(gen func() (string, error)) Option {
	return func(e *Exchanger) {
		e.newToken = gen
	}
}

// New builds an Exchanger. versionsURL is our own versions endpoint, sent to
// counterparties in every credentials object.
func New(negotiator Negotiator, client CredentialsClient, roles RoleDirectory, versionsURL string, opts ...Option) (*Exchanger, error) {
	if negotiator == nil {
		return nil, errors.New("negotiator is required")
	}
	if client == nil {
		return nil, errors.New("credentials client is required")
	}
	if roles == nil {
		return nil, errors.New("role directory is required")
	}
	if versionsURL == "" {
		return nil, errors.New("versions URL is required")
	}
	e := &Exchanger{
		negotiator:  negotiator,
		client:      client,
		roles:       roles,
		versionsURL: versionsURL,
		newToken:    secrets.Generate,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Exchange runs the three registration steps for req.
func (e *Exchanger) Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error) {
	if req.Identity.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "counterparty identity required")
	}
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNetwork, "handshake cancelled")
	}

	var (
		res *ExchangeResult
		err error
	)
	switch req.Direction {
	case DirectionInbound:
		res, err = e.inbound(ctx, req)
	case DirectionOutbound:
		res, err = e.outbound(ctx, req)
	default:
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown direction %q", req.Direction))
	}
	if err != nil {
		return nil, asDomain(err)
	}

	e.logger.InfoContext(ctx, "credentials exchanged",
		"identity", req.Identity.Key(),
		"direction", req.Direction,
		"rotation", res.Rotation,
		"version", res.Negotiation.Version,
		"request_id", requestcontext.RequestID(ctx),
	)
	return res, nil
}

func (e *Exchanger) inbound(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error) {
	offered := req.Offered
	if err := offered.Validate(); err != nil {
		return nil, err
	}
	if !offered.Represents(req.Identity) {
		return nil, dErrors.New(dErrors.CodeValidation, "credentials roles do not include the registering party")
	}

	rotation := req.Current.IsRegistered()
	if rotation {
		if !secrets.Equal(req.PresentedToken, req.Current.RemoteCredentials.Token) {
			e.logger.WarnContext(ctx, "re-registration with unknown token",
				"identity", req.Identity.Key(),
				"request_id", requestcontext.RequestID(ctx),
			)
			return nil, dErrors.New(dErrors.CodeAlreadyRegistered, "party is already registered")
		}
		if offered.Token == req.Current.RemoteCredentials.Token {
			return nil, dErrors.New(dErrors.CodeValidation, "re-registration must offer a new token")
		}
	}

	roles, err := e.roles.LocalRoles(ctx, req.LocalIdentity)
	if err != nil {
		return nil, err
	}

	negotiation, err := e.negotiator.Discover(ctx, offered.URL, offered.Token)
	if err != nil {
		return nil, err
	}
	req.negotiated(negotiation)

	local, err := e.localCredentials(req.Current, roles)
	if err != nil {
		return nil, err
	}
	return &ExchangeResult{
		Local:       local,
		Remote:      offered.Clone(),
		Negotiation: negotiation,
		Rotation:    rotation,
	}, nil
}

func (e *Exchanger) outbound(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error) {
	rotation := req.Current.IsRegistered()

	bearer, versionsURL := req.Offered.Token, req.Offered.URL
	if rotation {
		bearer = req.Current.RemoteCredentials.Token
		if versionsURL == "" {
			versionsURL = req.Current.RemoteCredentials.URL
		}
	}
	if strings.TrimSpace(bearer) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "registration token required")
	}
	if !strings.HasPrefix(versionsURL, "http://") && !strings.HasPrefix(versionsURL, "https://") {
		return nil, dErrors.New(dErrors.CodeValidation, "versions URL must be an absolute http(s) URL")
	}

	roles, err := e.roles.LocalRoles(ctx, req.LocalIdentity)
	if err != nil {
		return nil, err
	}

	negotiation, err := e.negotiator.Discover(ctx, versionsURL, bearer)
	if err != nil {
		return nil, err
	}
	req.negotiated(negotiation)
	endpoint, ok := negotiation.Endpoint(vermodels.ModuleCredentials, vermodels.InterfaceReceiver)
	if !ok {
		return nil, dErrors.New(dErrors.CodeNegotiationFailed, "counterparty exposes no credentials endpoint")
	}

	local, err := e.localCredentials(req.Current, roles)
	if err != nil {
		return nil, err
	}

	send := e.client.PostCredentials
	if rotation {
		send = e.client.PutCredentials
	}
	remote, err := send(ctx, endpoint.URL, bearer, negotiation.Version, local)
	if err != nil {
		return nil, err
	}
	if err := remote.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNegotiationFailed, "counterparty returned invalid credentials")
	}
	if !remote.Represents(req.Identity) {
		return nil, dErrors.New(dErrors.CodeNegotiationFailed, "counterparty credentials name a different party")
	}
	if remote.Token == bearer || (rotation && remote.Token == req.Current.RemoteCredentials.Token) {
		return nil, dErrors.New(dErrors.CodeNegotiationFailed, "counterparty did not issue a new token")
	}

	return &ExchangeResult{
		Local:       local,
		Remote:      remote.Clone(),
		Negotiation: negotiation,
		Rotation:    rotation,
	}, nil
}

// localCredentials issues a brand-new local token.
func (e *Exchanger) localCredentials(current *regmodels.Record, roles []credmodels.CredentialsRole) (credmodels.Credentials, error) {
	token, err := e.newToken()
	if err != nil {
		return credmodels.Credentials{}, dErrors.Wrap(err, dErrors.CodeInternal, "token generation failed")
	}
	if current != nil && token == current.LocalCredentials.Token {
		return credmodels.Credentials{}, dErrors.New(dErrors.CodeInternal, "token generator repeated a token")
	}
	return credmodels.Credentials{Token: token, URL: e.versionsURL, Roles: roles}, nil
}

// asDomain keeps typed failures and treats anything else as a transport fault.
func asDomain(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeNetwork, "handshake aborted")
	}
	return dErrors.Wrap(err, dErrors.CodeNetwork, "counterparty call failed")
}
