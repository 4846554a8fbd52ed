// Package service runs the registration handshake: discovery and token
// exchange through the credentials exchanger, a compare-and-set commit of the
// registration record, then an event on the bridge.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"voltgrid/internal/bridge"
	credmodels "voltgrid/internal/credentials/models"
	credservice "voltgrid/internal/credentials/service"
	hsmetrics "voltgrid/internal/handshake/metrics"
	"voltgrid/internal/handshake/models"
	regmodels "voltgrid/internal/registration/models"
	vermodels "voltgrid/internal/versions/models"
	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
	"voltgrid/pkg/platform/sentinel"
	"voltgrid/pkg/requestcontext"
)

// RegistrationStore is the compare-and-set store of registration records.
type RegistrationStore interface {
	Get(ctx context.Context, identity domain.PartyIdentity) (*regmodels.Record, error)
	FindByRemoteToken(ctx context.Context, token string) (*regmodels.Record, error)
	List(ctx context.Context) ([]*regmodels.Record, error)
	ListByModule(ctx context.Context, module vermodels.ModuleID) ([]*regmodels.Record, error)
	History(ctx context.Context, identity domain.PartyIdentity) ([]*regmodels.Record, error)
	Commit(ctx context.Context, rec *regmodels.Record, expected regmodels.Status) error
}

type Exchanger interface {
	Exchange(ctx context.Context, req credservice.ExchangeRequest) (*credservice.ExchangeResult, error)
}

type Publisher interface {
	Publish(ctx context.Context, ev bridge.Event) error
}

// RegisterRequest is an inbound POST or PUT of the counterparty's credentials.
type RegisterRequest struct {
	Offered        credmodels.Credentials
	PresentedToken string
	// Update marks a PUT: the bearer must already be a registered token.
	Update bool
}

// InitiateRequest starts an outbound registration. Token and VersionsURL are
// the registration token and versions URL the counterparty handed out; both
// may be empty when renewing an existing registration.
type InitiateRequest struct {
	Identity      domain.PartyIdentity
	VersionsURL   string
	Token         string
	LocalIdentity domain.PartyIdentity
}

// Result is a completed handshake.
type Result struct {
	Record   *regmodels.Record
	Rotation bool
}

// Orchestrator drives handshakes. Handshakes for different parties share
// nothing but the store, which serializes writes for one party.
type Orchestrator struct {
	store     RegistrationStore
	exchanger Exchanger
	publisher Publisher
	logger    *slog.Logger
	metrics   *hsmetrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithMetrics(m *hsmetrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

func New(store RegistrationStore, exchanger Exchanger, publisher Publisher, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("registration store is required")
	}
	if exchanger == nil {
		return nil, errors.New("exchanger is required")
	}
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	o := &Orchestrator{
		store:     store,
		exchanger: exchanger,
		publisher: publisher,
		logger:    slog.New(slog.DiscardHandler),
		tracer:    otel.Tracer("voltgrid/handshake"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Register handles a counterparty registering with us (POST) or renewing its
// registration (PUT).
func (o *Orchestrator) Register(ctx context.Context, req RegisterRequest) (*Result, error) {
	identity, err := o.inboundIdentity(ctx, req)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, identity, credservice.DirectionInbound, func(current *regmodels.Record) credservice.ExchangeRequest {
		return credservice.ExchangeRequest{
			Identity:       identity,
			Direction:      credservice.DirectionInbound,
			Offered:        req.Offered,
			PresentedToken: req.PresentedToken,
			Current:        current,
		}
	})
}

// Initiate registers us with a counterparty, or renews an existing
// registration with a PUT when one is live.
func (o *Orchestrator) Initiate(ctx context.Context, req InitiateRequest) (*Result, error) {
	if req.Identity.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "counterparty identity required")
	}
	return o.run(ctx, req.Identity, credservice.DirectionOutbound, func(current *regmodels.Record) credservice.ExchangeRequest {
		return credservice.ExchangeRequest{
			Identity:      req.Identity,
			Direction:     credservice.DirectionOutbound,
			Offered:       credmodels.Credentials{Token: req.Token, URL: req.VersionsURL},
			Current:       current,
			LocalIdentity: req.LocalIdentity,
		}
	})
}

// inboundIdentity picks the party a credentials call speaks for. A PUT must
// come from a registered party and may not change who it is.
func (o *Orchestrator) inboundIdentity(ctx context.Context, req RegisterRequest) (domain.PartyIdentity, error) {
	if req.Update {
		rec, err := o.Lookup(ctx, req.PresentedToken)
		if err != nil {
			return domain.PartyIdentity{}, err
		}
		return rec.Identity, nil
	}
	if err := req.Offered.Validate(); err != nil {
		return domain.PartyIdentity{}, err
	}
	ids, err := req.Offered.Identities()
	if err != nil {
		return domain.PartyIdentity{}, err
	}
	// A registered bearer speaks for the party it registered as.
	if rec, err := o.store.FindByRemoteToken(ctx, req.PresentedToken); err == nil && req.Offered.Represents(rec.Identity) {
		return rec.Identity, nil
	}
	return ids[0], nil
}

func (o *Orchestrator) run(ctx context.Context, identity domain.PartyIdentity, direction credservice.Direction, build func(*regmodels.Record) credservice.ExchangeRequest) (res *Result, err error) {
	ctx, span := o.tracer.Start(ctx, "handshake."+string(direction), trace.WithAttributes(
		attribute.String("ocpi.party", identity.Key()),
		attribute.String("ocpi.direction", string(direction)),
	))
	defer span.End()

	start := time.Now()
	hs := models.New(identity, string(direction), requestcontext.Now(ctx))
	if o.metrics != nil {
		o.metrics.InFlight.Inc()
	}
	defer func() {
		if err != nil {
			hs.Fail(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, string(hs.Failure))
			o.logger.WarnContext(ctx, "handshake failed",
				"identity", identity.Key(),
				"direction", direction,
				"state", hs.FailedIn,
				"code", hs.Failure,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		if o.metrics != nil {
			o.metrics.InFlight.Dec()
			o.metrics.ObserveHandshake(string(direction), hs.Outcome(), string(hs.FailedIn), start)
		}
	}()

	current, err := o.read(ctx, identity)
	if err != nil {
		return nil, err
	}

	if err := o.advance(hs, models.StateNegotiating); err != nil {
		return nil, err
	}
	exReq := build(current)
	exReq.OnNegotiated = func(n *vermodels.NegotiationResult) {
		span.SetAttributes(attribute.String("ocpi.version", n.Version.String()))
		hs.Advance(models.StateExchanging)
	}
	exchanged, err := o.exchanger.Exchange(ctx, exReq)
	if err != nil {
		return nil, err
	}
	// The hook is optional for exchangers; a completed exchange has negotiated.
	if hs.State == models.StateNegotiating {
		if err := o.advance(hs, models.StateExchanging); err != nil {
			return nil, err
		}
	}

	if err := o.advance(hs, models.StateCommitting); err != nil {
		return nil, err
	}
	committed, err := o.commit(ctx, identity, current, exchanged)
	if err != nil {
		return nil, err
	}
	if err := o.advance(hs, models.StateDone); err != nil {
		return nil, err
	}

	o.announce(ctx, committed, exchanged)
	o.logger.InfoContext(ctx, "handshake completed",
		"identity", identity.Key(),
		"direction", direction,
		"rotation", exchanged.Rotation,
		"version", committed.NegotiatedVersion,
		"record_id", committed.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return &Result{Record: committed, Rotation: exchanged.Rotation}, nil
}

func (o *Orchestrator) advance(hs *models.Handshake, next models.State) error {
	if err := hs.CanAdvance(next); err != nil {
		return err
	}
	hs.Advance(next)
	return nil
}

// commit writes the exchange outcome on top of current. A lost race is
// retried once against a fresh read, provided the party's live token is
// still the one the exchange was based on.
func (o *Orchestrator) commit(ctx context.Context, identity domain.PartyIdentity, current *regmodels.Record, ex *credservice.ExchangeResult) (*regmodels.Record, error) {
	ctx, span := o.tracer.Start(ctx, "handshake.commit")
	defer span.End()

	next, expected, err := o.nextRecord(ctx, identity, current, ex)
	if err != nil {
		return nil, err
	}
	err = o.store.Commit(ctx, next, expected)
	if err == nil {
		return next, nil
	}
	if !errors.Is(err, sentinel.ErrConflict) {
		return nil, wrapStoreErr(err)
	}

	if o.metrics != nil {
		o.metrics.IncCommitRetry()
	}
	span.AddEvent("commit conflict, retrying")
	fresh, err := o.read(ctx, identity)
	if err != nil {
		return nil, err
	}
	if liveToken(fresh) != liveToken(current) {
		return nil, dErrors.New(dErrors.CodeConcurrentModification, "registration changed during handshake")
	}
	next, expected, err = o.nextRecord(ctx, identity, fresh, ex)
	if err != nil {
		return nil, err
	}
	err = o.store.Commit(ctx, next, expected)
	if errors.Is(err, sentinel.ErrConflict) {
		return nil, dErrors.Wrap(err, dErrors.CodeConcurrentModification, "registration changed during handshake")
	}
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return next, nil
}

// nextRecord builds the record to commit and the status it replaces. A
// retired record is replaced by a brand-new one.
func (o *Orchestrator) nextRecord(ctx context.Context, identity domain.PartyIdentity, base *regmodels.Record, ex *credservice.ExchangeResult) (*regmodels.Record, regmodels.Status, error) {
	now := requestcontext.Now(ctx)
	var (
		next     *regmodels.Record
		expected = regmodels.StatusUnregistered
		err      error
	)
	switch {
	case base == nil:
		next, err = regmodels.NewRecord(identity, now)
	case base.Status == regmodels.StatusDeregistered:
		expected = base.Status
		next, err = regmodels.NewRecord(identity, now)
	default:
		expected = base.Status
		next = base.Clone()
	}
	if err != nil {
		return nil, "", err
	}
	if err := next.CanRegister(); err != nil {
		return nil, "", err
	}
	next.ApplyRegistration(ex.Local, ex.Remote, ex.Negotiation.Version, ex.Negotiation.Endpoints, now)
	return next, expected, nil
}

// announce publishes after commit. The commit stands even if the bridge is
// already closed.
func (o *Orchestrator) announce(ctx context.Context, rec *regmodels.Record, ex *credservice.ExchangeResult) {
	ev := bridge.Registered(rec.Identity, rec.NegotiatedVersion, rec.NegotiatedEndpoints)
	if ex.Rotation {
		ev = bridge.TokenRotated(rec.Identity, rec.LocalCredentials.Token)
	}
	o.publish(ctx, ev)
}

func (o *Orchestrator) publish(ctx context.Context, ev bridge.Event) {
	if err := o.publisher.Publish(ctx, ev); err != nil {
		o.logger.ErrorContext(ctx, "failed to publish handshake event",
			"identity", ev.Identity.Key(),
			"kind", ev.Kind,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

// Deregister revokes the registration that token belongs to.
func (o *Orchestrator) Deregister(ctx context.Context, token string) (*regmodels.Record, error) {
	ctx, span := o.tracer.Start(ctx, "handshake.deregister")
	defer span.End()

	current, err := o.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	next, err := o.retire(ctx, current)
	if errors.Is(err, sentinel.ErrConflict) {
		fresh, rerr := o.read(ctx, current.Identity)
		if rerr != nil {
			return nil, rerr
		}
		if liveToken(fresh) != token {
			return nil, dErrors.New(dErrors.CodeConcurrentModification, "registration changed during deregistration")
		}
		next, err = o.retire(ctx, fresh)
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConcurrentModification, "registration changed during deregistration")
		}
	}
	if err != nil {
		span.RecordError(err)
		return nil, wrapStoreErr(err)
	}

	if o.metrics != nil {
		o.metrics.IncDeregistration()
	}
	o.publish(ctx, bridge.Deregistered(next.Identity))
	o.logger.InfoContext(ctx, "registration revoked",
		"identity", next.Identity.Key(),
		"record_id", next.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return next, nil
}

func (o *Orchestrator) retire(ctx context.Context, current *regmodels.Record) (*regmodels.Record, error) {
	if err := current.CanDeregister(); err != nil {
		return nil, err
	}
	next := current.Clone()
	next.ApplyDeregistration(requestcontext.Now(ctx))
	if err := o.store.Commit(ctx, next, current.Status); err != nil {
		return nil, err
	}
	return next, nil
}

// Lookup resolves a presented token to its live registration.
func (o *Orchestrator) Lookup(ctx context.Context, token string) (*regmodels.Record, error) {
	if token == "" {
		return nil, dErrors.New(dErrors.CodeInvalidToken, "token required")
	}
	rec, err := o.store.FindByRemoteToken(ctx, token)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeInvalidToken, "token is not registered")
	}
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return rec, nil
}

// Registration returns the live record for identity.
func (o *Orchestrator) Registration(ctx context.Context, identity domain.PartyIdentity) (*regmodels.Record, error) {
	rec, err := o.store.Get(ctx, identity)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "registration not found")
	}
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return rec, nil
}

// Registrations lists live records, optionally only those that negotiated module.
func (o *Orchestrator) Registrations(ctx context.Context, module vermodels.ModuleID) ([]*regmodels.Record, error) {
	var (
		recs []*regmodels.Record
		err  error
	)
	if module == "" {
		recs, err = o.store.List(ctx)
	} else {
		recs, err = o.store.ListByModule(ctx, module)
	}
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return recs, nil
}

// History returns the retired records of identity, oldest first.
func (o *Orchestrator) History(ctx context.Context, identity domain.PartyIdentity) ([]*regmodels.Record, error) {
	recs, err := o.store.History(ctx, identity)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return recs, nil
}

func (o *Orchestrator) read(ctx context.Context, identity domain.PartyIdentity) (*regmodels.Record, error) {
	rec, err := o.store.Get(ctx, identity)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return rec, nil
}

// liveToken is the token that currently authenticates the party, if any.
func liveToken(rec *regmodels.Record) string {
	if !rec.IsRegistered() {
		return ""
	}
	return rec.RemoteCredentials.Token
}

func wrapStoreErr(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeNetwork, "handshake aborted")
	}
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeConcurrentModification, "registration changed concurrently")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "registration store failure")
}
