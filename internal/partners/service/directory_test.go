package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"voltgrid/internal/bridge"
	"voltgrid/internal/partners/metrics"
	"voltgrid/internal/partners/models"
	"voltgrid/internal/partners/store"
	"voltgrid/internal/platform/kafka/consumer"
	vermodels "voltgrid/internal/versions/models"
	"voltgrid/pkg/domain"
	dErrors "voltgrid/pkg/domain-errors"
)

type DirectorySuite struct {
	suite.Suite
	store   *store.InMemory
	metrics *metrics.Metrics
	dir     *Directory
	msp     domain.PartyIdentity
	t0      time.Time
}

func TestDirectorySuite(t *testing.T) {
	suite.Run(t, new(DirectorySuite))
}

func (s *DirectorySuite) SetupTest() {
	s.store = store.NewInMemory()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.dir = New(s.store, WithMetrics(s.metrics))
	s.msp = domain.PartyIdentity{CountryCode: "US", PartyID: "MSP", Role: domain.RoleEMSP}
	s.t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
}

func (s *DirectorySuite) registered(at time.Time) bridge.Event {
	ev := bridge.Registered(s.msp, domain.Version22, []vermodels.EndpointCapability{
		{Identifier: vermodels.ModuleSessions, URL: "https://b.example/b/sess"},
	})
	ev.ID = domain.NewEventID()
	ev.OccurredAt = at
	return ev
}

func (s *DirectorySuite) with(ev bridge.Event, at time.Time) bridge.Event {
	ev.ID = domain.NewEventID()
	ev.OccurredAt = at
	return ev
}

func (s *DirectorySuite) TestRegistrationCreatesPartner() {
	ctx := context.Background()
	s.Require().NoError(s.dir.Apply(ctx, s.registered(s.t0)))

	p, err := s.dir.Get(ctx, s.msp)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, p.Status)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Partners.WithLabelValues("active")))
}

func (s *DirectorySuite) TestRotationNeverStoresToken() {
	ctx := context.Background()
	s.Require().NoError(s.dir.Apply(ctx, s.registered(s.t0)))
	s.Require().NoError(s.dir.Apply(ctx, s.with(bridge.TokenRotated(s.msp, "secret-token"), s.t0.Add(time.Minute))))

	p, err := s.dir.Get(ctx, s.msp)
	s.Require().NoError(err)
	s.Equal(1, p.TokenRotations)
}

func (s *DirectorySuite) TestUnknownPartnerEventsAreSkipped() {
	ctx := context.Background()
	s.Require().NoError(s.dir.Apply(ctx, s.with(bridge.Deregistered(s.msp), s.t0)))

	_, err := s.dir.Get(ctx, s.msp)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.EventsApplied.WithLabelValues("deregistered", "unknown_partner")))
}

func (s *DirectorySuite) TestDeregistrationMovesGauge() {
	ctx := context.Background()
	s.Require().NoError(s.dir.Apply(ctx, s.registered(s.t0)))
	s.Require().NoError(s.dir.Apply(ctx, s.with(bridge.Deregistered(s.msp), s.t0.Add(time.Minute))))

	s.Equal(0.0, testutil.ToFloat64(s.metrics.Partners.WithLabelValues("active")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Partners.WithLabelValues("retired")))

	active, err := s.dir.List(ctx, vermodels.ModuleSessions)
	s.Require().NoError(err)
	s.Empty(active, "retired partners are not offered for a module")
	all, err := s.dir.List(ctx, "")
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *DirectorySuite) TestConsumeFollowsBridge() {
	b := bridge.New()
	sub := b.Subscribe("partners")
	done := make(chan error, 1)
	go func() { done <- s.dir.Consume(context.Background(), sub) }()

	ctx := context.Background()
	s.Require().NoError(b.Publish(ctx, bridge.Registered(s.msp, domain.Version22, nil)))
	s.Require().NoError(b.Publish(ctx, bridge.Deregistered(s.msp)))
	b.Close()

	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.FailNow("consumer did not stop after close")
	}
	p, err := s.dir.Get(ctx, s.msp)
	s.Require().NoError(err)
	s.Equal(models.StatusRetired, p.Status)
}

func (s *DirectorySuite) TestKafkaHandler() {
	codec, err := bridge.NewCBORCodec()
	s.Require().NoError(err)
	h := s.dir.KafkaHandler(codec)
	ctx := context.Background()

	raw, err := codec.Marshal(s.registered(s.t0))
	s.Require().NoError(err)
	s.Require().NoError(h.Handle(ctx, &consumer.Message{Value: raw, Headers: map[string]string{"content_type": "application/cbor"}}))
	_, err = s.dir.Get(ctx, s.msp)
	s.NoError(err)

	var perm *backoff.PermanentError
	err = h.Handle(ctx, &consumer.Message{Value: raw, Headers: map[string]string{"content_type": "application/json"}})
	s.True(errors.As(err, &perm), "codec mismatch is permanent")

	err = h.Handle(ctx, &consumer.Message{Value: []byte("garbage")})
	s.True(errors.As(err, &perm), "undecodable record is permanent")
}
