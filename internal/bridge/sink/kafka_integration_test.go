//go:build integration

package sink_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"voltgrid/internal/bridge"
	"voltgrid/internal/bridge/sink"
	"voltgrid/internal/platform/kafka/admin"
	"voltgrid/internal/platform/kafka/producer"
	"voltgrid/pkg/domain"
	"voltgrid/pkg/testutil/containers"
)

type KafkaSinkSuite struct {
	suite.Suite
	brokers  []string
	producer *producer.Producer
}

func TestKafkaSinkSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSinkSuite))
}

func (s *KafkaSinkSuite) SetupSuite() {
	s.brokers = containers.GetManager().GetRedpanda(s.T()).Brokers
	p, err := producer.New(s.brokers)
	s.Require().NoError(err)
	s.producer = p
}

func (s *KafkaSinkSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close(context.Background())
	}
}

func (s *KafkaSinkSuite) TestRelayedEventsKeepPerPartyOrder() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	const topic = "handshake-order"
	s.Require().NoError(admin.EnsureTopic(ctx, s.brokers, topic, 3, 1))

	b := bridge.New()
	relay := bridge.NewRelay(b.Subscribe("kafka"), sink.NewKafka(s.producer, topic, bridge.JSONCodec{}))
	id, err := domain.ParsePartyIdentity("US", "MSP", "EMSP")
	s.Require().NoError(err)

	s.Require().NoError(b.Publish(ctx, bridge.Registered(id, domain.Version22, nil)))
	s.Require().NoError(b.Publish(ctx, bridge.TokenRotated(id, "token-c2")))
	s.Require().NoError(b.Publish(ctx, bridge.Deregistered(id)))
	b.Close()
	s.Require().NoError(relay.Run(ctx))

	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer client.Close()

	var kinds []bridge.Kind
	for len(kinds) < 3 {
		fetches := client.PollFetches(ctx)
		s.Require().NoError(ctx.Err())
		fetches.EachRecord(func(rec *kgo.Record) {
			s.Equal("US:MSP:EMSP", string(rec.Key))
			var ev bridge.Event
			s.Require().NoError(bridge.JSONCodec{}.Unmarshal(rec.Value, &ev))
			kinds = append(kinds, ev.Kind)
		})
	}
	s.Equal([]bridge.Kind{bridge.KindRegistered, bridge.KindTokenRotated, bridge.KindDeregistered}, kinds)
}
