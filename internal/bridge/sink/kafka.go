// Package sink relays handshake events to external brokers.
package sink

import (
	"context"

	"voltgrid/internal/bridge"
)

// Producer is the keyed, acknowledged produce call of the Kafka producer.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Kafka writes one record per event keyed by the party identity, so every
// event of a party lands on one partition in publish order.
type Kafka struct {
	producer Producer
	topic    string
	codec    bridge.Codec
}

func NewKafka(producer Producer, topic string, codec bridge.Codec) *Kafka {
	return &Kafka{producer: producer, topic: topic, codec: codec}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Send(ctx context.Context, ev bridge.Event) error {
	value, err := k.codec.Marshal(ev)
	if err != nil {
		return err
	}
	return k.producer.Produce(ctx, k.topic, []byte(ev.Identity.Key()), value, Headers(ev, k.codec))
}

// Headers are shared by every sink.
func Headers(ev bridge.Event, codec bridge.Codec) map[string]string {
	return map[string]string{
		"event_id":     ev.ID.String(),
		"event_kind":   string(ev.Kind),
		"content_type": codec.ContentType(),
	}
}
