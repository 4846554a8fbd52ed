package sink

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"voltgrid/internal/bridge"
)

// Publisher is the subset of jetstream.JetStream the sink uses.
type Publisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// NATS publishes to "<prefix>.<kind>" with the event id as Nats-Msg-Id, so the
// stream drops redelivered duplicates inside its dedupe window.
type NATS struct {
	js     Publisher
	prefix string
	codec  bridge.Codec
}

func NewNATS(js Publisher, subjectPrefix string, codec bridge.Codec) *NATS {
	return &NATS{js: js, prefix: subjectPrefix, codec: codec}
}

func (n *NATS) Name() string { return "nats" }

func (n *NATS) Subject(kind bridge.Kind) string {
	return fmt.Sprintf("%s.%s", n.prefix, kind)
}

func (n *NATS) Send(ctx context.Context, ev bridge.Event) error {
	data, err := n.codec.Marshal(ev)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(n.Subject(ev.Kind))
	msg.Data = data
	for k, v := range Headers(ev, n.codec) {
		msg.Header.Set(k, v)
	}
	msg.Header.Set("identity", ev.Identity.Key())
	if _, err := n.js.PublishMsg(ctx, msg, jetstream.WithMsgID(ev.ID.String())); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}
