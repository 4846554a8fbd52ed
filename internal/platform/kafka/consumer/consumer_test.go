package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConsumer(h Handler, maxRetries uint64) (*Consumer, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return &Consumer{handler: h, logger: logger, maxRetries: maxRetries}, &buf
}

func lastLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestHandlePermanentErrorIsNotRetried(t *testing.T) {
	calls := 0
	c, buf := newTestConsumer(HandlerFunc(func(context.Context, *Message) error {
		calls++
		return backoff.Permanent(errors.New("malformed payload"))
	}), 5)

	err := c.handle(context.Background(), &Message{Topic: "ocpi.registration", Offset: 7})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	entry := lastLogLine(t, buf)
	assert.Equal(t, "dropping kafka message after retries", entry["msg"])
	assert.Equal(t, true, entry["permanent"])
	assert.Equal(t, "malformed payload", entry["error"])
}

func TestHandleTransientErrorExhaustsRetries(t *testing.T) {
	calls := 0
	c, buf := newTestConsumer(HandlerFunc(func(context.Context, *Message) error {
		calls++
		return errors.New("broker unavailable")
	}), 0)

	err := c.handle(context.Background(), &Message{Topic: "ocpi.registration", Offset: 8})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, false, lastLogLine(t, buf)["permanent"])
}

func TestHandleSuccessLogsNothing(t *testing.T) {
	c, buf := newTestConsumer(HandlerFunc(func(context.Context, *Message) error { return nil }), 3)

	require.NoError(t, c.handle(context.Background(), &Message{}))
	assert.Zero(t, buf.Len())
}

func TestHandleReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c, _ := newTestConsumer(HandlerFunc(func(context.Context, *Message) error {
		cancel()
		return errors.New("interrupted")
	}), 3)

	err := c.handle(ctx, &Message{})
	assert.ErrorIs(t, err, context.Canceled)
}
