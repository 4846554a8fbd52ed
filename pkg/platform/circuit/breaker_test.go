package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newBreaker(opts ...Option) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New("kafka", append([]Option{WithClock(clock.now)}, opts...)...), clock
}

func TestBreakerStartsClosed(t *testing.T) {
	b, _ := newBreaker()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "closed", b.State().String())
	assert.Equal(t, "kafka", b.Name())
	assert.True(t, b.Allow())
}

func TestBreakerOpensOnConsecutiveFailures(t *testing.T) {
	b, _ := newBreaker(WithFailureThreshold(3))

	assert.False(t, b.RecordFailure().Opened)
	assert.False(t, b.RecordFailure().Opened)
	b.RecordSuccess()
	assert.False(t, b.RecordFailure().Opened, "a success restarts the count")
	assert.False(t, b.RecordFailure().Opened)
	assert.True(t, b.RecordFailure().Opened)
	assert.True(t, b.IsOpen())
	assert.False(t, b.RecordFailure().Opened, "already open reports no transition")
}

func TestBreakerProbesOncePerCooldown(t *testing.T) {
	b, clock := newBreaker(WithFailureThreshold(1), WithCooldown(time.Minute))
	b.RecordFailure()

	assert.False(t, b.Allow())
	clock.t = clock.t.Add(time.Minute)
	assert.True(t, b.Allow(), "probe after cooldown")
	assert.False(t, b.Allow(), "next probe waits a full cooldown")

	b.RecordFailure()
	clock.t = clock.t.Add(30 * time.Second)
	assert.False(t, b.Allow(), "failed probe restarts the cooldown")
}

func TestBreakerClosesAfterSuccessThreshold(t *testing.T) {
	b, _ := newBreaker(WithFailureThreshold(1), WithSuccessThreshold(2))
	b.RecordFailure()

	assert.False(t, b.RecordSuccess().Closed)
	b.RecordFailure()
	assert.False(t, b.RecordSuccess().Closed, "a failure restarts the success count")
	assert.True(t, b.RecordSuccess().Closed)
	assert.True(t, b.Allow())
}

func TestBreakerIgnoresNonPositiveOptions(t *testing.T) {
	b, _ := newBreaker(WithFailureThreshold(0), WithCooldown(-time.Second))
	for range 4 {
		b.RecordFailure()
	}
	assert.False(t, b.IsOpen(), "default threshold of five still applies")
	b.RecordFailure()
	assert.True(t, b.IsOpen())
}
