package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"makino-adapter/pkg/link"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestThrottle_FirstAttemptSucceeds(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	th := newThrottle(time.Minute, clock.Now)

	assert.True(t, th.TryAcquire(link.ChannelProX))
	assert.True(t, th.TryAcquire(link.ChannelCnc))
}

func TestThrottle_Cooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	th := newThrottle(time.Minute, clock.Now)

	assert.True(t, th.TryAcquire(link.ChannelProX))

	clock.Advance(59 * time.Second)
	assert.False(t, th.TryAcquire(link.ChannelProX))

	// A refused attempt does not push the window
	clock.Advance(time.Second)
	assert.True(t, th.TryAcquire(link.ChannelProX))
	assert.Equal(t, clock.now.Add(time.Minute), th.NextAttempt(link.ChannelProX))
}

func TestThrottle_ChannelsAreIndependent(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	th := newThrottle(time.Minute, clock.Now)

	assert.True(t, th.TryAcquire(link.ChannelProX))
	clock.Advance(10 * time.Second)
	assert.True(t, th.TryAcquire(link.ChannelCnc))
	assert.False(t, th.TryAcquire(link.ChannelProX))
	assert.False(t, th.TryAcquire(link.ChannelCnc))
}

func TestThrottle_NegativeCooldown(t *testing.T) {
	th := NewThrottle(-time.Second)
	assert.Equal(t, time.Duration(0), th.Cooldown())
	assert.True(t, th.TryAcquire(link.ChannelProX))
	assert.True(t, th.TryAcquire(link.ChannelProX))
}
