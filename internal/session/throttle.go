// internal/session/throttle.go
package session

import (
	"sync"
	"time"

	"makino-adapter/pkg/link"
)

// DefaultConnectionDelay is the minimum delay between two connection attempts on a channel
const DefaultConnectionDelay = 60 * time.Second

// Throttle limits connection attempts per channel. It only looks at elapsed time.
type Throttle struct {
	mu       sync.Mutex
	cooldown time.Duration
	now      func() time.Time
	last     map[link.Channel]time.Time
}

// NewThrottle creates a throttle whose first attempt on every channel succeeds
func NewThrottle(cooldown time.Duration) *Throttle {
	return newThrottle(cooldown, time.Now)
}

func newThrottle(cooldown time.Duration, now func() time.Time) *Throttle {
	if cooldown < 0 {
		cooldown = 0
	}
	t := &Throttle{
		cooldown: cooldown,
		now:      now,
		last:     make(map[link.Channel]time.Time),
	}
	past := now().Add(-cooldown - time.Second)
	t.last[link.ChannelProX] = past
	t.last[link.ChannelCnc] = past
	return t
}

// TryAcquire returns true and records the attempt when the channel cooldown has elapsed
func (t *Throttle) TryAcquire(ch link.Channel) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	last, ok := t.last[ch]
	if ok && now.Sub(last) < t.cooldown {
		return false
	}
	t.last[ch] = now
	return true
}

// Cooldown returns the configured delay
func (t *Throttle) Cooldown() time.Duration {
	return t.cooldown
}

// NextAttempt returns when the channel will accept a new attempt
func (t *Throttle) NextAttempt(ch link.Channel) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last[ch].Add(t.cooldown)
}
