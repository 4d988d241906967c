// internal/acquisition/cycle.go
package acquisition

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"makino-adapter/internal/model"
	"makino-adapter/pkg/link"
)

// Run performs one complete acquisition on a bound session: topology, capabilities, raw reads and
// normalization. The topology is rebuilt every time.
func (a *Acquirer) Run(ctx context.Context, s Session, now time.Time) (*model.ToolLifeData, error) {
	positions, err := EnumeratePositions(ctx, s, a.logger)
	if err != nil {
		return nil, err
	}

	caps, err := LoadCapabilities(ctx, s, a.logger)
	if err != nil {
		return nil, err
	}

	raw, err := a.Acquire(ctx, s, positions, caps)
	if err != nil {
		return nil, err
	}

	data := Normalize(raw, now)
	if len(data.Missing) > 0 {
		a.logger.Info("Tool data acquired with missing fields",
			zap.Int("tools", data.ToolCount()),
			zap.Strings("missing", data.Missing),
		)
	} else {
		a.logger.Debug("Tool data acquired", zap.Int("tools", data.ToolCount()))
	}
	return data, nil
}

// Bracket delimits one poll of the host. Values that do not change during a poll are read once
// between Start and Finish.
type Bracket struct {
	mu        sync.Mutex
	active    bool
	startedAt time.Time
	mcode     *link.MCode
}

// Start opens a new poll and drops every cached value
func (b *Bracket) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = true
	b.startedAt = time.Now()
	b.mcode = nil
}

// Finish closes the poll
func (b *Bracket) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = false
}

// Active reports whether a poll is open
func (b *Bracket) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// MCode returns the cached M code of the poll, reading it on first use. Outside a poll every
// call reads. Failed reads are not cached.
func (b *Bracket) MCode(ctx context.Context, read func(context.Context) (link.MCode, error)) (link.MCode, error) {
	b.mu.Lock()
	if b.active && b.mcode != nil {
		code := *b.mcode
		b.mu.Unlock()
		return code, nil
	}
	b.mu.Unlock()

	code, err := read(ctx)
	if err != nil {
		return link.MCode{}, err
	}

	b.mu.Lock()
	if b.active {
		b.mcode = &code
	}
	b.mu.Unlock()
	return code, nil
}
