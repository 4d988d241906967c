// internal/session/negotiator.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"makino-adapter/internal/utils"
	"makino-adapter/pkg/link"
)

// LinkProvider hands out the link implementation for each channel and protocol generation
type LinkProvider interface {
	ProX(version link.Version) (link.ProXLink, error)
	Cnc() (link.CncLink, error)
}

// Observer is notified of connection events, e.g. for metrics
type Observer interface {
	ProbeAttempt(version link.Version, code link.ResultCode, wrongVersion bool)
	Connected(channel link.Channel, version link.Version)
	Disconnected(channel link.Channel)
	Throttled(channel link.Channel)
}

// Options configures a Negotiator
type Options struct {
	MachineID string
	ProXNode  link.NodeInfo
	CncNode   link.NodeInfo
	Timeouts  link.Timeouts
	// Version pins the ProX generation; VersionUnknown probes ProbeOrder
	Version link.Version
}

// Status is a point-in-time view of both channels
type Status struct {
	ProXConnected   bool         `json:"prox_connected"`
	ProXVersion     string       `json:"prox_version"`
	ProXHandle      link.Handle  `json:"prox_handle"`
	CncConnected    bool         `json:"cnc_connected"`
	CncHandle       link.Handle  `json:"cnc_handle"`
	PinnedVersion   link.Version `json:"pinned_version"`
	NextProXAttempt time.Time    `json:"next_prox_attempt"`
	NextCncAttempt  time.Time    `json:"next_cnc_attempt"`
}

// Negotiator establishes and recovers the ProX and Cnc sessions. Each channel is serialised by
// its own mutex and its own throttle slot.
type Negotiator struct {
	links    LinkProvider
	throttle *Throttle
	opts     Options
	logger   *zap.Logger
	proxLog  *utils.ControllerLogger
	cncLog   *utils.ControllerLogger
	observer Observer

	proxMu sync.Mutex
	prox   *ProXSession

	cncMu sync.Mutex
	cnc   *CncSession
}

// NewNegotiator creates a negotiator. No connection is made until the first Ensure call.
func NewNegotiator(links LinkProvider, throttle *Throttle, opts Options, logger *zap.Logger) *Negotiator {
	if throttle == nil {
		throttle = NewThrottle(DefaultConnectionDelay)
	}
	return &Negotiator{
		links:    links,
		throttle: throttle,
		opts:     opts,
		logger:   logger,
		proxLog:  utils.NewControllerLogger(logger, opts.MachineID, string(link.ChannelProX)),
		cncLog:   utils.NewControllerLogger(logger, opts.MachineID, string(link.ChannelCnc)),
	}
}

// SetObserver registers the connection event observer
func (n *Negotiator) SetObserver(o Observer) {
	n.observer = o
}

// EnsureProX returns the active ProX session, connecting when needed. An active session is
// returned without touching the link.
func (n *Negotiator) EnsureProX(ctx context.Context) (*ProXSession, error) {
	n.proxMu.Lock()
	defer n.proxMu.Unlock()

	if n.prox != nil && n.prox.Active() {
		return n.prox, nil
	}
	n.prox = nil

	if !n.throttle.TryAcquire(link.ChannelProX) {
		n.proxLog.Debug("Connection attempt delayed",
			zap.Time("next_attempt", n.throttle.NextAttempt(link.ChannelProX)))
		if n.observer != nil {
			n.observer.Throttled(link.ChannelProX)
		}
		return nil, fmt.Errorf("prox: %w", link.ErrRetryDelayed)
	}

	var (
		s   *ProXSession
		err error
	)
	if n.opts.Version == link.VersionUnknown {
		s, err = n.probe(ctx)
	} else {
		s, err = n.bind(ctx, n.opts.Version)
		if err != nil {
			n.proxLog.LogConnection("connect", n.opts.Version.String(), false, err)
			err = fmt.Errorf("prox %s: %w: %w", n.opts.Version, link.ErrConnectFailed, err)
		}
	}
	if err != nil {
		return nil, err
	}

	n.prox = s
	n.proxLog.LogConnection("connect", s.version.String(), true, nil)
	if n.observer != nil {
		n.observer.Connected(link.ChannelProX, s.version)
	}
	return s, nil
}

// probe tries every generation in ProbeOrder. A generation above 3 answering EM_BUFFER or
// EM_DISCONNECT is a different generation, not a dead controller.
func (n *Negotiator) probe(ctx context.Context) (*ProXSession, error) {
	var lastErr error
	for _, v := range link.ProbeOrder {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s, err := n.bind(ctx, v)
		if err == nil {
			return s, nil
		}
		lastErr = err

		code := link.CodeOf(err)
		wrongVersion := v > link.Version3 && (code == link.CodeBuffer || code == link.CodeDisconnect)
		n.proxLog.LogProbe(v.String(), code.String(), wrongVersion)
		if n.observer != nil {
			n.observer.ProbeAttempt(v, code, wrongVersion)
		}
	}
	return nil, fmt.Errorf("prox: %w: last attempt: %w", link.ErrNoValidVersion, lastErr)
}

// bind allocates a handle on one generation. A failed allocation releases whatever it got.
func (n *Negotiator) bind(ctx context.Context, v link.Version) (*ProXSession, error) {
	l, err := n.links.ProX(v)
	if err != nil {
		return nil, err
	}

	h, err := l.AllocHandle(ctx, n.opts.ProXNode, n.opts.Timeouts)
	if err != nil {
		if h.Valid() {
			if freeErr := l.FreeHandle(ctx, h); freeErr != nil {
				n.proxLog.Warn("Failed to free handle after failed allocation", zap.Error(freeErr))
			}
		}
		return nil, err
	}
	if !h.Valid() {
		return nil, link.NewError("AllocHandle", link.CodeHandle)
	}

	s, err := newProXSession(l, h, n.proxLog)
	if err != nil {
		_ = l.FreeHandle(ctx, h)
		return nil, err
	}
	s.release = n.releaseProX
	return s, nil
}

// releaseProX frees the session handle and forgets the session if it is the current one
func (n *Negotiator) releaseProX(ctx context.Context, s *ProXSession) {
	n.proxMu.Lock()
	defer n.proxMu.Unlock()
	n.teardownProXLocked(ctx, s)
}

func (n *Negotiator) teardownProXLocked(ctx context.Context, s *ProXSession) {
	h := s.invalidate()
	if h.Valid() {
		if err := s.base.FreeHandle(ctx, h); err != nil {
			n.proxLog.Warn("Failed to free handle", zap.Error(err))
		}
		n.proxLog.LogConnection("disconnect", s.version.String(), true, nil)
		if n.observer != nil {
			n.observer.Disconnected(link.ChannelProX)
		}
	}
	if n.prox == s {
		n.prox = nil
	}
}

// ResetProX tears the current ProX session down, the next Ensure reconnects
func (n *Negotiator) ResetProX(ctx context.Context) {
	n.proxMu.Lock()
	defer n.proxMu.Unlock()
	if n.prox != nil {
		n.teardownProXLocked(ctx, n.prox)
	}
}

// EnsureCnc returns the active Cnc session, connecting when needed
func (n *Negotiator) EnsureCnc(ctx context.Context) (*CncSession, error) {
	n.cncMu.Lock()
	defer n.cncMu.Unlock()

	if n.cnc != nil && n.cnc.Active() {
		return n.cnc, nil
	}
	n.cnc = nil

	if !n.throttle.TryAcquire(link.ChannelCnc) {
		if n.observer != nil {
			n.observer.Throttled(link.ChannelCnc)
		}
		return nil, fmt.Errorf("cnc: %w", link.ErrRetryDelayed)
	}

	l, err := n.links.Cnc()
	if err != nil {
		return nil, fmt.Errorf("cnc: %w: %w", link.ErrConnectFailed, err)
	}

	h, err := l.AllocHandle(ctx, n.opts.CncNode, n.opts.Timeouts)
	if err == nil && !h.Valid() {
		err = link.NewError("cnc_allclibhndl3", link.CodeHandle)
	}
	if err != nil {
		if h.Valid() {
			_ = l.FreeHandle(ctx, h)
		}
		n.cncLog.LogConnection("connect", "cnc", false, err)
		return nil, fmt.Errorf("cnc: %w: %w", link.ErrConnectFailed, err)
	}

	s := &CncSession{base: l, handle: h, logger: n.cncLog}
	s.release = n.releaseCnc
	n.cnc = s
	n.cncLog.LogConnection("connect", "cnc", true, nil)
	if n.observer != nil {
		n.observer.Connected(link.ChannelCnc, link.VersionUnknown)
	}
	return s, nil
}

func (n *Negotiator) releaseCnc(ctx context.Context, s *CncSession) {
	n.cncMu.Lock()
	defer n.cncMu.Unlock()
	n.teardownCncLocked(ctx, s)
}

func (n *Negotiator) teardownCncLocked(ctx context.Context, s *CncSession) {
	h := s.invalidate()
	if h.Valid() {
		if err := s.base.FreeHandle(ctx, h); err != nil {
			n.cncLog.Warn("Failed to free handle", zap.Error(err))
		}
		n.cncLog.LogConnection("disconnect", "cnc", true, nil)
		if n.observer != nil {
			n.observer.Disconnected(link.ChannelCnc)
		}
	}
	if n.cnc == s {
		n.cnc = nil
	}
}

// Status returns the state of both channels
func (n *Negotiator) Status() Status {
	st := Status{
		PinnedVersion:   n.opts.Version,
		NextProXAttempt: n.throttle.NextAttempt(link.ChannelProX),
		NextCncAttempt:  n.throttle.NextAttempt(link.ChannelCnc),
		ProXVersion:     link.VersionUnknown.String(),
	}

	n.proxMu.Lock()
	if n.prox != nil && n.prox.Active() {
		st.ProXConnected = true
		st.ProXVersion = n.prox.version.String()
		st.ProXHandle = n.prox.Handle()
	}
	n.proxMu.Unlock()

	n.cncMu.Lock()
	if n.cnc != nil && n.cnc.Active() {
		st.CncConnected = true
		st.CncHandle = n.cnc.Handle()
	}
	n.cncMu.Unlock()

	return st
}

// Close frees both handles
func (n *Negotiator) Close(ctx context.Context) error {
	n.proxMu.Lock()
	if n.prox != nil {
		n.teardownProXLocked(ctx, n.prox)
	}
	n.proxMu.Unlock()

	n.cncMu.Lock()
	if n.cnc != nil {
		n.teardownCncLocked(ctx, n.cnc)
	}
	n.cncMu.Unlock()
	return nil
}

// IsRetryable reports whether err is a transient connection condition
func IsRetryable(err error) bool {
	return errors.Is(err, link.ErrRetryDelayed) || errors.Is(err, link.ErrDisconnect)
}
