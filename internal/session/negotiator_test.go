package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"makino-adapter/internal/controller/emulator"
	"makino-adapter/pkg/link"
)

func newTestNegotiator(c *emulator.Controller, pinned link.Version, cooldown time.Duration) *Negotiator {
	return NewNegotiator(c, NewThrottle(cooldown), Options{
		MachineID: "test",
		ProXNode:  link.NodeInfo{NodeNumber: 8, IPAddress: "127.0.0.1", Port: link.DefaultProXPort, Emulate: true},
		CncNode:   link.NodeInfo{NodeNumber: 8, IPAddress: "127.0.0.1", Port: link.DefaultCncPort, Emulate: true},
		Version:   pinned,
	}, zap.NewNop())
}

type recordingObserver struct {
	probes    []link.Version
	wrong     []bool
	connected []link.Channel
	dropped   []link.Channel
	throttled int
}

func (o *recordingObserver) ProbeAttempt(v link.Version, code link.ResultCode, wrongVersion bool) {
	o.probes = append(o.probes, v)
	o.wrong = append(o.wrong, wrongVersion)
}
func (o *recordingObserver) Connected(ch link.Channel, v link.Version) {
	o.connected = append(o.connected, ch)
}
func (o *recordingObserver) Disconnected(ch link.Channel) { o.dropped = append(o.dropped, ch) }
func (o *recordingObserver) Throttled(ch link.Channel)    { o.throttled++ }

func TestEnsureProX_ProbeStopsAtFirstMatch(t *testing.T) {
	c := emulator.New(emulator.Config{Version: link.Version5, PotsPerMagazine: []int{1}})
	n := newTestNegotiator(c, link.VersionUnknown, 0)
	obs := &recordingObserver{}
	n.SetObserver(obs)

	s, err := n.EnsureProX(context.Background())
	require.NoError(t, err)

	assert.Equal(t, link.Version5, s.Version())
	assert.True(t, s.Handle().Valid())
	assert.Equal(t, []link.Version{link.Version6, link.Version5}, c.AllocAttempts())
	assert.Equal(t, []link.Version{link.Version6}, obs.probes)
	assert.Equal(t, []bool{true}, obs.wrong)
	assert.Equal(t, []link.Channel{link.ChannelProX}, obs.connected)
}

func TestEnsureProX_ProbesDownToPro3(t *testing.T) {
	c := emulator.New(emulator.Config{Version: link.Version3, PotsPerMagazine: []int{1}})
	n := newTestNegotiator(c, link.VersionUnknown, 0)
	obs := &recordingObserver{}
	n.SetObserver(obs)

	s, err := n.EnsureProX(context.Background())
	require.NoError(t, err)

	assert.Equal(t, link.Version3, s.Version())
	assert.Equal(t, link.ProbeOrder, c.AllocAttempts())
	// v6 and v5 links answer EM_DISCONNECT on a Pro3 controller
	assert.Equal(t, []bool{true, true}, obs.wrong)
}

func TestEnsureProX_Idempotent(t *testing.T) {
	c := emulator.New(emulator.Config{Version: link.Version6, PotsPerMagazine: []int{1}})
	n := newTestNegotiator(c, link.VersionUnknown, time.Minute)

	first, err := n.EnsureProX(context.Background())
	require.NoError(t, err)
	calls := c.Calls()

	second, err := n.EnsureProX(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, calls, c.Calls())
}

func TestEnsureProX_PinnedVersionHasNoFallback(t *testing.T) {
	c := emulator.New(emulator.Config{Version: link.Version5, PotsPerMagazine: []int{1}})
	n := newTestNegotiator(c, link.Version6, 0)

	_, err := n.EnsureProX(context.Background())
	require.Error(t, err)

	assert.ErrorIs(t, err, link.ErrConnectFailed)
	assert.Equal(t, []link.Version{link.Version6}, c.AllocAttempts())
	assert.Equal(t, 0, c.OpenHandles())
}

func TestEnsureProX_NoValidVersion(t *testing.T) {
	c := emulator.New(emulator.Config{Version: link.Version5, PotsPerMagazine: []int{1}})
	c.FailOp(emulator.OpAllocHandle, link.CodeNode)
	n := newTestNegotiator(c, link.VersionUnknown, 0)
	obs := &recordingObserver{}
	n.SetObserver(obs)

	_, err := n.EnsureProX(context.Background())
	require.Error(t, err)

	assert.ErrorIs(t, err, link.ErrNoValidVersion)
	assert.Equal(t, link.ProbeOrder, c.AllocAttempts())
	assert.Equal(t, []bool{false, false, false}, obs.wrong)
}

func TestEnsureProX_Throttled(t *testing.T) {
	c := emulator.New(emulator.Config{Version: link.Version5, PotsPerMagazine: []int{1}})
	c.FailOp(emulator.OpAllocHandle, link.CodeNode)
	n := newTestNegotiator(c, link.VersionUnknown, time.Minute)
	obs := &recordingObserver{}
	n.SetObserver(obs)

	_, err := n.EnsureProX(context.Background())
	require.ErrorIs(t, err, link.ErrNoValidVersion)
	attempts := len(c.AllocAttempts())

	_, err = n.EnsureProX(context.Background())
	assert.ErrorIs(t, err, link.ErrRetryDelayed)
	assert.True(t, IsRetryable(err))
	assert.Len(t, c.AllocAttempts(), attempts)
	assert.Equal(t, 1, obs.throttled)
}

func TestProXSession_DisconnectTearsDown(t *testing.T) {
	ctx := context.Background()
	c := emulator.New(emulator.Config{Version: link.Version6, PotsPerMagazine: []int{2}})
	n := newTestNegotiator(c, link.VersionUnknown, 0)
	obs := &recordingObserver{}
	n.SetObserver(obs)

	s, err := n.EnsureProX(ctx)
	require.NoError(t, err)
	oldHandle := s.Handle()

	c.DropConnection()
	_, err = s.MaxAtcMagazine(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, link.ErrDisconnect)
	assert.False(t, s.Active())
	assert.Equal(t, link.VersionUnknown, s.Version())
	assert.False(t, n.Status().ProXConnected)
	assert.Equal(t, []link.Channel{link.ChannelProX}, obs.dropped)

	// Calls on the dead session fail without reaching the link
	calls := c.Calls()
	_, err = s.MaxAtcMagazine(ctx)
	assert.ErrorIs(t, err, link.ErrDisconnect)
	assert.Equal(t, calls, c.Calls())

	fresh, err := n.EnsureProX(ctx)
	require.NoError(t, err)
	assert.NotSame(t, s, fresh)
	assert.NotEqual(t, oldHandle, fresh.Handle())

	count, err := fresh.MaxAtcMagazine(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), count)
}

func TestProXSession_VersionSpecificCalls(t *testing.T) {
	ctx := context.Background()
	c := emulator.New(emulator.Config{
		Version:         link.Version3,
		PotsPerMagazine: []int{1},
		LifeType:        link.LifeTypeTenthSeconds,
		Optional:        link.OptionalItems{Slow: true},
	})
	n := newTestNegotiator(c, link.Version3, 0)

	s, err := n.EnsureProX(ctx)
	require.NoError(t, err)

	_, err = s.ItemsEnabled(ctx, []link.ItemCode{link.Pro5PTN})
	assert.ErrorIs(t, err, link.ErrNotSupported)

	opt, err := s.OptionalItems(ctx)
	require.NoError(t, err)
	assert.True(t, opt.Slow)

	lifeType, err := s.LifeType(ctx)
	require.NoError(t, err)
	assert.Equal(t, link.LifeTypeTenthSeconds, lifeType)

	// Cached for the rest of the session
	calls := c.CallCount(emulator.OpLifeType)
	_, err = s.LifeType(ctx)
	require.NoError(t, err)
	assert.Equal(t, calls, c.CallCount(emulator.OpLifeType))
}

func TestProXSession_WriteItems(t *testing.T) {
	ctx := context.Background()
	c := emulator.New(emulator.Config{Version: link.Version6, PotsPerMagazine: []int{2}})
	n := newTestNegotiator(c, link.VersionUnknown, 0)
	s, err := n.EnsureProX(ctx)
	require.NoError(t, err)

	positions := []link.ToolPosition{{Magazine: 1, Pot: 1, Cutter: 1}, {Magazine: 1, Pot: 2, Cutter: 1}}
	require.NoError(t, s.WriteItems(ctx, link.Pro5PTN, positions, []int32{7, 8}))
	require.NoError(t, s.WriteItems(ctx, link.Pro5HGeometry, positions, []int32{70, 80}))
	assert.Equal(t, 1, c.CallCount(emulator.OpWriteToolItems))
	assert.Equal(t, 1, c.CallCount(emulator.OpWriteCutterItems))

	ptn, err := s.ReadToolItems(ctx, link.Pro5PTN, positions)
	require.NoError(t, err)
	assert.Equal(t, []int32{7, 8}, ptn)

	assert.Error(t, s.WriteItems(ctx, link.Pro5PTN, positions, []int32{1}))
}

func TestEnsureCnc(t *testing.T) {
	ctx := context.Background()
	c := emulator.New(emulator.Config{Version: link.Version6, PotsPerMagazine: []int{1}})
	c.SetMCode(link.MCode{Code: 30, Requested: true})
	n := newTestNegotiator(c, link.VersionUnknown, 0)

	s, err := n.EnsureCnc(ctx)
	require.NoError(t, err)

	again, err := n.EnsureCnc(ctx)
	require.NoError(t, err)
	assert.Same(t, s, again)

	code, err := s.ModalMCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(30), code.Code)
	assert.True(t, n.Status().CncConnected)

	c.DropConnection()
	_, err = s.ModalMCode(ctx)
	assert.ErrorIs(t, err, link.ErrDisconnect)
	assert.False(t, n.Status().CncConnected)

	require.NoError(t, n.Close(ctx))
}
