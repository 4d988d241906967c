package gateway

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"makino-adapter/internal/protocol"
	"makino-adapter/pkg/link"
)

type request struct {
	op      Op
	version link.Version
	payload []byte
}

type handlerFunc func(req request) (link.ResultCode, []byte)

// fakeTransport answers every written frame through a handler and serves the reply in small
// chunks to exercise short reads
type fakeTransport struct {
	handler  handlerFunc
	open     bool
	opens    int
	pending  []byte
	requests []request
	writeErr error
	rawReply []byte
}

func (f *fakeTransport) Open(context.Context) error {
	f.open = true
	f.opens++
	return nil
}

func (f *fakeTransport) Close() error {
	f.open = false
	f.pending = nil
	return nil
}

func (f *fakeTransport) IsOpen() bool { return f.open }

func (f *fakeTransport) Write(_ context.Context, data []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	if binary.BigEndian.Uint16(data[0:2]) != Magic {
		return errors.New("bad request magic")
	}
	req := request{
		op:      Op(data[2]),
		version: link.Version(data[3]),
		payload: append([]byte(nil), data[8:]...),
	}
	f.requests = append(f.requests, req)

	if f.rawReply != nil {
		f.pending = append(f.pending, f.rawReply...)
		return nil
	}
	code, body := f.handler(req)
	reply := binary.BigEndian.AppendUint16(nil, Magic)
	reply = binary.BigEndian.AppendUint16(reply, uint16(code))
	reply = binary.BigEndian.AppendUint32(reply, uint32(len(body)))
	f.pending = append(f.pending, append(reply, body...)...)
	return nil
}

func (f *fakeTransport) Read(_ context.Context, maxBytes int) ([]byte, error) {
	if len(f.pending) == 0 {
		return nil, errors.New("connection reset by peer")
	}
	n := min(maxBytes, 3, len(f.pending))
	chunk := f.pending[:n]
	f.pending = f.pending[n:]
	return chunk, nil
}

func (f *fakeTransport) Type() protocol.TransportType { return protocol.TransportTCP }

func (f *fakeTransport) Stats() protocol.ProtocolStats { return protocol.ProtocolStats{} }

func newTestClient(handler handlerFunc) (*Client, *fakeTransport) {
	ft := &fakeTransport{handler: handler}
	return NewClient(ft, zap.NewNop()), ft
}

func reply(fields ...uint32) []byte {
	var b []byte
	for _, f := range fields {
		b = binary.BigEndian.AppendUint32(b, f)
	}
	return b
}

func TestEncodeRequest(t *testing.T) {
	frame := encodeRequest(OpReadToolItems, link.Version6, []byte{0xAA, 0xBB})
	assert.Equal(t, []byte{0x4D, 0x4C, 0x20, 0x06, 0, 0, 0, 2, 0xAA, 0xBB}, frame)
}

func TestDecodeReplyHeader(t *testing.T) {
	code, size, err := decodeReplyHeader([]byte{0x4D, 0x4C, 0xFF, 0xFF, 0, 0, 0, 4})
	require.NoError(t, err)
	assert.Equal(t, link.CodeInternal, code)
	assert.Equal(t, 4, size)

	_, _, err = decodeReplyHeader([]byte{0, 0, 0, 0, 0, 0, 0, 0})
	assert.Error(t, err)

	_, _, err = decodeReplyHeader([]byte{0x4D, 0x4C, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF})
	assert.Error(t, err)
}

func TestAllocHandle_EncodesNodeAndTimeouts(t *testing.T) {
	client, ft := newTestClient(func(req request) (link.ResultCode, []byte) {
		return link.CodeOK, reply(42)
	})
	l, err := client.ProX(link.Version5)
	require.NoError(t, err)

	h, err := l.AllocHandle(context.Background(),
		link.NodeInfo{NodeNumber: 8, IPAddress: "10.0.0.5", Port: 11212},
		link.Timeouts{Send: 10 * time.Second, Reply: 2 * time.Second, LogLevel: 1},
	)
	require.NoError(t, err)
	assert.Equal(t, link.Handle(42), h)

	require.Len(t, ft.requests, 1)
	req := ft.requests[0]
	assert.Equal(t, OpAllocHandle, req.op)
	assert.Equal(t, link.Version5, req.version)

	d := &decoder{buf: req.payload}
	assert.Equal(t, uint16(8), d.u16())
	ipLen := int(d.u16())
	assert.Equal(t, "10.0.0.5", string(d.take(ipLen)))
	assert.Equal(t, uint16(11212), d.u16())
	assert.False(t, d.boolean())
	assert.Equal(t, uint32(10000), d.u32())
	assert.Equal(t, uint32(2000), d.u32())
	assert.Equal(t, uint32(0), d.u32())
	assert.Equal(t, uint8(1), d.u8())
	assert.NoError(t, d.err)
	assert.Empty(t, d.buf)
}

func TestReadCutterItems(t *testing.T) {
	client, ft := newTestClient(func(req request) (link.ResultCode, []byte) {
		return link.CodeOK, reply(2, 7, uint32(0xFFFFFFFF))
	})
	l, _ := client.ProX(link.Version6)

	values, err := l.ReadCutterItems(context.Background(), 9, link.Pro5AlarmFlag,
		[]uint32{1, 1}, []int32{1, 2}, []uint32{1, 1})
	require.NoError(t, err)
	assert.Equal(t, []int32{7, -1}, values)

	d := &decoder{buf: ft.requests[0].payload}
	assert.Equal(t, uint32(9), d.u32(), "handle")
	assert.Equal(t, int32(link.Pro5AlarmFlag), d.i32())
	assert.Equal(t, uint32(2), d.u32())
	assert.Equal(t, []uint32{1, 1, 1}, []uint32{d.u32(), uint32(d.i32()), d.u32()})
	assert.Equal(t, []uint32{1, 2, 1}, []uint32{d.u32(), uint32(d.i32()), d.u32()})
	assert.Empty(t, d.buf)
}

func TestReadItems_CountMismatchIsInternal(t *testing.T) {
	client, _ := newTestClient(func(req request) (link.ResultCode, []byte) {
		return link.CodeOK, reply(1, 7)
	})
	l, _ := client.ProX(link.Version6)

	_, err := l.ReadToolItems(context.Background(), 9, link.Pro5PTN, []uint32{1, 1}, []int32{1, 2})
	require.Error(t, err)
	assert.Equal(t, link.CodeInternal, link.CodeOf(err))
	assert.NotErrorIs(t, err, link.ErrDisconnect)
}

func TestCall_ResultCodeIsReturned(t *testing.T) {
	client, _ := newTestClient(func(req request) (link.ResultCode, []byte) {
		return link.CodeData, nil
	})
	l, _ := client.ProX(link.Version3)

	_, err := l.MaxAtcMagazine(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, link.ErrNoData)

	var le *link.Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "MaxAtcMagazine", le.Op)
}

func TestCall_TransportFailureIsDisconnect(t *testing.T) {
	client, ft := newTestClient(func(req request) (link.ResultCode, []byte) {
		return link.CodeOK, reply(3)
	})
	l, _ := client.ProX(link.Version6)
	ctx := context.Background()

	ft.writeErr = errors.New("broken pipe")
	_, err := l.MaxAtcMagazine(ctx, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, link.ErrDisconnect)
	assert.Equal(t, link.CodeWinsock, link.CodeOf(err))
	assert.False(t, ft.IsOpen())

	// The next call reconnects
	ft.writeErr = nil
	n, err := l.MaxAtcMagazine(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), n)
	assert.Equal(t, 2, ft.opens)
}

func TestCall_BadReplyMagicIsDisconnect(t *testing.T) {
	client, ft := newTestClient(nil)
	ft.rawReply = []byte{0xDE, 0xAD, 0, 0, 0, 0, 0, 0}
	l, _ := client.ProX(link.Version6)

	_, err := l.MaxAtcMagazine(context.Background(), 1)
	assert.ErrorIs(t, err, link.ErrDisconnect)
	assert.False(t, ft.IsOpen())
}

func TestCall_CancelledContext(t *testing.T) {
	client, ft := newTestClient(nil)
	l, _ := client.ProX(link.Version6)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.MaxAtcMagazine(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ft.requests)
}

func TestItemsEnabled(t *testing.T) {
	client, ft := newTestClient(func(req request) (link.ResultCode, []byte) {
		return link.CodeOK, append(reply(3), 1, 0, 1)
	})
	l, _ := client.ProX(link.Version6)
	pro5, ok := l.(link.Pro5Link)
	require.True(t, ok)

	enabled, err := pro5.ItemsEnabled(context.Background(), 1,
		[]link.ItemCode{link.Pro5PTN, link.Pro5AtcSpeed, link.Pro5AlarmFlag})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, enabled)
	assert.Equal(t, OpItemsEnabled, ft.requests[0].op)
}

func TestPro3Calls(t *testing.T) {
	client, _ := newTestClient(func(req request) (link.ResultCode, []byte) {
		switch req.op {
		case OpOptionalItems:
			return link.CodeOK, []byte{0, 1, 0, 1, 0}
		case OpLifeType:
			return link.CodeOK, []byte{0, 3}
		}
		return link.CodeFunc, nil
	})
	l, _ := client.ProX(link.Version3)
	pro3, ok := l.(link.Pro3Link)
	require.True(t, ok)
	ctx := context.Background()

	opt, err := pro3.OptionalItems(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, link.OptionalItems{BTS: true, Slow: true}, opt)

	lifeType, err := pro3.LifeType(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, link.LifeTypeTenthSeconds, lifeType)

	_, err = pro3.SpindleTool(ctx, 1)
	assert.Equal(t, link.CodeFunc, link.CodeOf(err))
}

func TestCncLink(t *testing.T) {
	client, ft := newTestClient(func(req request) (link.ResultCode, []byte) {
		switch req.op {
		case OpCncAllocHandle:
			return link.CodeOK, reply(5)
		case OpModalMCode:
			return link.CodeOK, append(reply(6), 1)
		}
		return link.CodeOK, nil
	})
	cnc := client.Cnc()
	ctx := context.Background()

	h, err := cnc.AllocHandle(ctx, link.NodeInfo{NodeNumber: 8, IPAddress: "10.0.0.5", Port: 8193}, link.Timeouts{})
	require.NoError(t, err)

	code, err := cnc.ModalMCode(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, link.MCode{Code: 6, Requested: true}, code)

	require.NoError(t, cnc.FreeHandle(ctx, h))
	for _, req := range ft.requests {
		assert.Equal(t, link.VersionUnknown, req.version)
	}
}

func TestClient_UnknownVersion(t *testing.T) {
	client, _ := newTestClient(nil)
	_, err := client.ProX(link.Version(4))
	assert.Error(t, err)
}

func TestCall_TransportFailureStaysOnItsChannel(t *testing.T) {
	answer := func(req request) (link.ResultCode, []byte) {
		switch req.op {
		case OpCncAllocHandle:
			return link.CodeOK, reply(5)
		case OpModalMCode:
			return link.CodeOK, append(reply(6), 0)
		}
		return link.CodeOK, reply(3)
	}
	proxClient, proxTransport := newTestClient(answer)
	cncClient, cncTransport := newTestClient(answer)
	ctx := context.Background()

	prox, _ := proxClient.ProX(link.Version6)
	cnc := cncClient.Cnc()
	_, err := prox.MaxAtcMagazine(ctx, 1)
	require.NoError(t, err)
	h, err := cnc.AllocHandle(ctx, link.NodeInfo{IPAddress: "10.0.0.5", Port: 8193}, link.Timeouts{})
	require.NoError(t, err)

	proxTransport.writeErr = errors.New("broken pipe")
	_, err = prox.MaxAtcMagazine(ctx, 1)
	assert.ErrorIs(t, err, link.ErrDisconnect)
	assert.False(t, proxTransport.IsOpen())

	assert.True(t, cncTransport.IsOpen())
	code, err := cnc.ModalMCode(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), code.Code)
	assert.Equal(t, 1, cncTransport.opens)
}

func TestMcAlarms(t *testing.T) {
	body := reply(2)
	// warning 2041 raised 2024-03-01 08:30:00.250
	body = append(body, reply(2041)...)
	body = append(body, 2, 0, 1, 0, 1, 1)
	for _, f := range []uint16{2024, 3, 1, 8, 30, 0, 250} {
		body = binary.BigEndian.AppendUint16(body, f)
	}
	// alarm 135010 without a date
	body = append(body, reply(135010)...)
	body = append(body, 1, 1, 0, 1, 0, 0)
	body = append(body, make([]byte, 14)...)

	client, ft := newTestClient(func(req request) (link.ResultCode, []byte) {
		return link.CodeOK, body
	})
	l, _ := client.ProX(link.Version5)

	alarms, err := l.McAlarms(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, alarms, 2)
	assert.Equal(t, OpMcAlarm, ft.requests[0].op)

	assert.Equal(t, link.McAlarm{
		Number:          2041,
		Type:            link.McAlarmTypeWarning,
		PowerOffDisable: 1,
		RetryEnable:     1,
		FailedNcReset:   true,
		OccurredAt:      time.Date(2024, time.March, 1, 8, 30, 0, 250*int(time.Millisecond), time.Local),
	}, alarms[0])
	assert.Equal(t, uint32(135010), alarms[1].Number)
	assert.Equal(t, uint8(1), alarms[1].SeriousLevel)
	assert.Equal(t, uint8(1), alarms[1].CycleStartDisable)
	assert.True(t, alarms[1].OccurredAt.IsZero())
}

func TestMcAlarms_OversizedCountIsInternal(t *testing.T) {
	client, _ := newTestClient(func(req request) (link.ResultCode, []byte) {
		return link.CodeOK, reply(1000000)
	})
	l, _ := client.ProX(link.Version6)

	_, err := l.McAlarms(context.Background(), 7)
	require.Error(t, err)
	assert.Equal(t, link.CodeInternal, link.CodeOf(err))
}

func TestCncAlarms(t *testing.T) {
	body := binary.BigEndian.AppendUint16(nil, 1)
	body = binary.BigEndian.AppendUint16(body, 1001)
	body = binary.BigEndian.AppendUint16(body, 2)
	body = binary.BigEndian.AppendUint16(body, uint16(len("OVER TRAVEL +Y")))
	body = append(body, "OVER TRAVEL +Y"...)
	body = binary.BigEndian.AppendUint16(body, 4)

	client, ft := newTestClient(func(req request) (link.ResultCode, []byte) {
		return link.CodeOK, body
	})

	alarms, err := client.Cnc().CncAlarms(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []link.CncAlarm{{Number: 1001, Axis: 2, Message: "OVER TRAVEL +Y", Type: 4}}, alarms)
	assert.Equal(t, OpCncAlarm, ft.requests[0].op)
	assert.Equal(t, link.VersionUnknown, ft.requests[0].version)
}
