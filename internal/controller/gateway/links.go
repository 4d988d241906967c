// internal/controller/gateway/links.go
package gateway

import (
	"context"
	"fmt"

	"makino-adapter/pkg/link"
)

var (
	_ link.Pro3Link = (*pro3Link)(nil)
	_ link.Pro5Link = (*pro5Link)(nil)
	_ link.CncLink  = (*cncLink)(nil)
)

// proxLink carries the calls shared by every ProX generation
type proxLink struct {
	client  *Client
	version link.Version
}

type pro3Link struct{ proxLink }

type pro5Link struct{ proxLink }

func (l *proxLink) Version() link.Version { return l.version }

func (l *proxLink) call(ctx context.Context, op Op, e *encoder) (*decoder, error) {
	var payload []byte
	if e != nil {
		payload = e.buf
	}
	return l.client.call(ctx, op, l.version, payload)
}

// withHandle starts a payload with the session handle
func withHandle(h link.Handle) *encoder {
	e := &encoder{}
	e.handle(h)
	return e
}

func encodeAlloc(node link.NodeInfo, timeouts link.Timeouts) *encoder {
	e := &encoder{}
	e.u16(uint16(node.NodeNumber))
	e.str(node.IPAddress)
	e.u16(uint16(node.Port))
	e.boolean(node.Emulate)
	e.millis(timeouts.Send)
	e.millis(timeouts.Reply)
	e.millis(timeouts.NoopCycle)
	e.u8(timeouts.LogLevel)
	return e
}

func (l *proxLink) AllocHandle(ctx context.Context, node link.NodeInfo, timeouts link.Timeouts) (link.Handle, error) {
	d, err := l.call(ctx, OpAllocHandle, encodeAlloc(node, timeouts))
	if err != nil {
		return link.InvalidHandle, err
	}
	h := link.Handle(d.u32())
	return h, decode(OpAllocHandle, d)
}

func (l *proxLink) FreeHandle(ctx context.Context, h link.Handle) error {
	_, err := l.call(ctx, OpFreeHandle, withHandle(h))
	return err
}

func (l *proxLink) LastError(ctx context.Context) (int32, int32, error) {
	d, err := l.call(ctx, OpLastError, nil)
	if err != nil {
		return 0, 0, err
	}
	main, sub := d.i32(), d.i32()
	return main, sub, decode(OpLastError, d)
}

func (l *proxLink) MaxAtcMagazine(ctx context.Context, h link.Handle) (uint32, error) {
	d, err := l.call(ctx, OpMaxAtcMagazine, withHandle(h))
	if err != nil {
		return 0, err
	}
	n := d.u32()
	return n, decode(OpMaxAtcMagazine, d)
}

func (l *proxLink) AtcMagazineInfo(ctx context.Context, h link.Handle, magazine uint32) (link.MagazineInfo, error) {
	e := withHandle(h)
	e.u32(magazine)
	d, err := l.call(ctx, OpAtcMagazineInfo, e)
	if err != nil {
		return link.MagazineInfo{}, err
	}
	info := link.MagazineInfo{MaxPot: d.u32(), Type: d.i32(), EmptyPot: d.u32()}
	return info, decode(OpAtcMagazineInfo, d)
}

func (l *proxLink) ToolInfo(ctx context.Context, h link.Handle) (link.ToolInfo, error) {
	d, err := l.call(ctx, OpToolInfo, withHandle(h))
	if err != nil {
		return link.ToolInfo{}, err
	}
	info := link.ToolInfo{
		Inch:       d.boolean(),
		FTNDigits:  d.u32(),
		ITNDigits:  d.u32(),
		PTNDigits:  d.u32(),
		ManageType: d.u32(),
	}
	return info, decode(OpToolInfo, d)
}

func (l *proxLink) ToolLifeInfo(ctx context.Context, h link.Handle) (link.ToolLifeInfo, error) {
	d, err := l.call(ctx, OpToolLifeInfo, withHandle(h))
	if err != nil {
		return link.ToolLifeInfo{}, err
	}
	info := link.ToolLifeInfo{CountDown: d.boolean(), AlarmResetMaxLife: d.boolean()}
	return info, decode(OpToolLifeInfo, d)
}

func (l *proxLink) AtcRandomMagazine(ctx context.Context, h link.Handle) (bool, error) {
	d, err := l.call(ctx, OpAtcRandomMagazine, withHandle(h))
	if err != nil {
		return false, err
	}
	random := d.boolean()
	return random, decode(OpAtcRandomMagazine, d)
}

func checkColumns(op Op, magazines []uint32, pots []int32, cutters []uint32, values []int32) error {
	n := len(magazines)
	if len(pots) != n || (cutters != nil && len(cutters) != n) || (values != nil && len(values) != n) {
		return fmt.Errorf("%s: position columns differ in length", op)
	}
	return nil
}

func (l *proxLink) readItems(ctx context.Context, op Op, h link.Handle, item link.ItemCode, magazines []uint32, pots []int32, cutters []uint32) ([]int32, error) {
	if err := checkColumns(op, magazines, pots, cutters, nil); err != nil {
		return nil, err
	}
	e := withHandle(h)
	e.positions(item, magazines, pots, cutters)
	d, err := l.call(ctx, op, e)
	if err != nil {
		return nil, err
	}
	values := d.int32s(len(magazines))
	return values, decode(op, d)
}

func (l *proxLink) writeItems(ctx context.Context, op Op, h link.Handle, item link.ItemCode, magazines []uint32, pots []int32, cutters []uint32, values []int32) error {
	if err := checkColumns(op, magazines, pots, cutters, values); err != nil {
		return err
	}
	e := withHandle(h)
	e.positions(item, magazines, pots, cutters)
	for _, v := range values {
		e.i32(v)
	}
	_, err := l.call(ctx, op, e)
	return err
}

func (l *proxLink) ReadToolItems(ctx context.Context, h link.Handle, item link.ItemCode, magazines []uint32, pots []int32) ([]int32, error) {
	return l.readItems(ctx, OpReadToolItems, h, item, magazines, pots, nil)
}

func (l *proxLink) ReadCutterItems(ctx context.Context, h link.Handle, item link.ItemCode, magazines []uint32, pots []int32, cutters []uint32) ([]int32, error) {
	if cutters == nil {
		cutters = []uint32{}
	}
	return l.readItems(ctx, OpReadCutterItems, h, item, magazines, pots, cutters)
}

func (l *proxLink) WriteToolItems(ctx context.Context, h link.Handle, item link.ItemCode, magazines []uint32, pots []int32, values []int32) error {
	return l.writeItems(ctx, OpWriteToolItems, h, item, magazines, pots, nil, values)
}

func (l *proxLink) WriteCutterItems(ctx context.Context, h link.Handle, item link.ItemCode, magazines []uint32, pots []int32, cutters []uint32, values []int32) error {
	if cutters == nil {
		cutters = []uint32{}
	}
	return l.writeItems(ctx, OpWriteCutterItems, h, item, magazines, pots, cutters, values)
}

func (l *proxLink) ClearToolData(ctx context.Context, h link.Handle, magazines []uint32, pots []int32) error {
	if err := checkColumns(OpClearToolData, magazines, pots, nil, nil); err != nil {
		return err
	}
	e := withHandle(h)
	e.u32(uint32(len(magazines)))
	for i := range magazines {
		e.u32(magazines[i])
		e.i32(pots[i])
	}
	_, err := l.call(ctx, OpClearToolData, e)
	return err
}

func (l *proxLink) SpindleTool(ctx context.Context, h link.Handle) (link.SpindleTool, error) {
	d, err := l.call(ctx, OpSpindleTool, withHandle(h))
	if err != nil {
		return link.SpindleTool{}, err
	}
	tool := link.SpindleTool{
		Magazine: d.u32(),
		Pot:      d.i32(),
		Cutter:   d.u32(),
		FTN:      d.u32(),
		ITN:      d.u32(),
		PTN:      d.u32(),
	}
	return tool, decode(OpSpindleTool, d)
}

func (l *proxLink) PalletNumber(ctx context.Context, h link.Handle, device, deviceNo, position uint32) (uint32, error) {
	e := withHandle(h)
	e.u32(device)
	e.u32(deviceNo)
	e.u32(position)
	d, err := l.call(ctx, OpPalletNumber, e)
	if err != nil {
		return 0, err
	}
	pallet := d.u32()
	return pallet, decode(OpPalletNumber, d)
}

// McAlarms reads the active machine alarms and warnings
func (l *proxLink) McAlarms(ctx context.Context, h link.Handle) ([]link.McAlarm, error) {
	d, err := l.call(ctx, OpMcAlarm, withHandle(h))
	if err != nil {
		return nil, err
	}
	n := d.count(int(d.u32()), mcAlarmSize)
	alarms := make([]link.McAlarm, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		alarms = append(alarms, link.McAlarm{
			Number:            d.u32(),
			Type:              d.u8(),
			SeriousLevel:      d.u8(),
			PowerOffDisable:   d.u8(),
			CycleStartDisable: d.u8(),
			RetryEnable:       d.u8(),
			FailedNcReset:     d.boolean(),
			OccurredAt:        d.systemTime(),
		})
	}
	return alarms, decode(OpMcAlarm, d)
}

// mcAlarmSize is the encoded size of one machine alarm: number, six flag bytes and a system time
const mcAlarmSize = 4 + 6 + 7*2

func (l *pro3Link) OptionalItems(ctx context.Context, h link.Handle) (link.OptionalItems, error) {
	d, err := l.call(ctx, OpOptionalItems, withHandle(h))
	if err != nil {
		return link.OptionalItems{}, err
	}
	opt := link.OptionalItems{
		MMC:    d.boolean(),
		BTS:    d.boolean(),
		Air:    d.boolean(),
		Slow:   d.boolean(),
		BTSLen: d.boolean(),
	}
	return opt, decode(OpOptionalItems, d)
}

func (l *pro3Link) LifeType(ctx context.Context, h link.Handle) (link.LifeType, error) {
	d, err := l.call(ctx, OpLifeType, withHandle(h))
	if err != nil {
		return 0, err
	}
	lifeType := link.LifeType(d.i16())
	return lifeType, decode(OpLifeType, d)
}

func (l *pro5Link) ItemsEnabled(ctx context.Context, h link.Handle, items []link.ItemCode) ([]bool, error) {
	e := withHandle(h)
	e.u32(uint32(len(items)))
	for _, item := range items {
		e.i32(int32(item))
	}
	d, err := l.call(ctx, OpItemsEnabled, e)
	if err != nil {
		return nil, err
	}
	if n := int(d.u32()); d.err == nil && n != len(items) {
		return nil, fmt.Errorf("%w: reply carries %d flags for %d items",
			link.NewError(OpItemsEnabled.String(), link.CodeInternal), n, len(items))
	}
	enabled := make([]bool, len(items))
	for i := range enabled {
		enabled[i] = d.boolean()
	}
	return enabled, decode(OpItemsEnabled, d)
}

// cncLink is the Cnc side; it carries no protocol generation
type cncLink struct {
	client *Client
}

func (l *cncLink) AllocHandle(ctx context.Context, node link.NodeInfo, timeouts link.Timeouts) (link.Handle, error) {
	d, err := l.client.call(ctx, OpCncAllocHandle, link.VersionUnknown, encodeAlloc(node, timeouts).buf)
	if err != nil {
		return link.InvalidHandle, err
	}
	h := link.Handle(d.u32())
	return h, decode(OpCncAllocHandle, d)
}

func (l *cncLink) FreeHandle(ctx context.Context, h link.Handle) error {
	_, err := l.client.call(ctx, OpCncFreeHandle, link.VersionUnknown, withHandle(h).buf)
	return err
}

func (l *cncLink) LastError(ctx context.Context) (int32, int32, error) {
	d, err := l.client.call(ctx, OpCncLastError, link.VersionUnknown, nil)
	if err != nil {
		return 0, 0, err
	}
	main, sub := d.i32(), d.i32()
	return main, sub, decode(OpCncLastError, d)
}

func (l *cncLink) ModalMCode(ctx context.Context, h link.Handle) (link.MCode, error) {
	d, err := l.client.call(ctx, OpModalMCode, link.VersionUnknown, withHandle(h).buf)
	if err != nil {
		return link.MCode{}, err
	}
	code := link.MCode{Code: d.u32(), Requested: d.boolean()}
	return code, decode(OpModalMCode, d)
}

// CncAlarms reads the active Cnc alarms
func (l *cncLink) CncAlarms(ctx context.Context, h link.Handle) ([]link.CncAlarm, error) {
	d, err := l.client.call(ctx, OpCncAlarm, link.VersionUnknown, withHandle(h).buf)
	if err != nil {
		return nil, err
	}
	// number, axis, message length and type
	n := d.count(int(d.u16()), 8)
	alarms := make([]link.CncAlarm, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		alarms = append(alarms, link.CncAlarm{
			Number:  d.u16(),
			Axis:    d.u16(),
			Message: d.str(),
			Type:    d.u16(),
		})
	}
	return alarms, decode(OpCncAlarm, d)
}
