// internal/controller/emulator/links.go
package emulator

import (
	"context"

	"makino-adapter/pkg/link"
)

// proxLink is the part shared by every emulated ProX generation
type proxLink struct {
	c       *Controller
	version link.Version
}

type pro3Link struct {
	proxLink
}

type pro5Link struct {
	proxLink
}

var (
	_ link.Pro3Link = (*pro3Link)(nil)
	_ link.Pro5Link = (*pro5Link)(nil)
	_ link.CncLink  = (*cncLink)(nil)
)

func (l *proxLink) Version() link.Version {
	return l.version
}

func (l *proxLink) AllocHandle(ctx context.Context, node link.NodeInfo, timeouts link.Timeouts) (link.Handle, error) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempts = append(c.attempts, l.version)
	if err := c.enter(ctx, OpAllocHandle); err != nil {
		return link.InvalidHandle, err
	}
	if code := allocReply(l.version, c.cfg.Version); code != link.CodeOK {
		return link.InvalidHandle, c.fail(OpAllocHandle, code)
	}
	c.nextHandle++
	c.handles[c.nextHandle] = l.version
	return c.nextHandle, nil
}

func (l *proxLink) FreeHandle(ctx context.Context, h link.Handle) error {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	c.calls[OpFreeHandle]++
	if _, ok := c.handles[h]; !ok {
		return c.fail(OpFreeHandle, link.CodeHandle)
	}
	delete(c.handles, h)
	return nil
}

func (l *proxLink) LastError(ctx context.Context) (int32, int32, error) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()
	return int32(c.lastCode), 0, nil
}

func (l *proxLink) MaxAtcMagazine(ctx context.Context, h link.Handle) (uint32, error) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(ctx, OpMaxAtcMagazine); err != nil {
		return 0, err
	}
	if err := c.checkHandle(OpMaxAtcMagazine, h); err != nil {
		return 0, err
	}
	return uint32(len(c.magazines)), nil
}

func (l *proxLink) AtcMagazineInfo(ctx context.Context, h link.Handle, magazine uint32) (link.MagazineInfo, error) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(ctx, OpAtcMagazineInfo); err != nil {
		return link.MagazineInfo{}, err
	}
	if err := c.checkHandle(OpAtcMagazineInfo, h); err != nil {
		return link.MagazineInfo{}, err
	}
	if magazine < 1 || int(magazine) > len(c.magazines) {
		return link.MagazineInfo{}, c.fail(OpAtcMagazineInfo, link.CodePara)
	}
	pots := c.magazines[magazine-1]
	var empty uint32
	for _, p := range pots {
		if len(p.Tool) == 0 {
			empty++
		}
	}
	return link.MagazineInfo{MaxPot: uint32(len(pots)), EmptyPot: empty}, nil
}

func (l *proxLink) ToolInfo(ctx context.Context, h link.Handle) (link.ToolInfo, error) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(ctx, OpToolInfo); err != nil {
		return link.ToolInfo{}, err
	}
	if err := c.checkHandle(OpToolInfo, h); err != nil {
		return link.ToolInfo{}, err
	}
	return link.ToolInfo{Inch: c.cfg.Inch, FTNDigits: 8, ITNDigits: 8, PTNDigits: 4, ManageType: 1}, nil
}

func (l *proxLink) ToolLifeInfo(ctx context.Context, h link.Handle) (link.ToolLifeInfo, error) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(ctx, OpToolLifeInfo); err != nil {
		return link.ToolLifeInfo{}, err
	}
	if err := c.checkHandle(OpToolLifeInfo, h); err != nil {
		return link.ToolLifeInfo{}, err
	}
	return link.ToolLifeInfo{CountDown: c.cfg.CountDown}, nil
}

func (l *proxLink) AtcRandomMagazine(ctx context.Context, h link.Handle) (bool, error) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(ctx, OpAtcRandomMagazine); err != nil {
		return false, err
	}
	if err := c.checkHandle(OpAtcRandomMagazine, h); err != nil {
		return false, err
	}
	return c.cfg.RandomAtc, nil
}

func (l *proxLink) ReadToolItems(ctx context.Context, h link.Handle, item link.ItemCode, magazines []uint32, pots []int32) ([]int32, error) {
	return l.c.readItems(ctx, OpReadToolItems, l.version, h, item, magazines, pots, nil)
}

func (l *proxLink) ReadCutterItems(ctx context.Context, h link.Handle, item link.ItemCode, magazines []uint32, pots []int32, cutters []uint32) ([]int32, error) {
	if cutters == nil {
		cutters = []uint32{}
	}
	return l.c.readItems(ctx, OpReadCutterItems, l.version, h, item, magazines, pots, cutters)
}

func (l *proxLink) WriteToolItems(ctx context.Context, h link.Handle, item link.ItemCode, magazines []uint32, pots []int32, values []int32) error {
	return l.c.writeItems(ctx, OpWriteToolItems, h, item, magazines, pots, nil, values)
}

func (l *proxLink) WriteCutterItems(ctx context.Context, h link.Handle, item link.ItemCode, magazines []uint32, pots []int32, cutters []uint32, values []int32) error {
	if cutters == nil {
		cutters = []uint32{}
	}
	return l.c.writeItems(ctx, OpWriteCutterItems, h, item, magazines, pots, cutters, values)
}

func (l *proxLink) ClearToolData(ctx context.Context, h link.Handle, magazines []uint32, pots []int32) error {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(ctx, OpClearToolData); err != nil {
		return err
	}
	if err := c.checkHandle(OpClearToolData, h); err != nil {
		return err
	}
	if len(pots) != len(magazines) {
		return c.fail(OpClearToolData, link.CodePara)
	}
	for i := range magazines {
		p := c.pot(magazines[i], pots[i])
		if p == nil {
			return c.fail(OpClearToolData, link.CodePara)
		}
		p.Tool = make(map[link.ItemCode]int32)
		for j := range p.Cutters {
			p.Cutters[j] = make(map[link.ItemCode]int32)
		}
	}
	return nil
}

func (l *proxLink) SpindleTool(ctx context.Context, h link.Handle) (link.SpindleTool, error) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(ctx, OpSpindleTool); err != nil {
		return link.SpindleTool{}, err
	}
	if err := c.checkHandle(OpSpindleTool, h); err != nil {
		return link.SpindleTool{}, err
	}
	return c.spindle, nil
}

func (l *proxLink) PalletNumber(ctx context.Context, h link.Handle, device, deviceNo, position uint32) (uint32, error) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(ctx, OpPalletNumber); err != nil {
		return 0, err
	}
	if err := c.checkHandle(OpPalletNumber, h); err != nil {
		return 0, err
	}
	if device != link.PalletDeviceMachine || position != link.PalletPositionTable {
		return 0, c.fail(OpPalletNumber, link.CodePara)
	}
	return c.pallet, nil
}

func (l *proxLink) McAlarms(ctx context.Context, h link.Handle) ([]link.McAlarm, error) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(ctx, OpMcAlarm); err != nil {
		return nil, err
	}
	if err := c.checkHandle(OpMcAlarm, h); err != nil {
		return nil, err
	}
	return append([]link.McAlarm(nil), c.mcAlarms...), nil
}

func (l *pro3Link) OptionalItems(ctx context.Context, h link.Handle) (link.OptionalItems, error) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(ctx, OpOptionalItems); err != nil {
		return link.OptionalItems{}, err
	}
	if err := c.checkHandle(OpOptionalItems, h); err != nil {
		return link.OptionalItems{}, err
	}
	return c.cfg.Optional, nil
}

func (l *pro3Link) LifeType(ctx context.Context, h link.Handle) (link.LifeType, error) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(ctx, OpLifeType); err != nil {
		return 0, err
	}
	if err := c.checkHandle(OpLifeType, h); err != nil {
		return 0, err
	}
	return c.cfg.LifeType, nil
}

func (l *pro5Link) ItemsEnabled(ctx context.Context, h link.Handle, items []link.ItemCode) ([]bool, error) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(ctx, OpItemsEnabled); err != nil {
		return nil, err
	}
	if err := c.checkHandle(OpItemsEnabled, h); err != nil {
		return nil, err
	}
	enabled := make([]bool, len(items))
	for i, item := range items {
		enabled[i] = !c.disabled[item]
	}
	return enabled, nil
}

// cncLink is the emulated Cnc side
type cncLink struct {
	c *Controller
}

func (l *cncLink) AllocHandle(ctx context.Context, node link.NodeInfo, timeouts link.Timeouts) (link.Handle, error) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(ctx, OpCncAlloc); err != nil {
		return link.InvalidHandle, err
	}
	c.nextHandle++
	c.cncHandles[c.nextHandle] = true
	return c.nextHandle, nil
}

func (l *cncLink) FreeHandle(ctx context.Context, h link.Handle) error {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	c.calls["cnc_freelibhndl"]++
	if !c.cncHandles[h] {
		return c.fail("cnc_freelibhndl", link.CodeHandle)
	}
	delete(c.cncHandles, h)
	return nil
}

func (l *cncLink) LastError(ctx context.Context) (int32, int32, error) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()
	return int32(c.lastCode), 0, nil
}

func (l *cncLink) ModalMCode(ctx context.Context, h link.Handle) (link.MCode, error) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(ctx, OpModalMCode); err != nil {
		return link.MCode{}, err
	}
	if !c.cncHandles[h] {
		return link.MCode{}, c.fail(OpModalMCode, link.CodeHandle)
	}
	return c.mcode, nil
}

func (l *cncLink) CncAlarms(ctx context.Context, h link.Handle) ([]link.CncAlarm, error) {
	c := l.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(ctx, OpCncAlarm); err != nil {
		return nil, err
	}
	if !c.cncHandles[h] {
		return nil, c.fail(OpCncAlarm, link.CodeHandle)
	}
	return append([]link.CncAlarm(nil), c.cncAlarms...), nil
}
