// internal/controller/emulator/emulator.go
package emulator

import (
	"context"
	"fmt"
	"sync"

	"makino-adapter/pkg/link"
)

// Operation names used for fault injection and call accounting
const (
	OpAllocHandle       = "AllocHandle"
	OpFreeHandle        = "FreeHandle"
	OpMaxAtcMagazine    = "MaxAtcMagazine"
	OpAtcMagazineInfo   = "AtcMagazineInfo"
	OpToolInfo          = "ToolInfo"
	OpToolLifeInfo      = "ToolLifeInfo"
	OpAtcRandomMagazine = "AtcRandomMagazine"
	OpReadToolItems     = "GetToolDataItem"
	OpReadCutterItems   = "GetCutterDataItem"
	OpWriteToolItems    = "SetToolDataItem"
	OpWriteCutterItems  = "SetCutterDataItem"
	OpClearToolData     = "ClearToolData"
	OpSpindleTool       = "SpindleTool"
	OpPalletNumber      = "GetPalletNo"
	OpMcAlarm           = "McAlarm"
	OpOptionalItems     = "OptionalTldtDefine"
	OpLifeType          = "ToollifeInfo"
	OpItemsEnabled      = "ToolDataItemIsEnable"
	OpCncAlloc          = "cnc_allclibhndl3"
	OpModalMCode        = "modal_mcode"
	OpCncAlarm          = "CncAlarm"
)

// Pot is one ATC pot: tool items plus one item table per cutter
type Pot struct {
	Tool    map[link.ItemCode]int32
	Cutters []map[link.ItemCode]int32
}

// Config describes the emulated machine
type Config struct {
	Version         link.Version
	Inch            bool
	CountDown       bool
	RandomAtc       bool
	Optional        link.OptionalItems
	LifeType        link.LifeType
	PotsPerMagazine []int
	CuttersPerPot   int
}

// Controller is an in-memory Makino controller. It serves links of every generation and answers
// with the replies a real controller of Config.Version gives to each of them.
type Controller struct {
	mu sync.Mutex

	cfg       Config
	magazines [][]*Pot
	disabled  map[link.ItemCode]bool
	itemFault map[link.ItemCode]link.ResultCode
	opFault   map[string]link.ResultCode

	handles    map[link.Handle]link.Version
	cncHandles map[link.Handle]bool
	nextHandle link.Handle
	lastCode   link.ResultCode

	calls    map[string]int
	total    int
	attempts []link.Version

	spindle   link.SpindleTool
	pallet    uint32
	mcode     link.MCode
	mcAlarms  []link.McAlarm
	cncAlarms []link.CncAlarm
}

// New creates an emulated controller with empty pots
func New(cfg Config) *Controller {
	if cfg.CuttersPerPot < 1 {
		cfg.CuttersPerPot = 1
	}
	if cfg.Version == link.Version3 {
		cfg.CuttersPerPot = 1
	}
	c := &Controller{
		cfg:        cfg,
		disabled:   make(map[link.ItemCode]bool),
		itemFault:  make(map[link.ItemCode]link.ResultCode),
		opFault:    make(map[string]link.ResultCode),
		handles:    make(map[link.Handle]link.Version),
		cncHandles: make(map[link.Handle]bool),
		calls:      make(map[string]int),
		pallet:     1,
	}
	for _, pots := range cfg.PotsPerMagazine {
		magazine := make([]*Pot, pots)
		for p := range magazine {
			pot := &Pot{Tool: make(map[link.ItemCode]int32)}
			for i := 0; i < cfg.CuttersPerPot; i++ {
				pot.Cutters = append(pot.Cutters, make(map[link.ItemCode]int32))
			}
			magazine[p] = pot
		}
		c.magazines = append(c.magazines, magazine)
	}
	return c
}

// Version returns the generation the emulated controller runs
func (c *Controller) Version() link.Version {
	return c.cfg.Version
}

// ProX returns a link of the requested generation talking to this controller
func (c *Controller) ProX(v link.Version) (link.ProXLink, error) {
	base := proxLink{c: c, version: v}
	switch v {
	case link.Version3:
		return &pro3Link{base}, nil
	case link.Version5, link.Version6:
		return &pro5Link{base}, nil
	}
	return nil, fmt.Errorf("no emulated link for version %d", int(v))
}

// Cnc returns the Cnc side link
func (c *Controller) Cnc() (link.CncLink, error) {
	return &cncLink{c: c}, nil
}

// Fault injection

// FailItem makes every read or write of item return code
func (c *Controller) FailItem(item link.ItemCode, code link.ResultCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.itemFault[item] = code
}

// FailOp makes every call of op return code
func (c *Controller) FailOp(op string, code link.ResultCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opFault[op] = code
}

// ClearFaults removes every injected fault
func (c *Controller) ClearFaults() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.itemFault = make(map[link.ItemCode]link.ResultCode)
	c.opFault = make(map[string]link.ResultCode)
}

// Disable marks items as not available on this controller
func (c *Controller) Disable(items ...link.ItemCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range items {
		c.disabled[item] = true
	}
}

// DropConnection forgets every allocated handle, as after a network loss
func (c *Controller) DropConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles = make(map[link.Handle]link.Version)
	c.cncHandles = make(map[link.Handle]bool)
}

// Call accounting

// Calls returns the total number of link calls received
func (c *Controller) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// CallCount returns the number of calls of one operation
func (c *Controller) CallCount(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// AllocAttempts returns the link generations that tried to allocate a ProX handle, in order
func (c *Controller) AllocAttempts() []link.Version {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]link.Version(nil), c.attempts...)
}

// OpenHandles returns the number of allocated ProX handles
func (c *Controller) OpenHandles() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// Machine state

// SetToolItem stores a tool item of one pot
func (c *Controller) SetToolItem(magazine uint32, pot int32, item link.ItemCode, value int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p := c.pot(magazine, pot); p != nil {
		p.Tool[item] = value
	}
}

// SetCutterItem stores a cutter item of one position
func (c *Controller) SetCutterItem(pos link.ToolPosition, item link.ItemCode, value int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m := c.cutter(pos); m != nil {
		m[item] = value
	}
}

// SetCutterCount changes the number of cutters of one pot
func (c *Controller) SetCutterCount(magazine uint32, pot int32, cutters int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pot(magazine, pot)
	if p == nil {
		return
	}
	for len(p.Cutters) < cutters {
		p.Cutters = append(p.Cutters, make(map[link.ItemCode]int32))
	}
	p.Cutters = p.Cutters[:cutters]
}

// SetSpindleTool sets the tool mounted in the spindle
func (c *Controller) SetSpindleTool(tool link.SpindleTool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spindle = tool
}

// SetPallet sets the pallet on the machine table
func (c *Controller) SetPallet(pallet uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pallet = pallet
}

// SetMCode sets the modal M code of the Cnc side
func (c *Controller) SetMCode(code link.MCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mcode = code
}

// SetMcAlarms replaces the active machine alarms and warnings
func (c *Controller) SetMcAlarms(alarms ...link.McAlarm) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mcAlarms = append([]link.McAlarm(nil), alarms...)
}

// SetCncAlarms replaces the active Cnc alarms
func (c *Controller) SetCncAlarms(alarms ...link.CncAlarm) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cncAlarms = append([]link.CncAlarm(nil), alarms...)
}

func (c *Controller) pot(magazine uint32, pot int32) *Pot {
	if magazine < 1 || int(magazine) > len(c.magazines) {
		return nil
	}
	pots := c.magazines[magazine-1]
	if pot < 1 || int(pot) > len(pots) {
		return nil
	}
	return pots[pot-1]
}

func (c *Controller) cutter(pos link.ToolPosition) map[link.ItemCode]int32 {
	p := c.pot(pos.Magazine, pos.Pot)
	if p == nil || pos.Cutter < 1 || int(pos.Cutter) > len(p.Cutters) {
		return nil
	}
	return p.Cutters[pos.Cutter-1]
}

// enter records a call and returns the injected fault for op, if any. Caller holds mu.
func (c *Controller) enter(ctx context.Context, op string) error {
	c.total++
	c.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if code, ok := c.opFault[op]; ok {
		return c.fail(op, code)
	}
	return nil
}

func (c *Controller) fail(op string, code link.ResultCode) error {
	c.lastCode = code
	return link.NewError(op, code)
}

// checkHandle validates a ProX handle. Caller holds mu.
func (c *Controller) checkHandle(op string, h link.Handle) error {
	if _, ok := c.handles[h]; !ok {
		return c.fail(op, link.CodeHandle)
	}
	return nil
}

// allocReply is the controller answer to an allocation with a link of another generation
func allocReply(linkVersion, controllerVersion link.Version) link.ResultCode {
	switch {
	case linkVersion == controllerVersion:
		return link.CodeOK
	case linkVersion == link.Version3:
		return link.CodeData
	case controllerVersion == link.Version3:
		return link.CodeDisconnect
	default:
		return link.CodeBuffer
	}
}

func (c *Controller) readItems(ctx context.Context, op string, v link.Version, h link.Handle, item link.ItemCode,
	magazines []uint32, pots []int32, cutters []uint32) ([]int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(ctx, op); err != nil {
		return nil, err
	}
	if err := c.checkHandle(op, h); err != nil {
		return nil, err
	}
	if code, ok := c.itemFault[item]; ok {
		return nil, c.fail(op, code)
	}
	if c.disabled[item] {
		return nil, c.fail(op, link.CodeFunc)
	}
	if len(pots) != len(magazines) || (cutters != nil && len(cutters) != len(magazines)) {
		return nil, c.fail(op, link.CodePara)
	}

	values := make([]int32, len(magazines))
	for i := range magazines {
		p := c.pot(magazines[i], pots[i])
		if p == nil {
			return nil, c.fail(op, link.CodePara)
		}
		if cutters == nil {
			if v != link.Version3 && item == link.Pro5TotalCutter {
				values[i] = int32(len(p.Cutters))
				continue
			}
			values[i] = p.Tool[item]
			continue
		}
		m := c.cutter(link.ToolPosition{Magazine: magazines[i], Pot: pots[i], Cutter: cutters[i]})
		if m == nil {
			return nil, c.fail(op, link.CodePara)
		}
		values[i] = m[item]
	}
	return values, nil
}

func (c *Controller) writeItems(ctx context.Context, op string, h link.Handle, item link.ItemCode,
	magazines []uint32, pots []int32, cutters []uint32, values []int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.enter(ctx, op); err != nil {
		return err
	}
	if err := c.checkHandle(op, h); err != nil {
		return err
	}
	if code, ok := c.itemFault[item]; ok {
		return c.fail(op, code)
	}
	if len(pots) != len(magazines) || len(values) != len(magazines) || (cutters != nil && len(cutters) != len(magazines)) {
		return c.fail(op, link.CodePara)
	}

	for i := range magazines {
		p := c.pot(magazines[i], pots[i])
		if p == nil {
			return c.fail(op, link.CodePara)
		}
		if cutters == nil {
			p.Tool[item] = values[i]
			continue
		}
		m := c.cutter(link.ToolPosition{Magazine: magazines[i], Pot: pots[i], Cutter: cutters[i]})
		if m == nil {
			return c.fail(op, link.CodePara)
		}
		m[item] = values[i]
	}
	return nil
}
