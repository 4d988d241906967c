// internal/session/session.go
package session

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"makino-adapter/internal/utils"
	"makino-adapter/pkg/link"
)

// ProXSession is a handle bound to one ProX protocol generation. Exactly one of the Pro3 or Pro5
// variants is set, selected from the version at bind time. Every call goes through the session so
// that a disconnect-class result tears it down before the error reaches the caller.
type ProXSession struct {
	version link.Version
	base    link.ProXLink
	pro3    link.Pro3Link
	pro5    link.Pro5Link
	logger  *utils.ControllerLogger

	mu     sync.RWMutex
	handle link.Handle
	cache  sessionCache

	release func(ctx context.Context, s *ProXSession)
}

// sessionCache holds values read once per session
type sessionCache struct {
	capabilities map[link.ItemCode]bool
	lifeType     *link.LifeType
}

func newProXSession(l link.ProXLink, h link.Handle, logger *utils.ControllerLogger) (*ProXSession, error) {
	s := &ProXSession{
		version: l.Version(),
		base:    l,
		handle:  h,
		logger:  logger,
	}
	switch s.version {
	case link.Version3:
		p3, ok := l.(link.Pro3Link)
		if !ok {
			return nil, fmt.Errorf("link for %s does not implement the Pro3 operations", s.version)
		}
		s.pro3 = p3
	case link.Version5, link.Version6:
		p5, ok := l.(link.Pro5Link)
		if !ok {
			return nil, fmt.Errorf("link for %s does not implement the Pro5 operations", s.version)
		}
		s.pro5 = p5
	default:
		return nil, fmt.Errorf("unsupported link version %d", int(s.version))
	}
	return s, nil
}

// Version returns the bound protocol generation, VersionUnknown once torn down
func (s *ProXSession) Version() link.Version {
	if !s.Active() {
		return link.VersionUnknown
	}
	return s.version
}

// Handle returns the current handle, InvalidHandle once torn down
func (s *ProXSession) Handle() link.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

// Active reports whether the handle is still allocated
func (s *ProXSession) Active() bool {
	return s.Handle().Valid()
}

// Capabilities returns the per-session item capability table, if already loaded
func (s *ProXSession) Capabilities() (map[link.ItemCode]bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.capabilities, s.cache.capabilities != nil
}

// SetCapabilities stores the item capability table for the rest of the session
func (s *ProXSession) SetCapabilities(caps map[link.ItemCode]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.capabilities = caps
}

// invalidate clears the handle and returns the previous one
func (s *ProXSession) invalidate() link.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handle
	s.handle = link.InvalidHandle
	s.cache = sessionCache{}
	return h
}

// check logs a failed call and tears the session down on disconnect-class codes
func (s *ProXSession) check(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	code := link.CodeOf(err)
	if code != link.CodeData {
		if mainErr, subErr, lastErr := s.base.LastError(ctx); lastErr == nil {
			s.logger.LogLastError(op, code.String(), mainErr, subErr)
		} else {
			s.logger.Error("Controller call failed", zap.String("function", op), zap.Error(err))
		}
	}
	if code.IsDisconnect() {
		s.logger.Warn("Disconnect required", zap.String("function", op), zap.String("result", code.String()))
		if s.release != nil {
			s.release(ctx, s)
		} else {
			s.invalidate()
		}
	}
	return fmt.Errorf("%s %s: %w", s.version, op, err)
}

// handleFor returns the handle or a disconnect-class error when the session is gone
func (s *ProXSession) handleFor(op string) (link.Handle, error) {
	h := s.Handle()
	if !h.Valid() {
		return h, fmt.Errorf("%s %s: %w", s.version, op, link.NewError(op, link.CodeHandle))
	}
	return h, nil
}

// MaxAtcMagazine returns the number of ATC magazines
func (s *ProXSession) MaxAtcMagazine(ctx context.Context) (uint32, error) {
	h, err := s.handleFor("MaxAtcMagazine")
	if err != nil {
		return 0, err
	}
	n, err := s.base.MaxAtcMagazine(ctx, h)
	return n, s.check(ctx, "MaxAtcMagazine", err)
}

// AtcMagazineInfo returns the pot count of one magazine
func (s *ProXSession) AtcMagazineInfo(ctx context.Context, magazine uint32) (link.MagazineInfo, error) {
	h, err := s.handleFor("AtcMagazineInfo")
	if err != nil {
		return link.MagazineInfo{}, err
	}
	info, err := s.base.AtcMagazineInfo(ctx, h, magazine)
	return info, s.check(ctx, "AtcMagazineInfo", err)
}

// ToolInfo returns the tool configuration (unit system)
func (s *ProXSession) ToolInfo(ctx context.Context) (link.ToolInfo, error) {
	h, err := s.handleFor("ToolInfo")
	if err != nil {
		return link.ToolInfo{}, err
	}
	info, err := s.base.ToolInfo(ctx, h)
	return info, s.check(ctx, "ToolInfo", err)
}

// ToolLifeInfo returns the life counting direction
func (s *ProXSession) ToolLifeInfo(ctx context.Context) (link.ToolLifeInfo, error) {
	h, err := s.handleFor("ToolLifeInfo")
	if err != nil {
		return link.ToolLifeInfo{}, err
	}
	info, err := s.base.ToolLifeInfo(ctx, h)
	return info, s.check(ctx, "ToolLifeInfo", err)
}

// AtcRandomMagazine reports random pot number management
func (s *ProXSession) AtcRandomMagazine(ctx context.Context) (bool, error) {
	h, err := s.handleFor("AtcRandomMagazine")
	if err != nil {
		return false, err
	}
	random, err := s.base.AtcRandomMagazine(ctx, h)
	return random, s.check(ctx, "AtcRandomMagazine", err)
}

// ReadToolItems reads a tool item for every (magazine, pot) of positions
func (s *ProXSession) ReadToolItems(ctx context.Context, item link.ItemCode, positions []link.ToolPosition) ([]int32, error) {
	op := "GetToolDataItem(" + link.ItemName(s.version, item) + ")"
	h, err := s.handleFor(op)
	if err != nil {
		return nil, err
	}
	magazines, pots, _ := splitPositions(positions)
	values, err := s.base.ReadToolItems(ctx, h, item, magazines, pots)
	if err == nil && len(values) != len(positions) {
		err = link.NewError(op, link.CodeInternal)
	}
	return values, s.check(ctx, op, err)
}

// ReadCutterItems reads a cutter item for every position
func (s *ProXSession) ReadCutterItems(ctx context.Context, item link.ItemCode, positions []link.ToolPosition) ([]int32, error) {
	op := "GetCutterDataItem(" + link.ItemName(s.version, item) + ")"
	h, err := s.handleFor(op)
	if err != nil {
		return nil, err
	}
	magazines, pots, cutters := splitPositions(positions)
	values, err := s.base.ReadCutterItems(ctx, h, item, magazines, pots, cutters)
	if err == nil && len(values) != len(positions) {
		err = link.NewError(op, link.CodeInternal)
	}
	return values, s.check(ctx, op, err)
}

// WriteItems writes one value per position, as a tool or cutter item depending on the item code
func (s *ProXSession) WriteItems(ctx context.Context, item link.ItemCode, positions []link.ToolPosition, values []int32) error {
	if len(values) != len(positions) {
		return fmt.Errorf("%d values for %d positions", len(values), len(positions))
	}
	magazines, pots, cutters := splitPositions(positions)
	if item.IsCutterItem() {
		h, err := s.handleFor("SetCutterDataItem")
		if err != nil {
			return err
		}
		return s.check(ctx, "SetCutterDataItem", s.base.WriteCutterItems(ctx, h, item, magazines, pots, cutters, values))
	}
	h, err := s.handleFor("SetToolDataItem")
	if err != nil {
		return err
	}
	return s.check(ctx, "SetToolDataItem", s.base.WriteToolItems(ctx, h, item, magazines, pots, values))
}

// ClearToolData clears every item of the tools in the given (magazine, pot) positions
func (s *ProXSession) ClearToolData(ctx context.Context, positions []link.ToolPosition) error {
	h, err := s.handleFor("ClearToolData")
	if err != nil {
		return err
	}
	magazines, pots, _ := splitPositions(positions)
	return s.check(ctx, "ClearToolData", s.base.ClearToolData(ctx, h, magazines, pots))
}

// SpindleTool returns the tool in the spindle
func (s *ProXSession) SpindleTool(ctx context.Context) (link.SpindleTool, error) {
	h, err := s.handleFor("SpindleTool")
	if err != nil {
		return link.SpindleTool{}, err
	}
	tool, err := s.base.SpindleTool(ctx, h)
	return tool, s.check(ctx, "SpindleTool", err)
}

// PalletNumber returns the pallet on the machine table
func (s *ProXSession) PalletNumber(ctx context.Context) (uint32, error) {
	h, err := s.handleFor("GetPalletNo")
	if err != nil {
		return 0, err
	}
	pallet, err := s.base.PalletNumber(ctx, h, link.PalletDeviceMachine, link.PalletDefaultDeviceNo, link.PalletPositionTable)
	return pallet, s.check(ctx, "GetPalletNo", err)
}

// McAlarms returns the active machine alarms and warnings as reported
func (s *ProXSession) McAlarms(ctx context.Context) ([]link.McAlarm, error) {
	h, err := s.handleFor("McAlarm")
	if err != nil {
		return nil, err
	}
	alarms, err := s.base.McAlarms(ctx, h)
	return alarms, s.check(ctx, "McAlarm", err)
}

// OptionalItems probes the optional Pro3 tool data groups
func (s *ProXSession) OptionalItems(ctx context.Context) (link.OptionalItems, error) {
	if s.pro3 == nil {
		return link.OptionalItems{}, fmt.Errorf("OptionalItems on %s: %w", s.version, link.ErrNotSupported)
	}
	h, err := s.handleFor("OptionalTldtDefine")
	if err != nil {
		return link.OptionalItems{}, err
	}
	opt, err := s.pro3.OptionalItems(ctx, h)
	return opt, s.check(ctx, "OptionalTldtDefine", err)
}

// LifeType returns the global Pro3 life type, read once per session
func (s *ProXSession) LifeType(ctx context.Context) (link.LifeType, error) {
	if s.pro3 == nil {
		return 0, fmt.Errorf("LifeType on %s: %w", s.version, link.ErrNotSupported)
	}
	s.mu.RLock()
	cached := s.cache.lifeType
	s.mu.RUnlock()
	if cached != nil {
		return *cached, nil
	}

	h, err := s.handleFor("ToollifeInfo")
	if err != nil {
		return 0, err
	}
	lifeType, err := s.pro3.LifeType(ctx, h)
	if err = s.check(ctx, "ToollifeInfo", err); err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.cache.lifeType = &lifeType
	s.mu.Unlock()
	return lifeType, nil
}

// ItemsEnabled asks a Pro5/Pro6 controller which items are available
func (s *ProXSession) ItemsEnabled(ctx context.Context, items []link.ItemCode) ([]bool, error) {
	if s.pro5 == nil {
		return nil, fmt.Errorf("ItemsEnabled on %s: %w", s.version, link.ErrNotSupported)
	}
	h, err := s.handleFor("ToolDataItemIsEnable")
	if err != nil {
		return nil, err
	}
	enabled, err := s.pro5.ItemsEnabled(ctx, h, items)
	if err == nil && len(enabled) != len(items) {
		err = link.NewError("ToolDataItemIsEnable", link.CodeInternal)
	}
	return enabled, s.check(ctx, "ToolDataItemIsEnable", err)
}

func splitPositions(positions []link.ToolPosition) ([]uint32, []int32, []uint32) {
	magazines := make([]uint32, len(positions))
	pots := make([]int32, len(positions))
	cutters := make([]uint32, len(positions))
	for i, p := range positions {
		magazines[i] = p.Magazine
		pots[i] = p.Pot
		cutters[i] = p.Cutter
	}
	return magazines, pots, cutters
}

// CncSession is a handle on the Cnc execution side
type CncSession struct {
	base   link.CncLink
	logger *utils.ControllerLogger

	mu     sync.RWMutex
	handle link.Handle

	release func(ctx context.Context, s *CncSession)
}

// Handle returns the current handle, InvalidHandle once torn down
func (s *CncSession) Handle() link.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

// Active reports whether the handle is still allocated
func (s *CncSession) Active() bool {
	return s.Handle().Valid()
}

func (s *CncSession) invalidate() link.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handle
	s.handle = link.InvalidHandle
	return h
}

// ModalMCode reads the modal M code
func (s *CncSession) ModalMCode(ctx context.Context) (link.MCode, error) {
	h, err := s.handleFor("modal_mcode")
	if err != nil {
		return link.MCode{}, err
	}
	code, err := s.base.ModalMCode(ctx, h)
	return code, s.check(ctx, "modal_mcode", err)
}

// CncAlarms returns the active Cnc alarms
func (s *CncSession) CncAlarms(ctx context.Context) ([]link.CncAlarm, error) {
	h, err := s.handleFor("CncAlarm")
	if err != nil {
		return nil, err
	}
	alarms, err := s.base.CncAlarms(ctx, h)
	return alarms, s.check(ctx, "CncAlarm", err)
}

func (s *CncSession) handleFor(op string) (link.Handle, error) {
	h := s.Handle()
	if !h.Valid() {
		return h, fmt.Errorf("cnc %s: %w", op, link.NewError(op, link.CodeHandle))
	}
	return h, nil
}

// check logs a failed call and tears the session down on disconnect-class codes
func (s *CncSession) check(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	rc := link.CodeOf(err)
	if mainErr, subErr, lastErr := s.base.LastError(ctx); lastErr == nil {
		s.logger.LogLastError(op, rc.String(), mainErr, subErr)
	}
	if rc.IsDisconnect() {
		if s.release != nil {
			s.release(ctx, s)
		} else {
			s.invalidate()
		}
	}
	return fmt.Errorf("cnc %s: %w", op, err)
}
