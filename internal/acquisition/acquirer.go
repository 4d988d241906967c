// internal/acquisition/acquirer.go
package acquisition

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"makino-adapter/pkg/link"
)

// LifeKind is the quantity a v5/v6 life counter measures
type LifeKind int

const (
	LifeKindTime LifeKind = iota
	LifeKindDistance
	LifeKindCount
)

func (k LifeKind) String() string {
	switch k {
	case LifeKindTime:
		return "time"
	case LifeKindDistance:
		return "distance"
	case LifeKindCount:
		return "count"
	}
	return "unknown"
}

// lifeItems are the v5/v6 items of one life kind
type lifeItems struct {
	kind    LifeKind
	managed link.ItemCode
	alarm   link.ItemCode
	actual  link.ItemCode
	warning link.ItemCode
}

var pro5LifeItems = []lifeItems{
	{LifeKindTime, link.Pro5ManageLifeTime, link.Pro5LifeTimeAlarm, link.Pro5LifeTimeActual, link.Pro5LifeTimeWarning},
	{LifeKindDistance, link.Pro5ManageLifeDist, link.Pro5LifeDistAlarm, link.Pro5LifeDistActual, link.Pro5LifeDistWarning},
	{LifeKindCount, link.Pro5ManageLifeCount, link.Pro5LifeCountAlarm, link.Pro5LifeCountActual, link.Pro5LifeCountWarning},
}

// RawLife holds the raw counters of one life kind. Slices are indexed by position ordinal.
type RawLife struct {
	Kind LifeKind
	// Managed is nil on v3, where the single counter is always defined
	Managed []int32
	Actual  []int32
	Limit   []int32
	// Warning is nil when the warning item is not available
	Warning []int32
}

// RawToolData is the result of one acquisition, before normalization. Every per-position slice is
// indexed by the ordinal of the position in Positions; a nil slice is an absent field.
type RawToolData struct {
	Version   link.Version
	Positions []link.ToolPosition

	Inch      bool
	CountDown bool
	// UnknownUnit and UnknownDirection are set when the controller had no unit system or life
	// direction to report; the values that depend on them are then left absent
	UnknownUnit      bool
	UnknownDirection bool
	RandomAtc        bool
	LifeType         link.LifeType

	PTN              []int32
	AlarmFlags       []int32
	FirstUse         []int32
	LengthGeometry   []int32
	DiameterGeometry []int32
	AtcSpeed         []int32
	Life             []RawLife

	Missing []string
}

// Acquirer reads the raw tool data of every position
type Acquirer struct {
	logger *zap.Logger
}

// NewAcquirer creates an acquirer
func NewAcquirer(logger *zap.Logger) *Acquirer {
	return &Acquirer{logger: logger}
}

// Acquire reads the configuration and every tool item enabled on the controller
func (a *Acquirer) Acquire(ctx context.Context, s Session, positions []link.ToolPosition, caps Capabilities) (*RawToolData, error) {
	raw := &RawToolData{
		Version:   s.Version(),
		Positions: positions,
	}

	if err := a.readConfiguration(ctx, s, raw); err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return raw, nil
	}

	var err error
	if raw.Version == link.Version3 {
		err = a.acquirePro3(ctx, s, raw, caps)
	} else {
		err = a.acquirePro5(ctx, s, raw, caps)
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// readConfiguration reads the unit system, the life direction and the random ATC flag. The unit
// system and the life direction scale every value, so their failures abort like a required item.
func (a *Acquirer) readConfiguration(ctx context.Context, s Session, raw *RawToolData) error {
	info, err := s.ToolInfo(ctx)
	if err := a.require(raw, "tool_info", err); err != nil {
		return err
	}
	raw.Inch = info.Inch
	raw.UnknownUnit = err != nil

	lifeInfo, err := s.ToolLifeInfo(ctx)
	if err := a.require(raw, "tool_life_info", err); err != nil {
		return err
	}
	raw.CountDown = lifeInfo.CountDown
	raw.UnknownDirection = err != nil

	random, err := s.AtcRandomMagazine(ctx)
	if err := a.tolerate(raw, "atc_random_magazine", err); err != nil {
		return err
	}
	raw.RandomAtc = random
	if random {
		a.logger.Info("Random pot number management")
	}
	return nil
}

// tolerate records an optional failure and only returns the errors that must abort the cycle
func (a *Acquirer) tolerate(raw *RawToolData, field string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, link.ErrDisconnect) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", field, err)
	}
	if errors.Is(err, link.ErrNoData) {
		a.logger.Debug("No data", zap.String("field", field))
	} else {
		a.logger.Error("Optional field read failed", zap.String("field", field), zap.Error(err))
	}
	raw.Missing = append(raw.Missing, field)
	return nil
}

// require handles the failure of a field a tool record cannot do without. No data leaves it absent;
// any other code aborts the cycle.
func (a *Acquirer) require(raw *RawToolData, field string, err error) error {
	if err == nil || errors.Is(err, link.ErrNoData) {
		return a.tolerate(raw, field, err)
	}
	if errors.Is(err, link.ErrDisconnect) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", field, err)
	}
	return fmt.Errorf("%w: %s: %w", link.ErrFatalAcquire, field, err)
}

func (a *Acquirer) readTool(ctx context.Context, s Session, raw *RawToolData, caps Capabilities, item link.ItemCode, field string, required bool) ([]int32, error) {
	return a.read(ctx, raw, caps, item, field, required, func() ([]int32, error) {
		return s.ReadToolItems(ctx, item, raw.Positions)
	})
}

func (a *Acquirer) readCutter(ctx context.Context, s Session, raw *RawToolData, caps Capabilities, item link.ItemCode, field string, required bool) ([]int32, error) {
	return a.read(ctx, raw, caps, item, field, required, func() ([]int32, error) {
		return s.ReadCutterItems(ctx, item, raw.Positions)
	})
}

// read skips disabled items and applies the failure policy of the field
func (a *Acquirer) read(ctx context.Context, raw *RawToolData, caps Capabilities, item link.ItemCode, field string, required bool,
	fn func() ([]int32, error)) ([]int32, error) {
	if !caps.Enabled(item) {
		a.logger.Debug("Item not enabled, skipped", zap.String("field", field))
		raw.Missing = append(raw.Missing, field)
		return nil, nil
	}

	values, err := fn()
	if err == nil {
		return values, nil
	}
	if required {
		return nil, a.require(raw, field, err)
	}
	return nil, a.tolerate(raw, field, err)
}

func (a *Acquirer) acquirePro3(ctx context.Context, s Session, raw *RawToolData, caps Capabilities) error {
	var err error
	if raw.PTN, err = a.readTool(ctx, s, raw, caps, link.Pro3PTN, "ptn", true); err != nil {
		return err
	}
	if raw.AlarmFlags, err = a.readCutter(ctx, s, raw, caps, link.Pro3Alarm, "alarm_flags", true); err != nil {
		return err
	}
	if raw.LengthGeometry, err = a.readCutter(ctx, s, raw, caps, link.Pro3Len, "length_compensation", false); err != nil {
		return err
	}
	if raw.DiameterGeometry, err = a.readCutter(ctx, s, raw, caps, link.Pro3Dia, "diameter_compensation", false); err != nil {
		return err
	}
	if raw.AtcSpeed, err = a.readTool(ctx, s, raw, caps, link.Pro3Slow, "atc_speed", false); err != nil {
		return err
	}

	lifeType, err := s.LifeType(ctx)
	if err != nil {
		return a.tolerate(raw, "life", err)
	}
	raw.LifeType = lifeType

	actual, err := a.readCutter(ctx, s, raw, caps, link.Pro3Remain, "life_value", false)
	if err != nil {
		return err
	}
	limit, err := a.readCutter(ctx, s, raw, caps, link.Pro3TL, "life_limit", false)
	if err != nil {
		return err
	}
	if actual != nil && limit != nil {
		raw.Life = append(raw.Life, RawLife{Kind: pro3LifeKind(lifeType), Actual: actual, Limit: limit})
	}
	return nil
}

func pro3LifeKind(t link.LifeType) LifeKind {
	switch t {
	case link.LifeTypeDistance:
		return LifeKindDistance
	case link.LifeTypeCount:
		return LifeKindCount
	}
	return LifeKindTime
}

func (a *Acquirer) acquirePro5(ctx context.Context, s Session, raw *RawToolData, caps Capabilities) error {
	var err error
	if raw.PTN, err = a.readTool(ctx, s, raw, caps, link.Pro5PTN, "ptn", true); err != nil {
		return err
	}
	if raw.FirstUse, err = a.readCutter(ctx, s, raw, caps, link.Pro5FirstUse, "first_use", false); err != nil {
		return err
	}
	if raw.AlarmFlags, err = a.readCutter(ctx, s, raw, caps, link.Pro5AlarmFlag, "alarm_flags", true); err != nil {
		return err
	}
	if raw.LengthGeometry, err = a.readCutter(ctx, s, raw, caps, link.Pro5HGeometry, "length_compensation", false); err != nil {
		return err
	}
	if raw.DiameterGeometry, err = a.readCutter(ctx, s, raw, caps, link.Pro5DGeometry, "diameter_compensation", false); err != nil {
		return err
	}
	if raw.AtcSpeed, err = a.readTool(ctx, s, raw, caps, link.Pro5AtcSpeed, "atc_speed", false); err != nil {
		return err
	}

	for _, items := range pro5LifeItems {
		life, err := a.readLife(ctx, s, raw, caps, items)
		if err != nil {
			return err
		}
		if life != nil {
			raw.Life = append(raw.Life, *life)
		}
	}
	return nil
}

// readLife reads one life kind. It is skipped unless its managed, alarm and actual items are all
// enabled; the warning item is optional.
func (a *Acquirer) readLife(ctx context.Context, s Session, raw *RawToolData, caps Capabilities, items lifeItems) (*RawLife, error) {
	if !caps.AllEnabled(items.managed, items.alarm, items.actual) {
		a.logger.Debug("Life counter not enabled", zap.Stringer("kind", items.kind))
		return nil, nil
	}

	prefix := "life_" + items.kind.String()
	life := &RawLife{Kind: items.kind}
	var err error
	if life.Managed, err = a.readCutter(ctx, s, raw, caps, items.managed, prefix+"_managed", false); err != nil {
		return nil, err
	}
	if life.Actual, err = a.readCutter(ctx, s, raw, caps, items.actual, prefix+"_actual", false); err != nil {
		return nil, err
	}
	if life.Limit, err = a.readCutter(ctx, s, raw, caps, items.alarm, prefix+"_limit", false); err != nil {
		return nil, err
	}
	if life.Managed == nil || life.Actual == nil || life.Limit == nil {
		return nil, nil
	}

	if caps.Enabled(items.warning) {
		if life.Warning, err = a.readCutter(ctx, s, raw, caps, items.warning, prefix+"_warning", false); err != nil {
			return nil, err
		}
	}
	return life, nil
}
