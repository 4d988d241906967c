// internal/acquisition/topology.go
package acquisition

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"makino-adapter/pkg/link"
)

// Session is the part of a bound ProX session used by the acquisition layer
type Session interface {
	Version() link.Version

	MaxAtcMagazine(ctx context.Context) (uint32, error)
	AtcMagazineInfo(ctx context.Context, magazine uint32) (link.MagazineInfo, error)
	ToolInfo(ctx context.Context) (link.ToolInfo, error)
	ToolLifeInfo(ctx context.Context) (link.ToolLifeInfo, error)
	AtcRandomMagazine(ctx context.Context) (bool, error)

	ReadToolItems(ctx context.Context, item link.ItemCode, positions []link.ToolPosition) ([]int32, error)
	ReadCutterItems(ctx context.Context, item link.ItemCode, positions []link.ToolPosition) ([]int32, error)

	OptionalItems(ctx context.Context) (link.OptionalItems, error)
	LifeType(ctx context.Context) (link.LifeType, error)
	ItemsEnabled(ctx context.Context, items []link.ItemCode) ([]bool, error)

	Capabilities() (map[link.ItemCode]bool, bool)
	SetCapabilities(caps map[link.ItemCode]bool)
}

// EnumeratePositions lists every (magazine, pot, cutter) of the tool storage in ascending order.
// A failed magazine or pot count aborts the walk; a failed cutter count falls back to one cutter per pot.
func EnumeratePositions(ctx context.Context, s Session, logger *zap.Logger) ([]link.ToolPosition, error) {
	version := s.Version()

	magazines, err := s.MaxAtcMagazine(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: magazine count: %w", link.ErrFatalAcquire, err)
	}
	logger.Debug("Magazines found", zap.Uint32("magazines", magazines))

	var positions []link.ToolPosition
	for m := uint32(1); m <= magazines; m++ {
		info, err := s.AtcMagazineInfo(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("%w: pot count of magazine %d: %w", link.ErrFatalAcquire, m, err)
		}
		logger.Debug("Pots found", zap.Uint32("magazine", m), zap.Uint32("pots", info.MaxPot))

		pots := make([]link.ToolPosition, info.MaxPot)
		for i := range pots {
			pots[i] = link.ToolPosition{Magazine: m, Pot: int32(i + 1), Cutter: 1}
		}

		cutters := make([]int32, len(pots))
		for i := range cutters {
			cutters[i] = 1
		}
		if version != link.Version3 && len(pots) > 0 {
			counts, err := s.ReadToolItems(ctx, link.Pro5TotalCutter, pots)
			switch {
			case err == nil:
				cutters = counts
			case errors.Is(err, link.ErrDisconnect):
				return nil, fmt.Errorf("cutter count of magazine %d: %w", m, err)
			default:
				logger.Error("Couldn't get the number of cutters per pot, using 1 cutter per pot",
					zap.Uint32("magazine", m), zap.Error(err))
			}
		}

		for i, pot := range pots {
			for c := int32(1); c <= cutters[i]; c++ {
				positions = append(positions, link.ToolPosition{Magazine: m, Pot: pot.Pot, Cutter: uint32(c)})
			}
		}
	}

	return positions, nil
}
