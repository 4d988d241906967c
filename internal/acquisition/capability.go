// internal/acquisition/capability.go
package acquisition

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"makino-adapter/pkg/link"
)

// Capabilities tells which items may be read on the bound controller
type Capabilities map[link.ItemCode]bool

// Enabled reports whether item may be read. Unknown items are disabled.
func (c Capabilities) Enabled(item link.ItemCode) bool {
	return c[item]
}

// AllEnabled reports whether every item is enabled
func (c Capabilities) AllEnabled(items ...link.ItemCode) bool {
	for _, item := range items {
		if !c[item] {
			return false
		}
	}
	return true
}

// LoadCapabilities returns the capability table of the session, querying the controller the first
// time only. Pro3 derives a fixed table from the optional items probe; Pro5/Pro6 ask the controller
// about every item the acquisition uses.
func LoadCapabilities(ctx context.Context, s Session, logger *zap.Logger) (Capabilities, error) {
	if caps, ok := s.Capabilities(); ok {
		return caps, nil
	}

	var caps Capabilities
	switch s.Version() {
	case link.Version3:
		opt, err := s.OptionalItems(ctx)
		if err != nil {
			if errors.Is(err, link.ErrDisconnect) {
				return nil, err
			}
			logger.Warn("Optional items probe failed, optional items disabled", zap.Error(err))
		}
		caps = link.Pro3Enabled(opt)
		logger.Info("Pro3 optional items",
			zap.Bool("mmc", opt.MMC),
			zap.Bool("bts", opt.BTS),
			zap.Bool("air", opt.Air),
			zap.Bool("slow", opt.Slow),
			zap.Bool("bts_len", opt.BTSLen),
		)

	case link.Version5, link.Version6:
		enabled, err := s.ItemsEnabled(ctx, link.Pro5AcquisitionItems)
		if err != nil {
			return nil, fmt.Errorf("%w: item capabilities: %w", link.ErrFatalAcquire, err)
		}
		caps = make(Capabilities, len(enabled))
		for i, item := range link.Pro5AcquisitionItems {
			caps[item] = enabled[i]
			if !enabled[i] {
				logger.Debug("Item not enabled", zap.String("item", link.ItemName(s.Version(), item)))
			}
		}

	default:
		return nil, fmt.Errorf("capabilities: %w", link.NewError("Version", link.CodeHandle))
	}

	s.SetCapabilities(caps)
	return caps, nil
}
