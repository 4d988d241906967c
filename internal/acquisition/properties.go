// internal/acquisition/properties.go
package acquisition

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"makino-adapter/internal/model"
	"makino-adapter/pkg/link"
)

// ReadProperties dumps every known item of every position, listing the items that could not be
// read. It is a commissioning aid and does not use the acquisition capability table.
func (a *Acquirer) ReadProperties(ctx context.Context, s Session, positions []link.ToolPosition) (*model.ItemProperties, error) {
	version := s.Version()
	items := link.KnownItems(version)

	props := &model.ItemProperties{
		ProtocolVersion: version.String(),
		Positions:       make([]string, len(positions)),
		Values:          make(map[string][]int32),
	}
	for i, p := range positions {
		props.Positions[i] = p.String()
	}

	enabled := make([]bool, len(items))
	for i := range enabled {
		enabled[i] = true
	}
	if version != link.Version3 {
		var err error
		enabled, err = s.ItemsEnabled(ctx, items)
		if err != nil && !errors.Is(err, link.ErrNoData) {
			return nil, fmt.Errorf("item capabilities: %w", err)
		}
		if enabled == nil {
			enabled = make([]bool, len(items))
		}
	}

	for i, item := range items {
		key := fmt.Sprintf("%d|%s", int32(item), link.ItemName(version, item))
		if !enabled[i] {
			props.Missing = append(props.Missing, key)
			continue
		}

		var (
			values []int32
			err    error
		)
		if item.IsCutterItem() {
			values, err = s.ReadCutterItems(ctx, item, positions)
		} else {
			values, err = s.ReadToolItems(ctx, item, positions)
		}
		if err != nil {
			if errors.Is(err, link.ErrDisconnect) {
				return nil, err
			}
			if errors.Is(err, link.ErrNoData) {
				a.logger.Error("No data received for property", zap.String("property", key))
			}
			props.Missing = append(props.Missing, key)
			continue
		}
		props.Values[key] = values
	}
	return props, nil
}
