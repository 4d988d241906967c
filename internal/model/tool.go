// internal/model/tool.go
package model

import (
	"fmt"
	"strings"
	"time"

	"makino-adapter/pkg/link"
)

// ToolState represents the usability of a tool
type ToolState string

const (
	ToolStateUnknown   ToolState = "UNKNOWN"
	ToolStateAvailable ToolState = "AVAILABLE"
	ToolStateNew       ToolState = "NEW"
	ToolStateBroken    ToolState = "BROKEN"
	ToolStateExpired   ToolState = "EXPIRED"
)

// GeometryUnit is the unit of the compensation values
type GeometryUnit string

const (
	GeometryUnitMillimeters GeometryUnit = "MM"
	GeometryUnitInch        GeometryUnit = "INCH"
	GeometryUnitUnknown     GeometryUnit = "UNKNOWN"
)

// LifeDirection tells whether the life value counts up to the limit or down to zero
type LifeDirection string

const (
	LifeDirectionUp   LifeDirection = "UP"
	LifeDirectionDown LifeDirection = "DOWN"
)

// LifeUnit is the unit of a life descriptor
type LifeUnit string

const (
	LifeUnitSeconds      LifeUnit = "SECONDS"
	LifeUnitDistanceMm   LifeUnit = "DISTANCE_MM"
	LifeUnitDistanceInch LifeUnit = "DISTANCE_INCH"
	LifeUnitCount        LifeUnit = "COUNT"
)

// AtcSpeed is the tool change speed class
type AtcSpeed string

const (
	AtcSpeedNormal AtcSpeed = "normal"
	AtcSpeedSlow   AtcSpeed = "slow"
	AtcSpeedMiddle AtcSpeed = "middle"
)

// AtcSpeedFromCode converts a raw ATC speed code. -1 means the value is absent.
func AtcSpeedFromCode(code int32) (AtcSpeed, bool) {
	switch code {
	case -1:
		return "", false
	case 0:
		return AtcSpeedNormal, true
	case 1:
		return AtcSpeedSlow, true
	case 2:
		return AtcSpeedMiddle, true
	default:
		return AtcSpeed(fmt.Sprintf("unknown: %d", code)), true
	}
}

// LifeDescriptor is one tool life counter
type LifeDescriptor struct {
	Direction LifeDirection `json:"direction"`
	Unit      LifeUnit      `json:"unit"`
	Value     float64       `json:"value"`
	Limit     float64       `json:"limit"`
	// WarningOffset is the margin before the limit at which the warning triggers
	WarningOffset *float64 `json:"warning_offset,omitempty"`
}

// Remaining returns the life left before the limit is reached
func (d LifeDescriptor) Remaining() float64 {
	if d.Direction == LifeDirectionDown {
		return d.Value
	}
	return d.Limit - d.Value
}

// InWarning reports whether the remaining life is within the warning offset
func (d LifeDescriptor) InWarning() bool {
	return d.WarningOffset != nil && d.Remaining() <= *d.WarningOffset
}

// ToolRecord is the normalized data of one tool position
type ToolRecord struct {
	Magazine             uint32           `json:"magazine"`
	Pot                  int32            `json:"pot"`
	Cutter               uint32           `json:"cutter"`
	ToolNumber           string           `json:"tool_number"`
	ToolID               string           `json:"tool_id"`
	State                ToolState        `json:"state"`
	GeometryUnit         GeometryUnit     `json:"geometry_unit"`
	LengthCompensation   *float64         `json:"length_compensation,omitempty"`
	DiameterCompensation *float64         `json:"diameter_compensation,omitempty"`
	AtcSpeed             *AtcSpeed        `json:"atc_speed,omitempty"`
	Life                 []LifeDescriptor `json:"life"`
}

// Position returns the storage location of the record
func (r *ToolRecord) Position() link.ToolPosition {
	return link.ToolPosition{Magazine: r.Magazine, Pot: r.Pot, Cutter: r.Cutter}
}

// ToolLifeData is one published snapshot of every tool. It is never modified after publication.
type ToolLifeData struct {
	ProtocolVersion string       `json:"protocol_version"`
	AcquiredAt      time.Time    `json:"acquired_at"`
	Tools           []ToolRecord `json:"tools"`
	// Missing lists the fields that could not be read in this snapshot
	Missing []string `json:"missing_fields,omitempty"`
}

// ToolCount returns the number of registered tool positions
func (d *ToolLifeData) ToolCount() int {
	if d == nil {
		return 0
	}
	return len(d.Tools)
}

// Positions returns the position of every record, in snapshot order
func (d *ToolLifeData) Positions() []link.ToolPosition {
	if d == nil {
		return nil
	}
	positions := make([]link.ToolPosition, len(d.Tools))
	for i := range d.Tools {
		positions[i] = d.Tools[i].Position()
	}
	return positions
}

// PositionLabels formats every position as "Magazine m pot p cutter c"
func (d *ToolLifeData) PositionLabels() []string {
	positions := d.Positions()
	labels := make([]string, len(positions))
	for i, p := range positions {
		labels[i] = p.String()
	}
	return labels
}

// FindByToolNumber returns the records carrying a tool number
func (d *ToolLifeData) FindByToolNumber(toolNumber string) []ToolRecord {
	if d == nil {
		return nil
	}
	var records []ToolRecord
	for _, r := range d.Tools {
		if r.ToolNumber == toolNumber {
			records = append(records, r)
		}
	}
	return records
}

// Warning returns an error wrapping link.ErrPartialData when fields are missing
func (d *ToolLifeData) Warning() error {
	if d == nil || len(d.Missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", link.ErrPartialData, strings.Join(d.Missing, ", "))
}

// ItemProperties is the raw dump of every readable item, for diagnostics
type ItemProperties struct {
	ProtocolVersion string             `json:"protocol_version"`
	Positions       []string           `json:"positions"`
	Values          map[string][]int32 `json:"values"`
	Missing         []string           `json:"missing"`
}
