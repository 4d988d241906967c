// internal/acquisition/normalizer.go
package acquisition

import (
	"strconv"
	"time"

	"makino-adapter/internal/model"
	"makino-adapter/pkg/link"
)

// GeometryCoefficient returns the scale of raw compensation values: 0.00001 for inch on Pro5/Pro6,
// 0.0001 otherwise
func GeometryCoefficient(v link.Version, inch bool) float64 {
	if inch && v != link.Version3 {
		return 0.00001
	}
	return 0.0001
}

// lifeDivisor returns the divisor of raw v5/v6 life values and the unit they end up in
func lifeDivisor(kind LifeKind, inch bool) (float64, model.LifeUnit) {
	switch kind {
	case LifeKindTime:
		return 10, model.LifeUnitSeconds
	case LifeKindDistance:
		if inch {
			return 10, model.LifeUnitDistanceInch
		}
		return 1, model.LifeUnitDistanceMm
	default:
		return 1, model.LifeUnitCount
	}
}

// pro3LifeDivisor returns the divisor and unit of the global Pro3 life type
func pro3LifeDivisor(t link.LifeType, inch bool) (float64, model.LifeUnit) {
	switch t {
	case link.LifeTypeDistance:
		if inch {
			return 10, model.LifeUnitDistanceInch
		}
		return 1, model.LifeUnitDistanceMm
	case link.LifeTypeCount:
		return 1, model.LifeUnitCount
	case link.LifeTypeTenthSeconds:
		return 10, model.LifeUnitSeconds
	default:
		return 1, model.LifeUnitSeconds
	}
}

// WarningOffset converts a raw warning value into the margin before the limit. A Down counter
// already stores the margin; an Up counter stores the absolute threshold.
func WarningOffset(direction model.LifeDirection, limit, warning float64) float64 {
	if direction == model.LifeDirectionDown {
		return warning
	}
	return limit - warning
}

// ToolState derives the state from the alarm bits. New is only reported when firstUse is known.
func ToolState(alarm int32, firstUse *int32) model.ToolState {
	switch {
	case alarm&link.AlarmBitBroken1 != 0 || alarm&link.AlarmBitBroken2 != 0:
		return model.ToolStateBroken
	case alarm&link.AlarmBitExpired != 0:
		return model.ToolStateExpired
	case firstUse != nil && *firstUse != 0:
		return model.ToolStateNew
	default:
		return model.ToolStateAvailable
	}
}

// Normalize converts the raw data into a snapshot. One record is produced per position, in order.
func Normalize(raw *RawToolData, acquiredAt time.Time) *model.ToolLifeData {
	data := &model.ToolLifeData{
		ProtocolVersion: raw.Version.String(),
		AcquiredAt:      acquiredAt,
		Tools:           make([]model.ToolRecord, len(raw.Positions)),
		Missing:         raw.Missing,
	}

	geometryUnit := model.GeometryUnitMillimeters
	if raw.Inch {
		geometryUnit = model.GeometryUnitInch
	}
	if raw.UnknownUnit {
		geometryUnit = model.GeometryUnitUnknown
	}
	geometry := GeometryCoefficient(raw.Version, raw.Inch)
	direction := model.LifeDirectionUp
	if raw.CountDown {
		direction = model.LifeDirectionDown
	}

	for i, pos := range raw.Positions {
		record := &data.Tools[i]
		record.Magazine = pos.Magazine
		record.Pot = pos.Pot
		record.Cutter = pos.Cutter
		record.GeometryUnit = geometryUnit
		record.State = model.ToolStateUnknown
		record.Life = []model.LifeDescriptor{}

		if raw.PTN != nil {
			record.ToolNumber = strconv.Itoa(int(raw.PTN[i]))
			record.ToolID = record.ToolNumber
		}

		if raw.AlarmFlags != nil {
			var firstUse *int32
			if raw.Version != link.Version3 && raw.FirstUse != nil {
				firstUse = &raw.FirstUse[i]
			}
			record.State = ToolState(raw.AlarmFlags[i], firstUse)
		}

		if raw.LengthGeometry != nil && !raw.UnknownUnit {
			v := float64(raw.LengthGeometry[i]) * geometry
			record.LengthCompensation = &v
		}
		if raw.DiameterGeometry != nil && !raw.UnknownUnit {
			v := float64(raw.DiameterGeometry[i]) * geometry
			record.DiameterCompensation = &v
		}

		if raw.AtcSpeed != nil {
			if speed, ok := model.AtcSpeedFromCode(raw.AtcSpeed[i]); ok {
				record.AtcSpeed = &speed
			}
		}

		for _, life := range raw.Life {
			if raw.UnknownDirection || (raw.UnknownUnit && life.Kind == LifeKindDistance) {
				continue
			}
			if life.Managed != nil && life.Managed[i] == 0 {
				continue
			}
			var divisor float64
			var unit model.LifeUnit
			if raw.Version == link.Version3 {
				divisor, unit = pro3LifeDivisor(raw.LifeType, raw.Inch)
			} else {
				divisor, unit = lifeDivisor(life.Kind, raw.Inch)
			}

			descriptor := model.LifeDescriptor{
				Direction: direction,
				Unit:      unit,
				Value:     float64(life.Actual[i]) / divisor,
				Limit:     float64(life.Limit[i]) / divisor,
			}
			if life.Warning != nil {
				offset := WarningOffset(direction, descriptor.Limit, float64(life.Warning[i])/divisor)
				descriptor.WarningOffset = &offset
			}
			record.Life = append(record.Life, descriptor)
		}
	}

	return data
}
