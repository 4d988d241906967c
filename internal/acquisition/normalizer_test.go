package acquisition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"makino-adapter/internal/model"
	"makino-adapter/pkg/link"
)

func TestGeometryCoefficient(t *testing.T) {
	tests := []struct {
		name    string
		version link.Version
		inch    bool
		want    float64
	}{
		{"pro5 inch", link.Version5, true, 0.12345},
		{"pro6 inch", link.Version6, true, 0.12345},
		{"pro5 mm", link.Version5, false, 1.2345},
		{"pro3 inch", link.Version3, true, 1.2345},
		{"pro3 mm", link.Version3, false, 1.2345},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, 12345*GeometryCoefficient(tt.version, tt.inch), 1e-12)
		})
	}
}

func TestWarningOffset(t *testing.T) {
	t.Run("up counter converts the threshold", func(t *testing.T) {
		assert.Equal(t, 20.0, WarningOffset(model.LifeDirectionUp, 100, 80))
	})
	t.Run("down counter keeps the margin", func(t *testing.T) {
		assert.Equal(t, 20.0, WarningOffset(model.LifeDirectionDown, 100, 20))
	})
}

func TestToolState(t *testing.T) {
	zero, one := int32(0), int32(1)

	assert.Equal(t, model.ToolStateBroken, ToolState(0x01, nil))
	assert.Equal(t, model.ToolStateBroken, ToolState(0x02, &one))
	assert.Equal(t, model.ToolStateBroken, ToolState(0x21, nil), "broken wins over expired")
	assert.Equal(t, model.ToolStateExpired, ToolState(0x20, &one))
	assert.Equal(t, model.ToolStateNew, ToolState(0, &one))
	assert.Equal(t, model.ToolStateAvailable, ToolState(0, &zero))
	assert.Equal(t, model.ToolStateAvailable, ToolState(0x04, nil))
}

func TestNormalize_Pro5(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	raw := &RawToolData{
		Version:          link.Version5,
		Positions:        positionsOf(1, 1, 2),
		Inch:             false,
		CountDown:        false,
		PTN:              []int32{101, 102},
		AlarmFlags:       []int32{0, 0x20},
		FirstUse:         []int32{1, 0},
		LengthGeometry:   []int32{12345, 0},
		DiameterGeometry: []int32{500, 1000},
		AtcSpeed:         []int32{0, 7},
		Life: []RawLife{
			{
				Kind:    LifeKindTime,
				Managed: []int32{1, 1},
				Actual:  []int32{600, 36000},
				Limit:   []int32{36000, 36000},
				Warning: []int32{30000, 30000},
			},
			{
				Kind:    LifeKindCount,
				Managed: []int32{0, 1},
				Actual:  []int32{0, 12},
				Limit:   []int32{0, 100},
			},
		},
		Missing: []string{"life_distance_actual"},
	}

	data := Normalize(raw, now)
	require.Len(t, data.Tools, 2)
	assert.Equal(t, "Pro5", data.ProtocolVersion)
	assert.Equal(t, now, data.AcquiredAt)
	assert.ErrorIs(t, data.Warning(), link.ErrPartialData)

	first := data.Tools[0]
	assert.Equal(t, "101", first.ToolNumber)
	assert.Equal(t, "101", first.ToolID)
	assert.Equal(t, model.ToolStateNew, first.State)
	assert.Equal(t, model.GeometryUnitMillimeters, first.GeometryUnit)
	require.NotNil(t, first.LengthCompensation)
	assert.InDelta(t, 1.2345, *first.LengthCompensation, 1e-12)
	require.NotNil(t, first.AtcSpeed)
	assert.Equal(t, model.AtcSpeedNormal, *first.AtcSpeed)
	require.Len(t, first.Life, 1, "count life not managed on this position")
	assert.Equal(t, model.LifeUnitSeconds, first.Life[0].Unit)
	assert.Equal(t, model.LifeDirectionUp, first.Life[0].Direction)
	assert.Equal(t, 60.0, first.Life[0].Value)
	assert.Equal(t, 3600.0, first.Life[0].Limit)
	require.NotNil(t, first.Life[0].WarningOffset)
	assert.Equal(t, 600.0, *first.Life[0].WarningOffset)

	second := data.Tools[1]
	assert.Equal(t, model.ToolStateExpired, second.State)
	assert.Equal(t, model.AtcSpeed("unknown: 7"), *second.AtcSpeed)
	require.Len(t, second.Life, 2)
	assert.Equal(t, model.LifeUnitCount, second.Life[1].Unit)
	assert.Equal(t, 12.0, second.Life[1].Value)
	assert.Nil(t, second.Life[1].WarningOffset)
}

func TestNormalize_Pro3(t *testing.T) {
	raw := &RawToolData{
		Version:          link.Version3,
		Positions:        positionsOf(1, 1),
		Inch:             true,
		CountDown:        true,
		LifeType:         link.LifeTypeDistance,
		PTN:              []int32{7},
		AlarmFlags:       []int32{0},
		LengthGeometry:   []int32{12345},
		DiameterGeometry: []int32{12345},
		Life: []RawLife{
			{Kind: LifeKindDistance, Actual: []int32{150}, Limit: []int32{1000}},
		},
	}

	data := Normalize(raw, time.Now())
	require.Len(t, data.Tools, 1)
	record := data.Tools[0]

	assert.Equal(t, model.ToolStateAvailable, record.State)
	assert.Equal(t, model.GeometryUnitInch, record.GeometryUnit)
	assert.InDelta(t, 1.2345, *record.LengthCompensation, 1e-12)
	assert.Nil(t, record.AtcSpeed)
	require.Len(t, record.Life, 1)
	assert.Equal(t, model.LifeDirectionDown, record.Life[0].Direction)
	assert.Equal(t, model.LifeUnitDistanceInch, record.Life[0].Unit)
	assert.Equal(t, 15.0, record.Life[0].Value)
	assert.Equal(t, 100.0, record.Life[0].Limit)
	assert.NoError(t, data.Warning())
}

func TestNormalize_Pro3TenthSeconds(t *testing.T) {
	raw := &RawToolData{
		Version:    link.Version3,
		Positions:  positionsOf(1, 1),
		LifeType:   link.LifeTypeTenthSeconds,
		PTN:        []int32{7},
		AlarmFlags: []int32{0},
		Life:       []RawLife{{Kind: LifeKindTime, Actual: []int32{100}, Limit: []int32{600}}},
	}

	record := Normalize(raw, time.Now()).Tools[0]
	assert.Equal(t, model.LifeUnitSeconds, record.Life[0].Unit)
	assert.Equal(t, 10.0, record.Life[0].Value)
	assert.Equal(t, 60.0, record.Life[0].Limit)
}

func TestNormalize_AbsentFields(t *testing.T) {
	raw := &RawToolData{
		Version:   link.Version6,
		Positions: positionsOf(2, 4),
		Missing:   []string{"ptn", "alarm_flags"},
	}

	record := Normalize(raw, time.Now()).Tools[0]
	assert.Equal(t, "", record.ToolNumber)
	assert.Equal(t, model.ToolStateUnknown, record.State)
	assert.Nil(t, record.LengthCompensation)
	assert.Nil(t, record.DiameterCompensation)
	assert.Empty(t, record.Life)
	assert.Equal(t, link.ToolPosition{Magazine: 2, Pot: 4, Cutter: 1}, record.Position())
}
