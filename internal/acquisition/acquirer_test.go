package acquisition

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"makino-adapter/internal/controller/emulator"
	"makino-adapter/internal/model"
	"makino-adapter/pkg/link"
)

func TestRun_Pro5Demo(t *testing.T) {
	c := emulator.Demo(link.Version5, false)
	_, s := bind(t, c)
	a := NewAcquirer(zap.NewNop())

	data, err := a.Run(context.Background(), s, time.Now())
	require.NoError(t, err)

	require.Equal(t, 10, data.ToolCount())
	assert.Empty(t, data.Missing)
	assert.Equal(t, "Pro5", data.ProtocolVersion)

	first := data.Tools[0]
	assert.Equal(t, "101", first.ToolNumber)
	assert.Equal(t, model.ToolStateNew, first.State)
	require.Len(t, first.Life, 2)
	assert.Equal(t, model.LifeUnitSeconds, first.Life[0].Unit)
	assert.Equal(t, model.LifeUnitCount, first.Life[1].Unit)

	expired := data.Tools[4]
	assert.Equal(t, int32(5), expired.Pot)
	assert.Equal(t, model.ToolStateExpired, expired.State)

	// Magazine 2 does not manage count life
	assert.Len(t, data.Tools[6].Life, 1)
}

func TestRun_Pro3Demo(t *testing.T) {
	c := emulator.Demo(link.Version3, true)
	_, s := bind(t, c)

	data, err := NewAcquirer(zap.NewNop()).Run(context.Background(), s, time.Now())
	require.NoError(t, err)

	require.Equal(t, 10, data.ToolCount())
	record := data.Tools[1]
	assert.Equal(t, "102", record.ToolNumber)
	assert.Equal(t, model.ToolStateAvailable, record.State)
	assert.Equal(t, model.GeometryUnitInch, record.GeometryUnit)
	require.NotNil(t, record.AtcSpeed)
	assert.Equal(t, model.AtcSpeedNormal, *record.AtcSpeed)
	require.Len(t, record.Life, 1)
	assert.Equal(t, model.LifeUnitSeconds, record.Life[0].Unit)
	assert.Nil(t, record.Life[0].WarningOffset)
}

func TestAcquire_NoDataOnOptionalLifeItem(t *testing.T) {
	c := emulator.Demo(link.Version6, false)
	c.FailItem(link.Pro5LifeCountActual, link.CodeData)
	_, s := bind(t, c)

	data, err := NewAcquirer(zap.NewNop()).Run(context.Background(), s, time.Now())
	require.NoError(t, err)

	assert.Contains(t, data.Missing, "life_count_actual")
	assert.ErrorIs(t, data.Warning(), link.ErrPartialData)
	for _, record := range data.Tools {
		for _, life := range record.Life {
			assert.NotEqual(t, model.LifeUnitCount, life.Unit)
		}
	}
	assert.Len(t, data.Tools[0].Life, 1)
}

func TestAcquire_FatalAlarmFlag(t *testing.T) {
	c := emulator.Demo(link.Version6, false)
	c.FailItem(link.Pro5AlarmFlag, link.CodeFunc)
	_, s := bind(t, c)

	data, err := NewAcquirer(zap.NewNop()).Run(context.Background(), s, time.Now())
	require.Error(t, err)
	assert.Nil(t, data)
	assert.ErrorIs(t, err, link.ErrFatalAcquire)
	assert.NotErrorIs(t, err, link.ErrDisconnect)
}

func TestAcquire_NoDataOnRequiredField(t *testing.T) {
	c := emulator.Demo(link.Version6, false)
	c.FailItem(link.Pro5AlarmFlag, link.CodeData)
	_, s := bind(t, c)

	data, err := NewAcquirer(zap.NewNop()).Run(context.Background(), s, time.Now())
	require.NoError(t, err)
	assert.Contains(t, data.Missing, "alarm_flags")
	assert.Equal(t, model.ToolStateUnknown, data.Tools[0].State)
}

func TestAcquire_DisabledItemsAreNotRead(t *testing.T) {
	c := emulator.Demo(link.Version6, false)
	c.Disable(link.Pro5AtcSpeed, link.Pro5LifeTimeWarning)
	_, s := bind(t, c)

	data, err := NewAcquirer(zap.NewNop()).Run(context.Background(), s, time.Now())
	require.NoError(t, err)

	assert.Contains(t, data.Missing, "atc_speed")
	assert.Nil(t, data.Tools[0].AtcSpeed)
	require.NotEmpty(t, data.Tools[0].Life)
	assert.Nil(t, data.Tools[0].Life[0].WarningOffset)
}

func TestAcquire_DisconnectTearsDownSession(t *testing.T) {
	ctx := context.Background()
	c := emulator.Demo(link.Version5, false)
	n, s := bind(t, c)
	c.FailItem(link.Pro5HGeometry, link.CodeNoReply)

	_, err := NewAcquirer(zap.NewNop()).Run(ctx, s, time.Now())
	require.ErrorIs(t, err, link.ErrDisconnect)
	assert.False(t, s.Active())
	assert.False(t, n.Status().ProXConnected)

	// The next ensure probes again from the top
	c.ClearFaults()
	before := len(c.AllocAttempts())
	fresh, err := n.EnsureProX(ctx)
	require.NoError(t, err)
	assert.Equal(t, []link.Version{link.Version6, link.Version5}, c.AllocAttempts()[before:])
	assert.NotSame(t, s, fresh)
}

func TestLoadCapabilities_OncePerSession(t *testing.T) {
	ctx := context.Background()
	c := emulator.Demo(link.Version6, false)
	_, s := bind(t, c)
	a := NewAcquirer(zap.NewNop())

	_, err := a.Run(ctx, s, time.Now())
	require.NoError(t, err)
	_, err = a.Run(ctx, s, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, c.CallCount(emulator.OpItemsEnabled))
}

func TestLoadCapabilities_Pro3Table(t *testing.T) {
	c := emulator.New(emulator.Config{
		Version:         link.Version3,
		PotsPerMagazine: []int{1},
		Optional:        link.OptionalItems{BTS: true},
	})
	_, s := bind(t, c)

	caps, err := LoadCapabilities(context.Background(), s, zap.NewNop())
	require.NoError(t, err)

	assert.True(t, caps.Enabled(link.Pro3PTN))
	assert.True(t, caps.Enabled(link.Pro3BTS))
	assert.False(t, caps.Enabled(link.Pro3Slow))
	assert.False(t, caps.Enabled(link.Pro3MMCType))
}

func TestReadProperties(t *testing.T) {
	ctx := context.Background()
	c := emulator.Demo(link.Version6, false)
	c.Disable(link.Pro5HWear)
	_, s := bind(t, c)
	a := NewAcquirer(zap.NewNop())

	positions, err := EnumeratePositions(ctx, s, zap.NewNop())
	require.NoError(t, err)

	props, err := a.ReadProperties(ctx, s, positions)
	require.NoError(t, err)

	assert.Len(t, props.Positions, 10)
	assert.Equal(t, "Magazine 1 pot 1 cutter 1", props.Positions[0])
	assert.Contains(t, props.Missing, "104|HWear")
	require.Contains(t, props.Values, "4|PTN")
	assert.Equal(t, int32(101), props.Values["4|PTN"][0])
}

func TestBracket_CachesMCode(t *testing.T) {
	ctx := context.Background()
	reads := 0
	read := func(context.Context) (link.MCode, error) {
		reads++
		return link.MCode{Code: uint32(reads)}, nil
	}

	var b Bracket
	code, err := b.MCode(ctx, read)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), code.Code)

	b.Start()
	code, _ = b.MCode(ctx, read)
	assert.Equal(t, uint32(2), code.Code)
	code, _ = b.MCode(ctx, read)
	assert.Equal(t, uint32(2), code.Code, "cached inside the bracket")
	b.Finish()

	b.Start()
	code, _ = b.MCode(ctx, read)
	assert.Equal(t, uint32(3), code.Code, "a new bracket reads again")
	assert.Equal(t, 3, reads)
}

func TestRun_ConfigurationFailureAborts(t *testing.T) {
	for _, op := range []string{emulator.OpToolInfo, emulator.OpToolLifeInfo} {
		t.Run(op, func(t *testing.T) {
			c := emulator.Demo(link.Version5, true)
			c.FailOp(op, link.CodeFunc)
			_, s := bind(t, c)

			data, err := NewAcquirer(zap.NewNop()).Run(context.Background(), s, time.Now())
			assert.ErrorIs(t, err, link.ErrFatalAcquire)
			assert.Nil(t, data)
		})
	}
}

func TestRun_NoUnitSystemLeavesGeometryAbsent(t *testing.T) {
	c := emulator.Demo(link.Version5, true)
	c.FailOp(emulator.OpToolInfo, link.CodeData)
	_, s := bind(t, c)

	data, err := NewAcquirer(zap.NewNop()).Run(context.Background(), s, time.Now())
	require.NoError(t, err)

	assert.Contains(t, data.Missing, "tool_info")
	record := data.Tools[0]
	assert.Equal(t, model.GeometryUnitUnknown, record.GeometryUnit)
	assert.Nil(t, record.LengthCompensation)
	assert.Nil(t, record.DiameterCompensation)
	assert.NotEmpty(t, record.Life)
}

func TestRun_NoLifeDirectionLeavesLifeAbsent(t *testing.T) {
	c := emulator.Demo(link.Version6, false)
	c.FailOp(emulator.OpToolLifeInfo, link.CodeData)
	_, s := bind(t, c)

	data, err := NewAcquirer(zap.NewNop()).Run(context.Background(), s, time.Now())
	require.NoError(t, err)

	assert.Contains(t, data.Missing, "tool_life_info")
	for _, record := range data.Tools {
		assert.Empty(t, record.Life)
		assert.NotNil(t, record.LengthCompensation)
	}
}
