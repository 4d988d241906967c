package acquisition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"makino-adapter/internal/controller/emulator"
	"makino-adapter/pkg/link"
)

func TestEnumeratePositions_Pro3(t *testing.T) {
	c := emulator.New(emulator.Config{Version: link.Version3, PotsPerMagazine: []int{3, 2}})
	_, s := bind(t, c)

	positions, err := EnumeratePositions(context.Background(), s, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, []link.ToolPosition{
		{Magazine: 1, Pot: 1, Cutter: 1},
		{Magazine: 1, Pot: 2, Cutter: 1},
		{Magazine: 1, Pot: 3, Cutter: 1},
		{Magazine: 2, Pot: 1, Cutter: 1},
		{Magazine: 2, Pot: 2, Cutter: 1},
	}, positions)
	assert.Zero(t, c.CallCount(emulator.OpReadToolItems), "Pro3 has no cutter count item")
}

func TestEnumeratePositions_CuttersPerPot(t *testing.T) {
	c := emulator.New(emulator.Config{Version: link.Version6, PotsPerMagazine: []int{2, 1}})
	c.SetCutterCount(1, 2, 3)
	_, s := bind(t, c)

	positions, err := EnumeratePositions(context.Background(), s, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, []link.ToolPosition{
		{Magazine: 1, Pot: 1, Cutter: 1},
		{Magazine: 1, Pot: 2, Cutter: 1},
		{Magazine: 1, Pot: 2, Cutter: 2},
		{Magazine: 1, Pot: 2, Cutter: 3},
		{Magazine: 2, Pot: 1, Cutter: 1},
	}, positions)
	for i := 1; i < len(positions); i++ {
		assert.True(t, positions[i-1].Less(positions[i]))
	}
}

func TestEnumeratePositions_CutterCountFallback(t *testing.T) {
	c := emulator.New(emulator.Config{Version: link.Version5, PotsPerMagazine: []int{2}})
	c.SetCutterCount(1, 1, 2)
	c.FailItem(link.Pro5TotalCutter, link.CodeFunc)
	_, s := bind(t, c)

	positions, err := EnumeratePositions(context.Background(), s, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, positionsOf(1, 1, 2), positions)
}

func TestEnumeratePositions_MagazineCountFailure(t *testing.T) {
	c := emulator.New(emulator.Config{Version: link.Version5, PotsPerMagazine: []int{2}})
	_, s := bind(t, c)
	c.FailOp(emulator.OpMaxAtcMagazine, link.CodeBusy)

	_, err := EnumeratePositions(context.Background(), s, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, link.ErrFatalAcquire)
	assert.True(t, s.Active(), "a busy controller keeps the session")
}

func TestEnumeratePositions_PotCountFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	c := emulator.New(emulator.Config{Version: link.Version3, PotsPerMagazine: []int{3, 2}})
	_, s := bind(t, c)
	c.FailOp(emulator.OpAtcMagazineInfo, link.CodeReject)

	positions, err := EnumeratePositions(ctx, s, zap.NewNop())
	require.ErrorIs(t, err, link.ErrFatalAcquire)
	assert.Nil(t, positions)

	c.ClearFaults()
	positions, err = EnumeratePositions(ctx, s, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, positions, 5)
}

func TestEnumeratePositions_Disconnect(t *testing.T) {
	c := emulator.New(emulator.Config{Version: link.Version6, PotsPerMagazine: []int{2}})
	_, s := bind(t, c)
	c.FailItem(link.Pro5TotalCutter, link.CodeWinsock)

	_, err := EnumeratePositions(context.Background(), s, zap.NewNop())
	require.ErrorIs(t, err, link.ErrDisconnect)
	assert.False(t, s.Active())
}
