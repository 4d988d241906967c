package emulator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"makino-adapter/pkg/link"
)

func TestAllocHandle_CrossVersionReplies(t *testing.T) {
	tests := []struct {
		controller link.Version
		link       link.Version
		want       link.ResultCode
	}{
		{link.Version6, link.Version6, link.CodeOK},
		{link.Version5, link.Version6, link.CodeBuffer},
		{link.Version3, link.Version6, link.CodeDisconnect},
		{link.Version6, link.Version5, link.CodeBuffer},
		{link.Version3, link.Version5, link.CodeDisconnect},
		{link.Version5, link.Version3, link.CodeData},
		{link.Version6, link.Version3, link.CodeData},
		{link.Version3, link.Version3, link.CodeOK},
	}

	for _, tt := range tests {
		t.Run(tt.link.String()+"_on_"+tt.controller.String(), func(t *testing.T) {
			c := New(Config{Version: tt.controller, PotsPerMagazine: []int{1}})
			l, err := c.ProX(tt.link)
			require.NoError(t, err)

			h, err := l.AllocHandle(context.Background(), link.NodeInfo{}, link.Timeouts{})
			assert.Equal(t, tt.want, link.CodeOf(err))
			assert.Equal(t, tt.want == link.CodeOK, h.Valid())
		})
	}
}

func TestReadItems(t *testing.T) {
	ctx := context.Background()
	c := New(Config{Version: link.Version5, PotsPerMagazine: []int{2}, CuttersPerPot: 1})
	c.SetCutterCount(1, 2, 3)
	c.SetToolItem(1, 1, link.Pro5PTN, 11)
	c.SetCutterItem(link.ToolPosition{Magazine: 1, Pot: 2, Cutter: 3}, link.Pro5HGeometry, 42)

	l, err := c.ProX(link.Version5)
	require.NoError(t, err)
	h, err := l.AllocHandle(ctx, link.NodeInfo{}, link.Timeouts{})
	require.NoError(t, err)

	counts, err := l.ReadToolItems(ctx, h, link.Pro5TotalCutter, []uint32{1, 1}, []int32{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 3}, counts)

	ptn, err := l.ReadToolItems(ctx, h, link.Pro5PTN, []uint32{1, 1}, []int32{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int32{11, 0}, ptn)

	geo, err := l.ReadCutterItems(ctx, h, link.Pro5HGeometry, []uint32{1}, []int32{2}, []uint32{3})
	require.NoError(t, err)
	assert.Equal(t, []int32{42}, geo)

	_, err = l.ReadCutterItems(ctx, h, link.Pro5HGeometry, []uint32{1}, []int32{3}, []uint32{1})
	assert.Equal(t, link.CodePara, link.CodeOf(err))
}

func TestFaultsAndDrop(t *testing.T) {
	ctx := context.Background()
	c := New(Config{Version: link.Version6, PotsPerMagazine: []int{1}})
	l, err := c.ProX(link.Version6)
	require.NoError(t, err)
	h, err := l.AllocHandle(ctx, link.NodeInfo{}, link.Timeouts{})
	require.NoError(t, err)

	c.FailItem(link.Pro5AlarmFlag, link.CodeData)
	_, err = l.ReadCutterItems(ctx, h, link.Pro5AlarmFlag, []uint32{1}, []int32{1}, []uint32{1})
	assert.ErrorIs(t, err, link.ErrNoData)

	mainErr, _, err := l.LastError(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(link.CodeData), mainErr)

	c.DropConnection()
	_, err = l.MaxAtcMagazine(ctx, h)
	assert.ErrorIs(t, err, link.ErrDisconnect)
	assert.Equal(t, 0, c.OpenHandles())
}

func TestAlarms(t *testing.T) {
	ctx := context.Background()
	c := New(Config{Version: link.Version6, PotsPerMagazine: []int{1}})
	c.SetMcAlarms(link.McAlarm{Number: 2041, Type: link.McAlarmTypeAlarm})
	c.SetCncAlarms(link.CncAlarm{Number: 1001, Message: "OVER TRAVEL +Y"})

	l, err := c.ProX(link.Version6)
	require.NoError(t, err)
	_, err = l.McAlarms(ctx, link.Handle(99))
	assert.Equal(t, link.CodeHandle, link.CodeOf(err))

	h, err := l.AllocHandle(ctx, link.NodeInfo{}, link.Timeouts{})
	require.NoError(t, err)
	alarms, err := l.McAlarms(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, []link.McAlarm{{Number: 2041, Type: link.McAlarmTypeAlarm}}, alarms)

	cnc, err := c.Cnc()
	require.NoError(t, err)
	ch, err := cnc.AllocHandle(ctx, link.NodeInfo{}, link.Timeouts{})
	require.NoError(t, err)
	cncAlarms, err := cnc.CncAlarms(ctx, ch)
	require.NoError(t, err)
	assert.Equal(t, "OVER TRAVEL +Y", cncAlarms[0].Message)

	c.FailOp(OpCncAlarm, link.CodeFunc)
	_, err = cnc.CncAlarms(ctx, ch)
	assert.Equal(t, link.CodeFunc, link.CodeOf(err))
	assert.Equal(t, 2, c.CallCount(OpCncAlarm))
}
