package acquisition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"makino-adapter/internal/controller/emulator"
	"makino-adapter/internal/session"
	"makino-adapter/pkg/link"
)

func bind(t *testing.T, c *emulator.Controller) (*session.Negotiator, *session.ProXSession) {
	t.Helper()
	n := session.NewNegotiator(c, session.NewThrottle(0), session.Options{MachineID: "test"}, zap.NewNop())
	s, err := n.EnsureProX(context.Background())
	require.NoError(t, err)
	require.Equal(t, c.Version(), s.Version())
	return n, s
}

func positionsOf(magazine uint32, pots ...int32) []link.ToolPosition {
	positions := make([]link.ToolPosition, len(pots))
	for i, p := range pots {
		positions[i] = link.ToolPosition{Magazine: magazine, Pot: p, Cutter: 1}
	}
	return positions
}
