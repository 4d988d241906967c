package controller

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"makino-adapter/internal/config"
	"makino-adapter/internal/session"
	"makino-adapter/pkg/link"
)

var _ session.LinkProvider = (*Registry)(nil)

func emulatorConfig(version int) *config.ControllerConfig {
	return &config.ControllerConfig{
		MachineID:       "test",
		Emulate:         true,
		EmulatedVersion: version,
	}
}

func TestRegisterDefaultLinks_Emulator(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	backend, err := RegisterDefaultLinks(registry, emulatorConfig(5), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, backend.Emulator)
	assert.Nil(t, backend.ProX)
	assert.Nil(t, backend.Cnc)
	assert.Equal(t, "emulator/Pro5", backend.Name())

	for _, v := range link.ProbeOrder {
		assert.True(t, registry.IsSupported(link.ChannelProX, v))
		l, err := registry.ProX(v)
		require.NoError(t, err)
		assert.Equal(t, v, l.Version())
	}
	_, err = registry.Cnc()
	require.NoError(t, err)
	assert.NoError(t, backend.Close())
}

func TestRegisterDefaultLinks_Gateway(t *testing.T) {
	cfg := &config.ControllerConfig{
		Transport: config.TransportTCP,
		Gateway:   config.GatewayConfig{Host: "127.0.0.1", Port: 11300},
	}
	registry := NewRegistry(zap.NewNop())
	backend, err := RegisterDefaultLinks(registry, cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, backend.ProX)
	require.NotNil(t, backend.Cnc)
	assert.NotSame(t, backend.ProX, backend.Cnc, "each TCP channel owns its transport")
	t.Cleanup(func() { assert.NoError(t, backend.Close()) })

	keys := registry.ListLinks()
	assert.Equal(t, []LinkKey{
		{Channel: link.ChannelProX, Version: link.Version6},
		{Channel: link.ChannelProX, Version: link.Version5},
		{Channel: link.ChannelProX, Version: link.Version3},
		{Channel: link.ChannelCnc},
	}, keys)

	l, err := registry.ProX(link.Version3)
	require.NoError(t, err)
	_, ok := l.(link.Pro3Link)
	assert.True(t, ok)
	assert.False(t, registry.IsSupported(link.ChannelProX, link.Version(4)))
}

func TestRegisterDefaultLinks_SerialSharesOneClient(t *testing.T) {
	cfg := &config.ControllerConfig{
		Transport: config.TransportSerial,
		Serial:    config.SerialConfig{Port: "/dev/ttyS0", BaudRate: 9600},
	}
	backend, err := RegisterDefaultLinks(NewRegistry(zap.NewNop()), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Same(t, backend.ProX, backend.Cnc)
	assert.NoError(t, backend.Close())
}

func TestRegisterDefaultLinks_InvalidTransport(t *testing.T) {
	cfg := &config.ControllerConfig{
		Transport: config.TransportSerial,
		Serial:    config.SerialConfig{Port: "/dev/ttyS0", BaudRate: 1234},
	}
	_, err := RegisterDefaultLinks(NewRegistry(zap.NewNop()), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestRegistry_FactoryErrors(t *testing.T) {
	registry := NewRegistry(zap.NewNop())

	_, err := registry.ProX(link.Version6)
	assert.Error(t, err)
	_, err = registry.Cnc()
	assert.Error(t, err)

	registry.Register(link.ChannelProX, link.Version6, func(LinkKey, *zap.Logger) (any, error) {
		return nil, errors.New("gateway offline")
	})
	_, err = registry.ProX(link.Version6)
	assert.ErrorContains(t, err, "gateway offline")

	registry.Register(link.ChannelCnc, link.VersionUnknown, func(LinkKey, *zap.Logger) (any, error) {
		return "not a link", nil
	})
	_, err = registry.Cnc()
	assert.Error(t, err)
}

func TestRegistry_DrivesNegotiator(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	backend, err := RegisterDefaultLinks(registry, emulatorConfig(3), zap.NewNop())
	require.NoError(t, err)

	n := session.NewNegotiator(registry, session.NewThrottle(0), session.Options{MachineID: "test"}, zap.NewNop())
	s, err := n.EnsureProX(context.Background())
	require.NoError(t, err)
	assert.Equal(t, link.Version3, s.Version())
	assert.Equal(t, []link.Version{link.Version6, link.Version5, link.Version3}, backend.Emulator.AllocAttempts())
}

func TestSessionOptions(t *testing.T) {
	cfg := &config.ControllerConfig{
		MachineID:    "m1",
		NodeNumber:   8,
		IPAddress:    "10.0.0.5",
		CncIPAddress: "10.0.0.6",
		ProXPort:     11212,
		CncPort:      8193,
		ProXVersion:  5,
		LogLevel:     2,
	}

	opts, err := SessionOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "m1", opts.MachineID)
	assert.Equal(t, link.Version5, opts.Version)
	assert.Equal(t, "10.0.0.5", opts.ProXNode.IPAddress)
	assert.Equal(t, 11212, opts.ProXNode.Port)
	assert.Equal(t, "10.0.0.6", opts.CncNode.IPAddress)
	assert.Equal(t, 8193, opts.CncNode.Port)
	assert.Equal(t, uint8(2), opts.Timeouts.LogLevel)

	cfg.ProXVersion = 4
	_, err = SessionOptions(cfg)
	assert.Error(t, err)
}
