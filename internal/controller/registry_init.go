// internal/controller/registry_init.go
package controller

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"makino-adapter/internal/config"
	"makino-adapter/internal/controller/emulator"
	"makino-adapter/internal/controller/gateway"
	"makino-adapter/internal/protocol"
	"makino-adapter/internal/session"
	"makino-adapter/pkg/link"
)

// Backend is the controller access selected by configuration. Either Emulator or the gateway
// clients are set. Over TCP each channel owns its client and transport, so a transport fault on
// one channel never closes the other; a serial line carries both channels on one client.
type Backend struct {
	Emulator *emulator.Controller
	ProX     *gateway.Client
	Cnc      *gateway.Client
}

// Name describes the backend for logs and status
func (b *Backend) Name() string {
	if b.Emulator != nil {
		return fmt.Sprintf("emulator/%s", b.Emulator.Version())
	}
	return "gateway"
}

// Close releases the gateway transports
func (b *Backend) Close() error {
	var errs []error
	if b.ProX != nil {
		errs = append(errs, b.ProX.Close())
	}
	if b.Cnc != nil && b.Cnc != b.ProX {
		errs = append(errs, b.Cnc.Close())
	}
	return errors.Join(errs...)
}

// RegisterDefaultLinks registers the links of the configured backend
func RegisterDefaultLinks(registry *Registry, cfg *config.ControllerConfig, logger *zap.Logger) (*Backend, error) {
	if cfg.UsesEmulator() {
		emu := emulator.Demo(link.Version(cfg.EmulatedVersion), false)
		registerEmulatorLinks(registry, emu, logger)
		return &Backend{Emulator: emu}, nil
	}

	proxTransport, err := protocol.CreateTransport(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway transport: %w", err)
	}
	backend := &Backend{ProX: gateway.NewClient(proxTransport, logger.With(zap.String("channel", string(link.ChannelProX))))}

	if cfg.Transport == config.TransportSerial {
		backend.Cnc = backend.ProX
	} else {
		cncTransport, err := protocol.CreateTransport(cfg, logger)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("failed to create gateway transport: %w", err)
		}
		backend.Cnc = gateway.NewClient(cncTransport, logger.With(zap.String("channel", string(link.ChannelCnc))))
	}

	registerGatewayLinks(registry, backend.ProX, backend.Cnc, logger)
	return backend, nil
}

// registerEmulatorLinks registers one emulator for every generation; it answers foreign
// generations with the replies a real controller gives
func registerEmulatorLinks(registry *Registry, emu *emulator.Controller, logger *zap.Logger) {
	registry.Register(link.ChannelProX, link.VersionUnknown, func(key LinkKey, _ *zap.Logger) (any, error) {
		return emu.ProX(key.Version)
	})
	registry.Register(link.ChannelCnc, link.VersionUnknown, func(LinkKey, *zap.Logger) (any, error) {
		return emu.Cnc()
	})

	logger.Info("Emulator links registered", zap.Stringer("emulated_version", emu.Version()))
}

// registerGatewayLinks registers the gateway link of every probed generation
func registerGatewayLinks(registry *Registry, prox, cnc *gateway.Client, logger *zap.Logger) {
	for _, v := range link.ProbeOrder {
		registry.Register(link.ChannelProX, v, func(key LinkKey, _ *zap.Logger) (any, error) {
			return prox.ProX(key.Version)
		})
	}
	registry.Register(link.ChannelCnc, link.VersionUnknown, func(LinkKey, *zap.Logger) (any, error) {
		return cnc.Cnc(), nil
	})

	logger.Info("Gateway links registered", zap.Int("versions", len(link.ProbeOrder)))
}

// SessionOptions builds the negotiator options of the configured controller
func SessionOptions(cfg *config.ControllerConfig) (session.Options, error) {
	version, err := link.ParseVersion(cfg.ProXVersion)
	if err != nil {
		return session.Options{}, err
	}

	return session.Options{
		MachineID: cfg.MachineID,
		ProXNode: link.NodeInfo{
			NodeNumber: cfg.NodeNumber,
			IPAddress:  cfg.IPAddress,
			Port:       cfg.ProXPort,
			Emulate:    cfg.Emulate,
		},
		CncNode: link.NodeInfo{
			NodeNumber: cfg.NodeNumber,
			IPAddress:  cfg.CncIPAddress,
			Port:       cfg.CncPort,
			Emulate:    cfg.Emulate,
		},
		Timeouts: link.Timeouts{
			Send:      cfg.SendTimeout,
			Reply:     cfg.ReplyTimeout,
			NoopCycle: cfg.NoopCycle,
			LogLevel:  uint8(cfg.LogLevel),
		},
		Version: version,
	}, nil
}
