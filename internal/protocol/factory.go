// internal/protocol/factory.go
package protocol

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"makino-adapter/internal/config"
)

// CreateTransport creates the gateway transport selected by the controller configuration
func CreateTransport(cfg *config.ControllerConfig, logger *zap.Logger) (Transport, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	switch cfg.Transport {
	case config.TransportTCP:
		return createTCPTransport(cfg, logger), nil
	case config.TransportSerial:
		return createSerialTransport(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported transport: %s", cfg.Transport)
	}
}

// createTCPTransport creates a TCP transport
func createTCPTransport(cfg *config.ControllerConfig, logger *zap.Logger) Transport {
	tcpConfig := &TCPConfig{
		Host:         cfg.Gateway.Host,
		Port:         cfg.Gateway.Port,
		KeepAlive:    cfg.Gateway.KeepAlive,
		Timeout:      cfg.Gateway.ConnectTimeout,
		ReadTimeout:  cfg.ReplyTimeout,
		WriteTimeout: cfg.SendTimeout,
	}
	if tcpConfig.Timeout <= 0 {
		tcpConfig.Timeout = 10 * time.Second
	}

	logger.Info("Creating TCP transport",
		zap.String("host", tcpConfig.Host),
		zap.Int("port", tcpConfig.Port),
	)

	return NewTCPConnection(tcpConfig, logger)
}

// createSerialTransport creates a serial transport
func createSerialTransport(cfg *config.ControllerConfig, logger *zap.Logger) Transport {
	serialConfig := &SerialConfig{
		Port:     cfg.Serial.Port,
		BaudRate: cfg.Serial.BaudRate,
		DataBits: cfg.Serial.DataBits,
		StopBits: cfg.Serial.StopBits,
		Parity:   cfg.Serial.Parity,
		Timeout:  cfg.Serial.Timeout,
	}
	if serialConfig.DataBits == 0 {
		serialConfig.DataBits = 8
	}
	if serialConfig.StopBits == 0 {
		serialConfig.StopBits = 1
	}
	if serialConfig.Timeout <= 0 {
		serialConfig.Timeout = 10 * time.Second
	}

	logger.Info("Creating serial transport",
		zap.String("port", serialConfig.Port),
		zap.Int("baud_rate", serialConfig.BaudRate),
	)

	return NewSerialConnection(serialConfig, logger)
}

// ValidateConfig validates the transport part of the controller configuration
func ValidateConfig(cfg *config.ControllerConfig) error {
	switch cfg.Transport {
	case config.TransportTCP:
		return validateTCPConfig(&cfg.Gateway)
	case config.TransportSerial:
		return validateSerialConfig(&cfg.Serial)
	default:
		return fmt.Errorf("unsupported transport: %s", cfg.Transport)
	}
}

// validateSerialConfig validates serial configuration
func validateSerialConfig(cfg *config.SerialConfig) error {
	if cfg.Port == "" {
		return fmt.Errorf("serial port is required")
	}

	validRates := []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200}
	valid := false
	for _, validRate := range validRates {
		if cfg.BaudRate == validRate {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid baud rate: %d", cfg.BaudRate)
	}

	switch cfg.StopBits {
	case 0, 1, 2:
	default:
		return fmt.Errorf("invalid stop bits: %d", cfg.StopBits)
	}

	switch cfg.Parity {
	case "", "none", "odd", "even":
	default:
		return fmt.Errorf("invalid parity: %s", cfg.Parity)
	}

	return nil
}

// validateTCPConfig validates TCP configuration
func validateTCPConfig(cfg *config.GatewayConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("TCP host is required")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", cfg.Port)
	}
	return nil
}
