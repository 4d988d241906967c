// internal/discovery/serial/scanner.go
package serial

import (
	"context"
	"fmt"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"makino-adapter/internal/discovery"
)

// Scanner lists the serial ports an RS-232 gateway could be attached to
type Scanner struct {
	logger   *zap.Logger
	patterns []string
}

// NewScanner creates a serial scanner. Ports are kept when their name contains one of the
// patterns; no pattern keeps every port.
func NewScanner(logger *zap.Logger, patterns ...string) *Scanner {
	return &Scanner{
		logger:   logger.With(zap.String("scanner", "serial")),
		patterns: patterns,
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "serial"
}

// IsAvailable reports whether the platform can enumerate serial ports
func (s *Scanner) IsAvailable() bool {
	_, err := serial.GetPortsList()
	return err == nil
}

// Scan lists the serial ports. USB adapters carry their vendor and product ids.
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.Candidate, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to get serial ports: %w", err)
	}

	var candidates []*discovery.Candidate
	for _, port := range ports {
		if err := ctx.Err(); err != nil {
			return candidates, err
		}
		if !s.matches(port.Name) {
			continue
		}

		candidate := &discovery.Candidate{
			Transport: "serial",
			Address:   port.Name,
		}
		if port.IsUSB {
			candidate.Details = map[string]string{
				"vid":           port.VID,
				"pid":           port.PID,
				"serial_number": port.SerialNumber,
			}
		}
		candidates = append(candidates, candidate)
	}

	s.logger.Debug("Serial scan completed", zap.Int("ports", len(candidates)))
	return candidates, nil
}

func (s *Scanner) matches(name string) bool {
	if len(s.patterns) == 0 {
		return true
	}
	for _, pattern := range s.patterns {
		if strings.Contains(name, pattern) {
			return true
		}
	}
	return false
}
