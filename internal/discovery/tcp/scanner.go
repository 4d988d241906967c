// internal/discovery/tcp/scanner.go
package tcp

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"makino-adapter/internal/discovery"
)

// Scanner checks which hosts accept connections on the gateway and controller ports
type Scanner struct {
	logger *zap.Logger
	config *Config
}

// Config for TCP scanner
type Config struct {
	Hosts       []string      `json:"hosts"`
	Ports       []int         `json:"ports"`
	ConnTimeout time.Duration `json:"connection_timeout"`
}

// NewScanner creates a new TCP scanner
func NewScanner(logger *zap.Logger, config *Config) *Scanner {
	if config.ConnTimeout <= 0 {
		config.ConnTimeout = 3 * time.Second
	}

	return &Scanner{
		logger: logger.With(zap.String("scanner", "tcp")),
		config: config,
	}
}

// GetScannerType returns scanner type
func (s *Scanner) GetScannerType() string {
	return "tcp"
}

// IsAvailable reports whether there is anything to scan
func (s *Scanner) IsAvailable() bool {
	return len(s.config.Hosts) > 0 && len(s.config.Ports) > 0
}

// Scan dials every host and port pair concurrently. Candidates keep the host then port order.
func (s *Scanner) Scan(ctx context.Context) ([]*discovery.Candidate, error) {
	addresses := make([]string, 0, len(s.config.Hosts)*len(s.config.Ports))
	for _, host := range s.config.Hosts {
		for _, port := range s.config.Ports {
			addresses = append(addresses, net.JoinHostPort(host, strconv.Itoa(port)))
		}
	}

	open := make([]bool, len(addresses))
	dialer := &net.Dialer{Timeout: s.config.ConnTimeout}

	var wg sync.WaitGroup
	for i, address := range addresses {
		wg.Add(1)
		go func(i int, address string) {
			defer wg.Done()
			conn, err := dialer.DialContext(ctx, "tcp", address)
			if err != nil {
				s.logger.Debug("Address closed", zap.String("address", address), zap.Error(err))
				return
			}
			conn.Close()
			open[i] = true
		}(i, address)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var candidates []*discovery.Candidate
	for i, address := range addresses {
		if open[i] {
			candidates = append(candidates, &discovery.Candidate{Transport: "tcp", Address: address})
		}
	}

	s.logger.Debug("TCP scan completed",
		zap.Int("addresses", len(addresses)),
		zap.Int("open", len(candidates)),
	)
	return candidates, nil
}
