// internal/discovery/scanner.go
package discovery

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Scanner finds places where a controller gateway may be reachable
type Scanner interface {
	Scan(ctx context.Context) ([]*Candidate, error)
	GetScannerType() string
	IsAvailable() bool
}

// Candidate is one address a gateway transport could be configured with
type Candidate struct {
	Transport string            `json:"transport"` // tcp, serial
	Address   string            `json:"address"`
	Details   map[string]string `json:"details,omitempty"`
}

// ScannerManager runs the registered scanners
type ScannerManager struct {
	scanners map[string]Scanner
	logger   *zap.Logger
}

// NewScannerManager creates a new scanner manager
func NewScannerManager(logger *zap.Logger) *ScannerManager {
	return &ScannerManager{
		scanners: make(map[string]Scanner),
		logger:   logger,
	}
}

// RegisterScanner registers a scanner under its type
func (sm *ScannerManager) RegisterScanner(scanner Scanner) {
	scannerType := scanner.GetScannerType()
	sm.scanners[scannerType] = scanner
	sm.logger.Debug("Scanner registered", zap.String("type", scannerType))
}

// ScanAll runs every available scanner. A failing scanner is logged and skipped.
func (sm *ScannerManager) ScanAll(ctx context.Context) ([]*Candidate, error) {
	var all []*Candidate

	for _, scannerType := range sm.GetAvailableScanners() {
		candidates, err := sm.scanners[scannerType].Scan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			sm.logger.Error("Scanner failed", zap.String("type", scannerType), zap.Error(err))
			continue
		}

		all = append(all, candidates...)
		sm.logger.Info("Scanner completed",
			zap.String("type", scannerType),
			zap.Int("candidates", len(candidates)),
		)
	}

	return all, nil
}

// ScanByType runs one scanner
func (sm *ScannerManager) ScanByType(ctx context.Context, scannerType string) ([]*Candidate, error) {
	scanner, exists := sm.scanners[scannerType]
	if !exists {
		return nil, fmt.Errorf("scanner type not found: %s", scannerType)
	}

	if !scanner.IsAvailable() {
		return nil, fmt.Errorf("scanner not available: %s", scannerType)
	}

	return scanner.Scan(ctx)
}

// GetAvailableScanners returns the available scanner types in name order
func (sm *ScannerManager) GetAvailableScanners() []string {
	var available []string
	for scannerType, scanner := range sm.scanners {
		if scanner.IsAvailable() {
			available = append(available, scannerType)
		}
	}
	sort.Strings(available)
	return available
}
