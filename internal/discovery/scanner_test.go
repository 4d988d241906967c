package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeScanner struct {
	kind       string
	available  bool
	candidates []*Candidate
	err        error
}

func (f *fakeScanner) Scan(context.Context) ([]*Candidate, error) { return f.candidates, f.err }
func (f *fakeScanner) GetScannerType() string                     { return f.kind }
func (f *fakeScanner) IsAvailable() bool                          { return f.available }

func TestScanAll(t *testing.T) {
	sm := NewScannerManager(zap.NewNop())
	sm.RegisterScanner(&fakeScanner{kind: "tcp", available: true, candidates: []*Candidate{{Transport: "tcp", Address: "10.0.0.1:11300"}}})
	sm.RegisterScanner(&fakeScanner{kind: "serial", available: true, err: errors.New("no permission")})
	sm.RegisterScanner(&fakeScanner{kind: "bluetooth", available: false, candidates: []*Candidate{{Address: "x"}}})

	assert.Equal(t, []string{"serial", "tcp"}, sm.GetAvailableScanners())

	candidates, err := sm.ScanAll(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "10.0.0.1:11300", candidates[0].Address)
}

func TestScanByType(t *testing.T) {
	sm := NewScannerManager(zap.NewNop())
	sm.RegisterScanner(&fakeScanner{kind: "serial", available: false})

	_, err := sm.ScanByType(context.Background(), "tcp")
	assert.ErrorContains(t, err, "not found")

	_, err = sm.ScanByType(context.Background(), "serial")
	assert.ErrorContains(t, err, "not available")
}
