// internal/protocol/protocol.go
package protocol

import (
	"context"
	"fmt"
	"time"
)

// TransportType names the physical path to the controller gateway
type TransportType string

const (
	TransportTCP    TransportType = "TCP"
	TransportSerial TransportType = "SERIAL"
)

// Transport is a byte stream to the controller gateway
type Transport interface {
	// Connection lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Data communication
	Write(ctx context.Context, data []byte) error
	Read(ctx context.Context, maxBytes int) ([]byte, error)

	// Protocol information
	Type() TransportType
	Stats() ProtocolStats
}

// ProtocolStats provides protocol-level statistics
type ProtocolStats struct {
	BytesWritten   int64         `json:"bytes_written"`
	BytesRead      int64         `json:"bytes_read"`
	OperationCount int64         `json:"operation_count"`
	ErrorCount     int64         `json:"error_count"`
	LastActivity   time.Time     `json:"last_activity"`
	AverageLatency time.Duration `json:"average_latency"`
	IsConnected    bool          `json:"is_connected"`
}

// ReadFull reads exactly n bytes, looping over short reads
func ReadFull(ctx context.Context, t Transport, n int) ([]byte, error) {
	buf := make([]byte, 0, n)
	for len(buf) < n {
		chunk, err := t.Read(ctx, n-len(buf))
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			continue
		}
		buf = append(buf, chunk...)
	}
	if len(buf) != n {
		return nil, fmt.Errorf("short read: %d of %d bytes", len(buf), n)
	}
	return buf, nil
}

// updateAverageLatency updates the running average latency
func (s *ProtocolStats) updateAverageLatency(newLatency time.Duration) {
	if s.AverageLatency == 0 {
		s.AverageLatency = newLatency
	} else {
		s.AverageLatency = (s.AverageLatency + newLatency) / 2
	}
}
