package tcp

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestScan_FindsOpenPorts(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	open := listener.Addr().(*net.TCPAddr).Port

	// A port that was just released is closed
	closedListener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closed := closedListener.Addr().(*net.TCPAddr).Port
	closedListener.Close()

	scanner := NewScanner(zap.NewNop(), &Config{
		Hosts:       []string{"127.0.0.1"},
		Ports:       []int{closed, open},
		ConnTimeout: time.Second,
	})
	assert.Equal(t, "tcp", scanner.GetScannerType())
	require.True(t, scanner.IsAvailable())

	candidates, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "tcp", candidates[0].Transport)
	assert.Equal(t, net.JoinHostPort("127.0.0.1", strconv.Itoa(open)), candidates[0].Address)
}

func TestIsAvailable_NeedsHostsAndPorts(t *testing.T) {
	assert.False(t, NewScanner(zap.NewNop(), &Config{Ports: []int{11300}}).IsAvailable())
	assert.False(t, NewScanner(zap.NewNop(), &Config{Hosts: []string{"10.0.0.1"}}).IsAvailable())
}
