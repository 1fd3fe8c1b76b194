//go:build windows

package sensors

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseNetstatRowTCP(t *testing.T) {
	conn, ok := parseNetstatRow([]string{"TCP", "10.0.0.5:49732", "93.184.216.34:443", "ESTABLISHED", "4821"})
	require.True(t, ok)
	require.Equal(t, "tcp", conn.Protocol)
	require.Equal(t, uint32(4821), conn.PID)
	require.Equal(t, "ESTABLISHED", *conn.State)
}

func TestParseNetstatRowUDPHasNoState(t *testing.T) {
	conn, ok := parseNetstatRow([]string{"UDP", "0.0.0.0:5353", "*:*", "1234"})
	require.True(t, ok)
	require.Equal(t, "udp", conn.Protocol)
	require.Nil(t, conn.State)
	require.Equal(t, uint32(1234), conn.PID)
}

func TestParseNetstatRowRejectsMalformedPID(t *testing.T) {
	_, ok := parseNetstatRow([]string{"TCP", "10.0.0.5:1", "10.0.0.6:2", "LISTENING", "not-a-pid"})
	require.False(t, ok)
}
