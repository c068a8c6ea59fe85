package stats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEchoStatsAccumulates(t *testing.T) {
	var s EchoStats
	s.IncConnections()
	s.IncConnections()
	s.AddBytesReceived(10)
	s.AddBytesSent(20)

	snap := s.Snapshot()
	require.EqualValues(t, 2, snap.Connections)
	require.EqualValues(t, 10, snap.BytesReceived)
	require.EqualValues(t, 20, snap.BytesSent)
}
