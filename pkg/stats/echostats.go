// Package stats holds small atomic counter bundles shared by the example
// commands and adminapi's stats endpoint.
package stats

import "sync/atomic"

// EchoStats tracks a listener's lifetime counters: total accepted
// connections and bytes moved in either direction. Every field is
// updated with atomic ops so a single EchoStats can be shared across the
// per-core goroutines accepting and echoing connections.
type EchoStats struct {
	connections   atomic.Uint64
	bytesReceived atomic.Uint64
	bytesSent     atomic.Uint64
}

// IncConnections records one more accepted connection.
func (s *EchoStats) IncConnections() { s.connections.Add(1) }

// AddBytesReceived records n more bytes read from clients.
func (s *EchoStats) AddBytesReceived(n uint64) { s.bytesReceived.Add(n) }

// AddBytesSent records n more bytes written back to clients.
func (s *EchoStats) AddBytesSent(n uint64) { s.bytesSent.Add(n) }

// Snapshot is a point-in-time, non-atomic copy of the three counters.
type Snapshot struct {
	Connections   uint64
	BytesReceived uint64
	BytesSent     uint64
}

// Snapshot reads all three counters. The read is not a single atomic
// transaction across fields, which is fine for a diagnostics endpoint.
func (s *EchoStats) Snapshot() Snapshot {
	return Snapshot{
		Connections:   s.connections.Load(),
		BytesReceived: s.bytesReceived.Load(),
		BytesSent:     s.bytesSent.Load(),
	}
}
