package arpcache

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Entry is the CBOR wire representation of one cache mapping; [4]byte and
// MAC array types do not round-trip cleanly through cbor's default map
// key encoding, so ExportSnapshot flattens them into a slice of Entry
// first.
type Entry struct {
	IP      [4]byte `cbor:"ip"`
	MAC     MAC     `cbor:"mac"`
	Version uint64  `cbor:"version"`
}

// ExportSnapshot CBOR-encodes the cache's current mapping plus its
// version counter, for the cmd/arpsnap diagnostic tool to write to disk
// or ship over a debug RPC channel. This has no bearing on datapath
// behavior; it exists purely for offline inspection.
func ExportSnapshot(c *Cache) ([]byte, error) {
	snap := c.Snapshot()
	entries := make([]Entry, 0, len(snap))
	for ip, mac := range snap {
		entries = append(entries, Entry{IP: ip, MAC: mac, Version: c.Version()})
	}
	b, err := cbor.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("arpcache: encode snapshot: %w", err)
	}
	return b, nil
}

// ImportSnapshot decodes a blob produced by ExportSnapshot back into a
// slice of Entry, for tools that display or diff cache snapshots. It
// does not reconstruct a live *Cache, since a cache's version counter is
// only ever meaningfully advanced by its single producer.
func ImportSnapshot(b []byte) ([]Entry, error) {
	var entries []Entry
	if err := cbor.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("arpcache: decode snapshot: %w", err)
	}
	return entries, nil
}
