// Package arpcache implements SharedArpCache: a process-wide, lock-free
// single-producer/multi-consumer snapshot of IPv4->MAC mappings, used to
// keep every per-core TCP/IP stack's neighbor cache warm under RSS
// without any core ever taking a lock on another core's hot path
// (spec.md §4.4).
package arpcache

import (
	"encoding/binary"
	"net"
	"sync/atomic"
)

// MAC is a 6-byte Ethernet hardware address.
type MAC [6]byte

// String renders the MAC in the usual colon-separated hex form.
func (m MAC) String() string {
	return net.HardwareAddr(m[:]).String()
}

// snapshot is the immutable map published via Cache.ptr. Never mutated in
// place; Insert always clones-then-publishes.
type snapshot map[[4]byte]MAC

// Cache is the SharedArpCache: one persistent IPv4->MAC mapping plus a
// version counter that strictly increases on every Insert call, even if
// the value being inserted is unchanged. That "bump on refresh" rule is
// deliberate (spec.md §4.4, §9): it is how consumer cores know to
// re-inject synthetic ARP replies and keep the embedded stack's own
// neighbor cache from expiring on its internal timer.
//
// Exactly one core (the one servicing queue 0) may call Insert; every
// other core only calls Get/Contains/Snapshot/Version. The zero value is
// not usable; use New.
type Cache struct {
	ptr     atomic.Pointer[snapshot]
	version atomic.Uint64
}

// New returns an empty, ready-to-use cache.
func New() *Cache {
	c := &Cache{}
	empty := make(snapshot)
	c.ptr.Store(&empty)
	return c
}

// Get performs a single atomic load of the current snapshot followed by a
// hash lookup. Safe to call from any core.
func (c *Cache) Get(ip [4]byte) (MAC, bool) {
	snap := *c.ptr.Load()
	mac, ok := snap[ip]
	return mac, ok
}

// Contains reports whether ip has a mapping in the current snapshot.
func (c *Cache) Contains(ip [4]byte) bool {
	_, ok := c.Get(ip)
	return ok
}

// Snapshot returns the current IPv4->MAC mapping. The returned map must
// be treated as immutable by the caller; it is the exact map object the
// cache is currently publishing, not a defensive copy, to avoid an
// allocation on every consumer's poll.
func (c *Cache) Snapshot() map[[4]byte]MAC {
	return *c.ptr.Load()
}

// Version performs a relaxed load of the version counter.
func (c *Cache) Version() uint64 {
	return c.version.Load()
}

// Insert records ip -> mac. Single-producer only: only the core that owns
// queue 0 may call this. If the snapshot already maps ip to mac, the
// version is still bumped (a "refresh" with no value change) and the
// snapshot pointer is left untouched; otherwise the snapshot is cloned,
// the new mapping is added, the new pointer is published, and then the
// version is bumped. The post-call version always strictly exceeds the
// pre-call version (spec.md §8 invariant 6).
func (c *Cache) Insert(ip [4]byte, mac MAC) {
	cur := *c.ptr.Load()
	if existing, ok := cur[ip]; ok && existing == mac {
		c.version.Add(1)
		return
	}

	next := make(snapshot, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[ip] = mac
	c.ptr.Store(&next)
	c.version.Add(1)
}

// --- Synthetic ARP reply wire format (spec.md §4.4, §6(c)) ---

// SyntheticARPReplySize is the exact length of a synthesized ARP reply
// frame.
const SyntheticARPReplySize = 42

const (
	etherTypeARP  = 0x0806
	arpHTypeEther = 1
	arpPTypeIPv4  = 0x0800
	arpHLenEther  = 6
	arpPLenIPv4   = 4
	arpOpReply    = 2
	arpOpRequest  = 1
)

// BuildSyntheticARPReply lays out a 42-byte Ethernet+ARP frame announcing
// that peerIP resolves to peerMAC, addressed to ourMAC. Fed to the
// embedded TCP/IP stack on a consumer core, it populates that stack's
// neighbor cache exactly as a real ARP reply from the wire would
// (spec.md §4.4).
func BuildSyntheticARPReply(ourMAC MAC, ourIP [4]byte, peerMAC MAC, peerIP [4]byte) []byte {
	f := make([]byte, SyntheticARPReplySize)

	// Ethernet header.
	copy(f[0:6], ourMAC[:])  // destination = us
	copy(f[6:12], peerMAC[:]) // source = peer
	binary.BigEndian.PutUint16(f[12:14], etherTypeARP)

	// ARP header.
	binary.BigEndian.PutUint16(f[14:16], arpHTypeEther)
	binary.BigEndian.PutUint16(f[16:18], arpPTypeIPv4)
	f[18] = arpHLenEther
	f[19] = arpPLenIPv4
	binary.BigEndian.PutUint16(f[20:22], arpOpReply)
	copy(f[22:28], peerMAC[:])
	copy(f[28:32], peerIP[:])
	copy(f[32:38], ourMAC[:])
	copy(f[38:42], ourIP[:])

	return f
}

// ParseSyntheticARPReply recognizes an ARP-reply frame (EtherType 0x0806,
// operation 2) and extracts the sender's IPv4/MAC. It returns ok=false
// for anything shorter than 42 bytes, any non-ARP EtherType, or an ARP
// *request* (operation 1) — only replies populate a neighbor cache.
func ParseSyntheticARPReply(frame []byte) (ip [4]byte, mac MAC, ok bool) {
	if len(frame) < SyntheticARPReplySize {
		return ip, mac, false
	}
	if binary.BigEndian.Uint16(frame[12:14]) != etherTypeARP {
		return ip, mac, false
	}
	if binary.BigEndian.Uint16(frame[20:22]) != arpOpReply {
		return ip, mac, false
	}
	copy(mac[:], frame[22:28])
	copy(ip[:], frame[28:32])
	return ip, mac, true
}

// IsARPReply reports whether frame is an ARP reply, applying exactly the
// checks of ParseSyntheticARPReply and discarding the extracted fields.
func IsARPReply(frame []byte) bool {
	_, _, ok := ParseSyntheticARPReply(frame)
	return ok
}
