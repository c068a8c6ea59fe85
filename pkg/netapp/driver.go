package netapp

import (
	"sync"

	"github.com/fastpath/netcore/pkg/arpcache"
	"github.com/fastpath/netcore/pkg/ioqueue"
)

// Driver is AppRunner's entire boundary to the kernel-bypass NIC driver
// (spec.md §1's HardwareQueuePair/EAL collaborator, explicitly out of
// scope). Real hardware bindings are never implemented here; a concrete
// Driver translates "give me queue N's hardware queue pair" into whatever
// a real poll-mode driver requires.
type Driver interface {
	// Cores returns the set of CPU core IDs to run a worker on, one queue
	// per core. Cores()[0] is the primary core (spec.md §4.5 step 8 runs
	// it on the calling goroutine rather than spawning a worker).
	Cores() []int

	// RSSTableSize returns the NIC's RSS redirection-table size, or 0 if
	// the NIC has none (spec.md §4.5 step 2).
	RSSTableSize() int

	// MAC returns the NIC's hardware address (spec.md §4.5 step 5).
	MAC() arpcache.MAC

	// NewQueuePair configures and returns queueIndex's hardware queue
	// pair, sized per mbufsPerQueue/rxDescriptors/txDescriptors.
	NewQueuePair(queueIndex, mbufsPerQueue, rxDescriptors, txDescriptors int) (ioqueue.Pair, error)

	// Close stops the NIC and releases any pool/queue resources (spec.md
	// §4.5 step 9).
	Close() error
}

// LoopbackDriver is the in-repo reference Driver: every queue pair is one
// side of an ioqueue.Loopback, with the peer side retained for tests and
// example programs to inject or observe traffic. It never touches real
// hardware, matching spec.md's Non-goal that DPDK/EAL bindings are out of
// scope.
type LoopbackDriver struct {
	cores []int
	mac   arpcache.MAC

	mu    sync.Mutex
	peers map[int]ioqueue.Pair
}

// NewLoopbackDriver returns a Driver reporting numCores cores (IDs
// 0..numCores-1) and the given MAC.
func NewLoopbackDriver(numCores int, mac arpcache.MAC) *LoopbackDriver {
	cores := make([]int, numCores)
	for i := range cores {
		cores[i] = i
	}
	return &LoopbackDriver{cores: cores, mac: mac, peers: make(map[int]ioqueue.Pair)}
}

func (d *LoopbackDriver) Cores() []int     { return d.cores }
func (d *LoopbackDriver) RSSTableSize() int { return 0 }
func (d *LoopbackDriver) MAC() arpcache.MAC { return d.mac }

// NewQueuePair builds a fresh loopback pair and keeps the peer side
// reachable via Peer(queueIndex).
func (d *LoopbackDriver) NewQueuePair(queueIndex, mbufsPerQueue, rxDescriptors, txDescriptors int) (ioqueue.Pair, error) {
	_ = rxDescriptors
	_ = txDescriptors
	bufs := mbufsPerQueue
	if bufs <= 0 {
		bufs = DefaultMbufsPerQueue
	}
	ours, peer := ioqueue.NewLoopbackPair(bufs, BufCapForMTU(DefaultMTU), 128)

	d.mu.Lock()
	d.peers[queueIndex] = peer
	d.mu.Unlock()

	return ours, nil
}

// Peer returns the far side of queueIndex's loopback pair, or nil if the
// queue pair was never created.
func (d *LoopbackDriver) Peer(queueIndex int) ioqueue.Pair {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peers[queueIndex]
}

func (d *LoopbackDriver) Close() error { return nil }
