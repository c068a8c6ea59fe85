// Package ioqueue defines the external driver contract that a
// DeviceAdapter consumes: burst receive, burst transmit, and buffer
// allocation against a per-queue hardware RX/TX ring pair. The real
// kernel-bypass driver (DPDK-style EAL bindings) is out of scope for this
// module (spec.md §1); Pair is the seam a real binding would implement.
//
// This package ships Loopback, an in-memory pair-of-pairs connecting two
// queues back to back, which the example apps and the socket-level tests
// run against, and Null, a peerless queue used by a few unit tests.
package ioqueue

import (
	"sync"

	"github.com/fastpath/netcore/pkg/pbuf"
)

// MaxBurst is the maximum number of buffers a single Receive or Transmit
// call may move, matching the HardwareQueuePair contract in spec.md §6(a).
const MaxBurst = 64

// Pair is one NIC queue's RX ring, TX ring, and packet-buffer pool, as
// seen by a DeviceAdapter.
type Pair interface {
	// Receive fills up to len(dst) buffers with received packets and
	// returns the count actually filled. Never blocks.
	Receive(dst []*pbuf.Buffer) int

	// Transmit hands up to len(src) buffers to the driver for sending
	// and returns the count actually accepted; the driver takes
	// ownership of accepted buffers. Never blocks.
	Transmit(src []*pbuf.Buffer) int

	// Alloc returns an empty buffer from this queue's pool, or nil if
	// the pool is exhausted.
	Alloc() *pbuf.Buffer

	// Release returns a buffer to this queue's pool. Buffers obtained
	// via pbuf.NewThrowaway must never be passed here.
	Release(b *pbuf.Buffer)
}

// Loopback is a pair of Pair endpoints wired together entirely in
// memory: packets transmitted on one side become receivable on the
// other. It is the reference HardwareQueuePair implementation used by
// this module's tests and single-process example apps, standing in for
// a real NIC without requiring hugepages or PCI devices (spec.md §6(d)).
type Loopback struct {
	pool *pbuf.Pool

	mu     sync.Mutex
	toPeer [][]byte // raw frame copies in flight to the peer
	peer   *Loopback
}

// NewLoopbackPair builds two connected Loopback queues sharing one pool
// sized for the given capacity/headroom.
func NewLoopbackPair(bufs, capacity, headroom int) (a, b *Loopback) {
	pool := pbuf.NewPool(bufs, capacity, headroom)
	a = &Loopback{pool: pool}
	b = &Loopback{pool: pool}
	a.peer = b
	b.peer = a
	return a, b
}

// Receive drains any frames the peer has transmitted, copying each into a
// freshly allocated buffer from this queue's pool. Degrades silently
// (drops) if the pool is exhausted, mirroring real hardware backpressure
// (spec.md §5 Backpressure).
func (l *Loopback) Receive(dst []*pbuf.Buffer) int {
	l.mu.Lock()
	n := len(l.toPeer)
	if n > len(dst) {
		n = len(dst)
	}
	frames := l.toPeer[:n]
	l.toPeer = l.toPeer[n:]
	l.mu.Unlock()

	got := 0
	for _, frame := range frames {
		buf, ok := l.pool.Get()
		if !ok {
			continue
		}
		if err := buf.SetLen(len(frame)); err != nil {
			l.pool.Put(buf)
			continue
		}
		copy(buf.Payload(), frame)
		dst[got] = buf
		got++
	}
	return got
}

// Transmit copies each buffer's payload into the peer's inbound queue and
// returns every buffer to this queue's pool (the driver "takes
// ownership" by freeing it back once the bytes are latched).
func (l *Loopback) Transmit(src []*pbuf.Buffer) int {
	if l.peer == nil {
		return 0
	}
	sent := 0
	for _, buf := range src {
		frame := make([]byte, buf.Len())
		copy(frame, buf.Payload())

		l.peer.mu.Lock()
		l.peer.toPeer = append(l.peer.toPeer, frame)
		l.peer.mu.Unlock()

		l.pool.Put(buf)
		sent++
	}
	return sent
}

// Alloc returns an empty buffer from the shared pool.
func (l *Loopback) Alloc() *pbuf.Buffer {
	b, ok := l.pool.Get()
	if !ok {
		return nil
	}
	return b
}

// Release returns a buffer to the shared pool.
func (l *Loopback) Release(b *pbuf.Buffer) {
	l.pool.Put(b)
}

// Null is a Pair that never has packets to receive; Transmit accepts every
// buffer, returns it to the pool and sends it nowhere. Used by device and
// reactor unit tests that need a queue without a peer.
type Null struct {
	pool *pbuf.Pool
}

// NewNull builds a Null queue backed by its own pool.
func NewNull(bufs, capacity, headroom int) *Null {
	return &Null{pool: pbuf.NewPool(bufs, capacity, headroom)}
}

func (n *Null) Receive(dst []*pbuf.Buffer) int { return 0 }
func (n *Null) Transmit(src []*pbuf.Buffer) int {
	for _, b := range src {
		n.pool.Put(b)
	}
	return len(src)
}
func (n *Null) Alloc() *pbuf.Buffer {
	b, ok := n.pool.Get()
	if !ok {
		return nil
	}
	return b
}
func (n *Null) Release(b *pbuf.Buffer) { n.pool.Put(b) }
