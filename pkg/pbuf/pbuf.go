// Package pbuf implements the packet-buffer pool shared by a single NIC
// queue: fixed-capacity buffers with headroom, handed out to exactly one
// owner at a time (pool, RX batch, TX batch, or the TCP/IP stack) and
// returned to the pool on release.
package pbuf

import (
	"errors"
	"fmt"
	"sync"
)

// HeadroomOverhead is the worst-case L2/L3/L4 header overhead a buffer
// must reserve on top of the configured MTU. See Adapter construction in
// package device: MTU + HeadroomOverhead must not exceed buffer capacity.
const HeadroomOverhead = 94

// ErrCapacityTooSmall is returned by CheckCapacity when a buffer pool's
// per-buffer capacity cannot hold MTU + HeadroomOverhead bytes.
var ErrCapacityTooSmall = errors.New("pbuf: buffer capacity too small for MTU")

// CheckCapacity validates the DeviceAdapter construction precondition from
// spec.md §4.1: capacity must be at least mtu+94.
func CheckCapacity(mtu, capacity int) error {
	if capacity < mtu+HeadroomOverhead {
		return fmt.Errorf("%w: mtu=%d capacity=%d want>=%d", ErrCapacityTooSmall, mtu, capacity, mtu+HeadroomOverhead)
	}
	return nil
}

// Buffer is a single packet payload with headroom, length, and capacity.
// A Buffer is exclusively owned at all times: by a Pool's free list, by an
// IngressBatch, by an EgressBatch, or by the TCP/IP stack while it writes
// into it. It is never aliased across those owners.
type Buffer struct {
	data     []byte
	headroom int
	length   int
}

// newBuffer allocates a buffer with the given capacity and headroom.
func newBuffer(capacity, headroom int) *Buffer {
	return &Buffer{
		data:     make([]byte, capacity),
		headroom: headroom,
	}
}

// Reset clears length to zero, keeping headroom and capacity. Called by
// the Pool before a buffer is reused.
func (b *Buffer) Reset() {
	b.length = 0
}

// Cap returns the buffer's total capacity, including headroom.
func (b *Buffer) Cap() int { return len(b.data) }

// Headroom returns the number of leading bytes reserved before the
// payload.
func (b *Buffer) Headroom() int { return b.headroom }

// Len returns the current payload length.
func (b *Buffer) Len() int { return b.length }

// Payload returns the mutable payload slice: data[headroom : headroom+length].
func (b *Buffer) Payload() []byte {
	return b.data[b.headroom : b.headroom+b.length]
}

// SetLen grows or shrinks the payload view. n must fit within the
// remaining capacity after headroom.
func (b *Buffer) SetLen(n int) error {
	if b.headroom+n > len(b.data) {
		return fmt.Errorf("pbuf: SetLen(%d) exceeds capacity %d (headroom %d)", n, len(b.data), b.headroom)
	}
	b.length = n
	return nil
}

// WritableTail returns the full writable region from headroom to the end
// of the underlying array, for protocol stacks that write a
// length-sized slice directly into the buffer.
func (b *Buffer) WritableTail() []byte {
	return b.data[b.headroom:]
}

// Pool is a preallocated, fixed-size packet-buffer pool, analogous to the
// HardwareQueuePair's mbuf pool in spec.md §2 item 1. Safe for concurrent
// use; in this design each queue's DeviceAdapter only ever touches its own
// pool from one goroutine, but the Pool itself does not assume that.
type Pool struct {
	mu       sync.Mutex
	free     []*Buffer
	capacity int
	headroom int
	// allocated counts buffers ever created, for diagnostics only.
	allocated int
}

// NewPool preallocates n buffers of the given capacity and headroom.
func NewPool(n, capacity, headroom int) *Pool {
	p := &Pool{
		free:     make([]*Buffer, 0, n),
		capacity: capacity,
		headroom: headroom,
	}
	for i := 0; i < n; i++ {
		p.free = append(p.free, newBuffer(capacity, headroom))
		p.allocated++
	}
	return p
}

// Get removes one buffer from the pool's free list. It returns (nil,
// false) when the pool is exhausted; callers (the DeviceAdapter's
// egress path) must handle that by degrading to a throwaway heap buffer
// per spec.md §4.1, not by blocking.
func (p *Pool) Get() (*Buffer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.free)
	if n == 0 {
		return nil, false
	}
	b := p.free[n-1]
	p.free = p.free[:n-1]
	b.Reset()
	return b, true
}

// Put returns a buffer to the pool's free list. Buffers not allocated
// from this pool (the throwaway fallback buffers) must never be
// returned here.
func (p *Pool) Put(b *Buffer) {
	if b == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, b)
}

// Len reports the number of buffers currently available.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Capacity returns the configured per-buffer capacity.
func (p *Pool) Capacity() int { return p.capacity }

// Headroom returns the configured per-buffer headroom.
func (p *Pool) Headroom() int { return p.headroom }

// NewThrowaway allocates a heap buffer outside of the pool. Used only
// when the pool is exhausted during the egress path (spec.md §4.1); the
// resulting packet is delivered to the stack write path but dropped at
// transmit time since the driver never sees it.
func NewThrowaway(capacity, headroom int) *Buffer {
	return newBuffer(capacity, headroom)
}
