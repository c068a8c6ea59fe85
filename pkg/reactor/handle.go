package reactor

import (
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
)

// Handle is a cheaply clonable, non-thread-crossable reference to a
// Reactor's stack and socket-set access point (spec.md §4.2). Every socket
// type in tcpsock/udpsock holds exactly one and uses it to reach the
// stack's endpoint factory and the OrphanedClosingSet. A Handle must never
// be shared with a goroutine pinned to a different core/reactor.
type Handle struct {
	r *Reactor
}

// Clone returns an equivalent Handle. Since the underlying Reactor is
// already safe to reference from any number of goroutines on the same
// core, Clone is just a cheap copy — there is no refcount to maintain.
func (h *Handle) Clone() *Handle {
	return &Handle{r: h.r}
}

// Stack returns the gvisor stack this handle's reactor drives.
func (h *Handle) Stack() *stack.Stack { return h.r.stack }

// NICID returns the NIC ID this handle's reactor's DeviceAdapter is
// attached to.
func (h *Handle) NICID() tcpip.NICID { return h.r.nicID }

// Orphan transfers a mid-close endpoint to the reactor's
// OrphanedClosingSet (spec.md §4.3 TcpStream drop policy).
func (h *Handle) Orphan(ep tcpip.Endpoint) {
	h.r.Orphan(ep)
}

// Ticks reports the reactor's lifetime main-loop iteration count, for
// diagnostics endpoints such as adminapi's /api/v1/stats.
func (h *Handle) Ticks() uint64 { return h.r.Ticks() }

// OrphanCount reports the reactor's current OrphanedClosingSet size.
func (h *Handle) OrphanCount() int { return h.r.OrphanCount() }
