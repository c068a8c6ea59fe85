// Package tcpsock implements the async TCP socket layer: TcpStream and
// TcpListener, each tied to one reactor.Handle (spec.md §4.3).
//
// The Rust original models a suspending operation as a single-poll state
// machine that registers a waker and returns "pending". A Go goroutine can
// just block, so every suspend point here is a blocking receive on a
// channel a gvisor waiter.Entry is wired to notify — the same mechanism
// gvisor's own pkg/tcpip/adapters/gonet package uses internally. This
// keeps the "operation registers for readable/writable, reactor's tick
// delivers the wakeup" contract intact; only the syntax for "suspend"
// changed from a Future to a channel receive.
package tcpsock

import (
	"context"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/waiter"
)

// DefaultRxBufSize and DefaultTxBufSize size new endpoints' socket buffers
// when callers don't care to tune them.
const (
	DefaultRxBufSize = 1 << 20
	DefaultTxBufSize = 1 << 20
)

// DefaultBacklog is the listen-slot pool size Bind uses when a caller has
// no particular backlog in mind.
const DefaultBacklog = 4

// waitForEvents blocks until the endpoint reports any event in mask, or
// until ctx is done. It is the Go realization of "register a waker and
// suspend" for WaitConnected and Close; Send and Recv suspend inside
// gonet's TCPConn, and Accept registers on every slot in
// waitForAcceptable.
func waitForEvents(ctx context.Context, wq *waiter.Queue, mask waiter.EventMask) error {
	entry, notifyCh := waiter.NewChannelEntry(nil)
	wq.EventRegister(&entry, mask)
	defer wq.EventUnregister(&entry)

	select {
	case <-notifyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isWouldBlock reports whether err is gvisor's "operation would block"
// sentinel; Accept uses it to tell a listen slot with no completed
// handshake yet from a dead one.
func isWouldBlock(err tcpip.Error) bool {
	_, ok := err.(*tcpip.ErrWouldBlock)
	return ok
}
