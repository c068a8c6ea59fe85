package tcpsock

import (
	"context"
	"fmt"
	"sync"

	"github.com/fastpath/netcore/pkg/reactor"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/adapters/gonet"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/transport/tcp"
	"gvisor.dev/gvisor/pkg/waiter"
)

// listenSlot is one socket in the pool, always either actively listening
// or nil (dead).
type listenSlot struct {
	ep tcpip.Endpoint
	wq *waiter.Queue
}

// TcpListener owns a pool of `max(1, backlog)` listening sockets so that N
// concurrent handshakes can complete without a race where a SYN arrives
// before Accept replenishes the one listening slot the embedded stack
// actually exposes per call to Listen (spec.md §4.3 TcpListener
// rationale).
type TcpListener struct {
	mu     sync.Mutex
	handle *reactor.Handle
	port   uint16
	rxBuf  int
	txBuf  int
	slots  []*listenSlot
}

// BindWithBacklog creates max(1, backlog) listening sockets on port and
// returns the pool (spec.md §4.3 TcpListener.bind_with_backlog). If any
// slot fails to bind/listen, every slot created so far is torn down and
// the error is returned.
func BindWithBacklog(handle *reactor.Handle, port uint16, rxBufSize, txBufSize, backlog int) (*TcpListener, error) {
	n := backlog
	if n < 1 {
		n = 1
	}
	if rxBufSize <= 0 {
		rxBufSize = DefaultRxBufSize
	}
	if txBufSize <= 0 {
		txBufSize = DefaultTxBufSize
	}

	l := &TcpListener{handle: handle, port: port, rxBuf: rxBufSize, txBuf: txBufSize}
	for i := 0; i < n; i++ {
		slot, err := l.newListeningSlot()
		if err != nil {
			l.Drop()
			return nil, err
		}
		l.slots = append(l.slots, slot)
	}
	return l, nil
}

// Bind creates a listener on port with DefaultBacklog slots (spec.md §6(b)
// TcpListener::bind), for callers that don't need to tune the pool size.
func Bind(handle *reactor.Handle, port uint16, rxBufSize, txBufSize int) (*TcpListener, error) {
	return BindWithBacklog(handle, port, rxBufSize, txBufSize, DefaultBacklog)
}

// Backlog reports the listener's current slot-pool size (spec.md §6(b)
// TcpListener.backlog) — the normalized value BindWithBacklog actually
// allocated, never less than 1.
func (l *TcpListener) Backlog() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// LocalPort reports the port this listener is bound to (spec.md §6(b)
// TcpListener.local_port).
func (l *TcpListener) LocalPort() uint16 {
	return l.port
}

func (l *TcpListener) newListeningSlot() (*listenSlot, error) {
	var wq waiter.Queue
	ep, err := l.handle.Stack().NewEndpoint(tcp.ProtocolNumber, ipv4.ProtocolNumber, &wq)
	if err != nil {
		return nil, fmt.Errorf("tcpsock: create listen endpoint: %s", err)
	}
	ep.SocketOptions().SetReceiveBufferSize(int64(l.rxBuf), true)
	ep.SocketOptions().SetSendBufferSize(int64(l.txBuf), true)
	ep.SocketOptions().SetReuseAddress(true)
	ep.SocketOptions().SetReusePort(true)

	if bindErr := ep.Bind(tcpip.FullAddress{Port: l.port}); bindErr != nil {
		ep.Close()
		return nil, fmt.Errorf("tcpsock: bind port %d: %s", l.port, bindErr)
	}
	if listenErr := ep.Listen(1); listenErr != nil {
		ep.Close()
		return nil, fmt.Errorf("tcpsock: listen on port %d: %s", l.port, listenErr)
	}
	return &listenSlot{ep: ep, wq: &wq}, nil
}

// Accept scans the pool for any slot that has completed a handshake; on
// finding one, replaces that slot with a fresh listening socket (keeping
// pool size invariant) and returns a TcpStream wrapping the accepted
// endpoint. If none are ready it registers a waker on every live slot and
// suspends until any of them becomes readable. Accept is cancel-safe:
// canceling ctx before a handshake completes consumes no socket (spec.md
// §4.3 TcpListener.accept).
func (l *TcpListener) Accept(ctx context.Context) (*TcpStream, error) {
	for {
		stream, ok, err := l.tryAcceptOnce()
		if err != nil {
			return nil, err
		}
		if ok {
			return stream, nil
		}
		if err := l.waitForAcceptable(ctx); err != nil {
			return nil, err
		}
	}
}

func (l *TcpListener) tryAcceptOnce() (*TcpStream, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, slot := range l.slots {
		if slot == nil {
			continue
		}
		newEp, newWq, err := slot.ep.Accept(nil)
		if err != nil {
			if !isWouldBlock(err) {
				slot.ep.Close()
				l.slots[i] = nil
			}
			continue
		}

		fresh, ferr := l.newListeningSlot()
		slot.ep.Close()
		if ferr != nil {
			l.slots[i] = nil
		} else {
			l.slots[i] = fresh
		}

		return &TcpStream{
			ep:     newEp,
			wq:     newWq,
			conn:   gonet.NewTCPConn(newWq, newEp),
			handle: l.handle,
		}, true, nil
	}

	if l.allSlotsDeadLocked() {
		return nil, false, ErrAcceptUnaddressable
	}
	return nil, false, nil
}

func (l *TcpListener) waitForAcceptable(ctx context.Context) error {
	type registration struct {
		wq    *waiter.Queue
		entry waiter.Entry
	}

	l.mu.Lock()
	notify := make(chan struct{}, 1)
	done := make(chan struct{})
	var regs []registration
	for _, slot := range l.slots {
		if slot == nil {
			continue
		}
		entry, ch := waiter.NewChannelEntry(nil)
		slot.wq.EventRegister(&entry, waiter.ReadableEvents)
		regs = append(regs, registration{wq: slot.wq, entry: entry})

		go func(ch chan struct{}) {
			select {
			case <-ch:
				select {
				case notify <- struct{}{}:
				default:
				}
			case <-ctx.Done():
			case <-done:
			}
		}(ch)
	}
	l.mu.Unlock()

	defer func() {
		close(done)
		for _, r := range regs {
			r.wq.EventUnregister(&r.entry)
		}
	}()

	select {
	case <-notify:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *TcpListener) allSlotsDeadLocked() bool {
	for _, slot := range l.slots {
		if slot != nil {
			return false
		}
	}
	return true
}

// Drop aborts and removes every pool socket (spec.md §4.3
// TcpListener.drop).
func (l *TcpListener) Drop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, slot := range l.slots {
		if slot != nil {
			slot.ep.Close()
			l.slots[i] = nil
		}
	}
}
