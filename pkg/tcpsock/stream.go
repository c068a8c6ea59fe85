package tcpsock

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/fastpath/netcore/pkg/reactor"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/adapters/gonet"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/transport/tcp"
	"gvisor.dev/gvisor/pkg/waiter"
)

// TcpStream is one established (or connecting) TCP connection, tied to a
// single reactor.Handle (spec.md §4.3). It is not safe to share a
// TcpStream across goroutines pinned to different reactors.
type TcpStream struct {
	ep     tcpip.Endpoint
	wq     *waiter.Queue
	conn   *gonet.TCPConn
	handle *reactor.Handle
}

// Connect allocates a TCP endpoint, optionally binds it to localPort, and
// starts an asynchronous connect to remote (spec.md §4.3
// TcpStream.connect). It does not wait for the handshake to finish; call
// WaitConnected for that. On any failure the endpoint is closed and never
// added to the caller's state.
func Connect(handle *reactor.Handle, remote tcpip.FullAddress, localPort uint16, rxBufSize, txBufSize int) (*TcpStream, error) {
	var wq waiter.Queue
	ep, err := handle.Stack().NewEndpoint(tcp.ProtocolNumber, ipv4.ProtocolNumber, &wq)
	if err != nil {
		return nil, fmt.Errorf("tcpsock: create endpoint: %s", err)
	}

	if rxBufSize <= 0 {
		rxBufSize = DefaultRxBufSize
	}
	if txBufSize <= 0 {
		txBufSize = DefaultTxBufSize
	}
	ep.SocketOptions().SetReceiveBufferSize(int64(rxBufSize), true)
	ep.SocketOptions().SetSendBufferSize(int64(txBufSize), true)

	if localPort != 0 {
		if bindErr := ep.Bind(tcpip.FullAddress{Port: localPort}); bindErr != nil {
			ep.Close()
			if _, ok := bindErr.(*tcpip.ErrPortInUse); ok {
				return nil, ErrConnectPortInUse
			}
			return nil, ErrConnectInvalidState
		}
	}

	if connErr := ep.Connect(remote); connErr != nil {
		if _, started := connErr.(*tcpip.ErrConnectStarted); !started {
			ep.Close()
			if _, ok := connErr.(*tcpip.ErrInvalidEndpointState); ok {
				return nil, ErrConnectInvalidState
			}
			return nil, ErrConnectInvalidEndpoint
		}
	}

	return &TcpStream{
		ep:     ep,
		wq:     &wq,
		conn:   gonet.NewTCPConn(&wq, ep),
		handle: handle,
	}, nil
}

// WaitConnected suspends until the handshake resolves to Established
// (success) or Closed/TimeWait (failure), per spec.md §4.3.
func (s *TcpStream) WaitConnected(ctx context.Context) error {
	for {
		switch tcp.EndpointState(s.ep.State()) {
		case tcp.StateEstablished:
			return nil
		case tcp.StateClose, tcp.StateTimeWait:
			return ErrConnectInvalidState
		}
		if err := waitForEvents(ctx, s.wq, waiter.WritableEvents|waiter.EventHUp|waiter.EventErr); err != nil {
			return err
		}
	}
}

// State reports the endpoint's current TCP state, for diagnostics and
// tests.
func (s *TcpStream) State() tcp.EndpointState {
	return tcp.EndpointState(s.ep.State())
}

// Conn exposes the stream as a standard net.Conn, letting stdlib-shaped
// code (net/http.Server, golang.org/x/net/http2) run directly over the
// stack's TCP sockets without reimplementing buffered I/O.
func (s *TcpStream) Conn() net.Conn {
	return s.conn
}

// Send progressively writes data, suspending between partial writes until
// every byte is consumed (spec.md §4.3). It fails with
// ErrSendInvalidState if the socket is not in a state that can ever
// accept more data.
func (s *TcpStream) Send(ctx context.Context, data []byte) (int, error) {
	switch tcp.EndpointState(s.ep.State()) {
	case tcp.StateEstablished, tcp.StateCloseWait:
	default:
		return 0, ErrSendInvalidState
	}

	cancel := watchCtx(ctx, s.conn.SetWriteDeadline)
	defer cancel()

	n, err := s.conn.Write(data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return n, ctxErr
		}
		return n, fmt.Errorf("tcpsock: send: %w", err)
	}
	return n, nil
}

// Recv reads up to len(buf) bytes, suspending when none are yet available
// (spec.md §4.3). An empty buf returns (0, nil) immediately. It returns
// (0, nil) when the peer has half-closed its side — gonet's TCPConn
// surfaces that as io.EOF, the same signal a plain net.Conn gives a caller
// after a FIN — and returns (0, nil) again on every later call while the
// socket stays in a readable state; it is not limited to a single 0. It
// fails with ErrRecvInvalidState if the socket can never yield bytes again.
func (s *TcpStream) Recv(ctx context.Context, buf []byte) (int, error) {
	switch tcp.EndpointState(s.ep.State()) {
	case tcp.StateEstablished, tcp.StateCloseWait, tcp.StateFinWait1, tcp.StateFinWait2:
	default:
		return 0, ErrRecvInvalidState
	}
	if len(buf) == 0 {
		return 0, nil
	}

	cancel := watchCtx(ctx, s.conn.SetReadDeadline)
	defer cancel()

	n, err := s.conn.Read(buf)
	if err != nil {
		if err == io.EOF {
			return 0, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return n, ctxErr
		}
		return n, fmt.Errorf("tcpsock: recv: %w", err)
	}
	return n, nil
}

// Close initiates a graceful half-close (spec.md §4.3): the endpoint
// transitions to FinWait1 and Close suspends until it reaches Closed or
// TimeWait. If ctx is canceled first, the endpoint is handed to the
// reactor's OrphanedClosingSet so the reactor's own tick finalizes it
// later instead of leaving a silently abandoned half-open socket.
func (s *TcpStream) Close(ctx context.Context) error {
	if err := s.ep.Shutdown(tcpip.ShutdownWrite); err != nil {
		if _, ok := err.(*tcpip.ErrNotConnected); !ok {
			return fmt.Errorf("tcpsock: shutdown: %s", err)
		}
	}

	for {
		switch tcp.EndpointState(s.ep.State()) {
		case tcp.StateClose, tcp.StateTimeWait:
			return nil
		}
		if err := waitForEvents(ctx, s.wq, waiter.EventHUp|waiter.EventErr); err != nil {
			s.handle.Orphan(s.ep)
			return err
		}
	}
}

// Abort forces an immediate RST (spec.md §4.3 TcpStream.abort), via
// SO_LINGER(0) — the portable way to turn a socket's close into an
// abortive reset instead of a graceful FIN.
func (s *TcpStream) Abort() {
	s.ep.SocketOptions().SetLinger(tcpip.LingerOption{Enabled: true, Timeout: 0})
	s.ep.Close()
}

// Drop implements spec.md §4.3's drop policy: a socket already mid-close
// or finalized is handed to the reactor's OrphanedClosingSet, whose sweep
// closes it once it reaches Closed or TimeWait; anything else is aborted.
func (s *TcpStream) Drop() {
	switch tcp.EndpointState(s.ep.State()) {
	case tcp.StateFinWait1, tcp.StateFinWait2, tcp.StateClosing, tcp.StateLastAck, tcp.StateTimeWait, tcp.StateClose:
		s.handle.Orphan(s.ep)
		return
	default:
		s.Abort()
	}
}

// watchCtx arranges for setDeadline(time.Now()) to be called if ctx is
// canceled before the returned stop function runs, translating a
// context.Context into gonet's deadline-based cancellation. It is the
// glue between this package's ctx-based suspension and gonet's net.Conn
// API.
func watchCtx(ctx context.Context, setDeadline func(time.Time) error) func() {
	if ctx.Done() == nil {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			setDeadline(time.Now())
		case <-stop:
		}
	}()
	return func() { close(stop) }
}
