// Package httpbridge adapts tcpsock's async TCP sockets to the standard
// net.Listener/net.Conn interfaces, so an unmodified net/http.Server (or
// golang.org/x/net/http2, via h2c for cleartext HTTP/2) can be served
// directly over the embedded stack's TCP sockets rather than the host
// kernel's.
package httpbridge

import (
	"context"
	"fmt"
	"net"

	"github.com/fastpath/netcore/pkg/tcpsock"

	"gvisor.dev/gvisor/pkg/tcpip"
)

// Addr adapts a tcpip.FullAddress to net.Addr for Listener.Addr and
// net.Conn's LocalAddr/RemoteAddr.
type Addr struct {
	tcpip.FullAddress
}

func (a Addr) Network() string { return "tcp" }
func (a Addr) String() string  { return fmt.Sprintf("%s:%d", a.FullAddress.Addr, a.FullAddress.Port) }

// Listener adapts a *tcpsock.TcpListener to net.Listener. Accept blocks on
// an internal context that Close cancels, since net.Listener.Accept takes
// no context of its own.
type Listener struct {
	inner  *tcpsock.TcpListener
	addr   Addr
	ctx    context.Context
	cancel context.CancelFunc
}

// NewListener wraps an already-bound TcpListener. addr is the local
// address Accept'd connections were bound to, used only for Addr().
func NewListener(inner *tcpsock.TcpListener, addr tcpip.FullAddress) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{inner: inner, addr: Addr{addr}, ctx: ctx, cancel: cancel}
}

// Accept waits for the next connection and returns it as a net.Conn
// backed by the stack's own TCP endpoint.
func (l *Listener) Accept() (net.Conn, error) {
	stream, err := l.inner.Accept(l.ctx)
	if err != nil {
		return nil, err
	}
	return stream.Conn(), nil
}

// Close stops any in-flight Accept and releases the listener's slots.
func (l *Listener) Close() error {
	l.cancel()
	l.inner.Drop()
	return nil
}

// Addr returns the address this listener was bound to.
func (l *Listener) Addr() net.Addr { return l.addr }
