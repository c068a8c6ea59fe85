// Package udpsock implements UdpSocket, the async UDP datagram socket
// tied to one reactor.Handle (spec.md §4.3 UDP). Unlike TcpStream,
// send_to never suspends: the TX ring is sized at bind time and a
// saturated ring fails immediately rather than queuing the caller.
package udpsock

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/fastpath/netcore/pkg/reactor"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/transport/udp"
	"gvisor.dev/gvisor/pkg/waiter"
)

// ErrBufferFull is returned by SendTo when the TX ring is saturated
// (spec.md §4.3 UDP).
var ErrBufferFull = errors.New("udpsock: send ring is full")

// DefaultPackets and DefaultMaxPacketSize size a socket's ring buffers
// (spec.md §4.3: "size = packets x max_packet_size") when the caller
// doesn't specify.
const (
	DefaultPackets      = 256
	DefaultMaxPacketSize = 2048
)

// UdpSocket is bound to one local port and owns a packet-metadata +
// payload ring on each direction, realized here as the endpoint's own
// send/receive buffer sized packets*maxPacketSize (spec.md §4.3).
type UdpSocket struct {
	ep     tcpip.Endpoint
	wq     *waiter.Queue
	handle *reactor.Handle
}

// Bind creates a UDP endpoint, sizes its ring buffers, and binds it to
// port (0 for an ephemeral port).
func Bind(handle *reactor.Handle, port uint16, packets, maxPacketSize int) (*UdpSocket, error) {
	var wq waiter.Queue
	ep, err := handle.Stack().NewEndpoint(udp.ProtocolNumber, ipv4.ProtocolNumber, &wq)
	if err != nil {
		return nil, fmt.Errorf("udpsock: create endpoint: %s", err)
	}

	if packets <= 0 {
		packets = DefaultPackets
	}
	if maxPacketSize <= 0 {
		maxPacketSize = DefaultMaxPacketSize
	}
	ringBytes := int64(packets * maxPacketSize)
	ep.SocketOptions().SetReceiveBufferSize(ringBytes, true)
	ep.SocketOptions().SetSendBufferSize(ringBytes, true)

	if bindErr := ep.Bind(tcpip.FullAddress{Port: port}); bindErr != nil {
		ep.Close()
		return nil, fmt.Errorf("udpsock: bind port %d: %s", port, bindErr)
	}

	return &UdpSocket{ep: ep, wq: &wq, handle: handle}, nil
}

// LocalPort reports the port this socket is bound to.
func (u *UdpSocket) LocalPort() uint16 {
	addr, err := u.ep.GetLocalAddress()
	if err != nil {
		return 0
	}
	return addr.Port
}

// singleDatagramWriter receives exactly one io.Writer.Write call per
// Endpoint.Read, since UDP preserves datagram boundaries: excess bytes
// beyond the caller's buffer are discarded, mirroring POSIX recvfrom's
// MSG_TRUNC behavior, and the call is always reported as fully consumed so
// gvisor never treats the truncation as a write error.
type singleDatagramWriter struct {
	buf []byte
	n   int
}

func (w *singleDatagramWriter) Write(p []byte) (int, error) {
	w.n = copy(w.buf, p)
	return len(p), nil
}

// RecvFrom reads one datagram into buf, suspending until one arrives
// (spec.md §4.3: same waker-registration pattern as TCP). It returns the
// number of bytes copied into buf (at most len(buf); the rest of a longer
// datagram is discarded) and the sender's address.
func (u *UdpSocket) RecvFrom(ctx context.Context, buf []byte) (int, net.Addr, error) {
	for {
		w := &singleDatagramWriter{buf: buf}
		res, err := u.ep.Read(w, tcpip.ReadOptions{NeedRemoteAddr: true})
		if err == nil {
			addr := &net.UDPAddr{IP: net.IP(res.RemoteAddr.Addr.AsSlice()), Port: int(res.RemoteAddr.Port)}
			return w.n, addr, nil
		}
		if isWouldBlock(err) {
			if werr := waitForEvents(ctx, u.wq, waiter.ReadableEvents|waiter.EventErr); werr != nil {
				return 0, nil, werr
			}
			continue
		}
		return 0, nil, fmt.Errorf("udpsock: recv_from: %s", err)
	}
}

// SendTo writes one datagram to remote. It never suspends: if the TX
// ring is saturated it fails immediately with ErrBufferFull rather than
// queuing the caller (spec.md §4.3 UDP).
func (u *UdpSocket) SendTo(data []byte, remote tcpip.FullAddress) (int, error) {
	n, err := u.ep.Write(&sliceReader{data: data}, tcpip.WriteOptions{To: &remote})
	if err != nil {
		if isWouldBlock(err) {
			return 0, ErrBufferFull
		}
		return int(n), fmt.Errorf("udpsock: send_to: %s", err)
	}
	return int(n), nil
}

// Close releases the underlying endpoint.
func (u *UdpSocket) Close() { u.ep.Close() }

// sliceReader is a minimal tcpip.Payloader (io.Reader + Len) over a byte
// slice, for handing a single datagram to Endpoint.Write.
type sliceReader struct {
	data []byte
	off  int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	n := copy(p, r.data[r.off:])
	r.off += n
	if r.off >= len(r.data) {
		return n, nil
	}
	return n, nil
}

func (r *sliceReader) Len() int { return len(r.data) - r.off }

func isWouldBlock(err tcpip.Error) bool {
	_, ok := err.(*tcpip.ErrWouldBlock)
	return ok
}

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
