package reactor

import (
	"context"
	"testing"
	"time"

	"github.com/fastpath/netcore/pkg/device"
	"github.com/fastpath/netcore/pkg/ioqueue"
	"github.com/stretchr/testify/require"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
	"gvisor.dev/gvisor/pkg/tcpip/transport/tcp"
	"gvisor.dev/gvisor/pkg/tcpip/transport/udp"
	"gvisor.dev/gvisor/pkg/waiter"
)

func newTestStackAndReactor(t *testing.T) (*Reactor, *stack.Stack) {
	t.Helper()
	stk := stack.New(stack.Options{
		NetworkProtocols:   []stack.NetworkProtocolFactory{ipv4.NewProtocol},
		TransportProtocols: []stack.TransportProtocolFactory{tcp.NewProtocol, udp.NewProtocol},
	})

	q := ioqueue.NewNull(8, 2176, 128)
	adapter, err := device.NewAdapter(device.Config{Pair: q, MTU: 1500, BufCap: 2176, Headroom: 128})
	require.NoError(t, err)

	const nicID = tcpip.NICID(1)
	tcpipErr := stk.CreateNIC(nicID, adapter)
	require.Nil(t, tcpipErr)

	r := New(adapter, stk, nicID, 8)
	return r, stk
}

func TestRunAdvancesTickCounter(t *testing.T) {
	r, _ := newTestStackAndReactor(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	r.Run(ctx)
	require.Greater(t, r.Ticks(), uint64(0))
}

func TestHandleExposesStackAndNIC(t *testing.T) {
	r, stk := newTestStackAndReactor(t)
	h := r.Handle()
	require.Same(t, stk, h.Stack())
	require.Equal(t, tcpip.NICID(1), h.NICID())

	h2 := h.Clone()
	require.Same(t, stk, h2.Stack())
}

func TestOrphanedClosingSetSweepsClosedEndpoints(t *testing.T) {
	r, stk := newTestStackAndReactor(t)

	var wq waiter.Queue
	ep, tcpipErr := stk.NewEndpoint(tcp.ProtocolNumber, ipv4.ProtocolNumber, &wq)
	require.Nil(t, tcpipErr)

	// An endpoint that was never connected goes straight to Closed on
	// Close(), exercising the same sweep path a TcpStream's abandoned
	// close future would.
	ep.Close()

	r.Orphan(ep)
	require.Equal(t, 1, r.OrphanCount())

	r.tick()
	require.Equal(t, 0, r.OrphanCount(), "sweep must remove endpoints that reached Closed")
}
