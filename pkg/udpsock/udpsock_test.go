package udpsock

import (
	"context"
	"testing"
	"time"

	"github.com/fastpath/netcore/pkg/device"
	"github.com/fastpath/netcore/pkg/ioqueue"
	"github.com/fastpath/netcore/pkg/reactor"
	"github.com/stretchr/testify/require"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/header"
	"gvisor.dev/gvisor/pkg/tcpip/network/arp"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
	"gvisor.dev/gvisor/pkg/tcpip/transport/tcp"
	"gvisor.dev/gvisor/pkg/tcpip/transport/udp"
)

func newTestHandle(t *testing.T, pair ioqueue.Pair, ip [4]byte) *reactor.Handle {
	t.Helper()
	stk := stack.New(stack.Options{
		NetworkProtocols:   []stack.NetworkProtocolFactory{ipv4.NewProtocol, arp.NewProtocol},
		TransportProtocols: []stack.TransportProtocolFactory{tcp.NewProtocol, udp.NewProtocol},
	})

	adapter, err := device.NewAdapter(device.Config{Pair: pair, MTU: 1500, BufCap: 2176, Headroom: 128})
	require.NoError(t, err)

	const nicID = tcpip.NICID(1)
	require.Nil(t, stk.CreateNIC(nicID, adapter))

	addr := tcpip.AddrFromSlice(ip[:])
	require.Nil(t, stk.AddProtocolAddress(nicID, tcpip.ProtocolAddress{
		Protocol:          ipv4.ProtocolNumber,
		AddressWithPrefix: addr.WithPrefix(),
	}, stack.AddressProperties{}))
	stk.SetRouteTable([]tcpip.Route{{Destination: header.IPv4EmptySubnet, NIC: nicID}})
	stk.SetSpoofing(nicID, true)
	stk.SetPromiscuousMode(nicID, true)

	r := reactor.New(adapter, stk, nicID, reactor.DefaultBatchSize)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go r.Run(ctx)

	return r.Handle()
}

func TestSendToRecvFromRoundTrip(t *testing.T) {
	serverPair, clientPair := ioqueue.NewLoopbackPair(64, 2176, 128)
	serverIP := [4]byte{10, 0, 1, 1}
	clientIP := [4]byte{10, 0, 1, 2}

	serverHandle := newTestHandle(t, serverPair, serverIP)
	clientHandle := newTestHandle(t, clientPair, clientIP)

	server, err := Bind(serverHandle, 7000, 0, 0)
	require.NoError(t, err)
	defer server.Close()

	client, err := Bind(clientHandle, 0, 0, 0)
	require.NoError(t, err)
	defer client.Close()

	remote := tcpip.FullAddress{Addr: tcpip.AddrFromSlice(serverIP[:]), Port: 7000}
	msg := []byte("ping")
	n, err := client.SendTo(msg, remote)
	require.NoError(t, err)
	require.Equal(t, len(msg), n)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	buf := make([]byte, 64)
	gotN, from, err := server.RecvFrom(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, msg, buf[:gotN])
	require.NotNil(t, from)
}

func TestRecvFromIsCancelable(t *testing.T) {
	pair, _ := ioqueue.NewLoopbackPair(64, 2176, 128)
	ip := [4]byte{10, 0, 2, 1}
	handle := newTestHandle(t, pair, ip)

	sock, err := Bind(handle, 7001, 0, 0)
	require.NoError(t, err)
	defer sock.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err = sock.RecvFrom(ctx, make([]byte, 64))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
