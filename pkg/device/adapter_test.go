package device

import (
	"sync"
	"testing"

	"github.com/fastpath/netcore/pkg/arpcache"
	"github.com/fastpath/netcore/pkg/ioqueue"
	"github.com/fastpath/netcore/pkg/pbuf"
	"github.com/stretchr/testify/require"

	"gvisor.dev/gvisor/pkg/buffer"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
)

// recordingDispatcher implements stack.NetworkDispatcher, recording every
// packet handed to it so tests can assert on delivery without spinning up
// a full gvisor stack.
type recordingDispatcher struct {
	delivered []tcpip.NetworkProtocolNumber
}

func (r *recordingDispatcher) DeliverNetworkPacket(protocol tcpip.NetworkProtocolNumber, pkt *stack.PacketBuffer) {
	r.delivered = append(r.delivered, protocol)
}

func (r *recordingDispatcher) DeliverLinkPacket(protocol tcpip.NetworkProtocolNumber, pkt *stack.PacketBuffer) {
}

func newTestAdapter(t *testing.T, pair ioqueue.Pair, queueIndex int, cache *arpcache.Cache) *Adapter {
	t.Helper()
	a, err := NewAdapter(Config{
		Pair:       pair,
		MTU:        1500,
		BufCap:     2176,
		Headroom:   128,
		QueueIndex: queueIndex,
		Cache:      cache,
		OurMAC:     arpcache.MAC{0x02, 0, 0, 0, 0, byte(queueIndex + 1)},
		OurIP:      [4]byte{10, 0, 0, byte(queueIndex + 2)},
	})
	require.NoError(t, err)
	var disp stack.NetworkDispatcher = &recordingDispatcher{}
	a.Attach(disp)
	return a
}

func buildSingleEthernetPacketBufferList() stack.PacketBufferList {
	payload := make([]byte, 40)
	payload[12], payload[13] = 0x08, 0x00 // EtherType IPv4 (placeholder payload)

	var list stack.PacketBufferList
	pkt := stack.NewPacketBuffer(stack.PacketBufferOptions{
		Payload: buffer.MakeWithData(payload),
	})
	list.PushBack(pkt)
	return list
}

func TestNewAdapterRejectsUndersizedCapacity(t *testing.T) {
	q := ioqueue.NewNull(4, 1500, 0)
	_, err := NewAdapter(Config{Pair: q, MTU: 1500, BufCap: 1500, Headroom: 0})
	require.Error(t, err)
}

func TestPumpOneReturnsFalseWhenNothingToDo(t *testing.T) {
	q := ioqueue.NewNull(4, 2176, 128)
	a := newTestAdapter(t, q, 1, nil)
	require.False(t, a.PumpOne())
}

func TestPumpOneDeliversEthernetFrame(t *testing.T) {
	a, b := ioqueue.NewLoopbackPair(8, 2176, 128)
	adapterA := newTestAdapter(t, a, 0, nil)
	_ = newTestAdapter(t, b, 1, nil)

	buf := b.Alloc()
	require.NotNil(t, buf)
	frame := make([]byte, 64)
	frame[12], frame[13] = 0x08, 0x00 // EtherType IPv4
	require.NoError(t, buf.SetLen(len(frame)))
	copy(buf.Payload(), frame)
	require.Equal(t, 1, b.Transmit([]*pbuf.Buffer{buf}))

	require.True(t, adapterA.PumpOne())
}

func TestFlushEgressTransmitsQueuedPackets(t *testing.T) {
	a, b := ioqueue.NewLoopbackPair(8, 2176, 128)
	adapterA := newTestAdapter(t, a, 0, nil)

	pkts := buildSingleEthernetPacketBufferList()
	n, err := adapterA.WritePackets(pkts)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, adapterA.EgressLen())

	adapterA.FlushEgress()
	require.Equal(t, 0, adapterA.EgressLen())

	dst := make([]*pbuf.Buffer, ioqueue.MaxBurst)
	got := b.Receive(dst)
	require.Equal(t, 1, got)
}

// TestConcurrentWritePacketsAndFlushEgressIsRaceFree exercises the exact
// shape of the real datapath: many goroutines calling WritePackets (as
// gvisor's send path does, synchronously, from whichever goroutine called
// Send on a socket) while FlushEgress runs repeatedly, as it would on the
// reactor's own goroutine. Run with -race to confirm egress is guarded.
func TestConcurrentWritePacketsAndFlushEgressIsRaceFree(t *testing.T) {
	// Pool and egress capacity are both well above total writes below, so
	// every write is a real (non-throwaway) buffer and nothing ever hits
	// EgressCapacity — the only thing under test is whether egressMu
	// actually serializes WritePackets against FlushEgress.
	a, b := ioqueue.NewLoopbackPair(128, 2176, 128)
	adapterA := newTestAdapter(t, a, 0, nil)

	const writers = 4
	const writesPerGoroutine = 5
	const totalWrites = writers * writesPerGoroutine

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < writesPerGoroutine; j++ {
				_, err := adapterA.WritePackets(buildSingleEthernetPacketBufferList())
				require.NoError(t, err)
			}
		}()
	}

	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		for i := 0; i < totalWrites*2; i++ {
			adapterA.FlushEgress()
		}
	}()

	wg.Wait()
	<-flushDone
	// Drain whatever FlushEgress hadn't caught up to yet.
	for i := 0; i < totalWrites && adapterA.EgressLen() > 0; i++ {
		adapterA.FlushEgress()
	}
	require.Equal(t, 0, adapterA.EgressLen())

	dst := make([]*pbuf.Buffer, ioqueue.MaxBurst)
	total := 0
	for {
		n := b.Receive(dst)
		total += n
		if n == 0 {
			break
		}
	}
	require.Equal(t, totalWrites, total)
}

func TestARPProducerConsumerSynchronization(t *testing.T) {
	cache := arpcache.New()
	qProducer, qConsumerSide := ioqueue.NewLoopbackPair(16, 2176, 128)
	producer := newTestAdapter(t, qProducer, 0, cache)
	consumer := newTestAdapter(t, qConsumerSide, 1, cache)

	peerMAC := arpcache.MAC{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	peerIP := [4]byte{10, 0, 0, 1}
	reply := arpcache.BuildSyntheticARPReply(producer.ourMAC, producer.ourIP, peerMAC, peerIP)

	buf := qConsumerSide.Alloc()
	require.NotNil(t, buf)
	require.NoError(t, buf.SetLen(len(reply)))
	copy(buf.Payload(), reply)
	require.Equal(t, 1, qConsumerSide.Transmit([]*pbuf.Buffer{buf}))

	require.True(t, producer.PumpOne(), "producer must observe the ARP reply on its RX ring")
	mac, ok := cache.Get(peerIP)
	require.True(t, ok)
	require.Equal(t, peerMAC, mac)

	require.True(t, consumer.IsARPConsumer())
	consumer.refill()
	require.Equal(t, uint64(1), consumer.lastObservedVersion)
	require.NotEmpty(t, consumer.ingress, "consumer must have synthesized an ARP frame for its own neighbor cache")

	last := consumer.ingress[len(consumer.ingress)-1]
	ip, mac, ok := arpcache.ParseSyntheticARPReply(last.Payload())
	require.True(t, ok)
	require.Equal(t, peerIP, ip)
	require.Equal(t, peerMAC, mac)
}
