// Package device implements DeviceAdapter: the bridge between one
// HardwareQueuePair and the embedded TCP/IP stack's packet-in/packet-out
// contract (spec.md §4.1). In this module the embedded stack is
// gvisor.dev/gvisor/pkg/tcpip; Adapter implements stack.LinkEndpoint so it
// plugs directly into a gvisor stack.Stack via CreateNIC.
//
// Unlike a typical gvisor LinkEndpoint (which usually spawns a background
// goroutine to push inbound packets into the dispatcher as they arrive,
// the way gvisor's own channel.Endpoint and the teacher's
// socketPairEndpoint both do), Adapter is pumped: the Reactor calls
// PumpOne up to its batch size per tick to pull buffers off the hardware
// queue and hand them to the stack, and FlushEgress once per tick to drain whatever
// the stack queued for transmit. This is the re-architecture spec.md §4.2
// calls for ("process one inbound packet" / "drain outbound queue" as
// explicit steps rather than implicit goroutines) and is recorded as a
// deliberate deviation in DESIGN.md.
package device

import (
	"sync"
	"sync/atomic"

	"github.com/fastpath/netcore/pkg/arpcache"
	"github.com/fastpath/netcore/pkg/ioqueue"
	"github.com/fastpath/netcore/pkg/pbuf"

	"gvisor.dev/gvisor/pkg/buffer"
	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/header"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
)

// IngressCapacity is the IngressBatch's bound (spec.md §3): populated only
// when empty (drain-then-refill), consumed LIFO.
const IngressCapacity = 64

// EgressCapacity is the EgressBatch's bound (spec.md §3).
const EgressCapacity = 256

// egressEntry is one queued outbound packet. throwaway marks a buffer
// allocated on the heap because the pool was exhausted at WritePackets
// time (spec.md §4.1): it is handed to the stack write path so TCP state
// advances, but FlushEgress drops it instead of handing it to the driver.
type egressEntry struct {
	buf       *pbuf.Buffer
	throwaway bool
}

// Config bundles Adapter construction inputs (spec.md §4.1).
type Config struct {
	Pair       ioqueue.Pair
	MTU        int
	BufCap     int
	Headroom   int
	QueueIndex int

	// Cache, OurMAC, OurIP are optional; when Cache is non-nil this
	// adapter participates in multi-core ARP synchronization as either
	// the producer (QueueIndex == 0) or a consumer (QueueIndex != 0).
	Cache *arpcache.Cache
	OurMAC arpcache.MAC
	OurIP  [4]byte
}

// Adapter bridges one HardwareQueuePair to the embedded TCP/IP stack.
type Adapter struct {
	pair       ioqueue.Pair
	mtu        uint32
	bufCap     int
	headroom   int
	queueIndex int

	cache                *arpcache.Cache
	ourMAC               arpcache.MAC
	ourIP                [4]byte
	lastObservedVersion  uint64

	// ingress is only ever touched from the reactor's own goroutine
	// (PumpOne/refill), so it needs no lock. egress is different: gvisor
	// invokes WritePackets synchronously from whatever goroutine called
	// Write/Send on a socket, so it can run concurrently with the
	// reactor goroutine's FlushEgress. egressMu guards egress the same
	// way the teacher's socketPairEndpoint stays safe across concurrent
	// WritePackets callers (via a sync.Pool and a stateless os.File.Write)
	// — here the shared mutable state is the slice itself, so a mutex
	// guards it directly.
	ingress  []*pbuf.Buffer
	egressMu sync.Mutex
	egress   []egressEntry

	linkAddr   tcpip.LinkAddress
	dispatcher atomic.Pointer[stack.NetworkDispatcher]

	// droppedPackets counts throwaway-buffer drops, for diagnostics
	// only (spec.md §7: "logged as a warning at most").
	droppedPackets atomic.Uint64
}

// NewAdapter validates the MTU/capacity precondition (spec.md §4.1) and
// constructs an Adapter. Construction is the only place this package
// returns an error; everything else degrades silently per spec.md §7.
func NewAdapter(cfg Config) (*Adapter, error) {
	if err := pbuf.CheckCapacity(cfg.MTU, cfg.BufCap); err != nil {
		return nil, err
	}
	a := &Adapter{
		pair:       cfg.Pair,
		mtu:        uint32(cfg.MTU),
		bufCap:     cfg.BufCap,
		headroom:   cfg.Headroom,
		queueIndex: cfg.QueueIndex,
		cache:      cfg.Cache,
		ourMAC:     cfg.OurMAC,
		ourIP:      cfg.OurIP,
		linkAddr:   tcpip.LinkAddress(cfg.OurMAC[:]),
		ingress:    make([]*pbuf.Buffer, 0, IngressCapacity),
		egress:     make([]egressEntry, 0, EgressCapacity),
	}
	return a, nil
}

// IsARPProducer reports whether this adapter is the single writer to the
// shared ARP cache (queue index 0, with a cache configured).
func (a *Adapter) IsARPProducer() bool {
	return a.cache != nil && a.queueIndex == 0
}

// IsARPConsumer reports whether this adapter re-injects synthetic ARP
// replies from the shared cache (any queue index other than 0, with a
// cache configured).
func (a *Adapter) IsARPConsumer() bool {
	return a.cache != nil && a.queueIndex != 0
}

// DroppedPackets returns the number of egress packets dropped so far due
// to pool exhaustion.
func (a *Adapter) DroppedPackets() uint64 {
	return a.droppedPackets.Load()
}

// --- ingress: drain-then-refill, LIFO consumption, ARP producer/consumer ---

// refill pulls a fresh burst from the hardware queue into the (empty)
// ingress batch, scanning for ARP replies if we are the producer, then
// (if we are a consumer and the cache version has moved) appending
// synthetic ARP frames to the back of the batch so they are the first
// thing PumpOne consumes next.
func (a *Adapter) refill() {
	if len(a.ingress) != 0 {
		return // populated only when empty (spec.md §3 IngressBatch invariant)
	}

	scratch := make([]*pbuf.Buffer, ioqueue.MaxBurst)
	n := a.pair.Receive(scratch)
	if n > 0 {
		a.ingress = append(a.ingress, scratch[:n]...)
	}

	if a.IsARPProducer() {
		for _, buf := range a.ingress {
			if ip, mac, ok := arpcache.ParseSyntheticARPReply(buf.Payload()); ok {
				a.cache.Insert(ip, mac)
			}
		}
	}

	if a.IsARPConsumer() {
		v := a.cache.Version()
		if v != a.lastObservedVersion {
			if a.injectSyntheticARPs(a.cache.Snapshot()) {
				a.lastObservedVersion = v
			}
			// else: leave lastObservedVersion unchanged, retry next tick
			// (spec.md §7 "ARP injection failure: treated as a retry").
		}
	}
}

// injectSyntheticARPs appends one synthetic ARP reply per cache entry to
// the back of the ingress batch. It returns false (without reporting
// which entries succeeded) the moment capacity or pool allocation fails,
// so the caller knows not to advance lastObservedVersion.
func (a *Adapter) injectSyntheticARPs(snap map[[4]byte]arpcache.MAC) bool {
	for ip, mac := range snap {
		if len(a.ingress) >= IngressCapacity {
			return false
		}
		buf := a.pair.Alloc()
		if buf == nil {
			return false
		}
		frame := arpcache.BuildSyntheticARPReply(a.ourMAC, a.ourIP, mac, ip)
		if err := buf.SetLen(len(frame)); err != nil {
			a.pair.Release(buf)
			return false
		}
		copy(buf.Payload(), frame)
		a.ingress = append(a.ingress, buf)
	}
	return true
}

// PumpOne refills the ingress batch if empty, pops one buffer from the
// back, and hands it to the stack's NIC dispatcher. It returns false when
// there was nothing to process this call, which the Reactor uses to know
// ingress has drained for this tick.
func (a *Adapter) PumpOne() bool {
	a.refill()
	if len(a.ingress) == 0 {
		return false
	}

	n := len(a.ingress)
	buf := a.ingress[n-1]
	a.ingress = a.ingress[:n-1]

	a.deliver(buf)
	return true
}

// deliver copies buf's payload into a fresh gvisor packet buffer (gvisor
// may retain the underlying bytes in its reassembly queue long after this
// call returns, so the bytes cannot be pool-owned) and releases buf back
// to the hardware pool immediately.
func (a *Adapter) deliver(buf *pbuf.Buffer) {
	defer a.pair.Release(buf)

	payload := buf.Payload()
	if len(payload) < header.EthernetMinimumSize {
		return
	}

	data := make([]byte, len(payload))
	copy(data, payload)

	eth := header.Ethernet(data)
	proto := eth.Type()

	pkt := stack.NewPacketBuffer(stack.PacketBufferOptions{
		Payload: buffer.MakeWithData(data),
	})
	defer pkt.DecRef()

	if !a.ParseHeader(pkt) {
		return
	}

	dp := a.dispatcher.Load()
	if dp != nil && *dp != nil {
		(*dp).DeliverNetworkPacket(proto, pkt)
	}
}

// --- egress: WritePackets queues, FlushEgress drains to the driver ---

// FlushEgress transmits the contiguous run of real (non-throwaway)
// buffers currently at the front of the egress batch in a single driver
// call, removing exactly the count the driver accepted. Throwaway
// entries sitting at the front are dropped immediately without a driver
// call, since they were never eligible for transmission.
func (a *Adapter) FlushEgress() {
	a.egressMu.Lock()
	defer a.egressMu.Unlock()

	for len(a.egress) > 0 && a.egress[0].throwaway {
		a.egress = a.egress[1:]
	}

	run := 0
	for run < len(a.egress) && !a.egress[run].throwaway {
		run++
	}
	if run == 0 {
		return
	}

	bufs := make([]*pbuf.Buffer, run)
	for i := 0; i < run; i++ {
		bufs[i] = a.egress[i].buf
	}
	sent := a.pair.Transmit(bufs)
	a.egress = a.egress[sent:]
}

// EgressLen reports how many packets are currently queued for transmit.
func (a *Adapter) EgressLen() int {
	a.egressMu.Lock()
	defer a.egressMu.Unlock()
	return len(a.egress)
}

// --- stack.LinkEndpoint ---

func (a *Adapter) MTU() uint32        { return a.mtu }
func (a *Adapter) SetMTU(mtu uint32)  { a.mtu = mtu }
func (a *Adapter) MaxHeaderLength() uint16 { return header.EthernetMinimumSize }
func (a *Adapter) LinkAddress() tcpip.LinkAddress { return a.linkAddr }
func (a *Adapter) SetLinkAddress(addr tcpip.LinkAddress) { a.linkAddr = addr }
func (a *Adapter) Capabilities() stack.LinkEndpointCapabilities {
	return stack.CapabilityResolutionRequired
}
func (a *Adapter) ARPHardwareType() header.ARPHardwareType { return header.ARPHardwareEther }

func (a *Adapter) Attach(dispatcher stack.NetworkDispatcher) {
	a.dispatcher.Store(&dispatcher)
}

func (a *Adapter) IsAttached() bool {
	d := a.dispatcher.Load()
	return d != nil && *d != nil
}

// Wait is a no-op: Adapter has no background goroutine to join (see
// package doc); the Reactor's own shutdown handles draining.
func (a *Adapter) Wait() {}

func (a *Adapter) AddHeader(pkt *stack.PacketBuffer) {
	eth := header.Ethernet(pkt.LinkHeader().Push(header.EthernetMinimumSize))
	eth.Encode(&header.EthernetFields{
		SrcAddr: pkt.EgressRoute.LocalLinkAddress,
		DstAddr: pkt.EgressRoute.RemoteLinkAddress,
		Type:    pkt.NetworkProtocolNumber,
	})
}

func (a *Adapter) ParseHeader(pkt *stack.PacketBuffer) bool {
	_, ok := pkt.LinkHeader().Consume(header.EthernetMinimumSize)
	return ok
}

// WritePackets is called by the stack whenever it has outbound packets
// ready. Each packet is serialized into a pool buffer (or a throwaway
// heap buffer if the pool is exhausted, spec.md §4.1) and appended to the
// egress batch if there is room; once the batch is full the remainder is
// reported back as unwritten so the stack retries later (spec.md §5
// backpressure).
func (a *Adapter) WritePackets(pkts stack.PacketBufferList) (int, tcpip.Error) {
	a.egressMu.Lock()
	defer a.egressMu.Unlock()

	written := 0
	for _, pkt := range pkts.AsSlice() {
		if len(a.egress) >= EgressCapacity {
			return written, &tcpip.ErrNoBufferSpace{}
		}

		views := pkt.AsSlices()
		total := 0
		for _, v := range views {
			total += len(v)
		}

		buf := a.pair.Alloc()
		throwaway := false
		if buf == nil {
			buf = pbuf.NewThrowaway(a.bufCap, a.headroom)
			throwaway = true
			a.droppedPackets.Add(1)
		}
		if err := buf.SetLen(total); err != nil {
			return written, &tcpip.ErrNoBufferSpace{}
		}
		out := buf.Payload()[:0]
		for _, v := range views {
			out = append(out, v...)
		}

		a.egress = append(a.egress, egressEntry{buf: buf, throwaway: throwaway})
		written++
	}
	return written, nil
}
