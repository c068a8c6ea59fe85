// Package netapp implements AppRunner: the multi-core setup that
// enumerates cores, builds one Reactor per core bound to its own NIC
// queue, wires in a SharedArpCache when there is more than one queue, and
// runs user code on each core until it completes (spec.md §4.5).
//
// Real hardware queue pairs, EAL bindings, and NIC capability probing are
// out of scope (spec.md §1's "external collaborator" HardwareQueuePair).
// AppRunner reaches that collaborator entirely through the Driver
// interface this package defines; LoopbackDriver is the in-repo reference
// implementation used by tests and the example commands.
package netapp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"

	"github.com/fastpath/netcore/pkg/arpcache"
	"github.com/fastpath/netcore/pkg/device"
	"github.com/fastpath/netcore/pkg/pbuf"
	"github.com/fastpath/netcore/pkg/reactor"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/header"
	"gvisor.dev/gvisor/pkg/tcpip/network/arp"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv4"
	"gvisor.dev/gvisor/pkg/tcpip/network/ipv6"
	"gvisor.dev/gvisor/pkg/tcpip/stack"
	"gvisor.dev/gvisor/pkg/tcpip/transport/tcp"
	"gvisor.dev/gvisor/pkg/tcpip/transport/udp"
)

// DefaultMTU is used for every queue's DeviceAdapter unless overridden.
const DefaultMTU = 1500

// Defaults for the builder (spec.md §4.5).
const (
	DefaultMbufsPerQueue = 8192
	DefaultRXDescriptors = 1024
	DefaultTXDescriptors = 1024
)

var (
	// ErrMissingIP is the precondition failure when Config.Run is called
	// without an IPv4 address configured.
	ErrMissingIP = errors.New("netapp: IPv4 address not configured")
	// ErrMissingGateway is the precondition failure for a missing default
	// gateway.
	ErrMissingGateway = errors.New("netapp: default gateway not configured")
	// ErrMissingDriver is the precondition failure for a missing Driver.
	ErrMissingDriver = errors.New("netapp: no Driver configured")
	// ErrNoCores is returned when the Driver reports zero cores.
	ErrNoCores = errors.New("netapp: driver reports zero cores")
)

// BufCapForMTU returns the per-buffer capacity pbuf.CheckCapacity
// requires for a device.Adapter running at the given MTU: spec.md §4.5
// fixes the pool's data room at 2176 bytes (which already covers the
// 128-byte headroom) for the default 1500-byte MTU, so larger MTUs scale
// the same way pbuf.CheckCapacity does.
func BufCapForMTU(mtu int) int {
	capacity := mtu + pbuf.HeadroomOverhead
	if capacity < 2176 {
		capacity = 2176
	}
	return capacity
}

// WorkerContext is the per-core record passed to user code (spec.md
// §4.5): core identity, queue index, NUMA node, and a ReactorHandle.
type WorkerContext struct {
	CoreID     int
	QueueIndex int
	SocketID   int
	Reactor    *reactor.Handle
}

// WorkerFunc is user code run once per core; it runs until it returns,
// at which point the owning worker stops its Reactor and joins.
type WorkerFunc func(ctx context.Context, wc WorkerContext) error

// Config is AppRunner's fluent builder (spec.md §4.5).
type Config struct {
	ethDev        int
	ip            [4]byte
	gateway       [4]byte
	mbufsPerQueue int
	rxDescriptors int
	txDescriptors int
	batchSize     int
	driver        Driver
}

// NewConfig returns a builder with spec.md's documented defaults.
func NewConfig() *Config {
	return &Config{
		mbufsPerQueue: DefaultMbufsPerQueue,
		rxDescriptors: DefaultRXDescriptors,
		txDescriptors: DefaultTXDescriptors,
		batchSize:     reactor.DefaultBatchSize,
	}
}

func (c *Config) WithEthDev(port int) *Config        { c.ethDev = port; return c }
func (c *Config) WithIP(ip [4]byte) *Config           { c.ip = ip; return c }
func (c *Config) WithGateway(gw [4]byte) *Config      { c.gateway = gw; return c }
func (c *Config) WithMbufsPerQueue(n int) *Config     { c.mbufsPerQueue = n; return c }
func (c *Config) WithDescriptors(rx, tx int) *Config  { c.rxDescriptors = rx; c.txDescriptors = tx; return c }
func (c *Config) WithBatchSize(n int) *Config         { c.batchSize = n; return c }
func (c *Config) WithDriver(d Driver) *Config         { c.driver = d; return c }

// Run executes the AppRunner algorithm of spec.md §4.5.
func (c *Config) Run(ctx context.Context, fn WorkerFunc) error {
	if c.ip == ([4]byte{}) {
		return ErrMissingIP
	}
	if c.gateway == ([4]byte{}) {
		return ErrMissingGateway
	}
	if c.driver == nil {
		return ErrMissingDriver
	}

	cores := c.driver.Cores()
	n := len(cores)
	if n == 0 {
		return ErrNoCores
	}

	if rss := c.driver.RSSTableSize(); rss > 0 && n > 1 {
		log.Printf("netapp: enabling RSS (redirection table size %d) across %d queues, 5-tuple hash for TCP/IPv4 and TCP/IPv6", rss, n)
	} else if n > 1 {
		log.Printf("netapp: NIC has no usable RSS redirection table; running %d queues without RSS", n)
	}
	logTopology(n)

	var sharedCache *arpcache.Cache
	if n > 1 {
		sharedCache = arpcache.New()
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(queueIndex, coreID int) {
			defer wg.Done()
			errs[queueIndex] = c.worker(ctx, queueIndex, coreID, sharedCache, fn)
		}(i, cores[i])
	}

	errs[0] = c.worker(ctx, 0, cores[0], sharedCache, fn)

	wg.Wait()
	if err := c.driver.Close(); err != nil {
		log.Printf("netapp: driver close: %v", err)
	}

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// worker builds one core's DeviceAdapter, gvisor stack, and Reactor, runs
// the Reactor on a background goroutine, and runs fn on the calling
// goroutine, which worker itself locks to its OS thread and pins to
// coreID. When fn returns, the Reactor is stopped and joined
// before worker returns (spec.md §4.5 step 7).
func (c *Config) worker(ctx context.Context, queueIndex, coreID int, sharedCache *arpcache.Cache, fn WorkerFunc) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	setAffinity(coreID)

	pair, err := c.driver.NewQueuePair(queueIndex, c.mbufsPerQueue, c.rxDescriptors, c.txDescriptors)
	if err != nil {
		return fmt.Errorf("netapp: create queue pair %d: %w", queueIndex, err)
	}

	adapter, err := device.NewAdapter(device.Config{
		Pair:       pair,
		MTU:        DefaultMTU,
		BufCap:     BufCapForMTU(DefaultMTU),
		Headroom:   128,
		QueueIndex: queueIndex,
		Cache:      sharedCache,
		OurMAC:     c.driver.MAC(),
		OurIP:      c.ip,
	})
	if err != nil {
		return fmt.Errorf("netapp: new adapter for queue %d: %w", queueIndex, err)
	}

	stk := stack.New(stack.Options{
		NetworkProtocols:   []stack.NetworkProtocolFactory{ipv4.NewProtocol, ipv6.NewProtocol, arp.NewProtocol},
		TransportProtocols: []stack.TransportProtocolFactory{tcp.NewProtocol, udp.NewProtocol},
	})

	nicID := tcpip.NICID(queueIndex + 1)
	if tcpipErr := stk.CreateNIC(nicID, adapter); tcpipErr != nil {
		return fmt.Errorf("netapp: create NIC for queue %d: %s", queueIndex, tcpipErr)
	}

	ourAddr := tcpip.AddrFromSlice(c.ip[:])
	protoAddr := tcpip.ProtocolAddress{
		Protocol:          ipv4.ProtocolNumber,
		AddressWithPrefix: ourAddr.WithPrefix(),
	}
	if tcpipErr := stk.AddProtocolAddress(nicID, protoAddr, stack.AddressProperties{}); tcpipErr != nil {
		return fmt.Errorf("netapp: add address for queue %d: %s", queueIndex, tcpipErr)
	}

	gatewayAddr := tcpip.AddrFromSlice(c.gateway[:])
	stk.SetRouteTable([]tcpip.Route{{
		Destination: header.IPv4EmptySubnet,
		NIC:         nicID,
		Gateway:     gatewayAddr,
	}})
	stk.SetSpoofing(nicID, true)

	r := reactor.New(adapter, stk, nicID, c.batchSize)

	reactorCtx, stopReactor := context.WithCancel(ctx)
	defer stopReactor()
	reactorDone := make(chan struct{})
	go func() {
		r.Run(reactorCtx)
		close(reactorDone)
	}()

	wc := WorkerContext{CoreID: coreID, QueueIndex: queueIndex, SocketID: 0, Reactor: r.Handle()}
	fnErr := fn(ctx, wc)

	stopReactor()
	<-reactorDone
	return fnErr
}

// logTopology emits a one-line diagnostic at startup with the host's
// logical CPU count, hostname and platform, and the queue count; it does
// not report NUMA layout. It is informational only and never gates
// behavior.
func logTopology(queues int) {
	logical, err := cpu.Counts(true)
	if err != nil {
		log.Printf("netapp: cpu topology probe failed: %v", err)
		logical = 0
	}
	info, err := host.Info()
	if err != nil {
		log.Printf("netapp: running %d queues across %d logical CPUs", queues, logical)
		return
	}
	log.Printf("netapp: host=%s platform=%s/%s logical_cpus=%d queues=%d",
		info.Hostname, info.Platform, info.KernelArch, logical, queues)
}
