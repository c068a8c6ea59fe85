package reactor

import (
	"sync"

	"gvisor.dev/gvisor/pkg/tcpip"
	"gvisor.dev/gvisor/pkg/tcpip/transport/tcp"
)

// OrphanedClosingSet holds endpoints whose owning TcpStream was dropped
// while a graceful close was still in flight (spec.md §4.3 drop policy).
// The reactor sweeps it once per tick, finalizing any endpoint that has
// reached Closed or TimeWait.
type OrphanedClosingSet struct {
	mu      sync.Mutex
	members map[tcpip.Endpoint]struct{}
}

func newOrphanedClosingSet() *OrphanedClosingSet {
	return &OrphanedClosingSet{members: make(map[tcpip.Endpoint]struct{})}
}

// Add transfers ownership of ep to the set. Called (via Reactor.Orphan) by
// TcpStream.Close when its close future is abandoned before the endpoint
// reaches a terminal state, and by TcpStream.Drop on a socket that is
// already mid-close or finalized.
func (s *OrphanedClosingSet) Add(ep tcpip.Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[ep] = struct{}{}
}

// Len reports how many endpoints are currently orphaned.
func (s *OrphanedClosingSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// sweep removes and closes every member that has reached Closed or
// TimeWait (reactor step 4, spec.md §4.2). Endpoints still mid-close are
// left in the set for the next tick.
func (s *OrphanedClosingSet) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ep := range s.members {
		switch tcp.EndpointState(ep.State()) {
		case tcp.StateClose, tcp.StateTimeWait:
			ep.Close()
			delete(s.members, ep)
		}
	}
}
