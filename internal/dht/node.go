package dht

import (
	"net"
	"time"
)

// NodeStatus is a totally ordered liveness classification: Bad <
// Questionable < Good.
type NodeStatus int

const (
	StatusBad NodeStatus = iota
	StatusQuestionable
	StatusGood
)

func (s NodeStatus) String() string {
	switch s {
	case StatusBad:
		return "bad"
	case StatusQuestionable:
		return "questionable"
	case StatusGood:
		return "good"
	default:
		return "unknown"
	}
}

const (
	// maxLastSeen is how long a response or request keeps a node Good.
	maxLastSeen = 900 * time.Second

	// maxRefreshRequests caps how many unanswered local requests a node
	// tolerates before being demoted to Bad.
	maxRefreshRequests = 2
)

// Node is a peer record: an id, its address, and the liveness bookkeeping
// that status computation reads. Two nodes are equal iff both id and addr
// match.
type Node struct {
	ID              NodeId
	Addr            *net.UDPAddr
	LastRequest     *time.Time
	LastResponse    *time.Time
	RefreshRequests int
}

// Equal reports whether n and other refer to the same peer.
func (n Node) Equal(other Node) bool {
	if n.ID != other.ID {
		return false
	}
	if n.Addr == nil || other.Addr == nil {
		return n.Addr == other.Addr
	}
	return n.Addr.IP.Equal(other.Addr.IP) && n.Addr.Port == other.Addr.Port
}

// badNode returns the zero-value placeholder a fresh bucket slot holds.
func badNode() Node {
	return Node{ID: ZeroID, Addr: &net.UDPAddr{IP: net.IPv4zero, Port: 0}}
}

// Status derives the node's liveness as a pure function of the stored
// timestamps and now.
func (n Node) Status(now time.Time) NodeStatus {
	if n.LastResponse == nil {
		return StatusBad
	}
	if now.Sub(*n.LastResponse) < maxLastSeen {
		return StatusGood
	}
	if n.LastRequest != nil && now.Sub(*n.LastRequest) < maxLastSeen {
		return StatusGood
	}
	if n.RefreshRequests < maxRefreshRequests {
		return StatusQuestionable
	}
	return StatusBad
}

// LocalRequest records that we sent a query to n. If n isn't currently
// Good, this counts toward its refresh-request budget.
func (n *Node) LocalRequest(now time.Time) {
	if n.Status(now) != StatusGood {
		n.RefreshRequests++
	}
}

// RemoteRequest records that n sent us a query.
func (n *Node) RemoteRequest(now time.Time) {
	t := now
	n.LastRequest = &t
}

// RemoteResponse records that n answered one of our queries.
func (n *Node) RemoteResponse(now time.Time) {
	t := now
	n.LastResponse = &t
	n.RefreshRequests = 0
}
