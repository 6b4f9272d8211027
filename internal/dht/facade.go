package dht

import (
	"context"
	"net"
	"time"
)

// defaultQueryTimeout is used when cfg.QueryTimeout is zero, matching
// spec.md §4.8's 5-second ping_node default.
const defaultQueryTimeout = 5 * time.Second

func (s *Service) queryTimeout() time.Duration {
	if s.cfg.QueryTimeout > 0 {
		return s.cfg.QueryTimeout
	}
	return defaultQueryTimeout
}

// submit enqueues cmd on the bounded command channel and blocks for its
// result. Canceling ctx returns an IOError both while waiting to enqueue and
// while waiting for the reply; an abandoned query is still resolved inside
// the loop by response, error, or its own timeout.
func (s *Service) submit(ctx context.Context, addr *net.UDPAddr, build func(tid []byte) *Message) (Res, *TransError) {
	reply := make(chan queryResult, 1)
	cmd := cmdQuery{addr: addr, build: build, timeout: s.queryTimeout(), reply: reply}

	select {
	case s.cmdCh <- cmd:
	case <-ctx.Done():
		return nil, NewIOError(ctx.Err())
	}

	select {
	case r := <-reply:
		return r.res, r.err
	case <-ctx.Done():
		return nil, NewIOError(ctx.Err())
	}
}

// PingNode sends Ping{id=self} to addr with the configured timeout,
// returning the responder's id on success.
func (s *Service) PingNode(ctx context.Context, addr *net.UDPAddr) (NodeId, *TransError) {
	res, err := s.submit(ctx, addr, func(tid []byte) *Message {
		return PingQuery(tid, s.selfID)
	})
	if err != nil {
		return NodeId{}, err
	}

	pong, ok := res.(PongRes)
	if !ok {
		return NodeId{}, NewKTransError(&KError{Code: ErrorGeneric, Message: "unexpected response shape for ping"})
	}
	return pong.ID, nil
}

// FindNode returns the address of target if it is already present among
// this node's closest known nodes. It does not perform a recursive
// network lookup — spec.md §9 marks that as an optional extension, not a
// requirement.
func (s *Service) FindNode(target NodeId) (*net.UDPAddr, *TransError) {
	reply := make(chan lookupResult, 1)
	s.cmdCh <- cmdLookup{target: target, reply: reply}

	r := <-reply
	if !r.found {
		return nil, NewTimeoutError()
	}
	return r.node.Addr, nil
}

// GetPeers queries addr for peers sharing infoHash.
func (s *Service) GetPeers(ctx context.Context, addr *net.UDPAddr, infoHash NodeId) (Res, *TransError) {
	return s.submit(ctx, addr, func(tid []byte) *Message {
		return GetPeersQuery(tid, s.selfID, infoHash)
	})
}

// AnnouncePeer announces this node as a peer for infoHash to addr, using a
// token previously obtained from a GetPeers call to the same address.
func (s *Service) AnnouncePeer(ctx context.Context, addr *net.UDPAddr, infoHash NodeId, impliedPort bool, port int, token string) (Res, *TransError) {
	return s.submit(ctx, addr, func(tid []byte) *Message {
		return AnnouncePeerQuery(tid, s.selfID, infoHash, impliedPort, port, token)
	})
}

// Finalize terminates the event loop gracefully, completing every
// outstanding responder with ErrShuttingDown.
func (s *Service) Finalize() {
	done := make(chan struct{})
	s.cmdCh <- cmdFinalize{done: done}
	<-done
	if s.cancel != nil {
		s.cancel()
	}
}
