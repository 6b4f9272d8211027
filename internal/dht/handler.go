package dht

import (
	"net"
	"time"
)

// Handler answers inbound queries. Call must not block: it runs to
// completion between event-loop suspensions.
type Handler interface {
	Call(arg Arg, from *net.UDPAddr, now time.Time) (Res, *KError)
}

// DefaultHandler is the reference handler: it answers ping, find_node,
// get_peers and announce_peer using the routing table, storage, and token
// manager owned by the service loop. Any other query already failed to
// parse as one of these Arg types upstream and never reaches Call.
type DefaultHandler struct {
	SelfID  NodeId
	Table   *Table
	Storage *Storage
	Tokens  *TokenManager
}

// Call implements Handler.
func (h *DefaultHandler) Call(arg Arg, from *net.UDPAddr, now time.Time) (Res, *KError) {
	switch a := arg.(type) {
	case PingArg:
		return PongRes{ID: h.SelfID}, nil

	case FindNodeArg:
		nodes := h.Table.ClosestNodes(a.Target, now)
		return FindNodeRes{ID: h.SelfID, Nodes: limitNodes(nodes, BucketSize)}, nil

	case GetPeersArg:
		token := h.Tokens.Generate(from.IP)
		if peers := h.Storage.GetPeers(a.InfoHash); len(peers) > 0 {
			return GetPeersValuesRes{ID: h.SelfID, Token: token, Values: peers}, nil
		}
		nodes := h.Table.ClosestNodes(a.InfoHash, now)
		return GetPeersNodesRes{ID: h.SelfID, Token: token, Nodes: limitNodes(nodes, BucketSize)}, nil

	case AnnouncePeerArg:
		if !h.Tokens.Validate(from.IP, a.Token) {
			return nil, &KError{Code: ErrorProtocol, Message: "announce_peer: bad token"}
		}
		port := a.Port
		if a.ImpliedPort {
			port = from.Port
		}
		h.Storage.StorePeer(a.InfoHash, EncodePeerInfo(from.IP, uint16(port)))
		return PongRes{ID: h.SelfID}, nil

	default:
		return nil, &KError{Code: ErrorMethodUnknown, Message: "method unimplemented"}
	}
}

func limitNodes(nodes []Node, n int) []Node {
	if len(nodes) <= n {
		return nodes
	}
	return nodes[:n]
}
