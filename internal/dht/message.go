package dht

import "net"

// MsgType is the top-level "y" discriminator.
type MsgType string

const (
	MsgQuery    MsgType = "q"
	MsgResponse MsgType = "r"
	MsgError    MsgType = "e"
)

// QueryMethod enumerates the four KRPC query names this node understands.
// Any other name decodes as an unsupported-method protocol error.
type QueryMethod string

const (
	MethodPing         QueryMethod = "ping"
	MethodFindNode     QueryMethod = "find_node"
	MethodGetPeers     QueryMethod = "get_peers"
	MethodAnnouncePeer QueryMethod = "announce_peer"
)

// Message is the wire-level KRPC tagged union: a Query carries a method
// name and argument dict, a Response carries a result dict, an Error
// carries a numeric code and message. IP is the optional sender-observed
// compact address some responses carry.
type Message struct {
	TID  []byte
	Type MsgType

	Query QueryMethod
	Arg   map[string]any

	Res map[string]any

	ErrCode int
	ErrMsg  string

	IP *net.UDPAddr
}

// NewQuery returns an empty query message for method with the given
// transaction id.
func NewQuery(tid []byte, method QueryMethod) *Message {
	return &Message{TID: tid, Type: MsgQuery, Query: method, Arg: make(map[string]any)}
}

// NewResponse returns an empty response message.
func NewResponse(tid []byte) *Message {
	return &Message{TID: tid, Type: MsgResponse, Res: make(map[string]any)}
}

// NewErrorMessage returns an error message carrying (code, msg).
func NewErrorMessage(tid []byte, code int, msg string) *Message {
	return &Message{TID: tid, Type: MsgError, ErrCode: code, ErrMsg: msg}
}

func idString(id NodeId) string { return string(id[:]) }

// PingQuery builds a ping query: arg {id}.
func PingQuery(tid []byte, self NodeId) *Message {
	m := NewQuery(tid, MethodPing)
	m.Arg["id"] = idString(self)
	return m
}

// PongResponse builds a ping response: result {id}.
func PongResponse(tid []byte, self NodeId) *Message {
	m := NewResponse(tid)
	m.Res["id"] = idString(self)
	return m
}

// FindNodeQuery builds a find_node query: arg {id, target}.
func FindNodeQuery(tid []byte, self, target NodeId) *Message {
	m := NewQuery(tid, MethodFindNode)
	m.Arg["id"] = idString(self)
	m.Arg["target"] = idString(target)
	return m
}

// FindNodeResponse builds a find_node response: result {id, nodes}.
func FindNodeResponse(tid []byte, self NodeId, nodes []Node) *Message {
	m := NewResponse(tid)
	m.Res["id"] = idString(self)
	m.Res["nodes"] = string(encodeCompactNodes(nodes))
	return m
}

// GetPeersQuery builds a get_peers query: arg {id, info_hash}.
func GetPeersQuery(tid []byte, self, infoHash NodeId) *Message {
	m := NewQuery(tid, MethodGetPeers)
	m.Arg["id"] = idString(self)
	m.Arg["info_hash"] = idString(infoHash)
	return m
}

// GetPeersResponseValues builds a get_peers response carrying peer values:
// result {id, token, values}.
func GetPeersResponseValues(tid []byte, self NodeId, token string, peers [][6]byte) *Message {
	m := NewResponse(tid)
	m.Res["id"] = idString(self)
	m.Res["token"] = token

	values := make([]any, 0, len(peers))
	for _, p := range peers {
		values = append(values, string(p[:]))
	}
	m.Res["values"] = values
	return m
}

// GetPeersResponseNodes builds a get_peers response that falls back to the
// closest known nodes: result {id, token, nodes}.
func GetPeersResponseNodes(tid []byte, self NodeId, token string, nodes []Node) *Message {
	m := NewResponse(tid)
	m.Res["id"] = idString(self)
	m.Res["token"] = token
	m.Res["nodes"] = string(encodeCompactNodes(nodes))
	return m
}

// AnnouncePeerQuery builds an announce_peer query: arg {id, implied_port,
// info_hash, port, token}.
func AnnouncePeerQuery(tid []byte, self, infoHash NodeId, impliedPort bool, port int, token string) *Message {
	m := NewQuery(tid, MethodAnnouncePeer)
	m.Arg["id"] = idString(self)
	m.Arg["info_hash"] = idString(infoHash)
	m.Arg["implied_port"] = impliedPort
	m.Arg["port"] = port
	m.Arg["token"] = token
	return m
}

// AnnouncePeerResponse builds an announce_peer response: result {id}.
func AnnouncePeerResponse(tid []byte, self NodeId) *Message {
	m := NewResponse(tid)
	m.Res["id"] = idString(self)
	return m
}

func idFromDict(d map[string]any, key string) (NodeId, bool) {
	s, ok := d[key].(string)
	if !ok {
		return NodeId{}, false
	}
	return IDFromBytes([]byte(s))
}
