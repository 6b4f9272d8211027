package dht

import "fmt"

// Arg is the parsed, typed form of a query's argument dict. Concrete types:
// PingArg, FindNodeArg, GetPeersArg, AnnouncePeerArg.
type Arg interface{ isArg() }

// PingArg corresponds to the key-set {id}.
type PingArg struct{ ID NodeId }

// FindNodeArg corresponds to the key-set {id, target}.
type FindNodeArg struct {
	ID     NodeId
	Target NodeId
}

// GetPeersArg corresponds to the key-set {id, info_hash}.
type GetPeersArg struct {
	ID       NodeId
	InfoHash NodeId
}

// AnnouncePeerArg corresponds to the key-set {id, implied_port, info_hash,
// port, token}.
type AnnouncePeerArg struct {
	ID          NodeId
	ImpliedPort bool
	InfoHash    NodeId
	Port        int
	Token       string
}

func (PingArg) isArg()         {}
func (FindNodeArg) isArg()     {}
func (GetPeersArg) isArg()     {}
func (AnnouncePeerArg) isArg() {}

// ParseArg picks the Arg type from the query method and reads that method's
// keys from the argument dict; extra keys are ignored. A missing or
// malformed required key yields a Protocol KError, an unknown method a
// Method KError.
func ParseArg(method QueryMethod, d map[string]any) (Arg, *KError) {
	id, ok := idFromDict(d, "id")
	if !ok {
		return nil, &KError{Code: ErrorProtocol, Message: "missing or malformed id"}
	}

	switch method {
	case MethodPing:
		return PingArg{ID: id}, nil

	case MethodFindNode:
		target, ok := idFromDict(d, "target")
		if !ok {
			return nil, &KError{Code: ErrorProtocol, Message: "find_node: missing target"}
		}
		return FindNodeArg{ID: id, Target: target}, nil

	case MethodGetPeers:
		infoHash, ok := idFromDict(d, "info_hash")
		if !ok {
			return nil, &KError{Code: ErrorProtocol, Message: "get_peers: missing info_hash"}
		}
		return GetPeersArg{ID: id, InfoHash: infoHash}, nil

	case MethodAnnouncePeer:
		infoHash, ok := idFromDict(d, "info_hash")
		if !ok {
			return nil, &KError{Code: ErrorProtocol, Message: "announce_peer: missing info_hash"}
		}
		token, ok := d["token"].(string)
		if !ok {
			return nil, &KError{Code: ErrorProtocol, Message: "announce_peer: missing token"}
		}
		port, ok := intFromAny(d["port"])
		if !ok {
			return nil, &KError{Code: ErrorProtocol, Message: "announce_peer: missing port"}
		}
		implied, _ := d["implied_port"].(bool)
		if !implied {
			if n, ok := intFromAny(d["implied_port"]); ok {
				implied = n != 0
			}
		}
		return AnnouncePeerArg{
			ID:          id,
			ImpliedPort: implied,
			InfoHash:    infoHash,
			Port:        port,
			Token:       token,
		}, nil

	default:
		return nil, &KError{Code: ErrorMethodUnknown, Message: fmt.Sprintf("unsupported method %q", method)}
	}
}

func intFromAny(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

// Res is the parsed, typed form of a response result dict. Concrete types:
// PongRes, FindNodeRes, GetPeersNodesRes, GetPeersValuesRes.
type Res interface{ isRes() }

// PongRes corresponds to the key-set {id}.
type PongRes struct{ ID NodeId }

// FindNodeRes corresponds to the key-set {id, nodes}.
type FindNodeRes struct {
	ID    NodeId
	Nodes []Node
}

// GetPeersNodesRes corresponds to the key-set {id, token, nodes}.
type GetPeersNodesRes struct {
	ID    NodeId
	Token string
	Nodes []Node
}

// GetPeersValuesRes corresponds to the key-set {id, token, values}.
type GetPeersValuesRes struct {
	ID     NodeId
	Token  string
	Values [][6]byte
}

func (PongRes) isRes()            {}
func (FindNodeRes) isRes()        {}
func (GetPeersNodesRes) isRes()   {}
func (GetPeersValuesRes) isRes()  {}

// ParseRes disambiguates a response result dict by its key-set, per
// spec.md §4.5.
func ParseRes(d map[string]any) (Res, error) {
	id, ok := idFromDict(d, "id")
	if !ok {
		return nil, fmt.Errorf("dht: response missing or malformed id")
	}

	_, hasToken := d["token"]
	_, hasNodes := d["nodes"]
	_, hasValues := d["values"]

	switch {
	case hasToken && hasValues:
		valuesRaw, _ := d["values"].([]any)
		values := make([][6]byte, 0, len(valuesRaw))
		for _, v := range valuesRaw {
			s, ok := v.(string)
			if !ok || len(s) != 6 {
				continue
			}
			var p [6]byte
			copy(p[:], s)
			values = append(values, p)
		}
		token, _ := d["token"].(string)
		return GetPeersValuesRes{ID: id, Token: token, Values: values}, nil

	case hasToken && hasNodes:
		nodesStr, _ := d["nodes"].(string)
		nodes, err := decodeCompactNodes([]byte(nodesStr))
		if err != nil {
			return nil, err
		}
		token, _ := d["token"].(string)
		return GetPeersNodesRes{ID: id, Token: token, Nodes: nodes}, nil

	case hasNodes:
		nodesStr, _ := d["nodes"].(string)
		nodes, err := decodeCompactNodes([]byte(nodesStr))
		if err != nil {
			return nil, err
		}
		return FindNodeRes{ID: id, Nodes: nodes}, nil

	default:
		return PongRes{ID: id}, nil
	}
}
