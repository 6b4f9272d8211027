// Codec translates between the wire-level Message and bencoded UDP
// datagrams, built on internal/bencode.
package dht

import (
	"fmt"

	"github.com/prxssh/dhtnode/internal/bencode"
)

// DecodeMessage parses a single UDP datagram into a Message. Malformed
// input (not a dict, missing "t"/"y", or an unrecognized "y") yields a nil
// Message and a non-nil error, per spec.md §7 ("no reply is emitted, the
// sender has no tid we can trust").
//
// An unsupported query method is a special case: the top-level framing is
// valid and the tid is trusted, so DecodeMessage returns both a non-nil
// Message (Type MsgQuery, Query set to the unrecognized name) and a *KError
// the caller can wire back to the sender.
func DecodeMessage(data []byte) (*Message, error) {
	raw, err := bencode.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("dht: bencode decode: %w", err)
	}

	d, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("dht: top-level KRPC message must be a dict")
	}

	tidStr, ok := d["t"].(string)
	if !ok {
		return nil, fmt.Errorf("dht: message missing transaction id")
	}
	tid := []byte(tidStr)

	y, ok := d["y"].(string)
	if !ok {
		return nil, fmt.Errorf("dht: message missing type discriminator")
	}

	switch MsgType(y) {
	case MsgQuery:
		return decodeQuery(tid, d)
	case MsgResponse:
		return decodeResponse(tid, d)
	case MsgError:
		return decodeError(tid, d)
	default:
		return nil, fmt.Errorf("dht: unrecognized message type %q", y)
	}
}

func decodeQuery(tid []byte, d map[string]any) (*Message, error) {
	qName, ok := d["q"].(string)
	if !ok {
		return nil, fmt.Errorf("dht: query missing method name")
	}

	arg, ok := d["a"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("dht: query missing argument dict")
	}

	method := QueryMethod(qName)
	switch method {
	case MethodPing, MethodFindNode, MethodGetPeers, MethodAnnouncePeer:
		return &Message{TID: tid, Type: MsgQuery, Query: method, Arg: arg}, nil
	default:
		return &Message{TID: tid, Type: MsgQuery, Query: method, Arg: arg},
			&KError{Code: ErrorMethodUnknown, Message: fmt.Sprintf("unsupported method %q", qName)}
	}
}

func decodeResponse(tid []byte, d map[string]any) (*Message, error) {
	res, ok := d["r"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("dht: response missing result dict")
	}

	m := &Message{TID: tid, Type: MsgResponse, Res: res}
	if ipStr, ok := d["ip"].(string); ok {
		addr, err := decodeCompactAddr([]byte(ipStr))
		if err == nil {
			m.IP = addr
		}
	}
	return m, nil
}

func decodeError(tid []byte, d map[string]any) (*Message, error) {
	e, ok := d["e"].([]any)
	if !ok || len(e) != 2 {
		return nil, fmt.Errorf("dht: error message malformed")
	}

	code, ok := intFromAny(e[0])
	if !ok {
		return nil, fmt.Errorf("dht: error code malformed")
	}
	msg, ok := e[1].(string)
	if !ok {
		return nil, fmt.Errorf("dht: error message text malformed")
	}

	m := &Message{TID: tid, Type: MsgError, ErrCode: code, ErrMsg: msg}
	if ipStr, ok := d["ip"].(string); ok {
		addr, err := decodeCompactAddr([]byte(ipStr))
		if err == nil {
			m.IP = addr
		}
	}
	return m, nil
}

// EncodeMessage serializes m to its bencoded wire form.
func EncodeMessage(m *Message) ([]byte, error) {
	d := map[string]any{
		"t": string(m.TID),
		"y": string(m.Type),
	}

	switch m.Type {
	case MsgQuery:
		d["q"] = string(m.Query)
		d["a"] = m.Arg
	case MsgResponse:
		d["r"] = m.Res
		if m.IP != nil {
			caddr := encodeCompactAddr(m.IP)
			d["ip"] = string(caddr[:])
		}
	case MsgError:
		d["e"] = []any{m.ErrCode, m.ErrMsg}
		if m.IP != nil {
			caddr := encodeCompactAddr(m.IP)
			d["ip"] = string(caddr[:])
		}
	default:
		return nil, fmt.Errorf("dht: unknown message type %q", m.Type)
	}

	return bencode.Marshal(d)
}
