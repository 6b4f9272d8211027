package dht

import (
	"bytes"
	"net"
	"testing"
)

func TestCodec_PingQueryWireFormat(t *testing.T) {
	id20, ok := IDFromBytes([]byte("0123456789abcdefghij"))
	if !ok {
		t.Fatalf("test id must be exactly 20 bytes")
	}

	msg := PingQuery([]byte("aa"), id20)
	got, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}

	want := "d1:ad2:id20:0123456789abcdefghije1:q4:ping1:t2:aa1:y1:qe"
	if string(got) != want {
		t.Fatalf("ping query wire format mismatch:\n got=%q\nwant=%q", got, want)
	}
}

func TestCodec_MethodErrorWireFormat(t *testing.T) {
	msg := NewErrorMessage([]byte("55"), 204, "Unsupported method")
	got, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}

	want := "d1:eli204e18:Unsupported methode1:t2:551:y1:ee"
	if string(got) != want {
		t.Fatalf("method error wire format mismatch:\n got=%q\nwant=%q", got, want)
	}
}

func TestCodec_PongResponseWithIPWireFormat(t *testing.T) {
	id20, _ := IDFromBytes([]byte("0123456789abcdefghij"))

	msg := PongResponse([]byte("aa"), id20)
	msg.IP = &net.UDPAddr{IP: net.IPv4(1, 2, 3, 4), Port: 56789}

	got, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}

	var buf bytes.Buffer
	buf.WriteString("d2:ip6:")
	buf.Write([]byte{0x01, 0x02, 0x03, 0x04, 0xdd, 0xd5})
	buf.WriteString("1:rd2:id20:0123456789abcdefghije1:t2:aa1:y1:re")
	want := buf.Bytes()

	if !bytes.Equal(got, want) {
		t.Fatalf("pong response wire format mismatch:\n got=%q\nwant=%q", got, want)
	}

	// Round trip: decoding the bytes we just produced must reconstruct an
	// equivalent message.
	decoded, err := DecodeMessage(got)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if decoded.Type != MsgResponse {
		t.Fatalf("decoded type = %v, want response", decoded.Type)
	}
	if decoded.IP == nil || decoded.IP.Port != 56789 || !decoded.IP.IP.Equal(net.IPv4(1, 2, 3, 4)) {
		t.Fatalf("decoded ip = %v, want 1.2.3.4:56789", decoded.IP)
	}

	res, err := ParseRes(decoded.Res)
	if err != nil {
		t.Fatalf("ParseRes: %v", err)
	}
	pong, ok := res.(PongRes)
	if !ok {
		t.Fatalf("ParseRes returned %T, want PongRes", res)
	}
	if pong.ID != id20 {
		t.Fatalf("decoded id mismatch")
	}
}

func TestCodec_UnsupportedMethodDecode(t *testing.T) {
	msg := NewQuery([]byte("zz"), "bogus_method")
	senderID := repeat(0x01)
	msg.Arg["id"] = idString(senderID)

	data, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}

	decoded, decErr := DecodeMessage(data)
	if decoded == nil {
		t.Fatalf("DecodeMessage returned nil message for an unsupported-but-framed query")
	}
	kerr, ok := decErr.(*KError)
	if !ok {
		t.Fatalf("DecodeMessage error = %T, want *KError", decErr)
	}
	if kerr.Code != ErrorMethodUnknown {
		t.Fatalf("error code = %d, want %d", kerr.Code, ErrorMethodUnknown)
	}
	if string(decoded.TID) != "zz" {
		t.Fatalf("decoded tid = %q, want %q (must still be trusted)", decoded.TID, "zz")
	}
}

func TestCodec_NodesRoundTrip(t *testing.T) {
	self := repeat(0x09)
	nodes := []Node{
		{ID: repeat(0x01), Addr: &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 111}},
		{ID: repeat(0x02), Addr: &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 222}},
	}

	msg := FindNodeResponse([]byte("aa"), self, nodes)
	data, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}

	decoded, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}

	res, err := ParseRes(decoded.Res)
	if err != nil {
		t.Fatalf("ParseRes: %v", err)
	}
	fn, ok := res.(FindNodeRes)
	if !ok {
		t.Fatalf("ParseRes returned %T, want FindNodeRes", res)
	}
	if len(fn.Nodes) != 2 {
		t.Fatalf("decoded %d nodes, want 2", len(fn.Nodes))
	}
	for i, n := range fn.Nodes {
		if n.ID != nodes[i].ID || n.Addr.Port != nodes[i].Addr.Port {
			t.Fatalf("node %d round-trip mismatch: got %+v, want %+v", i, n, nodes[i])
		}
	}
}

func TestCodec_NodesLengthValidation(t *testing.T) {
	if _, err := decodeCompactNodes(make([]byte, compactNodeSize+1)); err == nil {
		t.Fatalf("decodeCompactNodes accepted a length not a multiple of %d", compactNodeSize)
	}
}
