package dht

import (
	"encoding/binary"
	"fmt"
	"net"
)

// compactAddrSize is the wire size of a compact IPv4 address: 4-byte IP
// big-endian plus 2-byte port big-endian.
const compactAddrSize = 6

// compactNodeSize is the wire size of one compact node entry: a 20-byte id
// followed by a 6-byte compact address.
const compactNodeSize = IDLength + compactAddrSize

// encodeCompactAddr packs addr into its 6-byte wire form. Non-IPv4
// addresses encode as the zero address, matching this spec's IPv4-only
// scope.
func encodeCompactAddr(addr *net.UDPAddr) [compactAddrSize]byte {
	var b [compactAddrSize]byte
	if addr == nil {
		return b
	}
	ip4 := addr.IP.To4()
	if ip4 == nil {
		return b
	}
	copy(b[:4], ip4)
	binary.BigEndian.PutUint16(b[4:6], uint16(addr.Port))
	return b
}

// decodeCompactAddr unpacks a 6-byte compact address.
func decodeCompactAddr(b []byte) (*net.UDPAddr, error) {
	if len(b) != compactAddrSize {
		return nil, fmt.Errorf("dht: compact address must be %d bytes, got %d", compactAddrSize, len(b))
	}
	ip := net.IPv4(b[0], b[1], b[2], b[3])
	port := binary.BigEndian.Uint16(b[4:6])
	return &net.UDPAddr{IP: ip, Port: int(port)}, nil
}

// encodeCompactNode packs id and addr into the 26-byte compact node form.
func encodeCompactNode(id NodeId, addr *net.UDPAddr) [compactNodeSize]byte {
	var b [compactNodeSize]byte
	copy(b[:IDLength], id[:])
	caddr := encodeCompactAddr(addr)
	copy(b[IDLength:], caddr[:])
	return b
}

// encodeCompactNodes concatenates the compact form of every node.
func encodeCompactNodes(nodes []Node) []byte {
	out := make([]byte, 0, len(nodes)*compactNodeSize)
	for _, n := range nodes {
		cn := encodeCompactNode(n.ID, n.Addr)
		out = append(out, cn[:]...)
	}
	return out
}

// decodeCompactNodes splits a concatenated compact-node blob, failing iff
// its length is not a multiple of compactNodeSize.
func decodeCompactNodes(b []byte) ([]Node, error) {
	if len(b)%compactNodeSize != 0 {
		return nil, fmt.Errorf("dht: compact nodes length %d not a multiple of %d", len(b), compactNodeSize)
	}

	n := len(b) / compactNodeSize
	nodes := make([]Node, 0, n)
	for i := 0; i < n; i++ {
		chunk := b[i*compactNodeSize : (i+1)*compactNodeSize]

		id, _ := IDFromBytes(chunk[:IDLength])
		addr, err := decodeCompactAddr(chunk[IDLength:])
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, Node{ID: id, Addr: addr})
	}
	return nodes, nil
}

// encodeCompactPeer packs a single announced-peer address into 6 bytes.
func encodeCompactPeer(addr *net.UDPAddr) [compactAddrSize]byte {
	return encodeCompactAddr(addr)
}

// decodeCompactPeer unpacks a single announced-peer address.
func decodeCompactPeer(b []byte) (*net.UDPAddr, error) {
	return decodeCompactAddr(b)
}
