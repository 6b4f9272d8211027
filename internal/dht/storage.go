package dht

import (
	"encoding/binary"
	"net"
	"time"
)

// Storage supplements the spec's reserved get_peers/announce_peer shape
// with an actual in-memory peer store (spec.md §1 excludes only persistence
// beyond in-memory form). It is touched exclusively by the service event
// loop, so it needs no internal locking; cleanup and eviction are driven by
// the loop's periodic timer tick rather than a private goroutine.
type Storage struct {
	data map[NodeId]*torrentPeers
}

type torrentPeers struct {
	peers    map[[6]byte]time.Time
	lastUsed time.Time
}

// MaxPeersPerTorrent caps how many peers are remembered per info-hash.
const MaxPeersPerTorrent = 2000

// MaxTorrents caps how many distinct info-hashes are tracked at once.
const MaxTorrents = 10000

// NewStorage returns an empty peer store.
func NewStorage() *Storage {
	return &Storage{data: make(map[NodeId]*torrentPeers)}
}

// StorePeer records the compact address peerInfo as a peer announced for
// infoHash.
func (s *Storage) StorePeer(infoHash NodeId, peerInfo [6]byte) {
	tp, ok := s.data[infoHash]
	if !ok {
		if len(s.data) >= MaxTorrents {
			s.evictOldestTorrent()
		}
		tp = &torrentPeers{peers: make(map[[6]byte]time.Time)}
		s.data[infoHash] = tp
	}

	tp.lastUsed = time.Now()

	if len(tp.peers) >= MaxPeersPerTorrent {
		if _, exists := tp.peers[peerInfo]; !exists {
			return
		}
	}
	tp.peers[peerInfo] = time.Now()
}

// GetPeers returns every known compact peer address for infoHash.
func (s *Storage) GetPeers(infoHash NodeId) [][6]byte {
	tp, ok := s.data[infoHash]
	if !ok {
		return nil
	}
	tp.lastUsed = time.Now()

	peers := make([][6]byte, 0, len(tp.peers))
	for p := range tp.peers {
		peers = append(peers, p)
	}
	return peers
}

// Sweep evicts peers older than expiry and drops torrents left with none.
// Called from the service loop's timer tick.
func (s *Storage) Sweep(expiry time.Duration) {
	now := time.Now()
	for infoHash, tp := range s.data {
		for peer, seen := range tp.peers {
			if now.Sub(seen) > expiry {
				delete(tp.peers, peer)
			}
		}
		if len(tp.peers) == 0 {
			delete(s.data, infoHash)
		}
	}
}

func (s *Storage) evictOldestTorrent() {
	var oldestHash NodeId
	var oldestTime time.Time
	first := true

	for hash, tp := range s.data {
		if first || tp.lastUsed.Before(oldestTime) {
			oldestHash, oldestTime, first = hash, tp.lastUsed, false
		}
	}
	delete(s.data, oldestHash)
}

// EncodePeerInfo packs an announced peer's address into compact form.
func EncodePeerInfo(ip net.IP, port uint16) [6]byte {
	var info [6]byte
	ip4 := ip.To4()
	if ip4 == nil {
		return info
	}
	copy(info[:4], ip4)
	binary.BigEndian.PutUint16(info[4:6], port)
	return info
}

// DecodePeerInfo unpacks a compact peer address.
func DecodePeerInfo(info [6]byte) (net.IP, uint16) {
	ip := net.IPv4(info[0], info[1], info[2], info[3])
	port := binary.BigEndian.Uint16(info[4:6])
	return ip, port
}
