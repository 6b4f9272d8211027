package dht

import "time"

// BucketSize is K, the fixed capacity of every bucket.
const BucketSize = 8

// Bucket is a fixed-capacity container of K node slots sharing a prefix
// length. A freshly constructed bucket holds K bad placeholder nodes so
// insertion logic never needs a separate "empty slot" case.
type Bucket struct {
	nodes [BucketSize]Node
}

// NewBucket returns a bucket filled with bad placeholder nodes.
func NewBucket() *Bucket {
	b := &Bucket{}
	for i := range b.nodes {
		b.nodes[i] = badNode()
	}
	return b
}

// AddNode attempts to insert n, following the bucket replacement rules:
// a Bad node is a no-op success; if an equal node is present it is replaced
// only when n's status is not lower than the existing one, and the call
// reports success either way; otherwise the first slot with strictly lower
// status than n is replaced. Returns false ("full") if no slot qualifies.
func (b *Bucket) AddNode(n Node, now time.Time) bool {
	status := n.Status(now)
	if status == StatusBad {
		return true
	}

	equalIdx := -1
	for i := range b.nodes {
		if b.nodes[i].Equal(n) {
			equalIdx = i
			break
		}
	}

	if equalIdx >= 0 {
		// Never downgrade the stored record, and never place n in a
		// second slot: the bucket holds at most one copy of each peer.
		if status >= b.nodes[equalIdx].Status(now) {
			b.nodes[equalIdx] = n
		}
		return true
	}

	// No equal slot: look for a slot strictly below n's status.
	for i := range b.nodes {
		if b.nodes[i].Status(now) < status {
			b.nodes[i] = n
			return true
		}
	}

	return false
}

// GoodNodes returns every slot currently Good.
func (b *Bucket) GoodNodes(now time.Time) []Node {
	out := make([]Node, 0, BucketSize)
	for _, n := range b.nodes {
		if n.Status(now) == StatusGood {
			out = append(out, n)
		}
	}
	return out
}

// PingableNodes returns every slot that is not Bad.
func (b *Bucket) PingableNodes(now time.Time) []Node {
	out := make([]Node, 0, BucketSize)
	for _, n := range b.nodes {
		if n.Status(now) != StatusBad {
			out = append(out, n)
		}
	}
	return out
}

// NeedsRefresh reports whether no slot in the bucket is currently Good.
func (b *Bucket) NeedsRefresh(now time.Time) bool {
	for _, n := range b.nodes {
		if n.Status(now) == StatusGood {
			return false
		}
	}
	return true
}

// Nodes returns a copy of every slot, bad placeholders included, in stored
// order. Used by the table when splitting a bucket.
func (b *Bucket) Nodes() [BucketSize]Node {
	return b.nodes
}
