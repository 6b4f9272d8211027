package dht

import (
	"net"
	"testing"
	"time"
)

func goodNode(id byte, port int, now time.Time) Node {
	resp := now
	var nid NodeId
	nid[0] = id
	return Node{
		ID:           nid,
		Addr:         &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port},
		LastResponse: &resp,
	}
}

func TestBucket_FillsAndRejectsNinth(t *testing.T) {
	now := time.Now()
	b := NewBucket()

	for i := 0; i < BucketSize; i++ {
		if ok := b.AddNode(goodNode(byte(i+1), 10000+i, now), now); !ok {
			t.Fatalf("AddNode #%d rejected, want accepted", i)
		}
	}

	ninth := goodNode(200, 20000, now)
	if ok := b.AddNode(ninth, now); ok {
		t.Fatalf("9th AddNode accepted, want full/rejected")
	}
}

func TestBucket_EqualNodeReplacement(t *testing.T) {
	now := time.Now()
	b := NewBucket()

	for i := 0; i < BucketSize; i++ {
		b.AddNode(goodNode(byte(i+1), 10000+i, now), now)
	}

	// A questionable node equal to slot 0's id/addr should not replace a
	// Good slot (lower status).
	stale := goodNode(1, 10000, now)
	old := now.Add(-2 * maxLastSeen)
	stale.LastResponse = &old
	stale.LastRequest = nil
	if ok := b.AddNode(stale, now); !ok {
		t.Fatalf("equal-id replacement with lower status should still report success (no-op replace)")
	}
	if got := b.GoodNodes(now); len(got) != BucketSize {
		t.Fatalf("lower-status equal replacement must not demote the slot; good=%d want %d", len(got), BucketSize)
	}
}

func TestBucket_BadNodeIsNoop(t *testing.T) {
	now := time.Now()
	b := NewBucket()

	var badID NodeId
	badID[0] = 0xEE
	bad := Node{ID: badID, Addr: &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1}}

	if ok := b.AddNode(bad, now); !ok {
		t.Fatalf("adding a Bad node must report success (no-op)")
	}
	if got := b.GoodNodes(now); len(got) != 0 {
		t.Fatalf("no good nodes should have been added, got %d", len(got))
	}
}

func TestBucket_NeedsRefresh(t *testing.T) {
	now := time.Now()
	b := NewBucket()
	if !b.NeedsRefresh(now) {
		t.Fatalf("a fresh bucket with only bad placeholders should need refresh")
	}

	b.AddNode(goodNode(1, 10000, now), now)
	if b.NeedsRefresh(now) {
		t.Fatalf("a bucket with a good node should not need refresh")
	}
}
