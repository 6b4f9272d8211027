package dht

import (
	"encoding/binary"
	"net"
)

// transKey identifies one outstanding transaction by remote address and
// 16-bit transaction id.
type transKey struct {
	addr string
	tid  uint16
}

// Transactions is the multiplexer mapping (remote_addr, tid) to a pending
// responder. It is owned exclusively by the service event loop; nothing
// else touches it, so it needs no locking.
type Transactions struct {
	lastTID uint16
	pool    map[transKey]responder
}

// responder is a one-shot callback completed exactly once, with either a
// successful Res or a TransError.
type responder func(Res, *TransError)

// NewTransactions returns an empty transaction multiplexer.
func NewTransactions() *Transactions {
	return &Transactions{pool: make(map[transKey]responder)}
}

// Start registers r as the responder for a new outbound query to addr,
// returning the 2-byte big-endian wire transaction id to embed in the
// query.
func (t *Transactions) Start(addr *net.UDPAddr, r responder) []byte {
	// lastTID wraps at 2^16 without a guard: a wrapped id that collides
	// with a still-pending entry for the same addr overwrites it.
	t.lastTID++
	key := transKey{addr: addr.String(), tid: t.lastTID}
	t.pool[key] = r

	var tid [2]byte
	binary.BigEndian.PutUint16(tid[:], t.lastTID)
	return tid[:]
}

// End looks up and removes the responder for (addr, tidBytes). It returns
// nil if tidBytes isn't exactly 2 bytes or no responder is registered —
// both cases the caller should log and drop.
func (t *Transactions) End(addr *net.UDPAddr, tidBytes []byte) responder {
	if len(tidBytes) != 2 {
		return nil
	}
	tid := binary.BigEndian.Uint16(tidBytes)
	key := transKey{addr: addr.String(), tid: tid}

	r, ok := t.pool[key]
	if !ok {
		return nil
	}
	delete(t.pool, key)
	return r
}

// endByKey is End's counterpart for callers that already hold a transKey
// (the timeout path, which races the datagram path to the same entry).
func (t *Transactions) endByKey(key transKey) responder {
	r, ok := t.pool[key]
	if !ok {
		return nil
	}
	delete(t.pool, key)
	return r
}

// Len reports the number of outstanding transactions, mainly for tests.
func (t *Transactions) Len() int {
	return len(t.pool)
}

// DrainAll removes every outstanding responder and completes each with err.
// Used by Finalize.
func (t *Transactions) DrainAll(err *TransError) {
	for key, r := range t.pool {
		delete(t.pool, key)
		r(nil, err)
	}
}
