// Package dht implements the hard core of a Kademlia/BEP-5 DHT node:
// identifier arithmetic, the XOR-metric routing table, the KRPC transport,
// and the single-threaded service that ties them together.
package dht

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prxssh/dhtnode/internal/config"
)

// inboundDatagram is one UDP read, handed from the read pump to the loop.
type inboundDatagram struct {
	data []byte
	addr *net.UDPAddr
}

// queryResult is what a responder delivers to a blocked facade caller.
type queryResult struct {
	res Res
	err *TransError
}

// cmdQuery is the API-channel payload for an outbound query: build
// constructs the wire message once a transaction id is known.
type cmdQuery struct {
	addr    *net.UDPAddr
	build   func(tid []byte) *Message
	timeout time.Duration
	reply   chan queryResult
}

// cmdFinalize requests a graceful loop shutdown.
type cmdFinalize struct {
	done chan struct{}
}

// cmdLookup asks the loop to scan the routing table for an exact id match,
// keeping FindNode's read on the same single-writer goroutine as every
// mutation.
type cmdLookup struct {
	target NodeId
	reply  chan lookupResult
}

type lookupResult struct {
	node  Node
	found bool
}

// Service owns the UDP socket, routing table, transaction table, and
// handler, and runs the single cooperative event loop described in
// spec.md §4.7/§5. All mutable DHT state is touched only from the loop
// goroutine; callers interact exclusively through the bounded cmdCh and
// one-shot responders.
type Service struct {
	selfID NodeId
	cfg    config.Config
	logger *slog.Logger

	conn *net.UDPConn

	table   *Table
	trans   *Transactions
	storage *Storage
	tokens  *TokenManager
	handler Handler

	cmdCh      chan any
	datagramCh chan inboundDatagram
	timeoutCh  chan transKey

	group  *errgroup.Group
	cancel context.CancelFunc

	lastTokenRotation time.Time
}

// NewService constructs a service from cfg but does not yet bind a socket
// or start the loop; call Start for that.
func NewService(cfg config.Config) (*Service, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tokens, err := NewTokenManager()
	if err != nil {
		return nil, fmt.Errorf("dht: creating token manager: %w", err)
	}

	selfID := NodeId(cfg.LocalID)
	table := NewTable(selfID)
	storage := NewStorage()

	s := &Service{
		selfID:     selfID,
		cfg:        cfg,
		logger:     logger,
		table:      table,
		trans:      NewTransactions(),
		storage:    storage,
		tokens:     tokens,
		cmdCh:      make(chan any, 1),
		datagramCh: make(chan inboundDatagram, 64),
		timeoutCh:  make(chan transKey, 64),
	}
	s.handler = &DefaultHandler{SelfID: selfID, Table: table, Storage: storage, Tokens: tokens}

	return s, nil
}

// SetHandler overrides the default query handler. Must be called before
// Start.
func (s *Service) SetHandler(h Handler) { s.handler = h }

// LocalID returns this node's identifier.
func (s *Service) LocalID() NodeId { return s.selfID }

// Start binds the UDP socket and launches the read pump and event loop as
// supervised goroutines. It returns once the socket is bound; the loop
// itself runs until Finalize or ctx is canceled.
func (s *Service) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("dht: resolving listen address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("dht: binding udp socket: %w", err)
	}
	s.conn = conn

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	g, gctx := errgroup.WithContext(loopCtx)
	s.group = g

	g.Go(func() error { return s.readPump(gctx) })
	g.Go(func() error { return s.loop(gctx) })

	s.logger.Info("dht service started", "addr", conn.LocalAddr().String(), "id", s.selfID.String())
	return nil
}

// Wait blocks until the event loop and read pump both exit.
func (s *Service) Wait() error {
	if s.group == nil {
		return nil
	}
	return s.group.Wait()
}

func (s *Service) readPump(ctx context.Context) error {
	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			s.logger.Warn("udp read failed", "error", err)
			return nil
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case s.datagramCh <- inboundDatagram{data: data, addr: addr}:
		case <-ctx.Done():
			return nil
		}
	}
}

// loop is the single cooperative event loop: it is the only goroutine that
// ever reads or writes table, trans, storage, or tokens.
func (s *Service) loop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()
	defer s.conn.Close()

	for {
		select {
		case <-ctx.Done():
			s.trans.DrainAll(NewShutdownError())
			return nil

		case dg := <-s.datagramCh:
			s.handleDatagram(dg, time.Now())

		case key := <-s.timeoutCh:
			s.handleTimeout(key)

		case cmd := <-s.cmdCh:
			switch c := cmd.(type) {
			case cmdQuery:
				s.handleQueryCommand(c, time.Now())
			case cmdFinalize:
				s.trans.DrainAll(NewShutdownError())
				close(c.done)
				return nil
			case cmdLookup:
				var r lookupResult
				for _, n := range s.table.ClosestNodes(c.target, time.Now()) {
					if n.ID == c.target {
						r = lookupResult{node: n, found: true}
						break
					}
				}
				c.reply <- r
			}

		case <-ticker.C:
			s.handleTick(time.Now())
		}
	}
}

func (s *Service) handleDatagram(dg inboundDatagram, now time.Time) {
	msg, err := DecodeMessage(dg.data)
	if err != nil {
		if kerr, ok := err.(*KError); ok && msg != nil {
			s.sendErrorReply(msg.TID, kerr, dg.addr)
			return
		}
		s.logger.Debug("dropping undecodable datagram", "addr", dg.addr.String(), "error", err)
		return
	}

	switch msg.Type {
	case MsgQuery:
		s.handleInboundQuery(msg, dg.addr, now)
	case MsgResponse:
		s.handleInboundResponse(msg, dg.addr, now)
	case MsgError:
		s.handleInboundError(msg, dg.addr)
	}
}

func (s *Service) handleInboundQuery(msg *Message, addr *net.UDPAddr, now time.Time) {
	arg, kerr := ParseArg(msg.Query, msg.Arg)
	if kerr != nil {
		s.sendErrorReply(msg.TID, kerr, addr)
		return
	}

	res, kerr := s.callHandlerSafely(arg, addr, now)
	if kerr != nil {
		s.sendErrorReply(msg.TID, kerr, addr)
		return
	}

	if id, ok := argID(arg); ok {
		n, found := s.table.FindNode(id, now)
		if !found {
			n = Node{ID: id, Addr: addr}
		}
		n.RemoteRequest(now)
		s.table.AddNode(n, now)
	}

	reply := responseToMessage(msg.TID, res)
	s.send(reply, addr)
}

// callHandlerSafely invokes the handler, converting a panic into a Server
// KError per spec.md §7.
func (s *Service) callHandlerSafely(arg Arg, addr *net.UDPAddr, now time.Time) (res Res, kerr *KError) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked", "panic", r)
			res, kerr = nil, &KError{Code: ErrorServer, Message: "internal server error"}
		}
	}()
	return s.handler.Call(arg, addr, now)
}

func (s *Service) handleInboundResponse(msg *Message, addr *net.UDPAddr, now time.Time) {
	r := s.trans.End(addr, msg.TID)
	if r == nil {
		s.logger.Debug("dropping response for unknown transaction", "addr", addr.String())
		return
	}

	res, err := ParseRes(msg.Res)
	if err != nil {
		r(nil, NewIOError(err))
		return
	}

	if id, ok := resID(res); ok {
		n, found := s.table.FindNode(id, now)
		if !found {
			n = Node{ID: id, Addr: addr}
		}
		n.RemoteResponse(now)
		s.table.AddNode(n, now)
	}

	r(res, nil)
}

func (s *Service) handleInboundError(msg *Message, addr *net.UDPAddr) {
	r := s.trans.End(addr, msg.TID)
	if r == nil {
		s.logger.Debug("dropping error for unknown transaction", "addr", addr.String())
		return
	}
	r(nil, NewKTransError(&KError{Code: msg.ErrCode, Message: msg.ErrMsg}))
}

func (s *Service) handleTimeout(key transKey) {
	r := s.trans.endByKey(key)
	if r == nil {
		return
	}
	r(nil, NewTimeoutError())
}

func (s *Service) handleQueryCommand(cmd cmdQuery, now time.Time) {
	tid := s.trans.Start(cmd.addr, func(res Res, err *TransError) {
		cmd.reply <- queryResult{res, err}
	})

	msg := cmd.build(tid)
	if err := s.send(msg, cmd.addr); err != nil {
		s.trans.End(cmd.addr, tid)
		cmd.reply <- queryResult{nil, NewIOError(err)}
		return
	}

	key := transKey{addr: cmd.addr.String(), tid: tidFromBytes(tid)}
	time.AfterFunc(cmd.timeout, func() {
		select {
		case s.timeoutCh <- key:
		default:
		}
	})
}

// handleTick logs every bucket that needs a refresh (it sends no refresh
// queries), sweeps expired peers from storage, and rotates the token secret
// when due. This maintenance bypasses the command channel since it
// originates inside the loop itself.
func (s *Service) handleTick(now time.Time) {
	for _, idx := range s.table.BucketsNeedingRefresh(now) {
		s.logger.Debug("bucket needs refresh", "bucket", idx)
	}

	s.storage.Sweep(s.cfg.PeerExpiration)

	if now.Sub(s.lastTokenRotation) >= s.cfg.TokenSecretRotation {
		if err := s.tokens.Rotate(); err != nil {
			s.logger.Warn("token rotation failed", "error", err)
		}
		s.lastTokenRotation = now
	}
}

func (s *Service) send(msg *Message, addr *net.UDPAddr) error {
	data, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	_, err = s.conn.WriteToUDP(data, addr)
	if err != nil {
		s.logger.Warn("udp write failed", "addr", addr.String(), "error", err)
	}
	return err
}

func (s *Service) sendErrorReply(tid []byte, kerr *KError, addr *net.UDPAddr) {
	msg := NewErrorMessage(tid, kerr.Code, kerr.Message)
	_ = s.send(msg, addr)
}

func argID(a Arg) (NodeId, bool) {
	switch v := a.(type) {
	case PingArg:
		return v.ID, true
	case FindNodeArg:
		return v.ID, true
	case GetPeersArg:
		return v.ID, true
	case AnnouncePeerArg:
		return v.ID, true
	default:
		return NodeId{}, false
	}
}

func resID(r Res) (NodeId, bool) {
	switch v := r.(type) {
	case PongRes:
		return v.ID, true
	case FindNodeRes:
		return v.ID, true
	case GetPeersNodesRes:
		return v.ID, true
	case GetPeersValuesRes:
		return v.ID, true
	default:
		return NodeId{}, false
	}
}

func responseToMessage(tid []byte, res Res) *Message {
	switch v := res.(type) {
	case PongRes:
		return PongResponse(tid, v.ID)
	case FindNodeRes:
		return FindNodeResponse(tid, v.ID, v.Nodes)
	case GetPeersNodesRes:
		return GetPeersResponseNodes(tid, v.ID, v.Token, v.Nodes)
	case GetPeersValuesRes:
		return GetPeersResponseValues(tid, v.ID, v.Token, v.Values)
	default:
		return NewErrorMessage(tid, ErrorServer, "unrepresentable response")
	}
}

func tidFromBytes(b []byte) uint16 {
	if len(b) != 2 {
		return 0
	}
	return uint16(b[0])<<8 | uint16(b[1])
}

// randomIDInPrefix returns a random id sharing bits bits of prefix with
// self, used when a caller wants to probe a specific bucket range. Left
// unwired from the default refresh path (spec.md §9 marks a full recursive
// lookup as an extension point, not required), but available for callers
// that want to drive their own bucket refresh queries.
func randomIDInPrefix(self NodeId, bits int) NodeId {
	id := self
	if bits >= MaxBuckets {
		return id
	}
	byteIdx := bits / 8
	bitIdx := bits % 8

	mask := byte(0xFF >> bitIdx)
	id[byteIdx] = (id[byteIdx] &^ mask) | (byte(rand.Intn(256)) & mask)
	for i := byteIdx + 1; i < IDLength; i++ {
		id[i] = byte(rand.Intn(256))
	}
	return id
}
