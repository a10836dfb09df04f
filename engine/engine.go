package engine

import (
	"context"
	"crypto/sha256"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nodeoverlay/dht/config"
	"github.com/nodeoverlay/dht/connection"
	"github.com/nodeoverlay/dht/dht"
	"github.com/nodeoverlay/dht/transport"
)

// Engine owns the RoutingTable and the set of active ConnectionManagers; it
// is the Kademlia RPC layer.
type Engine struct {
	cfg   *config.Config
	table *dht.RoutingTable
	ids   *requestIDGenerator
	pend  *pendingRequests
	store *valueStore
	tp    dht.TimeProvider

	connMu sync.RWMutex
	conns  map[dht.NodeID]*connection.Manager

	customMu sync.RWMutex
	custom   map[string]CustomFrameHandler

	signalMu sync.RWMutex
	signal   SignalHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logrus.Entry
}

// CustomFrameHandler handles a frame type Engine has no built-in RPC for
// (onboarding directive and invitation-delivery frames, which
// ride the same connection/reqId plumbing as the core Kademlia RPCs but
// belong to the coordinator package, not to Engine itself).
type CustomFrameHandler func(frame *transport.Frame, from dht.NodeID)

// RegisterCustomHandler wires a handler for an application-defined frame
// type. Overwrites any previously registered handler for that type.
func (e *Engine) RegisterCustomHandler(frameType string, handler CustomFrameHandler) {
	e.customMu.Lock()
	defer e.customMu.Unlock()
	e.custom[frameType] = handler
}

// SignalHandler consumes a signal payload that has reached its target at
// this Engine, identified by the overlay-routed SourceID rather than the
// transport-level peer that happened to deliver the last hop.
type SignalHandler func(from dht.NodeID, payload []byte)

// RegisterSignalHandler wires the single consumer of locally-delivered
// signal payloads (the net package's listener uses this to surface incoming
// overlay streams). Overwrites any previously registered handler.
func (e *Engine) RegisterSignalHandler(handler SignalHandler) {
	e.signalMu.Lock()
	defer e.signalMu.Unlock()
	e.signal = handler
}

// New constructs an Engine rooted at table.Local(), with its own maintenance
// goroutines not yet started (call Start).
func New(cfg *config.Config, table *dht.RoutingTable, tp dht.TimeProvider) *Engine {
	if tp == nil {
		tp = dht.DefaultTimeProvider{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:    cfg,
		table:  table,
		ids:    newRequestIDGenerator(table.Local(), tp),
		pend:   newPendingRequests(),
		store:  newValueStore(),
		tp:     tp,
		conns:  make(map[dht.NodeID]*connection.Manager),
		custom: make(map[string]CustomFrameHandler),
		ctx:    ctx,
		cancel: cancel,
		logger: logrus.WithFields(logrus.Fields{
			"component": "engine.Engine",
			"localId":   table.Local().String(),
		}),
	}
}

// Start launches the republication, expiry, and bucket-refresh maintenance
// loops as background goroutines, stoppable via Stop.
func (e *Engine) Start() {
	e.wg.Add(3)
	go e.republishLoop()
	go e.expiryLoop()
	go e.bucketRefreshLoop()
}

// Stop cancels the maintenance loops and waits for them to exit.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
}

// AddConnection registers a Ready connection.Manager so Engine can route
// RPCs to it, and wires Engine.HandleFrame as its application frame
// handler.
func (e *Engine) AddConnection(mgr *connection.Manager) {
	id := mgr.RemoteNodeID()
	e.connMu.Lock()
	e.conns[id] = mgr
	e.connMu.Unlock()

	mgr.OnReady(func(frame *transport.Frame) {
		e.HandleFrame(frame, id)
	})
}

// RemoveConnection drops a peer's connection from routing consideration.
func (e *Engine) RemoveConnection(id dht.NodeID) {
	e.connMu.Lock()
	delete(e.conns, id)
	e.connMu.Unlock()
}

func (e *Engine) connFor(id dht.NodeID) *connection.Manager {
	e.connMu.RLock()
	defer e.connMu.RUnlock()
	return e.conns[id]
}

// Connected reports whether id has a registered, Ready connection.Manager.
func (e *Engine) Connected(id dht.NodeID) bool {
	conn := e.connFor(id)
	return conn != nil && conn.State() == connection.Ready
}

// HandleFrame is the single entry point for every frame arriving on any of
// this engine's connections. A frame whose reqId matches an in-flight
// request is routed to that waiter; a frame carrying a reqId this node
// minted that is no longer pending (a late or duplicate response) is
// discarded; otherwise it is treated as a fresh incoming RPC and dispatched
// by type.
func (e *Engine) HandleFrame(frame *transport.Frame, from dht.NodeID) {
	if frame.ReqID != "" {
		if e.pend.resolve(frame.ReqID, frame) {
			return
		}
		own := e.table.Local().String()[:8] + "-"
		if len(frame.ReqID) > len(own) && frame.ReqID[:len(own)] == own {
			return
		}
	}
	e.dispatchRequest(frame, from)
}

func (e *Engine) dispatchRequest(frame *transport.Frame, from dht.NodeID) {
	switch frame.Type {
	case RPCPing:
		e.handlePing(frame, from)
	case RPCFindNode:
		e.handleFindNode(frame, from)
	case RPCFindValue:
		e.handleFindValue(frame, from)
	case RPCStore:
		e.handleStore(frame, from)
	case RPCSignal:
		e.handleSignal(frame, from)
	default:
		e.customMu.RLock()
		handler := e.custom[frame.Type]
		e.customMu.RUnlock()
		if handler != nil {
			handler(frame, from)
			return
		}
		e.logger.WithField("type", frame.Type).Debug("unknown rpc frame type")
	}
}

func (e *Engine) reply(to dht.NodeID, reqID, frameType string, payload interface{}) {
	conn := e.connFor(to)
	if conn == nil {
		return
	}
	if err := conn.Send(frameType, reqID, payload); err != nil {
		e.logger.WithError(err).WithField("peer", to.String()).Debug("reply send failed")
	}
}

func (e *Engine) handlePing(frame *transport.Frame, from dht.NodeID) {
	e.table.MarkSeen(from, e.tp)
	e.reply(from, frame.ReqID, RPCPing, PingResponse{OK: true})
}

func (e *Engine) handleFindNode(frame *transport.Frame, from dht.NodeID) {
	var req FindNodeRequest
	if err := frame.Decode(&req); err != nil {
		return
	}
	target, err := dht.ParseNodeID(req.Target)
	if err != nil {
		return
	}

	closest := e.table.FindClosest(target, e.cfg.K)
	peers := make([]PeerSummary, 0, len(closest))
	for _, p := range closest {
		peers = append(peers, summarize(p))
	}
	e.reply(from, frame.ReqID, RPCFindNode, FindNodeResponse{Peers: peers})
}

func (e *Engine) handleFindValue(frame *transport.Frame, from dht.NodeID) {
	var req FindValueRequest
	if err := frame.Decode(&req); err != nil {
		return
	}

	if value, ok := e.store.Get(req.Key, e.tp); ok {
		e.reply(from, frame.ReqID, RPCFindValue, FindValueResponse{Value: value})
		return
	}

	target, err := keyToNodeID(req.Key)
	if err != nil {
		return
	}
	closest := e.table.FindClosest(target, e.cfg.K)
	peers := make([]PeerSummary, 0, len(closest))
	for _, p := range closest {
		peers = append(peers, summarize(p))
	}
	e.reply(from, frame.ReqID, RPCFindValue, FindValueResponse{Peers: peers})
}

func (e *Engine) handleStore(frame *transport.Frame, from dht.NodeID) {
	var req StoreRequest
	if err := frame.Decode(&req); err != nil {
		return
	}

	ok := req.TTLSeconds > 0 && req.TTLSeconds <= int64(e.cfg.ValueExpiry.Seconds()) && len(req.Value) > 0
	if ok {
		e.store.Put(req.Key, req.Value, time.Duration(req.TTLSeconds)*time.Second, false, e.tp)
	}
	e.reply(from, frame.ReqID, RPCStore, StoreResponse{OK: ok})
}

// handleSignal implements the signal routing rule: deliver to a direct
// neighbor, otherwise forward toward the closest known peer by XOR distance,
// dropping loops and hop-limit violations.
func (e *Engine) handleSignal(frame *transport.Frame, from dht.NodeID) {
	var req SignalRequest
	if err := frame.Decode(&req); err != nil {
		return
	}

	targetID, err := dht.ParseNodeID(req.TargetID)
	if err != nil {
		return
	}

	if targetID == e.table.Local() {
		sourceID, err := dht.ParseNodeID(req.SourceID)
		if err != nil {
			return
		}
		e.signalMu.RLock()
		handler := e.signal
		e.signalMu.RUnlock()
		if handler != nil {
			handler(sourceID, req.Payload)
		}
		return
	}

	_ = e.forwardSignal(frame.ReqID, req, targetID, from)
}

// forwardSignal relays req one hop closer to targetID, dropping it on a
// routing loop or hop-limit violation. from is the peer this hop arrived
// from (zero value for locally-originated signals, which are never loops).
// A nil return means the frame was handed on or dropped: on a loop, at the
// hop limit, at TTL zero, when the next hop is the sender, or when the next
// hop has no registered connection. An error is returned when a send to a
// connected peer fails, or ErrPeerNotConnected when the routing table has
// no peer to forward to.
func (e *Engine) forwardSignal(reqID string, req SignalRequest, targetID, from dht.NodeID) error {
	if conn := e.connFor(targetID); conn != nil {
		return conn.Send(RPCSignal, reqID, req)
	}

	localStr := e.table.Local().String()
	seen := 0
	for _, hop := range req.Hops {
		if hop == localStr {
			seen++
		}
	}
	if seen >= 2 || len(req.Hops) >= e.cfg.MaxSignalHops {
		return nil
	}
	if req.TTL <= 0 {
		return nil
	}

	closest := e.table.FindClosest(targetID, 1)
	if len(closest) == 0 {
		return ErrPeerNotConnected
	}
	next := closest[0].NodeID
	if next == from {
		return nil
	}

	req.Hops = append(append([]string{}, req.Hops...), localStr)
	req.TTL--
	e.reply(next, reqID, RPCSignal, req)
	return nil
}

// SendSignal originates an overlay-routed signal payload addressed to peer,
// delivering it directly if peer is a connected neighbor, otherwise
// forwarding it hop-by-hop toward the closest known peer the same way a
// relayed signal would travel. There is no delivery acknowledgement: a
// caller wanting confirmed delivery must build that into payload itself, the
// same way the underlying Kademlia store/get operations tolerate
// best-effort replication rather than guaranteed delivery.
func (e *Engine) SendSignal(peer dht.NodeID, payload []byte) error {
	req := SignalRequest{
		SourceID: e.table.Local().String(),
		TargetID: peer.String(),
		Payload:  payload,
		TTL:      e.cfg.MaxSignalHops,
	}
	reqID := e.ids.Next()
	return e.forwardSignal(reqID, req, peer, dht.NodeID{})
}

// keyToNodeID maps an arbitrary store key onto the identifier space so
// find_value lookups can reuse the same XOR-distance routing as find_node
// (keys and nodeIds are points in the same metric space).
func keyToNodeID(key string) (dht.NodeID, error) {
	sum := sha256.Sum256([]byte(key))
	var id dht.NodeID
	copy(id[:], sum[:dht.IDBytes])
	return id, nil
}

// sendRPC issues one RPC to peer and blocks until the response arrives or
// deadline elapses.
func (e *Engine) sendRPC(ctx context.Context, peer dht.NodeID, frameType string, req interface{}) (*transport.Frame, error) {
	conn := e.connFor(peer)
	if conn == nil {
		return nil, ErrPeerNotConnected
	}

	reqID := e.ids.Next()
	replyCh := e.pend.register(reqID)

	if err := conn.Send(frameType, reqID, req); err != nil {
		e.pend.forget(reqID)
		return nil, err
	}

	select {
	case frame := <-replyCh:
		return frame, nil
	case <-ctx.Done():
		e.pend.forget(reqID)
		e.table.MarkFailed(peer, e.tp)
		return nil, ctx.Err()
	}
}

// SendRPC issues a request frame of an arbitrary application-defined type to
// peer and blocks until the matching response arrives or ctx is done. It
// exists for callers outside this package (the coordinator's onboarding
// directive and invitation delivery) that need the same reqId-matched
// ack semantics as the built-in RPCs without Engine knowing their payload
// shapes.
func (e *Engine) SendRPC(ctx context.Context, peer dht.NodeID, frameType string, payload interface{}) (*transport.Frame, error) {
	return e.sendRPC(ctx, peer, frameType, payload)
}

// Reply sends a response/ack frame carrying reqID back to peer. Used by
// CustomFrameHandlers to acknowledge a request dispatched via SendRPC.
func (e *Engine) Reply(peer dht.NodeID, reqID, frameType string, payload interface{}) {
	e.reply(peer, reqID, frameType, payload)
}

// LocalNodeID returns the identifier this engine's RoutingTable is rooted at.
func (e *Engine) LocalNodeID() dht.NodeID {
	return e.table.Local()
}

// RequestTimeout returns the configured per-RPC request deadline.
func (e *Engine) RequestTimeout() time.Duration {
	return e.cfg.RequestTimeout
}

// Ping issues a liveness check.
func (e *Engine) Ping(ctx context.Context, peer dht.NodeID) error {
	frame, err := e.sendRPC(ctx, peer, RPCPing, PingRequest{})
	if err != nil {
		return err
	}
	var resp PingResponse
	return frame.Decode(&resp)
}

// lookupResult is the shared state threaded through one iterative lookup.
type lookupResult struct {
	mu        sync.Mutex
	shortlist []*dht.PeerRecord
	queried   map[dht.NodeID]bool
}

func newLookupResult(seed []*dht.PeerRecord) *lookupResult {
	return &lookupResult{shortlist: seed, queried: make(map[dht.NodeID]bool)}
}

func (r *lookupResult) insertPeers(local dht.NodeID, target dht.NodeID, peers []*dht.PeerRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := make(map[dht.NodeID]bool, len(r.shortlist))
	for _, p := range r.shortlist {
		existing[p.NodeID] = true
	}
	for _, p := range peers {
		if p.NodeID == local || existing[p.NodeID] {
			continue
		}
		existing[p.NodeID] = true
		r.shortlist = append(r.shortlist, p)
	}
	sort.Slice(r.shortlist, func(i, j int) bool {
		di := dht.Distance(r.shortlist[i].NodeID, target)
		dj := dht.Distance(r.shortlist[j].NodeID, target)
		if di != dj {
			return dht.Less(di, dj)
		}
		return dht.Compare(r.shortlist[i].NodeID, r.shortlist[j].NodeID) < 0
	})
}

func (r *lookupResult) nextUnqueried(k int) *dht.PeerRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	limit := len(r.shortlist)
	if limit > k {
		limit = k
	}
	for i := 0; i < limit; i++ {
		p := r.shortlist[i]
		if !r.queried[p.NodeID] {
			r.queried[p.NodeID] = true
			return p
		}
	}
	return nil
}

func (r *lookupResult) topK(k int) []*dht.PeerRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.shortlist) > k {
		return append([]*dht.PeerRecord{}, r.shortlist[:k]...)
	}
	return append([]*dht.PeerRecord{}, r.shortlist...)
}

// LookupNode runs the α-bounded iterative find_node lookup,
// returning up to k peers closest to target.
func (e *Engine) LookupNode(ctx context.Context, target dht.NodeID) []*dht.PeerRecord {
	_, peers := e.iterate(ctx, target, "", false)
	return peers
}

// LookupValue runs the iterative find_value lookup, short-circuiting on a
// hit and writing the value back to the closest peer of the final
// shortlist. That peer is not checked against the peer that returned the
// value, so the write-back can go to the holder itself.
func (e *Engine) LookupValue(ctx context.Context, key string) ([]byte, bool) {
	target, err := keyToNodeID(key)
	if err != nil {
		return nil, false
	}
	value, peers := e.iterate(ctx, target, key, true)
	if value != nil {
		if len(peers) > 0 {
			e.writeBack(ctx, peers[0], key, value)
		}
		return value, true
	}
	return nil, false
}

func (e *Engine) writeBack(ctx context.Context, peer *dht.PeerRecord, key string, value []byte) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.PerCandidateDeadline)
	defer cancel()
	_, _ = e.sendRPC(ctx, peer.NodeID, RPCStore, StoreRequest{
		Key:        key,
		Value:      value,
		TTLSeconds: int64(e.cfg.ValueExpiry.Seconds()),
	})
}

func (e *Engine) iterate(parent context.Context, target dht.NodeID, key string, wantValue bool) ([]byte, []*dht.PeerRecord) {
	ctx, cancel := context.WithTimeout(parent, e.cfg.LookupTimeout)
	defer cancel()

	seed := e.table.FindClosest(target, e.cfg.K)
	result := newLookupResult(seed)

	staleRounds := 0
	for staleRounds < e.cfg.Alpha {
		batch := make([]*dht.PeerRecord, 0, e.cfg.Alpha)
		for len(batch) < e.cfg.Alpha {
			next := result.nextUnqueried(e.cfg.K)
			if next == nil {
				break
			}
			batch = append(batch, next)
		}
		if len(batch) == 0 {
			break
		}

		beforeBest := result.topK(1)
		group, gctx := errgroup.WithContext(ctx)
		valueCh := make(chan []byte, len(batch))
		for _, peer := range batch {
			peer := peer
			group.Go(func() error {
				callCtx, cancel := context.WithTimeout(gctx, e.cfg.PerCandidateDeadline)
				defer cancel()

				if wantValue {
					frame, err := e.sendRPC(callCtx, peer.NodeID, RPCFindValue, FindValueRequest{Key: key})
					if err != nil {
						return nil
					}
					var resp FindValueResponse
					if err := frame.Decode(&resp); err != nil {
						return nil
					}
					if resp.Value != nil {
						valueCh <- resp.Value
						return nil
					}
					result.insertPeers(e.table.Local(), target, toRecords(resp.Peers))
					return nil
				}

				frame, err := e.sendRPC(callCtx, peer.NodeID, RPCFindNode, FindNodeRequest{Target: target.String()})
				if err != nil {
					return nil
				}
				var resp FindNodeResponse
				if err := frame.Decode(&resp); err != nil {
					return nil
				}
				result.insertPeers(e.table.Local(), target, toRecords(resp.Peers))
				return nil
			})
		}
		_ = group.Wait()
		close(valueCh)

		for v := range valueCh {
			return v, result.topK(e.cfg.K)
		}

		afterBest := result.topK(1)
		if sameFirst(beforeBest, afterBest) {
			staleRounds++
		} else {
			staleRounds = 0
		}

		select {
		case <-ctx.Done():
			return nil, result.topK(e.cfg.K)
		default:
		}
	}

	return nil, result.topK(e.cfg.K)
}

func sameFirst(a, b []*dht.PeerRecord) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	return a[0].NodeID == b[0].NodeID
}

func toRecords(peers []PeerSummary) []*dht.PeerRecord {
	out := make([]*dht.PeerRecord, 0, len(peers))
	for _, p := range peers {
		id, err := dht.ParseNodeID(p.NodeID)
		if err != nil {
			continue
		}
		rec := dht.NewPeerRecord(id, nodeTypeFromString(p.NodeType), nil)
		rec.TransportAddress = p.Address
		out = append(out, rec)
	}
	return out
}

func nodeTypeFromString(s string) dht.NodeType {
	switch s {
	case "server":
		return dht.NodeTypeServer
	case "bridge":
		return dht.NodeTypeBridge
	default:
		return dht.NodeTypeBrowser
	}
}

// Store publishes key/value as this node's origin record and pushes it to
// the k closest peers of key.
func (e *Engine) Store(ctx context.Context, key string, value []byte, ttl time.Duration) {
	e.store.Put(key, value, ttl, true, e.tp)

	target, err := keyToNodeID(key)
	if err != nil {
		return
	}
	for _, peer := range e.table.FindClosest(target, e.cfg.K) {
		peer := peer
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.PerCandidateDeadline)
		_, _ = e.sendRPC(callCtx, peer.NodeID, RPCStore, StoreRequest{
			Key:        key,
			Value:      value,
			TTLSeconds: int64(ttl.Seconds()),
		})
		cancel()
	}
}

func (e *Engine) republishLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.RepublishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			for _, key := range e.store.OriginKeys() {
				value, _, ok := e.store.Snapshot(key)
				if !ok {
					continue
				}
				e.Store(e.ctx, key, value, e.cfg.ValueExpiry)
			}
		}
	}
}

func (e *Engine) expiryLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.RepublishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.store.ExpireOld(e.tp)
		}
	}
}

func (e *Engine) bucketRefreshLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.BucketRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			for i := 0; i < dht.IDBits; i++ {
				bucket := e.table.BucketAt(i)
				if bucket == nil || bucket.Len() > 0 {
					continue
				}
				target, err := dht.RandomNodeID()
				if err != nil {
					continue
				}
				ctx, cancel := context.WithTimeout(e.ctx, e.cfg.LookupTimeout)
				e.LookupNode(ctx, target)
				cancel()
			}
		}
	}
}
