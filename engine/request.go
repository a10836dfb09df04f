package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nodeoverlay/dht/dht"
	"github.com/nodeoverlay/dht/transport"
)

// requestIDGenerator produces reqIds via a node-scoped counter
// plus timestamp plus randomness, so ids are both locally orderable (for
// debugging) and globally unique (for dedup across restarts).
type requestIDGenerator struct {
	nodeID  dht.NodeID
	counter uint64
	tp      dht.TimeProvider
}

func newRequestIDGenerator(nodeID dht.NodeID, tp dht.TimeProvider) *requestIDGenerator {
	return &requestIDGenerator{nodeID: nodeID, tp: tp}
}

func (g *requestIDGenerator) Next() string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-%d-%d-%s", g.nodeID.String()[:8], n, g.tp.Now().UnixNano(), uuid.NewString()[:8])
}

// pendingEntry is one in-flight outbound RPC awaiting its response frame.
type pendingEntry struct {
	replyCh chan *transport.Frame
}

// pendingRequests is the dedup/response-matching table Engine owns and only
// mutates from its own goroutines. It also serves as at-most-one-delivery
// dedup: a second frame for an already-resolved or already-timed-out reqId
// finds no entry, and Engine.HandleFrame silently discards it.
type pendingRequests struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{entries: make(map[string]*pendingEntry)}
}

func (p *pendingRequests) register(reqID string) chan *transport.Frame {
	ch := make(chan *transport.Frame, 1)
	p.mu.Lock()
	p.entries[reqID] = &pendingEntry{replyCh: ch}
	p.mu.Unlock()
	return ch
}

func (p *pendingRequests) resolve(reqID string, frame *transport.Frame) bool {
	p.mu.Lock()
	entry, ok := p.entries[reqID]
	if ok {
		delete(p.entries, reqID)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	entry.replyCh <- frame
	return true
}

func (p *pendingRequests) forget(reqID string) {
	p.mu.Lock()
	delete(p.entries, reqID)
	p.mu.Unlock()
}
