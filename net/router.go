package net

import (
	"sync"

	"github.com/nodeoverlay/dht/dht"
	"github.com/nodeoverlay/dht/engine"
)

// signalRouter multiplexes one Engine's locally-delivered signal payloads
// across the OverlayConns (and, for unsolicited inbound streams, the
// OverlayListener) that consume them. Each Engine has at most one
// signalRouter, since Engine itself only allows a single registered
// SignalHandler.
type signalRouter struct {
	eng *engine.Engine

	connections map[dht.NodeID]*OverlayConn
	listener    *OverlayListener
	mu          sync.RWMutex

	initialized bool
}

// globalRouters tracks the signalRouter for each Engine, ensuring a single
// router per Engine across all OverlayConn/OverlayListener instances.
var (
	globalRouters   = make(map[*engine.Engine]*signalRouter)
	globalRoutersMu sync.Mutex
)

// getOrCreateRouter returns the signalRouter for eng, creating one if it
// doesn't exist. Thread-safe.
func getOrCreateRouter(eng *engine.Engine) *signalRouter {
	globalRoutersMu.Lock()
	defer globalRoutersMu.Unlock()

	if router, exists := globalRouters[eng]; exists {
		return router
	}

	router := &signalRouter{
		eng:         eng,
		connections: make(map[dht.NodeID]*OverlayConn),
	}
	globalRouters[eng] = router
	return router
}

// cleanupRouter removes the router for eng if it has no connections and no
// active listener. Called when an OverlayConn is closed.
func cleanupRouter(eng *engine.Engine) {
	globalRoutersMu.Lock()
	defer globalRoutersMu.Unlock()

	router, exists := globalRouters[eng]
	if !exists {
		return
	}

	router.mu.RLock()
	idle := len(router.connections) == 0 && router.listener == nil
	router.mu.RUnlock()

	if idle {
		delete(globalRouters, eng)
	}
}

// registerConnection adds an OverlayConn to the router, keyed by its remote
// peer, and wires the Engine's SignalHandler on first use.
func (r *signalRouter) registerConnection(conn *OverlayConn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[conn.remoteID] = conn

	if !r.initialized {
		r.eng.RegisterSignalHandler(r.routeSignal)
		r.initialized = true
	}
}

// unregisterConnection removes an OverlayConn from the router.
func (r *signalRouter) unregisterConnection(remoteID dht.NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connections, remoteID)
}

// setListener installs the router's sole OverlayListener, wiring the
// Engine's SignalHandler on first use just as registerConnection does.
func (r *signalRouter) setListener(l *OverlayListener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listener = l
	if !r.initialized {
		r.eng.RegisterSignalHandler(r.routeSignal)
		r.initialized = true
	}
}

// clearListener removes the router's OverlayListener.
func (r *signalRouter) clearListener() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = nil
}

// routeSignal delivers an incoming payload to the OverlayConn already
// registered for its source, or, failing that, to the listener so it can
// mint a new OverlayConn for a previously unseen peer.
func (r *signalRouter) routeSignal(from dht.NodeID, payload []byte) {
	r.mu.RLock()
	conn, exists := r.connections[from]
	listener := r.listener
	r.mu.RUnlock()

	if exists && conn != nil {
		conn.deliver(payload)
		return
	}

	if listener != nil {
		listener.acceptFrom(from, payload)
	}
}

// connectionCount returns the number of registered connections.
func (r *signalRouter) connectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
