package net

import (
	"context"
	"net"
	"sync"

	"github.com/nodeoverlay/dht/dht"
	"github.com/nodeoverlay/dht/engine"
)

// OverlayListener implements net.Listener for incoming overlay signal
// streams. Any signal payload whose source has no existing OverlayConn is
// treated as the first chunk of a new inbound stream.
type OverlayListener struct {
	eng       *engine.Engine
	localAddr *NodeAddr
	router    *signalRouter

	closed bool
	mu     sync.RWMutex

	connCh chan net.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

// newOverlayListener creates an OverlayListener bound to eng and installs it
// on eng's signal router.
func newOverlayListener(eng *engine.Engine) *OverlayListener {
	ctx, cancel := context.WithCancel(context.Background())
	l := &OverlayListener{
		eng:       eng,
		localAddr: NewNodeAddrFromID(eng.LocalNodeID()),
		connCh:    make(chan net.Conn, 16),
		ctx:       ctx,
		cancel:    cancel,
	}
	l.router = getOrCreateRouter(eng)
	l.router.setListener(l)
	return l
}

// acceptFrom mints a new OverlayConn for a previously unseen source, queues
// the first payload chunk, and offers the connection to Accept. A burst of
// chunks from the same unestablished source before Accept is called simply
// races to register first; the registered conn absorbs the rest via the
// router's normal delivery path.
func (l *OverlayListener) acceptFrom(from dht.NodeID, payload []byte) {
	conn := newOverlayConn(l.eng, from)
	conn.deliver(payload)

	select {
	case l.connCh <- conn:
	default:
		conn.Close()
	}
}

// Accept implements net.Listener.Accept().
func (l *OverlayListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.connCh:
		return conn, nil
	case <-l.ctx.Done():
		return nil, ErrListenerClosed
	}
}

// Close implements net.Listener.Close().
func (l *OverlayListener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.router.clearListener()
	cleanupRouter(l.eng)
	l.cancel()

	for {
		select {
		case conn := <-l.connCh:
			conn.Close()
		default:
			return nil
		}
	}
}

// Addr implements net.Listener.Addr().
func (l *OverlayListener) Addr() net.Addr {
	return l.localAddr
}
