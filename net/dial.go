package net

import (
	"context"
	"net"
	"time"

	"github.com/nodeoverlay/dht/engine"
)

// Dial opens an OverlayConn to a peer's overlay node id and returns it as a
// net.Conn. The nodeID should be a 40-character hexadecimal NodeID string.
func Dial(nodeID string, eng *engine.Engine) (net.Conn, error) {
	return DialTimeout(nodeID, eng, 0)
}

// DialTimeout opens an OverlayConn with a timeout.
// If timeout is 0, no timeout is applied.
func DialTimeout(nodeID string, eng *engine.Engine, timeout time.Duration) (net.Conn, error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return DialContext(ctx, nodeID, eng)
}

// DialContext opens an OverlayConn with a context.
//
// Unlike a transport-level dial, this does not itself wait for
// connection.Manager to finish a handshake with the peer: the overlay signal
// path is routed hop-by-hop and may reach a peer this node never directly
// connects to. The returned conn is usable immediately; Write errors surface
// only an unreachable target (no known route at all), not peer liveness.
func DialContext(ctx context.Context, nodeID string, eng *engine.Engine) (net.Conn, error) {
	addr, err := NewNodeAddr(nodeID)
	if err != nil {
		return nil, err
	}

	conn := newOverlayConn(eng, addr.NodeID())

	select {
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	default:
	}

	return conn, nil
}

// Listen creates an overlay listener that accepts incoming signal streams
// addressed to eng's local node id.
func Listen(eng *engine.Engine) (net.Listener, error) {
	return newOverlayListener(eng), nil
}

// LookupNodeAddr looks up an overlay address. Since overlay node ids are
// direct identifiers, this is equivalent to ResolveNodeAddr.
func LookupNodeAddr(address string) (*NodeAddr, error) {
	return ResolveNodeAddr(address)
}
