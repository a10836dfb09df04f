// Package net provides Go standard library networking interfaces over the
// overlay's signal relay.
//
// engine.Engine already carries application payloads hop-by-hop toward a
// target node id (the "signal" RPC); this package exposes that same relay as ordinary
// net.Conn/net.Listener/net.Addr values so application code built against
// the standard library's networking interfaces can address a peer by
// overlay node id instead of an IP:port.
//
// The package provides:
//   - NodeAddr: implementation of net.Addr for overlay node ids
//   - OverlayConn: implementation of net.Conn over signal relay
//   - OverlayListener: implementation of net.Listener for incoming streams
//   - Dial/Listen functions for establishing connections
//
// # Stream-based API (net.Conn)
//
//	listener, err := net.Listen(eng)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer listener.Close()
//
//	conn, err := listener.Accept()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	io.Copy(os.Stdout, conn)
//
// Dialing does not itself wait for a direct handshake with the peer: the
// signal relay may reach a node this engine has no connection.Manager for
// at all, routed by the same closest-peer forwarding find_node uses.
//
//	conn, err := net.Dial(peerNodeID, eng)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//	conn.Write([]byte("hello"))
//
// # Error Handling
//
// Errors are wrapped with [OverlayNetError] providing context about the
// operation and address involved. Use errors.Is and errors.As for
// classification:
//
//	conn, err := net.Dial(nodeID, eng)
//	if err != nil {
//	    var netErr *net.OverlayNetError
//	    if errors.As(err, &netErr) {
//	        log.Printf("operation %s on %s failed: %v", netErr.Op, netErr.Addr, netErr.Err)
//	    }
//	}
//
// Delivery is best-effort: there is no acknowledgement that a Write reached
// its target, the same tradeoff the underlying store/get operations make.
// Applications needing confirmed delivery build that into their own
// payload framing above this package.
package net
