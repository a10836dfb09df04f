package transport

import "net"

// FrameHandler processes a single incoming Frame from addr. Handlers run
// concurrently per received frame.
type FrameHandler func(frame *Frame, addr net.Addr) error

// Transport is the capability the overlay core consumes: something that can
// send a Frame to a peer, dispatch inbound frames by type, and report its
// own local address. Concrete bodies (UDP, TCP, WebRTC, WebSocket) are
// pluggable; the core never depends on one directly.
type Transport interface {
	Send(frame *Frame, addr net.Addr) error
	Close() error
	LocalAddr() net.Addr
	RegisterHandler(frameType string, handler FrameHandler)
}
