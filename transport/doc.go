// Package transport defines the wire-level contract the overlay core
// consumes: a Frame envelope (one JSON object per transport message) and a
// Transport interface any concrete carrier (UDP, TCP, WebRTC, WebSocket)
// implements. The protocol version and build id, carried in the
// HandshakeEnvelope that handshake frames hold, let connection.Manager
// detect and reject incompatible peers before a handshake proceeds.
package transport
