// Package connection manages the per-peer lifecycle between dialing a remote
// overlay node and exchanging frames with it once the peer is authenticated.
// Frames are sent as plain JSON; the Noise cipher states are not applied. A
// Manager owns one state machine per remote peer:
//
//	Idle -> Dialing -> Handshaking -> Authenticated -> Ready -> Closing
//
// any state may transition to Failed on an unrecoverable error. Handshaking
// runs the transport-agnostic envelope exchange (protocolVersion, buildId,
// nodeId, publicKey) followed by a Noise-IK key exchange; when that exchange
// completes the Manager passes through Authenticated and moves on to Ready
// at once. A bounded outbound queue applies backpressure
// instead of buffering unboundedly while a peer is slow to drain.
package connection
