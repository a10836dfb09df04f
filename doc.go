// Package toxcore is the module's root package. It declares no types or
// functions; the module's permissioned overlay DHT lives in its subpackages:
//
//   - config: the node configuration surface and its defaults
//   - connection: the per-peer connection state machine and handshake
//   - coordinator: BootstrapServer, BridgeNode, HelperAgent and the join flow
//   - crypto: Curve25519 and Ed25519 key pairs, signing and encryption helpers
//   - dht: 160-bit node ids, the XOR metric and the k-bucket RoutingTable
//   - engine: the Kademlia RPCs, iterative lookups, storage and signal relay
//   - net: net.Conn/net.Listener/net.Addr over the engine's signal relay
//   - noise: the Noise-IK handshake
//   - token: membership and invitation tokens
//   - transport: the Frame envelope, version checks and UDP/TCP transports
package toxcore
