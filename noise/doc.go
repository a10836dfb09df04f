// Package noise provides Noise Protocol Framework implementations for secure
// cryptographic handshakes between overlay peers.
//
// This package implements the IK handshake pattern using the formally verified
// flynn/noise library with ChaCha20-Poly1305 encryption, SHA256 hashing, and
// Curve25519 key exchange. IK is the only pattern wired to a caller: every
// connection.Manager learns its peer's static key from the peer's handshake
// envelope before the Noise exchange starts, so patterns that trade round
// trips for not needing prior key knowledge (XX, and the not-yet-supported
// XK/NK/KK) have no use here.
//
// # IK Pattern (Initiator with Knowledge)
//
// Use IK when the initiator already knows the responder's static public key.
// This is the default pattern for connection.Manager since a peer's public
// key arrives in its handshake envelope before the Noise exchange begins.
//
// Security properties:
//   - Mutual authentication: Both parties verify each other's identity
//   - Forward secrecy: Compromise of long-term keys doesn't expose past sessions
//   - Key Compromise Impersonation (KCI) resistance: Compromised key cannot be
//     used to impersonate others to the key owner
//   - Identity hiding: Initiator's identity protected from passive observers
//
// Message flow (two messages, one round trip):
//
//	Initiator                              Responder
//	─────────                              ─────────
//	-> e, es, s, ss  (ephemeral, static)
//	                                       <- e, ee, se  (ephemeral)
//	[session established]
//
// Example usage:
//
//	// Initiator (knows peer's public key)
//	ik, err := noise.NewIKHandshake(myPrivKey, peerPubKey, noise.Initiator)
//	if err != nil {
//	    return err
//	}
//	msg, _, err := ik.WriteMessage(nil, nil)  // Create initial message
//	// Send msg to peer...
//	// Receive response...
//	payload, complete, err := ik.ReadMessage(response)
//	if complete {
//	    send, recv, _ := ik.GetCipherStates()
//	    // Use send/recv for encrypted communication
//	}
//
//	// Responder (doesn't need peer's key initially)
//	ik, err := noise.NewIKHandshake(myPrivKey, nil, noise.Responder)
//	response, _, err := ik.WriteMessage(nil, receivedMsg)  // Process and respond
//	// Get peer's key after handshake
//	peerKey, _ := ik.GetRemoteStaticKey()
//
// # Security Considerations
//
// Replay Protection: Each IKHandshake includes a unique 32-byte nonce accessible
// via GetNonce(). Callers should track used nonces to prevent replay attacks.
//
// Timestamp Validation: IKHandshake includes a Unix timestamp via GetTimestamp().
// The package does not check it itself. Recommended limits for applications
// that validate handshake freshness:
//   - Maximum age: 5 minutes
//   - Maximum future drift: 1 minute
//
// Key Verification: After successful handshake, verify the peer's identity using
// GetRemoteStaticKey(). Compare against known trusted keys or implement a trust-on-
// first-use (TOFU) model.
//
// Secure Memory: Private key material is automatically wiped from memory using
// crypto.ZeroBytes() after key derivation to minimize exposure window.
//
// # Cipher Suite
//
// All handshakes use:
//   - DH: Curve25519 (X25519 key exchange)
//   - Cipher: ChaCha20-Poly1305 (AEAD encryption)
//   - Hash: SHA256 (key derivation and authentication)
//
// This suite provides 128-bit security level and is resistant to timing attacks.
//
// # Thread Safety
//
// IKHandshake has no internal locking; its methods, getters included, are
// not safe for concurrent use on one instance. Separate instances share no
// state.
//
// The resulting CipherStates from GetCipherStates() are NOT thread-safe;
// concurrent encrypt/decrypt operations require external synchronization.
//
// # Error Handling
//
// Common errors returned by handshake operations:
//   - ErrHandshakeNotComplete: Operation requires completed handshake
//   - ErrHandshakeComplete: Handshake already finished, cannot process more messages
//
// ErrInvalidMessage is declared but no method returns it.
//
// # Integration
//
// connection.Manager drives an IKHandshake across the Handshaking state:
// it carries each WriteMessage/ReadMessage result inside a "noise_msg"
// transport.Frame and moves the connection on once IsComplete reports true.
// It does not fetch or apply the resulting cipher states.
package noise
