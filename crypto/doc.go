// Package crypto implements the cryptographic primitives shared by the overlay
// DHT: NaCl key pairs and authenticated encryption, Ed25519 signatures for
// membership and invitation tokens, Diffie-Hellman shared-secret derivation,
// and constant-time secure memory wiping.
//
// # Key pairs
//
//	keys, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// KeyPair is a Curve25519 key used for Noise-IK transport encryption.
// A node also carries a separate SigningKeyPair, an Ed25519 key whose
// public half is what package dht derives NodeID from and what token
// issuers publish for verification. The two key pairs are never
// interchangeable: an Ed25519 public key cannot be derived from a
// Curve25519 one.
//
// # Signatures
//
// MembershipToken and InvitationToken (package token) are signed with Ed25519,
// using a node's SigningKeyPair rather than its transport KeyPair:
//
//	signingKeys, _ := crypto.GenerateSigningKeyPair()
//	sig, _ := crypto.Sign(message, signingKeys.Private)
//	ok, _ := crypto.Verify(message, sig, signingKeys.Public)
//
// # Encryption
//
//	nonce, _ := crypto.GenerateNonce()
//	ciphertext, _ := crypto.Encrypt(plaintext, nonce, peerPublicKey, myPrivateKey)
//	plaintext, _ := crypto.Decrypt(ciphertext, nonce, peerPublicKey, myPrivateKey)
//
// DeriveSharedSecret performs the underlying X25519 Diffie-Hellman agreement
// directly when a caller needs the raw shared secret rather than a sealed box
// (for example, to key a symmetric stream after a handshake).
//
// # Secure memory
//
// Sensitive byte slices should be wiped once no longer needed:
//
//	defer crypto.ZeroBytes(sensitive)
//	defer crypto.WipeKeyPair(keyPair)
package crypto
