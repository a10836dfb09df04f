package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// SigningKeyPair is a node's Ed25519 identity key pair. Its Public half is
// what issuer records, TrustChain.Resolve, and NodeID derivation carry;
// Private is the 32-byte Ed25519 seed, kept only for as long as the node
// needs to sign tokens and challenge responses.
//
// SigningKeyPair is deliberately a distinct curve and a distinct key from
// KeyPair: KeyPair is a Curve25519 key used for Noise-IK transport
// encryption, and an Ed25519 public key cannot be derived from a Curve25519
// one (or vice versa). Sign and Verify only round-trip when both sides of
// the operation go through SigningKeyPair.
type SigningKeyPair struct {
	Public  [32]byte
	Private [32]byte // Ed25519 seed; ed25519.NewKeyFromSeed(Private[:]) recovers the full private key
}

// GenerateSigningKeyPair creates a new random Ed25519 signing key pair.
func GenerateSigningKeyPair() (*SigningKeyPair, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "GenerateSigningKeyPair",
		"package":  "crypto",
	})

	logger.Info("Function entry: generating new Ed25519 signing key pair")

	defer func() {
		logger.Debug("Function exit: GenerateSigningKeyPair")
	}()

	logger.WithFields(logrus.Fields{
		"operation":  "ed25519_generate_key",
		"crypto_lib": "crypto/ed25519",
		"entropy":    "crypto/rand.Reader",
	}).Debug("Generating Ed25519 key pair with secure random entropy")

	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"error":      err.Error(),
			"error_type": "key_generation_failed",
			"operation":  "ed25519.GenerateKey",
		}).Error("Failed to generate Ed25519 signing key pair")
		return nil, err
	}

	keyPair := &SigningKeyPair{}
	copy(keyPair.Public[:], publicKey)
	copy(keyPair.Private[:], privateKey.Seed())

	logger.WithFields(logrus.Fields{
		"public_key_preview": fmt.Sprintf("%x", keyPair.Public[:8]),
		"key_size_bytes":     32,
		"operation":          "key_generation_success",
	}).Info("Ed25519 signing key pair generated successfully")

	return keyPair, nil
}

// FromSigningSeed creates a signing key pair from an existing Ed25519 seed.
func FromSigningSeed(seed [32]byte) (*SigningKeyPair, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "FromSigningSeed",
		"package":  "crypto",
	})

	logger.Info("Function entry: creating signing key pair from existing seed")

	defer func() {
		logger.Debug("Function exit: FromSigningSeed")
	}()

	if isZeroKey(seed) {
		logger.WithFields(logrus.Fields{
			"error":      "invalid seed: all zeros",
			"error_type": "validation_failed",
			"operation":  "seed_validation",
		}).Error("Seed validation failed: seed cannot be all zeros")
		return nil, errors.New("invalid seed: all zeros")
	}

	privateKey := ed25519.NewKeyFromSeed(seed[:])
	publicKey := privateKey.Public().(ed25519.PublicKey)

	keyPair := &SigningKeyPair{Private: seed}
	copy(keyPair.Public[:], publicKey)

	logger.WithFields(logrus.Fields{
		"public_key_preview": fmt.Sprintf("%x", keyPair.Public[:8]),
		"operation":          "key_derivation_success",
	}).Info("Signing key pair derived successfully from seed")

	return keyPair, nil
}
