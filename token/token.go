// Package token implements the membership and invitation token lifecycle
// that gates admission to a closed overlay network: signing, verification,
// and the chain-of-trust check back to a genesis or bridge-issued root.
package token

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/nodeoverlay/dht/crypto"
	"github.com/nodeoverlay/dht/dht"
)

var (
	// ErrInvalidSignature is returned when a token's signature does not
	// verify against the claimed issuer's public key.
	ErrInvalidSignature = errors.New("token: invalid signature")
	// ErrInvitationExpired is returned by Validate on an expired invitation.
	ErrInvitationExpired = errors.New("token: invitation expired")
	// ErrInvitationAlreadyConsumed is returned when an invitation is
	// redeemed a second time.
	ErrInvitationAlreadyConsumed = errors.New("token: invitation already consumed")
	// ErrInvitationWrongInvitee is returned when a token is presented by a
	// node other than the one it was bound to.
	ErrInvitationWrongInvitee = errors.New("token: invitation bound to a different nodeId")
)

// InvitationTTL bounds how long an unconsumed invitation remains valid.
const InvitationTTL = 24 * time.Hour

// MembershipToken proves its holder's admission to a closed network. It is
// signed by the issuer's private key and chains, transitively, to a genesis
// issuer or a bridge-issued open-network root.
type MembershipToken struct {
	NodeID        dht.NodeID
	IssuerNodeID  dht.NodeID
	IssuedAt      time.Time
	IsGenesis     bool
	IsOpenNetwork bool
	AuthorizedBy  *dht.NodeID
	Signature     crypto.Signature
}

// signingPayload produces the deterministic byte string a MembershipToken
// signs over, excluding the signature itself.
func (t *MembershipToken) signingPayload() []byte {
	h := sha256.New()
	h.Write(t.NodeID[:])
	h.Write(t.IssuerNodeID[:])
	fmt.Fprintf(h, "%d|%t|%t", t.IssuedAt.UnixNano(), t.IsGenesis, t.IsOpenNetwork)
	if t.AuthorizedBy != nil {
		h.Write(t.AuthorizedBy[:])
	}
	return h.Sum(nil)
}

// IssueMembershipToken creates and signs a MembershipToken for nodeID, under
// the given issuer identity. issuerPrivate is the Private field of the
// issuer's crypto.SigningKeyPair, never a transport crypto.KeyPair.
func IssueMembershipToken(nodeID, issuerNodeID dht.NodeID, issuerPrivate [32]byte, isGenesis, isOpenNetwork bool, authorizedBy *dht.NodeID, tp crypto.TimeProvider) (*MembershipToken, error) {
	if tp == nil {
		tp = crypto.DefaultTimeProvider{}
	}
	t := &MembershipToken{
		NodeID:        nodeID,
		IssuerNodeID:  issuerNodeID,
		IssuedAt:      tp.Now(),
		IsGenesis:     isGenesis,
		IsOpenNetwork: isOpenNetwork,
		AuthorizedBy:  authorizedBy,
	}
	sig, err := crypto.Sign(t.signingPayload(), issuerPrivate)
	if err != nil {
		return nil, fmt.Errorf("token: sign membership token: %w", err)
	}
	t.Signature = sig
	return t, nil
}

// VerifySignature checks the token's signature against the issuer's claimed
// Ed25519 signing public key (crypto.SigningKeyPair.Public). It does not
// walk the trust chain; see Validate for that.
func (t *MembershipToken) VerifySignature(issuerPublicKey [32]byte) (bool, error) {
	return crypto.Verify(t.signingPayload(), t.Signature, issuerPublicKey)
}

// TrustChain resolves whether a MembershipToken is transitively reachable to
// a genesis issuer or a bridge-issued open-network root. Resolve is supplied
// by the caller (typically backed by a coordinator's known-issuer set) and
// returns the public key and parent token for a given issuer nodeId, or
// ok=false if the issuer is unknown.
type TrustChain struct {
	Resolve func(issuer dht.NodeID) (publicKey [32]byte, parent *MembershipToken, ok bool)
	MaxDepth int
}

// Validate walks the trust chain: the token's signature must verify against
// its issuer's known public key, and the issuer must itself be a genesis
// token, an open-network root, or recursively valid up to MaxDepth.
func (c TrustChain) Validate(t *MembershipToken) error {
	depth := c.MaxDepth
	if depth <= 0 {
		depth = 32
	}

	cur := t
	for i := 0; i < depth; i++ {
		pk, parent, ok := c.Resolve(cur.IssuerNodeID)
		if !ok {
			return fmt.Errorf("token: unknown issuer %s", cur.IssuerNodeID)
		}
		valid, err := cur.VerifySignature(pk)
		if err != nil {
			return fmt.Errorf("token: verify signature: %w", err)
		}
		if !valid {
			return ErrInvalidSignature
		}
		if cur.IsGenesis || cur.IsOpenNetwork {
			return nil
		}
		if parent == nil {
			return fmt.Errorf("token: chain broken above issuer %s", cur.IssuerNodeID)
		}
		cur = parent
	}
	return fmt.Errorf("token: trust chain exceeds max depth %d", depth)
}

// InvitationToken is a single-use token bound to a specific invitee nodeId.
type InvitationToken struct {
	InviteeNodeID dht.NodeID
	InviterNodeID dht.NodeID
	CreatedAt     time.Time
	Nonce         [16]byte
	Signature     crypto.Signature

	consumed bool
}

func (inv *InvitationToken) signingPayload() []byte {
	h := sha256.New()
	h.Write(inv.InviteeNodeID[:])
	h.Write(inv.InviterNodeID[:])
	fmt.Fprintf(h, "%d", inv.CreatedAt.UnixNano())
	h.Write(inv.Nonce[:])
	return h.Sum(nil)
}

// IssueInvitationToken creates and signs a single-use invitation for
// invitee. inviterPrivate is the Private field of the inviter's
// crypto.SigningKeyPair.
func IssueInvitationToken(invitee, inviter dht.NodeID, inviterPrivate [32]byte, nonce [16]byte, tp crypto.TimeProvider) (*InvitationToken, error) {
	if tp == nil {
		tp = crypto.DefaultTimeProvider{}
	}
	inv := &InvitationToken{
		InviteeNodeID: invitee,
		InviterNodeID: inviter,
		CreatedAt:     tp.Now(),
		Nonce:         nonce,
	}
	sig, err := crypto.Sign(inv.signingPayload(), inviterPrivate)
	if err != nil {
		return nil, fmt.Errorf("token: sign invitation token: %w", err)
	}
	inv.Signature = sig
	return inv, nil
}

// Validate checks the invitation's signature, expiry, single-use state, and
// that it is being redeemed by the bound invitee.
func (inv *InvitationToken) Validate(presenter dht.NodeID, inviterPublicKey [32]byte, tp crypto.TimeProvider) error {
	if tp == nil {
		tp = crypto.DefaultTimeProvider{}
	}
	if inv.consumed {
		return ErrInvitationAlreadyConsumed
	}
	if presenter != inv.InviteeNodeID {
		return ErrInvitationWrongInvitee
	}
	if tp.Now().Sub(inv.CreatedAt) > InvitationTTL {
		return ErrInvitationExpired
	}
	ok, err := crypto.Verify(inv.signingPayload(), inv.Signature, inviterPublicKey)
	if err != nil {
		return fmt.Errorf("token: verify invitation signature: %w", err)
	}
	if !ok {
		return ErrInvalidSignature
	}
	return nil
}

// Consume marks the invitation as redeemed. Subsequent Validate calls fail
// with ErrInvitationAlreadyConsumed.
func (inv *InvitationToken) Consume() {
	inv.consumed = true
}

// Consumed reports whether the invitation has already been redeemed.
func (inv *InvitationToken) Consumed() bool {
	return inv.consumed
}
