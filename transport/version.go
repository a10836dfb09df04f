package transport

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion identifies a wire-compatible revision of the overlay
// protocol. A node advertises the versions it understands during the
// handshake; connection.Manager rejects peers with no overlapping version.
type ProtocolVersion uint8

const (
	// ProtocolV1 is the first released wire version: JSON frames, a Noise-IK
	// handshake, Ed25519 membership tokens.
	ProtocolV1 ProtocolVersion = 1
)

// String returns the human-readable name of the protocol version.
func (v ProtocolVersion) String() string {
	switch v {
	case ProtocolV1:
		return "v1"
	default:
		return fmt.Sprintf("unknown(%d)", v)
	}
}

// HandshakeEnvelope is the transport-agnostic handshake payload both sides
// exchange before a connection is considered authenticated. Every
// concrete transport marshals this the same way: as a frame body.
type HandshakeEnvelope struct {
	ProtocolVersion ProtocolVersion `json:"protocolVersion"`
	BuildID         string          `json:"buildId"`
	NodeID          string          `json:"nodeId"`
	PublicKey       string          `json:"publicKey,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
}

// FrameTypeHandshake is the Frame.Type used for handshake envelopes.
const FrameTypeHandshake = "handshake"

// MismatchCode names the close reason sent back when a handshake fails
// compatibility checks.
type MismatchCode string

const (
	// MismatchVersion means the peers' protocolVersion or buildId differ;
	// the same code covers both cases.
	MismatchVersion MismatchCode = "VERSION_MISMATCH"
	// MismatchIdentity means a peer's claimed nodeId doesn't derive from
	// its advertised publicKey.
	MismatchIdentity MismatchCode = "IDENTITY_MISMATCH"
)

// ErrNoCommonVersion is returned by NegotiateVersion when two version sets
// share no member.
var ErrNoCommonVersion = errors.New("transport: no common protocol version")

// NegotiateVersion picks the highest protocol version present in both
// local's and remote's supported sets. Both sides run this independently and
// arrive at the same answer since the comparison is commutative.
func NegotiateVersion(local, remote []ProtocolVersion) (ProtocolVersion, error) {
	remoteSet := make(map[ProtocolVersion]bool, len(remote))
	for _, v := range remote {
		remoteSet[v] = true
	}

	var best ProtocolVersion
	found := false
	for _, v := range local {
		if remoteSet[v] && (!found || v > best) {
			best = v
			found = true
		}
	}

	if !found {
		return 0, ErrNoCommonVersion
	}
	return best, nil
}

// CheckHandshake validates an incoming HandshakeEnvelope against this node's
// own version/build, returning the mismatch code to close with, or ""  if
// the handshake is acceptable.
func CheckHandshake(local HandshakeEnvelope, remote HandshakeEnvelope) MismatchCode {
	if local.ProtocolVersion != remote.ProtocolVersion {
		return MismatchVersion
	}
	if local.BuildID != remote.BuildID {
		return MismatchVersion
	}
	return ""
}
