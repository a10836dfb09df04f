package coordinator

import (
	"encoding/json"

	"github.com/nodeoverlay/dht/token"
	"github.com/nodeoverlay/dht/transport"
)

// Frame type constants for the onboarding protocol.
const (
	RPCRegister              = "register"
	RPCAuthChallenge         = "auth_challenge"
	RPCAuthResponse          = "auth_response"
	RPCAuthSuccess           = "auth_success"
	RPCAuthFailure           = "auth_failure"
	RPCVersionMismatch       = "version_mismatch"
	RPCGetPeersOrGenesis     = "get_peers_or_genesis"
	RPCSendInvitation        = "send_invitation"
	RPCInvitationReceived    = "invitation_received"
	RPCInvitationAccepted    = "invitation_accepted"
	RPCBootstrapAuth         = "bootstrap_auth"
	RPCGetOnboardingPeer     = "get_onboarding_peer"
	RPCOnboardingPeerResult  = "onboarding_peer_response"
	RPCAnnounceIndependent   = "announce_independent"
	RPCCreateInvitationFor   = "create_invitation_for_peer"
	RPCValidateReconnection  = "validate_reconnection"
	RPCConnectGenesisPeer    = "connect_genesis_peer"
)

// RegisterRequest is the client's initial session-open message to a
// BootstrapServer.
type RegisterRequest struct {
	NodeID          string                 `json:"nodeId"`
	ProtocolVersion transport.ProtocolVersion `json:"protocolVersion"`
	BuildID         string                 `json:"buildId"`
	Metadata        json.RawMessage        `json:"metadata,omitempty"`
	PublicKey       string                 `json:"publicKey,omitempty"`
}

// AuthChallenge carries the random nonce a BootstrapServer issues a client
// presenting a publicKey.
type AuthChallenge struct {
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
}

// AuthResponse carries the client's signature over an AuthChallenge's nonce.
type AuthResponse struct {
	Signature string `json:"signature"`
}

// VersionMismatchNotice is sent to a client whose protocolVersion/buildId
// doesn't match the server's.
type VersionMismatchNotice struct {
	ServerVersion transport.ProtocolVersion `json:"serverVersion"`
	ServerBuildID string                    `json:"serverBuildId"`
	ClientVersion transport.ProtocolVersion `json:"clientVersion"`
	ClientBuildID string                    `json:"clientBuildId"`
}

// PeerAddr is a minimal peer reference returned in starter-peer lists.
type PeerAddr struct {
	NodeID  string `json:"nodeId"`
	Address string `json:"address"`
}

// GetPeersOrGenesisRequest requests admission and a starter peer set.
type GetPeersOrGenesisRequest struct {
	MaxPeers int             `json:"maxPeers"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// GetPeersOrGenesisResponse is the BootstrapServer's admission decision.
type GetPeersOrGenesisResponse struct {
	Peers           []PeerAddr             `json:"peers"`
	IsGenesis       bool                   `json:"isGenesis"`
	MembershipToken *token.MembershipToken `json:"membershipToken,omitempty"`
	Status          string                 `json:"status,omitempty"`
}

// SendInvitationMessage carries an InvitationToken from a helper to its
// invitee as a direct RPC; it is not relayed over overlay signaling.
type SendInvitationMessage struct {
	TargetPeerID    string               `json:"targetPeerId"`
	InvitationToken *token.InvitationToken `json:"invitationToken"`
	InviterNodeID   string               `json:"inviterNodeId"`
}

// BootstrapAuthRequest is a bridge's pre-shared-token authentication to a
// BootstrapServer.
type BootstrapAuthRequest struct {
	AuthToken       string `json:"authToken"`
	BootstrapServer string `json:"bootstrapServer"`
}

// GetOnboardingPeerRequest asks a bridge to select and dispatch a helper for
// a newly registering node.
type GetOnboardingPeerRequest struct {
	NewNodeID       string          `json:"newNodeId"`
	NewNodeMetadata json.RawMessage `json:"newNodeMetadata,omitempty"`
}

// OnboardingPeerResponse is a bridge's helper-selection result.
type OnboardingPeerResponse struct {
	HelperNodeID    string                 `json:"helperNodeId"`
	MembershipToken *token.MembershipToken `json:"membershipToken,omitempty"`
	Status          string                 `json:"status"`
}

// CreateInvitationDirective is the bridge-to-helper directive, sent as a
// direct RPC to the helper; the helper acknowledges it and then
// independently issues and delivers an InvitationToken to the invitee.
type CreateInvitationDirective struct {
	InviteeNodeID   string          `json:"inviteeNodeId"`
	InviteeMetadata json.RawMessage `json:"inviteeMetadata,omitempty"`
}

// AnnounceIndependentMessage informs a BootstrapServer it may drop the
// caller's pending session. Advisory only; the server must not depend on
// ever receiving it.
type AnnounceIndependentMessage struct {
	NodeID string `json:"nodeId"`
}
