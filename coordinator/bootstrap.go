package coordinator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nodeoverlay/dht/config"
	"github.com/nodeoverlay/dht/crypto"
	"github.com/nodeoverlay/dht/dht"
	"github.com/nodeoverlay/dht/token"
	"github.com/nodeoverlay/dht/transport"
)

// BridgeEndpoint is a configured bridge the BootstrapServer may hand out to
// a genesis peer, or delegate admission to once a genesis is assigned.
type BridgeEndpoint struct {
	NodeID  dht.NodeID
	Address string
}

// BridgeClient is how a BootstrapServer delegates open-network admission to
// a bridge. In production it is backed by an RPC call to a BridgeNode's
// get_onboarding_peer handler; tests and the genesis/closed-network paths
// don't need it at all.
type BridgeClient interface {
	GetOnboardingPeer(ctx context.Context, newNodeID dht.NodeID, metadata []byte) (*OnboardingPeerResponse, error)
}

// StarterPeerSource supplies the peer list a BootstrapServer hands a newly
// admitted closed-network peer.
type StarterPeerSource func(ctx context.Context, maxPeers int) []PeerAddr

type pendingChallenge struct {
	nonce     [16]byte
	issuedAt  time.Time
}

// BootstrapServer is the public-facing admission endpoint. It
// holds no persistent connections to bridges: every delegated query is a
// single connect-auth-request-close round trip authenticated by
// cfg.BridgeAuthToken (verified by the caller wiring BridgeClient, not by
// this type).
type BootstrapServer struct {
	cfg         *config.Config
	localNodeID dht.NodeID
	buildID     string
	bridges     []BridgeEndpoint
	bridge      BridgeClient
	starterPeers StarterPeerSource
	trustChain  token.TrustChain
	tp          crypto.TimeProvider

	mu              sync.Mutex
	genesisAssigned bool
	genesisNodeID   dht.NodeID
	challenges      map[dht.NodeID]pendingChallenge
	dedup           map[string]time.Time

	logger *logrus.Entry
}

// NewBootstrapServer constructs a BootstrapServer. bridge may be nil if the
// network is closed-only with no bridge delegation configured; trustChain
// resolves membership-token issuers for closed-network admission.
func NewBootstrapServer(cfg *config.Config, localNodeID dht.NodeID, buildID string, bridges []BridgeEndpoint, bridge BridgeClient, starterPeers StarterPeerSource, trustChain token.TrustChain, tp crypto.TimeProvider) *BootstrapServer {
	if tp == nil {
		tp = crypto.DefaultTimeProvider{}
	}
	return &BootstrapServer{
		cfg:          cfg,
		localNodeID:  localNodeID,
		buildID:      buildID,
		bridges:      bridges,
		bridge:       bridge,
		starterPeers: starterPeers,
		trustChain:   trustChain,
		tp:           tp,
		challenges:   make(map[dht.NodeID]pendingChallenge),
		dedup:        make(map[string]time.Time),
		logger: logrus.WithFields(logrus.Fields{
			"component": "coordinator.BootstrapServer",
		}),
	}
}

// CheckVersion returns ErrVersionMismatch (with a VersionMismatchNotice the
// caller should send back) unless the client's protocolVersion and buildId
// exactly match the server's.
func (s *BootstrapServer) CheckVersion(req RegisterRequest) (*VersionMismatchNotice, error) {
	if req.ProtocolVersion == transport.ProtocolV1 && req.BuildID == s.buildID {
		return nil, nil
	}
	return &VersionMismatchNotice{
		ServerVersion: transport.ProtocolV1,
		ServerBuildID: s.buildID,
		ClientVersion: req.ProtocolVersion,
		ClientBuildID: req.BuildID,
	}, ErrVersionMismatch
}

// IssueChallenge generates and records a random nonce for a client
// presenting a publicKey.
func (s *BootstrapServer) IssueChallenge(nodeID dht.NodeID) (AuthChallenge, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return AuthChallenge{}, fmt.Errorf("coordinator: generate challenge nonce: %w", err)
	}

	s.mu.Lock()
	s.challenges[nodeID] = pendingChallenge{nonce: nonce, issuedAt: s.tp.Now()}
	s.mu.Unlock()

	return AuthChallenge{Nonce: hex.EncodeToString(nonce[:]), Timestamp: s.tp.Now().Unix()}, nil
}

// VerifyChallengeResponse checks that nodeId = SHA-256(publicKey) and that
// signature verifies over the previously issued nonce. publicKey and
// signature must come from the client's crypto.SigningKeyPair, the same
// Ed25519 key NodeID was derived from — a Curve25519 transport key cannot
// satisfy this check, since Verify only succeeds for a matching Ed25519
// key pair. An id that does not match publicKey, or a signature that does
// not verify, gives ErrIdentityMismatch; a node with no pending challenge
// gives ErrAuthenticationFailed; an error from Verify itself is returned
// wrapped.
func (s *BootstrapServer) VerifyChallengeResponse(nodeID dht.NodeID, publicKey [32]byte, signature crypto.Signature) error {
	if nodeID != dht.KeyedNodeID(publicKey) {
		return ErrIdentityMismatch
	}

	s.mu.Lock()
	pending, ok := s.challenges[nodeID]
	if ok {
		delete(s.challenges, nodeID)
	}
	s.mu.Unlock()
	if !ok {
		return ErrAuthenticationFailed
	}

	valid, err := crypto.Verify(pending.nonce[:], signature, publicKey)
	if err != nil {
		return fmt.Errorf("coordinator: verify challenge signature: %w", err)
	}
	if !valid {
		return ErrIdentityMismatch
	}
	return nil
}

// CheckDedup reports whether (nodeId, reqId) has already been answered
// within cfg.DedupRetention, guaranteeing at-most-one response per request.
// A true result means the caller must not respond again.
func (s *BootstrapServer) CheckDedup(nodeID dht.NodeID, reqID string) bool {
	key := dedupKey(nodeID, reqID)
	now := s.tp.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepDedupLocked(now)

	if _, seen := s.dedup[key]; seen {
		return true
	}
	s.dedup[key] = now
	return false
}

func (s *BootstrapServer) sweepDedupLocked(now time.Time) {
	for key, at := range s.dedup {
		if now.Sub(at) > s.cfg.DedupRetention {
			delete(s.dedup, key)
		}
	}
}

func dedupKey(nodeID dht.NodeID, reqID string) string {
	return nodeID.String() + "|" + reqID
}

// Admit runs the admission branch: genesis assignment, bridge
// delegation, or closed-network token validation, in that priority order.
// issuerPrivate is the Private field of this server's (or its delegate's)
// crypto.SigningKeyPair, used to sign any MembershipToken issued during
// closed-network admission.
func (s *BootstrapServer) Admit(ctx context.Context, nodeID dht.NodeID, metadata []byte, membership *token.MembershipToken, invitation *token.InvitationToken, issuerPrivate [32]byte) (*GetPeersOrGenesisResponse, error) {
	if resp, ok := s.tryAssignGenesis(nodeID); ok {
		return resp, nil
	}

	if s.cfg.OpenNetwork {
		if s.bridge == nil {
			return nil, ErrNoHelperAvailable
		}
		onboarding, err := s.bridge.GetOnboardingPeer(ctx, nodeID, metadata)
		if err != nil {
			return nil, err
		}
		return &GetPeersOrGenesisResponse{
			MembershipToken: onboarding.MembershipToken,
			Status:          onboarding.Status,
		}, nil
	}

	return s.admitClosedNetwork(nodeID, membership, invitation, issuerPrivate)
}

func (s *BootstrapServer) tryAssignGenesis(nodeID dht.NodeID) (*GetPeersOrGenesisResponse, bool) {
	if !s.cfg.CreateNewDHT {
		return nil, false
	}

	s.mu.Lock()
	if s.genesisAssigned {
		s.mu.Unlock()
		return nil, false
	}
	s.genesisAssigned = true
	s.genesisNodeID = nodeID
	s.mu.Unlock()

	peers := make([]PeerAddr, 0, len(s.bridges))
	for _, b := range s.bridges {
		peers = append(peers, PeerAddr{NodeID: b.NodeID.String(), Address: b.Address})
	}

	s.logger.WithField("nodeId", nodeID.String()).Info("assigned genesis peer")
	return &GetPeersOrGenesisResponse{Peers: peers, IsGenesis: true, Status: "genesis"}, true
}

func (s *BootstrapServer) admitClosedNetwork(nodeID dht.NodeID, membership *token.MembershipToken, invitation *token.InvitationToken, issuerPrivate [32]byte) (*GetPeersOrGenesisResponse, error) {
	switch {
	case invitation != nil:
		if err := invitation.Validate(nodeID, s.invitationIssuerKey(invitation), s.tp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvitationExpiredOrInvalid, err)
		}
		invitation.Consume()
		issued, err := token.IssueMembershipToken(nodeID, s.localNodeID, issuerPrivate, false, false, &invitation.InviterNodeID, s.tp)
		if err != nil {
			return nil, err
		}
		return s.peerListResponse(issued), nil

	case membership != nil:
		if err := s.trustChain.Validate(membership); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMembershipToken, err)
		}
		return s.peerListResponse(membership), nil

	default:
		return nil, ErrMembershipRequired
	}
}

// invitationIssuerKey resolves the inviter's public key via the trust
// chain's Resolve hook, since InvitationToken itself carries only the
// inviter's nodeId.
func (s *BootstrapServer) invitationIssuerKey(inv *token.InvitationToken) [32]byte {
	if s.trustChain.Resolve == nil {
		return [32]byte{}
	}
	pk, _, _ := s.trustChain.Resolve(inv.InviterNodeID)
	return pk
}

func (s *BootstrapServer) peerListResponse(membership *token.MembershipToken) *GetPeersOrGenesisResponse {
	var peers []PeerAddr
	if s.starterPeers != nil {
		peers = s.starterPeers(context.Background(), s.cfg.K)
	}
	return &GetPeersOrGenesisResponse{Peers: peers, MembershipToken: membership, Status: "admitted"}
}

// Deregister advisedly evicts a session's pending state; the bootstrap
// server MUST NOT rely on a client ever calling this — announce_independent
// is advisory, not mandatory.
func (s *BootstrapServer) Deregister(nodeID dht.NodeID) {
	s.mu.Lock()
	delete(s.challenges, nodeID)
	s.mu.Unlock()
}
