package coordinator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nodeoverlay/dht/config"
	"github.com/nodeoverlay/dht/crypto"
	"github.com/nodeoverlay/dht/dht"
	"github.com/nodeoverlay/dht/engine"
	"github.com/nodeoverlay/dht/token"
	"github.com/nodeoverlay/dht/transport"
)

// candidate is a scored helper candidate; the package's own tests assert on
// scoring through it without re-deriving it.
type candidate struct {
	peer  *dht.PeerRecord
	score float64
}

// BridgeNode is a passive DHT observer: it joins routing (so its
// presence helps other peers' find_node fan-out) but never originates
// application store/get traffic and is itself ineligible to be selected as
// an onboarding helper. Its sole active role is selecting and dispatching
// onboarding helpers on a BootstrapServer's behalf.
type BridgeNode struct {
	cfg     *config.Config
	eng     *engine.Engine
	keyPair *crypto.SigningKeyPair
	tp      crypto.TimeProvider

	logger *logrus.Entry
}

// NewBridgeNode constructs a BridgeNode bound to eng, which must already be
// joined to the DHT (its RoutingTable populated via the normal connection
// flow). keyPair is the bridge's Ed25519 identity key; it signs the
// MembershipTokens this bridge issues.
func NewBridgeNode(cfg *config.Config, eng *engine.Engine, keyPair *crypto.SigningKeyPair, tp crypto.TimeProvider) *BridgeNode {
	if tp == nil {
		tp = crypto.DefaultTimeProvider{}
	}
	b := &BridgeNode{
		cfg:     cfg,
		eng:     eng,
		keyPair: keyPair,
		tp:      tp,
		logger: logrus.WithFields(logrus.Fields{
			"component": "coordinator.BridgeNode",
			"localId":   eng.LocalNodeID().String(),
		}),
	}
	eng.RegisterCustomHandler(RPCGetOnboardingPeer, b.handleGetOnboardingPeer)
	return b
}

// candidateSource reports the peer records a helper search should consider
// and, for each, the liveness facts the scoring/disqualification rules need
// — abstracted behind an interface so selection logic is testable without a
// live connected Engine.
type candidateSource interface {
	isConnected(id dht.NodeID) bool
	isTabVisible(p *dht.PeerRecord) (visible bool, isBrowser bool)
	uptime(p *dht.PeerRecord) time.Duration
	rttMillis(p *dht.PeerRecord) int64
}

// engineCandidateSource is the production candidateSource, backed by the
// Engine this bridge is wired to.
type engineCandidateSource struct {
	eng *engine.Engine
	now func() time.Time
}

func (s *engineCandidateSource) isConnected(id dht.NodeID) bool {
	return s.eng.Connected(id)
}

func (s *engineCandidateSource) isTabVisible(p *dht.PeerRecord) (bool, bool) {
	if p.Metadata.Browser == nil {
		return true, false
	}
	return p.Metadata.Browser.TabVisible, true
}

func (s *engineCandidateSource) uptime(p *dht.PeerRecord) time.Duration {
	var start time.Time
	switch {
	case p.Metadata.Browser != nil:
		start = p.Metadata.Browser.StartTime
	case p.Metadata.Server != nil:
		start = p.Metadata.Server.StartTime
	case p.Metadata.Bridge != nil:
		start = p.Metadata.Bridge.StartTime
	default:
		return 0
	}
	if start.IsZero() {
		return 0
	}
	return s.now().Sub(start)
}

func (s *engineCandidateSource) rttMillis(p *dht.PeerRecord) int64 {
	return p.RTTMillis
}

// GetOnboardingPeer runs the helper-selection algorithm and returns the
// bridge-issued MembershipToken once a helper has acknowledged the
// onboarding directive.
func (b *BridgeNode) GetOnboardingPeer(ctx context.Context, newNodeID dht.NodeID, newNodeMetadata []byte) (*OnboardingPeerResponse, error) {
	target, err := dht.RandomNodeID()
	if err != nil {
		return nil, fmt.Errorf("coordinator: generate search target: %w", err)
	}

	findCtx, cancel := context.WithTimeout(ctx, b.cfg.OnboardingFindNodeDeadline)
	defer cancel()
	// The local routing table may still be sparse; LookupNode seeds from
	// whatever it already has rather than requiring a full table first,
	// which is an emergency bypass for a still-sparse table.
	found := b.eng.LookupNode(findCtx, target)

	src := &engineCandidateSource{eng: b.eng, now: b.tp.Now}
	eligible := filterCandidates(found, newNodeID, src)
	scored := scoreCandidates(eligible, src)
	top := topCandidates(scored, b.cfg.HelperCandidatesN)

	for _, c := range top {
		dispatchCtx, dispatchCancel := context.WithTimeout(ctx, b.cfg.PerCandidateDeadline)
		acked := b.dispatchDirective(dispatchCtx, c.peer.NodeID, newNodeID, newNodeMetadata)
		dispatchCancel()
		if !acked {
			continue
		}

		membership, err := token.IssueMembershipToken(newNodeID, b.eng.LocalNodeID(), b.keyPair.Private, false, true, &c.peer.NodeID, b.tp)
		if err != nil {
			return nil, err
		}
		b.logger.WithFields(logrus.Fields{
			"helper": c.peer.NodeID.String(),
			"invitee": newNodeID.String(),
		}).Info("onboarding helper assigned")
		return &OnboardingPeerResponse{
			HelperNodeID:    c.peer.NodeID.String(),
			MembershipToken: membership,
			Status:          "invitation_sent",
		}, nil
	}

	return nil, ErrNoHelperAvailable
}

func (b *BridgeNode) dispatchDirective(ctx context.Context, helper, invitee dht.NodeID, metadata []byte) bool {
	directive := CreateInvitationDirective{InviteeNodeID: invitee.String(), InviteeMetadata: metadata}
	_, err := b.eng.SendRPC(ctx, helper, RPCCreateInvitationFor, directive)
	if err != nil {
		b.logger.WithError(err).WithField("helper", helper.String()).Debug("helper dispatch failed")
		return false
	}
	return true
}

func (b *BridgeNode) handleGetOnboardingPeer(frame *transport.Frame, from dht.NodeID) {
	var req GetOnboardingPeerRequest
	if err := frame.Decode(&req); err != nil {
		return
	}
	newNodeID, err := dht.ParseNodeID(req.NewNodeID)
	if err != nil {
		return
	}
	resp, err := b.GetOnboardingPeer(context.Background(), newNodeID, req.NewNodeMetadata)
	if err != nil {
		b.eng.Reply(from, frame.ReqID, RPCOnboardingPeerResult, OnboardingPeerResponse{Status: "no_helper_available"})
		return
	}
	b.eng.Reply(from, frame.ReqID, RPCOnboardingPeerResult, resp)
}

// filterCandidates drops bridges, the invitee, disconnected peers, and
// hidden/new peers. It makes no check for the local node itself.
func filterCandidates(found []*dht.PeerRecord, invitee dht.NodeID, src candidateSource) []*dht.PeerRecord {
	out := make([]*dht.PeerRecord, 0, len(found))
	for _, p := range found {
		if p.NodeID == invitee {
			continue
		}
		if p.NodeType == dht.NodeTypeBridge {
			continue
		}
		if !src.isConnected(p.NodeID) {
			continue
		}
		if visible, isBrowser := src.isTabVisible(p); isBrowser && !visible {
			continue
		}
		if src.uptime(p) < 30*time.Second {
			continue
		}
		out = append(out, p)
	}
	return out
}

// scoreCandidates applies the scoring formula:
// score = min(uptimeMinutes, 60) - min(rttMs/100, 50) + (nodeType==server ? 5 : 0).
func scoreCandidates(peers []*dht.PeerRecord, src candidateSource) []candidate {
	out := make([]candidate, 0, len(peers))
	for _, p := range peers {
		uptimeMinutes := src.uptime(p).Minutes()
		if uptimeMinutes > 60 {
			uptimeMinutes = 60
		}
		rttPenalty := float64(src.rttMillis(p)) / 100
		if rttPenalty > 50 {
			rttPenalty = 50
		}
		score := uptimeMinutes - rttPenalty
		if p.NodeType == dht.NodeTypeServer {
			score += 5
		}
		out = append(out, candidate{peer: p, score: score})
	}
	return out
}

func topCandidates(scored []candidate, n int) []candidate {
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > n {
		return scored[:n]
	}
	return scored
}
