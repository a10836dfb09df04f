package coordinator

import (
	"context"
	"crypto/rand"

	"github.com/sirupsen/logrus"

	"github.com/nodeoverlay/dht/crypto"
	"github.com/nodeoverlay/dht/dht"
	"github.com/nodeoverlay/dht/engine"
	"github.com/nodeoverlay/dht/token"
	"github.com/nodeoverlay/dht/transport"
)

// directiveAck is the onboarding directive's acknowledgement payload.
type directiveAck struct {
	OK bool `json:"ok"`
}

// HelperAgent is the onboarding behavior an ordinary joined peer runs when a
// BridgeNode selects it as a helper: it acknowledges the
// bridge's directive, mints a single-use InvitationToken for the invitee,
// and sends it to the invitee as a direct RPC. Delivery is not relayed over
// overlay signaling, so an invitee with no direct connection to this helper
// does not receive it.
type HelperAgent struct {
	eng     *engine.Engine
	keyPair *crypto.SigningKeyPair
	tp      crypto.TimeProvider

	logger *logrus.Entry
}

// NewHelperAgent wires a HelperAgent onto eng, registering the handler for
// incoming onboarding directives. keyPair is the helper's Ed25519 identity
// key; it signs the InvitationTokens this helper issues.
func NewHelperAgent(eng *engine.Engine, keyPair *crypto.SigningKeyPair, tp crypto.TimeProvider) *HelperAgent {
	if tp == nil {
		tp = crypto.DefaultTimeProvider{}
	}
	h := &HelperAgent{
		eng:     eng,
		keyPair: keyPair,
		tp:      tp,
		logger: logrus.WithFields(logrus.Fields{
			"component": "coordinator.HelperAgent",
			"localId":   eng.LocalNodeID().String(),
		}),
	}
	eng.RegisterCustomHandler(RPCCreateInvitationFor, h.handleDirective)
	return h
}

func (h *HelperAgent) handleDirective(frame *transport.Frame, from dht.NodeID) {
	var directive CreateInvitationDirective
	if err := frame.Decode(&directive); err != nil {
		return
	}
	invitee, err := dht.ParseNodeID(directive.InviteeNodeID)
	if err != nil {
		return
	}

	h.eng.Reply(from, frame.ReqID, RPCCreateInvitationFor, directiveAck{OK: true})

	go h.issueAndDeliver(invitee)
}

func (h *HelperAgent) issueAndDeliver(invitee dht.NodeID) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		h.logger.WithError(err).Debug("invitation nonce generation failed")
		return
	}

	inv, err := token.IssueInvitationToken(invitee, h.eng.LocalNodeID(), h.keyPair.Private, nonce, h.tp)
	if err != nil {
		h.logger.WithError(err).Debug("invitation issuance failed")
		return
	}

	msg := SendInvitationMessage{
		TargetPeerID:    invitee.String(),
		InvitationToken: inv,
		InviterNodeID:   h.eng.LocalNodeID().String(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.eng.RequestTimeout())
	defer cancel()
	if _, err := h.eng.SendRPC(ctx, invitee, RPCSendInvitation, msg); err != nil {
		// Fails when the invitee has no direct connection to this helper;
		// no other delivery path is tried.
		h.logger.WithError(err).WithField("invitee", invitee.String()).Debug("invitation delivery failed")
	}
}
