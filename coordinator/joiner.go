package coordinator

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nodeoverlay/dht/dht"
	"github.com/nodeoverlay/dht/engine"
	"github.com/nodeoverlay/dht/token"
	"github.com/nodeoverlay/dht/transport"
)

// Joiner drives one peer's own JoinSession through the invitee side of
// onboarding: it waits for a helper-delivered InvitationToken and, once
// admitted, runs the find_node(self) lookup that populates its routing
// table.
type Joiner struct {
	eng     *engine.Engine
	session *JoinSession

	invitationCh chan *token.InvitationToken
	logger       *logrus.Entry
}

// NewJoiner wires a Joiner onto eng and positions its session at JoinStart.
func NewJoiner(eng *engine.Engine) *Joiner {
	j := &Joiner{
		eng:          eng,
		session:      NewJoinSession(),
		invitationCh: make(chan *token.InvitationToken, 1),
		logger: logrus.WithFields(logrus.Fields{
			"component": "coordinator.Joiner",
			"localId":   eng.LocalNodeID().String(),
		}),
	}
	eng.RegisterCustomHandler(RPCSendInvitation, j.handleInvitation)
	return j
}

// Session returns the underlying JoinSession for state inspection.
func (j *Joiner) Session() *JoinSession { return j.session }

func (j *Joiner) handleInvitation(frame *transport.Frame, from dht.NodeID) {
	var msg SendInvitationMessage
	if err := frame.Decode(&msg); err != nil {
		return
	}
	if msg.TargetPeerID != j.eng.LocalNodeID().String() {
		return
	}

	if err := j.session.Advance(JoinInvitationReceived); err != nil {
		j.logger.WithError(err).Debug("invitation arrived out of sequence")
		return
	}

	j.eng.Reply(from, frame.ReqID, RPCSendInvitation, directiveAck{OK: true})

	select {
	case j.invitationCh <- msg.InvitationToken:
	default:
	}
}

// WaitForInvitation blocks until a helper delivers an invitation or ctx is
// done.
func (j *Joiner) WaitForInvitation(ctx context.Context) (*token.InvitationToken, error) {
	select {
	case inv := <-j.invitationCh:
		return inv, nil
	case <-ctx.Done():
		_ = j.session.Advance(JoinFailedTimeout)
		return nil, ErrJoinTimeout
	}
}

// JoinDHT runs the find_node(self) lookup that populates this node's
// routing table from the admitted starter peers, then transitions the
// session through DHTJoined to Ready.
func (j *Joiner) JoinDHT(ctx context.Context) error {
	if err := j.session.Advance(JoinDHTJoined); err != nil {
		return err
	}
	j.eng.LookupNode(ctx, j.eng.LocalNodeID())
	if err := j.session.Advance(JoinReady); err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}
	return nil
}
