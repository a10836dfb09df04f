package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelperAgentAcksValidDirectivePromptly(t *testing.T) {
	cfg := integrationConfig(t)
	helper := newWiredPeer(t, cfg)
	invitee := newWiredPeer(t, cfg)
	defer helper.tr.Close()
	defer invitee.tr.Close()

	connectWiredPeers(t, cfg, helper, invitee)

	NewHelperAgent(helper.engine, helper.signingKeys, nil)

	directive := CreateInvitationDirective{InviteeNodeID: invitee.nodeID.String()}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	resp, err := invitee.engine.SendRPC(ctx, helper.nodeID, RPCCreateInvitationFor, directive)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.NotNil(t, resp)
	var ack directiveAck
	require.NoError(t, resp.Decode(&ack))
	assert.True(t, ack.OK)
	// The ack must return well before the invitation itself has to be
	// minted and delivered.
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestHelperAgentDropsMalformedInviteeID(t *testing.T) {
	cfg := integrationConfig(t)
	helper := newWiredPeer(t, cfg)
	invitee := newWiredPeer(t, cfg)
	defer helper.tr.Close()
	defer invitee.tr.Close()

	connectWiredPeers(t, cfg, helper, invitee)

	NewHelperAgent(helper.engine, helper.signingKeys, nil)

	directive := CreateInvitationDirective{InviteeNodeID: "not-a-valid-nodeid"}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := invitee.engine.SendRPC(ctx, helper.nodeID, RPCCreateInvitationFor, directive)
	assert.Error(t, err)
}
