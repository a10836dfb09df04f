package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeoverlay/dht/dht"
)

func TestJoinerWaitForInvitationTimesOut(t *testing.T) {
	cfg := integrationConfig(t)
	peer := newWiredPeer(t, cfg)
	defer peer.tr.Close()

	joiner := NewJoiner(peer.engine)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := joiner.WaitForInvitation(ctx)
	assert.ErrorIs(t, err, ErrJoinTimeout)
	assert.Equal(t, JoinFailedTimeout, joiner.Session().State())
}

func TestJoinerIgnoresInvitationForDifferentTarget(t *testing.T) {
	cfg := integrationConfig(t)
	a := newWiredPeer(t, cfg)
	b := newWiredPeer(t, cfg)
	defer a.tr.Close()
	defer b.tr.Close()

	connectWiredPeers(t, cfg, a, b)

	joiner := NewJoiner(b.engine)

	someoneElse, err := dht.RandomNodeID()
	require.NoError(t, err)

	msg := SendInvitationMessage{TargetPeerID: someoneElse.String()}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, sendErr := a.engine.SendRPC(ctx, b.nodeID, RPCSendInvitation, msg)
	// No ack is sent back because handleInvitation drops the message before
	// replying, so this resolves only once ctx expires.
	assert.Error(t, sendErr)

	assert.Equal(t, JoinStart, joiner.Session().State())
}

func TestJoinerJoinDHTTransitionsToReady(t *testing.T) {
	cfg := integrationConfig(t)
	a := newWiredPeer(t, cfg)
	b := newWiredPeer(t, cfg)
	defer a.tr.Close()
	defer b.tr.Close()

	connectWiredPeers(t, cfg, a, b)

	joiner := NewJoiner(a.engine)
	require.NoError(t, joiner.Session().Advance(JoinContactingBootstrap))
	require.NoError(t, joiner.Session().Advance(JoinChallenged))
	require.NoError(t, joiner.Session().Advance(JoinChallengeAnswered))
	require.NoError(t, joiner.Session().Advance(JoinAwaitingHelperAssignment))
	require.NoError(t, joiner.Session().Advance(JoinInvitationReceived))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, joiner.JoinDHT(ctx))
	assert.Equal(t, JoinReady, joiner.Session().State())
}
