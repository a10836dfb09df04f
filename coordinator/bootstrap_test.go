package coordinator

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeoverlay/dht/config"
	"github.com/nodeoverlay/dht/crypto"
	"github.com/nodeoverlay/dht/dht"
	"github.com/nodeoverlay/dht/token"
	"github.com/nodeoverlay/dht/transport"
)

type fixedTimeProvider struct{ now time.Time }

func (f fixedTimeProvider) Now() time.Time                  { return f.now }
func (f fixedTimeProvider) Since(t time.Time) time.Duration { return f.now.Sub(t) }

type fakeBridgeClient struct {
	resp *OnboardingPeerResponse
	err  error
}

func (f *fakeBridgeClient) GetOnboardingPeer(ctx context.Context, newNodeID dht.NodeID, metadata []byte) (*OnboardingPeerResponse, error) {
	return f.resp, f.err
}

func testConfig(t *testing.T, opts ...config.Option) *config.Config {
	t.Helper()
	cfg, err := config.New(append([]config.Option{config.WithOpenNetwork(true)}, opts...)...)
	require.NoError(t, err)
	return cfg
}

func newTestBootstrapServer(t *testing.T, cfg *config.Config, bridge BridgeClient, chain token.TrustChain) (*BootstrapServer, dht.NodeID, *crypto.SigningKeyPair) {
	t.Helper()
	kp, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)
	localID, err := dht.RandomNodeID()
	require.NoError(t, err)

	starterPeers := func(ctx context.Context, max int) []PeerAddr { return nil }
	tp := fixedTimeProvider{now: time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)}
	s := NewBootstrapServer(cfg, localID, "build-1", nil, bridge, starterPeers, chain, tp)
	return s, localID, kp
}

func TestCheckVersionAcceptsMatch(t *testing.T) {
	cfg := testConfig(t)
	s, _, _ := newTestBootstrapServer(t, cfg, nil, token.TrustChain{})

	notice, err := s.CheckVersion(RegisterRequest{ProtocolVersion: transport.ProtocolV1, BuildID: "build-1"})
	assert.NoError(t, err)
	assert.Nil(t, notice)
}

func TestCheckVersionRejectsMismatch(t *testing.T) {
	cfg := testConfig(t)
	s, _, _ := newTestBootstrapServer(t, cfg, nil, token.TrustChain{})

	notice, err := s.CheckVersion(RegisterRequest{ProtocolVersion: transport.ProtocolV1, BuildID: "build-stale"})
	require.ErrorIs(t, err, ErrVersionMismatch)
	require.NotNil(t, notice)
	assert.Equal(t, "build-1", notice.ServerBuildID)
	assert.Equal(t, "build-stale", notice.ClientBuildID)
}

func TestChallengeResponseRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	s, _, _ := newTestBootstrapServer(t, cfg, nil, token.TrustChain{})

	clientKeys, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)
	nodeID := dht.KeyedNodeID(clientKeys.Public)

	challenge, err := s.IssueChallenge(nodeID)
	require.NoError(t, err)
	require.NotEmpty(t, challenge.Nonce)

	nonce, err := decodeHexNonce(challenge.Nonce)
	require.NoError(t, err)
	sig, err := crypto.Sign(nonce[:], clientKeys.Private)
	require.NoError(t, err)

	require.NoError(t, s.VerifyChallengeResponse(nodeID, clientKeys.Public, sig))
}

func TestVerifyChallengeResponseRejectsWrongNodeID(t *testing.T) {
	cfg := testConfig(t)
	s, _, _ := newTestBootstrapServer(t, cfg, nil, token.TrustChain{})

	clientKeys, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)

	unrelated, err := dht.RandomNodeID()
	require.NoError(t, err)

	_, err = s.IssueChallenge(unrelated)
	require.NoError(t, err)

	err = s.VerifyChallengeResponse(unrelated, clientKeys.Public, crypto.Signature{})
	assert.ErrorIs(t, err, ErrIdentityMismatch)
}

func TestVerifyChallengeResponseRejectsReplay(t *testing.T) {
	cfg := testConfig(t)
	s, _, _ := newTestBootstrapServer(t, cfg, nil, token.TrustChain{})

	clientKeys, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)
	nodeID := dht.KeyedNodeID(clientKeys.Public)

	challenge, err := s.IssueChallenge(nodeID)
	require.NoError(t, err)
	nonce, err := decodeHexNonce(challenge.Nonce)
	require.NoError(t, err)
	sig, err := crypto.Sign(nonce[:], clientKeys.Private)
	require.NoError(t, err)

	require.NoError(t, s.VerifyChallengeResponse(nodeID, clientKeys.Public, sig))
	// Second call with no challenge pending must fail, not re-validate.
	err = s.VerifyChallengeResponse(nodeID, clientKeys.Public, sig)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestCheckDedupDetectsRepeatWithinRetention(t *testing.T) {
	cfg := testConfig(t)
	s, _, _ := newTestBootstrapServer(t, cfg, nil, token.TrustChain{})

	id, err := dht.RandomNodeID()
	require.NoError(t, err)

	assert.False(t, s.CheckDedup(id, "req-1"))
	assert.True(t, s.CheckDedup(id, "req-1"))
	assert.False(t, s.CheckDedup(id, "req-2"))
}

func TestAdmitAssignsGenesisOnceThenBridgeDelegates(t *testing.T) {
	cfg := testConfig(t, config.WithCreateNewDHT(true))

	helperID, err := dht.RandomNodeID()
	require.NoError(t, err)
	bridge := &fakeBridgeClient{resp: &OnboardingPeerResponse{HelperNodeID: helperID.String(), Status: "invitation_sent"}}

	s, _, _ := newTestBootstrapServer(t, cfg, bridge, token.TrustChain{})

	first, err := dht.RandomNodeID()
	require.NoError(t, err)
	resp, err := s.Admit(context.Background(), first, nil, nil, nil, [32]byte{})
	require.NoError(t, err)
	assert.True(t, resp.IsGenesis)

	second, err := dht.RandomNodeID()
	require.NoError(t, err)
	resp2, err := s.Admit(context.Background(), second, nil, nil, nil, [32]byte{})
	require.NoError(t, err)
	assert.False(t, resp2.IsGenesis)
	assert.Equal(t, "invitation_sent", resp2.Status)
}

func TestAdmitOpenNetworkNoHelperAvailable(t *testing.T) {
	cfg := testConfig(t)
	s, _, _ := newTestBootstrapServer(t, cfg, nil, token.TrustChain{})

	id, err := dht.RandomNodeID()
	require.NoError(t, err)
	_, err = s.Admit(context.Background(), id, nil, nil, nil, [32]byte{})
	assert.ErrorIs(t, err, ErrNoHelperAvailable)
}

func TestAdmitClosedNetworkRequiresMembershipOrInvitation(t *testing.T) {
	cfg := testConfig(t, config.WithOpenNetwork(false), config.WithBridgeAuthToken("secret"))
	s, _, _ := newTestBootstrapServer(t, cfg, nil, token.TrustChain{})

	id, err := dht.RandomNodeID()
	require.NoError(t, err)
	_, err = s.Admit(context.Background(), id, nil, nil, nil, [32]byte{})
	assert.ErrorIs(t, err, ErrMembershipRequired)
}

func TestAdmitClosedNetworkValidatesMembershipViaTrustChain(t *testing.T) {
	issuerKeys, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)
	issuerID := dht.KeyedNodeID(issuerKeys.Public)

	chain := token.TrustChain{
		Resolve: func(issuer dht.NodeID) ([32]byte, *token.MembershipToken, bool) {
			if issuer == issuerID {
				return issuerKeys.Public, nil, true
			}
			return [32]byte{}, nil, false
		},
	}

	cfg := testConfig(t, config.WithOpenNetwork(false), config.WithBridgeAuthToken("secret"))
	s, _, _ := newTestBootstrapServer(t, cfg, nil, chain)

	nodeID, err := dht.RandomNodeID()
	require.NoError(t, err)
	tp := fixedTimeProvider{now: time.Now()}
	membership, err := token.IssueMembershipToken(nodeID, issuerID, issuerKeys.Private, true, false, nil, tp)
	require.NoError(t, err)

	resp, err := s.Admit(context.Background(), nodeID, nil, membership, nil, [32]byte{})
	require.NoError(t, err)
	assert.Equal(t, "admitted", resp.Status)
}

func TestAdmitClosedNetworkRejectsInvalidMembership(t *testing.T) {
	chain := token.TrustChain{
		Resolve: func(issuer dht.NodeID) ([32]byte, *token.MembershipToken, bool) {
			return [32]byte{}, nil, false
		},
	}
	cfg := testConfig(t, config.WithOpenNetwork(false), config.WithBridgeAuthToken("secret"))
	s, _, _ := newTestBootstrapServer(t, cfg, nil, chain)

	issuerKeys, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)
	nodeID, err := dht.RandomNodeID()
	require.NoError(t, err)
	membership, err := token.IssueMembershipToken(nodeID, dht.KeyedNodeID(issuerKeys.Public), issuerKeys.Private, false, false, nil, fixedTimeProvider{now: time.Now()})
	require.NoError(t, err)

	_, err = s.Admit(context.Background(), nodeID, nil, membership, nil, [32]byte{})
	assert.ErrorIs(t, err, ErrInvalidMembershipToken)
}

func TestDeregisterClearsPendingChallenge(t *testing.T) {
	cfg := testConfig(t)
	s, _, _ := newTestBootstrapServer(t, cfg, nil, token.TrustChain{})

	id, err := dht.RandomNodeID()
	require.NoError(t, err)
	_, err = s.IssueChallenge(id)
	require.NoError(t, err)

	s.Deregister(id)

	err = s.VerifyChallengeResponse(id, [32]byte{}, crypto.Signature{})
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func decodeHexNonce(s string) ([16]byte, error) {
	var out [16]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}
