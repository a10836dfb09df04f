package engine

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeoverlay/dht/config"
	"github.com/nodeoverlay/dht/connection"
	"github.com/nodeoverlay/dht/crypto"
	"github.com/nodeoverlay/dht/dht"
	"github.com/nodeoverlay/dht/noise"
	"github.com/nodeoverlay/dht/transport"
)

// wiredPeer bundles everything one side of a peer-to-peer test needs: its
// transport, routing table, engine, and connection manager to the other
// side.
type wiredPeer struct {
	tr     transport.Transport
	keys   *crypto.KeyPair
	nodeID dht.NodeID
	table  *dht.RoutingTable
	engine *Engine
	mgr    *connection.Manager
}

func registerManagerHandlers(tr transport.Transport, mgr *connection.Manager) {
	handle := func(frame *transport.Frame, addr net.Addr) error {
		return mgr.HandleFrame(frame)
	}
	tr.RegisterHandler(transport.FrameTypeHandshake, handle)
	tr.RegisterHandler("noise_msg", handle)
	for _, t := range []string{RPCPing, RPCFindNode, RPCFindValue, RPCStore, RPCSignal} {
		tr.RegisterHandler(t, handle)
	}
}

func newWiredPeer(t *testing.T, cfg *config.Config) *wiredPeer {
	t.Helper()
	tr, err := transport.NewUDPTransport("127.0.0.1:0")
	require.NoError(t, err)

	keys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	nodeID := dht.KeyedNodeID(keys.Public)
	table := dht.NewRoutingTable(nodeID, cfg.K, cfg.BucketRefreshInterval)
	eng := New(cfg, table, nil)

	return &wiredPeer{tr: tr, keys: keys, nodeID: nodeID, table: table, engine: eng}
}

func connectPeers(t *testing.T, cfg *config.Config, a, b *wiredPeer) {
	t.Helper()

	a.mgr = connection.NewManager(cfg, a.tr, a.keys, a.nodeID, "build-1", b.tr.LocalAddr(), noise.Initiator)
	b.mgr = connection.NewManager(cfg, b.tr, b.keys, b.nodeID, "build-1", a.tr.LocalAddr(), noise.Responder)

	registerManagerHandlers(a.tr, a.mgr)
	registerManagerHandlers(b.tr, b.mgr)

	require.NoError(t, a.mgr.Dial())

	require.Eventually(t, func() bool {
		return a.mgr.State() == connection.Handshaking
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, a.mgr.StartNoise())

	require.Eventually(t, func() bool {
		return a.mgr.State() == connection.Ready && b.mgr.State() == connection.Ready
	}, 2*time.Second, 5*time.Millisecond)

	a.engine.AddConnection(a.mgr)
	b.engine.AddConnection(b.mgr)

	a.table.Insert(dht.NewPeerRecord(b.nodeID, dht.NodeTypeServer, nil))
	b.table.Insert(dht.NewPeerRecord(a.nodeID, dht.NodeTypeServer, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.New(config.WithOpenNetwork(true))
	require.NoError(t, err)
	cfg.RequestTimeout = 2 * time.Second
	cfg.LookupTimeout = 2 * time.Second
	cfg.PerCandidateDeadline = time.Second
	return cfg
}

func TestEnginePingRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	a := newWiredPeer(t, cfg)
	b := newWiredPeer(t, cfg)
	defer a.tr.Close()
	defer b.tr.Close()

	connectPeers(t, cfg, a, b)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, a.engine.Ping(ctx, b.nodeID))
}

func TestEngineFindNodeReturnsKnownPeers(t *testing.T) {
	cfg := testConfig(t)
	a := newWiredPeer(t, cfg)
	b := newWiredPeer(t, cfg)
	defer a.tr.Close()
	defer b.tr.Close()

	connectPeers(t, cfg, a, b)

	third, err := dht.RandomNodeID()
	require.NoError(t, err)
	b.table.Insert(dht.NewPeerRecord(third, dht.NodeTypeServer, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	peers := a.engine.LookupNode(ctx, third)

	found := false
	for _, p := range peers {
		if p.NodeID == third {
			found = true
		}
	}
	assert.True(t, found)
}

func TestEngineStoreReplicatesToClosestPeer(t *testing.T) {
	cfg := testConfig(t)
	a := newWiredPeer(t, cfg)
	b := newWiredPeer(t, cfg)
	defer a.tr.Close()
	defer b.tr.Close()

	connectPeers(t, cfg, a, b)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	a.engine.Store(ctx, "greeting", []byte("hello"), cfg.ValueExpiry)

	time.Sleep(50 * time.Millisecond)

	value, ok := b.engine.store.Get("greeting", b.engine.tp)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), value)
}
