package dht

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randID(t *testing.T) NodeID {
	t.Helper()
	id, err := RandomNodeID()
	require.NoError(t, err)
	return id
}

func TestRoutingTableInsertAndGet(t *testing.T) {
	local := randID(t)
	rt := NewRoutingTable(local, 20, time.Minute)

	peer := NewPeerRecord(randID(t), NodeTypeServer, nil)
	rt.Insert(peer)

	got := rt.Get(peer.NodeID)
	require.NotNil(t, got)
	assert.Equal(t, peer.NodeID, got.NodeID)
}

func TestRoutingTableNeverStoresSelf(t *testing.T) {
	local := randID(t)
	rt := NewRoutingTable(local, 20, time.Minute)

	rt.Insert(NewPeerRecord(local, NodeTypeServer, nil))
	assert.Equal(t, 0, rt.Count())
}

func TestRoutingTableFindClosestOrdering(t *testing.T) {
	var local NodeID
	rt := NewRoutingTable(local, 20, time.Minute)

	var near, mid, far NodeID
	near[IDBytes-1] = 0x01
	mid[IDBytes-1] = 0x04
	far[0] = 0x80

	rt.Insert(NewPeerRecord(far, NodeTypeServer, nil))
	rt.Insert(NewPeerRecord(near, NodeTypeServer, nil))
	rt.Insert(NewPeerRecord(mid, NodeTypeServer, nil))

	var target NodeID
	closest := rt.FindClosest(target, 3)
	require.Len(t, closest, 3)
	assert.Equal(t, near, closest[0].NodeID)
	assert.Equal(t, mid, closest[1].NodeID)
	assert.Equal(t, far, closest[2].NodeID)
}

func TestRoutingTableFindClosestLimitsCount(t *testing.T) {
	local := randID(t)
	rt := NewRoutingTable(local, 20, time.Minute)

	for i := 0; i < 10; i++ {
		rt.Insert(NewPeerRecord(randID(t), NodeTypeServer, nil))
	}

	closest := rt.FindClosest(randID(t), 5)
	assert.Len(t, closest, 5)
}

func TestRoutingTableRemove(t *testing.T) {
	local := randID(t)
	rt := NewRoutingTable(local, 20, time.Minute)

	peer := NewPeerRecord(randID(t), NodeTypeServer, nil)
	rt.Insert(peer)
	require.NotNil(t, rt.Get(peer.NodeID))

	assert.True(t, rt.Remove(peer.NodeID))
	assert.Nil(t, rt.Get(peer.NodeID))
}

func TestRoutingTableNoDuplicatesAcrossBuckets(t *testing.T) {
	local := randID(t)
	rt := NewRoutingTable(local, 20, time.Minute)

	peer := NewPeerRecord(randID(t), NodeTypeServer, nil)
	rt.Insert(peer)
	rt.Insert(peer)

	assert.Equal(t, 1, rt.Count())
}

func TestKBucketParksNewcomerWhenFullOfLivePeers(t *testing.T) {
	kb := NewKBucket(2, time.Hour)

	a := NewPeerRecord(randIDFixed(1), NodeTypeServer, nil)
	b := NewPeerRecord(randIDFixed(2), NodeTypeServer, nil)
	c := NewPeerRecord(randIDFixed(3), NodeTypeServer, nil)

	kb.Insert(a)
	kb.Insert(b)
	kb.Insert(c)

	assert.Equal(t, 2, kb.Len())
	nodes := kb.Nodes()
	assert.Equal(t, a.NodeID, nodes[0].NodeID)
	assert.Equal(t, b.NodeID, nodes[1].NodeID)
}

func TestKBucketEvictsStaleHeadForNewcomer(t *testing.T) {
	kb := NewKBucket(1, -time.Second) // staleAfter negative: everything is stale

	a := NewPeerRecord(randIDFixed(1), NodeTypeServer, nil)
	b := NewPeerRecord(randIDFixed(2), NodeTypeServer, nil)

	kb.Insert(a)
	kb.Insert(b)

	nodes := kb.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, b.NodeID, nodes[0].NodeID)
}

func TestKBucketRemovePromotesReplacement(t *testing.T) {
	kb := NewKBucket(1, time.Hour)

	a := NewPeerRecord(randIDFixed(1), NodeTypeServer, nil)
	b := NewPeerRecord(randIDFixed(2), NodeTypeServer, nil)

	kb.Insert(a)
	kb.Insert(b) // parked, bucket full and a is fresh

	assert.True(t, kb.Remove(a.NodeID))
	nodes := kb.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, b.NodeID, nodes[0].NodeID)
}

func randIDFixed(b byte) NodeID {
	var id NodeID
	id[IDBytes-1] = b
	return id
}
