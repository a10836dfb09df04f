package net

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeoverlay/dht/dht"
)

func randomAddrID(t *testing.T) dht.NodeID {
	t.Helper()
	id, err := dht.RandomNodeID()
	require.NoError(t, err)
	return id
}

func TestNewNodeAddrRoundTrips(t *testing.T) {
	id := randomAddrID(t)
	addr, err := NewNodeAddr(id.String())
	require.NoError(t, err)

	assert.Equal(t, "overlay", addr.Network())
	assert.Equal(t, id.String(), addr.String())
	assert.Equal(t, id, addr.NodeID())
}

func TestNewNodeAddrRejectsInvalid(t *testing.T) {
	cases := []string{
		"not-hex",
		"abcd", // too short
		randomAddrID(t).String() + "00", // too long
	}
	for _, c := range cases {
		_, err := NewNodeAddr(c)
		assert.Error(t, err, c)
	}
}

func TestNodeAddrEqual(t *testing.T) {
	id := randomAddrID(t)
	a1 := NewNodeAddrFromID(id)
	a2 := NewNodeAddrFromID(id)
	assert.True(t, a1.Equal(a2))

	a3 := NewNodeAddrFromID(randomAddrID(t))
	assert.False(t, a1.Equal(a3))

	var nilAddr *NodeAddr
	assert.True(t, nilAddr.Equal(nil))
	assert.False(t, a1.Equal(nil))
}

func TestIsNodeAddr(t *testing.T) {
	assert.True(t, IsNodeAddr(randomAddrID(t).String()))
	assert.False(t, IsNodeAddr("not-hex"))
	assert.False(t, IsNodeAddr("abcd"))
}
