package net

import (
	"strings"

	"github.com/nodeoverlay/dht/dht"
)

// NodeAddr implements net.Addr for overlay node identifiers.
type NodeAddr struct {
	id dht.NodeID
}

// NewNodeAddr parses a hex-encoded NodeID string into a NodeAddr.
func NewNodeAddr(nodeID string) (*NodeAddr, error) {
	id, err := dht.ParseNodeID(strings.TrimSpace(nodeID))
	if err != nil {
		return nil, &OverlayNetError{Op: "parse", Addr: nodeID, Err: ErrInvalidNodeAddr}
	}
	return &NodeAddr{id: id}, nil
}

// NewNodeAddrFromID wraps an already-parsed NodeID.
func NewNodeAddrFromID(id dht.NodeID) *NodeAddr {
	return &NodeAddr{id: id}
}

// Network returns the network name for overlay addresses. Implements
// net.Addr.
func (a *NodeAddr) Network() string {
	return "overlay"
}

// String returns the hex NodeID. Implements net.Addr.
func (a *NodeAddr) String() string {
	return a.id.String()
}

// NodeID returns the underlying identifier.
func (a *NodeAddr) NodeID() dht.NodeID {
	return a.id
}

// Equal reports whether two NodeAddrs name the same node.
func (a *NodeAddr) Equal(other *NodeAddr) bool {
	if a == nil || other == nil {
		return a == other
	}
	return a.id == other.id
}

// ResolveNodeAddr validates and parses an overlay address string.
func ResolveNodeAddr(address string) (*NodeAddr, error) {
	return NewNodeAddr(address)
}

// IsNodeAddr reports whether address parses as a valid NodeID.
func IsNodeAddr(address string) bool {
	_, err := dht.ParseNodeID(strings.TrimSpace(address))
	return err == nil
}
