package engine

import "errors"

// ErrPeerNotConnected is returned when an RPC targets a nodeId with no
// active connection.Manager registered.
var ErrPeerNotConnected = errors.New("engine: peer not connected")
