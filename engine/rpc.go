package engine

import "github.com/nodeoverlay/dht/dht"

// RPC frame type names carried over transport.Frame.Type / connection.Manager.
const (
	RPCPing      = "ping"
	RPCFindNode  = "find_node"
	RPCFindValue = "find_value"
	RPCStore     = "store"
	RPCSignal    = "signal"
)

// PingRequest carries no fields beyond the frame envelope's reqId.
type PingRequest struct{}

// PingResponse acknowledges liveness.
type PingResponse struct {
	OK bool `json:"ok"`
}

// FindNodeRequest asks a peer for its k closest known nodes to Target.
type FindNodeRequest struct {
	Target string `json:"target"`
}

// FindNodeResponse returns up to k PeerRecords, never including publicKey
// (find_node answers are routing hints, not identity proofs).
type FindNodeResponse struct {
	Peers []PeerSummary `json:"peers"`
}

// PeerSummary is the subset of dht.PeerRecord exposed over find_node/
// find_value responses.
type PeerSummary struct {
	NodeID   string `json:"nodeId"`
	Address  string `json:"address"`
	NodeType string `json:"nodeType"`
}

func summarize(rec *dht.PeerRecord) PeerSummary {
	return PeerSummary{
		NodeID:   rec.NodeID.String(),
		Address:  rec.TransportAddress,
		NodeType: rec.NodeType.String(),
	}
}

// FindValueRequest asks a peer to resolve Key, either as a stored value or
// as routing hints toward it.
type FindValueRequest struct {
	Key string `json:"key"`
}

// FindValueResponse carries either Value (a hit) or Peers (a miss),
// mutually exclusive.
type FindValueResponse struct {
	Value []byte        `json:"value,omitempty"`
	Peers []PeerSummary `json:"peers,omitempty"`
}

// StoreRequest asks a peer to hold Value under Key for TTLSeconds.
type StoreRequest struct {
	Key        string `json:"key"`
	Value      []byte `json:"value"`
	TTLSeconds int64  `json:"ttl"`
}

// StoreResponse acknowledges acceptance or rejection of a store.
type StoreResponse struct {
	OK bool `json:"ok"`
}

// SignalRequest is an overlay-routed signaling envelope: opaque
// Payload (WebRTC offer/answer/ICE, or WebSocket address exchange) routed
// hop-by-hop toward TargetID.
type SignalRequest struct {
	SourceID string   `json:"sourceId"`
	TargetID string   `json:"targetId"`
	Payload  []byte   `json:"payload"`
	Hops     []string `json:"hops"`
	TTL      int      `json:"ttl"`
}
