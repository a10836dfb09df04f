package dht

import "time"

// NodeType classifies a peer by what kind of process it runs.
type NodeType uint8

const (
	NodeTypeBrowser NodeType = iota
	NodeTypeServer
	NodeTypeBridge
)

// String returns the node type's lowercase name.
func (t NodeType) String() string {
	switch t {
	case NodeTypeBrowser:
		return "browser"
	case NodeTypeServer:
		return "server"
	case NodeTypeBridge:
		return "bridge"
	default:
		return "unknown"
	}
}

// PeerState is the lifecycle state of a PeerRecord.
type PeerState uint8

const (
	StateUnknown PeerState = iota
	StateProbing
	StateConnected
	StateStale
	StateEvicted
)

// CommonMetadata is embedded by every concrete metadata variant.
type CommonMetadata struct {
	StartTime time.Time
}

// BrowserMetadata is carried by browser peers (WebRTC transports).
type BrowserMetadata struct {
	CommonMetadata
	TabVisible bool
}

// ServerMetadata is carried by server peers (WebSocket transports, publicly
// reachable).
type ServerMetadata struct {
	CommonMetadata
	PublicEndpoint string
}

// BridgeMetadata is carried by bridge nodes that help onboard new peers.
type BridgeMetadata struct {
	CommonMetadata
	IsBridge bool
}

// PeerMetadata is the closed tagged union of per-node-type metadata. At most
// one of Browser, Server, Bridge is set; NewPeerRecord leaves all three nil.
type PeerMetadata struct {
	Browser *BrowserMetadata
	Server  *ServerMetadata
	Bridge  *BridgeMetadata
}

// PingStats tracks liveness-probe history for a peer. The bridge's
// helper-selection score does not use it.
type PingStats struct {
	LastPingSent     time.Time
	LastPingReceived time.Time
	PingCount        uint32
	SuccessCount     uint32
	FailureCount     uint32
}

// Reliability returns a 0.0-1.0 score derived from ping history.
func (p PingStats) Reliability() float64 {
	if p.PingCount == 0 {
		return 0.0
	}
	return float64(p.SuccessCount) / float64(p.PingCount)
}

// PeerRecord is the unit of data a RoutingTable stores. Callers create it
// with NewPeerRecord and pass it to RoutingTable.Insert, which then updates
// it; connection.Manager does not touch it.
type PeerRecord struct {
	NodeID            NodeID
	TransportAddress  string
	NodeType          NodeType
	Capabilities      map[string]struct{}
	PublicKey         *[32]byte
	Metadata          PeerMetadata
	RTTMillis         int64
	LastSeen          time.Time
	State             PeerState
	PingStats         PingStats
}

// NewPeerRecord creates a PeerRecord in state Unknown, stamped with the
// given time provider (nil uses the package default).
func NewPeerRecord(id NodeID, nodeType NodeType, tp TimeProvider) *PeerRecord {
	if tp == nil {
		tp = getDefaultTimeProvider()
	}
	return &PeerRecord{
		NodeID:       id,
		NodeType:     nodeType,
		Capabilities: make(map[string]struct{}),
		LastSeen:     tp.Now(),
		State:        StateUnknown,
	}
}

// IsActive reports whether the peer has been seen within timeout.
func (p *PeerRecord) IsActive(timeout time.Duration) bool {
	return getDefaultTimeProvider().Since(p.LastSeen) < timeout
}

// MarkSeen stamps LastSeen and transitions State to Connected.
func (p *PeerRecord) MarkSeen(tp TimeProvider) {
	if tp == nil {
		tp = getDefaultTimeProvider()
	}
	p.LastSeen = tp.Now()
	p.State = StateConnected
}

// RecordPingSent marks that a ping was issued to this peer.
func (p *PeerRecord) RecordPingSent(tp TimeProvider) {
	if tp == nil {
		tp = getDefaultTimeProvider()
	}
	p.PingStats.LastPingSent = tp.Now()
	p.PingStats.PingCount++
}

// RecordPingResponse marks the outcome of an outstanding ping.
func (p *PeerRecord) RecordPingResponse(success bool, tp TimeProvider) {
	if tp == nil {
		tp = getDefaultTimeProvider()
	}
	if success {
		p.PingStats.LastPingReceived = tp.Now()
		p.PingStats.SuccessCount++
		p.MarkSeen(tp)
	} else {
		p.PingStats.FailureCount++
		if p.PingStats.FailureCount > p.PingStats.SuccessCount {
			p.State = StateStale
		}
	}
}
