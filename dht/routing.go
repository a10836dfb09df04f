package dht

import (
	"sort"
	"sync"
	"time"
)

// KBucket holds at most k PeerRecords whose XOR distance to the owning
// RoutingTable's local id falls in this bucket's range, plus a bounded
// replacement cache of peers parked while the bucket was full.
//
// Invariants: no duplicate nodeIds across live nodes; order is
// least-recently-seen first (eviction candidate at head, most-recently-seen
// at tail).
type KBucket struct {
	nodes        []*PeerRecord
	replacements []*PeerRecord
	maxSize      int
	maxReplace   int
	staleAfter   time.Duration
	mu           sync.RWMutex
}

// NewKBucket creates a k-bucket with the given capacity and a replacement
// cache of the same size. staleAfter controls how long a head-of-bucket peer
// may go unseen before it is considered evictable.
func NewKBucket(maxSize int, staleAfter time.Duration) *KBucket {
	return &KBucket{
		nodes:      make([]*PeerRecord, 0, maxSize),
		maxSize:    maxSize,
		maxReplace: maxSize,
		staleAfter: staleAfter,
	}
}

// Insert adds or refreshes a peer in the bucket following §4.2: if present,
// promote to tail. If the bucket has room, append. If full and the head is
// stale, evict it and insert. Otherwise park the newcomer in the replacement
// cache — insertion never fails destructively.
func (kb *KBucket) Insert(peer *PeerRecord) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if i := kb.indexOf(peer.NodeID); i >= 0 {
		kb.nodes = append(kb.nodes[:i], kb.nodes[i+1:]...)
		kb.nodes = append(kb.nodes, peer)
		return
	}

	if len(kb.nodes) < kb.maxSize {
		kb.nodes = append(kb.nodes, peer)
		return
	}

	head := kb.nodes[0]
	if getDefaultTimeProvider().Since(head.LastSeen) > kb.staleAfter {
		kb.nodes = kb.nodes[1:]
		kb.nodes = append(kb.nodes, peer)
		return
	}

	kb.parkReplacement(peer)
}

func (kb *KBucket) parkReplacement(peer *PeerRecord) {
	for i, r := range kb.replacements {
		if r.NodeID == peer.NodeID {
			kb.replacements = append(kb.replacements[:i], kb.replacements[i+1:]...)
			break
		}
	}
	kb.replacements = append(kb.replacements, peer)
	if len(kb.replacements) > kb.maxReplace {
		kb.replacements = kb.replacements[len(kb.replacements)-kb.maxReplace:]
	}
}

func (kb *KBucket) indexOf(id NodeID) int {
	for i, n := range kb.nodes {
		if n.NodeID == id {
			return i
		}
	}
	return -1
}

// Remove deletes the peer with the given id from the bucket and promotes the
// most recently parked replacement-cache entry in its place, if any.
func (kb *KBucket) Remove(id NodeID) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	i := kb.indexOf(id)
	if i < 0 {
		return false
	}
	kb.nodes = append(kb.nodes[:i], kb.nodes[i+1:]...)

	if len(kb.replacements) > 0 {
		last := len(kb.replacements) - 1
		kb.nodes = append(kb.nodes, kb.replacements[last])
		kb.replacements = kb.replacements[:last]
	}
	return true
}

// Nodes returns a copy of the live (non-replacement-cache) peers in the
// bucket, head first.
func (kb *KBucket) Nodes() []*PeerRecord {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := make([]*PeerRecord, len(kb.nodes))
	copy(out, kb.nodes)
	return out
}

// Len reports the number of live peers in the bucket.
func (kb *KBucket) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.nodes)
}

// RoutingTable manages the 160 k-buckets of one local node, plus a side
// index for O(1) peer lookup by id.
type RoutingTable struct {
	buckets [IDBits]*KBucket
	local   NodeID
	index   map[NodeID]int // nodeId -> bucket index
	mu      sync.RWMutex
}

// NewRoutingTable creates a routing table for local, with k-buckets of size
// bucketSize and the given stale-peer threshold.
func NewRoutingTable(local NodeID, bucketSize int, staleAfter time.Duration) *RoutingTable {
	rt := &RoutingTable{
		local: local,
		index: make(map[NodeID]int),
	}
	for i := range rt.buckets {
		rt.buckets[i] = NewKBucket(bucketSize, staleAfter)
	}
	return rt
}

// Local returns the node id this routing table is rooted at.
func (rt *RoutingTable) Local() NodeID { return rt.local }

// Insert adds or refreshes a peer. Self-insertion is a silent no-op: the
// local nodeId is never stored.
func (rt *RoutingTable) Insert(peer *PeerRecord) {
	if peer.NodeID == rt.local {
		return
	}

	idx := BucketIndex(rt.local, peer.NodeID)

	rt.mu.Lock()
	rt.index[peer.NodeID] = idx
	rt.mu.Unlock()

	rt.buckets[idx].Insert(peer)
}

// Remove deletes a peer from the routing table, cleaning up the side index.
func (rt *RoutingTable) Remove(id NodeID) bool {
	rt.mu.Lock()
	idx, ok := rt.index[id]
	if !ok {
		rt.mu.Unlock()
		return false
	}
	delete(rt.index, id)
	rt.mu.Unlock()

	return rt.buckets[idx].Remove(id)
}

// Get returns the peer with the given id, or nil if unknown.
func (rt *RoutingTable) Get(id NodeID) *PeerRecord {
	rt.mu.RLock()
	idx, ok := rt.index[id]
	rt.mu.RUnlock()
	if !ok {
		return nil
	}
	for _, p := range rt.buckets[idx].Nodes() {
		if p.NodeID == id {
			return p
		}
	}
	return nil
}

// FindClosest returns up to count peers in ascending XOR distance to
// target, ties broken lexicographically by nodeId, drawn from all buckets.
func (rt *RoutingTable) FindClosest(target NodeID, count int) []*PeerRecord {
	all := rt.All()

	sort.Slice(all, func(i, j int) bool {
		di := Distance(all[i].NodeID, target)
		dj := Distance(all[j].NodeID, target)
		if di != dj {
			return Less(di, dj)
		}
		return Compare(all[i].NodeID, all[j].NodeID) < 0
	})

	if len(all) > count {
		all = all[:count]
	}
	return all
}

// All returns every peer currently stored across all buckets.
func (rt *RoutingTable) All() []*PeerRecord {
	var all []*PeerRecord
	for _, b := range rt.buckets {
		all = append(all, b.Nodes()...)
	}
	return all
}

// MarkSeen promotes a known peer to the tail of its bucket.
func (rt *RoutingTable) MarkSeen(id NodeID, tp TimeProvider) {
	if p := rt.Get(id); p != nil {
		p.MarkSeen(tp)
		rt.Insert(p)
	}
}

// MarkFailed records a failed contact attempt against a known peer.
func (rt *RoutingTable) MarkFailed(id NodeID, tp TimeProvider) {
	if p := rt.Get(id); p != nil {
		p.RecordPingResponse(false, tp)
	}
}

// BucketAt returns the k-bucket at the given index, or nil if out of range.
// Used by maintenance to drive bucket-refresh find_node calls.
func (rt *RoutingTable) BucketAt(i int) *KBucket {
	if i < 0 || i >= IDBits {
		return nil
	}
	return rt.buckets[i]
}

// Count returns the total number of peers stored across all buckets.
func (rt *RoutingTable) Count() int {
	count := 0
	for _, b := range rt.buckets {
		count += b.Len()
	}
	return count
}
