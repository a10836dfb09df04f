// Package dht implements the Kademlia-style routing core of the overlay:
// 160-bit node identifiers, the XOR distance metric, and a RoutingTable of
// bounded k-buckets with replacement caches.
//
//	local, _ := dht.RandomNodeID()
//	rt := dht.NewRoutingTable(local, 20, 10*time.Minute)
//	rt.Insert(dht.NewPeerRecord(peerID, dht.NodeTypeServer, nil))
//	closest := rt.FindClosest(target, 20)
//
// Ownership: callers create a PeerRecord with NewPeerRecord and hand it to
// RoutingTable.Insert; after that the RoutingTable updates it (MarkSeen,
// MarkFailed). Package connection does not hold or change PeerRecords.
package dht
