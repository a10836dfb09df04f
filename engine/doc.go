// Package engine implements DHTEngine: the Kademlia RPC set (ping, find_node,
// find_value, store, signal) carried over connection.Manager, the α-bounded
// iterative lookup used for both find_node and find_value, soft-state value
// storage with republication and expiry, and hop-limited overlay signal
// routing. Engine owns the RoutingTable and the set of active connections;
// it is the only component permitted to mutate either outside of a
// connection's own handshake path.
package engine
