package engine

import (
	"sync"
	"time"

	"github.com/nodeoverlay/dht/dht"
)

// storedRecord is one soft-state key/value entry.
type storedRecord struct {
	value     []byte
	expiresAt time.Time
	origin    bool // true if this node is the original publisher (drives republication)
}

// valueStore holds the soft-state key/value records a node is currently
// responsible for, whether as origin or as a replica accepted via store.
type valueStore struct {
	mu      sync.RWMutex
	records map[string]*storedRecord
}

func newValueStore() *valueStore {
	return &valueStore{records: make(map[string]*storedRecord)}
}

// Put inserts or refreshes a record. It does not check ttl: handleStore
// rejects ttl <= 0 before calling it, while Engine.Store passes its ttl
// through unchecked.
func (s *valueStore) Put(key string, value []byte, ttl time.Duration, origin bool, tp dht.TimeProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = &storedRecord{
		value:     value,
		expiresAt: tp.Now().Add(ttl),
		origin:    origin,
	}
}

// Get returns a record's value if present and unexpired.
func (s *valueStore) Get(key string, tp dht.TimeProvider) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok || tp.Now().After(rec.expiresAt) {
		return nil, false
	}
	return rec.value, true
}

// ExpireOld removes every record past its TTL and returns how many were
// dropped.
func (s *valueStore) ExpireOld(tp dht.TimeProvider) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	now := tp.Now()
	for key, rec := range s.records {
		if now.After(rec.expiresAt) {
			delete(s.records, key)
			dropped++
		}
	}
	return dropped
}

// OriginKeys returns the keys this node originally published, the set that
// must be periodically republished.
func (s *valueStore) OriginKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.records))
	for key, rec := range s.records {
		if rec.origin {
			keys = append(keys, key)
		}
	}
	return keys
}

// Snapshot returns a key's value and expiry time without mutating state,
// for use by the republication loop.
func (s *valueStore) Snapshot(key string) ([]byte, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, time.Time{}, false
	}
	return rec.value, rec.expiresAt, true
}
