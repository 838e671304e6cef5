// Package cache provides the bounded concurrent map primitive shared by
// the conversation store, the taxonomy cache, and the per-owner lock
// table: a maximum number of tracked keys, a TTL, and oldest-by-access
// eviction.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// BoundedMap is a concurrency-safe map with a size cap and per-entry
// TTL. When full, the least recently accessed entry is evicted. Expired
// entries read as missing.
type BoundedMap[K comparable, V any] struct {
	lru *expirable.LRU[K, V]
}

// NewBoundedMap creates a map holding at most maxEntries values, each
// valid for ttl after its last write. A ttl of zero disables expiry.
func NewBoundedMap[K comparable, V any](maxEntries int, ttl time.Duration) *BoundedMap[K, V] {
	return &BoundedMap[K, V]{
		lru: expirable.NewLRU[K, V](maxEntries, nil, ttl),
	}
}

// Get returns the value for key if present and unexpired.
func (m *BoundedMap[K, V]) Get(key K) (V, bool) {
	return m.lru.Get(key)
}

// Set stores value under key, resetting its TTL.
func (m *BoundedMap[K, V]) Set(key K, value V) {
	m.lru.Add(key, value)
}

// Delete removes key if present.
func (m *BoundedMap[K, V]) Delete(key K) {
	m.lru.Remove(key)
}

// Len returns the number of live entries.
func (m *BoundedMap[K, V]) Len() int {
	return m.lru.Len()
}

// Keys returns the live keys, oldest first.
func (m *BoundedMap[K, V]) Keys() []K {
	return m.lru.Keys()
}
