// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package mmap implements the persistent, memory-mapped hash Map as a
// typed façade over mhash.Table, adding the value dimension on top of the
// Set vocabulary.
package mmap

import (
	"github.com/aristanetworks/fastcollection/arena"
	"github.com/aristanetworks/fastcollection/logger"
	"github.com/aristanetworks/fastcollection/mhash"
	"github.com/aristanetworks/fastcollection/mstat"
)

// Map is a persistent, memory-mapped hash map.
type Map struct {
	table *mhash.Table
}

// Open attaches to (or constructs) the named map inside seg with the
// given bucket count (mhash.DefaultBucketCount if <= 0).
func Open(seg *arena.Segment, name string, bucketCount int, log logger.Logger) (*Map, error) {
	tbl, err := mhash.Open(seg, name, bucketCount, log)
	if err != nil {
		return nil, err
	}
	return &Map{table: tbl}, nil
}

// Put inserts or overwrites key's value, returning the previous value if
// one was live.
func (m *Map) Put(key, value []byte, ttl int64) ([]byte, bool, error) {
	return m.table.Put(key, value, ttl)
}

// PutIfAbsent inserts key's value only if no live entry exists yet,
// returning the existing live value if one was present.
func (m *Map) PutIfAbsent(key, value []byte, ttl int64) ([]byte, bool, error) {
	return m.table.PutIfAbsent(key, value, ttl)
}

// Get returns key's live value, if any.
func (m *Map) Get(key []byte) ([]byte, bool) { return m.table.Get(key) }

// GetOrDefault returns key's live value, or def if absent.
func (m *Map) GetOrDefault(key, def []byte) []byte { return m.table.GetOrDefault(key, def) }

// Remove unlinks and frees key's live entry, returning its value.
func (m *Map) Remove(key []byte) ([]byte, bool) { return m.table.Remove(key) }

// ContainsKey reports whether key has a live entry.
func (m *Map) ContainsKey(key []byte) bool { return m.table.Contains(key) }

// Replace overwrites key's value only if a live entry already exists,
// returning the previous value.
func (m *Map) Replace(key, value []byte, ttl int64) ([]byte, bool, error) {
	return m.table.Replace(key, value, ttl)
}

// GetTTL returns the remaining TTL (seconds, -1 if never-expiring) for key.
func (m *Map) GetTTL(key []byte) (int64, bool) { return m.table.GetTTL(key) }

// SetTTL mutates only key's expiry.
func (m *Map) SetTTL(key []byte, ttl int64) bool { return m.table.SetTTL(key, ttl) }

// RetainIf removes every entry for which pred returns false, under that
// entry's bucket lock. pred must not call back into this map.
func (m *Map) RetainIf(pred func(key, value []byte) bool) int { return m.table.RetainIf(pred) }

// RemoveExpired sweeps every bucket and frees expired entries.
func (m *Map) RemoveExpired() int { return m.table.RemoveExpired() }

// ForEach calls cb with each live key/value pair in arbitrary bucket order.
func (m *Map) ForEach(cb func(key, value []byte) bool) { m.table.ForEach(cb) }

// ForEachWithTTL is ForEach plus each entry's remaining TTL.
func (m *Map) ForEachWithTTL(cb func(key, value []byte, remainingTTL int64) bool) {
	m.table.ForEachWithTTL(cb)
}

// Clear unlinks and frees every entry.
func (m *Map) Clear() { m.table.Clear() }

// Size returns the number of live entries.
func (m *Map) Size() int { return m.table.Size() }

// IsEmpty reports whether the map has no live entries.
func (m *Map) IsEmpty() bool { return m.table.IsEmpty() }

// Stats returns a snapshot of this process's activity counters.
func (m *Map) Stats() mstat.Snapshot { return m.table.Stats() }
