// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package mset implements the persistent, memory-mapped hash Set as a
// typed façade over mhash.Table: elements are keys with an empty value.
package mset

import (
	"github.com/aristanetworks/fastcollection/arena"
	"github.com/aristanetworks/fastcollection/logger"
	"github.com/aristanetworks/fastcollection/mhash"
	"github.com/aristanetworks/fastcollection/mstat"
)

// Set is a persistent, memory-mapped hash set.
type Set struct {
	table *mhash.Table
}

// Open attaches to (or constructs) the named set inside seg with the
// given bucket count (mhash.DefaultBucketCount if <= 0).
func Open(seg *arena.Segment, name string, bucketCount int, log logger.Logger) (*Set, error) {
	tbl, err := mhash.Open(seg, name, bucketCount, log)
	if err != nil {
		return nil, err
	}
	return &Set{table: tbl}, nil
}

// Add inserts element, returning false if a live copy is already present.
func (s *Set) Add(element []byte, ttl int64) (bool, error) { return s.table.Add(element, ttl) }

// Remove unlinks and frees element, returning whether it was present.
func (s *Set) Remove(element []byte) bool {
	_, ok := s.table.Remove(element)
	return ok
}

// Contains reports whether element is present and live.
func (s *Set) Contains(element []byte) bool { return s.table.Contains(element) }

// GetTTL returns the remaining TTL (seconds, -1 if never-expiring) for element.
func (s *Set) GetTTL(element []byte) (int64, bool) { return s.table.GetTTL(element) }

// SetTTL mutates only element's expiry.
func (s *Set) SetTTL(element []byte, ttl int64) bool { return s.table.SetTTL(element, ttl) }

// AddAll inserts every element in batch, returning how many were newly
// inserted.
func (s *Set) AddAll(batch [][]byte, ttl int64) (int, error) { return s.table.AddAll(batch, ttl) }

// RemoveAll removes every element in batch, returning how many were
// actually removed.
func (s *Set) RemoveAll(batch [][]byte) int { return s.table.RemoveAll(batch) }

// RetainIf removes every element for which pred returns false, under
// that element's bucket lock. pred must not call back into this set.
func (s *Set) RetainIf(pred func(element []byte) bool) int {
	return s.table.RetainIf(func(key, _ []byte) bool { return pred(key) })
}

// RemoveExpired sweeps every bucket and frees expired elements.
func (s *Set) RemoveExpired() int { return s.table.RemoveExpired() }

// ForEach calls cb with each live element in arbitrary bucket order.
func (s *Set) ForEach(cb func(element []byte) bool) {
	s.table.ForEach(func(key, _ []byte) bool { return cb(key) })
}

// ForEachWithTTL is ForEach plus each element's remaining TTL.
func (s *Set) ForEachWithTTL(cb func(element []byte, remainingTTL int64) bool) {
	s.table.ForEachWithTTL(func(key, _ []byte, ttl int64) bool { return cb(key, ttl) })
}

// ToArray returns a copy of every live element.
func (s *Set) ToArray() [][]byte { return s.table.ToArray() }

// Clear unlinks and frees every element.
func (s *Set) Clear() { s.table.Clear() }

// Size returns the number of live elements.
func (s *Set) Size() int { return s.table.Size() }

// IsEmpty reports whether the set has no live elements.
func (s *Set) IsEmpty() bool { return s.table.IsEmpty() }

// Stats returns a snapshot of this process's activity counters.
func (s *Set) Stats() mstat.Snapshot { return s.table.Stats() }
