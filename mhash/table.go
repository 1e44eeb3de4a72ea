// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package mhash implements the separately chained hash table shared by
// the Set and Map public façades: a fixed power-of-two bucket array, one
// singly-chained list of nodes per bucket, and a per-bucket mutex living
// inside the mapping. There is no rehashing: the bucket count is fixed at
// construction, matching spec.md's "no automatic resizing" rule.
//
// Unlike Go's own runtime map (8-wide grouped buckets with overflow
// pointers), each bucket here chains through a single linked list of
// onode.Node entries; the grouped-bucket layout doesn't fit a
// variable-size, offset-addressed node.
package mhash

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/aristanetworks/fastcollection/arena"
	"github.com/aristanetworks/fastcollection/fcerr"
	"github.com/aristanetworks/fastcollection/ipcmutex"
	"github.com/aristanetworks/fastcollection/logger"
	"github.com/aristanetworks/fastcollection/mstat"
	"github.com/aristanetworks/fastcollection/onode"
)

// DefaultBucketCount is used when a caller opens a table with bucketCount
// <= 0.
const DefaultBucketCount = 1024

const (
	// table header, fixed fields preceding the bucket array.
	offBucketCount = 0  // int64
	offTableSize   = 8  // int64, persistent count incl. not-yet-reclaimed expired
	offModifiedAt  = 16 // int64
	tableHeaderSize = 24

	// per-bucket fields.
	offBucketHead = 0  // int64, atomic
	offBucketSize = 8  // int64, persistent count for this bucket
	offBucketLock = 16 // ipcmutex.Size bytes
	bucketSize    = 24
)

// Table is a persistent, memory-mapped separately chained hash table.
type Table struct {
	seg    *arena.Segment
	header int64
	log    logger.Logger
	stats  mstat.Counters
}

// Stats returns a snapshot of this process's activity counters for the
// table, alongside its current live size.
func (t *Table) Stats() mstat.Snapshot { return t.stats.Snapshot(t.Size()) }

// Open attaches to (or, on first use, constructs) the named table inside
// seg with bucketCount buckets. bucketCount must be a power of two
// (ErrInvalidArgument otherwise); DefaultBucketCount is used when
// bucketCount <= 0. Reattaching processes get the bucket count the table
// was actually constructed with, even if they pass a different value.
func Open(seg *arena.Segment, name string, bucketCount int, log logger.Logger) (*Table, error) {
	if log == nil {
		log = logger.Nop{}
	}
	if bucketCount <= 0 {
		bucketCount = DefaultBucketCount
	}
	if bucketCount&(bucketCount-1) != 0 {
		return nil, fmt.Errorf("%w: bucket count %d is not a power of two", fcerr.ErrInvalidArgument, bucketCount)
	}

	size := tableHeaderSize + int64(bucketCount)*bucketSize
	off, err := seg.FindOrConstruct(name, size, func(b []byte) {
		binary.LittleEndian.PutUint64(b[offBucketCount:], uint64(bucketCount))
		binary.LittleEndian.PutUint64(b[offTableSize:], 0)
		binary.LittleEndian.PutUint64(b[offModifiedAt:], uint64(now()))
		for i := 0; i < bucketCount; i++ {
			bucket := b[tableHeaderSize+int64(i)*bucketSize:]
			binary.LittleEndian.PutUint64(bucket[offBucketHead:], uint64(arena.NoOffset))
			binary.LittleEndian.PutUint64(bucket[offBucketSize:], 0)
			ipcmutex.Init(bucket[offBucketLock:])
		}
	})
	if err != nil {
		return nil, err
	}

	t := &Table{seg: seg, header: off, log: log}
	storedCount := t.bucketCount()
	if storedCount <= 0 || storedCount&(storedCount-1) != 0 {
		return nil, fmt.Errorf("%w: stored bucket count %d is not a power of two", fcerr.ErrCorruptedState, storedCount)
	}
	return t, nil
}

func now() int64 { return time.Now().UnixNano() }

func (t *Table) headerBytes() []byte { return t.seg.Bytes(t.header, tableHeaderSize) }

func (t *Table) int64Ptr(fieldOffset int64) *int64 {
	return (*int64)(unsafe.Pointer(&t.headerBytes()[fieldOffset]))
}

func (t *Table) bucketCount() int64 {
	return int64(binary.LittleEndian.Uint64(t.headerBytes()[offBucketCount:]))
}

func (t *Table) tableSize() int64     { return atomic.LoadInt64(t.int64Ptr(offTableSize)) }
func (t *Table) addTableSize(d int64) { atomic.AddInt64(t.int64Ptr(offTableSize), d) }
func (t *Table) touchModifiedAt() {
	binary.LittleEndian.PutUint64(t.headerBytes()[offModifiedAt:], uint64(now()))
}

func (t *Table) bucketBytes(i int64) []byte {
	off := t.header + tableHeaderSize + i*bucketSize
	return t.seg.Bytes(off, bucketSize)
}

func (t *Table) bucketInt64Ptr(i, fieldOffset int64) *int64 {
	return (*int64)(unsafe.Pointer(&t.bucketBytes(i)[fieldOffset]))
}

func (t *Table) bucketHead(i int64) int64     { return atomic.LoadInt64(t.bucketInt64Ptr(i, offBucketHead)) }
func (t *Table) setBucketHead(i, v int64)     { atomic.StoreInt64(t.bucketInt64Ptr(i, offBucketHead), v) }
func (t *Table) bucketSizeCount(i int64) int64 { return atomic.LoadInt64(t.bucketInt64Ptr(i, offBucketSize)) }
func (t *Table) addBucketSize(i, d int64)      { atomic.AddInt64(t.bucketInt64Ptr(i, offBucketSize), d) }

func (t *Table) bucketLock(i int64) ipcmutex.Mutex {
	return ipcmutex.For(t.bucketBytes(i)[offBucketLock:])
}

func (t *Table) bucketIndex(hash uint32) int64 {
	return int64(hash) & (t.bucketCount() - 1)
}

func (t *Table) node(offset int64) onode.Node { return onode.At(t.seg, offset) }

// Size walks every bucket and counts live entries. The persistent
// counters (table and per bucket) include not-yet-reclaimed expired
// entries, so the public count always recomputes.
func (t *Table) Size() int {
	tm := now()
	count := 0
	buckets := t.bucketCount()
	for i := int64(0); i < buckets; i++ {
		lock := t.bucketLock(i)
		lock.Lock()
		off := t.bucketHead(i)
		for off != arena.NoOffset {
			n := t.node(off)
			if n.IsAlive(tm) {
				count++
			}
			off = n.Next()
		}
		lock.Unlock()
	}
	return count
}

// IsEmpty reports whether the table has no live entries.
func (t *Table) IsEmpty() bool { return t.Size() == 0 }
