// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package mlist implements the doubly linked list container shared by the
// List, Queue, and Stack public façades. Every mutation holds the list's
// single global mutex (an ipcmutex word living in the segment); pure
// lookups may run lock-free by following acquire-ordered next/prev offsets
// and validating each node's liveness as they go.
package mlist

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/aristanetworks/fastcollection/arena"
	"github.com/aristanetworks/fastcollection/fcerr"
	"github.com/aristanetworks/fastcollection/ipcmutex"
	"github.com/aristanetworks/fastcollection/logger"
	"github.com/aristanetworks/fastcollection/monotime"
	"github.com/aristanetworks/fastcollection/mstat"
	"github.com/aristanetworks/fastcollection/onode"
)

const (
	offHead       = 0  // int64, atomic
	offTail       = 8  // int64, atomic
	offSize       = 16 // int64, persistent count of all linked nodes (incl. not-yet-reclaimed expired)
	offModifiedAt = 24 // int64
	offLock       = 32 // ipcmutex.Size bytes

	headerSize = 40
)

// List is a persistent, memory-mapped doubly linked list. Queue and Stack
// are thin method-name façades over the same structure (see packages
// mqueue and mstack).
type List struct {
	seg    *arena.Segment
	header int64
	log    logger.Logger
	stats  mstat.Counters

	cacheMu     sync.Mutex
	cacheValid  bool
	cacheIndex  int
	cacheOffset int64
}

// Stats returns a snapshot of this process's activity counters for the
// list, alongside its current live size.
func (l *List) Stats() mstat.Snapshot { return l.stats.Snapshot(l.Size()) }

// Open attaches to (or, on first use, constructs) the named list inside
// seg. Every process that opens the same name shares the same underlying
// linkage.
func Open(seg *arena.Segment, name string, log logger.Logger) (*List, error) {
	if log == nil {
		log = logger.Nop{}
	}
	off, err := seg.FindOrConstruct(name, headerSize, func(b []byte) {
		binary.LittleEndian.PutUint64(b[offHead:], uint64(arena.NoOffset))
		binary.LittleEndian.PutUint64(b[offTail:], uint64(arena.NoOffset))
		binary.LittleEndian.PutUint64(b[offSize:], 0)
		binary.LittleEndian.PutUint64(b[offModifiedAt:], uint64(now()))
		ipcmutex.Init(b[offLock:])
	})
	if err != nil {
		return nil, err
	}
	return &List{seg: seg, header: off, log: log}, nil
}

func now() int64 { return time.Now().UnixNano() }

func (l *List) headerBytes() []byte { return l.seg.Bytes(l.header, headerSize) }

func (l *List) int64Ptr(fieldOffset int64) *int64 {
	return (*int64)(unsafe.Pointer(&l.headerBytes()[fieldOffset]))
}

func (l *List) headOffset() int64      { return atomic.LoadInt64(l.int64Ptr(offHead)) }
func (l *List) setHeadOffset(v int64)  { atomic.StoreInt64(l.int64Ptr(offHead), v) }
func (l *List) tailOffset() int64      { return atomic.LoadInt64(l.int64Ptr(offTail)) }
func (l *List) setTailOffset(v int64)  { atomic.StoreInt64(l.int64Ptr(offTail), v) }
func (l *List) linkCount() int64       { return atomic.LoadInt64(l.int64Ptr(offSize)) }
func (l *List) setLinkCount(v int64)   { atomic.StoreInt64(l.int64Ptr(offSize), v) }
func (l *List) touchModifiedAt()       { binary.LittleEndian.PutUint64(l.headerBytes()[offModifiedAt:], uint64(now())) }

func (l *List) lock() ipcmutex.Mutex {
	m := ipcmutex.For(l.seg.Bytes(l.header+offLock, ipcmutex.Size))
	m.Lock()
	return m
}

func (l *List) node(offset int64) onode.Node { return onode.At(l.seg, offset) }

func (l *List) invalidateCache() {
	l.cacheMu.Lock()
	l.cacheValid = false
	l.cacheMu.Unlock()
}

func (l *List) updateCache(index int, offset int64) {
	l.cacheMu.Lock()
	l.cacheValid = true
	l.cacheIndex = index
	l.cacheOffset = offset
	l.cacheMu.Unlock()
}

// nextLiveFrom returns the first live node reachable from offset
// (offset included), skipping dead and expired nodes.
func (l *List) nextLiveFrom(offset int64, t int64) (int64, bool) {
	for offset != arena.NoOffset {
		n := l.node(offset)
		if n.IsAlive(t) {
			return offset, true
		}
		offset = n.Next()
	}
	return arena.NoOffset, false
}

// prevLiveFrom returns the first live node reachable from offset
// (offset included) walking backwards.
func (l *List) prevLiveFrom(offset int64, t int64) (int64, bool) {
	for offset != arena.NoOffset {
		n := l.node(offset)
		if n.IsAlive(t) {
			return offset, true
		}
		offset = n.Prev()
	}
	return arena.NoOffset, false
}

// liveSize walks the whole list counting live nodes. The persistent link
// counter includes not-yet-reclaimed expired nodes, so public size must
// always recount.
func (l *List) liveSize() int {
	t := now()
	count := 0
	off, ok := l.nextLiveFrom(l.headOffset(), t)
	for ok {
		count++
		off, ok = l.nextLiveFrom(l.node(off).Next(), t)
	}
	return count
}

// Size returns the number of live elements.
func (l *List) Size() int { return l.liveSize() }

func (l *List) cachedStart(target int) (int64, bool) {
	l.cacheMu.Lock()
	valid, idx, off := l.cacheValid, l.cacheIndex, l.cacheOffset
	l.cacheMu.Unlock()
	if !valid {
		return arena.NoOffset, false
	}
	t := now()
	switch target {
	case idx:
		if l.node(off).IsAlive(t) {
			return off, true
		}
		return arena.NoOffset, false
	case idx + 1:
		next, ok := l.nextLiveFrom(l.node(off).Next(), t)
		return next, ok
	case idx - 1:
		prev, ok := l.prevLiveFrom(l.node(off).Prev(), t)
		return prev, ok
	default:
		return arena.NoOffset, false
	}
}

// nodeAtIndex returns the offset of the target-th live node (0-based), or
// false if target is out of range. It consults the sequential-access
// cache first, then falls back to a head- or tail-anchored walk depending
// on which is closer.
func (l *List) nodeAtIndex(target int) (int64, bool) {
	if target < 0 {
		return arena.NoOffset, false
	}
	if off, ok := l.cachedStart(target); ok {
		l.updateCache(target, off)
		return off, true
	}

	liveSize := l.liveSize()
	if target >= liveSize {
		return arena.NoOffset, false
	}
	t := now()
	if target < liveSize/2 {
		off, ok := l.nextLiveFrom(l.headOffset(), t)
		idx := 0
		for ok {
			if idx == target {
				l.updateCache(idx, off)
				return off, true
			}
			idx++
			off, ok = l.nextLiveFrom(l.node(off).Next(), t)
		}
		return arena.NoOffset, false
	}

	off, ok := l.prevLiveFrom(l.tailOffset(), t)
	idx := liveSize - 1
	for ok {
		if idx == target {
			l.updateCache(idx, off)
			return off, true
		}
		idx--
		off, ok = l.prevLiveFrom(l.node(off).Prev(), t)
	}
	return arena.NoOffset, false
}

// linkAfter splices a freshly allocated node (already Construct-ed, with
// NoOffset linkage) immediately after `after` (or at the head if after ==
// NoOffset). Must be called under the list lock. New fields are published
// (via onode.Construct) before any existing node's offset is rewritten to
// point at the new one, so a lock-free reader never sees a partially
// linked node.
func (l *List) linkAfter(after int64, offset int64) {
	n := l.node(offset)
	if after == arena.NoOffset {
		head := l.headOffset()
		n.SetNext(head)
		n.SetPrev(arena.NoOffset)
		if head != arena.NoOffset {
			l.node(head).SetPrev(offset)
		} else {
			l.setTailOffset(offset)
		}
		l.setHeadOffset(offset)
		return
	}
	prevNode := l.node(after)
	next := prevNode.Next()
	n.SetPrev(after)
	n.SetNext(next)
	if next != arena.NoOffset {
		l.node(next).SetPrev(offset)
	} else {
		l.setTailOffset(offset)
	}
	prevNode.SetNext(offset)
}

// unlink removes the node at offset from the linkage (not from the heap;
// callers free it separately). Must be called under the list lock.
func (l *List) unlink(offset int64) {
	n := l.node(offset)
	prev, next := n.Prev(), n.Next()
	if prev != arena.NoOffset {
		l.node(prev).SetNext(next)
	} else {
		l.setHeadOffset(next)
	}
	if next != arena.NoOffset {
		l.node(next).SetPrev(prev)
	} else {
		l.setTailOffset(prev)
	}
	l.invalidateCache()
}

func (l *List) allocNode(payload []byte, ttl int64) (int64, error) {
	off, err := l.seg.Allocate(onode.TotalSize(int64(len(payload))))
	if err != nil {
		return arena.NoOffset, err
	}
	onode.Construct(l.seg, off, payload, ttl, now())
	return off, nil
}

func (l *List) freeNode(offset int64) {
	size := onode.TotalSize(l.node(offset).DataSize())
	if err := l.seg.Deallocate(offset, size); err != nil {
		l.log.Errorf("mlist: deallocate %d: %v", offset, err)
	}
}

// Add appends bytes at the tail.
func (l *List) Add(payload []byte, ttl int64) error {
	if len(payload) == 0 {
		return fcerr.ErrInvalidArgument
	}
	l.stats.IncrWrites()
	lock := l.lock()
	defer lock.Unlock()
	off, err := l.allocNode(payload, ttl)
	if err != nil {
		return err
	}
	l.linkAfter(l.tailOffset(), off)
	l.setLinkCount(l.linkCount() + 1)
	l.touchModifiedAt()
	return nil
}

// AddFirst prepends bytes at the head.
func (l *List) AddFirst(payload []byte, ttl int64) error {
	if len(payload) == 0 {
		return fcerr.ErrInvalidArgument
	}
	l.stats.IncrWrites()
	lock := l.lock()
	defer lock.Unlock()
	off, err := l.allocNode(payload, ttl)
	if err != nil {
		return err
	}
	l.linkAfter(arena.NoOffset, off)
	l.setLinkCount(l.linkCount() + 1)
	l.touchModifiedAt()
	l.invalidateCache()
	return nil
}

// AddAt inserts bytes immediately before the live element currently at
// index. index == current live size appends. Returns false if index is
// out of range.
func (l *List) AddAt(index int, payload []byte, ttl int64) (bool, error) {
	if len(payload) == 0 {
		return false, fcerr.ErrInvalidArgument
	}
	l.stats.IncrWrites()
	lock := l.lock()
	defer lock.Unlock()

	liveSize := l.liveSize()
	if index < 0 || index > liveSize {
		return false, nil
	}
	var after int64
	if index == liveSize {
		after = l.tailOffset()
	} else if index == 0 {
		after = arena.NoOffset
	} else {
		before, ok := l.nodeAtIndexLocked(index)
		if !ok {
			return false, nil
		}
		after = l.node(before).Prev()
	}

	off, err := l.allocNode(payload, ttl)
	if err != nil {
		return false, err
	}
	l.linkAfter(after, off)
	l.setLinkCount(l.linkCount() + 1)
	l.touchModifiedAt()
	l.invalidateCache()
	return true, nil
}

// nodeAtIndexLocked is nodeAtIndex without relying on the cache being
// safe to mutate concurrently; it is only ever called with the list lock
// already held, where nodeAtIndex's own internal locking (cacheMu) is
// still correct but redundant. It exists as a separate name purely to
// document that call site's locking context.
func (l *List) nodeAtIndexLocked(target int) (int64, bool) {
	return l.nodeAtIndex(target)
}

// Get returns the payload of the index-th live element, or (nil, false).
func (l *List) Get(index int) ([]byte, bool) {
	l.stats.IncrReads()
	off, ok := l.nodeAtIndex(index)
	if !ok {
		l.stats.IncrMisses()
		return nil, false
	}
	n := l.node(off)
	if !n.IsAlive(now()) {
		l.stats.IncrMisses()
		return nil, false
	}
	payload := n.Payload()
	out := make([]byte, len(payload))
	copy(out, payload)
	l.stats.IncrHits()
	return out, true
}

// GetFirst returns the first live element's payload.
func (l *List) GetFirst() ([]byte, bool) {
	l.stats.IncrReads()
	off, ok := l.nextLiveFrom(l.headOffset(), now())
	if !ok {
		l.stats.IncrMisses()
		return nil, false
	}
	payload := l.node(off).Payload()
	out := make([]byte, len(payload))
	copy(out, payload)
	l.stats.IncrHits()
	return out, true
}

// GetLast returns the last live element's payload.
func (l *List) GetLast() ([]byte, bool) {
	l.stats.IncrReads()
	off, ok := l.prevLiveFrom(l.tailOffset(), now())
	if !ok {
		l.stats.IncrMisses()
		return nil, false
	}
	payload := l.node(off).Payload()
	out := make([]byte, len(payload))
	copy(out, payload)
	l.stats.IncrHits()
	return out, true
}

// Set overwrites the index-th live element's payload and TTL. If the new
// payload is the same length as the old one it is written in place;
// otherwise a new node is allocated and spliced into the old node's spot.
func (l *List) Set(index int, payload []byte, ttl int64) (bool, error) {
	l.stats.IncrWrites()
	lock := l.lock()
	defer lock.Unlock()

	off, ok := l.nodeAtIndex(index)
	if !ok {
		return false, nil
	}
	n := l.node(off)
	if int64(len(payload)) == n.DataSize() {
		onode.Revive(l.seg, off, payload, ttl, now())
		l.touchModifiedAt()
		return true, nil
	}

	newOff, err := l.allocNode(payload, ttl)
	if err != nil {
		return false, err
	}
	prev, next := n.Prev(), n.Next()
	newNode := l.node(newOff)
	newNode.SetPrev(prev)
	newNode.SetNext(next)
	if prev != arena.NoOffset {
		l.node(prev).SetNext(newOff)
	} else {
		l.setHeadOffset(newOff)
	}
	if next != arena.NoOffset {
		l.node(next).SetPrev(newOff)
	} else {
		l.setTailOffset(newOff)
	}
	l.freeNode(off)
	l.touchModifiedAt()
	l.invalidateCache()
	return true, nil
}

// SetTTL mutates only the expiry of the index-th live element.
func (l *List) SetTTL(index int, ttl int64) bool {
	l.stats.IncrWrites()
	lock := l.lock()
	defer lock.Unlock()
	off, ok := l.nodeAtIndex(index)
	if !ok {
		return false
	}
	n := l.node(off)
	onode.Revive(l.seg, off, n.Payload(), ttl, now())
	l.touchModifiedAt()
	return true
}

func (l *List) removeAt(off int64) []byte {
	n := l.node(off)
	payload := n.Payload()
	out := make([]byte, len(payload))
	copy(out, payload)
	l.unlink(off)
	l.setLinkCount(l.linkCount() - 1)
	l.freeNode(off)
	l.touchModifiedAt()
	return out
}

// Remove unlinks and frees the index-th live element, returning its
// payload.
func (l *List) Remove(index int) ([]byte, bool) {
	l.stats.IncrWrites()
	lock := l.lock()
	defer lock.Unlock()
	off, ok := l.nodeAtIndex(index)
	if !ok {
		return nil, false
	}
	return l.removeAt(off), true
}

// RemoveFirst unlinks and frees the first live element.
func (l *List) RemoveFirst() ([]byte, bool) {
	l.stats.IncrWrites()
	lock := l.lock()
	defer lock.Unlock()
	off, ok := l.nextLiveFrom(l.headOffset(), now())
	if !ok {
		return nil, false
	}
	return l.removeAt(off), true
}

// RemoveLast unlinks and frees the last live element.
func (l *List) RemoveLast() ([]byte, bool) {
	l.stats.IncrWrites()
	lock := l.lock()
	defer lock.Unlock()
	off, ok := l.prevLiveFrom(l.tailOffset(), now())
	if !ok {
		return nil, false
	}
	return l.removeAt(off), true
}

// RemoveElement unlinks and frees the first live element whose payload
// equals target.
func (l *List) RemoveElement(target []byte) bool {
	l.stats.IncrWrites()
	lock := l.lock()
	defer lock.Unlock()
	hash := onode.HashPayload(target)
	t := now()
	off, ok := l.nextLiveFrom(l.headOffset(), t)
	for ok {
		n := l.node(off)
		if n.HashCode() == hash && bytesEqual(n.Payload(), target) {
			l.removeAt(off)
			return true
		}
		off, ok = l.nextLiveFrom(n.Next(), t)
	}
	return false
}

// RemoveExpired sweeps the whole list and frees every expired node,
// returning how many were reclaimed.
func (l *List) RemoveExpired() int {
	l.stats.IncrWrites()
	start := monotime.Now()
	lock := l.lock()
	defer lock.Unlock()
	t := now()
	count := 0
	off := l.headOffset()
	for off != arena.NoOffset {
		n := l.node(off)
		next := n.Next()
		if n.IsExpired(t) {
			l.unlink(off)
			l.setLinkCount(l.linkCount() - 1)
			l.freeNode(off)
			count++
		}
		off = next
	}
	if count > 0 {
		l.touchModifiedAt()
		l.log.Infof("mlist: swept %d expired node(s) in %s", count, monotime.Since(start))
	}
	return count
}

// Contains reports whether any live element equals target.
func (l *List) Contains(target []byte) bool {
	_, ok := l.IndexOf(target)
	return ok
}

// IndexOf returns the live index of the first element equal to target.
func (l *List) IndexOf(target []byte) (int, bool) {
	l.stats.IncrReads()
	hash := onode.HashPayload(target)
	t := now()
	idx := 0
	off, ok := l.nextLiveFrom(l.headOffset(), t)
	for ok {
		n := l.node(off)
		if n.HashCode() == hash && bytesEqual(n.Payload(), target) {
			l.stats.IncrHits()
			return idx, true
		}
		idx++
		off, ok = l.nextLiveFrom(n.Next(), t)
	}
	l.stats.IncrMisses()
	return 0, false
}

// LastIndexOf returns the live index of the last element equal to target.
func (l *List) LastIndexOf(target []byte) (int, bool) {
	l.stats.IncrReads()
	hash := onode.HashPayload(target)
	t := now()

	liveSize := l.liveSize()
	idx := liveSize - 1
	off, ok := l.prevLiveFrom(l.tailOffset(), t)
	for ok {
		n := l.node(off)
		if n.HashCode() == hash && bytesEqual(n.Payload(), target) {
			l.stats.IncrHits()
			return idx, true
		}
		idx--
		off, ok = l.prevLiveFrom(n.Prev(), t)
	}
	l.stats.IncrMisses()
	return 0, false
}

// Clear unlinks and frees every node, resetting the list to empty.
func (l *List) Clear() {
	l.stats.IncrWrites()
	lock := l.lock()
	defer lock.Unlock()
	off := l.headOffset()
	for off != arena.NoOffset {
		next := l.node(off).Next()
		l.freeNode(off)
		off = next
	}
	l.setHeadOffset(arena.NoOffset)
	l.setTailOffset(arena.NoOffset)
	l.setLinkCount(0)
	l.invalidateCache()
	l.touchModifiedAt()
}

// ForEach calls cb with each live element's payload in list order until
// cb returns false.
func (l *List) ForEach(cb func(payload []byte) bool) {
	l.stats.IncrReads()
	t := now()
	off, ok := l.nextLiveFrom(l.headOffset(), t)
	for ok {
		n := l.node(off)
		if !cb(n.Payload()) {
			return
		}
		off, ok = l.nextLiveFrom(n.Next(), t)
	}
}

// ForEachWithTTL calls cb with each live element's payload and remaining
// TTL (seconds, -1 if never-expiring) in list order until cb returns
// false.
func (l *List) ForEachWithTTL(cb func(payload []byte, remainingTTL int64) bool) {
	l.stats.IncrReads()
	t := now()
	off, ok := l.nextLiveFrom(l.headOffset(), t)
	for ok {
		n := l.node(off)
		if !cb(n.Payload(), n.RemainingTTLSeconds(t)) {
			return
		}
		off, ok = l.nextLiveFrom(n.Next(), t)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
