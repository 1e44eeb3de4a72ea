// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package mhash

import (
	"github.com/aristanetworks/fastcollection/arena"
	"github.com/aristanetworks/fastcollection/fcerr"
	"github.com/aristanetworks/fastcollection/monotime"
	"github.com/aristanetworks/fastcollection/onode"
)

// Bucket chains are singly linked through each node's next offset; prev
// is left at NoOffset and never consulted. Unlinking tracks the
// predecessor while walking instead.

func (t *Table) allocEntry(key, value []byte, hash uint32, ttl int64) (int64, error) {
	payload := encodeEntry(key, value)
	off, err := t.seg.Allocate(onode.TotalSize(int64(len(payload))))
	if err != nil {
		return arena.NoOffset, err
	}
	onode.ConstructWithHash(t.seg, off, payload, hash, ttl, now())
	return off, nil
}

func (t *Table) freeEntry(offset int64) {
	size := onode.TotalSize(t.node(offset).DataSize())
	if err := t.seg.Deallocate(offset, size); err != nil {
		t.log.Errorf("mhash: deallocate %d: %v", offset, err)
	}
}

// reviveEntry overwrites an existing node's key/value/ttl in place if the
// new encoded payload is the same size, otherwise allocates a fresh node
// and splices it in place of the old one (the old node is freed). It
// returns the (possibly new) offset.
func (t *Table) reviveEntry(idx, offset, prev int64, key, value []byte, hash uint32, ttl int64) (int64, error) {
	payload := encodeEntry(key, value)
	n := t.node(offset)
	if int64(len(payload)) == n.DataSize() {
		onode.ReviveWithHash(t.seg, offset, payload, hash, ttl, now())
		return offset, nil
	}

	newOff, err := t.seg.Allocate(onode.TotalSize(int64(len(payload))))
	if err != nil {
		return arena.NoOffset, err
	}
	onode.ConstructWithHash(t.seg, newOff, payload, hash, ttl, now())
	next := n.Next()
	t.node(newOff).SetNext(next)
	if prev == arena.NoOffset {
		t.setBucketHead(idx, newOff)
	} else {
		t.node(prev).SetNext(newOff)
	}
	t.freeEntry(offset)
	return newOff, nil
}

// findLocked scans bucket idx's chain for a node whose key matches, and
// must be called with that bucket's lock held. It returns the matching
// node's offset and its predecessor's offset (NoOffset if it's the bucket
// head), or found == false.
func (t *Table) findLocked(idx int64, hash uint32, key []byte) (offset, prev int64, found bool) {
	prev = arena.NoOffset
	off := t.bucketHead(idx)
	for off != arena.NoOffset {
		n := t.node(off)
		if n.HashCode() == hash && bytesEqual(decodeKey(n.Payload()), key) {
			return off, prev, true
		}
		prev = off
		off = n.Next()
	}
	return arena.NoOffset, arena.NoOffset, false
}

func (t *Table) linkHeadLocked(idx, offset int64) {
	head := t.bucketHead(idx)
	t.node(offset).SetNext(head)
	t.setBucketHead(idx, offset)
}

func (t *Table) unlinkLocked(idx, offset, prev int64) {
	next := t.node(offset).Next()
	if prev == arena.NoOffset {
		t.setBucketHead(idx, next)
	} else {
		t.node(prev).SetNext(next)
	}
}

// Add inserts key (Set semantics: value is always empty). If a live entry
// already exists for key, Add is a no-op and returns false. If an expired
// entry exists, it is revived with the new TTL. Otherwise a new entry is
// linked at the bucket head.
func (t *Table) Add(key []byte, ttl int64) (bool, error) {
	if len(key) == 0 {
		return false, fcerr.ErrInvalidArgument
	}
	return t.put(key, nil, ttl, false)
}

// Put inserts or overwrites key's value, always succeeding. It returns
// the previous live value (if any).
func (t *Table) Put(key, value []byte, ttl int64) ([]byte, bool, error) {
	if len(key) == 0 {
		return nil, false, fcerr.ErrInvalidArgument
	}
	return t.putReturningPrevious(key, value, ttl, true)
}

// PutIfAbsent inserts key's value only if no live entry exists; it never
// overwrites a live entry. It returns the existing live value if one was
// present.
func (t *Table) PutIfAbsent(key, value []byte, ttl int64) ([]byte, bool, error) {
	if len(key) == 0 {
		return nil, false, fcerr.ErrInvalidArgument
	}
	return t.putReturningPrevious(key, value, ttl, false)
}

func (t *Table) put(key, value []byte, ttl int64, overwriteLive bool) (bool, error) {
	_, hadPrevious, err := t.putReturningPrevious(key, value, ttl, overwriteLive)
	return !hadPrevious, err
}

func (t *Table) putReturningPrevious(key, value []byte, ttl int64, overwriteLive bool) ([]byte, bool, error) {
	t.stats.IncrWrites()
	hash := onode.HashPayload(key)
	idx := t.bucketIndex(hash)
	lock := t.bucketLock(idx)
	lock.Lock()
	defer lock.Unlock()

	tm := now()
	off, prev, found := t.findLocked(idx, hash, key)
	if found {
		n := t.node(off)
		if n.IsAlive(tm) {
			previous := cloneBytes(decodeValue(n.Payload()))
			if overwriteLive {
				if _, err := t.reviveEntry(idx, off, prev, key, value, hash, ttl); err != nil {
					return nil, false, err
				}
				t.touchModifiedAt()
			}
			return previous, true, nil
		}
		// Expired: revive in place regardless of overwriteLive, since an
		// expired entry is logically absent.
		if _, err := t.reviveEntry(idx, off, prev, key, value, hash, ttl); err != nil {
			return nil, false, err
		}
		t.touchModifiedAt()
		return nil, false, nil
	}

	newOff, err := t.allocEntry(key, value, hash, ttl)
	if err != nil {
		return nil, false, err
	}
	t.linkHeadLocked(idx, newOff)
	t.addTableSize(1)
	t.addBucketSize(idx, 1)
	t.touchModifiedAt()
	return nil, false, nil
}

// Replace overwrites key's value only if a live entry already exists,
// returning the previous value. If no live entry exists, it is a no-op.
func (t *Table) Replace(key, value []byte, ttl int64) ([]byte, bool, error) {
	if len(key) == 0 {
		return nil, false, fcerr.ErrInvalidArgument
	}
	t.stats.IncrWrites()
	hash := onode.HashPayload(key)
	idx := t.bucketIndex(hash)
	lock := t.bucketLock(idx)
	lock.Lock()
	defer lock.Unlock()

	tm := now()
	off, prev, found := t.findLocked(idx, hash, key)
	if !found {
		return nil, false, nil
	}
	n := t.node(off)
	if !n.IsAlive(tm) {
		return nil, false, nil
	}
	previous := cloneBytes(decodeValue(n.Payload()))
	if _, err := t.reviveEntry(idx, off, prev, key, value, hash, ttl); err != nil {
		return nil, false, err
	}
	t.touchModifiedAt()
	return previous, true, nil
}

// Get returns the live value for key, if any. It proceeds without taking
// the bucket lock: acquire loads on the chain's next offsets plus the
// is_alive check give the spec's accepted "eventually consistent" read
// semantics.
func (t *Table) Get(key []byte) ([]byte, bool) {
	t.stats.IncrReads()
	hash := onode.HashPayload(key)
	idx := t.bucketIndex(hash)
	tm := now()
	off := t.bucketHead(idx)
	for off != arena.NoOffset {
		n := t.node(off)
		if n.HashCode() == hash && n.IsAlive(tm) && bytesEqual(decodeKey(n.Payload()), key) {
			t.stats.IncrHits()
			return cloneBytes(decodeValue(n.Payload())), true
		}
		off = n.Next()
	}
	t.stats.IncrMisses()
	return nil, false
}

// GetOrDefault returns the live value for key, or def if absent.
func (t *Table) GetOrDefault(key, def []byte) []byte {
	if v, ok := t.Get(key); ok {
		return v
	}
	return def
}

// Contains reports whether a live entry exists for key.
func (t *Table) Contains(key []byte) bool {
	_, ok := t.Get(key)
	return ok
}

// GetTTL returns the remaining TTL (seconds, -1 if never-expiring) for
// key's live entry.
func (t *Table) GetTTL(key []byte) (int64, bool) {
	hash := onode.HashPayload(key)
	idx := t.bucketIndex(hash)
	tm := now()
	off := t.bucketHead(idx)
	for off != arena.NoOffset {
		n := t.node(off)
		if n.HashCode() == hash && n.IsAlive(tm) && bytesEqual(decodeKey(n.Payload()), key) {
			return n.RemainingTTLSeconds(tm), true
		}
		off = n.Next()
	}
	return 0, false
}

// SetTTL mutates only the expiry of key's live entry.
func (t *Table) SetTTL(key []byte, ttl int64) bool {
	t.stats.IncrWrites()
	hash := onode.HashPayload(key)
	idx := t.bucketIndex(hash)
	lock := t.bucketLock(idx)
	lock.Lock()
	defer lock.Unlock()

	tm := now()
	off, _, found := t.findLocked(idx, hash, key)
	if !found {
		return false
	}
	n := t.node(off)
	if !n.IsAlive(tm) {
		return false
	}
	onode.ReviveWithHash(t.seg, off, n.Payload(), hash, ttl, tm)
	t.touchModifiedAt()
	return true
}

// Remove unlinks and frees key's live entry, returning its value. An
// expired entry is left for RemoveExpired to reclaim: it is logically
// already absent.
func (t *Table) Remove(key []byte) ([]byte, bool) {
	t.stats.IncrWrites()
	hash := onode.HashPayload(key)
	idx := t.bucketIndex(hash)
	lock := t.bucketLock(idx)
	lock.Lock()
	defer lock.Unlock()

	tm := now()
	off, prev, found := t.findLocked(idx, hash, key)
	if !found || !t.node(off).IsAlive(tm) {
		return nil, false
	}
	value := cloneBytes(decodeValue(t.node(off).Payload()))
	t.unlinkLocked(idx, off, prev)
	t.node(off).MarkDeleted()
	t.freeEntry(off)
	t.addTableSize(-1)
	t.addBucketSize(idx, -1)
	t.touchModifiedAt()
	return value, true
}

// AddAll inserts every key in keys (Set semantics), returning how many
// were newly inserted (as opposed to already live).
func (t *Table) AddAll(keys [][]byte, ttl int64) (int, error) {
	inserted := 0
	for _, k := range keys {
		ok, err := t.Add(k, ttl)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// RemoveAll removes every key in keys, returning how many were actually
// removed.
func (t *Table) RemoveAll(keys [][]byte) int {
	removed := 0
	for _, k := range keys {
		if _, ok := t.Remove(k); ok {
			removed++
		}
	}
	return removed
}

// RetainIf calls pred with each live entry's key and value, under that
// entry's bucket lock, and removes every entry for which pred returns
// false. pred must not call back into this table: every bucket lock is
// non-reentrant.
func (t *Table) RetainIf(pred func(key, value []byte) bool) int {
	t.stats.IncrWrites()
	removed := 0
	tm := now()
	buckets := t.bucketCount()
	for i := int64(0); i < buckets; i++ {
		lock := t.bucketLock(i)
		lock.Lock()
		prev := arena.NoOffset
		off := t.bucketHead(i)
		for off != arena.NoOffset {
			n := t.node(off)
			next := n.Next()
			if n.IsAlive(tm) && !pred(decodeKey(n.Payload()), decodeValue(n.Payload())) {
				t.unlinkLocked(i, off, prev)
				n.MarkDeleted()
				t.freeEntry(off)
				t.addTableSize(-1)
				t.addBucketSize(i, -1)
				removed++
			} else {
				prev = off
			}
			off = next
		}
		lock.Unlock()
	}
	if removed > 0 {
		t.touchModifiedAt()
	}
	return removed
}

// RemoveExpired sweeps every bucket and frees expired entries, returning
// how many were reclaimed.
func (t *Table) RemoveExpired() int {
	t.stats.IncrWrites()
	start := monotime.Now()
	removed := 0
	tm := now()
	buckets := t.bucketCount()
	for i := int64(0); i < buckets; i++ {
		lock := t.bucketLock(i)
		lock.Lock()
		prev := arena.NoOffset
		off := t.bucketHead(i)
		for off != arena.NoOffset {
			n := t.node(off)
			next := n.Next()
			if n.IsExpired(tm) {
				t.unlinkLocked(i, off, prev)
				t.freeEntry(off)
				t.addTableSize(-1)
				t.addBucketSize(i, -1)
				removed++
			} else {
				prev = off
			}
			off = next
		}
		lock.Unlock()
	}
	if removed > 0 {
		t.touchModifiedAt()
		t.log.Infof("mhash: swept %d expired entries in %s", removed, monotime.Since(start))
	}
	return removed
}

// ForEach calls cb with each live entry's key and value, locking each
// bucket in turn, until cb returns false.
func (t *Table) ForEach(cb func(key, value []byte) bool) {
	t.stats.IncrReads()
	tm := now()
	buckets := t.bucketCount()
	for i := int64(0); i < buckets; i++ {
		lock := t.bucketLock(i)
		lock.Lock()
		off := t.bucketHead(i)
		for off != arena.NoOffset {
			n := t.node(off)
			if n.IsAlive(tm) {
				if !cb(decodeKey(n.Payload()), decodeValue(n.Payload())) {
					lock.Unlock()
					return
				}
			}
			off = n.Next()
		}
		lock.Unlock()
	}
}

// ForEachWithTTL is ForEach plus each entry's remaining TTL in seconds.
func (t *Table) ForEachWithTTL(cb func(key, value []byte, remainingTTL int64) bool) {
	t.stats.IncrReads()
	tm := now()
	buckets := t.bucketCount()
	for i := int64(0); i < buckets; i++ {
		lock := t.bucketLock(i)
		lock.Lock()
		off := t.bucketHead(i)
		for off != arena.NoOffset {
			n := t.node(off)
			if n.IsAlive(tm) {
				if !cb(decodeKey(n.Payload()), decodeValue(n.Payload()), n.RemainingTTLSeconds(tm)) {
					lock.Unlock()
					return
				}
			}
			off = n.Next()
		}
		lock.Unlock()
	}
}

// ToArray returns a copy of every live key (Set semantics; for Map
// façades the key is the relevant identity here).
func (t *Table) ToArray() [][]byte {
	var out [][]byte
	t.ForEach(func(key, _ []byte) bool {
		out = append(out, cloneBytes(key))
		return true
	})
	return out
}

// Clear unlinks and frees every entry, resetting every bucket to empty.
func (t *Table) Clear() {
	t.stats.IncrWrites()
	buckets := t.bucketCount()
	var removed int64
	for i := int64(0); i < buckets; i++ {
		lock := t.bucketLock(i)
		lock.Lock()
		off := t.bucketHead(i)
		for off != arena.NoOffset {
			next := t.node(off).Next()
			t.freeEntry(off)
			off = next
		}
		t.setBucketHead(i, arena.NoOffset)
		removed += t.bucketSizeCount(i)
		t.addBucketSize(i, -t.bucketSizeCount(i))
		lock.Unlock()
	}
	t.addTableSize(-removed)
	t.touchModifiedAt()
}
