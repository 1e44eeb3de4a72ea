// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package onode defines the node layout shared by every container built on
// top of an arena.Segment: a small header (linkage offsets plus entry
// metadata) immediately followed by the caller's opaque payload bytes.
// Nothing here knows about lists, buckets, queues, or stacks; it only knows
// how to read and write one node at a fixed offset.
package onode

import (
	"encoding/binary"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/aristanetworks/fastcollection/arena"
	"github.com/cespare/xxhash/v2"
)

// NeverExpires is the expires_at_ns sentinel for a TTL of zero or less.
const NeverExpires int64 = -1

// Header field byte offsets, relative to the start of a node.
const (
	offPrev      = 0  // int64, atomic
	offNext      = 8  // int64, atomic
	offHash      = 16 // uint32, content hash of the payload
	offReserved  = 20 // uint32, padding
	offDataSize  = 24 // int64, payload length in bytes
	offCreatedAt = 32 // int64, wall-clock creation time (UnixNano)
	offExpiresAt = 40 // int64, wall-clock expiry time or NeverExpires
	offValid     = 48 // uint32, atomic; 0 = dead, 1 = live

	// HeaderSize is the number of bytes every node reserves before its
	// payload begins.
	HeaderSize = 56
)

// TotalSize returns the number of bytes a node with the given payload
// length occupies, header included. Callers pass this to arena.Allocate.
func TotalSize(payloadLen int64) int64 {
	return HeaderSize + payloadLen
}

// HashPayload computes the deterministic content hash stored in a node's
// header. It must never depend on process-local state: every process
// attached to the same segment has to compute the same hash for the same
// bytes, which rules out hash/maphash (randomly seeded per process).
func HashPayload(payload []byte) uint32 {
	return uint32(xxhash.Sum64(payload))
}

// Node is a view over one node's header and payload living at a fixed
// offset inside a segment. It holds no state of its own; every method
// reads or writes directly through the segment's mapping.
type Node struct {
	seg    *arena.Segment
	offset int64
}

// At returns a Node view over the node at offset. The caller is
// responsible for knowing that a node was actually constructed there.
func At(seg *arena.Segment, offset int64) Node {
	return Node{seg: seg, offset: offset}
}

// Offset returns the node's byte offset within the segment.
func (n Node) Offset() int64 { return n.offset }

func (n Node) header() []byte {
	return n.seg.Bytes(n.offset, HeaderSize)
}

func (n Node) int64Ptr(fieldOffset int64) *int64 {
	return (*int64)(unsafe.Pointer(&n.header()[fieldOffset]))
}

func (n Node) uint32Ptr(fieldOffset int64) *uint32 {
	return (*uint32)(unsafe.Pointer(&n.header()[fieldOffset]))
}

// Prev returns the previous-node offset with acquire semantics: a reader
// that observes a new value is guaranteed to see every write that preceded
// the corresponding release store (see Construct, SetPrev).
func (n Node) Prev() int64 { return atomic.LoadInt64(n.int64Ptr(offPrev)) }

// SetPrev stores the previous-node offset with release semantics.
func (n Node) SetPrev(v int64) { atomic.StoreInt64(n.int64Ptr(offPrev), v) }

// Next returns the next-node offset with acquire semantics.
func (n Node) Next() int64 { return atomic.LoadInt64(n.int64Ptr(offNext)) }

// SetNext stores the next-node offset with release semantics.
func (n Node) SetNext(v int64) { atomic.StoreInt64(n.int64Ptr(offNext), v) }

// HashCode returns the node's stored content hash.
func (n Node) HashCode() uint32 {
	return binary.LittleEndian.Uint32(n.header()[offHash:])
}

// DataSize returns the payload length in bytes.
func (n Node) DataSize() int64 {
	return int64(binary.LittleEndian.Uint64(n.header()[offDataSize:]))
}

// Payload returns the node's payload bytes. The returned slice aliases the
// mapping; callers that need to keep it past the next mutation must copy.
func (n Node) Payload() []byte {
	size := n.DataSize()
	return n.seg.Bytes(n.offset+HeaderSize, size)
}

// CreatedAtNs returns the node's wall-clock creation timestamp.
func (n Node) CreatedAtNs() int64 {
	return int64(binary.LittleEndian.Uint64(n.header()[offCreatedAt:]))
}

// ExpiresAtNs returns the node's wall-clock expiry timestamp, or
// NeverExpires.
func (n Node) ExpiresAtNs() int64 {
	return int64(binary.LittleEndian.Uint64(n.header()[offExpiresAt:]))
}

func (n Node) setExpiresAtNs(v int64) {
	binary.LittleEndian.PutUint64(n.header()[offExpiresAt:], uint64(v))
}

// Valid reports the node's validity flag with acquire semantics.
func (n Node) Valid() bool {
	return atomic.LoadUint32(n.uint32Ptr(offValid)) != 0
}

// MarkValid sets the validity flag with release semantics.
func (n Node) MarkValid() { atomic.StoreUint32(n.uint32Ptr(offValid), 1) }

// MarkDeleted clears the validity flag with release semantics.
func (n Node) MarkDeleted() { atomic.StoreUint32(n.uint32Ptr(offValid), 0) }

// IsAlive reports whether the node is live as of now (UnixNano wall-clock).
func (n Node) IsAlive(now int64) bool {
	return n.Valid() && (n.ExpiresAtNs() == NeverExpires || now < n.ExpiresAtNs())
}

// IsExpired reports whether the node is still marked valid but its expiry
// has passed. A node that is neither alive nor expired is dead
// (mark_deleted was called on it).
func (n Node) IsExpired(now int64) bool {
	return n.Valid() && n.ExpiresAtNs() != NeverExpires && now >= n.ExpiresAtNs()
}

// RemainingTTLSeconds returns -1 for a never-expiring node, else the
// non-negative number of whole seconds until expiry.
func (n Node) RemainingTTLSeconds(now int64) int64 {
	expires := n.ExpiresAtNs()
	if expires == NeverExpires {
		return -1
	}
	remaining := (expires - now) / int64(time.Second)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ExpiresAt converts a TTL in seconds (spec.md's convention: <= 0 means
// never expires) to an absolute wall-clock expiry timestamp anchored at
// now.
func ExpiresAt(now int64, ttlSeconds int64) int64 {
	if ttlSeconds <= 0 {
		return NeverExpires
	}
	return now + ttlSeconds*int64(time.Second)
}

// Construct initializes a freshly allocated node: it writes the full
// header (linkage offsets start at NoOffset, the caller re-links
// immediately after) and copies payload into place, then marks the node
// valid last so a concurrent reader never observes a partially built live
// node.
func Construct(seg *arena.Segment, offset int64, payload []byte, ttlSeconds int64, now int64) Node {
	n := Node{seg: seg, offset: offset}
	h := n.header()
	binary.LittleEndian.PutUint64(h[offPrev:], uint64(arena.NoOffset))
	binary.LittleEndian.PutUint64(h[offNext:], uint64(arena.NoOffset))
	binary.LittleEndian.PutUint32(h[offHash:], HashPayload(payload))
	binary.LittleEndian.PutUint64(h[offDataSize:], uint64(len(payload)))
	binary.LittleEndian.PutUint64(h[offCreatedAt:], uint64(now))
	binary.LittleEndian.PutUint64(h[offExpiresAt:], uint64(ExpiresAt(now, ttlSeconds)))
	copy(n.seg.Bytes(offset+HeaderSize, int64(len(payload))), payload)
	n.MarkValid()
	return n
}

// ConstructWithHash is Construct with an explicit content hash instead of
// one derived from the whole payload. Hash containers need this: a Map
// entry's bucket placement must depend only on its key, not its value, so
// the stored hash has to be computed over the key segment of the encoded
// payload rather than the payload as a whole.
func ConstructWithHash(seg *arena.Segment, offset int64, payload []byte, hash uint32, ttlSeconds int64, now int64) Node {
	n := Node{seg: seg, offset: offset}
	h := n.header()
	binary.LittleEndian.PutUint64(h[offPrev:], uint64(arena.NoOffset))
	binary.LittleEndian.PutUint64(h[offNext:], uint64(arena.NoOffset))
	binary.LittleEndian.PutUint32(h[offHash:], hash)
	binary.LittleEndian.PutUint64(h[offDataSize:], uint64(len(payload)))
	binary.LittleEndian.PutUint64(h[offCreatedAt:], uint64(now))
	binary.LittleEndian.PutUint64(h[offExpiresAt:], uint64(ExpiresAt(now, ttlSeconds)))
	copy(n.seg.Bytes(offset+HeaderSize, int64(len(payload))), payload)
	n.MarkValid()
	return n
}

// ReviveWithHash is Revive with an explicit content hash; see
// ConstructWithHash for why hash containers need this variant.
func ReviveWithHash(seg *arena.Segment, offset int64, payload []byte, hash uint32, ttlSeconds int64, now int64) Node {
	n := Node{seg: seg, offset: offset}
	h := n.header()
	binary.LittleEndian.PutUint32(h[offHash:], hash)
	binary.LittleEndian.PutUint64(h[offDataSize:], uint64(len(payload)))
	binary.LittleEndian.PutUint64(h[offCreatedAt:], uint64(now))
	copy(n.seg.Bytes(offset+HeaderSize, int64(len(payload))), payload)
	n.setExpiresAtNs(ExpiresAt(now, ttlSeconds))
	n.MarkValid()
	return n
}

// Revive overwrites an expired (or dead) node's payload and TTL in place
// and marks it valid again, without touching its linkage. The caller must
// hold the lock that serializes access to this node (the owning bucket's
// or container's mutex, per spec.md's revival-atomicity requirement) and
// must have already verified payload fits the node's existing data size:
// Revive never resizes a node.
func Revive(seg *arena.Segment, offset int64, payload []byte, ttlSeconds int64, now int64) Node {
	n := Node{seg: seg, offset: offset}
	h := n.header()
	binary.LittleEndian.PutUint32(h[offHash:], HashPayload(payload))
	binary.LittleEndian.PutUint64(h[offDataSize:], uint64(len(payload)))
	binary.LittleEndian.PutUint64(h[offCreatedAt:], uint64(now))
	copy(n.seg.Bytes(offset+HeaderSize, int64(len(payload))), payload)
	n.setExpiresAtNs(ExpiresAt(now, ttlSeconds))
	n.MarkValid()
	return n
}
