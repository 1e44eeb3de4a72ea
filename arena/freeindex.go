// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package arena

// sizeClassIndex is a process-local cache of free-block offsets bucketed by
// size class: a plain Go map from a uint32 size class to a stack of
// candidate offsets. It
// exists purely to avoid walking the shared free list on every allocation;
// nothing here is authoritative, because another process can splice an
// entry out of the real free list (in the mapping) without touching this
// cache. Every offset popped from it is re-validated against the live
// free-block header before use; see allocator.go.
type sizeClassIndex struct {
	buckets map[uint32][]int64
}

func newSizeClassIndex() *sizeClassIndex {
	return &sizeClassIndex{buckets: make(map[uint32][]int64)}
}

// push records offset as a candidate free block of the given size class.
func (idx *sizeClassIndex) push(class uint32, offset int64) {
	idx.buckets[class] = append(idx.buckets[class], offset)
}

// pop removes and returns a candidate offset for class, or (NoOffset, false)
// if the cache holds none. The caller must still validate the block.
func (idx *sizeClassIndex) pop(class uint32) (int64, bool) {
	stack := idx.buckets[class]
	if len(stack) == 0 {
		return NoOffset, false
	}
	last := stack[len(stack)-1]
	idx.buckets[class] = stack[:len(stack)-1]
	return last, true
}

// discard drops every cached candidate for class. The allocator does not
// call it: allocateFromCache drops stale candidates one at a time as it
// pops them.
func (idx *sizeClassIndex) discard(class uint32) {
	delete(idx.buckets, class)
}

// sizeClass buckets n bytes into a power-of-two class so that nearby
// allocation sizes share a cache bucket instead of each needing an exact
// hit. Minimum class covers the smallest free-block payload.
func sizeClass(n int64) uint32 {
	class := uint32(0)
	size := int64(freeBlockHeaderSize)
	for size < n {
		size *= 2
		class++
	}
	return class
}
