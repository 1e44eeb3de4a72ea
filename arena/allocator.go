// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package arena

import (
	"encoding/binary"
	"fmt"

	"github.com/aristanetworks/fastcollection/fcerr"
	"github.com/aristanetworks/fastcollection/ipcmutex"
)

// Free-block header layout, written in place of the payload of a block that
// has been returned to the allocator. Every process reads and writes this
// layout directly in the mapping, so it carries its own magic number: a
// stale process-local cache entry that no longer points at a real free
// block is detected here rather than trusted.
const (
	freeBlockHeaderSize = 32

	fbOffMagic = 0  // uint32
	fbOffSize  = 8  // int64, total block size including this header
	fbOffNext  = 16 // int64, offset of next free block or NoOffset
	fbOffPrev  = 24 // int64, offset of previous free block or NoOffset

	freeMagic uint32 = 0xF2EEB10C
)

func (s *Segment) bumpOffset() int64 {
	return int64(binary.LittleEndian.Uint64(s.data[offBumpOffset:]))
}

func (s *Segment) setBumpOffset(v int64) {
	binary.LittleEndian.PutUint64(s.data[offBumpOffset:], uint64(v))
}

func (s *Segment) freeListHead() int64 {
	return int64(binary.LittleEndian.Uint64(s.data[offFreeListHead:]))
}

func (s *Segment) setFreeListHead(v int64) {
	binary.LittleEndian.PutUint64(s.data[offFreeListHead:], uint64(v))
}

func (s *Segment) readFreeBlock(offset int64) (magic uint32, size, next, prev int64) {
	b := s.data[offset:]
	magic = binary.LittleEndian.Uint32(b[fbOffMagic:])
	size = int64(binary.LittleEndian.Uint64(b[fbOffSize:]))
	next = int64(binary.LittleEndian.Uint64(b[fbOffNext:]))
	prev = int64(binary.LittleEndian.Uint64(b[fbOffPrev:]))
	return
}

func (s *Segment) writeFreeBlock(offset int64, size, next, prev int64) {
	b := s.data[offset:]
	binary.LittleEndian.PutUint32(b[fbOffMagic:], freeMagic)
	binary.LittleEndian.PutUint64(b[fbOffSize:], uint64(size))
	binary.LittleEndian.PutUint64(b[fbOffNext:], uint64(next))
	binary.LittleEndian.PutUint64(b[fbOffPrev:], uint64(prev))
}

func (s *Segment) clearFreeMagic(offset int64) {
	binary.LittleEndian.PutUint32(s.data[offset+fbOffMagic:], 0)
}

// unlinkFree removes the free block at offset from the shared doubly linked
// free list, patching its neighbors (or the list head) in place.
func (s *Segment) unlinkFree(offset, next, prev int64) {
	if prev == NoOffset {
		s.setFreeListHead(next)
	} else {
		_, pSize, _, pPrev := s.readFreeBlock(prev)
		s.writeFreeBlock(prev, pSize, next, pPrev)
	}
	if next != NoOffset {
		_, nSize, nNext, _ := s.readFreeBlock(next)
		s.writeFreeBlock(next, nSize, nNext, prev)
	}
}

// pushFree inserts a block of size bytes at offset at the head of the
// shared free list, then records it in the process-local size-class cache.
func (s *Segment) pushFree(offset, size int64) {
	head := s.freeListHead()
	s.writeFreeBlock(offset, size, head, NoOffset)
	if head != NoOffset {
		_, hSize, hNext, _ := s.readFreeBlock(head)
		s.writeFreeBlock(head, hSize, hNext, offset)
	}
	s.setFreeListHead(offset)

	s.freeMu.Lock()
	s.freeIdx.push(sizeClass(size), offset)
	s.freeMu.Unlock()
}

// Allocate reserves size bytes inside the mapping and returns their offset.
// It first consults the process-local free cache, falls back to a linear
// scan of the shared free list, and finally bump-allocates from the unused
// tail of the heap. It fails with fcerr.ErrOutOfMemory rather than ever
// growing the mapping (spec.md's no-automatic-resizing rule).
func (s *Segment) Allocate(size int64) (int64, error) {
	if size <= 0 {
		return NoOffset, fmt.Errorf("%w: allocate size %d must be positive", fcerr.ErrInvalidArgument, size)
	}
	need := size
	if need < freeBlockHeaderSize {
		need = freeBlockHeaderSize
	}

	lock := ipcmutex.For(s.data[offAllocatorLock:])
	lock.Lock()
	defer lock.Unlock()

	if off, ok := s.allocateFromCache(need); ok {
		return off, nil
	}
	if off, ok := s.allocateFromFreeList(need); ok {
		return off, nil
	}
	return s.allocateFromBump(need)
}

// allocateFromCache tries the process-local candidates before touching the
// shared free list. Every candidate is re-validated: another process may
// have reused or merged the block since it was cached.
func (s *Segment) allocateFromCache(need int64) (int64, bool) {
	class := sizeClass(need)
	s.freeMu.Lock()
	defer s.freeMu.Unlock()

	for {
		offset, ok := s.freeIdx.pop(class)
		if !ok {
			return NoOffset, false
		}
		magic, blockSize, next, prev := s.readFreeBlock(offset)
		if magic != freeMagic || blockSize < need {
			// Stale: already reused, merged, or too small now. Discard and
			// keep looking within this class.
			continue
		}
		s.unlinkFree(offset, next, prev)
		s.clearFreeMagic(offset)
		return offset, true
	}
}

// allocateFromFreeList walks the shared free list for a first-fit block,
// splitting off and re-freeing any excess large enough to host another
// free-block header.
func (s *Segment) allocateFromFreeList(need int64) (int64, bool) {
	offset := s.freeListHead()
	for offset != NoOffset {
		magic, blockSize, next, prev := s.readFreeBlock(offset)
		if magic != freeMagic {
			// Corrupted or concurrently reused entry; skip rather than trust it.
			offset = next
			continue
		}
		if blockSize >= need {
			s.unlinkFree(offset, next, prev)
			remainder := blockSize - need
			if remainder >= freeBlockHeaderSize {
				s.pushFree(offset+need, remainder)
			} else {
				need = blockSize // hand over the whole block, no split
			}
			s.clearFreeMagic(offset)
			return offset, true
		}
		offset = next
	}
	return NoOffset, false
}

func (s *Segment) allocateFromBump(need int64) (int64, error) {
	bump := s.bumpOffset()
	if bump+need > s.Size() {
		err := fmt.Errorf("%w: need %d bytes, %d remain", fcerr.ErrOutOfMemory, need, s.Size()-bump)
		s.log.Errorf("arena: %v", err)
		return NoOffset, err
	}
	s.setBumpOffset(bump + need)
	return bump, nil
}

// Deallocate returns a previously allocated block to the free list. size
// must match (or be no larger than) the size originally requested from
// Allocate; callers that tracked a smaller logical size than the padded
// allocation will simply return a slightly larger block, which is safe.
func (s *Segment) Deallocate(offset, size int64) error {
	if offset < headerSize || offset >= s.Size() {
		return fmt.Errorf("%w: deallocate offset %d out of range", fcerr.ErrInvalidArgument, offset)
	}
	need := size
	if need < freeBlockHeaderSize {
		need = freeBlockHeaderSize
	}

	lock := ipcmutex.For(s.data[offAllocatorLock:])
	lock.Lock()
	defer lock.Unlock()

	s.pushFree(offset, need)
	return nil
}
