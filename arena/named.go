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

// slotOffset returns the byte offset of named-object slot i.
func slotOffset(i int) int64 {
	return offNamedTable + int64(i)*namedSlotSize
}

func (s *Segment) namedCount() int {
	return int(binary.LittleEndian.Uint32(s.data[offNamedCount:]))
}

func (s *Segment) setNamedCount(n int) {
	binary.LittleEndian.PutUint32(s.data[offNamedCount:], uint32(n))
}

// Find returns the offset previously registered under name, or (NoOffset,
// false) if no such name has been constructed in this segment.
func (s *Segment) Find(name string) (int64, bool) {
	count := s.namedCount()
	for i := 0; i < count; i++ {
		slot := s.data[slotOffset(i):]
		if slotName(slot) == name {
			return int64(binary.LittleEndian.Uint64(slot[nameLen:])), true
		}
	}
	return NoOffset, false
}

// FindOrConstruct returns the offset registered under name, constructing a
// new object of size bytes (via construct, which fills in the bytes at the
// returned offset) and registering it under name if it doesn't exist yet.
// The first process to open a fresh segment is the one that actually runs
// construct; every later attacher just finds the existing offset.
func (s *Segment) FindOrConstruct(name string, size int64, construct func(b []byte)) (int64, error) {
	lock := ipcmutex.For(s.data[offDirectoryLock:])
	lock.Lock()
	defer lock.Unlock()

	// Look the name up under the lock, so that two openers racing to
	// construct the same object end up with one shared offset.
	if off, ok := s.Find(name); ok {
		return off, nil
	}
	if len(name) >= nameLen {
		return NoOffset, fmt.Errorf("%w: named object %q longer than %d bytes", fcerr.ErrInvalidArgument, name, nameLen-1)
	}
	count := s.namedCount()
	if count >= maxNamedObjects {
		return NoOffset, fmt.Errorf("%w: named object table full (max %d)", fcerr.ErrOutOfMemory, maxNamedObjects)
	}

	off, err := s.Allocate(size)
	if err != nil {
		return NoOffset, err
	}
	construct(s.Bytes(off, size))

	slot := s.data[slotOffset(count):]
	clear(slot[:nameLen])
	copy(slot[:nameLen], name)
	binary.LittleEndian.PutUint64(slot[nameLen:], uint64(off))
	s.setNamedCount(count + 1)
	return off, nil
}

func slotName(slot []byte) string {
	raw := slot[:nameLen]
	n := 0
	for n < len(raw) && raw[n] != 0 {
		n++
	}
	return string(raw[:n])
}
