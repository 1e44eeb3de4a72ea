// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package ipcmutex implements a mutex whose state word lives inside a
// memory-mapped file instead of process memory, so that every process
// mapping the same file serializes on the same lock. It is the in-mapping
// counterpart of the teacher's sync/semaphore wrapper: a small struct around
// a primitive synchronization word with its own bookkeeping, except here the
// word is shared across process boundaries rather than goroutines.
//
// Robustness against a crashed holder is not provided: if a process dies
// while holding the lock, every other attached process blocks forever. This
// mirrors the limitation spec.md calls out explicitly for this design.
package ipcmutex

import (
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"
)

// Size is the number of bytes a Mutex occupies in the mapping. Callers
// reserve this many (8-byte aligned) bytes per lock.
const Size = 8

const (
	unlocked int32 = 0
	locked   int32 = 1
)

// Mutex is a view over one lock word living at a fixed offset inside a
// memory-mapped segment. It has no state of its own besides the pointer to
// that word, so it is cheap to construct on every use via For.
type Mutex struct {
	word *int32
}

// For returns a Mutex backed by the first 4 bytes of b. b must be at least
// Size bytes and must come from shared (mmap'd) memory that every attached
// process can see.
func For(b []byte) Mutex {
	return Mutex{word: (*int32)(unsafe.Pointer(&b[0]))}
}

// Init sets the lock word to unlocked. Only the process that first creates
// the segment should call this; attaching processes must never re-init a
// lock another process might be holding.
func Init(b []byte) {
	atomic.StoreInt32((*int32)(unsafe.Pointer(&b[0])), unlocked)
}

// Lock blocks, retrying with a stepped backoff (a few yields, then 1µs
// sleeps, then 1ms sleeps), until the lock is acquired. Acquisition is
// unbounded: the core exposes no timeouts.
func (m Mutex) Lock() {
	spins := 0
	for !atomic.CompareAndSwapInt32(m.word, unlocked, locked) {
		backoff(spins)
		spins++
	}
}

// TryLock attempts to acquire the lock before timeout elapses. It exists for
// callers layering their own deadlines on top of the core (spec.md §5),
// such as the cmd/mlock example collaborator.
func (m Mutex) TryLock(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	spins := 0
	for {
		if atomic.CompareAndSwapInt32(m.word, unlocked, locked) {
			return true
		}
		if timeout >= 0 && time.Now().After(deadline) {
			return false
		}
		backoff(spins)
		spins++
	}
}

// Unlock releases the lock. Unlocking a lock the caller doesn't hold is a
// programming error and corrupts the mutex for every attached process.
func (m Mutex) Unlock() {
	atomic.StoreInt32(m.word, unlocked)
}

func backoff(spins int) {
	switch {
	case spins < 4:
		runtime.Gosched()
	case spins < 16:
		time.Sleep(time.Microsecond)
	default:
		time.Sleep(time.Millisecond)
	}
}
