// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package arena

import (
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T, size int64) *Segment {
	t.Helper()
	path := filepath.Join(t.TempDir(), "segment.fc")
	seg, err := Open(path, Options{InitialSize: size, Create: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { seg.Close() })
	return seg
}

func TestOpenCreatesFreshHeader(t *testing.T) {
	seg := openTemp(t, 0)
	if seg.Size() != headerSize+1<<20 {
		t.Fatalf("Size() = %d, want default 1MiB heap", seg.Size())
	}
	if seg.bumpOffset() != headerSize {
		t.Fatalf("bumpOffset = %d, want %d", seg.bumpOffset(), headerSize)
	}
	if seg.freeListHead() != NoOffset {
		t.Fatalf("freeListHead = %d, want NoOffset", seg.freeListHead())
	}
}

func TestReopenAttachesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.fc")
	seg, err := Open(path, Options{InitialSize: headerSize + 4096, Create: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	off, err := seg.Allocate(128)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	copy(seg.Bytes(off, 5), []byte("hello"))
	seg.Close()

	reopened, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if string(reopened.Bytes(off, 5)) != "hello" {
		t.Fatalf("reopened data mismatch")
	}
}

func TestAllocateBumpsThenFails(t *testing.T) {
	seg := openTemp(t, headerSize+256)
	if _, err := seg.Allocate(200); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := seg.Allocate(200); err == nil {
		t.Fatal("expected out-of-memory error")
	}
}

func TestDeallocateRecyclesBlock(t *testing.T) {
	seg := openTemp(t, headerSize+512)
	first, err := seg.Allocate(64)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := seg.Deallocate(first, 64); err != nil {
		t.Fatalf("Deallocate: %v", err)
	}
	second, err := seg.Allocate(64)
	if err != nil {
		t.Fatalf("Allocate after free: %v", err)
	}
	if second != first {
		t.Fatalf("second allocation at %d, want reused offset %d", second, first)
	}
}

func TestFindOrConstruct(t *testing.T) {
	seg := openTemp(t, 0)
	constructed := 0
	ctor := func(b []byte) {
		constructed++
		copy(b, []byte("abc"))
	}
	off1, err := seg.FindOrConstruct("thing", 3, ctor)
	if err != nil {
		t.Fatalf("FindOrConstruct: %v", err)
	}
	off2, err := seg.FindOrConstruct("thing", 3, ctor)
	if err != nil {
		t.Fatalf("FindOrConstruct second call: %v", err)
	}
	if off1 != off2 {
		t.Fatalf("offsets differ across calls: %d != %d", off1, off2)
	}
	if constructed != 1 {
		t.Fatalf("construct called %d times, want 1", constructed)
	}
}
