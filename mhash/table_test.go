// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package mhash

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristanetworks/fastcollection/arena"
	"github.com/aristanetworks/fastcollection/fcerr"
	"github.com/aristanetworks/fastcollection/logger"
)

func openTable(t *testing.T, name string, buckets int) *Table {
	t.Helper()
	path := filepath.Join(t.TempDir(), "segment.fc")
	seg, err := arena.Open(path, arena.Options{Create: true})
	if err != nil {
		t.Fatalf("arena.Open: %v", err)
	}
	t.Cleanup(func() { seg.Close() })
	tbl, err := Open(seg, name, buckets, logger.Nop{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return tbl
}

func TestRejectsNonPowerOfTwoBucketCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.fc")
	seg, err := arena.Open(path, arena.Options{Create: true})
	if err != nil {
		t.Fatalf("arena.Open: %v", err)
	}
	defer seg.Close()
	if _, err := Open(seg, "bad", 100, logger.Nop{}); err == nil {
		t.Fatal("expected error for non-power-of-two bucket count")
	}
}

func TestAddContainsRemove(t *testing.T) {
	tbl := openTable(t, "set", 16)
	ok, err := tbl.Add([]byte("a"), 0)
	if err != nil || !ok {
		t.Fatalf("Add(a) = %v, %v", ok, err)
	}
	ok, err = tbl.Add([]byte("a"), 0)
	if err != nil || ok {
		t.Fatalf("Add(a) second time = %v, %v, want false", ok, err)
	}
	if !tbl.Contains([]byte("a")) {
		t.Fatal("Contains(a) = false")
	}
	if tbl.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", tbl.Size())
	}
	if _, ok := tbl.Remove([]byte("a")); !ok {
		t.Fatal("Remove(a) = false")
	}
	if tbl.Contains([]byte("a")) {
		t.Fatal("Contains(a) after remove = true")
	}
}

func TestPutGetReplace(t *testing.T) {
	tbl := openTable(t, "map", 16)
	prev, ok, err := tbl.Put([]byte("k"), []byte("v1"), 0)
	if err != nil || ok {
		t.Fatalf("Put(k,v1) first time: prev=%q ok=%v err=%v", prev, ok, err)
	}
	got, ok := tbl.Get([]byte("k"))
	if !ok || string(got) != "v1" {
		t.Fatalf("Get(k) = %q, %v, want v1", got, ok)
	}
	prev, ok, err = tbl.Put([]byte("k"), []byte("value-two"), 0)
	if err != nil || !ok || string(prev) != "v1" {
		t.Fatalf("Put(k, value-two): prev=%q ok=%v err=%v", prev, ok, err)
	}
	got, _ = tbl.Get([]byte("k"))
	if string(got) != "value-two" {
		t.Fatalf("Get(k) after overwrite = %q", got)
	}

	prev, replaced, err := tbl.Replace([]byte("missing"), []byte("x"), 0)
	if err != nil || replaced {
		t.Fatalf("Replace(missing) should fail: %v %v %v", prev, replaced, err)
	}
	prev, replaced, err = tbl.Replace([]byte("k"), []byte("final"), 0)
	if err != nil || !replaced || string(prev) != "value-two" {
		t.Fatalf("Replace(k, final) = %q, %v, %v", prev, replaced, err)
	}
}

func TestPutIfAbsent(t *testing.T) {
	tbl := openTable(t, "map", 16)
	prev, had, err := tbl.PutIfAbsent([]byte("k"), []byte("v1"), 0)
	if err != nil || had {
		t.Fatalf("PutIfAbsent first time: %q %v %v", prev, had, err)
	}
	prev, had, err = tbl.PutIfAbsent([]byte("k"), []byte("v2"), 0)
	if err != nil || !had || string(prev) != "v1" {
		t.Fatalf("PutIfAbsent second time: %q %v %v", prev, had, err)
	}
	got, _ := tbl.Get([]byte("k"))
	if string(got) != "v1" {
		t.Fatalf("Get(k) = %q, want unchanged v1", got)
	}
}

func TestTTLExpiryMapCache(t *testing.T) {
	tbl := openTable(t, "cache", 16)
	tbl.Put([]byte("user:1001"), []byte("John Doe"), 10)
	tbl.Put([]byte("session:abc"), []byte("s"), 1)
	tbl.Put([]byte("config:app"), []byte("c"), 0)

	if tbl.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", tbl.Size())
	}
	time.Sleep(1200 * time.Millisecond)

	if _, ok := tbl.Get([]byte("session:abc")); ok {
		t.Fatal("session:abc should have expired")
	}
	if v, ok := tbl.Get([]byte("config:app")); !ok || string(v) != "c" {
		t.Fatalf("config:app should never expire, got %q %v", v, ok)
	}
	if v, ok := tbl.Get([]byte("user:1001")); !ok || string(v) != "John Doe" {
		t.Fatalf("user:1001 should still be alive, got %q %v", v, ok)
	}
}

func TestRetainIfAndForEach(t *testing.T) {
	tbl := openTable(t, "set", 16)
	tbl.Add([]byte("a"), 0)
	tbl.Add([]byte("b"), 0)
	tbl.Add([]byte("c"), 0)

	removed := tbl.RetainIf(func(key, _ []byte) bool {
		return string(key) != "b"
	})
	if removed != 1 {
		t.Fatalf("RetainIf removed %d, want 1", removed)
	}
	arr := tbl.ToArray()
	if len(arr) != 2 {
		t.Fatalf("ToArray() = %v, want 2 elements", arr)
	}
}

func TestClear(t *testing.T) {
	tbl := openTable(t, "set", 16)
	tbl.Add([]byte("a"), 0)
	tbl.Add([]byte("b"), 0)
	tbl.Clear()
	if tbl.Size() != 0 {
		t.Fatalf("Size() after Clear = %d, want 0", tbl.Size())
	}
	if !tbl.IsEmpty() {
		t.Fatal("IsEmpty() after Clear = false")
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	tbl := openTable(t, "set", 16)
	if _, err := tbl.Add(nil, 0); !errors.Is(err, fcerr.ErrInvalidArgument) {
		t.Fatalf("Add(nil) err = %v, want ErrInvalidArgument", err)
	}
	if _, _, err := tbl.Put([]byte{}, []byte("v"), 0); !errors.Is(err, fcerr.ErrInvalidArgument) {
		t.Fatalf("Put(empty, v) err = %v, want ErrInvalidArgument", err)
	}
	if _, _, err := tbl.PutIfAbsent(nil, []byte("v"), 0); !errors.Is(err, fcerr.ErrInvalidArgument) {
		t.Fatalf("PutIfAbsent(nil, v) err = %v, want ErrInvalidArgument", err)
	}
	if _, _, err := tbl.Replace(nil, []byte("v"), 0); !errors.Is(err, fcerr.ErrInvalidArgument) {
		t.Fatalf("Replace(nil, v) err = %v, want ErrInvalidArgument", err)
	}
	if tbl.Size() != 0 {
		t.Fatalf("Size() = %d, want 0 after rejected inserts", tbl.Size())
	}
}
