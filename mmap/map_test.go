// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package mmap

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/aristanetworks/fastcollection/arena"
	"github.com/aristanetworks/fastcollection/logger"
)

func openMap(t *testing.T) *Map {
	t.Helper()
	path := filepath.Join(t.TempDir(), "segment.fc")
	seg, err := arena.Open(path, arena.Options{Create: true})
	if err != nil {
		t.Fatalf("arena.Open: %v", err)
	}
	t.Cleanup(func() { seg.Close() })
	m, err := Open(seg, "mymap", 16, logger.Nop{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return m
}

func TestMapTTL(t *testing.T) {
	m := openMap(t)
	if _, _, err := m.Put([]byte("temp"), []byte("value"), 1); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if m.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", m.Size())
	}
	got, ok := m.Get([]byte("temp"))
	if !ok || string(got) != "value" {
		t.Fatalf("Get(temp) = %q, %v, want value", got, ok)
	}
	time.Sleep(2 * time.Second)
	if m.Size() != 0 {
		t.Fatalf("Size() after ttl = %d, want 0", m.Size())
	}
	if _, ok := m.Get([]byte("temp")); ok {
		t.Fatal("Get(temp) after ttl should be absent")
	}
}

func TestMapMixedTTLCache(t *testing.T) {
	m := openMap(t)
	m.Put([]byte("user:1001"), []byte("John Doe"), 1)
	m.Put([]byte("session:abc"), []byte("s"), 30)
	m.Put([]byte("config:app"), []byte("c"), -1)

	time.Sleep(1200 * time.Millisecond)

	if _, ok := m.Get([]byte("user:1001")); ok {
		t.Fatal("user:1001 should have expired")
	}
	if v, ok := m.Get([]byte("session:abc")); !ok || string(v) != "s" {
		t.Fatalf("session:abc should still be alive, got %q %v", v, ok)
	}
	if v, ok := m.Get([]byte("config:app")); !ok || string(v) != "c" {
		t.Fatalf("config:app with ttl=-1 should never expire, got %q %v", v, ok)
	}
}

// TestCrossProcessVisibility simulates two processes attaching to the same
// backing file in turn: one writes and closes, a second independently
// opens the same path and must observe the write. Two processes can't
// literally run in one test binary, but two unrelated *arena.Segment
// handles over the same path, opened and closed in sequence, exercise the
// same durability path a second OS process would.
func TestCrossProcessVisibility(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.fc")

	segA, err := arena.Open(path, arena.Options{Create: true})
	if err != nil {
		t.Fatalf("arena.Open (A): %v", err)
	}
	mapA, err := Open(segA, "mymap", 16, logger.Nop{})
	if err != nil {
		t.Fatalf("Open (A): %v", err)
	}
	if _, _, err := mapA.Put([]byte("k"), []byte("v"), 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := segA.Close(); err != nil {
		t.Fatalf("Close (A): %v", err)
	}

	segB, err := arena.Open(path, arena.Options{})
	if err != nil {
		t.Fatalf("arena.Open (B): %v", err)
	}
	defer segB.Close()
	mapB, err := Open(segB, "mymap", 16, logger.Nop{})
	if err != nil {
		t.Fatalf("Open (B): %v", err)
	}
	got, ok := mapB.Get([]byte("k"))
	if !ok || string(got) != "v" {
		t.Fatalf("Get(k) on reattached segment = %q, %v, want v", got, ok)
	}
}

func TestMapGetOrDefaultAndContainsKey(t *testing.T) {
	m := openMap(t)
	if v := m.GetOrDefault([]byte("missing"), []byte("fallback")); string(v) != "fallback" {
		t.Fatalf("GetOrDefault(missing) = %q, want fallback", v)
	}
	m.Put([]byte("k"), []byte("v"), 0)
	if !m.ContainsKey([]byte("k")) {
		t.Fatal("ContainsKey(k) = false")
	}
}
