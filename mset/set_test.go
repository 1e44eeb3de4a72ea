// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package mset

import (
	"path/filepath"
	"testing"

	"github.com/aristanetworks/fastcollection/arena"
	"github.com/aristanetworks/fastcollection/logger"
)

func openSet(t *testing.T) *Set {
	t.Helper()
	path := filepath.Join(t.TempDir(), "segment.fc")
	seg, err := arena.Open(path, arena.Options{Create: true})
	if err != nil {
		t.Fatalf("arena.Open: %v", err)
	}
	t.Cleanup(func() { seg.Close() })
	s, err := Open(seg, "myset", 16, logger.Nop{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestSetAddAllRemoveAll(t *testing.T) {
	s := openSet(t)
	batch := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	inserted, err := s.AddAll(batch, 0)
	if err != nil || inserted != 3 {
		t.Fatalf("AddAll = %d, %v, want 3, nil", inserted, err)
	}
	if s.Size() != 3 {
		t.Fatalf("Size() = %d, want 3", s.Size())
	}
	removed := s.RemoveAll([][]byte{[]byte("a"), []byte("missing")})
	if removed != 1 {
		t.Fatalf("RemoveAll = %d, want 1", removed)
	}
	if s.Contains([]byte("a")) {
		t.Fatal("Contains(a) after RemoveAll = true")
	}
}

func TestSetGetTTLAndSetTTL(t *testing.T) {
	s := openSet(t)
	s.Add([]byte("short"), 1)
	ttl, ok := s.GetTTL([]byte("short"))
	if !ok || ttl < 0 {
		t.Fatalf("GetTTL(short) = %d, %v", ttl, ok)
	}
	if !s.SetTTL([]byte("short"), 0) {
		t.Fatal("SetTTL(short, 0) = false")
	}
	ttl, _ = s.GetTTL([]byte("short"))
	if ttl != -1 {
		t.Fatalf("GetTTL after SetTTL(0) = %d, want -1", ttl)
	}
}
