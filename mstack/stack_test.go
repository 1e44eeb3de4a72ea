// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package mstack

import (
	"path/filepath"
	"testing"

	"github.com/aristanetworks/fastcollection/arena"
	"github.com/aristanetworks/fastcollection/logger"
)

func TestStackSearch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.fc")
	seg, err := arena.Open(path, arena.Options{Create: true})
	if err != nil {
		t.Fatalf("arena.Open: %v", err)
	}
	defer seg.Close()

	s, err := Open(seg, "mystack", logger.Nop{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	s.Push([]byte("bottom"), 0)
	s.Push([]byte("middle"), 0)
	s.Push([]byte("top"), 0)

	got, ok := s.Peek()
	if !ok || string(got) != "top" {
		t.Fatalf("Peek() = %q, %v, want top", got, ok)
	}
	if pos := s.Search([]byte("bottom")); pos != 3 {
		t.Fatalf("Search(bottom) = %d, want 3", pos)
	}
	if pos := s.Search([]byte("missing")); pos != -1 {
		t.Fatalf("Search(missing) = %d, want -1", pos)
	}
	popped, ok := s.Pop()
	if !ok || string(popped) != "top" {
		t.Fatalf("Pop() = %q, %v, want top", popped, ok)
	}
	if s.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", s.Size())
	}
}
