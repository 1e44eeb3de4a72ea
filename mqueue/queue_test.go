// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package mqueue

import (
	"path/filepath"
	"testing"

	"github.com/aristanetworks/fastcollection/arena"
	"github.com/aristanetworks/fastcollection/logger"
)

func TestQueueDeque(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segment.fc")
	seg, err := arena.Open(path, arena.Options{Create: true})
	if err != nil {
		t.Fatalf("arena.Open: %v", err)
	}
	defer seg.Close()

	q, err := Open(seg, "myqueue", logger.Nop{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	q.Offer([]byte("1"), 0)
	q.Offer([]byte("2"), 0)
	q.OfferFirst([]byte("0"), 0)

	got, ok := q.Peek()
	if !ok || string(got) != "0" {
		t.Fatalf("Peek() = %q, %v, want 0", got, ok)
	}
	got, ok = q.Poll()
	if !ok || string(got) != "0" {
		t.Fatalf("Poll() = %q, %v, want 0", got, ok)
	}
	got, ok = q.PollLast()
	if !ok || string(got) != "2" {
		t.Fatalf("PollLast() = %q, %v, want 2", got, ok)
	}
	if q.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", q.Size())
	}
}
