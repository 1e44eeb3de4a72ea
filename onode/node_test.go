// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package onode

import (
	"path/filepath"
	"testing"

	"github.com/aristanetworks/fastcollection/arena"
	"github.com/aristanetworks/fastcollection/test"
)

func openSeg(t *testing.T) *arena.Segment {
	t.Helper()
	path := filepath.Join(t.TempDir(), "segment.fc")
	seg, err := arena.Open(path, arena.Options{Create: true})
	if err != nil {
		t.Fatalf("arena.Open: %v", err)
	}
	t.Cleanup(func() { seg.Close() })
	return seg
}

func TestConstructAndRead(t *testing.T) {
	seg := openSeg(t)
	payload := []byte("hello world")
	off, err := seg.Allocate(TotalSize(int64(len(payload))))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	now := int64(1_000_000_000)
	n := Construct(seg, off, payload, 0, now)

	if !n.Valid() {
		t.Fatal("node not valid after Construct")
	}
	if d := test.Diff(payload, n.Payload()); d != "" {
		t.Fatalf("Payload() mismatch:%s", d)
	}
	if n.ExpiresAtNs() != NeverExpires {
		t.Fatalf("ExpiresAtNs() = %d, want NeverExpires", n.ExpiresAtNs())
	}
	if !n.IsAlive(now) {
		t.Fatal("node should be alive with no TTL")
	}
	if n.RemainingTTLSeconds(now) != -1 {
		t.Fatalf("RemainingTTLSeconds = %d, want -1", n.RemainingTTLSeconds(now))
	}
}

func TestTTLExpiry(t *testing.T) {
	seg := openSeg(t)
	payload := []byte("temp")
	off, err := seg.Allocate(TotalSize(int64(len(payload))))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	const second = int64(1_000_000_000)
	now := int64(10 * second)
	n := Construct(seg, off, payload, 1, now) // ttl = 1s

	if !n.IsAlive(now) {
		t.Fatal("node should be alive immediately after construct")
	}
	later := now + 2*second
	if n.IsAlive(later) {
		t.Fatal("node should not be alive after ttl elapses")
	}
	if !n.IsExpired(later) {
		t.Fatal("node should report expired after ttl elapses")
	}
	if n.RemainingTTLSeconds(later) != 0 {
		t.Fatalf("RemainingTTLSeconds = %d, want 0", n.RemainingTTLSeconds(later))
	}
}

func TestMarkDeleted(t *testing.T) {
	seg := openSeg(t)
	payload := []byte("x")
	off, err := seg.Allocate(TotalSize(int64(len(payload))))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	now := int64(1)
	n := Construct(seg, off, payload, 0, now)
	n.MarkDeleted()
	if n.IsAlive(now) || n.IsExpired(now) {
		t.Fatal("a mark_deleted node must be neither alive nor expired")
	}
}

func TestLinkage(t *testing.T) {
	seg := openSeg(t)
	off, err := seg.Allocate(TotalSize(0))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	n := Construct(seg, off, nil, 0, 1)
	if n.Prev() != arena.NoOffset || n.Next() != arena.NoOffset {
		t.Fatal("fresh node must start unlinked")
	}
	n.SetPrev(42)
	n.SetNext(99)
	if n.Prev() != 42 || n.Next() != 99 {
		t.Fatal("linkage offsets did not round-trip")
	}
}

func TestRevive(t *testing.T) {
	seg := openSeg(t)
	payload := []byte("abcd")
	off, err := seg.Allocate(TotalSize(int64(len(payload))))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	const second = int64(1_000_000_000)
	n := Construct(seg, off, payload, 1, 0)
	n2 := Revive(seg, off, []byte("wxyz"), 0, 5*second)
	if !n2.Valid() {
		t.Fatal("revived node must be valid")
	}
	if string(n2.Payload()) != "wxyz" {
		t.Fatalf("Payload() = %q after revive", n2.Payload())
	}
	if n2.ExpiresAtNs() != NeverExpires {
		t.Fatalf("revived node ttl=0 should never expire, got %d", n2.ExpiresAtNs())
	}
	_ = n
}
