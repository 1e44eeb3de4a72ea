// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package mstack implements the LIFO container as a thin vocabulary
// façade over mlist.List: push/pop/peek operate on the head, plus Search
// for the stack-specific "distance from top" query.
package mstack

import (
	"github.com/aristanetworks/fastcollection/arena"
	"github.com/aristanetworks/fastcollection/logger"
	"github.com/aristanetworks/fastcollection/mlist"
	"github.com/aristanetworks/fastcollection/mstat"
)

// Stack is a persistent, memory-mapped LIFO.
type Stack struct {
	list *mlist.List
}

// Open attaches to (or constructs) the named stack inside seg.
func Open(seg *arena.Segment, name string, log logger.Logger) (*Stack, error) {
	l, err := mlist.Open(seg, name, log)
	if err != nil {
		return nil, err
	}
	return &Stack{list: l}, nil
}

// Push prepends bytes at the top of the stack.
func (s *Stack) Push(payload []byte, ttl int64) error { return s.list.AddFirst(payload, ttl) }

// Pop removes and returns the top element.
func (s *Stack) Pop() ([]byte, bool) { return s.list.RemoveFirst() }

// Peek returns the top element without removing it.
func (s *Stack) Peek() ([]byte, bool) { return s.list.GetFirst() }

// Size returns the number of live elements.
func (s *Stack) Size() int { return s.list.Size() }

// Search returns the 1-based distance from the top of the stack to the
// first live element equal to target, or -1 if not found.
func (s *Stack) Search(target []byte) int {
	idx, ok := s.list.IndexOf(target)
	if !ok {
		return -1
	}
	return idx + 1
}

// RemoveExpired sweeps the whole stack and frees every expired node.
func (s *Stack) RemoveExpired() int { return s.list.RemoveExpired() }

// Stats returns a snapshot of this process's activity counters.
func (s *Stack) Stats() mstat.Snapshot { return s.list.Stats() }
