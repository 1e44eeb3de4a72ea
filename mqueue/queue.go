// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package mqueue implements the FIFO/deque container as a thin
// vocabulary façade over mlist.List: same layout, restricted operation
// names, per spec.md's "Queue: same layout" rule. Priority is collapsed to
// "index 0 is the front" at this layer.
package mqueue

import (
	"github.com/aristanetworks/fastcollection/arena"
	"github.com/aristanetworks/fastcollection/logger"
	"github.com/aristanetworks/fastcollection/mlist"
	"github.com/aristanetworks/fastcollection/mstat"
)

// Queue is a persistent, memory-mapped FIFO/deque.
type Queue struct {
	list *mlist.List
}

// Open attaches to (or constructs) the named queue inside seg.
func Open(seg *arena.Segment, name string, log logger.Logger) (*Queue, error) {
	l, err := mlist.Open(seg, name, log)
	if err != nil {
		return nil, err
	}
	return &Queue{list: l}, nil
}

// Offer appends bytes at the tail.
func (q *Queue) Offer(payload []byte, ttl int64) error { return q.list.Add(payload, ttl) }

// OfferFirst prepends bytes at the head.
func (q *Queue) OfferFirst(payload []byte, ttl int64) error { return q.list.AddFirst(payload, ttl) }

// Poll removes and returns the head element, skipping any expired ones.
func (q *Queue) Poll() ([]byte, bool) { return q.list.RemoveFirst() }

// PollLast removes and returns the tail element, skipping any expired ones.
func (q *Queue) PollLast() ([]byte, bool) { return q.list.RemoveLast() }

// Peek returns the head element without removing it.
func (q *Queue) Peek() ([]byte, bool) { return q.list.GetFirst() }

// PeekLast returns the tail element without removing it.
func (q *Queue) PeekLast() ([]byte, bool) { return q.list.GetLast() }

// Size returns the number of live elements.
func (q *Queue) Size() int { return q.list.Size() }

// RemoveExpired sweeps the whole queue and frees every expired node.
func (q *Queue) RemoveExpired() int { return q.list.RemoveExpired() }

// Stats returns a snapshot of this process's activity counters.
func (q *Queue) Stats() mstat.Snapshot { return q.list.Stats() }
