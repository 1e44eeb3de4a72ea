// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package mstat implements the process-local counters every container
// exposes through a Stats() method: reads, writes, cache hits/misses, and
// a last-sampled size. Counters are process-local, not stored in the
// mapping — two processes attached to the same segment keep independent
// counts of their own activity, mirroring the core's general rule that
// nothing outside the mapping is shared state.
package mstat

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Counters holds one container's atomic activity counters.
type Counters struct {
	reads  int64
	writes int64
	hits   int64
	misses int64
}

// IncrReads records one read-path call (Get, Contains, peek-style ops).
func (c *Counters) IncrReads() { atomic.AddInt64(&c.reads, 1) }

// IncrWrites records one write-path call (Add, Put, Remove, Set).
func (c *Counters) IncrWrites() { atomic.AddInt64(&c.writes, 1) }

// IncrHits records a read that found a live entry.
func (c *Counters) IncrHits() { atomic.AddInt64(&c.hits, 1) }

// IncrMisses records a read that found no live entry.
func (c *Counters) IncrMisses() { atomic.AddInt64(&c.misses, 1) }

// Snapshot is a point-in-time copy of a container's counters plus its
// last-sampled size, suitable for logging or exporting.
type Snapshot struct {
	Reads  int64
	Writes int64
	Hits   int64
	Misses int64
	Size   int64
}

// Snapshot reads every counter plus the caller-supplied current size into
// an immutable value.
func (c *Counters) Snapshot(size int) Snapshot {
	return Snapshot{
		Reads:  atomic.LoadInt64(&c.reads),
		Writes: atomic.LoadInt64(&c.writes),
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
		Size:   int64(size),
	}
}

// String renders a Snapshot the way the teacher's monitor.VarsToString
// renders expvar values: a small brace-delimited, newline-separated
// key/value block, just over plain counters instead of expvar.KeyValue.
func (s Snapshot) String() string {
	sb := strings.Builder{}
	sb.WriteString("{\n")
	fmt.Fprintf(&sb, "\t%q: %d,\n", "reads", s.Reads)
	fmt.Fprintf(&sb, "\t%q: %d,\n", "writes", s.Writes)
	fmt.Fprintf(&sb, "\t%q: %d,\n", "hits", s.Hits)
	fmt.Fprintf(&sb, "\t%q: %d,\n", "misses", s.Misses)
	fmt.Fprintf(&sb, "\t%q: %d\n", "size", s.Size)
	sb.WriteString("}")
	return sb.String()
}
