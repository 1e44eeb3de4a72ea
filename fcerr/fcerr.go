// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package fcerr defines the error taxonomy shared by every container and by
// the arena they are built on.
package fcerr

import "errors"

var (
	// ErrInvalidArgument is returned for a null/empty payload or key, or a
	// bucket count that is not a power of two. An out-of-range list index
	// is reported through a false result, not through this error.
	ErrInvalidArgument = errors.New("fastcollection: invalid argument")

	// ErrOutOfMemory is returned when the arena's heap cannot serve an
	// allocation. The arena never grows the backing file to satisfy it.
	ErrOutOfMemory = errors.New("fastcollection: arena out of memory")

	// ErrCorruptedState is returned when an existing backing file's header
	// fails its self-check (bad magic/version, or a bucket count that is
	// not a power of two) on open.
	ErrCorruptedState = errors.New("fastcollection: corrupted backing file")

	// ErrIOError is returned when the mapping or a flush of it fails.
	ErrIOError = errors.New("fastcollection: io error")
)
