// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

// Package arena implements the mapped-segment manager: it opens or creates a
// backing file, maps it into the process, and exposes a named-object table
// plus a variable-size allocator that operate entirely inside the mapping.
//
// Nothing in this package, or in any package built on it, ever persists a
// real pointer. Every cross-reference is a byte offset from the start of the
// mapping (NoOffset for "none"), because two processes mapping the same file
// are not guaranteed to receive the same virtual address.
package arena

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/aristanetworks/fastcollection/fcerr"
	"github.com/aristanetworks/fastcollection/ipcmutex"
	"github.com/aristanetworks/fastcollection/logger"
)

// NoOffset is the sentinel byte offset meaning "no node".
const NoOffset int64 = -1

const (
	magic         uint64 = 0xFA57C011EC7104E1
	formatVersion uint32 = 1

	// headerSize is the fixed region at the start of the file reserved for
	// the segment header and the named-object directory. The heap begins
	// immediately after it.
	headerSize = 4096

	maxNamedObjects = 24
	nameLen         = 48
	namedSlotSize   = nameLen + 8 // name + int64 offset

	// header field byte offsets within the file.
	offMagic         = 0
	offVersion       = 8
	offReserved      = 12
	offFileSize      = 16
	offBumpOffset    = 24
	offFreeListHead  = 32
	offNamedCount    = 40
	offAllocatorLock = 48 // ipcmutex word guarding the allocator
	offDirectoryLock = 56 // ipcmutex word guarding the named-object table
	offNamedTable    = 64
)

func init() {
	if offNamedTable+maxNamedObjects*namedSlotSize > headerSize {
		panic("arena: named object table does not fit in headerSize")
	}
}

// Segment is an open mapping of one backing file, shared by every process
// that has called Open or Create on the same path.
type Segment struct {
	path string
	file *os.File
	data []byte // the full mmap'd region, including the header

	log logger.Logger

	// freeIdx is a process-local cache accelerating allocation; it never
	// holds the only copy of any fact about the heap. See allocator.go.
	freeMu  sync.Mutex
	freeIdx *sizeClassIndex
}

// Options configure Open.
type Options struct {
	// InitialSize is the size in bytes the backing file is created with.
	// Ignored when attaching to an existing file.
	InitialSize int64
	// Create truncates and reinitializes the file if it already exists,
	// and creates it if it doesn't.
	Create bool
	// Logger receives diagnostic messages (a corrupted header on attach,
	// allocator exhaustion). Defaults to a no-op logger.
	Logger logger.Logger
}

// Open opens or creates the backing file at path and maps it into the
// process. The first process to open a fresh file initializes the header;
// subsequent openers attach to the existing one.
func Open(path string, opts Options) (*Segment, error) {
	if opts.InitialSize <= headerSize {
		opts.InitialSize = headerSize + 1<<20 // 1 MiB heap minimum
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop{}
	}

	flags := os.O_RDWR
	_, statErr := os.Stat(path)
	fresh := opts.Create || os.IsNotExist(statErr)
	if fresh {
		flags |= os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", fcerr.ErrIOError, path, err)
	}

	size := opts.InitialSize
	if fresh {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: truncate %s: %v", fcerr.ErrIOError, path, err)
		}
	} else {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: stat %s: %v", fcerr.ErrIOError, path, err)
		}
		size = info.Size()
		if size < headerSize {
			f.Close()
			err := fmt.Errorf("%w: %s is smaller than the segment header", fcerr.ErrCorruptedState, path)
			opts.Logger.Errorf("arena: %v", err)
			return nil, err
		}
	}

	data, err := mmapFile(f, size)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: mmap %s: %v", fcerr.ErrIOError, path, err)
	}

	seg := &Segment{
		path:    path,
		file:    f,
		data:    data,
		log:     opts.Logger,
		freeIdx: newSizeClassIndex(),
	}

	if fresh {
		seg.initHeader(size)
	} else if err := seg.checkHeader(size); err != nil {
		opts.Logger.Errorf("arena: %v", err)
		munmapData(data)
		f.Close()
		return nil, err
	}

	return seg, nil
}

func (s *Segment) initHeader(size int64) {
	binary.LittleEndian.PutUint64(s.data[offMagic:], magic)
	binary.LittleEndian.PutUint32(s.data[offVersion:], formatVersion)
	binary.LittleEndian.PutUint64(s.data[offFileSize:], uint64(size))
	binary.LittleEndian.PutUint64(s.data[offBumpOffset:], uint64(headerSize))
	binary.LittleEndian.PutUint64(s.data[offFreeListHead:], uint64(NoOffset))
	binary.LittleEndian.PutUint32(s.data[offNamedCount:], 0)
	ipcmutex.Init(s.data[offAllocatorLock:])
	ipcmutex.Init(s.data[offDirectoryLock:])
}

func (s *Segment) checkHeader(size int64) error {
	got := binary.LittleEndian.Uint64(s.data[offMagic:])
	if got != magic {
		return fmt.Errorf("%w: bad magic in %s", fcerr.ErrCorruptedState, s.path)
	}
	version := binary.LittleEndian.Uint32(s.data[offVersion:])
	if version != formatVersion {
		return fmt.Errorf("%w: unsupported format version %d in %s", fcerr.ErrCorruptedState, version, s.path)
	}
	declared := int64(binary.LittleEndian.Uint64(s.data[offFileSize:]))
	if declared != size {
		return fmt.Errorf("%w: header declares size %d but file is %d bytes", fcerr.ErrCorruptedState, declared, size)
	}
	return nil
}

// Path returns the backing file path this segment was opened from.
func (s *Segment) Path() string { return s.path }

// Size returns the total size in bytes of the mapping.
func (s *Segment) Size() int64 { return int64(len(s.data)) }

// Bytes returns a view of length bytes starting at offset. Callers must not
// retain the slice across a Close.
func (s *Segment) Bytes(offset int64, length int64) []byte {
	return s.data[offset : offset+length]
}

// Flush synchronizes dirty pages to the backing file.
func (s *Segment) Flush() error {
	if err := msyncData(s.data); err != nil {
		return fmt.Errorf("%w: flush %s: %v", fcerr.ErrIOError, s.path, err)
	}
	return nil
}

// Close flushes and unmaps the segment. It never touches the in-mapping
// mutexes: other processes may still be holding them.
func (s *Segment) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	if err := munmapData(s.data); err != nil {
		return fmt.Errorf("%w: munmap %s: %v", fcerr.ErrIOError, s.path, err)
	}
	return s.file.Close()
}
