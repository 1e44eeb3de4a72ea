// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

//go:build linux || darwin

package arena

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile maps the first size bytes of f, shared between every process
// that maps the same file. Grounded on the teacher's netns/dscp packages'
// style of calling golang.org/x/sys/unix directly rather than reaching for
// a third mmap wrapper library.
func mmapFile(f *os.File, size int64) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func munmapData(b []byte) error {
	return unix.Munmap(b)
}

func msyncData(b []byte) error {
	return unix.Msync(b, unix.MS_SYNC)
}
