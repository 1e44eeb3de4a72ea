// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

//go:build !linux && !darwin

package arena

import (
	"fmt"
	"os"
	"runtime"
)

func mmapFile(f *os.File, size int64) ([]byte, error) {
	return nil, fmt.Errorf("arena: mmap not supported on %s", runtime.GOOS)
}

func munmapData(b []byte) error {
	return fmt.Errorf("arena: mmap not supported on %s", runtime.GOOS)
}

func msyncData(b []byte) error {
	return fmt.Errorf("arena: mmap not supported on %s", runtime.GOOS)
}
