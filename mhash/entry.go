// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package mhash

import "encoding/binary"

// Entries are encoded as [4-byte little-endian key length][key][value], so
// a Set (whose "value" is always empty) and a Map share one node format.
// Hashing and equality for bucket placement are always over the key
// segment, regardless of what the value dimension holds.

func encodeEntry(key, value []byte) []byte {
	buf := make([]byte, 4+len(key)+len(value))
	binary.LittleEndian.PutUint32(buf, uint32(len(key)))
	copy(buf[4:], key)
	copy(buf[4+len(key):], value)
	return buf
}

func decodeKey(payload []byte) []byte {
	klen := binary.LittleEndian.Uint32(payload)
	return payload[4 : 4+klen]
}

func decodeValue(payload []byte) []byte {
	klen := binary.LittleEndian.Uint32(payload)
	return payload[4+klen:]
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
