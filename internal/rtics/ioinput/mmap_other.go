//go:build !unix

package ioinput

import "fmt"

// MemoryMap is unavailable on non-unix platforms; OpenMemoryMap always
// fails so callers can fall back to RawFile.
type MemoryMap struct{}

func OpenMemoryMap(path string) (*MemoryMap, error) {
	return nil, fmt.Errorf("ioinput: memory-mapped backend not supported on this platform, use RawFile")
}

func (m *MemoryMap) Read(dst []byte) (int, error) { return 0, fmt.Errorf("ioinput: unsupported") }

func (m *MemoryMap) Close() error { return nil }
