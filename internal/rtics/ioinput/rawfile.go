package ioinput

import (
	"fmt"
	"os"
)

// RawFile reads packet bytes directly from an on-disk capture file — one
// file per stream, containing back-to-back (header, payload) packets with
// no framing beyond their fixed or computed length.
type RawFile struct {
	f *os.File
}

// OpenRawFile opens path for reading as a RawFile backend.
func OpenRawFile(path string) (*RawFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ioinput: open raw file %q: %w", path, err)
	}
	return &RawFile{f: f}, nil
}

func (r *RawFile) Read(dst []byte) (int, error) { return readFull(r.f, dst) }

func (r *RawFile) Close() error { return r.f.Close() }
