package ioinput

import (
	"fmt"
	"os"
)

// Fifo reads packet bytes from a named pipe, for streaming a capture in
// from a live producer process (e.g. a recording tool piping packets in
// real time) rather than a pre-recorded file. Opening blocks until a
// writer connects, matching normal FIFO semantics.
type Fifo struct {
	f *os.File
}

// OpenFifo opens an existing named pipe at path for reading.
func OpenFifo(path string) (*Fifo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("ioinput: stat fifo %q: %w", path, err)
	}
	if info.Mode()&os.ModeNamedPipe == 0 {
		return nil, fmt.Errorf("ioinput: %q is not a named pipe", path)
	}
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("ioinput: open fifo %q: %w", path, err)
	}
	return &Fifo{f: f}, nil
}

func (p *Fifo) Read(dst []byte) (int, error) { return readFull(p.f, dst) }

func (p *Fifo) Close() error { return p.f.Close() }
