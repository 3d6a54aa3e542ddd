package ioinput

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
)

// scratchSize is the size of the decompressed-side scratch buffer: the
// amount of decompressed data CompressedFile is willing to produce ahead
// of what the caller asked for, so a later call with a different request
// size can still be served from already-decompressed bytes instead of
// re-running the decompressor.
const scratchSize = 256 * 1024

// CompressedFile reads a gzip-compressed capture file. It owns two
// buffers: the input-side refill buffer built into bufio.Reader (so the
// gzip reader never issues tiny reads against the underlying file), and a
// decompressed-side scratch buffer that holds bytes the decompressor
// produced but the caller has not yet consumed. Both buffers persist
// across Read calls, so a caller that reads less than a full decompressed
// chunk at a time (e.g. because one iteration's window doesn't divide
// evenly into what gzip handed back) resumes correctly on the next call
// instead of losing or re-decompressing data.
type CompressedFile struct {
	f       *os.File
	gz      *gzip.Reader
	scratch []byte // unconsumed decompressed bytes, scratch[off:]
	off     int
}

// OpenCompressedFile opens a gzip-compressed capture file for reading.
func OpenCompressedFile(path string) (*CompressedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ioinput: open compressed file %q: %w", path, err)
	}
	gz, err := gzip.NewReader(bufio.NewReaderSize(f, scratchSize))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ioinput: gzip header %q: %w", path, err)
	}
	return &CompressedFile{f: f, gz: gz}, nil
}

func (c *CompressedFile) Read(dst []byte) (int, error) {
	total := 0
	for total < len(dst) {
		if c.off < len(c.scratch) {
			n := copy(dst[total:], c.scratch[c.off:])
			c.off += n
			total += n
			continue
		}
		// Scratch is empty: refill it from the decompressor.
		if cap(c.scratch) < scratchSize {
			c.scratch = make([]byte, scratchSize)
		}
		c.scratch = c.scratch[:scratchSize]
		n, err := c.gz.Read(c.scratch)
		c.scratch = c.scratch[:n]
		c.off = 0
		if err != nil && !errors.Is(err, io.EOF) {
			return total, fmt.Errorf("ioinput: decompress: %w", err)
		}
		if n == 0 {
			// End of the compressed stream: whatever we copied so far is
			// a legitimate short read, not an error (spec §4.2).
			return total, nil
		}
	}
	return total, nil
}

func (c *CompressedFile) Close() error {
	gzErr := c.gz.Close()
	fErr := c.f.Close()
	if gzErr != nil {
		return gzErr
	}
	return fErr
}
