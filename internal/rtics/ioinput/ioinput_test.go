package ioinput

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

func TestRawFileReadExactAndShort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stream0.raw")
	want := bytes.Repeat([]byte{0xAB}, 100)
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatal(err)
	}
	rf, err := OpenRawFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer rf.Close()

	buf := make([]byte, 60)
	n, err := rf.Read(buf)
	if err != nil || n != 60 {
		t.Fatalf("first read: n=%d err=%v", n, err)
	}

	buf2 := make([]byte, 60)
	n, err = rf.Read(buf2)
	if err != nil {
		t.Fatalf("second read err=%v", err)
	}
	if n != 40 {
		t.Fatalf("expected short read of 40 bytes at EOF, got %d", n)
	}
}

func TestCompressedFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stream0.raw.gz")

	payload := bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x04}, 50000)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cf, err := OpenCompressedFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer cf.Close()

	got := make([]byte, 0, len(payload))
	chunk := make([]byte, 4096)
	for len(got) < len(payload) {
		n, err := cf.Read(chunk)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if n == 0 {
			t.Fatal("unexpected zero-length read before payload fully consumed")
		}
		got = append(got, chunk[:n]...)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("round-tripped payload does not match original")
	}
}
