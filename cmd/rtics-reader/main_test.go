package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/rtics/internal/rtics/config"
	"github.com/banshee-data/rtics/internal/rtics/header"
	"github.com/banshee-data/rtics/internal/rtics/kernel"
	"github.com/banshee-data/rtics/internal/rtics/stream"
)

func writeTempRawFile(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stream.raw")
	if err := os.WriteFile(path, make([]byte, n), 0o644); err != nil {
		t.Fatalf("write temp raw file: %v", err)
	}
	return path
}

func baseConfig(t *testing.T, rawBeamlets int) *config.ReaderConfig {
	t.Helper()
	bitMode := 8
	packetsPerIter := 4
	numStreams := 1
	packetLen := header.Size + kernel.PayloadBytes(bitMode, rawBeamlets)
	path := writeTempRawFile(t, packetLen*packetsPerIter)

	return &config.ReaderConfig{
		NumStreams:          &numStreams,
		PacketsPerIteration: &packetsPerIter,
		InputBitMode:        &bitMode,
		Streams: []config.StreamInput{
			{Backend: config.BackendRawFile, Path: path, RawBeamlets: rawBeamlets},
		},
	}
}

func TestBuildStreamsSizesPacketBufferFromRawBeamlets(t *testing.T) {
	cfg := baseConfig(t, 61)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	streams, meta, err := buildStreams(cfg)
	if err != nil {
		t.Fatalf("buildStreams: %v", err)
	}
	if len(streams) != 1 {
		t.Fatalf("len(streams) = %d, want 1", len(streams))
	}

	wantPacketLen := header.Size + kernel.PayloadBytes(8, 61)
	if streams[0].PortPacketLength != wantPacketLen {
		t.Errorf("PortPacketLength = %d, want %d", streams[0].PortPacketLength, wantPacketLen)
	}
	if streams[0].PortRawBeamlets != 61 {
		t.Errorf("PortRawBeamlets = %d, want 61", streams[0].PortRawBeamlets)
	}
	if meta.TotalRawBeamlets != 61 {
		t.Errorf("TotalRawBeamlets = %d, want 61", meta.TotalRawBeamlets)
	}
	if meta.TotalProcBeamlets != 61 {
		t.Errorf("TotalProcBeamlets = %d, want 61 (no beamlet sub-range configured)", meta.TotalProcBeamlets)
	}
}

func TestBuildStreamsAppliesGlobalBeamletRange(t *testing.T) {
	cfg := baseConfig(t, 61)
	lower, upper := 10, 40
	cfg.LowerBeamlet = &lower
	cfg.UpperBeamlet = &upper
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	streams, meta, err := buildStreams(cfg)
	if err != nil {
		t.Fatalf("buildStreams: %v", err)
	}
	if got := streams[0].BeamletSpan(); got != 30 {
		t.Errorf("BeamletSpan = %d, want 30", got)
	}
	if meta.TotalProcBeamlets != 30 {
		t.Errorf("TotalProcBeamlets = %d, want 30", meta.TotalProcBeamlets)
	}
}

func TestBuildStreamsMapsCalibrationMode(t *testing.T) {
	cfg := baseConfig(t, 61)
	mode := "apply"
	calFile := writeTempRawFile(t, 16)
	cfg.CalibrationMode = &mode
	cfg.CalibrationFile = &calFile
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	_, meta, err := buildStreams(cfg)
	if err != nil {
		t.Fatalf("buildStreams: %v", err)
	}
	if meta.Calibrate != stream.CalibrateApply {
		t.Errorf("Calibrate = %v, want CalibrateApply", meta.Calibrate)
	}
}

func TestOpenBackendRejectsUnknownKind(t *testing.T) {
	_, err := openBackend(config.StreamInput{Backend: config.BackendKind("bogus"), Path: "/dev/null"})
	if err == nil {
		t.Fatal("expected error for unknown backend kind")
	}
}

func TestOpenBackendOpensRawFile(t *testing.T) {
	path := writeTempRawFile(t, 32)
	b, err := openBackend(config.StreamInput{Backend: config.BackendRawFile, Path: path})
	if err != nil {
		t.Fatalf("openBackend: %v", err)
	}
	defer b.Close()
}
