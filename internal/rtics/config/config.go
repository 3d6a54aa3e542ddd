// Package config loads the reader's tuning parameters from JSON, in the
// same struct-of-optional-pointers shape the teacher uses for its own
// tuning config (internal/config.TuningConfig): fields are nil unless the
// file sets them, so a partial file only overrides what it mentions and
// everything else keeps its documented default.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// maxConfigFileSize bounds how large a config file this loader will parse,
// matching the teacher's defensive file-size ceiling.
const maxConfigFileSize = 1 * 1024 * 1024

// BackendKind selects an ioinput.Backend variant for a stream.
type BackendKind string

const (
	BackendRawFile    BackendKind = "rawfile"
	BackendCompressed BackendKind = "compressed"
	BackendFifo       BackendKind = "fifo"
	BackendMemoryMap  BackendKind = "mmap"
	BackendPCAP       BackendKind = "pcap"
)

// ReaderConfig holds the parameters needed to open a Reader (spec §3
// ObsMeta plus the per-stream backend wiring needed to actually source
// bytes). Every field is optional; Validate fills in and checks defaults.
type ReaderConfig struct {
	NumStreams          *int          `json:"num_streams,omitempty"`
	PacketsPerIteration *int          `json:"packets_per_iteration,omitempty"`
	InputBitMode        *int          `json:"input_bit_mode,omitempty"` // 4, 8, or 16
	ProcessingMode      *int          `json:"processing_mode,omitempty"`
	CalibrationMode     *string       `json:"calibration_mode,omitempty"` // none|generate|apply
	LowerBeamlet        *int          `json:"lower_beamlet,omitempty"`
	UpperBeamlet        *int          `json:"upper_beamlet,omitempty"`
	ReplayDroppedPackets *bool        `json:"replay_dropped_packets,omitempty"`
	PacketsReadMax      *uint64       `json:"packets_read_max,omitempty"`
	ParallelismDegree   *int          `json:"parallelism_degree,omitempty"`
	Streams             []StreamInput `json:"streams,omitempty"`

	// CalibrationFile is the path to a coefficient file a FileSource reads
	// (spec §4.6); required when CalibrationMode is not "none".
	CalibrationFile     *string `json:"calibration_file,omitempty"`
	CalibrationStepSize *int    `json:"calibration_step_size,omitempty"`
}

// StreamInput names the backend and source path for one of the N streams.
// RawBeamlets is the wire beamlet count this stream's RSP board reports in
// every packet header (original_source/src/lib/lofar_udp_reader.c derives
// it lazily from the first packet read off each port); this loader asks
// for it up front instead, since an ioinput.Backend only supports
// sequential reads and has no peek-then-rewind a lazy bootstrap would need.
type StreamInput struct {
	Backend     BackendKind `json:"backend"`
	Path        string      `json:"path"`
	UDPPort     uint16      `json:"udp_port,omitempty"` // only meaningful for BackendPCAP
	RawBeamlets int         `json:"raw_beamlets"`
}

// Defaults mirror the original implementation's compiled-in defaults
// (original_source/src/lib/lofar_udp_reader.h): 4 streams, 4000 packets
// per iteration, 8-bit input, raw-copy-with-header processing, no
// calibration, replay-mode gap fill off (zero-pad).
const (
	DefaultNumStreams          = 4
	DefaultPacketsPerIteration = 4000
	DefaultInputBitMode        = 8
	DefaultProcessingMode      = 0
	DefaultParallelismDegree   = 4
)

// Load reads and validates a ReaderConfig from a JSON file at path.
func Load(path string) (*ReaderConfig, error) {
	clean := filepath.Clean(path)
	if ext := filepath.Ext(clean); ext != ".json" {
		return nil, fmt.Errorf("config: file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(clean)
	if err != nil {
		return nil, fmt.Errorf("config: stat %q: %w", clean, err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config: %q too large: %d bytes (max %d)", clean, info.Size(), maxConfigFileSize)
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", clean, err)
	}
	cfg := &ReaderConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", clean, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid %q: %w", clean, err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints and fills in simple defaults for
// unset scalar fields in place.
func (c *ReaderConfig) Validate() error {
	if c.NumStreams == nil {
		n := DefaultNumStreams
		c.NumStreams = &n
	}
	if *c.NumStreams <= 0 {
		return fmt.Errorf("num_streams must be positive, got %d", *c.NumStreams)
	}
	if c.PacketsPerIteration == nil {
		m := DefaultPacketsPerIteration
		c.PacketsPerIteration = &m
	}
	if *c.PacketsPerIteration <= 0 {
		return fmt.Errorf("packets_per_iteration must be positive, got %d", *c.PacketsPerIteration)
	}
	if c.InputBitMode == nil {
		b := DefaultInputBitMode
		c.InputBitMode = &b
	}
	switch *c.InputBitMode {
	case 4, 8, 16:
	default:
		return fmt.Errorf("input_bit_mode must be 4, 8, or 16, got %d", *c.InputBitMode)
	}
	if c.ProcessingMode == nil {
		p := DefaultProcessingMode
		c.ProcessingMode = &p
	}
	if c.CalibrationMode == nil {
		none := "none"
		c.CalibrationMode = &none
	}
	switch *c.CalibrationMode {
	case "none", "generate", "apply":
	default:
		return fmt.Errorf("calibration_mode must be none, generate, or apply, got %q", *c.CalibrationMode)
	}
	if *c.CalibrationMode != "none" {
		if c.CalibrationFile == nil || *c.CalibrationFile == "" {
			return fmt.Errorf("calibration_file is required when calibration_mode is %q", *c.CalibrationMode)
		}
		if c.CalibrationStepSize == nil {
			step := *c.PacketsPerIteration
			c.CalibrationStepSize = &step
		}
		if *c.CalibrationStepSize <= 0 {
			return fmt.Errorf("calibration_step_size must be positive, got %d", *c.CalibrationStepSize)
		}
	}
	if c.ParallelismDegree == nil {
		p := DefaultParallelismDegree
		c.ParallelismDegree = &p
	}
	if *c.ParallelismDegree <= 0 {
		return fmt.Errorf("parallelism_degree must be positive, got %d", *c.ParallelismDegree)
	}
	if len(c.Streams) != 0 && len(c.Streams) != *c.NumStreams {
		return fmt.Errorf("streams has %d entries, want num_streams=%d", len(c.Streams), *c.NumStreams)
	}
	for i, si := range c.Streams {
		if si.RawBeamlets <= 0 {
			return fmt.Errorf("streams[%d].raw_beamlets must be positive, got %d", i, si.RawBeamlets)
		}
	}
	if c.LowerBeamlet != nil && c.UpperBeamlet != nil && *c.LowerBeamlet >= *c.UpperBeamlet {
		return fmt.Errorf("lower_beamlet %d must be less than upper_beamlet %d", *c.LowerBeamlet, *c.UpperBeamlet)
	}
	return nil
}
