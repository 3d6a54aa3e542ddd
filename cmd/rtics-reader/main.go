// Command rtics-reader drives a configured set of input streams through
// the alignment/gap-fill/dispatch engine one iteration at a time, persists
// iteration history to sqlite, and optionally serves an HTML/PNG dashboard
// over the resulting trend data — the batch-driver idiom of
// cmd/transits-backfill plus the HTTP debug-dashboard idiom of
// internal/lidar/monitor, recombined for this engine's own Step loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/banshee-data/rtics/internal/rtics/calibration"
	"github.com/banshee-data/rtics/internal/rtics/config"
	"github.com/banshee-data/rtics/internal/rtics/header"
	"github.com/banshee-data/rtics/internal/rtics/ioinput"
	"github.com/banshee-data/rtics/internal/rtics/kernel"
	"github.com/banshee-data/rtics/internal/rtics/metrics"
	"github.com/banshee-data/rtics/internal/rtics/reader"
	"github.com/banshee-data/rtics/internal/rtics/stream"
	"github.com/banshee-data/rtics/internal/rtics/streambuf"
)

func main() {
	var configPath, metricsDBPath, listen string
	flag.StringVar(&configPath, "config", "", "path to the reader config JSON file (required)")
	flag.StringVar(&metricsDBPath, "metrics-db", "rtics-metrics.db", "path to the sqlite iteration-history database")
	flag.StringVar(&listen, "listen", "", "HTTP listen address for the trend dashboard (empty disables it)")
	flag.Parse()

	if configPath == "" {
		log.Fatal("-config is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	streams, meta, err := buildStreams(cfg)
	if err != nil {
		log.Fatalf("build streams: %v", err)
	}

	var cal *calibration.Supplier
	if meta.Calibrate != stream.CalibrateNone {
		src := calibration.NewFileSource(*cfg.CalibrationFile)
		cal = calibration.NewSupplier(src, *cfg.CalibrationStepSize)
	}

	db, err := metrics.Open(metricsDBPath)
	if err != nil {
		log.Fatalf("open metrics db: %v", err)
	}
	defer db.Close()
	store := metrics.NewStore(db)

	r, err := reader.Open(meta, streams, cal, store)
	if err != nil {
		log.Fatalf("open reader: %v", err)
	}
	defer r.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if listen != "" {
		go serveDashboard(listen, store)
	}

	for {
		select {
		case <-ctx.Done():
			log.Print("shutdown requested, stopping after current iteration")
			return
		default:
		}

		prog, err := r.Step()
		if err != nil {
			log.Fatalf("step: %v", err)
		}
		if prog.Exit != "" {
			log.Printf("stopping: %v", prog.Exit)
			return
		}
		log.Printf("iteration complete: last_packet=%d packets_read=%d dropped=%v", prog.LastPacket, prog.PacketsRead, prog.Dropped)
	}
}

// buildStreams opens every configured stream's backend, sizes its packet
// buffer from its reported raw beamlet count and the observation's input
// bit mode, and assembles the observation-wide Meta that ties them
// together (spec §3/§4.2, the cmd-layer counterpart of the original's
// lofar_udp_reader_setup).
func buildStreams(cfg *config.ReaderConfig) ([]*stream.State, *stream.Meta, error) {
	streams := make([]*stream.State, len(cfg.Streams))
	totalRaw := 0
	for i, si := range cfg.Streams {
		backend, err := openBackend(si)
		if err != nil {
			return nil, nil, fmt.Errorf("stream %d: %w", i, err)
		}
		packetLen := header.Size + kernel.PayloadBytes(*cfg.InputBitMode, si.RawBeamlets)
		streams[i] = &stream.State{
			ID:               i,
			Backend:          backend,
			Buf:              streambuf.New(*cfg.PacketsPerIteration, packetLen),
			PortPacketLength: packetLen,
			PortRawBeamlets:  si.RawBeamlets,
		}
		totalRaw += si.RawBeamlets
	}

	lower, upper := 0, totalRaw
	if cfg.LowerBeamlet != nil {
		lower = *cfg.LowerBeamlet
	}
	if cfg.UpperBeamlet != nil {
		upper = *cfg.UpperBeamlet
	}
	stream.SplitBeamletRange(streams, lower, upper)

	totalProc := 0
	for _, s := range streams {
		totalProc += s.BeamletSpan()
	}

	calMode := stream.CalibrateNone
	switch *cfg.CalibrationMode {
	case "generate":
		calMode = stream.CalibrateGenerateOnly
	case "apply":
		calMode = stream.CalibrateApply
	}

	var packetsReadMax uint64
	if cfg.PacketsReadMax != nil {
		packetsReadMax = *cfg.PacketsReadMax
	}

	meta := &stream.Meta{
		NumStreams:           len(streams),
		PacketsPerIteration:  *cfg.PacketsPerIteration,
		InputBitMode:         *cfg.InputBitMode,
		ProcessingMode:       *cfg.ProcessingMode,
		Calibrate:            calMode,
		TotalRawBeamlets:     totalRaw,
		TotalProcBeamlets:    totalProc,
		PacketsReadMax:       packetsReadMax,
		ReplayDroppedPackets: cfg.ReplayDroppedPackets != nil && *cfg.ReplayDroppedPackets,
	}
	return streams, meta, nil
}

func openBackend(si config.StreamInput) (ioinput.Backend, error) {
	switch si.Backend {
	case config.BackendRawFile:
		return ioinput.OpenRawFile(si.Path)
	case config.BackendCompressed:
		return ioinput.OpenCompressedFile(si.Path)
	case config.BackendFifo:
		return ioinput.OpenFifo(si.Path)
	case config.BackendMemoryMap:
		return ioinput.OpenMemoryMap(si.Path)
	case config.BackendPCAP:
		return ioinput.OpenPCAPFile(si.Path, si.UDPPort)
	default:
		return nil, fmt.Errorf("unknown backend kind %q", si.Backend)
	}
}

// serveDashboard exposes the iteration history as an HTML dashboard and a
// PNG trend chart, in the same render-on-request style as the teacher's
// echarts/gridplotter debug endpoints.
func serveDashboard(listen string, store *metrics.Store) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		reports, err := store.RecentIterations(500)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		html, err := metrics.BuildDashboardHTML(reports)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html)
	})
	mux.HandleFunc("/trend.png", func(w http.ResponseWriter, r *http.Request) {
		reports, err := store.RecentIterations(500)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		path := filepath.Join(os.TempDir(), "rtics-drop-trend.png")
		if err := metrics.SaveDropTrendPNG(reports, path); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		http.ServeFile(w, r, path)
	})
	log.Printf("dashboard listening on %s", listen)
	if err := http.ListenAndServe(listen, mux); err != nil {
		log.Printf("dashboard server stopped: %v", err)
	}
}
