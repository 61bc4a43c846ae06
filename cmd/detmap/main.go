package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"detmap-go/internal/annotate"
	"detmap-go/internal/archive"
	"detmap-go/internal/capture"
	"detmap-go/internal/config"
	"detmap-go/internal/heatmap"
	"detmap-go/internal/inference"
	"detmap-go/internal/metrics"
	"detmap-go/internal/output"
	"detmap-go/internal/server"
	"detmap-go/internal/session"
	"detmap-go/internal/simulator"
	"detmap-go/internal/types"
)

func main() {
	var (
		port           = flag.Int("port", 8888, "HTTP port for the web UI")
		feedEndpoint   = flag.String("feed-endpoint", "tcp://localhost:31001", "ZMQ endpoint of the camera frame feed")
		inferURL       = flag.String("infer-url", "http://localhost:9050", "Base URL of the detection inference service")
		inferTimeout   = flag.Duration("infer-timeout", 8*time.Second, "Caller-side timeout for one inference call")
		healthInterval = flag.Duration("health-interval", 5*time.Second, "Polling interval for the inference service health endpoint")
		uiRate         = flag.Duration("ui-rate", 100*time.Millisecond, "Render/broadcast interval for websocket clients")
		threshold      = flag.Float64("threshold", 0.5, "Minimum confidence to draw a detection")
		showLabels     = flag.Bool("labels", true, "Draw label chips on detections")
		mode           = flag.String("mode", "accuracy", "Initial performance mode (speed or accuracy)")
		debug          = flag.Bool("debug", false, "Run with simulated camera and inference")
		debugRate      = flag.Float64("debug-rate", 15.0, "Simulated camera frame rate")
		archiveDir     = flag.String("archive-dir", "archive", "Directory for archived analysis results")
		rawLogEnabled  = flag.Bool("raw-log", false, "Write raw feed messages to disk")
		rawLogDir      = flag.String("raw-log-dir", "rawlog", "Directory for raw feed logs")
		ingestLogEvery = flag.Int("ingest-log-every", 100, "Log every Nth feed error")
		ingestFallback = flag.Bool("ingest-fallback", true, "Fall back to the simulator when the feed fails")
		autoStart      = flag.Bool("scan", true, "Start scanning immediately")
	)
	flag.Parse()

	cfg := config.AppConfig{
		Port:           *port,
		FeedEndpoint:   *feedEndpoint,
		InferURL:       *inferURL,
		InferTimeout:   *inferTimeout,
		HealthInterval: *healthInterval,
		UIRate:         *uiRate,
		Threshold:      *threshold,
		ShowLabels:     *showLabels,
		Mode:           *mode,
		Debug:          *debug,
		DebugFrameRate: *debugRate,
		DebugWidth:     1280,
		DebugHeight:    720,
		ArchiveDir:     *archiveDir,
		RawLogEnabled:  *rawLogEnabled,
		RawLogDir:      *rawLogDir,
		IngestLogEvery: *ingestLogEvery,
		IngestFallback: *ingestFallback,
		AutoStart:      *autoStart,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mtr := metrics.New()

	var statusMu sync.Mutex
	status := map[string]any{
		"feed":        "starting",
		"inference":   "unknown",
		"last_ingest": "",
	}
	setStatus := func(key string, value any) {
		statusMu.Lock()
		status[key] = value
		statusMu.Unlock()
	}

	frames := buildFrameFeed(ctx, cfg, setStatus)
	feed := capture.NewFeed()
	go feed.Consume(ctx, frames, func() {
		mtr.FramesIngested.Add(1)
		setStatus("last_ingest", time.Now().Format(time.RFC3339))
	})

	var inferrer session.Inferrer
	if cfg.Debug {
		inferrer = &simulator.Inferrer{Delay: 40 * time.Millisecond}
		setStatus("inference", "simulator")
	} else {
		inferrer = inference.NewClient(cfg.InferURL)
		go inference.PollHealth(ctx, cfg.InferURL, cfg.HealthInterval, func(state string) {
			setStatus("inference", state)
		})
	}

	loopCfg := session.DefaultConfig()
	loopCfg.InferTimeout = cfg.InferTimeout
	loop := session.NewLoop(clock.New(), loopCfg, feed, inferrer, mtr.RecordCycle)
	if m, ok := types.ParseMode(cfg.Mode); ok {
		loop.SetMode(m)
	}

	startScan := func() {
		if loop.Start() {
			log.Printf("scan session started")
			go loop.Run(ctx)
		}
	}
	if cfg.AutoStart {
		startScan()
	}

	var renderMu sync.Mutex
	renderThreshold := cfg.Threshold
	renderLabels := cfg.ShowLabels
	renderOpts := func() (float64, bool) {
		renderMu.Lock()
		defer renderMu.Unlock()
		return renderThreshold, renderLabels
	}

	store, err := archive.NewFileStore(cfg.ArchiveDir)
	if err != nil {
		log.Fatalf("failed to open archive store: %v", err)
	}

	uiMessages := make(chan any, 16)
	go renderLoop(ctx, cfg, feed, loop, mtr, renderOpts, uiMessages)

	log.Printf("Starting web UI at http://localhost:%d\n", cfg.Port)

	hooks := server.Hooks{
		Status: func() map[string]any {
			statusMu.Lock()
			copied := make(map[string]any, len(status)+1)
			for k, v := range status {
				copied[k] = v
			}
			statusMu.Unlock()
			copied["metrics"] = mtr.Snapshot()
			copied["telemetry"] = loop.Telemetry()
			return copied
		},
		Config: func() map[string]any {
			th, labels := renderOpts()
			return map[string]any{
				"type":        "config",
				"port":        cfg.Port,
				"threshold":   th,
				"show_labels": labels,
				"mode":        string(loop.Mode()),
				"scanning":    loop.Scanning(),
			}
		},
		Snapshot: func() any {
			th, labels := renderOpts()
			msg, ok := buildUIFrame(feed, loop, th, labels)
			if !ok {
				return nil
			}
			return msg
		},
		Heatmap: func() ([]byte, error) {
			return renderHeatmap(feed, loop)
		},
		Analyze: func(ctx context.Context, media []byte) (any, error) {
			mtr.AnalyzeRequests.Add(1)
			return analyzeMedia(ctx, cfg, inferrer, store, media)
		},
		Command: func(cmd server.Command) error {
			switch cmd.Action {
			case "start_scan":
				startScan()
			case "stop_scan":
				loop.Stop()
				log.Printf("scan session stopped")
			case "set_mode":
				m, ok := types.ParseMode(cmd.Mode)
				if !ok {
					return fmt.Errorf("unknown mode %q", cmd.Mode)
				}
				loop.SetMode(m)
			case "set_threshold":
				if cmd.Threshold < 0 || cmd.Threshold > 1 {
					return fmt.Errorf("threshold %v out of range", cmd.Threshold)
				}
				renderMu.Lock()
				renderThreshold = cmd.Threshold
				renderMu.Unlock()
			case "set_labels":
				renderMu.Lock()
				renderLabels = cmd.ShowLabels
				renderMu.Unlock()
			default:
				return fmt.Errorf("unknown action %q", cmd.Action)
			}
			return nil
		},
		Metrics: mtr.Handler(),
		ClientDelta: func(delta int) {
			mtr.ActiveClients.Add(int64(delta))
		},
	}

	if err := server.Run(ctx, cfg, uiMessages, hooks); err != nil {
		log.Printf("server stopped: %v", err)
	}
}

// buildFrameFeed picks the real ZMQ feed or the simulator. A feed that
// cannot start degrades to simulated frames instead of a dead screen, and
// the status page says so.
func buildFrameFeed(ctx context.Context, cfg config.AppConfig, setStatus func(string, any)) <-chan types.CameraFrame {
	if cfg.Debug {
		setStatus("feed", "simulator")
		return simulator.Stream(ctx, cfg.DebugWidth, cfg.DebugHeight, cfg.DebugFrameRate)
	}

	var recorder capture.RawRecorder
	if cfg.RawLogEnabled {
		writer, err := output.NewRawLogWriter(cfg.RawLogDir, "raw_feed")
		if err != nil {
			log.Fatalf("failed to start raw log: %v", err)
		}
		recorder = writer
		go func() {
			<-ctx.Done()
			if err := writer.Close(); err != nil {
				log.Printf("raw log close failed: %v", err)
			}
		}()
	}

	frames, err := capture.StreamWithLogEveryAndRecorder(ctx, cfg.FeedEndpoint, cfg.IngestLogEvery, recorder)
	if err != nil {
		if !cfg.IngestFallback {
			log.Fatalf("failed to start capture feed: %v", err)
		}
		log.Printf("failed to start capture feed: %v; falling back to simulator", err)
		setStatus("feed", "simulator_fallback")
		return simulator.Stream(ctx, cfg.DebugWidth, cfg.DebugHeight, cfg.DebugFrameRate)
	}
	setStatus("feed", "stream")
	return frames
}

// renderLoop is the display-refresh cycle: every tick it redraws the
// overlay from whatever detection frame is currently latest and pushes it
// with telemetry to websocket clients. It never waits on inference; the
// stale-detection fade bridges the gap when inference is slower than the
// refresh rate.
func renderLoop(ctx context.Context, cfg config.AppConfig, feed *capture.Feed, loop *session.Loop, mtr *metrics.Metrics, renderOpts func() (float64, bool), uiMessages chan<- any) {
	defer close(uiMessages)
	rate := cfg.UIRate
	if rate <= 0 {
		rate = 100 * time.Millisecond
	}
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			th, labels := renderOpts()
			msg, ok := buildUIFrame(feed, loop, th, labels)
			if !ok {
				msg = types.UIFrame{Type: "frame", Telemetry: loop.Telemetry()}
			}
			select {
			case uiMessages <- msg:
				mtr.FramesBroadcast.Add(1)
			default:
			}
		}
	}
}

func buildUIFrame(feed *capture.Feed, loop *session.Loop, threshold float64, labels bool) (types.UIFrame, bool) {
	img, _, ok := feed.Latest()
	if !ok {
		return types.UIFrame{}, false
	}

	composed := img
	if frame := loop.Latest(); frame != nil {
		composed = annotate.Render(img, frame.Objects, annotate.Options{
			Threshold:  threshold,
			ShowLabels: labels,
			HUD:        true,
			Opacity:    annotate.Opacity(time.Now(), frame.ReceivedAt),
		})
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, composed, &jpeg.Options{Quality: 70}); err != nil {
		log.Printf("ui frame encode failed: %v", err)
		return types.UIFrame{}, false
	}
	bounds := composed.Bounds()
	return types.UIFrame{
		Type:      "frame",
		Image:     base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Telemetry: loop.Telemetry(),
	}, true
}

func renderHeatmap(feed *capture.Feed, loop *session.Loop) ([]byte, error) {
	width, height := 640, 480
	if img, _, ok := feed.Latest(); ok {
		width = img.Bounds().Dx()
		height = img.Bounds().Dy()
	}
	var objects []types.DetectedObject
	if frame := loop.Latest(); frame != nil {
		objects = frame.Objects
	}
	overlay := heatmap.Synthesize(objects, width, height)
	var buf bytes.Buffer
	if err := png.Encode(&buf, overlay); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// analyzeMedia is the batch path: one image in, detections plus rendered
// artifacts out, with the result bundle archived for later reporting.
func analyzeMedia(ctx context.Context, cfg config.AppConfig, inferrer session.Inferrer, store archive.Store, media []byte) (any, error) {
	img, _, err := image.Decode(bytes.NewReader(media))
	if err != nil {
		return nil, fmt.Errorf("undecodable media: %w", err)
	}

	started := time.Now()
	var jpegBuf bytes.Buffer
	if err := jpeg.Encode(&jpegBuf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	snap := types.Snapshot{
		JPEG:       jpegBuf.Bytes(),
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		CapturedAt: started,
	}

	ictx, cancel := context.WithTimeout(ctx, cfg.InferTimeout)
	defer cancel()
	result, err := inferrer.Infer(ictx, snap, types.ModeAccuracy)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	annotated := annotate.Render(img, result.Objects, annotate.Options{
		Threshold:  cfg.Threshold,
		ShowLabels: true,
		Opacity:    1,
	})
	annotatedRef, err := output.WriteImagePNG(cfg.ArchiveDir, id, "annotated", annotated)
	if err != nil {
		return nil, err
	}
	heatRef, err := output.WriteImagePNG(cfg.ArchiveDir, id, "heatmap", heatmap.Synthesize(result.Objects, bounds.Dx(), bounds.Dy()))
	if err != nil {
		return nil, err
	}

	bundle := types.ResultBundle{
		ID:                    id,
		Timestamp:             started,
		Objects:               result.Objects,
		Summary:               result.Summary,
		ProcessingTimeSeconds: time.Since(started).Seconds(),
		SourceMediaRef:        annotatedRef,
	}
	if err := store.Save(bundle); err != nil {
		log.Printf("archive save failed: %v", err)
	}

	return map[string]any{
		"id":                      id,
		"objects":                 result.Objects,
		"summary":                 result.Summary,
		"processing_time_seconds": bundle.ProcessingTimeSeconds,
		"annotated_ref":           annotatedRef,
		"heatmap_ref":             heatRef,
	}, nil
}
