// Package pipeline wires the capture-to-retention stage graph into one
// process: Capture Worker -> Router -> {Encoder Worker, Change Detector} ->
// Retention Engine, sharing a single control-plane state and a single
// cancellation context across every worker's Run goroutine.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/lanternops/duplexrecorder/internal/capture"
	"github.com/lanternops/duplexrecorder/internal/catalog"
	"github.com/lanternops/duplexrecorder/internal/changedetector"
	"github.com/lanternops/duplexrecorder/internal/config"
	"github.com/lanternops/duplexrecorder/internal/controlplane"
	"github.com/lanternops/duplexrecorder/internal/encode"
	"github.com/lanternops/duplexrecorder/internal/encoderworker"
	"github.com/lanternops/duplexrecorder/internal/health"
	"github.com/lanternops/duplexrecorder/internal/ipc"
	"github.com/lanternops/duplexrecorder/internal/logging"
	"github.com/lanternops/duplexrecorder/internal/model"
	"github.com/lanternops/duplexrecorder/internal/ocr"
	"github.com/lanternops/duplexrecorder/internal/queue"
	"github.com/lanternops/duplexrecorder/internal/retention"
	"github.com/lanternops/duplexrecorder/internal/ringbuffer"
	"github.com/lanternops/duplexrecorder/internal/router"
)

var log = logging.L("pipeline")

// Pipeline owns every long-lived worker and the shared control-plane state.
type Pipeline struct {
	Control *controlplane.State
	Events  *controlplane.Events
	Clips   *controlplane.ClipRequests

	capture  *capture.Worker
	router   *router.Router
	encoder  *encoderworker.Worker
	detector *changedetector.Worker
	engine   *retention.Engine
	health   *health.Collector

	ring       *ringbuffer.Buffer
	cat        *catalog.Catalog
	socketPath string

	previewQ  *queue.DropOldest[model.ProcessedFrame]
	ocrQ      *queue.DropOldest[model.ProcessedFrame] // nil unless ocr_enabled
	ocrEngine ocr.Engine

	wg          sync.WaitGroup
	pendingClip sync.Map // model.ClipRequest.ID (uuid.UUID) -> chan model.ClipResult
}

// New constructs every worker from cfg, opening the ring buffer and catalog
// on their configured directories. initialMode seeds the control state; the
// external control plane can switch it later via Control.SetMode.
func New(cfg *config.Config, initialMode model.Mode) (*Pipeline, error) {
	control := controlplane.NewState(initialMode)
	events := controlplane.NewEvents()
	clips := controlplane.NewClipRequests(cfg.OverlayQueueCapacity)

	for _, dir := range []string{cfg.FocusBufferDir(), cfg.ContextBufferDir(), cfg.DataDir, cfg.ClipsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("pipeline: create %s: %w", dir, err)
		}
	}

	ring, err := ringbuffer.New(cfg.FocusBufferDir(), cfg.MaxSegments)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open ring buffer: %w", err)
	}
	cat, err := catalog.Open(cfg.CatalogPath())
	if err != nil {
		return nil, fmt.Errorf("pipeline: open catalog: %w", err)
	}

	captureOut := queue.New[model.RawFrame](cfg.QueueCapacity)
	encoderIn := queue.New[model.RawFrame](cfg.QueueCapacity)
	detectorIn := queue.New[model.RawFrame](cfg.QueueCapacity)

	captureWorker := capture.NewWorker(capture.DefaultConfig(), control, captureOut,
		time.Duration(cfg.ReinitDelayMS)*time.Millisecond, capture.NewPlatformCapturer)

	r := router.New(control, captureOut)
	r.ToEncoder = encoderIn
	r.ToChangeDetector = detectorIn

	previewQ := queue.New[model.ProcessedFrame](cfg.QueueCapacity)
	r.ToPreview = previewQ
	var ocrQ *queue.DropOldest[model.ProcessedFrame]
	if cfg.OCREnabled {
		ocrQ = queue.New[model.ProcessedFrame](cfg.QueueCapacity)
		r.ToOCR = ocrQ
	}

	encoderWorker := encoderworker.NewWorker(encoderworker.Config{
		Width: cfg.EncodeWidth, Height: cfg.EncodeHeight, FPS: cfg.EncodeFPS,
		BitrateBPS:      cfg.SegmentBitrateBPS,
		SegmentDuration: time.Duration(cfg.SegmentDurationSeconds) * time.Second,
		OutputDir:       cfg.FocusBufferDir(),
	}, control, events, encoderIn, encode.Select)

	detectorWorker := changedetector.NewWorker(changedetector.Config{
		ChangeThreshold: cfg.ChangeThreshold,
		JPEGQuality:     cfg.JPEGQuality,
		ContextDir:      cfg.ContextBufferDir(),
	}, control, events, detectorIn, cat)

	engine := retention.New(retention.Config{
		ContextRetentionWindow: time.Duration(cfg.ContextRetentionWindowSeconds) * time.Second,
		MaxContextFrames:       cfg.MaxContextFrames,
		ClipsDir:               cfg.ClipsDir,
	}, events, clips, ring, cat)

	p := &Pipeline{
		Control:    control,
		Events:     events,
		Clips:      clips,
		capture:    captureWorker,
		router:     r,
		encoder:    encoderWorker,
		detector:   detectorWorker,
		engine:     engine,
		health:     health.NewCollector(cfg.DataDir),
		ring:       ring,
		cat:        cat,
		socketPath: ipc.DefaultSocketPath(cfg.DataDir),
		previewQ:   previewQ,
		ocrQ:       ocrQ,
		ocrEngine:  ocr.NoOp{},
	}
	engine.SetResultHandler(p.onClipResult)
	return p, nil
}

func (p *Pipeline) onClipResult(result model.ClipResult) {
	if ch, ok := p.pendingClip.LoadAndDelete(result.Request.ID); ok {
		ch.(chan model.ClipResult) <- result
	}
}

// RequestClip submits a ClipRequest for the last duration of Focus footage
// and blocks until the retention engine reports an outcome or ctx is done.
func (p *Pipeline) RequestClip(ctx context.Context, duration time.Duration) (model.ClipResult, error) {
	req := p.Clips.Submit(time.Now(), duration)

	ch := make(chan model.ClipResult, 1)
	p.pendingClip.Store(req.ID, ch)
	defer p.pendingClip.Delete(req.ID)

	select {
	case result := <-ch:
		return result, nil
	case <-ctx.Done():
		return model.ClipResult{}, ctx.Err()
	}
}

// Serve runs the local control socket, answering "clip" and "status"
// requests from the CLI, until ctx is cancelled.
func (p *Pipeline) Serve(ctx context.Context, socketPath string) error {
	ln, err := ipc.Listen(socketPath)
	if err != nil {
		return fmt.Errorf("pipeline: listen on control socket: %w", err)
	}
	ipc.Serve(ctx, ln, p.handleControlRequest)
	return nil
}

func (p *Pipeline) handleControlRequest(req ipc.Request) ipc.Response {
	switch req.Command {
	case "clip":
		result, err := p.RequestClip(context.Background(), req.Duration)
		if err != nil {
			return ipc.Response{Error: err.Error()}
		}
		if result.Err != nil {
			return ipc.Response{Error: result.Err.Error()}
		}
		return ipc.Response{
			OK:               true,
			OutputPath:       result.OutputPath,
			MaterializedFrom: result.MaterializedFrom,
			MaterializedTo:   result.MaterializedTo,
		}
	case "status":
		snap, err := p.Health()
		if err != nil {
			return ipc.Response{Error: err.Error()}
		}
		rows, err := p.cat.Count()
		if err != nil {
			log.Warn("catalog row count failed", logging.KeyError, err)
		}
		cs := p.Control.Load()
		return ipc.Response{
			OK:           true,
			Mode:         cs.Mode.String(),
			Paused:       cs.Paused,
			Running:      cs.Running,
			RingSegments: p.ring.Count(),
			CatalogRows:  rows,
			DiskFreeGB:   snap.DiskFreeGB,
		}
	default:
		return ipc.Response{Error: fmt.Sprintf("pipeline: unknown command %q", req.Command)}
	}
}

// Run starts every worker and blocks until ctx is cancelled, then waits for
// all workers to return before closing the catalog handle.
func (p *Pipeline) Run(ctx context.Context) {
	log.Info("pipeline starting")
	workers := []func(context.Context){
		p.capture.Run,
		p.router.Run,
		p.encoder.Run,
		p.detector.Run,
		p.engine.Run,
		p.forwardPreview,
	}
	if p.ocrQ != nil {
		workers = append(workers, p.runOCR)
	}
	for _, fn := range workers {
		p.wg.Add(1)
		go func(fn func(context.Context)) {
			defer p.wg.Done()
			fn(ctx)
		}(fn)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.Serve(ctx, p.socketPath); err != nil {
			log.Error("control socket unavailable, clip/status commands will not work", logging.KeyError, err)
		}
	}()

	<-ctx.Done()
	log.Info("pipeline shutting down")
	p.wg.Wait()
	p.encoder.Flush()
	if err := p.cat.Close(); err != nil {
		log.Warn("catalog close failed", logging.KeyError, err)
	}
	log.Info("pipeline stopped")
}

// forwardPreview drains the router's preview queue into the preview_frame
// event stream for whatever UI consumer is attached.
func (p *Pipeline) forwardPreview(ctx context.Context) {
	for {
		frame, ok := p.previewQ.Pop(ctx)
		if !ok {
			return
		}
		p.Events.PublishPreviewFrame(frame)
	}
}

// runOCR drains the OCR side-stage queue through the configured engine.
// The engine is a NoOp unless a real recognizer is attached.
func (p *Pipeline) runOCR(ctx context.Context) {
	for {
		frame, ok := p.ocrQ.Pop(ctx)
		if !ok {
			return
		}
		text, err := p.ocrEngine.Recognize(ctx, frame)
		if err != nil {
			log.Warn("ocr recognition failed", logging.KeyError, err)
			continue
		}
		if text != "" {
			log.Debug("ocr text recognized", "chars", len(text))
		}
	}
}

// Health reports a point-in-time snapshot of pipeline and system state.
func (p *Pipeline) Health() (health.Snapshot, error) {
	cs := p.Control.Load()
	return p.health.Collect(cs.Mode, p.ring.Count(), p.ring.TotalDuration().Seconds(), 0, p.encoder.EncoderFailed())
}
