// Package encoderworker implements the Focus-mode segment pipeline: convert
// RawFrames to NV12, push samples to the selected H.264 backend, and
// finalize fixed-duration MP4 segments via internal/mp4mux.
package encoderworker

import (
	"context"
	"fmt"
	"time"

	"github.com/lanternops/duplexrecorder/internal/colorconv"
	"github.com/lanternops/duplexrecorder/internal/controlplane"
	"github.com/lanternops/duplexrecorder/internal/encode"
	"github.com/lanternops/duplexrecorder/internal/logging"
	"github.com/lanternops/duplexrecorder/internal/model"
	"github.com/lanternops/duplexrecorder/internal/mp4mux"
	"github.com/lanternops/duplexrecorder/internal/queue"
)

var log = logging.L("encoderworker")

// segmentState tracks the Idle/Writing/Failed lifecycle of the current segment.
type segmentState int

const (
	stateIdle segmentState = iota
	stateWriting
	stateFailed
)

const hnsPerSecond = 10_000_000

// Config holds the geometry, rate, and segment-duration parameters the
// worker needs to begin and size each segment.
type Config struct {
	Width, Height         int
	FPS                   int
	BitrateBPS            int
	SegmentDuration       time.Duration
	OutputDir             string
	SPS, PPS              []byte // optional pre-known parameter sets; normally sniffed from the backend's first IDR output instead
}

// Worker drives one H.264 backend across the lifetime of a process,
// re-using it across segments; only segment-file state resets between
// segments.
type Worker struct {
	cfg     Config
	control *controlplane.State
	events  *controlplane.Events
	in      *queue.DropOldest[model.RawFrame]
	pool    *colorconv.Pool

	newBackend func(encode.Params) (encode.Backend, error)
	backend    encode.Backend

	state       segmentState
	failed      bool
	mux         *mp4mux.Muxer
	frameCount  int
	segStart    time.Time
	sps, pps    []byte
}

// NewWorker constructs an Encoder Worker. newBackend is injectable for
// tests; production callers pass encode.Select.
func NewWorker(cfg Config, control *controlplane.State, events *controlplane.Events, in *queue.DropOldest[model.RawFrame], newBackend func(encode.Params) (encode.Backend, error)) *Worker {
	if cfg.SegmentDuration <= 0 {
		cfg.SegmentDuration = 5 * time.Second
	}
	return &Worker{
		cfg:        cfg,
		control:    control,
		events:     events,
		in:         in,
		pool:       colorconv.NewPool(),
		newBackend: newBackend,
		state:      stateIdle,
		sps:        cfg.SPS,
		pps:        cfg.PPS,
	}
}

// EncoderFailed reports whether the backend has hit the terminal Failed
// state. Once true it never resets for this process's lifetime.
func (w *Worker) EncoderFailed() bool { return w.failed }

// Run consumes RawFrames from in while the control plane reports Focus mode,
// until ctx is cancelled, at which point it flushes any open segment.
func (w *Worker) Run(ctx context.Context) {
	defer w.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if w.failed {
			sleepOrDone(ctx, 50*time.Millisecond)
			continue
		}

		cs := w.control.Load()
		if cs.Mode != model.ModeFocus || cs.Paused || !cs.Running {
			sleepOrDone(ctx, 10*time.Millisecond)
			continue
		}

		frame, ok := w.in.Pop(ctx)
		if !ok {
			continue
		}
		w.pushFrame(frame)
	}
}

// pushFrame implements push_frame: ignored once Failed; begins a segment on
// first call in Idle state, encodes the frame, and finalizes when
// frame_count reaches fps*segment_duration.
func (w *Worker) pushFrame(frame model.RawFrame) {
	if w.failed {
		return
	}
	if len(frame.Pixels) < frame.Stride*frame.Height {
		return
	}

	if w.state == stateIdle {
		if err := w.beginSegment(); err != nil {
			w.fail("begin_segment", err)
			return
		}
	}

	nv12 := colorconv.BGRAToNV12(w.pool, frame.Pixels, frame.Width, frame.Height, frame.Stride)
	samples, err := w.backend.Encode(nv12)
	if err != nil {
		w.fail("write_sample", err)
		return
	}

	if w.sps == nil || w.pps == nil {
		sps, pps := encode.ParameterSets(samples)
		if w.sps == nil {
			w.sps = sps
		}
		if w.pps == nil {
			w.pps = pps
		}
	}

	fps := w.cfg.FPS
	if fps <= 0 {
		fps = 30
	}
	durationHNS := int64(hnsPerSecond / fps)
	for _, s := range samples {
		w.mux.AddSample(s.Data, durationHNS, s.Keyframe)
	}
	w.frameCount++

	if w.frameCount >= fps*int(w.cfg.SegmentDuration/time.Second) {
		w.finalizeSegment()
	}
}

func (w *Worker) beginSegment() error {
	if w.backend == nil {
		backend, err := w.newBackend(encode.Params{
			Width: w.cfg.Width, Height: w.cfg.Height, FPS: w.cfg.FPS, BitrateBPS: w.cfg.BitrateBPS,
		})
		if err != nil {
			return fmt.Errorf("select encoder backend: %w", err)
		}
		w.backend = backend
		log.Info("encoder backend selected", "name", backend.Name(), "hardware", backend.IsHardware())
	}

	w.segStart = time.Now().UTC()
	w.mux = mp4mux.New(mp4mux.Params{
		Width: w.cfg.Width, Height: w.cfg.Height, FPS: w.cfg.FPS, BitrateBPS: w.cfg.BitrateBPS,
		SPS: w.sps, PPS: w.pps,
	})
	w.frameCount = 0
	w.state = stateWriting
	return nil
}

// finalizeSegment implements the Writing -> Idle transition: write the MP4
// file and announce segment_complete.
func (w *Worker) finalizeSegment() {
	if w.state != stateWriting || w.mux == nil || w.mux.SampleCount() == 0 {
		w.state = stateIdle
		w.mux = nil
		return
	}

	w.mux.SetParameterSets(w.sps, w.pps)
	path := fmt.Sprintf("%s/%s.mp4", w.cfg.OutputDir, model.FormatFilenameTimestamp(w.segStart))
	if err := w.mux.WriteFile(path); err != nil {
		w.fail("finalize_segment", err)
		return
	}

	seg := model.VideoSegment{
		Path:     path,
		StartUTC: w.segStart,
		Duration: w.cfg.SegmentDuration,
	}
	w.events.PublishSegmentComplete(seg)

	w.state = stateIdle
	w.mux = nil
	w.frameCount = 0
}

// Flush implements flush(): finalizes any open segment. Safe to call
// multiple times and from the Run loop's deferred shutdown path.
func (w *Worker) Flush() {
	if w.state == stateWriting {
		w.finalizeSegment()
	}
	if w.backend != nil {
		_ = w.backend.Close()
	}
}

func (w *Worker) fail(step string, err error) {
	log.Error("encoder worker failed, entering terminal Failed state", "step", step, logging.KeyError, err)
	w.failed = true
	w.state = stateFailed
	w.mux = nil
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
