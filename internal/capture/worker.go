package capture

import (
	"context"
	"errors"
	"time"

	"github.com/lanternops/duplexrecorder/internal/controlplane"
	"github.com/lanternops/duplexrecorder/internal/logging"
	"github.com/lanternops/duplexrecorder/internal/model"
	"github.com/lanternops/duplexrecorder/internal/queue"
)

var log = logging.L("capture")

// sessionState is the Capture Worker's session lifecycle state machine:
// Uninitialized -> Running on successful initialize; Running ->
// Uninitialized on access-lost/unexpected error; Running -> Terminated on
// cancellation.
type sessionState int

const (
	stateUninitialized sessionState = iota
	stateRunning
	stateTerminated
)

const acquireTimeout = 100 * time.Millisecond

// processStart is the monotonic base RawFrame.TimestampHNS is measured from.
var processStart = time.Now()

// Worker drives a Capturer and delivers RawFrames to capture_out at a
// per-mode rate.
type Worker struct {
	cfg          Config
	control      *controlplane.State
	out          *queue.DropOldest[model.RawFrame]
	reinitDelay  time.Duration
	newCapturer  func(Config) (Capturer, error)

	state     sessionState
	capturer  Capturer
	lastFrame *model.RawFrame
	lastEmit  time.Time
}

// NewWorker constructs a Capture Worker writing onto out, reading mode/pause
// state from control, using reinitDelay as the backoff after access-lost
// (default 1s). newCapturer is injectable for tests; production
// callers pass capture.NewPlatformCapturer.
func NewWorker(cfg Config, control *controlplane.State, out *queue.DropOldest[model.RawFrame], reinitDelay time.Duration, newCapturer func(Config) (Capturer, error)) *Worker {
	if reinitDelay <= 0 {
		reinitDelay = time.Second
	}
	return &Worker{
		cfg:         cfg,
		control:     control,
		out:         out,
		reinitDelay: reinitDelay,
		newCapturer: newCapturer,
		state:       stateUninitialized,
	}
}

func frameInterval(mode model.Mode) time.Duration {
	if mode == model.ModeContext {
		return time.Second // 1000ms in Context
	}
	return time.Second / 30 // 1000/30ms in Focus
}

// Run loops until ctx is cancelled. On each iteration: if paused or not
// running, sleeps briefly; otherwise attempts one rate-limited acquisition.
func (w *Worker) Run(ctx context.Context) {
	defer w.terminate()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cs := w.control.Load()
		if cs.Paused || !cs.Running {
			sleepOrDone(ctx, time.Millisecond)
			continue
		}

		if w.state == stateUninitialized {
			if err := w.initialize(); err != nil {
				log.Warn("capture session initialize failed, retrying after backoff", logging.KeyError, err)
				if !sleepOrDone(ctx, w.reinitDelay) {
					return
				}
				continue
			}
			w.state = stateRunning
		}

		if !w.rateLimitAdmit(cs.Mode) {
			sleepOrDone(ctx, time.Millisecond)
			continue
		}

		w.acquireOnce(ctx, cs.Mode)
	}
}

// rateLimitAdmit reports whether enough time has elapsed since the last
// emitted frame to admit a new one. Pacing uses the monotonic clock; a
// frame is admitted when now - lastEmit >= the mode's frame interval.
func (w *Worker) rateLimitAdmit(mode model.Mode) bool {
	interval := frameInterval(mode)
	if w.lastEmit.IsZero() {
		return true
	}
	return time.Since(w.lastEmit) >= interval
}

func (w *Worker) acquireOnce(ctx context.Context, mode model.Mode) {
	frame, err := w.capturer.Acquire(acquireTimeout)
	now := time.Now()

	switch {
	case err == nil:
		raw := model.RawFrame{
			Pixels:       frame.Pixels,
			Width:        frame.Width,
			Height:       frame.Height,
			Stride:       frame.Stride,
			TimestampHNS: int64(now.Sub(processStart) / 100),
		}
		w.lastFrame = &raw
		w.lastEmit = now
		w.out.Push(raw)

	case errors.Is(err, ErrWaitTimeout):
		if w.lastFrame != nil {
			repeat := *w.lastFrame
			repeat.TimestampHNS = int64(now.Sub(processStart) / 100)
			repeat.Repeated = true
			w.lastEmit = now
			w.out.Push(repeat)
		}
		// No last-valid-frame yet: yield without emitting. The first
		// acquisition after cold start produces no frame, never a repeat.

	case errors.Is(err, ErrAccessLost), errors.Is(err, ErrDeviceRemoved):
		log.Warn("capture access lost, reinitializing", logging.KeyError, err)
		w.disposeSession()
		w.state = stateUninitialized
		sleepOrDone(ctx, w.reinitDelay)

	default:
		log.Warn("capture acquisition failed, reinitializing", logging.KeyError, err)
		w.disposeSession()
		w.state = stateUninitialized
		sleepOrDone(ctx, w.reinitDelay)
	}
}

func (w *Worker) initialize() error {
	capturer, err := w.newCapturer(w.cfg)
	if err != nil {
		return err
	}
	w.capturer = capturer
	return nil
}

func (w *Worker) disposeSession() {
	if w.capturer != nil {
		_ = w.capturer.Close()
		w.capturer = nil
	}
}

func (w *Worker) terminate() {
	w.disposeSession()
	w.lastFrame = nil
	w.state = stateTerminated
}

// sleepOrDone sleeps for d or returns early (false) if ctx is cancelled
// first, keeping cancellation latency bounded.
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
