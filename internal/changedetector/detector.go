// Package changedetector implements the Context-mode perceptual-hash change
// decision: accept the first frame in a run, then accept subsequent frames
// only when they differ enough from the last accepted frame and a 1-second
// throttle has elapsed.
package changedetector

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/lanternops/duplexrecorder/internal/controlplane"
	"github.com/lanternops/duplexrecorder/internal/logging"
	"github.com/lanternops/duplexrecorder/internal/model"
	"github.com/lanternops/duplexrecorder/internal/phash"
	"github.com/lanternops/duplexrecorder/internal/queue"
	"github.com/lanternops/duplexrecorder/internal/snapshot"
)

var log = logging.L("changedetector")

const throttle = time.Second

// CatalogInserter is the subset of the Context Catalog's contract the
// detector needs; satisfied by *catalog.Catalog in production.
type CatalogInserter interface {
	Insert(snap model.ContextSnapshot) (int64, error)
}

// Config holds the per-run parameters the detector needs.
type Config struct {
	ChangeThreshold int
	JPEGQuality     int
	ContextDir      string
}

// Worker consumes RawFrames in Context mode, applies the throttle and
// pHash change decision, writes accepted frames to disk, and inserts a
// catalog row for each.
type Worker struct {
	cfg     Config
	control *controlplane.State
	events  *controlplane.Events
	in      *queue.DropOldest[model.RawFrame]
	catalog CatalogInserter

	haveLastHash  bool
	lastHash      model.PerceptualHash
	lastAcceptAt  time.Time
}

// NewWorker constructs a Change Detector worker.
func NewWorker(cfg Config, control *controlplane.State, events *controlplane.Events, in *queue.DropOldest[model.RawFrame], catalog CatalogInserter) *Worker {
	return &Worker{cfg: cfg, control: control, events: events, in: in, catalog: catalog}
}

// Run consumes frames while the control plane reports Context mode, until
// ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cs := w.control.Load()
		if cs.Mode != model.ModeContext || cs.Paused || !cs.Running {
			sleepOrDone(ctx, 10*time.Millisecond)
			continue
		}

		frame, ok := w.in.Pop(ctx)
		if !ok {
			continue
		}
		w.considerFrame(frame, time.Now().UTC())
	}
}

// considerFrame implements the throttle-then-hash change decision
// described for the Change Detector: frames presented less than one second
// after the previous acceptance are dropped before the hash is computed;
// frames that clear the throttle are hashed and compared against
// last_hash, accepted if this is the first frame or the Hamming distance
// strictly exceeds ChangeThreshold.
func (w *Worker) considerFrame(frame model.RawFrame, now time.Time) {
	if w.haveLastHash && now.Sub(w.lastAcceptAt) < throttle {
		return
	}

	hash := phash.Compute(frame.Pixels, frame.Width, frame.Height, frame.Stride)

	if w.haveLastHash && phash.Hamming(hash, w.lastHash) <= w.cfg.ChangeThreshold {
		return
	}

	w.lastHash = hash
	w.haveLastHash = true
	w.lastAcceptAt = now

	if err := w.accept(frame, hash, now); err != nil {
		log.Error("failed to persist accepted context frame", logging.KeyError, err)
	}
}

func (w *Worker) accept(frame model.RawFrame, hash model.PerceptualHash, now time.Time) error {
	jpeg, err := snapshot.EncodeJPEG(frame.Pixels, frame.Width, frame.Height, frame.Stride, w.cfg.JPEGQuality)
	if err != nil {
		return fmt.Errorf("encode jpeg: %w", err)
	}

	path := fmt.Sprintf("%s/%s.jpg", w.cfg.ContextDir, model.FormatFilenameTimestamp(now))
	if err := os.WriteFile(path, jpeg, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	snap := model.ContextSnapshot{
		Path:      path,
		Timestamp: now,
		Hash:      hash.Compact(),
	}
	id, err := w.catalog.Insert(snap)
	if err != nil {
		return fmt.Errorf("insert catalog row: %w", err)
	}
	snap.ID = id

	w.events.PublishSnapshotRecorded(snap)
	return nil
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
