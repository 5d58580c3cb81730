// Package retention implements the Retention Engine: it wires the Focus
// Ring Buffer and Context Catalog to the segment-complete/snapshot-recorded
// events, runs the bounded-retention policy, and materializes clips from
// the ring buffer on request.
package retention

import (
	"context"
	"time"

	"github.com/lanternops/duplexrecorder/internal/catalog"
	"github.com/lanternops/duplexrecorder/internal/controlplane"
	"github.com/lanternops/duplexrecorder/internal/logging"
	"github.com/lanternops/duplexrecorder/internal/model"
	"github.com/lanternops/duplexrecorder/internal/ringbuffer"
	"github.com/lanternops/duplexrecorder/internal/workerpool"
)

var log = logging.L("retention")

// Config holds the retention cadence parameters.
type Config struct {
	ContextRetentionWindow time.Duration
	MaxContextFrames       int
	EnforceMaxEvery        int // run enforce_max every N inserts
	ClipsDir               string
}

// Engine consumes segment/snapshot events, maintains the ring buffer and
// catalog, and services clip requests via a background worker pool.
type Engine struct {
	cfg      Config
	events   *controlplane.Events
	clips    *controlplane.ClipRequests
	ring     *ringbuffer.Buffer
	cat      *catalog.Catalog
	pool     *workerpool.Pool
	onResult func(model.ClipResult)

	insertsSinceEnforce int
}

// New constructs a retention Engine. Reconcile is invoked once here,
// matching the "on startup, reconcile() is invoked once" contract.
func New(cfg Config, events *controlplane.Events, clips *controlplane.ClipRequests, ring *ringbuffer.Buffer, cat *catalog.Catalog) *Engine {
	if cfg.EnforceMaxEvery <= 0 {
		cfg.EnforceMaxEvery = 20
	}
	if err := cat.Reconcile(); err != nil {
		log.Error("startup catalog reconciliation failed", logging.KeyError, err)
	}
	return &Engine{
		cfg:    cfg,
		events: events,
		clips:  clips,
		ring:   ring,
		cat:    cat,
		pool:   workerpool.New(2, 16),
	}
}

// SetResultHandler installs a callback invoked with every clip's outcome
// (success or failure), used by the daemon to answer the CLI's clip
// subcommand once materialization finishes.
func (e *Engine) SetResultHandler(fn func(model.ClipResult)) {
	e.onResult = fn
}

// Run consumes segment_complete/snapshot_recorded/ClipRequest events until
// ctx is cancelled, then drains the background worker pool.
func (e *Engine) Run(ctx context.Context) {
	defer e.pool.Shutdown(context.Background())

	for {
		select {
		case <-ctx.Done():
			return
		case seg := <-e.events.SegmentComplete():
			e.ring.Add(model.RingBufferEntry{Segment: seg})
		case snap := <-e.events.SnapshotRecorded():
			e.onSnapshot(snap)
		case req := <-e.clips.Chan():
			e.submitClip(ctx, req)
		}
	}
}

func (e *Engine) onSnapshot(snap model.ContextSnapshot) {
	cutoff := snap.Timestamp.Add(-e.cfg.ContextRetentionWindow)
	if err := e.cat.DeleteBefore(cutoff); err != nil {
		log.Error("delete_before failed", logging.KeyError, err)
	}

	e.insertsSinceEnforce++
	if e.insertsSinceEnforce >= e.cfg.EnforceMaxEvery {
		e.insertsSinceEnforce = 0
		if err := e.cat.EnforceMax(e.cfg.MaxContextFrames); err != nil {
			log.Error("enforce_max failed", logging.KeyError, err)
		}
	}
}

func (e *Engine) submitClip(ctx context.Context, req model.ClipRequest) {
	ok := e.pool.Submit(func() {
		result := MaterializeClip(e.ring, e.cfg.ClipsDir, req)
		if result.Err != nil {
			log.Error("clip materialization failed", logging.KeyRequestID, req.ID, logging.KeyError, result.Err)
		} else {
			log.Info("clip materialized", logging.KeyRequestID, req.ID, "path", result.OutputPath, "segments", result.SegmentCount)
		}
		if e.onResult != nil {
			e.onResult(result)
		}
	})
	if !ok {
		log.Warn("clip request dropped: worker pool saturated", logging.KeyRequestID, req.ID)
	}
}
