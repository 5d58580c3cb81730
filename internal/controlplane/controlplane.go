// Package controlplane models the external control plane: the tray/overlay
// UI, hotkeys, and settings surface treated as an opaque collaborator here.
// It publishes mode/pause/run/clip-request events and exposes the
// atomically-readable control state the Capture Worker reads on every
// iteration.
package controlplane

import (
	"sync/atomic"
	"time"

	"github.com/lanternops/duplexrecorder/internal/model"
)

// State publishes an atomically-readable model.ControlState. Mutation always
// replaces the whole value, intentionally lock-free since the record is
// small and read-mostly.
type State struct {
	v atomic.Value // model.ControlState
}

// NewState constructs a State starting in the given mode, not paused, and
// running.
func NewState(mode model.Mode) *State {
	s := &State{}
	s.v.Store(model.ControlState{Mode: mode, Paused: false, Running: true})
	return s
}

// Load returns the current control state.
func (s *State) Load() model.ControlState {
	return s.v.Load().(model.ControlState)
}

// SetMode changes the active mode, effective on the next capture iteration.
func (s *State) SetMode(mode model.Mode) {
	cur := s.Load()
	cur.Mode = mode
	s.v.Store(cur)
}

// SetPaused toggles pause/resume.
func (s *State) SetPaused(paused bool) {
	cur := s.Load()
	cur.Paused = paused
	s.v.Store(cur)
}

// SetRunning toggles start/stop.
func (s *State) SetRunning(running bool) {
	cur := s.Load()
	cur.Running = running
	s.v.Store(cur)
}

// ClipRequests is the channel-backed inbox for clip-materialization
// requests enqueued by the control plane. Unlike the pipeline's internal
// drop-oldest queues, clip requests are user-initiated and rare, so they use
// an ordinary buffered channel: losing one silently would be a correctness
// bug, not a back-pressure release valve.
type ClipRequests struct {
	ch chan model.ClipRequest
}

// NewClipRequests creates an inbox with the given buffer size.
func NewClipRequests(buffer int) *ClipRequests {
	if buffer <= 0 {
		buffer = 8
	}
	return &ClipRequests{ch: make(chan model.ClipRequest, buffer)}
}

// Submit enqueues a clip request built from now and duration. Blocks only if
// the inbox is full, which signals a caller bug (requests should be rare
// and promptly drained by the retention engine).
func (c *ClipRequests) Submit(now time.Time, duration time.Duration) model.ClipRequest {
	req := model.NewClipRequest(now, duration)
	c.ch <- req
	return req
}

// Chan exposes the receive side for the retention engine to range over.
func (c *ClipRequests) Chan() <-chan model.ClipRequest { return c.ch }

// Events fan out segment/snapshot/preview notifications to the external
// control plane. Each is a simple broadcast-to-one-subscriber channel: the
// core never blocks waiting for a subscriber, matching the drop-oldest
// philosophy applied to egress notifications as well.
type Events struct {
	segmentComplete  chan model.VideoSegment
	snapshotRecorded chan model.ContextSnapshot
	previewFrame     chan model.ProcessedFrame
}

// NewEvents creates an Events hub with modestly buffered channels so a slow
// subscriber does not stall the engines; overflow is handled by the
// publishers via a non-blocking send (see PublishX below).
func NewEvents() *Events {
	return &Events{
		segmentComplete:  make(chan model.VideoSegment, 16),
		snapshotRecorded: make(chan model.ContextSnapshot, 64),
		previewFrame:     make(chan model.ProcessedFrame, 4),
	}
}

// PublishSegmentComplete fires segment_complete, dropping it if no one is
// listening promptly.
func (e *Events) PublishSegmentComplete(seg model.VideoSegment) {
	select {
	case e.segmentComplete <- seg:
	default:
	}
}

// PublishSnapshotRecorded fires snapshot_recorded, dropping it if no one is
// listening promptly.
func (e *Events) PublishSnapshotRecorded(snap model.ContextSnapshot) {
	select {
	case e.snapshotRecorded <- snap:
	default:
	}
}

// PublishPreviewFrame fires preview_frame, dropping it if no one is
// listening promptly; the preview sink is best-effort.
func (e *Events) PublishPreviewFrame(frame model.ProcessedFrame) {
	select {
	case e.previewFrame <- frame:
	default:
	}
}

// SegmentComplete exposes the receive side for subscribers.
func (e *Events) SegmentComplete() <-chan model.VideoSegment { return e.segmentComplete }

// SnapshotRecorded exposes the receive side for subscribers.
func (e *Events) SnapshotRecorded() <-chan model.ContextSnapshot { return e.snapshotRecorded }

// PreviewFrame exposes the receive side for subscribers.
func (e *Events) PreviewFrame() <-chan model.ProcessedFrame { return e.previewFrame }
