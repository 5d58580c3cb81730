// Package router dispatches RawFrames from the capture output queue to
// exactly one of the encoder or change-detector queues based on the current
// mode, plus optional fan-out to preview/OCR side-stages.
package router

import (
	"context"

	"github.com/lanternops/duplexrecorder/internal/controlplane"
	"github.com/lanternops/duplexrecorder/internal/model"
	"github.com/lanternops/duplexrecorder/internal/queue"
)

// Router reads capture_out and fans out to exactly one of ToEncoder (Focus)
// / ToChangeDetector (Context), plus optional ToPreview and ToOCR. All
// target queues are drop-oldest, so Router.Run never blocks on enqueue for
// longer than one queue slot.
type Router struct {
	control *controlplane.State
	in      *queue.DropOldest[model.RawFrame]

	ToEncoder        *queue.DropOldest[model.RawFrame]
	ToChangeDetector *queue.DropOldest[model.RawFrame]
	ToPreview        *queue.DropOldest[model.ProcessedFrame]
	ToOCR            *queue.DropOldest[model.ProcessedFrame]
}

// New constructs a Router. ToPreview/ToOCR may be left nil when that
// side-stage is disabled (OCR is gated by ocr_enabled at the pipeline
// level; preview is always modeled but a nil sink simply means no UI is
// attached).
func New(control *controlplane.State, in *queue.DropOldest[model.RawFrame]) *Router {
	return &Router{control: control, in: in}
}

// Run dispatches frames until ctx is cancelled.
func (r *Router) Run(ctx context.Context) {
	for {
		frame, ok := r.in.Pop(ctx)
		if !ok {
			return
		}
		r.dispatch(frame)
	}
}

func (r *Router) dispatch(frame model.RawFrame) {
	cs := r.control.Load()
	switch cs.Mode {
	case model.ModeFocus:
		r.ToEncoder.Push(frame)
	case model.ModeContext:
		r.ToChangeDetector.Push(frame)
	}

	if r.ToPreview != nil || r.ToOCR != nil {
		processed := model.ProcessedFrame{
			Pixels:       frame.Pixels,
			Width:        frame.Width,
			Height:       frame.Height,
			TimestampHNS: frame.TimestampHNS,
		}
		if r.ToPreview != nil {
			r.ToPreview.Push(processed)
		}
		if r.ToOCR != nil {
			r.ToOCR.Push(processed)
		}
	}
}
