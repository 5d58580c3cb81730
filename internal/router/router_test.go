package router

import (
	"context"
	"testing"
	"time"

	"github.com/lanternops/duplexrecorder/internal/controlplane"
	"github.com/lanternops/duplexrecorder/internal/model"
	"github.com/lanternops/duplexrecorder/internal/queue"
)

func TestDispatchRoutesByMode(t *testing.T) {
	control := controlplane.NewState(model.ModeFocus)
	in := queue.New[model.RawFrame](4)
	r := New(control, in)
	r.ToEncoder = queue.New[model.RawFrame](4)
	r.ToChangeDetector = queue.New[model.RawFrame](4)

	r.dispatch(model.RawFrame{Width: 1})
	if r.ToEncoder.Len() != 1 {
		t.Fatalf("Focus mode frame did not reach ToEncoder")
	}
	if r.ToChangeDetector.Len() != 0 {
		t.Fatal("Focus mode frame leaked to ToChangeDetector")
	}

	control.SetMode(model.ModeContext)
	r.dispatch(model.RawFrame{Width: 2})
	if r.ToChangeDetector.Len() != 1 {
		t.Fatal("Context mode frame did not reach ToChangeDetector")
	}
	if r.ToEncoder.Len() != 1 {
		t.Fatal("Context mode frame leaked to ToEncoder")
	}
}

func TestDispatchFansOutToPreviewAndOCRWhenAttached(t *testing.T) {
	control := controlplane.NewState(model.ModeFocus)
	in := queue.New[model.RawFrame](4)
	r := New(control, in)
	r.ToEncoder = queue.New[model.RawFrame](4)
	r.ToPreview = queue.New[model.ProcessedFrame](4)
	r.ToOCR = queue.New[model.ProcessedFrame](4)

	r.dispatch(model.RawFrame{Width: 10, Height: 20})

	if r.ToPreview.Len() != 1 {
		t.Fatal("frame did not fan out to ToPreview")
	}
	if r.ToOCR.Len() != 1 {
		t.Fatal("frame did not fan out to ToOCR")
	}
}

func TestDispatchToleratesNilSideStages(t *testing.T) {
	control := controlplane.NewState(model.ModeFocus)
	in := queue.New[model.RawFrame](4)
	r := New(control, in)
	r.ToEncoder = queue.New[model.RawFrame](4)

	r.dispatch(model.RawFrame{}) // ToPreview/ToOCR left nil: must not panic
}

func TestRunStopsOnCancellation(t *testing.T) {
	control := controlplane.NewState(model.ModeFocus)
	in := queue.New[model.RawFrame](4)
	r := New(control, in)
	r.ToEncoder = queue.New[model.RawFrame](4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
