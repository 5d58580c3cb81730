package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lanternops/duplexrecorder/internal/capture"
	"github.com/lanternops/duplexrecorder/internal/config"
	"github.com/lanternops/duplexrecorder/internal/model"
)

// fakeCapturer hands back a small solid BGRA frame on every Acquire call.
type fakeCapturer struct{}

func (fakeCapturer) Acquire(time.Duration) (capture.Frame, error) {
	pixels := make([]byte, 4*4*4)
	return capture.Frame{Pixels: pixels, Width: 4, Height: 4, Stride: 16, Format: capture.FormatBGRA8}, nil
}
func (fakeCapturer) Bounds() (int, int, error) { return 4, 4, nil }
func (fakeCapturer) Close() error              { return nil }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.ClipsDir = filepath.Join(cfg.DataDir, "clips")
	cfg.EncodeWidth, cfg.EncodeHeight = 4, 4
	cfg.EncodeFPS = 2
	cfg.SegmentDurationSeconds = 1
	cfg.QueueCapacity = 16
	return cfg
}

func TestNewWiresAllWorkersWithoutError(t *testing.T) {
	cfg := testConfig(t)
	p, err := New(cfg, model.ModeContext)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Control.Load().Mode != model.ModeContext {
		t.Fatalf("initial mode = %v, want Context", p.Control.Load().Mode)
	}
}

func TestRunStopsOnContextCancellationAndReportsHealth(t *testing.T) {
	orig := capture.NewPlatformCapturer
	capture.NewPlatformCapturer = func(capture.Config) (capture.Capturer, error) {
		return fakeCapturer{}, nil
	}
	defer func() { capture.NewPlatformCapturer = orig }()

	cfg := testConfig(t)
	p, err := New(cfg, model.ModeContext)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline.Run did not return after context cancellation")
	}

	snap, err := p.Health()
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if snap.CurrentMode != model.ModeContext.String() {
		t.Fatalf("CurrentMode = %q, want %q", snap.CurrentMode, model.ModeContext.String())
	}
}
