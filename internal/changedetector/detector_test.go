package changedetector

import (
	"testing"
	"time"

	"github.com/lanternops/duplexrecorder/internal/controlplane"
	"github.com/lanternops/duplexrecorder/internal/model"
	"github.com/lanternops/duplexrecorder/internal/queue"
)

type stubCatalog struct {
	inserted []model.ContextSnapshot
	nextID   int64
}

func (c *stubCatalog) Insert(snap model.ContextSnapshot) (int64, error) {
	c.nextID++
	c.inserted = append(c.inserted, snap)
	return c.nextID, nil
}

func solidFrame(width, height int, shade byte) model.RawFrame {
	stride := width * 4
	pix := make([]byte, stride*height)
	for i := 0; i < width*height; i++ {
		pix[i*4+0] = shade
		pix[i*4+1] = shade
		pix[i*4+2] = shade
		pix[i*4+3] = 255
	}
	return model.RawFrame{Pixels: pix, Width: width, Height: height, Stride: stride}
}

// splitFrame is black in its left half and white in its right half. A solid
// frame has every sample equal to the mean, so its hash is all zero; this
// frame sets the 128 right-half bits, a large distance from any solid frame.
func splitFrame(width, height int) model.RawFrame {
	stride := width * 4
	pix := make([]byte, stride*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var shade byte
			if x >= width/2 {
				shade = 255
			}
			i := y*stride + x*4
			pix[i+0], pix[i+1], pix[i+2], pix[i+3] = shade, shade, shade, 255
		}
	}
	return model.RawFrame{Pixels: pix, Width: width, Height: height, Stride: stride}
}

func newTestDetector(t *testing.T, threshold int) (*Worker, *stubCatalog) {
	t.Helper()
	dir := t.TempDir()
	cat := &stubCatalog{}
	control := controlplane.NewState(model.ModeContext)
	events := controlplane.NewEvents()
	in := queue.New[model.RawFrame](16)
	cfg := Config{ChangeThreshold: threshold, JPEGQuality: 85, ContextDir: dir}
	return NewWorker(cfg, control, events, in, cat), cat
}

func TestFirstFrameAlwaysAccepted(t *testing.T) {
	w, cat := newTestDetector(t, 5)
	w.considerFrame(solidFrame(32, 32, 100), time.Unix(1000, 0).UTC())
	if len(cat.inserted) != 1 {
		t.Fatalf("inserted = %d, want 1", len(cat.inserted))
	}
}

func TestIdenticalFrameNotAcceptedEvenAfterThrottle(t *testing.T) {
	w, cat := newTestDetector(t, 5)
	t0 := time.Unix(1000, 0).UTC()
	w.considerFrame(solidFrame(32, 32, 100), t0)
	w.considerFrame(solidFrame(32, 32, 100), t0.Add(2*time.Second))
	if len(cat.inserted) != 1 {
		t.Fatalf("inserted = %d, want 1 (identical frame must not be re-accepted)", len(cat.inserted))
	}
}

func TestThrottleDropsFrameWithinOneSecondRegardlessOfHash(t *testing.T) {
	w, cat := newTestDetector(t, 0) // threshold 0: any difference would otherwise qualify
	t0 := time.Unix(1000, 0).UTC()
	w.considerFrame(solidFrame(32, 32, 0), t0)
	w.considerFrame(splitFrame(32, 32), t0.Add(500*time.Millisecond))
	if len(cat.inserted) != 1 {
		t.Fatalf("inserted = %d, want 1 (second frame arrived before the 1s throttle elapsed)", len(cat.inserted))
	}
}

func TestChangeAboveThresholdAcceptedAfterThrottle(t *testing.T) {
	w, cat := newTestDetector(t, 5)
	t0 := time.Unix(1000, 0).UTC()
	w.considerFrame(solidFrame(32, 32, 0), t0)
	w.considerFrame(splitFrame(32, 32), t0.Add(2*time.Second))
	if len(cat.inserted) != 2 {
		t.Fatalf("inserted = %d, want 2", len(cat.inserted))
	}
}
