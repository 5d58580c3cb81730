package health

import (
	"testing"

	"github.com/lanternops/duplexrecorder/internal/model"
)

func TestCollectMergesPipelineCountersWithSampledUsage(t *testing.T) {
	c := NewCollector(t.TempDir())
	snap, err := c.Collect(model.ModeFocus, 4, 18.5, 0, false)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if snap.FocusSegments != 4 {
		t.Fatalf("FocusSegments = %d, want 4", snap.FocusSegments)
	}
	if snap.CurrentMode != "focus" {
		t.Fatalf("CurrentMode = %q, want %q", snap.CurrentMode, "focus")
	}
	if snap.EncoderFailed {
		t.Fatal("EncoderFailed should be false")
	}
}
