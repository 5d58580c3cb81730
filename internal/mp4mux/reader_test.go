package mp4mux

import (
	"path/filepath"
	"testing"
)

func TestReadSegmentRoundTripsWrittenSamples(t *testing.T) {
	m := New(testParams())
	m.AddSample(avccSample(10), 5, true)
	m.AddSample(avccSample(20), 5, false)
	m.AddSample(avccSample(15), 5, false)

	path := filepath.Join(t.TempDir(), "seg.mp4")
	if err := m.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	params, samples, err := ReadSegment(path)
	if err != nil {
		t.Fatalf("ReadSegment: %v", err)
	}
	if params.Width != testParams().Width || params.Height != testParams().Height {
		t.Fatalf("params = %+v, want width/height %d/%d", params, testParams().Width, testParams().Height)
	}
	if len(samples) != 3 {
		t.Fatalf("len(samples) = %d, want 3", len(samples))
	}
	wantSizes := []int{14, 24, 19} // 4-byte length prefix + n bytes payload
	for i, s := range samples {
		if len(s.Data) != wantSizes[i] {
			t.Errorf("sample %d size = %d, want %d", i, len(s.Data), wantSizes[i])
		}
	}
	if !samples[0].Keyframe {
		t.Error("sample 0 should be a keyframe")
	}
	if samples[1].Keyframe || samples[2].Keyframe {
		t.Error("samples 1 and 2 should not be keyframes")
	}
}

func TestReadSegmentRejectsMissingFile(t *testing.T) {
	if _, _, err := ReadSegment("/nonexistent/path.mp4"); err == nil {
		t.Fatal("expected error reading a nonexistent file")
	}
}
