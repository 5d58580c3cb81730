package retention

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lanternops/duplexrecorder/internal/model"
	"github.com/lanternops/duplexrecorder/internal/mp4mux"
	"github.com/lanternops/duplexrecorder/internal/ringbuffer"
)

func testMuxParams() mp4mux.Params {
	return mp4mux.Params{
		Width: 1280, Height: 720, FPS: 30, BitrateBPS: 4_000_000,
		SPS: []byte{0x67, 0x42, 0x00, 0x1f}, PPS: []byte{0x68, 0xce, 0x3c, 0x80},
	}
}

// writeSegment writes a 5-second, 1fps-equivalent segment (5 one-second
// samples) starting at start, for use as ring buffer fixture data.
func writeSegment(t *testing.T, dir string, start time.Time) model.VideoSegment {
	t.Helper()
	mux := mp4mux.New(testMuxParams())
	const sampleCount = 5
	const hnsPerSample = 10_000_000
	for i := 0; i < sampleCount; i++ {
		mux.AddSample([]byte{0, 0, 0, 3, 1, 2, 3}, hnsPerSample, i == 0)
	}
	name := model.FormatFilenameTimestamp(start) + ".mp4"
	path := filepath.Join(dir, name)
	if err := mux.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return model.VideoSegment{Path: path, StartUTC: start, Duration: sampleCount * time.Second}
}

func TestMaterializeClipConcatenatesSegmentsInRange(t *testing.T) {
	dir := t.TempDir()
	clipsDir := t.TempDir()
	ring, err := ringbuffer.New(dir, 6)
	if err != nil {
		t.Fatalf("ringbuffer.New: %v", err)
	}

	base := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		seg := writeSegment(t, dir, base.Add(time.Duration(i*5)*time.Second))
		ring.Add(model.RingBufferEntry{Segment: seg})
	}

	// Mirrors S5: 6 x 5s segments spanning [0,30); clip the last 10s.
	now := base.Add(30 * time.Second)
	req := model.NewClipRequest(now, 10*time.Second)

	result := MaterializeClip(ring, clipsDir, req)
	if result.Err != nil {
		t.Fatalf("MaterializeClip: %v", result.Err)
	}
	if result.SegmentCount != 2 {
		t.Fatalf("SegmentCount = %d, want 2", result.SegmentCount)
	}
	if _, err := os.Stat(result.OutputPath); err != nil {
		t.Fatalf("output clip missing: %v", err)
	}

	_, samples, err := mp4mux.ReadSegment(result.OutputPath)
	if err != nil {
		t.Fatalf("ReadSegment(output): %v", err)
	}
	if len(samples) != 10 { // 2 segments x 5 samples each
		t.Fatalf("len(samples) = %d, want 10", len(samples))
	}
}

func TestMaterializeClipNarrowerThanRequestedWhenHistoryIsShort(t *testing.T) {
	dir := t.TempDir()
	clipsDir := t.TempDir()
	ring, err := ringbuffer.New(dir, 6)
	if err != nil {
		t.Fatalf("ringbuffer.New: %v", err)
	}

	base := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	seg := writeSegment(t, dir, base)
	ring.Add(model.RingBufferEntry{Segment: seg})

	now := base.Add(5 * time.Second)
	req := model.NewClipRequest(now, time.Minute) // far wider than buffered history

	result := MaterializeClip(ring, clipsDir, req)
	if result.Err != nil {
		t.Fatalf("MaterializeClip: %v", result.Err)
	}
	if result.SegmentCount != 1 {
		t.Fatalf("SegmentCount = %d, want 1", result.SegmentCount)
	}
	if !result.MaterializedFrom.Equal(base) {
		t.Errorf("MaterializedFrom = %v, want %v", result.MaterializedFrom, base)
	}
	if !result.MaterializedTo.Equal(now) {
		t.Errorf("MaterializedTo = %v, want %v", result.MaterializedTo, now)
	}
}

func TestMaterializeClipFailsWhenNothingInRange(t *testing.T) {
	dir := t.TempDir()
	clipsDir := t.TempDir()
	ring, err := ringbuffer.New(dir, 6)
	if err != nil {
		t.Fatalf("ringbuffer.New: %v", err)
	}

	req := model.NewClipRequest(time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC), 10*time.Second)
	result := MaterializeClip(ring, clipsDir, req)
	if result.Err == nil {
		t.Fatal("expected error when no segments intersect the requested range")
	}
}

// TestMaterializeClipRejectsZeroDuration guards the Duration<=0 degenerate
// case: from==to==RequestedAt makes SegmentsForRange's half-open overlap
// test collapse to a single-instant containment check, which can
// spuriously match a segment whose nominal range still covers "now". The
// zero-duration guard must short-circuit before that query ever runs.
func TestMaterializeClipRejectsZeroDuration(t *testing.T) {
	dir := t.TempDir()
	clipsDir := t.TempDir()
	ring, err := ringbuffer.New(dir, 6)
	if err != nil {
		t.Fatalf("ringbuffer.New: %v", err)
	}

	base := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	// A segment whose nominal [start, start+duration) range contains base
	// itself, so a naive from==to==base overlap test would match it.
	seg := writeSegment(t, dir, base.Add(-2*time.Second))
	ring.Add(model.RingBufferEntry{Segment: seg})

	req := model.NewClipRequest(base, 0)
	result := MaterializeClip(ring, clipsDir, req)

	if result.Err == nil {
		t.Fatal("expected error for a zero-duration clip request")
	}
	if result.OutputPath != "" {
		t.Fatalf("OutputPath = %q, want empty for a rejected zero-duration request", result.OutputPath)
	}
	if result.SegmentCount != 0 {
		t.Fatalf("SegmentCount = %d, want 0", result.SegmentCount)
	}
	entries, err := os.ReadDir(clipsDir)
	if err != nil {
		t.Fatalf("ReadDir(clipsDir): %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("clipsDir contains %d files, want 0 (no output file for a rejected request)", len(entries))
	}
}

func TestMaterializeClipRejectsNegativeDuration(t *testing.T) {
	dir := t.TempDir()
	clipsDir := t.TempDir()
	ring, err := ringbuffer.New(dir, 6)
	if err != nil {
		t.Fatalf("ringbuffer.New: %v", err)
	}

	req := model.NewClipRequest(time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC), -5*time.Second)
	result := MaterializeClip(ring, clipsDir, req)
	if result.Err == nil {
		t.Fatal("expected error for a negative-duration clip request")
	}
}

func TestMaterializeClipReportsConcatenationFailure(t *testing.T) {
	dir := t.TempDir()
	clipsDir := t.TempDir()
	ring, err := ringbuffer.New(dir, 6)
	if err != nil {
		t.Fatalf("ringbuffer.New: %v", err)
	}

	base := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	seg := writeSegment(t, dir, base)
	ring.Add(model.RingBufferEntry{Segment: seg})
	if err := os.Remove(seg.Path); err != nil {
		t.Fatalf("os.Remove: %v", err)
	}

	req := model.NewClipRequest(base.Add(5*time.Second), 10*time.Second)
	result := MaterializeClip(ring, clipsDir, req)
	if result.Err == nil {
		t.Fatal("expected error when a constituent segment file is missing")
	}
}
