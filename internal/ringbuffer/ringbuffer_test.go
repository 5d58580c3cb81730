package ringbuffer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lanternops/duplexrecorder/internal/model"
)

func newEntry(t *testing.T, dir, name string, start time.Time, dur time.Duration) model.RingBufferEntry {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("fake mp4"), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return model.RingBufferEntry{Segment: model.VideoSegment{Path: path, StartUTC: start, Duration: dur}}
}

func TestAddEvictsFromFrontWhenOverCapacity(t *testing.T) {
	dir := t.TempDir()
	b, err := New(dir, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	base := time.Unix(1000, 0).UTC()

	e1 := newEntry(t, dir, "20060102_150405_000.mp4", base, 5*time.Second)
	e2 := newEntry(t, dir, "20060102_150410_000.mp4", base.Add(5*time.Second), 5*time.Second)
	e3 := newEntry(t, dir, "20060102_150415_000.mp4", base.Add(10*time.Second), 5*time.Second)

	b.Add(e1)
	b.Add(e2)
	if got := b.Count(); got != 2 {
		t.Fatalf("Count() after 2 adds = %d, want 2", got)
	}

	b.Add(e3)
	if got := b.Count(); got != 2 {
		t.Fatalf("Count() after eviction = %d, want 2", got)
	}
	if _, err := os.Stat(e1.Segment.Path); !os.IsNotExist(err) {
		t.Fatal("oldest entry's file should have been deleted on eviction")
	}
	if _, err := os.Stat(e2.Segment.Path); err != nil {
		t.Fatal("second entry's file should still exist")
	}
}

func TestSegmentsForRangeIntersection(t *testing.T) {
	dir := t.TempDir()
	b, err := New(dir, 6)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	base := time.Unix(2000, 0).UTC()

	b.Add(newEntry(t, dir, "20060102_150405_000.mp4", base, 5*time.Second))
	b.Add(newEntry(t, dir, "20060102_150410_000.mp4", base.Add(5*time.Second), 5*time.Second))
	b.Add(newEntry(t, dir, "20060102_150415_000.mp4", base.Add(10*time.Second), 5*time.Second))

	got := b.SegmentsForRange(base.Add(6*time.Second), base.Add(11*time.Second))
	if len(got) != 2 {
		t.Fatalf("SegmentsForRange returned %d segments, want 2", len(got))
	}
}

func TestCrashRecoveryReconstructsOrderAndDurations(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

	os.WriteFile(filepath.Join(dir, model.FormatFilenameTimestamp(base)+".mp4"), []byte("a"), 0644)
	os.WriteFile(filepath.Join(dir, model.FormatFilenameTimestamp(base.Add(5*time.Second))+".mp4"), []byte("b"), 0644)
	os.WriteFile(filepath.Join(dir, model.FormatFilenameTimestamp(base.Add(10*time.Second))+".mp4"), []byte("c"), 0644)

	b, err := New(dir, 6)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := b.Count(); got != 3 {
		t.Fatalf("recovered Count() = %d, want 3", got)
	}
	if total := b.TotalDuration(); total != 15*time.Second {
		t.Fatalf("recovered TotalDuration() = %v, want 15s (5s+5s+5s default tail)", total)
	}
}

// TestCrashRecoverySortsByFilenameTimestampNotModTime scrambles mtimes
// relative to filename order (as a backup restore or file copy would) and
// confirms recovery still reconstructs entries in filename-timestamp order,
// not mtime order.
func TestCrashRecoverySortsByFilenameTimestampNotModTime(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

	names := []string{
		model.FormatFilenameTimestamp(base) + ".mp4",
		model.FormatFilenameTimestamp(base.Add(5*time.Second)) + ".mp4",
		model.FormatFilenameTimestamp(base.Add(10*time.Second)) + ".mp4",
	}
	// mtimes deliberately set in the reverse order of the filename
	// timestamps: the oldest-named segment gets the newest mtime.
	modTimes := []time.Time{
		time.Date(2026, 1, 2, 16, 0, 2, 0, time.UTC),
		time.Date(2026, 1, 2, 16, 0, 1, 0, time.UTC),
		time.Date(2026, 1, 2, 16, 0, 0, 0, time.UTC),
	}

	for i, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("segment"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if err := os.Chtimes(path, modTimes[i], modTimes[i]); err != nil {
			t.Fatalf("Chtimes: %v", err)
		}
	}

	b, err := New(dir, 6)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := b.Count(); got != 3 {
		t.Fatalf("recovered Count() = %d, want 3", got)
	}

	got := b.SegmentsForRange(base, base.Add(11*time.Second))
	if len(got) != 3 {
		t.Fatalf("SegmentsForRange returned %d segments, want 3", len(got))
	}
	for i, seg := range got {
		wantStart := base.Add(time.Duration(i*5) * time.Second)
		if !seg.StartUTC.Equal(wantStart) {
			t.Fatalf("entry %d: StartUTC = %v, want %v (recovery order should follow filename timestamps, not mtime)", i, seg.StartUTC, wantStart)
		}
	}
}

func TestRingBufferDirAbsentIsNotAnError(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")
	b, err := New(dir, 6)
	if err != nil {
		t.Fatalf("New with missing dir returned error: %v", err)
	}
	if b.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", b.Count())
	}
}
