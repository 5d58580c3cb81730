package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lanternops/duplexrecorder/internal/catalog"
	"github.com/lanternops/duplexrecorder/internal/controlplane"
	"github.com/lanternops/duplexrecorder/internal/model"
	"github.com/lanternops/duplexrecorder/internal/ringbuffer"
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *controlplane.Events, *controlplane.ClipRequests, *ringbuffer.Buffer, *catalog.Catalog) {
	t.Helper()
	ring, err := ringbuffer.New(t.TempDir(), 6)
	if err != nil {
		t.Fatalf("ringbuffer.New: %v", err)
	}
	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	events := controlplane.NewEvents()
	clips := controlplane.NewClipRequests(4)
	e := New(cfg, events, clips, ring, cat)
	return e, events, clips, ring, cat
}

func TestRunAddsCompletedSegmentsToRingBuffer(t *testing.T) {
	e, events, _, ring, _ := newTestEngine(t, Config{ContextRetentionWindow: time.Minute, MaxContextFrames: 100})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	seg := model.VideoSegment{Path: "/tmp/does-not-need-to-exist.mp4", StartUTC: time.Now(), Duration: 5 * time.Second}
	events.PublishSegmentComplete(seg)

	deadline := time.Now().Add(time.Second)
	for ring.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if ring.Count() != 1 {
		t.Fatalf("ring.Count() = %d, want 1", ring.Count())
	}

	cancel()
	<-done
}

func TestRunEnforcesContextRetentionWindowOnEachSnapshot(t *testing.T) {
	e, events, _, _, cat := newTestEngine(t, Config{ContextRetentionWindow: time.Second, MaxContextFrames: 1000, EnforceMaxEvery: 1000})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	stale := model.ContextSnapshot{Path: filepath.Join(t.TempDir(), "stale.jpg"), Timestamp: time.Now().Add(-time.Hour)}
	staleID, err := cat.Insert(stale)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	_ = staleID

	events.PublishSnapshotRecorded(model.ContextSnapshot{Path: filepath.Join(t.TempDir(), "fresh.jpg"), Timestamp: time.Now()})

	deadline := time.Now().Add(time.Second)
	for {
		rows, err := cat.Range(time.Now().Add(-2*time.Hour), time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("Range: %v", err)
		}
		stillStale := false
		for _, r := range rows {
			if r.Timestamp.Equal(stale.Timestamp) {
				stillStale = true
			}
		}
		if !stillStale {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stale snapshot was never deleted by delete_before")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	<-done
}

func TestRunMaterializesClipRequestsViaWorkerPool(t *testing.T) {
	dir := t.TempDir()
	clipsDir := t.TempDir()
	e, _, clips, ring, _ := newTestEngine(t, Config{ContextRetentionWindow: time.Minute, MaxContextFrames: 100, ClipsDir: clipsDir})

	base := time.Now().Add(-10 * time.Second)
	seg := writeSegment(t, dir, base)
	ring.Add(model.RingBufferEntry{Segment: seg})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	clips.Submit(base.Add(5*time.Second), 10*time.Second)

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	// Run drains the worker pool before returning, so the clip is on disk.
	entries, err := os.ReadDir(clipsDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("clips written = %d, want 1", len(entries))
	}
}
