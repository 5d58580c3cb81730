package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lanternops/duplexrecorder/internal/model"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.sqlite")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func snapAt(t *testing.T, dir string, ts time.Time) model.ContextSnapshot {
	t.Helper()
	path := filepath.Join(dir, model.FormatFilenameTimestamp(ts)+".jpg")
	if err := os.WriteFile(path, []byte("jpeg"), 0644); err != nil {
		t.Fatalf("write snapshot file: %v", err)
	}
	return model.ContextSnapshot{Path: path, Timestamp: ts, Hash: model.CompactHash(42)}
}

func TestInsertAndRange(t *testing.T) {
	c := openTestCatalog(t)
	dir := t.TempDir()
	base := time.Unix(10_000, 0).UTC()

	for i := 0; i < 5; i++ {
		snap := snapAt(t, dir, base.Add(time.Duration(i)*time.Second))
		if _, err := c.Insert(snap); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := c.Range(base.Add(1*time.Second), base.Add(3*time.Second))
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Range returned %d rows, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Fatal("Range results not ordered ascending by timestamp")
		}
	}
}

func TestDeleteBeforeRemovesRowsAndFiles(t *testing.T) {
	c := openTestCatalog(t)
	dir := t.TempDir()
	base := time.Unix(20_000, 0).UTC()

	old := snapAt(t, dir, base)
	recent := snapAt(t, dir, base.Add(10*time.Minute))
	c.Insert(old)
	c.Insert(recent)

	if err := c.DeleteBefore(base.Add(5 * time.Minute)); err != nil {
		t.Fatalf("DeleteBefore: %v", err)
	}

	got, err := c.Range(time.Unix(0, 0).UTC(), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(got) != 1 || got[0].Path != recent.Path {
		t.Fatalf("DeleteBefore left %v, want only the recent row", got)
	}
	if _, err := os.Stat(old.Path); !os.IsNotExist(err) {
		t.Fatal("DeleteBefore should have removed the stale file")
	}
}

func TestEnforceMaxDeletesOldestOverflow(t *testing.T) {
	c := openTestCatalog(t)
	dir := t.TempDir()
	base := time.Unix(30_000, 0).UTC()

	var snaps []model.ContextSnapshot
	for i := 0; i < 5; i++ {
		snap := snapAt(t, dir, base.Add(time.Duration(i)*time.Second))
		c.Insert(snap)
		snaps = append(snaps, snap)
	}

	if err := c.EnforceMax(3); err != nil {
		t.Fatalf("EnforceMax: %v", err)
	}

	got, err := c.Range(time.Unix(0, 0).UTC(), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("EnforceMax left %d rows, want 3", len(got))
	}
	for _, deleted := range snaps[:2] {
		if _, err := os.Stat(deleted.Path); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be deleted by EnforceMax", deleted.Path)
		}
	}
}

func TestReconcilePrunesRowsWithMissingFiles(t *testing.T) {
	c := openTestCatalog(t)
	dir := t.TempDir()
	base := time.Unix(40_000, 0).UTC()

	snap := snapAt(t, dir, base)
	c.Insert(snap)
	os.Remove(snap.Path)

	if err := c.Reconcile(); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	got, err := c.Range(time.Unix(0, 0).UTC(), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Reconcile left %d rows, want 0", len(got))
	}
}
