// Package ringbuffer implements the Focus Ring Buffer: an ordered,
// capacity-bounded in-memory list mirroring finalized segment files on
// disk, with crash recovery by re-scanning the buffer directory.
package ringbuffer

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/lanternops/duplexrecorder/internal/logging"
	"github.com/lanternops/duplexrecorder/internal/model"
)

var log = logging.L("ringbuffer")

const defaultRecoveredDuration = 5 * time.Second

var segmentFileRE = regexp.MustCompile(`^\d{8}_\d{6}_\d{3}\.mp4$`)

// Buffer is the Focus Ring Buffer. A single-writer/multi-reader lock guards
// the entry list: mutators (Add) take the write lock, accessors take the
// read lock.
type Buffer struct {
	mu          sync.RWMutex
	dir         string
	maxSegments int
	entries     []model.RingBufferEntry
}

// New constructs a Buffer over dir, capped at maxSegments, recovering any
// segment files already present from a prior run.
func New(dir string, maxSegments int) (*Buffer, error) {
	if maxSegments <= 0 {
		maxSegments = 6
	}
	b := &Buffer{dir: dir, maxSegments: maxSegments}
	if err := b.recover(); err != nil {
		return nil, err
	}
	return b, nil
}

// Add appends entry; if the count exceeds maxSegments, evicts from the
// front until the count equals maxSegments, best-effort deleting each
// evicted file.
func (b *Buffer) Add(entry model.RingBufferEntry) {
	b.mu.Lock()
	b.entries = append(b.entries, entry)
	evicted := b.evictLocked()
	b.mu.Unlock()

	for _, e := range evicted {
		if err := os.Remove(e.Segment.Path); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to delete evicted segment", "path", e.Segment.Path, logging.KeyError, err)
		}
	}
}

func (b *Buffer) evictLocked() []model.RingBufferEntry {
	if len(b.entries) <= b.maxSegments {
		return nil
	}
	overflow := len(b.entries) - b.maxSegments
	evicted := append([]model.RingBufferEntry(nil), b.entries[:overflow]...)
	b.entries = b.entries[overflow:]
	return evicted
}

// SegmentsForRange returns all entries whose [start, start+duration) range
// intersects [from, to), in segment-creation order.
func (b *Buffer) SegmentsForRange(from, to time.Time) []model.VideoSegment {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []model.VideoSegment
	for _, e := range b.entries {
		seg := e.Segment
		if seg.StartUTC.Before(to) && seg.EndUTC().After(from) {
			out = append(out, seg)
		}
	}
	return out
}

// Count returns the number of entries currently held.
func (b *Buffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// TotalDuration sums the duration of every held entry.
func (b *Buffer) TotalDuration() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var total time.Duration
	for _, e := range b.entries {
		total += e.Segment.Duration
	}
	return total
}

// recover scans dir for segment files, reconstructs an ordered entry list
// by parsing timestamps from filenames, diffs successive starts to
// recover durations (the final entry gets defaultRecoveredDuration), then
// runs one eviction pass.
func (b *Buffer) recover() error {
	files, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	type found struct {
		path    string
		modTime time.Time
		start   time.Time
	}
	var candidates []found
	for _, f := range files {
		if f.IsDir() || !segmentFileRE.MatchString(f.Name()) {
			continue
		}
		start, err := parseSegmentTimestamp(f.Name())
		if err != nil {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, found{path: filepath.Join(b.dir, f.Name()), modTime: info.ModTime(), start: start})
	}

	// The filename-embedded timestamp is the primary sort key: it is what
	// the encoder assigned the segment at creation time and is authoritative
	// even if mtime has since been disturbed (restore, copy, clock skew).
	// modTime, then path, only break ties between identical start times.
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].start.Equal(candidates[j].start) {
			return candidates[i].start.Before(candidates[j].start)
		}
		if !candidates[i].modTime.Equal(candidates[j].modTime) {
			return candidates[i].modTime.Before(candidates[j].modTime)
		}
		return candidates[i].path < candidates[j].path
	})

	entries := make([]model.RingBufferEntry, 0, len(candidates))
	for i, c := range candidates {
		duration := defaultRecoveredDuration
		if i+1 < len(candidates) {
			if d := candidates[i+1].start.Sub(c.start); d > 0 {
				duration = d
			}
		}
		entries = append(entries, model.RingBufferEntry{Segment: model.VideoSegment{
			Path: c.path, StartUTC: c.start, Duration: duration,
		}})
	}

	b.mu.Lock()
	b.entries = entries
	evicted := b.evictLocked()
	b.mu.Unlock()

	for _, e := range evicted {
		if err := os.Remove(e.Segment.Path); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to delete evicted segment during recovery", "path", e.Segment.Path, logging.KeyError, err)
		}
	}
	if len(candidates) > 0 {
		log.Info("recovered focus ring buffer", "count", len(entries), "evicted", len(evicted))
	}
	return nil
}

func parseSegmentTimestamp(name string) (time.Time, error) {
	base := name[:len(name)-len(filepath.Ext(name))]
	return model.ParseFilenameTimestamp(base)
}
