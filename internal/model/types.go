// Package model holds the data types shared across the capture-to-retention
// pipeline: raw frames, finalized segments, ring buffer descriptors, context
// snapshots, perceptual hashes, clip requests, and the control-state record.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Mode selects the mutually exclusive recording strategy for a run.
type Mode int

const (
	ModeFocus Mode = iota
	ModeContext
)

func (m Mode) String() string {
	switch m {
	case ModeFocus:
		return "focus"
	case ModeContext:
		return "context"
	default:
		return "unknown"
	}
}

// RawFrame is an uncompressed capture: BGRA pixels, byte 0 = blue, byte 2 = red.
// Width/Height are in pixels. TimestampHNS is a monotonic 100-nanosecond clock
// reading assigned at acquisition, not a wall-clock timestamp.
type RawFrame struct {
	Pixels       []byte
	Width        int
	Height       int
	Stride       int
	TimestampHNS int64
	// Repeated is true when this RawFrame was synthesized from the last
	// successfully acquired frame because acquisition reported no new data.
	Repeated bool
}

// VideoSegment is a finalized MP4 file on disk.
type VideoSegment struct {
	Path      string
	StartUTC  time.Time
	Duration  time.Duration
}

// EndUTC returns the exclusive end of the segment's time range.
func (s VideoSegment) EndUTC() time.Time {
	return s.StartUTC.Add(s.Duration)
}

// RingBufferEntry is the in-memory descriptor of a VideoSegment held by the
// Focus Ring Buffer.
type RingBufferEntry struct {
	Segment VideoSegment
}

// ContextSnapshot is a still image on disk plus its catalog row.
type ContextSnapshot struct {
	ID        int64
	Path      string
	Timestamp time.Time
	Hash      CompactHash
}

// CompactHash is the XOR-folded 64-bit form of a PerceptualHash, as stored in
// the catalog.
type CompactHash uint64

// PerceptualHash is a 256-bit perceptual hash: four 64-bit words, bit i of the
// logical hash lives in word i/64 at offset i%64.
type PerceptualHash [4]uint64

// Compact folds the four words into a single 64-bit value by XOR, matching
// the catalog storage representation.
func (h PerceptualHash) Compact() CompactHash {
	return CompactHash(h[0] ^ h[1] ^ h[2] ^ h[3])
}

// ClipRequest is a user intent to materialize the last Duration of Focus
// footage as of RequestedAt. ID is a domain-stack addition used for log
// correlation and by the pipeline to route the clip's result back to the
// requester; it has no bearing on the materialization algorithm.
type ClipRequest struct {
	ID          uuid.UUID
	RequestedAt time.Time
	Duration    time.Duration
}

// NewClipRequest builds a ClipRequest with a fresh correlation ID.
func NewClipRequest(requestedAt time.Time, duration time.Duration) ClipRequest {
	return ClipRequest{ID: uuid.New(), RequestedAt: requestedAt, Duration: duration}
}

// ClipResult reports the outcome of a materialization attempt.
type ClipResult struct {
	Request          ClipRequest
	OutputPath       string
	MaterializedFrom time.Time
	MaterializedTo   time.Time
	SegmentCount     int
	Err              error
}

// filenameTimestampWhole formats the whole-second portion of an on-disk
// filename timestamp; the millisecond field is appended separately since
// Go's reference layout only recognizes a fractional second when it
// immediately follows a period, not an underscore.
const filenameTimestampWhole = "20060102_150405"

// FormatFilenameTimestamp renders t (converted to UTC) as the on-disk
// filename timestamp yyyyMMdd_HHmmss_fff used for segment, snapshot, and
// clip filenames, e.g. 20260731_120005_123.
func FormatFilenameTimestamp(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s_%03d", t.Format(filenameTimestampWhole), t.Nanosecond()/int(time.Millisecond))
}

// ParseFilenameTimestamp parses a string produced by FormatFilenameTimestamp.
func ParseFilenameTimestamp(s string) (time.Time, error) {
	idx := strings.LastIndex(s, "_")
	if idx < 0 {
		return time.Time{}, fmt.Errorf("model: malformed filename timestamp %q", s)
	}
	whole, frac := s[:idx], s[idx+1:]
	t, err := time.Parse(filenameTimestampWhole, whole)
	if err != nil {
		return time.Time{}, fmt.Errorf("model: parse filename timestamp %q: %w", s, err)
	}
	ms, err := strconv.Atoi(frac)
	if err != nil {
		return time.Time{}, fmt.Errorf("model: parse filename timestamp %q: %w", s, err)
	}
	return t.Add(time.Duration(ms) * time.Millisecond), nil
}

// ControlState is the atomically-readable record mutated only by the control
// plane and read on every capture iteration. It is immutable once published;
// mutation means swapping in a new value, never editing fields in place.
type ControlState struct {
	Mode    Mode
	Paused  bool
	Running bool
}

// ProcessedFrame is the BGRA payload forwarded to the optional UI preview
// sink and OCR side-stage. Non-goal: the OCR/preview algorithms themselves.
type ProcessedFrame struct {
	Pixels       []byte
	Width        int
	Height       int
	TimestampHNS int64
}
