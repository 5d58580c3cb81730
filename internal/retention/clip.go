package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lanternops/duplexrecorder/internal/model"
	"github.com/lanternops/duplexrecorder/internal/mp4mux"
	"github.com/lanternops/duplexrecorder/internal/ringbuffer"
)

// MaterializeClip resolves req against ring's buffered history and writes a
// single concatenated MP4 to clipsDir. Segments are re-muxed sample-by-
// sample into one moov/mdat rather than byte-concatenated, since naively
// joining independent MP4 containers does not produce a valid file.
func MaterializeClip(ring *ringbuffer.Buffer, clipsDir string, req model.ClipRequest) model.ClipResult {
	if req.Duration <= 0 {
		return model.ClipResult{Request: req, Err: fmt.Errorf("retention: clip duration must be positive, got %s", req.Duration)}
	}

	from := req.RequestedAt.Add(-req.Duration)
	to := req.RequestedAt

	segments := ring.SegmentsForRange(from, to)
	if len(segments) == 0 {
		return model.ClipResult{Request: req, Err: fmt.Errorf("retention: no buffered segments intersect [%s, %s)", from, to)}
	}

	params, samples, materializedFrom, materializedTo, err := concatenateSegments(segments, from, to)
	if err != nil {
		return model.ClipResult{Request: req, Err: err}
	}

	if err := os.MkdirAll(clipsDir, 0755); err != nil {
		return model.ClipResult{Request: req, Err: fmt.Errorf("retention: create clips dir: %w", err)}
	}
	outPath := filepath.Join(clipsDir, clipFileName(req.RequestedAt))

	mux := mp4mux.New(params)
	for _, s := range samples {
		mux.AddSample(s.Data, s.DurationHNS, s.Keyframe)
	}
	if err := mux.WriteFile(outPath); err != nil {
		return model.ClipResult{Request: req, Err: fmt.Errorf("retention: write clip: %w", err)}
	}

	return model.ClipResult{
		Request:          req,
		OutputPath:       outPath,
		MaterializedFrom: materializedFrom,
		MaterializedTo:   materializedTo,
		SegmentCount:     len(segments),
	}
}

// concatenateSegments reads each constituent segment in time order and
// returns the combined sample list along with the first segment's Params
// (every segment in a run shares codec/geometry/frame rate) and the actual
// materialized span, which can be narrower than [from, to) when the
// requested window is wider than the buffered history.
func concatenateSegments(segments []model.VideoSegment, from, to time.Time) (mp4mux.Params, []mp4mux.Sample, time.Time, time.Time, error) {
	var params mp4mux.Params
	var samples []mp4mux.Sample
	materializedFrom := segments[0].StartUTC
	materializedTo := segments[len(segments)-1].EndUTC()

	for i, seg := range segments {
		p, segSamples, err := mp4mux.ReadSegment(seg.Path)
		if err != nil {
			return mp4mux.Params{}, nil, time.Time{}, time.Time{}, fmt.Errorf("retention: read segment %s: %w", seg.Path, err)
		}
		if i == 0 {
			params = p
		}
		samples = append(samples, segSamples...)
	}

	if materializedFrom.Before(from) {
		materializedFrom = from
	}
	if materializedTo.After(to) {
		materializedTo = to
	}
	return params, samples, materializedFrom, materializedTo, nil
}

func clipFileName(t time.Time) string {
	return model.FormatFilenameTimestamp(t) + ".mp4"
}
