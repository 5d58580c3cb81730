package mp4mux

import (
	"encoding/binary"
	"fmt"
	"os"
)

// readBox is a minimal box-tree node used to walk a finalized segment
// back into its constituent boxes, for clip concatenation.
type readBox struct {
	fourcc   string
	payload  []byte // box payload, excluding the 8-byte header
}

func parseBoxes(data []byte) ([]readBox, error) {
	var out []readBox
	for len(data) > 0 {
		if len(data) < 8 {
			return nil, fmt.Errorf("mp4mux: truncated box header")
		}
		size := binary.BigEndian.Uint32(data[0:4])
		fourcc := string(data[4:8])
		if size < 8 || int(size) > len(data) {
			return nil, fmt.Errorf("mp4mux: invalid box size %d for %q", size, fourcc)
		}
		out = append(out, readBox{fourcc: fourcc, payload: data[8:size]})
		data = data[size:]
	}
	return out, nil
}

func findBox(boxes []readBox, fourcc string) (readBox, bool) {
	for _, b := range boxes {
		if b.fourcc == fourcc {
			return b, true
		}
	}
	return readBox{}, false
}

// ReadSegment re-parses a file written by WriteFile back into its Params
// and ordered Sample list, used by the clip materializer to re-mux several
// finalized segments into one combined moov/mdat rather than naively
// byte-concatenating separate MP4 containers.
func ReadSegment(path string) (Params, []Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, nil, fmt.Errorf("mp4mux: read %s: %w", path, err)
	}

	top, err := parseBoxes(data)
	if err != nil {
		return Params{}, nil, fmt.Errorf("mp4mux: parse %s: %w", path, err)
	}
	moov, ok := findBox(top, "moov")
	if !ok {
		return Params{}, nil, fmt.Errorf("mp4mux: %s has no moov box", path)
	}
	mdat, ok := findBox(top, "mdat")
	if !ok {
		return Params{}, nil, fmt.Errorf("mp4mux: %s has no mdat box", path)
	}

	trakChildren, err := parseBoxes(moov.payload)
	if err != nil {
		return Params{}, nil, err
	}
	trak, ok := findBox(trakChildren, "trak")
	if !ok {
		return Params{}, nil, fmt.Errorf("mp4mux: %s moov has no trak", path)
	}
	mdiaParent, err := parseBoxes(trak.payload)
	if err != nil {
		return Params{}, nil, err
	}
	mdia, ok := findBox(mdiaParent, "mdia")
	if !ok {
		return Params{}, nil, fmt.Errorf("mp4mux: %s trak has no mdia", path)
	}
	mdiaChildren, err := parseBoxes(mdia.payload)
	if err != nil {
		return Params{}, nil, err
	}
	minf, ok := findBox(mdiaChildren, "minf")
	if !ok {
		return Params{}, nil, fmt.Errorf("mp4mux: %s mdia has no minf", path)
	}
	minfChildren, err := parseBoxes(minf.payload)
	if err != nil {
		return Params{}, nil, err
	}
	stbl, ok := findBox(minfChildren, "stbl")
	if !ok {
		return Params{}, nil, fmt.Errorf("mp4mux: %s minf has no stbl", path)
	}
	stblChildren, err := parseBoxes(stbl.payload)
	if err != nil {
		return Params{}, nil, err
	}

	params, err := parseStsd(stblChildren)
	if err != nil {
		return Params{}, nil, err
	}

	durations, err := parseStts(stblChildren)
	if err != nil {
		return Params{}, nil, err
	}
	sizes, err := parseStsz(stblChildren)
	if err != nil {
		return Params{}, nil, err
	}
	if len(durations) != len(sizes) {
		return Params{}, nil, fmt.Errorf("mp4mux: %s stts/stsz sample count mismatch (%d vs %d)", path, len(durations), len(sizes))
	}
	offsets, err := parseStco(stblChildren)
	if err != nil {
		return Params{}, nil, err
	}
	if len(offsets) != len(sizes) {
		return Params{}, nil, fmt.Errorf("mp4mux: %s stco/stsz sample count mismatch (%d vs %d)", path, len(offsets), len(sizes))
	}
	keyframes := parseStss(stblChildren, len(sizes))

	samples := make([]Sample, len(sizes))
	for i := range sizes {
		start := offsets[i]
		end := start + sizes[i]
		if int(end) > len(data) {
			return Params{}, nil, fmt.Errorf("mp4mux: %s sample %d extends past file end", path, i)
		}
		payload := make([]byte, sizes[i])
		copy(payload, data[start:end])
		samples[i] = Sample{Data: payload, DurationHNS: int64(durations[i]), Keyframe: keyframes[i]}
	}

	_ = mdat // mdat's absolute byte range in data was already used via stco offsets
	return params, samples, nil
}

func parseStsd(stbl []readBox) (Params, error) {
	stsd, ok := findBox(stbl, "stsd")
	if !ok {
		return Params{}, fmt.Errorf("mp4mux: missing stsd")
	}
	if len(stsd.payload) < 8 {
		return Params{}, fmt.Errorf("mp4mux: truncated stsd")
	}
	entries, err := parseBoxes(stsd.payload[8:])
	if err != nil {
		return Params{}, err
	}
	avc1, ok := findBox(entries, "avc1")
	if !ok {
		return Params{}, fmt.Errorf("mp4mux: stsd has no avc1 entry")
	}
	if len(avc1.payload) < 78 {
		return Params{}, fmt.Errorf("mp4mux: truncated avc1")
	}
	width := binary.BigEndian.Uint16(avc1.payload[24:26])
	height := binary.BigEndian.Uint16(avc1.payload[26:28])

	avc1Children, err := parseBoxes(avc1.payload[78:])
	if err != nil {
		return Params{}, err
	}
	avcC, ok := findBox(avc1Children, "avcC")
	if !ok {
		return Params{}, fmt.Errorf("mp4mux: avc1 has no avcC")
	}
	sps, pps, err := parseAvcC(avcC.payload)
	if err != nil {
		return Params{}, err
	}

	return Params{Width: int(width), Height: int(height), SPS: sps, PPS: pps}, nil
}

func parseAvcC(p []byte) (sps, pps []byte, err error) {
	if len(p) < 6 {
		return nil, nil, fmt.Errorf("mp4mux: truncated avcC")
	}
	numSPS := int(p[5] & 0x1F)
	off := 6
	for i := 0; i < numSPS; i++ {
		if off+2 > len(p) {
			return nil, nil, fmt.Errorf("mp4mux: truncated avcC sps length")
		}
		l := int(binary.BigEndian.Uint16(p[off : off+2]))
		off += 2
		if off+l > len(p) {
			return nil, nil, fmt.Errorf("mp4mux: truncated avcC sps payload")
		}
		if i == 0 {
			sps = append([]byte(nil), p[off:off+l]...)
		}
		off += l
	}
	if off >= len(p) {
		return sps, nil, nil
	}
	numPPS := int(p[off])
	off++
	for i := 0; i < numPPS; i++ {
		if off+2 > len(p) {
			break
		}
		l := int(binary.BigEndian.Uint16(p[off : off+2]))
		off += 2
		if off+l > len(p) {
			break
		}
		if i == 0 {
			pps = append([]byte(nil), p[off:off+l]...)
		}
		off += l
	}
	return sps, pps, nil
}

func parseStts(stbl []readBox) ([]uint32, error) {
	stts, ok := findBox(stbl, "stts")
	if !ok {
		return nil, fmt.Errorf("mp4mux: missing stts")
	}
	p := stts.payload
	if len(p) < 8 {
		return nil, fmt.Errorf("mp4mux: truncated stts")
	}
	entryCount := binary.BigEndian.Uint32(p[4:8])
	var out []uint32
	off := 8
	for i := uint32(0); i < entryCount; i++ {
		if off+8 > len(p) {
			return nil, fmt.Errorf("mp4mux: truncated stts entry")
		}
		count := binary.BigEndian.Uint32(p[off : off+4])
		duration := binary.BigEndian.Uint32(p[off+4 : off+8])
		for j := uint32(0); j < count; j++ {
			out = append(out, duration)
		}
		off += 8
	}
	return out, nil
}

func parseStsz(stbl []readBox) ([]uint32, error) {
	stsz, ok := findBox(stbl, "stsz")
	if !ok {
		return nil, fmt.Errorf("mp4mux: missing stsz")
	}
	p := stsz.payload
	if len(p) < 12 {
		return nil, fmt.Errorf("mp4mux: truncated stsz")
	}
	uniformSize := binary.BigEndian.Uint32(p[4:8])
	count := binary.BigEndian.Uint32(p[8:12])
	sizes := make([]uint32, count)
	if uniformSize != 0 {
		for i := range sizes {
			sizes[i] = uniformSize
		}
		return sizes, nil
	}
	off := 12
	for i := uint32(0); i < count; i++ {
		if off+4 > len(p) {
			return nil, fmt.Errorf("mp4mux: truncated stsz table")
		}
		sizes[i] = binary.BigEndian.Uint32(p[off : off+4])
		off += 4
	}
	return sizes, nil
}

func parseStco(stbl []readBox) ([]uint32, error) {
	stco, ok := findBox(stbl, "stco")
	if !ok {
		return nil, fmt.Errorf("mp4mux: missing stco")
	}
	p := stco.payload
	if len(p) < 8 {
		return nil, fmt.Errorf("mp4mux: truncated stco")
	}
	count := binary.BigEndian.Uint32(p[4:8])
	offsets := make([]uint32, count)
	off := 8
	for i := uint32(0); i < count; i++ {
		if off+4 > len(p) {
			return nil, fmt.Errorf("mp4mux: truncated stco table")
		}
		offsets[i] = binary.BigEndian.Uint32(p[off : off+4])
		off += 4
	}
	return offsets, nil
}

// parseStss returns a per-sample keyframe flag array of length sampleCount.
// An absent stss means every sample is a sync sample, mirroring the
// omission rule buildStss applies when writing (see buildStss).
func parseStss(stbl []readBox, sampleCount int) []bool {
	out := make([]bool, sampleCount)
	stss, ok := findBox(stbl, "stss")
	if !ok {
		for i := range out {
			out[i] = true
		}
		return out
	}
	p := stss.payload
	if len(p) < 8 {
		return out
	}
	count := binary.BigEndian.Uint32(p[4:8])
	off := 8
	for i := uint32(0); i < count; i++ {
		if off+4 > len(p) {
			break
		}
		idx := binary.BigEndian.Uint32(p[off : off+4])
		off += 4
		if idx >= 1 && int(idx) <= sampleCount {
			out[idx-1] = true
		}
	}
	return out
}
