// Package mp4mux is a small, backend-independent ISO base media file format
// (MP4) muxer. It is deliberately minimal: one video track, avc1/AVCC
// sample entries, and the sample tables (stts/stsz/stsc/stco/stss) needed to
// produce a file any standard player can seek and play. Both the Windows
// Media Foundation H.264 transform (MFT) backend and the cross-platform software encoder
// backend write through this package, so any encoder that honors the media
// parameters and fires a segment-complete notification at finalize time
// produces an identical file shape across platforms.
package mp4mux

import (
	"fmt"
	"os"
)

// Timescale is fixed at 10MHz so sample durations/timestamps, which the
// Encoder Worker already computes in 100ns units, need no rescaling when
// written into stts.
const Timescale = 10_000_000

// Params describes the single video track every segment and clip carries.
type Params struct {
	Width, Height int
	FPS           int
	BitrateBPS    int
	SPS, PPS      []byte
}

// Sample is one AVCC length-prefixed NAL access unit (4-byte big-endian
// length prefix per NAL, no Annex-B start codes) plus its duration in
// 100ns units and whether it is a sync (IDR/keyframe) sample.
type Sample struct {
	Data        []byte
	DurationHNS int64
	Keyframe    bool
}

// Muxer accumulates samples for one output file.
type Muxer struct {
	params  Params
	samples []Sample
}

// New creates a muxer for one finalized segment.
func New(params Params) *Muxer {
	return &Muxer{params: params}
}

// AddSample appends one encoded access unit.
func (m *Muxer) AddSample(data []byte, durationHNS int64, keyframe bool) {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.samples = append(m.samples, Sample{Data: cp, DurationHNS: durationHNS, Keyframe: keyframe})
}

// SampleCount reports how many samples have been added so far; the Encoder
// Worker uses it to skip finalizing a segment that holds no samples.
func (m *Muxer) SampleCount() int { return len(m.samples) }

// SetParameterSets installs the SPS/PPS carried in the avcC box. The
// encoder backend only yields its parameter sets with the first IDR frame,
// after the muxer already exists, so they arrive through this setter rather
// than Params. Safe to call any time before WriteFile; nil arguments leave
// the current value in place.
func (m *Muxer) SetParameterSets(sps, pps []byte) {
	if len(sps) > 0 {
		m.params.SPS = sps
	}
	if len(pps) > 0 {
		m.params.PPS = pps
	}
}

// WriteFile finalizes the accumulated samples into path as ftyp+mdat+moov.
// It is a no-op error to call with zero samples; callers should not invoke
// finalize_segment in that case.
func (m *Muxer) WriteFile(path string) error {
	if len(m.samples) == 0 {
		return fmt.Errorf("mp4mux: cannot finalize a segment with zero samples")
	}

	ftyp := buildFtyp()
	mdat, offsets := buildMdat(m.samples)

	// moov's encoded length does not depend on the numeric value of the
	// stco offsets (each is a fixed 4-byte field), only on the sample
	// count, so a first pass with a placeholder mdat start yields the
	// real byte length moov will occupy in the file; that length is what
	// determines where mdat (and therefore the real stco offsets) falls.
	placeholder := buildMoov(m.params, m.samples, 0, offsets)
	mdatStart := uint32(len(ftyp)) + uint32(len(placeholder))
	moov := buildMoov(m.params, m.samples, mdatStart, offsets)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("mp4mux: create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(ftyp); err != nil {
		return err
	}
	if _, err := f.Write(moov); err != nil {
		return err
	}
	if _, err := f.Write(mdat); err != nil {
		return err
	}
	return nil
}

func buildFtyp() []byte {
	b := newBox("ftyp")
	b.str4("isom")
	b.u32(512)
	b.str4("isom")
	b.str4("iso2")
	b.str4("avc1")
	b.str4("mp41")
	return b.bytes()
}

// buildMdat writes the raw sample bytes (already AVCC length-prefixed) and
// returns the byte offset of each sample relative to the start of the mdat
// payload; buildStco turns these into file offsets using mdatStart.
func buildMdat(samples []Sample) (data []byte, offsets []uint32) {
	b := newBox("mdat")
	offsets = make([]uint32, len(samples))
	var running uint32
	for i, s := range samples {
		offsets[i] = running
		b.raw(s.Data)
		running += uint32(len(s.Data))
	}
	return b.bytes(), offsets
}

func buildMoov(p Params, samples []Sample, mdatDataStart uint32, mdatRelOffsets []uint32) []byte {
	var totalDurationHNS int64
	for _, s := range samples {
		totalDurationHNS += s.DurationHNS
	}

	moov := newBox("moov")
	moov.child(buildMvhd(totalDurationHNS))
	moov.child(buildTrak(p, samples, mdatDataStart, mdatRelOffsets, totalDurationHNS))
	return moov.bytes()
}

func buildMvhd(durationHNS int64) *box {
	b := newBox("mvhd")
	b.u8(0)
	b.raw([]byte{0, 0, 0}) // version+flags
	b.u32(0)                // creation time
	b.u32(0)                // modification time
	b.u32(Timescale)
	b.u32(uint32(durationHNS))
	b.u32(0x00010000) // rate 1.0
	b.u16(0x0100)      // volume 1.0
	b.u16(0)           // reserved
	b.u32(0)
	b.u32(0)
	// unity matrix
	matrix := []uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}
	for _, v := range matrix {
		b.u32(v)
	}
	for i := 0; i < 6; i++ {
		b.u32(0) // predefined
	}
	b.u32(2) // next track ID
	return b
}

func buildTrak(p Params, samples []Sample, mdatDataStart uint32, mdatRelOffsets []uint32, durationHNS int64) *box {
	b := newBox("trak")
	b.child(buildTkhd(p, durationHNS))
	b.child(buildMdia(p, samples, mdatDataStart, mdatRelOffsets, durationHNS))
	return b
}

func buildTkhd(p Params, durationHNS int64) *box {
	b := newBox("tkhd")
	b.u8(0)
	b.raw([]byte{0, 0, 7}) // flags: track enabled, in movie, in preview
	b.u32(0)
	b.u32(0)
	b.u32(1) // track ID
	b.u32(0) // reserved
	b.u32(uint32(durationHNS))
	b.u64(0) // reserved
	b.u16(0) // layer
	b.u16(0) // alternate group
	b.u16(0) // volume (video track)
	b.u16(0) // reserved
	matrix := []uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}
	for _, v := range matrix {
		b.u32(v)
	}
	b.u32(uint32(p.Width) << 16)
	b.u32(uint32(p.Height) << 16)
	return b
}

func buildMdia(p Params, samples []Sample, mdatDataStart uint32, mdatRelOffsets []uint32, durationHNS int64) *box {
	b := newBox("mdia")
	b.child(buildMdhd(durationHNS))
	b.child(buildHdlr())
	b.child(buildMinf(p, samples, mdatDataStart, mdatRelOffsets))
	return b
}

func buildMdhd(durationHNS int64) *box {
	b := newBox("mdhd")
	b.u8(0)
	b.raw([]byte{0, 0, 0})
	b.u32(0)
	b.u32(0)
	b.u32(Timescale)
	b.u32(uint32(durationHNS))
	b.u16(0x55c4) // language "und"
	b.u16(0)
	return b
}

func buildHdlr() *box {
	b := newBox("hdlr")
	b.u8(0)
	b.raw([]byte{0, 0, 0})
	b.u32(0)
	b.str4("vide")
	b.u32(0)
	b.u32(0)
	b.u32(0)
	b.raw([]byte("DuplexRecorderVideoHandler\x00"))
	return b
}

func buildMinf(p Params, samples []Sample, mdatDataStart uint32, mdatRelOffsets []uint32) *box {
	b := newBox("minf")
	vmhd := newBox("vmhd")
	vmhd.u8(0)
	vmhd.raw([]byte{0, 0, 1})
	vmhd.u16(0)
	vmhd.u16(0)
	vmhd.u16(0)
	vmhd.u16(0)
	b.child(vmhd)

	dinf := newBox("dinf")
	dref := newBox("dref")
	dref.u8(0)
	dref.raw([]byte{0, 0, 0})
	dref.u32(1)
	urlBox := newBox("url ")
	urlBox.u8(0)
	urlBox.raw([]byte{0, 0, 1}) // self-contained flag
	dref.child(urlBox)
	dinf.child(dref)
	b.child(dinf)

	b.child(buildStbl(p, samples, mdatDataStart, mdatRelOffsets))
	return b
}

func buildStbl(p Params, samples []Sample, mdatDataStart uint32, mdatRelOffsets []uint32) *box {
	b := newBox("stbl")
	b.child(buildStsd(p))
	b.child(buildStts(samples))
	if stss := buildStss(samples); stss != nil {
		b.child(stss)
	}
	b.child(buildStsc(len(samples)))
	b.child(buildStsz(samples))
	b.child(buildStco(mdatDataStart, mdatRelOffsets))
	return b
}

func buildStsd(p Params) *box {
	b := newBox("stsd")
	b.u8(0)
	b.raw([]byte{0, 0, 0})
	b.u32(1)

	avc1 := newBox("avc1")
	avc1.raw(make([]byte, 6)) // reserved
	avc1.u16(1)               // data reference index
	avc1.u16(0)               // pre-defined
	avc1.u16(0)               // reserved
	avc1.raw(make([]byte, 12))
	avc1.u16(uint16(p.Width))
	avc1.u16(uint16(p.Height))
	avc1.u32(0x00480000) // h-res 72dpi
	avc1.u32(0x00480000) // v-res 72dpi
	avc1.u32(0)          // reserved
	avc1.u16(1)          // frame count
	avc1.raw(make([]byte, 32)) // compressor name
	avc1.u16(0x18)       // depth
	avc1.u16(0xFFFF)     // pre-defined

	avc1.child(buildAvcC(p.SPS, p.PPS))
	b.child(avc1)
	return b
}

func buildAvcC(sps, pps []byte) *box {
	b := newBox("avcC")
	b.u8(1) // configurationVersion
	if len(sps) >= 4 {
		b.u8(sps[1]) // profile
		b.u8(sps[2]) // compat
		b.u8(sps[3]) // level
	} else {
		b.raw([]byte{0x42, 0x00, 0x1e}) // baseline 3.0 placeholder
	}
	b.u8(0xFF) // 6 reserved bits + 2-bit NAL length size minus one (3 => 4-byte lengths)
	b.u8(0xE1) // 3 reserved bits + numSPS (1)
	b.u16(uint16(len(sps)))
	b.raw(sps)
	b.u8(1) // numPPS
	b.u16(uint16(len(pps)))
	b.raw(pps)
	return b
}

func buildStts(samples []Sample) *box {
	b := newBox("stts")
	b.u8(0)
	b.raw([]byte{0, 0, 0})

	type run struct {
		count    uint32
		duration uint32
	}
	var runs []run
	for _, s := range samples {
		d := uint32(s.DurationHNS)
		if len(runs) > 0 && runs[len(runs)-1].duration == d {
			runs[len(runs)-1].count++
		} else {
			runs = append(runs, run{count: 1, duration: d})
		}
	}
	b.u32(uint32(len(runs)))
	for _, r := range runs {
		b.u32(r.count)
		b.u32(r.duration)
	}
	return b
}

func buildStss(samples []Sample) *box {
	var idx []uint32
	for i, s := range samples {
		if s.Keyframe {
			idx = append(idx, uint32(i+1))
		}
	}
	if len(idx) == len(samples) || len(idx) == 0 {
		// Every sample (or no sample) is a sync sample: the table is
		// redundant or meaningless, so omit it. ISO 14496-12 treats a
		// missing stss as "all samples are sync samples", which degrades
		// gracefully for an all-IDR low-GOP stream.
		return nil
	}
	b := newBox("stss")
	b.u8(0)
	b.raw([]byte{0, 0, 0})
	b.u32(uint32(len(idx)))
	for _, i := range idx {
		b.u32(i)
	}
	return b
}

func buildStsc(sampleCount int) *box {
	b := newBox("stsc")
	b.u8(0)
	b.raw([]byte{0, 0, 0})
	b.u32(1)
	b.u32(1)            // first chunk
	b.u32(1)            // samples per chunk (one sample per chunk)
	b.u32(1)            // sample description index
	_ = sampleCount
	return b
}

func buildStsz(samples []Sample) *box {
	b := newBox("stsz")
	b.u8(0)
	b.raw([]byte{0, 0, 0})
	b.u32(0) // sample size (0 = table follows)
	b.u32(uint32(len(samples)))
	for _, s := range samples {
		b.u32(uint32(len(s.Data)))
	}
	return b
}

func buildStco(mdatDataStart uint32, mdatRelOffsets []uint32) *box {
	b := newBox("stco")
	b.u8(0)
	b.raw([]byte{0, 0, 0})
	b.u32(uint32(len(mdatRelOffsets)))
	for _, off := range mdatRelOffsets {
		b.u32(mdatDataStart + 8 + off) // +8 skips the mdat box header itself
	}
	return b
}
