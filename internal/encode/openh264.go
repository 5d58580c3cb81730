package encode

import (
	"fmt"

	openh264 "github.com/y9o/go-openh264"
)

// openh264Backend is the cross-platform software H.264 encoder: the only
// backend on non-Windows builds, and the fallback when no hardware MFT
// encoder enumerates (or none of the hardware candidates construct) on
// Windows.
type openh264Backend struct {
	enc    *openh264.Encoder
	width  int
	height int
}

func init() {
	registerSoftware("openh264", newOpenH264Backend)
}

func newOpenH264Backend(params Params) (Backend, error) {
	enc, err := openh264.NewEncoder(openh264.Params{
		Width:        params.Width,
		Height:       params.Height,
		BitrateBps:   params.BitrateBPS,
		MaxFrameRate: float32(params.FPS),
	})
	if err != nil {
		return nil, fmt.Errorf("encode: openh264.NewEncoder: %w", err)
	}
	return &openh264Backend{enc: enc, width: params.Width, height: params.Height}, nil
}

// Encode expects an NV12 buffer (the same layout internal/colorconv
// produces) and converts it to I420 in place of a plane swap, since
// openh264's encoder input is planar YUV420.
func (b *openh264Backend) Encode(nv12 []byte) ([]Sample, error) {
	i420 := nv12ToI420(nv12, b.width, b.height)
	frame, err := b.enc.Encode(i420)
	if err != nil {
		return nil, fmt.Errorf("encode: openh264 Encode: %w", err)
	}
	if len(frame.NALs) == 0 {
		return nil, nil
	}

	samples := make([]Sample, 0, len(frame.NALs))
	for _, nal := range frame.NALs {
		samples = append(samples, Sample{Data: avccFrame(nal), Keyframe: frame.IsIDR})
	}
	return samples, nil
}

func (b *openh264Backend) SetBitrate(bps int) error {
	return b.enc.SetBitrate(bps)
}

func (b *openh264Backend) Close() error {
	return b.enc.Close()
}

func (b *openh264Backend) Name() string { return "openh264" }

func (b *openh264Backend) IsHardware() bool { return false }

// avccFrame wraps a single raw NAL payload (no start code) with its 4-byte
// big-endian length prefix.
func avccFrame(nal []byte) []byte {
	out := make([]byte, 4+len(nal))
	out[0] = byte(len(nal) >> 24)
	out[1] = byte(len(nal) >> 16)
	out[2] = byte(len(nal) >> 8)
	out[3] = byte(len(nal))
	copy(out[4:], nal)
	return out
}

// nv12ToI420 de-interleaves NV12's single interleaved UV plane into I420's
// separate U and V planes. The Y plane is identical between the two
// formats.
func nv12ToI420(nv12 []byte, width, height int) []byte {
	ySize := width * height
	cSize := (width / 2) * (height / 2)
	i420 := make([]byte, ySize+2*cSize)

	copy(i420[:ySize], nv12[:ySize])

	uv := nv12[ySize:]
	uPlane := i420[ySize : ySize+cSize]
	vPlane := i420[ySize+cSize:]
	for i := 0; i < cSize; i++ {
		uPlane[i] = uv[2*i]
		vPlane[i] = uv[2*i+1]
	}
	return i420
}
