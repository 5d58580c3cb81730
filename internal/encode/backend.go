// Package encode selects and drives the H.264 encoder backend the Encoder
// Worker pushes NV12 samples through. Two backends exist: a Windows Media
// Foundation Transform-based backend (hardware-first, software MFT
// fallback) and a cross-platform software backend built on
// github.com/y9o/go-openh264, which is also the only backend available on
// non-Windows builds.
package encode

import (
	"errors"
	"sync"
)

// ErrNotSupported is returned by platform-specific factories that have no
// usable encoder on the current build.
var ErrNotSupported = errors.New("encode: no encoder available on this platform")

// Params configures a backend instance. BitrateBPS is mutable after
// construction via SetBitrate; the rest are fixed for the backend's
// lifetime.
type Params struct {
	Width, Height int
	FPS           int
	BitrateBPS    int
}

// Sample is one encoded access unit, AVCC length-prefixed (4-byte big-endian
// length per NAL unit, no Annex-B start codes), ready to hand to
// internal/mp4mux.
type Sample struct {
	Data     []byte
	Keyframe bool
}

// Backend is the minimal surface the Encoder Worker drives. Encode may
// return a nil Sample slice while the backend is still buffering input (an
// encoder with internal frame reordering needs a few frames before its first
// output); the worker treats that as "no sample yet," not an error.
type Backend interface {
	Encode(nv12 []byte) ([]Sample, error)
	SetBitrate(bps int) error
	Close() error
	Name() string
	IsHardware() bool
}

// factory constructs a backend instance, or returns an error if this
// backend isn't usable (no matching hardware present, platform unsupported,
// etc).
type factory struct {
	name   string
	newFn  func(Params) (Backend, error)
	hw     bool
}

var (
	mu                sync.Mutex
	hardwareFactories []factory
	softwareFactory   *factory
)

// registerHardware adds a candidate hardware backend to the selection pool.
// Called from platform-specific init() functions.
func registerHardware(name string, newFn func(Params) (Backend, error)) {
	mu.Lock()
	defer mu.Unlock()
	hardwareFactories = append(hardwareFactories, factory{name: name, newFn: newFn, hw: true})
}

// registerSoftware sets the always-available fallback. Called once from the
// openh264 backend's init().
func registerSoftware(name string, newFn func(Params) (Backend, error)) {
	mu.Lock()
	defer mu.Unlock()
	softwareFactory = &factory{name: name, newFn: newFn, hw: false}
}
