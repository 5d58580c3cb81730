// Package capture implements the Capture Worker: it owns a desktop
// duplication session, paces frame acquisition per the active mode, and
// re-initializes the session on transient failure. The duplication session
// itself sits behind the Capturer interface so the pacing/state-machine
// logic in worker.go is fully testable without a real desktop or GPU.
package capture

import (
	"errors"
	"time"
)

// Errors returned by Capturer.Acquire, dispatched on by the Capture Worker
// as result values rather than exceptions.
var (
	// ErrWaitTimeout means the duplication API produced no new frame within
	// its timeout (the desktop did not change). Not a failure.
	ErrWaitTimeout = errors.New("capture: acquisition wait timeout")
	// ErrAccessLost means the duplication session must be rebuilt (desktop
	// switch, secure-attention sequence, resolution change).
	ErrAccessLost = errors.New("capture: access lost")
	// ErrDeviceRemoved means the underlying GPU device was removed or reset
	// and the session must be rebuilt from scratch.
	ErrDeviceRemoved = errors.New("capture: device removed")
	// ErrNotSupported is returned by platform capturers with no
	// implementation on the current OS.
	ErrNotSupported = errors.New("capture: platform not supported")
)

// PixelFormat identifies the channel layout/bit depth a Capturer delivers.
type PixelFormat int

const (
	// FormatBGRA8 is 8-bit per channel BGRA, byte 0 = blue, byte 2 = red.
	FormatBGRA8 PixelFormat = iota
	// FormatRGBA16F is 16-bit float per channel HDR. No Capturer in this
	// package delivers it, and the Capture Worker does not inspect Format:
	// it forwards Pixels unchanged, without tone mapping.
	FormatRGBA16F
)

// Frame is what a Capturer hands back on a successful Acquire.
type Frame struct {
	Pixels []byte
	Width  int
	Height int
	Stride int
	Format PixelFormat
}

// Config configures session creation. DisplayIndex selects a monitor; only
// the primary output (index 0) is exercised by the pipeline, but the
// interface itself does not hard-code that.
type Config struct {
	DisplayIndex int
}

// DefaultConfig returns the primary-display configuration.
func DefaultConfig() Config {
	return Config{DisplayIndex: 0}
}

// Capturer owns a single duplication session. Acquire blocks for at most
// the given timeout (the Capture Worker passes 100ms) and returns ErrWaitTimeout,
// ErrAccessLost, ErrDeviceRemoved, or a Frame. Close releases all session
// resources; Acquire must not be called after Close.
type Capturer interface {
	Acquire(timeout time.Duration) (Frame, error)
	Bounds() (width, height int, err error)
	Close() error
}

// NewPlatformCapturer constructs the native Capturer for the current OS and
// Config. On platforms with no duplication backend it returns
// ErrNotSupported (see capture_other.go).
var NewPlatformCapturer func(cfg Config) (Capturer, error)
