// Package ocr models the optional text-recognition side-stage's consumer
// contract. The recognition algorithm itself is out of scope here; this
// package only defines the interface a real engine would implement and a
// no-op implementation used when ocr_enabled is false.
package ocr

import (
	"context"

	"github.com/lanternops/duplexrecorder/internal/model"
)

// Engine recognizes text in a forwarded preview frame.
type Engine interface {
	Recognize(ctx context.Context, frame model.ProcessedFrame) (string, error)
}

// NoOp is the Engine used when ocr_enabled is false: it never inspects the
// frame and always returns an empty result.
type NoOp struct{}

// Recognize returns an empty string and a nil error without touching frame.
func (NoOp) Recognize(ctx context.Context, frame model.ProcessedFrame) (string, error) {
	return "", nil
}
