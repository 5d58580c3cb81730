package config

import "fmt"

// ValidationResult separates fatal errors (block startup) from warnings
// (logged, startup continues with a clamped/default value).
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

// HasFatals reports whether any fatal error was recorded.
func (r ValidationResult) HasFatals() bool { return len(r.Fatals) > 0 }

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
var validCaptureModes = map[string]bool{"focus": true, "context": true}

// ValidateTiered checks the config for invalid values, clamping
// dangerous zero/out-of-range values to safe defaults (recorded as
// warnings) and reserving Fatals for values that cannot be safely
// defaulted.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	if !validCaptureModes[c.CaptureMode] {
		r.Fatals = append(r.Fatals, fmt.Errorf("capture_mode %q must be \"focus\" or \"context\"", c.CaptureMode))
	}

	if c.EncodeWidth <= 0 || c.EncodeHeight <= 0 {
		r.Fatals = append(r.Fatals, fmt.Errorf("encode_width/encode_height must be positive, got %dx%d", c.EncodeWidth, c.EncodeHeight))
	}
	if c.EncodeWidth%2 != 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("encode_width %d is odd, rounding down for NV12", c.EncodeWidth))
		c.EncodeWidth--
	}
	if c.EncodeHeight%2 != 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("encode_height %d is odd, rounding down for NV12", c.EncodeHeight))
		c.EncodeHeight--
	}

	if c.EncodeFPS <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("encode_fps %d is below minimum 1, clamping to 30", c.EncodeFPS))
		c.EncodeFPS = 30
	} else if c.EncodeFPS > 120 {
		r.Warnings = append(r.Warnings, fmt.Errorf("encode_fps %d exceeds maximum 120, clamping", c.EncodeFPS))
		c.EncodeFPS = 120
	}

	if c.SegmentDurationSeconds <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("segment_duration_seconds %d is below minimum 1, clamping to 5", c.SegmentDurationSeconds))
		c.SegmentDurationSeconds = 5
	}

	if c.MaxSegments <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("max_segments %d is below minimum 1, clamping to 6", c.MaxSegments))
		c.MaxSegments = 6
	}

	if c.ChangeThreshold < 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("change_threshold %d is negative, clamping to 0", c.ChangeThreshold))
		c.ChangeThreshold = 0
	} else if c.ChangeThreshold > 256 {
		r.Warnings = append(r.Warnings, fmt.Errorf("change_threshold %d exceeds maximum 256, clamping", c.ChangeThreshold))
		c.ChangeThreshold = 256
	}

	if c.ContextRetentionWindowSeconds <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("context_retention_window_seconds %d is below minimum 1, clamping to 120", c.ContextRetentionWindowSeconds))
		c.ContextRetentionWindowSeconds = 120
	}

	if c.QueueCapacity <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("queue_capacity %d is below minimum 1, clamping to 256", c.QueueCapacity))
		c.QueueCapacity = 256
	}
	if c.OverlayQueueCapacity <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("overlay_queue_capacity %d is below minimum 1, clamping to 64", c.OverlayQueueCapacity))
		c.OverlayQueueCapacity = 64
	}

	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		r.Warnings = append(r.Warnings, fmt.Errorf("jpeg_quality %d out of range [1,100], clamping to 85", c.JPEGQuality))
		c.JPEGQuality = 85
	}

	if c.ReinitDelayMS <= 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("reinit_delay_ms %d is below minimum 1, clamping to 1000", c.ReinitDelayMS))
		c.ReinitDelayMS = 1000
	}

	if c.DataDir == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("data_dir must not be empty"))
	}

	if c.LogLevel != "" && !validLogLevels[c.LogLevel] {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error), defaulting to info", c.LogLevel))
		c.LogLevel = "info"
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q is not valid (use text or json), defaulting to text", c.LogFormat))
		c.LogFormat = "text"
	}

	return r
}
