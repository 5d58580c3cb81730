// Package config loads and validates the recorder's persisted configuration
// using spf13/viper over a YAML file, with environment override and a
// platform-specific data directory resolver.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/lanternops/duplexrecorder/internal/logging"
)

var log = logging.L("config")

// Config is the persisted configuration consumed from outside the core
// pipeline. Field names use snake_case on the wire via mapstructure tags.
type Config struct {
	// Capture / encode geometry.
	EncodeWidth            int    `mapstructure:"encode_width"`
	EncodeHeight           int    `mapstructure:"encode_height"`
	EncodeFPS              int    `mapstructure:"encode_fps"`
	SegmentDurationSeconds int    `mapstructure:"segment_duration_seconds"`
	BufferDurationSeconds  int    `mapstructure:"buffer_duration_seconds"`
	CaptureMode            string `mapstructure:"capture_mode"` // "focus" | "context"
	OCREnabled             bool   `mapstructure:"ocr_enabled"`

	// Retention and queueing.
	MaxSegments                   int `mapstructure:"max_segments"`
	ChangeThreshold               int `mapstructure:"change_threshold"`
	ContextRetentionWindowSeconds int `mapstructure:"context_retention_window_seconds"`
	MaxContextFrames              int `mapstructure:"max_context_frames"`
	ReinitDelayMS                 int `mapstructure:"reinit_delay_ms"`
	QueueCapacity                 int `mapstructure:"queue_capacity"`
	OverlayQueueCapacity          int `mapstructure:"overlay_queue_capacity"`
	JPEGQuality                   int `mapstructure:"jpeg_quality"`
	SegmentBitrateBPS             int `mapstructure:"segment_bitrate_bps"`

	// Filesystem layout.
	DataDir  string `mapstructure:"data_dir"`
	ClipsDir string `mapstructure:"clips_dir"`

	// Logging.
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

// Default returns the baseline configuration used when no config file is
// present and no field is overridden.
func Default() *Config {
	dataDir := GetDataDir()
	return &Config{
		EncodeWidth:            1920,
		EncodeHeight:           1080,
		EncodeFPS:              30,
		SegmentDurationSeconds: 5,
		BufferDurationSeconds:  30,
		CaptureMode:            "focus",
		OCREnabled:             false,

		MaxSegments:                   6,
		ChangeThreshold:               5,
		ContextRetentionWindowSeconds: 120,
		MaxContextFrames:              120,
		ReinitDelayMS:                 1000,
		QueueCapacity:                 256,
		OverlayQueueCapacity:          64,
		JPEGQuality:                   85,
		SegmentBitrateBPS:             8_000_000,

		DataDir:  dataDir,
		ClipsDir: filepath.Join(dataDir, "..", "clips"),

		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  50,
		LogMaxBackups: 3,
	}
}

// Load reads configuration from cfgFile (or the platform config search
// path when empty), applies environment overrides, validates, and returns
// the result. Fatal validation errors block startup; warnings are logged.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("replaybuffer")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("REPLAYBUFFER")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	result := cfg.ValidateTiered()
	for _, err := range result.Warnings {
		log.Warn("config validation", logging.KeyError, err)
	}
	if result.HasFatals() {
		for _, err := range result.Fatals {
			log.Error("config validation fatal", logging.KeyError, err)
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

// WatchForChanges installs a fsnotify-backed live-reload hook: whenever the
// config file on disk changes, the updated fields are unmarshaled into cfg
// and onChange is invoked with the same *Config (mutated in place). Fatal
// validation errors on reload are logged and the stale config is kept.
func WatchForChanges(cfgFile string, cfg *Config, onChange func(*Config)) error {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("replaybuffer")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		next := Default()
		if err := v.Unmarshal(next); err != nil {
			log.Warn("config reload: unmarshal failed", logging.KeyError, err)
			return
		}
		result := next.ValidateTiered()
		if result.HasFatals() {
			log.Warn("config reload: fatal validation errors, keeping previous config", logging.KeyError, result.Fatals[0])
			return
		}
		*cfg = *next
		if onChange != nil {
			onChange(cfg)
		}
	})
	v.WatchConfig()
	return nil
}

// Save writes cfg to the default or given path, restricting permissions
// since the file may later carry operator-specific overrides.
func Save(cfg *Config, cfgFile string) error {
	v := viper.New()
	setAll(v, cfg)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		if dir := filepath.Dir(cfgPath); dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "replaybuffer.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := v.WriteConfigAs(cfgPath); err != nil {
		return err
	}
	return os.Chmod(cfgPath, 0600)
}

func setAll(v *viper.Viper, cfg *Config) {
	v.Set("encode_width", cfg.EncodeWidth)
	v.Set("encode_height", cfg.EncodeHeight)
	v.Set("encode_fps", cfg.EncodeFPS)
	v.Set("segment_duration_seconds", cfg.SegmentDurationSeconds)
	v.Set("buffer_duration_seconds", cfg.BufferDurationSeconds)
	v.Set("capture_mode", cfg.CaptureMode)
	v.Set("ocr_enabled", cfg.OCREnabled)
	v.Set("max_segments", cfg.MaxSegments)
	v.Set("change_threshold", cfg.ChangeThreshold)
	v.Set("context_retention_window_seconds", cfg.ContextRetentionWindowSeconds)
	v.Set("max_context_frames", cfg.MaxContextFrames)
	v.Set("reinit_delay_ms", cfg.ReinitDelayMS)
	v.Set("queue_capacity", cfg.QueueCapacity)
	v.Set("overlay_queue_capacity", cfg.OverlayQueueCapacity)
	v.Set("jpeg_quality", cfg.JPEGQuality)
	v.Set("segment_bitrate_bps", cfg.SegmentBitrateBPS)
	v.Set("data_dir", cfg.DataDir)
	v.Set("clips_dir", cfg.ClipsDir)
	v.Set("log_level", cfg.LogLevel)
	v.Set("log_format", cfg.LogFormat)
	v.Set("log_file", cfg.LogFile)
	v.Set("log_max_size_mb", cfg.LogMaxSizeMB)
	v.Set("log_max_backups", cfg.LogMaxBackups)
}

// GetDataDir returns the platform-specific base data directory.
func GetDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "ReplayBuffer", "data")
	case "darwin":
		return "/Library/Application Support/ReplayBuffer/data"
	default:
		return "/var/lib/replaybuffer"
	}
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "ReplayBuffer")
	case "darwin":
		return "/Library/Application Support/ReplayBuffer"
	default:
		return "/etc/replaybuffer"
	}
}

// FocusBufferDir returns data/focus_buffer under DataDir.
func (c *Config) FocusBufferDir() string { return filepath.Join(c.DataDir, "focus_buffer") }

// ContextBufferDir returns data/context_buffer under DataDir.
func (c *Config) ContextBufferDir() string { return filepath.Join(c.DataDir, "context_buffer") }

// CatalogPath returns data/index.sqlite under DataDir.
func (c *Config) CatalogPath() string { return filepath.Join(c.DataDir, "index.sqlite") }
