package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanternops/duplexrecorder/internal/config"
	"github.com/lanternops/duplexrecorder/internal/ipc"
	"github.com/lanternops/duplexrecorder/internal/logging"
	"github.com/lanternops/duplexrecorder/internal/model"
	"github.com/lanternops/duplexrecorder/internal/pipeline"
)

var (
	version = "0.1.0"
	cfgFile string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "replaybufferd",
	Short: "Dual-mode screen recorder: rolling Focus clips and Context snapshots",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the capture pipeline and block until signaled",
	Run: func(cmd *cobra.Command, args []string) {
		runDaemon()
	},
}

var clipCmd = &cobra.Command{
	Use:   "clip",
	Short: "Materialize the last N seconds of Focus footage from a running instance",
	Run: func(cmd *cobra.Command, args []string) {
		duration, _ := cmd.Flags().GetDuration("duration")
		requestClip(duration)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report mode, ring buffer count, catalog size, and disk headroom",
	Run: func(cmd *cobra.Command, args []string) {
		reportStatus()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run tiered validation without starting capture",
	Run: func(cmd *cobra.Command, args []string) {
		validateConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is the platform config search path)")
	clipCmd.Flags().Duration("duration", 10*time.Second, "length of Focus footage to materialize")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(runCmd, clipCmd, statusCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout
	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("main")
}

func loadConfigOrExit() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func runDaemon() {
	cfg := loadConfigOrExit()
	initLogging(cfg)

	initialMode := model.ModeFocus
	if cfg.CaptureMode == "context" {
		initialMode = model.ModeContext
	}

	p, err := pipeline.New(cfg, initialMode)
	if err != nil {
		log.Error("failed to construct pipeline", logging.KeyError, err)
		os.Exit(1)
	}

	if err := config.WatchForChanges(cfgFile, cfg, func(next *config.Config) {
		log.Info("config reloaded", "captureMode", next.CaptureMode)
	}); err != nil {
		log.Warn("config live-reload disabled", logging.KeyError, err)
	}

	log.Info("starting replaybufferd", "version", version, "mode", initialMode.String())

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutdown signal received")
		cancel()
	}()

	p.Run(ctx)
	log.Info("replaybufferd stopped")
}

func requestClip(duration time.Duration) {
	cfg := loadConfigOrExit()
	socketPath := ipc.DefaultSocketPath(cfg.DataDir)

	conn, err := ipc.Dial(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "no running instance at %s: %v\n", socketPath, err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := ipc.WriteRequest(conn, ipc.Request{Command: "clip", Duration: duration}); err != nil {
		fmt.Fprintf(os.Stderr, "clip request failed: %v\n", err)
		os.Exit(1)
	}

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	resp, err := ipc.ReadResponse(bufio.NewReader(conn))
	if err != nil {
		fmt.Fprintf(os.Stderr, "clip request failed: %v\n", err)
		os.Exit(1)
	}
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "clip failed: %s\n", resp.Error)
		os.Exit(1)
	}

	fmt.Printf("clip written to %s (%s - %s)\n", resp.OutputPath, resp.MaterializedFrom.Format(time.RFC3339), resp.MaterializedTo.Format(time.RFC3339))
}

func reportStatus() {
	cfg := loadConfigOrExit()
	socketPath := ipc.DefaultSocketPath(cfg.DataDir)

	conn, err := ipc.Dial(socketPath)
	if err != nil {
		fmt.Println("status: not running")
		return
	}
	defer conn.Close()

	if err := ipc.WriteRequest(conn, ipc.Request{Command: "status"}); err != nil {
		fmt.Fprintf(os.Stderr, "status request failed: %v\n", err)
		os.Exit(1)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	resp, err := ipc.ReadResponse(bufio.NewReader(conn))
	if err != nil {
		fmt.Fprintf(os.Stderr, "status request failed: %v\n", err)
		os.Exit(1)
	}
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "status failed: %s\n", resp.Error)
		os.Exit(1)
	}

	fmt.Printf("mode: %s\n", resp.Mode)
	fmt.Printf("paused: %t\n", resp.Paused)
	fmt.Printf("running: %t\n", resp.Running)
	fmt.Printf("ring segments: %d\n", resp.RingSegments)
	fmt.Printf("catalog rows: %d\n", resp.CatalogRows)
	fmt.Printf("disk free: %.1f GB\n", resp.DiskFreeGB)
}

func validateConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		os.Exit(1)
	}
	result := cfg.ValidateTiered()
	for _, w := range result.Warnings {
		fmt.Printf("warning: %v\n", w)
	}
	fmt.Println("config is valid")
}
