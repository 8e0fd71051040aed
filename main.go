// Package main runs the ambient noise monitor for a portable
// diagnostic device: it forwards captured audio on a fixed interval,
// evaluates the noise level once per monitoring cycle, drives the alert
// indicator and notification channels, and serves a control API with a
// live status feed.
//
// Usage:
//
//	noisewatch [-config path/to/config.json]
//
// If -config is not specified, the monitor looks for config.json in the
// same directory as the binary.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/audexa/noisewatch/internal/config"
	"github.com/audexa/noisewatch/internal/engine"
	"github.com/audexa/noisewatch/internal/observe"
	"github.com/audexa/noisewatch/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	eventsPath := flag.String("events", "", "Path to event journal (default: events.jsonl next to config)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}
	if *eventsPath == "" {
		*eventsPath = filepath.Join(filepath.Dir(*configPath), "events.jsonl")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	meterProvider, shutdownMetrics, err := observe.InitProvider("noisewatch", Version)
	if err != nil {
		slog.Error("failed to initialize metrics", "error", err)
		os.Exit(1)
	}

	metrics, err := observe.NewMetrics(meterProvider)
	if err != nil {
		slog.Error("failed to create metric instruments", "error", err)
		os.Exit(1)
	}

	eng := engine.New(cfg, engine.FileTransport,
		engine.WithMetrics(metrics),
		engine.WithEventLog(*eventsPath),
	)

	srv := NewServer(cfg, eng)

	if cfg.Snapshot().AudioDevice != "" {
		slog.Info("starting monitor")
		if err := eng.Start(); err != nil {
			slog.Error("failed to start monitor", "error", err)
		}
	} else {
		slog.Warn("monitor not started - no audio device configured")
	}

	// Start web server.
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	// Stop version checker goroutine
	srv.version.Stop()

	// Shut down HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := eng.Stop(); err != nil && !errors.Is(err, engine.ErrNotRunning) {
		slog.Error("error stopping monitor", "error", err)
	}

	if err := shutdownMetrics(shutdownCtx); err != nil {
		slog.Error("metrics shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
