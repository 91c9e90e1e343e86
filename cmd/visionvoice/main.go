// Command visionvoice is the push-to-talk voice command daemon for the camera
// assistant. It records from the default input device, transcribes each
// recording, classifies the transcript into a command, and exposes the cycle
// over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"

	"github.com/MrWong99/visionvoice/internal/app"
	"github.com/MrWong99/visionvoice/internal/config"
	"github.com/MrWong99/visionvoice/internal/observe"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.StringP("config", "c", "config.yaml", "path to the YAML configuration file")
	envPath := flag.StringP("env", "e", ".env", "path to a .env file loaded before the config")
	logLevel := flag.StringP("log-level", "l", "", "override server.log_level (debug, info, warn, error)")
	noWatch := flag.Bool("no-watch", false, "disable hot reload of the config file")
	flag.Parse()

	// ── Environment + configuration ───────────────────────────────────────────
	if err := config.LoadEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "visionvoice: %v\n", err)
		return 1
	}

	levelVar := new(slog.LevelVar)
	var application *app.App

	var (
		cfg     *config.Config
		watcher *config.Watcher
		err     error
	)
	if *noWatch {
		cfg, err = config.Load(*configPath)
	} else {
		watcher, err = config.NewWatcher(*configPath, func(old, new *config.Config, diff config.ConfigDiff) {
			if application != nil {
				application.ApplyConfig(old, new, diff)
			}
		})
		if watcher != nil {
			cfg = watcher.Current()
		}
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "visionvoice: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "visionvoice: %v\n", err)
		}
		return 1
	}
	if *logLevel != "" {
		cfg.Server.LogLevel = config.LogLevel(*logLevel)
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(cfg.Server.LogFormat, levelVar))

	slog.Info("visionvoice starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName:      cfg.Telemetry.ServiceName,
		ServiceVersion:   version,
		TraceSampleRatio: cfg.Telemetry.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	closers := registerBuiltinProviders(reg, cfg)

	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []app.Option{
		app.WithLogLevel(levelVar),
		app.WithMetricsHandler(telemetry.MetricsHandler()),
	}
	if watcher != nil {
		opts = append(opts, app.WithWatcher(watcher))
	}
	application, err = app.New(ctx, cfg, providers, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	for _, c := range closers.list {
		application.AddCloser(c)
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx)
	if runErr != nil {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(format config.LogFormat, level *slog.LevelVar) *slog.Logger {
	switch format {
	case config.LogFormatJSON:
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	case config.LogFormatTint:
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	default:
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
}
