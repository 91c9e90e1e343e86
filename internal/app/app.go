// Package app wires all visionvoice subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API (and polls the config file when a
// watcher is attached), and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithPublisher,
// WithReader, WithMetrics, ...). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/visionvoice/internal/alert"
	"github.com/MrWong99/visionvoice/internal/capture"
	"github.com/MrWong99/visionvoice/internal/command"
	"github.com/MrWong99/visionvoice/internal/config"
	"github.com/MrWong99/visionvoice/internal/events"
	"github.com/MrWong99/visionvoice/internal/health"
	"github.com/MrWong99/visionvoice/internal/observe"
	"github.com/MrWong99/visionvoice/internal/server"
	"github.com/MrWong99/visionvoice/pkg/audio"
	"github.com/MrWong99/visionvoice/pkg/provider/stt"
)

// DefaultListenAddr is used when server.listen_addr is empty.
const DefaultListenAddr = ":8080"

// publishTimeout bounds delivery of one finished cycle.
const publishTimeout = 5 * time.Second

// Providers holds the adapters the capture cycle runs on. Populated by
// main.go via the config registry (see [BuildProviders]).
type Providers struct {
	Transcriber stt.Transcriber
	Device      audio.Device
	Playback    audio.Playback
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	reader         audio.FileReader
	metrics        *observe.Metrics
	metricsHandler http.Handler
	publisher      events.Publisher
	watcher        *config.Watcher
	logLevel       *slog.LevelVar

	hub        *alert.Hub
	health     *health.Handler
	classifier atomic.Pointer[command.Classifier]
	controller *capture.Controller
	server     *server.Server

	// lastCycle is the request ID of the last cycle handed to the
	// publisher. Guarded by the controller's observer ordering.
	lastCycle uint64
	pending   sync.WaitGroup

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithPublisher injects a cycle publisher instead of creating one from
// config.
func WithPublisher(p events.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// WithReader injects the recording reader. Default: [audio.LocalFileReader].
func WithReader(r audio.FileReader) Option {
	return func(a *App) { a.reader = r }
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h on /metrics. Without it the route is absent.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithWatcher makes Run poll the config file through w. The watcher's
// change callback should call [App.ApplyConfig].
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithLogLevel lets [App.ApplyConfig] adjust the running log level.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Transcriber == nil || providers.Device == nil {
		return nil, errors.New("app: transcriber and device providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.providers.Playback == nil {
		a.providers.Playback = audio.NopPlayback{}
	}
	if a.reader == nil {
		a.reader = audio.LocalFileReader{}
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.hub = alert.NewHub()
	a.health = health.New(transcriptionChecker(providers.Transcriber))

	// ── 1. Classifier ────────────────────────────────────────────────────
	cls, err := newClassifier(cfg.Commands)
	if err != nil {
		return nil, fmt.Errorf("app: init classifier: %w", err)
	}
	a.classifier.Store(cls)

	// ── 2. Cycle publisher ───────────────────────────────────────────────
	if err := a.initPublisher(ctx); err != nil {
		return nil, fmt.Errorf("app: init events: %w", err)
	}

	// ── 3. Capture controller ────────────────────────────────────────────
	a.controller = capture.New(
		providers.Device,
		a.providers.Playback,
		a.reader,
		providers.Transcriber,
		capture.WithConfig(captureConfig(cfg.Capture)),
		capture.WithAlerter(a.alerter()),
		capture.WithMetrics(a.metrics),
		capture.WithObserver(a.observe),
	)

	// ── 4. HTTP server ───────────────────────────────────────────────────
	srvOpts := []server.Option{
		server.WithHealth(a.health),
		server.WithAlerts(a.hub),
		server.WithMetrics(a.metrics),
	}
	if a.metricsHandler != nil {
		srvOpts = append(srvOpts, server.WithMetricsHandler(a.metricsHandler))
	}
	if tls := cfg.Server.TLS; tls != nil {
		srvOpts = append(srvOpts, server.WithTLS(tls.CertFile, tls.KeyFile))
	}
	a.server = server.New(a.controller, a, srvOpts...)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initPublisher connects the Redis publisher when configured.
func (a *App) initPublisher(ctx context.Context) error {
	if a.publisher != nil {
		return nil
	}
	ev := a.cfg.Events
	if ev.RedisAddr == "" {
		a.publisher = events.Nop{}
		return nil
	}

	pub, err := events.NewRedis(events.RedisOptions{
		Addr:     ev.RedisAddr,
		Password: ev.RedisPassword,
		DB:       ev.RedisDB,
		Channel:  ev.Channel,
	})
	if err != nil {
		return err
	}
	if err := pub.Ping(ctx); err != nil {
		slog.Warn("redis unreachable at startup, cycles will be dropped until it recovers", "addr", ev.RedisAddr, "err", err)
	}
	a.publisher = pub
	a.health.Add(health.PingChecker("redis", pub))
	a.closers = append(a.closers, pub.Close)
	slog.Info("publishing cycles to redis", "addr", ev.RedisAddr, "channel", pub.Channel())
	return nil
}

// alerter fans alerts out to the log, the event stream, and the speaker
// chime when the playback device can play one.
func (a *App) alerter() alert.Alerter {
	sinks := alert.Broadcast{alert.LogAlerter{}, a.hub}
	if p, ok := a.providers.Playback.(alert.Player); ok {
		sinks = append(sinks, alert.NewChime(p))
	}
	return sinks
}

func newClassifier(cfg config.CommandsConfig) (*command.Classifier, error) {
	table, err := cfg.Table()
	if err != nil {
		return nil, err
	}
	var opts []command.Option
	if cfg.FuzzyThreshold > 0 {
		opts = append(opts, command.WithFuzzyMatch(cfg.FuzzyThreshold))
	}
	return command.NewClassifier(table, opts...), nil
}

// captureConfig converts the YAML capture section to a [capture.Config].
func captureConfig(c config.CaptureConfig) capture.Config {
	return capture.Config{
		GraceDelay:     c.GraceDelay,
		Quality:        audio.QualityPreset(c.Quality),
		TeardownDelays: c.TeardownDelays,
		Language:       c.Language,
		SampleRate:     c.SampleRate,
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Controller returns the capture state machine.
func (a *App) Controller() *capture.Controller { return a.controller }

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Classify classifies text with the current command table.
func (a *App) Classify(text string) command.Command {
	return a.classifier.Load().Classify(text)
}

// ─── Cycle observer ──────────────────────────────────────────────────────────

// observe receives every controller state change. It forwards the snapshot
// to stream clients and, once per finished cycle, classifies the transcript
// and publishes the result.
func (a *App) observe(st capture.State) {
	a.server.PublishState(st)

	if st.Phase != capture.PhaseIdle || st.Transcript == "" || st.RequestID <= a.lastCycle {
		return
	}
	a.lastCycle = st.RequestID

	cmd := a.Classify(st.Transcript)
	a.metrics.RecordCommand(context.Background(), string(cmd))
	a.server.PublishCommand(st.RequestID, st.Transcript, cmd)
	slog.Info("cycle complete", "request_id", st.RequestID, "command", cmd)

	cycle := events.Cycle{
		RequestID:  st.RequestID,
		Transcript: st.Transcript,
		Command:    string(cmd),
		At:         time.Now().UTC(),
	}
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := a.publisher.Publish(ctx, cycle); err != nil {
			slog.Warn("failed to publish cycle", "request_id", cycle.RequestID, "err", err)
		}
	}()
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of a changed config: the log
// level and the command table. It matches [config.ChangeFunc].
func (a *App) ApplyConfig(_, newCfg *config.Config, diff config.ConfigDiff) {
	if diff.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.CommandsChanged {
		cls, err := newClassifier(newCfg.Commands)
		if err != nil {
			slog.Warn("keeping previous command table", "err", err)
		} else {
			a.classifier.Store(cls)
			slog.Info("command table reloaded", "commands", len(cls.Table()))
		}
	}
}

// SlogLevel maps a config log level to its slog equivalent.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API and blocks until ctx is cancelled or the server
// fails. A clean shutdown returns nil.
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = DefaultListenAddr
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.ListenAndServe(ctx, addr)
	})
	if a.watcher != nil {
		g.Go(func() error {
			return a.watcher.Run(ctx)
		})
	}

	slog.Info("app running", "listen_addr", addr, "hot_reload", a.watcher != nil)
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order: the controller is closed and
// its device released, pending cycle deliveries finish, then the closers run.
// It respects the context deadline: if ctx expires first, remaining steps are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.controller.Close(ctx)
		if err := waitCtx(ctx, a.controller.Wait); err != nil {
			slog.Warn("shutdown deadline exceeded waiting for the capture cycle")
			shutdownErr = err
			return
		}
		if err := waitCtx(ctx, a.pending.Wait); err != nil {
			slog.Warn("shutdown deadline exceeded waiting for cycle delivery")
			shutdownErr = err
			return
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// AddCloser registers fn to run during Shutdown after the existing closers.
func (a *App) AddCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

func waitCtx(ctx context.Context, wait func()) error {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
