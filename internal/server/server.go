// Package server exposes the capture cycle over HTTP.
//
// Routes:
//
//   - POST /v1/recording/start: press; moves an idle cycle to starting and
//     acquires the device in the background (202).
//   - POST /v1/recording/stop: release; latches or begins the stop, then
//     finishes the cycle in the background (202).
//   - POST /v1/transcript/reset: clears the transcript (200).
//   - GET  /v1/state: current phase, flags and transcript.
//   - POST /v1/classify: classifies {"text": ...} into a command.
//   - GET  /v1/events: websocket stream of state changes, cycles and alerts.
//   - GET  /healthz, /readyz, /metrics.
//
// Press and release return before the controller settles, but after their
// phase change has been applied. Clients follow the outcome through
// /v1/state or /v1/events.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/visionvoice/internal/alert"
	"github.com/MrWong99/visionvoice/internal/capture"
	"github.com/MrWong99/visionvoice/internal/command"
	"github.com/MrWong99/visionvoice/internal/health"
	"github.com/MrWong99/visionvoice/internal/observe"
)

// shutdownTimeout bounds how long in-flight requests may take once the
// serving context is cancelled.
const shutdownTimeout = 10 * time.Second

// Recorder is the part of [capture.Controller] the API drives. RequestStart
// and RequestStop apply their phase change before returning and hand back
// the remaining work, or nil when the request was ignored.
type Recorder interface {
	RequestStart(ctx context.Context) func()
	RequestStop(ctx context.Context) func()
	ResetTranscription()
	State() capture.State
}

// Classifier maps text to a command.
type Classifier interface {
	Classify(text string) command.Command
}

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts h on /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithAlerts forwards alerts raised on hub to event stream clients.
func WithAlerts(hub *alert.Hub) Option {
	return func(s *Server) { s.alerts = hub }
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithTLS serves HTTPS using the given certificate and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(s *Server) {
		s.certFile = certFile
		s.keyFile = keyFile
	}
}

// Server is the HTTP front end of a [Recorder].
type Server struct {
	recorder   Recorder
	classifier Classifier

	health         *health.Handler
	alerts         *alert.Hub
	metrics        *observe.Metrics
	metricsHandler http.Handler
	certFile       string
	keyFile        string

	broker  *broker
	handler http.Handler

	// ops tracks background press/release calls.
	ops sync.WaitGroup
}

// New creates a [Server] for rec. Text posted to /v1/classify goes to cls.
func New(rec Recorder, cls Classifier, opts ...Option) *Server {
	s := &Server{
		recorder:   rec,
		classifier: cls,
		broker:     newBroker(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/recording/start", s.handleStart)
	mux.HandleFunc("POST /v1/recording/stop", s.handleStop)
	mux.HandleFunc("POST /v1/transcript/reset", s.handleReset)
	mux.HandleFunc("GET /v1/state", s.handleState)
	mux.HandleFunc("POST /v1/classify", s.handleClassify)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	s.handler = observe.Middleware(s.metrics)(mux)
	return s
}

// Handler returns the instrumented route table.
func (s *Server) Handler() http.Handler { return s.handler }

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. It returns nil after a clean shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.certFile != "" {
			err = srv.ServeTLS(ln, s.certFile, s.keyFile)
		} else {
			err = srv.Serve(ln)
		}
		errCh <- err
	}()
	slog.Info("server: listening", "addr", ln.Addr().String(), "tls", s.certFile != "")

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	s.broker.close()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	s.ops.Wait()
	return nil
}

// ListenAndServe listens on addr and calls [Server.Serve].
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// PublishState forwards a controller snapshot to event stream clients.
// It matches the signature expected by [capture.WithObserver].
func (s *Server) PublishState(st capture.State) {
	view := newStateView(st)
	s.broker.publish(Event{Type: EventState, State: &view})
}

// PublishCommand forwards a classified transcript to event stream clients.
func (s *Server) PublishCommand(requestID uint64, transcript string, cmd command.Command) {
	s.broker.publish(Event{Type: EventCommand, Command: &CommandView{
		RequestID:  requestID,
		Transcript: transcript,
		Command:    string(cmd),
	}})
}
