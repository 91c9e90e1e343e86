package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/visionvoice/internal/capture"
	"github.com/MrWong99/visionvoice/internal/command"
	"github.com/MrWong99/visionvoice/internal/health"
	"github.com/MrWong99/visionvoice/internal/observe"
)

// fakeRecorder records calls and reports a fixed state. Accepted requests
// are counted synchronously; their continuations signal started or stopped.
type fakeRecorder struct {
	mu     sync.Mutex
	state  capture.State
	starts int
	stops  int
	resets int
	ignore bool

	started chan struct{}
	stopped chan struct{}
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		started: make(chan struct{}, 4),
		stopped: make(chan struct{}, 4),
	}
}

func (f *fakeRecorder) RequestStart(context.Context) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ignore {
		return nil
	}
	f.starts++
	return func() { f.started <- struct{}{} }
}

func (f *fakeRecorder) RequestStop(context.Context) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ignore {
		return nil
	}
	f.stops++
	return func() { f.stopped <- struct{}{} }
}

func (f *fakeRecorder) ResetTranscription() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.state.Transcript = ""
}

func (f *fakeRecorder) State() capture.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func newTestMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newTestServer(t *testing.T, rec Recorder, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithMetrics(newTestMetrics(t))}, opts...)
	return New(rec, command.NewClassifier(command.DefaultTable()), opts...)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return v
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestStartRecording_Accepted(t *testing.T) {
	t.Parallel()
	rec := newFakeRecorder()
	s := newTestServer(t, rec)

	resp := do(t, s, "POST", "/v1/recording/start", "")
	if resp.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", resp.Code, http.StatusAccepted)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := decode[StateView](t, resp); got.Phase != "idle" {
		t.Errorf("phase = %q, want %q", got.Phase, "idle")
	}
	rec.mu.Lock()
	starts := rec.starts
	rec.mu.Unlock()
	if starts != 1 {
		t.Errorf("starts accepted before response = %d, want 1", starts)
	}
	waitSignal(t, rec.started, "start continuation")
}

func TestStopRecording_Accepted(t *testing.T) {
	t.Parallel()
	rec := newFakeRecorder()
	s := newTestServer(t, rec)

	resp := do(t, s, "POST", "/v1/recording/stop", "")
	if resp.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", resp.Code, http.StatusAccepted)
	}
	waitSignal(t, rec.stopped, "stop continuation")
}

func TestRecording_IgnoredRequestRunsNothing(t *testing.T) {
	t.Parallel()
	rec := newFakeRecorder()
	rec.ignore = true
	s := newTestServer(t, rec)

	for _, path := range []string{"/v1/recording/start", "/v1/recording/stop"} {
		if resp := do(t, s, "POST", path, ""); resp.Code != http.StatusAccepted {
			t.Fatalf("POST %s: status = %d, want %d", path, resp.Code, http.StatusAccepted)
		}
	}
	s.ops.Wait()
	if len(rec.started) != 0 || len(rec.stopped) != 0 {
		t.Errorf("continuations ran for ignored requests")
	}
}

func TestRecording_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, newFakeRecorder())

	resp := do(t, s, "GET", "/v1/recording/start", "")
	if resp.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", resp.Code, http.StatusMethodNotAllowed)
	}
}

func TestResetTranscript(t *testing.T) {
	t.Parallel()
	rec := newFakeRecorder()
	rec.state = capture.State{Phase: capture.PhaseIdle, RequestID: 2, Transcript: "ajuda"}
	s := newTestServer(t, rec)

	resp := do(t, s, "POST", "/v1/transcript/reset", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.Code, http.StatusOK)
	}
	got := decode[StateView](t, resp)
	if got.Transcript != "" {
		t.Errorf("transcript = %q, want empty", got.Transcript)
	}
	if rec.resets != 1 {
		t.Errorf("resets = %d, want 1", rec.resets)
	}
}

func TestState(t *testing.T) {
	t.Parallel()
	rec := newFakeRecorder()
	rec.state = capture.State{
		Phase:       capture.PhaseRecording,
		RequestID:   3,
		IsRecording: true,
	}
	s := newTestServer(t, rec)

	resp := do(t, s, "GET", "/v1/state", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.Code, http.StatusOK)
	}
	want := StateView{Phase: "recording", RequestID: 3, IsRecording: true}
	if got := decode[StateView](t, resp); got != want {
		t.Errorf("state = %+v, want %+v", got, want)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, newFakeRecorder())

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCmd    string
		wantNorm   string
	}{
		{name: "caption", body: `{"text":"Descreva o ambiente!"}`, wantStatus: http.StatusOK, wantCmd: "caption", wantNorm: "descreva o ambiente"},
		{name: "detection", body: `{"text":"O que você vê?"}`, wantStatus: http.StatusOK, wantCmd: "detection", wantNorm: "o que voce ve"},
		{name: "unknown", body: `{"text":"bom dia"}`, wantStatus: http.StatusOK, wantCmd: "unknown", wantNorm: "bom dia"},
		{name: "empty text", body: `{}`, wantStatus: http.StatusOK, wantCmd: "unknown"},
		{name: "invalid json", body: `{"text":`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := do(t, s, "POST", "/v1/classify", tt.body)
			if resp.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			got := decode[classifyResponse](t, resp)
			if got.Command != tt.wantCmd {
				t.Errorf("command = %q, want %q", got.Command, tt.wantCmd)
			}
			if got.Normalized != tt.wantNorm {
				t.Errorf("normalized = %q, want %q", got.Normalized, tt.wantNorm)
			}
		})
	}
}

func TestClassify_BodyTooLarge(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, newFakeRecorder())

	body := `{"text":"` + strings.Repeat("a", maxClassifyBody) + `"}`
	resp := do(t, s, "POST", "/v1/classify", body)
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", resp.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	t.Parallel()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
	s := newTestServer(t, newFakeRecorder(), WithHealth(health.New()), WithMetricsHandler(metrics))

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		if resp := do(t, s, "GET", path, ""); resp.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", path, resp.Code, http.StatusOK)
		}
	}
}

func TestHealthRoutes_NotMountedByDefault(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, newFakeRecorder())

	if resp := do(t, s, "GET", "/healthz", ""); resp.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.Code, http.StatusNotFound)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()
	rec := newFakeRecorder()
	s := newTestServer(t, rec)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/v1/state")
	if err != nil {
		t.Fatalf("GET /v1/state: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
