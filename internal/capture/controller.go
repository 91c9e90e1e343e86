// Package capture implements the push-to-talk recording cycle: a phase state
// machine that starts a device session on press, stops it on release, and
// turns the recording into a transcript.
//
// A [Controller] owns the phase, the live session, a monotonically increasing
// request ID, and the last transcript. Every operation re-reads the phase
// under the controller's lock after each suspension point (device calls, the
// grace delay, file reads, transcription), so no continuation acts on a stale
// value. Device teardown is delegated to a [Cleanup], which stops each session
// exactly once and retries transient failures.
//
// Operations never return errors. Failures are logged, optionally surfaced
// through an [alert.Alerter], and always leave the controller in
// [PhaseIdle].
package capture

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/visionvoice/internal/alert"
	"github.com/MrWong99/visionvoice/internal/observe"
	"github.com/MrWong99/visionvoice/internal/resilience"
	"github.com/MrWong99/visionvoice/pkg/audio"
	"github.com/MrWong99/visionvoice/pkg/provider/stt"
)

// Controller is the recording phase state machine. Create one with [New].
// All methods are safe for concurrent use.
type Controller struct {
	device      audio.Device
	playback    audio.Playback
	reader      audio.FileReader
	transcriber stt.Transcriber
	cleanup     *Cleanup

	cfg      Config
	alerter  alert.Alerter
	metrics  *observe.Metrics
	observer func(State)

	mu         sync.Mutex
	phase      Phase
	session    audio.Session
	requestID  uint64
	transcript string
	closed     bool

	// pending holds snapshots not yet handed to the observer. Whichever
	// update finds draining unset delivers them, in order, outside mu.
	pending  []State
	draining bool

	// ops counts accepted start and stop operations that have not settled.
	ops sync.WaitGroup
	// notes counts queued snapshots that have not been delivered.
	notes sync.WaitGroup
}

// New creates a [Controller] in [PhaseIdle].
func New(device audio.Device, playback audio.Playback, reader audio.FileReader, transcriber stt.Transcriber, opts ...Option) *Controller {
	c := &Controller{
		device:      device,
		playback:    playback,
		reader:      reader,
		transcriber: transcriber,
	}
	for _, o := range opts {
		o(c)
	}
	c.cfg = c.cfg.withDefaults()
	if c.alerter == nil {
		c.alerter = alert.LogAlerter{}
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.cleanup = NewCleanup(device, resilience.DelayList(c.cfg.TeardownDelays...), c.metrics)
	return c
}

// StartRecording begins a new cycle and returns once the session is
// recording or the start has failed. It is a no-op unless the controller is
// idle.
//
// It waits for any teardown still in flight, configures the device, silences
// speech playback, and requests a session. If a stop was requested while the
// session was being created, the session is torn down immediately with no
// grace delay and the cycle runs to completion before StartRecording returns.
// If the device fails, the controller returns to idle and the user is
// alerted.
func (c *Controller) StartRecording(ctx context.Context) {
	if run := c.RequestStart(ctx); run != nil {
		run()
	}
}

// RequestStart applies a press without blocking: an idle controller moves to
// [PhaseStarting] with a new request ID before RequestStart returns. The
// returned function performs the device work described on
// [Controller.StartRecording] and must be called exactly once, on any
// goroutine. It is nil when the press was ignored.
//
// Callers that answer a request before the cycle settles use this pair with
// [Controller.RequestStop] so a release that follows a press is never applied
// before it.
func (c *Controller) RequestStart(ctx context.Context) func() {
	var id uint64
	accepted := c.update(ctx, func() bool {
		if c.closed || c.phase != PhaseIdle {
			return false
		}
		c.phase = PhaseStarting
		c.transcript = ""
		c.requestID++
		id = c.requestID
		c.ops.Add(1)
		return true
	})
	if !accepted {
		return nil
	}
	return func() {
		defer c.ops.Done()
		c.start(ctx, id)
	}
}

func (c *Controller) start(ctx context.Context, id uint64) {
	ctx = observe.WithRequestID(ctx, id)
	ctx, span := observe.StartSpan(ctx, "capture.start")
	defer span.End()
	log := observe.Logger(ctx)

	select {
	case <-c.cleanup.Pending():
	case <-ctx.Done():
	}
	if err := ctx.Err(); err != nil {
		log.Debug("capture: start abandoned", "err", err)
		c.toIdle(ctx)
		return
	}

	if err := c.device.Configure(ctx, c.cfg.Mode); err != nil {
		c.failStart(ctx, span, err)
		return
	}
	if err := c.playback.Stop(); err != nil {
		log.Debug("capture: stopping playback failed", "err", err)
	}

	sess, err := c.device.CreateSession(ctx, c.cfg.Quality)
	if err != nil {
		c.failStart(ctx, span, err)
		return
	}

	latched := false
	c.update(ctx, func() bool {
		c.session = sess
		switch c.phase {
		case PhaseStarting:
			c.phase = PhaseRecording
			return true
		case PhaseStopping:
			latched = true
		}
		return false
	})
	log.Info("capture: recording started", "session_id", sess.ID(), "latched_stop", latched)

	if latched {
		c.finishStop(ctx, id, sess, 0)
	}
}

// StopRecording ends the current cycle. It is a no-op while idle, stopping,
// or transcribing.
//
// While starting, the stop is latched and StopRecording returns at once; the
// pending StartRecording carries it out. While recording, it waits for the
// grace delay, tears the session down, and transcribes the result, returning
// once the controller is idle again.
func (c *Controller) StopRecording(ctx context.Context) {
	if run := c.RequestStop(ctx); run != nil {
		run()
	}
}

// ResetTranscription clears the transcript. The phase is unchanged.
func (c *Controller) ResetTranscription() {
	c.update(context.Background(), func() bool {
		if c.transcript == "" {
			return false
		}
		c.transcript = ""
		return true
	})
}

// Close disposes of the controller. Later calls to StartRecording are
// no-ops and results of cycles already running are discarded. A cycle that
// is starting or recording is stopped in the background; Close does not wait
// for it. Use [Controller.Wait] to wait for the device to be released.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.requestID++
	c.mu.Unlock()

	if run := c.RequestStop(ctx); run != nil {
		go run()
	}
}

// Wait blocks until every accepted start and stop operation has settled and
// the observer has seen the resulting states.
func (c *Controller) Wait() {
	c.ops.Wait()
	c.notes.Wait()
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Transcript returns the transcript of the last completed cycle.
func (c *Controller) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript
}

// IsRecording reports whether the phase is Starting or Recording.
func (c *Controller) IsRecording() bool { return c.State().IsRecording }

// IsProcessing reports whether the phase is Stopping.
func (c *Controller) IsProcessing() bool { return c.State().IsProcessing }

// IsTranscribing reports whether the phase is Transcribing.
func (c *Controller) IsTranscribing() bool { return c.State().IsTranscribing }

// RequestStop applies a release without blocking. A starting controller
// latches the stop, which the pending start carries out; a recording one
// moves to [PhaseStopping] before RequestStop returns. The returned function
// runs the grace delay, teardown and transcription and must be called
// exactly once. It is nil when there is nothing left to do.
func (c *Controller) RequestStop(ctx context.Context) func() {
	var (
		sess audio.Session
		id   uint64
		live bool
	)
	c.update(ctx, func() bool {
		switch c.phase {
		case PhaseStarting:
			c.phase = PhaseStopping
			return true
		case PhaseRecording:
			c.phase = PhaseStopping
			sess, id, live = c.session, c.requestID, true
			c.ops.Add(1)
			return true
		}
		return false
	})
	if !live {
		return nil
	}
	return func() {
		defer c.ops.Done()
		c.finishStop(ctx, id, sess, c.cfg.GraceDelay)
	}
}

// finishStop runs the rest of a cycle from PhaseStopping: grace delay,
// teardown, and transcription.
func (c *Controller) finishStop(ctx context.Context, id uint64, sess audio.Session, grace time.Duration) {
	ctx = observe.WithRequestID(ctx, id)
	if grace > 0 {
		t := time.NewTimer(grace)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}

	// The device must be released even when the caller has gone away.
	ctx = context.WithoutCancel(ctx)

	uri, _ := c.cleanup.Teardown(ctx, sess)
	c.update(ctx, func() bool {
		if c.session == sess {
			c.session = nil
		}
		if uri == "" {
			c.phase = PhaseIdle
		} else {
			c.phase = PhaseTranscribing
		}
		return true
	})
	if uri == "" {
		return
	}

	text := c.transcribe(ctx, id, uri)

	c.update(ctx, func() bool {
		if id == c.requestID {
			c.transcript = text
		} else {
			c.metrics.StaleResults.Add(ctx, 1)
			observe.Logger(ctx).Debug("capture: discarding stale transcript", "current", c.requestID)
		}
		c.phase = PhaseIdle
		return true
	})
}

// transcribe reads the recording at uri and returns its transcript. Failures
// are alerted and yield "".
func (c *Controller) transcribe(ctx context.Context, id uint64, uri string) string {
	ctx, span := observe.StartSpan(observe.WithRequestID(ctx, id), "capture.transcribe",
		trace.WithAttributes(attribute.String("uri", uri)),
	)
	defer span.End()
	log := observe.Logger(ctx).With("uri", uri)

	file, err := c.reader.ReadAsBase64(ctx, uri)
	if err == nil && file.Base64 == "" {
		err = audio.ErrEmptyAudio
	}
	if err != nil {
		observe.SpanError(span, err)
		log.Warn("capture: reading recording failed", "err", err)
		c.metrics.Transcriptions.Add(ctx, 1, metric.WithAttributes(observe.Attr("status", "empty_audio")))
		c.alerter.Alert(alert.TitleError, alert.MessageUnreadableAudio)
		return ""
	}

	enc := audio.ResolveEncoding(file.Format, uri)
	rate := file.SampleRate
	if rate == 0 {
		rate = c.cfg.SampleRate
	}
	if rate == 0 {
		rate = enc.SampleRate
	}

	start := time.Now()
	text, err := c.transcriber.Transcribe(ctx, stt.Request{
		AudioBase64: file.Base64,
		Encoding:    enc.Encoding,
		SampleRate:  rate,
		Language:    c.cfg.Language,
	})
	elapsed := time.Since(start)
	if err != nil {
		observe.SpanError(span, err)
		c.metrics.RecordTranscription(ctx, elapsed.Seconds(), "error")
		log.Error("capture: transcription failed", "err", err, "duration", elapsed)
		c.alerter.Alert(alert.TitleError, alert.MessageTranscribeFailed)
		return ""
	}
	c.metrics.RecordTranscription(ctx, elapsed.Seconds(), "ok")

	text = strings.TrimSpace(text)
	log.Info("capture: transcription complete", "encoding", enc.Encoding, "chars", len(text), "duration", elapsed)
	return text
}

// failStart abandons a cycle whose device session could not be obtained.
func (c *Controller) failStart(ctx context.Context, span trace.Span, err error) {
	observe.SpanError(span, err)
	observe.Logger(ctx).Error("capture: starting recording failed", "err", err)
	c.toIdle(ctx)
	c.alerter.Alert(alert.TitleError, alert.MessageStartFailed)
}

// toIdle drops a cycle that never got a session.
func (c *Controller) toIdle(ctx context.Context) {
	c.update(ctx, func() bool {
		c.session = nil
		c.phase = PhaseIdle
		return true
	})
}

// update runs fn under the state lock. When fn reports a change, the phase
// transition is recorded and the new state is queued for the observer.
func (c *Controller) update(ctx context.Context, fn func() bool) bool {
	c.mu.Lock()
	from := c.phase
	if !fn() {
		c.mu.Unlock()
		return false
	}
	snap := c.stateLocked()
	drain := false
	if c.observer != nil {
		c.pending = append(c.pending, snap)
		c.notes.Add(1)
		drain = !c.draining
		c.draining = true
	}
	c.mu.Unlock()

	if snap.Phase != from {
		c.metrics.RecordPhaseTransition(ctx, from.String(), snap.Phase.String())
		slog.Debug("capture: phase changed", "from", from, "to", snap.Phase, "request_id", snap.RequestID)
	}
	if drain {
		c.deliver()
	}
	return true
}

// deliver hands queued snapshots to the observer until the queue is empty.
// Only one goroutine delivers at a time.
func (c *Controller) deliver() {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.pending = nil
			c.draining = false
			c.mu.Unlock()
			return
		}
		snap := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		c.observer(snap)
		c.notes.Done()
	}
}

func (c *Controller) stateLocked() State {
	return newState(c.phase, c.requestID, c.transcript)
}
