package capture

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/visionvoice/internal/observe"
	"github.com/MrWong99/visionvoice/internal/resilience"
	"github.com/MrWong99/visionvoice/pkg/audio"
)

// flight is one teardown of one session. uri and ok are written before done
// is closed and are read-only afterwards.
type flight struct {
	id   string
	done chan struct{}
	uri  string
	ok   bool
}

// Cleanup tears down recording sessions exactly once each.
//
// The device stop call is retried on the configured [resilience.Backoff]. An
// error saying the handle was already released counts as success. When the
// retry budget is spent the teardown fails open: a warning is logged and the
// caller receives no URI.
//
// All methods are safe for concurrent use.
type Cleanup struct {
	device  audio.Device
	policy  resilience.Backoff
	metrics *observe.Metrics

	mu      sync.Mutex
	flights map[string]*flight
	last    *flight
}

// NewCleanup returns a [Cleanup] that stops sessions on device, retrying on
// policy. A nil m uses [observe.DefaultMetrics].
func NewCleanup(device audio.Device, policy resilience.Backoff, m *observe.Metrics) *Cleanup {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Cleanup{
		device:  device,
		policy:  policy,
		metrics: m,
		flights: make(map[string]*flight),
	}
}

// Teardown stops s and returns the URI of its recording. ok is false when
// the device could not be stopped within the retry budget. Concurrent and
// repeated calls for the same session share the first call's result and do
// not stop the device again. A nil session yields ("", false).
func (c *Cleanup) Teardown(ctx context.Context, s audio.Session) (uri string, ok bool) {
	if s == nil {
		return "", false
	}
	id := s.ID()

	c.mu.Lock()
	if f, inFlight := c.flights[id]; inFlight {
		c.mu.Unlock()
		<-f.done
		return f.uri, f.ok
	}
	if c.last != nil && c.last.id == id {
		f := c.last
		c.mu.Unlock()
		return f.uri, f.ok
	}
	f := &flight{id: id, done: make(chan struct{})}
	c.flights[id] = f
	c.mu.Unlock()

	f.uri, f.ok = c.stop(ctx, s)

	c.mu.Lock()
	delete(c.flights, id)
	c.last = f
	c.mu.Unlock()
	close(f.done)

	return f.uri, f.ok
}

// Pending returns a channel that is closed once every teardown in flight at
// the time of the call has finished. It is already closed when none is.
func (c *Cleanup) Pending() <-chan struct{} {
	c.mu.Lock()
	waits := make([]chan struct{}, 0, len(c.flights))
	for _, f := range c.flights {
		waits = append(waits, f.done)
	}
	c.mu.Unlock()

	ch := make(chan struct{})
	if len(waits) == 0 {
		close(ch)
		return ch
	}
	go func() {
		for _, w := range waits {
			<-w
		}
		close(ch)
	}()
	return ch
}

func (c *Cleanup) stop(ctx context.Context, s audio.Session) (string, bool) {
	id := s.ID()
	ctx, span := observe.StartSpan(ctx, "capture.teardown",
		trace.WithAttributes(attribute.String("session_id", id)),
	)
	defer span.End()

	var uri string
	err := resilience.Retry(ctx, c.policy, func(ctx context.Context, attempt int) error {
		c.metrics.TeardownAttempts.Add(ctx, 1)
		u, err := c.device.Stop(ctx, s)
		switch {
		case err == nil:
			uri = u
			return nil
		case audio.IsAlreadyReleased(err):
			slog.Debug("capture: session already released", "session_id", id, "attempt", attempt)
			uri = u
			return nil
		default:
			slog.Debug("capture: teardown attempt failed", "session_id", id, "attempt", attempt, "err", err)
			return err
		}
	})
	if err != nil {
		c.metrics.TeardownFailures.Add(ctx, 1)
		observe.SpanError(span, err)
		observe.Logger(ctx).Warn("capture: teardown failed, continuing without audio",
			"session_id", id, "err", err)
		return "", false
	}
	return uri, true
}
