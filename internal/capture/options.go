package capture

import (
	"time"

	"github.com/MrWong99/visionvoice/internal/alert"
	"github.com/MrWong99/visionvoice/internal/observe"
	"github.com/MrWong99/visionvoice/pkg/audio"
)

// Defaults applied by [Config] for zero-valued fields.
const (
	DefaultGraceDelay = 500 * time.Millisecond
	DefaultLanguage   = "pt-BR"
	DefaultSampleRate = 48000
)

// DefaultTeardownDelays are the waits before each teardown retry.
var DefaultTeardownDelays = []time.Duration{
	50 * time.Millisecond,
	100 * time.Millisecond,
	150 * time.Millisecond,
}

// Config holds the tunable parameters of a [Controller]. Zero-valued fields
// take their defaults.
type Config struct {
	// GraceDelay is how long a live recording keeps capturing after a stop is
	// requested, so trailing audio is not cut off. A latched stop (requested
	// before the device was ready) always uses zero grace. Negative values
	// disable the delay.
	GraceDelay time.Duration

	// Mode is passed to the device before each session. The zero value uses
	// [audio.CaptureMode].
	Mode audio.Mode

	// Quality is the preset for new sessions. Default: [audio.QualityLow].
	Quality audio.QualityPreset

	// TeardownDelays are the waits before each retry of a failed device
	// stop. Nil uses [DefaultTeardownDelays]; an empty non-nil slice
	// disables retries.
	TeardownDelays []time.Duration

	// Language is the BCP-47 language tag sent to the transcriber.
	Language string

	// SampleRate is the sample rate hint sent to the transcriber for
	// recordings whose header does not declare one. A rate read from the
	// recording always wins. Negative values send the rate associated with
	// the detected audio encoding instead.
	SampleRate int
}

func (c Config) withDefaults() Config {
	switch {
	case c.GraceDelay == 0:
		c.GraceDelay = DefaultGraceDelay
	case c.GraceDelay < 0:
		c.GraceDelay = 0
	}
	if c.Mode == (audio.Mode{}) {
		c.Mode = audio.CaptureMode
	}
	if !c.Quality.IsValid() {
		c.Quality = audio.QualityLow
	}
	if c.TeardownDelays == nil {
		c.TeardownDelays = DefaultTeardownDelays
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	switch {
	case c.SampleRate == 0:
		c.SampleRate = DefaultSampleRate
	case c.SampleRate < 0:
		c.SampleRate = 0
	}
	return c
}

// Option configures a [Controller].
type Option func(*Controller)

// WithConfig sets the controller's tunable parameters.
func WithConfig(cfg Config) Option {
	return func(c *Controller) { c.cfg = cfg }
}

// WithAlerter sets the sink for user-facing failure alerts. Default: an
// [alert.LogAlerter].
func WithAlerter(a alert.Alerter) Option {
	return func(c *Controller) { c.alerter = a }
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithObserver registers fn to receive a [State] snapshot after every phase
// change and every transcript update. Calls are made in update order, one at
// a time, without holding any controller lock, so fn may read the controller
// through its getters. A call may run on the goroutine of a later update
// than the one that produced its snapshot. fn must not call any method that
// changes the controller's state.
func WithObserver(fn func(State)) Option {
	return func(c *Controller) { c.observer = fn }
}
