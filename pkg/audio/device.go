// Package audio defines the host-platform audio primitives consumed by the
// capture core: a recording [Device] that hands out [Session] handles, a
// speech [Playback] that can be silenced before capture, and a [FileReader]
// that turns a finished recording into base64 audio for transcription.
//
// Concrete adapters live in subpackages (audio/portaudio, audio/speaker).
// The interfaces are intentionally narrow so the state machine never depends
// on a specific audio stack.
package audio

import (
	"context"
	"errors"
	"strings"
)

// ErrAlreadyReleased is returned by [Device.Stop] when the session handle has
// already been stopped and unloaded. Callers treat it as a successful stop.
var ErrAlreadyReleased = errors.New("recording has already been unloaded")

// ErrNoSession is returned when an operation needs a session and none is
// open, or when a session handle was not created by the device it is passed to.
var ErrNoSession = errors.New("audio: no recording session")

// ErrNotReady is returned by [Device.Stop] while a session is still
// initialising and cannot be stopped yet. It is transient.
var ErrNotReady = errors.New("recording is not ready to be stopped")

// IsAlreadyReleased reports whether err means the handle was already released.
// Some device backends only report this through the error message, so the
// text is checked in addition to [errors.Is].
func IsAlreadyReleased(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAlreadyReleased) {
		return true
	}
	return strings.Contains(err.Error(), "already been unloaded")
}

// Mode configures the audio subsystem before a session is created.
type Mode struct {
	// AllowsRecording switches the audio route into capture mode.
	AllowsRecording bool

	// PlaysInSilentMode keeps output audible while the device is muted.
	PlaysInSilentMode bool
}

// CaptureMode is the mode used for push-to-talk capture.
var CaptureMode = Mode{AllowsRecording: true, PlaysInSilentMode: true}

// QualityPreset selects the recording quality of a new session.
type QualityPreset string

const (
	// QualityLow favours small files and fast uploads. It is the default for
	// voice commands.
	QualityLow QualityPreset = "low"

	// QualityHigh records at the device's native rate.
	QualityHigh QualityPreset = "high"
)

// IsValid reports whether q is a recognised preset.
func (q QualityPreset) IsValid() bool {
	return q == QualityLow || q == QualityHigh
}

// SampleRate returns the capture sample rate in Hz associated with q.
func (q QualityPreset) SampleRate() int {
	if q == QualityHigh {
		return 48000
	}
	return 16000
}

// Session is an open handle on the recording device. It is opaque to the
// capture core; only the [Device] that created it knows how to stop it.
type Session interface {
	// ID uniquely identifies the session for logging and single-flight
	// teardown.
	ID() string
}

// Device is the recording device of the host platform.
//
// Implementations must tolerate Stop being called on a session that never
// finished initialising, and must return [ErrAlreadyReleased] (or an error
// whose message contains "already been unloaded") for a second Stop.
type Device interface {
	// Configure prepares the audio route for capture.
	Configure(ctx context.Context, mode Mode) error

	// CreateSession starts a new recording and returns its handle once the
	// device reports that capture is running.
	CreateSession(ctx context.Context, quality QualityPreset) (Session, error)

	// Stop stops and unloads the session and returns the URI of the recorded
	// audio. An empty URI means nothing usable was captured. A repeated Stop
	// returns [ErrAlreadyReleased] and may still return the URI.
	Stop(ctx context.Context, s Session) (uri string, err error)
}

// Playback is the speech playback channel. Stop silences any ongoing speech
// so that capture does not compete with it for the device.
type Playback interface {
	Stop() error
}

// NopPlayback is a [Playback] for hosts without speech output.
type NopPlayback struct{}

// Stop implements [Playback].
func (NopPlayback) Stop() error { return nil }
