// Package mock provides in-memory mock implementations of the [audio.Device],
// [audio.Playback], and [audio.FileReader] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	dev := &mock.Device{StopURI: "file:///tmp/rec.wav"}
//	s, err := dev.CreateSession(ctx, audio.QualityLow)
//	uri, err := dev.Stop(ctx, s)
//
// Gate channels let a test hold a call open to provoke races: a call that finds
// a non-nil gate blocks until the gate is closed or the context is cancelled.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/visionvoice/pkg/audio"
)

// ─── Session ──────────────────────────────────────────────────────────────────

// Session is a mock implementation of [audio.Session].
type Session struct {
	SessionID string
}

// ID implements [audio.Session].
func (s *Session) ID() string { return s.SessionID }

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock implementation of [audio.Device].
// Set the exported fields before use; inspect the *Calls fields after.
type Device struct {
	mu sync.Mutex

	// ConfigureErr is returned by [Device.Configure].
	ConfigureErr error

	// CreateSessionErr is returned by [Device.CreateSession].
	CreateSessionErr error

	// CreateSessionGate, when non-nil, blocks CreateSession until it is closed.
	CreateSessionGate chan struct{}

	// StopURI is returned by a successful [Device.Stop].
	StopURI string

	// StopErrs is consumed one entry per Stop call. A nil entry means success.
	// Once exhausted, StopErr is returned for every further call.
	StopErrs []error

	// StopErr is returned once StopErrs is exhausted.
	StopErr error

	// StopGate, when non-nil, blocks Stop until it is closed.
	StopGate chan struct{}

	// ConfigureCalls records the mode passed to each Configure call.
	ConfigureCalls []audio.Mode

	// CreateSessionCalls records the preset passed to each CreateSession call.
	CreateSessionCalls []audio.QualityPreset

	// StopCalls records the session ID passed to each Stop call.
	StopCalls []string

	created int
}

var _ audio.Device = (*Device)(nil)

// Configure implements [audio.Device].
func (d *Device) Configure(_ context.Context, mode audio.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ConfigureCalls = append(d.ConfigureCalls, mode)
	return d.ConfigureErr
}

// CreateSession implements [audio.Device]. Sessions are numbered "session-1",
// "session-2", and so on.
func (d *Device) CreateSession(ctx context.Context, quality audio.QualityPreset) (audio.Session, error) {
	d.mu.Lock()
	d.CreateSessionCalls = append(d.CreateSessionCalls, quality)
	gate := d.CreateSessionGate
	d.mu.Unlock()

	if err := wait(ctx, gate); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.CreateSessionErr != nil {
		return nil, d.CreateSessionErr
	}
	d.created++
	return &Session{SessionID: fmt.Sprintf("session-%d", d.created)}, nil
}

// Stop implements [audio.Device].
func (d *Device) Stop(ctx context.Context, s audio.Session) (string, error) {
	d.mu.Lock()
	id := ""
	if s != nil {
		id = s.ID()
	}
	d.StopCalls = append(d.StopCalls, id)
	gate := d.StopGate
	d.mu.Unlock()

	if err := wait(ctx, gate); err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	if len(d.StopErrs) > 0 {
		err = d.StopErrs[0]
		d.StopErrs = d.StopErrs[1:]
	} else {
		err = d.StopErr
	}
	if err != nil {
		return "", err
	}
	return d.StopURI, nil
}

// CreateSessionCount returns the number of CreateSession calls so far.
func (d *Device) CreateSessionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.CreateSessionCalls)
}

// StopCount returns the number of Stop calls so far.
func (d *Device) StopCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.StopCalls)
}

// ─── Playback ─────────────────────────────────────────────────────────────────

// Playback is a mock implementation of [audio.Playback].
type Playback struct {
	mu sync.Mutex

	// StopErr is returned by [Playback.Stop].
	StopErr error

	// CallCountStop records how many times Stop was called.
	CallCountStop int
}

var _ audio.Playback = (*Playback)(nil)

// Stop implements [audio.Playback].
func (p *Playback) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountStop++
	return p.StopErr
}

// StopCount returns CallCountStop under the lock.
func (p *Playback) StopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CallCountStop
}

// ─── FileReader ───────────────────────────────────────────────────────────────

// FileReader is a mock implementation of [audio.FileReader].
type FileReader struct {
	mu sync.Mutex

	// Result is returned by [FileReader.ReadAsBase64] when Err is nil.
	Result audio.File

	// Err is returned by [FileReader.ReadAsBase64].
	Err error

	// Calls records every URI passed to ReadAsBase64.
	Calls []string
}

var _ audio.FileReader = (*FileReader)(nil)

// ReadAsBase64 implements [audio.FileReader].
func (r *FileReader) ReadAsBase64(_ context.Context, uri string) (audio.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, uri)
	if r.Err != nil {
		return audio.File{}, r.Err
	}
	return r.Result, nil
}

// CallCount returns the number of ReadAsBase64 calls so far.
func (r *FileReader) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
