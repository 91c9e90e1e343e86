// Package portaudio implements [audio.Device] on the host's default input
// device through PortAudio.
//
// Each session opens a mono input stream that a goroutine drains into memory.
// Stopping the session closes the stream and writes the samples to a 16-bit
// PCM WAV file named after the session ID.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-audio/wav"
	pa "github.com/gordonklaus/portaudio"
	"github.com/google/uuid"

	"github.com/MrWong99/visionvoice/pkg/audio"
)

// framesPerBuffer is the number of samples read from the stream at a time.
const framesPerBuffer = 1024

// stream is the subset of *pa.Stream a session uses.
type stream interface {
	Start() error
	Read() error
	Stop() error
	Close() error
}

// openFunc opens a mono input stream that fills buf on every Read.
type openFunc func(sampleRate float64, buf []float32) (stream, error)

func openDefault(sampleRate float64, buf []float32) (stream, error) {
	return pa.OpenDefaultStream(1, 0, sampleRate, len(buf), buf)
}

// Device records from the default PortAudio input device.
type Device struct {
	dir string

	initialize func() error
	terminate  func() error
	open       openFunc

	initOnce    sync.Once
	initErr     error
	initialized bool

	mu       sync.Mutex
	sessions map[string]*session
	released map[string]string
}

var _ audio.Device = (*Device)(nil)

// New returns a Device that stores recordings in dir. An empty dir uses the
// system temp directory.
func New(dir string) *Device {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "visionvoice")
	}
	return &Device{
		dir:        dir,
		initialize: pa.Initialize,
		terminate:  pa.Terminate,
		open:       openDefault,
		sessions:   make(map[string]*session),
		released:   make(map[string]string),
	}
}

// Dir returns the directory recordings are written to.
func (d *Device) Dir() string { return d.dir }

// Configure initialises PortAudio on first use and prepares the recordings
// directory.
func (d *Device) Configure(_ context.Context, mode audio.Mode) error {
	if !mode.AllowsRecording {
		return errors.New("portaudio: mode does not allow recording")
	}
	d.initOnce.Do(func() {
		if err := d.initialize(); err != nil {
			d.initErr = fmt.Errorf("portaudio: initialize: %w", err)
			return
		}
		d.initialized = true
	})
	if d.initErr != nil {
		return d.initErr
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("portaudio: create %s: %w", d.dir, err)
	}
	return nil
}

// CreateSession opens and starts an input stream at the preset's rate.
func (d *Device) CreateSession(ctx context.Context, quality audio.QualityPreset) (audio.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rate := quality.SampleRate()
	buf := make([]float32, framesPerBuffer)
	st, err := d.open(float64(rate), buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open stream: %w", err)
	}
	if err := st.Start(); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("portaudio: start stream: %w", err)
	}

	s := &session{
		id:     uuid.NewString(),
		rate:   rate,
		stream: st,
		buf:    buf,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.capture()

	d.mu.Lock()
	d.sessions[s.id] = s
	d.mu.Unlock()

	slog.Debug("portaudio: session started", "session_id", s.id, "sample_rate", rate)
	return s, nil
}

// Stop ends the session and writes its recording. A session stopped before
// returns [audio.ErrAlreadyReleased] together with its URI.
func (d *Device) Stop(ctx context.Context, as audio.Session) (string, error) {
	if as == nil {
		return "", audio.ErrNoSession
	}
	id := as.ID()

	d.mu.Lock()
	if uri, ok := d.released[id]; ok {
		d.mu.Unlock()
		return uri, audio.ErrAlreadyReleased
	}
	s, ok := d.sessions[id]
	if ok {
		delete(d.sessions, id)
	}
	d.mu.Unlock()
	if !ok {
		return "", audio.ErrNoSession
	}

	close(s.stop)
	select {
	case <-s.done:
	case <-ctx.Done():
		// Put the session back so a retry can finish the stop.
		d.mu.Lock()
		d.sessions[id] = s
		d.mu.Unlock()
		return "", ctx.Err()
	}

	if err := s.stream.Stop(); err != nil {
		slog.Debug("portaudio: stop stream", "session_id", id, "err", err)
	}
	if err := s.stream.Close(); err != nil {
		slog.Debug("portaudio: close stream", "session_id", id, "err", err)
	}
	if s.err != nil {
		slog.Warn("portaudio: capture ended early", "session_id", id, "err", s.err)
	}

	uri := ""
	if len(s.samples) > 0 {
		path := filepath.Join(d.dir, id+".wav")
		if err := writeWAV(path, s.samples, s.rate); err != nil {
			d.markReleased(id, "")
			return "", err
		}
		uri = audio.FileURI(path)
	}
	d.markReleased(id, uri)
	return uri, nil
}

// Close terminates PortAudio if it was initialised.
func (d *Device) Close() error {
	d.mu.Lock()
	live := len(d.sessions)
	d.mu.Unlock()
	if live > 0 {
		slog.Warn("portaudio: closing with live sessions", "count", live)
	}

	// Consume the once so a late Configure cannot initialise again.
	d.initOnce.Do(func() {})
	if !d.initialized {
		return nil
	}
	return d.terminate()
}

func (d *Device) markReleased(id, uri string) {
	d.mu.Lock()
	d.released[id] = uri
	d.mu.Unlock()
}

type session struct {
	id     string
	rate   int
	stream stream
	buf    []float32

	stop chan struct{}
	done chan struct{}

	// Written by capture only; read after done is closed.
	samples []float32
	err     error
}

func (s *session) ID() string { return s.id }

func (s *session) capture() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		if err := s.stream.Read(); err != nil {
			s.err = err
			return
		}
		s.samples = append(s.samples, s.buf...)
	}
}

func writeWAV(path string, samples []float32, rate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("portaudio: create %s: %w", path, err)
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	if err := enc.Write(audio.Float32ToIntBuffer(samples, rate)); err != nil {
		_ = f.Close()
		return fmt.Errorf("portaudio: encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("portaudio: finalize %s: %w", path, err)
	}
	return f.Close()
}
