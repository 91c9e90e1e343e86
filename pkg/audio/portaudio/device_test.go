package portaudio

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"github.com/MrWong99/visionvoice/pkg/audio"
)

// fakeStream fills the buffer with a constant level on every Read.
type fakeStream struct {
	buf   []float32
	level float32

	mu      sync.Mutex
	reads   int
	failAt  int
	started bool
	stopped bool
	closed  bool
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *fakeStream) Read() error {
	time.Sleep(time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.failAt > 0 && s.reads >= s.failAt {
		return errors.New("input overflowed")
	}
	for i := range s.buf {
		s.buf[i] = s.level
	}
	return nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func newTestDevice(t *testing.T, st *fakeStream) (*Device, *int) {
	t.Helper()
	d := New(t.TempDir())
	inits := 0
	d.initialize = func() error { inits++; return nil }
	d.terminate = func() error { return nil }
	d.open = func(_ float64, buf []float32) (stream, error) {
		st.buf = buf
		return st, nil
	}
	return d, &inits
}

func startSession(t *testing.T, d *Device) audio.Session {
	t.Helper()
	ctx := context.Background()
	if err := d.Configure(ctx, audio.CaptureMode); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	s, err := d.CreateSession(ctx, audio.QualityLow)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return s
}

func TestDevice_RecordAndStop(t *testing.T) {
	t.Parallel()
	st := &fakeStream{level: 0.25}
	d, inits := newTestDevice(t, st)

	s := startSession(t, d)
	time.Sleep(10 * time.Millisecond)

	uri, err := d.Stop(context.Background(), s)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if uri == "" {
		t.Fatal("Stop returned empty uri")
	}
	if !st.started || !st.stopped || !st.closed {
		t.Errorf("stream lifecycle started=%v stopped=%v closed=%v", st.started, st.stopped, st.closed)
	}
	if *inits != 1 {
		t.Errorf("initialize calls = %d, want 1", *inits)
	}

	path, err := audio.PathFromURI(uri)
	if err != nil {
		t.Fatalf("PathFromURI: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open recording: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("recording is not a valid WAV file")
	}
	if dec.SampleRate != uint32(audio.QualityLow.SampleRate()) {
		t.Errorf("sample rate = %d, want %d", dec.SampleRate, audio.QualityLow.SampleRate())
	}
	if dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Errorf("channels=%d bitDepth=%d, want 1/16", dec.NumChans, dec.BitDepth)
	}
}

func TestDevice_SecondStopAlreadyReleased(t *testing.T) {
	t.Parallel()
	d, _ := newTestDevice(t, &fakeStream{level: 0.1})
	s := startSession(t, d)
	time.Sleep(5 * time.Millisecond)

	first, err := d.Stop(context.Background(), s)
	if err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	second, err := d.Stop(context.Background(), s)
	if !errors.Is(err, audio.ErrAlreadyReleased) {
		t.Fatalf("second Stop err = %v, want ErrAlreadyReleased", err)
	}
	if !audio.IsAlreadyReleased(err) {
		t.Error("IsAlreadyReleased = false")
	}
	if second != first {
		t.Errorf("second uri = %q, want %q", second, first)
	}
}

func TestDevice_StopImmediatelyAfterStart(t *testing.T) {
	t.Parallel()
	d, _ := newTestDevice(t, &fakeStream{level: 0.1})
	s := startSession(t, d)

	if _, err := d.Stop(context.Background(), s); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestDevice_CaptureErrorKeepsSamples(t *testing.T) {
	t.Parallel()
	d, _ := newTestDevice(t, &fakeStream{level: 0.1, failAt: 3})
	s := startSession(t, d)
	time.Sleep(10 * time.Millisecond)

	uri, err := d.Stop(context.Background(), s)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if uri == "" {
		t.Error("expected a recording from the frames read before the error")
	}
}

func TestDevice_StopUnknownSession(t *testing.T) {
	t.Parallel()
	d, _ := newTestDevice(t, &fakeStream{})

	if _, err := d.Stop(context.Background(), nil); !errors.Is(err, audio.ErrNoSession) {
		t.Errorf("nil session err = %v, want ErrNoSession", err)
	}
	if _, err := d.Stop(context.Background(), &session{id: "missing"}); !errors.Is(err, audio.ErrNoSession) {
		t.Errorf("unknown session err = %v, want ErrNoSession", err)
	}
}

func TestDevice_ConfigureRejectsPlaybackMode(t *testing.T) {
	t.Parallel()
	d, inits := newTestDevice(t, &fakeStream{})

	if err := d.Configure(context.Background(), audio.Mode{}); err == nil {
		t.Fatal("Configure accepted a mode without recording")
	}
	if *inits != 0 {
		t.Errorf("initialize calls = %d, want 0", *inits)
	}
}

func TestDevice_InitializeErrorIsSticky(t *testing.T) {
	t.Parallel()
	d, _ := newTestDevice(t, &fakeStream{})
	d.initialize = func() error { return errors.New("no default input device") }

	for i := 0; i < 2; i++ {
		if err := d.Configure(context.Background(), audio.CaptureMode); err == nil {
			t.Fatalf("Configure #%d succeeded, want error", i+1)
		}
	}
}

func TestDevice_OpenError(t *testing.T) {
	t.Parallel()
	d, _ := newTestDevice(t, &fakeStream{})
	d.open = func(float64, []float32) (stream, error) { return nil, errors.New("device busy") }

	if _, err := d.CreateSession(context.Background(), audio.QualityHigh); err == nil {
		t.Fatal("CreateSession succeeded, want error")
	}
}

func TestDevice_CloseTerminatesOnlyAfterInit(t *testing.T) {
	t.Parallel()

	d, _ := newTestDevice(t, &fakeStream{})
	terms := 0
	d.terminate = func() error { terms++; return nil }
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if terms != 0 {
		t.Errorf("terminate calls = %d, want 0 before Configure", terms)
	}

	d2, _ := newTestDevice(t, &fakeStream{})
	d2.terminate = func() error { terms++; return nil }
	if err := d2.Configure(context.Background(), audio.CaptureMode); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := d2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if terms != 1 {
		t.Errorf("terminate calls = %d, want 1", terms)
	}
}
