// Package speaker implements [audio.Playback] and a chime player on the
// host's default output device through beep.
package speaker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"

	"github.com/MrWong99/visionvoice/pkg/audio"
)

// DefaultSampleRate is the rate the output device is opened at.
const DefaultSampleRate beep.SampleRate = 44100

// resampleQuality is passed to [beep.Resample].
const resampleQuality = 4

// ErrNoChime is returned by [Speaker.Chime] when no chime file is configured.
var ErrNoChime = errors.New("speaker: no chime file configured")

// Speaker owns the output device. Stop clears everything queued on it.
type Speaker struct {
	chimePath string
	rate      beep.SampleRate

	initSpeaker func(beep.SampleRate, int) error
	play        func(...beep.Streamer)
	clear       func()

	initOnce    sync.Once
	initErr     error
	initialized atomic.Bool
}

var _ audio.Playback = (*Speaker)(nil)

// New returns a Speaker that plays chimePath (MP3 or WAV) on [Speaker.Chime].
// The output device is opened lazily on the first chime.
func New(chimePath string) *Speaker {
	return &Speaker{
		chimePath:   chimePath,
		rate:        DefaultSampleRate,
		initSpeaker: speaker.Init,
		play:        speaker.Play,
		clear:       speaker.Clear,
	}
}

// Stop silences anything playing. It is a no-op before the device is open.
func (s *Speaker) Stop() error {
	if !s.initialized.Load() {
		return nil
	}
	s.clear()
	return nil
}

// Chime queues the configured chime and returns without waiting for it to
// finish.
func (s *Speaker) Chime() error {
	if s.chimePath == "" {
		return ErrNoChime
	}
	f, err := os.Open(s.chimePath)
	if err != nil {
		return fmt.Errorf("speaker: open chime: %w", err)
	}

	streamer, format, err := decode(s.chimePath, f)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("speaker: decode %s: %w", filepath.Base(s.chimePath), err)
	}

	if err := s.ensureInit(); err != nil {
		_ = streamer.Close()
		return err
	}

	var out beep.Streamer = streamer
	if format.SampleRate != s.rate {
		out = beep.Resample(resampleQuality, format.SampleRate, s.rate, streamer)
	}
	s.play(beep.Seq(out, beep.Callback(func() {
		_ = streamer.Close()
	})))
	return nil
}

func (s *Speaker) ensureInit() error {
	s.initOnce.Do(func() {
		if err := s.initSpeaker(s.rate, s.rate.N(time.Second/10)); err != nil {
			s.initErr = fmt.Errorf("speaker: init: %w", err)
			return
		}
		s.initialized.Store(true)
	})
	return s.initErr
}

func decode(path string, rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return mp3.Decode(rc)
	case ".wav":
		return wav.Decode(rc)
	default:
		return nil, beep.Format{}, fmt.Errorf("unsupported chime format %q", filepath.Ext(path))
	}
}
