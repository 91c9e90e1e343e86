package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/visionvoice/internal/config"
	"github.com/MrWong99/visionvoice/internal/health"
	"github.com/MrWong99/visionvoice/internal/resilience"
	"github.com/MrWong99/visionvoice/pkg/audio"
	"github.com/MrWong99/visionvoice/pkg/provider/stt"
)

// DefaultDevice is the device provider used when providers.device is unset.
const DefaultDevice = "portaudio"

// PlaybackNone disables speech playback.
const PlaybackNone = "none"

// BuildProviders instantiates every provider named in cfg using reg. When
// fallbacks are configured the transcriber is a
// [resilience.TranscriberFallback] with the primary tried first. A fallback
// that cannot be built is skipped with a warning; the primary, the device
// and the playback channel are required.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}

	primary := cfg.Providers.Transcription
	tr, err := reg.CreateTranscriber(primary)
	if err != nil {
		return nil, fmt.Errorf("create transcription provider %q: %w", primary.Name, err)
	}
	slog.Info("provider created", "kind", "transcription", "name", primary.Name)
	ps.Transcriber = tr

	if len(cfg.Providers.Fallbacks) > 0 {
		fb := resilience.NewTranscriberFallback(tr, primary.Name, resilience.FallbackConfig{})
		for _, entry := range cfg.Providers.Fallbacks {
			t, err := reg.CreateTranscriber(entry)
			if err != nil {
				slog.Warn("skipping transcription fallback", "name", entry.Name, "err", err)
				continue
			}
			fb.AddFallback(entry.Name, t)
			slog.Info("provider created", "kind", "transcription-fallback", "name", entry.Name)
		}
		ps.Transcriber = fb
	}

	device := cfg.Providers.Device
	if device.Name == "" {
		device.Name = DefaultDevice
	}
	dev, err := reg.CreateDevice(device)
	if err != nil {
		return nil, fmt.Errorf("create device provider %q: %w", device.Name, err)
	}
	slog.Info("provider created", "kind", "device", "name", device.Name)
	ps.Device = dev

	playback := cfg.Providers.Playback
	switch playback.Name {
	case "", PlaybackNone:
		ps.Playback = audio.NopPlayback{}
	default:
		pb, err := reg.CreatePlayback(playback)
		if err != nil {
			return nil, fmt.Errorf("create playback provider %q: %w", playback.Name, err)
		}
		slog.Info("provider created", "kind", "playback", "name", playback.Name)
		ps.Playback = pb
	}

	return ps, nil
}

// errNoHealthyBackend is reported by the transcription readiness check.
var errNoHealthyBackend = errors.New("every transcription backend has an open circuit")

// transcriptionChecker reports ready while at least one backend of a
// [resilience.TranscriberFallback] accepts calls. Other transcribers are
// always ready.
func transcriptionChecker(t stt.Transcriber) health.Checker {
	return health.Checker{
		Name: "transcription",
		Check: func(context.Context) error {
			fb, ok := t.(*resilience.TranscriberFallback)
			if !ok {
				return nil
			}
			for _, h := range fb.Health() {
				if h.State != resilience.StateOpen {
					return nil
				}
			}
			return errNoHealthyBackend
		},
	}
}
