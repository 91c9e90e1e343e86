package app

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/visionvoice/internal/config"
	"github.com/MrWong99/visionvoice/internal/resilience"
	"github.com/MrWong99/visionvoice/pkg/audio"
	audiomock "github.com/MrWong99/visionvoice/pkg/audio/mock"
	"github.com/MrWong99/visionvoice/pkg/provider/stt"
	sttmock "github.com/MrWong99/visionvoice/pkg/provider/stt/mock"
)

func testRegistry() *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterTranscriber("whisper", func(config.ProviderEntry) (stt.Transcriber, error) {
		return &sttmock.Transcriber{Text: "primary"}, nil
	})
	reg.RegisterTranscriber("openai", func(config.ProviderEntry) (stt.Transcriber, error) {
		return &sttmock.Transcriber{Text: "fallback"}, nil
	})
	reg.RegisterTranscriber("google", func(config.ProviderEntry) (stt.Transcriber, error) {
		return nil, errors.New("api key missing")
	})
	reg.RegisterDevice(DefaultDevice, func(config.ProviderEntry) (audio.Device, error) {
		return &audiomock.Device{}, nil
	})
	reg.RegisterPlayback("speaker", func(config.ProviderEntry) (audio.Playback, error) {
		return &audiomock.Playback{}, nil
	})
	return reg
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Providers: config.ProvidersConfig{
		Transcription: config.ProviderEntry{Name: "whisper"},
	}}
	ps, err := BuildProviders(cfg, testRegistry())
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if _, ok := ps.Transcriber.(*sttmock.Transcriber); !ok {
		t.Errorf("transcriber = %T, want the primary itself without fallbacks", ps.Transcriber)
	}
	if _, ok := ps.Device.(*audiomock.Device); !ok {
		t.Errorf("device = %T, want the default device", ps.Device)
	}
	if _, ok := ps.Playback.(audio.NopPlayback); !ok {
		t.Errorf("playback = %T, want NopPlayback", ps.Playback)
	}
}

func TestBuildProviders_Fallbacks(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Providers: config.ProvidersConfig{
		Transcription: config.ProviderEntry{Name: "whisper"},
		Fallbacks: []config.ProviderEntry{
			{Name: "google"},
			{Name: "openai"},
		},
		Playback: config.ProviderEntry{Name: "speaker"},
	}}
	ps, err := BuildProviders(cfg, testRegistry())
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	fb, ok := ps.Transcriber.(*resilience.TranscriberFallback)
	if !ok {
		t.Fatalf("transcriber = %T, want *resilience.TranscriberFallback", ps.Transcriber)
	}
	health := fb.Health()
	if len(health) != 2 || health[0].Name != "whisper" || health[1].Name != "openai" {
		t.Errorf("fallback entries = %+v, want whisper then openai", health)
	}
	if _, ok := ps.Playback.(*audiomock.Playback); !ok {
		t.Errorf("playback = %T, want speaker", ps.Playback)
	}
}

func TestBuildProviders_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		providers config.ProvidersConfig
	}{
		{
			name:      "primary not registered",
			providers: config.ProvidersConfig{Transcription: config.ProviderEntry{Name: "deepgram"}},
		},
		{
			name:      "primary fails",
			providers: config.ProvidersConfig{Transcription: config.ProviderEntry{Name: "google"}},
		},
		{
			name: "unknown device",
			providers: config.ProvidersConfig{
				Transcription: config.ProviderEntry{Name: "whisper"},
				Device:        config.ProviderEntry{Name: "alsa"},
			},
		},
		{
			name: "unknown playback",
			providers: config.ProvidersConfig{
				Transcription: config.ProviderEntry{Name: "whisper"},
				Playback:      config.ProviderEntry{Name: "pulse"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := BuildProviders(&config.Config{Providers: tt.providers}, testRegistry()); err == nil {
				t.Error("BuildProviders succeeded, want error")
			}
		})
	}
}

func TestTranscriptionChecker(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	if err := transcriptionChecker(&sttmock.Transcriber{}).Check(ctx); err != nil {
		t.Errorf("plain transcriber check = %v, want nil", err)
	}

	failing := &sttmock.Transcriber{Err: errors.New("backend down")}
	fb := resilience.NewTranscriberFallback(failing, "whisper", resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 1},
	})
	check := transcriptionChecker(fb)
	if err := check.Check(ctx); err != nil {
		t.Fatalf("check before failures = %v, want nil", err)
	}

	_, _ = fb.Transcribe(ctx, stt.Request{AudioBase64: "UklGRg=="})
	if err := check.Check(ctx); !errors.Is(err, errNoHealthyBackend) {
		t.Errorf("check after breaker opened = %v, want errNoHealthyBackend", err)
	}
}
