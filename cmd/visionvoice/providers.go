package main

import (
	"log/slog"
	"sync"

	"github.com/MrWong99/visionvoice/internal/config"
	"github.com/MrWong99/visionvoice/internal/proxy"
	"github.com/MrWong99/visionvoice/pkg/audio"
	"github.com/MrWong99/visionvoice/pkg/audio/portaudio"
	"github.com/MrWong99/visionvoice/pkg/audio/speaker"
	"github.com/MrWong99/visionvoice/pkg/provider/stt"
	"github.com/MrWong99/visionvoice/pkg/provider/stt/google"
	"github.com/MrWong99/visionvoice/pkg/provider/stt/openai"
	"github.com/MrWong99/visionvoice/pkg/provider/stt/whisper"
)

// closerList collects shutdown hooks of providers created by the registry.
type closerList struct {
	mu   sync.Mutex
	list []func() error
}

func (c *closerList) add(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = append(c.list, fn)
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Providers that hold native resources register a closer in the returned
// list once they are created.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) *closerList {
	closers := &closerList{}
	lang := cfg.Capture.Language

	// ── Transcription ─────────────────────────────────────────────────────────

	reg.RegisterTranscriber("google", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		hc, err := proxy.NewClient(entry.Proxy)
		if err != nil {
			return nil, err
		}
		opts := []google.Option{
			google.WithHTTPClient(hc),
			google.WithAutomaticPunctuation(entry.OptionBool("automatic_punctuation", true)),
		}
		if entry.BaseURL != "" {
			opts = append(opts, google.WithEndpoint(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, google.WithModel(entry.Model))
		}
		if l := entry.OptionString("language", lang); l != "" {
			opts = append(opts, google.WithLanguage(l))
		}
		return google.New(entry.APIKey, opts...)
	})

	reg.RegisterTranscriber("openai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if entry.Proxy != "" {
			hc, err := proxy.NewClient(entry.Proxy)
			if err != nil {
				return nil, err
			}
			opts = append(opts, openai.WithHTTPClient(hc))
		}
		if n := entry.OptionInt("max_retries", -1); n >= 0 {
			opts = append(opts, openai.WithMaxRetries(n))
		}
		if p := entry.OptionString("prompt", ""); p != "" {
			opts = append(opts, openai.WithPrompt(p))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTranscriber("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if l := entry.OptionString("language", stt.BaseLanguage(lang)); l != "" {
			opts = append(opts, whisper.WithLanguage(l))
		}
		if entry.Proxy != "" {
			hc, err := proxy.NewClient(entry.Proxy)
			if err != nil {
				return nil, err
			}
			opts = append(opts, whisper.WithHTTPClient(hc))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterTranscriber("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.OptionString("model_path", "")
		}
		var opts []whisper.NativeOption
		if l := entry.OptionString("language", stt.BaseLanguage(lang)); l != "" {
			opts = append(opts, whisper.WithNativeLanguage(l))
		}
		p, err := whisper.NewNative(modelPath, opts...)
		if err != nil {
			return nil, err
		}
		closers.add(p.Close)
		return p, nil
	})

	// ── Device ────────────────────────────────────────────────────────────────

	reg.RegisterDevice("portaudio", func(entry config.ProviderEntry) (audio.Device, error) {
		dir := entry.OptionString("recordings_dir", cfg.Capture.RecordingsDir)
		d := portaudio.New(dir)
		closers.add(d.Close)
		slog.Debug("recordings directory", "dir", d.Dir())
		return d, nil
	})

	// ── Playback ──────────────────────────────────────────────────────────────

	reg.RegisterPlayback("speaker", func(entry config.ProviderEntry) (audio.Playback, error) {
		return speaker.New(entry.OptionString("chime", "")), nil
	})

	for _, kind := range []string{"transcription", "device", "playback"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
	return closers
}
