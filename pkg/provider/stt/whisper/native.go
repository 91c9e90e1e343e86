// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/visionvoice/pkg/audio"
	"github.com/MrWong99/visionvoice/pkg/provider/stt"
)

// Compile-time assertion that NativeProvider satisfies stt.Transcriber.
var _ stt.Transcriber = (*NativeProvider)(nil)

// NativeProvider implements stt.Transcriber using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once at
// startup and shared across calls.
type NativeProvider struct {
	model    whisperlib.Model
	language string

	// mu serialises inference; a single push-to-talk device never produces
	// overlapping recordings, and whisper contexts are memory heavy.
	mu sync.Mutex
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the language code used when a request carries
// none. Defaults to "pt".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = stt.BaseLanguage(lang) }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe implements stt.Transcriber.
func (p *NativeProvider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	samples, err := decodeSamples(req)
	if err != nil {
		return "", err
	}

	lang := p.language
	if req.Language != "" {
		lang = stt.BaseLanguage(req.Language)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.infer(samples, lang)
}

// infer runs whisper.cpp inference on a fresh context and returns the
// concatenated segment text.
func (p *NativeProvider) infer(samples []float32, lang string) (string, error) {
	// Contexts are not thread-safe, but the model can be shared.
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

// decodeSamples turns a base64 recording into 16 kHz mono float32 samples,
// the input format whisper.cpp expects.
func decodeSamples(req stt.Request) ([]float32, error) {
	if req.AudioBase64 == "" {
		return nil, fmt.Errorf("whisper: %w", stt.ErrEmptyAudio)
	}
	data, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("whisper: decode audio: %w", err)
	}
	samples, err := audio.DecodeMono(data, defaultSampleRate)
	if err != nil {
		return nil, fmt.Errorf("whisper: %s: %w", req.Encoding, err)
	}
	return samples, nil
}
