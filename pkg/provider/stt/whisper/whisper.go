// Package whisper provides local whisper.cpp-backed STT transcribers.
//
// [Provider] uploads each recording to a running whisper-server binary, which
// exposes a REST API at POST /inference. [NativeProvider] runs inference
// in-process through the whisper.cpp CGO bindings.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("pt"),
//	)
//	text, err := p.Transcribe(ctx, stt.Request{AudioBase64: b64, Encoding: audio.EncodingLinear16})
package whisper

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/MrWong99/visionvoice/pkg/provider/stt"
)

const (
	defaultLanguage   = "pt"
	defaultSampleRate = 16000
	defaultTimeout    = 30 * time.Second
)

// Compile-time assertion that Provider implements stt.Transcriber.
var _ stt.Transcriber = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base", "small"). When empty the server uses whichever model it
// was started with. This is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the whisper.cpp server when a
// request carries none. Region subtags are stripped. Defaults to "pt".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = stt.BaseLanguage(lang)
	}
}

// WithHTTPClient replaces the HTTP client, e.g. with one routed through a
// proxy. The default client has a 30 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// Provider implements stt.Transcriber backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Transcriber. The recording is uploaded as-is;
// the server decodes non-WAV containers itself when started with --convert.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	if req.AudioBase64 == "" {
		return "", fmt.Errorf("whisper: %w", stt.ErrEmptyAudio)
	}
	data, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		return "", fmt.Errorf("whisper: decode audio: %w", err)
	}

	lang := p.language
	if req.Language != "" {
		lang = stt.BaseLanguage(req.Language)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="audio`+stt.FileExtension(req.Encoding)+`"`)
	h.Set("Content-Type", stt.ContentType(req.Encoding))
	fw, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return "", fmt.Errorf("whisper: write audio data: %w", err)
	}

	fields := map[string]string{
		"language":        lang,
		"model":           p.model,
		"response_format": "json",
	}
	for _, name := range []string{"language", "model", "response_format"} {
		if fields[name] == "" {
			continue
		}
		if err := mw.WriteField(name, fields[name]); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", name, err)
		}
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return strings.TrimSpace(result.Text), nil
}
