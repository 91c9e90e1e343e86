// Package google provides an STT transcriber backed by the Google Cloud
// Speech-to-Text v1 REST API (speech:recognize).
//
// The whole recording is sent inline as base64 content, which the API accepts
// for clips up to one minute; push-to-talk commands are far shorter.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/MrWong99/visionvoice/pkg/provider/stt"
)

const (
	// DefaultEndpoint is the synchronous recognition endpoint.
	DefaultEndpoint = "https://speech.googleapis.com/v1/speech:recognize"

	// DefaultModel favours accuracy on short, conversational commands.
	DefaultModel = "latest_long"

	defaultLanguage = "pt-BR"
	defaultTimeout  = 30 * time.Second
)

// Compile-time assertion that Provider implements stt.Transcriber.
var _ stt.Transcriber = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithEndpoint overrides the recognition endpoint (e.g. a regional endpoint
// or a test server).
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithModel sets the recognition model. Defaults to "latest_long".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the language used when a request carries none.
// Defaults to "pt-BR".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithAutomaticPunctuation toggles automatic punctuation. Enabled by default.
func WithAutomaticPunctuation(enabled bool) Option {
	return func(p *Provider) { p.punctuation = enabled }
}

// WithHTTPClient replaces the HTTP client, e.g. with one routed through a
// proxy.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// Provider implements stt.Transcriber using Google Speech-to-Text.
type Provider struct {
	apiKey      string
	endpoint    string
	model       string
	language    string
	punctuation bool
	httpClient  *http.Client
}

// New constructs a Provider authenticated with an API key.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("google stt: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:      apiKey,
		endpoint:    DefaultEndpoint,
		model:       DefaultModel,
		language:    defaultLanguage,
		punctuation: true,
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type recognizeRequest struct {
	Audio  recognitionAudio  `json:"audio"`
	Config recognitionConfig `json:"config"`
}

type recognitionAudio struct {
	Content string `json:"content"`
}

type recognitionConfig struct {
	Encoding                   string `json:"encoding"`
	SampleRateHertz            int    `json:"sampleRateHertz,omitempty"`
	LanguageCode               string `json:"languageCode"`
	EnableAutomaticPunctuation bool   `json:"enableAutomaticPunctuation"`
	Model                      string `json:"model,omitempty"`
}

type recognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Transcribe implements stt.Transcriber. Only the first alternative of the
// first result is returned; a response without results yields "".
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	if req.AudioBase64 == "" {
		return "", fmt.Errorf("google stt: %w", stt.ErrEmptyAudio)
	}
	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	payload, err := json.Marshal(recognizeRequest{
		Audio: recognitionAudio{Content: req.AudioBase64},
		Config: recognitionConfig{
			Encoding:                   string(req.Encoding),
			SampleRateHertz:            req.SampleRate,
			LanguageCode:               lang,
			EnableAutomaticPunctuation: p.punctuation,
			Model:                      p.model,
		},
	})
	if err != nil {
		return "", fmt.Errorf("google stt: marshal request: %w", err)
	}

	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", fmt.Errorf("google stt: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", p.apiKey)
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("google stt: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("google stt: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("google stt: read response body: %w", err)
	}

	var result recognizeResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("google stt: server returned HTTP %d", resp.StatusCode)
		}
		return "", fmt.Errorf("google stt: parse JSON response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("google stt: HTTP %d: %s", resp.StatusCode, result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("google stt: server returned HTTP %d", resp.StatusCode)
	}

	if len(result.Results) == 0 || len(result.Results[0].Alternatives) == 0 {
		return "", nil
	}
	return result.Results[0].Alternatives[0].Transcript, nil
}
