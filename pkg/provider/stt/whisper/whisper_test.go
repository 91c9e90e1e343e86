package whisper_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/visionvoice/pkg/audio"
	"github.com/MrWong99/visionvoice/pkg/provider/stt"
	"github.com/MrWong99/visionvoice/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// inferenceRequest captures what the mock server saw.
type inferenceRequest struct {
	filename    string
	contentType string
	body        []byte
	fields      map[string]string
}

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText and records every request.
func newMockServer(t *testing.T, responseText string) (*httptest.Server, func() []inferenceRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []inferenceRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(f)
		req := inferenceRequest{
			filename:    hdr.Filename,
			contentType: hdr.Header.Get("Content-Type"),
			body:        body,
			fields:      map[string]string{},
		}
		for k, v := range r.MultipartForm.Value {
			req.fields[k] = v[0]
		}
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv, func() []inferenceRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]inferenceRequest(nil), seen...)
	}
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

// ---- provider construction --------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNew_WithOptions_DoesNotError(t *testing.T) {
	t.Parallel()
	p, err := whisper.New("http://localhost:8080/",
		whisper.WithModel("small"),
		whisper.WithLanguage("pt-BR"),
		whisper.WithHTTPClient(http.DefaultClient),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil Provider")
	}
}

// ---- transcription ----------------------------------------------------------

func TestTranscribe_UploadsRecording(t *testing.T) {
	t.Parallel()
	srv, seen := newMockServer(t, "  descreva o ambiente \n")

	p, err := whisper.New(srv.URL, whisper.WithModel("small"))
	if err != nil {
		t.Fatal(err)
	}
	text, err := p.Transcribe(context.Background(), stt.Request{
		AudioBase64: b64("RIFFdata"),
		Encoding:    audio.EncodingLinear16,
		Language:    "pt-BR",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "descreva o ambiente" {
		t.Errorf("text = %q, want trimmed transcript", text)
	}

	reqs := seen()
	if len(reqs) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(reqs))
	}
	got := reqs[0]
	if got.filename != "audio.wav" {
		t.Errorf("filename = %q, want audio.wav", got.filename)
	}
	if got.contentType != "audio/wav" {
		t.Errorf("content type = %q, want audio/wav", got.contentType)
	}
	if string(got.body) != "RIFFdata" {
		t.Errorf("body = %q, want decoded audio", got.body)
	}
	if got.fields["language"] != "pt" {
		t.Errorf("language = %q, want pt", got.fields["language"])
	}
	if got.fields["model"] != "small" {
		t.Errorf("model = %q, want small", got.fields["model"])
	}
}

func TestTranscribe_DefaultLanguageAndExtension(t *testing.T) {
	t.Parallel()
	srv, seen := newMockServer(t, "ajuda")

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), stt.Request{
		AudioBase64: b64("webm"),
		Encoding:    audio.EncodingWebMOpus,
	}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	got := seen()[0]
	if got.filename != "audio.webm" {
		t.Errorf("filename = %q, want audio.webm", got.filename)
	}
	if got.fields["language"] != "pt" {
		t.Errorf("language = %q, want default pt", got.fields["language"])
	}
	if _, ok := got.fields["model"]; ok {
		t.Error("model field should be omitted when unset")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	t.Parallel()
	p, _ := whisper.New("http://127.0.0.1:1")
	_, err := p.Transcribe(context.Background(), stt.Request{})
	if !errors.Is(err, stt.ErrEmptyAudio) {
		t.Errorf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestTranscribe_InvalidBase64(t *testing.T) {
	t.Parallel()
	p, _ := whisper.New("http://127.0.0.1:1")
	if _, err := p.Transcribe(context.Background(), stt.Request{AudioBase64: "!!!"}); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), stt.Request{AudioBase64: b64("x")}); err == nil {
		t.Error("expected error for HTTP 500")
	}
}

func TestTranscribe_MalformedJSON(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), stt.Request{AudioBase64: b64("x")}); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	t.Parallel()
	srv, _ := newMockServer(t, "x")
	p, _ := whisper.New(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, stt.Request{AudioBase64: b64("x")}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
