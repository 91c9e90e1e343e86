// Package mock provides test doubles for the stt package interfaces.
//
// Use Transcriber to verify which requests reached the backend and to hold a
// call open until the test releases it:
//
//	tr := &mock.Transcriber{Text: "descreva o ambiente"}
//	text, err := tr.Transcribe(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/visionvoice/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Req is the request passed to Transcribe.
	Req stt.Request
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Text is returned when Err is nil and Results is exhausted.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Results, when non-empty, is consumed one entry per call before Text is
	// used.
	Results []string

	// Gate, when non-nil, blocks Transcribe until it is closed. The context is
	// deliberately ignored while waiting because issued transcriptions are
	// never cancelled.
	Gate chan struct{}

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the configured result.
func (m *Transcriber) Transcribe(_ context.Context, req stt.Request) (string, error) {
	m.mu.Lock()
	m.TranscribeCalls = append(m.TranscribeCalls, TranscribeCall{Req: req})
	gate := m.Gate
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Results) > 0 {
		text := m.Results[0]
		m.Results = m.Results[1:]
		return text, nil
	}
	return m.Text, nil
}

// CallCount returns the number of Transcribe calls so far.
func (m *Transcriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (m *Transcriber) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TranscribeCalls = nil
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
