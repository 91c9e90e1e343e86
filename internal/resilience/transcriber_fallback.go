package resilience

import (
	"context"

	"github.com/MrWong99/visionvoice/pkg/provider/stt"
)

// TranscriberFallback implements [stt.Transcriber] with automatic failover
// across multiple STT backends. Each backend has its own circuit breaker.
type TranscriberFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*TranscriberFallback)(nil)

// NewTranscriberFallback creates a [TranscriberFallback] with primary as the
// preferred backend.
func NewTranscriberFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	return &TranscriberFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional backend.
func (f *TranscriberFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Health reports the breaker state of every backend.
func (f *TranscriberFallback) Health() []EntryHealth {
	return f.group.Health()
}

// Transcribe sends req to the first healthy backend, moving on to the next
// one when a backend fails.
func (f *TranscriberFallback) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	text, _, err := Do(ctx, f.group, func(ctx context.Context, t stt.Transcriber) (string, error) {
		return t.Transcribe(ctx, req)
	})
	return text, err
}
