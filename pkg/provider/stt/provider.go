// Package stt defines the Transcriber interface for Speech-to-Text backends.
//
// A Transcriber turns one complete recording into one transcript string. The
// capture pipeline records a whole utterance before transcribing it, so the
// interface is a single batch call: there are no partial results and a call
// that has been issued is never aborted by the caller.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/visionvoice/pkg/audio"
)

// ErrEmptyAudio is returned when a request carries no audio.
var ErrEmptyAudio = errors.New("stt: request has no audio")

// Request is a single recording to transcribe.
type Request struct {
	// AudioBase64 is the standard base64 encoding of the recorded file.
	AudioBase64 string

	// Encoding is the container/codec hint inferred from the file.
	Encoding audio.Encoding

	// SampleRate is the recommended sample rate for Encoding, in Hz.
	// Zero lets the provider choose.
	SampleRate int

	// Language is the BCP-47 language tag of the speech (e.g. "pt-BR").
	Language string
}

// Transcriber is the abstraction over any STT backend.
type Transcriber interface {
	// Transcribe returns the text spoken in req. An empty string with a nil
	// error means the backend recognised no speech.
	Transcribe(ctx context.Context, req Request) (string, error)
}

// TranscriberFunc adapts a plain function to [Transcriber].
type TranscriberFunc func(ctx context.Context, req Request) (string, error)

// Transcribe implements [Transcriber].
func (f TranscriberFunc) Transcribe(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// BaseLanguage strips the region from a BCP-47 tag ("pt-BR" → "pt"). Backends
// such as whisper only accept the primary language subtag.
func BaseLanguage(tag string) string {
	base, _, _ := strings.Cut(tag, "-")
	base, _, _ = strings.Cut(base, "_")
	return strings.ToLower(base)
}

// FileExtension returns a file extension matching enc, used when uploading
// audio to backends that sniff the format from the file name.
func FileExtension(enc audio.Encoding) string {
	switch enc {
	case audio.EncodingMP3:
		return ".mp3"
	case audio.EncodingM4A:
		return ".m4a"
	case audio.EncodingLinear16:
		return ".wav"
	case audio.EncodingFLAC:
		return ".flac"
	default:
		return ".webm"
	}
}

// ContentType returns the MIME type matching enc.
func ContentType(enc audio.Encoding) string {
	switch enc {
	case audio.EncodingMP3:
		return "audio/mpeg"
	case audio.EncodingM4A:
		return "audio/mp4"
	case audio.EncodingLinear16:
		return "audio/wav"
	case audio.EncodingFLAC:
		return "audio/flac"
	default:
		return "audio/webm"
	}
}
