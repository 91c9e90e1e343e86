package audio

import "strings"

// Encoding names the wire encoding expected by speech recognition services.
type Encoding string

const (
	EncodingMP3      Encoding = "MP3"
	EncodingLinear16 Encoding = "LINEAR16"
	EncodingWebMOpus Encoding = "WEBM_OPUS"
	EncodingFLAC     Encoding = "FLAC"
	EncodingM4A      Encoding = "M4A"
)

// DefaultEncoding is assumed when neither the MIME type nor the file
// extension identifies the recording.
const DefaultEncoding = EncodingWebMOpus

// EncodingInfo is a recognised encoding together with its recommended sample
// rate in Hz.
type EncodingInfo struct {
	Encoding   Encoding
	SampleRate int
}

// EncodingForFormat maps a MIME type (e.g. "audio/webm;codecs=opus") or a
// file extension or name (e.g. "mp3", "rec.wav") to an encoding. The second
// result is false when format is not recognised.
func EncodingForFormat(format string) (EncodingInfo, bool) {
	f := strings.ToLower(format)

	switch {
	case strings.Contains(f, "mpeg"), strings.Contains(f, "mp3"):
		return EncodingInfo{EncodingMP3, 44100}, true
	case strings.Contains(f, "m4a"), strings.Contains(f, "mp4"):
		return EncodingInfo{EncodingM4A, 44100}, true
	case strings.Contains(f, "wav"), strings.Contains(f, "pcm"):
		return EncodingInfo{EncodingLinear16, 16000}, true
	case strings.Contains(f, "webm"), strings.Contains(f, "opus"), strings.Contains(f, "ogg"):
		return EncodingInfo{EncodingWebMOpus, 48000}, true
	case strings.Contains(f, "flac"):
		return EncodingInfo{EncodingFLAC, 16000}, true
	}
	return EncodingInfo{}, false
}

// ResolveEncoding tries format first, then uri, and falls back to
// [DefaultEncoding].
func ResolveEncoding(format, uri string) EncodingInfo {
	if info, ok := EncodingForFormat(format); ok {
		return info
	}
	if info, ok := EncodingForFormat(uri); ok {
		return info
	}
	return EncodingInfo{Encoding: DefaultEncoding, SampleRate: 48000}
}
