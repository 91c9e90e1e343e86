package audio

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// File is a recording loaded for upload.
type File struct {
	// Base64 is the standard base64 encoding of the file content.
	Base64 string

	// Format is the MIME type of the file (e.g. "audio/wav"), or "" when it
	// cannot be determined.
	Format string

	// SampleRate is the rate declared by the file's own header, or 0 when
	// the container does not carry one the reader understands.
	SampleRate int
}

// FileReader loads a finished recording.
type FileReader interface {
	// ReadAsBase64 reads the audio at uri. A zero File with a nil error is
	// never returned; an empty or missing file is an error.
	ReadAsBase64(ctx context.Context, uri string) (File, error)
}

// ErrEmptyAudio is returned when a recording contains no bytes.
var ErrEmptyAudio = errors.New("audio: recording is empty")

// LocalFileReader reads recordings from the local filesystem. It accepts
// plain paths and file:// URIs.
type LocalFileReader struct{}

var _ FileReader = LocalFileReader{}

// ReadAsBase64 implements [FileReader].
func (LocalFileReader) ReadAsBase64(ctx context.Context, uri string) (File, error) {
	if err := ctx.Err(); err != nil {
		return File{}, err
	}
	path, err := PathFromURI(uri)
	if err != nil {
		return File{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("audio: read %q: %w", path, err)
	}
	if len(data) == 0 {
		return File{}, fmt.Errorf("audio: read %q: %w", path, ErrEmptyAudio)
	}

	return File{
		Base64:     base64.StdEncoding.EncodeToString(data),
		Format:     FormatForPath(path),
		SampleRate: WAVSampleRate(data),
	}, nil
}

// PathFromURI converts a file:// URI or a plain path into a filesystem path.
func PathFromURI(uri string) (string, error) {
	if uri == "" {
		return "", errors.New("audio: empty uri")
	}
	if !strings.Contains(uri, "://") {
		return uri, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("audio: parse uri %q: %w", uri, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("audio: unsupported uri scheme %q", u.Scheme)
	}
	return u.Path, nil
}

// FileURI returns the file:// URI for an absolute path.
func FileURI(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// audioTypes covers the extensions recorders produce that the system MIME
// table frequently lacks.
var audioTypes = map[string]string{
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".mp3":  "audio/mpeg",
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg;codecs=opus",
	".flac": "audio/flac",
	".caf":  "audio/x-caf",
	".3gp":  "audio/3gpp",
}

// FormatForPath guesses the MIME type of an audio file from its extension.
func FormatForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	return mime.TypeByExtension(ext)
}
