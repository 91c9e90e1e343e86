package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// ErrUnsupportedContainer is returned by [DecodeMono] for audio it cannot
// sniff. WebM/Opus recordings fall in this category and must be transcribed by
// a backend that decodes them server-side.
var ErrUnsupportedContainer = errors.New("audio: unsupported container")

// DecodeMono decodes a WAV, MP3 or Ogg/Vorbis recording into mono float32
// samples at the requested rate. The container is detected from its magic
// bytes, not from the file name.
func DecodeMono(data []byte, rate int) ([]float32, error) {
	var (
		samples []float32
		srcRate int
		err     error
	)

	switch sniff(data) {
	case "wav":
		samples, srcRate, err = decodeWAV(data)
	case "mp3":
		samples, srcRate, err = decodeMP3(data)
	case "ogg":
		samples, srcRate, err = decodeVorbis(data)
	default:
		return nil, ErrUnsupportedContainer
	}
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}
	return Resample(samples, srcRate, rate)
}

// WAVSampleRate returns the sample rate declared in a WAV header, or 0 when
// data is not a readable WAV file.
func WAVSampleRate(data []byte) int {
	if sniff(data) != "wav" {
		return 0
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return 0
	}
	return int(dec.SampleRate)
}

func sniff(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return "wav"
	case len(data) >= 4 && string(data[:4]) == "OggS":
		return "ogg"
	case len(data) >= 3 && string(data[:3]) == "ID3":
		return "mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}

func decodeWAV(data []byte) ([]float32, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, errors.New("audio: invalid wav")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("audio: read wav: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, 0, ErrEmptyAudio
	}
	x := IntsToFloat32(buf.Data, int(dec.BitDepth))
	return Downmix(x, buf.Format.NumChannels), buf.Format.SampleRate, nil
}

func decodeMP3(data []byte) ([]float32, int, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("audio: open mp3: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: read mp3: %w", err)
	}
	ints := make([]int, len(raw)/2)
	for i := range ints {
		ints[i] = int(int16(binary.LittleEndian.Uint16(raw[i*2:])))
	}
	// The decoder always produces interleaved stereo.
	return Downmix(IntsToFloat32(ints, 16), 2), dec.SampleRate(), nil
}

func decodeVorbis(data []byte) ([]float32, int, error) {
	pcm, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("audio: read ogg/vorbis: %w", err)
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, 0, errors.New("audio: invalid ogg/vorbis stream")
	}
	return Downmix(pcm, format.Channels), format.SampleRate, nil
}
