package audio

import (
	"fmt"

	goaudio "github.com/go-audio/audio"
	resampling "github.com/tphakala/go-audio-resampling"
)

// IntsToFloat32 converts integer samples of the given bit depth to float32
// samples normalised to [-1.0, 1.0].
func IntsToFloat32(samples []int, bitDepth int) []float32 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))
	out := make([]float32, len(samples))
	for i, v := range samples {
		out[i] = clamp(float32(v) / scale)
	}
	return out
}

// Downmix averages the channels of each interleaved frame into one mono
// sample. A trailing partial frame is ignored.
func Downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += in[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate with a
// high-quality polyphase resampler. If the rates match the input is returned
// unchanged.
func Resample(in []float32, srcRate, dstRate int) ([]float32, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("audio: invalid resample rates %d -> %d", srcRate, dstRate)
	}
	if srcRate == dstRate || len(in) == 0 {
		return in, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler: %w", err)
	}

	input := make([]float64, len(in))
	for i, v := range in {
		input[i] = float64(v)
	}
	output, err := r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("audio: resample: %w", err)
	}

	out := make([]float32, len(output))
	for i, v := range output {
		out[i] = clamp(float32(v))
	}
	return out, nil
}

// Float32ToIntBuffer converts mono float32 samples to a 16-bit PCM buffer
// ready for a WAV encoder.
func Float32ToIntBuffer(samples []float32, rate int) *goaudio.IntBuffer {
	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = int(clamp(v) * 32767)
	}
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
