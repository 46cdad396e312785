package denoise

import (
	"fmt"

	"github.com/xaionaro-go/voiceenhance/pkg/spectral"
)

const (
	DefaultSmoothing = 0.8
)

// Denoiser suppresses stationary noise with spectral subtraction.
//
// A Denoiser owns its NoiseProfile, so it represents a single stream
// and must not be used concurrently.
type Denoiser struct {
	Smoothing   float64
	Transformer spectral.Transformer
	Profile     NoiseProfile
}

func New(
	smoothing float64,
	transformer spectral.Transformer,
) (*Denoiser, error) {
	if err := ValidateSmoothing(smoothing); err != nil {
		return nil, err
	}
	if transformer == nil {
		return nil, fmt.Errorf("transformer is mandatory")
	}
	return &Denoiser{
		Smoothing:   smoothing,
		Transformer: transformer,
	}, nil
}

func ValidateSmoothing(smoothing float64) error {
	if !(smoothing > 0 && smoothing < 1) {
		return ErrInvalidSmoothing{Smoothing: smoothing}
	}
	return nil
}

func (d *Denoiser) Enhance(chunk []float32) ([]float32, error) {
	return Enhance(d.Transformer, chunk, &d.Profile, d.Smoothing)
}

// Enhance returns the chunk with the noise estimated by profile subtracted
// from its magnitude spectrum; the phase spectrum is kept intact.
//
// The first chunk seen by an uninitialized profile becomes the profile
// and is returned unsuppressed. On error the profile is left untouched.
func Enhance(
	transformer spectral.Transformer,
	chunk []float32,
	profile *NoiseProfile,
	smoothing float64,
) ([]float32, error) {
	if len(chunk) == 0 {
		return nil, ErrEmptyChunk{}
	}
	if profile.IsInitialized() && profile.chunkLength != len(chunk) {
		return nil, ErrChunkLengthMismatch{Expected: profile.chunkLength, Actual: len(chunk)}
	}

	samples := make([]float64, len(chunk))
	for idx, v := range chunk {
		samples[idx] = float64(v)
	}
	spectrum, err := transformer.Forward(samples)
	if err != nil {
		return nil, fmt.Errorf("unable to transform the chunk into the frequency domain: %w", err)
	}
	magnitudes, phases := spectral.Polar(spectrum)

	var (
		enhanced    []float64
		nextProfile []float64
	)
	if !profile.IsInitialized() {
		enhanced = magnitudes
		nextProfile = append([]float64(nil), magnitudes...)
	} else {
		enhanced, nextProfile = SubtractNoise(magnitudes, profile.magnitudes, smoothing)
	}

	restored, err := transformer.Inverse(spectral.FromPolar(enhanced, phases), len(chunk))
	if err != nil {
		return nil, fmt.Errorf("unable to transform the chunk back into the time domain: %w", err)
	}

	profile.magnitudes = nextProfile
	profile.chunkLength = len(chunk)

	result := make([]float32, len(restored))
	for idx, v := range restored {
		result[idx] = float32(v)
	}
	return result, nil
}

// SubtractNoise returns max(magnitudes - (1-smoothing)*profile, 0) and
// the profile updated with the exponential moving average
// smoothing*profile + (1-smoothing)*magnitudes. The inputs are not modified.
func SubtractNoise(
	magnitudes []float64,
	profile []float64,
	smoothing float64,
) (enhanced []float64, nextProfile []float64) {
	if len(magnitudes) != len(profile) {
		panic(fmt.Errorf("len(magnitudes) != len(profile): %d != %d", len(magnitudes), len(profile)))
	}
	enhanced = make([]float64, len(magnitudes))
	nextProfile = make([]float64, len(magnitudes))
	for idx, m := range magnitudes {
		noise := profile[idx] * (1 - smoothing)
		enhanced[idx] = max(m-noise, 0)
		nextProfile[idx] = smoothing*profile[idx] + (1-smoothing)*m
	}
	return enhanced, nextProfile
}
