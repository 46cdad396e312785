package voicefilter

import (
	"github.com/xaionaro-go/voiceenhance/pkg/bandpass"
	"github.com/xaionaro-go/voiceenhance/pkg/denoise"
	"github.com/xaionaro-go/voiceenhance/pkg/spectral/implementations/godsp"
)

const (
	DefaultChunkSamples = 1024
)

type Config struct {
	Filter    bandpass.FilterSpec
	Smoothing float64

	// ChunkSamples is only a hint for stream adapters: a Session
	// accepts chunks of any length, as long as it is the same
	// length for the whole session.
	ChunkSamples uint

	// Transformer is the name of a registered spectral.Transformer.
	Transformer string

	// Cache is optional; if set, filter coefficients are shared
	// with every other session using the same cache.
	Cache *bandpass.Cache
}

func DefaultConfig() Config {
	return Config{
		Filter:       bandpass.DefaultFilterSpec(),
		Smoothing:    denoise.DefaultSmoothing,
		ChunkSamples: DefaultChunkSamples,
		Transformer:  godsp.Name,
	}
}
