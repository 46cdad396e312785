// Package godsp implements spectral.Transformer on top of
// github.com/mjibson/go-dsp/fft, which supports arbitrary lengths.
package godsp

import (
	"fmt"

	"github.com/mjibson/go-dsp/fft"
	"github.com/xaionaro-go/voiceenhance/pkg/spectral"
)

const Name = "godsp"

func init() {
	spectral.Register(Name, func() spectral.Transformer {
		return New()
	})
}

type Transformer struct{}

var _ spectral.Transformer = (*Transformer)(nil)

func New() *Transformer {
	return &Transformer{}
}

func (*Transformer) Forward(samples []float64) ([]complex128, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	full := fft.FFTReal(samples)
	return full[:spectral.BinCount(len(samples))], nil
}

func (*Transformer) Inverse(spectrum []complex128, n int) ([]float64, error) {
	if n <= 0 || len(spectrum) != spectral.BinCount(n) {
		return nil, spectral.ErrSpectrumLength{Bins: len(spectrum), Samples: n}
	}
	signal := fft.IFFT(spectral.HermitianExtend(spectrum, n))
	result := make([]float64, n)
	for idx, c := range signal {
		result[idx] = real(c)
	}
	return result, nil
}
