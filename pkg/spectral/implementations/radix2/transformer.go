// Package radix2 implements spectral.Transformer on top of
// github.com/brettbuddin/fourier. Only power-of-two lengths are supported.
package radix2

import (
	"fmt"
	"math/cmplx"

	"github.com/brettbuddin/fourier"
	"github.com/xaionaro-go/voiceenhance/pkg/spectral"
)

const Name = "radix2"

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

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func (*Transformer) Forward(samples []float64) ([]complex128, error) {
	if !isPowerOfTwo(len(samples)) {
		return nil, fmt.Errorf("the length %d is not a power of two", len(samples))
	}
	coeffs := make([]complex128, len(samples))
	for idx, v := range samples {
		coeffs[idx] = complex(v, 0)
	}
	if err := fourier.Forward(coeffs); err != nil {
		return nil, fmt.Errorf("unable to transform: %w", err)
	}
	return coeffs[:spectral.BinCount(len(samples))], nil
}

// Inverse uses the forward transform of the conjugated spectrum:
// ifft(X) = conj(fft(conj(X)))/n.
func (*Transformer) Inverse(spectrum []complex128, n int) ([]float64, error) {
	if !isPowerOfTwo(n) {
		return nil, fmt.Errorf("the length %d is not a power of two", n)
	}
	if len(spectrum) != spectral.BinCount(n) {
		return nil, spectral.ErrSpectrumLength{Bins: len(spectrum), Samples: n}
	}
	coeffs := spectral.HermitianExtend(spectrum, n)
	for idx, c := range coeffs {
		coeffs[idx] = cmplx.Conj(c)
	}
	if err := fourier.Forward(coeffs); err != nil {
		return nil, fmt.Errorf("unable to transform: %w", err)
	}
	result := make([]float64, n)
	for idx, c := range coeffs {
		// the real part is unaffected by the final conjugation
		result[idx] = real(c) / float64(n)
	}
	return result, nil
}
