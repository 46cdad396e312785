package spectral

import (
	"math"
	"math/cmplx"
)

// Transformer converts real signals to one-sided spectra and back.
type Transformer interface {
	// Forward returns the len(samples)/2+1 non-negative frequency bins
	// of the discrete Fourier transform of samples.
	Forward(samples []float64) ([]complex128, error)

	// Inverse returns the n real samples whose one-sided spectrum is
	// the given one; len(spectrum) must be n/2+1.
	Inverse(spectrum []complex128, n int) ([]float64, error)
}

// BinCount returns the amount of one-sided spectrum bins for a signal of n samples.
func BinCount(n int) int {
	return n/2 + 1
}

// Polar splits a spectrum into its magnitudes and phases.
func Polar(spectrum []complex128) (magnitudes, phases []float64) {
	magnitudes = make([]float64, len(spectrum))
	phases = make([]float64, len(spectrum))
	for idx, c := range spectrum {
		magnitudes[idx] = cmplx.Abs(c)
		phases[idx] = cmplx.Phase(c)
	}
	return
}

// FromPolar is the inverse of Polar.
func FromPolar(magnitudes, phases []float64) []complex128 {
	if len(magnitudes) != len(phases) {
		panic("len(magnitudes) != len(phases)")
	}
	spectrum := make([]complex128, len(magnitudes))
	for idx := range spectrum {
		sin, cos := math.Sincos(phases[idx])
		spectrum[idx] = complex(magnitudes[idx]*cos, magnitudes[idx]*sin)
	}
	return spectrum
}

// HermitianExtend builds the full n-bin spectrum of a real signal
// out of its one-sided spectrum.
func HermitianExtend(spectrum []complex128, n int) []complex128 {
	full := make([]complex128, n)
	copy(full, spectrum)
	for k := 1; k < len(spectrum); k++ {
		if n-k <= k {
			break
		}
		full[n-k] = cmplx.Conj(spectrum[k])
	}
	return full
}
