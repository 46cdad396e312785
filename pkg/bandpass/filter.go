package bandpass

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Coefficients is a rational transfer function B(z)/A(z), both
// polynomials in z^-1 with the zero-delay coefficient first.
type Coefficients struct {
	B []float64
	A []float64
}

// Apply filters the chunk with a direct-form II transposed linear
// recursive filter, starting from zero state.
//
// No state is carried between calls: every chunk is filtered as if
// it were the beginning of the signal.
func Apply(chunk []float32, c Coefficients) []float32 {
	out := make([]float32, len(chunk))
	if len(c.A) == 0 || c.A[0] == 0 {
		panic(fmt.Errorf("the denominator must have a non-zero leading coefficient: %v", c.A))
	}

	order := max(len(c.B), len(c.A))
	b := make([]float64, order)
	a := make([]float64, order)
	for i, v := range c.B {
		b[i] = v / c.A[0]
	}
	for i, v := range c.A {
		a[i] = v / c.A[0]
	}

	state := make([]float64, order)
	for n, sample := range chunk {
		x := float64(sample)
		y := b[0]*x + state[0]
		for i := 1; i < order; i++ {
			next := 0.0
			if i+1 < order {
				next = state[i]
			}
			state[i-1] = b[i]*x - a[i]*y + next
		}
		out[n] = float32(y)
	}
	return out
}

// ApplyBandpass designs the filter described by spec and applies it to the chunk.
func ApplyBandpass(chunk []float32, spec FilterSpec) ([]float32, error) {
	c, err := Design(spec)
	if err != nil {
		return nil, err
	}
	return Apply(chunk, c), nil
}

// Response returns the magnitude of the frequency response at freqHz.
func (c Coefficients) Response(freqHz, sampleRate float64) float64 {
	w := 2 * math.Pi * freqHz / sampleRate
	return cmplx.Abs(evalPoly(c.B, w) / evalPoly(c.A, w))
}

func evalPoly(coeffs []float64, w float64) complex128 {
	var sum complex128
	for k, v := range coeffs {
		sum += complex(v, 0) * cmplx.Exp(complex(0, -w*float64(k)))
	}
	return sum
}
