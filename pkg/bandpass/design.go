package bandpass

import (
	"math"
	"math/cmplx"
)

// Design computes the transfer function of a digital Butterworth
// band-pass filter.
//
// The analog low-pass prototype of order spec.Order is transformed
// into a band-pass (pre-warped to the normalized cutoffs) and then
// discretized with the bilinear transform, so the resulting digital
// filter has order 2*spec.Order.
func Design(spec FilterSpec) (Coefficients, error) {
	low, high, err := spec.Normalized()
	if err != nil {
		return Coefficients{}, err
	}
	order := spec.Order

	// the sample rate of the normalized domain (Nyquist == 1)
	const fs = 2.0
	warpedLow := 2 * fs * math.Tan(math.Pi*low/fs)
	warpedHigh := 2 * fs * math.Tan(math.Pi*high/fs)
	bandwidth := warpedHigh - warpedLow
	center := math.Sqrt(warpedLow * warpedHigh)

	prototype := butterworthPrototypePoles(order)

	analogPoles := make([]complex128, 0, 2*order)
	for _, sign := range []complex128{1, -1} {
		for _, p := range prototype {
			scaled := p * complex(bandwidth/2, 0)
			delta := cmplx.Sqrt(scaled*scaled - complex(center*center, 0))
			analogPoles = append(analogPoles, scaled+sign*delta)
		}
	}

	// order zeros at s=0 map to z=1; the remaining zeros of the
	// band-pass are at infinity and map to z=-1.
	zeros := make([]complex128, 0, 2*order)
	poles := make([]complex128, 0, 2*order)
	gainNum := complex(math.Pow(bandwidth, float64(order)), 0)
	gainDen := complex(1, 0)
	for i := 0; i < order; i++ {
		zeros = append(zeros, 1, -1)
		gainNum *= complex(2*fs, 0)
	}
	for _, p := range analogPoles {
		poles = append(poles, (complex(2*fs, 0)+p)/(complex(2*fs, 0)-p))
		gainDen *= complex(2*fs, 0) - p
	}
	gain := real(gainNum / gainDen)

	b := polyFromRoots(zeros)
	for idx := range b {
		b[idx] *= gain
	}

	return Coefficients{
		B: b,
		A: polyFromRoots(poles),
	}, nil
}

// butterworthPrototypePoles returns the poles of the analog
// Butterworth low-pass prototype with the cutoff at 1 rad/s.
func butterworthPrototypePoles(order int) []complex128 {
	poles := make([]complex128, order)
	for i := range poles {
		m := float64(-order + 1 + 2*i)
		poles[i] = -cmplx.Exp(complex(0, math.Pi*m/float64(2*order)))
	}
	return poles
}

// polyFromRoots expands prod(x - r) and returns the real parts of
// its coefficients, highest power first.
func polyFromRoots(roots []complex128) []float64 {
	c := make([]complex128, 1, len(roots)+1)
	c[0] = 1
	for _, r := range roots {
		c = append(c, 0)
		for i := len(c) - 1; i > 0; i-- {
			c[i] -= r * c[i-1]
		}
	}
	result := make([]float64, len(c))
	for i, v := range c {
		result[i] = real(v)
	}
	return result
}
