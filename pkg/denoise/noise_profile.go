package denoise

// NoiseProfile is the running estimate of the noise magnitude spectrum.
//
// The zero value is an uninitialized profile: it is established from
// the first chunk it sees and then follows an exponential moving
// average of the observed magnitude spectra.
type NoiseProfile struct {
	magnitudes  []float64
	chunkLength int
}

func (p *NoiseProfile) IsInitialized() bool {
	return p.magnitudes != nil
}

// ChunkLength returns the length of the chunks the profile accepts,
// or zero if the profile is not initialized yet.
func (p *NoiseProfile) ChunkLength() int {
	return p.chunkLength
}

// Magnitudes returns a copy of the current estimate.
func (p *NoiseProfile) Magnitudes() []float64 {
	if p.magnitudes == nil {
		return nil
	}
	return append([]float64(nil), p.magnitudes...)
}

func (p *NoiseProfile) Reset() {
	p.magnitudes = nil
	p.chunkLength = 0
}
