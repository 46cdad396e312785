package bandpass

import (
	"fmt"
	"math"
)

const (
	DefaultSampleRate = 44100
	DefaultLowCutoff  = 120
	DefaultHighCutoff = 4000
	DefaultOrder      = 6
)

// FilterSpec is the immutable configuration of a band-pass filter.
//
// The cutoffs are in Hz and must satisfy 0 < LowCutoff < HighCutoff < SampleRate/2.
type FilterSpec struct {
	SampleRate float64
	LowCutoff  float64
	HighCutoff float64
	Order      int
}

func DefaultFilterSpec() FilterSpec {
	return FilterSpec{
		SampleRate: DefaultSampleRate,
		LowCutoff:  DefaultLowCutoff,
		HighCutoff: DefaultHighCutoff,
		Order:      DefaultOrder,
	}
}

func (s FilterSpec) String() string {
	return fmt.Sprintf("{rate:%g low:%g high:%g order:%d}", s.SampleRate, s.LowCutoff, s.HighCutoff, s.Order)
}

func (s FilterSpec) Nyquist() float64 {
	return s.SampleRate / 2
}

// Normalized returns the cutoffs as fractions of the Nyquist frequency.
func (s FilterSpec) Normalized() (low, high float64, _err error) {
	if s.Order < 1 {
		return 0, 0, ErrInvalidFilterSpec{Spec: s, Reason: "the order must be positive"}
	}
	if !(s.SampleRate > 0) || math.IsInf(s.SampleRate, 0) {
		return 0, 0, ErrInvalidFilterSpec{Spec: s, Reason: "the sample rate must be a positive finite number"}
	}
	low = s.LowCutoff / s.Nyquist()
	high = s.HighCutoff / s.Nyquist()
	if !(0 < low && low < high && high < 1) {
		return 0, 0, ErrInvalidFilterSpec{
			Spec:   s,
			Reason: fmt.Sprintf("expected 0 < low < high < 1 after normalization, got low=%g high=%g", low, high),
		}
	}
	return low, high, nil
}

func (s FilterSpec) Validate() error {
	_, _, err := s.Normalized()
	return err
}
