package voicefilter

import (
	"fmt"
)

// ErrMalformedChunk is returned for raw input that is not
// a whole (and non-zero) number of float32 samples.
type ErrMalformedChunk struct {
	Length int
}

func (e ErrMalformedChunk) Error() string {
	return fmt.Sprintf("the chunk of %d bytes is not a non-empty sequence of %d-byte samples", e.Length, sampleSize)
}

type ErrSessionTerminated struct {
	Cause error
}

func (e ErrSessionTerminated) Error() string {
	return fmt.Sprintf("the session is terminated: %v", e.Cause)
}

func (e ErrSessionTerminated) Unwrap() error {
	return e.Cause
}
