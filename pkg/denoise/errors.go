package denoise

import (
	"fmt"
)

// ErrChunkLengthMismatch is returned when a chunk has a different length
// than the chunk the noise profile was established from.
type ErrChunkLengthMismatch struct {
	Expected int
	Actual   int
}

func (e ErrChunkLengthMismatch) Error() string {
	return fmt.Sprintf("the chunk length %d does not match the noise profile chunk length %d", e.Actual, e.Expected)
}

type ErrEmptyChunk struct{}

func (ErrEmptyChunk) Error() string {
	return "the chunk is empty"
}

type ErrInvalidSmoothing struct {
	Smoothing float64
}

func (e ErrInvalidSmoothing) Error() string {
	return fmt.Sprintf("the smoothing factor must be within (0, 1), but got %v", e.Smoothing)
}
