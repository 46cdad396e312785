package bandpass

import (
	"fmt"
)

// ErrInvalidFilterSpec is returned when a FilterSpec could not
// be turned into a band-pass filter.
type ErrInvalidFilterSpec struct {
	Spec   FilterSpec
	Reason string
}

func (e ErrInvalidFilterSpec) Error() string {
	return fmt.Sprintf("invalid filter spec %s: %s", e.Spec, e.Reason)
}
