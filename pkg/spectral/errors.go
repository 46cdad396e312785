package spectral

import (
	"fmt"
)

type ErrSpectrumLength struct {
	Bins    int
	Samples int
}

func (e ErrSpectrumLength) Error() string {
	return fmt.Sprintf("a spectrum of %d bins does not correspond to %d samples (expected %d bins)", e.Bins, e.Samples, BinCount(e.Samples))
}
