package audio

import (
	"context"
	"io"
)

// Processor is anything consuming PCM of a fixed format.
type Processor interface {
	io.Closer

	Encoding(context.Context) (Encoding, error)
	Channels(context.Context) (Channel, error)
}
