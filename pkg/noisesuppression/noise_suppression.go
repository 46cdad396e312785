package noisesuppression

import (
	"context"

	"github.com/xaionaro-go/voiceenhance/pkg/audio"
)

type NoiseSuppression interface {
	audio.Processor

	// ChunkSize is the preferred size (in bytes) of the input
	// of SuppressNoise; zero means any size.
	ChunkSize() uint

	// SuppressNoise writes the enhanced version of input into
	// outputVoice (of the same length) and returns the ratio of
	// the output energy to the input energy.
	SuppressNoise(ctx context.Context, input []byte, outputVoice []byte) (float64, error)
}
