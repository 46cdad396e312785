package client

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/voiceenhance/pkg/audio"
	"github.com/xaionaro-go/voiceenhance/pkg/noisesuppression"
)

// NoiseSuppression delegates the noise suppression to a remote server,
// so it could be used wherever a local implementation is.
type NoiseSuppression struct {
	*Client
	SampleRate   audio.SampleRate
	ChunkSamples uint
}

var _ noisesuppression.NoiseSuppression = (*NoiseSuppression)(nil)

func NewNoiseSuppression(
	c *Client,
	sampleRate audio.SampleRate,
	chunkSamples uint,
) *NoiseSuppression {
	return &NoiseSuppression{
		Client:       c,
		SampleRate:   sampleRate,
		ChunkSamples: chunkSamples,
	}
}

func (ns *NoiseSuppression) Encoding(context.Context) (audio.Encoding, error) {
	return audio.EncodingPCM{
		PCMFormat:  audio.PCMFormatFloat32LE,
		SampleRate: ns.SampleRate,
	}, nil
}

func (ns *NoiseSuppression) Channels(context.Context) (audio.Channel, error) {
	return 1, nil
}

func (ns *NoiseSuppression) ChunkSize() uint {
	return ns.ChunkSamples * 4
}

func (ns *NoiseSuppression) SuppressNoise(ctx context.Context, input []byte, outputVoice []byte) (float64, error) {
	if len(input) != len(outputVoice) {
		return 0, fmt.Errorf("lengths of input and output slices are not equal: %d != %d", len(input), len(outputVoice))
	}
	response, err := ns.EnhanceRaw(ctx, input)
	if err != nil {
		return 0, err
	}
	if len(response) != len(input) {
		return 0, fmt.Errorf("the server replied with %d bytes to %d bytes", len(response), len(input))
	}
	copy(outputVoice, response)

	var inEnergy, outEnergy float64
	inSamples, err := audio.Float32LEToSamples(input)
	if err != nil {
		return 0, err
	}
	outSamples, err := audio.Float32LEToSamples(outputVoice)
	if err != nil {
		return 0, err
	}
	for idx := range inSamples {
		inEnergy += float64(inSamples[idx]) * float64(inSamples[idx])
		outEnergy += float64(outSamples[idx]) * float64(outSamples[idx])
	}
	if inEnergy == 0 {
		return 1, nil
	}
	return outEnergy / inEnergy, nil
}
