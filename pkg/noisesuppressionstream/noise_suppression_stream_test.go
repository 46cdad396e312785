package noisesuppressionstream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/voiceenhance/pkg/audio"
	"github.com/xaionaro-go/voiceenhance/pkg/noisesuppression"
	"github.com/xaionaro-go/voiceenhance/pkg/noisesuppression/implementations/voicefilter"
)

func randomSamples(n int, seed int64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	result := make([]float32, n)
	for i := range result {
		result[i] = float32(rng.Float64()*2-1) * 0.3
	}
	return result
}

func encode(t *testing.T, samples []float32) []byte {
	b, err := audio.SamplesToFloat32LE(nil, samples)
	require.NoError(t, err)
	return b
}

func newDummy(chunkSize uint) *noisesuppression.Dummy {
	return noisesuppression.NewDummy(
		audio.EncodingPCM{PCMFormat: audio.PCMFormatFloat32LE, SampleRate: 44100},
		1,
		chunkSize,
	)
}

// oneByteReader makes the stream deal with reads not aligned to anything.
type oneByteReader struct {
	io.Reader
}

func (r oneByteReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return r.Reader.Read(p)
}

type failingSuppression struct {
	*noisesuppression.Dummy
}

func (failingSuppression) SuppressNoise(context.Context, []byte, []byte) (float64, error) {
	return 0, errors.New("boom")
}

func TestStreamPassthrough(t *testing.T) {
	ctx := context.Background()
	for _, sampleCount := range []int{0, 1, 16, 250, 4096} {
		input := encode(t, randomSamples(sampleCount, int64(sampleCount)))
		s, err := NewNoiseSuppressionStream(ctx, bytes.NewReader(input), newDummy(64), 256, 128)
		require.NoError(t, err)

		output, err := io.ReadAll(s)
		require.NoError(t, err)
		require.Equal(t, len(input), len(output), "samples: %d", sampleCount)
		assert.Equal(t, input, output)
		require.NoError(t, s.Close())
	}
}

func TestStreamUnalignedReads(t *testing.T) {
	input := encode(t, randomSamples(100, 1))
	s, err := NewNoiseSuppressionStream(context.Background(), oneByteReader{bytes.NewReader(input)}, newDummy(32), 64, 64)
	require.NoError(t, err)
	defer s.Close()

	output, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, input, output)
}

func TestStreamVoiceFilter(t *testing.T) {
	ctx := context.Background()
	cfg := voicefilter.DefaultConfig()
	cfg.ChunkSamples = 256

	samples := randomSamples(5*256+100, 2)

	reference, err := voicefilter.New(cfg)
	require.NoError(t, err)
	var expected []float32
	for offset := 0; offset < len(samples); offset += 256 {
		chunk := make([]float32, 256)
		n := copy(chunk, samples[offset:])
		out, err := reference.Process(ctx, chunk)
		require.NoError(t, err)
		expected = append(expected, out[:n]...)
	}

	session, err := voicefilter.New(cfg)
	require.NoError(t, err)
	s, err := NewNoiseSuppressionStream(ctx, bytes.NewReader(encode(t, samples)), session, 4096, 4096)
	require.NoError(t, err)
	defer s.Close()

	output, err := io.ReadAll(s)
	require.NoError(t, err)
	decoded, err := audio.Float32LEToSamples(output)
	require.NoError(t, err)
	require.Len(t, decoded, len(samples))
	assert.Equal(t, expected, decoded)
	assert.Equal(t, uint64(6), session.Processed())
}

func TestStreamErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("incomplete_sample", func(t *testing.T) {
		s, err := NewNoiseSuppressionStream(ctx, bytes.NewReader(make([]byte, 70)), newDummy(64), 128, 128)
		require.NoError(t, err)
		defer s.Close()
		_, err = io.ReadAll(s)
		require.Error(t, err)
	})

	t.Run("suppression_failure", func(t *testing.T) {
		s, err := NewNoiseSuppressionStream(ctx, bytes.NewReader(make([]byte, 640)), failingSuppression{newDummy(64)}, 128, 128)
		require.NoError(t, err)
		defer s.Close()
		_, err = io.ReadAll(s)
		require.ErrorContains(t, err, "boom")
	})

	t.Run("invalid_chunk_size", func(t *testing.T) {
		for _, chunkSize := range []uint{0, 6} {
			_, err := NewNoiseSuppressionStream(ctx, bytes.NewReader(nil), newDummy(chunkSize), 128, 128)
			require.Error(t, err, "chunk size: %d", chunkSize)
		}
	})

	t.Run("buffer_too_small", func(t *testing.T) {
		_, err := NewNoiseSuppressionStream(ctx, bytes.NewReader(nil), newDummy(64), 32, 128)
		require.Error(t, err)
	})
}

func TestStreamLargeInput(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name        string
		sampleCount int
		chunkSize   uint
		bufferSize  uint
	}{
		{name: "cli_buffers", sampleCount: 3 << 18, chunkSize: 4096, bufferSize: 1 << 20},
		{name: "input_exceeds_buffers", sampleCount: 1 << 14, chunkSize: 32, bufferSize: 96},
	} {
		t.Run(tc.name, func(t *testing.T) {
			input := encode(t, randomSamples(tc.sampleCount, int64(tc.sampleCount)))
			s, err := NewNoiseSuppressionStream(ctx, bytes.NewReader(input), newDummy(tc.chunkSize), tc.bufferSize, tc.bufferSize)
			require.NoError(t, err)
			defer s.Close()

			output, err := io.ReadAll(s)
			require.NoError(t, err)
			require.Equal(t, len(input), len(output))
			assert.True(t, bytes.Equal(input, output))
		})
	}
}
