package ogg

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/voiceenhance/pkg/audio"
	"github.com/xaionaro-go/voiceenhance/pkg/audio/resampler"
)

// scriptedDecoder returns the batches one per Read and then finalErr.
type scriptedDecoder struct {
	channels   int
	sampleRate int
	batches    [][]float32
	finalErr   error
}

func (d *scriptedDecoder) Read(p []float32) (int, error) {
	if len(d.batches) == 0 {
		return 0, d.finalErr
	}
	n := copy(p, d.batches[0])
	d.batches[0] = d.batches[0][n:]
	if len(d.batches[0]) == 0 {
		d.batches = d.batches[1:]
	}
	return n, nil
}

func (d *scriptedDecoder) Channels() int   { return d.channels }
func (d *scriptedDecoder) SampleRate() int { return d.sampleRate }

// readInPieces reads r to the end with a tiny buffer, so pending bytes
// are carried over between calls.
func readInPieces(r io.Reader, size int) ([]byte, error) {
	var result []byte
	buf := make([]byte, size)
	for {
		n, err := r.Read(buf)
		result = append(result, buf[:n]...)
		if err != nil {
			return result, err
		}
	}
}

func TestReader(t *testing.T) {
	batches := [][]float32{
		{0.5, -0.5, 0.25, -0.25},
		{},
		{1, -1},
		{0.125, 0},
	}
	var samples []float32
	for _, batch := range batches {
		samples = append(samples, batch...)
	}
	expected, err := audio.SamplesToFloat32LE(nil, samples)
	require.NoError(t, err)

	for _, pieceSize := range []int{1, 3, 8, 4096} {
		d := &scriptedDecoder{channels: 2, sampleRate: 48000, finalErr: io.EOF}
		for _, batch := range batches {
			d.batches = append(d.batches, append([]float32{}, batch...))
		}
		r, err := newReader(d)
		require.NoError(t, err)

		output, err := readInPieces(r, pieceSize)
		require.ErrorIs(t, err, io.EOF, "piece size: %d", pieceSize)
		assert.True(t, bytes.Equal(expected, output), "piece size: %d", pieceSize)

		n, err := r.Read(make([]byte, 4))
		assert.Zero(t, n)
		assert.ErrorIs(t, err, io.EOF)
	}
}

func TestReaderFormat(t *testing.T) {
	r, err := newReader(&scriptedDecoder{channels: 2, sampleRate: 44100, finalErr: io.EOF})
	require.NoError(t, err)
	assert.Equal(t, resampler.Format{
		Channels:   2,
		SampleRate: 44100,
		PCMFormat:  audio.PCMFormatFloat32LE,
	}, r.Format())
	assert.Zero(t, len(r.samples)%2)
}

func TestReaderErrors(t *testing.T) {
	t.Run("no_channels", func(t *testing.T) {
		_, err := newReader(&scriptedDecoder{sampleRate: 44100})
		require.Error(t, err)
	})

	t.Run("decode_failure", func(t *testing.T) {
		errBroken := errors.New("broken page")
		r, err := newReader(&scriptedDecoder{
			channels:   1,
			sampleRate: 16000,
			batches:    [][]float32{{0.5}},
			finalErr:   errBroken,
		})
		require.NoError(t, err)

		output, err := readInPieces(r, 16)
		require.ErrorIs(t, err, errBroken)
		assert.ErrorContains(t, err, "unable to decode")
		assert.Len(t, output, 4)
	})

	t.Run("not_ogg", func(t *testing.T) {
		_, err := NewReader(bytes.NewReader([]byte("definitely not an ogg stream")))
		require.Error(t, err)
	})
}
