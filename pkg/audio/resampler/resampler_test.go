package resampler

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/voiceenhance/pkg/audio"
)

func readAll(t *testing.T, inFmt Format, data []byte, outFmt Format) []byte {
	r, err := NewResampler(inFmt, bytes.NewReader(data), outFmt)
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return out
}

func float32sFromLE(b []byte) []float32 {
	res := make([]float32, len(b)/4)
	for i := range res {
		res[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return res
}

func TestResampler(t *testing.T) {
	t.Run("Identity_S16LE_Mono_44100", func(t *testing.T) {
		inFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  audio.PCMFormatS16LE,
		}
		// S16 is 2 bytes per sample. 100 samples = 200 bytes.
		data := make([]byte, 200)
		for i := 0; i < 100; i++ {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(i*100))
		}
		out := readAll(t, inFmt, data, inFmt)
		assert.Equal(t, data, out)
	})

	t.Run("Conversion_U8_to_Float32LE_Mono", func(t *testing.T) {
		inFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  audio.PCMFormatU8,
		}
		outFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  audio.PCMFormatFloat32LE,
		}
		// 128 in U8 is approx 0.0 in Float32
		out := float32sFromLE(readAll(t, inFmt, []byte{0, 128, 255}, outFmt))
		require.Len(t, out, 3)
		assert.InDelta(t, -1.0, out[0], 0.01)
		assert.InDelta(t, 0.0, out[1], 0.01)
		assert.InDelta(t, 1.0, out[2], 0.01)
	})

	t.Run("Resampling_44100_to_22050", func(t *testing.T) {
		inFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  audio.PCMFormatU8,
		}
		outFmt := Format{
			Channels:   1,
			SampleRate: 22050,
			PCMFormat:  audio.PCMFormatU8,
		}
		data := make([]byte, 100)
		for i := range data {
			data[i] = byte(i)
		}
		out := readAll(t, inFmt, data, outFmt)
		require.Len(t, out, 50)
		for i := range out {
			assert.Equal(t, data[i*2], out[i])
		}
	})

	t.Run("Resampling_22050_to_44100_interpolates", func(t *testing.T) {
		inFmt := Format{
			Channels:   1,
			SampleRate: 22050,
			PCMFormat:  audio.PCMFormatFloat32LE,
		}
		outFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  audio.PCMFormatFloat32LE,
		}
		in, err := audio.SamplesToFloat32LE(nil, []float32{0, 1, 0})
		require.NoError(t, err)
		out := float32sFromLE(readAll(t, inFmt, in, outFmt))
		assert.Equal(t, []float32{0, 0.5, 1, 0.5, 0, 0}, out)
	})

	t.Run("Channels_Mono_to_Stereo", func(t *testing.T) {
		inFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  audio.PCMFormatU8,
		}
		outFmt := Format{
			Channels:   2,
			SampleRate: 44100,
			PCMFormat:  audio.PCMFormatU8,
		}
		out := readAll(t, inFmt, []byte{10, 20, 30}, outFmt)
		assert.Equal(t, []byte{10, 10, 20, 20, 30, 30}, out)
	})

	t.Run("Channels_Stereo_to_Mono", func(t *testing.T) {
		inFmt := Format{
			Channels:   2,
			SampleRate: 44100,
			PCMFormat:  audio.PCMFormatU8,
		}
		outFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  audio.PCMFormatU8,
		}
		out := readAll(t, inFmt, []byte{100, 200, 50, 150}, outFmt)
		// (100+200)/2 = 150, (50+150)/2 = 100
		assert.Equal(t, []byte{150, 100}, out)
	})

	t.Run("partial_frames_across_reads", func(t *testing.T) {
		inFmt := Format{
			Channels:   1,
			SampleRate: 44100,
			PCMFormat:  audio.PCMFormatS16LE,
		}
		data := []byte{1, 0, 2, 0, 3, 0, 4, 0}
		r, err := NewResampler(inFmt, io.MultiReader(
			bytes.NewReader(data[:3]),
			bytes.NewReader(data[3:]),
		), inFmt)
		require.NoError(t, err)
		out, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, data, out)
	})

	t.Run("unsupported_channels", func(t *testing.T) {
		_, err := NewResampler(
			Format{Channels: 2, SampleRate: 44100, PCMFormat: audio.PCMFormatU8},
			bytes.NewReader(nil),
			Format{Channels: 3, SampleRate: 44100, PCMFormat: audio.PCMFormatU8},
		)
		require.Error(t, err)
	})
}
