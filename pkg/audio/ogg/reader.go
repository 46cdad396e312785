// Package ogg decodes Ogg Vorbis into interleaved float32 little-endian PCM.
package ogg

import (
	"errors"
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"
	"github.com/xaionaro-go/voiceenhance/pkg/audio"
	"github.com/xaionaro-go/voiceenhance/pkg/audio/resampler"
)

const (
	decodeBufferSamples = 8192
)

// decoder is the subset of *oggvorbis.Reader used by Reader.
type decoder interface {
	Read([]float32) (int, error)
	Channels() int
	SampleRate() int
}

type Reader struct {
	decoder decoder
	samples []float32
	encoded []byte
	pending []byte
}

var _ io.Reader = (*Reader)(nil)

func NewReader(in io.Reader) (*Reader, error) {
	d, err := oggvorbis.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the Ogg Vorbis decoder: %w", err)
	}
	return newReader(d)
}

func newReader(d decoder) (*Reader, error) {
	channels := d.Channels()
	if channels <= 0 {
		return nil, fmt.Errorf("invalid amount of channels: %d", channels)
	}
	// whole frames only
	bufSamples := decodeBufferSamples / channels * channels
	return &Reader{
		decoder: d,
		samples: make([]float32, bufSamples),
		encoded: make([]byte, bufSamples*4),
	}, nil
}

// Format is the format of the bytes returned by Read.
func (r *Reader) Format() resampler.Format {
	return resampler.Format{
		Channels:   audio.Channel(r.decoder.Channels()),
		SampleRate: audio.SampleRate(r.decoder.SampleRate()),
		PCMFormat:  audio.PCMFormatFloat32LE,
	}
}

func (r *Reader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		n, err := r.decoder.Read(r.samples)
		if n > 0 {
			pending, err := audio.SamplesToFloat32LE(r.encoded[:n*4], r.samples[:n])
			if err != nil {
				return 0, err
			}
			r.pending = pending
			break
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			return 0, fmt.Errorf("unable to decode: %w", err)
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
