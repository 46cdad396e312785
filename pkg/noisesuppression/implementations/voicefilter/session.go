// Package voicefilter implements noise suppression for a single voice
// stream: a Butterworth band-pass limiting the signal to the voice band,
// followed by spectral subtraction of a smoothed noise estimate.
package voicefilter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/google/uuid"
	"github.com/xaionaro-go/voiceenhance/pkg/audio"
	"github.com/xaionaro-go/voiceenhance/pkg/bandpass"
	"github.com/xaionaro-go/voiceenhance/pkg/denoise"
	"github.com/xaionaro-go/voiceenhance/pkg/noisesuppression"
	"github.com/xaionaro-go/voiceenhance/pkg/spectral"
	_ "github.com/xaionaro-go/voiceenhance/pkg/spectral/implementations/godsp"
	_ "github.com/xaionaro-go/voiceenhance/pkg/spectral/implementations/radix2"
)

const (
	sampleSize = 4
)

// Session is the processing state of one audio stream. Chunks are
// processed strictly one after another, in the order of the calls.
type Session struct {
	id           string
	config       Config
	coefficients bandpass.Coefficients

	locker    sync.Mutex
	denoiser  *denoise.Denoiser
	processed uint64
	failure   error
}

var _ noisesuppression.NoiseSuppression = (*Session)(nil)

func New(cfg Config) (*Session, error) {
	var (
		coefficients bandpass.Coefficients
		err          error
	)
	if cfg.Cache != nil {
		coefficients, err = cfg.Cache.Get(cfg.Filter)
	} else {
		coefficients, err = bandpass.Design(cfg.Filter)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to design the band-pass filter: %w", err)
	}

	transformer, err := spectral.New(cfg.Transformer)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the spectral transformer: %w", err)
	}

	denoiser, err := denoise.New(cfg.Smoothing, transformer)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the denoiser: %w", err)
	}

	return &Session{
		id:           uuid.NewString(),
		config:       cfg,
		coefficients: coefficients,
		denoiser:     denoiser,
	}, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Config() Config {
	return s.config
}

// Processed returns the amount of chunks successfully processed so far.
func (s *Session) Processed() uint64 {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.processed
}

// NoiseProfile returns a copy of the current noise estimate.
func (s *Session) NoiseProfile() []float64 {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.denoiser.Profile.Magnitudes()
}

// Process band-passes and denoises one chunk.
//
// An error caused by the chunk itself (see ErrMalformedChunk,
// denoise.ErrChunkLengthMismatch) terminates the session: every
// following call returns ErrSessionTerminated.
func (s *Session) Process(ctx context.Context, chunk []float32) (_ret []float32, _err error) {
	logger.Tracef(ctx, "Process[%s], len:%d", s.id, len(chunk))
	defer func() { logger.Tracef(ctx, "/Process[%s], len:%d: %v", s.id, len(chunk), _err) }()

	s.locker.Lock()
	defer s.locker.Unlock()
	if s.failure != nil {
		return nil, ErrSessionTerminated{Cause: s.failure}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filtered := bandpass.Apply(chunk, s.coefficients)
	enhanced, err := s.denoiser.Enhance(filtered)
	if err != nil {
		s.failure = err
		return nil, fmt.Errorf("unable to denoise chunk #%d: %w", s.processed, err)
	}
	s.processed++
	return enhanced, nil
}

func (s *Session) Close() error {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.denoiser.Profile.Reset()
	if s.failure == nil {
		s.failure = errors.New("closed")
	}
	return nil
}

func (s *Session) Encoding(context.Context) (audio.Encoding, error) {
	return audio.EncodingPCM{
		PCMFormat:  audio.PCMFormatFloat32LE,
		SampleRate: audio.SampleRate(s.config.Filter.SampleRate),
	}, nil
}

func (s *Session) Channels(context.Context) (audio.Channel, error) {
	return 1, nil
}

func (s *Session) ChunkSize() uint {
	return s.config.ChunkSamples * sampleSize
}

// SuppressNoise processes one chunk of little-endian float32 samples.
func (s *Session) SuppressNoise(ctx context.Context, input []byte, outputVoice []byte) (_ret float64, _err error) {
	logger.Tracef(ctx, "SuppressNoise, len:%d", len(input))
	defer func() { logger.Tracef(ctx, "/SuppressNoise, len:%d: %v %v", len(input), _ret, _err) }()

	if len(input) == 0 || len(input)%sampleSize != 0 {
		err := ErrMalformedChunk{Length: len(input)}
		s.locker.Lock()
		if s.failure == nil {
			s.failure = err
		}
		s.locker.Unlock()
		return 0, err
	}
	if len(input) != len(outputVoice) {
		return 0, fmt.Errorf("lengths of input and output slices are not equal: %d != %d", len(input), len(outputVoice))
	}

	samples, err := audio.Float32LEToSamples(input)
	if err != nil {
		return 0, fmt.Errorf("unable to decode the samples: %w", err)
	}
	enhanced, err := s.Process(ctx, samples)
	if err != nil {
		return 0, err
	}
	if _, err := audio.SamplesToFloat32LE(outputVoice, enhanced); err != nil {
		return 0, fmt.Errorf("unable to encode the samples: %w", err)
	}
	return energyRatio(samples, enhanced), nil
}

func energyRatio(input, output []float32) float64 {
	var inEnergy, outEnergy float64
	for idx := range input {
		inEnergy += float64(input[idx]) * float64(input[idx])
		outEnergy += float64(output[idx]) * float64(output[idx])
	}
	if inEnergy == 0 {
		return 1
	}
	return outEnergy / inEnergy
}
