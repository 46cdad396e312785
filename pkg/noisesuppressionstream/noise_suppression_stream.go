package noisesuppressionstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/iamcalledrob/circular"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/voiceenhance/pkg/noisesuppression"
)

const (
	readBufferSize = 65536
)

// NoiseSuppressionStream is an io.Reader returning the noise-suppressed
// version of the input reader.
//
// The input is cut into chunks of NoiseSuppression.ChunkSize() bytes
// which are processed one by one in order. The last chunk is zero-padded
// before the processing and truncated back afterwards.
type NoiseSuppressionStream struct {
	noisesuppression.NoiseSuppression
	chunkSize   int
	sampleWidth int

	locker       sync.Mutex
	inputBuffer  *circular.Buffer
	outputBuffer *circular.Buffer
	inputEOF     bool
	outputEOF    bool
	resultError  error
	progressCh   chan struct{}

	readCtx    context.Context
	cancelFunc context.CancelFunc
	loopsWG    sync.WaitGroup
}

var _ io.ReadCloser = (*NoiseSuppressionStream)(nil)

func NewNoiseSuppressionStream(
	ctx context.Context,
	input io.Reader,
	noiseSuppression noisesuppression.NoiseSuppression,
	inputBufferSize uint,
	outputBufferSize uint,
) (*NoiseSuppressionStream, error) {
	encoding, err := noiseSuppression.Encoding(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to get the encoding of the noise suppression: %w", err)
	}
	channels, err := noiseSuppression.Channels(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to get the amount of channels of the noise suppression: %w", err)
	}
	sampleWidth := int(encoding.BytesPerSample()) * int(channels)
	chunkSize := int(noiseSuppression.ChunkSize())
	if sampleWidth <= 0 {
		return nil, fmt.Errorf("invalid sample width: %d", sampleWidth)
	}
	if chunkSize <= 0 || chunkSize%sampleWidth != 0 {
		return nil, fmt.Errorf("the chunk size %d is not a positive multiple of %d", chunkSize, sampleWidth)
	}
	if inputBufferSize < uint(chunkSize) || outputBufferSize < uint(chunkSize) {
		return nil, fmt.Errorf("the buffers (%d, %d) must fit at least one chunk of %d bytes", inputBufferSize, outputBufferSize, chunkSize)
	}

	ctx, cancelFunc := context.WithCancel(ctx)
	s := &NoiseSuppressionStream{
		NoiseSuppression: noiseSuppression,
		chunkSize:        chunkSize,
		sampleWidth:      sampleWidth,
		inputBuffer:      circular.NewBuffer(int(inputBufferSize)),
		outputBuffer:     circular.NewBuffer(int(outputBufferSize)),
		progressCh:       make(chan struct{}),
		readCtx:          ctx,
		cancelFunc:       cancelFunc,
	}

	readSize := min(readBufferSize, int(inputBufferSize))
	s.loopsWG.Add(2)
	observability.Go(ctx, func() {
		defer s.loopsWG.Done()
		err := s.readerLoop(ctx, input, readSize)
		if err != nil {
			s.fail(fmt.Errorf("got an error from the reader loop: %w", err))
		}
	})
	observability.Go(ctx, func() {
		defer s.loopsWG.Done()
		err := s.noiseSuppressionLoop(ctx)
		if err != nil {
			s.fail(fmt.Errorf("got an error from the noise suppressor loop: %w", err))
		}
	})
	return s, nil
}

func (s *NoiseSuppressionStream) fail(err error) {
	s.locker.Lock()
	if s.resultError == nil {
		s.resultError = err
	}
	s.signalProgress()
	s.locker.Unlock()
	s.cancelFunc()
}

// signalProgress wakes up everybody waiting in waitForProgress;
// s.locker must be held.
func (s *NoiseSuppressionStream) signalProgress() {
	close(s.progressCh)
	s.progressCh = make(chan struct{})
}

// waitForProgress must be called with s.locker held; the lock is
// released while waiting.
func (s *NoiseSuppressionStream) waitForProgress(ctx context.Context) {
	ch := s.progressCh
	s.locker.Unlock()
	defer s.locker.Lock()
	select {
	case <-ctx.Done():
	case <-ch:
	}
}

func (s *NoiseSuppressionStream) readerLoop(
	ctx context.Context,
	input io.Reader,
	readSize int,
) (_err error) {
	logger.Tracef(ctx, "readerLoop")
	defer func() { logger.Tracef(ctx, "/readerLoop %v", _err) }()

	readBuf := make([]byte, readSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := input.Read(readBuf)
		logger.Tracef(ctx, "readerLoop: Read(): %v %v", n, readErr)
		if n < 0 {
			return fmt.Errorf("received invalid value of received bytes: %d", n)
		}
		if n > 0 {
			if err := s.pushInput(ctx, readBuf[:n]); err != nil {
				return err
			}
		}

		switch {
		case readErr == nil:
		case errors.Is(readErr, io.EOF):
			s.locker.Lock()
			s.inputEOF = true
			s.signalProgress()
			s.locker.Unlock()
			return nil
		default:
			return fmt.Errorf("unable to read the input: %w", readErr)
		}
	}
}

func (s *NoiseSuppressionStream) pushInput(ctx context.Context, data []byte) error {
	return s.push(ctx, s.inputBuffer, data)
}

// push writes all of data into buf, waiting for free space as needed;
// buf.Write stores as much as fits before reporting ErrNoSpace.
func (s *NoiseSuppressionStream) push(ctx context.Context, buf *circular.Buffer, data []byte) error {
	s.locker.Lock()
	defer s.locker.Unlock()
	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		w, err := buf.Write(data)
		if w < 0 || w > len(data) {
			return fmt.Errorf("invalid amount of written bytes: %d (of %d)", w, len(data))
		}
		data = data[w:]
		if w > 0 {
			s.signalProgress()
		}
		switch {
		case err == nil:
		case errors.Is(err, circular.ErrNoSpace):
			if len(data) > 0 {
				s.waitForProgress(ctx)
			}
		default:
			return fmt.Errorf("unable to write to the circular buffer: %w", err)
		}
	}
	return nil
}

// pullChunk fills buf with the next chunk; it returns less than len(buf)
// bytes only at the end of the input.
func (s *NoiseSuppressionStream) pullChunk(ctx context.Context, buf []byte) (int, error) {
	s.locker.Lock()
	defer s.locker.Unlock()

	received := 0
	for received < len(buf) {
		if err := ctx.Err(); err != nil {
			return received, err
		}
		n, err := s.inputBuffer.Read(buf[received:])
		if err != nil && !errors.Is(err, io.EOF) {
			return received, fmt.Errorf("unable to read from the circular buffer: %w", err)
		}
		if n < 0 {
			return received, fmt.Errorf("received a negative count: %d", n)
		}
		if n > 0 {
			received += n
			s.signalProgress()
			continue
		}
		if s.inputEOF {
			break
		}
		s.waitForProgress(ctx)
	}
	return received, nil
}

func (s *NoiseSuppressionStream) pushOutput(ctx context.Context, data []byte) error {
	return s.push(ctx, s.outputBuffer, data)
}

func (s *NoiseSuppressionStream) noiseSuppressionLoop(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "noiseSuppressionLoop")
	defer func() { logger.Tracef(ctx, "/noiseSuppressionLoop: %v", _err) }()

	logger.Debugf(ctx, "chunkSize: %d", s.chunkSize)
	inputBuf := make([]byte, s.chunkSize)
	outputBuf := make([]byte, s.chunkSize)
	for {
		received, err := s.pullChunk(ctx, inputBuf)
		if err != nil {
			return err
		}
		isLast := received < s.chunkSize
		if received%s.sampleWidth != 0 {
			return fmt.Errorf("the input ends with an incomplete sample: %d %% %d != 0", received, s.sampleWidth)
		}

		if received > 0 {
			clear(inputBuf[received:])
			logger.Tracef(ctx, "s.NoiseSuppression.SuppressNoise")
			_, err := s.NoiseSuppression.SuppressNoise(ctx, inputBuf, outputBuf)
			logger.Tracef(ctx, "/s.NoiseSuppression.SuppressNoise: %v", err)
			if err != nil {
				return fmt.Errorf("unable to noise-suppress: %w", err)
			}
			if err := s.pushOutput(ctx, outputBuf[:received]); err != nil {
				return err
			}
		}

		if isLast {
			s.locker.Lock()
			s.outputEOF = true
			s.signalProgress()
			s.locker.Unlock()
			return nil
		}
	}
}

func (s *NoiseSuppressionStream) Read(p []byte) (_ret int, _err error) {
	logger.Tracef(s.readCtx, "Read, len:%d", len(p))
	defer func() { logger.Tracef(s.readCtx, "/Read, len:%d: %d, %v", len(p), _ret, _err) }()

	s.locker.Lock()
	defer s.locker.Unlock()
	for {
		n, err := s.outputBuffer.Read(p)
		if err != nil && !errors.Is(err, io.EOF) {
			return n, err
		}
		if n > 0 {
			s.signalProgress()
			return n, nil
		}
		if s.resultError != nil {
			return 0, s.resultError
		}
		if s.outputEOF {
			return 0, io.EOF
		}
		if err := s.readCtx.Err(); err != nil {
			return 0, err
		}
		s.waitForProgress(s.readCtx)
	}
}

// Close stops the processing and closes the underlying NoiseSuppression.
func (s *NoiseSuppressionStream) Close() error {
	s.cancelFunc()
	s.loopsWG.Wait()
	return s.NoiseSuppression.Close()
}
