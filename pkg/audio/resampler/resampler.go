package resampler

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/xaionaro-go/voiceenhance/pkg/audio"
)

const (
	defaultReadFrames = 4096
)

type Format struct {
	Channels   audio.Channel
	SampleRate audio.SampleRate
	PCMFormat  audio.PCMFormat
}

func (f Format) frameSize() uint {
	return f.PCMFormat.Size() * uint(f.Channels)
}

// Resampler is an io.Reader converting PCM read from inReader
// into another format, sample rate and channel layout.
//
// Channels could be converted only from/to mono or between equal
// channel counts: mono is repeated to every output channel, and
// multiple input channels are averaged into mono.
//
// Samples are linearly interpolated between input frames.
type Resampler struct {
	inReader  io.Reader
	inFormat  Format
	outFormat Format
	step      float64

	locker   sync.Mutex
	readBuf  []byte
	pending  []byte
	backlog  []byte
	prev     []float64
	cur      []float64
	havePrev bool
	pos      float64
	inEOF    bool
	flushed  bool
}

var _ io.Reader = (*Resampler)(nil)

func NewResampler(
	inFormat Format,
	inReader io.Reader,
	outFormat Format,
) (*Resampler, error) {
	r := &Resampler{
		inReader:  inReader,
		inFormat:  inFormat,
		outFormat: outFormat,
	}
	err := r.init()
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a resampler from %#+v to %#+v: %w", inFormat, outFormat, err)
	}
	return r, nil
}

func (r *Resampler) init() error {
	for _, f := range []Format{r.inFormat, r.outFormat} {
		if f.PCMFormat.Size() == 0 {
			return fmt.Errorf("unsupported PCM format: %v", f.PCMFormat)
		}
		if f.Channels == 0 {
			return fmt.Errorf("the amount of channels must be positive")
		}
		if f.SampleRate == 0 {
			return fmt.Errorf("the sample rate must be positive")
		}
	}
	if r.inFormat.Channels != r.outFormat.Channels &&
		r.inFormat.Channels != 1 && r.outFormat.Channels != 1 {
		return fmt.Errorf("do not know how to convert %d channels to %d", r.inFormat.Channels, r.outFormat.Channels)
	}

	r.step = float64(r.inFormat.SampleRate) / float64(r.outFormat.SampleRate)
	r.prev = make([]float64, r.outFormat.Channels)
	r.cur = make([]float64, r.outFormat.Channels)
	return nil
}

func (r *Resampler) Read(p []byte) (int, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	outFrameSize := int(r.outFormat.frameSize())
	if len(p) < outFrameSize {
		return 0, fmt.Errorf("the provided output buffer is too short: %d < %d", len(p), outFrameSize)
	}
	p = p[:len(p)/outFrameSize*outFrameSize]

	for len(r.backlog) == 0 {
		if r.flushed {
			return 0, io.EOF
		}
		if err := r.fill(len(p) / outFrameSize); err != nil {
			return 0, err
		}
	}

	n := copy(p, r.backlog)
	r.backlog = r.backlog[n:]
	return n, nil
}

func (r *Resampler) fill(wantOutFrames int) error {
	if r.inEOF {
		r.flush()
		return nil
	}

	inFrameSize := int(r.inFormat.frameSize())
	inFrames := int(float64(wantOutFrames)*r.step) + 1
	if inFrames > defaultReadFrames {
		inFrames = defaultReadFrames
	}
	bufSize := inFrames * inFrameSize
	if cap(r.readBuf) < bufSize {
		r.readBuf = make([]byte, bufSize)
	}
	buf := r.readBuf[:bufSize]

	n, err := r.inReader.Read(buf)
	switch {
	case errors.Is(err, io.EOF):
		r.inEOF = true
	case err != nil:
		return fmt.Errorf("unable to read from the input: %w", err)
	}

	r.pending = append(r.pending, buf[:n]...)
	complete := len(r.pending) / inFrameSize * inFrameSize
	for off := 0; off < complete; off += inFrameSize {
		r.decodeFrame(r.pending[off : off+inFrameSize])
		r.consumeFrame()
	}
	r.pending = append(r.pending[:0], r.pending[complete:]...)

	if r.inEOF {
		r.flush()
	}
	return nil
}

func (r *Resampler) decodeFrame(frame []byte) {
	sampleSize := int(r.inFormat.PCMFormat.Size())
	inChannels := int(r.inFormat.Channels)
	outChannels := int(r.outFormat.Channels)

	switch {
	case inChannels == outChannels:
		for ch := 0; ch < inChannels; ch++ {
			r.cur[ch] = audio.GetFloat64(r.inFormat.PCMFormat, frame[ch*sampleSize:])
		}
	case inChannels == 1:
		v := audio.GetFloat64(r.inFormat.PCMFormat, frame)
		for ch := range r.cur {
			r.cur[ch] = v
		}
	default:
		var sum float64
		for ch := 0; ch < inChannels; ch++ {
			sum += audio.GetFloat64(r.inFormat.PCMFormat, frame[ch*sampleSize:])
		}
		r.cur[0] = sum / float64(inChannels)
	}
}

func (r *Resampler) consumeFrame() {
	if !r.havePrev {
		copy(r.prev, r.cur)
		r.havePrev = true
		return
	}
	for r.pos < 1 {
		r.emit(r.pos)
		r.pos += r.step
	}
	r.pos -= 1
	copy(r.prev, r.cur)
}

func (r *Resampler) flush() {
	if r.flushed {
		return
	}
	r.flushed = true
	if !r.havePrev {
		return
	}
	copy(r.cur, r.prev)
	for r.pos < 1 {
		r.emit(r.pos)
		r.pos += r.step
	}
}

func (r *Resampler) emit(pos float64) {
	sampleSize := int(r.outFormat.PCMFormat.Size())
	off := len(r.backlog)
	r.backlog = append(r.backlog, make([]byte, int(r.outFormat.frameSize()))...)
	for ch := range r.prev {
		v := r.prev[ch] + (r.cur[ch]-r.prev[ch])*pos
		audio.SetFloat64(r.outFormat.PCMFormat, r.backlog[off+ch*sampleSize:], v)
	}
}
