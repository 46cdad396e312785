package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/voiceenhance/pkg/audio"
	"github.com/xaionaro-go/voiceenhance/pkg/audio/ogg"
	"github.com/xaionaro-go/voiceenhance/pkg/audio/resampler"
	"github.com/xaionaro-go/voiceenhance/pkg/client"
	"github.com/xaionaro-go/voiceenhance/pkg/config"
	"github.com/xaionaro-go/voiceenhance/pkg/noisesuppression"
	"github.com/xaionaro-go/voiceenhance/pkg/noisesuppression/implementations/voicefilter"
	"github.com/xaionaro-go/voiceenhance/pkg/noisesuppressionstream"
)

const (
	streamBufferSize = 1 << 20
)

func main() {
	loggerLevel := logger.LevelWarning
	pflag.Var(&loggerLevel, "log-level", "Log level")
	configPath := pflag.String("config", "", "path to a YAML config file")
	isS16Flag := pflag.Bool("s16", false, "a shorthand for --input-format=s16le --output-format=s16le")
	inputFormatFlag := pflag.String("input-format", "f32le", "PCM format of a raw input (ignored for .ogg)")
	outputFormatFlag := pflag.String("output-format", "f32le", "PCM format of the output")
	inputRate := pflag.Uint32("input-rate", 0, "sample rate of a raw input; defaults to the filter sample rate")
	inputChannels := pflag.Uint32("channels", 1, "amount of interleaved channels of a raw input; they are mixed down to mono")
	remoteURL := pflag.String("remote", "", "enhance using a server, e.g. ws://127.0.0.1:8000/process_audio")
	order := pflag.Int("order", 0, "override the filter order")
	lowCutoff := pflag.Float64("low-cutoff", 0, "override the low cutoff frequency (Hz)")
	highCutoff := pflag.Float64("high-cutoff", 0, "override the high cutoff frequency (Hz)")
	smoothing := pflag.Float64("smoothing", 0, "override the noise profile smoothing factor")
	fftBackend := pflag.String("fft-backend", "", "override the FFT backend")
	netPprofAddr := pflag.String("net-pprof-listen-addr", "", "an address to listen for incoming net/pprof connections")
	pflag.Parse()

	if pflag.NArg() != 2 {
		panic(fmt.Errorf("expected exactly two arguments: <input-file|-> <output-file|->"))
	}

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *netPprofAddr != "" {
		observability.Go(ctx, func() { l.Error(http.ListenAndServe(*netPprofAddr, nil)) })
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		assertNoError(err)
	}
	assertNoError(cfg.ApplyEnv(nil))
	if *order != 0 {
		cfg.Filter.Order = *order
	}
	if *lowCutoff != 0 {
		cfg.Filter.LowCutoff = *lowCutoff
	}
	if *highCutoff != 0 {
		cfg.Filter.HighCutoff = *highCutoff
	}
	if *smoothing != 0 {
		cfg.Denoise.Smoothing = *smoothing
	}
	if *fftBackend != "" {
		cfg.Denoise.FFTBackend = *fftBackend
	}
	assertNoError(cfg.Validate())
	logger.Debugf(ctx, "config: %s", cfg.Dump())

	inputFormat, err := audio.ParsePCMFormat(*inputFormatFlag)
	assertNoError(err)
	outputFormat, err := audio.ParsePCMFormat(*outputFormatFlag)
	assertNoError(err)
	if *isS16Flag {
		inputFormat, outputFormat = audio.PCMFormatS16LE, audio.PCMFormatS16LE
	}
	sampleRate := audio.SampleRate(cfg.Filter.SampleRate)
	if *inputRate == 0 {
		*inputRate = uint32(sampleRate)
	}

	input, closeInput := openInput(pflag.Arg(0))
	defer closeInput()
	output, closeOutput := openOutput(pflag.Arg(1))
	defer closeOutput()

	var (
		rawInput   io.Reader = input
		rawFormat            = resampler.Format{
			Channels:   audio.Channel(*inputChannels),
			SampleRate: audio.SampleRate(*inputRate),
			PCMFormat:  inputFormat,
		}
	)
	if strings.EqualFold(filepath.Ext(pflag.Arg(0)), ".ogg") {
		oggReader, err := ogg.NewReader(input)
		assertNoError(err)
		rawInput, rawFormat = oggReader, oggReader.Format()
	}
	logger.Debugf(ctx, "input format: %#+v", rawFormat)

	monoFormat := resampler.Format{
		Channels:   1,
		SampleRate: sampleRate,
		PCMFormat:  audio.PCMFormatFloat32LE,
	}
	monoInput, err := resampler.NewResampler(rawFormat, rawInput, monoFormat)
	assertNoError(err)

	var noiseSuppress noisesuppression.NoiseSuppression
	if *remoteURL != "" {
		c, err := client.Dial(ctx, *remoteURL)
		assertNoError(err)
		noiseSuppress = client.NewNoiseSuppression(c, sampleRate, cfg.Denoise.ChunkSamples)
	} else {
		session, err := voicefilter.New(cfg.VoiceFilter())
		assertNoError(err)
		noiseSuppress = session
	}

	enhanced, err := noisesuppressionstream.NewNoiseSuppressionStream(ctx, monoInput, noiseSuppress, streamBufferSize, streamBufferSize)
	assertNoError(err)
	defer enhanced.Close()

	converted, err := resampler.NewResampler(monoFormat, enhanced, resampler.Format{
		Channels:   1,
		SampleRate: sampleRate,
		PCMFormat:  outputFormat,
	})
	assertNoError(err)

	wc := datacounter.NewWriterCounter(output)
	startedAt := time.Now()
	_, err = io.Copy(wc, converted)
	assertNoError(err)
	logger.Infof(ctx, "written %d bytes (%v of audio) in %v",
		wc.Count(),
		audio.EncodingPCM{PCMFormat: outputFormat, SampleRate: sampleRate}.DurationForSamples(wc.Count()/uint64(outputFormat.Size())),
		time.Since(startedAt),
	)
}

func openInput(path string) (io.Reader, func()) {
	if path == "-" {
		return os.Stdin, func() {}
	}
	f, err := os.Open(path)
	assertNoError(err)
	return f, func() { f.Close() }
}

func openOutput(path string) (io.Writer, func()) {
	if path == "-" {
		return os.Stdout, func() {}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0640)
	assertNoError(err)
	return f, func() { assertNoError(f.Close()) }
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
