// Package config describes the settings of the voice enhancement service.
//
// The values are resolved in the order: Default(), a YAML file (Load),
// the environment (ApplyEnv) and finally the command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/voiceenhance/pkg/bandpass"
	"github.com/xaionaro-go/voiceenhance/pkg/denoise"
	"github.com/xaionaro-go/voiceenhance/pkg/noisesuppression/implementations/voicefilter"
	"github.com/xaionaro-go/voiceenhance/pkg/spectral"
	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr = "0.0.0.0:8000"
	DefaultLogLevel   = "info"
)

type Config struct {
	Server   Server  `yaml:"server"`
	Filter   Filter  `yaml:"filter"`
	Denoise  Denoise `yaml:"denoise"`
	LogLevel string  `yaml:"log_level"`
}

type Server struct {
	ListenAddr string `yaml:"listen_addr"`

	// MaxMessageSize limits the size of an incoming websocket message
	// in bytes; zero means no limit.
	MaxMessageSize int64 `yaml:"max_message_size"`
}

type Filter struct {
	SampleRate float64 `yaml:"sample_rate"`
	LowCutoff  float64 `yaml:"low_cutoff"`
	HighCutoff float64 `yaml:"high_cutoff"`
	Order      int     `yaml:"order"`
}

type Denoise struct {
	Smoothing    float64 `yaml:"smoothing"`
	ChunkSamples uint    `yaml:"chunk_samples"`
	FFTBackend   string  `yaml:"fft_backend"`
}

func Default() *Config {
	vf := voicefilter.DefaultConfig()
	return &Config{
		Server: Server{
			ListenAddr: DefaultListenAddr,
		},
		Filter: Filter{
			SampleRate: vf.Filter.SampleRate,
			LowCutoff:  vf.Filter.LowCutoff,
			HighCutoff: vf.Filter.HighCutoff,
			Order:      vf.Filter.Order,
		},
		Denoise: Denoise{
			Smoothing:    vf.Smoothing,
			ChunkSamples: vf.ChunkSamples,
			FFTBackend:   vf.Transformer,
		},
		LogLevel: DefaultLogLevel,
	}
}

// Load reads the YAML file at path on top of the defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open the config file '%s': %w", path, err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("unable to parse the config file '%s': %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults; unknown keys are an error.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	err := decoder.Decode(cfg)
	switch {
	case err == nil, errors.Is(err, io.EOF):
	default:
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg); err != nil {
		return nil, fmt.Errorf("unable to encode the config: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("unable to finalize the config: %w", err)
	}
	return buf.Bytes(), nil
}

func (cfg *Config) FilterSpec() bandpass.FilterSpec {
	return bandpass.FilterSpec{
		SampleRate: cfg.Filter.SampleRate,
		LowCutoff:  cfg.Filter.LowCutoff,
		HighCutoff: cfg.Filter.HighCutoff,
		Order:      cfg.Filter.Order,
	}
}

// VoiceFilter returns the settings of a single session; the cache
// is left to the caller.
func (cfg *Config) VoiceFilter() voicefilter.Config {
	return voicefilter.Config{
		Filter:       cfg.FilterSpec(),
		Smoothing:    cfg.Denoise.Smoothing,
		ChunkSamples: cfg.Denoise.ChunkSamples,
		Transformer:  cfg.Denoise.FFTBackend,
	}
}

func (cfg *Config) LoggerLevel() (logger.Level, error) {
	var level logger.Level
	if err := level.Set(cfg.LogLevel); err != nil {
		return logger.LevelUndefined, fmt.Errorf("unable to parse log level '%s': %w", cfg.LogLevel, err)
	}
	return level, nil
}

// Validate returns every problem found, not only the first one.
func (cfg *Config) Validate() error {
	var result *multierror.Error
	if cfg.Server.ListenAddr == "" {
		result = multierror.Append(result, fmt.Errorf("server.listen_addr is empty"))
	}
	if cfg.Server.MaxMessageSize < 0 {
		result = multierror.Append(result, fmt.Errorf("server.max_message_size is negative: %d", cfg.Server.MaxMessageSize))
	}
	if err := cfg.FilterSpec().Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := denoise.ValidateSmoothing(cfg.Denoise.Smoothing); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.Denoise.ChunkSamples == 0 {
		result = multierror.Append(result, fmt.Errorf("denoise.chunk_samples must be positive"))
	}
	if !slices.Contains(spectral.Names(), cfg.Denoise.FFTBackend) {
		result = multierror.Append(result, fmt.Errorf("unknown denoise.fft_backend '%s', known: %v", cfg.Denoise.FFTBackend, spectral.Names()))
	}
	if _, err := cfg.LoggerLevel(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Dump is a human-readable representation for debug logs.
func (cfg *Config) Dump() string {
	return spew.Sdump(cfg)
}
