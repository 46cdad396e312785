package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

const (
	EnvPrefix = "VOICEENHANCE_"
)

// LookupEnvFunc has the signature of os.LookupEnv.
type LookupEnvFunc func(key string) (string, bool)

// LoadDotEnv loads the given .env files into the process environment;
// missing files are skipped. Variables already set are not overridden.
func LoadDotEnv(paths ...string) error {
	var result *multierror.Error
	for _, path := range paths {
		err := godotenv.Load(path)
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist):
		default:
			result = multierror.Append(result, fmt.Errorf("unable to load '%s': %w", path, err))
		}
	}
	return result.ErrorOrNil()
}

// ApplyEnv overrides the values with VOICEENHANCE_* variables.
// If lookup is nil, os.LookupEnv is used.
func (cfg *Config) ApplyEnv(lookup LookupEnvFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var result *multierror.Error
	setString := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	setFloat := func(name string, dst *float64) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("unable to parse %s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = f
	}
	setInt := func(name string, dst *int64) {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return
		}
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("unable to parse %s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = i
	}

	order := int64(cfg.Filter.Order)
	chunkSamples := int64(cfg.Denoise.ChunkSamples)

	setString("LISTEN_ADDR", &cfg.Server.ListenAddr)
	setInt("MAX_MESSAGE_SIZE", &cfg.Server.MaxMessageSize)
	setFloat("SAMPLE_RATE", &cfg.Filter.SampleRate)
	setFloat("LOW_CUTOFF", &cfg.Filter.LowCutoff)
	setFloat("HIGH_CUTOFF", &cfg.Filter.HighCutoff)
	setInt("ORDER", &order)
	setFloat("SMOOTHING", &cfg.Denoise.Smoothing)
	setInt("CHUNK_SAMPLES", &chunkSamples)
	setString("FFT_BACKEND", &cfg.Denoise.FFTBackend)
	setString("LOG_LEVEL", &cfg.LogLevel)

	cfg.Filter.Order = int(order)
	if chunkSamples < 0 {
		result = multierror.Append(result, fmt.Errorf("%sCHUNK_SAMPLES is negative: %d", EnvPrefix, chunkSamples))
	} else {
		cfg.Denoise.ChunkSamples = uint(chunkSamples)
	}
	return result.ErrorOrNil()
}
