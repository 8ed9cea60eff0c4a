// Package config loads epub2zip settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/epub2zip/internal/archive"
	"github.com/lehigh-university-libraries/epub2zip/internal/handlers"
	"github.com/lehigh-university-libraries/epub2zip/internal/pipeline"
	"github.com/lehigh-university-libraries/epub2zip/internal/session"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Environment variables read by ApplyEnv.
const (
	EnvConcurrency      = "EPUB2ZIP_CONCURRENCY"
	EnvCompressionLevel = "EPUB2ZIP_COMPRESSION_LEVEL"
	EnvBundleName       = "EPUB2ZIP_BUNDLE_NAME"
	EnvOutputDir        = "EPUB2ZIP_OUTPUT_DIR"
	EnvPort             = "EPUB2ZIP_PORT"
)

type Config struct {
	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs"`
	CompressionLevel  int           `yaml:"compression_level"`
	BundleName        string        `yaml:"bundle_name"`
	OutputDir         string        `yaml:"output_dir"`
	ProgressInterval  time.Duration `yaml:"progress_interval"`
	ProgressEvery     int           `yaml:"progress_every"`
	MaxEntrySize      int64         `yaml:"max_entry_size"`
	MaxUploadSize     int64         `yaml:"max_upload_size"`
	Port              string        `yaml:"port"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		MaxConcurrentJobs: pipeline.DefaultMaxConcurrentJobs,
		CompressionLevel:  archive.DefaultLevel,
		BundleName:        archive.DefaultBundleName,
		OutputDir:         "converted",
		ProgressInterval:  pipeline.DefaultProgressInterval,
		ProgressEvery:     pipeline.DefaultProgressEvery,
		MaxEntrySize:      archive.DefaultMaxEntrySize,
		MaxUploadSize:     handlers.DefaultMaxUploadSize,
		Port:              "8888",
	}
}

// Load layers the YAML file at path (if any) and the environment over the
// defaults, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvConcurrency); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, EnvConcurrency, v)
		}
		c.MaxConcurrentJobs = n
	}
	if v, ok := lookup(EnvCompressionLevel); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, EnvCompressionLevel, v)
		}
		c.CompressionLevel = n
	}
	if v, ok := lookup(EnvBundleName); ok && v != "" {
		c.BundleName = v
	}
	if v, ok := lookup(EnvOutputDir); ok && v != "" {
		c.OutputDir = v
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		c.Port = v
	}
	return nil
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	switch {
	case c.MaxConcurrentJobs < 1:
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", ErrInvalidConfig, c.MaxConcurrentJobs)
	case c.CompressionLevel < archive.MinLevel || c.CompressionLevel > archive.MaxLevel:
		return fmt.Errorf("%w: compression level must be between %d and %d, got %d", ErrInvalidConfig, archive.MinLevel, archive.MaxLevel, c.CompressionLevel)
	case c.BundleName == "":
		return fmt.Errorf("%w: bundle name is empty", ErrInvalidConfig)
	case !strings.HasSuffix(strings.ToLower(c.BundleName), ".zip"):
		return fmt.Errorf("%w: bundle name %q must end in .zip", ErrInvalidConfig, c.BundleName)
	case c.ProgressEvery < 1:
		return fmt.Errorf("%w: progress_every must be at least 1", ErrInvalidConfig)
	}
	return nil
}

func (c Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		MaxConcurrentJobs: c.MaxConcurrentJobs,
		CompressionLevel:  c.CompressionLevel,
		ProgressEvery:     c.ProgressEvery,
		ProgressInterval:  c.ProgressInterval,
		MaxEntrySize:      c.MaxEntrySize,
	}
}

func (c Config) SessionOptions() session.Options {
	return session.Options{
		Pipeline:   c.PipelineConfig(),
		BundleName: c.BundleName,
	}
}

func (c Config) HandlerOptions() handlers.Options {
	return handlers.Options{
		Session:       c.SessionOptions(),
		MaxUploadSize: c.MaxUploadSize,
	}
}
