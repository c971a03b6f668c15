// Package config loads recjpeg settings from an optional config file and
// RECJPEG_* environment variables. Command line flags are applied on top by
// the CLI.
package config

import (
	"fmt"
	"runtime"

	"github.com/acm19/recjpeg/internal/recjpeg"
	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

// Converter names.
const (
	ConverterPipe   = "pipe"
	ConverterNative = "native"
)

// Config holds every runtime setting of the recjpeg command.
type Config struct {
	// Quality is the JPEG quality passed to the encoder.
	Quality int `yaml:"quality" env:"RECJPEG_QUALITY" env-default:"90" validate:"min=1,max=100"`
	// Resize is an ImageMagick -resize geometry; empty keeps the size.
	Resize string `yaml:"resize" env:"RECJPEG_RESIZE"`
	// Limit is the number of files processed in parallel (0 = number of CPUs).
	Limit int `yaml:"limit" env:"RECJPEG_LIMIT" env-default:"0" validate:"min=0"`

	// Converter selects "pipe" (convert | cjpeg) or "native" (in process).
	Converter     string `yaml:"converter" env:"RECJPEG_CONVERTER" env-default:"pipe" validate:"oneof=pipe native"`
	ConvertBinary string `yaml:"convert_bin" env:"RECJPEG_CONVERT_BIN" env-default:"convert" validate:"required"`
	CJPEGBinary   string `yaml:"cjpeg_bin" env:"RECJPEG_CJPEG_BIN" env-default:"cjpeg" validate:"required"`

	TempDir      string `yaml:"temp_dir" env:"RECJPEG_TEMP_DIR" validate:"omitempty,dir"`
	KeepModTime  bool   `yaml:"keep_mtime" env:"RECJPEG_KEEP_MTIME" env-default:"false"`
	KeepMetadata bool   `yaml:"keep_metadata" env:"RECJPEG_KEEP_METADATA" env-default:"false"`

	// ArchiveBucket enables uploading backups to this S3 bucket.
	ArchiveBucket string `yaml:"archive_bucket" env:"RECJPEG_ARCHIVE_BUCKET"`
	ArchivePrefix string `yaml:"archive_prefix" env:"RECJPEG_ARCHIVE_PREFIX"`

	// MetricsFile enables writing Prometheus textfile metrics to this path.
	MetricsFile string `yaml:"metrics_file" env:"RECJPEG_METRICS_FILE"`

	Verbose bool `yaml:"verbose" env:"RECJPEG_VERBOSE" env-default:"false"`
}

// Load reads the config file at path, if any, then the environment.
func Load(path string) (Config, error) {
	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return cfg, nil
}

// Validate checks field ranges and, for the native converter, that the
// resize geometry is one it understands.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Converter == ConverterNative && c.Resize != "" {
		if _, err := recjpeg.ParseGeometry(c.Resize); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return nil
}

// Options converts the configuration into batch options.
func (c *Config) Options() recjpeg.Options {
	limit := c.Limit
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	return recjpeg.Options{
		Quality:     c.Quality,
		Resize:      c.Resize,
		Limit:       limit,
		TempDir:     c.TempDir,
		KeepModTime: c.KeepModTime,
	}
}
