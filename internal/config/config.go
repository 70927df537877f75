// Package config loads pooldb server settings. Values come from, in
// increasing priority: built-in defaults, an optional YAML file, and
// POOLD_* environment variables. The merged result is validated once.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables
const (
	EnvListen      = "POOLD_LISTEN"
	EnvBackend     = "POOLD_BACKEND"
	EnvDataDir     = "POOLD_DATA_DIR"
	EnvLockTimeout = "POOLD_LOCK_TIMEOUT"
	EnvLogLevel    = "POOLD_LOG_LEVEL"
	EnvLogFormat   = "POOLD_LOG_FORMAT"
	EnvTracing     = "POOLD_TRACING"
)

// Storage backends
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
)

var validate = validator.New()

// Config is the full server configuration.
type Config struct {
	Listen          string        `yaml:"listen" validate:"required,hostname_port"`
	Backend         string        `yaml:"backend" validate:"oneof=memory file badger"`
	DataDir         string        `yaml:"data_dir" validate:"required_unless=Backend memory"`
	LockTimeout     time.Duration `yaml:"lock_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	Log             LogConfig     `yaml:"log"`
	Badger          BadgerConfig  `yaml:"badger"`
	Tracing         bool          `yaml:"tracing"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text auto"`
}

// BadgerConfig tunes the badger backend. Ignored by the others.
type BadgerConfig struct {
	GCInterval     time.Duration `yaml:"gc_interval" validate:"gte=0"`
	GCDiscardRatio float64       `yaml:"gc_discard_ratio" validate:"gt=0,lt=1"`
	SyncWrites     bool          `yaml:"sync_writes"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Listen:          "127.0.0.1:1234",
		Backend:         BackendFile,
		DataDir:         "data",
		LockTimeout:     5 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Badger: BadgerConfig{
			SyncWrites:     true,
			GCInterval:     5 * time.Minute,
			GCDiscardRatio: 0.5,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode overlays YAML onto cfg. Unknown keys are rejected.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overrides cfg with every POOLD_* variable that is set.
func applyEnv(cfg *Config, getenv func(string) string) error {
	cfg.Listen = envOr(getenv, EnvListen, cfg.Listen)
	cfg.Backend = envOr(getenv, EnvBackend, cfg.Backend)
	cfg.DataDir = envOr(getenv, EnvDataDir, cfg.DataDir)
	cfg.Log.Level = envOr(getenv, EnvLogLevel, cfg.Log.Level)
	cfg.Log.Format = envOr(getenv, EnvLogFormat, cfg.Log.Format)

	if v := getenv(EnvLockTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLockTimeout, err)
		}
		cfg.LockTimeout = d
	}
	if v := getenv(EnvTracing); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTracing, err)
		}
		cfg.Tracing = b
	}
	return nil
}

func envOr(getenv func(string) string, k, def string) string {
	if v := getenv(k); v != "" {
		return v
	}
	return def
}

// Validate checks every field against its constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
