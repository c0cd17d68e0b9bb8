// Package config loads the server configuration from YAML over defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	SourceCSV    = "csv"
	SourceMemory = "memory"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Source SourceConfig `yaml:"source"`
	Log    LogConfig    `yaml:"log"`
	Cache  CacheConfig  `yaml:"cache"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required,hostname_port"`
	// RateLimit is requests per second per client; 0 disables the limiter.
	RateLimit    float64  `yaml:"rate_limit" validate:"gte=0"`
	AllowOrigins []string `yaml:"allow_origins" validate:"dive,required"`
	// DefaultPageSize applies when a data request has no limit.
	DefaultPageSize int `yaml:"default_page_size" validate:"gte=0"`
}

type SourceConfig struct {
	// Kind csv reads the data directory on every load; memory reads it
	// once at startup.
	Kind        string        `yaml:"kind" validate:"oneof=csv memory"`
	DataDir     string        `yaml:"data_dir" validate:"required"`
	LoadTimeout time.Duration `yaml:"load_timeout" validate:"gte=0"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir"`
}

type CacheConfig struct {
	WarmOnStart bool `yaml:"warm_on_start"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			RateLimit:       20,
			AllowOrigins:    []string{"*"},
			DefaultPageSize: 0,
		},
		Source: SourceConfig{
			Kind:        SourceCSV,
			DataDir:     "data",
			LoadTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Cache: CacheConfig{
			WarmOnStart: true,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]error, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Errorf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %w", errors.Join(msgs...))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads path over the defaults and validates the result. An empty
// path yields the validated defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read the config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Write stores cfg as YAML at path.
func Write(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
