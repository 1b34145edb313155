package di

import (
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-query-cache/querycache"
	"github.com/goliatone/go-query-cache/store"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap/zapcore"
)

// Config gathers everything the container needs.
type Config struct {
	Store store.Config      `toml:"store"`
	Query querycache.Config `toml:"query"`
	Log   LogConfig         `toml:"log"`
}

// LogConfig controls the zap logger built by the container.
type LogConfig struct {
	// Level is a zap level name: debug, info, warn or error.
	Level string `toml:"level" env:"CACHE_LOG_LEVEL"`

	// Development switches to the console encoder with stack traces on warn.
	Development bool `toml:"development" env:"CACHE_LOG_DEVELOPMENT"`

	// File sends JSON logs to a rotated file instead of stderr.
	File string `toml:"file" env:"CACHE_LOG_FILE"`
}

// DefaultConfig returns the defaults of every component.
func DefaultConfig() Config {
	return Config{
		Store: store.DefaultConfig(),
		Query: querycache.DefaultConfig(),
		Log:   LogConfig{Level: "info"},
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Query.Validate(); err != nil {
		return err
	}
	_, err := c.Log.level()
	return err
}

func (c LogConfig) level() (zapcore.Level, error) {
	name := strings.TrimSpace(c.Level)
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(name)
	if err != nil {
		return lvl, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid log level").
			WithTextCode("CONFIG_LOG_LEVEL_INVALID")
	}
	return lvl, nil
}

// LoadConfig starts from DefaultConfig, applies the TOML file at path when
// path is not empty, then applies environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read config file").
				WithTextCode("CONFIG_READ_FAILED").
				WithMetadata(map[string]any{"path": path})
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse config file").
				WithTextCode("CONFIG_PARSE_FAILED").
				WithMetadata(map[string]any{"path": path})
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse environment").
			WithTextCode("CONFIG_ENV_FAILED")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
