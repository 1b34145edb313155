package querycache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-query-cache/cache"
)

// Config holds the interception options. Both strategies are independent:
// Enabled drives the shared store, Duplicate drives the per request memo.
type Config struct {
	// Enabled turns on caching of all queries against the shared store.
	Enabled bool `toml:"enabled" env:"CACHE_ALL_QUERIES"`

	// DefaultTTL applies to entities that do not set their own.
	DefaultTTL TTL `toml:"default_ttl" env:"CACHE_QUERIES_TTL"`

	// StoreTimeout bounds every store call. Zero disables the bound.
	StoreTimeout cache.Duration `toml:"store_timeout" env:"CACHE_STORE_TIMEOUT"`

	Duplicate DuplicateConfig `toml:"duplicate"`
}

// DuplicateConfig controls the per request duplicate query memo.
type DuplicateConfig struct {
	Enabled    bool `toml:"enabled" env:"CACHE_DUPLICATE_QUERIES"`
	MaxEntries int  `toml:"max_entries" env:"CACHE_DUPLICATE_QUERIES_MAX"`
}

const (
	defaultStoreTimeout = 250 * time.Millisecond
	defaultMaxEntries   = 512
)

// DefaultConfig returns the defaults: shared caching on with entries kept
// until purged, duplicate memo off.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		DefaultTTL:   Forever,
		StoreTimeout: cache.Duration(defaultStoreTimeout),
		Duplicate: DuplicateConfig{
			Enabled:    false,
			MaxEntries: defaultMaxEntries,
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.DefaultTTL, validation.Min(int64(Forever))),
		validation.Field(&c.StoreTimeout, validation.Min(int64(0))),
		validation.Field(&c.Duplicate),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid query cache config")
	}
	return nil
}

// Validate implements validation.Validatable.
func (c DuplicateConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxEntries, validation.When(c.Enabled, validation.Required, validation.Min(1))),
	)
}
