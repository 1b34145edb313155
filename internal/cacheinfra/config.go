package cacheinfra

import (
	"strings"
	"time"
)

// MemoryConfig holds the configuration for the sturdyc backed store.
type MemoryConfig struct {
	// Capacity is the maximum number of entries kept in memory.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Must be greater than 0. Default: 256
	NumShards int

	// TTL caps the lifetime of every entry, including entries stored without
	// expiry. Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EvictionInterval sets how often expired entries are swept.
	// Zero value uses the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultMemoryConfig returns a MemoryConfig with sensible defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Capacity:           10000,
		NumShards:          256,
		TTL:                24 * time.Hour,
		EvictionPercentage: 10,
	}
}

// Validate checks if the configuration values are valid.
func (c MemoryConfig) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}
	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}
	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}
	return nil
}

// LayeredConfig configures the ccache backed store.
type LayeredConfig struct {
	// MaxSize is the total number of entries across all tags.
	MaxSize int64
	// Buckets must be a power of two.
	Buckets uint32
	// ItemsToPrune is how many entries are dropped when MaxSize is reached.
	ItemsToPrune uint32
}

// DefaultLayeredConfig returns a LayeredConfig with sensible defaults.
func DefaultLayeredConfig() LayeredConfig {
	return LayeredConfig{
		MaxSize:      10000,
		Buckets:      16,
		ItemsToPrune: 500,
	}
}

// Validate checks if the configuration values are valid.
func (c LayeredConfig) Validate() error {
	if c.MaxSize <= 0 {
		return &ConfigError{Field: "MaxSize", Message: "must be greater than 0"}
	}
	if c.Buckets == 0 || c.Buckets&(c.Buckets-1) != 0 {
		return &ConfigError{Field: "Buckets", Message: "must be a power of two"}
	}
	if c.ItemsToPrune == 0 {
		return &ConfigError{Field: "ItemsToPrune", Message: "must be greater than 0"}
	}
	return nil
}

// RedisConfig configures the redis backed store.
type RedisConfig struct {
	// Addrs lists the redis endpoints. A single address yields a plain client.
	Addrs []string
	// Username and Password are optional credentials.
	Username string
	Password string
	// DB selects the logical database. Ignored by cluster clients.
	DB int
	// Prefix namespaces every key written by the store.
	Prefix string
	// DialTimeout bounds connection establishment. Zero uses the client default.
	DialTimeout time.Duration
}

// DefaultRedisConfig returns a RedisConfig pointing at a local server.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addrs:       []string{"127.0.0.1:6379"},
		Prefix:      "querycache",
		DialTimeout: time.Second,
	}
}

// Validate checks if the configuration values are valid.
func (c RedisConfig) Validate() error {
	if len(c.Addrs) == 0 {
		return &ConfigError{Field: "Addrs", Message: "must list at least one address"}
	}
	for _, addr := range c.Addrs {
		if strings.TrimSpace(addr) == "" {
			return &ConfigError{Field: "Addrs", Message: "must not contain empty addresses"}
		}
	}
	if strings.TrimSpace(c.Prefix) == "" {
		return &ConfigError{Field: "Prefix", Message: "must not be empty"}
	}
	if strings.ContainsAny(c.Prefix, "{}") {
		return &ConfigError{Field: "Prefix", Message: "must not contain hash tag braces"}
	}
	if c.DB < 0 {
		return &ConfigError{Field: "DB", Message: "must be non-negative"}
	}
	if c.DialTimeout < 0 {
		return &ConfigError{Field: "DialTimeout", Message: "must be non-negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}
