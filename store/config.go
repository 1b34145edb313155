package store

import (
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/internal/cacheinfra"
	"github.com/redis/go-redis/v9"
)

// Backend names a Store implementation.
type Backend string

const (
	// BackendMemory keeps entries in process using sturdyc.
	BackendMemory Backend = "memory"
	// BackendLayered keeps entries in process using a ccache layered cache.
	BackendLayered Backend = "layered"
	// BackendRedis shares entries between processes through redis.
	BackendRedis Backend = "redis"
	// BackendNull disables storage; every read misses.
	BackendNull Backend = "null"
)

// Config selects and configures a Store backend.
type Config struct {
	Backend Backend       `toml:"backend" env:"CACHE_STORE"`
	Memory  MemoryConfig  `toml:"memory" envPrefix:"CACHE_MEMORY_"`
	Layered LayeredConfig `toml:"layered" envPrefix:"CACHE_LAYERED_"`
	Redis   RedisConfig   `toml:"redis" envPrefix:"CACHE_REDIS_"`
}

// MemoryConfig exposes the sturdyc store options.
type MemoryConfig struct {
	Capacity           int            `toml:"capacity" env:"CAPACITY"`
	NumShards          int            `toml:"num_shards" env:"NUM_SHARDS"`
	TTL                cache.Duration `toml:"ttl" env:"TTL"`
	EvictionPercentage int            `toml:"eviction_percentage" env:"EVICTION_PERCENTAGE"`
	EvictionInterval   cache.Duration `toml:"eviction_interval" env:"EVICTION_INTERVAL"`
}

// LayeredConfig exposes the ccache store options.
type LayeredConfig struct {
	MaxSize      int64  `toml:"max_size" env:"MAX_SIZE"`
	Buckets      uint32 `toml:"buckets" env:"BUCKETS"`
	ItemsToPrune uint32 `toml:"items_to_prune" env:"ITEMS_TO_PRUNE"`
}

// RedisConfig exposes the redis store options.
type RedisConfig struct {
	Addrs       []string       `toml:"addrs" env:"ADDRS" envSeparator:","`
	Username    string         `toml:"username" env:"USERNAME"`
	Password    string         `toml:"password" env:"PASSWORD"`
	DB          int            `toml:"db" env:"DB"`
	Prefix      string         `toml:"prefix" env:"PREFIX"`
	DialTimeout cache.Duration `toml:"dial_timeout" env:"DIAL_TIMEOUT"`
}

// DefaultConfig returns a Config using the memory backend.
func DefaultConfig() Config {
	return Config{
		Backend: BackendMemory,
		Memory:  memoryFromInternal(cacheinfra.DefaultMemoryConfig()),
		Layered: layeredFromInternal(cacheinfra.DefaultLayeredConfig()),
		Redis:   redisFromInternal(cacheinfra.DefaultRedisConfig()),
	}
}

// Validate checks the selected backend configuration.
func (c Config) Validate() error {
	switch c.normalizedBackend() {
	case BackendMemory:
		return c.Memory.toInternal().Validate()
	case BackendLayered:
		return c.Layered.toInternal().Validate()
	case BackendRedis:
		return c.Redis.toInternal().Validate()
	case BackendNull:
		return nil
	default:
		return &cacheinfra.ConfigError{Field: "Backend", Message: fmt.Sprintf("unknown backend %q", c.Backend)}
	}
}

// New builds the Store selected by cfg. The returned store may implement
// cache.Flusher and io.Closer.
func New(cfg Config) (cache.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.normalizedBackend() {
	case BackendLayered:
		return cacheinfra.NewLayeredStore(cfg.Layered.toInternal())
	case BackendRedis:
		return cacheinfra.OpenRedisStore(cfg.Redis.toInternal())
	case BackendNull:
		return NewNull(), nil
	default:
		return cacheinfra.NewMemoryStore(cfg.Memory.toInternal())
	}
}

// NewRedis builds a redis Store on a client the caller owns.
func NewRedis(client redis.UniversalClient, prefix string) cache.Store {
	return cacheinfra.NewRedisStore(client, prefix)
}

// NewNull returns a Store that never holds anything.
func NewNull() cache.Store {
	return cacheinfra.NullStore{}
}

// Close releases s when it holds resources.
func Close(s cache.Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (c Config) normalizedBackend() Backend {
	b := Backend(strings.ToLower(strings.TrimSpace(string(c.Backend))))
	if b == "" {
		return BackendMemory
	}
	return b
}

func (c MemoryConfig) toInternal() cacheinfra.MemoryConfig {
	return cacheinfra.MemoryConfig{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL.Std(),
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval.Std(),
	}
}

func memoryFromInternal(c cacheinfra.MemoryConfig) MemoryConfig {
	return MemoryConfig{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                cache.Duration(c.TTL),
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   cache.Duration(c.EvictionInterval),
	}
}

func (c LayeredConfig) toInternal() cacheinfra.LayeredConfig {
	return cacheinfra.LayeredConfig{
		MaxSize:      c.MaxSize,
		Buckets:      c.Buckets,
		ItemsToPrune: c.ItemsToPrune,
	}
}

func layeredFromInternal(c cacheinfra.LayeredConfig) LayeredConfig {
	return LayeredConfig{
		MaxSize:      c.MaxSize,
		Buckets:      c.Buckets,
		ItemsToPrune: c.ItemsToPrune,
	}
}

func (c RedisConfig) toInternal() cacheinfra.RedisConfig {
	return cacheinfra.RedisConfig{
		Addrs:       append([]string(nil), c.Addrs...),
		Username:    c.Username,
		Password:    c.Password,
		DB:          c.DB,
		Prefix:      c.Prefix,
		DialTimeout: c.DialTimeout.Std(),
	}
}

func redisFromInternal(c cacheinfra.RedisConfig) RedisConfig {
	return RedisConfig{
		Addrs:       append([]string(nil), c.Addrs...),
		Username:    c.Username,
		Password:    c.Password,
		DB:          c.DB,
		Prefix:      c.Prefix,
		DialTimeout: cache.Duration(c.DialTimeout),
	}
}
