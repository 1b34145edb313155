package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/pkg/testsupport"
	"github.com/goliatone/go-query-cache/querycache"
	"github.com/goliatone/go-query-cache/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleConfig = `
[store]
backend = "layered"

[store.layered]
max_size = 500
buckets = 8
items_to_prune = 50

[query]
enabled = false
default_ttl = "5m"
store_timeout = "1s"

[query.duplicate]
enabled = true
max_entries = 64

[log]
level = "debug"
`

func TestNewContainerWithDefaults(t *testing.T) {
	container, err := NewContainerWithDefaults()
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	require.NotNil(t, container.Store())
	require.NotNil(t, container.Interceptor())
	require.NotNil(t, container.Logger())
	require.Equal(t, DefaultConfig(), container.Config())
	require.True(t, container.Interceptor().IsEnabled())

	require.Same(t, container.Interceptor(), container.Interceptor())
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Config)
		validation bool
	}{
		{
			name:   "unknown backend",
			mutate: func(c *Config) { c.Store.Backend = "tape" },
		},
		{
			name:   "memory without capacity",
			mutate: func(c *Config) { c.Store.Memory.Capacity = 0 },
		},
		{
			name:       "negative ttl",
			mutate:     func(c *Config) { c.Query.DefaultTTL = querycache.TTL(-time.Second) },
			validation: true,
		},
		{
			name:       "memo without room",
			mutate:     func(c *Config) { c.Query.Duplicate = querycache.DuplicateConfig{Enabled: true} },
			validation: true,
		},
		{
			name:   "log level",
			mutate: func(c *Config) { c.Log.Level = "loud" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			_, err := NewContainer(cfg, WithLogger(zap.NewNop()))
			require.Error(t, err)
			if tt.validation {
				require.True(t, goerrors.IsValidation(err), "expected a validation error, got %v", err)
			}
		})
	}
}

func TestNewContainer_WithStore(t *testing.T) {
	spy := testsupport.NewSpyStore(store.NewNull())

	container, err := NewContainer(DefaultConfig(), WithStore(spy), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	require.Same(t, spy, container.Store())

	require.NoError(t, container.Interceptor().PurgeTag(context.Background(), "users"))
	require.Equal(t, []string{"users"}, spy.Purged())
	require.NoError(t, container.Close())
}

func TestNewContainer_InterceptorOptions(t *testing.T) {
	registry := querycache.NewRegistry()
	registry.Register("users", querycache.Define(querycache.CacheableConfig{Enabled: true, Tag: "users"}))

	container, err := NewContainer(DefaultConfig(),
		WithLogger(zap.NewNop()),
		WithInterceptorOptions(querycache.WithRegistry(registry), querycache.WithKeyEncoder(cache.NewRawKeyEncoder())),
	)
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	require.Same(t, registry, container.Interceptor().Registry())
	require.NotNil(t, container.Interceptor().Entity("users"))
}

func TestLoadConfig(t *testing.T) {
	path := testsupport.TempFile(t, "cache.toml", []byte(sampleConfig))
	t.Setenv("CACHE_LAYERED_BUCKETS", "32")
	t.Setenv("CACHE_DUPLICATE_QUERIES_MAX", "128")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, store.BackendLayered, cfg.Store.Backend)
	require.Equal(t, int64(500), cfg.Store.Layered.MaxSize)
	require.Equal(t, uint32(32), cfg.Store.Layered.Buckets)
	require.False(t, cfg.Query.Enabled)
	require.Equal(t, querycache.TTL(5*time.Minute), cfg.Query.DefaultTTL)
	require.Equal(t, cache.Duration(time.Second), cfg.Query.StoreTimeout)
	require.True(t, cfg.Query.Duplicate.Enabled)
	require.Equal(t, 128, cfg.Query.Duplicate.MaxEntries)
	require.Equal(t, "debug", cfg.Log.Level)

	// sections the file leaves out keep their defaults
	require.Equal(t, store.DefaultConfig().Memory, cfg.Store.Memory)
}

func TestLoadConfig_EnvOnly(t *testing.T) {
	t.Setenv("CACHE_ALL_QUERIES", "false")
	t.Setenv("CACHE_QUERIES_TTL", "forever")
	t.Setenv("CACHE_STORE", "null")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	require.False(t, cfg.Query.Enabled)
	require.Equal(t, querycache.Forever, cfg.Query.DefaultTTL)
	require.Equal(t, store.BackendNull, cfg.Store.Backend)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
		require.Error(t, err)
		require.True(t, goerrors.IsCategory(err, goerrors.CategoryBadInput))
	})

	t.Run("malformed file", func(t *testing.T) {
		path := testsupport.TempFile(t, "bad.toml", []byte("[query\nenabled = "))
		_, err := LoadConfig(path)
		require.Error(t, err)
	})

	t.Run("invalid ttl", func(t *testing.T) {
		path := testsupport.TempFile(t, "ttl.toml", []byte("[query]\ndefault_ttl = \"-5m\"\n"))
		_, err := LoadConfig(path)
		require.Error(t, err)
	})

	t.Run("malformed env", func(t *testing.T) {
		t.Setenv("CACHE_ALL_QUERIES", "sometimes")
		_, err := LoadConfig("")
		require.Error(t, err)
	})
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "warn"})
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zap.InfoLevel))
	require.True(t, logger.Core().Enabled(zap.WarnLevel))

	dev, err := NewLogger(LogConfig{Development: true})
	require.NoError(t, err)
	require.True(t, dev.Core().Enabled(zap.InfoLevel))

	file := filepath.Join(t.TempDir(), "cache.log")
	fileLogger, err := NewLogger(LogConfig{Level: "debug", File: file})
	require.NoError(t, err)
	fileLogger.Debug("purged", zap.String("tag", "users"))
	require.NoError(t, fileLogger.Sync())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Contains(t, string(data), `"tag":"users"`)

	_, err = NewLogger(LogConfig{Level: "chatty"})
	require.Error(t, err)
}
