package di

import (
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/querycache"
	"github.com/goliatone/go-query-cache/repositorycache"
	"github.com/goliatone/go-query-cache/store"
	"go.uber.org/zap"
)

// Container provides dependency injection for cache related components.
// It owns a single store and interceptor and provides factory methods for
// creating cached repositories.
type Container struct {
	config      Config
	logger      *zap.Logger
	store       cache.Store
	ownsStore   bool
	interceptor *querycache.Interceptor
}

// Option customizes a Container.
type Option func(*settings)

type settings struct {
	logger *zap.Logger
	store  cache.Store
	extra  []querycache.Option
}

// WithLogger uses logger instead of building one from Config.Log.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithStore uses a store the caller owns. Close leaves it open.
func WithStore(st cache.Store) Option {
	return func(s *settings) {
		s.store = st
	}
}

// WithInterceptorOptions forwards opts to querycache.New.
func WithInterceptorOptions(opts ...querycache.Option) Option {
	return func(s *settings) {
		s.extra = append(s.extra, opts...)
	}
}

// NewContainer validates cfg and wires the logger, the store and the
// interceptor.
func NewContainer(cfg Config, opts ...Option) (*Container, error) {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := s.logger
	if logger == nil {
		l, err := NewLogger(cfg.Log)
		if err != nil {
			return nil, err
		}
		logger = l
	}

	c := &Container{config: cfg, logger: logger, store: s.store}
	if c.store == nil {
		st, err := store.New(cfg.Store)
		if err != nil {
			return nil, err
		}
		c.store = st
		c.ownsStore = true
	}

	icOpts := append([]querycache.Option{querycache.WithLogger(logger)}, s.extra...)
	ic, err := querycache.New(c.store, cfg.Query, icOpts...)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.interceptor = ic

	logger.Debug("query cache container ready",
		zap.String("store", string(cfg.Store.Backend)),
		zap.Bool("enabled", cfg.Query.Enabled),
		zap.Bool("duplicate_queries", cfg.Query.Duplicate.Enabled),
	)
	return c, nil
}

// NewContainerWithDefaults creates a container with DefaultConfig and a
// logger that discards everything.
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(DefaultConfig(), WithLogger(zap.NewNop()))
}

// Store returns the shared store.
func (c *Container) Store() cache.Store {
	return c.store
}

// Interceptor returns the shared interceptor.
func (c *Container) Interceptor() *querycache.Interceptor {
	return c.interceptor
}

// Logger returns the container logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() Config {
	return c.config
}

// Close releases the store when the container built it.
func (c *Container) Close() error {
	_ = c.logger.Sync()
	if !c.ownsStore {
		return nil
	}
	return store.Close(c.store)
}

// NewCachedRepository wraps base with the container interceptor.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewCachedRepository[User](container, baseUserRepository)
func NewCachedRepository[T any](container *Container, base repository.Repository[T], opts ...repositorycache.Option) *repositorycache.CachedRepository[T] {
	return repositorycache.New(base, container.interceptor, opts...)
}
