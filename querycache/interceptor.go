package querycache

import (
	"context"
	"errors"
	"sync/atomic"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-query-cache/cache"
	"github.com/puzpuzpuz/xsync/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/goliatone/go-query-cache/querycache"

// Read outcomes reported on spans and debug logs.
const (
	OutcomeHit        = "hit"
	OutcomeRequestHit = "request_hit"
	OutcomeMiss       = "miss"
	OutcomeError      = "error"
)

// ReadFunc executes a read against the data source.
type ReadFunc func(ctx context.Context, q cache.Query) (cache.ResultSet, error)

// WriteFunc executes a write against the data source and reports the rows
// affected.
type WriteFunc func(ctx context.Context) (int64, error)

// Interceptor sits between callers and the data source. Reads of cacheable
// entities are answered from the store when possible, successful writes
// purge the tags they touch. Store trouble never reaches the caller: it is
// logged and the data source answers instead.
type Interceptor struct {
	store    cache.Store
	cfg      Config
	enabled  atomic.Bool
	keys     cache.KeyEncoder
	codec    cache.Codec
	registry *Registry
	logger   *zap.Logger
	tracer   trace.Tracer

	// generations counts purges per tag so a read that raced a write does
	// not store what it fetched.
	generations *xsync.MapOf[string, *atomic.Uint64]

	stats counters
}

// Option configures an Interceptor.
type Option func(*Interceptor)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(ic *Interceptor) {
		if logger != nil {
			ic.logger = logger
		}
	}
}

// WithKeyEncoder replaces the default hashed key encoder.
func WithKeyEncoder(enc cache.KeyEncoder) Option {
	return func(ic *Interceptor) {
		if enc != nil {
			ic.keys = enc
		}
	}
}

// WithCodec replaces the default msgpack codec.
func WithCodec(codec cache.Codec) Option {
	return func(ic *Interceptor) {
		if codec != nil {
			ic.codec = codec
		}
	}
}

// WithRegistry sets the registry consulted by Entity.
func WithRegistry(registry *Registry) Option {
	return func(ic *Interceptor) {
		if registry != nil {
			ic.registry = registry
		}
	}
}

// WithTracerProvider sets the provider for read spans. The default is the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(ic *Interceptor) {
		if tp != nil {
			ic.tracer = tp.Tracer(tracerName)
		}
	}
}

// New returns an Interceptor over store.
func New(store cache.Store, cfg Config, opts ...Option) (*Interceptor, error) {
	if store == nil {
		return nil, goerrors.New("query cache store is required", goerrors.CategoryBadInput).
			WithTextCode("CACHE_STORE_REQUIRED")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ic := &Interceptor{
		store:       store,
		cfg:         cfg,
		keys:        cache.NewDefaultKeyEncoder(),
		codec:       cache.NewMsgpackCodec(),
		registry:    NewRegistry(),
		logger:      zap.NewNop(),
		tracer:      otel.GetTracerProvider().Tracer(tracerName),
		generations: xsync.NewMapOf[string, *atomic.Uint64](),
	}
	ic.enabled.Store(cfg.Enabled)

	for _, opt := range opts {
		opt(ic)
	}
	return ic, nil
}

// Config returns the configuration the interceptor was built with.
func (ic *Interceptor) Config() Config {
	return ic.cfg
}

// Registry returns the entity registry.
func (ic *Interceptor) Registry() *Registry {
	return ic.registry
}

// Entity looks up a registered entity by name. Unknown names return nil,
// which disables caching for that read.
func (ic *Interceptor) Entity(name string) Cacheable {
	return ic.registry.Lookup(name)
}

// Enable turns shared caching on at runtime.
func (ic *Interceptor) Enable() {
	ic.enabled.Store(true)
	ic.logger.Info("query cache enabled")
}

// Disable turns shared caching off at runtime. Stored entries are kept and
// writes keep purging them.
func (ic *Interceptor) Disable() {
	ic.enabled.Store(false)
	ic.logger.Info("query cache disabled")
}

// IsEnabled reports whether shared caching is on.
func (ic *Interceptor) IsEnabled() bool {
	return ic.enabled.Load()
}

// Read runs q through exec unless an identical read is cached for entity.
func (ic *Interceptor) Read(ctx context.Context, entity Cacheable, q cache.Query, exec ReadFunc) (cache.ResultSet, error) {
	return Remember(ctx, ic, entity, q, func(ctx context.Context) (cache.ResultSet, error) {
		return exec(ctx, q)
	})
}

// Remember is Read for arbitrary values. q identifies the read, fetch
// produces the value on a miss. Hits and misses both return the value
// decoded from the stored bytes.
func Remember[T any](ctx context.Context, ic *Interceptor, entity Cacheable, q cache.Query, fetch cache.FetchFn[T]) (T, error) {
	cfg, shared, memo := ic.plan(ctx, entity)
	if !shared && memo == nil {
		ic.stats.bypasses.Add(1)
		return fetch(ctx)
	}

	ctx, span := ic.tracer.Start(ctx, "querycache.read",
		trace.WithAttributes(attribute.String("cache.tag", cfg.Tag)),
	)
	defer span.End()

	key := ic.keys.EncodeKey(cfg.Tag, q)

	if memo != nil {
		if payload, ok := memo.get(key); ok {
			if out, ok := decode[T](ic, key, payload); ok {
				ic.observe(span, key, OutcomeRequestHit)
				ic.stats.hits.Add(1)
				ic.stats.requestHits.Add(1)
				return out, nil
			}
			memo.remove(key)
		}
	}

	if shared {
		if payload, ok := ic.lookup(ctx, key); ok {
			if out, ok := decode[T](ic, key, payload); ok {
				if memo != nil {
					memo.put(key, payload)
				}
				ic.observe(span, key, OutcomeHit)
				ic.stats.hits.Add(1)
				return out, nil
			}
		}
	}

	ic.stats.misses.Add(1)
	generation := ic.generation(cfg.Tag)

	value, err := fetch(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		ic.observe(span, key, OutcomeError)
		return value, err
	}
	ic.observe(span, key, OutcomeMiss)

	payload, err := ic.codec.Marshal(value)
	if err != nil {
		ic.serializationFailed(key, err)
		return value, nil
	}
	out, ok := decode[T](ic, key, payload)
	if !ok {
		return value, nil
	}

	if ic.generation(cfg.Tag) != generation {
		ic.logger.Debug("query cache skipped store after concurrent purge",
			zap.String("tag", key.Tag),
		)
		return out, nil
	}
	if shared {
		ic.save(ctx, key, payload, cfg.TTL.resolve(ic.cfg.DefaultTTL))
	}
	if memo != nil {
		memo.put(key, payload)
	}
	return out, nil
}

// Write runs exec and, only when it succeeds, invalidates entity. Purge
// failures are logged; the write result is returned either way.
//
// Once exec has committed the purge must run, so it is detached from the
// caller's cancellation. StoreTimeout still bounds each store call.
func (ic *Interceptor) Write(ctx context.Context, entity Cacheable, exec WriteFunc) (int64, error) {
	n, err := exec(ctx)
	if err != nil {
		return n, err
	}
	_ = ic.Invalidate(context.WithoutCancel(ctx), entity)
	return n, nil
}

// Invalidate purges the entity tag, the tags it declares in Invalidates and
// any tags attached with WithPurgeTags. It runs even while caching is
// disabled so stale entries never survive a toggle. Failures are logged and
// returned joined, never retried.
func (ic *Interceptor) Invalidate(ctx context.Context, entity Cacheable) error {
	var tags []string
	if entity != nil {
		cfg := entity.CacheConfig()
		tags = append(tags, cfg.Tag)
		tags = append(tags, cfg.Invalidates...)
	}
	tags = append(tags, purgeTagsFromContext(ctx)...)

	var errs []error
	for _, tag := range dedupeTags(tags) {
		if err := ic.PurgeTag(ctx, tag); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PurgeTag removes every entry filed under tag from the store and from the
// request memo attached to ctx. Purging an empty or unknown tag succeeds.
func (ic *Interceptor) PurgeTag(ctx context.Context, tag string) error {
	if tag == "" {
		return nil
	}
	ic.bump(tag)
	ic.stats.purges.Add(1)

	if memo := requestMemoFrom(ctx); memo != nil {
		memo.purgeTag(tag)
	}

	sctx, cancel := ic.storeContext(ctx)
	defer cancel()
	if err := ic.store.PurgeTag(sctx, tag); err != nil {
		ic.storeFailed("purge", tag, err)
		return err
	}
	ic.logger.Debug("query cache purged", zap.String("tag", tag))
	return nil
}

// FlushAll drops every entry when the store supports it.
func (ic *Interceptor) FlushAll(ctx context.Context) error {
	f, ok := ic.store.(cache.Flusher)
	if !ok {
		return goerrors.New("query cache store does not support flush", goerrors.CategoryOperation).
			WithTextCode("CACHE_FLUSH_UNSUPPORTED")
	}
	ic.generations.Range(func(_ string, g *atomic.Uint64) bool {
		g.Add(1)
		return true
	})

	sctx, cancel := ic.storeContext(ctx)
	defer cancel()
	if err := f.Flush(sctx); err != nil {
		ic.storeFailed("flush", "", err)
		return err
	}
	ic.logger.Info("query cache flushed")
	return nil
}

// Source binds exec and entity so callers can issue reads and writes
// without repeating them.
func (ic *Interceptor) Source(exec Executor, entity Cacheable) *Source {
	return &Source{ic: ic, exec: exec, entity: entity}
}

// plan decides which layers apply to a read.
func (ic *Interceptor) plan(ctx context.Context, entity Cacheable) (CacheableConfig, bool, *requestMemo) {
	if entity == nil || bypassed(ctx) {
		return CacheableConfig{}, false, nil
	}
	cfg := entity.CacheConfig()
	if !cfg.Enabled || cfg.Tag == "" {
		return cfg, false, nil
	}

	var memo *requestMemo
	if ic.cfg.Duplicate.Enabled {
		memo = requestMemoFrom(ctx)
	}
	return cfg, ic.enabled.Load(), memo
}

func (ic *Interceptor) lookup(ctx context.Context, key cache.Key) ([]byte, bool) {
	sctx, cancel := ic.storeContext(ctx)
	defer cancel()

	payload, found, err := ic.store.Get(sctx, key)
	if err != nil {
		ic.storeFailed("get", key.Tag, err)
		return nil, false
	}
	return payload, found
}

func (ic *Interceptor) save(ctx context.Context, key cache.Key, payload []byte, ttl TTL) {
	sctx, cancel := ic.storeContext(ctx)
	defer cancel()

	if err := ic.store.Put(sctx, key, payload, ttl.StoreTTL()); err != nil {
		ic.storeFailed("put", key.Tag, err)
	}
}

func decode[T any](ic *Interceptor, key cache.Key, payload []byte) (T, bool) {
	var out T
	if err := ic.codec.Unmarshal(payload, &out); err != nil {
		ic.serializationFailed(key, err)
		var zero T
		return zero, false
	}
	return out, true
}

func (ic *Interceptor) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ic.cfg.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, ic.cfg.StoreTimeout.Std())
}

func (ic *Interceptor) storeFailed(op, tag string, err error) {
	ic.stats.storeErrors.Add(1)
	ic.logger.Warn("query cache store failed",
		zap.String("operation", op),
		zap.String("tag", tag),
		zap.Error(err),
	)
}

func (ic *Interceptor) serializationFailed(key cache.Key, err error) {
	ic.stats.serializationErrors.Add(1)
	ic.logger.Warn("query cache serialization failed",
		zap.String("tag", key.Tag),
		zap.String("digest", key.Digest),
		zap.Error(err),
	)
}

func (ic *Interceptor) observe(span trace.Span, key cache.Key, outcome string) {
	span.SetAttributes(attribute.String("cache.outcome", outcome))
	if ce := ic.logger.Check(zap.DebugLevel, "query cache read"); ce != nil {
		ce.Write(
			zap.String("tag", key.Tag),
			zap.String("digest", key.Digest),
			zap.String("outcome", outcome),
		)
	}
}

func (ic *Interceptor) generation(tag string) uint64 {
	g, ok := ic.generations.Load(tag)
	if !ok {
		return 0
	}
	return g.Load()
}

func (ic *Interceptor) bump(tag string) {
	g, _ := ic.generations.LoadOrCompute(tag, func() *atomic.Uint64 {
		return new(atomic.Uint64)
	})
	g.Add(1)
}
