package querycache

import (
	"context"

	"github.com/goliatone/go-query-cache/cache"
)

// Executor runs compiled queries against the data source.
type Executor interface {
	ExecuteRead(ctx context.Context, q cache.Query) (cache.ResultSet, error)
	ExecuteWrite(ctx context.Context, q cache.Query) (int64, error)
}

// Source is an Executor bound to an entity and routed through an
// Interceptor.
type Source struct {
	ic     *Interceptor
	exec   Executor
	entity Cacheable
}

// Read executes q, answering from the cache when possible.
func (s *Source) Read(ctx context.Context, q cache.Query) (cache.ResultSet, error) {
	return s.ic.Read(ctx, s.entity, q, s.exec.ExecuteRead)
}

// Write executes q and purges the entity after it succeeds.
func (s *Source) Write(ctx context.Context, q cache.Query) (int64, error) {
	return s.ic.Write(ctx, s.entity, func(ctx context.Context) (int64, error) {
		return s.exec.ExecuteWrite(ctx, q)
	})
}

// Entity returns the bound entity.
func (s *Source) Entity() Cacheable {
	return s.entity
}
