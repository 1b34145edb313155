package testsupport

import (
	"context"
	"sync"

	"github.com/goliatone/go-query-cache/cache"
)

// CountingExecutor answers reads and writes through caller supplied funcs and
// records every statement it runs.
type CountingExecutor struct {
	ReadFn  func(ctx context.Context, q cache.Query) (cache.ResultSet, error)
	WriteFn func(ctx context.Context, q cache.Query) (int64, error)

	mu     sync.Mutex
	reads  []cache.Query
	writes []cache.Query
}

func (e *CountingExecutor) ExecuteRead(ctx context.Context, q cache.Query) (cache.ResultSet, error) {
	e.mu.Lock()
	e.reads = append(e.reads, q)
	e.mu.Unlock()

	if e.ReadFn == nil {
		return cache.ResultSet{}, nil
	}
	return e.ReadFn(ctx, q)
}

func (e *CountingExecutor) ExecuteWrite(ctx context.Context, q cache.Query) (int64, error) {
	e.mu.Lock()
	e.writes = append(e.writes, q)
	e.mu.Unlock()

	if e.WriteFn == nil {
		return 0, nil
	}
	return e.WriteFn(ctx, q)
}

// Reads returns how many reads reached the executor.
func (e *CountingExecutor) Reads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.reads)
}

// Writes returns how many writes reached the executor.
func (e *CountingExecutor) Writes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.writes)
}

// ReadQueries returns the read statements in call order.
func (e *CountingExecutor) ReadQueries() []cache.Query {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]cache.Query(nil), e.reads...)
}
