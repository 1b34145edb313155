package testsupport

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-query-cache/cache"
)

// StoreCalls counts the operations a SpyStore has seen.
type StoreCalls struct {
	Get      int
	Put      int
	PurgeTag int
	Flush    int
}

// SpyStore wraps a cache.Store, records every call and can be switched into
// a failing mode to simulate an unavailable backend.
type SpyStore struct {
	inner cache.Store

	mu      sync.Mutex
	calls   StoreCalls
	purged  []string
	failErr error
	delay   time.Duration
}

var _ cache.Store = (*SpyStore)(nil)
var _ cache.Flusher = (*SpyStore)(nil)

// NewSpyStore wraps inner.
func NewSpyStore(inner cache.Store) *SpyStore {
	return &SpyStore{inner: inner}
}

// FailWith makes every subsequent call return err. A nil err restores the
// wrapped store.
func (s *SpyStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// Delay makes every subsequent call block for d or until its context ends.
func (s *SpyStore) Delay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Calls returns the counters so far.
func (s *SpyStore) Calls() StoreCalls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Purged returns the tags passed to PurgeTag in call order.
func (s *SpyStore) Purged() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.purged...)
}

// Reset clears the counters.
func (s *SpyStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = StoreCalls{}
	s.purged = nil
}

func (s *SpyStore) Get(ctx context.Context, key cache.Key) ([]byte, bool, error) {
	if err := s.enter(ctx, func(c *StoreCalls) { c.Get++ }); err != nil {
		return nil, false, err
	}
	return s.inner.Get(ctx, key)
}

func (s *SpyStore) Put(ctx context.Context, key cache.Key, value []byte, ttl time.Duration) error {
	if err := s.enter(ctx, func(c *StoreCalls) { c.Put++ }); err != nil {
		return err
	}
	return s.inner.Put(ctx, key, value, ttl)
}

func (s *SpyStore) PurgeTag(ctx context.Context, tag string) error {
	s.mu.Lock()
	s.purged = append(s.purged, tag)
	s.mu.Unlock()

	if err := s.enter(ctx, func(c *StoreCalls) { c.PurgeTag++ }); err != nil {
		return err
	}
	return s.inner.PurgeTag(ctx, tag)
}

func (s *SpyStore) Flush(ctx context.Context) error {
	if err := s.enter(ctx, func(c *StoreCalls) { c.Flush++ }); err != nil {
		return err
	}
	if f, ok := s.inner.(cache.Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

func (s *SpyStore) enter(ctx context.Context, count func(*StoreCalls)) error {
	s.mu.Lock()
	count(&s.calls)
	failErr, delay := s.failErr, s.delay
	s.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return cache.BackendUnavailable(ctx.Err(), "spy")
		case <-timer.C:
		}
	}
	if failErr != nil {
		return cache.BackendUnavailable(failErr, "spy")
	}
	return nil
}
