package cacheinfra

import (
	"context"
	"time"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/karlseguin/ccache/v2"
)

// foreverTTL stands in for entries stored without expiry; ccache needs a
// concrete duration.
const foreverTTL = 100 * 365 * 24 * time.Hour

// LayeredStore keeps entries in a ccache LayeredCache, using the tag as the
// primary key and the digest as the secondary key. The primary bucket is the
// tag index, so purging a tag is a single DeleteAll.
type LayeredStore struct {
	cache *ccache.LayeredCache
}

var _ cache.Store = (*LayeredStore)(nil)
var _ cache.Flusher = (*LayeredStore)(nil)

// NewLayeredStore validates cfg and builds the ccache store.
func NewLayeredStore(cfg LayeredConfig) (*LayeredStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := ccache.Layered(ccache.Configure().
		MaxSize(cfg.MaxSize).
		Buckets(cfg.Buckets).
		ItemsToPrune(cfg.ItemsToPrune))
	return &LayeredStore{cache: c}, nil
}

// Get implements cache.Store.
func (s *LayeredStore) Get(ctx context.Context, key cache.Key) ([]byte, bool, error) {
	item := s.cache.Get(key.Tag, key.Digest)
	if item == nil || item.Expired() {
		return nil, false, nil
	}
	payload, ok := item.Value().([]byte)
	if !ok {
		return nil, false, nil
	}
	return payload, true, nil
}

// Put implements cache.Store.
func (s *LayeredStore) Put(ctx context.Context, key cache.Key, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = foreverTTL
	}
	s.cache.Set(key.Tag, key.Digest, value, ttl)
	return nil
}

// PurgeTag implements cache.Store.
func (s *LayeredStore) PurgeTag(ctx context.Context, tag string) error {
	s.cache.DeleteAll(tag)
	return nil
}

// Flush implements cache.Flusher.
func (s *LayeredStore) Flush(ctx context.Context) error {
	s.cache.Clear()
	return nil
}

// ItemCount returns the number of entries across all tags.
func (s *LayeredStore) ItemCount() int {
	return s.cache.ItemCount()
}

// Close stops the ccache background worker.
func (s *LayeredStore) Close() error {
	s.cache.Stop()
	return nil
}
