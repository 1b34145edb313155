package cacheinfra

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
)

// tagIndex tracks the keys stored under one tag. Indexes are never removed
// from the store map, only emptied, so a Put holding a reference can never
// register into an index a concurrent purge already discarded.
type tagIndex struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newTagIndex() *tagIndex {
	return &tagIndex{keys: make(map[string]struct{})}
}

// MemoryStore keeps entries in a sturdyc client and the tag index in an
// xsync map. indexed counts references across all tags; once it passes the
// client capacity some of them point at evicted entries and a sweep runs.
type MemoryStore struct {
	client   *sturdyc.Client[cache.Entry]
	tags     *xsync.MapOf[string, *tagIndex]
	capacity int
	indexed  atomic.Int64
	sweeping atomic.Bool
	now      func() time.Time
}

var _ cache.Store = (*MemoryStore)(nil)
var _ cache.Flusher = (*MemoryStore)(nil)

// NewMemoryStore validates cfg and builds the in-process store.
func NewMemoryStore(cfg MemoryConfig) (*MemoryStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		opts = append(opts, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}

	client := sturdyc.New[cache.Entry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		opts...,
	)

	return &MemoryStore{
		client:   client,
		tags:     xsync.NewMapOf[string, *tagIndex](),
		capacity: cfg.Capacity,
		now:      time.Now,
	}, nil
}

// Get implements cache.Store.
func (s *MemoryStore) Get(ctx context.Context, key cache.Key) ([]byte, bool, error) {
	k := key.String()
	entry, ok := s.client.Get(k)
	if !ok {
		return nil, false, nil
	}
	if entry.Expired(s.now()) {
		s.forget(key.Tag, k)
		return nil, false, nil
	}
	return entry.Payload, true, nil
}

// Put implements cache.Store.
func (s *MemoryStore) Put(ctx context.Context, key cache.Key, value []byte, ttl time.Duration) error {
	k := key.String()
	idx, _ := s.tags.LoadOrCompute(key.Tag, newTagIndex)

	idx.mu.Lock()
	s.client.Set(k, cache.NewEntry(value, s.now(), ttl))
	if _, ok := idx.keys[k]; !ok {
		idx.keys[k] = struct{}{}
		s.indexed.Add(1)
	}
	idx.mu.Unlock()

	if s.indexed.Load() > int64(s.capacity) {
		s.sweep()
	}
	return nil
}

// PurgeTag implements cache.Store.
func (s *MemoryStore) PurgeTag(ctx context.Context, tag string) error {
	idx, ok := s.tags.Load(tag)
	if !ok {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for k := range idx.keys {
		s.client.Delete(k)
	}
	s.indexed.Add(-int64(len(idx.keys)))
	idx.keys = make(map[string]struct{})
	return nil
}

// Flush implements cache.Flusher.
func (s *MemoryStore) Flush(ctx context.Context) error {
	var tags []string
	s.tags.Range(func(tag string, _ *tagIndex) bool {
		tags = append(tags, tag)
		return true
	})
	for _, tag := range tags {
		if err := s.PurgeTag(ctx, tag); err != nil {
			return err
		}
	}
	return nil
}

// Tags returns the tags that currently hold at least one key, sorted.
func (s *MemoryStore) Tags() []string {
	var tags []string
	s.tags.Range(func(tag string, idx *tagIndex) bool {
		idx.mu.Lock()
		n := len(idx.keys)
		idx.mu.Unlock()
		if n > 0 {
			tags = append(tags, tag)
		}
		return true
	})
	sort.Strings(tags)
	return tags
}

// TagSize returns the number of keys indexed under tag.
func (s *MemoryStore) TagSize(tag string) int {
	idx, ok := s.tags.Load(tag)
	if !ok {
		return 0
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.keys)
}

// Size returns the number of entries held by the sturdyc client.
func (s *MemoryStore) Size() int {
	return s.client.Size()
}

func (s *MemoryStore) forget(tag, k string) {
	idx, ok := s.tags.Load(tag)
	if !ok {
		s.client.Delete(k)
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	// re-check under the lock, a concurrent Put may have refreshed the entry
	if entry, ok := s.client.Get(k); ok && !entry.Expired(s.now()) {
		return
	}
	s.client.Delete(k)
	if _, ok := idx.keys[k]; ok {
		delete(idx.keys, k)
		s.indexed.Add(-1)
	}
}

// sweep prunes every tag index. Only one sweep runs at a time and it holds
// a single index lock at any moment.
func (s *MemoryStore) sweep() {
	if !s.sweeping.CompareAndSwap(false, true) {
		return
	}
	defer s.sweeping.Store(false)

	s.tags.Range(func(_ string, idx *tagIndex) bool {
		idx.mu.Lock()
		s.pruneLocked(idx)
		idx.mu.Unlock()
		return true
	})
}

// pruneLocked drops index references to entries sturdyc already evicted.
func (s *MemoryStore) pruneLocked(idx *tagIndex) {
	for k := range idx.keys {
		if _, ok := s.client.Get(k); !ok {
			delete(idx.keys, k)
			s.indexed.Add(-1)
		}
	}
}
