package cacheinfra

import (
	"context"
	"time"

	"github.com/goliatone/go-query-cache/cache"
)

// NullStore never holds anything. Every read misses.
type NullStore struct{}

var _ cache.Store = NullStore{}
var _ cache.Flusher = NullStore{}

func (NullStore) Get(context.Context, cache.Key) ([]byte, bool, error) { return nil, false, nil }

func (NullStore) Put(context.Context, cache.Key, []byte, time.Duration) error { return nil }

func (NullStore) PurgeTag(context.Context, string) error { return nil }

func (NullStore) Flush(context.Context) error { return nil }
