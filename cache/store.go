package cache

import (
	"context"
	"time"
)

// NoExpiration keeps an entry until its tag is purged or the backend evicts it.
const NoExpiration time.Duration = 0

// Store persists serialized result sets grouped by tag.
//
// Every key written through Put is registered under key.Tag. PurgeTag removes
// all entries registered under a tag and clears that registration; a Put that
// races a purge lands either fully before or fully after it.
//
// Store implementations are best-effort. Callers treat any error as a miss
// (Get) or log and drop it (Put, PurgeTag).
type Store interface {
	// Get returns the stored payload. Reading never extends the entry TTL.
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	// Put stores value under key. A ttl of NoExpiration keeps the entry until purged.
	Put(ctx context.Context, key Key, value []byte, ttl time.Duration) error
	// PurgeTag removes every entry stored under tag. Purging an empty tag is a no-op.
	PurgeTag(ctx context.Context, tag string) error
}

// Flusher is implemented by stores that can drop every entry at once.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Entry is the envelope in-process stores keep for each key.
type Entry struct {
	Payload   []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewEntry wraps payload with its creation time and expiry.
func NewEntry(payload []byte, now time.Time, ttl time.Duration) Entry {
	e := Entry{Payload: payload, CreatedAt: now}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl)
	}
	return e
}

// Expired reports whether the entry is past its expiry at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}
