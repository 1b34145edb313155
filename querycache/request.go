package querycache

import (
	"context"

	"github.com/bluele/gcache"
	"github.com/goliatone/go-query-cache/cache"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type requestMemoContextKey struct{}

// requestMemo holds payloads for the lifetime of one request. It shares no
// state with the store and is dropped with the context.
type requestMemo struct {
	id      string
	entries gcache.Cache
}

func newRequestMemo(size int) *requestMemo {
	return &requestMemo{
		id:      uuid.NewString(),
		entries: gcache.New(size).LRU().Build(),
	}
}

func (m *requestMemo) get(key cache.Key) ([]byte, bool) {
	v, err := m.entries.GetIFPresent(key)
	if err != nil {
		return nil, false
	}
	payload, ok := v.([]byte)
	return payload, ok
}

func (m *requestMemo) put(key cache.Key, payload []byte) {
	// gcache only fails Set when a serializer is configured
	_ = m.entries.Set(key, payload)
}

func (m *requestMemo) remove(key cache.Key) {
	m.entries.Remove(key)
}

func (m *requestMemo) purgeTag(tag string) int {
	removed := 0
	for _, k := range m.entries.Keys(false) {
		key, ok := k.(cache.Key)
		if ok && key.Tag == tag && m.entries.Remove(key) {
			removed++
		}
	}
	return removed
}

func (m *requestMemo) len() int {
	return m.entries.Len(false)
}

func requestMemoFrom(ctx context.Context) *requestMemo {
	if ctx == nil {
		return nil
	}
	m, _ := ctx.Value(requestMemoContextKey{}).(*requestMemo)
	return m
}

// WithRequestScope attaches a duplicate query memo to ctx. Identical reads
// under the returned context hit the memo before the shared store. It returns
// ctx unchanged when the duplicate strategy is off or a scope is already
// attached.
func (ic *Interceptor) WithRequestScope(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if !ic.cfg.Duplicate.Enabled || requestMemoFrom(ctx) != nil {
		return ctx
	}
	m := newRequestMemo(ic.cfg.Duplicate.MaxEntries)
	ic.logger.Debug("request scope opened", zap.String("request_id", m.id))
	return context.WithValue(ctx, requestMemoContextKey{}, m)
}

// RequestID returns the identifier of the request scope attached to ctx, or
// an empty string.
func RequestID(ctx context.Context) string {
	if m := requestMemoFrom(ctx); m != nil {
		return m.id
	}
	return ""
}
