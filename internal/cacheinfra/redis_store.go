package cacheinfra

import (
	"context"
	"encoding/binary"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goliatone/go-query-cache/cache"
	"github.com/redis/go-redis/v9"
)

const (
	checksumSize   = 8
	scanBatchSize  = 500
	purgeChunkSize = 500
)

// slotEscaper keeps braces out of the {tag} hash tag. Redis hashes the text
// up to the first closing brace, so a tag holding one would split an entry
// from its tag set.
var slotEscaper = strings.NewReplacer("%", "%25", "{", "%7B", "}", "%7D")

// putScript stores the entry and registers it in the tag set in one step.
// The tag set TTL is kept at least as long as the longest lived member, and
// removed entirely once a member without expiry joins.
//
// KEYS[1] entry key, KEYS[2] tag set
// ARGV[1] framed payload, ARGV[2] ttl in milliseconds (0 = no expiry)
var putScript = redis.NewScript(`
local ttl = tonumber(ARGV[2])
local existed = redis.call('EXISTS', KEYS[2])
if ttl > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
redis.call('SADD', KEYS[2], KEYS[1])
if ttl == 0 then
  redis.call('PERSIST', KEYS[2])
elseif existed == 0 then
  redis.call('PEXPIRE', KEYS[2], ARGV[2])
else
  local current = redis.call('PTTL', KEYS[2])
  if current > 0 and current < ttl then
    redis.call('PEXPIRE', KEYS[2], ARGV[2])
  end
end
return 1
`)

// purgeScript deletes every member of the tag set and then the set itself.
//
// KEYS[1] tag set, ARGV[1] chunk size
var purgeScript = redis.NewScript(`
local members = redis.call('SMEMBERS', KEYS[1])
local chunk = tonumber(ARGV[1])
for i = 1, #members, chunk do
  redis.call('DEL', unpack(members, i, math.min(i + chunk - 1, #members)))
end
redis.call('DEL', KEYS[1])
return #members
`)

// RedisStore keeps entries as plain redis strings and the tag index as a
// redis set. Keys share a {tag} hash tag so an entry and its index always live
// on the same cluster slot.
type RedisStore struct {
	client      redis.UniversalClient
	prefix      string
	closeClient bool
}

var _ cache.Store = (*RedisStore)(nil)
var _ cache.Flusher = (*RedisStore)(nil)

// NewRedisStore wraps an existing client. The caller keeps ownership of it.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisConfig().Prefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// OpenRedisStore validates cfg and dials a client owned by the store.
func OpenRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:       cfg.Addrs,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	s := NewRedisStore(client, cfg.Prefix)
	s.closeClient = true
	return s, nil
}

// Get implements cache.Store. Frames whose checksum does not match are
// deleted and reported as a miss.
func (s *RedisStore) Get(ctx context.Context, key cache.Key) ([]byte, bool, error) {
	k := s.entryKey(key)
	raw, err := s.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, cache.BackendUnavailable(err, "get")
	}

	payload, ok := unframe(raw)
	if !ok {
		if err := s.client.Del(ctx, k).Err(); err != nil {
			return nil, false, cache.BackendUnavailable(err, "get")
		}
		return nil, false, nil
	}
	return payload, true, nil
}

// Put implements cache.Store.
func (s *RedisStore) Put(ctx context.Context, key cache.Key, value []byte, ttl time.Duration) error {
	ms := int64(0)
	if ttl > 0 {
		ms = ttl.Milliseconds()
		if ms == 0 {
			ms = 1
		}
	}
	keys := []string{s.entryKey(key), s.tagKey(key.Tag)}
	if err := putScript.Run(ctx, s.client, keys, frame(value), strconv.FormatInt(ms, 10)).Err(); err != nil {
		return cache.BackendUnavailable(err, "put")
	}
	return nil
}

// PurgeTag implements cache.Store.
func (s *RedisStore) PurgeTag(ctx context.Context, tag string) error {
	keys := []string{s.tagKey(tag)}
	if err := purgeScript.Run(ctx, s.client, keys, purgeChunkSize).Err(); err != nil {
		return cache.BackendUnavailable(err, "purge")
	}
	return nil
}

// Flush implements cache.Flusher by scanning the store prefix. On cluster
// clients only the node serving the scan is flushed.
func (s *RedisStore) Flush(ctx context.Context) error {
	var cursor uint64
	match := s.prefix + ":*"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, scanBatchSize).Result()
		if err != nil {
			return cache.BackendUnavailable(err, "flush")
		}
		for _, k := range keys {
			// keys hash to different slots, delete one at a time
			if err := s.client.Del(ctx, k).Err(); err != nil {
				return cache.BackendUnavailable(err, "flush")
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Ping reports whether the backend is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return cache.BackendUnavailable(s.client.Ping(ctx).Err(), "ping")
}

// Close releases the client when the store dialed it.
func (s *RedisStore) Close() error {
	if !s.closeClient {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) entryKey(key cache.Key) string {
	return s.prefix + ":{" + slotEscaper.Replace(key.Tag) + "}:entry:" + key.Digest
}

func (s *RedisStore) tagKey(tag string) string {
	return s.prefix + ":{" + slotEscaper.Replace(tag) + "}:tag"
}

func frame(payload []byte) []byte {
	out := make([]byte, checksumSize+len(payload))
	binary.BigEndian.PutUint64(out, xxhash.Sum64(payload))
	copy(out[checksumSize:], payload)
	return out
}

func unframe(raw []byte) ([]byte, bool) {
	if len(raw) < checksumSize {
		return nil, false
	}
	payload := raw[checksumSize:]
	if binary.BigEndian.Uint64(raw[:checksumSize]) != xxhash.Sum64(payload) {
		return nil, false
	}
	return payload, true
}
