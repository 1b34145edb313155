package querycache

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-query-cache/cache"
)

// TTL is the lifetime of cached results. Zero means inherit the configured
// default, Forever keeps entries until their tag is purged.
type TTL time.Duration

// Forever keeps entries until an explicit purge.
const Forever TTL = -1

const foreverText = "forever"

// IsForever reports whether t never expires.
func (t TTL) IsForever() bool {
	return t == Forever
}

// StoreTTL converts t to the value passed to cache.Store.Put.
func (t TTL) StoreTTL() time.Duration {
	if t <= 0 {
		return cache.NoExpiration
	}
	return time.Duration(t)
}

func (t TTL) String() string {
	if t.IsForever() {
		return foreverText
	}
	return time.Duration(t).String()
}

// UnmarshalText accepts "forever" or a Go duration string.
func (t *TTL) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	switch {
	case s == "":
		*t = 0
		return nil
	case strings.EqualFold(s, foreverText):
		*t = Forever
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("querycache: invalid ttl %q: %w", s, err)
	}
	if d < 0 {
		return fmt.Errorf("querycache: negative ttl %q", s)
	}
	*t = TTL(d)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (t TTL) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// resolve applies the inherit rule against fallback.
func (t TTL) resolve(fallback TTL) TTL {
	if t == 0 {
		if fallback == 0 {
			return Forever
		}
		return fallback
	}
	return t
}
