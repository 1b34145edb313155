package testsupport

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/store"
)

func TestLoadFixture(t *testing.T) {
	path := TempFile(t, "test.txt", []byte("test fixture content"))

	result := LoadFixture(t, path)
	if string(result) != "test fixture content" {
		t.Errorf("expected fixture content, got %q", result)
	}
}

func TestLoadFixtureJSON(t *testing.T) {
	path := TempFile(t, "test.json", []byte(`{"name":"posts","ttl":"5m","tags":["a","b"]}`))

	var result struct {
		Name string   `json:"name"`
		TTL  string   `json:"ttl"`
		Tags []string `json:"tags"`
	}
	LoadFixtureJSON(t, path, &result)

	if result.Name != "posts" || result.TTL != "5m" || len(result.Tags) != 2 {
		t.Errorf("unexpected fixture content: %+v", result)
	}
}

func TestTempFile(t *testing.T) {
	path := TempFile(t, "config.toml", []byte("enabled = true\n"))

	if filepath.Base(path) != "config.toml" {
		t.Errorf("expected file name config.toml, got %s", filepath.Base(path))
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("temp file should exist: %v", err)
	}
}

func TestFixturePath(t *testing.T) {
	if got := FixturePath("schema.sql"); got != filepath.Join("testdata", "schema.sql") {
		t.Errorf("unexpected fixture path %s", got)
	}
}

func TestSpyStore_CountsAndFails(t *testing.T) {
	inner, err := store.New(store.DefaultConfig())
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	spy := NewSpyStore(inner)
	ctx := context.Background()
	key := cache.Key{Tag: "posts", Digest: "a"}

	if err := spy.Put(ctx, key, []byte("x"), cache.NoExpiration); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, found, err := spy.Get(ctx, key); err != nil || !found {
		t.Fatalf("Get() = found %v, err %v", found, err)
	}

	spy.FailWith(errors.New("offline"))
	if _, _, err := spy.Get(ctx, key); !cache.IsBackendUnavailable(err) {
		t.Errorf("expected backend unavailable, got %v", err)
	}
	if err := spy.PurgeTag(ctx, "posts"); !cache.IsBackendUnavailable(err) {
		t.Errorf("expected backend unavailable, got %v", err)
	}

	calls := spy.Calls()
	if calls.Get != 2 || calls.Put != 1 || calls.PurgeTag != 1 {
		t.Errorf("unexpected calls %+v", calls)
	}
	if purged := spy.Purged(); len(purged) != 1 || purged[0] != "posts" {
		t.Errorf("unexpected purged tags %v", purged)
	}

	spy.FailWith(nil)
	spy.Reset()
	if _, found, _ := spy.Get(ctx, key); !found {
		t.Error("entry should survive a failed purge")
	}
	if calls := spy.Calls(); calls.Get != 1 {
		t.Errorf("Reset() should clear counters, got %+v", calls)
	}
}

func TestSpyStore_DelayHonoursContext(t *testing.T) {
	spy := NewSpyStore(store.NewNull())
	spy.Delay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err := spy.Get(ctx, cache.Key{Tag: "posts", Digest: "a"})
	if !cache.IsBackendUnavailable(err) {
		t.Errorf("expected backend unavailable, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("delay should stop at the context deadline")
	}
}

func TestCountingExecutor(t *testing.T) {
	exec := &CountingExecutor{
		ReadFn: func(ctx context.Context, q cache.Query) (cache.ResultSet, error) {
			return cache.ResultSet{Columns: []string{"id"}, Rows: [][]any{{int64(1)}}}, nil
		},
	}
	ctx := context.Background()

	rs, err := exec.ExecuteRead(ctx, cache.NewQuery("SELECT id FROM posts"))
	if err != nil || rs.Len() != 1 {
		t.Fatalf("ExecuteRead() = %v, %v", rs, err)
	}
	if _, err := exec.ExecuteWrite(ctx, cache.NewQuery("DELETE FROM posts")); err != nil {
		t.Fatalf("ExecuteWrite() error = %v", err)
	}

	if exec.Reads() != 1 || exec.Writes() != 1 {
		t.Errorf("reads=%d writes=%d", exec.Reads(), exec.Writes())
	}
	if qs := exec.ReadQueries(); qs[0].SQL != "SELECT id FROM posts" {
		t.Errorf("unexpected read %q", qs[0].SQL)
	}
}
