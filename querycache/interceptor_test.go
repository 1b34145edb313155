package querycache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/pkg/testsupport"
	"github.com/goliatone/go-query-cache/querycache"
	"github.com/goliatone/go-query-cache/store"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var posts = querycache.Define(querycache.CacheableConfig{Enabled: true, Tag: "posts"})

// postsTable is a tiny in-memory posts table answering the statements used
// in these tests.
type postsTable struct {
	mu     sync.Mutex
	titles map[int64]string
}

func newPostsTable() *postsTable {
	return &postsTable{titles: map[int64]string{1: "A", 2: "Z"}}
}

func (p *postsTable) read(ctx context.Context, q cache.Query) (cache.ResultSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := q.Args[0].(int64)
	rs := cache.ResultSet{Columns: []string{"id", "title"}}
	if title, ok := p.titles[id]; ok {
		rs.Rows = append(rs.Rows, []any{id, title})
	}
	return rs, nil
}

func (p *postsTable) write(ctx context.Context, q cache.Query) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	title := q.Args[0].(string)
	id := q.Args[1].(int64)
	if _, ok := p.titles[id]; !ok {
		return 0, nil
	}
	p.titles[id] = title
	return 1, nil
}

type fixture struct {
	ic    *querycache.Interceptor
	spy   *testsupport.SpyStore
	exec  *testsupport.CountingExecutor
	table *postsTable
}

func newFixture(t *testing.T, cfg querycache.Config, opts ...querycache.Option) *fixture {
	t.Helper()

	inner, err := store.New(store.DefaultConfig())
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { store.Close(inner) })

	spy := testsupport.NewSpyStore(inner)
	ic, err := querycache.New(spy, cfg, opts...)
	if err != nil {
		t.Fatalf("querycache.New() error = %v", err)
	}

	table := newPostsTable()
	return &fixture{
		ic:    ic,
		spy:   spy,
		table: table,
		exec: &testsupport.CountingExecutor{
			ReadFn:  table.read,
			WriteFn: table.write,
		},
	}
}

func selectPost(id int64) cache.Query {
	return cache.NewQuery("SELECT * FROM posts WHERE id = ?", id)
}

func updatePost(id int64, title string) cache.Query {
	return cache.NewQuery("UPDATE posts SET title = ? WHERE id = ?", title, id)
}

func titleOf(t *testing.T, rs cache.ResultSet) string {
	t.Helper()
	if rs.Len() != 1 {
		t.Fatalf("expected one row, got %d", rs.Len())
	}
	title, ok := rs.Rows[0][1].(string)
	if !ok {
		t.Fatalf("title column is %T", rs.Rows[0][1])
	}
	return title
}

func TestInterceptor_PostScenario(t *testing.T) {
	f := newFixture(t, querycache.DefaultConfig())
	src := f.ic.Source(f.exec, posts)
	ctx := context.Background()

	first, err := src.Read(ctx, selectPost(1))
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if got := titleOf(t, first); got != "A" {
		t.Fatalf("first read title = %q, want A", got)
	}

	second, err := src.Read(ctx, selectPost(1))
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached read differs (-first +second):\n%s", diff)
	}
	if f.exec.Reads() != 1 {
		t.Fatalf("second read should be served from cache, executor saw %d reads", f.exec.Reads())
	}

	n, err := src.Write(ctx, updatePost(1, "B"))
	if err != nil || n != 1 {
		t.Fatalf("write = %d, %v", n, err)
	}

	third, err := src.Read(ctx, selectPost(1))
	if err != nil {
		t.Fatalf("third read: %v", err)
	}
	if got := titleOf(t, third); got != "B" {
		t.Errorf("read after write title = %q, want B", got)
	}
	if f.exec.Reads() != 2 {
		t.Errorf("read after write should reach the executor, saw %d reads", f.exec.Reads())
	}

	stats := f.ic.Stats()
	if stats.Hits != 1 || stats.Misses != 2 || stats.Purges != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestInterceptor_BindingsSeparateEntries(t *testing.T) {
	f := newFixture(t, querycache.DefaultConfig())
	src := f.ic.Source(f.exec, posts)
	ctx := context.Background()

	a, _ := src.Read(ctx, selectPost(1))
	z, _ := src.Read(ctx, selectPost(2))
	if titleOf(t, a) != "A" || titleOf(t, z) != "Z" {
		t.Fatalf("unexpected titles %q %q", titleOf(t, a), titleOf(t, z))
	}
	if f.exec.Reads() != 2 {
		t.Errorf("different bindings must not share an entry, saw %d reads", f.exec.Reads())
	}
}

func TestInterceptor_DisabledNeverTouchesStore(t *testing.T) {
	tests := []struct {
		name   string
		cfg    func(*querycache.Config)
		setup  func(*querycache.Interceptor)
		entity querycache.Cacheable
		ctx    func(context.Context) context.Context
	}{
		{
			name:   "globally disabled",
			cfg:    func(c *querycache.Config) { c.Enabled = false },
			entity: posts,
		},
		{
			name:   "disabled at runtime",
			setup:  func(ic *querycache.Interceptor) { ic.Disable() },
			entity: posts,
		},
		{
			name:   "entity disabled",
			entity: querycache.Define(querycache.CacheableConfig{Enabled: false, Tag: "posts"}),
		},
		{
			name:   "entity without config",
			entity: nil,
		},
		{
			name:   "entity without tag",
			entity: querycache.Define(querycache.CacheableConfig{Enabled: true}),
		},
		{
			name:   "bypassed per call",
			entity: posts,
			ctx:    querycache.WithoutCache,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := querycache.DefaultConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			f := newFixture(t, cfg)
			if tt.setup != nil {
				tt.setup(f.ic)
			}
			ctx := context.Background()
			if tt.ctx != nil {
				ctx = tt.ctx(ctx)
			}

			for i := 0; i < 2; i++ {
				rs, err := f.ic.Read(ctx, tt.entity, selectPost(1), f.exec.ExecuteRead)
				if err != nil {
					t.Fatalf("read %d: %v", i, err)
				}
				if titleOf(t, rs) != "A" {
					t.Fatalf("read %d returned wrong row", i)
				}
			}

			calls := f.spy.Calls()
			if calls.Get != 0 || calls.Put != 0 {
				t.Errorf("store must not be touched, got %+v", calls)
			}
			if f.exec.Reads() != 2 {
				t.Errorf("every read should reach the executor, saw %d", f.exec.Reads())
			}
			if f.ic.Stats().Bypasses != 2 {
				t.Errorf("expected 2 bypasses, got %+v", f.ic.Stats())
			}
		})
	}
}

func TestInterceptor_UnavailableBackend(t *testing.T) {
	f := newFixture(t, querycache.DefaultConfig())
	src := f.ic.Source(f.exec, posts)
	ctx := context.Background()

	f.spy.FailWith(errors.New("connection refused"))

	for i := 0; i < 2; i++ {
		rs, err := src.Read(ctx, selectPost(1))
		if err != nil {
			t.Fatalf("read %d must not surface store errors: %v", i, err)
		}
		if titleOf(t, rs) != "A" {
			t.Fatalf("read %d returned wrong row", i)
		}
	}

	if _, err := src.Write(ctx, updatePost(1, "B")); err != nil {
		t.Fatalf("write must succeed when purge fails: %v", err)
	}
	rs, err := src.Read(ctx, selectPost(1))
	if err != nil || titleOf(t, rs) != "B" {
		t.Fatalf("read after write = %v, %v", rs, err)
	}

	if f.exec.Reads() != 3 {
		t.Errorf("all reads should fall back to the executor, saw %d", f.exec.Reads())
	}
	if f.ic.Stats().StoreErrors == 0 {
		t.Error("store errors should be counted")
	}
}

func TestInterceptor_StoreTimeoutIsAMiss(t *testing.T) {
	cfg := querycache.DefaultConfig()
	cfg.StoreTimeout = cache.Duration(10 * time.Millisecond)
	f := newFixture(t, cfg)
	f.spy.Delay(time.Second)

	start := time.Now()
	rs, err := f.ic.Read(context.Background(), posts, selectPost(1), f.exec.ExecuteRead)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if titleOf(t, rs) != "A" {
		t.Fatal("read returned wrong row")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("store calls should be bounded by the timeout, took %v", elapsed)
	}
}

func TestInterceptor_FailedWriteDoesNotPurge(t *testing.T) {
	f := newFixture(t, querycache.DefaultConfig())
	ctx := context.Background()
	writeErr := errors.New("constraint violation")

	if _, err := f.ic.Read(ctx, posts, selectPost(1), f.exec.ExecuteRead); err != nil {
		t.Fatalf("read: %v", err)
	}

	_, err := f.ic.Write(ctx, posts, func(ctx context.Context) (int64, error) {
		return 0, writeErr
	})
	if !errors.Is(err, writeErr) {
		t.Fatalf("write error should be returned unchanged, got %v", err)
	}
	if purged := f.spy.Purged(); len(purged) != 0 {
		t.Errorf("failed write purged %v", purged)
	}

	if _, err := f.ic.Read(ctx, posts, selectPost(1), f.exec.ExecuteRead); err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.exec.Reads() != 1 {
		t.Errorf("cached entry should survive a failed write, saw %d reads", f.exec.Reads())
	}
}

func TestInterceptor_WriteCanceledAfterCommitStillPurges(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := querycache.DefaultConfig()
	cfg.StoreTimeout = cache.Duration(time.Second)
	ic, err := querycache.New(store.NewRedis(client, "qc"), cfg)
	if err != nil {
		t.Fatalf("querycache.New() error = %v", err)
	}

	table := newPostsTable()
	exec := &testsupport.CountingExecutor{ReadFn: table.read, WriteFn: table.write}

	rs, err := ic.Read(context.Background(), posts, selectPost(1), exec.ExecuteRead)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := titleOf(t, rs); got != "A" {
		t.Fatalf("first read = %q, want A", got)
	}

	// the request goes away right after the row is committed
	ctx, cancel := context.WithCancel(context.Background())
	n, err := ic.Write(ctx, posts, func(ctx context.Context) (int64, error) {
		defer cancel()
		return exec.ExecuteWrite(ctx, updatePost(1, "B"))
	})
	if err != nil || n != 1 {
		t.Fatalf("write = %d, %v", n, err)
	}

	rs, err = ic.Read(context.Background(), posts, selectPost(1), exec.ExecuteRead)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := titleOf(t, rs); got != "B" {
		t.Errorf("read after committed write = %q, want B", got)
	}
	if stats := ic.Stats(); stats.StoreErrors != 0 {
		t.Errorf("purge should not see the canceled context, stats %+v", stats)
	}
	if exec.Reads() != 2 {
		t.Errorf("expected the second read to miss, saw %d reads", exec.Reads())
	}
}

func TestInterceptor_ExecutionErrorIsNotCached(t *testing.T) {
	f := newFixture(t, querycache.DefaultConfig())
	ctx := context.Background()
	readErr := errors.New("no such table")

	calls := 0
	exec := func(ctx context.Context, q cache.Query) (cache.ResultSet, error) {
		calls++
		if calls == 1 {
			return cache.ResultSet{}, readErr
		}
		return f.table.read(ctx, q)
	}

	if _, err := f.ic.Read(ctx, posts, selectPost(1), exec); !errors.Is(err, readErr) {
		t.Fatalf("expected read error, got %v", err)
	}
	if f.spy.Calls().Put != 0 {
		t.Error("failed reads must not be stored")
	}
	rs, err := f.ic.Read(ctx, posts, selectPost(1), exec)
	if err != nil || titleOf(t, rs) != "A" {
		t.Fatalf("second read = %v, %v", rs, err)
	}
	if calls != 2 {
		t.Errorf("expected the executor to run again, ran %d times", calls)
	}
}

func TestInterceptor_PurgeTwiceIsNoop(t *testing.T) {
	f := newFixture(t, querycache.DefaultConfig())
	ctx := context.Background()

	if _, err := f.ic.Read(ctx, posts, selectPost(1), f.exec.ExecuteRead); err != nil {
		t.Fatalf("read: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := f.ic.PurgeTag(ctx, "posts"); err != nil {
			t.Fatalf("purge %d: %v", i, err)
		}
	}
	if err := f.ic.PurgeTag(ctx, "never-cached"); err != nil {
		t.Errorf("purging an unknown tag: %v", err)
	}
	if err := f.ic.PurgeTag(ctx, ""); err != nil {
		t.Errorf("purging an empty tag: %v", err)
	}

	if _, err := f.ic.Read(ctx, posts, selectPost(1), f.exec.ExecuteRead); err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.exec.Reads() != 2 {
		t.Errorf("read after purge should miss, saw %d reads", f.exec.Reads())
	}
}

func TestInterceptor_InvalidatesDependentTags(t *testing.T) {
	f := newFixture(t, querycache.DefaultConfig())
	comments := querycache.Define(querycache.CacheableConfig{
		Enabled:     true,
		Tag:         "comments",
		Invalidates: []string{"posts", "comments"},
	})
	ctx := querycache.WithPurgeTags(context.Background(), "feeds", "posts")

	if _, err := f.ic.Read(ctx, posts, selectPost(1), f.exec.ExecuteRead); err != nil {
		t.Fatalf("read: %v", err)
	}

	_, err := f.ic.Write(ctx, comments, func(ctx context.Context) (int64, error) { return 1, nil })
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	want := []string{"comments", "posts", "feeds"}
	if diff := cmp.Diff(want, f.spy.Purged()); diff != "" {
		t.Errorf("purged tags (-want +got):\n%s", diff)
	}

	if _, err := f.ic.Read(ctx, posts, selectPost(1), f.exec.ExecuteRead); err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.exec.Reads() != 2 {
		t.Errorf("dependent entity should be invalidated, saw %d reads", f.exec.Reads())
	}
}

func TestInterceptor_InvalidateWhileDisabled(t *testing.T) {
	f := newFixture(t, querycache.DefaultConfig())
	ctx := context.Background()

	if _, err := f.ic.Read(ctx, posts, selectPost(1), f.exec.ExecuteRead); err != nil {
		t.Fatalf("read: %v", err)
	}

	f.ic.Disable()
	if _, err := f.ic.Source(f.exec, posts).Write(ctx, updatePost(1, "B")); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.ic.Enable()

	rs, err := f.ic.Read(ctx, posts, selectPost(1), f.exec.ExecuteRead)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if titleOf(t, rs) != "B" {
		t.Error("writes made while disabled must still purge")
	}
}

func TestInterceptor_RuntimeToggle(t *testing.T) {
	cfg := querycache.DefaultConfig()
	cfg.Enabled = false
	f := newFixture(t, cfg)
	ctx := context.Background()

	if f.ic.IsEnabled() {
		t.Fatal("interceptor should start disabled")
	}

	f.ic.Enable()
	if !f.ic.IsEnabled() {
		t.Fatal("Enable() should turn caching on")
	}
	for i := 0; i < 2; i++ {
		if _, err := f.ic.Read(ctx, posts, selectPost(1), f.exec.ExecuteRead); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if f.exec.Reads() != 1 {
		t.Errorf("enabled interceptor should cache, saw %d reads", f.exec.Reads())
	}

	f.ic.Disable()
	if _, err := f.ic.Read(ctx, posts, selectPost(1), f.exec.ExecuteRead); err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.exec.Reads() != 2 {
		t.Errorf("disabled interceptor should bypass, saw %d reads", f.exec.Reads())
	}
}

func TestInterceptor_UndecodableEntryIsAMiss(t *testing.T) {
	inner, err := store.New(store.DefaultConfig())
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	ic, err := querycache.New(inner, querycache.DefaultConfig())
	if err != nil {
		t.Fatalf("querycache.New() error = %v", err)
	}
	table := newPostsTable()
	ctx := context.Background()
	q := selectPost(1)

	key := cache.NewDefaultKeyEncoder().EncodeKey("posts", q)
	if err := inner.Put(ctx, key, []byte{0xc1}, cache.NoExpiration); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rs, err := ic.Read(ctx, posts, q, table.read)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if titleOf(t, rs) != "A" {
		t.Error("undecodable entry should fall back to the data source")
	}
	if ic.Stats().SerializationErrors != 1 {
		t.Errorf("expected one serialization error, got %+v", ic.Stats())
	}
}

func TestRemember_SerializationFailureReturnsFreshValue(t *testing.T) {
	f := newFixture(t, querycache.DefaultConfig())
	ctx := context.Background()

	type unencodable struct {
		Name string
		Fn   func()
	}

	got, err := querycache.Remember(ctx, f.ic, posts, selectPost(1), func(ctx context.Context) (unencodable, error) {
		return unencodable{Name: "fresh", Fn: func() {}}, nil
	})
	if err != nil {
		t.Fatalf("serialization failures must not surface: %v", err)
	}
	if got.Name != "fresh" {
		t.Errorf("expected the fresh value, got %+v", got)
	}
	if f.spy.Calls().Put != 0 {
		t.Error("unencodable values must not be stored")
	}
	if f.ic.Stats().SerializationErrors != 1 {
		t.Errorf("expected one serialization error, got %+v", f.ic.Stats())
	}
}

func TestRemember_TypedValues(t *testing.T) {
	f := newFixture(t, querycache.DefaultConfig())
	ctx := context.Background()

	type page struct {
		IDs   []int64 `msgpack:"ids"`
		Total int64   `msgpack:"total"`
	}

	calls := 0
	fetch := func(ctx context.Context) (page, error) {
		calls++
		return page{IDs: []int64{1, 2}, Total: 2}, nil
	}
	q := cache.NewQuery("SELECT id FROM posts ORDER BY id LIMIT ?", int64(10))

	first, err := querycache.Remember(ctx, f.ic, posts, q, fetch)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := querycache.Remember(ctx, f.ic, posts, q, fetch)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("typed values differ (-first +second):\n%s", diff)
	}
	if calls != 1 {
		t.Errorf("fetch should run once, ran %d times", calls)
	}
}

func TestRemember_ConcurrentPurgeSkipsStore(t *testing.T) {
	f := newFixture(t, querycache.DefaultConfig())
	ctx := context.Background()

	_, err := f.ic.Read(ctx, posts, selectPost(1), func(ctx context.Context, q cache.Query) (cache.ResultSet, error) {
		rs, err := f.table.read(ctx, q)
		// a write lands while the read is in flight
		f.ic.PurgeTag(ctx, "posts")
		return rs, err
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.spy.Calls().Put != 0 {
		t.Error("results fetched before a purge must not be stored")
	}
}

func TestInterceptor_DuplicateQueries(t *testing.T) {
	cfg := querycache.DefaultConfig()
	cfg.Enabled = false
	cfg.Duplicate.Enabled = true
	f := newFixture(t, cfg)

	ctx := f.ic.WithRequestScope(context.Background())
	if querycache.RequestID(ctx) == "" {
		t.Fatal("request scope should carry an id")
	}
	if again := f.ic.WithRequestScope(ctx); querycache.RequestID(again) != querycache.RequestID(ctx) {
		t.Error("nested scopes should reuse the outer memo")
	}

	for i := 0; i < 3; i++ {
		if _, err := f.ic.Read(ctx, posts, selectPost(1), f.exec.ExecuteRead); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if f.exec.Reads() != 1 {
		t.Errorf("duplicates within a request should hit the memo, saw %d reads", f.exec.Reads())
	}
	if calls := f.spy.Calls(); calls.Get != 0 || calls.Put != 0 {
		t.Errorf("memo only mode must not use the store, got %+v", calls)
	}

	if _, err := f.ic.Source(f.exec, posts).Write(ctx, updatePost(1, "B")); err != nil {
		t.Fatalf("write: %v", err)
	}
	rs, err := f.ic.Read(ctx, posts, selectPost(1), f.exec.ExecuteRead)
	if err != nil || titleOf(t, rs) != "B" {
		t.Fatalf("read after write = %v, %v", rs, err)
	}

	other := f.ic.WithRequestScope(context.Background())
	if _, err := f.ic.Read(other, posts, selectPost(1), f.exec.ExecuteRead); err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.exec.Reads() != 3 {
		t.Errorf("a new request must not see another request's memo, saw %d reads", f.exec.Reads())
	}

	stats := f.ic.Stats()
	if stats.RequestHits != 2 || stats.Hits != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestInterceptor_MemoAnsweredBeforeStore(t *testing.T) {
	cfg := querycache.DefaultConfig()
	cfg.Duplicate.Enabled = true
	f := newFixture(t, cfg)
	ctx := f.ic.WithRequestScope(context.Background())

	for i := 0; i < 3; i++ {
		if _, err := f.ic.Read(ctx, posts, selectPost(1), f.exec.ExecuteRead); err != nil {
			t.Fatalf("read: %v", err)
		}
	}

	if calls := f.spy.Calls(); calls.Get != 1 || calls.Put != 1 {
		t.Errorf("store should be consulted once, got %+v", calls)
	}

	// a fresh request finds the shared entry
	next := f.ic.WithRequestScope(context.Background())
	if _, err := f.ic.Read(next, posts, selectPost(1), f.exec.ExecuteRead); err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.exec.Reads() != 1 {
		t.Errorf("expected one executor read, saw %d", f.exec.Reads())
	}
}

func TestInterceptor_RequestScopeDisabled(t *testing.T) {
	f := newFixture(t, querycache.DefaultConfig())
	ctx := context.Background()

	if scoped := f.ic.WithRequestScope(ctx); querycache.RequestID(scoped) != "" {
		t.Error("request scope should be a no-op when duplicate caching is off")
	}
}

// ttlStore records the ttl of every Put. It does not implement Flush.
type ttlStore struct {
	mu   sync.Mutex
	ttls []time.Duration
}

func (s *ttlStore) Get(ctx context.Context, key cache.Key) ([]byte, bool, error) {
	return nil, false, nil
}

func (s *ttlStore) Put(ctx context.Context, key cache.Key, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttls = append(s.ttls, ttl)
	return nil
}

func (s *ttlStore) PurgeTag(ctx context.Context, tag string) error {
	return nil
}

func TestInterceptor_TTLResolution(t *testing.T) {
	tests := []struct {
		name       string
		defaultTTL querycache.TTL
		entityTTL  querycache.TTL
		want       time.Duration
	}{
		{name: "inherit forever", defaultTTL: querycache.Forever, want: cache.NoExpiration},
		{name: "inherit duration", defaultTTL: querycache.TTL(5 * time.Minute), want: 5 * time.Minute},
		{name: "entity overrides", defaultTTL: querycache.TTL(5 * time.Minute), entityTTL: querycache.TTL(time.Hour), want: time.Hour},
		{name: "entity forever", defaultTTL: querycache.TTL(5 * time.Minute), entityTTL: querycache.Forever, want: cache.NoExpiration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &ttlStore{}
			cfg := querycache.DefaultConfig()
			cfg.DefaultTTL = tt.defaultTTL
			ic, err := querycache.New(s, cfg)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			entity := querycache.Define(querycache.CacheableConfig{Enabled: true, Tag: "posts", TTL: tt.entityTTL})

			if _, err := ic.Read(context.Background(), entity, selectPost(1), newPostsTable().read); err != nil {
				t.Fatalf("read: %v", err)
			}
			if len(s.ttls) != 1 || s.ttls[0] != tt.want {
				t.Errorf("stored ttls %v, want [%v]", s.ttls, tt.want)
			}
		})
	}
}

func TestInterceptor_FlushAll(t *testing.T) {
	f := newFixture(t, querycache.DefaultConfig())
	ctx := context.Background()

	if _, err := f.ic.Read(ctx, posts, selectPost(1), f.exec.ExecuteRead); err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := f.ic.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll() error = %v", err)
	}
	if _, err := f.ic.Read(ctx, posts, selectPost(1), f.exec.ExecuteRead); err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.exec.Reads() != 2 {
		t.Errorf("read after flush should miss, saw %d reads", f.exec.Reads())
	}

	ic, err := querycache.New(&ttlStore{}, querycache.DefaultConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := ic.FlushAll(ctx); err == nil {
		t.Error("FlushAll() should fail on stores without flush support")
	}
}

func TestInterceptor_ReadSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	f := newFixture(t, querycache.DefaultConfig(), querycache.WithTracerProvider(tp))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.ic.Read(ctx, posts, selectPost(1), f.exec.ExecuteRead); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	// bypassed reads are not traced
	if _, err := f.ic.Read(ctx, nil, selectPost(1), f.exec.ExecuteRead); err != nil {
		t.Fatalf("read: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}

	var outcomes []string
	for _, span := range spans {
		if span.Name() != "querycache.read" {
			t.Errorf("unexpected span name %q", span.Name())
		}
		attrs := map[string]string{}
		for _, kv := range span.Attributes() {
			attrs[string(kv.Key)] = kv.Value.AsString()
		}
		if attrs["cache.tag"] != "posts" {
			t.Errorf("span tag = %q", attrs["cache.tag"])
		}
		outcomes = append(outcomes, attrs["cache.outcome"])
	}
	if diff := cmp.Diff([]string{querycache.OutcomeMiss, querycache.OutcomeHit}, outcomes); diff != "" {
		t.Errorf("span outcomes (-want +got):\n%s", diff)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := querycache.New(nil, querycache.DefaultConfig()); err == nil {
		t.Error("New() should require a store")
	}

	cfg := querycache.DefaultConfig()
	cfg.Duplicate.Enabled = true
	cfg.Duplicate.MaxEntries = 0
	_, err := querycache.New(store.NewNull(), cfg)
	if !goerrors.IsValidation(err) {
		t.Errorf("expected a validation error, got %v", err)
	}
}

func TestInterceptor_Registry(t *testing.T) {
	registry := querycache.NewRegistry()
	registry.Register("posts", posts)

	f := newFixture(t, querycache.DefaultConfig(), querycache.WithRegistry(registry))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.ic.Read(ctx, f.ic.Entity("Posts"), selectPost(1), f.exec.ExecuteRead); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if f.exec.Reads() != 1 {
		t.Errorf("registered entity should be cached, saw %d reads", f.exec.Reads())
	}
	if f.ic.Entity("unknown") != nil {
		t.Error("unknown entities should resolve to nil")
	}
}
