// Package querycache intercepts reads and writes issued against a data
// source and caches read results by entity tag.
//
// Entities opt in by implementing Cacheable or through Define. A read of an
// enabled entity is keyed by its tag, statement text and bindings. On a hit
// the stored result set is decoded and returned without touching the data
// source; on a miss the read runs, its result is encoded, stored and the
// decoded copy returned, so both paths yield identical values.
//
// A successful write purges the entity tag, any tags it lists in
// Invalidates and any tags attached to the context with WithPurgeTags.
// Failed writes purge nothing.
//
// Two strategies can be combined. Config.Enabled caches every eligible read
// in the shared Store. Config.Duplicate keeps a per request memo, attached
// with Interceptor.WithRequestScope, that answers repeated reads within the
// same request before the store is consulted.
//
// The cache is best effort. Store errors, timeouts and undecodable entries
// are logged and treated as misses; callers only ever see data source errors.
//
//	ic, _ := querycache.New(store.NewNull(), querycache.DefaultConfig())
//	posts := querycache.Define(querycache.CacheableConfig{Enabled: true, Tag: "posts"})
//	rs, err := ic.Read(ctx, posts, cache.NewQuery("SELECT * FROM posts WHERE id = ?", 1), db.ExecuteRead)
package querycache
