// Package cache holds the shared types of the query cache: keys, compiled
// queries, result sets, the Store contract, the serialization codec and the
// error taxonomy.
//
// # Keys
//
// A Key pairs the entity tag with a digest of the compiled query and its
// bindings:
//
//	enc := cache.NewDefaultKeyEncoder()
//	key := enc.EncodeKey("posts", cache.NewQuery("SELECT * FROM posts WHERE id = ?", 1))
//	key.String() // 5:posts::<32 hex chars>
//
// Bindings are rendered in a canonical, type-tagged form before hashing
// (int:1, str:"abc", time:2024-01-02T03:04:05Z, ...). Maps are emitted with
// sorted keys, pointers are dereferenced and structs contribute their exported
// fields. The default encoder hashes with XXH3-128. NewRawKeyEncoder keeps the
// canonical text as the digest when collisions must be ruled out entirely.
//
// Function values are rendered by address. That is stable for the lifetime of
// a process only, so keys derived from closures must not be shared with other
// processes through a distributed Store.
//
// # Stores
//
// Store is the persistence contract consumed by the querycache package. Every
// Put registers the key under key.Tag so that PurgeTag can drop a whole group
// at once. Implementations live in internal/cacheinfra and are constructed
// through the store package.
//
// # Errors
//
// Store and codec failures are reported as go-errors values carrying the
// CACHE_BACKEND_UNAVAILABLE or CACHE_SERIALIZATION_FAILED text codes. Both are
// recoverable: the interception layer logs them and serves the read from the
// data source.
package cache
