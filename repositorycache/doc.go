// Package repositorycache provides cached repository decorators for go-repository-bun.
//
// # Overview
//
// CachedRepository wraps a base repository and routes its reads and writes
// through a querycache.Interceptor. Reads are remembered under the entity tag;
// every successful write purges that tag, so the next read goes back to the
// database.
//
// # Basic Usage
//
//	ic, err := querycache.New(st, querycache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//
//	users := repositorycache.New[User](base, ic, repositorycache.WithDB(db))
//
//	user, err := users.GetByID(ctx, "user-123")
//	_, err = users.Update(ctx, user) // purges "users"
//
// # Entity Resolution
//
// The cache configuration comes from, in order:
//
//  1. WithEntity
//  2. T implementing querycache.Cacheable
//  3. the interceptor registry under querycache.TagFor[T]
//
// When none applies reads pass through and writes still purge TagFor[T], so
// other cached readers of the same table stay correct.
//
// # Cached vs Pass-through Operations
//
// Cached: Get, GetByID, GetByIdentifier, List (records and total as one
// entry) and Count.
//
// Purging: Create, Update, Upsert, Delete, ForceDelete, GetOrCreate and their
// Many and Tx variants. The purge runs only when the base call succeeds.
// Tx variants purge before the caller commits.
//
// Pass-through: Tx reads and Raw.
//
// # Criteria
//
// Select criteria are closures and cannot be told apart by value. With
// WithDB the criteria are compiled into SQL on a select over T and the SQL
// becomes part of the key. Without it, reads that carry criteria are not
// cached.
//
// # Error Handling
//
// Errors from the base repository are returned unchanged and never cached.
// Store failures degrade to misses inside the interceptor.
package repositorycache
