package repositorycache

import (
	"context"
	"reflect"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/querycache"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// Interface assertion to ensure CachedRepository implements Repository[T]
var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// listResult wraps the tuple result from List operations for caching
type listResult[T any] struct {
	Records []T `msgpack:"records"`
	Total   int `msgpack:"total"`
}

// CachedRepository decorates a base repository with tag based result caching
type CachedRepository[T any] struct {
	base   repository.Repository[T]
	ic     *querycache.Interceptor
	entity querycache.Cacheable
	db     bun.IDB
}

// Option configures a CachedRepository
type Option func(*options)

type options struct {
	entity querycache.Cacheable
	db     bun.IDB
}

// WithEntity sets the cache configuration instead of resolving it from T
func WithEntity(entity querycache.Cacheable) Option {
	return func(o *options) {
		o.entity = entity
	}
}

// WithDB compiles select criteria into SQL with db so reads that use them
// can be cached. Without it only criteria free reads are cached.
func WithDB(db bun.IDB) Option {
	return func(o *options) {
		o.db = db
	}
}

// New creates a CachedRepository around base. The entity configuration comes
// from WithEntity, then from T implementing querycache.Cacheable, then from
// the interceptor registry under TagFor[T]. When none is found reads pass
// through and writes still purge TagFor[T].
func New[T any](base repository.Repository[T], ic *querycache.Interceptor, opts ...Option) *CachedRepository[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	entity := o.entity
	if entity == nil {
		entity = querycache.EntityFor[T]()
	}
	if entity == nil {
		entity = ic.Entity(querycache.TagFor[T]())
	}
	if entity == nil {
		entity = querycache.Define(querycache.CacheableConfig{Tag: querycache.TagFor[T]()})
	}

	return &CachedRepository[T]{
		base:   base,
		ic:     ic,
		entity: entity,
		db:     o.db,
	}
}

// Entity returns the cache configuration in use
func (c *CachedRepository[T]) Entity() querycache.Cacheable {
	return c.entity
}

// Get retrieves a single record using the provided criteria, with caching
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	fetch := func(ctx context.Context) (T, error) {
		return c.base.Get(ctx, criteria...)
	}
	q, ok := c.readQuery("Get", criteria)
	if !ok {
		return fetch(ctx)
	}
	return querycache.Remember(ctx, c.ic, c.entity, q, fetch)
}

// GetByID retrieves a record by ID with optional criteria, with caching
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	fetch := func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id, criteria...)
	}
	q, ok := c.readQuery("GetByID", criteria, id)
	if !ok {
		return fetch(ctx)
	}
	return querycache.Remember(ctx, c.ic, c.entity, q, fetch)
}

// GetByIdentifier retrieves a record by identifier with optional criteria, with caching
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	fetch := func(ctx context.Context) (T, error) {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	}
	q, ok := c.readQuery("GetByIdentifier", criteria, identifier)
	if !ok {
		return fetch(ctx)
	}
	return querycache.Remember(ctx, c.ic, c.entity, q, fetch)
}

// List retrieves multiple records using the provided criteria. Records and
// total are cached as one unit.
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	fetch := func(ctx context.Context) (listResult[T], error) {
		records, total, err := c.base.List(ctx, criteria...)
		return listResult[T]{Records: records, Total: total}, err
	}
	q, ok := c.readQuery("List", criteria)
	if !ok {
		res, err := fetch(ctx)
		return res.Records, res.Total, err
	}
	res, err := querycache.Remember(ctx, c.ic, c.entity, q, fetch)
	if err != nil {
		return nil, 0, err
	}
	return res.Records, res.Total, nil
}

// Count returns the number of records matching the criteria, with caching
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	fetch := func(ctx context.Context) (int, error) {
		return c.base.Count(ctx, criteria...)
	}
	q, ok := c.readQuery("Count", criteria)
	if !ok {
		return fetch(ctx)
	}
	return querycache.Remember(ctx, c.ic, c.entity, q, fetch)
}

// Create creates a new record and purges the entity tag on success
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	return writeThrough(ctx, c, func(ctx context.Context) (T, error) {
		return c.base.Create(ctx, record, criteria...)
	})
}

// CreateTx creates a new record within a transaction. The purge runs before
// the transaction commits.
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	return writeThrough(ctx, c, func(ctx context.Context) (T, error) {
		return c.base.CreateTx(ctx, tx, record, criteria...)
	})
}

// CreateMany creates multiple records
func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	return writeThrough(ctx, c, func(ctx context.Context) ([]T, error) {
		return c.base.CreateMany(ctx, records, criteria...)
	})
}

// CreateManyTx creates multiple records within a transaction
func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	return writeThrough(ctx, c, func(ctx context.Context) ([]T, error) {
		return c.base.CreateManyTx(ctx, tx, records, criteria...)
	})
}

// GetOrCreate gets a record or creates it if it doesn't exist. It may write,
// so it always purges on success.
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	return writeThrough(ctx, c, func(ctx context.Context) (T, error) {
		return c.base.GetOrCreate(ctx, record)
	})
}

// GetOrCreateTx gets a record or creates it if it doesn't exist within a transaction
func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	return writeThrough(ctx, c, func(ctx context.Context) (T, error) {
		return c.base.GetOrCreateTx(ctx, tx, record)
	})
}

// Update updates a record
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return writeThrough(ctx, c, func(ctx context.Context) (T, error) {
		return c.base.Update(ctx, record, criteria...)
	})
}

// UpdateTx updates a record within a transaction
func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return writeThrough(ctx, c, func(ctx context.Context) (T, error) {
		return c.base.UpdateTx(ctx, tx, record, criteria...)
	})
}

// UpdateMany updates multiple records
func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return writeThrough(ctx, c, func(ctx context.Context) ([]T, error) {
		return c.base.UpdateMany(ctx, records, criteria...)
	})
}

// UpdateManyTx updates multiple records within a transaction
func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return writeThrough(ctx, c, func(ctx context.Context) ([]T, error) {
		return c.base.UpdateManyTx(ctx, tx, records, criteria...)
	})
}

// Upsert inserts or updates a record
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return writeThrough(ctx, c, func(ctx context.Context) (T, error) {
		return c.base.Upsert(ctx, record, criteria...)
	})
}

// UpsertTx inserts or updates a record within a transaction
func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	return writeThrough(ctx, c, func(ctx context.Context) (T, error) {
		return c.base.UpsertTx(ctx, tx, record, criteria...)
	})
}

// UpsertMany inserts or updates multiple records
func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return writeThrough(ctx, c, func(ctx context.Context) ([]T, error) {
		return c.base.UpsertMany(ctx, records, criteria...)
	})
}

// UpsertManyTx inserts or updates multiple records within a transaction
func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	return writeThrough(ctx, c, func(ctx context.Context) ([]T, error) {
		return c.base.UpsertManyTx(ctx, tx, records, criteria...)
	})
}

// Delete deletes a record
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	return writeErr(ctx, c, func(ctx context.Context) error {
		return c.base.Delete(ctx, record)
	})
}

// DeleteTx deletes a record within a transaction
func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return writeErr(ctx, c, func(ctx context.Context) error {
		return c.base.DeleteTx(ctx, tx, record)
	})
}

// DeleteMany deletes multiple records based on criteria
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return writeErr(ctx, c, func(ctx context.Context) error {
		return c.base.DeleteMany(ctx, criteria...)
	})
}

// DeleteManyTx deletes multiple records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return writeErr(ctx, c, func(ctx context.Context) error {
		return c.base.DeleteManyTx(ctx, tx, criteria...)
	})
}

// DeleteWhere deletes records based on criteria
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return writeErr(ctx, c, func(ctx context.Context) error {
		return c.base.DeleteWhere(ctx, criteria...)
	})
}

// DeleteWhereTx deletes records based on criteria within a transaction
func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return writeErr(ctx, c, func(ctx context.Context) error {
		return c.base.DeleteWhereTx(ctx, tx, criteria...)
	})
}

// ForceDelete force deletes a record (bypassing soft delete)
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	return writeErr(ctx, c, func(ctx context.Context) error {
		return c.base.ForceDelete(ctx, record)
	})
}

// ForceDeleteTx force deletes a record within a transaction (bypassing soft delete)
func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return writeErr(ctx, c, func(ctx context.Context) error {
		return c.base.ForceDeleteTx(ctx, tx, record)
	})
}

// GetTx retrieves a single record using the provided criteria within a transaction
func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

// GetByIDTx retrieves a record by ID with optional criteria within a transaction
func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

// ListTx retrieves multiple records using the provided criteria within a transaction
func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

// CountTx returns the number of records matching the criteria within a transaction
func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

// GetByIdentifierTx retrieves a record by identifier with optional criteria within a transaction
func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw executes a raw SQL query and returns the results. Raw statements may
// write, so they are never cached.
func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

// RawTx executes a raw SQL query within a transaction and returns the results
func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the model handlers from the base repository
func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}

// readQuery builds the cache identity of a read. Criteria are closures and
// only become part of the key once compiled to SQL; without a DB a read that
// carries criteria is reported as not cacheable.
func (c *CachedRepository[T]) readQuery(method string, criteria []repository.SelectCriteria, args ...any) (cache.Query, bool) {
	if len(criteria) == 0 {
		return cache.Query{SQL: "repository:" + method, Args: args}, true
	}
	if c.db == nil {
		return cache.Query{}, false
	}

	sq := c.db.NewSelect().Model(newModel[T]())
	for _, criterion := range criteria {
		sq = criterion(sq)
	}
	b, err := sq.AppendQuery(schema.NewFormatter(c.db.Dialect()), nil)
	if err != nil {
		return cache.Query{}, false
	}
	return cache.Query{SQL: "repository:" + method + " " + string(b), Args: args}, true
}

// newModel allocates an empty model for T, dereferencing pointer types.
func newModel[T any]() any {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	return reflect.New(rt).Interface()
}

// writeThrough runs fn through the interceptor, which purges after a
// successful fn even if ctx is canceled by then.
func writeThrough[T, R any](ctx context.Context, c *CachedRepository[T], fn func(context.Context) (R, error)) (R, error) {
	var result R
	_, err := c.ic.Write(ctx, c.entity, func(ctx context.Context) (int64, error) {
		var err error
		result, err = fn(ctx)
		return 0, err
	})
	return result, err
}

func writeErr[T any](ctx context.Context, c *CachedRepository[T], fn func(context.Context) error) error {
	_, err := writeThrough(ctx, c, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
