package datasource

import (
	"context"
	"database/sql"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/querycache"
	"github.com/uptrace/bun"
)

// Bun executes compiled queries through a bun connection, transaction or
// database handle. Statements use bun placeholders; bindings are formatted
// by the dialect before they reach the driver.
type Bun struct {
	db bun.IDB
}

var _ querycache.Executor = (*Bun)(nil)

// NewBun wraps db.
func NewBun(db bun.IDB) *Bun {
	return &Bun{db: db}
}

// DB returns the wrapped handle.
func (b *Bun) DB() bun.IDB {
	return b.db
}

// ExecuteRead runs q and collects every row. Column values are normalized so
// they survive an encode and decode cycle unchanged: text comes back as
// string, integers as int64, floats as float64.
func (b *Bun) ExecuteRead(ctx context.Context, q cache.Query) (cache.ResultSet, error) {
	rows, err := b.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return cache.ResultSet{}, wrapQueryError(err, "read", q)
	}
	defer rows.Close()

	rs, err := scanRows(rows)
	if err != nil {
		return cache.ResultSet{}, wrapQueryError(err, "scan", q)
	}
	return rs, nil
}

// ExecuteWrite runs q and reports the rows affected.
func (b *Bun) ExecuteWrite(ctx context.Context, q cache.Query) (int64, error) {
	res, err := b.db.ExecContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return 0, wrapQueryError(err, "write", q)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapQueryError(err, "rows affected", q)
	}
	return n, nil
}

// FromSelect compiles sq and returns it with the table it reads, for use as
// the entity tag. The bindings are already formatted into the statement.
func FromSelect(sq *bun.SelectQuery) (cache.Query, string) {
	return cache.Query{SQL: sq.String()}, sq.GetTableName()
}

func scanRows(rows *sql.Rows) (cache.ResultSet, error) {
	cols, err := rows.ColumnTypes()
	if err != nil {
		return cache.ResultSet{}, err
	}

	rs := cache.ResultSet{Columns: make([]string, len(cols))}
	binary := make([]bool, len(cols))
	for i, col := range cols {
		rs.Columns[i] = col.Name()
		binary[i] = isBinaryType(col.DatabaseTypeName())
	}

	for rows.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return cache.ResultSet{}, err
		}
		for i, v := range values {
			values[i] = normalize(v, binary[i])
		}
		rs.Rows = append(rs.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return cache.ResultSet{}, err
	}
	return rs, nil
}

func isBinaryType(name string) bool {
	name = strings.ToUpper(name)
	return strings.Contains(name, "BLOB") ||
		strings.Contains(name, "BINARY") ||
		name == "BYTEA"
}

func normalize(v any, binary bool) any {
	switch x := v.(type) {
	case []byte:
		if binary {
			return append([]byte(nil), x...)
		}
		return string(x)
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

func wrapQueryError(err error, op string, q cache.Query) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, "datasource "+op+" failed").
		WithTextCode("DATASOURCE_QUERY_FAILED").
		WithMetadata(map[string]any{
			"operation": op,
			"sql":       q.SQL,
		})
}
