package cache

import "context"

// Query is a compiled statement with unresolved placeholders and its
// positional bindings.
type Query struct {
	SQL  string
	Args []any
}

// NewQuery builds a Query from statement text and bindings.
func NewQuery(sql string, args ...any) Query {
	return Query{SQL: sql, Args: args}
}

// ResultSet is an ordered sequence of rows returned by a read. Counters that
// vary between executions, such as rows affected, are never part of it.
type ResultSet struct {
	Columns []string `msgpack:"columns"`
	Rows    [][]any  `msgpack:"rows"`
}

// Len returns the number of rows.
func (r ResultSet) Len() int {
	return len(r.Rows)
}

// Empty reports whether the result set has no rows.
func (r ResultSet) Empty() bool {
	return len(r.Rows) == 0
}

// Maps returns each row keyed by column name.
func (r ResultSet) Maps() []map[string]any {
	out := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		m := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			if i < len(row) {
				m[col] = row[i]
			}
		}
		out = append(out, m)
	}
	return out
}

// FetchFn loads a value from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)
