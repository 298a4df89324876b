package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mailrule/mailrule"
)

// Queries holds the lookup statements of a SQL directory. Each statement
// takes the key as its single parameter. ResolveQuery must select one
// column, the associated value; ContainsQuery may select anything, only
// the presence of a row matters. When ContainsQuery is empty,
// ResolveQuery is used for membership as well.
type Queries struct {
	ContainsQuery string
	ResolveQuery  string
}

// SQL is a directory backed by a database/sql database. Lookups run the
// configured queries with the caller's context, so a slow or unreachable
// backend is interruptible and its failure is reported as an error,
// distinct from "key not found".
type SQL struct {
	db      *sql.DB
	queries Queries
}

var _ mailrule.Directory = (*SQL)(nil)

// NewSQL builds a directory over the database.
func NewSQL(db *sql.DB, queries Queries) (*SQL, error) {
	if queries.ResolveQuery == "" {
		return nil, fmt.Errorf("sql directory: no resolve query")
	}
	if queries.ContainsQuery == "" {
		queries.ContainsQuery = queries.ResolveQuery
	}
	return &SQL{db: db, queries: queries}, nil
}

// Contains reports whether the key has a row.
func (s *SQL) Contains(ctx context.Context, key string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, s.queries.ContainsQuery, key)
	if err != nil {
		return false, fmt.Errorf("sql directory: %w", err)
	}
	defer rows.Close()

	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("sql directory: %w", err)
	}
	return found, nil
}

// Resolve returns the value the key's row holds.
func (s *SQL) Resolve(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.queries.ResolveQuery, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sql directory: %w", err)
	}
	return value, true, nil
}
