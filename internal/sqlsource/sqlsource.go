// Package sqlsource reads records from one SQL table and serves them as the
// authoritative loader for the cacheaside CLI.
package sqlsource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver, registered as "pgx"
	_ "modernc.org/sqlite"             // Pure Go SQLite driver - no CGO required
)

// Record is one row keyed by column name. []byte columns are returned as
// strings so records encode as readable JSON.
type Record map[string]any

// Row pairs a record with its identifier.
type Row struct {
	ID     string
	Record Record
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Source queries a single table by its id column.
type Source struct {
	db       *sql.DB
	idColumn string
	byID     string
	all      string
}

// Open connects with driver ("sqlite", "mysql" or "pgx") and verifies the
// connection.
func Open(ctx context.Context, driver, dsn, table, idColumn string) (*Source, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1) // SQLite only supports 1 writer
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}

	s, err := New(db, driver, table, idColumn)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database. Table and column names are interpolated into
// SQL, so only plain identifiers are accepted.
func New(db *sql.DB, driver, table, idColumn string) (*Source, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if !identRe.MatchString(idColumn) {
		return nil, fmt.Errorf("invalid id column %q", idColumn)
	}
	placeholder := "?"
	if driver == "pgx" {
		placeholder = "$1"
	}
	return &Source{
		db:       db,
		idColumn: idColumn,
		byID:     fmt.Sprintf("SELECT * FROM %s WHERE %s = %s", table, idColumn, placeholder),
		all:      fmt.Sprintf("SELECT * FROM %s ORDER BY %s", table, idColumn),
	}, nil
}

// Load fetches the record with the given id; found=false when no row matches.
func (s *Source) Load(ctx context.Context, id string) (Record, bool, error) {
	rows, err := s.db.QueryContext(ctx, s.byID, id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query record %s: %w", id, err)
	}
	defer rows.Close()

	recs, err := scan(rows)
	if err != nil {
		return nil, false, err
	}
	if len(recs) == 0 {
		return nil, false, nil
	}
	return recs[0], true, nil
}

// All returns every row, ordered by id.
func (s *Source) All(ctx context.Context) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, s.all)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	recs, err := scan(rows)
	if err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(recs))
	for _, r := range recs {
		id, ok := r[s.idColumn]
		if !ok {
			return nil, errors.New("id column missing from result set")
		}
		out = append(out, Row{ID: fmt.Sprint(id), Record: r})
	}
	return out, nil
}

func (s *Source) DB() *sql.DB  { return s.db }
func (s *Source) Close() error { return s.db.Close() }

func scan(rows *sql.Rows) ([]Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	var out []Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec := make(Record, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				rec[c] = string(b)
				continue
			}
			rec[c] = vals[i]
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return out, nil
}
