// Package mysqlsql executes store statements directly against MySQL.
package mysqlsql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/raakeshmj/keygate/internal/store"
)

type DB struct {
	db *sql.DB
}

// Open parses dsn and opens a pool. Timestamps are kept as text so rows look
// the same as those of the HTTP endpoint.
func Open(dsn string) (*DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysqlsql: parse dsn: %w", err)
	}
	cfg.ParseTime = false
	cfg.Loc = time.UTC

	conn, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysqlsql: connector: %w", err)
	}

	db := sql.OpenDB(conn)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &DB{db: db}, nil
}

func (d *DB) Close() error { return d.db.Close() }

func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

func (d *DB) Exec(ctx context.Context, query string, args ...any) (*store.Result, error) {
	args = store.NormalizeArgs(args)

	if returnsRows(query) {
		rows, err := d.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, &store.Error{Op: "query", Query: query, Err: err}
		}
		defer rows.Close()

		out, err := scan(rows)
		if err != nil {
			return nil, &store.Error{Op: "scan", Query: query, Err: err}
		}
		return &store.Result{Rows: out, RowsAffected: -1}, nil
	}

	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, &store.Error{Op: "exec", Query: query, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		n = -1
	}
	return &store.Result{RowsAffected: n}, nil
}

func returnsRows(query string) bool {
	f := strings.Fields(query)
	if len(f) == 0 {
		return false
	}
	switch strings.ToUpper(f[0]) {
	case "SELECT", "SHOW", "DESCRIBE", "EXPLAIN", "WITH":
		return true
	}
	return false
}

func scan(rows *sql.Rows) ([]store.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []store.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(store.Row, len(cols))
		for i, c := range cols {
			row[c] = store.FromDriver(vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
