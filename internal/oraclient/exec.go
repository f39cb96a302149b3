// Package oraclient is an optional execution helper around a translated
// query, used only by the CLI's exec subcommand. No package in the core
// translation pipeline (ast, optoken, mparse, render, the root aggquery
// package) imports this one: translation never requires a database
// connection, and this package exists solely so a caller that already has
// one can run the result without hand-rolling godror bind wiring.
package oraclient

import (
	"context"
	"database/sql"

	_ "github.com/godror/godror"
)

// Client wraps a *sql.DB opened with the godror driver.
type Client struct {
	db *sql.DB
}

// Open opens a connection pool against dsn, a godror connect string
// (typically "user/password@host:port/service_name").
func Open(dsn string) (*Client, error) {
	db, err := sql.Open("godror", dsn)
	if err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error { return c.db.Close() }

// Rows executes sqlText with binds in order and returns the raw *sql.Rows;
// the caller owns closing it. Intended for ad-hoc inspection of a
// translated query's output, not as a general-purpose query API.
func (c *Client) Rows(ctx context.Context, sqlText string, binds []any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, sqlText, binds...)
}

// Exec runs sqlText (an INSERT/MERGE produced by a $out/$merge pipeline)
// with binds in order and returns the number of rows affected.
func (c *Client) Exec(ctx context.Context, sqlText string, binds []any) (int64, error) {
	res, err := c.db.ExecContext(ctx, sqlText, binds...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
