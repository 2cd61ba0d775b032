package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"myperf/internal/util"

	// Registers the "mysql" driver.
	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// DB is one diagnostic connection. It wraps a single-connection pool so every
// statement issued through it shares the same server session.
type DB struct {
	*sql.DB
	// Observe, when set, is called after every query with its latency and error.
	Observe func(query string, elapsed time.Duration, err error)
}

// Wrap adapts an existing handle.
func Wrap(handle *sql.DB) *DB {
	return &DB{DB: handle}
}

// QueryContext runs a query and reports it to Observe.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := d.DB.QueryContext(ctx, query, args...)
	if d.Observe != nil {
		d.Observe(query, time.Since(start), err)
	}
	return rows, err
}

// Connector opens independent connections to the server.
type Connector interface {
	Connect(ctx context.Context) (*DB, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (*DB, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context) (*DB, error) {
	return f(ctx)
}

// DSNConnector opens a fresh single-connection handle per Connect call.
type DSNConnector struct {
	DSN string
	// Addr is the credential-free target used in error messages.
	Addr string
}

// NewDSNConnector validates dsn and returns a connector for it.
func NewDSNConnector(dsn string) (*DSNConnector, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse dsn")
	}
	return &DSNConnector{DSN: dsn, Addr: fmt.Sprintf("%s(%s)", cfg.Net, cfg.Addr)}, nil
}

// Connect opens and pings a new connection.
func (c *DSNConnector) Connect(ctx context.Context) (*DB, error) {
	handle, err := Open(ctx, c.DSN)
	if err != nil {
		return nil, &ConnectivityError{Addr: c.Addr, Cause: err}
	}
	return handle, nil
}

// Open opens a single-connection handle and verifies it with a ping.
func Open(ctx context.Context, dsn string) (*DB, error) {
	handle, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	handle.SetMaxOpenConns(1)
	handle.SetMaxIdleConns(1)
	if err := handle.PingContext(ctx); err != nil {
		util.CloseWithErr(handle, "db handle")
		return nil, err
	}
	return Wrap(handle), nil
}

// ConnectivityError reports that a connection to the server could not be
// opened or used (network, authentication, firewall).
type ConnectivityError struct {
	Addr  string
	Cause error
}

func (e *ConnectivityError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("connect to server: %v", e.Cause)
	}
	return fmt.Sprintf("connect to %s: %v", e.Addr, e.Cause)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Cause
}
