// Package repository is the PostgreSQL persistence layer for users, recipe
// records and thumbnail records.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Options configures the connection pool. Zero values use the defaults.
type Options struct {
	URL      string
	MaxConns int32
	MinConns int32
	// PingTimeout bounds the connectivity check made by New.
	PingTimeout time.Duration
}

const (
	defaultMaxConns    = 10
	defaultMinConns    = 2
	defaultPingTimeout = 5 * time.Second
)

// Repository runs every query against one pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

// New opens the pool and fails unless the database answers a ping.
func New(ctx context.Context, opts Options) (*Repository, error) {
	config, err := poolConfig(opts)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{pool: pool}, nil
}

func poolConfig(opts Options) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	config.MaxConns = opts.MaxConns
	if config.MaxConns <= 0 {
		config.MaxConns = defaultMaxConns
	}
	config.MinConns = opts.MinConns
	if opts.MinConns == 0 {
		config.MinConns = min(defaultMinConns, config.MaxConns)
	}
	if config.MinConns < 0 || config.MinConns > config.MaxConns {
		return nil, fmt.Errorf("database min conns %d out of range [0, %d]", config.MinConns, config.MaxConns)
	}

	return config, nil
}

// Ping backs the readiness check.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool exposes the pool to test helpers.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// uniqueConstraint returns the violated constraint name if err is a
// unique violation.
func uniqueConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
