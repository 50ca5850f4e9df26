// Package db provides PostgreSQL access for CoreTet tracks, playlists,
// shares, invites, and provider tokens.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Common errors.
var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("duplicate key")
)

// Pool is the subset of pgxpool.Pool used by the repositories.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Options tunes the connection pool.
type Options struct {
	ConnectTimeout time.Duration
	MaxConns       int32
}

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool  Pool
	close func()
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string, opts Options) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	if opts.ConnectTimeout > 0 {
		config.ConnConfig.ConnectTimeout = opts.ConnectTimeout
	}
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{pool: pool, close: pool.Close}, nil
}

// NewWithPool wraps an existing pool, such as a pgxmock pool in tests.
func NewWithPool(pool Pool) *DB {
	return &DB{pool: pool, close: func() {}}
}

// Close closes the database connection pool.
func (db *DB) Close() {
	db.close()
}

// Profiles returns a ProfileRepository.
func (db *DB) Profiles() *ProfileRepository {
	return &ProfileRepository{pool: db.pool}
}

// Tracks returns a TrackRepository.
func (db *DB) Tracks() *TrackRepository {
	return &TrackRepository{pool: db.pool}
}

// Playlists returns a PlaylistRepository.
func (db *DB) Playlists() *PlaylistRepository {
	return &PlaylistRepository{pool: db.pool}
}

// Shares returns a ShareRepository.
func (db *DB) Shares() *ShareRepository {
	return &ShareRepository{pool: db.pool}
}

// Invites returns an InviteRepository.
func (db *DB) Invites() *InviteRepository {
	return &InviteRepository{pool: db.pool}
}

// ProviderTokens returns a ProviderTokenRepository.
func (db *DB) ProviderTokens() *ProviderTokenRepository {
	return &ProviderTokenRepository{pool: db.pool}
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
