// Package sqlite provides a store driver backed by zombiezen.com/go/sqlite.
//
// SQLite serializes writes on its own, so the atomic primitives here are
// plain transactions; a small connection pool still helps concurrent
// reads. Timestamps are stored as unix seconds.
package sqlite

import (
	"context"
	"fmt"
	"runtime"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/lucapanzeri/telegram-auction-bot/internal/clock"
	"github.com/lucapanzeri/telegram-auction-bot/internal/config"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store"
)

func init() {
	store.Register("sqlite", openSQLite)
}

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
    user_id      TEXT PRIMARY KEY,
    display_name TEXT NOT NULL DEFAULT '',
    balance      INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS auctions (
    id             TEXT PRIMARY KEY,
    lot_id         TEXT NOT NULL,
    item_name      TEXT NOT NULL,
    current_bid    INTEGER NOT NULL DEFAULT 0,
    current_bidder TEXT,
    status         TEXT NOT NULL DEFAULT 'active',
    deadline       INTEGER NOT NULL,
    created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS auctions_lot_id_idx ON auctions (lot_id);
CREATE INDEX IF NOT EXISTS auctions_deadline_idx ON auctions (deadline);

CREATE TABLE IF NOT EXISTS archived_auctions (
    id             TEXT PRIMARY KEY,
    item_name      TEXT NOT NULL,
    settled_amount INTEGER NOT NULL DEFAULT 0,
    winner         TEXT,
    archived_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS gift_offers (
    id         TEXT PRIMARY KEY,
    amount     INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS gift_claims (
    gift_id    TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    claimed_at INTEGER NOT NULL,
    PRIMARY KEY (gift_id, user_id)
);

CREATE TABLE IF NOT EXISTS events (
    id           TEXT PRIMARY KEY,
    aggregate_id TEXT NOT NULL,
    type         TEXT NOT NULL,
    data         TEXT NOT NULL,
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS events_aggregate_id_idx ON events (aggregate_id);
CREATE INDEX IF NOT EXISTS events_type_idx ON events (type);
`

// DB wraps a sqlitex connection pool shared by all repositories.
type DB struct {
	pool *sqlitex.Pool
}

// openSQLite is the store.Driver for the "sqlite" backend.
func openSQLite(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	db, err := Open(ctx, cfg.Path)
	if err != nil {
		return nil, err
	}
	return &store.Repositories{
		Wallets:  NewWalletRepo(db, clk),
		Auctions: NewAuctionRepo(db, clk),
		Gifts:    NewGiftRepo(db, clk),
		Events:   NewEventStore(db, clk),
		Closer:   db,
		Ping:     db.Ping,
	}, nil
}

// Open creates the connection pool and applies the schema.
func Open(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: database path is required")
	}

	poolSize := runtime.NumCPU()
	if poolSize < 4 {
		poolSize = 4
	}
	if path == ":memory:" {
		// Each in-memory connection is a separate database.
		poolSize = 1
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteTransient(conn, `PRAGMA foreign_keys = ON;`, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", path, err)
	}

	db := &DB{pool: pool}
	if err := db.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, schema, nil)
	}); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sqlite: applying schema: %w", err)
	}
	return db, nil
}

// Close releases the connection pool.
func (db *DB) Close() error { return db.pool.Close() }

// Ping verifies a connection can be taken from the pool.
func (db *DB) Ping(ctx context.Context) error {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return err
	}
	db.pool.Put(conn)
	return nil
}

// with runs fn on a borrowed connection.
func (db *DB) with(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := db.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: take connection: %w", err)
	}
	defer db.pool.Put(conn)
	return fn(conn)
}
