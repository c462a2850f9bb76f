package sqlite

import (
	"context"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/lucapanzeri/telegram-auction-bot/internal/clock"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store"
)

// WalletRepo implements store.WalletRepository on SQLite.
type WalletRepo struct {
	db    *DB
	clock clock.Clock
}

// NewWalletRepo returns a new WalletRepo.
func NewWalletRepo(db *DB, clk clock.Clock) *WalletRepo {
	return &WalletRepo{db: db, clock: clk}
}

func scanWallet(stmt *sqlite.Stmt) store.Wallet {
	return store.Wallet{
		UserID:      stmt.ColumnText(0),
		DisplayName: stmt.ColumnText(1),
		Balance:     stmt.ColumnInt(2),
		CreatedAt:   time.Unix(stmt.ColumnInt64(3), 0).UTC(),
		UpdatedAt:   time.Unix(stmt.ColumnInt64(4), 0).UTC(),
	}
}

func (r *WalletRepo) Get(ctx context.Context, userID string) (*store.Wallet, error) {
	var w *store.Wallet
	err := r.db.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT user_id, display_name, balance, created_at, updated_at FROM wallets WHERE user_id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{userID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					got := scanWallet(stmt)
					w = &got
					return nil
				},
			})
	})
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, store.ErrNotFound
	}
	return w, nil
}

func (r *WalletRepo) Ensure(ctx context.Context, userID, displayName string) (*store.Wallet, error) {
	now := r.clock.Now().Unix()
	err := r.db.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT OR IGNORE INTO wallets (user_id, display_name, balance, created_at, updated_at)
			 VALUES (?, ?, 0, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{userID, displayName, now, now}})
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, userID)
}

func (r *WalletRepo) Credit(ctx context.Context, userID, displayName string, amount int) (int, error) {
	now := r.clock.Now().Unix()
	balance := 0
	err := r.db.with(ctx, func(conn *sqlite.Conn) (err error) {
		defer sqlitex.Transaction(conn)(&err)

		if err := sqlitex.Execute(conn,
			`INSERT INTO wallets (user_id, display_name, balance, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (user_id) DO UPDATE
			     SET balance = balance + excluded.balance, updated_at = excluded.updated_at`,
			&sqlitex.ExecOptions{Args: []any{userID, displayName, amount, now, now}}); err != nil {
			return err
		}
		return sqlitex.Execute(conn,
			`SELECT balance FROM wallets WHERE user_id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{userID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					balance = stmt.ColumnInt(0)
					return nil
				},
			})
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *WalletRepo) SetBalance(ctx context.Context, userID string, amount int) error {
	now := r.clock.Now().Unix()
	return r.db.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO wallets (user_id, balance, created_at, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (user_id) DO UPDATE
			     SET balance = excluded.balance, updated_at = excluded.updated_at`,
			&sqlitex.ExecOptions{Args: []any{userID, amount, now, now}})
	})
}

func (r *WalletRepo) Debit(ctx context.Context, userID string, amount int) error {
	now := r.clock.Now().Unix()
	var changes int
	err := r.db.with(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn,
			`UPDATE wallets SET balance = balance - ?, updated_at = ?
			 WHERE user_id = ? AND balance >= ?`,
			&sqlitex.ExecOptions{Args: []any{amount, now, userID, amount}}); err != nil {
			return err
		}
		changes = conn.Changes()
		return nil
	})
	if err != nil {
		return err
	}
	if changes == 0 {
		if _, getErr := r.Get(ctx, userID); getErr != nil {
			return getErr
		}
		return store.ErrInsufficientFunds
	}
	return nil
}

func (r *WalletRepo) List(ctx context.Context) ([]store.Wallet, error) {
	var wallets []store.Wallet
	err := r.db.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT user_id, display_name, balance, created_at, updated_at
			 FROM wallets ORDER BY balance DESC, user_id ASC`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					wallets = append(wallets, scanWallet(stmt))
					return nil
				},
			})
	})
	if err != nil {
		return nil, err
	}
	return wallets, nil
}
