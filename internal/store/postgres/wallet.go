package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/lucapanzeri/telegram-auction-bot/internal/clock"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store"
)

// WalletRepo implements store.WalletRepository with sqlx.
type WalletRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewWalletRepo returns a new WalletRepo.
func NewWalletRepo(db *sqlx.DB, clk clock.Clock) *WalletRepo {
	return &WalletRepo{db: db, clock: clk}
}

func (r *WalletRepo) Get(ctx context.Context, userID string) (*store.Wallet, error) {
	var w store.Wallet
	err := r.db.GetContext(ctx, &w, `SELECT * FROM wallets WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting wallet: %w", err)
	}
	return &w, nil
}

func (r *WalletRepo) Ensure(ctx context.Context, userID, displayName string) (*store.Wallet, error) {
	now := r.clock.Now().UTC()
	var w store.Wallet
	// The no-op DO UPDATE makes RETURNING yield the existing row.
	err := r.db.GetContext(ctx, &w,
		`INSERT INTO wallets (user_id, display_name, balance, created_at, updated_at)
		 VALUES ($1, $2, 0, $3, $3)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = wallets.user_id
		 RETURNING *`,
		userID, displayName, now,
	)
	if err != nil {
		return nil, fmt.Errorf("ensuring wallet: %w", err)
	}
	return &w, nil
}

func (r *WalletRepo) Credit(ctx context.Context, userID, displayName string, amount int) (int, error) {
	now := r.clock.Now().UTC()
	var balance int
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO wallets (user_id, display_name, balance, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (user_id) DO UPDATE
		     SET balance = wallets.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at
		 RETURNING balance`,
		userID, displayName, amount, now,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("crediting wallet: %w", err)
	}
	return balance, nil
}

func (r *WalletRepo) SetBalance(ctx context.Context, userID string, amount int) error {
	now := r.clock.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO wallets (user_id, balance, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)
		 ON CONFLICT (user_id) DO UPDATE
		     SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at`,
		userID, amount, now,
	)
	if err != nil {
		return fmt.Errorf("setting balance: %w", err)
	}
	return nil
}

func (r *WalletRepo) Debit(ctx context.Context, userID string, amount int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE wallets SET balance = balance - $1, updated_at = $2
		 WHERE user_id = $3 AND balance >= $1`,
		amount, r.clock.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("debiting wallet: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		// Distinguish a missing wallet from one that cannot cover the debit.
		if _, getErr := r.Get(ctx, userID); getErr != nil {
			return getErr
		}
		return store.ErrInsufficientFunds
	}
	return nil
}

func (r *WalletRepo) List(ctx context.Context) ([]store.Wallet, error) {
	var wallets []store.Wallet
	err := r.db.SelectContext(ctx, &wallets, `SELECT * FROM wallets ORDER BY balance DESC, user_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing wallets: %w", err)
	}
	return wallets, nil
}
