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

// GiftRepo implements store.GiftRepository with sqlx. The gift_claims
// primary key is the sole guard against double redemption; InsertClaim
// relies on ON CONFLICT DO NOTHING reporting zero affected rows.
type GiftRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewGiftRepo returns a new GiftRepo.
func NewGiftRepo(db *sqlx.DB, clk clock.Clock) *GiftRepo {
	return &GiftRepo{db: db, clock: clk}
}

func (r *GiftRepo) CreateOffer(ctx context.Context, g *store.GiftOffer) error {
	g.CreatedAt = r.clock.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO gift_offers (id, amount, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		g.ID, g.Amount, g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating gift offer: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return store.ErrDuplicateOffer
	}
	return nil
}

func (r *GiftRepo) GetOffer(ctx context.Context, giftID string) (*store.GiftOffer, error) {
	var g store.GiftOffer
	err := r.db.GetContext(ctx, &g, `SELECT * FROM gift_offers WHERE id = $1`, giftID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting gift offer: %w", err)
	}
	return &g, nil
}

func (r *GiftRepo) InsertClaim(ctx context.Context, giftID, userID string) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO gift_claims (gift_id, user_id, claimed_at) VALUES ($1, $2, $3)
		 ON CONFLICT (gift_id, user_id) DO NOTHING`,
		giftID, userID, r.clock.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting gift claim: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return store.ErrAlreadyClaimed
	}
	return nil
}
