package sqlite

import (
	"context"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/lucapanzeri/telegram-auction-bot/internal/clock"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store"
)

// GiftRepo implements store.GiftRepository on SQLite. INSERT OR IGNORE
// against the (gift_id, user_id) primary key is the double-redemption
// guard.
type GiftRepo struct {
	db    *DB
	clock clock.Clock
}

// NewGiftRepo returns a new GiftRepo.
func NewGiftRepo(db *DB, clk clock.Clock) *GiftRepo {
	return &GiftRepo{db: db, clock: clk}
}

func (r *GiftRepo) CreateOffer(ctx context.Context, g *store.GiftOffer) error {
	g.CreatedAt = r.clock.Now().UTC()
	var changes int
	err := r.db.with(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn,
			`INSERT OR IGNORE INTO gift_offers (id, amount, created_at) VALUES (?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{g.ID, g.Amount, g.CreatedAt.Unix()}}); err != nil {
			return err
		}
		changes = conn.Changes()
		return nil
	})
	if err != nil {
		return err
	}
	if changes == 0 {
		return store.ErrDuplicateOffer
	}
	return nil
}

func (r *GiftRepo) GetOffer(ctx context.Context, giftID string) (*store.GiftOffer, error) {
	var g *store.GiftOffer
	err := r.db.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, amount, created_at FROM gift_offers WHERE id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{giftID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					g = &store.GiftOffer{
						ID:        stmt.ColumnText(0),
						Amount:    stmt.ColumnInt(1),
						CreatedAt: time.Unix(stmt.ColumnInt64(2), 0).UTC(),
					}
					return nil
				},
			})
	})
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, store.ErrNotFound
	}
	return g, nil
}

func (r *GiftRepo) InsertClaim(ctx context.Context, giftID, userID string) error {
	var changes int
	err := r.db.with(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn,
			`INSERT OR IGNORE INTO gift_claims (gift_id, user_id, claimed_at) VALUES (?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{giftID, userID, r.clock.Now().Unix()}}); err != nil {
			return err
		}
		changes = conn.Changes()
		return nil
	})
	if err != nil {
		return err
	}
	if changes == 0 {
		return store.ErrAlreadyClaimed
	}
	return nil
}
