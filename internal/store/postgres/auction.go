package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/lucapanzeri/telegram-auction-bot/internal/clock"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store"
)

// AuctionRepo implements store.AuctionRepository with sqlx.
//
// CommitBid and Archive run in transactions that lock rows in a fixed
// order (auction before wallet) so concurrent bids, settlements and
// sweeps cannot deadlock.
type AuctionRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewAuctionRepo returns a new AuctionRepo.
func NewAuctionRepo(db *sqlx.DB, clk clock.Clock) *AuctionRepo {
	return &AuctionRepo{db: db, clock: clk}
}

func (r *AuctionRepo) Create(ctx context.Context, a *store.Auction) error {
	a.Status = store.StatusActive
	a.CreatedAt = r.clock.Now().UTC()
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO auctions (lot_id, item_name, current_bid, status, deadline, created_at)
		 VALUES ($1, $2, 0, $3, $4, $5) RETURNING id`,
		a.LotID, a.ItemName, a.Status, a.Deadline, a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("creating auction: %w", err)
	}
	return nil
}

func (r *AuctionRepo) GetByID(ctx context.Context, id string) (*store.Auction, error) {
	var a store.Auction
	err := r.db.GetContext(ctx, &a, `SELECT * FROM auctions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting auction: %w", err)
	}
	return &a, nil
}

func (r *AuctionRepo) GetByItemName(ctx context.Context, itemName string) (*store.Auction, error) {
	var a store.Auction
	err := r.db.GetContext(ctx, &a,
		`SELECT * FROM auctions WHERE item_name = $1 ORDER BY created_at ASC LIMIT 1`, itemName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting auction by item name: %w", err)
	}
	return &a, nil
}

func (r *AuctionRepo) CommitBid(ctx context.Context, auctionID, bidderID string, proposed int, deadline time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning bid transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var a store.Auction
	err = tx.GetContext(ctx, &a, `SELECT * FROM auctions WHERE id = $1 FOR UPDATE`, auctionID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("locking auction: %w", err)
	}
	if a.Status != store.StatusActive {
		return store.ErrAuctionClosed
	}
	if a.CurrentBid != proposed-1 {
		return store.ErrConflict
	}

	var balance int
	err = tx.GetContext(ctx, &balance, `SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`, bidderID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("locking wallet: %w", err)
	}
	if balance < proposed {
		return store.ErrInsufficientFunds
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE auctions SET current_bid = $1, current_bidder = $2, deadline = $3 WHERE id = $4`,
		proposed, bidderID, deadline, auctionID,
	); err != nil {
		return fmt.Errorf("committing bid: %w", err)
	}

	return tx.Commit()
}

func (r *AuctionRepo) Archive(ctx context.Context, id string) (*store.ArchivedAuction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning archive transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var a store.Auction
	err = tx.GetContext(ctx, &a, `SELECT * FROM auctions WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		// Already archived or never existed; the caller decides which.
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking auction for archive: %w", err)
	}

	archived := &store.ArchivedAuction{
		ID:            a.ID,
		ItemName:      a.ItemName,
		SettledAmount: a.CurrentBid,
		Winner:        a.CurrentBidder,
		ArchivedAt:    r.clock.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO archived_auctions (id, item_name, settled_amount, winner, archived_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		archived.ID, archived.ItemName, archived.SettledAmount, archived.Winner, archived.ArchivedAt,
	); err != nil {
		return nil, fmt.Errorf("inserting archived auction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM auctions WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("removing active auction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing archive: %w", err)
	}
	return archived, nil
}

func (r *AuctionRepo) GetArchived(ctx context.Context, id string) (*store.ArchivedAuction, error) {
	var a store.ArchivedAuction
	err := r.db.GetContext(ctx, &a, `SELECT * FROM archived_auctions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting archived auction: %w", err)
	}
	return &a, nil
}

func (r *AuctionRepo) ListActive(ctx context.Context) ([]store.Auction, error) {
	var auctions []store.Auction
	err := r.db.SelectContext(ctx, &auctions, `SELECT * FROM auctions ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing active auctions: %w", err)
	}
	return auctions, nil
}

func (r *AuctionRepo) ListByLot(ctx context.Context, lotID string) ([]store.Auction, error) {
	var auctions []store.Auction
	err := r.db.SelectContext(ctx, &auctions,
		`SELECT * FROM auctions WHERE lot_id = $1 ORDER BY created_at ASC, id ASC`, lotID)
	if err != nil {
		return nil, fmt.Errorf("listing lot auctions: %w", err)
	}
	return auctions, nil
}

func (r *AuctionRepo) ListExpired(ctx context.Context, now time.Time) ([]store.Auction, error) {
	var auctions []store.Auction
	err := r.db.SelectContext(ctx, &auctions,
		`SELECT * FROM auctions WHERE deadline <= $1 ORDER BY deadline ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("listing expired auctions: %w", err)
	}
	return auctions, nil
}
