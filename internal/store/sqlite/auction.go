package sqlite

import (
	"context"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/lucapanzeri/telegram-auction-bot/internal/clock"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store"
)

// AuctionRepo implements store.AuctionRepository on SQLite. SQLite runs
// one writer at a time, so the check-and-commit steps only need a
// transaction to be atomic.
type AuctionRepo struct {
	db    *DB
	clock clock.Clock
}

// NewAuctionRepo returns a new AuctionRepo.
func NewAuctionRepo(db *DB, clk clock.Clock) *AuctionRepo {
	return &AuctionRepo{db: db, clock: clk}
}

func scanAuction(stmt *sqlite.Stmt) store.Auction {
	a := store.Auction{
		ID:         stmt.ColumnText(0),
		LotID:      stmt.ColumnText(1),
		ItemName:   stmt.ColumnText(2),
		CurrentBid: stmt.ColumnInt(3),
		Status:     stmt.ColumnText(5),
		Deadline:   time.Unix(stmt.ColumnInt64(6), 0).UTC(),
		CreatedAt:  time.Unix(stmt.ColumnInt64(7), 0).UTC(),
	}
	if !stmt.ColumnIsNull(4) {
		bidder := stmt.ColumnText(4)
		a.CurrentBidder = &bidder
	}
	return a
}

const auctionColumns = `id, lot_id, item_name, current_bid, current_bidder, status, deadline, created_at`

func (r *AuctionRepo) Create(ctx context.Context, a *store.Auction) error {
	a.ID = uuid.NewString()
	a.Status = store.StatusActive
	a.CreatedAt = r.clock.Now().UTC()
	return r.db.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO auctions (id, lot_id, item_name, current_bid, status, deadline, created_at)
			 VALUES (?, ?, ?, 0, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				a.ID, a.LotID, a.ItemName, a.Status, a.Deadline.Unix(), a.CreatedAt.Unix(),
			}})
	})
}

func (r *AuctionRepo) getOnConn(conn *sqlite.Conn, id string) (*store.Auction, error) {
	var a *store.Auction
	err := sqlitex.Execute(conn,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				got := scanAuction(stmt)
				a = &got
				return nil
			},
		})
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (r *AuctionRepo) GetByID(ctx context.Context, id string) (*store.Auction, error) {
	var a *store.Auction
	err := r.db.with(ctx, func(conn *sqlite.Conn) error {
		got, err := r.getOnConn(conn, id)
		if err != nil {
			return err
		}
		a = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *AuctionRepo) GetByItemName(ctx context.Context, itemName string) (*store.Auction, error) {
	var a *store.Auction
	err := r.db.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT `+auctionColumns+` FROM auctions WHERE item_name = ? ORDER BY created_at ASC LIMIT 1`,
			&sqlitex.ExecOptions{
				Args: []any{itemName},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					got := scanAuction(stmt)
					a = &got
					return nil
				},
			})
	})
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (r *AuctionRepo) CommitBid(ctx context.Context, auctionID, bidderID string, proposed int, deadline time.Time) error {
	return r.db.with(ctx, func(conn *sqlite.Conn) (err error) {
		defer sqlitex.Transaction(conn)(&err)

		a, err := r.getOnConn(conn, auctionID)
		if err != nil {
			return err
		}
		if a.Status != store.StatusActive {
			return store.ErrAuctionClosed
		}
		if a.CurrentBid != proposed-1 {
			return store.ErrConflict
		}

		balance := -1
		if err := sqlitex.Execute(conn,
			`SELECT balance FROM wallets WHERE user_id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{bidderID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					balance = stmt.ColumnInt(0)
					return nil
				},
			}); err != nil {
			return err
		}
		if balance < 0 {
			return store.ErrNotFound
		}
		if balance < proposed {
			return store.ErrInsufficientFunds
		}

		return sqlitex.Execute(conn,
			`UPDATE auctions SET current_bid = ?, current_bidder = ?, deadline = ? WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{proposed, bidderID, deadline.Unix(), auctionID}})
	})
}

func (r *AuctionRepo) Archive(ctx context.Context, id string) (*store.ArchivedAuction, error) {
	var archived *store.ArchivedAuction
	err := r.db.with(ctx, func(conn *sqlite.Conn) (err error) {
		defer sqlitex.Transaction(conn)(&err)

		a, err := r.getOnConn(conn, id)
		if err != nil {
			return err
		}

		archived = &store.ArchivedAuction{
			ID:            a.ID,
			ItemName:      a.ItemName,
			SettledAmount: a.CurrentBid,
			Winner:        a.CurrentBidder,
			ArchivedAt:    r.clock.Now().UTC(),
		}
		var winner any
		if archived.Winner != nil {
			winner = *archived.Winner
		}
		if err := sqlitex.Execute(conn,
			`INSERT INTO archived_auctions (id, item_name, settled_amount, winner, archived_at)
			 VALUES (?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				archived.ID, archived.ItemName, archived.SettledAmount, winner, archived.ArchivedAt.Unix(),
			}}); err != nil {
			return err
		}
		return sqlitex.Execute(conn, `DELETE FROM auctions WHERE id = ?`,
			&sqlitex.ExecOptions{Args: []any{id}})
	})
	if err != nil {
		return nil, err
	}
	return archived, nil
}

func (r *AuctionRepo) GetArchived(ctx context.Context, id string) (*store.ArchivedAuction, error) {
	var a *store.ArchivedAuction
	err := r.db.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, item_name, settled_amount, winner, archived_at FROM archived_auctions WHERE id = ?`,
			&sqlitex.ExecOptions{
				Args: []any{id},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					got := store.ArchivedAuction{
						ID:            stmt.ColumnText(0),
						ItemName:      stmt.ColumnText(1),
						SettledAmount: stmt.ColumnInt(2),
						ArchivedAt:    time.Unix(stmt.ColumnInt64(4), 0).UTC(),
					}
					if !stmt.ColumnIsNull(3) {
						winner := stmt.ColumnText(3)
						got.Winner = &winner
					}
					a = &got
					return nil
				},
			})
	})
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (r *AuctionRepo) list(ctx context.Context, query string, args ...any) ([]store.Auction, error) {
	var auctions []store.Auction
	err := r.db.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				auctions = append(auctions, scanAuction(stmt))
				return nil
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return auctions, nil
}

func (r *AuctionRepo) ListActive(ctx context.Context) ([]store.Auction, error) {
	return r.list(ctx, `SELECT `+auctionColumns+` FROM auctions ORDER BY created_at ASC, id ASC`)
}

func (r *AuctionRepo) ListByLot(ctx context.Context, lotID string) ([]store.Auction, error) {
	return r.list(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE lot_id = ? ORDER BY created_at ASC, id ASC`, lotID)
}

func (r *AuctionRepo) ListExpired(ctx context.Context, now time.Time) ([]store.Auction, error) {
	return r.list(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE deadline <= ? ORDER BY deadline ASC`, now.Unix())
}
