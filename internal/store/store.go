package store

import (
	"context"
	"time"
)

// StatusActive marks an auction open for bids. Settlement moves the row
// to the archive rather than flipping the status.
const StatusActive = "active"

// Wallet holds a participant's spendable balance. Wallets are created
// lazily: the first balance query or credit materializes the row.
type Wallet struct {
	UserID      string    `db:"user_id"`
	DisplayName string    `db:"display_name"`
	Balance     int       `db:"balance"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Auction is a live auction row. CurrentBidder is nil until the first
// accepted bid. Deadline slides forward on every accepted bid.
type Auction struct {
	ID            string    `db:"id"`
	LotID         string    `db:"lot_id"`
	ItemName      string    `db:"item_name"`
	CurrentBid    int       `db:"current_bid"`
	CurrentBidder *string   `db:"current_bidder"`
	Status        string    `db:"status"`
	Deadline      time.Time `db:"deadline"`
	CreatedAt     time.Time `db:"created_at"`
}

// ArchivedAuction is the settled record of a closed auction. Archival is
// a move: once this row exists the active row is gone.
type ArchivedAuction struct {
	ID            string    `db:"id"`
	ItemName      string    `db:"item_name"`
	SettledAmount int       `db:"settled_amount"`
	Winner        *string   `db:"winner"`
	ArchivedAt    time.Time `db:"archived_at"`
}

// GiftOffer is a one-time claimable credit posted by an operator.
type GiftOffer struct {
	ID        string    `db:"id"`
	Amount    int       `db:"amount"`
	CreatedAt time.Time `db:"created_at"`
}

// WalletRepository defines wallet persistence. Implementations serialize
// balance mutations per wallet; Credit and Debit are atomic
// read-modify-write steps.
type WalletRepository interface {
	// Get returns the wallet for userID, or ErrNotFound.
	Get(ctx context.Context, userID string) (*Wallet, error)
	// Ensure creates the wallet with a zero balance if it does not exist
	// and returns it either way.
	Ensure(ctx context.Context, userID, displayName string) (*Wallet, error)
	// Credit adds amount, creating the wallet at amount if absent.
	// Returns the resulting balance.
	Credit(ctx context.Context, userID, displayName string, amount int) (int, error)
	// SetBalance replaces the balance unconditionally.
	SetBalance(ctx context.Context, userID string, amount int) error
	// Debit subtracts amount, failing with ErrInsufficientFunds if the
	// balance would go negative.
	Debit(ctx context.Context, userID string, amount int) error
	// List returns every wallet ordered by balance, highest first.
	List(ctx context.Context) ([]Wallet, error)
}

// AuctionRepository defines auction persistence and the atomic bid and
// archive primitives the bidding engine is built on.
type AuctionRepository interface {
	// Create inserts an active auction and fills in its ID.
	Create(ctx context.Context, a *Auction) error
	// GetByID returns the active auction, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Auction, error)
	// GetByItemName returns the active auction for an item name, or
	// ErrNotFound. The earliest-created match wins if two lots reuse a
	// name.
	GetByItemName(ctx context.Context, itemName string) (*Auction, error)
	// CommitBid atomically checks that the auction is active with
	// current_bid == proposed-1 and that the bidder's balance covers
	// proposed, then commits the new bid fields and deadline. Returns
	// ErrConflict if another bid won the race, ErrInsufficientFunds if
	// the balance check fails, ErrNotFound if the auction is gone.
	CommitBid(ctx context.Context, auctionID, bidderID string, proposed int, deadline time.Time) error
	// Archive moves the active auction into the archive and returns the
	// archived record. Exactly one caller succeeds per auction; losers
	// get ErrNotFound.
	Archive(ctx context.Context, id string) (*ArchivedAuction, error)
	// GetArchived returns an archived auction, or ErrNotFound.
	GetArchived(ctx context.Context, id string) (*ArchivedAuction, error)
	// ListActive returns all active auctions in creation order.
	ListActive(ctx context.Context) ([]Auction, error)
	// ListByLot returns the active auctions of one lot in creation order.
	ListByLot(ctx context.Context, lotID string) ([]Auction, error)
	// ListExpired returns active auctions whose deadline is at or before now.
	ListExpired(ctx context.Context, now time.Time) ([]Auction, error)
}

// GiftRepository defines gift offers and the exactly-once claim insert.
type GiftRepository interface {
	// CreateOffer registers a gift offer, or ErrDuplicateOffer if the id
	// is already taken.
	CreateOffer(ctx context.Context, g *GiftOffer) error
	// GetOffer returns the offer, or ErrNotFound.
	GetOffer(ctx context.Context, giftID string) (*GiftOffer, error)
	// InsertClaim records that userID claimed giftID. If the pair
	// already exists it returns ErrAlreadyClaimed and changes nothing.
	InsertClaim(ctx context.Context, giftID, userID string) error
}
