package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	AuctionOpened    Type = "auction.opened"
	AuctionBidPlaced Type = "auction.bid_placed"
	AuctionClosed    Type = "auction.closed"

	WalletCredited Type = "wallet.credited"
	WalletDebited  Type = "wallet.debited"
	WalletAdjusted Type = "wallet.adjusted"

	GiftOffered Type = "gift.offered"
	GiftClaimed Type = "gift.claimed"
)

// Event is an audit-trail record of a ledger mutation.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// AuctionOpenedData is the payload for AuctionOpened events.
type AuctionOpenedData struct {
	LotID    string    `json:"lot_id"`
	ItemName string    `json:"item_name"`
	Deadline time.Time `json:"deadline"`
}

// BidPlacedData is the payload for AuctionBidPlaced events.
type BidPlacedData struct {
	UserID string `json:"user_id"`
	Amount int    `json:"amount"`
}

// AuctionClosedData is the payload for AuctionClosed events.
type AuctionClosedData struct {
	ItemName string `json:"item_name"`
	Winner   string `json:"winner,omitempty"`
	Amount   int    `json:"amount"`
	Expired  bool   `json:"expired"`
}

// WalletChangeData is the payload for wallet events.
type WalletChangeData struct {
	UserID  string `json:"user_id"`
	Amount  int    `json:"amount"`
	Balance int    `json:"balance,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// GiftData is the payload for gift events.
type GiftData struct {
	GiftID string `json:"gift_id"`
	UserID string `json:"user_id,omitempty"`
	Amount int    `json:"amount"`
}
