package store

import "errors"

// Errors shared by all store drivers and surfaced through the managers.
// Callers match them with errors.Is.
var (
	// ErrNotFound means a referenced wallet, auction or gift is absent.
	ErrNotFound = errors.New("not found")
	// ErrAuctionClosed means a bid targeted a non-active auction.
	ErrAuctionClosed = errors.New("auction is closed")
	// ErrInsufficientFunds means a bid or debit would drive a balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrConflict means an atomic commit lost a race; the caller may retry.
	ErrConflict = errors.New("concurrent commit conflict")
	// ErrAlreadyClaimed means the (gift, user) pair was redeemed before.
	ErrAlreadyClaimed = errors.New("gift already claimed")
	// ErrDuplicateOffer means a gift id was reused.
	ErrDuplicateOffer = errors.New("gift offer already exists")
)
