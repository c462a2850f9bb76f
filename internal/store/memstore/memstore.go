// Package memstore provides an in-memory store driver. It backs unit
// tests and local development; one mutex over all tables makes every
// repository method a single atomic step, which is exactly the
// linearizability the ledger primitives require.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lucapanzeri/telegram-auction-bot/internal/clock"
	"github.com/lucapanzeri/telegram-auction-bot/internal/config"
	"github.com/lucapanzeri/telegram-auction-bot/internal/event"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store"
)

func init() {
	store.Register("memory", func(_ context.Context, _ config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
		return Open(clk), nil
	})
}

// Store holds all tables behind one mutex.
type Store struct {
	mu       sync.Mutex
	clock    clock.Clock
	wallets  map[string]*store.Wallet
	auctions map[string]*store.Auction
	archived map[string]*store.ArchivedAuction
	offers   map[string]*store.GiftOffer
	claims   map[claimKey]struct{}
	events   []event.Event
}

type claimKey struct {
	giftID string
	userID string
}

// New returns an empty Store.
func New(clk clock.Clock) *Store {
	return &Store{
		clock:    clk,
		wallets:  make(map[string]*store.Wallet),
		auctions: make(map[string]*store.Auction),
		archived: make(map[string]*store.ArchivedAuction),
		offers:   make(map[string]*store.GiftOffer),
		claims:   make(map[claimKey]struct{}),
	}
}

// Open returns Repositories all backed by a single new Store.
func Open(clk clock.Clock) *store.Repositories {
	s := New(clk)
	return &store.Repositories{
		Wallets:  &WalletRepo{s: s},
		Auctions: &AuctionRepo{s: s},
		Gifts:    &GiftRepo{s: s},
		Events:   &EventStore{s: s},
		Closer:   s,
		Ping:     func(context.Context) error { return nil },
	}
}

// Close implements io.Closer; nothing to release.
func (s *Store) Close() error { return nil }

// WalletRepo implements store.WalletRepository.
type WalletRepo struct{ s *Store }

func (r *WalletRepo) Get(_ context.Context, userID string) (*store.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (r *WalletRepo) Ensure(_ context.Context, userID, displayName string) (*store.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[userID]
	if !ok {
		now := r.s.clock.Now().UTC()
		w = &store.Wallet{UserID: userID, DisplayName: displayName, CreatedAt: now, UpdatedAt: now}
		r.s.wallets[userID] = w
	}
	cp := *w
	return &cp, nil
}

func (r *WalletRepo) Credit(_ context.Context, userID, displayName string, amount int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.clock.Now().UTC()
	w, ok := r.s.wallets[userID]
	if !ok {
		w = &store.Wallet{UserID: userID, DisplayName: displayName, CreatedAt: now}
		r.s.wallets[userID] = w
	}
	w.Balance += amount
	w.UpdatedAt = now
	return w.Balance, nil
}

func (r *WalletRepo) SetBalance(_ context.Context, userID string, amount int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.clock.Now().UTC()
	w, ok := r.s.wallets[userID]
	if !ok {
		w = &store.Wallet{UserID: userID, CreatedAt: now}
		r.s.wallets[userID] = w
	}
	w.Balance = amount
	w.UpdatedAt = now
	return nil
}

func (r *WalletRepo) Debit(_ context.Context, userID string, amount int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	w, ok := r.s.wallets[userID]
	if !ok {
		return store.ErrNotFound
	}
	if w.Balance < amount {
		return store.ErrInsufficientFunds
	}
	w.Balance -= amount
	w.UpdatedAt = r.s.clock.Now().UTC()
	return nil
}

func (r *WalletRepo) List(_ context.Context) ([]store.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	wallets := make([]store.Wallet, 0, len(r.s.wallets))
	for _, w := range r.s.wallets {
		wallets = append(wallets, *w)
	}
	sort.Slice(wallets, func(i, j int) bool {
		if wallets[i].Balance != wallets[j].Balance {
			return wallets[i].Balance > wallets[j].Balance
		}
		return wallets[i].UserID < wallets[j].UserID
	})
	return wallets, nil
}

// AuctionRepo implements store.AuctionRepository.
type AuctionRepo struct{ s *Store }

func (r *AuctionRepo) Create(_ context.Context, a *store.Auction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.ID = uuid.NewString()
	a.Status = store.StatusActive
	a.CreatedAt = r.s.clock.Now().UTC()
	cp := *a
	r.s.auctions[a.ID] = &cp
	return nil
}

func (r *AuctionRepo) GetByID(_ context.Context, id string) (*store.Auction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.auctions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *AuctionRepo) GetByItemName(_ context.Context, itemName string) (*store.Auction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *store.Auction
	for _, a := range r.s.auctions {
		if a.ItemName != itemName {
			continue
		}
		if found == nil || a.CreatedAt.Before(found.CreatedAt) {
			found = a
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (r *AuctionRepo) CommitBid(_ context.Context, auctionID, bidderID string, proposed int, deadline time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.auctions[auctionID]
	if !ok {
		return store.ErrNotFound
	}
	if a.Status != store.StatusActive {
		return store.ErrAuctionClosed
	}
	if a.CurrentBid != proposed-1 {
		return store.ErrConflict
	}
	w, ok := r.s.wallets[bidderID]
	if !ok {
		return store.ErrNotFound
	}
	if w.Balance < proposed {
		return store.ErrInsufficientFunds
	}
	a.CurrentBid = proposed
	bidder := bidderID
	a.CurrentBidder = &bidder
	a.Deadline = deadline
	return nil
}

func (r *AuctionRepo) Archive(_ context.Context, id string) (*store.ArchivedAuction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.auctions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	archived := &store.ArchivedAuction{
		ID:            a.ID,
		ItemName:      a.ItemName,
		SettledAmount: a.CurrentBid,
		Winner:        a.CurrentBidder,
		ArchivedAt:    r.s.clock.Now().UTC(),
	}
	r.s.archived[id] = archived
	delete(r.s.auctions, id)
	cp := *archived
	return &cp, nil
}

func (r *AuctionRepo) GetArchived(_ context.Context, id string) (*store.ArchivedAuction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.archived[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *AuctionRepo) listLocked(filter func(*store.Auction) bool) []store.Auction {
	auctions := make([]store.Auction, 0, len(r.s.auctions))
	for _, a := range r.s.auctions {
		if filter(a) {
			auctions = append(auctions, *a)
		}
	}
	sort.Slice(auctions, func(i, j int) bool {
		if !auctions[i].CreatedAt.Equal(auctions[j].CreatedAt) {
			return auctions[i].CreatedAt.Before(auctions[j].CreatedAt)
		}
		return auctions[i].ID < auctions[j].ID
	})
	return auctions
}

func (r *AuctionRepo) ListActive(_ context.Context) ([]store.Auction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.listLocked(func(*store.Auction) bool { return true }), nil
}

func (r *AuctionRepo) ListByLot(_ context.Context, lotID string) ([]store.Auction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.listLocked(func(a *store.Auction) bool { return a.LotID == lotID }), nil
}

func (r *AuctionRepo) ListExpired(_ context.Context, now time.Time) ([]store.Auction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.listLocked(func(a *store.Auction) bool { return !a.Deadline.After(now) }), nil
}

// GiftRepo implements store.GiftRepository.
type GiftRepo struct{ s *Store }

func (r *GiftRepo) CreateOffer(_ context.Context, g *store.GiftOffer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.offers[g.ID]; ok {
		return store.ErrDuplicateOffer
	}
	g.CreatedAt = r.s.clock.Now().UTC()
	cp := *g
	r.s.offers[g.ID] = &cp
	return nil
}

func (r *GiftRepo) GetOffer(_ context.Context, giftID string) (*store.GiftOffer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.offers[giftID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (r *GiftRepo) InsertClaim(_ context.Context, giftID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := claimKey{giftID: giftID, userID: userID}
	if _, ok := r.s.claims[key]; ok {
		return store.ErrAlreadyClaimed
	}
	r.s.claims[key] = struct{}{}
	return nil
}

// EventStore implements event.Store.
type EventStore struct{ s *Store }

func (e *EventStore) Append(_ context.Context, events ...event.Event) error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	for _, ev := range events {
		ev.ID = uuid.NewString()
		ev.CreatedAt = e.s.clock.Now().UTC()
		e.s.events = append(e.s.events, ev)
	}
	return nil
}

func (e *EventStore) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	var out []event.Event
	for _, ev := range e.s.events {
		if ev.AggregateID == aggregateID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (e *EventStore) LoadByType(_ context.Context, eventType event.Type) ([]event.Event, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	var out []event.Event
	for _, ev := range e.s.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out, nil
}
