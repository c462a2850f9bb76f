// Package auction implements the auction lifecycle: opening lots,
// serializing bids against wallet balances, and settling closed
// auctions into the archive.
package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lucapanzeri/telegram-auction-bot/internal/clock"
	"github.com/lucapanzeri/telegram-auction-bot/internal/event"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store"
	"github.com/lucapanzeri/telegram-auction-bot/internal/wallet"
)

// Lot validation errors.
var (
	ErrEmptyLot      = errors.New("lot has no items")
	ErrLotTooLarge   = errors.New("lot exceeds the item limit")
	ErrDuplicateItem = errors.New("lot contains a duplicate item name")
)

// commitRetries bounds how often a bid is retried after losing the
// current-bid race to another bidder.
const commitRetries = 3

// Outcome describes the result of closing a single auction.
type Outcome struct {
	AuctionID     string
	ItemName      string
	Winner        *string
	Amount        int
	NoBids        bool
	AlreadyClosed bool
	Expired       bool

	// SettleErr is set when the winner's wallet could not cover the
	// settled amount. The auction is archived regardless; the shortfall
	// is surfaced for operators to resolve.
	SettleErr error
}

// Manager coordinates auction lifecycle and bidding.
type Manager struct {
	auctions   store.AuctionRepository
	wallets    *wallet.Manager
	events     event.Store
	logger     *slog.Logger
	tracer     trace.Tracer
	clock      clock.Clock
	bidTimeout time.Duration
	maxLotSize int
}

// NewManager creates a new auction Manager.
func NewManager(auctions store.AuctionRepository, wallets *wallet.Manager, events event.Store, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock, bidTimeout time.Duration, maxLotSize int) *Manager {
	return &Manager{
		auctions:   auctions,
		wallets:    wallets,
		events:     events,
		logger:     logger,
		tracer:     tp.Tracer("github.com/lucapanzeri/telegram-auction-bot/internal/auction"),
		clock:      clk,
		bidTimeout: bidTimeout,
		maxLotSize: maxLotSize,
	}
}

// OpenLot opens one auction per item name under a shared lot ID. All
// auctions start at bid zero with a full bid-timeout deadline.
func (m *Manager) OpenLot(ctx context.Context, itemNames []string) ([]store.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.OpenLot",
		trace.WithAttributes(attribute.Int("items", len(itemNames))),
	)
	defer span.End()

	names := make([]string, 0, len(itemNames))
	seen := make(map[string]struct{}, len(itemNames))
	for _, raw := range itemNames {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, name)
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, ErrEmptyLot
	}
	if len(names) > m.maxLotSize {
		return nil, fmt.Errorf("%w: %d items, limit %d", ErrLotTooLarge, len(names), m.maxLotSize)
	}

	lotID := uuid.NewString()
	deadline := m.clock.Now().Add(m.bidTimeout)

	opened := make([]store.Auction, 0, len(names))
	for _, name := range names {
		a := &store.Auction{
			LotID:    lotID,
			ItemName: name,
			Deadline: deadline,
		}
		if err := m.auctions.Create(ctx, a); err != nil {
			return opened, fmt.Errorf("creating auction for %s: %w", name, err)
		}

		data, _ := json.Marshal(event.AuctionOpenedData{
			LotID:    lotID,
			ItemName: name,
			Deadline: deadline,
		})
		if err := m.events.Append(ctx, event.Event{
			AggregateID: a.ID,
			Type:        event.AuctionOpened,
			Data:        data,
		}); err != nil {
			m.logger.ErrorContext(ctx, "failed to append auction opened event", slog.Any("error", err))
		}

		opened = append(opened, *a)
	}

	m.logger.InfoContext(ctx, "lot opened",
		slog.String("lot_id", lotID),
		slog.Int("items", len(opened)),
		slog.Time("deadline", deadline),
	)
	return opened, nil
}

// PlaceBid bids current+1 on the auction with the given ID on behalf of
// the user, creating their wallet if needed, and returns the committed
// amount. The deadline slides to a full bid timeout from now.
func (m *Manager) PlaceBid(ctx context.Context, auctionID, userID, displayName string) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.PlaceBid",
		trace.WithAttributes(
			attribute.String("auction_id", auctionID),
			attribute.String("user_id", userID),
		),
	)
	defer span.End()

	a, err := m.auctions.GetByID(ctx, auctionID)
	if err != nil {
		return 0, m.lookupErr(ctx, auctionID, err)
	}
	return m.placeBid(ctx, a, userID, displayName)
}

// lookupErr distinguishes a bid against a settled auction from a bid
// against an id that never existed. Archival removes the active row, so
// a stale bid button lands here instead of on the status guard.
func (m *Manager) lookupErr(ctx context.Context, auctionID string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		if _, archErr := m.auctions.GetArchived(ctx, auctionID); archErr == nil {
			return fmt.Errorf("auction %s: %w", auctionID, store.ErrAuctionClosed)
		}
	}
	return fmt.Errorf("looking up auction: %w", err)
}

// PlaceBidByItem is PlaceBid addressed by item name. When several active
// auctions share the name, the oldest one wins.
func (m *Manager) PlaceBidByItem(ctx context.Context, itemName, userID, displayName string) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.PlaceBidByItem",
		trace.WithAttributes(
			attribute.String("item", itemName),
			attribute.String("user_id", userID),
		),
	)
	defer span.End()

	a, err := m.auctions.GetByItemName(ctx, strings.TrimSpace(itemName))
	if err != nil {
		return 0, fmt.Errorf("looking up auction: %w", err)
	}
	return m.placeBid(ctx, a, userID, displayName)
}

func (m *Manager) placeBid(ctx context.Context, a *store.Auction, userID, displayName string) (int, error) {
	if _, err := m.wallets.GetBalance(ctx, userID, displayName); err != nil {
		return 0, err
	}

	var err error
	for attempt := 0; attempt < commitRetries; attempt++ {
		proposed := a.CurrentBid + 1
		deadline := m.clock.Now().Add(m.bidTimeout)

		err = m.auctions.CommitBid(ctx, a.ID, userID, proposed, deadline)
		if err == nil {
			data, _ := json.Marshal(event.BidPlacedData{UserID: userID, Amount: proposed})
			if appendErr := m.events.Append(ctx, event.Event{
				AggregateID: a.ID,
				Type:        event.AuctionBidPlaced,
				Data:        data,
			}); appendErr != nil {
				m.logger.ErrorContext(ctx, "failed to append bid event", slog.Any("error", appendErr))
			}

			m.logger.InfoContext(ctx, "bid placed",
				slog.String("auction_id", a.ID),
				slog.String("item", a.ItemName),
				slog.String("user_id", userID),
				slog.Int("amount", proposed),
			)
			return proposed, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return 0, fmt.Errorf("committing bid: %w", err)
		}

		// Lost the race; reload and bid over the new high bid. A closer
		// may have archived the auction in the meantime.
		a, err = m.auctions.GetByID(ctx, a.ID)
		if err != nil {
			return 0, m.lookupErr(ctx, a.ID, err)
		}
	}
	return 0, fmt.Errorf("committing bid: %w", store.ErrConflict)
}

// Close settles a single auction. Archiving is the commit point: exactly
// one caller moves the row, concurrent callers observe AlreadyClosed.
// The winner's wallet is debited after archival; a failed debit is
// reported in the Outcome, never rolled back.
func (m *Manager) Close(ctx context.Context, auctionID string) (*Outcome, error) {
	return m.close(ctx, auctionID, false)
}

func (m *Manager) close(ctx context.Context, auctionID string, expired bool) (*Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Close",
		trace.WithAttributes(
			attribute.String("auction_id", auctionID),
			attribute.Bool("expired", expired),
		),
	)
	defer span.End()

	archived, err := m.auctions.Archive(ctx, auctionID)
	if errors.Is(err, store.ErrNotFound) {
		prior, archErr := m.auctions.GetArchived(ctx, auctionID)
		if archErr != nil {
			return nil, fmt.Errorf("closing auction: %w", err)
		}
		return &Outcome{
			AuctionID:     prior.ID,
			ItemName:      prior.ItemName,
			Winner:        prior.Winner,
			Amount:        prior.SettledAmount,
			NoBids:        prior.Winner == nil,
			AlreadyClosed: true,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("closing auction: %w", err)
	}

	out := &Outcome{
		AuctionID: archived.ID,
		ItemName:  archived.ItemName,
		Winner:    archived.Winner,
		Amount:    archived.SettledAmount,
		NoBids:    archived.Winner == nil,
		Expired:   expired,
	}

	if archived.Winner != nil {
		reason := fmt.Sprintf("won auction for %s", archived.ItemName)
		if err := m.wallets.Debit(ctx, *archived.Winner, archived.SettledAmount, reason); err != nil {
			out.SettleErr = err
			m.logger.WarnContext(ctx, "settlement debit failed",
				slog.String("auction_id", archived.ID),
				slog.String("winner", *archived.Winner),
				slog.Int("amount", archived.SettledAmount),
				slog.Any("error", err),
			)
		}
	}

	var winner string
	if archived.Winner != nil {
		winner = *archived.Winner
	}
	data, _ := json.Marshal(event.AuctionClosedData{
		ItemName: archived.ItemName,
		Winner:   winner,
		Amount:   archived.SettledAmount,
		Expired:  expired,
	})
	if err := m.events.Append(ctx, event.Event{
		AggregateID: archived.ID,
		Type:        event.AuctionClosed,
		Data:        data,
	}); err != nil {
		m.logger.ErrorContext(ctx, "failed to append auction closed event", slog.Any("error", err))
	}

	m.logger.InfoContext(ctx, "auction closed",
		slog.String("auction_id", archived.ID),
		slog.String("item", archived.ItemName),
		slog.String("winner", winner),
		slog.Int("amount", archived.SettledAmount),
		slog.Bool("expired", expired),
	)
	return out, nil
}

// CloseLot closes every auction that still belongs to the lot.
func (m *Manager) CloseLot(ctx context.Context, lotID string) ([]Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.CloseLot",
		trace.WithAttributes(attribute.String("lot_id", lotID)),
	)
	defer span.End()

	auctions, err := m.auctions.ListByLot(ctx, lotID)
	if err != nil {
		return nil, fmt.Errorf("listing lot auctions: %w", err)
	}
	return m.closeEach(ctx, auctions, false), nil
}

// CloseAll closes every active auction.
func (m *Manager) CloseAll(ctx context.Context) ([]Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.CloseAll")
	defer span.End()

	auctions, err := m.auctions.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active auctions: %w", err)
	}
	return m.closeEach(ctx, auctions, false), nil
}

// CloseExpired closes every auction whose deadline has passed.
func (m *Manager) CloseExpired(ctx context.Context) ([]Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.CloseExpired")
	defer span.End()

	auctions, err := m.auctions.ListExpired(ctx, m.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("listing expired auctions: %w", err)
	}
	return m.closeEach(ctx, auctions, true), nil
}

// closeEach settles a batch. Losing an archive race to a concurrent
// closer is not an error; the outcome simply reports AlreadyClosed.
func (m *Manager) closeEach(ctx context.Context, auctions []store.Auction, expired bool) []Outcome {
	outcomes := make([]Outcome, 0, len(auctions))
	for _, a := range auctions {
		out, err := m.close(ctx, a.ID, expired)
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to close auction",
				slog.String("auction_id", a.ID),
				slog.Any("error", err),
			)
			continue
		}
		outcomes = append(outcomes, *out)
	}
	return outcomes
}

// GetAuction returns an active auction by ID.
func (m *Manager) GetAuction(ctx context.Context, auctionID string) (*store.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.GetAuction")
	defer span.End()

	return m.auctions.GetByID(ctx, auctionID)
}

// ListActive returns all active auctions in opening order.
func (m *Manager) ListActive(ctx context.Context) ([]store.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ListActive")
	defer span.End()

	return m.auctions.ListActive(ctx)
}

// ListLot returns the active auctions of one lot in opening order.
func (m *Manager) ListLot(ctx context.Context, lotID string) ([]store.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ListLot",
		trace.WithAttributes(attribute.String("lot_id", lotID)),
	)
	defer span.End()

	return m.auctions.ListByLot(ctx, lotID)
}
