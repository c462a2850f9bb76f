// Package gift implements point giveaways: an admin posts an offer and
// each user may redeem it exactly once.
package gift

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lucapanzeri/telegram-auction-bot/internal/event"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store"
	"github.com/lucapanzeri/telegram-auction-bot/internal/wallet"
)

// Manager handles gift offers and claims.
type Manager struct {
	gifts   store.GiftRepository
	wallets *wallet.Manager
	events  event.Store
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewManager returns a new gift Manager.
func NewManager(gifts store.GiftRepository, wallets *wallet.Manager, events event.Store, logger *slog.Logger, tp trace.TracerProvider) *Manager {
	return &Manager{
		gifts:   gifts,
		wallets: wallets,
		events:  events,
		logger:  logger,
		tracer:  tp.Tracer("github.com/lucapanzeri/telegram-auction-bot/internal/gift"),
	}
}

// CreateOffer records a new gift offer. The gift ID comes from the
// caller so a re-sent announcement cannot mint a second offer; a reused
// ID fails with store.ErrDuplicateOffer.
func (m *Manager) CreateOffer(ctx context.Context, giftID string, amount int) (*store.GiftOffer, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.CreateOffer",
		trace.WithAttributes(
			attribute.String("gift_id", giftID),
			attribute.Int("amount", amount),
		),
	)
	defer span.End()

	if amount <= 0 {
		return nil, fmt.Errorf("gift amount must be positive, got %d", amount)
	}

	g := &store.GiftOffer{ID: giftID, Amount: amount}
	if err := m.gifts.CreateOffer(ctx, g); err != nil {
		return nil, fmt.Errorf("creating gift offer: %w", err)
	}

	data, _ := json.Marshal(event.GiftData{GiftID: giftID, Amount: amount})
	if err := m.events.Append(ctx, event.Event{
		AggregateID: giftID,
		Type:        event.GiftOffered,
		Data:        data,
	}); err != nil {
		m.logger.ErrorContext(ctx, "failed to append gift offered event", slog.Any("error", err))
	}

	m.logger.InfoContext(ctx, "gift offered",
		slog.String("gift_id", giftID),
		slog.Int("amount", amount),
	)
	return g, nil
}

// Claim redeems a gift for one user and returns their new balance. The
// claim insert is the exactly-once gate: a second claim by the same user
// fails with store.ErrAlreadyClaimed and credits nothing.
func (m *Manager) Claim(ctx context.Context, giftID, userID, displayName string) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Claim",
		trace.WithAttributes(
			attribute.String("gift_id", giftID),
			attribute.String("user_id", userID),
		),
	)
	defer span.End()

	g, err := m.gifts.GetOffer(ctx, giftID)
	if err != nil {
		return 0, fmt.Errorf("looking up gift offer: %w", err)
	}

	if err := m.gifts.InsertClaim(ctx, giftID, userID); err != nil {
		return 0, fmt.Errorf("claiming gift: %w", err)
	}

	balance, err := m.wallets.Credit(ctx, userID, displayName, g.Amount, "gift claim")
	if err != nil {
		return 0, fmt.Errorf("crediting gift: %w", err)
	}

	data, _ := json.Marshal(event.GiftData{GiftID: giftID, UserID: userID, Amount: g.Amount})
	if err := m.events.Append(ctx, event.Event{
		AggregateID: giftID,
		Type:        event.GiftClaimed,
		Data:        data,
	}); err != nil {
		m.logger.ErrorContext(ctx, "failed to append gift claimed event", slog.Any("error", err))
	}

	m.logger.InfoContext(ctx, "gift claimed",
		slog.String("gift_id", giftID),
		slog.String("user_id", userID),
		slog.Int("amount", g.Amount),
		slog.Int("balance", balance),
	)
	return balance, nil
}
