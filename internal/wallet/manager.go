// Package wallet implements the shared point ledger. Wallets are created
// lazily on first contact, so every read path goes through Ensure rather
// than Get.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lucapanzeri/telegram-auction-bot/internal/event"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store"
)

// Manager handles wallet operations.
type Manager struct {
	wallets store.WalletRepository
	events  event.Store
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewManager returns a new wallet Manager.
func NewManager(wallets store.WalletRepository, events event.Store, logger *slog.Logger, tp trace.TracerProvider) *Manager {
	return &Manager{
		wallets: wallets,
		events:  events,
		logger:  logger,
		tracer:  tp.Tracer("github.com/lucapanzeri/telegram-auction-bot/internal/wallet"),
	}
}

// GetBalance returns the user's balance, creating the wallet at zero if
// it does not exist yet.
func (m *Manager) GetBalance(ctx context.Context, userID, displayName string) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.GetBalance",
		trace.WithAttributes(attribute.String("user_id", userID)),
	)
	defer span.End()

	w, err := m.wallets.Ensure(ctx, userID, displayName)
	if err != nil {
		return 0, fmt.Errorf("ensuring wallet: %w", err)
	}
	return w.Balance, nil
}

// Credit adds points to a wallet, creating it if needed, and returns the
// new balance.
func (m *Manager) Credit(ctx context.Context, userID, displayName string, amount int, reason string) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Credit",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.Int("amount", amount),
		),
	)
	defer span.End()

	balance, err := m.wallets.Credit(ctx, userID, displayName, amount)
	if err != nil {
		return 0, fmt.Errorf("crediting wallet: %w", err)
	}

	m.appendEvent(ctx, userID, event.WalletCredited, event.WalletChangeData{
		UserID:  userID,
		Amount:  amount,
		Balance: balance,
		Reason:  reason,
	})

	m.logger.InfoContext(ctx, "wallet credited",
		slog.String("user_id", userID),
		slog.Int("amount", amount),
		slog.Int("balance", balance),
		slog.String("reason", reason),
	)
	return balance, nil
}

// SetBalance overwrites a wallet's balance, creating the wallet if
// needed.
func (m *Manager) SetBalance(ctx context.Context, userID string, amount int) error {
	ctx, span := m.tracer.Start(ctx, "Manager.SetBalance",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.Int("amount", amount),
		),
	)
	defer span.End()

	if err := m.wallets.SetBalance(ctx, userID, amount); err != nil {
		return fmt.Errorf("setting balance: %w", err)
	}

	m.appendEvent(ctx, userID, event.WalletAdjusted, event.WalletChangeData{
		UserID:  userID,
		Amount:  amount,
		Balance: amount,
		Reason:  "admin override",
	})

	m.logger.InfoContext(ctx, "wallet balance set",
		slog.String("user_id", userID),
		slog.Int("balance", amount),
	)
	return nil
}

// Debit removes points from a wallet. It fails with
// store.ErrInsufficientFunds rather than taking the balance negative.
func (m *Manager) Debit(ctx context.Context, userID string, amount int, reason string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Debit",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.Int("amount", amount),
		),
	)
	defer span.End()

	if err := m.wallets.Debit(ctx, userID, amount); err != nil {
		return fmt.Errorf("debiting wallet: %w", err)
	}

	m.appendEvent(ctx, userID, event.WalletDebited, event.WalletChangeData{
		UserID: userID,
		Amount: -amount,
		Reason: reason,
	})

	m.logger.InfoContext(ctx, "wallet debited",
		slog.String("user_id", userID),
		slog.Int("amount", amount),
		slog.String("reason", reason),
	)
	return nil
}

// ListBalances returns all wallets ordered by balance.
func (m *Manager) ListBalances(ctx context.Context) ([]store.Wallet, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ListBalances")
	defer span.End()

	return m.wallets.List(ctx)
}

func (m *Manager) appendEvent(ctx context.Context, userID string, typ event.Type, data event.WalletChangeData) {
	payload, _ := json.Marshal(data)
	evt := event.Event{
		AggregateID: userID,
		Type:        typ,
		Data:        payload,
	}
	if err := m.events.Append(ctx, evt); err != nil {
		m.logger.ErrorContext(ctx, "failed to append wallet event", slog.Any("error", err))
	}
}
