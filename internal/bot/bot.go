// Package bot wraps the Telegram long-polling session and routes
// updates to the command handlers.
package bot

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/lucapanzeri/telegram-auction-bot/internal/auction"
	"github.com/lucapanzeri/telegram-auction-bot/internal/bot/commands"
	"github.com/lucapanzeri/telegram-auction-bot/internal/clock"
	"github.com/lucapanzeri/telegram-auction-bot/internal/config"
	"github.com/lucapanzeri/telegram-auction-bot/internal/gift"
	"github.com/lucapanzeri/telegram-auction-bot/internal/wallet"
)

// Bot wraps the Telegram session and command handlers.
type Bot struct {
	api      *tgbotapi.BotAPI
	cfg      config.TelegramConfig
	logger   *slog.Logger
	handlers *commands.Handlers
}

// New creates a new Bot instance.
func New(cfg config.TelegramConfig, walletMgr *wallet.Manager, auctionMgr *auction.Manager, giftMgr *gift.Manager, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram session: %w", err)
	}

	handlers := commands.NewHandlers(api, cfg, walletMgr, auctionMgr, giftMgr, logger, tp, clk)

	return &Bot{
		api:      api,
		cfg:      cfg,
		logger:   logger,
		handlers: handlers,
	}, nil
}

// Run polls for updates until the context is cancelled. Updates from
// other chats than the configured one are dropped.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.InfoContext(ctx, "bot is ready", slog.String("user", b.api.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if !b.accepts(update) {
				continue
			}
			b.handlers.HandleUpdate(ctx, update)
		}
	}
}

func (b *Bot) accepts(update tgbotapi.Update) bool {
	if b.cfg.ChatID == 0 {
		return true
	}
	switch {
	case update.Message != nil:
		return update.Message.Chat.ID == b.cfg.ChatID
	case update.CallbackQuery != nil:
		return update.CallbackQuery.Message == nil || update.CallbackQuery.Message.Chat.ID == b.cfg.ChatID
	default:
		return false
	}
}
