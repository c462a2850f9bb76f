// Package commands translates Telegram updates into auction, wallet,
// and gift operations.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lucapanzeri/telegram-auction-bot/internal/auction"
	"github.com/lucapanzeri/telegram-auction-bot/internal/clock"
	"github.com/lucapanzeri/telegram-auction-bot/internal/config"
	"github.com/lucapanzeri/telegram-auction-bot/internal/gift"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store"
	"github.com/lucapanzeri/telegram-auction-bot/internal/wallet"
)

// namingTTL is how long the bot waits for item names after a bare photo.
const namingTTL = 5 * time.Minute

// Handlers process Telegram updates.
type Handlers struct {
	api        *tgbotapi.BotAPI
	cfg        config.TelegramConfig
	walletMgr  *wallet.Manager
	auctionMgr *auction.Manager
	giftMgr    *gift.Manager
	logger     *slog.Logger
	tracer     trace.Tracer

	sessions *sessions
	lots     *lotIndex
}

// NewHandlers creates new update handlers.
func NewHandlers(api *tgbotapi.BotAPI, cfg config.TelegramConfig, walletMgr *wallet.Manager, auctionMgr *auction.Manager, giftMgr *gift.Manager, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Handlers {
	return &Handlers{
		api:        api,
		cfg:        cfg,
		walletMgr:  walletMgr,
		auctionMgr: auctionMgr,
		giftMgr:    giftMgr,
		logger:     logger,
		tracer:     tp.Tracer("github.com/lucapanzeri/telegram-auction-bot/internal/bot/commands"),
		sessions:   newSessions(clk, namingTTL),
		lots:       newLotIndex(),
	}
}

// HandleUpdate routes one Telegram update.
func (h *Handlers) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		h.handleMessage(ctx, update.Message)
	}
}

func (h *Handlers) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}

	if msg.IsCommand() {
		ctx, span := h.tracer.Start(ctx, "Handlers.Command",
			trace.WithAttributes(attribute.String("command", msg.Command())),
		)
		defer span.End()

		switch msg.Command() {
		case "balance":
			h.handleBalance(ctx, msg)
		case "balances":
			h.handleBalances(ctx, msg)
		case "deposit":
			h.handleDeposit(ctx, msg)
		case "setbalance":
			h.handleSetBalance(ctx, msg)
		case "gift":
			h.handleGift(ctx, msg)
		case "list":
			h.handleList(ctx, msg)
		case "bid":
			h.handleBidCommand(ctx, msg)
		case "close":
			h.handleClose(ctx, msg)
		case "closeall":
			h.handleCloseAll(ctx, msg)
		default:
			h.reply(msg, "Unknown command.")
		}
		return
	}

	if len(msg.Photo) > 0 {
		h.handlePhoto(ctx, msg)
		return
	}

	if msg.Text != "" && h.sessions.takeNaming(msg.From.ID) {
		h.openLot(ctx, msg, splitLines(msg.Text))
	}
}

// handlePhoto opens a lot from the photo caption, or asks for item names
// when the caption is empty.
func (h *Handlers) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	if !h.isAdmin(msg.From.ID) {
		return
	}

	names := splitLines(msg.Caption)
	if len(names) == 0 {
		h.sessions.startNaming(msg.From.ID)
		h.reply(msg, "Send the item names for this lot, one per line.")
		return
	}
	h.openLot(ctx, msg, names)
}

func (h *Handlers) openLot(ctx context.Context, msg *tgbotapi.Message, names []string) {
	opened, err := h.auctionMgr.OpenLot(ctx, names)
	if err != nil {
		h.reply(msg, fmt.Sprintf("Could not open the lot: %s", userMessage(err)))
		return
	}

	text, markup := renderLot(opened)
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyMarkup = markup
	sent, err := h.api.Send(out)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to announce lot", slog.Any("error", err))
		return
	}
	h.lots.put(sent.MessageID, opened[0].LotID)
}

// renderLot builds the lot announcement: one line and one bid button
// per auction still open, always offering the next increment.
func renderLot(auctions []store.Auction) (string, tgbotapi.InlineKeyboardMarkup) {
	var b strings.Builder
	b.WriteString("Auction open! Tap to bid:\n")
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(auctions))
	for _, a := range auctions {
		fmt.Fprintf(&b, "• %s — current bid %d\n", a.ItemName, a.CurrentBid)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("Bid %d on %s", a.CurrentBid+1, a.ItemName),
				"bid:"+a.ID,
			),
		))
	}
	return b.String(), tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (h *Handlers) handleBalance(ctx context.Context, msg *tgbotapi.Message) {
	balance, err := h.walletMgr.GetBalance(ctx, userID(msg.From), displayName(msg.From))
	if err != nil {
		h.reply(msg, fmt.Sprintf("Could not look up your balance: %s", userMessage(err)))
		return
	}
	h.reply(msg, fmt.Sprintf("You have %d points.", balance))
}

func (h *Handlers) handleBalances(ctx context.Context, msg *tgbotapi.Message) {
	wallets, err := h.walletMgr.ListBalances(ctx)
	if err != nil {
		h.reply(msg, fmt.Sprintf("Could not list balances: %s", userMessage(err)))
		return
	}
	if len(wallets) == 0 {
		h.reply(msg, "No wallets yet.")
		return
	}

	var b strings.Builder
	b.WriteString("Standings:\n")
	for i, w := range wallets {
		name := w.DisplayName
		if name == "" {
			name = w.UserID
		}
		fmt.Fprintf(&b, "%d. %s — %d\n", i+1, name, w.Balance)
	}
	h.reply(msg, b.String())
}

// handleDeposit credits points. Admins reply to a user's message with
// "/deposit <amount>", or pass "/deposit <user_id> <amount>".
func (h *Handlers) handleDeposit(ctx context.Context, msg *tgbotapi.Message) {
	if !h.isAdmin(msg.From.ID) {
		h.reply(msg, "Only admins can deposit points.")
		return
	}

	target, name, amount, err := h.resolveTargetAmount(msg)
	if err != nil {
		h.reply(msg, err.Error())
		return
	}

	balance, err := h.walletMgr.Credit(ctx, target, name, amount, "admin deposit")
	if err != nil {
		h.reply(msg, fmt.Sprintf("Deposit failed: %s", userMessage(err)))
		return
	}
	h.reply(msg, fmt.Sprintf("Deposited %d points. New balance: %d.", amount, balance))
}

// handleSetBalance overwrites a wallet, same addressing as /deposit.
func (h *Handlers) handleSetBalance(ctx context.Context, msg *tgbotapi.Message) {
	if !h.isAdmin(msg.From.ID) {
		h.reply(msg, "Only admins can set balances.")
		return
	}

	target, _, amount, err := h.resolveTargetAmount(msg)
	if err != nil {
		h.reply(msg, err.Error())
		return
	}

	if err := h.walletMgr.SetBalance(ctx, target, amount); err != nil {
		h.reply(msg, fmt.Sprintf("Could not set balance: %s", userMessage(err)))
		return
	}
	h.reply(msg, fmt.Sprintf("Balance set to %d.", amount))
}

// resolveTargetAmount parses the reply-or-args addressing shared by
// /deposit and /setbalance.
func (h *Handlers) resolveTargetAmount(msg *tgbotapi.Message) (target, name string, amount int, err error) {
	args := strings.Fields(msg.CommandArguments())

	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		if len(args) != 1 {
			return "", "", 0, errors.New("reply with a single amount, e.g. /deposit 10")
		}
		amount, convErr := strconv.Atoi(args[0])
		if convErr != nil {
			return "", "", 0, fmt.Errorf("%q is not a number", args[0])
		}
		return userID(msg.ReplyToMessage.From), displayName(msg.ReplyToMessage.From), amount, nil
	}

	if len(args) != 2 {
		return "", "", 0, errors.New("reply to a user with an amount, or pass <user_id> <amount>")
	}
	amount, convErr := strconv.Atoi(args[1])
	if convErr != nil {
		return "", "", 0, fmt.Errorf("%q is not a number", args[1])
	}
	return args[0], "", amount, nil
}

// handleGift posts a claimable gift offer.
func (h *Handlers) handleGift(ctx context.Context, msg *tgbotapi.Message) {
	if !h.isAdmin(msg.From.ID) {
		h.reply(msg, "Only admins can offer gifts.")
		return
	}

	amount, err := strconv.Atoi(strings.TrimSpace(msg.CommandArguments()))
	if err != nil || amount <= 0 {
		h.reply(msg, "Usage: /gift <amount>")
		return
	}

	g, err := h.giftMgr.CreateOffer(ctx, uuid.NewString(), amount)
	if err != nil {
		h.reply(msg, fmt.Sprintf("Could not create the gift: %s", userMessage(err)))
		return
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, fmt.Sprintf("A gift of %d points! One claim per person.", g.Amount))
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Claim %d points", g.Amount), "gift:"+g.ID),
		),
	)
	if _, err := h.api.Send(out); err != nil {
		h.logger.ErrorContext(ctx, "failed to announce gift", slog.Any("error", err))
	}
}

func (h *Handlers) handleList(ctx context.Context, msg *tgbotapi.Message) {
	auctions, err := h.auctionMgr.ListActive(ctx)
	if err != nil {
		h.reply(msg, fmt.Sprintf("Could not list auctions: %s", userMessage(err)))
		return
	}
	if len(auctions) == 0 {
		h.reply(msg, "No active auctions.")
		return
	}

	var b strings.Builder
	b.WriteString("Active auctions:\n")
	for _, a := range auctions {
		fmt.Fprintf(&b, "• %s — current bid %d\n", a.ItemName, a.CurrentBid)
	}
	h.reply(msg, b.String())
}

// handleBidCommand bids by item name, for chats where the inline
// keyboard announcement is gone.
func (h *Handlers) handleBidCommand(ctx context.Context, msg *tgbotapi.Message) {
	itemName := strings.TrimSpace(msg.CommandArguments())
	if itemName == "" {
		h.reply(msg, "Usage: /bid <item name>")
		return
	}

	amount, err := h.auctionMgr.PlaceBidByItem(ctx, itemName, userID(msg.From), displayName(msg.From))
	if err != nil {
		h.reply(msg, fmt.Sprintf("Bid failed: %s", userMessage(err)))
		return
	}
	h.reply(msg, fmt.Sprintf("Bid %d placed on %s.", amount, itemName))
}

// handleClose closes a lot when replying to its announcement, a single
// auction when given an item name, or asks for one of the two.
func (h *Handlers) handleClose(ctx context.Context, msg *tgbotapi.Message) {
	if !h.isAdmin(msg.From.ID) {
		h.reply(msg, "Only admins can close auctions.")
		return
	}

	if msg.ReplyToMessage != nil {
		lotID, ok := h.lots.take(msg.ReplyToMessage.MessageID)
		if !ok {
			h.reply(msg, "That message is not an open lot announcement.")
			return
		}
		outcomes, err := h.auctionMgr.CloseLot(ctx, lotID)
		if err != nil {
			h.reply(msg, fmt.Sprintf("Could not close the lot: %s", userMessage(err)))
			return
		}
		h.reply(msg, formatOutcomes(outcomes))
		return
	}

	itemName := strings.TrimSpace(msg.CommandArguments())
	if itemName == "" {
		h.reply(msg, "Reply to a lot announcement with /close, or use /close <item name>.")
		return
	}

	a, err := h.auctionMgr.ListActive(ctx)
	if err != nil {
		h.reply(msg, fmt.Sprintf("Could not close: %s", userMessage(err)))
		return
	}
	for _, candidate := range a {
		if candidate.ItemName == itemName {
			out, err := h.auctionMgr.Close(ctx, candidate.ID)
			if err != nil {
				h.reply(msg, fmt.Sprintf("Could not close: %s", userMessage(err)))
				return
			}
			h.reply(msg, formatOutcomes([]auction.Outcome{*out}))
			return
		}
	}
	h.reply(msg, fmt.Sprintf("No active auction for %q.", itemName))
}

func (h *Handlers) handleCloseAll(ctx context.Context, msg *tgbotapi.Message) {
	if !h.isAdmin(msg.From.ID) {
		h.reply(msg, "Only admins can close auctions.")
		return
	}

	outcomes, err := h.auctionMgr.CloseAll(ctx)
	if err != nil {
		h.reply(msg, fmt.Sprintf("Could not close auctions: %s", userMessage(err)))
		return
	}
	if len(outcomes) == 0 {
		h.reply(msg, "No active auctions to close.")
		return
	}
	h.reply(msg, formatOutcomes(outcomes))
}

func (h *Handlers) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	ctx, span := h.tracer.Start(ctx, "Handlers.Callback")
	defer span.End()

	data := cq.Data
	switch {
	case strings.HasPrefix(data, "bid:"):
		h.handleBidCallback(ctx, cq, strings.TrimPrefix(data, "bid:"))
	case strings.HasPrefix(data, "gift:"):
		h.handleGiftCallback(ctx, cq, strings.TrimPrefix(data, "gift:"))
	default:
		h.answerCallback(ctx, cq, "Unknown action.")
	}
}

func (h *Handlers) handleBidCallback(ctx context.Context, cq *tgbotapi.CallbackQuery, auctionID string) {
	amount, err := h.auctionMgr.PlaceBid(ctx, auctionID, userID(cq.From), displayName(cq.From))
	if err != nil {
		h.answerCallback(ctx, cq, fmt.Sprintf("Bid failed: %s", userMessage(err)))
		return
	}
	h.answerCallback(ctx, cq, fmt.Sprintf("Your bid of %d is in.", amount))

	if cq.Message != nil {
		h.refreshLot(ctx, cq.Message, auctionID)
	}
}

// refreshLot re-renders the announcement the callback came from so the
// message reflects the new high bids.
func (h *Handlers) refreshLot(ctx context.Context, msg *tgbotapi.Message, auctionID string) {
	a, err := h.auctionMgr.GetAuction(ctx, auctionID)
	if err != nil {
		return
	}
	lot, err := h.auctionMgr.ListLot(ctx, a.LotID)
	if err != nil || len(lot) == 0 {
		return
	}

	text, markup := renderLot(lot)
	edit := tgbotapi.NewEditMessageTextAndMarkup(msg.Chat.ID, msg.MessageID, text, markup)
	if _, err := h.api.Send(edit); err != nil {
		h.logger.ErrorContext(ctx, "failed to refresh lot announcement", slog.Any("error", err))
	}
}

func (h *Handlers) handleGiftCallback(ctx context.Context, cq *tgbotapi.CallbackQuery, giftID string) {
	balance, err := h.giftMgr.Claim(ctx, giftID, userID(cq.From), displayName(cq.From))
	if err != nil {
		h.answerCallback(ctx, cq, userMessage(err))
		return
	}
	h.answerCallback(ctx, cq, fmt.Sprintf("Claimed! You now have %d points.", balance))
}

func (h *Handlers) answerCallback(ctx context.Context, cq *tgbotapi.CallbackQuery, text string) {
	if _, err := h.api.Request(tgbotapi.NewCallback(cq.ID, text)); err != nil {
		h.logger.ErrorContext(ctx, "failed to answer callback", slog.Any("error", err))
	}
}

func (h *Handlers) reply(msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	if _, err := h.api.Send(out); err != nil {
		h.logger.Error("failed to send reply", slog.Any("error", err))
	}
}

func (h *Handlers) isAdmin(id int64) bool {
	for _, admin := range h.cfg.AdminIDs {
		if admin == id {
			return true
		}
	}
	return false
}

func formatOutcomes(outcomes []auction.Outcome) string {
	var b strings.Builder
	b.WriteString("Results:\n")
	for _, out := range outcomes {
		switch {
		case out.AlreadyClosed:
			fmt.Fprintf(&b, "• %s — already closed\n", out.ItemName)
		case out.NoBids:
			fmt.Fprintf(&b, "• %s — no bids\n", out.ItemName)
		case out.SettleErr != nil:
			fmt.Fprintf(&b, "• %s — won at %d, but settlement failed\n", out.ItemName, out.Amount)
		default:
			fmt.Fprintf(&b, "• %s — sold for %d\n", out.ItemName, out.Amount)
		}
	}
	return b.String()
}

// userMessage maps storage errors to text fit for the chat.
func userMessage(err error) string {
	switch {
	case errors.Is(err, store.ErrInsufficientFunds):
		return "not enough points"
	case errors.Is(err, store.ErrAuctionClosed):
		return "that auction is already closed"
	case errors.Is(err, store.ErrAlreadyClaimed):
		return "you already claimed this gift"
	case errors.Is(err, store.ErrConflict):
		return "someone outbid you, try again"
	case errors.Is(err, store.ErrNotFound):
		return "not found"
	case errors.Is(err, store.ErrDuplicateOffer):
		return "that gift already exists"
	default:
		return err.Error()
	}
}

func userID(u *tgbotapi.User) string {
	return strconv.FormatInt(u.ID, 10)
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return u.FirstName
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
