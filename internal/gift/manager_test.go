package gift_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/lucapanzeri/telegram-auction-bot/internal/clock"
	"github.com/lucapanzeri/telegram-auction-bot/internal/gift"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store/memstore"
	"github.com/lucapanzeri/telegram-auction-bot/internal/wallet"
)

var testTP = noop.NewTracerProvider()

func newManagers(t *testing.T) (*gift.Manager, *wallet.Manager) {
	t.Helper()
	clk := &clock.Mock{T: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	repos := memstore.Open(clk)
	walletMgr := wallet.NewManager(repos.Wallets, repos.Events, slog.Default(), testTP)
	giftMgr := gift.NewManager(repos.Gifts, walletMgr, repos.Events, slog.Default(), testTP)
	return giftMgr, walletMgr
}

func TestManager_CreateOffer(t *testing.T) {
	giftMgr, _ := newManagers(t)

	g, err := giftMgr.CreateOffer(context.Background(), "gift-1", 10)
	if err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}
	if g.Amount != 10 {
		t.Errorf("amount = %d, want 10", g.Amount)
	}

	// Reusing the ID must not mint a second offer.
	if _, err := giftMgr.CreateOffer(context.Background(), "gift-1", 10); !errors.Is(err, store.ErrDuplicateOffer) {
		t.Fatalf("duplicate CreateOffer() error = %v, want ErrDuplicateOffer", err)
	}
}

func TestManager_CreateOffer_InvalidAmount(t *testing.T) {
	giftMgr, _ := newManagers(t)

	for _, amount := range []int{0, -5} {
		if _, err := giftMgr.CreateOffer(context.Background(), "gift-bad", amount); err == nil {
			t.Errorf("CreateOffer(%d) succeeded, want error", amount)
		}
	}
}

func TestManager_Claim(t *testing.T) {
	giftMgr, walletMgr := newManagers(t)
	if _, err := giftMgr.CreateOffer(context.Background(), "gift-1", 10); err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}

	balance, err := giftMgr.Claim(context.Background(), "gift-1", "alice", "Alice")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if balance != 10 {
		t.Errorf("balance = %d, want 10", balance)
	}

	// A different user claims the same offer independently.
	balance, err = giftMgr.Claim(context.Background(), "gift-1", "bob", "Bob")
	if err != nil {
		t.Fatalf("Claim() by second user error = %v", err)
	}
	if balance != 10 {
		t.Errorf("bob balance = %d, want 10", balance)
	}

	got, _ := walletMgr.GetBalance(context.Background(), "alice", "Alice")
	if got != 10 {
		t.Errorf("alice balance = %d, want 10", got)
	}
}

func TestManager_Claim_AlreadyClaimed(t *testing.T) {
	giftMgr, walletMgr := newManagers(t)
	if _, err := giftMgr.CreateOffer(context.Background(), "gift-1", 10); err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}

	if _, err := giftMgr.Claim(context.Background(), "gift-1", "alice", "Alice"); err != nil {
		t.Fatalf("first Claim() error = %v", err)
	}

	_, err := giftMgr.Claim(context.Background(), "gift-1", "alice", "Alice")
	if !errors.Is(err, store.ErrAlreadyClaimed) {
		t.Fatalf("second Claim() error = %v, want ErrAlreadyClaimed", err)
	}

	// The rejected claim credited nothing.
	balance, _ := walletMgr.GetBalance(context.Background(), "alice", "Alice")
	if balance != 10 {
		t.Errorf("balance = %d, want 10", balance)
	}
}

func TestManager_Claim_UnknownGift(t *testing.T) {
	giftMgr, _ := newManagers(t)

	_, err := giftMgr.Claim(context.Background(), "nope", "alice", "Alice")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Claim() error = %v, want ErrNotFound", err)
	}
}

// Hammering the same claim concurrently must credit exactly once.
func TestManager_Claim_Concurrent(t *testing.T) {
	giftMgr, walletMgr := newManagers(t)
	if _, err := giftMgr.CreateOffer(context.Background(), "gift-1", 10); err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := giftMgr.Claim(context.Background(), "gift-1", "alice", "Alice")
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, store.ErrAlreadyClaimed) {
				t.Errorf("Claim() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("%d claims succeeded, want exactly 1", succeeded)
	}
	balance, _ := walletMgr.GetBalance(context.Background(), "alice", "Alice")
	if balance != 10 {
		t.Errorf("balance = %d, want 10", balance)
	}
}
