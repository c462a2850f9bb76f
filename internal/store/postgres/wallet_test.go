package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/lucapanzeri/telegram-auction-bot/internal/clock"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store/postgres"
)

func TestWalletRepo_EnsureAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewWalletRepo(db, clock.Real{})
	ctx := context.Background()

	if _, err := repo.Get(ctx, "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get on missing wallet: %v, want ErrNotFound", err)
	}

	w, err := repo.Ensure(ctx, "alice", "Alice")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if w.Balance != 0 {
		t.Errorf("new wallet balance = %d, want 0", w.Balance)
	}
	if w.DisplayName != "Alice" {
		t.Errorf("display name = %q, want %q", w.DisplayName, "Alice")
	}

	// Ensure again must not reset anything.
	if _, err := repo.Credit(ctx, "alice", "Alice", 7); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	w, err = repo.Ensure(ctx, "alice", "Alice")
	if err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if w.Balance != 7 {
		t.Errorf("balance after re-Ensure = %d, want 7", w.Balance)
	}
}

func TestWalletRepo_Credit(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewWalletRepo(db, clock.Real{})
	ctx := context.Background()

	// First credit creates the wallet.
	balance, err := repo.Credit(ctx, "alice", "Alice", 5)
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if balance != 5 {
		t.Errorf("balance = %d, want 5", balance)
	}

	balance, err = repo.Credit(ctx, "alice", "Alice", 3)
	if err != nil {
		t.Fatalf("second Credit: %v", err)
	}
	if balance != 8 {
		t.Errorf("balance = %d, want 8", balance)
	}
}

func TestWalletRepo_Debit(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewWalletRepo(db, clock.Real{})
	ctx := context.Background()

	if _, err := repo.Credit(ctx, "alice", "Alice", 5); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	if err := repo.Debit(ctx, "alice", 3); err != nil {
		t.Fatalf("Debit: %v", err)
	}
	w, _ := repo.Get(ctx, "alice")
	if w.Balance != 2 {
		t.Errorf("balance = %d, want 2", w.Balance)
	}

	// Overdraft is rejected and leaves the balance alone.
	if err := repo.Debit(ctx, "alice", 3); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("overdraft Debit: %v, want ErrInsufficientFunds", err)
	}
	w, _ = repo.Get(ctx, "alice")
	if w.Balance != 2 {
		t.Errorf("balance after rejected debit = %d, want 2", w.Balance)
	}

	if err := repo.Debit(ctx, "ghost", 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Debit on missing wallet: %v, want ErrNotFound", err)
	}
}

func TestWalletRepo_SetBalanceAndList(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewWalletRepo(db, clock.Real{})
	ctx := context.Background()

	if err := repo.SetBalance(ctx, "alice", 5); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	if err := repo.SetBalance(ctx, "bob", 12); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	// Overwrite an existing wallet.
	if err := repo.SetBalance(ctx, "alice", 2); err != nil {
		t.Fatalf("SetBalance overwrite: %v", err)
	}

	wallets, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(wallets) != 2 {
		t.Fatalf("List returned %d wallets, want 2", len(wallets))
	}
	// Ordered by balance DESC, so bob (12) first.
	if wallets[0].UserID != "bob" {
		t.Errorf("first wallet = %q, want %q", wallets[0].UserID, "bob")
	}
	if wallets[1].Balance != 2 {
		t.Errorf("alice balance = %d, want 2", wallets[1].Balance)
	}
}
