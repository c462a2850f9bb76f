package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/lucapanzeri/telegram-auction-bot/internal/clock"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store/postgres"
)

func TestGiftRepo_CreateOffer(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewGiftRepo(db, clock.Real{})
	ctx := context.Background()

	if err := repo.CreateOffer(ctx, &store.GiftOffer{ID: "gift-1", Amount: 10}); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}

	if err := repo.CreateOffer(ctx, &store.GiftOffer{ID: "gift-1", Amount: 3}); !errors.Is(err, store.ErrDuplicateOffer) {
		t.Fatalf("duplicate CreateOffer: %v, want ErrDuplicateOffer", err)
	}

	got, err := repo.GetOffer(ctx, "gift-1")
	if err != nil {
		t.Fatalf("GetOffer: %v", err)
	}
	if got.Amount != 10 {
		t.Errorf("amount = %d, want 10 (duplicate must not overwrite)", got.Amount)
	}

	if _, err := repo.GetOffer(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetOffer on missing: %v, want ErrNotFound", err)
	}
}

func TestGiftRepo_InsertClaim(t *testing.T) {
	db := newTestDB(t)
	repo := postgres.NewGiftRepo(db, clock.Real{})
	ctx := context.Background()

	if err := repo.CreateOffer(ctx, &store.GiftOffer{ID: "gift-1", Amount: 10}); err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}

	if err := repo.InsertClaim(ctx, "gift-1", "alice"); err != nil {
		t.Fatalf("InsertClaim: %v", err)
	}

	// The (gift, user) pair is unique.
	if err := repo.InsertClaim(ctx, "gift-1", "alice"); !errors.Is(err, store.ErrAlreadyClaimed) {
		t.Fatalf("repeat InsertClaim: %v, want ErrAlreadyClaimed", err)
	}

	// Another user may still claim.
	if err := repo.InsertClaim(ctx, "gift-1", "bob"); err != nil {
		t.Fatalf("InsertClaim by second user: %v", err)
	}
}
