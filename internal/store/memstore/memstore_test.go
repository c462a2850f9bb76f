package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lucapanzeri/telegram-auction-bot/internal/clock"
	"github.com/lucapanzeri/telegram-auction-bot/internal/event"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store/memstore"
)

func newRepos(t *testing.T) (*store.Repositories, *clock.Mock) {
	t.Helper()
	clk := &clock.Mock{T: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	return memstore.Open(clk), clk
}

func TestWalletRepo(t *testing.T) {
	repos, _ := newRepos(t)
	ctx := context.Background()

	if _, err := repos.Wallets.Get(ctx, "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get() on missing wallet error = %v, want ErrNotFound", err)
	}

	w, err := repos.Wallets.Ensure(ctx, "alice", "Alice")
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if w.Balance != 0 {
		t.Errorf("new wallet balance = %d, want 0", w.Balance)
	}

	balance, err := repos.Wallets.Credit(ctx, "alice", "Alice", 5)
	if err != nil {
		t.Fatalf("Credit() error = %v", err)
	}
	if balance != 5 {
		t.Errorf("balance after credit = %d, want 5", balance)
	}

	// Ensure on an existing wallet keeps the balance.
	w, _ = repos.Wallets.Ensure(ctx, "alice", "Alice")
	if w.Balance != 5 {
		t.Errorf("Ensure() reset balance to %d", w.Balance)
	}

	if err := repos.Wallets.Debit(ctx, "alice", 6); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("overdraft Debit() error = %v, want ErrInsufficientFunds", err)
	}
	if err := repos.Wallets.Debit(ctx, "alice", 5); err != nil {
		t.Fatalf("Debit() error = %v", err)
	}
	if err := repos.Wallets.Debit(ctx, "ghost", 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Debit() on missing wallet error = %v, want ErrNotFound", err)
	}

	if err := repos.Wallets.SetBalance(ctx, "bob", 9); err != nil {
		t.Fatalf("SetBalance() error = %v", err)
	}
	wallets, err := repos.Wallets.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(wallets) != 2 || wallets[0].UserID != "bob" {
		t.Errorf("List() = %v, want bob first by balance", wallets)
	}
}

func TestAuctionRepo_CommitBid(t *testing.T) {
	repos, _ := newRepos(t)
	ctx := context.Background()

	if _, err := repos.Wallets.Credit(ctx, "alice", "Alice", 2); err != nil {
		t.Fatal(err)
	}

	a := &store.Auction{LotID: "lot-1", ItemName: "Charizard"}
	if err := repos.Auctions.Create(ctx, a); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	deadline := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		auction  string
		bidder   string
		proposed int
		wantErr  error
	}{
		{name: "missing auction", auction: "nope", bidder: "alice", proposed: 1, wantErr: store.ErrNotFound},
		{name: "stale proposal", auction: a.ID, bidder: "alice", proposed: 2, wantErr: store.ErrConflict},
		{name: "missing wallet", auction: a.ID, bidder: "ghost", proposed: 1, wantErr: store.ErrNotFound},
		{name: "first bid", auction: a.ID, bidder: "alice", proposed: 1},
		{name: "replayed proposal", auction: a.ID, bidder: "alice", proposed: 1, wantErr: store.ErrConflict},
		{name: "second bid", auction: a.ID, bidder: "alice", proposed: 2},
		{name: "beyond balance", auction: a.ID, bidder: "alice", proposed: 3, wantErr: store.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repos.Auctions.CommitBid(ctx, tt.auction, tt.bidder, tt.proposed, deadline)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("CommitBid() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	got, err := repos.Auctions.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.CurrentBid != 2 {
		t.Errorf("current bid = %d, want 2", got.CurrentBid)
	}
	if got.CurrentBidder == nil || *got.CurrentBidder != "alice" {
		t.Errorf("current bidder = %v, want alice", got.CurrentBidder)
	}
	if !got.Deadline.Equal(deadline) {
		t.Errorf("deadline = %v, want %v", got.Deadline, deadline)
	}
}

func TestAuctionRepo_Archive(t *testing.T) {
	repos, _ := newRepos(t)
	ctx := context.Background()

	a := &store.Auction{LotID: "lot-1", ItemName: "Charizard"}
	if err := repos.Auctions.Create(ctx, a); err != nil {
		t.Fatal(err)
	}

	archived, err := repos.Auctions.Archive(ctx, a.ID)
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if archived.ItemName != "Charizard" || archived.SettledAmount != 0 || archived.Winner != nil {
		t.Errorf("archived = %+v, want no-bid snapshot", archived)
	}

	// Second archive loses: the active row is gone.
	if _, err := repos.Auctions.Archive(ctx, a.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second Archive() error = %v, want ErrNotFound", err)
	}

	got, err := repos.Auctions.GetArchived(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetArchived() error = %v", err)
	}
	if got.ID != a.ID {
		t.Errorf("archived id = %s, want %s", got.ID, a.ID)
	}
}

func TestAuctionRepo_Lists(t *testing.T) {
	repos, clk := newRepos(t)
	ctx := context.Background()

	early := &store.Auction{LotID: "lot-1", ItemName: "Charizard", Deadline: clk.Now().Add(time.Hour)}
	if err := repos.Auctions.Create(ctx, early); err != nil {
		t.Fatal(err)
	}
	clk.Advance(time.Minute)
	late := &store.Auction{LotID: "lot-2", ItemName: "Blastoise", Deadline: clk.Now().Add(2 * time.Hour)}
	if err := repos.Auctions.Create(ctx, late); err != nil {
		t.Fatal(err)
	}

	active, err := repos.Auctions.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if len(active) != 2 || active[0].ID != early.ID {
		t.Errorf("ListActive() = %v, want creation order", active)
	}

	byLot, err := repos.Auctions.ListByLot(ctx, "lot-1")
	if err != nil {
		t.Fatalf("ListByLot() error = %v", err)
	}
	if len(byLot) != 1 || byLot[0].ID != early.ID {
		t.Errorf("ListByLot() = %v, want only lot-1", byLot)
	}

	expired, err := repos.Auctions.ListExpired(ctx, early.Deadline)
	if err != nil {
		t.Fatalf("ListExpired() error = %v", err)
	}
	if len(expired) != 1 || expired[0].ID != early.ID {
		t.Errorf("ListExpired() = %v, want only the earlier deadline", expired)
	}
}

func TestGiftRepo(t *testing.T) {
	repos, _ := newRepos(t)
	ctx := context.Background()

	g := &store.GiftOffer{ID: "gift-1", Amount: 10}
	if err := repos.Gifts.CreateOffer(ctx, g); err != nil {
		t.Fatalf("CreateOffer() error = %v", err)
	}
	if err := repos.Gifts.CreateOffer(ctx, &store.GiftOffer{ID: "gift-1", Amount: 3}); !errors.Is(err, store.ErrDuplicateOffer) {
		t.Fatalf("duplicate CreateOffer() error = %v, want ErrDuplicateOffer", err)
	}

	got, err := repos.Gifts.GetOffer(ctx, "gift-1")
	if err != nil {
		t.Fatalf("GetOffer() error = %v", err)
	}
	if got.Amount != 10 {
		t.Errorf("amount = %d, want 10", got.Amount)
	}
	if _, err := repos.Gifts.GetOffer(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetOffer() on missing error = %v, want ErrNotFound", err)
	}

	if err := repos.Gifts.InsertClaim(ctx, "gift-1", "alice"); err != nil {
		t.Fatalf("InsertClaim() error = %v", err)
	}
	if err := repos.Gifts.InsertClaim(ctx, "gift-1", "alice"); !errors.Is(err, store.ErrAlreadyClaimed) {
		t.Fatalf("repeat InsertClaim() error = %v, want ErrAlreadyClaimed", err)
	}
	// Different user, same gift: fine.
	if err := repos.Gifts.InsertClaim(ctx, "gift-1", "bob"); err != nil {
		t.Fatalf("InsertClaim() by second user error = %v", err)
	}
}

func TestEventStore(t *testing.T) {
	repos, _ := newRepos(t)
	ctx := context.Background()

	seed := []event.Event{
		{AggregateID: "a1", Type: event.AuctionOpened},
		{AggregateID: "a1", Type: event.AuctionClosed},
		{AggregateID: "a2", Type: event.AuctionOpened},
	}
	for _, e := range seed {
		if err := repos.Events.Append(ctx, e); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	byAggregate, err := repos.Events.Load(ctx, "a1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(byAggregate) != 2 {
		t.Errorf("Load(a1) = %d events, want 2", len(byAggregate))
	}

	byType, err := repos.Events.LoadByType(ctx, event.AuctionOpened)
	if err != nil {
		t.Fatalf("LoadByType() error = %v", err)
	}
	if len(byType) != 2 {
		t.Errorf("LoadByType(opened) = %d events, want 2", len(byType))
	}
}
