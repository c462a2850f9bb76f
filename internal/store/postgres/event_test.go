package postgres_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/lucapanzeri/telegram-auction-bot/internal/event"
	"github.com/lucapanzeri/telegram-auction-bot/internal/store/postgres"
)

func TestEventStore_AppendAndLoad(t *testing.T) {
	db := newTestDB(t)
	es := postgres.NewEventStore(db)
	ctx := context.Background()

	data, _ := json.Marshal(event.BidPlacedData{UserID: "alice", Amount: 1})
	seed := []event.Event{
		{AggregateID: "a1", Type: event.AuctionOpened, Data: json.RawMessage(`{}`)},
		{AggregateID: "a1", Type: event.AuctionBidPlaced, Data: data},
		{AggregateID: "a2", Type: event.AuctionOpened, Data: json.RawMessage(`{}`)},
	}
	if err := es.Append(ctx, seed...); err != nil {
		t.Fatalf("Append: %v", err)
	}

	events, err := es.Load(ctx, "a1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Load returned %d events, want 2", len(events))
	}
	if events[0].Type != event.AuctionOpened || events[1].Type != event.AuctionBidPlaced {
		t.Errorf("events out of order: %v, %v", events[0].Type, events[1].Type)
	}

	var bid event.BidPlacedData
	if err := json.Unmarshal(events[1].Data, &bid); err != nil {
		t.Fatalf("unmarshaling payload: %v", err)
	}
	if bid.UserID != "alice" || bid.Amount != 1 {
		t.Errorf("payload = %+v, want alice/1", bid)
	}

	byType, err := es.LoadByType(ctx, event.AuctionOpened)
	if err != nil {
		t.Fatalf("LoadByType: %v", err)
	}
	if len(byType) != 2 {
		t.Errorf("LoadByType returned %d events, want 2", len(byType))
	}
}

func TestEventStore_LoadEmpty(t *testing.T) {
	db := newTestDB(t)
	es := postgres.NewEventStore(db)

	events, err := es.Load(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Load returned %d events, want 0", len(events))
	}
}
