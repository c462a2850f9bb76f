package commands

import (
	"testing"
	"time"

	"github.com/lucapanzeri/telegram-auction-bot/internal/clock"
)

func TestSessions_TakeNaming(t *testing.T) {
	clk := &clock.Mock{T: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	s := newSessions(clk, 5*time.Minute)

	if s.takeNaming(1) {
		t.Fatal("takeNaming succeeded with no pending session")
	}

	s.startNaming(1)
	if !s.takeNaming(1) {
		t.Fatal("takeNaming failed for a fresh session")
	}
	// Consumed: a second take fails.
	if s.takeNaming(1) {
		t.Fatal("takeNaming succeeded twice for one session")
	}
}

func TestSessions_Expiry(t *testing.T) {
	clk := &clock.Mock{T: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	s := newSessions(clk, 5*time.Minute)

	s.startNaming(1)
	clk.Advance(6 * time.Minute)
	if s.takeNaming(1) {
		t.Fatal("takeNaming succeeded on an expired session")
	}
}

func TestSessions_PerUser(t *testing.T) {
	clk := &clock.Mock{T: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	s := newSessions(clk, 5*time.Minute)

	s.startNaming(1)
	if s.takeNaming(2) {
		t.Fatal("takeNaming for a different user succeeded")
	}
	if !s.takeNaming(1) {
		t.Fatal("takeNaming failed for the session owner")
	}
}

func TestLotIndex(t *testing.T) {
	l := newLotIndex()

	if _, ok := l.take(1); ok {
		t.Fatal("take succeeded on empty index")
	}

	l.put(1, "lot-a")
	lotID, ok := l.take(1)
	if !ok || lotID != "lot-a" {
		t.Fatalf("take = (%q, %v), want (lot-a, true)", lotID, ok)
	}
	// Entries are consumed on take.
	if _, ok := l.take(1); ok {
		t.Fatal("take succeeded twice for one entry")
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{name: "empty", in: "", want: 0},
		{name: "single", in: "Charizard", want: 1},
		{name: "multi with blanks", in: "Charizard\n\n  Blastoise \n", want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitLines(tt.in); len(got) != tt.want {
				t.Errorf("splitLines(%q) = %v, want %d lines", tt.in, got, tt.want)
			}
		})
	}
}
