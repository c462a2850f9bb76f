package commands

import (
	"sync"
	"time"

	"github.com/lucapanzeri/telegram-auction-bot/internal/clock"
)

// sessions tracks users the bot is waiting on for lot item names. A
// pending session expires after the TTL so an abandoned photo does not
// swallow the user's next message forever.
type sessions struct {
	mu      sync.Mutex
	clock   clock.Clock
	ttl     time.Duration
	pending map[int64]time.Time
}

func newSessions(clk clock.Clock, ttl time.Duration) *sessions {
	return &sessions{
		clock:   clk,
		ttl:     ttl,
		pending: make(map[int64]time.Time),
	}
}

// startNaming marks the user as owing a list of item names.
func (s *sessions) startNaming(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[userID] = s.clock.Now().Add(s.ttl)
}

// takeNaming consumes the user's pending session. It reports false if
// none exists or it has expired.
func (s *sessions) takeNaming(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	expires, ok := s.pending[userID]
	if !ok {
		return false
	}
	delete(s.pending, userID)
	return s.clock.Now().Before(expires)
}

// lotIndex maps lot announcement message IDs to lot IDs so /close can
// be used as a reply to the announcement.
type lotIndex struct {
	mu   sync.Mutex
	lots map[int]string
}

func newLotIndex() *lotIndex {
	return &lotIndex{lots: make(map[int]string)}
}

func (l *lotIndex) put(messageID int, lotID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lots[messageID] = lotID
}

func (l *lotIndex) take(messageID int) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lotID, ok := l.lots[messageID]
	if ok {
		delete(l.lots, messageID)
	}
	return lotID, ok
}
