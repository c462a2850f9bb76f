package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/lucapanzeri/telegram-auction-bot/internal/clock"
	"github.com/lucapanzeri/telegram-auction-bot/internal/event"
)

// EventStore implements event.Store on SQLite.
type EventStore struct {
	db    *DB
	clock clock.Clock
}

// NewEventStore returns a new EventStore.
func NewEventStore(db *DB, clk clock.Clock) *EventStore {
	return &EventStore{db: db, clock: clk}
}

func (s *EventStore) Append(ctx context.Context, events ...event.Event) error {
	return s.db.with(ctx, func(conn *sqlite.Conn) (err error) {
		defer sqlitex.Transaction(conn)(&err)

		for _, e := range events {
			if err := sqlitex.Execute(conn,
				`INSERT INTO events (id, aggregate_id, type, data, created_at) VALUES (?, ?, ?, ?, ?)`,
				&sqlitex.ExecOptions{Args: []any{
					uuid.NewString(), e.AggregateID, string(e.Type), string(e.Data), s.clock.Now().Unix(),
				}}); err != nil {
				return err
			}
		}
		return nil
	})
}

func scanEvent(stmt *sqlite.Stmt) event.Event {
	return event.Event{
		ID:          stmt.ColumnText(0),
		AggregateID: stmt.ColumnText(1),
		Type:        event.Type(stmt.ColumnText(2)),
		Data:        json.RawMessage(stmt.ColumnText(3)),
		CreatedAt:   time.Unix(stmt.ColumnInt64(4), 0).UTC(),
	}
}

func (s *EventStore) Load(ctx context.Context, aggregateID string) ([]event.Event, error) {
	var events []event.Event
	err := s.db.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, aggregate_id, type, data, created_at
			 FROM events WHERE aggregate_id = ? ORDER BY created_at ASC, id ASC`,
			&sqlitex.ExecOptions{
				Args: []any{aggregateID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					events = append(events, scanEvent(stmt))
					return nil
				},
			})
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *EventStore) LoadByType(ctx context.Context, eventType event.Type) ([]event.Event, error) {
	var events []event.Event
	err := s.db.with(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT id, aggregate_id, type, data, created_at
			 FROM events WHERE type = ? ORDER BY created_at ASC, id ASC`,
			&sqlitex.ExecOptions{
				Args: []any{string(eventType)},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					events = append(events, scanEvent(stmt))
					return nil
				},
			})
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
