package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	db DBTX
}

// NewEventStore creates a new EventStore.
func NewEventStore(db DBTX) *EventStore {
	return &EventStore{db: db}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

const eventColumns = `seq, event_type, emitter, subject, amount::text, counter_amount::text, rate::text, timestamp_ms`

// Append stores an event and assigns its Seq.
func (s *EventStore) Append(ctx context.Context, e *domain.Event) error {
	if e == nil || e.Type == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO settlement_events (
			event_type, emitter, subject, amount, counter_amount, rate, timestamp_ms
		) VALUES ($1, $2, $3, $4::text::numeric, $5::text::numeric, $6::text::numeric, $7)
		RETURNING seq
	`

	err := s.db.QueryRow(ctx, query,
		string(e.Type),
		addrText(e.Emitter),
		addrText(e.Subject),
		decText(e.Amount),
		decText(e.CounterAmount),
		decText(e.Rate),
		e.Timestamp,
	).Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// GetByEmitter retrieves the emitter's events, ordered by seq ASC.
func (s *EventStore) GetByEmitter(ctx context.Context, emitter common.Address) ([]*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM settlement_events WHERE emitter = $1 ORDER BY seq ASC`

	rows, err := s.db.Query(ctx, query, addrText(emitter))
	if err != nil {
		return nil, fmt.Errorf("get events by emitter: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetAll retrieves all events, ordered by seq ASC.
func (s *EventStore) GetAll(ctx context.Context) ([]*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM settlement_events ORDER BY seq ASC`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// scanEvents scans multiple rows into domain.Event slice.
func scanEvents(rows pgx.Rows) ([]*domain.Event, error) {
	var result []*domain.Event
	for rows.Next() {
		var (
			e                           domain.Event
			eventType, emitter, subject string
			amount, counter, rate       string
		)
		if err := rows.Scan(&e.Seq, &eventType, &emitter, &subject, &amount, &counter, &rate, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = domain.EventType(eventType)
		e.Emitter = parseAddr(emitter)
		e.Subject = parseAddr(subject)
		if err := parseDecs(
			decPair{amount, &e.Amount},
			decPair{counter, &e.CounterAmount},
			decPair{rate, &e.Rate},
		); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return result, nil
}
