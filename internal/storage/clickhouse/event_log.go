package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/idhash"
	"nomisma-settlement/internal/storage"
)

// EventLog mirrors committed settlement events into ClickHouse.
// Rows are keyed by idhash.EventID, so republishing an event is harmless.
type EventLog struct {
	conn *Conn
}

// NewEventLog creates a new EventLog.
func NewEventLog(conn *Conn) *EventLog {
	return &EventLog{conn: conn}
}

// Compile-time interface check.
var _ storage.EventSink = (*EventLog)(nil)

// Publish appends events not yet present in the log.
func (s *EventLog) Publish(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	ids := make([]string, len(events))
	for i, e := range events {
		if e == nil || e.Seq <= 0 {
			return storage.ErrInvalidInput
		}
		ids[i] = idhash.EventID(e)
	}

	present, err := s.existing(ctx, ids)
	if err != nil {
		return fmt.Errorf("check existing events: %w", err)
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO settlement_events (
			event_id, seq, event_type, emitter, subject,
			amount, counter_amount, rate, timestamp_ms, ingested_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	now := time.Now().UTC()
	appended := 0
	for i, e := range events {
		if _, ok := present[ids[i]]; ok {
			continue
		}
		present[ids[i]] = struct{}{}

		err = batch.Append(
			ids[i], e.Seq, string(e.Type), e.Emitter.Hex(), e.Subject.Hex(),
			e.Amount, e.CounterAmount, e.Rate, e.Timestamp, now,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
		appended++
	}

	if appended == 0 {
		return batch.Abort()
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByEmitter retrieves the emitter's events, ordered by seq ASC.
func (s *EventLog) GetByEmitter(ctx context.Context, emitter common.Address) ([]*domain.Event, error) {
	query := `
		SELECT seq, event_type, emitter, subject, amount, counter_amount, rate, timestamp_ms
		FROM settlement_events FINAL
		WHERE emitter = ?
		ORDER BY seq ASC
	`

	rows, err := s.conn.Query(ctx, query, emitter.Hex())
	if err != nil {
		return nil, fmt.Errorf("query events by emitter: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetAll retrieves all events, ordered by seq ASC.
func (s *EventLog) GetAll(ctx context.Context) ([]*domain.Event, error) {
	query := `
		SELECT seq, event_type, emitter, subject, amount, counter_amount, rate, timestamp_ms
		FROM settlement_events FINAL
		ORDER BY seq ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query all events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *EventLog) existing(ctx context.Context, ids []string) (map[string]struct{}, error) {
	rows, err := s.conn.Query(ctx, `SELECT event_id FROM settlement_events WHERE event_id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	present := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		present[id] = struct{}{}
	}
	return present, rows.Err()
}

type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanEvents scans multiple rows.
func scanEvents(rows chRows) ([]*domain.Event, error) {
	var events []*domain.Event

	for rows.Next() {
		var e domain.Event
		var eventType, emitter, subject string

		err := rows.Scan(
			&e.Seq, &eventType, &emitter, &subject,
			&e.Amount, &e.CounterAmount, &e.Rate, &e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		e.Type = domain.EventType(eventType)
		e.Emitter = common.HexToAddress(emitter)
		e.Subject = common.HexToAddress(subject)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}

	return events, nil
}
