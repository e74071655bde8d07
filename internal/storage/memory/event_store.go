package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
// Events are kept in append order.
type EventStore struct {
	mu     sync.RWMutex
	events []*domain.Event
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{}
}

// Compile-time interface checks.
var (
	_ storage.EventStore = (*EventStore)(nil)
	_ storage.EventSink  = (*EventStore)(nil)
)

// Append stores an event and assigns its Seq.
func (s *EventStore) Append(_ context.Context, e *domain.Event) error {
	if e == nil || e.Type == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e.Seq = int64(len(s.events)) + 1
	eventCopy := *e
	s.events = append(s.events, &eventCopy)
	return nil
}

// Publish appends already-sequenced events, skipping any seq already held.
// It lets an EventStore act as a sink mirroring another store.
func (s *EventStore) Publish(_ context.Context, events []*domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if e.Seq <= int64(len(s.events)) {
			continue
		}
		eventCopy := *e
		s.events = append(s.events, &eventCopy)
	}
	return nil
}

// GetByEmitter retrieves the emitter's events, ordered by seq ASC.
func (s *EventStore) GetByEmitter(_ context.Context, emitter common.Address) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Event
	for _, e := range s.events {
		if e.Emitter == emitter {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}
	return result, nil
}

// GetAll retrieves all events, ordered by seq ASC.
func (s *EventStore) GetAll(_ context.Context) ([]*domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Event, len(s.events))
	for i, e := range s.events {
		eventCopy := *e
		result[i] = &eventCopy
	}
	return result, nil
}

func (s *EventStore) clone() *EventStore {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := NewEventStore()
	out.events = make([]*domain.Event, len(s.events))
	copy(out.events, s.events) // events are immutable once appended
	return out
}
