package memory

import (
	"context"
	"sync"

	"nomisma-settlement/internal/storage"
)

// Store is an in-memory storage.TxRunner.
// Operations are serialized; each transaction runs against a private copy
// of every store which replaces the live state only when fn succeeds.
type Store struct {
	mu    sync.RWMutex
	state *snapshot
}

type snapshot struct {
	claims   *ClaimStore
	escrows  *EscrowStore
	tokens   *TokenStore
	pairings *PairingStore
	ledger   *LedgerStore
	events   *EventStore
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: &snapshot{
			claims:   NewClaimStore(),
			escrows:  NewEscrowStore(),
			tokens:   NewTokenStore(),
			pairings: NewPairingStore(),
			ledger:   NewLedgerStore(),
			events:   NewEventStore(),
		},
	}
}

// Compile-time interface checks.
var (
	_ storage.TxRunner = (*Store)(nil)
	_ storage.Tx       = (*snapshot)(nil)
)

// InTx runs fn against a copy of the current state and commits the copy
// if fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.state = work
	return nil
}

// View runs fn against a copy of the current state. Changes are discarded.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	work := s.state.clone()
	s.mu.RUnlock()

	return fn(ctx, work)
}

func (s *snapshot) clone() *snapshot {
	return &snapshot{
		claims:   s.claims.clone(),
		escrows:  s.escrows.clone(),
		tokens:   s.tokens.clone(),
		pairings: s.pairings.clone(),
		ledger:   s.ledger.clone(),
		events:   s.events.clone(),
	}
}

func (s *snapshot) Claims() storage.ClaimStore     { return s.claims }
func (s *snapshot) Escrows() storage.EscrowStore   { return s.escrows }
func (s *snapshot) Tokens() storage.TokenStore     { return s.tokens }
func (s *snapshot) Pairings() storage.PairingStore { return s.pairings }
func (s *snapshot) Ledger() storage.LedgerStore    { return s.ledger }
func (s *snapshot) Events() storage.EventStore     { return s.events }
