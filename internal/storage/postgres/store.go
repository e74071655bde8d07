package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"nomisma-settlement/internal/storage"
)

// Store implements storage.TxRunner on PostgreSQL.
// Transactions run at SERIALIZABLE isolation.
type Store struct {
	pool *Pool
}

// NewStore creates a new Store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Compile-time interface checks.
var (
	_ storage.TxRunner = (*Store)(nil)
	_ storage.Tx       = (*txStores)(nil)
)

// InTx runs fn in a serializable transaction, committing when fn returns nil.
// Serialization failures are reported as storage.ErrConflict.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
}

// View runs fn in a read-only repeatable-read transaction.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (s *Store) run(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context, tx storage.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(context.Background()) }()

	if err := fn(ctx, newTxStores(tx)); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func classify(err error) error {
	switch {
	case isSerializationError(err):
		return fmt.Errorf("%w: %w", storage.ErrConflict, err)
	case isReadOnlyError(err):
		return fmt.Errorf("%w: %w", storage.ErrReadOnly, err)
	default:
		return err
	}
}

// txStores binds every store to one pgx transaction.
type txStores struct {
	claims   *ClaimStore
	escrows  *EscrowStore
	tokens   *TokenStore
	pairings *PairingStore
	ledger   *LedgerStore
	events   *EventStore
}

func newTxStores(db DBTX) *txStores {
	return &txStores{
		claims:   NewClaimStore(db),
		escrows:  NewEscrowStore(db),
		tokens:   NewTokenStore(db),
		pairings: NewPairingStore(db),
		ledger:   NewLedgerStore(db),
		events:   NewEventStore(db),
	}
}

func (t *txStores) Claims() storage.ClaimStore     { return t.claims }
func (t *txStores) Escrows() storage.EscrowStore   { return t.escrows }
func (t *txStores) Tokens() storage.TokenStore     { return t.tokens }
func (t *txStores) Pairings() storage.PairingStore { return t.pairings }
func (t *txStores) Ledger() storage.LedgerStore    { return t.ledger }
func (t *txStores) Events() storage.EventStore     { return t.events }
