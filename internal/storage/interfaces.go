package storage

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/domain"
)

// ClaimStore provides access to claims storage.
type ClaimStore interface {
	// Insert adds a new claim. Returns ErrDuplicateKey if the address exists.
	Insert(ctx context.Context, c *domain.Claim) error

	// Update overwrites an existing claim. Returns ErrNotFound if not exists.
	Update(ctx context.Context, c *domain.Claim) error

	// GetByAddress retrieves a claim by address. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address common.Address) (*domain.Claim, error)

	// GetByOwner retrieves all claims written by owner, ordered by created_at ASC.
	GetByOwner(ctx context.Context, owner common.Address) ([]*domain.Claim, error)

	// GetByState retrieves all claims in the given state, ordered by created_at ASC.
	GetByState(ctx context.Context, state domain.ClaimState) ([]*domain.Claim, error)
}

// EscrowStore provides access to escrows storage.
type EscrowStore interface {
	// Insert adds a new escrow. Returns ErrDuplicateKey if the address exists.
	Insert(ctx context.Context, e *domain.Escrow) error

	// Update overwrites an existing escrow. Returns ErrNotFound if not exists.
	Update(ctx context.Context, e *domain.Escrow) error

	// GetByAddress retrieves an escrow by address. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address common.Address) (*domain.Escrow, error)

	// List retrieves all escrows ordered by created_at ASC, address ASC.
	List(ctx context.Context) ([]*domain.Escrow, error)
}

// TokenStore provides access to claim tokens and their holder balances.
type TokenStore interface {
	// Insert adds a new token. Returns ErrDuplicateKey if the address exists.
	Insert(ctx context.Context, t *domain.ClaimToken) error

	// Update overwrites an existing token. Returns ErrNotFound if not exists.
	Update(ctx context.Context, t *domain.ClaimToken) error

	// GetByAddress retrieves a token by address. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address common.Address) (*domain.ClaimToken, error)

	// List retrieves all tokens ordered by created_at ASC, address ASC.
	List(ctx context.Context) ([]*domain.ClaimToken, error)

	// GetBalance returns the holder's balance, zero if the holder has none.
	GetBalance(ctx context.Context, token, holder common.Address) (decimal.Decimal, error)

	// SetBalance stores the holder's balance. A zero amount removes the entry.
	SetBalance(ctx context.Context, token, holder common.Address, amount decimal.Decimal) error

	// GetBalances retrieves all non-zero balances of a token, ordered by holder ASC.
	GetBalances(ctx context.Context, token common.Address) ([]domain.TokenBalance, error)
}

// PairingStore provides access to pairing records.
type PairingStore interface {
	// Insert adds a new pairing. Returns ErrDuplicateKey if the netting escrow
	// or either claim is already part of a pairing.
	Insert(ctx context.Context, p *domain.Pairing) error

	// Update overwrites an existing pairing. Returns ErrNotFound if not exists.
	Update(ctx context.Context, p *domain.Pairing) error

	// GetByNettingEscrow retrieves a pairing by its netting escrow. Returns ErrNotFound if not exists.
	GetByNettingEscrow(ctx context.Context, netting common.Address) (*domain.Pairing, error)

	// GetByClaim retrieves the pairing a claim belongs to. Returns ErrNotFound if not exists.
	GetByClaim(ctx context.Context, claim common.Address) (*domain.Pairing, error)

	// GetByState retrieves pairings in the given state, ordered by paired_at ASC.
	GetByState(ctx context.Context, state domain.PairingState) ([]*domain.Pairing, error)
}

// LedgerStore provides access to host-ledger balances and creation nonces.
type LedgerStore interface {
	// GetBalance returns the account's balance of asset, zero if none.
	GetBalance(ctx context.Context, asset, account common.Address) (decimal.Decimal, error)

	// SetBalance stores the account's balance of asset. A zero amount removes the entry.
	SetBalance(ctx context.Context, asset, account common.Address, amount decimal.Decimal) error

	// GetBalances retrieves all non-zero balances of asset, ordered by account ASC.
	GetBalances(ctx context.Context, asset common.Address) ([]domain.LedgerBalance, error)

	// NextNonce returns the creator's current nonce and increments it.
	NextNonce(ctx context.Context, creator common.Address) (uint64, error)
}

// EventStore provides access to emitted records (append-only).
type EventStore interface {
	// Append stores an event and assigns its Seq.
	Append(ctx context.Context, e *domain.Event) error

	// GetByEmitter retrieves the emitter's events, ordered by seq ASC.
	GetByEmitter(ctx context.Context, emitter common.Address) ([]*domain.Event, error)

	// GetAll retrieves all events, ordered by seq ASC.
	GetAll(ctx context.Context) ([]*domain.Event, error)
}

// Tx exposes every store bound to one transaction.
type Tx interface {
	Claims() ClaimStore
	Escrows() EscrowStore
	Tokens() TokenStore
	Pairings() PairingStore
	Ledger() LedgerStore
	Events() EventStore
}

// TxRunner executes operations atomically.
type TxRunner interface {
	// InTx runs fn in a transaction. If fn returns an error, no mutation
	// made through tx survives; otherwise all of them are committed.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// EventSink receives committed events for external observers.
type EventSink interface {
	// Publish delivers events in seq order. Delivery is at-least-once.
	Publish(ctx context.Context, events []*domain.Event) error
}
