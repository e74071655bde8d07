// Package ledger provides the host-ledger primitives the settlement core
// runs on: native value transfer, fungible assets and identity creation.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/idhash"
	"nomisma-settlement/internal/storage"
)

var (
	// ErrInsufficientFunds is returned when an account cannot cover a transfer or burn.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNonPositiveAmount is returned for a zero or negative transfer amount.
	ErrNonPositiveAmount = errors.New("amount must be positive")
)

// Host is the execution environment the core requires.
// Every call either applies fully or returns an error.
type Host interface {
	// TransferValue moves native value between accounts.
	TransferValue(ctx context.Context, from, to common.Address, amount decimal.Decimal) error

	// NativeBalance returns the native value held by account.
	NativeBalance(ctx context.Context, account common.Address) (decimal.Decimal, error)

	// Asset returns the fungible asset behind handle.
	Asset(handle common.Address) FungibleAsset

	// CreateAddress assigns the next identity created by creator.
	CreateAddress(ctx context.Context, creator common.Address) (common.Address, error)
}

// FungibleAsset is the mint/burn/transfer surface of one asset handle.
type FungibleAsset interface {
	Handle() common.Address
	Mint(ctx context.Context, to common.Address, amount decimal.Decimal) error
	Burn(ctx context.Context, from common.Address, amount decimal.Decimal) error
	Transfer(ctx context.Context, from, to common.Address, amount decimal.Decimal) error
	BalanceOf(ctx context.Context, account common.Address) (decimal.Decimal, error)
}

// StoreLedger implements Host over a storage.LedgerStore.
// Native value is kept under domain.NativeAsset.
type StoreLedger struct {
	store storage.LedgerStore
}

// NewStoreLedger creates a ledger bound to store.
func NewStoreLedger(store storage.LedgerStore) *StoreLedger {
	return &StoreLedger{store: store}
}

// Compile-time interface check.
var _ Host = (*StoreLedger)(nil)

// TransferValue moves native value from one account to another.
func (l *StoreLedger) TransferValue(ctx context.Context, from, to common.Address, amount decimal.Decimal) error {
	return l.move(ctx, domain.NativeAsset, from, to, amount)
}

// NativeBalance returns the native value held by account.
func (l *StoreLedger) NativeBalance(ctx context.Context, account common.Address) (decimal.Decimal, error) {
	return l.store.GetBalance(ctx, domain.NativeAsset, account)
}

// Asset returns the fungible asset behind handle.
func (l *StoreLedger) Asset(handle common.Address) FungibleAsset {
	return &storeAsset{ledger: l, handle: handle}
}

// CreateAddress derives the next CREATE-style address of creator.
func (l *StoreLedger) CreateAddress(ctx context.Context, creator common.Address) (common.Address, error) {
	nonce, err := l.store.NextNonce(ctx, creator)
	if err != nil {
		return common.Address{}, fmt.Errorf("next nonce: %w", err)
	}
	return idhash.ContractAddress(creator, nonce), nil
}

// Fund credits native value to account out of thin air. It is the sandbox
// faucet and has no counterpart on a real host.
func (l *StoreLedger) Fund(ctx context.Context, account common.Address, amount decimal.Decimal) error {
	return l.credit(ctx, domain.NativeAsset, account, amount)
}

func (l *StoreLedger) move(ctx context.Context, asset, from, to common.Address, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	if err := l.debit(ctx, asset, from, amount); err != nil {
		return err
	}
	return l.credit(ctx, asset, to, amount)
}

func (l *StoreLedger) debit(ctx context.Context, asset, account common.Address, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	bal, err := l.store.GetBalance(ctx, asset, account)
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}
	if bal.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientFunds, account.Hex(), bal, amount)
	}
	if err := l.store.SetBalance(ctx, asset, account, bal.Sub(amount)); err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return nil
}

func (l *StoreLedger) credit(ctx context.Context, asset, account common.Address, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrNonPositiveAmount
	}
	bal, err := l.store.GetBalance(ctx, asset, account)
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}
	if err := l.store.SetBalance(ctx, asset, account, bal.Add(amount)); err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return nil
}

// storeAsset is a fungible asset whose balances live in the ledger store.
type storeAsset struct {
	ledger *StoreLedger
	handle common.Address
}

func (a *storeAsset) Handle() common.Address { return a.handle }

func (a *storeAsset) Mint(ctx context.Context, to common.Address, amount decimal.Decimal) error {
	return a.ledger.credit(ctx, a.handle, to, amount)
}

func (a *storeAsset) Burn(ctx context.Context, from common.Address, amount decimal.Decimal) error {
	return a.ledger.debit(ctx, a.handle, from, amount)
}

func (a *storeAsset) Transfer(ctx context.Context, from, to common.Address, amount decimal.Decimal) error {
	return a.ledger.move(ctx, a.handle, from, to, amount)
}

func (a *storeAsset) BalanceOf(ctx context.Context, account common.Address) (decimal.Decimal, error) {
	return a.ledger.store.GetBalance(ctx, a.handle, account)
}
