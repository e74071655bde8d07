// Package escrow implements custodial accounts holding native value and at
// most one designated fungible asset.
package escrow

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/host"
)

// Escrow is a handle to one persisted escrow record.
// Every mutating call reloads the record first, so a nested call made during
// an outgoing transfer never sees a balance that was already spent.
type Escrow struct {
	env *host.Env
	rec *domain.Escrow
}

// Create registers a new escrow created by creator and administered by administrator.
func Create(ctx context.Context, env *host.Env, creator, administrator common.Address) (*Escrow, error) {
	if administrator == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero administrator", domain.ErrUnauthorized)
	}

	addr, err := env.Ledger.CreateAddress(ctx, creator)
	if err != nil {
		return nil, fmt.Errorf("derive escrow address: %w", err)
	}

	rec := &domain.Escrow{
		Address:         addr,
		Administrator:   administrator,
		NativeBalance:   decimal.Zero,
		AssetBalance:    decimal.Zero,
		NativeDeposited: decimal.Zero,
		NativeWithdrawn: decimal.Zero,
		AssetDeposited:  decimal.Zero,
		AssetWithdrawn:  decimal.Zero,
		CreatedAt:       env.NowMs(),
	}
	if err := env.Tx.Escrows().Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert escrow: %w", err)
	}
	return &Escrow{env: env, rec: rec}, nil
}

// Load returns the escrow at addr.
func Load(ctx context.Context, env *host.Env, addr common.Address) (*Escrow, error) {
	rec, err := env.Tx.Escrows().GetByAddress(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("load escrow %s: %w", addr.Hex(), err)
	}
	return &Escrow{env: env, rec: rec}, nil
}

// Address returns the escrow identity.
func (e *Escrow) Address() common.Address { return e.rec.Address }

// Administrator returns the address allowed to move funds out.
func (e *Escrow) Administrator() common.Address { return e.rec.Administrator }

// CustodyAsset returns the designated asset handle, zero if none.
func (e *Escrow) CustodyAsset() common.Address { return e.rec.CustodyAsset }

// NativeFundsBalance returns the native balance.
func (e *Escrow) NativeFundsBalance() decimal.Decimal { return e.rec.NativeBalance }

// UnderlyingAssetBalance returns the custody asset balance.
func (e *Escrow) UnderlyingAssetBalance() decimal.Decimal { return e.rec.AssetBalance }

// Record returns a copy of the escrow record.
func (e *Escrow) Record() domain.Escrow { return *e.rec }

// Sealed reports whether open deposits are refused.
func (e *Escrow) Sealed() bool { return e.rec.Sealed }

// DepositNative moves amount of native value from the depositor into the escrow.
// Anyone may deposit into an escrow that is not sealed.
func (e *Escrow) DepositNative(ctx context.Context, from common.Address, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", domain.ErrInvalidDeposit, amount)
	}
	if err := e.refresh(ctx); err != nil {
		return err
	}
	if e.rec.Sealed {
		return fmt.Errorf("%w: escrow %s is sealed", domain.ErrInvalidState, e.rec.Address.Hex())
	}

	if err := e.env.Ledger.TransferValue(ctx, from, e.rec.Address, amount); err != nil {
		return fmt.Errorf("transfer deposit: %w", err)
	}
	e.creditNative(amount)
	return e.save(ctx)
}

// Seal refuses every later DepositNative. Administrator only; sealing twice
// is a no-op. Transfers made by the administrator of another escrow and the
// administrator's own asset deposits are still accepted.
func (e *Escrow) Seal(ctx context.Context, caller common.Address) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if err := e.refresh(ctx); err != nil {
		return err
	}
	if e.rec.Sealed {
		return nil
	}
	e.rec.Sealed = true
	return e.save(ctx)
}

// SetCustodyAsset designates the fungible asset held in the asset slot.
// Re-designating the current asset is a no-op. A different asset is refused
// once any asset has been deposited.
func (e *Escrow) SetCustodyAsset(ctx context.Context, caller, asset common.Address) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if asset == domain.NativeAsset {
		return fmt.Errorf("%w: custody asset must be a fungible asset handle", domain.ErrInvalidState)
	}
	if err := e.refresh(ctx); err != nil {
		return err
	}

	if e.rec.CustodyAsset == asset {
		return nil
	}
	if e.rec.HasAssetDeposit() {
		return fmt.Errorf("%w: holds %s", domain.ErrAssetAlreadySet, e.rec.CustodyAsset.Hex())
	}
	e.rec.CustodyAsset = asset
	return e.save(ctx)
}

// DepositAsset pulls amount of the custody asset from the administrator's account.
func (e *Escrow) DepositAsset(ctx context.Context, caller common.Address, amount decimal.Decimal) error {
	if err := e.authorize(caller); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", domain.ErrInvalidDeposit, amount)
	}
	if err := e.refresh(ctx); err != nil {
		return err
	}
	if !e.rec.HasCustodyAsset() {
		return fmt.Errorf("%w: no custody asset designated", domain.ErrInvalidState)
	}

	asset := e.env.Ledger.Asset(e.rec.CustodyAsset)
	if err := asset.Transfer(ctx, caller, e.rec.Address, amount); err != nil {
		return fmt.Errorf("transfer asset deposit: %w", err)
	}
	e.creditAsset(amount)
	return e.save(ctx)
}

// WithdrawAssetTo pays amount of the custody asset to recipient.
func (e *Escrow) WithdrawAssetTo(ctx context.Context, caller, recipient common.Address, amount decimal.Decimal) error {
	w, err := e.withdraw(ctx, caller, domain.FundsAsset, recipient, amount)
	if err != nil {
		return err
	}
	return w.pay(ctx, e.env.Ledger)
}

// WithdrawNativeTo pays amount of native value to recipient.
func (e *Escrow) WithdrawNativeTo(ctx context.Context, caller, recipient common.Address, amount decimal.Decimal) error {
	w, err := e.withdraw(ctx, caller, domain.FundsNative, recipient, amount)
	if err != nil {
		return err
	}
	return w.pay(ctx, e.env.Ledger)
}

// TransferTo moves amount of the given kind into dst. For asset transfers dst
// adopts the custody asset if it has none and must not hold a different one.
func (e *Escrow) TransferTo(ctx context.Context, caller common.Address, dst *Escrow, kind domain.FundsKind, amount decimal.Decimal) error {
	if dst.rec.Address == e.rec.Address {
		return fmt.Errorf("%w: transfer to self", domain.ErrInvalidState)
	}
	if err := e.authorize(caller); err != nil {
		return err
	}
	if err := dst.refresh(ctx); err != nil {
		return err
	}
	if kind == domain.FundsAsset {
		if err := e.refresh(ctx); err != nil {
			return err
		}
		if err := dst.adopt(e.rec.CustodyAsset); err != nil {
			return err
		}
	}

	w, err := e.withdraw(ctx, caller, kind, dst.rec.Address, amount)
	if err != nil {
		return err
	}
	if err := w.pay(ctx, e.env.Ledger); err != nil {
		return err
	}

	// The transfer may have run nested calls against dst.
	if err := dst.reload(ctx, kind); err != nil {
		return err
	}
	if kind == domain.FundsAsset {
		dst.creditAsset(amount)
	} else {
		dst.creditNative(amount)
	}
	return dst.save(ctx)
}

// withdraw checks and records the debit, returning the transfer still owed.
func (e *Escrow) withdraw(ctx context.Context, caller common.Address, kind domain.FundsKind, recipient common.Address, amount decimal.Decimal) (*withdrawal, error) {
	if err := e.authorize(caller); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: withdrawal of %s", domain.ErrInvalidAmount, amount)
	}
	if err := e.refresh(ctx); err != nil {
		return nil, err
	}

	bal := e.rec.Balance(kind)
	if amount.GreaterThan(bal) {
		return nil, fmt.Errorf("%w: %s %s requested, %s held", domain.ErrInsufficientBalance, amount, kind, bal)
	}

	w := &withdrawal{from: e.rec.Address, to: recipient, kind: kind, amount: amount}
	if kind == domain.FundsAsset {
		if !e.rec.HasCustodyAsset() {
			return nil, fmt.Errorf("%w: no custody asset designated", domain.ErrInvalidState)
		}
		w.asset = e.rec.CustodyAsset
		e.rec.AssetBalance = e.rec.AssetBalance.Sub(amount)
		e.rec.AssetWithdrawn = e.rec.AssetWithdrawn.Add(amount)
	} else {
		e.rec.NativeBalance = e.rec.NativeBalance.Sub(amount)
		e.rec.NativeWithdrawn = e.rec.NativeWithdrawn.Add(amount)
	}

	if err := e.save(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func (e *Escrow) adopt(asset common.Address) error {
	if asset == domain.NativeAsset {
		return fmt.Errorf("%w: no custody asset designated", domain.ErrInvalidState)
	}
	switch e.rec.CustodyAsset {
	case asset:
		return nil
	case domain.NativeAsset:
		e.rec.CustodyAsset = asset
		return nil
	default:
		if !e.rec.HasAssetDeposit() {
			e.rec.CustodyAsset = asset
			return nil
		}
		return fmt.Errorf("%w: destination holds %s", domain.ErrAssetAlreadySet, e.rec.CustodyAsset.Hex())
	}
}

func (e *Escrow) creditNative(amount decimal.Decimal) {
	e.rec.NativeBalance = e.rec.NativeBalance.Add(amount)
	e.rec.NativeDeposited = e.rec.NativeDeposited.Add(amount)
}

func (e *Escrow) creditAsset(amount decimal.Decimal) {
	e.rec.AssetBalance = e.rec.AssetBalance.Add(amount)
	e.rec.AssetDeposited = e.rec.AssetDeposited.Add(amount)
}

func (e *Escrow) authorize(caller common.Address) error {
	if caller != e.rec.Administrator {
		return fmt.Errorf("%w: %s is not the administrator of escrow %s",
			domain.ErrUnauthorized, caller.Hex(), e.rec.Address.Hex())
	}
	return nil
}

// Reload re-reads the persisted record.
func (e *Escrow) Reload(ctx context.Context) error {
	return e.refresh(ctx)
}

func (e *Escrow) refresh(ctx context.Context) error {
	rec, err := e.env.Tx.Escrows().GetByAddress(ctx, e.rec.Address)
	if err != nil {
		return fmt.Errorf("reload escrow %s: %w", e.rec.Address.Hex(), err)
	}
	e.rec = rec
	return nil
}

// reload refreshes dst while keeping a custody asset adopted in memory.
func (e *Escrow) reload(ctx context.Context, kind domain.FundsKind) error {
	adopted := e.rec.CustodyAsset
	if err := e.refresh(ctx); err != nil {
		return err
	}
	if kind == domain.FundsAsset {
		return e.adopt(adopted)
	}
	return nil
}

func (e *Escrow) save(ctx context.Context) error {
	if err := e.env.Tx.Escrows().Update(ctx, e.rec); err != nil {
		return fmt.Errorf("update escrow: %w", err)
	}
	return nil
}
