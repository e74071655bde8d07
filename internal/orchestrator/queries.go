package orchestrator

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/host"
)

// Claim returns the claim record at addr.
func (o *Orchestrator) Claim(ctx context.Context, addr common.Address) (*domain.Claim, error) {
	var rec *domain.Claim
	err := o.view(ctx, func(ctx context.Context, env *host.Env) error {
		var err error
		rec, err = env.Tx.Claims().GetByAddress(ctx, addr)
		return err
	})
	return rec, err
}

// ClaimsByState returns claims in state, oldest first.
func (o *Orchestrator) ClaimsByState(ctx context.Context, state domain.ClaimState) ([]*domain.Claim, error) {
	var out []*domain.Claim
	err := o.view(ctx, func(ctx context.Context, env *host.Env) error {
		var err error
		out, err = env.Tx.Claims().GetByState(ctx, state)
		return err
	})
	return out, err
}

// Escrow returns the escrow record at addr.
func (o *Orchestrator) Escrow(ctx context.Context, addr common.Address) (*domain.Escrow, error) {
	var rec *domain.Escrow
	err := o.view(ctx, func(ctx context.Context, env *host.Env) error {
		var err error
		rec, err = env.Tx.Escrows().GetByAddress(ctx, addr)
		return err
	})
	return rec, err
}

// Token returns the claim token record at addr.
func (o *Orchestrator) Token(ctx context.Context, addr common.Address) (*domain.ClaimToken, error) {
	var rec *domain.ClaimToken
	err := o.view(ctx, func(ctx context.Context, env *host.Env) error {
		var err error
		rec, err = env.Tx.Tokens().GetByAddress(ctx, addr)
		return err
	})
	return rec, err
}

// TokenBalance returns the holder's balance of a claim token.
func (o *Orchestrator) TokenBalance(ctx context.Context, token, holder common.Address) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := o.view(ctx, func(ctx context.Context, env *host.Env) error {
		var err error
		bal, err = env.Tx.Tokens().GetBalance(ctx, token, holder)
		return err
	})
	return bal, err
}

// NativeBalance returns the host native balance of account.
func (o *Orchestrator) NativeBalance(ctx context.Context, account common.Address) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := o.view(ctx, func(ctx context.Context, env *host.Env) error {
		var err error
		bal, err = env.Ledger.NativeBalance(ctx, account)
		return err
	})
	return bal, err
}

// AssetBalance returns the host balance of a fungible asset for account.
func (o *Orchestrator) AssetBalance(ctx context.Context, asset, account common.Address) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := o.view(ctx, func(ctx context.Context, env *host.Env) error {
		var err error
		bal, err = env.Ledger.Asset(asset).BalanceOf(ctx, account)
		return err
	})
	return bal, err
}

// Pairing returns the pairing owning a netting escrow.
func (o *Orchestrator) Pairing(ctx context.Context, netting common.Address) (*domain.Pairing, error) {
	var p *domain.Pairing
	err := o.view(ctx, func(ctx context.Context, env *host.Env) error {
		var err error
		p, err = env.Tx.Pairings().GetByNettingEscrow(ctx, netting)
		return err
	})
	return p, err
}

// Pairings returns pairings in state, oldest first.
func (o *Orchestrator) Pairings(ctx context.Context, state domain.PairingState) ([]*domain.Pairing, error) {
	var out []*domain.Pairing
	err := o.view(ctx, func(ctx context.Context, env *host.Env) error {
		var err error
		out, err = env.Tx.Pairings().GetByState(ctx, state)
		return err
	})
	return out, err
}

// Events returns the emitter's records in emission order. A zero emitter
// returns every record.
func (o *Orchestrator) Events(ctx context.Context, emitter common.Address) ([]*domain.Event, error) {
	var out []*domain.Event
	err := o.view(ctx, func(ctx context.Context, env *host.Env) error {
		var err error
		if emitter == (common.Address{}) {
			out, err = env.Tx.Events().GetAll(ctx)
		} else {
			out, err = env.Tx.Events().GetByEmitter(ctx, emitter)
		}
		return err
	})
	return out, err
}
