// Package claimtoken implements the mintable, burnable and transferable
// accounting unit issued against a claim.
package claimtoken

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/host"
)

// Token is a handle to one persisted claim token.
type Token struct {
	env *host.Env
	rec *domain.ClaimToken
}

// Create registers a token issued by issuer. Minting closes at expiresAt (unix ms).
func Create(ctx context.Context, env *host.Env, issuer common.Address, expiresAt int64) (*Token, error) {
	addr, err := env.Ledger.CreateAddress(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("derive token address: %w", err)
	}

	rec := &domain.ClaimToken{
		Address:      addr,
		IssuingClaim: issuer,
		TotalSupply:  decimal.Zero,
		MintingOpen:  true,
		ExpiresAt:    expiresAt,
		CreatedAt:    env.NowMs(),
	}
	if err := env.Tx.Tokens().Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert token: %w", err)
	}
	return &Token{env: env, rec: rec}, nil
}

// Load returns the token at addr.
func Load(ctx context.Context, env *host.Env, addr common.Address) (*Token, error) {
	rec, err := env.Tx.Tokens().GetByAddress(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("load token %s: %w", addr.Hex(), err)
	}
	return &Token{env: env, rec: rec}, nil
}

// Address returns the token identity.
func (t *Token) Address() common.Address { return t.rec.Address }

// TotalSupply returns the number of tokens in circulation.
func (t *Token) TotalSupply() decimal.Decimal { return t.rec.TotalSupply }

// MintingOpen reports whether minting is still possible now.
func (t *Token) MintingOpen() bool { return t.rec.CanMint(t.env.NowMs()) }

// Record returns a copy of the token record.
func (t *Token) Record() domain.ClaimToken { return *t.rec }

// BalanceOf returns holder's balance.
func (t *Token) BalanceOf(ctx context.Context, holder common.Address) (decimal.Decimal, error) {
	bal, err := t.env.Tx.Tokens().GetBalance(ctx, t.rec.Address, holder)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get token balance: %w", err)
	}
	return bal, nil
}

// Holders returns every non-zero balance, ordered by holder.
func (t *Token) Holders(ctx context.Context) ([]domain.TokenBalance, error) {
	balances, err := t.env.Tx.Tokens().GetBalances(ctx, t.rec.Address)
	if err != nil {
		return nil, fmt.Errorf("get token holders: %w", err)
	}
	return balances, nil
}

// Mint creates amount tokens for to. Issuer only, while minting is open.
func (t *Token) Mint(ctx context.Context, caller, to common.Address, amount decimal.Decimal) error {
	if err := t.authorize(caller); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: mint of %s", domain.ErrInvalidAmount, amount)
	}
	if !t.MintingOpen() {
		return domain.ErrMintingClosed
	}

	bal, err := t.BalanceOf(ctx, to)
	if err != nil {
		return err
	}
	if err := t.setBalance(ctx, to, bal.Add(amount)); err != nil {
		return err
	}
	t.rec.TotalSupply = t.rec.TotalSupply.Add(amount)
	return t.save(ctx)
}

// Burn destroys amount of from's tokens. Issuer only.
func (t *Token) Burn(ctx context.Context, caller, from common.Address, amount decimal.Decimal) error {
	if err := t.authorize(caller); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: burn of %s", domain.ErrInvalidAmount, amount)
	}

	bal, err := t.BalanceOf(ctx, from)
	if err != nil {
		return err
	}
	if amount.GreaterThan(bal) {
		return fmt.Errorf("%w: %s holds %s, burning %s", domain.ErrInsufficientTokenBalance, from.Hex(), bal, amount)
	}
	if err := t.setBalance(ctx, from, bal.Sub(amount)); err != nil {
		return err
	}
	t.rec.TotalSupply = t.rec.TotalSupply.Sub(amount)
	return t.save(ctx)
}

// CloseMinting permanently stops minting. Issuer only; idempotent.
func (t *Token) CloseMinting(ctx context.Context, caller common.Address) error {
	if err := t.authorize(caller); err != nil {
		return err
	}
	if !t.rec.MintingOpen {
		return nil
	}
	t.rec.MintingOpen = false
	return t.save(ctx)
}

// Transfer moves amount of the caller's tokens to another holder.
func (t *Token) Transfer(ctx context.Context, from, to common.Address, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: transfer of %s", domain.ErrInvalidAmount, amount)
	}
	if to == (common.Address{}) {
		return fmt.Errorf("%w: transfer to the zero address", domain.ErrInvalidAmount)
	}
	if from == to {
		return nil
	}

	fromBal, err := t.BalanceOf(ctx, from)
	if err != nil {
		return err
	}
	if amount.GreaterThan(fromBal) {
		return fmt.Errorf("%w: %s holds %s, sending %s", domain.ErrInsufficientTokenBalance, from.Hex(), fromBal, amount)
	}
	toBal, err := t.BalanceOf(ctx, to)
	if err != nil {
		return err
	}

	if err := t.setBalance(ctx, from, fromBal.Sub(amount)); err != nil {
		return err
	}
	return t.setBalance(ctx, to, toBal.Add(amount))
}

func (t *Token) authorize(caller common.Address) error {
	if caller != t.rec.IssuingClaim {
		return fmt.Errorf("%w: %s is not the issuer of token %s",
			domain.ErrUnauthorized, caller.Hex(), t.rec.Address.Hex())
	}
	return nil
}

func (t *Token) setBalance(ctx context.Context, holder common.Address, amount decimal.Decimal) error {
	if err := t.env.Tx.Tokens().SetBalance(ctx, t.rec.Address, holder, amount); err != nil {
		return fmt.Errorf("set token balance: %w", err)
	}
	return nil
}

func (t *Token) save(ctx context.Context) error {
	if err := t.env.Tx.Tokens().Update(ctx, t.rec); err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	return nil
}
