// Package claim implements one counterparty's option position: creation,
// collateral deposit, token issuance, the pairing and settlement
// transitions driven by the settlement authority, and redemption.
package claim

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/claimtoken"
	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/escrow"
	"nomisma-settlement/internal/host"
)

// Quoter supplies conversion rates.
type Quoter interface {
	Quote(ctx context.Context, from, to domain.AssetCode, amount decimal.Decimal) (decimal.Decimal, error)
}

// Claim is a handle to one persisted claim with its escrow and token.
type Claim struct {
	env    *host.Env
	rec    *domain.Claim
	escrow *escrow.Escrow
	token  *claimtoken.Token
}

// Create registers a claim written by owner. The claim creates and
// administers its own escrow and token.
func Create(ctx context.Context, env *host.Env, owner common.Address, terms domain.ClaimTerms) (*Claim, error) {
	if err := validateTerms(owner, terms, env.NowMs()); err != nil {
		return nil, err
	}

	addr, err := env.Ledger.CreateAddress(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("derive claim address: %w", err)
	}

	esc, err := escrow.Create(ctx, env, addr, addr)
	if err != nil {
		return nil, err
	}
	tok, err := claimtoken.Create(ctx, env, addr, terms.Expiration)
	if err != nil {
		return nil, err
	}

	now := env.NowMs()
	rec := &domain.Claim{
		Address:   addr,
		Owner:     owner,
		Terms:     terms,
		State:     domain.ClaimCreated,
		Escrow:    esc.Address(),
		Token:     tok.Address(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := env.Tx.Claims().Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert claim: %w", err)
	}
	return &Claim{env: env, rec: rec, escrow: esc, token: tok}, nil
}

// Load returns the claim at addr.
func Load(ctx context.Context, env *host.Env, addr common.Address) (*Claim, error) {
	rec, err := env.Tx.Claims().GetByAddress(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("load claim %s: %w", addr.Hex(), err)
	}
	esc, err := escrow.Load(ctx, env, rec.Escrow)
	if err != nil {
		return nil, err
	}
	tok, err := claimtoken.Load(ctx, env, rec.Token)
	if err != nil {
		return nil, err
	}
	return &Claim{env: env, rec: rec, escrow: esc, token: tok}, nil
}

func validateTerms(owner common.Address, t domain.ClaimTerms, nowMs int64) error {
	var zero common.Address
	switch {
	case owner == zero:
		return fmt.Errorf("%w: zero owner", domain.ErrInvalidTerms)
	case !t.OptionType.IsValid():
		return fmt.Errorf("%w: option type %d", domain.ErrInvalidTerms, int(t.OptionType))
	case t.Counterparty == zero:
		return fmt.Errorf("%w: zero counterparty", domain.ErrInvalidTerms)
	case t.Counterparty == owner:
		return fmt.Errorf("%w: counterparty equals owner", domain.ErrInvalidTerms)
	case t.Base == "" || t.Underlying == "":
		return fmt.Errorf("%w: missing asset code", domain.ErrInvalidTerms)
	case t.Base == t.Underlying:
		return fmt.Errorf("%w: base equals underlying", domain.ErrInvalidTerms)
	case !t.Notional.IsPositive():
		return fmt.Errorf("%w: notional must be positive", domain.ErrInvalidTerms)
	case !t.Strike.IsPositive():
		return fmt.Errorf("%w: strike must be positive", domain.ErrInvalidTerms)
	case t.Premium.IsNegative():
		return fmt.Errorf("%w: negative premium", domain.ErrInvalidTerms)
	case t.Authority == zero:
		return fmt.Errorf("%w: zero authority", domain.ErrInvalidTerms)
	case t.Expiration <= nowMs:
		return fmt.Errorf("%w: expiration %d is not in the future", domain.ErrInvalidTerms, t.Expiration)
	}
	return nil
}

// Address returns the claim identity.
func (c *Claim) Address() common.Address { return c.rec.Address }

// Owner returns the writer of the claim.
func (c *Claim) Owner() common.Address { return c.rec.Owner }

// Terms returns the fixed economic terms.
func (c *Claim) Terms() domain.ClaimTerms { return c.rec.Terms }

// State returns the lifecycle state.
func (c *Claim) State() domain.ClaimState { return c.rec.State }

// Escrow returns the claim's own escrow.
func (c *Claim) Escrow() *escrow.Escrow { return c.escrow }

// Token returns the claim's token.
func (c *Claim) Token() *claimtoken.Token { return c.token }

// Record returns a copy of the claim record.
func (c *Claim) Record() domain.Claim { return *c.rec }

// DepositFunds moves native value from the depositor into the claim escrow.
// Deposits are refused once the claim has been paired.
func (c *Claim) DepositFunds(ctx context.Context, from common.Address, amount decimal.Decimal) error {
	if err := c.authorize(from, roleAnyone); err != nil {
		return err
	}
	if !c.rec.State.Before(domain.ClaimPaired) {
		return fmt.Errorf("%w: deposit in state %s", domain.ErrInvalidState, c.rec.State)
	}

	if err := c.escrow.DepositNative(ctx, from, amount); err != nil {
		return err
	}
	if c.rec.State == domain.ClaimCreated && c.escrow.NativeFundsBalance().IsPositive() {
		c.rec.State = domain.ClaimFundsDeposited
	}
	if err := c.save(ctx); err != nil {
		return err
	}
	return c.env.Emit(ctx, domain.NewFundsDeposited(c.rec.Address, from, amount))
}

// backingPrecision bounds the digits of a divided backing threshold.
// The threshold is rounded up so that meeting it implies meeting the exact quotient.
const backingPrecision int32 = 36

// RequiredBacking returns the collateral needed to issue at rate: notional*rate
// when underlyingToBase, notional/rate otherwise.
func (c *Claim) RequiredBacking(rate decimal.Decimal, underlyingToBase bool) (decimal.Decimal, error) {
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: rate %s", domain.ErrInvalidAmount, rate)
	}
	if underlyingToBase {
		return c.rec.Terms.Notional.Mul(rate), nil
	}
	q, r := c.rec.Terms.Notional.QuoRem(rate, backingPrecision)
	if !r.IsZero() {
		q = q.Add(decimal.New(1, -backingPrecision))
	}
	return q, nil
}

// CheckSufficientBacking reports whether the escrow holds at least amount.
func (c *Claim) CheckSufficientBacking(amount decimal.Decimal) bool {
	return c.escrow.NativeFundsBalance().GreaterThanOrEqual(amount)
}

// IssueTokens mints notional*rate tokens to the counterparty once the
// escrow covers the required backing. Owner only; at most once.
func (c *Claim) IssueTokens(ctx context.Context, caller common.Address, rate decimal.Decimal, underlyingToBase bool) (decimal.Decimal, error) {
	if err := c.authorize(caller, roleOwner); err != nil {
		return decimal.Zero, err
	}
	if c.rec.IssuedRate.Valid {
		return decimal.Zero, fmt.Errorf("%w: %w", domain.ErrAlreadyIssued, domain.ErrInvalidState)
	}
	if c.rec.IsExpired(c.env.NowMs()) {
		return decimal.Zero, fmt.Errorf("%w: claim expired", domain.ErrInvalidState)
	}

	required, err := c.RequiredBacking(rate, underlyingToBase)
	if err != nil {
		return decimal.Zero, err
	}
	if !c.CheckSufficientBacking(required) {
		return decimal.Zero, fmt.Errorf("%w: escrow holds %s, issuance needs %s",
			domain.ErrInsufficientBacking, c.escrow.NativeFundsBalance(), required)
	}

	amount := c.rec.Terms.Notional.Mul(rate)
	if err := c.token.Mint(ctx, c.rec.Address, c.rec.Terms.Counterparty, amount); err != nil {
		return decimal.Zero, err
	}

	c.rec.IssuedRate = decimal.NewNullDecimal(rate)
	c.rec.State = domain.ClaimTokensIssued
	if err := c.save(ctx); err != nil {
		return decimal.Zero, err
	}
	if err := c.env.Emit(ctx, domain.NewTokensIssued(c.rec.Address, c.rec.Terms.Counterparty, amount, rate)); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// IssueTokensAtMarket issues at the rate quoted for the escrowed collateral.
func (c *Claim) IssueTokensAtMarket(ctx context.Context, caller common.Address, q Quoter, underlyingToBase bool) (decimal.Decimal, decimal.Decimal, error) {
	if err := c.authorize(caller, roleOwner); err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	rate, err := q.Quote(ctx, c.rec.Terms.Underlying, c.rec.Terms.Base, c.escrow.NativeFundsBalance())
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %w", domain.ErrOracleUnavailable, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: non-positive quote %s", domain.ErrOracleUnavailable, rate)
	}

	amount, err := c.IssueTokens(ctx, caller, rate, underlyingToBase)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return amount, rate, nil
}

// ReleaseForPairing moves the full native balance into the netting escrow
// and advances the claim to Paired. Authority only.
func (c *Claim) ReleaseForPairing(ctx context.Context, caller common.Address, netting *escrow.Escrow) (decimal.Decimal, error) {
	if err := c.authorize(caller, roleAuthority); err != nil {
		return decimal.Zero, err
	}
	if c.rec.State != domain.ClaimTokensIssued {
		return decimal.Zero, fmt.Errorf("%w: pairing requires %s, claim is %s",
			domain.ErrInvalidState, domain.ClaimTokensIssued, c.rec.State)
	}

	// Nothing moves native value out after pairing, so nothing may move it in.
	if err := c.escrow.Seal(ctx, c.rec.Address); err != nil {
		return decimal.Zero, err
	}
	amount := c.escrow.NativeFundsBalance()
	if amount.IsPositive() {
		if err := c.escrow.TransferTo(ctx, c.rec.Address, netting, domain.FundsNative, amount); err != nil {
			return decimal.Zero, err
		}
	}

	c.rec.NettingEscrow = netting.Address()
	c.rec.State = domain.ClaimPaired
	if err := c.save(ctx); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// MarkSettled advances the claim to Settled, closes minting and records the
// supply redemptions are measured against and the settlement asset decimals
// payouts are truncated at. Authority only.
func (c *Claim) MarkSettled(ctx context.Context, caller common.Address, payoutDecimals int32) error {
	if err := c.authorize(caller, roleAuthority); err != nil {
		return err
	}
	if payoutDecimals < 0 {
		return fmt.Errorf("%w: negative payout decimals", domain.ErrInvalidAmount)
	}
	if c.rec.State != domain.ClaimPaired {
		return fmt.Errorf("%w: settlement requires %s, claim is %s",
			domain.ErrInvalidState, domain.ClaimPaired, c.rec.State)
	}

	if err := c.token.CloseMinting(ctx, c.rec.Address); err != nil {
		return err
	}
	c.rec.SupplyAtSettlement = decimal.NewNullDecimal(c.token.TotalSupply())
	c.rec.PayoutDecimals = payoutDecimals
	c.rec.State = domain.ClaimSettled
	return c.save(ctx)
}

func (c *Claim) save(ctx context.Context) error {
	c.rec.UpdatedAt = c.env.NowMs()
	if err := c.env.Tx.Claims().Update(ctx, c.rec); err != nil {
		return fmt.Errorf("update claim: %w", err)
	}
	return nil
}
