package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/claim"
	"nomisma-settlement/internal/claimtoken"
	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/escrow"
	"nomisma-settlement/internal/host"
	"nomisma-settlement/internal/storage"
)

// Operation names, used for metrics and logs.
const (
	OpCreateClaim         = "create_claim"
	OpDepositFunds        = "deposit_funds"
	OpDepositToEscrow     = "deposit_to_escrow"
	OpSendValue           = "send_value"
	OpIssueTokens         = "issue_tokens"
	OpIssueTokensAtMarket = "issue_tokens_at_market"
	OpPairClaimContracts  = "pair_claim_contracts"
	OpSettleClaims        = "settle_claims"
	OpRedeemTokens        = "redeem_tokens"
	OpTransferTokens      = "transfer_tokens"
	OpFund                = "fund"
)

// CreateClaim registers a claim written by owner and returns its record.
func (o *Orchestrator) CreateClaim(ctx context.Context, owner common.Address, terms domain.ClaimTerms) (*domain.Claim, error) {
	var rec domain.Claim
	err := o.run(ctx, OpCreateClaim, func(ctx context.Context, env *host.Env) error {
		c, err := claim.Create(ctx, env, owner, terms)
		if err != nil {
			return err
		}
		rec = c.Record()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DepositFunds moves native value from the depositor into the claim's escrow.
func (o *Orchestrator) DepositFunds(ctx context.Context, claimAddr, from common.Address, amount decimal.Decimal) error {
	return o.run(ctx, OpDepositFunds, func(ctx context.Context, env *host.Env) error {
		c, err := claim.Load(ctx, env, claimAddr)
		if err != nil {
			return err
		}
		return c.DepositFunds(ctx, from, amount)
	})
}

// DepositToEscrow moves native value straight into an escrow.
func (o *Orchestrator) DepositToEscrow(ctx context.Context, escrowAddr, from common.Address, amount decimal.Decimal) error {
	return o.run(ctx, OpDepositToEscrow, func(ctx context.Context, env *host.Env) error {
		e, err := escrow.Load(ctx, env, escrowAddr)
		if err != nil {
			return err
		}
		return e.DepositNative(ctx, from, amount)
	})
}

// SendValue is a bare value transfer. Value sent to a claim is a deposit,
// value sent to an escrow is credited to it, anything else is a plain
// host transfer.
func (o *Orchestrator) SendValue(ctx context.Context, from, to common.Address, amount decimal.Decimal) error {
	return o.run(ctx, OpSendValue, func(ctx context.Context, env *host.Env) error {
		c, err := claim.Load(ctx, env, to)
		switch {
		case err == nil:
			return c.DepositFunds(ctx, from, amount)
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}

		e, err := escrow.Load(ctx, env, to)
		switch {
		case err == nil:
			return e.DepositNative(ctx, from, amount)
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}

		if !amount.IsPositive() {
			return fmt.Errorf("%w: transfer of %s", domain.ErrInvalidAmount, amount)
		}
		return env.Ledger.TransferValue(ctx, from, to, amount)
	})
}

// RequiredBacking returns the collateral a claim needs for issuance at rate.
func (o *Orchestrator) RequiredBacking(ctx context.Context, claimAddr common.Address, rate decimal.Decimal, underlyingToBase bool) (decimal.Decimal, error) {
	var required decimal.Decimal
	err := o.view(ctx, func(ctx context.Context, env *host.Env) error {
		c, err := claim.Load(ctx, env, claimAddr)
		if err != nil {
			return err
		}
		required, err = c.RequiredBacking(rate, underlyingToBase)
		return err
	})
	return required, err
}

// CheckSufficientBacking reports whether the claim's escrow holds at least amount.
func (o *Orchestrator) CheckSufficientBacking(ctx context.Context, claimAddr common.Address, amount decimal.Decimal) (bool, error) {
	var ok bool
	err := o.view(ctx, func(ctx context.Context, env *host.Env) error {
		c, err := claim.Load(ctx, env, claimAddr)
		if err != nil {
			return err
		}
		ok = c.CheckSufficientBacking(amount)
		return nil
	})
	return ok, err
}

// IssueTokens mints claim tokens to the counterparty at rate and returns the amount.
func (o *Orchestrator) IssueTokens(ctx context.Context, claimAddr, caller common.Address, rate decimal.Decimal, underlyingToBase bool) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := o.run(ctx, OpIssueTokens, func(ctx context.Context, env *host.Env) error {
		c, err := claim.Load(ctx, env, claimAddr)
		if err != nil {
			return err
		}
		amount, err = c.IssueTokens(ctx, caller, rate, underlyingToBase)
		return err
	})
	return amount, err
}

// IssueTokensAtMarket issues at the oracle rate and returns amount and rate.
func (o *Orchestrator) IssueTokensAtMarket(ctx context.Context, claimAddr, caller common.Address, underlyingToBase bool) (decimal.Decimal, decimal.Decimal, error) {
	var amount, rate decimal.Decimal
	err := o.run(ctx, OpIssueTokensAtMarket, func(ctx context.Context, env *host.Env) error {
		c, err := claim.Load(ctx, env, claimAddr)
		if err != nil {
			return err
		}
		amount, rate, err = c.IssueTokensAtMarket(ctx, caller, o.oracle, underlyingToBase)
		return err
	})
	return amount, rate, err
}

// ValidatePair reports whether two claims can be paired.
func (o *Orchestrator) ValidatePair(ctx context.Context, x, y common.Address) error {
	return o.view(ctx, func(ctx context.Context, env *host.Env) error {
		return o.authority.ValidatePair(ctx, env, x, y)
	})
}

// PairClaimContracts nets two compatible claims into a new netting escrow.
func (o *Orchestrator) PairClaimContracts(ctx context.Context, x, y common.Address) (*domain.Pairing, error) {
	var p *domain.Pairing
	err := o.run(ctx, OpPairClaimContracts, func(ctx context.Context, env *host.Env) error {
		var err error
		p, err = o.authority.PairClaimContracts(ctx, env, x, y)
		return err
	})
	if err != nil {
		return nil, err
	}
	o.metrics.PairingsTotal.Inc()
	return p, nil
}

// SettleClaims settles the pairing behind a netting escrow at the oracle rate.
func (o *Orchestrator) SettleClaims(ctx context.Context, caller, netting common.Address) (*domain.Pairing, error) {
	var p *domain.Pairing
	err := o.run(ctx, OpSettleClaims, func(ctx context.Context, env *host.Env) error {
		var err error
		p, err = o.authority.SettleClaims(ctx, env, caller, netting)
		return err
	})
	if err != nil {
		return nil, err
	}
	o.metrics.RecordSettlement(p.LongContribution.InexactFloat64(), p.ShortContribution.InexactFloat64(), p.SettledAt/1000)
	return p, nil
}

// RedeemTokens burns claim tokens for a share of the settled escrow.
func (o *Orchestrator) RedeemTokens(ctx context.Context, claimAddr, caller common.Address, amount decimal.Decimal) (*claim.Redemption, error) {
	var r *claim.Redemption
	err := o.run(ctx, OpRedeemTokens, func(ctx context.Context, env *host.Env) error {
		c, err := claim.Load(ctx, env, claimAddr)
		if err != nil {
			return err
		}
		r, err = c.RedeemTokens(ctx, caller, amount, o.rule)
		return err
	})
	if err != nil {
		return nil, err
	}
	o.metrics.RedemptionsTotal.Inc()
	return r, nil
}

// TransferTokens moves claim tokens between holders. The sender is the caller.
func (o *Orchestrator) TransferTokens(ctx context.Context, token, from, to common.Address, amount decimal.Decimal) error {
	return o.run(ctx, OpTransferTokens, func(ctx context.Context, env *host.Env) error {
		t, err := claimtoken.Load(ctx, env, token)
		if err != nil {
			return err
		}
		return t.Transfer(ctx, from, to, amount)
	})
}

// Fund credits native value to account on a sandbox ledger.
func (o *Orchestrator) Fund(ctx context.Context, account common.Address, amount decimal.Decimal) error {
	return o.run(ctx, OpFund, func(ctx context.Context, env *host.Env) error {
		f, ok := env.Ledger.(faucet)
		if !ok {
			return ErrNoFaucet
		}
		return f.Fund(ctx, account, amount)
	})
}
