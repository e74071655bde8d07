package authority

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/claim"
	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/escrow"
	"nomisma-settlement/internal/host"
	"nomisma-settlement/internal/payoff"
	"nomisma-settlement/internal/storage"
)

// SettleClaims converts the netted collateral at the oracle rate and pays
// each paired claim its share in the settlement asset. Operator only.
func (a *Authority) SettleClaims(ctx context.Context, env *host.Env, caller, nettingAddr common.Address) (*domain.Pairing, error) {
	if caller != a.cfg.Operator {
		return nil, fmt.Errorf("%w: %s is not the settlement operator", domain.ErrUnauthorized, caller.Hex())
	}

	p, err := env.Tx.Pairings().GetByNettingEscrow(ctx, nettingAddr)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: netting escrow %s", domain.ErrUnknownPairing, nettingAddr.Hex())
		}
		return nil, fmt.Errorf("lookup pairing: %w", err)
	}
	if p.State != domain.PairingPaired {
		return nil, fmt.Errorf("%w: pairing %s already settled", domain.ErrUnknownPairing, nettingAddr.Hex())
	}

	long, err := claim.Load(ctx, env, p.LongClaim)
	if err != nil {
		return nil, err
	}
	short, err := claim.Load(ctx, env, p.ShortClaim)
	if err != nil {
		return nil, err
	}
	netting, err := escrow.Load(ctx, env, nettingAddr)
	if err != nil {
		return nil, err
	}

	terms := long.Terms()
	balance := netting.NativeFundsBalance()
	rate, err := a.oracle.Quote(ctx, terms.Underlying, terms.Base, balance)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrOracleUnavailable, err)
	}
	if !rate.IsPositive() {
		return nil, fmt.Errorf("%w: non-positive quote %s", domain.ErrOracleUnavailable, rate)
	}

	total, _ := balance.QuoRem(rate, a.cfg.SettlementDecimals)
	if err := a.convert(ctx, env, netting, balance, total); err != nil {
		return nil, err
	}

	split, err := a.policy.Split(payoff.Input{
		Rate:              rate,
		Strike:            terms.Strike,
		Notional:          terms.Notional,
		Total:             total,
		LongContribution:  p.LongContribution,
		ShortContribution: p.ShortContribution,
		Decimals:          a.cfg.SettlementDecimals,
	})
	if err != nil {
		return nil, fmt.Errorf("payoff %s: %w", a.policy.Name(), err)
	}
	if err := payoff.Check(split, total); err != nil {
		return nil, fmt.Errorf("payoff %s: %w", a.policy.Name(), err)
	}

	for _, leg := range []struct {
		c     *claim.Claim
		share decimal.Decimal
	}{{long, split.Long}, {short, split.Short}} {
		if leg.share.IsPositive() {
			if err := netting.TransferTo(ctx, a.cfg.Address, leg.c.Escrow(), domain.FundsAsset, leg.share); err != nil {
				return nil, fmt.Errorf("pay claim %s: %w", leg.c.Address().Hex(), err)
			}
		}
		if err := leg.c.MarkSettled(ctx, a.cfg.Address, a.cfg.SettlementDecimals); err != nil {
			return nil, err
		}
	}

	if err := netting.Reload(ctx); err != nil {
		return nil, err
	}
	if !netting.NativeFundsBalance().IsZero() || !netting.UnderlyingAssetBalance().IsZero() {
		return nil, fmt.Errorf("netting escrow %s not drained: native %s, asset %s",
			nettingAddr.Hex(), netting.NativeFundsBalance(), netting.UnderlyingAssetBalance())
	}

	p.State = domain.PairingSettled
	p.SettledAt = env.NowMs()
	p.SettlementRate = rate
	p.ConvertedTotal = total
	p.LongPayout = split.Long
	p.ShortPayout = split.Short
	if err := env.Tx.Pairings().Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update pairing: %w", err)
	}

	if err := env.Emit(ctx, domain.NewClaimsSettled(a.cfg.Address, nettingAddr, split.Long, split.Short)); err != nil {
		return nil, err
	}
	return p, nil
}

// convert sells the netted native collateral to the exchange and deposits
// total units of the settlement asset into the netting escrow.
func (a *Authority) convert(ctx context.Context, env *host.Env, netting *escrow.Escrow, balance, total decimal.Decimal) error {
	if balance.IsPositive() {
		if err := netting.WithdrawNativeTo(ctx, a.cfg.Address, a.cfg.Exchange, balance); err != nil {
			return fmt.Errorf("sell collateral: %w", err)
		}
	}
	if !total.IsPositive() {
		return nil
	}

	asset := env.Ledger.Asset(a.cfg.SettlementAsset)
	if err := asset.Mint(ctx, a.cfg.Address, total); err != nil {
		return fmt.Errorf("mint settlement asset: %w", err)
	}
	if err := netting.SetCustodyAsset(ctx, a.cfg.Address, a.cfg.SettlementAsset); err != nil {
		return err
	}
	return netting.DepositAsset(ctx, a.cfg.Address, total)
}
