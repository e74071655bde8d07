package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/orchestrator"
	"nomisma-settlement/internal/verification"
)

// scenario parameterises one end-to-end run.
type scenario struct {
	LongUser   common.Address
	ShortUser  common.Address
	Base       domain.AssetCode
	Underlying domain.AssetCode
	Strike     decimal.Decimal
	Notional   decimal.Decimal
	Premium    decimal.Decimal
	// Collateral is what the short-put writer deposits.
	Collateral decimal.Decimal
	Expiry     time.Duration

	// IssueRate is used for issuance unless AtMarket quotes the oracle.
	IssueRate decimal.Decimal
	AtMarket  bool
}

func defaultScenario() scenario {
	return scenario{
		LongUser:   common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		ShortUser:  common.HexToAddress("0x00000000000000000000000000000000000000a2"),
		Base:       "ETH",
		Underlying: "EOS",
		Strike:     decimal.NewFromInt(10),
		Notional:   decimal.NewFromInt(10),
		Premium:    decimal.NewFromInt(44),
		Collateral: decimal.NewFromInt(88),
		Expiry:     24 * time.Hour,
		IssueRate:  decimal.NewFromInt(3),
	}
}

// outcome reports the balances the run ended with.
type outcome struct {
	Pairing        *domain.Pairing
	LongUserAsset  decimal.Decimal
	ShortUserAsset decimal.Decimal
	Report         *verification.Report
}

// errScenario marks a run that completed but ended in an unexpected state.
var errScenario = errors.New("scenario check failed")

// runScenario writes two opposite claims, pairs, settles and redeems them,
// logging escrow and user balances along the way.
//
// Each claim names the other writer as counterparty, so each user ends up
// holding and redeeming the other side's tokens.
func runScenario(ctx context.Context, o *orchestrator.Orchestrator, auditor *verification.Auditor, sc scenario, now time.Time, log *zap.Logger) (*outcome, error) {
	auth := o.Authority()
	funding := sc.Premium.Add(sc.Collateral)
	for _, user := range []common.Address{sc.LongUser, sc.ShortUser} {
		if err := o.Fund(ctx, user, funding); err != nil {
			return nil, fmt.Errorf("fund %s: %w", user.Hex(), err)
		}
	}

	log.Info("creating claim contracts")
	terms := domain.ClaimTerms{
		Base:       sc.Base,
		Underlying: sc.Underlying,
		Expiration: now.Add(sc.Expiry).UnixMilli(),
		Strike:     sc.Strike,
		Notional:   sc.Notional,
		Premium:    sc.Premium,
		Authority:  auth.Address,
	}
	longTerms := terms
	longTerms.OptionType = domain.OptionLongCall
	longTerms.Counterparty = sc.ShortUser
	long, err := o.CreateClaim(ctx, sc.LongUser, longTerms)
	if err != nil {
		return nil, fmt.Errorf("create long call: %w", err)
	}
	shortTerms := terms
	shortTerms.OptionType = domain.OptionShortPut
	shortTerms.Counterparty = sc.LongUser
	short, err := o.CreateClaim(ctx, sc.ShortUser, shortTerms)
	if err != nil {
		return nil, fmt.Errorf("create short put: %w", err)
	}
	log.Info("claims created",
		zap.String("long_call_escrow", long.Escrow.Hex()),
		zap.String("short_put_escrow", short.Escrow.Hex()))

	log.Info("depositing funds to escrows")
	if err := o.DepositToEscrow(ctx, long.Escrow, sc.LongUser, sc.Premium); err != nil {
		return nil, fmt.Errorf("deposit long call: %w", err)
	}
	if err := o.DepositToEscrow(ctx, short.Escrow, sc.ShortUser, sc.Collateral); err != nil {
		return nil, fmt.Errorf("deposit short put: %w", err)
	}

	log.Info("issuing tokens")
	for _, c := range []struct {
		claim *domain.Claim
		owner common.Address
	}{{long, sc.LongUser}, {short, sc.ShortUser}} {
		var amount, rate decimal.Decimal
		if sc.AtMarket {
			amount, rate, err = o.IssueTokensAtMarket(ctx, c.claim.Address, c.owner, true)
		} else {
			rate = sc.IssueRate
			amount, err = o.IssueTokens(ctx, c.claim.Address, c.owner, rate, true)
		}
		if err != nil {
			return nil, fmt.Errorf("issue tokens on %s: %w", c.claim.Address.Hex(), err)
		}
		log.Info("tokens issued",
			zap.String("claim", c.claim.Address.Hex()),
			zap.String("rate", rate.String()),
			zap.String("amount", amount.String()))
	}

	tok, err := o.Token(ctx, long.Token)
	if err != nil {
		return nil, err
	}
	heldByShort, err := o.TokenBalance(ctx, long.Token, sc.ShortUser)
	if err != nil {
		return nil, err
	}
	log.Info("long call token",
		zap.Bool("expired", !now.Before(time.UnixMilli(tok.ExpiresAt))),
		zap.Bool("minting_open", tok.MintingOpen),
		zap.String("owner", tok.IssuingClaim.Hex()),
		zap.String("beneficiary", sc.ShortUser.Hex()),
		zap.String("balance", heldByShort.String()))

	log.Info("pairing claim contracts")
	p, err := o.PairClaimContracts(ctx, long.Address, short.Address)
	if err != nil {
		return nil, fmt.Errorf("pair: %w", err)
	}
	log.Info("claims paired",
		zap.String("netting_escrow", p.NettingEscrow.Hex()),
		zap.String("src_amount", p.LongContribution.String()),
		zap.String("dest_amount", p.ShortContribution.String()))

	log.Info("settling claim contracts")
	p, err = o.SettleClaims(ctx, auth.Operator, p.NettingEscrow)
	if err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}
	log.Info("claims settled",
		zap.String("rate", p.SettlementRate.String()),
		zap.String("converted_total", p.ConvertedTotal.String()))
	if err := logEscrows(ctx, o, log, p.NettingEscrow, long.Escrow, short.Escrow); err != nil {
		return nil, err
	}

	shortEscrow, err := o.Escrow(ctx, short.Escrow)
	if err != nil {
		return nil, err
	}
	if shortEscrow.AssetBalance.IsZero() {
		return nil, fmt.Errorf("%w: short put escrow is empty after settlement", errScenario)
	}

	log.Info("redeeming tokens")
	for _, r := range []struct {
		claim  *domain.Claim
		holder common.Address
	}{{long, sc.ShortUser}, {short, sc.LongUser}} {
		held, err := o.TokenBalance(ctx, r.claim.Token, r.holder)
		if err != nil {
			return nil, err
		}
		red, err := o.RedeemTokens(ctx, r.claim.Address, r.holder, held)
		if err != nil {
			return nil, fmt.Errorf("redeem on %s: %w", r.claim.Address.Hex(), err)
		}
		log.Info("tokens redeemed",
			zap.String("claim", r.claim.Address.Hex()),
			zap.String("burned", red.Burned.String()),
			zap.String("payout", red.Payout.String()))
	}
	if err := logEscrows(ctx, o, log, p.NettingEscrow, long.Escrow, short.Escrow); err != nil {
		return nil, err
	}

	out := &outcome{Pairing: p}
	if out.LongUserAsset, err = o.AssetBalance(ctx, auth.SettlementAsset, sc.LongUser); err != nil {
		return nil, err
	}
	if out.ShortUserAsset, err = o.AssetBalance(ctx, auth.SettlementAsset, sc.ShortUser); err != nil {
		return nil, err
	}
	log.Info("user balances",
		zap.String("long_call_user", out.LongUserAsset.String()),
		zap.String("short_put_user", out.ShortUserAsset.String()))
	if out.LongUserAsset.IsZero() {
		// The long-call writer holds the short-put tokens.
		return nil, fmt.Errorf("%w: long call user received nothing", errScenario)
	}

	if out.Report, err = auditor.Audit(ctx); err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	if !out.Report.OK() {
		for _, v := range out.Report.Violations {
			log.Error("invariant violated", zap.String("violation", v.String()))
		}
		return out, fmt.Errorf("%w: %d invariant violations", errScenario, len(out.Report.Violations))
	}
	log.Info("audit passed",
		zap.Int("escrows", out.Report.Escrows),
		zap.Int("tokens", out.Report.Tokens),
		zap.Int("claims", out.Report.Claims))
	return out, nil
}

func logEscrows(ctx context.Context, o *orchestrator.Orchestrator, log *zap.Logger, netting, long, short common.Address) error {
	fields := make([]zap.Field, 0, 3)
	for _, e := range []struct {
		name string
		addr common.Address
	}{{"netting", netting}, {"long_call", long}, {"short_put", short}} {
		rec, err := o.Escrow(ctx, e.addr)
		if err != nil {
			return err
		}
		fields = append(fields, zap.String(e.name, rec.AssetBalance.String()))
	}
	log.Info("escrow balances", fields...)
	return nil
}
