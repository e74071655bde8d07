// Package authority pairs compatible LongCall and ShortPut claims into a
// netting escrow and settles them at an oracle rate.
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

// Config configures a settlement authority.
type Config struct {
	// Address administers netting escrows and is the authority named in claim terms.
	Address common.Address
	// Operator is the only caller allowed to settle.
	Operator common.Address
	// SettlementAsset is the fungible asset proceeds are paid in.
	SettlementAsset common.Address
	// SettlementDecimals is the precision of converted amounts.
	SettlementDecimals int32
	// Exchange receives the native collateral sold at settlement.
	Exchange common.Address
}

// Validate checks that every role is assigned.
func (c Config) Validate() error {
	var zero common.Address
	switch {
	case c.Address == zero:
		return errors.New("authority address is required")
	case c.Operator == zero:
		return errors.New("authority operator is required")
	case c.SettlementAsset == zero:
		return errors.New("settlement asset is required")
	case c.Exchange == zero:
		return errors.New("exchange account is required")
	case c.SettlementDecimals < 0:
		return errors.New("settlement decimals must not be negative")
	}
	return nil
}

// Authority is the pairing and settlement engine.
type Authority struct {
	cfg    Config
	oracle claim.Quoter
	policy payoff.Policy
}

// New creates an Authority.
func New(cfg Config, oracle claim.Quoter, policy payoff.Policy) *Authority {
	return &Authority{cfg: cfg, oracle: oracle, policy: policy}
}

// Config returns the authority configuration.
func (a *Authority) Config() Config { return a.cfg }

// Address returns the authority address.
func (a *Authority) Address() common.Address { return a.cfg.Address }

// ValidatePair reports whether the terms of two claims are compatible and
// neither is already paired. The check is symmetric. It does not look at
// issuance: PairClaimContracts additionally requires both claims to be
// TokensIssued and fails ErrInvalidState otherwise.
func (a *Authority) ValidatePair(ctx context.Context, env *host.Env, x, y common.Address) error {
	cx, err := env.Tx.Claims().GetByAddress(ctx, x)
	if err != nil {
		return lookupErr(x, err)
	}
	cy, err := env.Tx.Claims().GetByAddress(ctx, y)
	if err != nil {
		return lookupErr(y, err)
	}
	return a.validate(ctx, env, cx, cy)
}

func lookupErr(addr common.Address, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: unknown claim %s", domain.ErrIncompatibleTerms, addr.Hex())
	}
	return fmt.Errorf("load claim %s: %w", addr.Hex(), err)
}

func (a *Authority) validate(ctx context.Context, env *host.Env, x, y *domain.Claim) error {
	if err := compatible(x, y, a.cfg.Address); err != nil {
		return err
	}
	for _, c := range []*domain.Claim{x, y} {
		paired, err := a.isPaired(ctx, env, c)
		if err != nil {
			return err
		}
		if paired {
			return fmt.Errorf("%w: claim %s", domain.ErrAlreadyPaired, c.Address.Hex())
		}
	}
	return nil
}

// compatible holds the term checks. Each one compares x and y symmetrically.
func compatible(x, y *domain.Claim, authority common.Address) error {
	tx, ty := x.Terms, y.Terms
	switch {
	case x.Address == y.Address:
		return fmt.Errorf("%w: a claim cannot pair with itself", domain.ErrIncompatibleTerms)
	case tx.OptionType == ty.OptionType:
		return fmt.Errorf("%w: both claims are %s", domain.ErrIncompatibleTerms, tx.OptionType)
	case tx.Base != ty.Base || tx.Underlying != ty.Underlying:
		return fmt.Errorf("%w: asset codes differ", domain.ErrIncompatibleTerms)
	case tx.Expiration != ty.Expiration:
		return fmt.Errorf("%w: expirations differ", domain.ErrIncompatibleTerms)
	case !tx.Notional.Equal(ty.Notional):
		return fmt.Errorf("%w: notionals differ", domain.ErrIncompatibleTerms)
	case !tx.Strike.Equal(ty.Strike):
		return fmt.Errorf("%w: strikes differ", domain.ErrIncompatibleTerms)
	case tx.Authority != authority || ty.Authority != authority:
		return fmt.Errorf("%w: claims are not registered with this authority", domain.ErrIncompatibleTerms)
	}
	return nil
}

func (a *Authority) isPaired(ctx context.Context, env *host.Env, c *domain.Claim) (bool, error) {
	if c.NettingEscrow != (common.Address{}) || !c.State.Before(domain.ClaimPaired) {
		return true, nil
	}
	_, err := env.Tx.Pairings().GetByClaim(ctx, c.Address)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("lookup pairing: %w", err)
	}
}

// PairClaimContracts moves both claims' collateral into a new netting escrow
// and records the pairing. Any caller may pair.
func (a *Authority) PairClaimContracts(ctx context.Context, env *host.Env, x, y common.Address) (*domain.Pairing, error) {
	if err := a.ValidatePair(ctx, env, x, y); err != nil {
		return nil, err
	}

	cx, err := claim.Load(ctx, env, x)
	if err != nil {
		return nil, err
	}
	cy, err := claim.Load(ctx, env, y)
	if err != nil {
		return nil, err
	}
	long, short := cx, cy
	if long.Terms().OptionType != domain.OptionLongCall {
		long, short = cy, cx
	}
	for _, c := range []*claim.Claim{long, short} {
		if c.State() != domain.ClaimTokensIssued {
			return nil, fmt.Errorf("%w: claim %s is %s, pairing requires %s",
				domain.ErrInvalidState, c.Address().Hex(), c.State(), domain.ClaimTokensIssued)
		}
	}

	netting, err := escrow.Create(ctx, env, a.cfg.Address, a.cfg.Address)
	if err != nil {
		return nil, err
	}
	// Only the two releases below and settlement may fund it.
	if err := netting.Seal(ctx, a.cfg.Address); err != nil {
		return nil, err
	}
	longAmt, err := long.ReleaseForPairing(ctx, a.cfg.Address, netting)
	if err != nil {
		return nil, err
	}
	shortAmt, err := short.ReleaseForPairing(ctx, a.cfg.Address, netting)
	if err != nil {
		return nil, err
	}

	p := &domain.Pairing{
		NettingEscrow:     netting.Address(),
		Authority:         a.cfg.Address,
		LongClaim:         long.Address(),
		ShortClaim:        short.Address(),
		State:             domain.PairingPaired,
		LongContribution:  longAmt,
		ShortContribution: shortAmt,
		PairedAt:          env.NowMs(),
		SettlementRate:    decimal.Zero,
		ConvertedTotal:    decimal.Zero,
		LongPayout:        decimal.Zero,
		ShortPayout:       decimal.Zero,
	}
	if err := env.Tx.Pairings().Insert(ctx, p); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %w", domain.ErrAlreadyPaired, err)
		}
		return nil, fmt.Errorf("insert pairing: %w", err)
	}

	if err := env.Emit(ctx, domain.NewContractsPaired(a.cfg.Address, p.NettingEscrow, longAmt, shortAmt)); err != nil {
		return nil, err
	}
	return p, nil
}
