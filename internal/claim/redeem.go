package claim

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/domain"
)

// RedemptionRule decides who may redeem tokens of a settled claim.
type RedemptionRule string

const (
	// RedeemByHolder lets a holder burn its own tokens for its own payout.
	RedeemByHolder RedemptionRule = "holder"

	// RedeemByOwnerForBeneficiary additionally lets the owner redeem the
	// counterparty's tokens; the payout still goes to the counterparty.
	RedeemByOwnerForBeneficiary RedemptionRule = "owner-for-beneficiary"
)

// ParseRedemptionRule parses a configured rule. Empty selects RedeemByHolder.
func ParseRedemptionRule(s string) (RedemptionRule, error) {
	switch RedemptionRule(s) {
	case "", RedeemByHolder:
		return RedeemByHolder, nil
	case RedeemByOwnerForBeneficiary:
		return RedeemByOwnerForBeneficiary, nil
	default:
		return "", fmt.Errorf("unknown redemption rule %q", s)
	}
}

// Redemption is the outcome of one redeemTokens call.
type Redemption struct {
	Holder common.Address
	Burned decimal.Decimal
	Payout decimal.Decimal
}

// RedeemTokens burns amount tokens and pays the holder the same share of the
// escrowed settlement asset. Shares are measured against the current supply,
// so the last redemption exhausts the escrow.
func (c *Claim) RedeemTokens(ctx context.Context, caller common.Address, amount decimal.Decimal, rule RedemptionRule) (*Redemption, error) {
	if c.rec.State != domain.ClaimSettled {
		return nil, fmt.Errorf("%w: redemption requires %s, claim is %s",
			domain.ErrInvalidState, domain.ClaimSettled, c.rec.State)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: redeem %s", domain.ErrInvalidAmount, amount)
	}

	holder := caller
	if rule == RedeemByOwnerForBeneficiary && caller == c.rec.Owner {
		holder = c.rec.Terms.Counterparty
	}

	bal, err := c.token.BalanceOf(ctx, holder)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(bal) {
		return nil, fmt.Errorf("%w: %s holds %s, redeeming %s",
			domain.ErrInsufficientTokenBalance, holder.Hex(), bal, amount)
	}

	if err := c.escrow.Reload(ctx); err != nil {
		return nil, err
	}
	payout := c.payoutFor(amount)
	if err := c.token.Burn(ctx, c.rec.Address, holder, amount); err != nil {
		return nil, err
	}
	if payout.IsPositive() {
		if err := c.escrow.WithdrawAssetTo(ctx, c.rec.Address, holder, payout); err != nil {
			return nil, err
		}
	}

	if err := c.save(ctx); err != nil {
		return nil, err
	}
	if err := c.env.Emit(ctx, domain.NewTokensRedeemed(c.rec.Address, holder, amount, payout)); err != nil {
		return nil, err
	}
	return &Redemption{Holder: holder, Burned: amount, Payout: payout}, nil
}

func (c *Claim) payoutFor(amount decimal.Decimal) decimal.Decimal {
	supply := c.token.TotalSupply()
	balance := c.escrow.UnderlyingAssetBalance()
	if amount.Equal(supply) {
		return balance
	}
	payout, _ := balance.Mul(amount).QuoRem(supply, c.rec.PayoutDecimals)
	return payout
}
