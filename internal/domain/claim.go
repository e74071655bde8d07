package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ClaimState is the lifecycle state of a claim. States only advance.
type ClaimState string

const (
	ClaimCreated        ClaimState = "CREATED"
	ClaimFundsDeposited ClaimState = "FUNDS_DEPOSITED"
	ClaimTokensIssued   ClaimState = "TOKENS_ISSUED"
	ClaimPaired         ClaimState = "PAIRED"
	ClaimSettled        ClaimState = "SETTLED"
)

var claimStateRank = map[ClaimState]int{
	ClaimCreated:        0,
	ClaimFundsDeposited: 1,
	ClaimTokensIssued:   2,
	ClaimPaired:         3,
	ClaimSettled:        4,
}

// IsValid reports whether s is a known claim state.
func (s ClaimState) IsValid() bool {
	_, ok := claimStateRank[s]
	return ok
}

// Before reports whether s strictly precedes other in the lifecycle.
func (s ClaimState) Before(other ClaimState) bool {
	return claimStateRank[s] < claimStateRank[other]
}

// ClaimTerms are the fixed economic terms a claim is created with.
type ClaimTerms struct {
	OptionType   OptionType
	Counterparty common.Address // beneficiary of issued tokens
	Base         AssetCode
	Underlying   AssetCode
	Expiration   int64           // unix ms, strictly in the future at creation
	Strike       decimal.Decimal // price of one underlying unit in base units
	Notional     decimal.Decimal
	Premium      decimal.Decimal
	Authority    common.Address // settlement authority allowed to pair and settle
}

// Claim is one counterparty's option position.
type Claim struct {
	Address common.Address
	Owner   common.Address // writer, administrator of the claim
	Terms   ClaimTerms

	IssuedRate decimal.NullDecimal // set exactly once, at issuance
	State      ClaimState

	Escrow        common.Address // owned escrow
	Token         common.Address // owned claim token
	NettingEscrow common.Address // zero until paired

	// SupplyAtSettlement is the token supply observed when the claim settled.
	SupplyAtSettlement decimal.NullDecimal
	// PayoutDecimals is the settlement asset precision redemptions truncate at.
	PayoutDecimals int32

	CreatedAt int64 // unix ms
	UpdatedAt int64 // unix ms
}

// IsExpired reports whether the claim has reached its expiration at nowMs.
func (c *Claim) IsExpired(nowMs int64) bool {
	return nowMs >= c.Terms.Expiration
}
