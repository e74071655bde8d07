package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ClaimToken is the fungible accounting unit issued against a claim.
type ClaimToken struct {
	Address      common.Address
	IssuingClaim common.Address // the only address allowed to mint or burn
	TotalSupply  decimal.Decimal
	MintingOpen  bool
	ExpiresAt    int64 // unix ms; minting is closed from this instant on
	CreatedAt    int64 // unix ms
}

// CanMint reports whether minting is still possible at nowMs.
func (t *ClaimToken) CanMint(nowMs int64) bool {
	return t.MintingOpen && nowMs < t.ExpiresAt
}

// TokenBalance is one holder's balance of a claim token.
type TokenBalance struct {
	Token  common.Address
	Holder common.Address
	Amount decimal.Decimal
}
