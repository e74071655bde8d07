package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// NativeAsset is the asset handle denoting native currency.
var NativeAsset = common.Address{}

// Escrow is a custodial account holding native value and at most one
// designated fungible asset.
type Escrow struct {
	Address       common.Address
	Administrator common.Address // only address allowed to withdraw or redirect funds
	CustodyAsset  common.Address // zero until an asset is designated

	// Sealed escrows accept funds only from their administrator through
	// escrow-to-escrow transfers; open deposits are refused.
	Sealed bool

	NativeBalance decimal.Decimal
	AssetBalance  decimal.Decimal

	// Cumulative flows, used to audit conservation.
	NativeDeposited decimal.Decimal
	NativeWithdrawn decimal.Decimal
	AssetDeposited  decimal.Decimal
	AssetWithdrawn  decimal.Decimal

	CreatedAt int64 // unix ms
}

// HasCustodyAsset reports whether a fungible asset has been designated.
func (e *Escrow) HasCustodyAsset() bool {
	return e.CustodyAsset != NativeAsset
}

// HasAssetDeposit reports whether any asset has ever been deposited.
func (e *Escrow) HasAssetDeposit() bool {
	return e.AssetDeposited.IsPositive()
}

// Balance returns the balance of the given slot.
func (e *Escrow) Balance(kind FundsKind) decimal.Decimal {
	if kind == FundsAsset {
		return e.AssetBalance
	}
	return e.NativeBalance
}

// IsDormant reports whether both balances are zero.
func (e *Escrow) IsDormant() bool {
	return e.NativeBalance.IsZero() && e.AssetBalance.IsZero()
}
