package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// LedgerBalance is a host-ledger balance of one asset for one account.
// Asset is NativeAsset for native currency.
type LedgerBalance struct {
	Asset   common.Address
	Account common.Address
	Amount  decimal.Decimal
}
