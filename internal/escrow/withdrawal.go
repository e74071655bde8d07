package escrow

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/ledger"
)

// withdrawal is an outgoing transfer whose debit has already been persisted.
// It can be paid exactly once.
type withdrawal struct {
	from   common.Address
	to     common.Address
	kind   domain.FundsKind
	asset  common.Address
	amount decimal.Decimal
	paid   bool
}

func (w *withdrawal) pay(ctx context.Context, l ledger.Host) error {
	if w.paid {
		return domain.ErrWithdrawalSpent
	}
	w.paid = true

	var err error
	if w.kind == domain.FundsAsset {
		err = l.Asset(w.asset).Transfer(ctx, w.from, w.to, w.amount)
	} else {
		err = l.TransferValue(ctx, w.from, w.to, w.amount)
	}
	if err != nil {
		return fmt.Errorf("pay %s withdrawal to %s: %w", w.kind, w.to.Hex(), err)
	}
	return nil
}
