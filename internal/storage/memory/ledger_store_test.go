package memory

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/domain"
)

func TestLedgerStore_NextNonce(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	a := common.HexToAddress("0xa1")
	b := common.HexToAddress("0xb0")

	for want := uint64(0); want < 3; want++ {
		got, err := store.NextNonce(ctx, a)
		if err != nil {
			t.Fatalf("NextNonce failed: %v", err)
		}
		if got != want {
			t.Errorf("nonce mismatch: got %d, want %d", got, want)
		}
	}

	// Nonces are per creator
	if got, _ := store.NextNonce(ctx, b); got != 0 {
		t.Errorf("expected fresh nonce 0 for new creator, got %d", got)
	}
}

func TestLedgerStore_BalancesPerAsset(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	acct := common.HexToAddress("0xa1")
	asset := common.HexToAddress("0x5e")

	_ = store.SetBalance(ctx, domain.NativeAsset, acct, decimal.NewFromInt(100))
	_ = store.SetBalance(ctx, asset, acct, decimal.NewFromInt(3))

	native, _ := store.GetBalance(ctx, domain.NativeAsset, acct)
	if !native.Equal(decimal.NewFromInt(100)) {
		t.Errorf("native balance mismatch: %s", native)
	}

	balances, _ := store.GetBalances(ctx, asset)
	if len(balances) != 1 || !balances[0].Amount.Equal(decimal.NewFromInt(3)) {
		t.Errorf("asset balances mismatch: %+v", balances)
	}
}
