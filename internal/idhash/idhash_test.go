package idhash

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/domain"
)

func TestContractAddress(t *testing.T) {
	creator := common.HexToAddress("0x6ac7ea33f8831ea9dcc53393aaa88b25a785dbf0")

	tests := []struct {
		nonce uint64
		want  string
	}{
		{0, "0xcd234a471b72ba2f1ccf0a70fcaba648a5eecd8d"},
		{1, "0x343c43a37d37dff08ae8c4a11544c718abb4fcf8"},
		{2, "0xf778b86fa74e846c4f0a1fbd1335fe81c00a0c91"},
	}

	for _, tt := range tests {
		got := ContractAddress(creator, tt.nonce)
		if got != common.HexToAddress(tt.want) {
			t.Errorf("ContractAddress(nonce=%d) = %s, want %s", tt.nonce, got.Hex(), tt.want)
		}
	}
}

func TestContractAddress_DistinctCreators(t *testing.T) {
	a := ContractAddress(common.HexToAddress("0x01"), 0)
	b := ContractAddress(common.HexToAddress("0x02"), 0)
	if a == b {
		t.Errorf("different creators produced the same address %s", a.Hex())
	}
}

func TestEventID(t *testing.T) {
	base := func() *domain.Event {
		e := domain.NewFundsDeposited(common.HexToAddress("0x01"), common.HexToAddress("0x02"), decimal.NewFromInt(44))
		e.Seq = 1
		e.Timestamp = 1704067200000
		return e
	}

	id := EventID(base())
	if len(id) != 64 {
		t.Fatalf("EventID length = %d, want 64", len(id))
	}
	if EventID(base()) != id {
		t.Error("EventID is not deterministic")
	}

	changed := base()
	changed.Amount = decimal.NewFromInt(45)
	if EventID(changed) == id {
		t.Error("EventID did not change with amount")
	}

	reseq := base()
	reseq.Seq = 2
	if EventID(reseq) == id {
		t.Error("EventID did not change with seq")
	}
}
