package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/storage"
)

func TestPairingStore_ClaimPairedOnce(t *testing.T) {
	store := NewPairingStore()
	ctx := context.Background()

	long := common.HexToAddress("0x01")
	short := common.HexToAddress("0x02")
	other := common.HexToAddress("0x03")

	p := &domain.Pairing{
		NettingEscrow: common.HexToAddress("0xe1"),
		LongClaim:     long,
		ShortClaim:    short,
		State:         domain.PairingPaired,
		PairedAt:      1000,
	}
	if err := store.Insert(ctx, p); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Reusing either claim in a new pairing fails
	dup := &domain.Pairing{
		NettingEscrow: common.HexToAddress("0xe2"),
		LongClaim:     other,
		ShortClaim:    short,
		State:         domain.PairingPaired,
	}
	if err := store.Insert(ctx, dup); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	got, err := store.GetByClaim(ctx, long)
	if err != nil {
		t.Fatalf("GetByClaim failed: %v", err)
	}
	if got.NettingEscrow != p.NettingEscrow {
		t.Errorf("netting escrow mismatch: got %s", got.NettingEscrow)
	}
	if _, err := store.GetByClaim(ctx, other); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unpaired claim, got %v", err)
	}
}

func TestPairingStore_UpdateState(t *testing.T) {
	store := NewPairingStore()
	ctx := context.Background()

	p := &domain.Pairing{
		NettingEscrow: common.HexToAddress("0xe1"),
		LongClaim:     common.HexToAddress("0x01"),
		ShortClaim:    common.HexToAddress("0x02"),
		State:         domain.PairingPaired,
	}
	_ = store.Insert(ctx, p)

	p.State = domain.PairingSettled
	p.SettledAt = 2000
	if err := store.Update(ctx, p); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	settled, _ := store.GetByState(ctx, domain.PairingSettled)
	if len(settled) != 1 || settled[0].SettledAt != 2000 {
		t.Errorf("expected one settled pairing, got %+v", settled)
	}

	// The paired claims are fixed for the life of the record
	p.LongClaim = common.HexToAddress("0x09")
	if err := store.Update(ctx, p); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput when changing claims, got %v", err)
	}
}
