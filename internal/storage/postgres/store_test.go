package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/storage"
)

var (
	addrOwner   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	addrClaimA  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	addrClaimB  = common.HexToAddress("0x0000000000000000000000000000000000000002")
	addrEscrow  = common.HexToAddress("0x0000000000000000000000000000000000000011")
	addrToken   = common.HexToAddress("0x0000000000000000000000000000000000000021")
	addrNetting = common.HexToAddress("0x0000000000000000000000000000000000000031")
)

func testClaim(addr common.Address, state domain.ClaimState, createdAt int64) *domain.Claim {
	return &domain.Claim{
		Address: addr,
		Owner:   addrOwner,
		Terms: domain.ClaimTerms{
			OptionType: domain.OptionLongCall,
			Base:       "ETH",
			Underlying: "EOS",
			Expiration: 1800000000000,
			Strike:     decimal.RequireFromString("10.5"),
			Notional:   decimal.NewFromInt(10),
			Premium:    decimal.Zero,
		},
		State:     state,
		Escrow:    addrEscrow,
		Token:     addrToken,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestClaimStore_RoundTrip(t *testing.T) {
	pool := newTestPool(t)

	store := NewClaimStore(pool)
	ctx := context.Background()

	c := testClaim(addrClaimA, domain.ClaimCreated, 1000)
	require.NoError(t, store.Insert(ctx, c))
	assert.ErrorIs(t, store.Insert(ctx, c), storage.ErrDuplicateKey)

	got, err := store.GetByAddress(ctx, addrClaimA)
	require.NoError(t, err)
	assert.Equal(t, c.Owner, got.Owner)
	assert.Equal(t, c.Terms.OptionType, got.Terms.OptionType)
	assert.True(t, c.Terms.Strike.Equal(got.Terms.Strike))
	assert.False(t, got.IssuedRate.Valid)
	assert.False(t, got.SupplyAtSettlement.Valid)

	c.State = domain.ClaimTokensIssued
	c.IssuedRate = decimal.NewNullDecimal(decimal.RequireFromString("3.000000000000000001"))
	c.PayoutDecimals = 6
	require.NoError(t, store.Update(ctx, c))

	got, err = store.GetByAddress(ctx, addrClaimA)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimTokensIssued, got.State)
	require.True(t, got.IssuedRate.Valid)
	assert.Equal(t, "3.000000000000000001", got.IssuedRate.Decimal.String())
	assert.Equal(t, int32(6), got.PayoutDecimals)

	_, err = store.GetByAddress(ctx, addrClaimB)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, store.Update(ctx, testClaim(addrClaimB, domain.ClaimCreated, 0)), storage.ErrNotFound)
}

func TestClaimStore_GetByState(t *testing.T) {
	pool := newTestPool(t)

	store := NewClaimStore(pool)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, testClaim(addrClaimB, domain.ClaimCreated, 2000)))
	require.NoError(t, store.Insert(ctx, testClaim(addrClaimA, domain.ClaimCreated, 1000)))

	got, err := store.GetByState(ctx, domain.ClaimCreated)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, addrClaimA, got[0].Address)

	byOwner, err := store.GetByOwner(ctx, addrOwner)
	require.NoError(t, err)
	assert.Len(t, byOwner, 2)
}

func TestEscrowStore_RoundTrip(t *testing.T) {
	pool := newTestPool(t)

	store := NewEscrowStore(pool)
	ctx := context.Background()

	e := &domain.Escrow{
		Address:         addrEscrow,
		Administrator:   addrClaimA,
		NativeBalance:   decimal.NewFromInt(44),
		NativeDeposited: decimal.NewFromInt(44),
		CreatedAt:       1000,
	}
	require.NoError(t, store.Insert(ctx, e))

	got, err := store.GetByAddress(ctx, addrEscrow)
	require.NoError(t, err)
	assert.False(t, got.Sealed)

	e.CustodyAsset = addrToken
	e.AssetBalance = decimal.RequireFromString("0.000000000000000001")
	e.Sealed = true
	require.NoError(t, store.Update(ctx, e))

	got, err = store.GetByAddress(ctx, addrEscrow)
	require.NoError(t, err)
	assert.True(t, got.Sealed)
	assert.Equal(t, addrToken, got.CustodyAsset)
	assert.True(t, got.NativeBalance.Equal(decimal.NewFromInt(44)))
	assert.Equal(t, "0.000000000000000001", got.AssetBalance.String())
}

func TestTokenStore_Balances(t *testing.T) {
	pool := newTestPool(t)

	store := NewTokenStore(pool)
	ctx := context.Background()

	tok := &domain.ClaimToken{
		Address:      addrToken,
		IssuingClaim: addrClaimA,
		TotalSupply:  decimal.NewFromInt(30),
		MintingOpen:  true,
		ExpiresAt:    1800000000000,
		CreatedAt:    1000,
	}
	require.NoError(t, store.Insert(ctx, tok))

	holder := addrOwner
	require.NoError(t, store.SetBalance(ctx, addrToken, holder, decimal.NewFromInt(30)))

	bal, err := store.GetBalance(ctx, addrToken, holder)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(30)))

	bal, err = store.GetBalance(ctx, addrToken, addrClaimB)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	require.NoError(t, store.SetBalance(ctx, addrToken, holder, decimal.Zero))
	balances, err := store.GetBalances(ctx, addrToken)
	require.NoError(t, err)
	assert.Empty(t, balances)

	assert.ErrorIs(t, store.SetBalance(ctx, addrToken, holder, decimal.NewFromInt(-1)), storage.ErrInvalidInput)
}

func TestPairingStore_ClaimPairedOnce(t *testing.T) {
	pool := newTestPool(t)

	store := NewPairingStore(pool)
	ctx := context.Background()

	p := &domain.Pairing{
		NettingEscrow:     addrNetting,
		LongClaim:         addrClaimA,
		ShortClaim:        addrClaimB,
		State:             domain.PairingPaired,
		LongContribution:  decimal.NewFromInt(44),
		ShortContribution: decimal.NewFromInt(88),
		PairedAt:          1000,
	}
	require.NoError(t, store.Insert(ctx, p))

	// The long claim reappearing on the short side is still a duplicate.
	swapped := *p
	swapped.NettingEscrow = addrEscrow
	swapped.LongClaim = common.HexToAddress("0x03")
	swapped.ShortClaim = addrClaimA
	assert.ErrorIs(t, store.Insert(ctx, &swapped), storage.ErrDuplicateKey)

	got, err := store.GetByClaim(ctx, addrClaimB)
	require.NoError(t, err)
	assert.Equal(t, addrNetting, got.NettingEscrow)
	assert.True(t, got.NettedTotal().Equal(decimal.NewFromInt(132)))

	p.State = domain.PairingSettled
	p.SettlementRate = decimal.NewFromInt(12)
	p.ConvertedTotal = decimal.NewFromInt(11)
	p.LongPayout = decimal.NewFromInt(10)
	p.ShortPayout = decimal.NewFromInt(1)
	require.NoError(t, store.Update(ctx, p))

	settled, err := store.GetByState(ctx, domain.PairingSettled)
	require.NoError(t, err)
	require.Len(t, settled, 1)
	assert.True(t, settled[0].LongPayout.Equal(decimal.NewFromInt(10)))
}

func TestLedgerStore_NextNonce(t *testing.T) {
	pool := newTestPool(t)

	store := NewLedgerStore(pool)
	ctx := context.Background()

	for want := uint64(0); want < 3; want++ {
		got, err := store.NextNonce(ctx, addrOwner)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	other, err := store.NextNonce(ctx, addrClaimA)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), other)
}

func TestEventStore_AppendAssignsSeq(t *testing.T) {
	pool := newTestPool(t)

	store := NewEventStore(pool)
	ctx := context.Background()

	first := domain.NewFundsDeposited(addrClaimA, addrOwner, decimal.NewFromInt(44))
	second := domain.NewTokensIssued(addrClaimA, addrOwner, decimal.NewFromInt(30), decimal.NewFromInt(3))
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, second))
	assert.Less(t, first.Seq, second.Seq)

	events, err := store.GetByEmitter(ctx, addrClaimA)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventTokensIssued, events[1].Type)
	assert.True(t, events[1].Rate.Equal(decimal.NewFromInt(3)))

	assert.ErrorIs(t, store.Append(ctx, &domain.Event{}), storage.ErrInvalidInput)
}

func TestStore_InTxRollsBack(t *testing.T) {
	pool := newTestPool(t)

	store := NewStore(pool)
	ctx := context.Background()
	errBoom := errors.New("boom")

	err := store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.Claims().Insert(ctx, testClaim(addrClaimA, domain.ClaimCreated, 1000)); err != nil {
			return err
		}
		if _, err := tx.Ledger().NextNonce(ctx, addrOwner); err != nil {
			return err
		}
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	err = store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.Claims().GetByAddress(ctx, addrClaimA)
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	var nonce uint64
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		nonce, err = tx.Ledger().NextNonce(ctx, addrOwner)
		return err
	}))
	assert.Equal(t, uint64(0), nonce)
}

func TestStore_ViewIsReadOnly(t *testing.T) {
	pool := newTestPool(t)

	store := NewStore(pool)
	ctx := context.Background()

	err := store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Claims().Insert(ctx, testClaim(addrClaimA, domain.ClaimCreated, 1000))
	})
	assert.ErrorIs(t, err, storage.ErrReadOnly)
}
