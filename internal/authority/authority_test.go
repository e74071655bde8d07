package authority

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nomisma-settlement/internal/claim"
	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/escrow"
	"nomisma-settlement/internal/host"
	"nomisma-settlement/internal/ledger"
	"nomisma-settlement/internal/payoff"
	"nomisma-settlement/internal/storage"
	"nomisma-settlement/internal/storage/memory"
)

var (
	longWriter  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	shortWriter = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	longHolder  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	shortHolder = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	nscAddr     = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	operator    = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	exchange    = common.HexToAddress("0x00000000000000000000000000000000000000ef")
	assetEOS    = common.HexToAddress("0x00000000000000000000000000000000000000e0")
)

const nowMs = int64(1704067200000)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixedQuoter struct {
	rate decimal.Decimal
	err  error
}

func (q *fixedQuoter) Quote(context.Context, domain.AssetCode, domain.AssetCode, decimal.Decimal) (decimal.Decimal, error) {
	return q.rate, q.err
}

func testConfig() Config {
	return Config{
		Address:         nscAddr,
		Operator:        operator,
		SettlementAsset: assetEOS,
		Exchange:        exchange,
	}
}

func terms(opt domain.OptionType, holder common.Address) domain.ClaimTerms {
	return domain.ClaimTerms{
		OptionType:   opt,
		Counterparty: holder,
		Base:         "ETH",
		Underlying:   "EOS",
		Expiration:   nowMs + 3600_000,
		Strike:       dec("10"),
		Notional:     dec("10"),
		Premium:      dec("44"),
		Authority:    nscAddr,
	}
}

type fixture struct {
	env   *host.Env
	l     *ledger.StoreLedger
	long  *claim.Claim
	short *claim.Claim
}

// newFixture creates and issues a LongCall claim backed by 44 and a
// ShortPut claim backed by 88, both at rate 3.
func newFixture(t *testing.T, ctx context.Context, tx storage.Tx) *fixture {
	t.Helper()
	l := ledger.NewStoreLedger(tx.Ledger())
	for _, a := range []common.Address{longWriter, shortWriter} {
		require.NoError(t, l.Fund(ctx, a, dec("1000")))
	}
	env := host.New(tx, l, time.UnixMilli(nowMs))

	long, err := claim.Create(ctx, env, longWriter, terms(domain.OptionLongCall, longHolder))
	require.NoError(t, err)
	short, err := claim.Create(ctx, env, shortWriter, terms(domain.OptionShortPut, shortHolder))
	require.NoError(t, err)

	require.NoError(t, long.DepositFunds(ctx, longWriter, dec("44")))
	require.NoError(t, short.DepositFunds(ctx, shortWriter, dec("88")))
	_, err = long.IssueTokens(ctx, longWriter, dec("3"), true)
	require.NoError(t, err)
	_, err = short.IssueTokens(ctx, shortWriter, dec("3"), true)
	require.NoError(t, err)

	return &fixture{env: env, l: l, long: long, short: short}
}

func inTx(t *testing.T, fn func(ctx context.Context, tx storage.Tx) error) {
	t.Helper()
	require.NoError(t, memory.NewStore().InTx(context.Background(), fn))
}

func TestValidatePair(t *testing.T) {
	inTx(t, func(ctx context.Context, tx storage.Tx) error {
		f := newFixture(t, ctx, tx)
		a := New(testConfig(), &fixedQuoter{rate: dec("12")}, payoff.PhysicalDelivery{})

		assert.NoError(t, a.ValidatePair(ctx, f.env, f.long.Address(), f.short.Address()))
		assert.NoError(t, a.ValidatePair(ctx, f.env, f.short.Address(), f.long.Address()))

		other := terms(domain.OptionLongCall, longHolder)
		same, err := claim.Create(ctx, f.env, longWriter, other)
		require.NoError(t, err)

		diffStrike := terms(domain.OptionShortPut, shortHolder)
		diffStrike.Strike = dec("11")
		strike, err := claim.Create(ctx, f.env, shortWriter, diffStrike)
		require.NoError(t, err)

		foreign := terms(domain.OptionShortPut, shortHolder)
		foreign.Authority = operator
		foreignClaim, err := claim.Create(ctx, f.env, shortWriter, foreign)
		require.NoError(t, err)

		pairs := [][2]common.Address{
			{f.long.Address(), same.Address()},
			{f.long.Address(), strike.Address()},
			{f.long.Address(), f.long.Address()},
			{f.long.Address(), foreignClaim.Address()},
			{f.long.Address(), common.HexToAddress("0x0badc0de")},
		}
		for _, p := range pairs {
			ab := a.ValidatePair(ctx, f.env, p[0], p[1])
			ba := a.ValidatePair(ctx, f.env, p[1], p[0])
			assert.ErrorIs(t, ab, domain.ErrIncompatibleTerms)
			assert.ErrorIs(t, ba, domain.ErrIncompatibleTerms)
		}
		return nil
	})
}

func TestPairClaimContracts(t *testing.T) {
	inTx(t, func(ctx context.Context, tx storage.Tx) error {
		f := newFixture(t, ctx, tx)
		a := New(testConfig(), &fixedQuoter{rate: dec("12")}, payoff.PhysicalDelivery{})

		// Argument order does not matter; the LongCall side is detected.
		p, err := a.PairClaimContracts(ctx, f.env, f.short.Address(), f.long.Address())
		require.NoError(t, err)
		assert.Equal(t, f.long.Address(), p.LongClaim)
		assert.Equal(t, "132", p.NettedTotal().String())

		netting, err := escrow.Load(ctx, f.env, p.NettingEscrow)
		require.NoError(t, err)
		assert.Equal(t, "132", netting.NativeFundsBalance().String())
		assert.True(t, netting.Sealed())
		assert.ErrorIs(t, netting.DepositNative(ctx, longWriter, dec("7")), domain.ErrInvalidState)
		assert.Equal(t, "132", netting.NativeFundsBalance().String())
		for _, c := range []*claim.Claim{f.long, f.short} {
			e, err := escrow.Load(ctx, f.env, c.Escrow().Address())
			require.NoError(t, err)
			assert.True(t, e.Sealed())
		}

		_, err = a.PairClaimContracts(ctx, f.env, f.long.Address(), f.short.Address())
		assert.ErrorIs(t, err, domain.ErrAlreadyPaired)
		assert.ErrorIs(t, a.ValidatePair(ctx, f.env, f.short.Address(), f.long.Address()), domain.ErrAlreadyPaired)

		events := f.env.Emitted()
		last := events[len(events)-1]
		assert.Equal(t, domain.EventContractsPaired, last.Type)
		assert.Equal(t, "44", last.Amount.String())
		assert.Equal(t, "88", last.CounterAmount.String())
		return nil
	})
}

func TestPairClaimContracts_RequiresIssuedTokens(t *testing.T) {
	inTx(t, func(ctx context.Context, tx storage.Tx) error {
		f := newFixture(t, ctx, tx)
		a := New(testConfig(), &fixedQuoter{rate: dec("12")}, payoff.PhysicalDelivery{})

		unissued, err := claim.Create(ctx, f.env, shortWriter, terms(domain.OptionShortPut, shortHolder))
		require.NoError(t, err)
		require.NoError(t, unissued.DepositFunds(ctx, shortWriter, dec("88")))

		// Terms are compatible, so validation alone accepts the pair.
		assert.NoError(t, a.ValidatePair(ctx, f.env, f.long.Address(), unissued.Address()))
		assert.NoError(t, a.ValidatePair(ctx, f.env, unissued.Address(), f.long.Address()))

		_, err = a.PairClaimContracts(ctx, f.env, f.long.Address(), unissued.Address())
		assert.ErrorIs(t, err, domain.ErrInvalidState)

		// Nothing was released or sealed.
		assert.Equal(t, domain.ClaimTokensIssued, f.long.State())
		long, err := escrow.Load(ctx, f.env, f.long.Escrow().Address())
		require.NoError(t, err)
		assert.False(t, long.Sealed())
		assert.Equal(t, "44", long.NativeFundsBalance().String())
		return nil
	})
}

func TestSettleClaims_Fixture(t *testing.T) {
	inTx(t, func(ctx context.Context, tx storage.Tx) error {
		f := newFixture(t, ctx, tx)
		a := New(testConfig(), &fixedQuoter{rate: dec("12")}, payoff.PhysicalDelivery{})

		p, err := a.PairClaimContracts(ctx, f.env, f.long.Address(), f.short.Address())
		require.NoError(t, err)

		_, err = a.SettleClaims(ctx, f.env, nscAddr, p.NettingEscrow)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		_, err = a.SettleClaims(ctx, f.env, operator, f.long.Escrow().Address())
		assert.ErrorIs(t, err, domain.ErrUnknownPairing)

		settled, err := a.SettleClaims(ctx, f.env, operator, p.NettingEscrow)
		require.NoError(t, err)
		assert.Equal(t, domain.PairingSettled, settled.State)
		assert.Equal(t, "11", settled.ConvertedTotal.String())
		assert.Equal(t, "10", settled.LongPayout.String())
		assert.Equal(t, "1", settled.ShortPayout.String())

		netting, err := escrow.Load(ctx, f.env, p.NettingEscrow)
		require.NoError(t, err)
		assert.True(t, netting.NativeFundsBalance().IsZero())
		assert.True(t, netting.UnderlyingAssetBalance().IsZero())

		long, err := claim.Load(ctx, f.env, f.long.Address())
		require.NoError(t, err)
		short, err := claim.Load(ctx, f.env, f.short.Address())
		require.NoError(t, err)
		assert.Equal(t, domain.ClaimSettled, long.State())
		assert.Equal(t, domain.ClaimSettled, short.State())
		assert.Equal(t, int32(0), long.Record().PayoutDecimals)
		assert.Equal(t, "10", long.Escrow().UnderlyingAssetBalance().String())
		assert.Equal(t, "1", short.Escrow().UnderlyingAssetBalance().String())

		sold, err := f.l.NativeBalance(ctx, exchange)
		require.NoError(t, err)
		assert.Equal(t, "132", sold.String())

		_, err = a.SettleClaims(ctx, f.env, operator, p.NettingEscrow)
		assert.ErrorIs(t, err, domain.ErrUnknownPairing)

		// Redeeming all tokens on each side pays out exactly the escrow.
		r, err := long.RedeemTokens(ctx, longHolder, dec("30"), claim.RedeemByHolder)
		require.NoError(t, err)
		assert.Equal(t, "10", r.Payout.String())
		r, err = short.RedeemTokens(ctx, shortHolder, dec("30"), claim.RedeemByHolder)
		require.NoError(t, err)
		assert.Equal(t, "1", r.Payout.String())

		assert.True(t, long.Escrow().UnderlyingAssetBalance().IsZero())
		assert.True(t, short.Escrow().UnderlyingAssetBalance().IsZero())

		events := f.env.Emitted()
		var settledEvent *domain.Event
		for _, e := range events {
			if e.Type == domain.EventClaimsSettled {
				settledEvent = e
			}
		}
		require.NotNil(t, settledEvent)
		assert.Equal(t, "10", settledEvent.Amount.String())
		assert.Equal(t, "1", settledEvent.CounterAmount.String())
		return nil
	})
}

func TestSettleClaims_RecordsSettlementDecimals(t *testing.T) {
	inTx(t, func(ctx context.Context, tx storage.Tx) error {
		f := newFixture(t, ctx, tx)
		cfg := testConfig()
		cfg.SettlementDecimals = 2
		a := New(cfg, &fixedQuoter{rate: dec("12.5")}, payoff.PhysicalDelivery{})

		p, err := a.PairClaimContracts(ctx, f.env, f.long.Address(), f.short.Address())
		require.NoError(t, err)
		settled, err := a.SettleClaims(ctx, f.env, operator, p.NettingEscrow)
		require.NoError(t, err)
		assert.Equal(t, "10.56", settled.ConvertedTotal.String())
		assert.Equal(t, "10", settled.LongPayout.String())
		assert.Equal(t, "0.56", settled.ShortPayout.String())

		short, err := claim.Load(ctx, f.env, f.short.Address())
		require.NoError(t, err)
		assert.Equal(t, int32(2), short.Record().PayoutDecimals)

		// 0.56 * 10 / 30 truncated to cents.
		r, err := short.RedeemTokens(ctx, shortHolder, dec("10"), claim.RedeemByHolder)
		require.NoError(t, err)
		assert.Equal(t, "0.18", r.Payout.String())
		return nil
	})
}

func TestSettleClaims_OracleFailureChangesNothing(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	q := &fixedQuoter{rate: dec("12")}
	a := New(testConfig(), q, payoff.PhysicalDelivery{})

	var netting common.Address
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		f := newFixture(t, ctx, tx)
		p, err := a.PairClaimContracts(ctx, f.env, f.long.Address(), f.short.Address())
		if err != nil {
			return err
		}
		netting = p.NettingEscrow
		return nil
	}))

	q.err = errors.New("no quote")
	err := store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		env := host.New(tx, ledger.NewStoreLedger(tx.Ledger()), time.UnixMilli(nowMs))
		_, err := a.SettleClaims(ctx, env, operator, netting)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)

	require.NoError(t, store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		p, err := tx.Pairings().GetByNettingEscrow(ctx, netting)
		require.NoError(t, err)
		assert.Equal(t, domain.PairingPaired, p.State)
		e, err := tx.Escrows().GetByAddress(ctx, netting)
		require.NoError(t, err)
		assert.Equal(t, "132", e.NativeBalance.String())
		return nil
	}))

	q.err = nil
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		env := host.New(tx, ledger.NewStoreLedger(tx.Ledger()), time.UnixMilli(nowMs))
		_, err := a.SettleClaims(ctx, env, operator, netting)
		return err
	}))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, testConfig().Validate())
	cfg := testConfig()
	cfg.Operator = common.Address{}
	assert.Error(t, cfg.Validate())
}
