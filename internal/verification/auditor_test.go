package verification

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/ledger"
	"nomisma-settlement/internal/storage"
	"nomisma-settlement/internal/storage/memory"
)

var (
	escrowA = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	escrowB = common.HexToAddress("0x00000000000000000000000000000000000000e2")
	tokenA  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	holderA = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	holderB = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	admin   = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func storeLedger(tx storage.Tx) ledger.Host { return ledger.NewStoreLedger(tx.Ledger()) }

func balancedEscrow(addr common.Address, native string) *domain.Escrow {
	return &domain.Escrow{
		Address:         addr,
		Administrator:   admin,
		NativeBalance:   dec(native),
		AssetBalance:    decimal.Zero,
		NativeDeposited: dec(native),
		NativeWithdrawn: decimal.Zero,
		AssetDeposited:  decimal.Zero,
		AssetWithdrawn:  decimal.Zero,
	}
}

func seed(t *testing.T, store *memory.Store, fn func(ctx context.Context, tx storage.Tx)) {
	t.Helper()
	require.NoError(t, store.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		fn(ctx, tx)
		return nil
	}))
}

func checks(r *Report) []string {
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.Check
	}
	return out
}

func TestAudit_EmptyStore(t *testing.T) {
	report, err := NewAuditor(AuditorOptions{Runner: memory.NewStore()}).Audit(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestAudit_Consistent(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, func(ctx context.Context, tx storage.Tx) {
		require.NoError(t, tx.Escrows().Insert(ctx, balancedEscrow(escrowA, "44")))
		require.NoError(t, tx.Ledger().SetBalance(ctx, domain.NativeAsset, escrowA, dec("44")))

		require.NoError(t, tx.Tokens().Insert(ctx, &domain.ClaimToken{Address: tokenA, IssuingClaim: admin, TotalSupply: dec("30"), MintingOpen: true}))
		require.NoError(t, tx.Tokens().SetBalance(ctx, tokenA, holderA, dec("20")))
		require.NoError(t, tx.Tokens().SetBalance(ctx, tokenA, holderB, dec("10")))
	})

	report, err := NewAuditor(AuditorOptions{Runner: store, LedgerFactory: storeLedger}).Audit(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK(), "violations: %v", report.Violations)
	assert.Equal(t, 1, report.Escrows)
	assert.Equal(t, 1, report.Tokens)
}

func TestAudit_DetectsViolations(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, func(ctx context.Context, tx storage.Tx) {
		leaky := balancedEscrow(escrowA, "44")
		leaky.NativeBalance = dec("40")
		require.NoError(t, tx.Escrows().Insert(ctx, leaky))
		require.NoError(t, tx.Ledger().SetBalance(ctx, domain.NativeAsset, escrowA, dec("40")))

		netting := balancedEscrow(escrowB, "5")
		require.NoError(t, tx.Escrows().Insert(ctx, netting))
		require.NoError(t, tx.Ledger().SetBalance(ctx, domain.NativeAsset, escrowB, dec("3")))

		require.NoError(t, tx.Pairings().Insert(ctx, &domain.Pairing{
			NettingEscrow:     escrowB,
			Authority:         admin,
			LongClaim:         holderA,
			ShortClaim:        holderB,
			State:             domain.PairingSettled,
			LongContribution:  dec("2"),
			ShortContribution: dec("3"),
		}))

		require.NoError(t, tx.Tokens().Insert(ctx, &domain.ClaimToken{Address: tokenA, IssuingClaim: admin, TotalSupply: dec("30")}))
		require.NoError(t, tx.Tokens().SetBalance(ctx, tokenA, holderA, dec("20")))
	})

	report, err := NewAuditor(AuditorOptions{Runner: store, LedgerFactory: storeLedger}).Audit(context.Background())
	require.NoError(t, err)
	assert.False(t, report.OK())

	got := checks(report)
	assert.Contains(t, got, CheckEscrowConservation)
	assert.Contains(t, got, CheckHostBalance)
	assert.Contains(t, got, CheckDormantNetting)
	assert.Contains(t, got, CheckTokenSupply)
}

func TestAudit_SkipsHostWithoutLedger(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, func(ctx context.Context, tx storage.Tx) {
		require.NoError(t, tx.Escrows().Insert(ctx, balancedEscrow(escrowA, "44")))
	})

	report, err := NewAuditor(AuditorOptions{Runner: store}).Audit(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestAudit_ClaimState(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, func(ctx context.Context, tx storage.Tx) {
		require.NoError(t, tx.Claims().Insert(ctx, &domain.Claim{
			Address: holderA,
			Owner:   admin,
			State:   domain.ClaimPaired,
			Terms:   domain.ClaimTerms{Strike: dec("10"), Notional: dec("10"), Premium: dec("44")},
		}))
	})

	report, err := NewAuditor(AuditorOptions{Runner: store}).Audit(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{CheckClaimState, CheckClaimState}, checks(report))
}

func TestViolation_String(t *testing.T) {
	v := Violation{Check: CheckTokenSupply, Subject: tokenA, Field: "total_supply", Expected: "20", Actual: "30"}
	assert.Contains(t, v.String(), "token_supply")
	assert.Contains(t, v.String(), "expected 20, got 30")
}
