// Package verification audits persisted settlement state against the
// conservation and supply invariants of escrows, claim tokens and pairings.
package verification

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/ledger"
	"nomisma-settlement/internal/storage"
)

// Check names.
const (
	CheckTokenSupply        = "token_supply"
	CheckNonNegative        = "non_negative_balance"
	CheckEscrowConservation = "escrow_conservation"
	CheckHostBalance        = "host_balance"
	CheckDormantNetting     = "dormant_netting_escrow"
	CheckClaimState         = "claim_state"
)

// Violation is one failed invariant.
type Violation struct {
	Check    string         // check name
	Subject  common.Address // audited record
	Field    string         // audited field
	Expected string
	Actual   string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s %s: expected %s, got %s", v.Check, v.Subject.Hex(), v.Field, v.Expected, v.Actual)
}

// Report contains the result of one audit.
type Report struct {
	Escrows    int
	Tokens     int
	Claims     int
	Pairings   int
	Violations []Violation
}

// OK reports whether every check passed.
func (r *Report) OK() bool { return len(r.Violations) == 0 }

func (r *Report) add(check string, subject common.Address, field string, expected, actual decimal.Decimal) {
	r.Violations = append(r.Violations, Violation{
		Check:    check,
		Subject:  subject,
		Field:    field,
		Expected: expected.String(),
		Actual:   actual.String(),
	})
}

// Auditor checks stored state.
type Auditor struct {
	runner    storage.TxRunner
	ledgerFor func(storage.Tx) ledger.Host
}

// AuditorOptions for creating Auditor.
type AuditorOptions struct {
	Runner storage.TxRunner
	// LedgerFactory enables host balance checks. Nil skips them.
	LedgerFactory func(storage.Tx) ledger.Host
}

// NewAuditor creates an Auditor.
func NewAuditor(opts AuditorOptions) *Auditor {
	return &Auditor{runner: opts.Runner, ledgerFor: opts.LedgerFactory}
}

// Audit runs every check against one consistent snapshot.
func (a *Auditor) Audit(ctx context.Context) (*Report, error) {
	report := &Report{}
	err := a.runner.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var host ledger.Host
		if a.ledgerFor != nil {
			host = a.ledgerFor(tx)
		}
		if err := auditEscrows(ctx, tx, host, report); err != nil {
			return err
		}
		if err := auditTokens(ctx, tx, report); err != nil {
			return err
		}
		if err := auditPairings(ctx, tx, report); err != nil {
			return err
		}
		return auditClaims(ctx, tx, report)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func auditEscrows(ctx context.Context, tx storage.Tx, host ledger.Host, r *Report) error {
	escrows, err := tx.Escrows().List(ctx)
	if err != nil {
		return fmt.Errorf("list escrows: %w", err)
	}
	r.Escrows = len(escrows)

	for _, e := range escrows {
		if e.NativeBalance.IsNegative() {
			r.add(CheckNonNegative, e.Address, "native_balance", decimal.Zero, e.NativeBalance)
		}
		if e.AssetBalance.IsNegative() {
			r.add(CheckNonNegative, e.Address, "asset_balance", decimal.Zero, e.AssetBalance)
		}

		if want := e.NativeDeposited.Sub(e.NativeWithdrawn); !want.Equal(e.NativeBalance) {
			r.add(CheckEscrowConservation, e.Address, "native_balance", want, e.NativeBalance)
		}
		if want := e.AssetDeposited.Sub(e.AssetWithdrawn); !want.Equal(e.AssetBalance) {
			r.add(CheckEscrowConservation, e.Address, "asset_balance", want, e.AssetBalance)
		}

		if host == nil {
			continue
		}
		held, err := host.NativeBalance(ctx, e.Address)
		if err != nil {
			return fmt.Errorf("host balance %s: %w", e.Address.Hex(), err)
		}
		if !held.Equal(e.NativeBalance) {
			r.add(CheckHostBalance, e.Address, "native_balance", e.NativeBalance, held)
		}
		if e.HasCustodyAsset() {
			held, err := host.Asset(e.CustodyAsset).BalanceOf(ctx, e.Address)
			if err != nil {
				return fmt.Errorf("host asset balance %s: %w", e.Address.Hex(), err)
			}
			if !held.Equal(e.AssetBalance) {
				r.add(CheckHostBalance, e.Address, "asset_balance", e.AssetBalance, held)
			}
		}
	}
	return nil
}

func auditTokens(ctx context.Context, tx storage.Tx, r *Report) error {
	tokens, err := tx.Tokens().List(ctx)
	if err != nil {
		return fmt.Errorf("list tokens: %w", err)
	}
	r.Tokens = len(tokens)

	for _, t := range tokens {
		balances, err := tx.Tokens().GetBalances(ctx, t.Address)
		if err != nil {
			return fmt.Errorf("token balances %s: %w", t.Address.Hex(), err)
		}
		sum := decimal.Zero
		for _, b := range balances {
			if b.Amount.IsNegative() {
				r.add(CheckNonNegative, b.Holder, "token_balance", decimal.Zero, b.Amount)
			}
			sum = sum.Add(b.Amount)
		}
		if !sum.Equal(t.TotalSupply) {
			r.add(CheckTokenSupply, t.Address, "total_supply", sum, t.TotalSupply)
		}
	}
	return nil
}

func auditPairings(ctx context.Context, tx storage.Tx, r *Report) error {
	for _, state := range []domain.PairingState{domain.PairingPaired, domain.PairingSettled} {
		pairings, err := tx.Pairings().GetByState(ctx, state)
		if err != nil {
			return fmt.Errorf("list %s pairings: %w", state, err)
		}
		r.Pairings += len(pairings)

		if state != domain.PairingSettled {
			continue
		}
		for _, p := range pairings {
			e, err := tx.Escrows().GetByAddress(ctx, p.NettingEscrow)
			if err != nil {
				return fmt.Errorf("netting escrow %s: %w", p.NettingEscrow.Hex(), err)
			}
			if !e.NativeBalance.IsZero() {
				r.add(CheckDormantNetting, e.Address, "native_balance", decimal.Zero, e.NativeBalance)
			}
			if !e.AssetBalance.IsZero() {
				r.add(CheckDormantNetting, e.Address, "asset_balance", decimal.Zero, e.AssetBalance)
			}
		}
	}
	return nil
}

func auditClaims(ctx context.Context, tx storage.Tx, r *Report) error {
	states := []domain.ClaimState{
		domain.ClaimCreated,
		domain.ClaimFundsDeposited,
		domain.ClaimTokensIssued,
		domain.ClaimPaired,
		domain.ClaimSettled,
	}
	for _, state := range states {
		claims, err := tx.Claims().GetByState(ctx, state)
		if err != nil {
			return fmt.Errorf("list %s claims: %w", state, err)
		}
		r.Claims += len(claims)

		for _, c := range claims {
			paired := c.NettingEscrow != (common.Address{})
			if state.Before(domain.ClaimPaired) == paired {
				r.Violations = append(r.Violations, Violation{
					Check:    CheckClaimState,
					Subject:  c.Address,
					Field:    "netting_escrow",
					Expected: fmt.Sprintf("paired=%t", !state.Before(domain.ClaimPaired)),
					Actual:   fmt.Sprintf("paired=%t", paired),
				})
			}
			if state.Before(domain.ClaimTokensIssued) == c.IssuedRate.Valid {
				r.Violations = append(r.Violations, Violation{
					Check:    CheckClaimState,
					Subject:  c.Address,
					Field:    "issued_rate",
					Expected: fmt.Sprintf("issued=%t", !state.Before(domain.ClaimTokensIssued)),
					Actual:   fmt.Sprintf("issued=%t", c.IssuedRate.Valid),
				})
			}
		}
	}
	return nil
}
