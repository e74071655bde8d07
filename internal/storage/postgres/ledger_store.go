package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
type LedgerStore struct {
	db DBTX
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(db DBTX) *LedgerStore {
	return &LedgerStore{db: db}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// GetBalance returns the account's balance of asset, zero if none.
func (s *LedgerStore) GetBalance(ctx context.Context, asset, account common.Address) (decimal.Decimal, error) {
	query := `SELECT amount::text FROM ledger_balances WHERE asset = $1 AND account = $2`

	var amount string
	err := s.db.QueryRow(ctx, query, addrText(asset), addrText(account)).Scan(&amount)
	if err != nil {
		if isNotFoundError(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("get ledger balance: %w", err)
	}
	return parseDec(amount)
}

// SetBalance stores the account's balance of asset. A zero amount removes the entry.
func (s *LedgerStore) SetBalance(ctx context.Context, asset, account common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return storage.ErrInvalidInput
	}

	if amount.IsZero() {
		_, err := s.db.Exec(ctx, `DELETE FROM ledger_balances WHERE asset = $1 AND account = $2`,
			addrText(asset), addrText(account))
		if err != nil {
			return fmt.Errorf("delete ledger balance: %w", err)
		}
		return nil
	}

	query := `
		INSERT INTO ledger_balances (asset, account, amount)
		VALUES ($1, $2, $3::text::numeric)
		ON CONFLICT (asset, account) DO UPDATE SET amount = EXCLUDED.amount
	`
	if _, err := s.db.Exec(ctx, query, addrText(asset), addrText(account), decText(amount)); err != nil {
		return fmt.Errorf("set ledger balance: %w", err)
	}
	return nil
}

// GetBalances retrieves all non-zero balances of asset, ordered by account ASC.
func (s *LedgerStore) GetBalances(ctx context.Context, asset common.Address) ([]domain.LedgerBalance, error) {
	query := `SELECT account, amount::text FROM ledger_balances WHERE asset = $1 ORDER BY account ASC`

	rows, err := s.db.Query(ctx, query, addrText(asset))
	if err != nil {
		return nil, fmt.Errorf("get ledger balances: %w", err)
	}
	defer rows.Close()

	var result []domain.LedgerBalance
	for rows.Next() {
		var account, amount string
		if err := rows.Scan(&account, &amount); err != nil {
			return nil, fmt.Errorf("scan ledger balance: %w", err)
		}
		d, err := parseDec(amount)
		if err != nil {
			return nil, err
		}
		result = append(result, domain.LedgerBalance{Asset: asset, Account: parseAddr(account), Amount: d})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger balances: %w", err)
	}
	return result, nil
}

// NextNonce returns the creator's current nonce and increments it.
func (s *LedgerStore) NextNonce(ctx context.Context, creator common.Address) (uint64, error) {
	query := `
		INSERT INTO ledger_nonces (creator, nonce) VALUES ($1, 1)
		ON CONFLICT (creator) DO UPDATE SET nonce = ledger_nonces.nonce + 1
		RETURNING nonce - 1
	`

	var n int64
	if err := s.db.QueryRow(ctx, query, addrText(creator)).Scan(&n); err != nil {
		return 0, fmt.Errorf("next nonce: %w", err)
	}
	return uint64(n), nil
}
