package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	db DBTX
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(db DBTX) *TokenStore {
	return &TokenStore{db: db}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

const tokenColumns = `address, issuing_claim, total_supply::text, minting_open, expires_at_ms, created_at_ms`

// Insert adds a new token. Returns ErrDuplicateKey if the address exists.
func (s *TokenStore) Insert(ctx context.Context, t *domain.ClaimToken) error {
	query := `
		INSERT INTO claim_tokens (
			address, issuing_claim, total_supply, minting_open, expires_at_ms, created_at_ms
		) VALUES ($1, $2, $3::text::numeric, $4, $5, $6)
	`

	_, err := s.db.Exec(ctx, query,
		addrText(t.Address),
		addrText(t.IssuingClaim),
		decText(t.TotalSupply),
		t.MintingOpen,
		t.ExpiresAt,
		t.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// Update overwrites an existing token. Returns ErrNotFound if not exists.
func (s *TokenStore) Update(ctx context.Context, t *domain.ClaimToken) error {
	query := `
		UPDATE claim_tokens SET
			issuing_claim = $2, total_supply = $3::text::numeric, minting_open = $4,
			expires_at_ms = $5, created_at_ms = $6
		WHERE address = $1
	`

	tag, err := s.db.Exec(ctx, query,
		addrText(t.Address),
		addrText(t.IssuingClaim),
		decText(t.TotalSupply),
		t.MintingOpen,
		t.ExpiresAt,
		t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByAddress retrieves a token by address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByAddress(ctx context.Context, address common.Address) (*domain.ClaimToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM claim_tokens WHERE address = $1`

	t, err := scanToken(s.db.QueryRow(ctx, query, addrText(address)))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by address: %w", err)
	}
	return t, nil
}

// List retrieves all tokens ordered by created_at ASC, address ASC.
func (s *TokenStore) List(ctx context.Context) ([]*domain.ClaimToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM claim_tokens ORDER BY created_at_ms ASC, address ASC`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var result []*domain.ClaimToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return result, nil
}

// GetBalance returns the holder's balance, zero if the holder has none.
func (s *TokenStore) GetBalance(ctx context.Context, token, holder common.Address) (decimal.Decimal, error) {
	query := `SELECT amount::text FROM token_balances WHERE token = $1 AND holder = $2`

	var amount string
	err := s.db.QueryRow(ctx, query, addrText(token), addrText(holder)).Scan(&amount)
	if err != nil {
		if isNotFoundError(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("get token balance: %w", err)
	}
	return parseDec(amount)
}

// SetBalance stores the holder's balance. A zero amount removes the entry.
func (s *TokenStore) SetBalance(ctx context.Context, token, holder common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return storage.ErrInvalidInput
	}

	if amount.IsZero() {
		_, err := s.db.Exec(ctx, `DELETE FROM token_balances WHERE token = $1 AND holder = $2`,
			addrText(token), addrText(holder))
		if err != nil {
			return fmt.Errorf("delete token balance: %w", err)
		}
		return nil
	}

	query := `
		INSERT INTO token_balances (token, holder, amount)
		VALUES ($1, $2, $3::text::numeric)
		ON CONFLICT (token, holder) DO UPDATE SET amount = EXCLUDED.amount
	`
	if _, err := s.db.Exec(ctx, query, addrText(token), addrText(holder), decText(amount)); err != nil {
		return fmt.Errorf("set token balance: %w", err)
	}
	return nil
}

// GetBalances retrieves all non-zero balances of a token, ordered by holder ASC.
func (s *TokenStore) GetBalances(ctx context.Context, token common.Address) ([]domain.TokenBalance, error) {
	query := `SELECT holder, amount::text FROM token_balances WHERE token = $1 ORDER BY holder ASC`

	rows, err := s.db.Query(ctx, query, addrText(token))
	if err != nil {
		return nil, fmt.Errorf("get token balances: %w", err)
	}
	defer rows.Close()

	var result []domain.TokenBalance
	for rows.Next() {
		var holder, amount string
		if err := rows.Scan(&holder, &amount); err != nil {
			return nil, fmt.Errorf("scan token balance: %w", err)
		}
		d, err := parseDec(amount)
		if err != nil {
			return nil, err
		}
		result = append(result, domain.TokenBalance{Token: token, Holder: parseAddr(holder), Amount: d})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token balances: %w", err)
	}
	return result, nil
}

// scanToken scans a single row into domain.ClaimToken.
func scanToken(row pgx.Row) (*domain.ClaimToken, error) {
	var (
		t                      domain.ClaimToken
		address, claim, supply string
	)

	if err := row.Scan(&address, &claim, &supply, &t.MintingOpen, &t.ExpiresAt, &t.CreatedAt); err != nil {
		return nil, err
	}

	t.Address = parseAddr(address)
	t.IssuingClaim = parseAddr(claim)
	d, err := parseDec(supply)
	if err != nil {
		return nil, err
	}
	t.TotalSupply = d
	return &t, nil
}
