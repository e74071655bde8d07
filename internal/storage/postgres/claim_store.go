package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/storage"
)

// ClaimStore implements storage.ClaimStore using PostgreSQL.
type ClaimStore struct {
	db DBTX
}

// NewClaimStore creates a new ClaimStore.
func NewClaimStore(db DBTX) *ClaimStore {
	return &ClaimStore{db: db}
}

// Compile-time interface check.
var _ storage.ClaimStore = (*ClaimStore)(nil)

const claimColumns = `
	address, owner, option_type, counterparty, base_asset, underlying_asset,
	expiration_ms, strike::text, notional::text, premium::text, authority,
	issued_rate::text, state, escrow, token, netting_escrow,
	supply_at_settlement::text, payout_decimals, created_at_ms, updated_at_ms`

// Insert adds a new claim. Returns ErrDuplicateKey if the address exists.
func (s *ClaimStore) Insert(ctx context.Context, c *domain.Claim) error {
	query := `
		INSERT INTO claims (
			address, owner, option_type, counterparty, base_asset, underlying_asset,
			expiration_ms, strike, notional, premium, authority,
			issued_rate, state, escrow, token, netting_escrow,
			supply_at_settlement, payout_decimals, created_at_ms, updated_at_ms
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8::text::numeric, $9::text::numeric, $10::text::numeric, $11,
			$12::text::numeric, $13, $14, $15, $16,
			$17::text::numeric, $18, $19, $20
		)
	`

	_, err := s.db.Exec(ctx, query, claimArgs(c)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

// Update overwrites an existing claim. Returns ErrNotFound if not exists.
func (s *ClaimStore) Update(ctx context.Context, c *domain.Claim) error {
	query := `
		UPDATE claims SET
			owner = $2, option_type = $3, counterparty = $4, base_asset = $5, underlying_asset = $6,
			expiration_ms = $7, strike = $8::text::numeric, notional = $9::text::numeric,
			premium = $10::text::numeric, authority = $11, issued_rate = $12::text::numeric,
			state = $13, escrow = $14, token = $15, netting_escrow = $16,
			supply_at_settlement = $17::text::numeric, payout_decimals = $18,
			created_at_ms = $19, updated_at_ms = $20
		WHERE address = $1
	`

	tag, err := s.db.Exec(ctx, query, claimArgs(c)...)
	if err != nil {
		return fmt.Errorf("update claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByAddress retrieves a claim by address. Returns ErrNotFound if not exists.
func (s *ClaimStore) GetByAddress(ctx context.Context, address common.Address) (*domain.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE address = $1`

	c, err := scanClaim(s.db.QueryRow(ctx, query, addrText(address)))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get claim by address: %w", err)
	}
	return c, nil
}

// GetByOwner retrieves all claims written by owner, ordered by created_at ASC.
func (s *ClaimStore) GetByOwner(ctx context.Context, owner common.Address) ([]*domain.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE owner = $1 ORDER BY created_at_ms ASC, address ASC`

	rows, err := s.db.Query(ctx, query, addrText(owner))
	if err != nil {
		return nil, fmt.Errorf("get claims by owner: %w", err)
	}
	defer rows.Close()

	return scanClaims(rows)
}

// GetByState retrieves all claims in the given state, ordered by created_at ASC.
func (s *ClaimStore) GetByState(ctx context.Context, state domain.ClaimState) ([]*domain.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE state = $1 ORDER BY created_at_ms ASC, address ASC`

	rows, err := s.db.Query(ctx, query, string(state))
	if err != nil {
		return nil, fmt.Errorf("get claims by state: %w", err)
	}
	defer rows.Close()

	return scanClaims(rows)
}

func claimArgs(c *domain.Claim) []any {
	return []any{
		addrText(c.Address),
		addrText(c.Owner),
		int16(c.Terms.OptionType),
		addrText(c.Terms.Counterparty),
		string(c.Terms.Base),
		string(c.Terms.Underlying),
		c.Terms.Expiration,
		decText(c.Terms.Strike),
		decText(c.Terms.Notional),
		decText(c.Terms.Premium),
		addrText(c.Terms.Authority),
		nullDecText(c.IssuedRate),
		string(c.State),
		addrText(c.Escrow),
		addrText(c.Token),
		addrText(c.NettingEscrow),
		nullDecText(c.SupplyAtSettlement),
		c.PayoutDecimals,
		c.CreatedAt,
		c.UpdatedAt,
	}
}

// scanClaim scans a single row into domain.Claim.
func scanClaim(row pgx.Row) (*domain.Claim, error) {
	var (
		c                                 domain.Claim
		address, owner, counterparty      string
		authority, escrow, token, netting string
		base, underlying, state           string
		strike, notional, prem            string
		optionType                        int16
		issuedRate, supply                *string
	)

	err := row.Scan(
		&address, &owner, &optionType, &counterparty, &base, &underlying,
		&c.Terms.Expiration, &strike, &notional, &prem, &authority,
		&issuedRate, &state, &escrow, &token, &netting,
		&supply, &c.PayoutDecimals, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Address = parseAddr(address)
	c.Owner = parseAddr(owner)
	c.Terms.OptionType = domain.OptionType(optionType)
	c.Terms.Counterparty = parseAddr(counterparty)
	c.Terms.Base = domain.AssetCode(base)
	c.Terms.Underlying = domain.AssetCode(underlying)
	c.Terms.Authority = parseAddr(authority)
	c.State = domain.ClaimState(state)
	c.Escrow = parseAddr(escrow)
	c.Token = parseAddr(token)
	c.NettingEscrow = parseAddr(netting)

	if err := parseDecs(
		decPair{strike, &c.Terms.Strike},
		decPair{notional, &c.Terms.Notional},
		decPair{prem, &c.Terms.Premium},
	); err != nil {
		return nil, err
	}
	if c.IssuedRate, err = parseNullDec(issuedRate); err != nil {
		return nil, err
	}
	if c.SupplyAtSettlement, err = parseNullDec(supply); err != nil {
		return nil, err
	}
	return &c, nil
}

// scanClaims scans multiple rows into domain.Claim slice.
func scanClaims(rows pgx.Rows) ([]*domain.Claim, error) {
	var result []*domain.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}
	return result, nil
}
