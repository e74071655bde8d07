package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/storage"
)

// PairingStore implements storage.PairingStore using PostgreSQL.
type PairingStore struct {
	db DBTX
}

// NewPairingStore creates a new PairingStore.
func NewPairingStore(db DBTX) *PairingStore {
	return &PairingStore{db: db}
}

// Compile-time interface check.
var _ storage.PairingStore = (*PairingStore)(nil)

const pairingColumns = `
	netting_escrow, authority, long_claim, short_claim, state,
	long_contribution::text, short_contribution::text, paired_at_ms, settled_at_ms,
	settlement_rate::text, converted_total::text, long_payout::text, short_payout::text`

// Insert adds a new pairing. Returns ErrDuplicateKey if the netting escrow
// or either claim is already part of a pairing.
func (s *PairingStore) Insert(ctx context.Context, p *domain.Pairing) error {
	if p.LongClaim == p.ShortClaim {
		return storage.ErrInvalidInput
	}

	// A claim may appear on either side, so check the opposite column too.
	var taken bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pairings
			WHERE long_claim IN ($1, $2) OR short_claim IN ($1, $2)
		)`, addrText(p.LongClaim), addrText(p.ShortClaim)).Scan(&taken)
	if err != nil {
		return fmt.Errorf("check paired claims: %w", err)
	}
	if taken {
		return storage.ErrDuplicateKey
	}

	query := `
		INSERT INTO pairings (
			netting_escrow, authority, long_claim, short_claim, state,
			long_contribution, short_contribution, paired_at_ms, settled_at_ms,
			settlement_rate, converted_total, long_payout, short_payout
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::text::numeric, $7::text::numeric, $8, $9,
			$10::text::numeric, $11::text::numeric, $12::text::numeric, $13::text::numeric
		)
	`

	if _, err := s.db.Exec(ctx, query, pairingArgs(p)...); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert pairing: %w", err)
	}
	return nil
}

// Update overwrites an existing pairing. Returns ErrNotFound if not exists.
// The paired claims cannot change.
func (s *PairingStore) Update(ctx context.Context, p *domain.Pairing) error {
	query := `
		UPDATE pairings SET
			authority = $2, state = $5,
			long_contribution = $6::text::numeric, short_contribution = $7::text::numeric,
			paired_at_ms = $8, settled_at_ms = $9,
			settlement_rate = $10::text::numeric, converted_total = $11::text::numeric,
			long_payout = $12::text::numeric, short_payout = $13::text::numeric
		WHERE netting_escrow = $1 AND long_claim = $3 AND short_claim = $4
	`

	tag, err := s.db.Exec(ctx, query, pairingArgs(p)...)
	if err != nil {
		return fmt.Errorf("update pairing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByNettingEscrow retrieves a pairing by its netting escrow. Returns ErrNotFound if not exists.
func (s *PairingStore) GetByNettingEscrow(ctx context.Context, netting common.Address) (*domain.Pairing, error) {
	query := `SELECT ` + pairingColumns + ` FROM pairings WHERE netting_escrow = $1`
	return s.getOne(ctx, query, addrText(netting))
}

// GetByClaim retrieves the pairing a claim belongs to. Returns ErrNotFound if not exists.
func (s *PairingStore) GetByClaim(ctx context.Context, claim common.Address) (*domain.Pairing, error) {
	query := `SELECT ` + pairingColumns + ` FROM pairings WHERE long_claim = $1 OR short_claim = $1`
	return s.getOne(ctx, query, addrText(claim))
}

func (s *PairingStore) getOne(ctx context.Context, query string, arg string) (*domain.Pairing, error) {
	p, err := scanPairing(s.db.QueryRow(ctx, query, arg))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pairing: %w", err)
	}
	return p, nil
}

// GetByState retrieves pairings in the given state, ordered by paired_at ASC.
func (s *PairingStore) GetByState(ctx context.Context, state domain.PairingState) ([]*domain.Pairing, error) {
	query := `SELECT ` + pairingColumns + ` FROM pairings WHERE state = $1 ORDER BY paired_at_ms ASC, netting_escrow ASC`

	rows, err := s.db.Query(ctx, query, string(state))
	if err != nil {
		return nil, fmt.Errorf("get pairings by state: %w", err)
	}
	defer rows.Close()

	var result []*domain.Pairing
	for rows.Next() {
		p, err := scanPairing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pairing: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pairings: %w", err)
	}
	return result, nil
}

func pairingArgs(p *domain.Pairing) []any {
	return []any{
		addrText(p.NettingEscrow),
		addrText(p.Authority),
		addrText(p.LongClaim),
		addrText(p.ShortClaim),
		string(p.State),
		decText(p.LongContribution),
		decText(p.ShortContribution),
		p.PairedAt,
		p.SettledAt,
		decText(p.SettlementRate),
		decText(p.ConvertedTotal),
		decText(p.LongPayout),
		decText(p.ShortPayout),
	}
}

// scanPairing scans a single row into domain.Pairing.
func scanPairing(row pgx.Row) (*domain.Pairing, error) {
	var (
		p                               domain.Pairing
		netting, authority, long, short string
		state, longC, shortC            string
		rate, total, longP, shortP      string
	)

	err := row.Scan(
		&netting, &authority, &long, &short, &state,
		&longC, &shortC, &p.PairedAt, &p.SettledAt,
		&rate, &total, &longP, &shortP,
	)
	if err != nil {
		return nil, err
	}

	p.NettingEscrow = parseAddr(netting)
	p.Authority = parseAddr(authority)
	p.LongClaim = parseAddr(long)
	p.ShortClaim = parseAddr(short)
	p.State = domain.PairingState(state)

	if err := parseDecs(
		decPair{longC, &p.LongContribution},
		decPair{shortC, &p.ShortContribution},
		decPair{rate, &p.SettlementRate},
		decPair{total, &p.ConvertedTotal},
		decPair{longP, &p.LongPayout},
		decPair{shortP, &p.ShortPayout},
	); err != nil {
		return nil, err
	}
	return &p, nil
}
