package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/storage"
)

// EscrowStore implements storage.EscrowStore using PostgreSQL.
type EscrowStore struct {
	db DBTX
}

// NewEscrowStore creates a new EscrowStore.
func NewEscrowStore(db DBTX) *EscrowStore {
	return &EscrowStore{db: db}
}

// Compile-time interface check.
var _ storage.EscrowStore = (*EscrowStore)(nil)

const escrowColumns = `
	address, administrator, custody_asset, native_balance::text, asset_balance::text,
	native_deposited::text, native_withdrawn::text, asset_deposited::text,
	asset_withdrawn::text, created_at_ms, sealed`

// Insert adds a new escrow. Returns ErrDuplicateKey if the address exists.
func (s *EscrowStore) Insert(ctx context.Context, e *domain.Escrow) error {
	query := `
		INSERT INTO escrows (
			address, administrator, custody_asset, native_balance, asset_balance,
			native_deposited, native_withdrawn, asset_deposited, asset_withdrawn, created_at_ms, sealed
		) VALUES (
			$1, $2, $3, $4::text::numeric, $5::text::numeric,
			$6::text::numeric, $7::text::numeric, $8::text::numeric, $9::text::numeric, $10, $11
		)
	`

	_, err := s.db.Exec(ctx, query, escrowArgs(e)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert escrow: %w", err)
	}
	return nil
}

// Update overwrites an existing escrow. Returns ErrNotFound if not exists.
func (s *EscrowStore) Update(ctx context.Context, e *domain.Escrow) error {
	query := `
		UPDATE escrows SET
			administrator = $2, custody_asset = $3,
			native_balance = $4::text::numeric, asset_balance = $5::text::numeric,
			native_deposited = $6::text::numeric, native_withdrawn = $7::text::numeric,
			asset_deposited = $8::text::numeric, asset_withdrawn = $9::text::numeric,
			created_at_ms = $10, sealed = $11
		WHERE address = $1
	`

	tag, err := s.db.Exec(ctx, query, escrowArgs(e)...)
	if err != nil {
		return fmt.Errorf("update escrow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByAddress retrieves an escrow by address. Returns ErrNotFound if not exists.
func (s *EscrowStore) GetByAddress(ctx context.Context, address common.Address) (*domain.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE address = $1`

	e, err := scanEscrow(s.db.QueryRow(ctx, query, addrText(address)))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get escrow by address: %w", err)
	}
	return e, nil
}

// List retrieves all escrows ordered by created_at ASC, address ASC.
func (s *EscrowStore) List(ctx context.Context) ([]*domain.Escrow, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows ORDER BY created_at_ms ASC, address ASC`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list escrows: %w", err)
	}
	defer rows.Close()

	var result []*domain.Escrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan escrow: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate escrows: %w", err)
	}
	return result, nil
}

func escrowArgs(e *domain.Escrow) []any {
	return []any{
		addrText(e.Address),
		addrText(e.Administrator),
		addrText(e.CustodyAsset),
		decText(e.NativeBalance),
		decText(e.AssetBalance),
		decText(e.NativeDeposited),
		decText(e.NativeWithdrawn),
		decText(e.AssetDeposited),
		decText(e.AssetWithdrawn),
		e.CreatedAt,
		e.Sealed,
	}
}

// scanEscrow scans a single row into domain.Escrow.
func scanEscrow(row pgx.Row) (*domain.Escrow, error) {
	var (
		e                     domain.Escrow
		address, admin, asset string
		nativeBal, assetBal   string
		nativeDep, nativeWd   string
		assetDep, assetWd     string
	)

	err := row.Scan(
		&address, &admin, &asset, &nativeBal, &assetBal,
		&nativeDep, &nativeWd, &assetDep, &assetWd, &e.CreatedAt, &e.Sealed,
	)
	if err != nil {
		return nil, err
	}

	e.Address = parseAddr(address)
	e.Administrator = parseAddr(admin)
	e.CustodyAsset = parseAddr(asset)

	if err := parseDecs(
		decPair{nativeBal, &e.NativeBalance},
		decPair{assetBal, &e.AssetBalance},
		decPair{nativeDep, &e.NativeDeposited},
		decPair{nativeWd, &e.NativeWithdrawn},
		decPair{assetDep, &e.AssetDeposited},
		decPair{assetWd, &e.AssetWithdrawn},
	); err != nil {
		return nil, err
	}
	return &e, nil
}
