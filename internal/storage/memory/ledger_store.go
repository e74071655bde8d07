package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/storage"
)

type accountKey struct {
	asset   common.Address
	account common.Address
}

// LedgerStore is an in-memory implementation of storage.LedgerStore.
type LedgerStore struct {
	mu       sync.RWMutex
	balances map[accountKey]decimal.Decimal
	nonces   map[common.Address]uint64
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		balances: make(map[accountKey]decimal.Decimal),
		nonces:   make(map[common.Address]uint64),
	}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// GetBalance returns the account's balance of asset, zero if none.
func (s *LedgerStore) GetBalance(_ context.Context, asset, account common.Address) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.balances[accountKey{asset: asset, account: account}], nil
}

// SetBalance stores the account's balance of asset. A zero amount removes the entry.
func (s *LedgerStore) SetBalance(_ context.Context, asset, account common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := accountKey{asset: asset, account: account}
	if amount.IsZero() {
		delete(s.balances, key)
		return nil
	}
	s.balances[key] = amount
	return nil
}

// GetBalances retrieves all non-zero balances of asset, ordered by account ASC.
func (s *LedgerStore) GetBalances(_ context.Context, asset common.Address) ([]domain.LedgerBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.LedgerBalance
	for k, v := range s.balances {
		if k.asset == asset {
			result = append(result, domain.LedgerBalance{Asset: k.asset, Account: k.account, Amount: v})
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Account.Cmp(result[j].Account) < 0
	})
	return result, nil
}

// NextNonce returns the creator's current nonce and increments it.
func (s *LedgerStore) NextNonce(_ context.Context, creator common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.nonces[creator]
	s.nonces[creator] = n + 1
	return n, nil
}

func (s *LedgerStore) clone() *LedgerStore {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := NewLedgerStore()
	for k, v := range s.balances {
		out.balances[k] = v
	}
	for k, v := range s.nonces {
		out.nonces[k] = v
	}
	return out
}
