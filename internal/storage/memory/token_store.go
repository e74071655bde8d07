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

type holderKey struct {
	token  common.Address
	holder common.Address
}

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu       sync.RWMutex
	tokens   map[common.Address]*domain.ClaimToken
	balances map[holderKey]decimal.Decimal
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens:   make(map[common.Address]*domain.ClaimToken),
		balances: make(map[holderKey]decimal.Decimal),
	}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// Insert adds a new token. Returns ErrDuplicateKey if the address exists.
func (s *TokenStore) Insert(_ context.Context, t *domain.ClaimToken) error {
	if t == nil || t.Address == (common.Address{}) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[t.Address]; exists {
		return storage.ErrDuplicateKey
	}

	tokenCopy := *t
	s.tokens[t.Address] = &tokenCopy
	return nil
}

// Update overwrites an existing token. Returns ErrNotFound if not exists.
func (s *TokenStore) Update(_ context.Context, t *domain.ClaimToken) error {
	if t == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[t.Address]; !exists {
		return storage.ErrNotFound
	}

	tokenCopy := *t
	s.tokens[t.Address] = &tokenCopy
	return nil
}

// GetByAddress retrieves a token by address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByAddress(_ context.Context, address common.Address) (*domain.ClaimToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.tokens[address]
	if !exists {
		return nil, storage.ErrNotFound
	}

	tokenCopy := *t
	return &tokenCopy, nil
}

// List retrieves all tokens ordered by created_at ASC, address ASC.
func (s *TokenStore) List(_ context.Context) ([]*domain.ClaimToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ClaimToken, 0, len(s.tokens))
	for _, t := range s.tokens {
		tokenCopy := *t
		result = append(result, &tokenCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].Address.Cmp(result[j].Address) < 0
	})
	return result, nil
}

// GetBalance returns the holder's balance, zero if the holder has none.
func (s *TokenStore) GetBalance(_ context.Context, token, holder common.Address) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.balances[holderKey{token: token, holder: holder}], nil
}

// SetBalance stores the holder's balance. A zero amount removes the entry.
func (s *TokenStore) SetBalance(_ context.Context, token, holder common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := holderKey{token: token, holder: holder}
	if amount.IsZero() {
		delete(s.balances, key)
		return nil
	}
	s.balances[key] = amount
	return nil
}

// GetBalances retrieves all non-zero balances of a token, ordered by holder ASC.
func (s *TokenStore) GetBalances(_ context.Context, token common.Address) ([]domain.TokenBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.TokenBalance
	for k, v := range s.balances {
		if k.token == token {
			result = append(result, domain.TokenBalance{Token: k.token, Holder: k.holder, Amount: v})
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Holder.Cmp(result[j].Holder) < 0
	})
	return result, nil
}

func (s *TokenStore) clone() *TokenStore {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := NewTokenStore()
	for k, v := range s.tokens {
		tokenCopy := *v
		out.tokens[k] = &tokenCopy
	}
	for k, v := range s.balances {
		out.balances[k] = v
	}
	return out
}
