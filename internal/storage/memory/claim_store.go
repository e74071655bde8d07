package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/storage"
)

// ClaimStore is an in-memory implementation of storage.ClaimStore.
type ClaimStore struct {
	mu   sync.RWMutex
	data map[common.Address]*domain.Claim
}

// NewClaimStore creates a new in-memory claim store.
func NewClaimStore() *ClaimStore {
	return &ClaimStore{
		data: make(map[common.Address]*domain.Claim),
	}
}

// Compile-time interface check.
var _ storage.ClaimStore = (*ClaimStore)(nil)

// Insert adds a new claim. Returns ErrDuplicateKey if the address exists.
func (s *ClaimStore) Insert(_ context.Context, c *domain.Claim) error {
	if c == nil || c.Address == (common.Address{}) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.Address]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	claimCopy := *c
	s.data[c.Address] = &claimCopy
	return nil
}

// Update overwrites an existing claim. Returns ErrNotFound if not exists.
func (s *ClaimStore) Update(_ context.Context, c *domain.Claim) error {
	if c == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.Address]; !exists {
		return storage.ErrNotFound
	}

	claimCopy := *c
	s.data[c.Address] = &claimCopy
	return nil
}

// GetByAddress retrieves a claim by address. Returns ErrNotFound if not exists.
func (s *ClaimStore) GetByAddress(_ context.Context, address common.Address) (*domain.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[address]
	if !exists {
		return nil, storage.ErrNotFound
	}

	claimCopy := *c
	return &claimCopy, nil
}

// GetByOwner retrieves all claims written by owner, ordered by created_at ASC.
func (s *ClaimStore) GetByOwner(_ context.Context, owner common.Address) ([]*domain.Claim, error) {
	return s.filter(func(c *domain.Claim) bool { return c.Owner == owner }), nil
}

// GetByState retrieves all claims in the given state, ordered by created_at ASC.
func (s *ClaimStore) GetByState(_ context.Context, state domain.ClaimState) ([]*domain.Claim, error) {
	return s.filter(func(c *domain.Claim) bool { return c.State == state }), nil
}

func (s *ClaimStore) filter(keep func(*domain.Claim) bool) []*domain.Claim {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Claim
	for _, c := range s.data {
		if keep(c) {
			claimCopy := *c
			result = append(result, &claimCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].Address.Cmp(result[j].Address) < 0
	})
	return result
}

func (s *ClaimStore) clone() *ClaimStore {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := NewClaimStore()
	for k, v := range s.data {
		claimCopy := *v
		out.data[k] = &claimCopy
	}
	return out
}
