package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/storage"
)

// EscrowStore is an in-memory implementation of storage.EscrowStore.
type EscrowStore struct {
	mu   sync.RWMutex
	data map[common.Address]*domain.Escrow
}

// NewEscrowStore creates a new in-memory escrow store.
func NewEscrowStore() *EscrowStore {
	return &EscrowStore{
		data: make(map[common.Address]*domain.Escrow),
	}
}

// Compile-time interface check.
var _ storage.EscrowStore = (*EscrowStore)(nil)

// Insert adds a new escrow. Returns ErrDuplicateKey if the address exists.
func (s *EscrowStore) Insert(_ context.Context, e *domain.Escrow) error {
	if e == nil || e.Address == (common.Address{}) {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.Address]; exists {
		return storage.ErrDuplicateKey
	}

	escrowCopy := *e
	s.data[e.Address] = &escrowCopy
	return nil
}

// Update overwrites an existing escrow. Returns ErrNotFound if not exists.
func (s *EscrowStore) Update(_ context.Context, e *domain.Escrow) error {
	if e == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.Address]; !exists {
		return storage.ErrNotFound
	}

	escrowCopy := *e
	s.data[e.Address] = &escrowCopy
	return nil
}

// GetByAddress retrieves an escrow by address. Returns ErrNotFound if not exists.
func (s *EscrowStore) GetByAddress(_ context.Context, address common.Address) (*domain.Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.data[address]
	if !exists {
		return nil, storage.ErrNotFound
	}

	escrowCopy := *e
	return &escrowCopy, nil
}

// List retrieves all escrows ordered by created_at ASC, address ASC.
func (s *EscrowStore) List(_ context.Context) ([]*domain.Escrow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Escrow, 0, len(s.data))
	for _, e := range s.data {
		escrowCopy := *e
		result = append(result, &escrowCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].Address.Cmp(result[j].Address) < 0
	})
	return result, nil
}

func (s *EscrowStore) clone() *EscrowStore {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := NewEscrowStore()
	for k, v := range s.data {
		escrowCopy := *v
		out.data[k] = &escrowCopy
	}
	return out
}
