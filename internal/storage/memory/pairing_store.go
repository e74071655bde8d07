package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/storage"
)

// PairingStore is an in-memory implementation of storage.PairingStore.
type PairingStore struct {
	mu      sync.RWMutex
	data    map[common.Address]*domain.Pairing // keyed by netting escrow
	byClaim map[common.Address]common.Address  // claim -> netting escrow
}

// NewPairingStore creates a new in-memory pairing store.
func NewPairingStore() *PairingStore {
	return &PairingStore{
		data:    make(map[common.Address]*domain.Pairing),
		byClaim: make(map[common.Address]common.Address),
	}
}

// Compile-time interface check.
var _ storage.PairingStore = (*PairingStore)(nil)

// Insert adds a new pairing. Returns ErrDuplicateKey if the netting escrow
// or either claim is already part of a pairing.
func (s *PairingStore) Insert(_ context.Context, p *domain.Pairing) error {
	if p == nil || p.NettingEscrow == (common.Address{}) || p.LongClaim == p.ShortClaim {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.NettingEscrow]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.byClaim[p.LongClaim]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.byClaim[p.ShortClaim]; exists {
		return storage.ErrDuplicateKey
	}

	pairingCopy := *p
	s.data[p.NettingEscrow] = &pairingCopy
	s.byClaim[p.LongClaim] = p.NettingEscrow
	s.byClaim[p.ShortClaim] = p.NettingEscrow
	return nil
}

// Update overwrites an existing pairing. Returns ErrNotFound if not exists.
// The paired claims cannot change.
func (s *PairingStore) Update(_ context.Context, p *domain.Pairing) error {
	if p == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data[p.NettingEscrow]
	if !exists {
		return storage.ErrNotFound
	}
	if existing.LongClaim != p.LongClaim || existing.ShortClaim != p.ShortClaim {
		return storage.ErrInvalidInput
	}

	pairingCopy := *p
	s.data[p.NettingEscrow] = &pairingCopy
	return nil
}

// GetByNettingEscrow retrieves a pairing by its netting escrow. Returns ErrNotFound if not exists.
func (s *PairingStore) GetByNettingEscrow(_ context.Context, netting common.Address) (*domain.Pairing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.data[netting]
	if !exists {
		return nil, storage.ErrNotFound
	}

	pairingCopy := *p
	return &pairingCopy, nil
}

// GetByClaim retrieves the pairing a claim belongs to. Returns ErrNotFound if not exists.
func (s *PairingStore) GetByClaim(_ context.Context, claim common.Address) (*domain.Pairing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	netting, exists := s.byClaim[claim]
	if !exists {
		return nil, storage.ErrNotFound
	}

	pairingCopy := *s.data[netting]
	return &pairingCopy, nil
}

// GetByState retrieves pairings in the given state, ordered by paired_at ASC.
func (s *PairingStore) GetByState(_ context.Context, state domain.PairingState) ([]*domain.Pairing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Pairing
	for _, p := range s.data {
		if p.State == state {
			pairingCopy := *p
			result = append(result, &pairingCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].PairedAt != result[j].PairedAt {
			return result[i].PairedAt < result[j].PairedAt
		}
		return result[i].NettingEscrow.Cmp(result[j].NettingEscrow) < 0
	})
	return result, nil
}

func (s *PairingStore) clone() *PairingStore {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := NewPairingStore()
	for k, v := range s.data {
		pairingCopy := *v
		out.data[k] = &pairingCopy
	}
	for k, v := range s.byClaim {
		out.byClaim[k] = v
	}
	return out
}
