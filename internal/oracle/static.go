package oracle

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/domain"
)

// Static quotes fixed rates.
type Static struct {
	rates map[Pair]decimal.Decimal
}

// NewStatic creates a Static oracle over rates.
func NewStatic(rates map[Pair]decimal.Decimal) *Static {
	s := &Static{rates: make(map[Pair]decimal.Decimal, len(rates))}
	for p, r := range rates {
		s.rates[p] = r
	}
	return s
}

// ParseRates parses "FROM/TO" -> decimal string entries.
func ParseRates(raw map[string]string) (map[Pair]decimal.Decimal, error) {
	rates := make(map[Pair]decimal.Decimal, len(raw))
	for key, value := range raw {
		pair, err := ParsePair(key)
		if err != nil {
			return nil, err
		}
		rate, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("rate %s: %w", key, err)
		}
		if err := checkRate(pair, rate); err != nil {
			return nil, err
		}
		rates[pair] = rate
	}
	return rates, nil
}

// Quote returns the configured rate for the pair.
func (s *Static) Quote(_ context.Context, from, to domain.AssetCode, _ decimal.Decimal) (decimal.Decimal, error) {
	pair := Pair{From: from, To: to}
	rate, ok := s.rates[pair]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoQuote, pair)
	}
	return rate, nil
}
