// Package oracle provides rate quotes between asset codes.
//
// A quote is the price of one unit of "from" expressed in units of "to";
// the amount is the volume the caller intends to convert and lets a venue
// quote depth-dependent rates.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/domain"
)

// ErrNoQuote is returned when no usable rate exists for a pair.
var ErrNoQuote = errors.New("no quote")

// RateOracle quotes conversion rates.
type RateOracle interface {
	Quote(ctx context.Context, from, to domain.AssetCode, amount decimal.Decimal) (decimal.Decimal, error)
}

// Pair identifies a quoted direction.
type Pair struct {
	From domain.AssetCode
	To   domain.AssetCode
}

// String returns the "FROM/TO" form.
func (p Pair) String() string {
	return string(p.From) + "/" + string(p.To)
}

// ParsePair parses a "FROM/TO" key. Codes are upper-cased.
func ParsePair(s string) (Pair, error) {
	from, to, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || from == "" || to == "" {
		return Pair{}, fmt.Errorf("invalid pair %q", s)
	}
	return Pair{
		From: domain.AssetCode(strings.ToUpper(from)),
		To:   domain.AssetCode(strings.ToUpper(to)),
	}, nil
}

// checkRate rejects non-positive rates.
func checkRate(p Pair, rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return fmt.Errorf("%w: %s rate %s", ErrNoQuote, p, rate)
	}
	return nil
}
