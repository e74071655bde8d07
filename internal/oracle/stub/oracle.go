// Package stub provides a programmable rate oracle for tests.
package stub

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/oracle"
)

// Oracle implements oracle.RateOracle with settable rates.
type Oracle struct {
	mu      sync.RWMutex
	rates   map[oracle.Pair]decimal.Decimal
	failErr error
	calls   int
}

// New creates an empty stub oracle.
func New() *Oracle {
	return &Oracle{rates: make(map[oracle.Pair]decimal.Decimal)}
}

// SetRate sets the rate quoted for from/to.
func (o *Oracle) SetRate(from, to domain.AssetCode, rate decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rates[oracle.Pair{From: from, To: to}] = rate
}

// SetFailing makes every Quote return err. A nil err restores quoting.
func (o *Oracle) SetFailing(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failErr = err
}

// Calls returns the number of Quote calls made.
func (o *Oracle) Calls() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.calls
}

// Quote implements oracle.RateOracle.
func (o *Oracle) Quote(_ context.Context, from, to domain.AssetCode, _ decimal.Decimal) (decimal.Decimal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++

	if o.failErr != nil {
		return decimal.Zero, o.failErr
	}
	rate, ok := o.rates[oracle.Pair{From: from, To: to}]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s/%s", oracle.ErrNoQuote, from, to)
	}
	return rate, nil
}
