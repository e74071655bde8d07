// Package payoff splits converted settlement proceeds between the two
// sides of a pairing.
package payoff

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Policy names.
const (
	NamePhysicalDelivery = "physical-delivery"
	NameProRata          = "pro-rata"
)

var (
	// ErrUnknownPolicy is returned by FromName for an unregistered name.
	ErrUnknownPolicy = errors.New("unknown payoff policy")

	// ErrInvalidInput is returned when the input cannot be split.
	ErrInvalidInput = errors.New("invalid payoff input")
)

// Input describes one settlement.
type Input struct {
	Rate              decimal.Decimal // realized price of one underlying unit in base units
	Strike            decimal.Decimal
	Notional          decimal.Decimal
	Total             decimal.Decimal // converted proceeds to split
	LongContribution  decimal.Decimal // native collateral the LongCall side brought
	ShortContribution decimal.Decimal // native collateral the ShortPut side brought
	Decimals          int32           // precision of the settlement asset
}

// Split is the allocation of Input.Total.
type Split struct {
	Long  decimal.Decimal
	Short decimal.Decimal
}

// Policy allocates settlement proceeds.
type Policy interface {
	Name() string
	Split(in Input) (Split, error)
}

// FromName returns the policy registered under name.
// An empty name selects physical-delivery.
func FromName(name string) (Policy, error) {
	switch name {
	case "", NamePhysicalDelivery:
		return PhysicalDelivery{}, nil
	case NameProRata:
		return ProRata{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// Check verifies that s is a valid allocation of total.
func Check(s Split, total decimal.Decimal) error {
	if s.Long.IsNegative() || s.Short.IsNegative() {
		return fmt.Errorf("%w: negative share (%s, %s)", ErrInvalidInput, s.Long, s.Short)
	}
	if !s.Long.Add(s.Short).Equal(total) {
		return fmt.Errorf("%w: shares %s + %s do not sum to %s", ErrInvalidInput, s.Long, s.Short, total)
	}
	return nil
}

func validate(in Input) error {
	switch {
	case in.Total.IsNegative():
		return fmt.Errorf("%w: negative total", ErrInvalidInput)
	case in.LongContribution.IsNegative(), in.ShortContribution.IsNegative():
		return fmt.Errorf("%w: negative contribution", ErrInvalidInput)
	case in.Decimals < 0:
		return fmt.Errorf("%w: negative decimals", ErrInvalidInput)
	}
	return nil
}

// PhysicalDelivery pays the in-the-money side up to the notional and the
// other side the residual. At the money it splits pro rata.
type PhysicalDelivery struct{}

func (PhysicalDelivery) Name() string { return NamePhysicalDelivery }

func (PhysicalDelivery) Split(in Input) (Split, error) {
	if err := validate(in); err != nil {
		return Split{}, err
	}

	// The notional may carry more digits than the settlement asset.
	itm := decimal.Min(in.Notional.Truncate(in.Decimals), in.Total)
	if itm.IsNegative() {
		itm = decimal.Zero
	}

	switch in.Rate.Cmp(in.Strike) {
	case 1:
		return Split{Long: itm, Short: in.Total.Sub(itm)}, nil
	case -1:
		return Split{Long: in.Total.Sub(itm), Short: itm}, nil
	default:
		return proRata(in), nil
	}
}

// ProRata splits by the collateral each side contributed at pairing.
type ProRata struct{}

func (ProRata) Name() string { return NameProRata }

func (ProRata) Split(in Input) (Split, error) {
	if err := validate(in); err != nil {
		return Split{}, err
	}
	return proRata(in), nil
}

// proRata truncates the LongCall share; the remainder goes to the ShortPut side.
func proRata(in Input) Split {
	contributed := in.LongContribution.Add(in.ShortContribution)
	if contributed.IsZero() {
		return Split{Long: decimal.Zero, Short: in.Total}
	}
	long, _ := in.Total.Mul(in.LongContribution).QuoRem(contributed, in.Decimals)
	return Split{Long: long, Short: in.Total.Sub(long)}
}
