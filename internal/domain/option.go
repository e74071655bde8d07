package domain

import "fmt"

// OptionType identifies which side of a paired position a claim represents.
// Numeric values match the on-ledger encoding (LongCall=0, ShortPut=1).
type OptionType int

const (
	OptionLongCall OptionType = 0
	OptionShortPut OptionType = 1
)

// String returns the canonical name of the option type.
func (t OptionType) String() string {
	switch t {
	case OptionLongCall:
		return "LONG_CALL"
	case OptionShortPut:
		return "SHORT_PUT"
	default:
		return fmt.Sprintf("OptionType(%d)", int(t))
	}
}

// IsValid reports whether t is a known option type.
func (t OptionType) IsValid() bool {
	return t == OptionLongCall || t == OptionShortPut
}

// ParseOptionType parses either the canonical name or the numeric encoding.
func ParseOptionType(s string) (OptionType, error) {
	switch s {
	case "LONG_CALL", "long_call", "0":
		return OptionLongCall, nil
	case "SHORT_PUT", "short_put", "1":
		return OptionShortPut, nil
	default:
		return 0, fmt.Errorf("unknown option type %q", s)
	}
}

// AssetCode names a currency for rate quotes, e.g. "ETH" or "EOS".
type AssetCode string

// FundsKind selects which balance slot of an escrow an operation touches.
type FundsKind string

const (
	FundsNative FundsKind = "NATIVE"
	FundsAsset  FundsKind = "ASSET"
)
