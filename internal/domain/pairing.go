package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PairingState is the lifecycle state of a pairing record.
type PairingState string

const (
	PairingPaired  PairingState = "PAIRED"
	PairingSettled PairingState = "SETTLED"
)

// IsValid reports whether s is a known pairing state.
func (s PairingState) IsValid() bool {
	return s == PairingPaired || s == PairingSettled
}

// Pairing matches a LongCall claim with a ShortPut claim.
// The netting escrow address identifies the pairing.
type Pairing struct {
	NettingEscrow common.Address
	Authority     common.Address
	LongClaim     common.Address
	ShortClaim    common.Address
	State         PairingState

	// Native collateral moved from each claim into the netting escrow.
	LongContribution  decimal.Decimal
	ShortContribution decimal.Decimal

	PairedAt  int64 // unix ms
	SettledAt int64 // unix ms, 0 until settled

	// Populated by settlement.
	SettlementRate decimal.Decimal
	ConvertedTotal decimal.Decimal
	LongPayout     decimal.Decimal
	ShortPayout    decimal.Decimal
}

// NettedTotal returns the native collateral held at pairing time.
func (p *Pairing) NettedTotal() decimal.Decimal {
	return p.LongContribution.Add(p.ShortContribution)
}
