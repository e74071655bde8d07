package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// EventType names an emitted record.
type EventType string

const (
	EventFundsDeposited  EventType = "FundsDeposited"
	EventTokensIssued    EventType = "TokensIssued"
	EventContractsPaired EventType = "ContractsPaired"
	EventClaimsSettled   EventType = "ClaimsSettled"
	EventTokensRedeemed  EventType = "TokensRedeemed"
)

// Event is a record emitted for external observers.
//
// Field meaning depends on Type:
//
//	FundsDeposited:  Subject=depositor      Amount=amount
//	TokensIssued:    Subject=beneficiary    Amount=amount          Rate=rate
//	ContractsPaired: Subject=nettingEscrow  Amount=srcAmount       CounterAmount=destAmount
//	ClaimsSettled:   Subject=nettingEscrow  Amount=longCallPayout  CounterAmount=shortPutPayout
//	TokensRedeemed:  Subject=holder         Amount=tokens burned   CounterAmount=payout
type Event struct {
	Seq           int64 // assigned by the event store
	Type          EventType
	Emitter       common.Address
	Subject       common.Address
	Amount        decimal.Decimal
	CounterAmount decimal.Decimal
	Rate          decimal.Decimal
	Timestamp     int64 // unix ms
}

// NewFundsDeposited builds a FundsDeposited record.
func NewFundsDeposited(claim, depositor common.Address, amount decimal.Decimal) *Event {
	return &Event{Type: EventFundsDeposited, Emitter: claim, Subject: depositor, Amount: amount}
}

// NewTokensIssued builds a TokensIssued record.
func NewTokensIssued(claim, beneficiary common.Address, amount, rate decimal.Decimal) *Event {
	return &Event{Type: EventTokensIssued, Emitter: claim, Subject: beneficiary, Amount: amount, Rate: rate}
}

// NewContractsPaired builds a ContractsPaired record.
func NewContractsPaired(authority, netting common.Address, src, dest decimal.Decimal) *Event {
	return &Event{Type: EventContractsPaired, Emitter: authority, Subject: netting, Amount: src, CounterAmount: dest}
}

// NewClaimsSettled builds a ClaimsSettled record.
func NewClaimsSettled(authority, netting common.Address, longPayout, shortPayout decimal.Decimal) *Event {
	return &Event{Type: EventClaimsSettled, Emitter: authority, Subject: netting, Amount: longPayout, CounterAmount: shortPayout}
}

// NewTokensRedeemed builds a TokensRedeemed record.
func NewTokensRedeemed(claim, holder common.Address, burned, payout decimal.Decimal) *Event {
	return &Event{Type: EventTokensRedeemed, Emitter: claim, Subject: holder, Amount: burned, CounterAmount: payout}
}
