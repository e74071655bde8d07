package domain

import "errors"

// Settlement error kinds. Callers match them with errors.Is; operations
// wrap them with context.
var (
	// ErrUnauthorized is returned when the caller lacks the required role.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidState is returned when an operation runs outside its valid source state.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidDeposit is returned for a deposit of zero or negative value.
	ErrInvalidDeposit = errors.New("invalid deposit")

	// ErrInvalidAmount is returned for a non-positive amount or rate.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidTerms is returned when claim terms fail validation at creation.
	ErrInvalidTerms = errors.New("invalid terms")

	// ErrAssetAlreadySet is returned when an escrow already holds a different custody asset.
	ErrAssetAlreadySet = errors.New("custody asset already set")

	// ErrMintingClosed is returned when minting after close or expiration.
	ErrMintingClosed = errors.New("minting closed")

	// ErrAlreadyIssued is returned by a second issuance on the same claim.
	ErrAlreadyIssued = errors.New("tokens already issued")

	// ErrInsufficientBacking is returned when escrowed collateral is below the issuance threshold.
	ErrInsufficientBacking = errors.New("insufficient backing")

	// ErrInsufficientBalance is returned when a withdrawal exceeds an escrow balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientTokenBalance is returned when a burn or transfer exceeds a holder balance.
	ErrInsufficientTokenBalance = errors.New("insufficient token balance")

	// ErrIncompatibleTerms is returned when two claims cannot be paired.
	ErrIncompatibleTerms = errors.New("incompatible terms")

	// ErrAlreadyPaired is returned when a claim has been paired before.
	ErrAlreadyPaired = errors.New("already paired")

	// ErrUnknownPairing is returned when no unsettled pairing owns the netting escrow.
	ErrUnknownPairing = errors.New("unknown pairing")

	// ErrOracleUnavailable is returned when the rate oracle cannot produce a usable quote.
	ErrOracleUnavailable = errors.New("oracle unavailable")

	// ErrWithdrawalSpent is returned when a withdrawal is paid a second time.
	ErrWithdrawalSpent = errors.New("withdrawal already paid")
)
