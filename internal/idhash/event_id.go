package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"nomisma-settlement/internal/domain"
)

// EventID computes a deterministic event_id using SHA256.
// Formula: SHA256(seq|type|emitter|subject|amount|counter_amount|rate|timestamp)
// Returns hex-encoded hash (64 characters).
func EventID(e *domain.Event) string {
	data := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%d",
		e.Seq,
		string(e.Type),
		e.Emitter.Hex(),
		e.Subject.Hex(),
		e.Amount.String(),
		e.CounterAmount.String(),
		e.Rate.String(),
		e.Timestamp,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
