package replay

import (
	"context"

	"nomisma-settlement/internal/domain"
)

// ReplayEngine processes emitted records in deterministic order.
type ReplayEngine interface {
	// OnEvent is called for each record in order.
	// Records are guaranteed to be ordered by seq with no duplicates.
	OnEvent(ctx context.Context, event *domain.Event) error
}
