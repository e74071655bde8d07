// Package host carries the per-operation execution environment.
package host

import (
	"context"
	"fmt"
	"time"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/ledger"
	"nomisma-settlement/internal/storage"
)

// Env binds one operation to its transaction, the host ledger and a fixed
// point in time. An Env must not outlive the transaction it was built for.
type Env struct {
	Tx     storage.Tx
	Ledger ledger.Host
	Now    time.Time

	emitted []*domain.Event
}

// New creates an Env for one operation.
func New(tx storage.Tx, l ledger.Host, now time.Time) *Env {
	return &Env{Tx: tx, Ledger: l, Now: now}
}

// NowMs returns the operation time in unix milliseconds.
func (e *Env) NowMs() int64 {
	return e.Now.UnixMilli()
}

// Emit timestamps ev and appends it to the event log.
func (e *Env) Emit(ctx context.Context, ev *domain.Event) error {
	ev.Timestamp = e.NowMs()
	if err := e.Tx.Events().Append(ctx, ev); err != nil {
		return fmt.Errorf("append %s event: %w", ev.Type, err)
	}
	e.emitted = append(e.emitted, ev)
	return nil
}

// Emitted returns the events appended through this Env, in order.
func (e *Env) Emitted() []*domain.Event {
	out := make([]*domain.Event, len(e.emitted))
	copy(out, e.emitted)
	return out
}
