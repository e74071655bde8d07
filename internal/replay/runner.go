package replay

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/storage"
)

// Source reads emitted records. Both the transactional event store and the
// ClickHouse event log satisfy it.
type Source interface {
	GetByEmitter(ctx context.Context, emitter common.Address) ([]*domain.Event, error)
	GetAll(ctx context.Context) ([]*domain.Event, error)
}

// Runner loads events from one or more sources and replays them in
// deterministic order.
type Runner struct {
	sources []Source
}

// NewRunner creates a new replay runner.
func NewRunner(sources ...Source) *Runner {
	return &Runner{sources: sources}
}

// Run replays the emitter's events with from <= timestamp <= to (unix ms).
// A zero emitter selects every emitter.
func (r *Runner) Run(ctx context.Context, emitter common.Address, from, to int64, engine ReplayEngine) error {
	if (from > 0) != (to > 0) {
		return ErrPartialRange
	}
	events, err := r.load(ctx, emitter)
	if err != nil {
		return err
	}
	for _, event := range events {
		if from > 0 && (event.Timestamp < from || event.Timestamp > to) {
			continue
		}
		if err := engine.OnEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// RunAll replays every stored event of the emitter.
func (r *Runner) RunAll(ctx context.Context, emitter common.Address, engine ReplayEngine) error {
	return r.Run(ctx, emitter, 0, 0, engine)
}

func (r *Runner) load(ctx context.Context, emitter common.Address) ([]*domain.Event, error) {
	streams := make([][]*domain.Event, 0, len(r.sources))
	for _, src := range r.sources {
		var (
			events []*domain.Event
			err    error
		)
		if emitter == (common.Address{}) {
			events, err = src.GetAll(ctx)
		} else {
			events, err = src.GetByEmitter(ctx, emitter)
		}
		if err != nil {
			return nil, err
		}
		streams = append(streams, events)
	}
	return MergeEvents(streams...)
}

// StoreSource reads the transactional event store through read-only snapshots.
type StoreSource struct {
	Runner storage.TxRunner
}

// GetByEmitter implements Source.
func (s StoreSource) GetByEmitter(ctx context.Context, emitter common.Address) ([]*domain.Event, error) {
	var out []*domain.Event
	err := s.Runner.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.Events().GetByEmitter(ctx, emitter)
		return err
	})
	return out, err
}

// GetAll implements Source.
func (s StoreSource) GetAll(ctx context.Context) ([]*domain.Event, error) {
	var out []*domain.Event
	err := s.Runner.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.Events().GetAll(ctx)
		return err
	})
	return out, err
}
