// Package orchestrator runs every settlement operation as one atomic
// transaction and delivers the emitted records once it has committed.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nomisma-settlement/internal/authority"
	"nomisma-settlement/internal/claim"
	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/host"
	"nomisma-settlement/internal/ledger"
	"nomisma-settlement/internal/observability"
	"nomisma-settlement/internal/payoff"
	"nomisma-settlement/internal/storage"
)

// DefaultConflictRetries is how often an operation is rerun after a
// serialization conflict.
const DefaultConflictRetries = 3

// ErrNoFaucet is returned by Fund when the host ledger cannot mint native value.
var ErrNoFaucet = errors.New("host ledger has no faucet")

// faucet is implemented by sandbox ledgers.
type faucet interface {
	Fund(ctx context.Context, account common.Address, amount decimal.Decimal) error
}

// Orchestrator is the atomic façade over claims and the settlement authority.
type Orchestrator struct {
	runner    storage.TxRunner
	oracle    claim.Quoter
	authority *authority.Authority
	rule      claim.RedemptionRule
	sink      storage.EventSink
	metrics   *observability.Metrics
	log       *zap.Logger
	clock     func() time.Time
	ledgerFor func(storage.Tx) ledger.Host
	retries   int
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	Runner    storage.TxRunner
	Oracle    claim.Quoter
	Authority authority.Config

	// Policy splits settlement proceeds. Defaults to physical delivery.
	Policy payoff.Policy
	// RedemptionRule decides who may redeem. Defaults to holder-only.
	RedemptionRule claim.RedemptionRule

	// Sink receives committed events. Optional.
	Sink    storage.EventSink
	Metrics *observability.Metrics
	Logger  *zap.Logger
	Clock   func() time.Time

	// LedgerFactory builds the host ledger for a transaction. Defaults to the
	// store-backed sandbox ledger.
	LedgerFactory func(storage.Tx) ledger.Host

	// ConflictRetries bounds reruns after storage.ErrConflict. Negative disables.
	ConflictRetries int
}

// New creates a new Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Runner == nil {
		return nil, errors.New("orchestrator: runner is required")
	}
	if opts.Oracle == nil {
		return nil, errors.New("orchestrator: oracle is required")
	}
	if err := opts.Authority.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	policy := opts.Policy
	if policy == nil {
		policy = payoff.PhysicalDelivery{}
	}
	rule := opts.RedemptionRule
	if rule == "" {
		rule = claim.RedeemByHolder
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	ledgerFor := opts.LedgerFactory
	if ledgerFor == nil {
		ledgerFor = func(tx storage.Tx) ledger.Host { return ledger.NewStoreLedger(tx.Ledger()) }
	}
	retries := opts.ConflictRetries
	if retries == 0 {
		retries = DefaultConflictRetries
	}
	if retries < 0 {
		retries = 0
	}

	return &Orchestrator{
		runner:    opts.Runner,
		oracle:    opts.Oracle,
		authority: authority.New(opts.Authority, opts.Oracle, policy),
		rule:      rule,
		sink:      opts.Sink,
		metrics:   metrics,
		log:       log,
		clock:     clock,
		ledgerFor: ledgerFor,
		retries:   retries,
	}, nil
}

// Authority returns the settlement authority configuration.
func (o *Orchestrator) Authority() authority.Config { return o.authority.Config() }

// run executes fn in one transaction. Events emitted by fn are delivered to
// the sink only after commit.
func (o *Orchestrator) run(ctx context.Context, op string, fn func(ctx context.Context, env *host.Env) error) error {
	start := time.Now()

	var events []*domain.Event
	var err error
	for attempt := 0; attempt <= o.retries; attempt++ {
		events = nil
		err = o.runner.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			env := host.New(tx, o.ledgerFor(tx), o.clock())
			if err := fn(ctx, env); err != nil {
				return err
			}
			events = env.Emitted()
			return nil
		})
		if !errors.Is(err, storage.ErrConflict) {
			break
		}
		o.log.Debug("operation conflicted, retrying", zap.String("op", op), zap.Int("attempt", attempt+1))
	}

	elapsed := time.Since(start)
	o.metrics.RecordOperation(op, elapsed.Seconds(), err)

	if err != nil {
		o.log.Warn("operation failed",
			zap.String("op", op),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return err
	}

	o.log.Info("operation committed",
		zap.String("op", op),
		zap.Duration("duration", elapsed),
		zap.Int("events", len(events)))
	for _, ev := range events {
		o.log.Debug("event",
			zap.Int64("seq", ev.Seq),
			zap.String("type", string(ev.Type)),
			zap.String("emitter", ev.Emitter.Hex()),
			zap.String("subject", ev.Subject.Hex()),
			zap.String("amount", ev.Amount.String()),
			zap.String("counter_amount", ev.CounterAmount.String()))
	}

	o.publish(ctx, events)
	return nil
}

// view executes fn against a read-only snapshot.
func (o *Orchestrator) view(ctx context.Context, fn func(ctx context.Context, env *host.Env) error) error {
	return o.runner.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		return fn(ctx, host.New(tx, o.ledgerFor(tx), o.clock()))
	})
}

// publish delivers committed events. The operation has already committed,
// so a delivery failure is logged and the events stay in the event store.
func (o *Orchestrator) publish(ctx context.Context, events []*domain.Event) {
	if o.sink == nil || len(events) == 0 {
		return
	}
	err := o.sink.Publish(ctx, events)
	o.metrics.RecordPublish(len(events), events[len(events)-1].Seq, err)
	if err != nil {
		o.log.Error("event publish failed",
			zap.Int64("first_seq", events[0].Seq),
			zap.Int("count", len(events)),
			zap.Error(err))
	}
}
