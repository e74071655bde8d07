package oracle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/observability"
)

// Instrumented records latency and failures of another oracle.
type Instrumented struct {
	next    RateOracle
	source  string
	metrics *observability.Metrics
	log     *zap.Logger
}

// Instrument wraps next. A nil metrics uses observability.DefaultMetrics.
func Instrument(next RateOracle, source string, metrics *observability.Metrics, log *zap.Logger) *Instrumented {
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Instrumented{next: next, source: source, metrics: metrics, log: log}
}

// Quote delegates to the wrapped oracle.
func (o *Instrumented) Quote(ctx context.Context, from, to domain.AssetCode, amount decimal.Decimal) (decimal.Decimal, error) {
	start := time.Now()
	rate, err := o.next.Quote(ctx, from, to, amount)
	o.metrics.RecordQuote(o.source, time.Since(start).Seconds(), err)

	if err != nil {
		o.log.Warn("rate quote failed",
			zap.String("source", o.source),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Error(err))
		return decimal.Zero, err
	}

	o.log.Debug("rate quoted",
		zap.String("source", o.source),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("amount", amount.String()),
		zap.String("rate", rate.String()))
	return rate, nil
}
