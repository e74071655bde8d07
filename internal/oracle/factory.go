package oracle

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nomisma-settlement/internal/config"
	"nomisma-settlement/internal/observability"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// FromConfig builds the configured oracle wrapped with metrics.
// The returned closer releases connections held by the oracle.
func FromConfig(ctx context.Context, cfg config.OracleConfig, metrics *observability.Metrics, log *zap.Logger) (RateOracle, io.Closer, error) {
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}

	switch cfg.Kind {
	case config.OracleStub, "":
		rates, err := ParseRates(cfg.Rates)
		if err != nil {
			return nil, nil, fmt.Errorf("oracle rates: %w", err)
		}
		return Instrument(NewStatic(rates), config.OracleStub, metrics, log), nopCloser{}, nil

	case config.OracleRPC:
		opts := []ClientOption{}
		if cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(cfg.Timeout))
		}
		if cfg.MaxRetries >= 0 {
			opts = append(opts, WithMaxRetries(cfg.MaxRetries))
		}
		if cfg.RetryDelay > 0 {
			opts = append(opts, WithRetryDelay(cfg.RetryDelay))
		}
		client := NewHTTPClient(cfg.Endpoint, opts...)
		return Instrument(client, config.OracleRPC, metrics, log), nopCloser{}, nil

	case config.OracleWS:
		pairs := make([]Pair, 0, len(cfg.Pairs))
		for _, raw := range cfg.Pairs {
			p, err := ParsePair(raw)
			if err != nil {
				return nil, nil, fmt.Errorf("oracle pairs: %w", err)
			}
			pairs = append(pairs, p)
		}
		feedCfg := DefaultFeedConfig()
		if cfg.MaxAge > 0 {
			feedCfg.MaxAge = cfg.MaxAge
		}
		feedCfg.OnUpdate = func(Pair, decimal.Decimal) { metrics.OracleFeedUpdates.Inc() }

		feed, err := NewFeedClient(ctx, cfg.Endpoint, pairs, &feedCfg)
		if err != nil {
			return nil, nil, err
		}
		return Instrument(feed, config.OracleWS, metrics, log), feed, nil

	default:
		return nil, nil, fmt.Errorf("unknown oracle kind %q", cfg.Kind)
	}
}
