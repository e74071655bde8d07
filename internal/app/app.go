// Package app assembles a settlement engine from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"nomisma-settlement/internal/authority"
	"nomisma-settlement/internal/claim"
	"nomisma-settlement/internal/config"
	"nomisma-settlement/internal/observability"
	"nomisma-settlement/internal/oracle"
	"nomisma-settlement/internal/orchestrator"
	"nomisma-settlement/internal/payoff"
	"nomisma-settlement/internal/storage"
	chstore "nomisma-settlement/internal/storage/clickhouse"
	"nomisma-settlement/internal/storage/memory"
	"nomisma-settlement/internal/storage/migrations"
	pgstore "nomisma-settlement/internal/storage/postgres"
)

// App holds the assembled engine and the resources it owns.
type App struct {
	Orchestrator *orchestrator.Orchestrator
	Runner       storage.TxRunner
	Oracle       oracle.RateOracle
	Metrics      *observability.Metrics

	// EventLog is set when a ClickHouse DSN is configured.
	EventLog *chstore.EventLog

	closers []func() error
}

// Options tweak Build for tests and sandbox programs.
type Options struct {
	// Registerer receives the metrics. Nil uses the default registerer.
	Registerer prometheus.Registerer
	// Oracle replaces the configured oracle.
	Oracle oracle.RateOracle
}

// Build connects storage and the oracle and creates the orchestrator.
// On error every resource opened so far is released.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger, opts Options) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{}
	if opts.Registerer == nil {
		a.Metrics = observability.DefaultMetrics
	} else {
		a.Metrics = observability.NewMetrics("", opts.Registerer)
	}

	if err := a.build(ctx, cfg, log, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg config.Config, log *zap.Logger, opts Options) error {
	authCfg, err := AuthorityConfig(cfg.Authority)
	if err != nil {
		return err
	}
	policy, err := payoff.FromName(cfg.Authority.PayoffPolicy)
	if err != nil {
		return err
	}
	rule, err := claim.ParseRedemptionRule(cfg.Authority.RedemptionRule)
	if err != nil {
		return err
	}

	if err := a.openStorage(ctx, cfg.Storage, log); err != nil {
		return err
	}

	a.Oracle = opts.Oracle
	if a.Oracle == nil {
		q, closer, err := oracle.FromConfig(ctx, cfg.Oracle, a.Metrics, log.Named("oracle"))
		if err != nil {
			return fmt.Errorf("create oracle: %w", err)
		}
		a.Oracle = q
		a.addCloser(closer)
	}

	orchOpts := orchestrator.Options{
		Runner:         a.Runner,
		Oracle:         a.Oracle,
		Authority:      authCfg,
		Policy:         policy,
		RedemptionRule: rule,
		Metrics:        a.Metrics,
		Logger:         log.Named("orchestrator"),
	}
	if a.EventLog != nil {
		orchOpts.Sink = a.EventLog
	}
	a.Orchestrator, err = orchestrator.New(orchOpts)
	return err
}

func (a *App) openStorage(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) error {
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		a.Runner = pgstore.NewStore(pool)
		log.Info("storage ready", zap.String("backend", cfg.Backend))
	case config.BackendMemory, "":
		a.Runner = memory.NewStore()
		log.Info("storage ready", zap.String("backend", config.BackendMemory))
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		a.addCloser(conn)
		a.EventLog = chstore.NewEventLog(conn)
		log.Info("event log ready", zap.String("database", conn.Database()))
	}
	return nil
}

func (a *App) addCloser(c io.Closer) {
	if c != nil {
		a.closers = append(a.closers, c.Close)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// AuthorityConfig parses the hex addresses of the authority section.
func AuthorityConfig(c config.AuthorityConfig) (authority.Config, error) {
	out := authority.Config{SettlementDecimals: c.SettlementDecimals}
	fields := []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"authority.address", c.Address, &out.Address},
		{"authority.operator", c.Operator, &out.Operator},
		{"authority.settlement_asset", c.SettlementAsset, &out.SettlementAsset},
		{"authority.exchange", c.Exchange, &out.Exchange},
	}

	for _, f := range fields {
		if !common.IsHexAddress(f.raw) {
			return authority.Config{}, fmt.Errorf("%s: invalid address %q", f.name, f.raw)
		}
		*f.dst = common.HexToAddress(f.raw)
	}
	if err := out.Validate(); err != nil {
		return authority.Config{}, err
	}
	return out, nil
}
