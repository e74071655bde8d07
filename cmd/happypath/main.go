// Package main runs the end-to-end settlement scenario against a sandbox
// engine: two opposite claims are written, funded, issued, paired, settled
// and redeemed, and the resulting state is audited.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nomisma-settlement/internal/app"
	"nomisma-settlement/internal/config"
	"nomisma-settlement/internal/ledger"
	"nomisma-settlement/internal/logger"
	"nomisma-settlement/internal/storage"
	"nomisma-settlement/internal/verification"
)

// Sandbox roles used when the config leaves them unset.
var sandboxAuthority = config.AuthorityConfig{
	Address:         "0x00000000000000000000000000000000000000cc",
	Operator:        "0x00000000000000000000000000000000000000c0",
	SettlementAsset: "0x4bfba4a8f28755cb2061c413459ee562c6b9c51b",
	Exchange:        "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee",
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (empty reads NSC_* environment variables only)")
	atMarket := flag.Bool("market", false, "Issue tokens at the oracle rate instead of --issue-rate")
	issueRate := flag.String("issue-rate", "3", "Rate used for token issuance")
	settleRate := flag.String("settle-rate", "12", "Stub oracle rate for the underlying/base pair when none is configured")
	flag.Parse()

	cfg, err := config.Load(*configPath, *configPath == "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	sc := defaultScenario()
	sc.AtMarket = *atMarket
	if sc.IssueRate, err = decimal.NewFromString(*issueRate); err != nil {
		log.Fatal("invalid --issue-rate", zap.Error(err))
	}
	applySandboxDefaults(&cfg, sc, *settleRate)

	if err := run(cfg, sc, log); err != nil {
		log.Fatal("scenario failed", zap.Error(err))
	}
	log.Info("scenario executed successfully")
}

func applySandboxDefaults(cfg *config.Config, sc scenario, settleRate string) {
	a := &cfg.Authority
	if a.Address == "" {
		a.Address = sandboxAuthority.Address
	}
	if a.Operator == "" {
		a.Operator = sandboxAuthority.Operator
	}
	if a.SettlementAsset == "" {
		a.SettlementAsset = sandboxAuthority.SettlementAsset
	}
	if a.Exchange == "" {
		a.Exchange = sandboxAuthority.Exchange
	}
	if cfg.Oracle.Kind == config.OracleStub && len(cfg.Oracle.Rates) == 0 {
		cfg.Oracle.Rates = map[string]string{
			string(sc.Underlying) + "/" + string(sc.Base): settleRate,
		}
	}
}

func run(cfg config.Config, sc scenario, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	engine, err := app.Build(ctx, cfg, log, app.Options{})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	auditor := verification.NewAuditor(verification.AuditorOptions{
		Runner:        engine.Runner,
		LedgerFactory: func(tx storage.Tx) ledger.Host { return ledger.NewStoreLedger(tx.Ledger()) },
	})

	_, err = runScenario(ctx, engine.Orchestrator, auditor, sc, time.Now(), log.Named("happypath"))
	return err
}
