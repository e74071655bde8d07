// Package main asks the configured rate oracle for one quote.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nomisma-settlement/internal/config"
	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/observability"
	"nomisma-settlement/internal/oracle"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (empty reads NSC_* environment variables only)")
	from := flag.String("from", "EOS", "Asset code to convert from")
	to := flag.String("to", "ETH", "Asset code to convert to")
	amount := flag.String("amount", "1", "Amount of the source asset")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall deadline, including websocket warm-up")
	flag.Parse()

	logger := log.New(os.Stderr, "[quote] ", log.LstdFlags)

	amt, err := decimal.NewFromString(*amount)
	if err != nil || !amt.IsPositive() {
		logger.Fatalf("--amount must be a positive decimal, got %q", *amount)
	}

	cfg, err := config.Load(*configPath, *configPath == "")
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	metrics := observability.NewMetrics("", prometheus.NewRegistry())
	q, closer, err := oracle.FromConfig(ctx, cfg.Oracle, metrics, zap.NewNop())
	if err != nil {
		logger.Fatalf("create oracle: %v", err)
	}
	defer closer.Close()

	src := domain.AssetCode(strings.ToUpper(*from))
	dst := domain.AssetCode(strings.ToUpper(*to))
	rate, err := quote(ctx, q, cfg.Oracle.Kind, src, dst, amt)
	if err != nil {
		logger.Fatalf("quote %s/%s: %v", src, dst, err)
	}

	fmt.Printf("Exchange rate %s/%s = %s\n", src, dst, rate)
	fmt.Printf("%s %s = %s %s\n", amt, src, amt.Mul(rate), dst)
}

// quote asks once, except for the websocket feed, which is polled until its
// first update for the pair arrives or ctx expires.
func quote(ctx context.Context, q oracle.RateOracle, kind string, from, to domain.AssetCode, amount decimal.Decimal) (decimal.Decimal, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		rate, err := q.Quote(ctx, from, to, amount)
		if err == nil || kind != config.OracleWS {
			return rate, err
		}
		select {
		case <-ctx.Done():
			return decimal.Zero, fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-ticker.C:
		}
	}
}
