package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nomisma-settlement/internal/app"
	"nomisma-settlement/internal/config"
	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/replay"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	envOnly := flag.Bool("env-only", false, "Read configuration from NSC_* environment variables only")
	emitter := flag.String("emitter", "", "Emitter address to replay (claim or authority); empty replays every emitter")
	fromTime := flag.String("from-time", "", "Start time (RFC3339)")
	toTime := flag.String("to-time", "", "End time (RFC3339)")
	outputJSON := flag.Bool("json", false, "Output as JSON")

	flag.Parse()

	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	var emitterAddr common.Address
	if *emitter != "" {
		if !common.IsHexAddress(*emitter) {
			logger.Fatalf("--emitter %q is not a hex address", *emitter)
		}
		emitterAddr = common.HexToAddress(*emitter)
	}

	cfg, err := config.Load(*configPath, *envOnly)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	engine, err := app.Build(ctx, cfg, zap.NewNop(), app.Options{})
	if err != nil {
		logger.Fatalf("build engine: %v", err)
	}
	defer engine.Close()

	sources := []replay.Source{replay.StoreSource{Runner: engine.Runner}}
	if engine.EventLog != nil {
		sources = append(sources, engine.EventLog)
	}
	runner := replay.NewRunner(sources...)

	// Determine time range
	var from, to int64
	if *fromTime != "" {
		t, err := time.Parse(time.RFC3339, *fromTime)
		if err != nil {
			logger.Fatalf("parse from-time: %v", err)
		}
		from = t.UnixMilli()
	}
	if *toTime != "" {
		t, err := time.Parse(time.RFC3339, *toTime)
		if err != nil {
			logger.Fatalf("parse to-time: %v", err)
		}
		to = t.UnixMilli()
	}

	summary := replay.NewSummary()
	var printer replay.ReplayEngine = summary
	if !*outputJSON {
		printer = &printingEngine{next: summary}
	}

	if from > 0 || to > 0 {
		logger.Printf("Replaying %s from %d to %d", label(emitterAddr), from, to)
	} else {
		logger.Printf("Replaying all events of %s", label(emitterAddr))
	}
	if err := runner.Run(ctx, emitterAddr, from, to, printer); err != nil {
		logger.Fatalf("replay failed: %v", err)
	}

	// Output summary
	if *outputJSON {
		output, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(output))
		return
	}
	printSummary(emitterAddr, summary)
}

func label(emitter common.Address) string {
	if emitter == (common.Address{}) {
		return "every emitter"
	}
	return emitter.Hex()
}

// printingEngine prints each record before folding it into the summary.
type printingEngine struct {
	next replay.ReplayEngine
}

func (e *printingEngine) OnEvent(ctx context.Context, ev *domain.Event) error {
	fmt.Printf("[%s] seq=%d type=%s emitter=%s subject=%s amount=%s\n",
		time.UnixMilli(ev.Timestamp).UTC().Format(time.RFC3339Nano),
		ev.Seq,
		ev.Type,
		ev.Emitter.Hex(),
		ev.Subject.Hex(),
		ev.Amount,
	)
	return e.next.OnEvent(ctx, ev)
}

func printSummary(emitter common.Address, s *replay.Summary) {
	fmt.Printf("\n=== Replay Summary ===\n")
	fmt.Printf("Emitter:           %s\n", label(emitter))
	fmt.Printf("Total Events:      %d\n", s.TotalEvents)

	types := make([]string, 0, len(s.ByType))
	for t := range s.ByType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Printf("  %-16s %d\n", t+":", s.ByType[domain.EventType(t)])
	}

	if s.TotalEvents == 0 {
		fmt.Printf("First Event Time:  N/A\n")
		fmt.Printf("Last Event Time:   N/A\n")
		fmt.Printf("Duration:          N/A\n")
		return
	}
	fmt.Printf("Seq Range:         %d..%d\n", s.FirstSeq, s.LastSeq)
	fmt.Printf("First Event Time:  %s\n", time.UnixMilli(s.FirstEventTime).UTC().Format(time.RFC3339))
	fmt.Printf("Last Event Time:   %s\n", time.UnixMilli(s.LastEventTime).UTC().Format(time.RFC3339))
	fmt.Printf("Duration:          %v\n", time.Duration(s.LastEventTime-s.FirstEventTime)*time.Millisecond)

	seen := make(map[common.Address]bool)
	for _, m := range []map[common.Address]decimal.Decimal{s.Deposited, s.Outstanding, s.PaidOut} {
		for claim := range m {
			seen[claim] = true
		}
	}
	claims := make([]common.Address, 0, len(seen))
	for claim := range seen {
		claims = append(claims, claim)
	}
	sort.Slice(claims, func(i, j int) bool { return claims[i].Cmp(claims[j]) < 0 })
	for _, claim := range claims {
		fmt.Printf("Claim %s: deposited=%s outstanding=%s paid_out=%s\n",
			claim.Hex(), s.Deposited[claim], s.Outstanding[claim], s.PaidOut[claim])
	}
}
