package replay

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"nomisma-settlement/internal/domain"
	"nomisma-settlement/internal/storage"
	"nomisma-settlement/internal/storage/memory"
)

var (
	claimA  = common.HexToAddress("0xa1")
	claimB  = common.HexToAddress("0xa2")
	writerA = common.HexToAddress("0xb1")
	holderA = common.HexToAddress("0xc1")
)

// collectingEngine collects events for verification.
type collectingEngine struct {
	events []*domain.Event
}

func (e *collectingEngine) OnEvent(_ context.Context, event *domain.Event) error {
	e.events = append(e.events, event)
	return nil
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func seedLog(t *testing.T) *memory.EventStore {
	t.Helper()
	store := memory.NewEventStore()
	ctx := context.Background()

	events := []*domain.Event{
		{Type: domain.EventFundsDeposited, Emitter: claimA, Subject: writerA, Amount: d(44), Timestamp: 1000},
		{Type: domain.EventFundsDeposited, Emitter: claimB, Subject: writerA, Amount: d(88), Timestamp: 2000},
		{Type: domain.EventTokensIssued, Emitter: claimA, Subject: holderA, Amount: d(30), Rate: d(3), Timestamp: 3000},
		{Type: domain.EventTokensRedeemed, Emitter: claimA, Subject: holderA, Amount: d(10), CounterAmount: d(4), Timestamp: 4000},
	}
	for _, e := range events {
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	return store
}

func TestRunner_OrdersEventsDeterministically(t *testing.T) {
	source := seedLog(t)
	all, err := source.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}

	// Reverse order in a second source; the merged stream must still be by seq.
	reversed := make([]*domain.Event, len(all))
	for i, e := range all {
		reversed[len(all)-1-i] = e
	}
	runner := NewRunner(staticSource(reversed))

	engine := &collectingEngine{}
	if err := runner.RunAll(context.Background(), common.Address{}, engine); err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}

	if len(engine.events) != 4 {
		t.Fatalf("Expected 4 events, got %d", len(engine.events))
	}
	for i, e := range engine.events {
		if e.Seq != int64(i+1) {
			t.Errorf("Event %d: expected seq %d, got %d", i, i+1, e.Seq)
		}
	}
}

func TestRunner_FiltersByEmitter(t *testing.T) {
	runner := NewRunner(seedLog(t))

	engine := &collectingEngine{}
	if err := runner.RunAll(context.Background(), claimA, engine); err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if len(engine.events) != 3 {
		t.Fatalf("Expected 3 events for claimA, got %d", len(engine.events))
	}
	for _, e := range engine.events {
		if e.Emitter != claimA {
			t.Errorf("Unexpected emitter %s", e.Emitter.Hex())
		}
	}
}

func TestRunner_TimeRange(t *testing.T) {
	runner := NewRunner(seedLog(t))

	engine := &collectingEngine{}
	if err := runner.Run(context.Background(), common.Address{}, 2000, 3000, engine); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(engine.events) != 2 {
		t.Fatalf("Expected 2 events in [2000, 3000], got %d", len(engine.events))
	}
	if engine.events[0].Seq != 2 || engine.events[1].Seq != 3 {
		t.Errorf("Unexpected seqs %d, %d", engine.events[0].Seq, engine.events[1].Seq)
	}

	err := runner.Run(context.Background(), common.Address{}, 2000, 0, engine)
	if !errors.Is(err, ErrPartialRange) {
		t.Errorf("Expected ErrPartialRange, got %v", err)
	}
}

func TestRunner_MergesDuplicateDeliveries(t *testing.T) {
	primary := seedLog(t)
	all, _ := primary.GetAll(context.Background())

	// The mirror holds a redelivered copy of the first two records.
	mirror := staticSource{cloneEvent(all[0]), cloneEvent(all[1])}
	runner := NewRunner(primary, mirror)

	engine := &collectingEngine{}
	if err := runner.RunAll(context.Background(), common.Address{}, engine); err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if len(engine.events) != 4 {
		t.Errorf("Expected duplicates collapsed to 4 events, got %d", len(engine.events))
	}
}

func TestRunner_ConflictingSeq(t *testing.T) {
	primary := seedLog(t)
	all, _ := primary.GetAll(context.Background())

	forged := cloneEvent(all[0])
	forged.Amount = d(45)
	runner := NewRunner(primary, staticSource{forged})

	err := runner.RunAll(context.Background(), common.Address{}, &collectingEngine{})
	if !errors.Is(err, ErrInvalidOrdering) {
		t.Errorf("Expected ErrInvalidOrdering, got %v", err)
	}
}

func TestRunner_EngineErrorStops(t *testing.T) {
	runner := NewRunner(seedLog(t))
	boom := errors.New("boom")

	calls := 0
	err := runner.RunAll(context.Background(), common.Address{}, engineFunc(func(*domain.Event) error {
		calls++
		return boom
	}))
	if !errors.Is(err, boom) {
		t.Errorf("Expected engine error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected replay to stop after 1 event, got %d", calls)
	}
}

func TestStoreSource(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	err := store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Events().Append(ctx, &domain.Event{Type: domain.EventFundsDeposited, Emitter: claimA, Amount: d(1), Timestamp: 1})
	})
	if err != nil {
		t.Fatalf("InTx failed: %v", err)
	}

	engine := &collectingEngine{}
	if err := NewRunner(StoreSource{Runner: store}).RunAll(ctx, claimA, engine); err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	if len(engine.events) != 1 {
		t.Errorf("Expected 1 event, got %d", len(engine.events))
	}
}

func TestSummary(t *testing.T) {
	summary := NewSummary()
	if err := NewRunner(seedLog(t)).RunAll(context.Background(), common.Address{}, summary); err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}

	if summary.TotalEvents != 4 {
		t.Errorf("TotalEvents: got %d, want 4", summary.TotalEvents)
	}
	if summary.ByType[domain.EventFundsDeposited] != 2 {
		t.Errorf("FundsDeposited: got %d, want 2", summary.ByType[domain.EventFundsDeposited])
	}
	if summary.FirstEventTime != 1000 || summary.LastEventTime != 4000 {
		t.Errorf("Time span: got [%d, %d]", summary.FirstEventTime, summary.LastEventTime)
	}
	if summary.FirstSeq != 1 || summary.LastSeq != 4 {
		t.Errorf("Seq span: got [%d, %d]", summary.FirstSeq, summary.LastSeq)
	}
	if got := summary.Outstanding[claimA].String(); got != "20" {
		t.Errorf("Outstanding tokens: got %s, want 20", got)
	}
	if got := summary.PaidOut[claimA].String(); got != "4" {
		t.Errorf("PaidOut: got %s, want 4", got)
	}
	if got := summary.Deposited[claimB].String(); got != "88" {
		t.Errorf("Deposited: got %s, want 88", got)
	}
}

type staticSource []*domain.Event

func (s staticSource) GetByEmitter(_ context.Context, emitter common.Address) ([]*domain.Event, error) {
	var out []*domain.Event
	for _, e := range s {
		if e.Emitter == emitter {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s staticSource) GetAll(_ context.Context) ([]*domain.Event, error) {
	return append([]*domain.Event(nil), s...), nil
}

type engineFunc func(*domain.Event) error

func (f engineFunc) OnEvent(_ context.Context, e *domain.Event) error { return f(e) }

func cloneEvent(e *domain.Event) *domain.Event {
	c := *e
	return &c
}
