package position

import (
	"context"
	"testing"
	"time"

	"github.com/Plasticdev67/Kalshi-market-maker/internal/executor"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/idgen"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/ledger"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/logging"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/models"
	"github.com/shopspring/decimal"

	"github.com/Plasticdev67/Kalshi-market-maker/internal/capital"
)

func newTestManager(t *testing.T, fills FillSource, cfg Config) (*Manager, ledger.Ledger, *capital.Book) {
	t.Helper()
	led := ledger.NewMemory()
	book := capital.NewBook(decimal.NewFromInt(1000))
	exec := executor.New(led, nil, idgen.UUIDSource{}, logging.Nop())
	mgr := New(led, book, exec, fills, logging.Nop(), cfg)
	return mgr, led, book
}

func openPair(t *testing.T, led ledger.Ledger, pairID, ticker string, createdAt time.Time) {
	t.Helper()
	ctx := context.Background()
	if err := led.InsertPair(ctx, models.Pair{PairID: pairID, Ticker: ticker, Asset: "BTC", CreatedAt: createdAt}); err != nil {
		t.Fatalf("InsertPair: %v", err)
	}
	if err := led.InsertOrder(ctx, pairID, models.Leg{OrderID: pairID + "-yes", Side: models.SideYes, PriceCents: 48, Size: 10, Status: models.LegOpen, CreatedAt: createdAt}); err != nil {
		t.Fatalf("InsertOrder yes: %v", err)
	}
	if err := led.InsertOrder(ctx, pairID, models.Leg{OrderID: pairID + "-no", Side: models.SideNo, PriceCents: 49, Size: 10, Status: models.LegOpen, CreatedAt: createdAt}); err != nil {
		t.Fatalf("InsertOrder no: %v", err)
	}
}

func baseCfg() Config {
	return Config{
		PairTimeout:                45 * time.Second,
		CancelDeadline:             90 * time.Second,
		MaxOneSidedFillsBeforeHalt: 3,
		PaperTrade:                 true,
	}
}

func TestCheckPairsCompletesBothFilled(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mgr, led, book := newTestManager(t, AlwaysCross{}, baseCfg())
	openPair(t, led, "pair-1", "BTC-X", now)

	books := map[string]models.MarketBook{
		"BTC-X": {
			Contract:   models.Contract{Ticker: "BTC-X", SecondsUntilClose: 3600},
			BestYesAsk: 48, BestYesBid: 47,
			BestNoAsk: 49, BestNoBid: 48,
		},
	}

	if err := mgr.CheckPairs(context.Background(), books, now); err != nil {
		t.Fatalf("CheckPairs: %v", err)
	}

	pair, err := led.GetPair(context.Background(), "pair-1")
	if err != nil {
		t.Fatalf("GetPair: %v", err)
	}
	if pair.Status != models.PairFilled {
		t.Fatalf("pair status = %s, want FILLED", pair.Status)
	}

	summary := book.Summary()
	if summary.OpenPairs != 0 {
		t.Fatalf("expected capital book to have released the pair, got %+v", summary)
	}
	if !book.Invariant() {
		t.Fatal("capital invariant violated after pair completion")
	}
}

func TestCheckPairsCancelsAtResolutionDeadline(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mgr, led, book := newTestManager(t, &Fixed{Draws: []float64{1}}, baseCfg()) // never fills
	openPair(t, led, "pair-1", "BTC-X", now)
	book.Reallocate("pair-1", decimal.NewFromInt(10))

	books := map[string]models.MarketBook{
		"BTC-X": {
			Contract: models.Contract{Ticker: "BTC-X", SecondsUntilClose: 30}, // inside the 90s deadline
		},
	}

	if err := mgr.CheckPairs(context.Background(), books, now); err != nil {
		t.Fatalf("CheckPairs: %v", err)
	}

	pair, err := led.GetPair(context.Background(), "pair-1")
	if err != nil {
		t.Fatalf("GetPair: %v", err)
	}
	if pair.Status != models.PairCancelled {
		t.Fatalf("pair status = %s, want CANCELLED", pair.Status)
	}
}

func TestCheckPairsHandlesOneSidedFillAfterTimeout(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC) // 60s after creation
	createdAt := now.Add(-60 * time.Second)

	mgr, led, book := newTestManager(t, &Fixed{Draws: []float64{0, 1}}, baseCfg()) // yes fills, no doesn't
	openPair(t, led, "pair-1", "BTC-X", createdAt)

	books := map[string]models.MarketBook{
		"BTC-X": {
			Contract:   models.Contract{Ticker: "BTC-X", SecondsUntilClose: 3600},
			BestYesAsk: 48, BestYesBid: 47, // crosses yes leg (price 48)
			BestNoAsk: 0, BestNoBid: 0, // no leg never crosses
		},
	}

	if err := mgr.CheckPairs(context.Background(), books, now); err != nil {
		t.Fatalf("CheckPairs: %v", err)
	}

	pair, err := led.GetPair(context.Background(), "pair-1")
	if err != nil {
		t.Fatalf("GetPair: %v", err)
	}
	if pair.Status != models.PairPartial {
		t.Fatalf("pair status = %s, want PARTIAL", pair.Status)
	}
	if !book.Invariant() {
		t.Fatal("capital invariant violated after one-sided loss")
	}
}

func TestHaltsAfterConsecutiveOneSidedFills(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC)
	createdAt := now.Add(-60 * time.Second)

	cfg := baseCfg()
	cfg.MaxOneSidedFillsBeforeHalt = 2
	mgr, led, _ := newTestManager(t, &Fixed{Draws: []float64{0, 1}}, cfg)

	books := map[string]models.MarketBook{
		"BTC-X": {Contract: models.Contract{Ticker: "BTC-X", SecondsUntilClose: 3600}, BestYesAsk: 48, BestYesBid: 47},
		"ETH-X": {Contract: models.Contract{Ticker: "ETH-X", SecondsUntilClose: 3600}, BestYesAsk: 48, BestYesBid: 47},
	}

	openPair(t, led, "pair-1", "BTC-X", createdAt)
	if err := mgr.CheckPairs(context.Background(), books, now); err != nil {
		t.Fatalf("CheckPairs 1: %v", err)
	}
	if mgr.Halted() {
		t.Fatal("should not halt after a single one-sided fill")
	}

	openPair(t, led, "pair-2", "ETH-X", createdAt)
	if err := mgr.CheckPairs(context.Background(), books, now); err != nil {
		t.Fatalf("CheckPairs 2: %v", err)
	}
	if !mgr.Halted() {
		t.Fatal("expected halt after reaching max_one_sided_fills_before_halt")
	}
}

func TestRecoverCompletesBothFilledPair(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mgr, led, book := newTestManager(t, AlwaysCross{}, baseCfg())

	ctx := context.Background()
	led.InsertPair(ctx, models.Pair{PairID: "pair-1", Ticker: "BTC-X", CreatedAt: now})
	filledSize := 10
	led.InsertOrder(ctx, "pair-1", models.Leg{OrderID: "y", Side: models.SideYes, PriceCents: 48, Size: 10, Status: models.LegOpen})
	led.InsertOrder(ctx, "pair-1", models.Leg{OrderID: "n", Side: models.SideNo, PriceCents: 49, Size: 10, Status: models.LegOpen})
	led.UpdateOrderStatus(ctx, "y", models.LegFilled, &filledSize)
	led.UpdateOrderStatus(ctx, "n", models.LegFilled, &filledSize)

	if err := mgr.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	pair, err := led.GetPair(ctx, "pair-1")
	if err != nil {
		t.Fatalf("GetPair: %v", err)
	}
	if pair.Status != models.PairFilled {
		t.Fatalf("pair status = %s, want FILLED", pair.Status)
	}
	if !book.Invariant() {
		t.Fatal("capital invariant violated after recovery completion")
	}
}

func TestRecoverBooksOneSidedLossForPartialPair(t *testing.T) {
	mgr, led, book := newTestManager(t, AlwaysCross{}, baseCfg())
	book.Reallocate("pair-1", decimal.NewFromInt(10))

	ctx := context.Background()
	led.InsertPair(ctx, models.Pair{PairID: "pair-1", Ticker: "BTC-X", CreatedAt: time.Now().Add(-time.Hour)})
	filledSize := 10
	led.InsertOrder(ctx, "pair-1", models.Leg{OrderID: "y", Side: models.SideYes, PriceCents: 48, Size: 10, Status: models.LegOpen})
	led.InsertOrder(ctx, "pair-1", models.Leg{OrderID: "n", Side: models.SideNo, PriceCents: 49, Size: 10, Status: models.LegOpen})
	led.UpdateOrderStatus(ctx, "y", models.LegFilled, &filledSize)

	if err := mgr.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	pair, err := led.GetPair(ctx, "pair-1")
	if err != nil {
		t.Fatalf("GetPair: %v", err)
	}
	if pair.Status != models.PairPartial {
		t.Fatalf("pair status = %s, want PARTIAL", pair.Status)
	}
	if pair.No.Status != models.LegCancelled {
		t.Fatalf("open leg status = %s, want CANCELLED", pair.No.Status)
	}
}
