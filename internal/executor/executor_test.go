package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/Plasticdev67/Kalshi-market-maker/internal/exchange"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/idgen"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/ledger"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/logging"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/models"
)

type fakeExchange struct {
	placeErrOnSide exchange.Side
	cancelled      []string
}

func (f *fakeExchange) ListMarkets(context.Context, string, exchange.MarketStatus, int) ([]exchange.Market, error) {
	return nil, nil
}
func (f *fakeExchange) GetOrderbook(context.Context, string) (exchange.OrderBook, error) {
	return exchange.OrderBook{}, nil
}
func (f *fakeExchange) PlaceOrder(_ context.Context, req exchange.PlaceOrderRequest) (exchange.PlaceOrderResult, error) {
	if req.Side == f.placeErrOnSide {
		return exchange.PlaceOrderResult{}, errors.New("exchange rejected order")
	}
	return exchange.PlaceOrderResult{OrderID: "exch-" + string(req.Side)}, nil
}
func (f *fakeExchange) CancelOrder(_ context.Context, exchangeOrderID string) error {
	f.cancelled = append(f.cancelled, exchangeOrderID)
	return nil
}

func sampleSignal() models.PairSignal {
	return models.PairSignal{
		PairID:   "pair-1",
		Ticker:   "BTC-24JAN02",
		Asset:    "BTC",
		YesPrice: 48,
		NoPrice:  49,
		Size:     10,
	}
}

func TestPlacePairPaperMode(t *testing.T) {
	led := ledger.NewMemory()
	exec := New(led, nil, idgen.UUIDSource{}, logging.Nop())

	if err := exec.PlacePair(context.Background(), sampleSignal()); err != nil {
		t.Fatalf("PlacePair: %v", err)
	}

	pair, err := led.GetPair(context.Background(), "pair-1")
	if err != nil {
		t.Fatalf("GetPair: %v", err)
	}
	if pair.Status != models.PairOpen {
		t.Fatalf("pair status = %s, want OPEN", pair.Status)
	}
	if !pair.Yes.Open() || !pair.No.Open() {
		t.Fatal("expected both legs OPEN after paper placement")
	}
}

func TestPlacePairLiveModeSucceeds(t *testing.T) {
	led := ledger.NewMemory()
	fx := &fakeExchange{}
	exec := New(led, fx, idgen.UUIDSource{}, logging.Nop())

	if err := exec.PlacePair(context.Background(), sampleSignal()); err != nil {
		t.Fatalf("PlacePair: %v", err)
	}

	pair, err := led.GetPair(context.Background(), "pair-1")
	if err != nil {
		t.Fatalf("GetPair: %v", err)
	}
	if pair.Yes.ExchangeOrderID == "" || pair.No.ExchangeOrderID == "" {
		t.Fatal("expected both legs to carry an exchange order id")
	}
}

func TestPlacePairRollsBackYesOnNoFailure(t *testing.T) {
	led := ledger.NewMemory()
	fx := &fakeExchange{placeErrOnSide: exchange.SideNo}
	exec := New(led, fx, idgen.UUIDSource{}, logging.Nop())

	if err := exec.PlacePair(context.Background(), sampleSignal()); err == nil {
		t.Fatal("expected PlacePair to fail when NO leg placement fails")
	}

	pair, err := led.GetPair(context.Background(), "pair-1")
	if err != nil {
		t.Fatalf("GetPair: %v", err)
	}
	if pair.Status != models.PairCancelled {
		t.Fatalf("pair status = %s, want CANCELLED", pair.Status)
	}
	if pair.Yes.Status != models.LegCancelled {
		t.Fatalf("yes leg status = %s, want CANCELLED after rollback", pair.Yes.Status)
	}
	if len(fx.cancelled) != 1 {
		t.Fatalf("expected exchange cancel to be issued for the rolled-back YES leg, got %v", fx.cancelled)
	}
}

func TestCancelAllOpenCancelsEveryLeg(t *testing.T) {
	led := ledger.NewMemory()
	exec := New(led, nil, idgen.UUIDSource{}, logging.Nop())

	_ = exec.PlacePair(context.Background(), sampleSignal())
	signal2 := sampleSignal()
	signal2.PairID = "pair-2"
	signal2.Ticker = "ETH-24JAN02"
	_ = exec.PlacePair(context.Background(), signal2)

	count := exec.CancelAllOpen(context.Background())
	if count != 4 {
		t.Fatalf("cancelled %d orders, want 4", count)
	}
}
