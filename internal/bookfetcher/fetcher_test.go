package bookfetcher

import (
	"context"
	"errors"
	"testing"

	"github.com/Plasticdev67/Kalshi-market-maker/internal/exchange"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/models"
)

type stubExchange struct {
	books map[string]exchange.OrderBook
	fail  map[string]bool
}

func (s *stubExchange) ListMarkets(context.Context, string, exchange.MarketStatus, int) ([]exchange.Market, error) {
	return nil, nil
}
func (s *stubExchange) GetOrderbook(_ context.Context, ticker string) (exchange.OrderBook, error) {
	if s.fail[ticker] {
		return exchange.OrderBook{}, errors.New("orderbook fetch failed")
	}
	return s.books[ticker], nil
}
func (s *stubExchange) PlaceOrder(context.Context, exchange.PlaceOrderRequest) (exchange.PlaceOrderResult, error) {
	return exchange.PlaceOrderResult{}, nil
}
func (s *stubExchange) CancelOrder(context.Context, string) error { return nil }

func TestFetchDerivesAskFromComplementIdentity(t *testing.T) {
	exch := &stubExchange{
		books: map[string]exchange.OrderBook{
			"BTC-X": {
				Ticker: "BTC-X",
				Yes:    []exchange.PriceSize{{Price: 47, Size: 20}},
				No:     []exchange.PriceSize{{Price: 48, Size: 15}},
			},
		},
	}
	f := New(exch, nil, 0)

	out := f.Fetch(context.Background(), []models.Contract{{Ticker: "BTC-X"}})
	book, ok := out["BTC-X"]
	if !ok {
		t.Fatal("expected a book for BTC-X")
	}

	if book.BestYesBid != 47 || book.BestNoBid != 48 {
		t.Fatalf("unexpected bids: yes=%d no=%d", book.BestYesBid, book.BestNoBid)
	}
	// yes ask = 100 - best no bid, no ask = 100 - best yes bid
	if book.BestYesAsk != 100-48 {
		t.Fatalf("BestYesAsk = %d, want %d", book.BestYesAsk, 100-48)
	}
	if book.BestNoAsk != 100-47 {
		t.Fatalf("BestNoAsk = %d, want %d", book.BestNoAsk, 100-47)
	}
	if book.CombinedBid != 47+48 {
		t.Fatalf("CombinedBid = %d, want %d", book.CombinedBid, 47+48)
	}
	if book.SpreadProfit != 100-(47+48) {
		t.Fatalf("SpreadProfit = %d, want %d", book.SpreadProfit, 100-(47+48))
	}
	if book.MinBidSize != 15 {
		t.Fatalf("MinBidSize = %d, want 15", book.MinBidSize)
	}
}

func TestFetchDefaultsMissingSideToNoBidsAndFullAsk(t *testing.T) {
	exch := &stubExchange{
		books: map[string]exchange.OrderBook{
			"ETH-X": {Ticker: "ETH-X"}, // both sides empty
		},
	}
	f := New(exch, nil, 0)

	out := f.Fetch(context.Background(), []models.Contract{{Ticker: "ETH-X"}})
	book := out["ETH-X"]

	if book.BestYesBid != 0 || book.BestNoBid != 0 {
		t.Fatalf("expected zero bids for an empty book, got yes=%d no=%d", book.BestYesBid, book.BestNoBid)
	}
	if book.BestYesAsk != 100 || book.BestNoAsk != 100 {
		t.Fatalf("expected asks of 100 for an empty opposite side, got yes=%d no=%d", book.BestYesAsk, book.BestNoAsk)
	}
}

func TestFetchIsolatesSingleContractFailure(t *testing.T) {
	exch := &stubExchange{
		books: map[string]exchange.OrderBook{
			"BTC-X": {Ticker: "BTC-X", Yes: []exchange.PriceSize{{Price: 47, Size: 5}}},
		},
		fail: map[string]bool{"ETH-X": true},
	}
	f := New(exch, nil, 0)

	out := f.Fetch(context.Background(), []models.Contract{{Ticker: "BTC-X"}, {Ticker: "ETH-X"}})

	if _, ok := out["BTC-X"]; !ok {
		t.Fatal("expected BTC-X to succeed despite ETH-X failing")
	}
	if _, ok := out["ETH-X"]; ok {
		t.Fatal("expected ETH-X to be dropped after a fetch failure")
	}
}

func TestFetchWithSmallBoundStillCompletes(t *testing.T) {
	contracts := make([]models.Contract, 0, 50)
	books := make(map[string]exchange.OrderBook, 50)
	for i := 0; i < 50; i++ {
		ticker := string(rune('A' + i%26))
		contracts = append(contracts, models.Contract{Ticker: ticker})
		books[ticker] = exchange.OrderBook{Ticker: ticker}
	}
	exch := &stubExchange{books: books}
	f := New(exch, nil, 4)

	out := f.Fetch(context.Background(), contracts)
	if len(out) == 0 {
		t.Fatal("expected a bounded fetch to still complete and return results")
	}
}
