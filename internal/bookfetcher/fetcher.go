// Package bookfetcher fetches order books for a set of contracts in
// parallel and derives the quantities the Strategy needs.
package bookfetcher

import (
	"context"
	"sync"

	"github.com/Plasticdev67/Kalshi-market-maker/internal/exchange"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/models"
	"go.uber.org/zap"
)

// defaultMaxInFlight bounds the fan-out so a large contract set cannot
// open an unbounded number of simultaneous exchange connections.
const defaultMaxInFlight = 8

// Fetcher fetches and derives MarketBook records for a contract set.
type Fetcher struct {
	exch        exchange.Exchange
	logger      *zap.Logger
	maxInFlight int
}

// New creates a Fetcher over exch. maxInFlight <= 0 uses the default
// bound.
func New(exch exchange.Exchange, logger *zap.Logger, maxInFlight int) *Fetcher {
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	return &Fetcher{exch: exch, logger: logger, maxInFlight: maxInFlight}
}

// Fetch fetches a book per contract, bounded to f.maxInFlight concurrent
// requests. A single contract's failure is logged and dropped; the rest
// of the batch still returns.
func (f *Fetcher) Fetch(ctx context.Context, contracts []models.Contract) map[string]models.MarketBook {
	out := make(map[string]models.MarketBook, len(contracts))
	var mu sync.Mutex
	var wg sync.WaitGroup

	sem := make(chan struct{}, f.maxInFlight)

	for _, contract := range contracts {
		wg.Add(1)
		go func(c models.Contract) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			book, ok := f.fetchOne(ctx, c)
			if !ok {
				return
			}

			mu.Lock()
			out[c.Ticker] = book
			mu.Unlock()
		}(contract)
	}

	wg.Wait()
	return out
}

func (f *Fetcher) fetchOne(ctx context.Context, contract models.Contract) (models.MarketBook, bool) {
	raw, err := f.exch.GetOrderbook(ctx, contract.Ticker)
	if err != nil {
		if f.logger != nil {
			f.logger.Warn("book fetch failed", zap.String("ticker", contract.Ticker), zap.Error(err))
		}
		return models.MarketBook{}, false
	}
	return derive(contract, raw), true
}

// derive computes best bid/ask/combined/spread/min-size from the raw
// book, using the defaults named in §4.4: 0 for a missing bid, 100 for a
// missing ask.
func derive(contract models.Contract, book exchange.OrderBook) models.MarketBook {
	yesBid, yesBidSize := bestBid(book.Yes)
	noBid, noBidSize := bestBid(book.No)
	yesAsk := bestAsk(book.No) // yes ask derives from the no-side bid complement, per the venue's complement identity
	noAsk := bestAsk(book.Yes)

	combinedBid := yesBid + noBid
	minBidSize := yesBidSize
	if noBidSize < minBidSize {
		minBidSize = noBidSize
	}

	return models.MarketBook{
		Contract:        contract,
		BestYesBid:      yesBid,
		BestYesAsk:      yesAsk,
		BestNoBid:       noBid,
		BestNoAsk:       noAsk,
		BestYesBidSize:  yesBidSize,
		BestNoBidSize:   noBidSize,
		CombinedBid:     combinedBid,
		SpreadProfit:    100 - combinedBid,
		MinBidSize:      minBidSize,
	}
}

// bestBid returns the price and size of the first (best) bid level, or
// (0, 0) if the side is empty.
func bestBid(levels []exchange.PriceSize) (int, int) {
	if len(levels) == 0 {
		return 0, 0
	}
	return levels[0].Price, levels[0].Size
}

// bestAsk derives the complementary ask price from the opposite side's
// best bid (price_ask = 100 - price_bid_opposite_side), returning 100
// when the opposite side has no bids at all.
func bestAsk(oppositeLevels []exchange.PriceSize) int {
	if len(oppositeLevels) == 0 {
		return 100
	}
	return 100 - oppositeLevels[0].Price
}
