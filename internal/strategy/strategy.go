// Package strategy is the pure decision function: given a market's
// derived book quantities, decide whether a paired quote is worth
// placing and at what size.
package strategy

import (
	"github.com/Plasticdev67/Kalshi-market-maker/internal/idgen"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/models"
	"github.com/shopspring/decimal"
)

// Config is the subset of engine configuration the Strategy needs.
type Config struct {
	MinSpreadThresholdCents int
	OrderSizeDefault        int
	MaxExposurePerMarket    decimal.Decimal // dollars
}

const minSecondsUntilClose = 600
const minBidPriceCents = 10
const minCombinedBid = 85

// Evaluate runs the six rejection rules against books, in order, and
// returns a signal for each book that survives all of them. ids mints
// the signal's pair_id.
func Evaluate(books map[string]models.MarketBook, cfg Config, ids idgen.Source) []models.PairSignal {
	var out []models.PairSignal
	for _, book := range books {
		signal, ok := evaluateOne(book, cfg, ids)
		if ok {
			out = append(out, signal)
		}
	}
	return out
}

func evaluateOne(book models.MarketBook, cfg Config, ids idgen.Source) (models.PairSignal, bool) {
	// Rule 1: one-sided book.
	if book.BestYesBid <= 0 || book.BestNoBid <= 0 {
		return models.PairSignal{}, false
	}
	// Rule 2: too close to resolution.
	if book.Contract.SecondsUntilClose < minSecondsUntilClose {
		return models.PairSignal{}, false
	}
	// Rule 3: lopsided book.
	if book.BestYesBid < minBidPriceCents || book.BestNoBid < minBidPriceCents {
		return models.PairSignal{}, false
	}
	// Rule 4: too thin.
	if book.CombinedBid < minCombinedBid {
		return models.PairSignal{}, false
	}
	// Rule 5: no top-of-book liquidity.
	if book.MinBidSize <= 0 {
		return models.PairSignal{}, false
	}

	netProfitPerContract := book.SpreadProfit -
		centsOf(MakerFeeDollars(book.BestYesBid, 1)) -
		centsOf(MakerFeeDollars(book.BestNoBid, 1))

	// Rule 6: insufficient net profit.
	if netProfitPerContract < cfg.MinSpreadThresholdCents {
		return models.PairSignal{}, false
	}

	size := sizeFor(cfg, book)
	if size <= 0 {
		return models.PairSignal{}, false
	}

	return models.PairSignal{
		PairID:         ids.NewID(),
		Ticker:         book.Contract.Ticker,
		Asset:          book.Contract.Asset,
		MarketQuestion: book.Contract.Title,
		YesPrice:       book.BestYesBid,
		NoPrice:        book.BestNoBid,
		Size:           size,
		ExpectedProfit: float64(netProfitPerContract) * float64(size) / 100,
	}, true
}

// sizeFor computes min(order_size_default, floor(max_exposure*100/combined_bid), min_bid_size).
func sizeFor(cfg Config, book models.MarketBook) int {
	size := cfg.OrderSizeDefault

	if book.CombinedBid > 0 {
		maxCents := cfg.MaxExposurePerMarket.Mul(decimal.NewFromInt(100))
		exposureCap := maxCents.Div(decimal.NewFromInt(int64(book.CombinedBid))).IntPart()
		if int(exposureCap) < size {
			size = int(exposureCap)
		}
	}
	if book.MinBidSize < size {
		size = book.MinBidSize
	}
	return size
}

// centsOf rounds a dollar fee to the nearest integer cent, for the
// per-contract threshold comparison which is expressed in cents.
func centsOf(d decimal.Decimal) int {
	return int(d.Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}
