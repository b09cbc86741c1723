// Package executor places and cancels pairs against the Ledger and, in
// live mode, the exchange. Sequencing (YES before NO, rollback on NO
// failure) is sequential by design: post-only pair legs are not
// independent like the teacher's dual-exchange arbitrage legs, so there
// is no throughput benefit to placing them concurrently, and sequential
// placement keeps "what does the exchange see" unambiguous.
package executor

import (
	"context"

	"github.com/Plasticdev67/Kalshi-market-maker/internal/engineerr"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/exchange"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/idgen"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/ledger"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/models"
	"github.com/Plasticdev67/Kalshi-market-maker/pkg/retry"
	"go.uber.org/zap"
)

// Executor places and cancels pairs. In paper mode, exch is nil and
// every operation only touches the Ledger.
type Executor struct {
	ledger   ledger.Ledger
	exch     exchange.Exchange // nil in paper mode
	ids      idgen.Source
	logger   *zap.Logger
	paperMode bool
}

// New creates an Executor. Pass a nil exch for paper mode.
func New(led ledger.Ledger, exch exchange.Exchange, ids idgen.Source, logger *zap.Logger) *Executor {
	return &Executor{
		ledger:    led,
		exch:      exch,
		ids:       ids,
		logger:    logger,
		paperMode: exch == nil,
	}
}

// PlacePair inserts a pair and its two legs. In paper mode that is the
// entire operation. In live mode it submits YES, then NO; if NO fails,
// it cancels the YES acknowledgement and marks the pair CANCELLED.
func (e *Executor) PlacePair(ctx context.Context, signal models.PairSignal) error {
	pair := models.Pair{
		PairID:         signal.PairID,
		Ticker:         signal.Ticker,
		Asset:          signal.Asset,
		MarketQuestion: signal.MarketQuestion,
		TargetSpread:   100 - signal.YesPrice - signal.NoPrice,
		Status:         models.PairOpen,
	}
	if err := e.ledger.InsertPair(ctx, pair); err != nil && !engineerr.Is(err, engineerr.Duplicate) {
		return err
	}

	yesLeg := models.Leg{
		OrderID:    e.ids.NewID(),
		PairID:     signal.PairID,
		Side:       models.SideYes,
		PriceCents: signal.YesPrice,
		Size:       signal.Size,
		Status:     models.LegOpen,
	}
	noLeg := models.Leg{
		OrderID:    e.ids.NewID(),
		PairID:     signal.PairID,
		Side:       models.SideNo,
		PriceCents: signal.NoPrice,
		Size:       signal.Size,
		Status:     models.LegOpen,
	}

	if e.paperMode {
		if err := e.ledger.InsertOrder(ctx, signal.PairID, yesLeg); err != nil && !engineerr.Is(err, engineerr.Duplicate) {
			return err
		}
		if err := e.ledger.InsertOrder(ctx, signal.PairID, noLeg); err != nil && !engineerr.Is(err, engineerr.Duplicate) {
			return err
		}
		return nil
	}

	yesResult, err := e.exch.PlaceOrder(ctx, exchange.PlaceOrderRequest{
		Ticker: signal.Ticker, Side: exchange.SideYes, Count: signal.Size, PriceCents: signal.YesPrice,
	})
	if err != nil {
		_ = e.ledger.UpdatePairStatus(ctx, signal.PairID, models.PairCancelled)
		return err
	}
	yesLeg.ExchangeOrderID = yesResult.OrderID
	if err := e.ledger.InsertOrder(ctx, signal.PairID, yesLeg); err != nil && !engineerr.Is(err, engineerr.Duplicate) {
		return err
	}

	noResult, err := e.exch.PlaceOrder(ctx, exchange.PlaceOrderRequest{
		Ticker: signal.Ticker, Side: exchange.SideNo, Count: signal.Size, PriceCents: signal.NoPrice,
	})
	if err != nil {
		if cancelErr := e.cancelExchangeOrder(ctx, yesResult.OrderID); cancelErr != nil && e.logger != nil {
			e.logger.Error("rollback of YES leg failed after NO placement error",
				zap.String("pair_id", signal.PairID), zap.Error(cancelErr))
		}
		_ = e.ledger.UpdateOrderStatus(ctx, yesLeg.OrderID, models.LegCancelled, nil)
		_ = e.ledger.UpdatePairStatus(ctx, signal.PairID, models.PairCancelled)
		return err
	}
	noLeg.ExchangeOrderID = noResult.OrderID
	if err := e.ledger.InsertOrder(ctx, signal.PairID, noLeg); err != nil && !engineerr.Is(err, engineerr.Duplicate) {
		return err
	}

	return nil
}

// CancelOrder cancels a single leg. In paper mode it is marked
// CANCELLED directly; in live mode the exchange cancel is retried per
// the fixed-interval cancel policy, treating 404 as success.
func (e *Executor) CancelOrder(ctx context.Context, orderID string) error {
	leg, err := e.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !leg.Open() {
		return nil
	}

	if !e.paperMode && leg.ExchangeOrderID != "" {
		if err := e.cancelExchangeOrder(ctx, leg.ExchangeOrderID); err != nil {
			return err
		}
	}
	return e.ledger.UpdateOrderStatus(ctx, orderID, models.LegCancelled, nil)
}

func (e *Executor) cancelExchangeOrder(ctx context.Context, exchangeOrderID string) error {
	return retry.Do(ctx, func() error {
		err := e.exch.CancelOrder(ctx, exchangeOrderID)
		var notFound *exchange.ErrNotFound
		if errorsAs(err, &notFound) {
			return nil
		}
		return err
	}, retry.CancelConfig())
}

// errorsAs is a tiny indirection so this file keeps its error handling
// local instead of importing "errors" for a single call site.
func errorsAs(err error, target **exchange.ErrNotFound) bool {
	e, ok := err.(*exchange.ErrNotFound)
	if !ok {
		return false
	}
	*target = e
	return true
}

// CancelAllOpen cancels every leg the Ledger reports as OPEN, returning
// the count successfully cancelled.
func (e *Executor) CancelAllOpen(ctx context.Context) int {
	legs, err := e.ledger.OpenOrders(ctx)
	if err != nil {
		if e.logger != nil {
			e.logger.Error("cancel_all_open: failed to list open orders", zap.Error(err))
		}
		return 0
	}

	count := 0
	for _, leg := range legs {
		if err := e.CancelOrder(ctx, leg.OrderID); err != nil {
			if e.logger != nil {
				e.logger.Warn("cancel_all_open: failed to cancel order",
					zap.String("order_id", leg.OrderID), zap.Error(err))
			}
			continue
		}
		count++
	}
	return count
}
