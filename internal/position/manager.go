// Package position implements the central state machine: simulating
// paper fills, completing pairs, handling one-sided fills and
// resolution deadlines, and halting the engine after too many
// consecutive one-sided fills.
package position

import (
	"context"
	"sync"
	"time"

	"github.com/Plasticdev67/Kalshi-market-maker/internal/capital"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/executor"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/ledger"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/metrics"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/models"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/strategy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config is the subset of engine configuration the Manager needs.
type Config struct {
	PairTimeout             time.Duration
	CancelDeadline          time.Duration
	MaxOneSidedFillsBeforeHalt int
	PaperTrade              bool
}

// Manager is the position state machine. consecutiveOneSided and halted
// are the two in-memory fields named by the design: once halted, the
// Manager performs no further actions except emitting the halt event.
type Manager struct {
	ledger ledger.Ledger
	book   *capital.Book
	exec   *executor.Executor
	fills  FillSource
	logger *zap.Logger
	cfg    Config

	mu                  sync.Mutex
	consecutiveOneSided int
	halted              bool
}

// New creates a Manager.
func New(led ledger.Ledger, book *capital.Book, exec *executor.Executor, fills FillSource, logger *zap.Logger, cfg Config) *Manager {
	return &Manager{
		ledger: led,
		book:   book,
		exec:   exec,
		fills:  fills,
		logger: logger,
		cfg:    cfg,
	}
}

// Halted reports whether the Manager has halted trading.
func (m *Manager) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

// CheckPairs walks every OPEN pair, simulating fills (paper mode),
// completing pairs with both legs filled, cancelling pairs at the
// resolution deadline, and handling one-sided fills past the pair
// timeout. now is injected so tests control timing precisely.
func (m *Manager) CheckPairs(ctx context.Context, booksByTicker map[string]models.MarketBook, now time.Time) error {
	pairs, err := m.ledger.OpenPairs(ctx)
	if err != nil {
		return err
	}

	for _, pair := range pairs {
		if m.Halted() {
			break
		}
		if err := m.checkOne(ctx, pair, booksByTicker, now); err != nil {
			if m.logger != nil {
				m.logger.Error("check_pairs: error handling pair",
					zap.String("pair_id", pair.PairID), zap.Error(err))
			}
			_ = m.ledger.AppendEvent(ctx, "pair_check_error", map[string]any{
				"pair_id": pair.PairID,
				"error":   err.Error(),
			})
		}
	}
	return nil
}

func (m *Manager) checkOne(ctx context.Context, pair models.Pair, booksByTicker map[string]models.MarketBook, now time.Time) error {
	book, haveBook := booksByTicker[pair.Ticker]

	if m.cfg.PaperTrade && haveBook {
		if err := m.simulateFills(ctx, pair, book); err != nil {
			return err
		}
		refreshed, err := m.ledger.GetPair(ctx, pair.PairID)
		if err != nil {
			return err
		}
		pair = refreshed
	}

	if pair.BothFilled() {
		return m.completePair(ctx, pair)
	}

	if haveBook && book.Contract.SecondsUntilClose <= int64(m.cfg.CancelDeadline.Seconds()) {
		return m.cancelAtDeadline(ctx, pair)
	}

	if filled, ok := pair.FilledLeg(); ok {
		if now.Sub(pair.CreatedAt) >= m.cfg.PairTimeout {
			return m.handleOneSidedFill(ctx, pair, filled)
		}
	}
	return nil
}

// simulateFills implements §4.7.1: for each OPEN leg with a known
// best-ask/best-bid, compute a fill probability and draw against it.
func (m *Manager) simulateFills(ctx context.Context, pair models.Pair, book models.MarketBook) error {
	for _, leg := range pair.Legs() {
		if !leg.Open() {
			continue
		}

		var bestAsk, bestBid int
		if leg.Side == models.SideYes {
			bestAsk, bestBid = book.BestYesAsk, book.BestYesBid
		} else {
			bestAsk, bestBid = book.BestNoAsk, book.BestNoBid
		}

		prob := fillProbability(leg.PriceCents, bestAsk, bestBid)
		if m.fills.Draw() >= prob {
			continue
		}

		filledSize := leg.Size
		if err := m.ledger.UpdateOrderStatus(ctx, leg.OrderID, models.LegFilled, &filledSize); err != nil {
			return err
		}
	}
	return nil
}

func fillProbability(legPrice, bestAsk, bestBid int) float64 {
	if bestAsk > 0 && bestAsk <= legPrice {
		return 1
	}
	if bestBid > 0 && legPrice >= bestBid {
		spread := 10
		if bestAsk > 0 {
			spread = bestAsk - bestBid
		}
		switch {
		case spread <= 2:
			return 0.35
		case spread <= 5:
			return 0.25
		default:
			return 0.15
		}
	}
	return 0
}

// completePair implements §4.7.2.
func (m *Manager) completePair(ctx context.Context, pair models.Pair) error {
	yes, no := pair.Yes, pair.No

	fees := strategy.MakerFeeDollars(yes.PriceCents, yes.Size).Add(strategy.MakerFeeDollars(no.PriceCents, no.Size))
	gross := decimal.NewFromInt(int64(100 - yes.PriceCents - no.PriceCents)).
		Mul(decimal.NewFromInt(int64(yes.Size))).Div(decimal.NewFromInt(100))
	netPnL := gross.Sub(fees)

	if err := m.ledger.UpdatePairStatus(ctx, pair.PairID, models.PairFilled); err != nil {
		return err
	}
	if err := m.ledger.AppendPnL(ctx, models.PnLRecord{
		PairID:       pair.PairID,
		Ticker:       pair.Ticker,
		YesFillPrice: yes.PriceCents,
		NoFillPrice:  no.PriceCents,
		Size:         yes.Size,
		CombinedCost: decimal.NewFromInt(int64(yes.PriceCents + no.PriceCents)),
		GrossProfit:  gross,
		Fees:         fees,
		RealizedPnL:  netPnL,
	}); err != nil {
		return err
	}
	if err := m.ledger.AppendEvent(ctx, "pair_complete", map[string]any{
		"pair_id":      pair.PairID,
		"ticker":       pair.Ticker,
		"realized_pnl": netPnL.String(),
	}); err != nil {
		return err
	}

	m.book.Release(pair.PairID, netPnL)

	m.mu.Lock()
	m.consecutiveOneSided = 0
	m.mu.Unlock()

	metrics.PairsCompletedTotal.WithLabelValues("filled").Inc()
	if pnl := mustFloat(netPnL); pnl >= 0 {
		metrics.RealizedPnLDollars.Add(pnl)
	}
	metrics.FeesPaidDollars.Add(mustFloat(fees))
	return nil
}

// cancelAtDeadline implements §4.7 step 4, including the resolved
// decision to book a one-sided loss rather than a zero-PnL release when
// exactly one leg is already FILLED.
func (m *Manager) cancelAtDeadline(ctx context.Context, pair models.Pair) error {
	if filled, ok := pair.FilledLeg(); ok {
		if open, ok := pair.OpenLeg(); ok {
			if err := m.exec.CancelOrder(ctx, open.OrderID); err != nil {
				return err
			}
		}
		return m.releaseOneSidedLoss(ctx, pair, filled, "resolution_deadline")
	}

	for _, leg := range pair.Legs() {
		if leg.Open() {
			if err := m.exec.CancelOrder(ctx, leg.OrderID); err != nil {
				return err
			}
		}
	}
	if err := m.ledger.UpdatePairStatus(ctx, pair.PairID, models.PairCancelled); err != nil {
		return err
	}
	if err := m.ledger.AppendEvent(ctx, "pair_cancelled", map[string]any{
		"pair_id": pair.PairID,
		"reason":  "resolution_deadline",
	}); err != nil {
		return err
	}
	m.book.Release(pair.PairID, decimal.Zero)
	metrics.PairsCompletedTotal.WithLabelValues("cancelled").Inc()
	return nil
}

// handleOneSidedFill implements §4.7.3.
func (m *Manager) handleOneSidedFill(ctx context.Context, pair models.Pair, filled models.Leg) error {
	if open, ok := pair.OpenLeg(); ok {
		if err := m.exec.CancelOrder(ctx, open.OrderID); err != nil {
			return err
		}
	}
	return m.releaseOneSidedLoss(ctx, pair, filled, "pair_timeout")
}

// releaseOneSidedLoss is the shared accounting step behind the
// one-sided-fill handler (§4.7.3 step 4), the deadline-while-one-leg-
// filled decision, and startup recovery finding a FILLED/OPEN pair: the
// pair is marked PARTIAL, the filled leg's full cost is booked as a
// loss, and consecutive_one_sided is tracked toward the halt threshold.
func (m *Manager) releaseOneSidedLoss(ctx context.Context, pair models.Pair, filled models.Leg, reason string) error {
	if err := m.ledger.UpdatePairStatus(ctx, pair.PairID, models.PairPartial); err != nil {
		return err
	}

	exposure := decimal.NewFromInt(int64(filled.PriceCents)).
		Mul(decimal.NewFromInt(int64(filled.Size))).Div(decimal.NewFromInt(100))
	m.book.Release(pair.PairID, exposure.Neg())

	if err := m.ledger.AppendEvent(ctx, "one_sided_fill", map[string]any{
		"pair_id":  pair.PairID,
		"reason":   reason,
		"exposure": exposure.String(),
	}); err != nil {
		return err
	}

	metrics.OneSidedFillsTotal.Inc()
	metrics.PairsCompletedTotal.WithLabelValues("partial_" + reasonOutcome(reason)).Inc()

	m.mu.Lock()
	m.consecutiveOneSided++
	shouldHalt := m.consecutiveOneSided >= m.cfg.MaxOneSidedFillsBeforeHalt
	if shouldHalt {
		m.halted = true
	}
	m.mu.Unlock()

	if shouldHalt {
		_ = m.ledger.AppendEvent(ctx, "trading_halted", map[string]any{
			"consecutive_one_sided": m.consecutiveOneSided,
		})
		metrics.Halted.Set(1)
		m.exec.CancelAllOpen(ctx)
	}
	return nil
}

// Recover implements startup state recovery. Every OPEN pair with
// neither leg FILLED is cancelled outright. A pair with one leg FILLED
// and the other OPEN has the OPEN leg cancelled, is transitioned to
// PARTIAL, and has its filled leg's exposure booked as a one-sided
// loss — rather than discarding it via a blanket cancel. A pair with
// both legs FILLED is completed exactly as in normal operation.
func (m *Manager) Recover(ctx context.Context) error {
	pairs, err := m.ledger.OpenPairs(ctx)
	if err != nil {
		return err
	}

	for _, pair := range pairs {
		switch {
		case pair.BothFilled():
			if err := m.completePair(ctx, pair); err != nil {
				return err
			}
		case pair.OneSidedFilled():
			filled, _ := pair.FilledLeg()
			if open, ok := pair.OpenLeg(); ok {
				if err := m.exec.CancelOrder(ctx, open.OrderID); err != nil {
					return err
				}
			}
			if err := m.releaseOneSidedLoss(ctx, pair, filled, "startup_recovery"); err != nil {
				return err
			}
		default:
			for _, leg := range pair.Legs() {
				if leg.Open() {
					if err := m.exec.CancelOrder(ctx, leg.OrderID); err != nil {
						return err
					}
				}
			}
			if err := m.ledger.UpdatePairStatus(ctx, pair.PairID, models.PairCancelled); err != nil {
				return err
			}
			m.book.Release(pair.PairID, decimal.Zero)
		}
	}
	return nil
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// reasonOutcome maps a one-sided-loss reason to the PairsCompletedTotal
// outcome label suffix.
func reasonOutcome(reason string) string {
	switch reason {
	case "pair_timeout":
		return "timeout"
	case "resolution_deadline":
		return "deadline"
	case "startup_recovery":
		return "recovery"
	default:
		return reason
	}
}
