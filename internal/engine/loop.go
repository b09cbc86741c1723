// Package engine drives the scan → fetch → manage → evaluate → place
// cycle that ties every other component together, plus startup recovery
// and graceful shutdown.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Plasticdev67/Kalshi-market-maker/internal/bookfetcher"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/capital"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/executor"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/idgen"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/ledger"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/metrics"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/models"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/position"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/scanner"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/strategy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxSleepTick bounds how long a single sleep iteration may block, so a
// shutdown signal is observed within this latency per §5.
const maxSleepTick = 500 * time.Millisecond

// Config is the subset of engine configuration the Loop needs directly;
// everything else is already captured in the component values passed to
// New.
type Config struct {
	ScanInterval   time.Duration
	TradingEnabled bool
}

// Loop orchestrates one cycle across every other component. It is the
// only place in the repository that sequences them.
type Loop struct {
	scanner     *scanner.Scanner
	fetcher     *bookfetcher.Fetcher
	manager     *position.Manager
	executor    *executor.Executor
	book        *capital.Book
	ledger      ledger.Ledger
	strategyCfg strategy.Config
	ids         idgen.Source
	logger      *zap.Logger
	cfg         Config

	mu             sync.Mutex
	tradingEnabled bool
	cycleCount     int
}

// New creates a Loop. Every dependency is already wired by the caller
// (cmd/engine), per the design note preferring explicit construction over
// a process-wide global.
func New(
	sc *scanner.Scanner,
	fetcher *bookfetcher.Fetcher,
	manager *position.Manager,
	exec *executor.Executor,
	book *capital.Book,
	led ledger.Ledger,
	strategyCfg strategy.Config,
	ids idgen.Source,
	logger *zap.Logger,
	cfg Config,
) *Loop {
	return &Loop{
		scanner:        sc,
		fetcher:        fetcher,
		manager:        manager,
		executor:       exec,
		book:           book,
		ledger:         led,
		strategyCfg:    strategyCfg,
		ids:            ids,
		logger:         logger,
		cfg:            cfg,
		tradingEnabled: cfg.TradingEnabled,
	}
}

// Run performs startup recovery, then runs cycles until ctx is cancelled.
// An unhandled error from a cycle disables trading, cancels every open
// order, and is returned to the caller.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.manager.Recover(ctx); err != nil {
		return fmt.Errorf("engine: startup recovery: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return l.shutdown()
		default:
		}

		if err := l.runCycle(ctx); err != nil {
			l.logger.Error("cycle failed, disabling trading and cancelling open orders", zap.Error(err))
			l.disableTrading()
			l.executor.CancelAllOpen(context.Background())
			return err
		}

		if !l.sleep(ctx, l.cfg.ScanInterval) {
			return l.shutdown()
		}
	}
}

// sleep blocks for d, checking ctx in maxSleepTick increments so shutdown
// latency is bounded. Returns false if ctx was cancelled first.
func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		tick := remaining
		if tick > maxSleepTick {
			tick = maxSleepTick
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(tick):
		}
	}
}

func (l *Loop) shutdown() error {
	l.executor.CancelAllOpen(context.Background())
	return l.ledger.Close()
}

func (l *Loop) TradingEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tradingEnabled
}

func (l *Loop) disableTrading() {
	l.mu.Lock()
	l.tradingEnabled = false
	l.mu.Unlock()
}

// runCycle executes one scan → fetch → manage → evaluate → place pass.
func (l *Loop) runCycle(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.CycleLatency.Observe(float64(time.Since(start).Milliseconds()))
		metrics.CyclesTotal.Inc()
	}()

	now := time.Now()
	contracts, err := l.scanner.Scan(ctx, now)
	if err != nil {
		l.logger.Warn("scan failed, skipping this cycle", zap.Error(err))
		return l.afterCycle(ctx)
	}
	if len(contracts) == 0 {
		return l.afterCycle(ctx)
	}

	nearest := nearestPerAsset(contracts)

	openPairs, err := l.ledger.OpenPairs(ctx)
	if err != nil {
		return err
	}

	merged := make(map[string]models.Contract, len(nearest)+len(openPairs))
	for _, c := range nearest {
		merged[c.Ticker] = c
	}
	openTickers := make(map[string]bool, len(openPairs))
	for _, p := range openPairs {
		openTickers[p.Ticker] = true
		if _, ok := merged[p.Ticker]; !ok {
			merged[p.Ticker] = models.Contract{Ticker: p.Ticker, Asset: p.Asset}
		}
	}

	mergedSlice := make([]models.Contract, 0, len(merged))
	for _, c := range merged {
		mergedSlice = append(mergedSlice, c)
	}
	books := l.fetcher.Fetch(ctx, mergedSlice)

	if err := l.manager.CheckPairs(ctx, books, now); err != nil {
		return err
	}

	if l.TradingEnabled() && !l.manager.Halted() {
		l.evaluateAndPlace(ctx, nearest, books, openTickers)
	}

	l.updateCapitalMetrics()
	return l.afterCycle(ctx)
}

func (l *Loop) evaluateAndPlace(ctx context.Context, nearest []models.Contract, books map[string]models.MarketBook, openTickers map[string]bool) {
	nearestBooks := make(map[string]models.MarketBook, len(nearest))
	for _, c := range nearest {
		if b, ok := books[c.Ticker]; ok {
			nearestBooks[c.Ticker] = b
		}
	}

	signals := strategy.Evaluate(nearestBooks, l.strategyCfg, l.ids)
	for _, signal := range signals {
		if openTickers[signal.Ticker] {
			continue
		}

		cost := decimal.NewFromInt(int64(signal.YesPrice + signal.NoPrice)).
			Mul(decimal.NewFromInt(int64(signal.Size))).Div(decimal.NewFromInt(100))
		if !l.book.CanAllocate(cost) {
			continue
		}
		if err := l.book.Allocate(signal.PairID, cost); err != nil {
			l.logger.Warn("allocate failed despite passing can_allocate",
				zap.String("pair_id", signal.PairID), zap.Error(err))
			continue
		}
		if err := l.executor.PlacePair(ctx, signal); err != nil {
			l.logger.Error("place_pair failed, releasing allocation",
				zap.String("pair_id", signal.PairID), zap.Error(err))
			l.book.Release(signal.PairID, decimal.Zero)
			continue
		}
		openTickers[signal.Ticker] = true
	}
}

func (l *Loop) updateCapitalMetrics() {
	summary := l.book.Summary()
	avail, _ := summary.Available.Float64()
	deployed, _ := summary.Deployed.Float64()
	metrics.CapitalAvailable.Set(avail)
	metrics.CapitalDeployed.Set(deployed)
}

// afterCycle increments the cycle counter and logs a summary every 10th
// cycle (and the first).
func (l *Loop) afterCycle(ctx context.Context) error {
	l.mu.Lock()
	l.cycleCount++
	shouldLog := l.cycleCount%10 == 1
	l.mu.Unlock()

	if shouldLog {
		l.logSummary(ctx)
	}
	return nil
}

func (l *Loop) logSummary(ctx context.Context) {
	summary := l.book.Summary()
	pnl, err := l.ledger.PnLSummary(ctx)
	if err != nil {
		l.logger.Warn("cycle summary: failed to read pnl summary", zap.Error(err))
		return
	}
	openCount, _ := l.ledger.CountByStatus(ctx, models.PairOpen)
	metrics.PairsByStatus.WithLabelValues("open").Set(float64(openCount))

	l.logger.Info("cycle summary",
		zap.Int("open_pairs", openCount),
		zap.String("available", summary.Available.String()),
		zap.String("deployed", summary.Deployed.String()),
		zap.Int("completed_pairs", pnl.Count),
		zap.String("realized_pnl", pnl.TotalPnL.String()),
		zap.Bool("halted", l.manager.Halted()),
		zap.Bool("trading_enabled", l.TradingEnabled()),
	)
}

// nearestPerAsset sorts contracts ascending by seconds_until_close and
// picks at most one (the nearest to resolution) per asset.
func nearestPerAsset(contracts []models.Contract) []models.Contract {
	sorted := make([]models.Contract, len(contracts))
	copy(sorted, contracts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SecondsUntilClose < sorted[j].SecondsUntilClose })

	seen := make(map[string]bool, len(sorted))
	var out []models.Contract
	for _, c := range sorted {
		if seen[c.Asset] {
			continue
		}
		seen[c.Asset] = true
		out = append(out, c)
	}
	return out
}
