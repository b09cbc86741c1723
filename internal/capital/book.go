// Package capital tracks the engine's available and deployed balances.
// It is process-local: a crash loses it, but it is trivially rebuilt at
// startup from the Ledger's OPEN pairs (each pair's YES plus NO price
// times its order size, in cents, divided by 100).
package capital

import (
	"errors"
	"sync"

	"github.com/Plasticdev67/Kalshi-market-maker/internal/engineerr"
	"github.com/shopspring/decimal"
)

var errInsufficientBalance = errors.New("capital: insufficient available balance")

// Summary is a point-in-time snapshot returned by Book.Summary.
type Summary struct {
	Available decimal.Decimal
	Deployed  decimal.Decimal
	OpenPairs int
}

// Book is the in-memory account described by the Capital Book: an
// available balance, and a per-pair ledger of deployed amounts. Every
// dollar amount is a decimal.Decimal so a long-running process never
// accumulates float rounding error.
type Book struct {
	mu        sync.RWMutex
	available decimal.Decimal
	deployed  map[string]decimal.Decimal
	startingBalance decimal.Decimal
	realizedPnL     decimal.Decimal
}

// NewBook creates a Book with the given starting balance fully available
// and nothing deployed.
func NewBook(startingBalance decimal.Decimal) *Book {
	return &Book{
		available:       startingBalance,
		deployed:        make(map[string]decimal.Decimal),
		startingBalance: startingBalance,
	}
}

// CanAllocate reports whether amount can currently be allocated.
func (b *Book) CanAllocate(amount decimal.Decimal) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return amount.LessThanOrEqual(b.available)
}

// Allocate reserves amount against pairID. Fails with a Duplicate-kind
// error if pairID already has an allocation; the caller is expected to
// treat that as "already allocated, proceed" rather than retry.
func (b *Book) Allocate(pairID string, amount decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.deployed[pairID]; exists {
		return engineerr.New(engineerr.Duplicate, "capital.allocate", nil)
	}
	if amount.GreaterThan(b.available) {
		return engineerr.New(engineerr.BrokenInvariant, "capital.allocate", errInsufficientBalance)
	}
	b.available = b.available.Sub(amount)
	b.deployed[pairID] = amount
	return nil
}

// Release returns a pair's deployed amount plus pnl (which may be
// negative, for a one-sided loss) to available, and clears the pair's
// allocation. Releasing a pair with no allocation returns nothing
// deployed but still adds pnl to available and to realized PnL: recovery
// may call Release for a pair the book never saw in this process
// lifetime (e.g. a pair opened, then the process restarted before any
// allocation was replayed).
func (b *Book) Release(pairID string, pnl decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	deployed, ok := b.deployed[pairID]
	if !ok {
		deployed = decimal.Zero
	}
	b.available = b.available.Add(deployed).Add(pnl)
	b.realizedPnL = b.realizedPnL.Add(pnl)
	delete(b.deployed, pairID)
}

// Reallocate sets pairID's deployed amount and subtracts it from
// available, without touching realizedPnL. It is used during startup to
// seed the book from the Ledger's OPEN pairs.
func (b *Book) Reallocate(pairID string, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deployed[pairID] = amount
	b.available = b.available.Sub(amount)
}

// Summary returns the current available/deployed/open-pair-count view.
func (b *Book) Summary() Summary {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := decimal.Zero
	for _, amount := range b.deployed {
		total = total.Add(amount)
	}
	return Summary{
		Available: b.available.Round(2),
		Deployed:  total.Round(2),
		OpenPairs: len(b.deployed),
	}
}

// Invariant reports whether available + Σdeployed == starting_balance +
// Σrealized_pnl, to the cent. Intended for tests and periodic
// self-checks, not the hot path.
func (b *Book) Invariant() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := b.available
	for _, amount := range b.deployed {
		total = total.Add(amount)
	}
	expected := b.startingBalance.Add(b.realizedPnL)
	return total.Round(2).Equal(expected.Round(2))
}
