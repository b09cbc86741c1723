// Package ledger is the engine's durable store: pairs, legs, the PnL log
// and the event log, per the operations required by §4.1. Two
// implementations are provided: Postgres (production) and an in-memory
// store (paper/test runs, no database dependency).
package ledger

import (
	"context"
	"errors"

	"github.com/Plasticdev67/Kalshi-market-maker/internal/models"
)

// ErrNotFound is returned by point reads (get_order, ...) when the row
// does not exist.
var ErrNotFound = errors.New("ledger: not found")

// Ledger is the transactional store described in §4.1. Every mutating
// method is atomic and durable before it returns; every read method
// returns a point-in-time snapshot of committed state.
type Ledger interface {
	// InsertPair creates pair in OPEN. Returns an *engineerr.Error with
	// Kind Duplicate if pair.PairID already exists; callers treat that as
	// success (idempotent insert).
	InsertPair(ctx context.Context, pair models.Pair) error

	// InsertOrder creates a leg row. Same DUPLICATE semantics as
	// InsertPair.
	InsertOrder(ctx context.Context, pairID string, leg models.Leg) error

	// UpdatePairStatus is idempotent; repeated calls with the same status
	// succeed without error.
	UpdatePairStatus(ctx context.Context, pairID string, status models.PairStatus) error

	// UpdateOrderStatus is idempotent. filledSize is nil when the status
	// change does not affect fill quantity (e.g. CANCELLED).
	UpdateOrderStatus(ctx context.Context, orderID string, status models.LegStatus, filledSize *int) error

	// AppendPnL appends a PnL record; monotonic, never updated or deleted.
	AppendPnL(ctx context.Context, record models.PnLRecord) error

	// AppendEvent appends an audit event; monotonic.
	AppendEvent(ctx context.Context, eventType string, details map[string]any) error

	// OpenPairs returns every pair currently in OPEN, with its legs
	// populated.
	OpenPairs(ctx context.Context) ([]models.Pair, error)

	// OrdersForPair returns the legs belonging to pairID.
	OrdersForPair(ctx context.Context, pairID string) ([]models.Leg, error)

	// OpenOrders returns every leg currently OPEN, across all pairs.
	OpenOrders(ctx context.Context) ([]models.Leg, error)

	// GetOrder returns the leg row for orderID, or ErrNotFound.
	GetOrder(ctx context.Context, orderID string) (models.Leg, error)

	// GetPair returns the pair (with legs) for pairID, or ErrNotFound.
	GetPair(ctx context.Context, pairID string) (models.Pair, error)

	// PnLSummary aggregates the append-only PnL log.
	PnLSummary(ctx context.Context) (models.PnLSummary, error)

	// RecentPairs returns up to limit of the most recently created pairs.
	RecentPairs(ctx context.Context, limit int) ([]models.Pair, error)

	// RecentPnL returns up to limit of the most recent PnL records.
	RecentPnL(ctx context.Context, limit int) ([]models.PnLRecord, error)

	// RecentEvents returns up to limit of the most recent events.
	RecentEvents(ctx context.Context, limit int) ([]models.Event, error)

	// CountByStatus counts pairs in the given status.
	CountByStatus(ctx context.Context, status models.PairStatus) (int, error)

	// Close releases any underlying resources (e.g. the database pool).
	Close() error
}
