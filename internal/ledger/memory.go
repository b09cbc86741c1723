package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Plasticdev67/Kalshi-market-maker/internal/engineerr"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/models"
	"github.com/shopspring/decimal"
)

var errNoPair = errors.New("ledger: pair not found for order insert")

// pairRow is the flat record kept internally; legs are stored alongside it
// so OpenPairs/GetPair can reconstitute the tagged-sum models.Pair without
// a join.
type pairRow struct {
	pair models.Pair
	legs map[models.Side]models.Leg
}

// Memory is an in-memory Ledger. It implements the reload-before-read
// discipline of §5 trivially: every read takes a fresh lock and copies out
// of the live maps, so there is no separate "image" to reload.
type Memory struct {
	mu     sync.RWMutex
	pairs  map[string]*pairRow
	orders map[string]string // orderID -> pairID, for GetOrder/UpdateOrderStatus
	pnl    []models.PnLRecord
	events []models.Event
}

// NewMemory creates an empty in-memory Ledger.
func NewMemory() *Memory {
	return &Memory{
		pairs:  make(map[string]*pairRow),
		orders: make(map[string]string),
	}
}

func (m *Memory) InsertPair(_ context.Context, pair models.Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pairs[pair.PairID]; exists {
		return engineerr.New(engineerr.Duplicate, "ledger.insert_pair", nil)
	}
	pair.Status = models.PairOpen
	m.pairs[pair.PairID] = &pairRow{pair: pair, legs: make(map[models.Side]models.Leg)}
	return nil
}

func (m *Memory) InsertOrder(_ context.Context, pairID string, leg models.Leg) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.pairs[pairID]
	if !ok {
		return engineerr.New(engineerr.BrokenInvariant, "ledger.insert_order", errNoPair)
	}
	if _, exists := m.orders[leg.OrderID]; exists {
		return engineerr.New(engineerr.Duplicate, "ledger.insert_order", nil)
	}
	leg.PairID = pairID
	row.legs[leg.Side] = leg
	if leg.Side == models.SideYes {
		row.pair.Yes = leg
	} else {
		row.pair.No = leg
	}
	m.orders[leg.OrderID] = pairID
	return nil
}

func (m *Memory) UpdatePairStatus(_ context.Context, pairID string, status models.PairStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.pairs[pairID]
	if !ok {
		return ErrNotFound
	}
	row.pair.Status = status
	return nil
}

func (m *Memory) UpdateOrderStatus(_ context.Context, orderID string, status models.LegStatus, filledSize *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pairID, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	row := m.pairs[pairID]
	for side, leg := range row.legs {
		if leg.OrderID != orderID {
			continue
		}
		leg.Status = status
		if filledSize != nil {
			leg.FilledSize = *filledSize
		}
		row.legs[side] = leg
		if side == models.SideYes {
			row.pair.Yes = leg
		} else {
			row.pair.No = leg
		}
		return nil
	}
	return ErrNotFound
}

func (m *Memory) AppendPnL(_ context.Context, record models.PnLRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record.ID = int64(len(m.pnl) + 1)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	m.pnl = append(m.pnl, record)
	return nil
}

func (m *Memory) AppendEvent(_ context.Context, eventType string, details map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, models.Event{
		ID:        int64(len(m.events) + 1),
		EventType: eventType,
		Details:   details,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

func (m *Memory) OpenPairs(_ context.Context) ([]models.Pair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Pair
	for _, row := range m.pairs {
		if row.pair.Status == models.PairOpen {
			out = append(out, row.pair)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) OrdersForPair(_ context.Context, pairID string) ([]models.Leg, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.pairs[pairID]
	if !ok {
		return nil, ErrNotFound
	}
	var out []models.Leg
	for _, leg := range row.legs {
		out = append(out, leg)
	}
	return out, nil
}

func (m *Memory) OpenOrders(_ context.Context) ([]models.Leg, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Leg
	for _, row := range m.pairs {
		for _, leg := range row.legs {
			if leg.Status == models.LegOpen {
				out = append(out, leg)
			}
		}
	}
	return out, nil
}

func (m *Memory) GetOrder(_ context.Context, orderID string) (models.Leg, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pairID, ok := m.orders[orderID]
	if !ok {
		return models.Leg{}, ErrNotFound
	}
	row := m.pairs[pairID]
	for _, leg := range row.legs {
		if leg.OrderID == orderID {
			return leg, nil
		}
	}
	return models.Leg{}, ErrNotFound
}

func (m *Memory) GetPair(_ context.Context, pairID string) (models.Pair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.pairs[pairID]
	if !ok {
		return models.Pair{}, ErrNotFound
	}
	return row.pair, nil
}

func (m *Memory) PnLSummary(_ context.Context) (models.PnLSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := models.PnLSummary{TotalPnL: decimal.Zero, TotalFees: decimal.Zero}
	for _, rec := range m.pnl {
		summary.Count++
		summary.TotalPnL = summary.TotalPnL.Add(rec.RealizedPnL)
		summary.TotalFees = summary.TotalFees.Add(rec.Fees)
	}
	if summary.Count > 0 {
		summary.AveragePnL = summary.TotalPnL.Div(decimal.NewFromInt(int64(summary.Count)))
	}
	return summary, nil
}

func (m *Memory) RecentPairs(_ context.Context, limit int) ([]models.Pair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []models.Pair
	for _, row := range m.pairs {
		all = append(all, row.pair)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return headOf(all, limit), nil
}

func (m *Memory) RecentPnL(_ context.Context, limit int) ([]models.PnLRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.PnLRecord, len(m.pnl))
	copy(out, m.pnl)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return headOf(out, limit), nil
}

func (m *Memory) RecentEvents(_ context.Context, limit int) ([]models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Event, len(m.events))
	copy(out, m.events)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return headOf(out, limit), nil
}

func (m *Memory) CountByStatus(_ context.Context, status models.PairStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, row := range m.pairs {
		if row.pair.Status == status {
			count++
		}
	}
	return count, nil
}

func (m *Memory) Close() error { return nil }

func headOf[T any](items []T, limit int) []T {
	if limit <= 0 || limit >= len(items) {
		return items
	}
	return items[:limit]
}
