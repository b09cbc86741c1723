package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/Plasticdev67/Kalshi-market-maker/internal/engineerr"
	"github.com/Plasticdev67/Kalshi-market-maker/internal/models"
	"github.com/shopspring/decimal"
)

// Schema is the DDL for the four relations of §6. NewPostgres applies it
// on construction, so no separate migration tool is needed.
const Schema = `
CREATE TABLE IF NOT EXISTS pairs (
	pair_id         TEXT PRIMARY KEY,
	ticker          TEXT NOT NULL,
	asset           TEXT NOT NULL,
	target_spread   INTEGER NOT NULL,
	status          TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	market_question TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS orders (
	order_id          TEXT PRIMARY KEY,
	pair_id           TEXT NOT NULL REFERENCES pairs(pair_id),
	ticker            TEXT NOT NULL,
	side              TEXT NOT NULL,
	price             INTEGER NOT NULL,
	size              INTEGER NOT NULL,
	status            TEXT NOT NULL,
	exchange_order_id TEXT NOT NULL DEFAULT '',
	filled_size       INTEGER NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pnl_log (
	id              BIGSERIAL PRIMARY KEY,
	pair_id         TEXT NOT NULL,
	ticker          TEXT NOT NULL,
	yes_fill_price  INTEGER NOT NULL,
	no_fill_price   INTEGER NOT NULL,
	size            INTEGER NOT NULL,
	combined_cost   NUMERIC(12,4) NOT NULL,
	gross_profit    NUMERIC(12,4) NOT NULL,
	fees            NUMERIC(12,4) NOT NULL,
	realized_pnl    NUMERIC(12,4) NOT NULL,
	timestamp       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id           BIGSERIAL PRIMARY KEY,
	event_type   TEXT NOT NULL,
	details_json TEXT NOT NULL,
	timestamp    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_pair_id ON orders(pair_id);
CREATE INDEX IF NOT EXISTS idx_pairs_status ON pairs(status);
`

// Postgres is the production Ledger, backed by database/sql + lib/pq.
// Every write below issues a single statement that Postgres commits
// synchronously, satisfying the "durable before return" requirement
// without an explicit flush step. Reads may issue several queries.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an already-open db (which must already be reachable;
// cmd/engine pings it before constructing this) and ensures the schema
// exists.
func NewPostgres(db *sql.DB) (*Postgres, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, engineerr.New(engineerr.Fatal, "ledger.schema", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) InsertPair(ctx context.Context, pair models.Pair) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO pairs (pair_id, ticker, asset, target_spread, status, created_at, market_question)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		pair.PairID, pair.Ticker, pair.Asset, pair.TargetSpread, models.PairOpen, pair.CreatedAt, pair.MarketQuestion)
	if err != nil {
		if isUniqueViolation(err) {
			return engineerr.New(engineerr.Duplicate, "ledger.insert_pair", err)
		}
		return engineerr.New(engineerr.TransientIO, "ledger.insert_pair", err)
	}
	return nil
}

func (p *Postgres) InsertOrder(ctx context.Context, pairID string, leg models.Leg) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO orders (order_id, pair_id, ticker, side, price, size, status, exchange_order_id, filled_size, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		leg.OrderID, pairID, "", leg.Side, leg.PriceCents, leg.Size, leg.Status, leg.ExchangeOrderID, leg.FilledSize, leg.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return engineerr.New(engineerr.Duplicate, "ledger.insert_order", err)
		}
		return engineerr.New(engineerr.TransientIO, "ledger.insert_order", err)
	}
	return nil
}

func (p *Postgres) UpdatePairStatus(ctx context.Context, pairID string, status models.PairStatus) error {
	_, err := p.db.ExecContext(ctx, `UPDATE pairs SET status=$1 WHERE pair_id=$2`, status, pairID)
	if err != nil {
		return engineerr.New(engineerr.TransientIO, "ledger.update_pair_status", err)
	}
	return nil
}

func (p *Postgres) UpdateOrderStatus(ctx context.Context, orderID string, status models.LegStatus, filledSize *int) error {
	var err error
	if filledSize != nil {
		_, err = p.db.ExecContext(ctx, `UPDATE orders SET status=$1, filled_size=$2 WHERE order_id=$3`, status, *filledSize, orderID)
	} else {
		_, err = p.db.ExecContext(ctx, `UPDATE orders SET status=$1 WHERE order_id=$2`, status, orderID)
	}
	if err != nil {
		return engineerr.New(engineerr.TransientIO, "ledger.update_order_status", err)
	}
	return nil
}

func (p *Postgres) AppendPnL(ctx context.Context, r models.PnLRecord) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO pnl_log (pair_id, ticker, yes_fill_price, no_fill_price, size, combined_cost, gross_profit, fees, realized_pnl, timestamp)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		r.PairID, r.Ticker, r.YesFillPrice, r.NoFillPrice, r.Size,
		r.CombinedCost.StringFixed(4), r.GrossProfit.StringFixed(4), r.Fees.StringFixed(4), r.RealizedPnL.StringFixed(4), r.Timestamp)
	if err != nil {
		return engineerr.New(engineerr.TransientIO, "ledger.append_pnl", err)
	}
	return nil
}

func (p *Postgres) AppendEvent(ctx context.Context, eventType string, details map[string]any) error {
	blob, err := json.Marshal(details)
	if err != nil {
		return engineerr.New(engineerr.BrokenInvariant, "ledger.append_event", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO events (event_type, details_json, timestamp) VALUES ($1,$2,$3)`,
		eventType, string(blob), time.Now().UTC())
	if err != nil {
		return engineerr.New(engineerr.TransientIO, "ledger.append_event", err)
	}
	return nil
}

func (p *Postgres) OpenPairs(ctx context.Context) ([]models.Pair, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT pair_id FROM pairs WHERE status=$1 ORDER BY created_at`, models.PairOpen)
	if err != nil {
		return nil, engineerr.New(engineerr.TransientIO, "ledger.open_pairs", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, engineerr.New(engineerr.TransientIO, "ledger.open_pairs", err)
		}
		ids = append(ids, id)
	}

	out := make([]models.Pair, 0, len(ids))
	for _, id := range ids {
		pair, err := p.GetPair(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, pair)
	}
	return out, nil
}

func (p *Postgres) OrdersForPair(ctx context.Context, pairID string) ([]models.Leg, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT order_id, pair_id, side, price, size, status, filled_size, exchange_order_id, created_at
		 FROM orders WHERE pair_id=$1`, pairID)
	if err != nil {
		return nil, engineerr.New(engineerr.TransientIO, "ledger.orders_for_pair", err)
	}
	defer rows.Close()
	return scanLegs(rows)
}

func (p *Postgres) OpenOrders(ctx context.Context) ([]models.Leg, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT order_id, pair_id, side, price, size, status, filled_size, exchange_order_id, created_at
		 FROM orders WHERE status=$1`, models.LegOpen)
	if err != nil {
		return nil, engineerr.New(engineerr.TransientIO, "ledger.open_orders", err)
	}
	defer rows.Close()
	return scanLegs(rows)
}

func (p *Postgres) GetOrder(ctx context.Context, orderID string) (models.Leg, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT order_id, pair_id, side, price, size, status, filled_size, exchange_order_id, created_at
		 FROM orders WHERE order_id=$1`, orderID)
	leg, err := scanLeg(row)
	if err == sql.ErrNoRows {
		return models.Leg{}, ErrNotFound
	}
	if err != nil {
		return models.Leg{}, engineerr.New(engineerr.TransientIO, "ledger.get_order", err)
	}
	return leg, nil
}

func (p *Postgres) GetPair(ctx context.Context, pairID string) (models.Pair, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT pair_id, ticker, asset, target_spread, status, created_at, market_question
		 FROM pairs WHERE pair_id=$1`, pairID)

	var pair models.Pair
	var status string
	if err := row.Scan(&pair.PairID, &pair.Ticker, &pair.Asset, &pair.TargetSpread, &status, &pair.CreatedAt, &pair.MarketQuestion); err != nil {
		if err == sql.ErrNoRows {
			return models.Pair{}, ErrNotFound
		}
		return models.Pair{}, engineerr.New(engineerr.TransientIO, "ledger.get_pair", err)
	}
	pair.Status = models.PairStatus(status)

	legs, err := p.OrdersForPair(ctx, pairID)
	if err != nil {
		return models.Pair{}, err
	}
	for _, leg := range legs {
		if leg.Side == models.SideYes {
			pair.Yes = leg
		} else {
			pair.No = leg
		}
	}
	return pair, nil
}

func (p *Postgres) PnLSummary(ctx context.Context) (models.PnLSummary, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(realized_pnl),0), COALESCE(SUM(fees),0) FROM pnl_log`)

	var count int
	var totalPnL, totalFees string
	if err := row.Scan(&count, &totalPnL, &totalFees); err != nil {
		return models.PnLSummary{}, engineerr.New(engineerr.TransientIO, "ledger.pnl_summary", err)
	}

	summary := models.PnLSummary{
		Count:     count,
		TotalPnL:  decimal.RequireFromString(totalPnL),
		TotalFees: decimal.RequireFromString(totalFees),
	}
	if count > 0 {
		summary.AveragePnL = summary.TotalPnL.Div(decimal.NewFromInt(int64(count)))
	}
	return summary, nil
}

func (p *Postgres) RecentPairs(ctx context.Context, limit int) ([]models.Pair, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT pair_id FROM pairs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, engineerr.New(engineerr.TransientIO, "ledger.recent_pairs", err)
	}
	defer rows.Close()

	var out []models.Pair
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		if pair, err := p.GetPair(ctx, id); err == nil {
			out = append(out, pair)
		}
	}
	return out, nil
}

func (p *Postgres) RecentPnL(ctx context.Context, limit int) ([]models.PnLRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, pair_id, ticker, yes_fill_price, no_fill_price, size, combined_cost, gross_profit, fees, realized_pnl, timestamp
		 FROM pnl_log ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, engineerr.New(engineerr.TransientIO, "ledger.recent_pnl", err)
	}
	defer rows.Close()

	var out []models.PnLRecord
	for rows.Next() {
		var r models.PnLRecord
		var combined, gross, fees, realized string
		if err := rows.Scan(&r.ID, &r.PairID, &r.Ticker, &r.YesFillPrice, &r.NoFillPrice, &r.Size,
			&combined, &gross, &fees, &realized, &r.Timestamp); err != nil {
			continue
		}
		r.CombinedCost = decimal.RequireFromString(combined)
		r.GrossProfit = decimal.RequireFromString(gross)
		r.Fees = decimal.RequireFromString(fees)
		r.RealizedPnL = decimal.RequireFromString(realized)
		out = append(out, r)
	}
	return out, nil
}

func (p *Postgres) RecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, event_type, details_json, timestamp FROM events ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, engineerr.New(engineerr.TransientIO, "ledger.recent_events", err)
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var e models.Event
		var blob string
		if err := rows.Scan(&e.ID, &e.EventType, &blob, &e.Timestamp); err != nil {
			continue
		}
		_ = json.Unmarshal([]byte(blob), &e.Details)
		out = append(out, e)
	}
	return out, nil
}

func (p *Postgres) CountByStatus(ctx context.Context, status models.PairStatus) (int, error) {
	row := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pairs WHERE status=$1`, status)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, engineerr.New(engineerr.TransientIO, "ledger.count_by_status", err)
	}
	return count, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLeg(row rowScanner) (models.Leg, error) {
	var leg models.Leg
	var side, status string
	if err := row.Scan(&leg.OrderID, &leg.PairID, &side, &leg.PriceCents, &leg.Size, &status, &leg.FilledSize, &leg.ExchangeOrderID, &leg.CreatedAt); err != nil {
		return models.Leg{}, err
	}
	leg.Side = models.Side(side)
	leg.Status = models.LegStatus(status)
	return leg, nil
}

func scanLegs(rows *sql.Rows) ([]models.Leg, error) {
	var out []models.Leg
	for rows.Next() {
		leg, err := scanLeg(rows)
		if err != nil {
			return nil, engineerr.New(engineerr.TransientIO, "ledger.scan_legs", err)
		}
		out = append(out, leg)
	}
	return out, nil
}

// isUniqueViolation mirrors the teacher's string/code match against a
// Postgres unique-constraint violation (error code 23505).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "23505")
}
