// Package models defines the domain types shared by every engine component:
// pairs, legs, PnL records and the append-only event log.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is which half of a binary contract a leg quotes.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// LegStatus is the lifecycle state of a single order.
type LegStatus string

const (
	LegOpen      LegStatus = "OPEN"
	LegFilled    LegStatus = "FILLED"
	LegCancelled LegStatus = "CANCELLED"
)

// PairStatus is the lifecycle state of a pair as a whole.
type PairStatus string

const (
	PairOpen      PairStatus = "OPEN"
	PairFilled    PairStatus = "FILLED"
	PairPartial   PairStatus = "PARTIAL"
	PairCancelled PairStatus = "CANCELLED"
)

// Leg is one post-only limit order belonging to a Pair.
type Leg struct {
	OrderID          string
	PairID           string
	Side             Side
	PriceCents       int
	Size             int
	Status           LegStatus
	FilledSize       int
	ExchangeOrderID  string
	CreatedAt        time.Time
}

// Filled reports whether the leg has fully filled.
func (l Leg) Filled() bool { return l.Status == LegFilled }

// Open reports whether the leg is still resting.
func (l Leg) Open() bool { return l.Status == LegOpen }

// Pair is the in-memory representation of a pair: a flat struct carrying
// its two legs inline next to a Status field. The type does not prevent
// Status from disagreeing with the legs' statuses (e.g. FILLED with an
// OPEN leg); keeping them consistent is left to the code that writes
// them. The flat, nullable-free Ledger row shape is a separate concern
// (see internal/ledger) reconstituted into this type on read.
type Pair struct {
	PairID         string
	Ticker         string
	Asset          string
	TargetSpread   int // cents, at signal time
	CreatedAt      time.Time
	Status         PairStatus
	MarketQuestion string

	Yes Leg
	No  Leg
}

// Legs returns the pair's two legs as a slice, for code that wants to treat
// them uniformly.
func (p Pair) Legs() []Leg { return []Leg{p.Yes, p.No} }

// LegFor returns the leg for the given side.
func (p Pair) LegFor(side Side) Leg {
	if side == SideYes {
		return p.Yes
	}
	return p.No
}

// BothFilled reports whether both legs have filled.
func (p Pair) BothFilled() bool { return p.Yes.Filled() && p.No.Filled() }

// OneSidedFilled reports whether exactly one leg is filled and the other is
// still open (the precondition for the one-sided-fill handler).
func (p Pair) OneSidedFilled() bool {
	return (p.Yes.Filled() && p.No.Open()) || (p.No.Filled() && p.Yes.Open())
}

// FilledLeg returns the filled leg and ok=true when exactly one leg is
// filled and the other is not; used by the one-sided-fill and recovery
// paths, which both need "the leg that filled" without caring which side.
func (p Pair) FilledLeg() (Leg, bool) {
	switch {
	case p.Yes.Filled() && !p.No.Filled():
		return p.Yes, true
	case p.No.Filled() && !p.Yes.Filled():
		return p.No, true
	default:
		return Leg{}, false
	}
}

// OpenLeg returns the still-open leg and ok=true when exactly one leg is
// open (the sibling of FilledLeg in the one-sided case).
func (p Pair) OpenLeg() (Leg, bool) {
	switch {
	case p.Yes.Open() && !p.No.Open():
		return p.Yes, true
	case p.No.Open() && !p.Yes.Open():
		return p.No, true
	default:
		return Leg{}, false
	}
}

// PnLRecord is an append-only row written once a pair completes with both
// legs FILLED. PARTIAL and CANCELLED pairs get no PnLRecord.
type PnLRecord struct {
	ID            int64
	PairID        string
	Ticker        string
	YesFillPrice  int
	NoFillPrice   int
	Size          int
	CombinedCost  decimal.Decimal
	GrossProfit   decimal.Decimal
	Fees          decimal.Decimal
	RealizedPnL   decimal.Decimal
	Timestamp     time.Time
}

// Event is an append-only audit-log row.
type Event struct {
	ID        int64
	EventType string
	Details   map[string]any
	Timestamp time.Time
}

// PnLSummary aggregates the append-only PnL log.
type PnLSummary struct {
	Count       int
	TotalPnL    decimal.Decimal
	TotalFees   decimal.Decimal
	AveragePnL  decimal.Decimal
}
