// FILE: ledger.go
// Package main – Cost basis ledger: per-symbol position state.
//
// The ledger is the single source of truth for open positions. The monitor
// loop is its sole writer; no internal locking is needed beyond what the loop
// already guarantees (see monitor.go).
//
// Accumulation merges an additional fill into the weighted average cost basis:
//   totalCost += fillPrice×fillQty×(1+feeRate)
//   qty       += fillQty
//   avgEntry   = totalCost/qty/(1+feeRate)
// and recomputes breakeven/target from the new average. Accumulating at a
// lower fill price therefore strictly lowers both.
package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// priceRingCap bounds each position's rolling price window.
const priceRingCap = 50

// PriceRing is a fixed-capacity ring of recent prices, oldest first.
type PriceRing struct {
	buf   [priceRingCap]float64
	start int
	n     int
}

func (r *PriceRing) Push(p float64) {
	if r.n < priceRingCap {
		r.buf[(r.start+r.n)%priceRingCap] = p
		r.n++
		return
	}
	r.buf[r.start] = p
	r.start = (r.start + 1) % priceRingCap
}

func (r *PriceRing) Len() int { return r.n }

// Values returns the window contents in insertion order.
func (r *PriceRing) Values() []float64 {
	out := make([]float64, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%priceRingCap]
	}
	return out
}

// Last returns up to n most recent prices in insertion order.
func (r *PriceRing) Last(n int) []float64 {
	v := r.Values()
	if len(v) > n {
		v = v[len(v)-n:]
	}
	return v
}

func (r *PriceRing) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Values())
}

func (r *PriceRing) UnmarshalJSON(bs []byte) error {
	var v []float64
	if err := json.Unmarshal(bs, &v); err != nil {
		return err
	}
	*r = PriceRing{}
	if len(v) > priceRingCap {
		v = v[len(v)-priceRingCap:]
	}
	for _, p := range v {
		r.Push(p)
	}
	return nil
}

// PositionState is the lifecycle state of one position.
type PositionState string

const (
	StateOpening    PositionState = "OPENING"
	StateMonitoring PositionState = "MONITORING"
	StateClosing    PositionState = "CLOSING"
	StateClosed     PositionState = "CLOSED"
)

// Position is one open holding, created on first fill, mutated on
// accumulation, destroyed on full close.
type Position struct {
	Symbol            string        `json:"symbol"`
	Exchange          string        `json:"exchange"`
	State             PositionState `json:"state"`
	EntryPrice        float64       `json:"entry_price"` // first fill price
	Quantity          float64       `json:"quantity"`
	TotalCost         float64       `json:"total_cost"` // fee-inclusive quote spent
	AvgEntryPrice     float64       `json:"avg_entry_price"`
	BreakevenPrice    float64       `json:"breakeven_price"`
	TargetPrice       float64       `json:"target_price"`
	AccumulationCount int           `json:"accumulation_count"`
	OpenedAt          time.Time     `json:"opened_at"`
	AccumulatedAt     time.Time     `json:"accumulated_at,omitempty"` // last DCA fill
	History           *PriceRing    `json:"price_history"`

	// Scratch fields refreshed each tick by the monitor; not authoritative.
	LastPrice     float64 `json:"last_price"`
	UnrealizedNet float64 `json:"unrealized_net"`
}

// lastFillTime anchors the accumulation cooldown.
func (p *Position) lastFillTime() time.Time {
	if !p.AccumulatedAt.IsZero() {
		return p.AccumulatedAt
	}
	return p.OpenedAt
}

// ClosedPosition is the realized snapshot returned by Ledger.Close.
type ClosedPosition struct {
	Symbol        string    `json:"symbol"`
	Exchange      string    `json:"exchange"`
	AvgEntryPrice float64   `json:"avg_entry_price"`
	Quantity      float64   `json:"quantity"`
	ExitPrice     float64   `json:"exit_price"`
	PnL           PnL       `json:"pnl"`
	ClosedAt      time.Time `json:"closed_at"`
}

// Ledger tracks open positions keyed by symbol.
type Ledger struct {
	positions map[string]*Position
	targetPct float64
	capN      int
}

func NewLedger(targetPct float64, accumulationCap int) *Ledger {
	if accumulationCap <= 0 {
		accumulationCap = 3
	}
	return &Ledger{
		positions: make(map[string]*Position),
		targetPct: targetPct,
		capN:      accumulationCap,
	}
}

func (l *Ledger) Get(symbol string) *Position { return l.positions[symbol] }

func (l *Ledger) Has(symbol string) bool { _, ok := l.positions[symbol]; return ok }

func (l *Ledger) Len() int { return len(l.positions) }

// Positions returns open positions ordered by symbol for deterministic iteration.
func (l *Ledger) Positions() []*Position {
	out := make([]*Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// SymbolsByExchange groups held symbols per exchange for batched refresh.
func (l *Ledger) SymbolsByExchange() map[string][]string {
	out := make(map[string][]string)
	for _, p := range l.Positions() {
		out[p.Exchange] = append(out[p.Exchange], p.Symbol)
	}
	return out
}

// Accumulate records a buy fill. It creates the position on the first fill
// and merges subsequent fills into the weighted average. Once the
// accumulation cap is hit it returns ErrAccumulationCap and leaves the
// position untouched; the caller keeps monitoring for a target exit.
func (l *Ledger) Accumulate(symbol, exchange string, fillPrice, fillQty float64, sched FeeSchedule) (*Position, error) {
	if fillPrice <= 0 || fillQty <= 0 {
		return nil, fmt.Errorf("%w: fillPrice=%.8f fillQty=%.8f", ErrInvalidInput, fillPrice, fillQty)
	}
	feeRate := sched.TakerRate

	p, ok := l.positions[symbol]
	if !ok {
		bq, err := Breakeven(fillPrice, fillQty, sched, false)
		if err != nil {
			return nil, err
		}
		target, err := TargetPrice(fillPrice, fillQty, sched, l.targetPct)
		if err != nil {
			return nil, err
		}
		p = &Position{
			Symbol:         symbol,
			Exchange:       exchange,
			State:          StateMonitoring,
			EntryPrice:     fillPrice,
			Quantity:       fillQty,
			TotalCost:      fillPrice * fillQty * (1.0 + feeRate),
			AvgEntryPrice:  fillPrice,
			BreakevenPrice: bq.BreakevenPrice,
			TargetPrice:    target,
			OpenedAt:       time.Now().UTC(),
			History:        &PriceRing{},
		}
		p.History.Push(fillPrice)
		l.positions[symbol] = p
		return p, nil
	}

	if p.AccumulationCount >= l.capN {
		return p, fmt.Errorf("%w: %s count=%d", ErrAccumulationCap, symbol, p.AccumulationCount)
	}

	p.TotalCost += fillPrice * fillQty * (1.0 + feeRate)
	p.Quantity += fillQty
	p.AvgEntryPrice = p.TotalCost / p.Quantity / (1.0 + feeRate)

	bq, err := Breakeven(p.AvgEntryPrice, p.Quantity, sched, false)
	if err != nil {
		return nil, err
	}
	target, err := TargetPrice(p.AvgEntryPrice, p.Quantity, sched, l.targetPct)
	if err != nil {
		return nil, err
	}
	p.BreakevenPrice = bq.BreakevenPrice
	p.TargetPrice = target
	p.AccumulationCount++
	return p, nil
}

// Close removes the position and returns its realized snapshot at exitPrice.
func (l *Ledger) Close(symbol string, exitPrice float64, sched FeeSchedule) (*ClosedPosition, error) {
	p, ok := l.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: no open position for %s", ErrInvalidInput, symbol)
	}
	pnl, err := RealizedPnL(p.AvgEntryPrice, p.Quantity, exitPrice, p.Quantity, sched)
	if err != nil {
		return nil, err
	}
	delete(l.positions, symbol)
	p.State = StateClosed
	return &ClosedPosition{
		Symbol:        p.Symbol,
		Exchange:      p.Exchange,
		AvgEntryPrice: p.AvgEntryPrice,
		Quantity:      p.Quantity,
		ExitPrice:     exitPrice,
		PnL:           pnl,
		ClosedAt:      time.Now().UTC(),
	}, nil
}

// Restore reinstates persisted positions at boot (see monitor state handling).
func (l *Ledger) Restore(ps []*Position) {
	for _, p := range ps {
		if p == nil || p.Symbol == "" || p.Quantity <= 0 {
			continue
		}
		if p.History == nil {
			p.History = &PriceRing{}
		}
		p.State = StateMonitoring
		l.positions[p.Symbol] = p
	}
}
