// FILE: fees.go
// Package main – Fee model: breakeven, target and realized P&L arithmetic.
//
// Pure functions over a FeeSchedule. The round-trip cost assumes the worst
// case (both legs pay taker) unless maker execution is explicitly requested.
// Breakeven is exact by construction: selling the full position at the
// breakeven price yields a net P&L of zero.
package main

import "fmt"

// FeeSchedule captures one exchange's cost structure. Rates are fractions
// per leg (0.0026 = 0.26%). Loaded at startup and never mutated.
type FeeSchedule struct {
	Exchange    string
	MakerRate   float64
	TakerRate   float64
	SlippagePct float64
	SpreadPct   float64
}

func (s FeeSchedule) legRate(useMaker bool) float64 {
	if useMaker {
		return s.MakerRate
	}
	return s.TakerRate
}

// RoundTripCost is the total cost fraction for entering and exiting:
// fees, slippage and spread paid on both legs.
func (s FeeSchedule) RoundTripCost(useMaker bool) float64 {
	return 2*s.legRate(useMaker) + 2*s.SlippagePct + 2*s.SpreadPct
}

// BreakevenQuote is the result of a breakeven computation.
type BreakevenQuote struct {
	EntryFee       float64 // entry-leg cost in quote (fee+slippage+spread)
	EntryCost      float64 // notional plus entry-leg cost
	Multiplier     float64 // breakeven / entry price ratio
	BreakevenPrice float64
}

// Breakeven computes the exit price at which the round trip nets zero.
func Breakeven(entryPrice, qty float64, s FeeSchedule, useMaker bool) (BreakevenQuote, error) {
	if entryPrice <= 0 || qty <= 0 {
		return BreakevenQuote{}, fmt.Errorf("%w: entryPrice=%.8f qty=%.8f", ErrInvalidInput, entryPrice, qty)
	}
	notional := entryPrice * qty
	legCost := s.legRate(useMaker) + s.SlippagePct + s.SpreadPct
	mult := 1.0 + s.RoundTripCost(useMaker)
	return BreakevenQuote{
		EntryFee:       notional * legCost,
		EntryCost:      notional * (1.0 + legCost),
		Multiplier:     mult,
		BreakevenPrice: entryPrice * mult,
	}, nil
}

// TargetPrice lifts breakeven by targetNetPct percent of net profit.
func TargetPrice(entryPrice, qty float64, s FeeSchedule, targetNetPct float64) (float64, error) {
	bq, err := Breakeven(entryPrice, qty, s, false)
	if err != nil {
		return 0, err
	}
	return bq.BreakevenPrice * (1.0 + targetNetPct/100.0), nil
}

// PnL is a realized profit-and-loss breakdown for a full close.
type PnL struct {
	GrossPnL  float64
	Fees      float64 // all round-trip costs, charged on entry notional
	NetPnL    float64
	NetPnLPct float64 // net over entry notional, percent
}

// RealizedPnL settles a full close. Partial closes are not modeled; exitQty
// must equal entryQty.
func RealizedPnL(entryPrice, entryQty, exitPrice, exitQty float64, s FeeSchedule) (PnL, error) {
	if entryPrice <= 0 || entryQty <= 0 || exitPrice <= 0 {
		return PnL{}, fmt.Errorf("%w: entryPrice=%.8f entryQty=%.8f exitPrice=%.8f", ErrInvalidInput, entryPrice, entryQty, exitPrice)
	}
	if exitQty != entryQty {
		return PnL{}, fmt.Errorf("%w: partial close not supported (entryQty=%.8f exitQty=%.8f)", ErrInvalidInput, entryQty, exitQty)
	}
	notional := entryPrice * entryQty
	gross := (exitPrice - entryPrice) * entryQty
	fees := notional * s.RoundTripCost(false)
	net := gross - fees
	return PnL{
		GrossPnL:  gross,
		Fees:      fees,
		NetPnL:    net,
		NetPnLPct: net / notional * 100.0,
	}, nil
}
