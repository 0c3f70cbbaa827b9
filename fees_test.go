// FILE: fees_test.go
package main

import (
	"errors"
	"math"
	"testing"
)

func TestBreakevenArithmetic(t *testing.T) {
	// taker 0.26%, slippage 0.05%, spread 0.05% per leg:
	// round trip = 2*(0.0026+0.0005+0.0005) = 0.0072
	s := FeeSchedule{Exchange: "kraken", TakerRate: 0.0026, SlippagePct: 0.0005, SpreadPct: 0.0005}

	bq, err := Breakeven(100.0, 1.0, s, false)
	if err != nil {
		t.Fatalf("Breakeven: %v", err)
	}
	if math.Abs(bq.Multiplier-1.0072) > 1e-9 {
		t.Errorf("multiplier = %.10f, want 1.0072", bq.Multiplier)
	}
	if math.Abs(bq.BreakevenPrice-100.72) > 1e-9 {
		t.Errorf("breakeven = %.10f, want 100.72", bq.BreakevenPrice)
	}
	if math.Abs(bq.EntryFee-0.36) > 1e-9 {
		t.Errorf("entry fee = %.10f, want 0.36", bq.EntryFee)
	}
	if math.Abs(bq.EntryCost-100.36) > 1e-9 {
		t.Errorf("entry cost = %.10f, want 100.36", bq.EntryCost)
	}

	target, err := TargetPrice(100.0, 1.0, s, 1.0)
	if err != nil {
		t.Fatalf("TargetPrice: %v", err)
	}
	if math.Abs(target-101.7272) > 1e-9 {
		t.Errorf("target = %.10f, want 101.7272", target)
	}
}

func TestTargetAboveBreakevenAboveEntry(t *testing.T) {
	cases := []struct {
		name      string
		sched     FeeSchedule
		entry     float64
		qty       float64
		targetPct float64
	}{
		{"binance_small", FeeSchedule{TakerRate: 0.0010, SlippagePct: 0.0005, SpreadPct: 0.0005}, 0.00004512, 120000, 1.5},
		{"hitbtc_mid", FeeSchedule{TakerRate: 0.0025, SlippagePct: 0.0005, SpreadPct: 0.0005}, 2.35, 40, 0.8},
		{"coinbase_large", FeeSchedule{TakerRate: 0.0026, SlippagePct: 0.0005, SpreadPct: 0.0005}, 61250.0, 0.004, 2.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bq, err := Breakeven(tc.entry, tc.qty, tc.sched, false)
			if err != nil {
				t.Fatalf("Breakeven: %v", err)
			}
			target, err := TargetPrice(tc.entry, tc.qty, tc.sched, tc.targetPct)
			if err != nil {
				t.Fatalf("TargetPrice: %v", err)
			}
			if !(bq.BreakevenPrice > tc.entry) {
				t.Errorf("breakeven %.10f not above entry %.10f", bq.BreakevenPrice, tc.entry)
			}
			if !(target > bq.BreakevenPrice) {
				t.Errorf("target %.10f not above breakeven %.10f", target, bq.BreakevenPrice)
			}
		})
	}
}

func TestRealizedPnLExactAtBreakeven(t *testing.T) {
	cases := []struct {
		name  string
		sched FeeSchedule
		entry float64
		qty   float64
	}{
		{"round_numbers", FeeSchedule{TakerRate: 0.0026, SlippagePct: 0.0005, SpreadPct: 0.0005}, 100.0, 1.0},
		{"dust_price", FeeSchedule{TakerRate: 0.0010, SlippagePct: 0.0005, SpreadPct: 0.0005}, 0.00001234, 2_000_000},
		{"no_cost_leg", FeeSchedule{TakerRate: 0, SlippagePct: 0, SpreadPct: 0}, 50.0, 3.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bq, err := Breakeven(tc.entry, tc.qty, tc.sched, false)
			if err != nil {
				t.Fatalf("Breakeven: %v", err)
			}
			pnl, err := RealizedPnL(tc.entry, tc.qty, bq.BreakevenPrice, tc.qty, tc.sched)
			if err != nil {
				t.Fatalf("RealizedPnL: %v", err)
			}
			if math.Abs(pnl.NetPnL) > 1e-6 {
				t.Errorf("net at breakeven = %.12f, want 0", pnl.NetPnL)
			}
		})
	}
}

func TestRealizedPnLBreakdown(t *testing.T) {
	s := FeeSchedule{TakerRate: 0.0026, SlippagePct: 0.0005, SpreadPct: 0.0005}
	pnl, err := RealizedPnL(100.0, 1.0, 102.0, 1.0, s)
	if err != nil {
		t.Fatalf("RealizedPnL: %v", err)
	}
	if math.Abs(pnl.GrossPnL-2.0) > 1e-9 {
		t.Errorf("gross = %.10f, want 2.0", pnl.GrossPnL)
	}
	if math.Abs(pnl.Fees-0.72) > 1e-9 {
		t.Errorf("fees = %.10f, want 0.72", pnl.Fees)
	}
	if math.Abs(pnl.NetPnL-1.28) > 1e-9 {
		t.Errorf("net = %.10f, want 1.28", pnl.NetPnL)
	}
	if math.Abs(pnl.NetPnLPct-1.28) > 1e-9 {
		t.Errorf("net pct = %.10f, want 1.28", pnl.NetPnLPct)
	}
}

func TestFeeMathRejectsInvalidInput(t *testing.T) {
	s := FeeSchedule{TakerRate: 0.0026}

	if _, err := Breakeven(0, 1, s, false); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Breakeven zero price: got %v, want ErrInvalidInput", err)
	}
	if _, err := Breakeven(100, -1, s, false); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Breakeven negative qty: got %v, want ErrInvalidInput", err)
	}
	if _, err := TargetPrice(-5, 1, s, 1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("TargetPrice negative price: got %v, want ErrInvalidInput", err)
	}
	if _, err := RealizedPnL(100, 1, 0, 1, s); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("RealizedPnL zero exit: got %v, want ErrInvalidInput", err)
	}
	if _, err := RealizedPnL(100, 1, 101, 0.5, s); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("RealizedPnL partial close: got %v, want ErrInvalidInput", err)
	}
}

func TestMakerRateLowersBreakeven(t *testing.T) {
	s := FeeSchedule{MakerRate: 0.0016, TakerRate: 0.0026, SlippagePct: 0.0005, SpreadPct: 0.0005}
	taker, err := Breakeven(100, 1, s, false)
	if err != nil {
		t.Fatal(err)
	}
	maker, err := Breakeven(100, 1, s, true)
	if err != nil {
		t.Fatal(err)
	}
	if !(maker.BreakevenPrice < taker.BreakevenPrice) {
		t.Errorf("maker breakeven %.6f not below taker %.6f", maker.BreakevenPrice, taker.BreakevenPrice)
	}
}
