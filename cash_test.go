// FILE: cash_test.go
package main

import (
	"context"
	"errors"
	"testing"
)

func TestGateEntryRequiresBuffer(t *testing.T) {
	cases := []struct {
		name    string
		balance float64
		desired float64
		want    bool
	}{
		{"well_funded", 100.00, 25.00, true},
		{"just_over_buffer", 27.51, 25.00, true},
		{"covers_amount_not_buffer", 2.00, 2.50, false}, // needs 2.75
		{"just_below_buffer", 27.49, 25.00, false},
		{"zero_desired", 100.00, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := newFakeGateway("fake")
			gw.balances = map[string]float64{"USD": tc.balance}
			a := NewCashAllocator(map[string]ExchangeGateway{"fake": gw})
			if got := a.GateEntry(context.Background(), "fake", tc.desired); got != tc.want {
				t.Errorf("GateEntry(balance=%.2f, desired=%.2f) = %v, want %v",
					tc.balance, tc.desired, got, tc.want)
			}
		})
	}
}

func TestGateEntrySumsCashAssets(t *testing.T) {
	gw := newFakeGateway("fake")
	gw.balances = map[string]float64{"USD": 10, "USDT": 10, "USDC": 8, "BTC": 99}
	a := NewCashAllocator(map[string]ExchangeGateway{"fake": gw})

	// 28 total cash covers 25 with the buffer; BTC never counts
	if !a.GateEntry(context.Background(), "fake", 25) {
		t.Errorf("stablecoin balances should sum toward the gate")
	}
	gw.balances["USDC"] = 0
	if a.GateEntry(context.Background(), "fake", 25) {
		t.Errorf("non-cash assets must not fund the gate")
	}
}

func TestGateEntryDeniesOnFailure(t *testing.T) {
	gw := newFakeGateway("fake")
	gw.balanceErr = errors.New("timeout")
	a := NewCashAllocator(map[string]ExchangeGateway{"fake": gw})

	if a.GateEntry(context.Background(), "fake", 10) {
		t.Errorf("unreadable balance must deny entry")
	}
	if a.GateEntry(context.Background(), "nowhere", 10) {
		t.Errorf("unknown exchange must deny entry")
	}
}

func TestAvailableCashDegradesPerExchange(t *testing.T) {
	ok := newFakeGateway("ok")
	ok.balances = map[string]float64{"USD": 40, "USDT": 2}
	down := newFakeGateway("down")
	down.balanceErr = errors.New("502 bad gateway")
	a := NewCashAllocator(map[string]ExchangeGateway{"ok": ok, "down": down})

	cash := a.AvailableCash(context.Background())
	if cash["ok"] != 42 {
		t.Errorf("ok cash = %.2f, want 42", cash["ok"])
	}
	if cash["down"] != 0 {
		t.Errorf("failed exchange cash = %.2f, want 0", cash["down"])
	}
}
