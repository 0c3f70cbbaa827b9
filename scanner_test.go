// FILE: scanner_test.go
package main

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
)

func scanGateways(gws ...*fakeGateway) map[string]ExchangeGateway {
	out := make(map[string]ExchangeGateway, len(gws))
	for _, gw := range gws {
		out[gw.name] = gw
	}
	return out
}

func TestScanFiltersAndRanks(t *testing.T) {
	gw := newFakeGateway("fake1")
	gw.tickers = []Ticker{
		{Symbol: "BTC-USD", LastPrice: 61000, ChangePct: 2.0, QuoteVolume: 2_000_000},
		{Symbol: "ETH-USD", LastPrice: 2400, ChangePct: -4.0, QuoteVolume: 500_000},
		{Symbol: "DOGE-USD", LastPrice: 0.12, ChangePct: 0.5, QuoteVolume: 9_000_000}, // below change floor
		{Symbol: "GHOST-USD", LastPrice: 0, ChangePct: 8.0, QuoteVolume: 1_000_000},   // no price
	}
	s := NewScanner(scanGateways(gw), 1_000_000, nil)

	ops := s.Scan(context.Background(), 1.0, 0, nil)
	if len(ops) != 2 {
		t.Fatalf("got %d candidates, want 2: %+v", len(ops), ops)
	}
	// ETH: |−4| * (1 + 0.5) = 6.0; BTC: 2 * (1 + min(2,1)) = 4.0
	if ops[0].Symbol != "ETH-USD" || ops[1].Symbol != "BTC-USD" {
		t.Errorf("rank order = %s, %s; want ETH-USD, BTC-USD", ops[0].Symbol, ops[1].Symbol)
	}
	if math.Abs(ops[0].MomentumScore-6.0) > 1e-9 {
		t.Errorf("ETH score = %.6f, want 6.0", ops[0].MomentumScore)
	}
	if math.Abs(ops[1].MomentumScore-4.0) > 1e-9 {
		t.Errorf("BTC score = %.6f, want 4.0 (volume bonus capped)", ops[1].MomentumScore)
	}
}

func TestScanVolumeFloor(t *testing.T) {
	gw := newFakeGateway("fake1")
	gw.tickers = []Ticker{
		{Symbol: "BTC-USD", LastPrice: 61000, ChangePct: 3.0, QuoteVolume: 40_000},
		{Symbol: "SOL-USD", LastPrice: 140, ChangePct: 3.0, QuoteVolume: 400_000},
	}
	s := NewScanner(scanGateways(gw), 1_000_000, nil)

	ops := s.Scan(context.Background(), 1.0, 100_000, nil)
	if len(ops) != 1 || ops[0].Symbol != "SOL-USD" {
		t.Fatalf("want only SOL-USD above the volume floor, got %+v", ops)
	}
}

func TestScanDedupePrefersCashExchange(t *testing.T) {
	a := newFakeGateway("alpha")
	a.tickers = []Ticker{{Symbol: "BTC-USD", LastPrice: 61000, ChangePct: 5.0, QuoteVolume: 2_000_000}}
	b := newFakeGateway("beta")
	b.tickers = []Ticker{{Symbol: "BTC-USD", LastPrice: 61010, ChangePct: 3.0, QuoteVolume: 2_000_000}}
	s := NewScanner(scanGateways(a, b), 1_000_000, nil)

	// beta holds cash, alpha has the stronger momentum: cash wins
	ops := s.Scan(context.Background(), 1.0, 0, map[string]float64{"beta": 150})
	if len(ops) != 1 || ops[0].Exchange != "beta" {
		t.Fatalf("want BTC-USD on beta (funded), got %+v", ops)
	}

	// no cash anywhere: momentum wins
	ops = s.Scan(context.Background(), 1.0, 0, nil)
	if len(ops) != 1 || ops[0].Exchange != "alpha" {
		t.Fatalf("want BTC-USD on alpha (higher momentum), got %+v", ops)
	}
}

func TestScanIdempotentOnUnchangedMarket(t *testing.T) {
	a := newFakeGateway("alpha")
	a.tickers = []Ticker{
		{Symbol: "BTC-USD", LastPrice: 61000, ChangePct: 2.0, QuoteVolume: 1_000_000},
		{Symbol: "ETH-USD", LastPrice: 2400, ChangePct: 2.0, QuoteVolume: 1_000_000}, // score ties with BTC
	}
	b := newFakeGateway("beta")
	b.tickers = []Ticker{{Symbol: "ETH-USD", LastPrice: 2400, ChangePct: 2.0, QuoteVolume: 1_000_000}}
	s := NewScanner(scanGateways(a, b), 1_000_000, nil)

	first := s.Scan(context.Background(), 1.0, 0, nil)
	second := s.Scan(context.Background(), 1.0, 0, nil)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("identical market produced different scans:\n%+v\n%+v", first, second)
	}
	if len(first) != 2 {
		t.Fatalf("got %d candidates, want 2", len(first))
	}
	// equal scores order by symbol
	if first[0].Symbol != "BTC-USD" {
		t.Errorf("tie-break order = %s first, want BTC-USD", first[0].Symbol)
	}
}

func TestScanSurvivesExchangeFailure(t *testing.T) {
	down := newFakeGateway("down")
	down.tickersErr = errors.New("503 service unavailable")
	up := newFakeGateway("up")
	up.tickers = []Ticker{{Symbol: "SOL-USD", LastPrice: 140, ChangePct: 4.0, QuoteVolume: 800_000}}
	s := NewScanner(scanGateways(down, up), 1_000_000, nil)

	ops := s.Scan(context.Background(), 1.0, 0, nil)
	if len(ops) != 1 || ops[0].Symbol != "SOL-USD" {
		t.Fatalf("healthy exchange should still produce candidates, got %+v", ops)
	}
}
