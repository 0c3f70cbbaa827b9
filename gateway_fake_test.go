// FILE: gateway_fake_test.go
// Shared scripted gateway and advisor fakes for engine tests.
package main

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type fakeGateway struct {
	mu         sync.Mutex
	name       string
	prices     map[string]float64
	tickers    []Ticker
	balances   map[string]float64
	tickersErr error
	balanceErr error
	buyErr     error
	sellErr    error

	buys       []Fill
	sells      []Fill
	batchCalls int
	orderSeq   int
}

func newFakeGateway(name string) *fakeGateway {
	return &fakeGateway{
		name:     name,
		prices:   make(map[string]float64),
		balances: map[string]float64{"USD": 1000},
	}
}

func (f *fakeGateway) Name() string { return f.name }

func (f *fakeGateway) GetBatchPrice(ctx context.Context, symbols []string) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchCalls++
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		if px, ok := f.prices[s]; ok {
			out[s] = px
		}
	}
	return out, nil
}

func (f *fakeGateway) ListTickers(ctx context.Context) ([]Ticker, error) {
	if f.tickersErr != nil {
		return nil, f.tickersErr
	}
	out := make([]Ticker, len(f.tickers))
	copy(out, f.tickers)
	return out, nil
}

func (f *fakeGateway) MarketBuy(ctx context.Context, symbol string, quoteUSD float64) (*Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buyErr != nil {
		return nil, f.buyErr
	}
	px := f.prices[symbol]
	if px <= 0 {
		return nil, fmt.Errorf("%w: no price for %s", ErrOrderRejected, symbol)
	}
	f.orderSeq++
	fill := Fill{
		OrderID:     fmt.Sprintf("%s-%d", f.name, f.orderSeq),
		Symbol:      symbol,
		Exchange:    f.name,
		Side:        SideBuy,
		FilledQty:   quoteUSD / px,
		FilledPrice: px,
		QuoteSpent:  quoteUSD,
		CreateTime:  time.Now().UTC(),
	}
	f.balances["USD"] -= quoteUSD
	f.buys = append(f.buys, fill)
	return &fill, nil
}

func (f *fakeGateway) MarketSell(ctx context.Context, symbol string, qty float64) (*Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sellErr != nil {
		return nil, f.sellErr
	}
	px := f.prices[symbol]
	if px <= 0 {
		return nil, fmt.Errorf("%w: no price for %s", ErrOrderRejected, symbol)
	}
	f.orderSeq++
	fill := Fill{
		OrderID:     fmt.Sprintf("%s-%d", f.name, f.orderSeq),
		Symbol:      symbol,
		Exchange:    f.name,
		Side:        SideSell,
		FilledQty:   qty,
		FilledPrice: px,
		QuoteSpent:  qty * px,
		CreateTime:  time.Now().UTC(),
	}
	f.balances["USD"] += qty * px
	f.sells = append(f.sells, fill)
	return &fill, nil
}

func (f *fakeGateway) GetBalance(ctx context.Context) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	out := make(map[string]float64, len(f.balances))
	for k, v := range f.balances {
		out[k] = v
	}
	return out, nil
}

// stubAdvisor returns a fixed signal.
type stubAdvisor struct{ sig AdvisorySignal }

func (s stubAdvisor) GetSignal(ctx context.Context, symbol string, side OrderSide, currentPrice, recentPnLPct float64) AdvisorySignal {
	return s.sig
}

// ---- common test fixtures ----

func testSchedule() FeeSchedule {
	return FeeSchedule{Exchange: "fake", TakerRate: 0.0026, MakerRate: 0.0016, SlippagePct: 0.0005, SpreadPct: 0.0005}
}

func testConfig() Config {
	return Config{
		Mode:                    ModeAutonomous,
		MaxPositions:            2,
		AmountPerPosition:       25,
		TargetPct:               1.0,
		MinChangePct:            1.0,
		MinVolume:               0,
		VolumeNormalizer:        1_000_000,
		ReversalPct:             0.3,
		MomentumWindow:          10,
		AdvisoryExitThreshold:   0.25,
		AccumulationDropPct:     5.0,
		AccumulationCap:         3,
		AccumulationCooldownSec: 60,
		TickIntervalSec:         1,
		ScanIntervalSec:         0,
		DryRun:                  true,
		PersistState:            false,
	}
}

func newTestMonitor(cfg Config, gw *fakeGateway, advisor AdvisorySignalProvider) (*Monitor, *Ledger) {
	gateways := map[string]ExchangeGateway{gw.name: gw}
	sched := map[string]FeeSchedule{gw.name: testSchedule()}
	ledger := NewLedger(cfg.TargetPct, cfg.AccumulationCap)
	scanner := NewScanner(gateways, cfg.VolumeNormalizer, nil)
	cash := NewCashAllocator(gateways)
	if advisor == nil {
		advisor = NeutralAdvisor{}
	}
	return NewMonitor(cfg, ledger, scanner, advisor, gateways, cash, nil, sched), ledger
}
