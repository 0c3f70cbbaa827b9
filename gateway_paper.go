// FILE: gateway_paper.go
// Package main – In-memory paper gateway (no external calls).
//
// Simulates execution at the last seen price per symbol. Used for dry runs
// and tests; the live loop still works against it exactly as against a real
// exchange, minus the network.
//
// Balances start from PAPER_CASH_USD and move with simulated fills, so the
// cash allocator's gating behaves realistically in paper mode.
package main

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperGateway keeps mutable per-symbol prices and a simulated cash balance.
type PaperGateway struct {
	mu       sync.Mutex
	prices   map[string]float64
	tickers  map[string]Ticker
	cashUSD  float64
	holdings map[string]float64 // base qty per symbol
}

func NewPaperGateway() *PaperGateway {
	return &PaperGateway{
		prices:   make(map[string]float64),
		tickers:  make(map[string]Ticker),
		cashUSD:  getEnvFloat("PAPER_CASH_USD", 1000.0),
		holdings: make(map[string]float64),
	}
}

func (p *PaperGateway) Name() string { return "paper" }

// SetPrice seeds or moves the simulated market for one symbol.
func (p *PaperGateway) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// SetTicker seeds a scanner row; its last price also drives fills.
func (p *PaperGateway) SetTicker(tk Ticker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickers[tk.Symbol] = tk
	p.prices[tk.Symbol] = tk.LastPrice
}

func (p *PaperGateway) GetBatchPrice(ctx context.Context, symbols []string) (map[string]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		if px, ok := p.prices[s]; ok && px > 0 {
			out[s] = px
		}
	}
	return out, nil
}

func (p *PaperGateway) ListTickers(ctx context.Context) ([]Ticker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Ticker, 0, len(p.tickers))
	for _, tk := range p.tickers {
		out = append(out, tk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (p *PaperGateway) MarketBuy(ctx context.Context, symbol string, quoteUSD float64) (*Fill, error) {
	if quoteUSD <= 0 {
		return nil, fmt.Errorf("%w: quoteUSD=%.2f", ErrInvalidInput, quoteUSD)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	price := p.prices[symbol]
	if price <= 0 {
		return nil, fmt.Errorf("%w: no paper price for %s", ErrOrderRejected, symbol)
	}
	if p.cashUSD < quoteUSD {
		return nil, fmt.Errorf("%w: cash=%.2f need=%.2f", ErrInsufficientFunds, p.cashUSD, quoteUSD)
	}
	qty := quoteUSD / price
	p.cashUSD -= quoteUSD
	p.holdings[symbol] += qty
	return &Fill{
		OrderID:     uuid.New().String(),
		Symbol:      symbol,
		Exchange:    p.Name(),
		Side:        SideBuy,
		FilledQty:   qty,
		FilledPrice: price,
		QuoteSpent:  quoteUSD,
		CreateTime:  time.Now().UTC(),
	}, nil
}

func (p *PaperGateway) MarketSell(ctx context.Context, symbol string, qty float64) (*Fill, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: qty=%.8f", ErrInvalidInput, qty)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	price := p.prices[symbol]
	if price <= 0 {
		return nil, fmt.Errorf("%w: no paper price for %s", ErrOrderRejected, symbol)
	}
	if p.holdings[symbol] < qty {
		return nil, fmt.Errorf("%w: holding=%.8f sell=%.8f", ErrOrderRejected, p.holdings[symbol], qty)
	}
	quote := qty * price
	p.holdings[symbol] -= qty
	p.cashUSD += quote
	return &Fill{
		OrderID:     uuid.New().String(),
		Symbol:      symbol,
		Exchange:    p.Name(),
		Side:        SideSell,
		FilledQty:   qty,
		FilledPrice: price,
		QuoteSpent:  quote,
		CreateTime:  time.Now().UTC(),
	}, nil
}

func (p *PaperGateway) GetBalance(ctx context.Context) (map[string]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := map[string]float64{"USD": p.cashUSD}
	for sym, qty := range p.holdings {
		if qty > 0 {
			out[sym] = qty
		}
	}
	return out, nil
}
