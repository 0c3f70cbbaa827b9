// FILE: gateway.go
// Package main – Exchange gateway abstractions shared by all execution backends.
//
// This file defines the surface the engine needs to talk to a market-execution
// backend (paper or real):
//   • ExchangeGateway interface: batched price lookup, 24h tickers, market
//     buy/sell, balances
//   • Common types: OrderSide, Fill, Ticker
//   • The recoverable/fatal error taxonomy used across the engine
//
// Concrete implementations live in separate files:
//   • gateway_paper.go    – in-memory paper gateway (no external calls)
//   • gateway_binance.go  – Binance spot via the adshao/go-binance SDK
//   • gateway_hitbtc.go   – HitBTC spot REST v3
package main

import (
	"context"
	"errors"
	"time"
)

// OrderSide is the side of a trade.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// ---- Error taxonomy ----
//
// Everything except ErrInvalidInput is recoverable: the monitor logs it to the
// audit trail and retries on a later tick. ErrInvalidInput is rejected before
// any order is placed.

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrOrderRejected       = errors.New("order rejected")
	ErrZeroFill            = errors.New("order accepted but nothing filled")
	ErrExchangeUnavailable = errors.New("exchange unavailable")
	ErrAccumulationCap     = errors.New("accumulation cap reached")
)

// Fill is a normalized view of a filled market order.
type Fill struct {
	OrderID     string
	Symbol      string
	Exchange    string
	Side        OrderSide
	FilledQty   float64 // filled base quantity
	FilledPrice float64 // average execution price
	QuoteSpent  float64 // quote spent (USD-denominated)
	CreateTime  time.Time
}

// Ticker is a 24h market summary row used by the scanner.
type Ticker struct {
	Symbol      string
	LastPrice   float64
	ChangePct   float64 // signed 24h change, percent
	QuoteVolume float64 // 24h quote turnover
}

// ExchangeGateway is the surface the engine needs per exchange.
//
// Contract: callers must never invoke MarketSell for a held position unless the
// monitor loop has already computed a non-negative realized P&L; the gateway
// itself performs no profitability check.
type ExchangeGateway interface {
	Name() string

	// GetBatchPrice returns last prices for all requested symbols in one call.
	// The monitor relies on this being a single upstream request per exchange.
	GetBatchPrice(ctx context.Context, symbols []string) (map[string]float64, error)

	// ListTickers returns 24h summaries for the exchange's tradable universe.
	ListTickers(ctx context.Context) ([]Ticker, error)

	// MarketBuy spends quoteUSD at market. A nil error with FilledQty==0 never
	// occurs; zero fills surface as ErrZeroFill.
	MarketBuy(ctx context.Context, symbol string, quoteUSD float64) (*Fill, error)

	// MarketSell sells qty base at market.
	MarketSell(ctx context.Context, symbol string, qty float64) (*Fill, error)

	// GetBalance returns available balances per asset.
	GetBalance(ctx context.Context) (map[string]float64, error)
}
