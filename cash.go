// FILE: cash.go
// Package main – Cash allocator: per-exchange balance queries and entry gating.
//
// Balances are always queried fresh. GateEntry is called immediately before
// every OPENING transition and is never reused across ticks; a cached
// balance plus a concurrent fill is how accounts go overdrawn.
package main

import (
	"context"
	"log"
	"strings"
)

// entryCashBuffer requires available cash to exceed the desired amount by 10%.
const entryCashBuffer = 1.10

// cashAssets are the quote assets counted as spendable cash.
var cashAssets = []string{"USD", "USDT", "USDC"}

// CashAllocator answers "how much can this exchange spend right now".
type CashAllocator struct {
	gateways map[string]ExchangeGateway
}

func NewCashAllocator(gateways map[string]ExchangeGateway) *CashAllocator {
	return &CashAllocator{gateways: gateways}
}

func cashBalance(bal map[string]float64) float64 {
	var sum float64
	for _, asset := range cashAssets {
		sum += bal[asset]
	}
	return sum
}

// AvailableCash returns the spendable quote balance per exchange. An exchange
// whose balance query fails reports zero and is logged, not raised.
func (a *CashAllocator) AvailableCash(ctx context.Context) map[string]float64 {
	out := make(map[string]float64, len(a.gateways))
	for name, gw := range a.gateways {
		bal, err := gw.GetBalance(ctx)
		if err != nil {
			log.Printf("[WARN] cash: %s balance unavailable: %v", name, err)
			out[name] = 0
			continue
		}
		out[name] = cashBalance(bal)
	}
	return out
}

// GateEntry re-queries the exchange balance and allows a new entry only when
// it covers the desired amount with the 10% buffer.
func (a *CashAllocator) GateEntry(ctx context.Context, exchange string, desiredAmount float64) bool {
	if desiredAmount <= 0 {
		return false
	}
	gw, ok := a.gateways[strings.ToLower(exchange)]
	if !ok {
		gw, ok = a.gateways[exchange]
	}
	if !ok {
		return false
	}
	bal, err := gw.GetBalance(ctx)
	if err != nil {
		log.Printf("[WARN] cash: gate %s: balance unavailable: %v", exchange, err)
		return false
	}
	return cashBalance(bal) >= desiredAmount*entryCashBuffer
}
