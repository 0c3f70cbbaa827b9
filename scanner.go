// FILE: scanner.go
// Package main – Momentum market scanner across exchanges.
//
// Scan pulls 24h tickers from every wired exchange, filters on change/volume
// floors, scores momentum and returns a ranked, symbol-deduplicated list.
// One exchange failing must not sink the scan: its tickers are skipped, the
// failure is recorded, and the remaining exchanges still produce candidates.
package main

import (
	"context"
	"log"
	"math"
	"sort"
)

// MarketOpportunity is one scan candidate. Produced per scan, discarded after
// selection.
type MarketOpportunity struct {
	Symbol        string
	Exchange      string
	Price         float64
	ChangePct     float64
	Volume        float64
	MomentumScore float64
}

// Scanner ranks momentum candidates across the wired gateways.
type Scanner struct {
	gateways   map[string]ExchangeGateway
	normalizer float64 // volume saturation point for the score bonus
	audit      *AuditLog
}

func NewScanner(gateways map[string]ExchangeGateway, volumeNormalizer float64, audit *AuditLog) *Scanner {
	if volumeNormalizer <= 0 {
		volumeNormalizer = 1_000_000
	}
	return &Scanner{gateways: gateways, normalizer: volumeNormalizer, audit: audit}
}

// momentumScore favors large absolute moves, with a capped bonus for volume.
func (s *Scanner) momentumScore(changePct, volume float64) float64 {
	return math.Abs(changePct) * (1.0 + math.Min(volume/s.normalizer, 1.0))
}

// Scan returns opportunities sorted descending by momentum score, one row per
// symbol. When a symbol trades on several exchanges, the exchange that
// already holds cash wins; otherwise the highest-momentum listing does.
// Scanning an unchanged market twice yields an identical list.
func (s *Scanner) Scan(ctx context.Context, minChangePct, minVolume float64, cash map[string]float64) []MarketOpportunity {
	var all []MarketOpportunity

	// Deterministic exchange order keeps repeated scans identical.
	names := make([]string, 0, len(s.gateways))
	for name := range s.gateways {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		gw := s.gateways[name]
		tks, err := gw.ListTickers(ctx)
		if err != nil {
			log.Printf("[WARN] scan: %s tickers unavailable: %v", name, err)
			mtxScanFailures.WithLabelValues(name).Inc()
			s.audit.Record("scan_error", map[string]any{"exchange": name, "error": err.Error()})
			continue
		}
		for _, tk := range tks {
			if math.Abs(tk.ChangePct) < minChangePct || tk.QuoteVolume < minVolume || tk.LastPrice <= 0 {
				continue
			}
			all = append(all, MarketOpportunity{
				Symbol:        tk.Symbol,
				Exchange:      name,
				Price:         tk.LastPrice,
				ChangePct:     tk.ChangePct,
				Volume:        tk.QuoteVolume,
				MomentumScore: s.momentumScore(tk.ChangePct, tk.QuoteVolume),
			})
		}
	}

	return dedupeBySymbol(all, cash)
}

// dedupeBySymbol keeps one listing per symbol: a cash-funded exchange beats a
// dry one, then higher momentum, then exchange name for determinism.
func dedupeBySymbol(ops []MarketOpportunity, cash map[string]float64) []MarketOpportunity {
	best := make(map[string]MarketOpportunity, len(ops))
	for _, op := range ops {
		cur, ok := best[op.Symbol]
		if !ok || betterListing(op, cur, cash) {
			best[op.Symbol] = op
		}
	}
	out := make([]MarketOpportunity, 0, len(best))
	for _, op := range best {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MomentumScore != out[j].MomentumScore {
			return out[i].MomentumScore > out[j].MomentumScore
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func betterListing(a, b MarketOpportunity, cash map[string]float64) bool {
	aCash, bCash := cash[a.Exchange] > 0, cash[b.Exchange] > 0
	if aCash != bCash {
		return aCash
	}
	if a.MomentumScore != b.MomentumScore {
		return a.MomentumScore > b.MomentumScore
	}
	return a.Exchange < b.Exchange
}
