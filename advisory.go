// FILE: advisory.go
// Package main – Advisory signal port.
//
// The engine never computes directional hints itself: it consumes a bounded
// support/pressure/confidence score from an external provider. When nothing
// is wired, the neutral advisor answers 0.5/0.5 with zero confidence, so
// callers weight it to nothing instead of special-casing absence.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AdvisorySignal is a bounded external hint. All fields are in [0,1].
type AdvisorySignal struct {
	Support    float64 `json:"support"`
	Pressure   float64 `json:"pressure"`
	Confidence float64 `json:"confidence"`
}

// Clamped returns the signal with every field forced into [0,1]. Providers
// are external; the engine never trusts their ranges.
func (s AdvisorySignal) Clamped() AdvisorySignal {
	c := func(x float64) float64 {
		if x < 0 {
			return 0
		}
		if x > 1 {
			return 1
		}
		return x
	}
	return AdvisorySignal{Support: c(s.Support), Pressure: c(s.Pressure), Confidence: c(s.Confidence)}
}

// AdvisorySignalProvider is the port consumed by the monitor loop.
type AdvisorySignalProvider interface {
	GetSignal(ctx context.Context, symbol string, side OrderSide, currentPrice, recentPnLPct float64) AdvisorySignal
}

// NeutralAdvisor is the explicit no-op implementation used when no external
// provider is configured.
type NeutralAdvisor struct{}

func (NeutralAdvisor) GetSignal(ctx context.Context, symbol string, side OrderSide, currentPrice, recentPnLPct float64) AdvisorySignal {
	return AdvisorySignal{Support: 0.5, Pressure: 0.5, Confidence: 0}
}

// HTTPAdvisor queries an external advisory service over REST. Any failure
// degrades to the neutral signal; advisory outages must never stall a tick.
type HTTPAdvisor struct {
	base string
	hc   *http.Client
}

func NewHTTPAdvisor(base string) *HTTPAdvisor {
	return &HTTPAdvisor{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 2 * time.Second},
	}
}

func (a *HTTPAdvisor) GetSignal(ctx context.Context, symbol string, side OrderSide, currentPrice, recentPnLPct float64) AdvisorySignal {
	neutral := NeutralAdvisor{}.GetSignal(ctx, symbol, side, currentPrice, recentPnLPct)

	u := fmt.Sprintf("%s/signal?symbol=%s&side=%s&price=%.8f&pnl_pct=%.4f",
		a.base, url.QueryEscape(symbol), url.QueryEscape(string(side)), currentPrice, recentPnLPct)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return neutral
	}
	resp, err := a.hc.Do(req)
	if err != nil {
		return neutral
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return neutral
	}
	var sig AdvisorySignal
	if err := json.NewDecoder(resp.Body).Decode(&sig); err != nil {
		return neutral
	}
	return sig.Clamped()
}
