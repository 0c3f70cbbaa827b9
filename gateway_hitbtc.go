// FILE: gateway_hitbtc.go
// Package main – HitBTC spot REST v3 gateway.
//
// Auth: Basic apiKey:secretKey. All money fields on the wire are decimal
// strings; they are parsed with shopspring/decimal before conversion so a
// malformed payload fails loudly instead of silently reading as zero.
//
// Market buys are quantity-denominated on HitBTC, so the buy leg snapshots
// the batch price endpoint first and converts the quote amount to base.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// hitbtcInsufficientFunds is HitBTC's error code for an uncovered order.
const hitbtcInsufficientFunds = 20001

type HitBTCGateway struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	apiSecret string
}

func NewHitBTCGatewayFromEnv() (*HitBTCGateway, error) {
	apiKey := getEnv("HITBTC_API_KEY", "")
	apiSecret := getEnv("HITBTC_API_SECRET", "")
	if apiKey == "" || apiSecret == "" {
		return nil, errors.New("HITBTC_API_KEY and HITBTC_API_SECRET must be set")
	}
	base := getEnv("HITBTC_API_BASE", "https://api.hitbtc.com/api/3")
	return &HitBTCGateway{
		client:    &http.Client{Timeout: 15 * time.Second},
		baseURL:   strings.TrimRight(base, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
	}, nil
}

func (g *HitBTCGateway) Name() string { return "hitbtc" }

// ---- interface methods ----

func (g *HitBTCGateway) GetBatchPrice(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}
	path := "/public/price/ticker?symbols=" + url.QueryEscape(strings.Join(symbols, ","))
	data, err := g.doReq(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var rows map[string]struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode price ticker: %w", err)
	}
	out := make(map[string]float64, len(rows))
	for sym, row := range rows {
		px, perr := parseDecimal(row.Price)
		if perr != nil || px <= 0 {
			continue
		}
		out[sym] = px
	}
	return out, nil
}

func (g *HitBTCGateway) ListTickers(ctx context.Context) ([]Ticker, error) {
	data, err := g.doReq(ctx, http.MethodGet, "/public/ticker", nil)
	if err != nil {
		return nil, err
	}
	var rows map[string]struct {
		Last        string `json:"last"`
		Open        string `json:"open"`
		VolumeQuote string `json:"volume_quote"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode ticker: %w", err)
	}
	out := make([]Ticker, 0, len(rows))
	for sym, row := range rows {
		if !strings.HasSuffix(sym, "USDT") && !strings.HasSuffix(sym, "USD") {
			continue
		}
		last, e1 := parseDecimal(row.Last)
		open, e2 := parseDecimal(row.Open)
		vol, e3 := parseDecimal(row.VolumeQuote)
		if e1 != nil || e2 != nil || e3 != nil || last <= 0 || open <= 0 {
			continue
		}
		out = append(out, Ticker{
			Symbol:      sym,
			LastPrice:   last,
			ChangePct:   (last - open) / open * 100.0,
			QuoteVolume: vol,
		})
	}
	return out, nil
}

func (g *HitBTCGateway) MarketBuy(ctx context.Context, symbol string, quoteUSD float64) (*Fill, error) {
	if quoteUSD <= 0 {
		return nil, fmt.Errorf("%w: quoteUSD=%.2f", ErrInvalidInput, quoteUSD)
	}
	prices, err := g.GetBatchPrice(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	px := prices[symbol]
	if px <= 0 {
		return nil, fmt.Errorf("%w: no price for %s", ErrOrderRejected, symbol)
	}
	return g.placeMarket(ctx, symbol, SideBuy, quoteUSD/px, px)
}

func (g *HitBTCGateway) MarketSell(ctx context.Context, symbol string, qty float64) (*Fill, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: qty=%.8f", ErrInvalidInput, qty)
	}
	prices, err := g.GetBatchPrice(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	px := prices[symbol]
	if px <= 0 {
		return nil, fmt.Errorf("%w: no price for %s", ErrOrderRejected, symbol)
	}
	return g.placeMarket(ctx, symbol, SideSell, qty, px)
}

func (g *HitBTCGateway) GetBalance(ctx context.Context) (map[string]float64, error) {
	data, err := g.doReq(ctx, http.MethodGet, "/spot/balance", nil)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Currency  string `json:"currency"`
		Available string `json:"available"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}
	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		avail, perr := parseDecimal(row.Available)
		if perr != nil || avail <= 0 {
			continue
		}
		out[strings.ToUpper(row.Currency)] = avail
	}
	return out, nil
}

// ---- order placement ----

func (g *HitBTCGateway) placeMarket(ctx context.Context, symbol string, side OrderSide, qty, snapPrice float64) (*Fill, error) {
	payload := map[string]any{
		"symbol":   symbol,
		"side":     strings.ToLower(string(side)),
		"type":     "market",
		"quantity": trimFloat(qty, 8),
	}
	bs, _ := json.Marshal(payload)
	data, err := g.doReq(ctx, http.MethodPost, "/spot/order", bytes.NewReader(bs))
	if err != nil {
		return nil, err
	}
	var report struct {
		ID                 int64  `json:"id"`
		Status             string `json:"status"`
		QuantityCumulative string `json:"quantity_cumulative"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode order report: %w", err)
	}
	filled, _ := parseDecimal(report.QuantityCumulative)
	if filled <= 0 {
		return nil, fmt.Errorf("%w: hitbtc order %d status=%s", ErrZeroFill, report.ID, report.Status)
	}
	return &Fill{
		OrderID:     fmt.Sprintf("%d", report.ID),
		Symbol:      symbol,
		Exchange:    g.Name(),
		Side:        side,
		FilledQty:   filled,
		FilledPrice: snapPrice, // HitBTC market reports omit an average price
		QuoteSpent:  filled * snapPrice,
		CreateTime:  time.Now().UTC(),
	}, nil
}

// ---- transport ----

func (g *HitBTCGateway) doReq(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(g.apiKey, g.apiSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: hitbtc %s %s: %v", ErrExchangeUnavailable, method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: hitbtc read: %v", ErrExchangeUnavailable, err)
	}
	if resp.StatusCode >= 300 {
		return nil, mapHitBTCErr(resp.StatusCode, data)
	}
	return data, nil
}

func mapHitBTCErr(status int, body []byte) error {
	var apiErr struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	if apiErr.Error.Code == hitbtcInsufficientFunds {
		return fmt.Errorf("%w: hitbtc: %s", ErrInsufficientFunds, apiErr.Error.Message)
	}
	if status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fmt.Errorf("%w: hitbtc %d: %s", ErrOrderRejected, status, strings.TrimSpace(string(body)))
	}
	return fmt.Errorf("%w: hitbtc %d: %s", ErrExchangeUnavailable, status, strings.TrimSpace(string(body)))
}

// parseDecimal converts a wire decimal string to float64, rejecting malformed
// and empty values instead of defaulting them to zero.
func parseDecimal(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}
