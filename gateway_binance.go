// FILE: gateway_binance.go
// Package main – Binance spot gateway via the adshao/go-binance SDK.
//
// GetBatchPrice maps to the batched /ticker/price endpoint (one upstream
// request regardless of symbol count), ListTickers to the 24h stats endpoint,
// orders to market CreateOrder with quote sizing on the buy leg.
package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

// binanceInsufficientBalance is the API code Binance returns when the account
// cannot cover a new order.
const binanceInsufficientBalance = -2010

type BinanceGateway struct {
	client *binance.Client
}

func NewBinanceGatewayFromEnv() (*BinanceGateway, error) {
	apiKey := getEnv("BINANCE_API_KEY", "")
	apiSecret := getEnv("BINANCE_API_SECRET", "")
	if apiKey == "" || apiSecret == "" {
		return nil, errors.New("BINANCE_API_KEY and BINANCE_API_SECRET must be set")
	}
	if getEnvBool("BINANCE_USE_TESTNET", false) {
		binance.UseTestnet = true
	}
	return &BinanceGateway{client: binance.NewClient(apiKey, apiSecret)}, nil
}

func (b *BinanceGateway) Name() string { return "binance" }

func (b *BinanceGateway) GetBatchPrice(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}
	prices, err := b.client.NewListPricesService().Symbols(symbols).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: binance prices: %v", ErrExchangeUnavailable, err)
	}
	out := make(map[string]float64, len(prices))
	for _, sp := range prices {
		px, perr := strconv.ParseFloat(sp.Price, 64)
		if perr != nil || px <= 0 {
			continue
		}
		out[sp.Symbol] = px
	}
	return out, nil
}

func (b *BinanceGateway) ListTickers(ctx context.Context) ([]Ticker, error) {
	stats, err := b.client.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: binance 24h stats: %v", ErrExchangeUnavailable, err)
	}
	out := make([]Ticker, 0, 256)
	for _, st := range stats {
		// USDT spot pairs only; leveraged tokens distort momentum ranking.
		if !strings.HasSuffix(st.Symbol, "USDT") ||
			strings.Contains(st.Symbol, "UPUSDT") || strings.Contains(st.Symbol, "DOWNUSDT") {
			continue
		}
		last, _ := strconv.ParseFloat(st.LastPrice, 64)
		chg, _ := strconv.ParseFloat(st.PriceChangePercent, 64)
		vol, _ := strconv.ParseFloat(st.QuoteVolume, 64)
		if last <= 0 {
			continue
		}
		out = append(out, Ticker{Symbol: st.Symbol, LastPrice: last, ChangePct: chg, QuoteVolume: vol})
	}
	return out, nil
}

func (b *BinanceGateway) MarketBuy(ctx context.Context, symbol string, quoteUSD float64) (*Fill, error) {
	if quoteUSD <= 0 {
		return nil, fmt.Errorf("%w: quoteUSD=%.2f", ErrInvalidInput, quoteUSD)
	}
	res, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(trimFloat(quoteUSD, 2)).
		Do(ctx)
	if err != nil {
		return nil, mapBinanceOrderErr(err)
	}
	return binanceFill(res, SideBuy)
}

func (b *BinanceGateway) MarketSell(ctx context.Context, symbol string, qty float64) (*Fill, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: qty=%.8f", ErrInvalidInput, qty)
	}
	res, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(trimFloat(qty, 8)).
		Do(ctx)
	if err != nil {
		return nil, mapBinanceOrderErr(err)
	}
	return binanceFill(res, SideSell)
}

func (b *BinanceGateway) GetBalance(ctx context.Context) (map[string]float64, error) {
	acct, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: binance account: %v", ErrExchangeUnavailable, err)
	}
	out := make(map[string]float64, len(acct.Balances))
	for _, bal := range acct.Balances {
		free, perr := strconv.ParseFloat(bal.Free, 64)
		if perr != nil || free <= 0 {
			continue
		}
		out[strings.ToUpper(bal.Asset)] = free
	}
	return out, nil
}

// binanceFill normalizes a CreateOrderResponse. An accepted order with no
// executed quantity surfaces as ErrZeroFill so the caller retries next cycle.
func binanceFill(res *binance.CreateOrderResponse, side OrderSide) (*Fill, error) {
	execQty, _ := strconv.ParseFloat(res.ExecutedQuantity, 64)
	quote, _ := strconv.ParseFloat(res.CummulativeQuoteQuantity, 64)
	if execQty <= 0 {
		return nil, fmt.Errorf("%w: binance order %d", ErrZeroFill, res.OrderID)
	}
	avg := quote / execQty
	return &Fill{
		OrderID:     strconv.FormatInt(res.OrderID, 10),
		Symbol:      res.Symbol,
		Exchange:    "binance",
		Side:        side,
		FilledQty:   execQty,
		FilledPrice: avg,
		QuoteSpent:  quote,
		CreateTime:  time.UnixMilli(res.TransactTime).UTC(),
	}, nil
}

func mapBinanceOrderErr(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == binanceInsufficientBalance {
			return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
		}
		return fmt.Errorf("%w: %v", ErrOrderRejected, err)
	}
	return fmt.Errorf("%w: %v", ErrExchangeUnavailable, err)
}

// trimFloat formats x with at most dec decimals, trailing zeros removed.
func trimFloat(x float64, dec int) string {
	s := strconv.FormatFloat(x, 'f', dec, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}
