// FILE: monitor.go
// Package main – Position monitor loop: the core lifecycle state machine.
//
// States per position: OPENING → MONITORING → {TargetHit | MomentumExit |
// AdvisoryExit} → CLOSING → CLOSED.
//
// Each tick the loop:
//   1. Refreshes prices with ONE batched call per exchange covering all open
//      symbols. Never one call per symbol; that is how bots get rate-limited
//      into blindness while holding live positions.
//   2. Recomputes net P&L per position and appends to its rolling window.
//   3. Evaluates exits in strict priority: TargetHit, then momentum reversal,
//      then advisory pressure, and never while net P&L ≤ 0. The only path to
//      closing an unprofitable position is an explicit user abort, and even
//      then only profitable ones are auto-closed; the rest stay open.
//
// The loop is the sole writer to the ledger. Exchange I/O runs on worker
// goroutines per exchange but is joined before the loop advances.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

// ExitReason labels why a position was closed.
type ExitReason string

const (
	ExitTargetHit        ExitReason = "target_hit"
	ExitMomentumReversal ExitReason = "momentum_reversal"
	ExitAdvisorySell     ExitReason = "advisory_sell"
	ExitUserAbort        ExitReason = "user_abort"
)

// ExitDecision is the outcome of one evaluation tick for one position.
type ExitDecision struct {
	ShouldClose bool
	Reason      ExitReason
	RealizedPnL float64 // net, if closed at the evaluated price
}

// Monitor drives the lifecycle of all open positions.
type Monitor struct {
	cfg      Config
	ledger   *Ledger
	scanner  *Scanner
	advisor  AdvisorySignalProvider
	gateways map[string]ExchangeGateway
	cash     *CashAllocator
	audit    *AuditLog
	sched    map[string]FeeSchedule

	equityUSD  float64
	dailyPnL   float64
	dailyStart time.Time
	lastScan   time.Time
}

func NewMonitor(cfg Config, ledger *Ledger, scanner *Scanner, advisor AdvisorySignalProvider,
	gateways map[string]ExchangeGateway, cash *CashAllocator, audit *AuditLog,
	sched map[string]FeeSchedule) *Monitor {

	m := &Monitor{
		cfg:        cfg,
		ledger:     ledger,
		scanner:    scanner,
		advisor:    advisor,
		gateways:   gateways,
		cash:       cash,
		audit:      audit,
		sched:      sched,
		equityUSD:  cfg.USDEquity,
		dailyStart: midnightUTC(time.Now().UTC()),
	}
	if cfg.PersistState {
		if err := m.loadState(); err == nil {
			log.Printf("[BOOT] engine state restored from %s (%d positions)", cfg.StateFile, ledger.Len())
		} else if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[WARN] state restore: %v", err)
		}
	}
	return m
}

func midnightUTC(ts time.Time) time.Time {
	y, mo, d := ts.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// Run executes the loop until ctx is cancelled. Price refresh runs every
// TickIntervalSec; candidate scanning on the slower ScanIntervalSec cadence,
// decoupled so scans never inflate the per-tick exchange call budget.
func (m *Monitor) Run(ctx context.Context) {
	log.Printf("[SAFETY] mode=%s max_positions=%d amount_per_position=%.2f target_pct=%.2f min_change_pct=%.2f dry_run=%v",
		m.cfg.Mode, m.cfg.MaxPositions, m.cfg.AmountPerPosition, m.cfg.TargetPct, m.cfg.MinChangePct, m.cfg.DryRun)

	ticker := time.NewTicker(time.Duration(m.cfg.TickIntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.saveState()
			m.audit.Record("shutdown", map[string]any{"open_positions": m.ledger.Len()})
			log.Println("shutdown")
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick is one full loop iteration: refresh, evaluate, maybe scan.
func (m *Monitor) Tick(ctx context.Context) {
	mtxTicks.Inc()
	m.rolloverDaily(time.Now().UTC())

	prices := m.refreshPrices(ctx)
	m.evaluatePositions(ctx, prices)

	if time.Since(m.lastScan) >= time.Duration(m.cfg.ScanIntervalSec)*time.Second {
		m.lastScan = time.Now()
		m.scanAndOpen(ctx)
	}

	mtxOpenPositions.Set(float64(m.ledger.Len()))
	mtxEquity.Set(m.equityUSD)
}

func (m *Monitor) rolloverDaily(now time.Time) {
	if midnightUTC(now) != m.dailyStart {
		log.Printf("[INFO] daily rollover: realized=%.2f", m.dailyPnL)
		m.dailyStart = midnightUTC(now)
		m.dailyPnL = 0
	}
}

// refreshPrices issues one batched price call per exchange, in parallel, and
// joins before returning. The loop body is not re-entrant; nothing downstream
// runs until every fetch has finished or failed.
func (m *Monitor) refreshPrices(ctx context.Context) map[string]float64 {
	bySymbols := m.ledger.SymbolsByExchange()
	if len(bySymbols) == 0 {
		return nil
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		prices = make(map[string]float64)
	)
	for name, symbols := range bySymbols {
		gw, ok := m.gateways[name]
		if !ok {
			log.Printf("[WARN] refresh: no gateway wired for %s", name)
			continue
		}
		wg.Add(1)
		go func(name string, gw ExchangeGateway, symbols []string) {
			defer wg.Done()
			ctxPx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			got, err := gw.GetBatchPrice(ctxPx, symbols)
			if err != nil {
				log.Printf("[WARN] refresh: %s batch price: %v", name, err)
				return
			}
			mu.Lock()
			for sym, px := range got {
				prices[sym] = px
			}
			mu.Unlock()
		}(name, gw, symbols)
	}
	wg.Wait()
	return prices
}

func (m *Monitor) evaluatePositions(ctx context.Context, prices map[string]float64) {
	for _, p := range m.ledger.Positions() {
		px, ok := prices[p.Symbol]
		if !ok || px <= 0 {
			continue // stale tick; keep last known state
		}
		p.History.Push(px)
		p.LastPrice = px

		sched := m.sched[p.Exchange]
		pnl, err := RealizedPnL(p.AvgEntryPrice, p.Quantity, px, p.Quantity, sched)
		if err != nil {
			log.Printf("[WARN] pnl %s: %v", p.Symbol, err)
			continue
		}
		p.UnrealizedNet = pnl.NetPnL

		sig := m.advisor.GetSignal(ctx, p.Symbol, SideSell, px, pnl.NetPnLPct).Clamped()
		dec := m.evaluateExit(p, px, sig)
		if dec.ShouldClose {
			// monitor mode observes restored positions but never orders;
			// only the explicit operator abort may sell.
			if m.cfg.Mode == ModeMonitor {
				log.Printf("TRACE monitor-mode hold symbol=%s reason=%s net=%.4f", p.Symbol, dec.Reason, dec.RealizedPnL)
				continue
			}
			m.closePosition(ctx, p, px, dec.Reason)
			continue
		}
		m.maybeAccumulate(ctx, p, px)
	}
}

// evaluateExit applies the exit policy for one position at one price. Pure
// and synchronous; all I/O happens before or after.
func (m *Monitor) evaluateExit(p *Position, price float64, sig AdvisorySignal) ExitDecision {
	sched := m.sched[p.Exchange]
	pnl, err := RealizedPnL(p.AvgEntryPrice, p.Quantity, price, p.Quantity, sched)
	if err != nil {
		return ExitDecision{}
	}

	// The defining invariant: no exit condition fires while net P&L ≤ 0,
	// no matter how ugly momentum or advisory pressure looks.
	if pnl.NetPnL <= 0 {
		return ExitDecision{RealizedPnL: pnl.NetPnL}
	}

	if price >= p.TargetPrice {
		return ExitDecision{ShouldClose: true, Reason: ExitTargetHit, RealizedPnL: pnl.NetPnL}
	}

	if window := p.History.Last(m.cfg.MomentumWindow); len(window) >= m.cfg.MomentumWindow {
		if trailingMomentumPct(window) < -m.cfg.ReversalPct {
			return ExitDecision{ShouldClose: true, Reason: ExitMomentumReversal, RealizedPnL: pnl.NetPnL}
		}
	}

	if (sig.Pressure-sig.Support)*sig.Confidence > m.cfg.AdvisoryExitThreshold {
		return ExitDecision{ShouldClose: true, Reason: ExitAdvisorySell, RealizedPnL: pnl.NetPnL}
	}

	return ExitDecision{RealizedPnL: pnl.NetPnL}
}

// trailingMomentumPct is the percent move across the sample window.
func trailingMomentumPct(window []float64) float64 {
	if len(window) < 2 || window[0] <= 0 {
		return 0
	}
	return (window[len(window)-1] - window[0]) / window[0] * 100.0
}

// closePosition sells the full position. Any failure leaves the position in
// MONITORING; a failed sell must never convert into a CLOSED loss.
func (m *Monitor) closePosition(ctx context.Context, p *Position, price float64, reason ExitReason) {
	gw, ok := m.gateways[p.Exchange]
	if !ok {
		log.Printf("[WARN] close %s: no gateway for %s", p.Symbol, p.Exchange)
		return
	}
	p.State = StateClosing

	log.Printf("TRACE order.close request symbol=%s qty=%.8f priceSnap=%.8f reason=%s", p.Symbol, p.Quantity, price, reason)
	fill, err := gw.MarketSell(ctx, p.Symbol, p.Quantity)
	if err != nil {
		p.State = StateMonitoring
		if errors.Is(err, ErrZeroFill) {
			log.Printf("TRACE order.close zero-fill symbol=%s; retrying next cycle", p.Symbol)
			return
		}
		log.Printf("[WARN] close %s: %v", p.Symbol, err)
		m.audit.Record("exit_error", map[string]any{
			"symbol": p.Symbol, "exchange": p.Exchange, "reason": string(reason), "error": err.Error(),
		})
		return
	}

	exitPx := price
	if fill.FilledPrice > 0 {
		exitPx = fill.FilledPrice
	}
	snap, err := m.ledger.Close(p.Symbol, exitPx, m.sched[p.Exchange])
	if err != nil {
		log.Printf("[WARN] ledger close %s: %v", p.Symbol, err)
		return
	}

	m.equityUSD += snap.PnL.NetPnL
	m.dailyPnL += snap.PnL.NetPnL
	mtxOrders.WithLabelValues(m.orderMode(), "sell").Inc()
	mtxExitReasons.WithLabelValues(string(reason)).Inc()
	if snap.PnL.NetPnL >= 0 {
		mtxTrades.WithLabelValues("win").Inc()
	}
	m.audit.Record("exit", map[string]any{
		"symbol": snap.Symbol, "exchange": snap.Exchange, "reason": string(reason),
		"order_id": fill.OrderID, "exit_price": exitPx, "qty": snap.Quantity,
		"net_pnl": snap.PnL.NetPnL, "fees": snap.PnL.Fees,
	})
	msg := fmt.Sprintf("EXIT %s at %.8f reason=%s P/L=%.2f (fees=%.4f)",
		snap.Symbol, exitPx, reason, snap.PnL.NetPnL, snap.PnL.Fees)
	log.Printf("%s", msg)
	postSlack(msg)
	m.saveState()
}

// maybeAccumulate applies the DCA policy: the current price sits at least
// AccumulationDropPct below the average entry, the cap has headroom, the
// cooldown has passed, and a fresh cash gate allows the buy. Lowering the
// average entry here is deliberate risk amplification, not an oversight.
func (m *Monitor) maybeAccumulate(ctx context.Context, p *Position, price float64) {
	if m.cfg.Mode == ModeMonitor {
		return
	}
	if price > p.AvgEntryPrice*(1.0-m.cfg.AccumulationDropPct/100.0) {
		return
	}
	if p.AccumulationCount >= m.cfg.AccumulationCap {
		return
	}
	if cooldown := time.Duration(m.cfg.AccumulationCooldownSec) * time.Second; time.Since(p.lastFillTime()) < cooldown {
		return
	}
	if !m.cash.GateEntry(ctx, p.Exchange, m.cfg.AmountPerPosition) {
		return
	}

	gw := m.gateways[p.Exchange]
	fill, err := gw.MarketBuy(ctx, p.Symbol, m.cfg.AmountPerPosition)
	if err != nil {
		if errors.Is(err, ErrZeroFill) {
			log.Printf("TRACE accumulate zero-fill symbol=%s; retrying next cycle", p.Symbol)
			return
		}
		log.Printf("[WARN] accumulate %s: %v", p.Symbol, err)
		m.audit.Record("accumulate_error", map[string]any{"symbol": p.Symbol, "error": err.Error()})
		return
	}

	before := p.BreakevenPrice
	if _, err := m.ledger.Accumulate(p.Symbol, p.Exchange, fill.FilledPrice, fill.FilledQty, m.sched[p.Exchange]); err != nil {
		// Cap raced ahead of the pre-check; the fill still happened, so the
		// position keeps the extra quantity out of band. Loudly.
		log.Printf("[WARN] accumulate merge %s: %v", p.Symbol, err)
		return
	}
	p.AccumulatedAt = time.Now().UTC()
	mtxOrders.WithLabelValues(m.orderMode(), "buy").Inc()
	mtxAccumulations.Inc()
	m.audit.Record("accumulate", map[string]any{
		"symbol": p.Symbol, "exchange": p.Exchange, "order_id": fill.OrderID,
		"fill_price": fill.FilledPrice, "fill_qty": fill.FilledQty,
		"count": p.AccumulationCount, "avg_entry": p.AvgEntryPrice,
	})
	log.Printf("TRACE accumulate symbol=%s fill=%.8f avg=%.8f breakeven %.8f->%.8f count=%d",
		p.Symbol, fill.FilledPrice, p.AvgEntryPrice, before, p.BreakevenPrice, p.AccumulationCount)
	m.saveState()
}

// scanAndOpen runs the slower-cadence scan and opens new entries while slots
// and cash allow. Monitor mode scans for visibility but never orders.
func (m *Monitor) scanAndOpen(ctx context.Context) {
	slots := m.cfg.MaxPositions - m.ledger.Len()
	if slots <= 0 {
		return
	}

	cash := m.cash.AvailableCash(ctx)
	ops := m.scanner.Scan(ctx, m.cfg.MinChangePct, m.cfg.MinVolume, cash)
	if m.cfg.Mode == ModeSingle {
		ops = filterSymbol(ops, m.cfg.Symbol)
	}
	if len(ops) == 0 {
		return
	}
	m.audit.Record("scan", map[string]any{"candidates": len(ops), "top": ops[0].Symbol})
	if m.cfg.Mode == ModeMonitor {
		return
	}

	// pack mode fills every free slot from one scan; other modes pace
	// themselves to one entry per pass.
	perPass := 1
	if m.cfg.Mode == ModePack {
		perPass = slots
	}

	opened := 0
	for _, op := range ops {
		if opened >= perPass || m.ledger.Len() >= m.cfg.MaxPositions {
			break
		}
		if m.ledger.Has(op.Symbol) {
			continue // adds to held symbols go through the accumulation policy
		}
		if m.openPosition(ctx, op) {
			opened++
		}
	}
}

// openPosition performs the OPENING transition: the cash gate is re-checked
// immediately before the buy, never reused from the scan.
func (m *Monitor) openPosition(ctx context.Context, op MarketOpportunity) bool {
	if !m.cash.GateEntry(ctx, op.Exchange, m.cfg.AmountPerPosition) {
		log.Printf("TRACE open gate-denied symbol=%s exchange=%s amount=%.2f", op.Symbol, op.Exchange, m.cfg.AmountPerPosition)
		return false
	}
	gw, ok := m.gateways[op.Exchange]
	if !ok {
		return false
	}

	fill, err := gw.MarketBuy(ctx, op.Symbol, m.cfg.AmountPerPosition)
	if err != nil {
		if errors.Is(err, ErrZeroFill) {
			log.Printf("TRACE open zero-fill symbol=%s; retrying next cycle", op.Symbol)
			return false
		}
		log.Printf("[WARN] open %s on %s: %v", op.Symbol, op.Exchange, err)
		m.audit.Record("open_error", map[string]any{
			"symbol": op.Symbol, "exchange": op.Exchange, "error": err.Error(),
		})
		return false
	}

	p, err := m.ledger.Accumulate(op.Symbol, op.Exchange, fill.FilledPrice, fill.FilledQty, m.sched[op.Exchange])
	if err != nil {
		log.Printf("[WARN] ledger open %s: %v", op.Symbol, err)
		return false
	}
	mtxOrders.WithLabelValues(m.orderMode(), "buy").Inc()
	mtxTrades.WithLabelValues("open").Inc()
	m.audit.Record("open", map[string]any{
		"symbol": p.Symbol, "exchange": p.Exchange, "order_id": fill.OrderID,
		"entry_price": p.EntryPrice, "qty": p.Quantity,
		"breakeven": p.BreakevenPrice, "target": p.TargetPrice,
		"momentum_score": op.MomentumScore,
	})
	log.Printf("OPEN %s on %s at %.8f qty=%.8f breakeven=%.8f target=%.8f score=%.2f",
		p.Symbol, p.Exchange, p.EntryPrice, p.Quantity, p.BreakevenPrice, p.TargetPrice, op.MomentumScore)
	m.saveState()
	return true
}

// CloseProfitable force-closes every position whose net P&L at the latest
// price is positive (user abort). Unprofitable positions are kept open and
// reported; they are live capital, not cleanup.
func (m *Monitor) CloseProfitable(ctx context.Context) (closed, kept int) {
	prices := m.refreshPrices(ctx)
	for _, p := range m.ledger.Positions() {
		px, ok := prices[p.Symbol]
		if !ok || px <= 0 {
			px = p.LastPrice
		}
		if px <= 0 {
			kept++
			continue
		}
		pnl, err := RealizedPnL(p.AvgEntryPrice, p.Quantity, px, p.Quantity, m.sched[p.Exchange])
		if err != nil || pnl.NetPnL <= 0 {
			kept++
			mtxTrades.WithLabelValues("abort_kept").Inc()
			log.Printf("[ABORT] keeping %s open: net=%.2f at %.8f (only profitable positions auto-close)",
				p.Symbol, pnl.NetPnL, px)
			m.audit.Record("abort_kept", map[string]any{"symbol": p.Symbol, "net_pnl": pnl.NetPnL})
			continue
		}
		m.closePosition(ctx, p, px, ExitUserAbort)
		if !m.ledger.Has(p.Symbol) {
			closed++
		} else {
			kept++
		}
	}
	m.saveState()
	return closed, kept
}

// Snapshot reports current holdings for the operator menu.
func (m *Monitor) Snapshot() []*Position { return m.ledger.Positions() }

func (m *Monitor) EquityUSD() float64 { return m.equityUSD }

func (m *Monitor) orderMode() string {
	if m.cfg.DryRun {
		return "paper"
	}
	return "live"
}

// ---- Persistence ----

// engineState is the persisted snapshot written after every mutation.
type engineState struct {
	EquityUSD  float64     `json:"equity_usd"`
	DailyPnL   float64     `json:"daily_pnl"`
	DailyStart time.Time   `json:"daily_start"`
	Positions  []*Position `json:"positions"`
}

func (m *Monitor) saveState() {
	if !m.cfg.PersistState || m.cfg.StateFile == "" {
		return
	}
	st := engineState{
		EquityUSD:  m.equityUSD,
		DailyPnL:   m.dailyPnL,
		DailyStart: m.dailyStart,
		Positions:  m.ledger.Positions(),
	}
	bs, err := json.MarshalIndent(st, "", " ")
	if err != nil {
		log.Printf("[WARN] saveState: %v", err)
		return
	}
	tmp := m.cfg.StateFile + ".tmp"
	if err := os.WriteFile(tmp, bs, 0644); err != nil {
		log.Printf("[WARN] saveState: %v", err)
		return
	}
	if err := os.Rename(tmp, m.cfg.StateFile); err != nil {
		log.Printf("[WARN] saveState: %v", err)
	}
}

func (m *Monitor) loadState() error {
	bs, err := os.ReadFile(m.cfg.StateFile)
	if err != nil {
		return err
	}
	var st engineState
	if err := json.Unmarshal(bs, &st); err != nil {
		return err
	}
	if st.EquityUSD > 0 {
		m.equityUSD = st.EquityUSD
	}
	m.dailyPnL = st.DailyPnL
	if !st.DailyStart.IsZero() {
		m.dailyStart = st.DailyStart
	}
	m.ledger.Restore(st.Positions)
	return nil
}

// ---- Notifications ----

// postSlack sends a best-effort webhook message if SLACK_WEBHOOK is set.
// Errors are ignored; notifications never gate trading.
func postSlack(msg string) {
	hook := getEnv("SLACK_WEBHOOK", "")
	if hook == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	body, _ := json.Marshal(map[string]string{"text": msg})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func filterSymbol(ops []MarketOpportunity, symbol string) []MarketOpportunity {
	out := ops[:0]
	for _, op := range ops {
		if op.Symbol == symbol {
			out = append(out, op)
		}
	}
	return out
}
