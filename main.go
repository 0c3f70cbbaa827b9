// FILE: main.go
// Package main – Program entrypoint and HTTP/metrics server.
//
// Boot sequence:
//   1) loadEngineEnv()             – hydrate process env from .env
//   2) cfg := loadConfigFromEnv()  – build runtime Config
//   3) wire gateways/advisor/scanner/ledger/cash/audit/monitor
//   4) start Prometheus /healthz server on cfg.Port
//   5) run the monitor loop
//
// Flags:
//   -mode <m>      Override MODE (autonomous|pack|monitor|fast|single)
//   -symbol <s>    Override SYMBOL for single mode
//
// Interrupt handling: the first Ctrl-C is caught exactly once and presented
// as a three-way operator choice: close all profitable positions, keep
// everything open, or resume monitoring. Open positions are live capital;
// the engine never silently walks away from them, and no timeout ever closes
// a position on its own.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var modeFlag, symbolFlag string
	flag.StringVar(&modeFlag, "mode", "", "Operating mode (autonomous|pack|monitor|fast|single)")
	flag.StringVar(&symbolFlag, "symbol", "", "Symbol for single mode, e.g. BTCUSDT")
	flag.Parse()

	loadEngineEnv()
	cfg := loadConfigFromEnv()
	if modeFlag != "" {
		cfg.Mode = parseMode(modeFlag)
	}
	if symbolFlag != "" {
		cfg.Symbol = symbolFlag
		cfg.Mode = ModeSingle
	}

	// ---- Gateway wiring (explicit DI; no global singletons) ----
	gateways := make(map[string]ExchangeGateway)
	sched := make(map[string]FeeSchedule)
	for _, name := range cfg.Exchanges {
		gw, err := buildGateway(name)
		if err != nil {
			log.Printf("[WARN] gateway %s not wired: %v", name, err)
			continue
		}
		gateways[name] = gw
		sched[name] = feeScheduleFromEnv(name)
	}
	if len(gateways) == 0 {
		log.Printf("[BOOT] no exchange gateways configured; falling back to paper")
		gateways["paper"] = NewPaperGateway()
		sched["paper"] = feeScheduleFromEnv("paper")
	}

	var advisor AdvisorySignalProvider = NeutralAdvisor{}
	if cfg.AdvisoryURL != "" {
		advisor = NewHTTPAdvisor(cfg.AdvisoryURL)
		log.Printf("[BOOT] advisory provider wired: %s", cfg.AdvisoryURL)
	}

	audit, err := NewAuditLog(cfg.AuditFile)
	if err != nil {
		log.Fatalf("audit trail init: %v", err)
	}

	ledger := NewLedger(cfg.TargetPct, cfg.AccumulationCap)
	scanner := NewScanner(gateways, cfg.VolumeNormalizer, audit)
	cash := NewCashAllocator(gateways)
	monitor := NewMonitor(cfg, ledger, scanner, advisor, gateways, cash, audit, sched)

	// ---- HTTP metrics/health ----
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}
	go func() {
		log.Printf("serving metrics on :%d/metrics", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	// ---- Run loop with interactive interrupt ----
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		monitor.Run(ctx)
		close(done)
	}()

	runInterruptMenu(ctx, cancel, done, monitor)
	<-done

	shutdownCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
	defer c()
	_ = srv.Shutdown(shutdownCtx)
}

func buildGateway(name string) (ExchangeGateway, error) {
	switch strings.ToLower(name) {
	case "paper":
		return NewPaperGateway(), nil
	case "binance":
		return NewBinanceGatewayFromEnv()
	case "hitbtc":
		return NewHitBTCGatewayFromEnv()
	default:
		return nil, fmt.Errorf("unknown exchange %q", name)
	}
}

// stopThenCloseProfitable stops the monitor loop, waits for it to drain, and
// only then closes profitable positions. The loop is the ledger's sole
// writer; the abort must never run beside a live tick.
func stopThenCloseProfitable(cancel context.CancelFunc, done <-chan struct{}, monitor *Monitor) (closed, kept int) {
	cancel()
	<-done
	abortCtx, c := context.WithTimeout(context.Background(), 30*time.Second)
	defer c()
	return monitor.CloseProfitable(abortCtx)
}

// runInterruptMenu blocks until the engine should stop. Each interrupt is
// caught once; while the menu is open further signals fall through to the
// default handler, so a second Ctrl-C still force-kills a wedged process.
func runInterruptMenu(ctx context.Context, cancel context.CancelFunc, done <-chan struct{}, monitor *Monitor) {
	in := bufio.NewReader(os.Stdin)
	for {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		sig := <-sigCh
		signal.Stop(sigCh)

		if sig == syscall.SIGTERM {
			// non-interactive supervisor stop: keep everything open
			log.Printf("[ABORT] SIGTERM: keeping %d positions open", len(monitor.Snapshot()))
			cancel()
			return
		}

		fmt.Println()
		fmt.Printf("interrupt: %d open positions, equity %.2f USD\n", len(monitor.Snapshot()), monitor.EquityUSD())
		fmt.Println("  1) close all profitable positions and stop")
		fmt.Println("  2) keep everything open and stop")
		fmt.Println("  3) resume monitoring")
		fmt.Print("choice [1/2/3]: ")

		line, err := in.ReadString('\n')
		if err != nil {
			log.Printf("[ABORT] stdin closed; keeping positions open")
			cancel()
			return
		}
		switch strings.TrimSpace(line) {
		case "1":
			closed, kept := stopThenCloseProfitable(cancel, done, monitor)
			log.Printf("[ABORT] closed=%d kept=%d (unprofitable positions stay open)", closed, kept)
			return
		case "2":
			log.Printf("[ABORT] keeping %d positions open", len(monitor.Snapshot()))
			cancel()
			return
		default:
			log.Printf("resuming monitoring")
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}
}
