// FILE: config.go
// Package main – Runtime configuration model and loader.
//
// Config holds every knob the engine uses; loadConfigFromEnv populates it
// from environment variables already hydrated by loadEngineEnv (see env.go).
//
// Momentum and accumulation thresholds are deliberately env-tunable: the
// shipped defaults carry no empirical weight.
package main

import (
	"log"
	"strings"
)

// Mode selects the engine's operating profile.
type Mode string

const (
	ModeAutonomous Mode = "autonomous" // scan and trade, one entry per scan pass
	ModePack       Mode = "pack"       // fill every open slot from a single scan
	ModeMonitor    Mode = "monitor"    // observe only, never place orders
	ModeFast       Mode = "fast"       // autonomous with tighter cadences
	ModeSingle     Mode = "single"     // restrict the scanner to one symbol
)

func parseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePack:
		return ModePack
	case ModeMonitor:
		return ModeMonitor
	case ModeFast:
		return ModeFast
	case ModeSingle:
		return ModeSingle
	default:
		return ModeAutonomous
	}
}

// Config holds all runtime knobs for trading and operations.
type Config struct {
	Mode      Mode
	Symbol    string   // single mode only
	Exchanges []string // gateway names to wire, e.g. ["binance","hitbtc"]

	// Sizing & selection
	MaxPositions      int
	AmountPerPosition float64 // quote USD per entry
	TargetPct         float64 // net profit target above breakeven, percent
	MinChangePct      float64 // scanner floor on |24h change|
	MinVolume         float64 // scanner floor on quote volume
	VolumeNormalizer  float64 // volume saturation point in the momentum score

	// Exit & accumulation policy
	ReversalPct             float64 // trailing momentum exit threshold, percent
	MomentumWindow          int     // samples for the trailing momentum window
	AdvisoryExitThreshold   float64 // (pressure-support)*confidence trigger
	AccumulationDropPct     float64 // drop from avg entry that allows a DCA add
	AccumulationCap         int
	AccumulationCooldownSec int // minimum gap between fills on one position

	// Cadence
	TickIntervalSec int // batched price refresh
	ScanIntervalSec int // candidate scan (decoupled, slower)

	// Ops
	DryRun       bool
	Port         int
	AuditFile    string
	StateFile    string
	PersistState bool
	AdvisoryURL  string // optional external advisory service
	USDEquity    float64
}

// loadConfigFromEnv reads the process env and returns a Config with sane
// defaults where keys are missing.
func loadConfigFromEnv() Config {
	cfg := Config{
		Mode:      parseMode(getEnv("MODE", string(ModeAutonomous))),
		Symbol:    getEnv("SYMBOL", ""),
		Exchanges: splitCSV(getEnv("EXCHANGES", "paper")),

		MaxPositions:      getEnvInt("MAX_POSITIONS", 5),
		AmountPerPosition: getEnvFloat("AMOUNT_PER_POSITION", 25.0),
		TargetPct:         getEnvFloat("TARGET_PCT", 1.0),
		MinChangePct:      getEnvFloat("MIN_CHANGE_PCT", 3.0),
		MinVolume:         getEnvFloat("MIN_VOLUME", 100_000.0),
		VolumeNormalizer:  getEnvFloat("VOLUME_NORMALIZER", 1_000_000.0),

		ReversalPct:             getEnvFloat("REVERSAL_PCT", 0.3),
		MomentumWindow:          getEnvInt("MOMENTUM_WINDOW", 10),
		AdvisoryExitThreshold:   getEnvFloat("ADVISORY_EXIT_THRESHOLD", 0.25),
		AccumulationDropPct:     getEnvFloat("ACCUMULATION_DROP_PCT", 5.0),
		AccumulationCap:         getEnvInt("ACCUMULATION_CAP", 3),
		AccumulationCooldownSec: getEnvInt("ACCUMULATION_COOLDOWN_SEC", 60),

		TickIntervalSec: getEnvInt("TICK_INTERVAL_SEC", 1),
		ScanIntervalSec: getEnvInt("SCAN_INTERVAL_SEC", 8),

		DryRun:       getEnvBool("DRY_RUN", true),
		Port:         getEnvInt("PORT", 8080),
		AuditFile:    getEnv("AUDIT_FILE", "audit.jsonl"),
		StateFile:    getEnv("STATE_FILE", "engine_state.json"),
		PersistState: getEnvBool("PERSIST_STATE", true),
		AdvisoryURL:  getEnv("ADVISORY_URL", ""),
		USDEquity:    getEnvFloat("USD_EQUITY", 1000.0),
	}

	// Mode profiles adjust cadence only; explicit env values still win above.
	switch cfg.Mode {
	case ModeFast:
		if getEnv("TICK_INTERVAL_SEC", "") == "" {
			cfg.TickIntervalSec = 1
		}
		if getEnv("SCAN_INTERVAL_SEC", "") == "" {
			cfg.ScanIntervalSec = 5
		}
	case ModeMonitor:
		if getEnv("TICK_INTERVAL_SEC", "") == "" {
			cfg.TickIntervalSec = 2
		}
	case ModeSingle:
		if cfg.Symbol == "" {
			log.Printf("[WARN] mode=single without SYMBOL; falling back to autonomous")
			cfg.Mode = ModeAutonomous
		}
	}

	if cfg.TickIntervalSec <= 0 {
		cfg.TickIntervalSec = 1
	}
	if cfg.ScanIntervalSec <= 0 {
		cfg.ScanIntervalSec = 8
	}
	if cfg.TargetPct <= 0 {
		log.Printf("[WARN] TARGET_PCT=%.4f invalid; using 1.0", cfg.TargetPct)
		cfg.TargetPct = 1.0
	}
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = 1
	}
	return cfg
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// feeScheduleFromEnv builds one exchange's immutable fee schedule. Per-leg
// rates are fractions: 0.0026 = 0.26%.
func feeScheduleFromEnv(exchange string) FeeSchedule {
	prefix := strings.ToUpper(exchange) + "_"
	var makerDef, takerDef float64
	switch strings.ToLower(exchange) {
	case "binance":
		makerDef, takerDef = 0.0010, 0.0010
	case "hitbtc":
		makerDef, takerDef = 0.0009, 0.0025
	default:
		// paper mirrors a conservative taker venue
		makerDef, takerDef = 0.0016, 0.0026
	}
	return FeeSchedule{
		Exchange:    strings.ToLower(exchange),
		MakerRate:   getEnvFloat(prefix+"MAKER_RATE", makerDef),
		TakerRate:   getEnvFloat(prefix+"TAKER_RATE", takerDef),
		SlippagePct: getEnvFloat(prefix+"SLIPPAGE_PCT", 0.0005),
		SpreadPct:   getEnvFloat(prefix+"SPREAD_PCT", 0.0005),
	}
}
