// FILE: audit.go
// Package main – Append-only JSON-lines audit trail.
//
// One record per lifecycle event: {timestamp, event_type, data}. The engine
// only ever writes; nothing here reads the file back. Writes are best-effort
// and must not interrupt the trading loop.
package main

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEvent is one line of the audit trail.
type AuditEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data,omitempty"`
}

// AuditLog appends events to a JSONL file. A nil *AuditLog drops events,
// which keeps tests and audit-less runs free of guards.
type AuditLog struct {
	path string
	mu   sync.Mutex
}

func NewAuditLog(path string) (*AuditLog, error) {
	if path == "" {
		return nil, errors.New("empty audit path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	// touch the file so permission problems surface at boot, not mid-trade
	f, err := os.OpenFile(abs, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	_ = f.Close()
	return &AuditLog{path: abs}, nil
}

// Record appends one event. Failures are logged and swallowed.
func (a *AuditLog) Record(eventType string, data map[string]any) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	ev := AuditEvent{Timestamp: time.Now().UTC(), EventType: eventType, Data: data}
	bs, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[WARN] audit: marshal %s: %v", eventType, err)
		return
	}
	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("[WARN] audit: open: %v", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(bs, '\n')); err != nil {
		log.Printf("[WARN] audit: write: %v", err)
	}
}
