package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/hodlwarz/arena/internal/bridge"
	"github.com/hodlwarz/arena/internal/sim"
)

// Metrics collects basic application metrics (no Prometheus dep needed for MVP).
type Metrics struct {
	wsConnections atomic.Int64
	commands      atomic.Int64
	startTime     time.Time

	engine     *sim.Engine
	bridge     *bridge.Bridge
	reconciler *bridge.Reconciler
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// Attach wires the simulation and sync layers in after construction;
// their counters are read on demand at scrape time.
func (m *Metrics) Attach(engine *sim.Engine, b *bridge.Bridge, rec *bridge.Reconciler) {
	m.engine = engine
	m.bridge = b
	m.reconciler = rec
}

func (m *Metrics) IncrWSConn()  { m.wsConnections.Add(1) }
func (m *Metrics) DecrWSConn()  { m.wsConnections.Add(-1) }
func (m *Metrics) IncrCommand() { m.commands.Add(1) }

// ServeHTTP exposes metrics as JSON at /metrics.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	data := map[string]any{
		"uptime_seconds": int(time.Since(m.startTime).Seconds()),
		"ws_connections": m.wsConnections.Load(),
		"commands":       m.commands.Load(),
		"goroutines":     runtime.NumGoroutine(),
		"heap_alloc_mb":  mem.HeapAlloc / 1024 / 1024,
		"sys_mb":         mem.Sys / 1024 / 1024,
	}

	if m.engine != nil {
		data["ticks"] = m.engine.TickCount()
		data["projectiles"] = m.engine.ProjectileCount()
	}
	if m.bridge != nil {
		flushed, rejected, failed := m.bridge.Aggregator.Stats()
		data["flushes_ok"] = flushed
		data["flushes_rejected"] = rejected
		data["flushes_failed"] = failed
		data["pending_damage_pairs"] = m.bridge.Aggregator.PendingPairs()
		data["registration_queue"] = m.bridge.Registry.Len()
		data["sync_queue"] = m.bridge.SyncQueue.Len()
	}
	if m.reconciler != nil {
		polls, transients, rebuilds := m.reconciler.Stats()
		data["reconciler_polls"] = polls
		data["reconciler_transients"] = transients
		data["reconciler_rebuilds"] = rebuilds
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
}
