// Package bridge moves state between the simulation and the ledger: the
// damage aggregator, the outbound operation queues, and the reconciler
// that merges the ledger's slower truth back into the arena. Nothing in
// this package ever blocks a simulation tick.
package bridge

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hodlwarz/arena/internal/ledger"
)

// maxConcurrentFlush caps the parallel sends per flush window; overflow
// pairs go out sequentially with pacing gaps.
const maxConcurrentFlush = 4

type pairKey struct {
	Attacker string
	Victim   string
}

type pendingDamage struct {
	Hits   int
	Damage float64
}

// Aggregator coalesces per-tick damage into per-(attacker,victim)
// accumulators and flushes them on a fixed interval. The ledger receives
// only hit counts; it recomputes damage from its own stored state.
type Aggregator struct {
	ledger ledger.Client
	logger *slog.Logger
	pacing time.Duration

	mu      sync.Mutex
	pending map[pairKey]*pendingDamage

	inFlight atomic.Bool

	flushed  atomic.Uint64
	rejected atomic.Uint64
	failed   atomic.Uint64
}

func NewAggregator(lc ledger.Client, logger *slog.Logger, pacing time.Duration) *Aggregator {
	return &Aggregator{
		ledger:  lc,
		logger:  logger,
		pacing:  pacing,
		pending: make(map[pairKey]*pendingDamage),
	}
}

// Record coalesces one hit. Called from the tick loop; must be cheap.
func (a *Aggregator) Record(attacker, victim string, damage float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := pairKey{attacker, victim}
	p, ok := a.pending[key]
	if !ok {
		p = &pendingDamage{}
		a.pending[key] = p
	}
	p.Hits++
	p.Damage += damage
}

// PendingPairs reports accumulator size; used by metrics.
func (a *Aggregator) PendingPairs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Clear drops unflushed damage. Season resets call this so stale pairs
// never land on a fresh ledger.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = make(map[pairKey]*pendingDamage)
}

// Flush atomically swaps out the accumulator and sends one operation per
// pair: a capped batch concurrently, the rest sequentially with pacing.
// Overlapping timer firings are no-ops.
func (a *Aggregator) Flush(ctx context.Context) {
	if !a.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer a.inFlight.Store(false)

	a.mu.Lock()
	batch := a.pending
	a.pending = make(map[pairKey]*pendingDamage)
	a.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	keys := make([]pairKey, 0, len(batch))
	for k := range batch {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Attacker != keys[j].Attacker {
			return keys[i].Attacker < keys[j].Attacker
		}
		return keys[i].Victim < keys[j].Victim
	})

	head := keys
	if len(head) > maxConcurrentFlush {
		head = keys[:maxConcurrentFlush]
	}

	var wg sync.WaitGroup
	for _, k := range head {
		wg.Add(1)
		go func(k pairKey, p *pendingDamage) {
			defer wg.Done()
			a.send(ctx, k, p)
		}(k, batch[k])
	}
	wg.Wait()

	for _, k := range keys[len(head):] {
		if !sleepCtx(ctx, a.pacing) {
			return
		}
		a.send(ctx, k, batch[k])
	}
}

// send submits one coalesced pair. Failures are logged and dropped: the
// reconciler's next poll absorbs any divergence.
func (a *Aggregator) send(ctx context.Context, k pairKey, p *pendingDamage) {
	txRef, err := a.ledger.ProcessAttack(ctx, k.Attacker, k.Victim, p.Hits)
	if err != nil {
		if reason, ok := ledger.RejectionReason(err); ok {
			a.rejected.Add(1)
			a.logger.Debug("attack rejected",
				"attacker", k.Attacker, "victim", k.Victim, "reason", string(reason))
			return
		}
		a.failed.Add(1)
		a.logger.Warn("attack flush failed",
			"attacker", k.Attacker, "victim", k.Victim, "error", err)
		return
	}
	a.flushed.Add(1)
	a.logger.Debug("attack flushed",
		"attacker", k.Attacker, "victim", k.Victim,
		"hits", p.Hits, "local_damage", p.Damage, "tx", txRef)
}

// Run flushes on a fixed interval until the context ends, then performs
// one final drain so shutdown loses nothing.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.Flush(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			a.Flush(ctx)
		}
	}
}

// Stats reports flush outcome counters.
func (a *Aggregator) Stats() (flushed, rejected, failed uint64) {
	return a.flushed.Load(), a.rejected.Load(), a.failed.Load()
}

// sleepCtx waits d or until the context ends; reports whether to go on.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
