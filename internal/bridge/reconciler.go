package bridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hodlwarz/arena/internal/ability"
	"github.com/hodlwarz/arena/internal/arena"
	"github.com/hodlwarz/arena/internal/ledger"
)

// Reconciler periodically pulls the ledger's view of every tracked
// combatant and merges it into the arena. It is the system's durable
// retry mechanism: every fire-and-forget failure elsewhere is eventually
// detected and repaired here.
type Reconciler struct {
	ledger       ledger.Client
	arena        *arena.Arena
	registry     *RegistrationQueue
	syncQueue    *SyncQueue
	logger       *slog.Logger
	catchUpEvery time.Duration

	inFlight    atomic.Bool
	lastCatchUp time.Time

	mu    sync.RWMutex
	cache map[string]*ledger.Snapshot

	polls      atomic.Uint64
	transients atomic.Uint64
	rebuilds   atomic.Uint64
}

func NewReconciler(lc ledger.Client, a *arena.Arena, reg *RegistrationQueue, sq *SyncQueue, logger *slog.Logger, catchUpEvery time.Duration) *Reconciler {
	return &Reconciler{
		ledger:       lc,
		arena:        a,
		registry:     reg,
		syncQueue:    sq,
		logger:       logger,
		catchUpEvery: catchUpEvery,
		cache:        make(map[string]*ledger.Snapshot),
	}
}

// CachedSnapshot returns the last ledger view seen for an address. Used
// to seed newly sighted combatants so late joiners keep their progress.
func (r *Reconciler) CachedSnapshot(addr string) *ledger.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache[addr]
}

// ClearCache drops all cached ledger views (season boundary).
func (r *Reconciler) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]*ledger.Snapshot)
}

// Poll fetches and merges every tracked combatant, then runs the
// throttled catch-up pass. Overlapping timer firings are no-ops.
func (r *Reconciler) Poll(ctx context.Context, now time.Time) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer r.inFlight.Store(false)

	r.polls.Add(1)

	for _, addr := range r.arena.Addresses() {
		snap, err := r.ledger.GetState(ctx, addr)
		if err != nil {
			if reason, rejected := ledger.RejectionReason(err); rejected {
				// An unregistered combatant means a registration was
				// lost in flight. Queue it again.
				if reason == ledger.ReasonNotInitialized {
					r.registry.Enqueue(addr)
				}
				continue
			}
			r.transients.Add(1)
			continue
		}
		if snap == nil {
			r.registry.Enqueue(addr)
			continue
		}

		r.mu.Lock()
		r.cache[addr] = snap
		r.mu.Unlock()

		r.mergeOne(addr, snap, now)
	}

	if now.Sub(r.lastCatchUp) >= r.catchUpEvery {
		r.lastCatchUp = now
		r.catchUp(now)
	}
}

// mergeOne applies the pure merge to one combatant under the arena lock.
func (r *Reconciler) mergeOne(addr string, snap *ledger.Snapshot, now time.Time) {
	r.arena.Lock()
	defer r.arena.Unlock()

	c, ok := r.arena.Get(addr)
	if !ok {
		return
	}

	res := Merge(Local{
		XP:          c.XP,
		Kills:       c.Kills,
		Deaths:      c.Deaths,
		Health:      c.Health,
		Alive:       c.Alive,
		Ranks:       c.Ranks,
		ManualBuild: c.ManualBuild,
		RespawnedAt: c.RespawnedAt,
	}, *snap, now)

	c.XP = res.XP
	c.Kills = res.Kills
	c.Deaths = res.Deaths

	if res.AdoptRanks {
		c.Ranks = res.Ranks
		c.ApplyRankStats()
	}

	if res.AdoptVitals {
		if res.Alive {
			if c.Alive {
				c.Health = clampHealth(res.Health, c.MaxHealth)
			}
			// A local ghost with a live ledger view sits out its local
			// timer; adopting early would snap it back mid-animation.
		} else if c.Alive {
			// The ledger saw a death the local preview missed.
			c.Die(now)
			if snap.RespawnAt > 0 {
				c.GhostUntil = time.Unix(snap.RespawnAt, 0)
			}
		}
	}
}

func clampHealth(h, max float64) float64 {
	if h < 0 {
		return 0
	}
	if h > max {
		return max
	}
	return h
}

// catchUp compares every combatant's build against the cached ledger
// view and queues a full reset-then-reallocate rebuild on mismatch.
// Allocation is append-only on the ledger, so rebuild is the only way to
// push a local build; the pass is throttled and skips combatants that
// already have sync operations in flight.
func (r *Reconciler) catchUp(now time.Time) {
	type rebuild struct {
		addr  string
		ranks ability.Ranks
	}
	var rebuilds []rebuild

	r.arena.RLock()
	for _, c := range r.arena.Sorted() {
		if r.syncQueue.Pending(c.Address) {
			continue
		}
		snap := r.CachedSnapshot(c.Address)
		if snap == nil {
			continue
		}
		if c.Ranks != snap.Ranks {
			rebuilds = append(rebuilds, rebuild{addr: c.Address, ranks: c.Ranks})
		}
	}
	r.arena.RUnlock()

	for _, rb := range rebuilds {
		r.rebuilds.Add(1)
		r.syncQueue.EnqueueReset(rb.addr)
		// Reallocate in ascending id order so prerequisites always land
		// before their dependents.
		for id := ability.ID(0); id < ability.Count; id++ {
			for n := 0; n < rb.ranks.Get(id); n++ {
				r.syncQueue.EnqueueAllocate(rb.addr, id)
			}
		}
		r.logger.Info("build rebuild queued", "addr", rb.addr, "spent", rb.ranks.Spent())
	}
}

// Run polls on a fixed interval until the context ends.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Poll(ctx, time.Now())
		}
	}
}

// Stats reports reconciliation counters.
func (r *Reconciler) Stats() (polls, transients, rebuilds uint64) {
	return r.polls.Load(), r.transients.Load(), r.rebuilds.Load()
}
