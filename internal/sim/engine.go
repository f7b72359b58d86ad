// Package sim runs the locally-authoritative arena simulation: a single
// cooperative tick loop owning all physics, targeting, and combat
// resolution. Ledger I/O never happens inside a tick; the engine only
// hands operations to its Outbound sink.
package sim

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/hodlwarz/arena/internal/ability"
	"github.com/hodlwarz/arena/internal/arena"
	"github.com/hodlwarz/arena/internal/combat"
	"github.com/hodlwarz/arena/internal/ledger"
)

const (
	momentumBuffDuration = 4 * time.Second
	deathbombRadius      = 80.0
	// One sweep per second at the 30 Hz tick rate.
	allocSweepTicks = 30
)

// ErrUnknownCombatant reports a command addressed to an untracked address.
var ErrUnknownCombatant = errors.New("sim: unknown combatant")

// Outbound is the engine's one-way door to the ledger sync layer. Every
// call must return immediately; implementations queue.
type Outbound interface {
	// RecordDamage coalesces one hit's damage into the flush accumulator.
	RecordDamage(attacker, victim string, damage float64)
	// EnqueueRegister requests idempotent combatant registration.
	EnqueueRegister(addr string)
	// EnqueueAllocation requests one ability point on the ledger.
	EnqueueAllocation(addr string, id ability.ID)
	// RequestRespawn asks the ledger to revive a combatant whose local
	// ghost timer elapsed.
	RequestRespawn(addr string)
}

// Engine advances one arena. Tick is synchronous and single-writer; Run
// wraps it in a ticker for production use.
type Engine struct {
	arena       *arena.Arena
	out         Outbound
	logger      *slog.Logger
	rng         *rand.Rand
	projectiles []*Projectile
	tickCount   uint64
}

func NewEngine(a *arena.Arena, out Outbound, logger *slog.Logger, seed int64) *Engine {
	return &Engine{
		arena:  a,
		out:    out,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// AddCombatant tracks a new participant and requests its registration.
func (e *Engine) AddCombatant(addr string, seed *ledger.Snapshot, now time.Time) {
	e.arena.Ensure(addr, seed, now)
	e.out.EnqueueRegister(addr)
}

// RemoveCombatant stops tracking a participant that left the population.
func (e *Engine) RemoveCombatant(addr string, now time.Time) {
	e.arena.Remove(addr, now)
}

// Run drives the tick loop at a fixed rate until the context ends.
func (e *Engine) Run(ctx context.Context, tickRate time.Duration) {
	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()

	dt := tickRate.Seconds()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(time.Now(), dt)
		}
	}
}

// Tick advances the world one step. It takes the arena write lock for the
// whole step: nothing else may mutate combatants mid-tick.
func (e *Engine) Tick(now time.Time, dt float64) {
	e.arena.Lock()
	defer e.arena.Unlock()

	e.tickCount++

	e.respawnGhosts(now)
	Advance(e.arena, dt, now, e.rng, e.contactHook)
	e.tickPassives(dt, now)
	e.fireAll(now)
	e.advanceProjectiles(dt, now)

	// Ledger merges can raise XP past a level boundary between kills;
	// sweep for the resulting unspent points once a second.
	if e.tickCount%allocSweepTicks == 0 {
		for _, c := range e.arena.Sorted() {
			e.autoAllocate(c)
		}
	}
}

// respawnGhosts exits ghost state for everyone whose timer elapsed and
// fires the corresponding ledger respawn.
func (e *Engine) respawnGhosts(now time.Time) {
	for _, c := range e.arena.Sorted() {
		if c.Ghost && now.After(c.GhostUntil) {
			c.Respawn(now)
			e.out.RequestRespawn(c.Address)
		}
	}
}

func (e *Engine) advanceProjectiles(dt float64, now time.Time) {
	alive := e.projectiles[:0]
	for _, p := range e.projectiles {
		result, victim := e.advanceProjectile(p, dt, now)
		switch result {
		case projectileFlying:
			alive = append(alive, p)
		case projectileHit:
			e.resolveImpact(p, victim, now)
		case projectileExpired:
		}
	}
	e.projectiles = alive
}

func (e *Engine) resolveImpact(p *Projectile, victim *arena.Combatant, now time.Time) {
	attacker, ok := e.arena.Get(p.Owner)
	if !ok {
		return
	}

	out := combat.ResolveHit(attacker, victim, combat.Shot{Damage: p.Damage}, e.rng, now)
	if out.Evaded {
		return
	}
	if out.Damage > 0 || out.ShieldAbsorbed > 0 {
		e.out.RecordDamage(attacker.Address, victim.Address, out.Damage+out.ShieldAbsorbed)
	}

	// Ricochet arcs hop to nearby enemies with multiplicative falloff.
	if out.ChainDamage > 0 {
		e.applyChain(attacker, victim, out.ChainDamage, out.ChainHops, now)
	}

	// A deflected counter can kill the attacker.
	if out.Reflected > 0 && attacker.Health <= 0 && attacker.Alive {
		e.handleKill(victim, attacker, now)
	}

	if out.Lethal {
		e.handleKill(attacker, victim, now)
	}
}

func (e *Engine) applyChain(attacker, origin *arena.Combatant, dmg float64, hops int, now time.Time) {
	prev := origin
	for hop := 0; hop < hops && dmg >= 1; hop++ {
		next := e.nearestEnemyExcluding(attacker.Address, prev.Address, prev.Pos, now)
		if next == nil {
			return
		}
		applied, lethal := combat.ApplyChainHit(next, dmg)
		if applied > 0 {
			e.out.RecordDamage(attacker.Address, next.Address, applied)
		}
		if lethal {
			e.handleKill(attacker, next, now)
		}
		dmg *= 0.5
		prev = next
	}
}

func (e *Engine) nearestEnemyExcluding(owner, exclude string, pos arena.Vec2, now time.Time) *arena.Combatant {
	var best *arena.Combatant
	bestSq := 1e18
	for _, c := range e.arena.Sorted() {
		if c.Address == owner || c.Address == exclude || !c.Targetable(now) {
			continue
		}
		if d := c.Pos.Sub(pos).LenSq(); d < bestSq {
			bestSq = d
			best = c
		}
	}
	return best
}

// handleKill performs all death bookkeeping: ghost state, kill credit,
// experience, on-kill buffs, the deathbomb, and auto-allocation.
func (e *Engine) handleKill(attacker, victim *arena.Combatant, now time.Time) {
	if !victim.Alive {
		return
	}
	victimLevel := victim.Level()
	victim.Die(now)
	victim.XP += ledger.XPPerDeath

	attacker.Kills++
	xp := float64(ledger.KillXP(victimLevel))
	if bonus := attacker.Ranks.Value(ability.Rampage); bonus > 0 {
		xp *= 1.0 + bonus
	}
	attacker.XP += uint64(xp)

	// On-kill state.
	if attacker.Ranks.Get(ability.Momentum) > 0 {
		attacker.MomentumTill = now.Add(momentumBuffDuration)
	}
	if r := attacker.Ranks.Get(ability.Rampage); r > 0 {
		attacker.RampageShots = r
	}

	e.arena.RecordKill(attacker, victim, now)
	e.logger.Debug("kill resolved",
		"attacker", attacker.Address,
		"victim", victim.Address,
		"victim_level", victimLevel,
		"xp_awarded", uint64(xp))

	// Deathbomb: the corpse detonates, damage credited to the victim.
	if bomb := victim.Ranks.Value(ability.Deathbomb); bomb > 0 {
		e.detonate(victim, bomb, now)
	}

	e.autoAllocate(attacker)
	e.autoAllocate(victim)
}

func (e *Engine) detonate(victim *arena.Combatant, dmg float64, now time.Time) {
	for _, c := range e.arena.Sorted() {
		if c.Address == victim.Address || !c.Targetable(now) {
			continue
		}
		if c.Pos.Sub(victim.Pos).LenSq() > deathbombRadius*deathbombRadius {
			continue
		}
		applied, lethal := combat.ApplyChainHit(c, dmg)
		if applied > 0 {
			e.out.RecordDamage(victim.Address, c.Address, applied)
		}
		if lethal {
			e.handleKill(victim, c, now)
		}
	}
}

// autoAllocate spends any open points for combatants without a manual
// build, uniformly at random among legal picks, and queues each point
// for ledger synchronization.
func (e *Engine) autoAllocate(c *arena.Combatant) {
	if c.ManualBuild {
		return
	}
	level := c.Level()
	for c.Ranks.Spent() < ability.Budget(level) {
		id, ok := ability.RandomLegal(c.Ranks, level, e.rng)
		if !ok {
			return
		}
		c.Ranks.Set(id, c.Ranks.Get(id)+1)
		c.ApplyRankStats()
		e.out.EnqueueAllocation(c.Address, id)
	}
}

// AllocateManually applies an owner-chosen allocation, marks the build
// manual (disabling auto-allocation and giving local state priority over
// the ledger), and queues the point for sync.
func (e *Engine) AllocateManually(addr string, id ability.ID) error {
	e.arena.Lock()
	defer e.arena.Unlock()

	c, ok := e.arena.Get(addr)
	if !ok {
		return ErrUnknownCombatant
	}
	if err := ability.CanAllocate(c.Ranks, id, c.Level()); err != nil {
		return err
	}
	c.Ranks.Set(id, c.Ranks.Get(id)+1)
	c.ManualBuild = true
	c.ApplyRankStats()
	e.out.EnqueueAllocation(addr, id)
	return nil
}

// Snapshot renders the current display state.
func (e *Engine) Snapshot(now time.Time) arena.Snapshot {
	e.arena.RLock()
	projectiles := make([]arena.ProjectileView, 0, len(e.projectiles))
	for _, p := range e.projectiles {
		projectiles = append(projectiles, arena.ProjectileView{
			ID:     p.ID,
			X:      p.Pos.X,
			Y:      p.Pos.Y,
			FromX:  p.Origin.X,
			FromY:  p.Origin.Y,
			CtrlX:  p.Ctrl.X,
			CtrlY:  p.Ctrl.Y,
			Homing: p.Homing,
			Burst:  p.Burst,
		})
	}
	e.arena.RUnlock()

	return arena.Snapshot{
		At:          now,
		Width:       e.arena.Width,
		Height:      e.arena.Height,
		Combatants:  e.arena.SnapshotCombatants(now),
		Projectiles: projectiles,
		KillFeed:    e.arena.KillFeed(),
		Events:      e.arena.Events(),
	}
}

// TickCount reports ticks processed since start; used by metrics.
func (e *Engine) TickCount() uint64 {
	e.arena.RLock()
	defer e.arena.RUnlock()
	return e.tickCount
}

// ProjectileCount reports in-flight projectiles; used by metrics.
func (e *Engine) ProjectileCount() int {
	e.arena.RLock()
	defer e.arena.RUnlock()
	return len(e.projectiles)
}
