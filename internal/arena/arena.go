package arena

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/hodlwarz/arena/internal/ability"
	"github.com/hodlwarz/arena/internal/ledger"
)

// Arena owns the combatant table for one simulation instance. It is an
// explicit context object: every subsystem receives it by reference, so
// multiple arenas can coexist in one process (and in tests).
type Arena struct {
	mu sync.RWMutex

	Width  float64
	Height float64

	combatants map[string]*Combatant
	feed       *KillFeed
	events     *EventLog
	rng        *rand.Rand
}

func New(width, height float64, seed int64) *Arena {
	return &Arena{
		Width:      width,
		Height:     height,
		combatants: make(map[string]*Combatant),
		feed:       NewKillFeed(32),
		events:     NewEventLog(64),
		rng:        rand.New(rand.NewSource(seed)),
	}
}

// Lock gives the tick loop exclusive write access for the duration of a
// tick. Background tasks use the same lock for their between-tick merges.
func (a *Arena) Lock()    { a.mu.Lock() }
func (a *Arena) Unlock()  { a.mu.Unlock() }
func (a *Arena) RLock()   { a.mu.RLock() }
func (a *Arena) RUnlock() { a.mu.RUnlock() }

// Get returns a combatant without locking. Callers must hold the arena
// lock; everything in the tick loop already does.
func (a *Arena) Get(addr string) (*Combatant, bool) {
	c, ok := a.combatants[addr]
	return c, ok
}

// All returns the live table. Caller must hold the lock.
func (a *Arena) All() map[string]*Combatant {
	return a.combatants
}

// Sorted returns combatants in address order for deterministic iteration.
// Caller must hold the lock.
func (a *Arena) Sorted() []*Combatant {
	out := make([]*Combatant, 0, len(a.combatants))
	for _, c := range a.combatants {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

func (a *Arena) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.combatants)
}

// Ensure creates the combatant on first sighting. A cached ledger snapshot
// seeds its stats; without one, a late joiner gets the population median
// experience so it isn't hopelessly outleveled.
func (a *Arena) Ensure(addr string, seed *ledger.Snapshot, now time.Time) *Combatant {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.combatants[addr]; ok {
		return c
	}

	c := &Combatant{
		Address:    addr,
		Pos:        Vec2{X: a.rng.Float64() * a.Width, Y: a.rng.Float64() * a.Height},
		Vel:        Vec2{X: a.rng.Float64()*120 - 60, Y: a.rng.Float64()*120 - 60},
		Radius:     defaultRadius,
		Color:      pickColor(addr),
		Health:     ledger.BaseHealth,
		MaxHealth:  ledger.BaseHealth,
		BaseAttack: ledger.BaseAttack,
		Alive:      true,
	}

	if seed != nil {
		c.XP = seed.XP
		c.Kills = seed.Kills
		c.Deaths = seed.Deaths
		c.Ranks = seed.Ranks
		c.ManualBuild = seed.ManualBuild
		c.ApplyRankStats()
		if !seed.Alive {
			c.Health = c.MaxHealth // preview revives; reconciliation corrects
		}
	} else {
		c.XP = a.medianXPLocked()
	}

	c.Shield = 0
	a.combatants[addr] = c
	a.events.Add(now, fmt.Sprintf("%s entered the arena at level %d", shortAddr(addr), c.Level()))
	return c
}

// Remove drops a combatant that is no longer tracked.
func (a *Arena) Remove(addr string, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.combatants[addr]; !ok {
		return
	}
	delete(a.combatants, addr)
	a.events.Add(now, fmt.Sprintf("%s left the arena", shortAddr(addr)))
}

// Addresses snapshots the tracked address set.
func (a *Arena) Addresses() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.combatants))
	for addr := range a.combatants {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// ResetAll restores every combatant to default stats: season boundary.
func (a *Arena) ResetAll(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.combatants {
		c.Health = ledger.BaseHealth
		c.MaxHealth = ledger.BaseHealth
		c.BaseAttack = ledger.BaseAttack
		c.XP = 0
		c.Kills = 0
		c.Deaths = 0
		c.Ranks = ability.Ranks{}
		c.ManualBuild = false
		c.Ghost = false
		c.Alive = true
		c.GhostUntil = time.Time{}
		c.Shield = 0
		c.FocusTarget = ""
		c.FocusStacks = 0
		c.MomentumTill = time.Time{}
		c.RampageShots = 0
		c.CloakUntil = time.Time{}
	}
	a.feed.Clear()
	a.events.Clear()
	a.events.Add(now, "a new season has begun")
}

// RecordKill appends to the kill feed. Caller must hold the lock.
func (a *Arena) RecordKill(attacker, victim *Combatant, now time.Time) {
	a.feed.Add(KillEvent{
		Attacker:      attacker.Address,
		Victim:        victim.Address,
		AttackerLevel: attacker.Level(),
		VictimLevel:   victim.Level(),
		At:            now,
	})
	a.events.Add(now, fmt.Sprintf("%s eliminated %s", shortAddr(attacker.Address), shortAddr(victim.Address)))
}

func (a *Arena) KillFeed() []KillEvent { return a.feed.Recent() }
func (a *Arena) Events() []Event       { return a.events.Recent() }

// RNG is the arena's deterministic random source. Caller must hold the
// lock; the tick loop is the only steady consumer.
func (a *Arena) RNG() *rand.Rand { return a.rng }

// medianXPLocked is the median experience across tracked combatants.
func (a *Arena) medianXPLocked() uint64 {
	if len(a.combatants) == 0 {
		return 0
	}
	xs := make([]uint64, 0, len(a.combatants))
	for _, c := range a.combatants {
		xs = append(xs, c.XP)
	}
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	return xs[len(xs)/2]
}

var palette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#fabebe",
	"#008080", "#e6beff", "#9a6324", "#fffac8", "#800000",
}

func pickColor(addr string) string {
	h := 0
	for _, c := range addr {
		h = h*31 + int(c)
	}
	if h < 0 {
		h = -h
	}
	return palette[h%len(palette)]
}

func shortAddr(addr string) string {
	if len(addr) <= 8 {
		return addr
	}
	return addr[:4] + ".." + addr[len(addr)-4:]
}
