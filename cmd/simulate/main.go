// Command simulate runs headless arena matches across ability-build
// archetypes and reports winrates, kill distributions, and match length
// percentiles. Used for balance passes before a build ships.
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hodlwarz/arena/internal/ability"
	"github.com/hodlwarz/arena/internal/arena"
	"github.com/hodlwarz/arena/internal/ledger"
	"github.com/hodlwarz/arena/internal/sim"
)

// discardOutbound satisfies sim.Outbound for headless matches; nothing
// leaves the process.
type discardOutbound struct{}

func (discardOutbound) RecordDamage(attacker, victim string, damage float64) {}
func (discardOutbound) EnqueueRegister(addr string)                          {}
func (discardOutbound) EnqueueAllocation(addr string, id ability.ID)         {}
func (discardOutbound) RequestRespawn(addr string)                           {}

// --- Config ---
const (
	totalMatches    = 2_000
	combatantsPer   = 6
	maxTicks        = 9_000 // 5 minutes at 30 Hz
	tickStep        = 33 * time.Millisecond
	dt              = 0.033
	seedLevel       = 12 // every combatant starts with the same point budget
	killTargetToWin = 15
)

type Archetype int

const (
	Juggernaut Archetype = iota // Strength: iron skin, heavy hitter, lifesteal
	Speedster                   // Speed: swift, rapid fire, evasion
	Sniper                      // Precision: weakspot, crit, focus fire
	Trickster                   // Utility: deflect, absorb, cloak
	Berserker                   // Chaos: rampage, homing, deathbomb
	Freestyle                   // random legal picks
	archetypeCount
)

func (a Archetype) String() string {
	return [...]string{"Juggernaut", "Speedster", "Sniper", "Trickster", "Berserker", "Freestyle"}[a]
}

// preference order per archetype; points flow down the list as caps and
// prerequisites allow.
var archetypePicks = map[Archetype][]ability.ID{
	Juggernaut: {ability.IronSkin, ability.HeavyHitter, ability.Lifesteal, ability.Regeneration, ability.Armor},
	Speedster:  {ability.Swift, ability.RapidFire, ability.Evasion, ability.QuickRespawn, ability.Momentum},
	Sniper:     {ability.Weakspot, ability.CriticalStrike, ability.FocusFire, ability.MultiShot, ability.DualCannon},
	Trickster:  {ability.Deflect, ability.Absorb, ability.LastStand, ability.Cloak, ability.Dash},
	Berserker:  {ability.Rampage, ability.Homing, ability.Ricochet, ability.Deathbomb, ability.Frenzy},
}

type matchResult struct {
	ticks       int
	winnerArch  Archetype
	hasWinner   bool
	killsByArch [archetypeCount]uint64
}

func main() {
	start := time.Now()
	workers := runtime.GOMAXPROCS(0)
	results := make([]matchResult, totalMatches)

	var progress atomic.Int64
	var wg sync.WaitGroup

	chunkSize := totalMatches / workers
	for w := 0; w < workers; w++ {
		wg.Add(1)
		lo := w * chunkSize
		hi := lo + chunkSize
		if w == workers-1 {
			hi = totalMatches
		}
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				results[i] = runMatch(int64(i)*7919 + 1)
				if n := progress.Add(1); n%(totalMatches/10) == 0 {
					fmt.Printf("  ... %d/%d matches (%.0f%%)\n", n, totalMatches, float64(n)/float64(totalMatches)*100)
				}
			}
		}(lo, hi)
	}
	wg.Wait()

	printReport(results, time.Since(start))
}

func runMatch(seed int64) matchResult {
	rng := rand.New(rand.NewSource(seed))
	world := arena.New(1200, 800, seed)
	engine := sim.NewEngine(world, discardOutbound{}, slog.New(slog.DiscardHandler), seed)

	archs := make(map[string]Archetype, combatantsPer)
	now := time.Unix(1_700_000_000, 0)

	for i := 0; i < combatantsPer; i++ {
		arch := Archetype(i % int(archetypeCount))
		addr := fmt.Sprintf("%s-%d", arch, i)
		archs[addr] = arch

		seedSnap := &ledger.Snapshot{
			Address:     addr,
			XP:          xpForLevel(seedLevel),
			Alive:       true,
			ManualBuild: arch != Freestyle,
			Ranks:       buildRanks(arch, seedLevel, rng),
		}
		engine.AddCombatant(addr, seedSnap, now)
	}

	var res matchResult
	for tick := 0; tick < maxTicks; tick++ {
		now = now.Add(tickStep)
		engine.Tick(now, dt)

		if tick%100 != 0 {
			continue
		}
		if addr, kills, ok := leader(world); ok && kills >= killTargetToWin {
			res.ticks = tick
			res.winnerArch = archs[addr]
			res.hasWinner = true
			break
		}
	}
	if !res.hasWinner {
		res.ticks = maxTicks
		if addr, _, ok := leader(world); ok {
			res.winnerArch = archs[addr]
			res.hasWinner = true
		}
	}

	world.RLock()
	for _, c := range world.Sorted() {
		res.killsByArch[archs[c.Address]] += c.Kills
	}
	world.RUnlock()
	return res
}

// buildRanks spends the archetype's preference list top to bottom, then
// falls back to random legal picks for any remainder.
func buildRanks(arch Archetype, level int, rng *rand.Rand) ability.Ranks {
	var ranks ability.Ranks
	budget := ability.Budget(level)

	for _, id := range archetypePicks[arch] {
		for ranks.Spent() < budget {
			if ability.CanAllocate(ranks, id, level) != nil {
				break
			}
			ranks.Set(id, ranks.Get(id)+1)
		}
	}
	for ranks.Spent() < budget {
		id, ok := ability.RandomLegal(ranks, level, rng)
		if !ok {
			break
		}
		ranks.Set(id, ranks.Get(id)+1)
	}
	return ranks
}

func leader(world *arena.Arena) (addr string, kills uint64, ok bool) {
	world.RLock()
	defer world.RUnlock()
	for _, c := range world.Sorted() {
		if !ok || c.Kills > kills {
			addr, kills, ok = c.Address, c.Kills, true
		}
	}
	return addr, kills, ok
}

func xpForLevel(level int) uint64 {
	// level = 1 + isqrt(xp/10), so the smallest xp reaching it is
	// 10*(level-1)^2.
	n := uint64(level - 1)
	return 10 * n * n
}

func printReport(results []matchResult, elapsed time.Duration) {
	winsByArch := make(map[Archetype]int)
	var killsByArch [archetypeCount]uint64
	var ticks []float64
	decided := 0

	for _, r := range results {
		if r.hasWinner {
			winsByArch[r.winnerArch]++
			decided++
		}
		for a := Archetype(0); a < archetypeCount; a++ {
			killsByArch[a] += r.killsByArch[a]
		}
		ticks = append(ticks, float64(r.ticks))
	}
	sort.Float64s(ticks)

	fmt.Printf("\n=== %d matches, %d combatants each, %s ===\n\n", totalMatches, combatantsPer, elapsed.Round(time.Millisecond))

	fmt.Println("Winrate by archetype:")
	for a := Archetype(0); a < archetypeCount; a++ {
		fmt.Printf("  %-11s %5.1f%%  (%d wins, %d total kills)\n",
			a, float64(winsByArch[a])/float64(decided)*100, winsByArch[a], killsByArch[a])
	}

	fmt.Println("\nMatch length (ticks):")
	fmt.Printf("  p50 %.0f   p90 %.0f   p99 %.0f   max %.0f\n",
		percentile(ticks, 0.50), percentile(ticks, 0.90), percentile(ticks, 0.99), ticks[len(ticks)-1])
	fmt.Printf("  undecided: %d/%d\n", totalMatches-decided, totalMatches)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
