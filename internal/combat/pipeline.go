// Package combat resolves hits. The pipeline applies modifiers in a
// fixed order so that, for fixed ranks and a seeded RNG, the same hit
// sequence always produces the same damage.
package combat

import (
	"math"
	"math/rand"
	"time"

	"github.com/hodlwarz/arena/internal/ability"
	"github.com/hodlwarz/arena/internal/arena"
)

const (
	critMultiplier = 2.0
	// Victim health fraction under which weakspot execute damage applies.
	executeThreshold = 0.35
	focusStackCap    = 5
	// Lifesteal healing per hit caps at this fraction of attacker max health.
	lifestealHealCap = 0.25
	deflectFraction  = 0.30
	chainFalloff     = 0.5
	chainMaxHops     = 2
	// Health fraction under which last-stand effects engage.
	lastStandThreshold = 0.30
	// Damage above this is treated as a local invariant violation and clamped.
	maxPlausibleDamage = 10_000
)

// Shot is the projectile payload at the moment of impact: fire-time
// modifiers are already baked into Damage.
type Shot struct {
	Damage float64
	Crit   bool // pre-rolled for homing variants that always crit; normally false
}

// Outcome reports what one hit did. Secondary procs that need a target the
// pipeline cannot see (chain arcs) are returned as requests for the
// caller to aim.
type Outcome struct {
	Evaded         bool
	Crit           bool
	Damage         float64 // applied to victim health
	ShieldAbsorbed float64
	Reflected      float64 // applied to attacker health
	Lifesteal      float64 // applied to attacker health
	Lethal         bool
	ChainDamage    float64 // > 0: arc to a nearby enemy, falloff per hop
	ChainHops      int
}

// sanitizeDamage clamps non-finite or implausibly large values instead of
// letting them corrupt combatant state.
func sanitizeDamage(d float64) float64 {
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return 0
	}
	if d > maxPlausibleDamage {
		return maxPlausibleDamage
	}
	return d
}

// ResolveHit runs the full pipeline for one projectile impact, in order:
// crit, execute, focus-fire stack bonus, evasion, armor, shield, health,
// deflect, chain roll, lifesteal, death check. Mutates both combatants'
// health-adjacent state; death bookkeeping (kills, XP, ghost) is the
// engine's job, keyed off Outcome.Lethal.
func ResolveHit(attacker, victim *arena.Combatant, shot Shot, rng *rand.Rand, now time.Time) Outcome {
	var out Outcome

	if !victim.Alive || victim.Ghost {
		return out
	}

	dmg := sanitizeDamage(shot.Damage)

	// Crit.
	out.Crit = shot.Crit
	if !out.Crit {
		if crit := attacker.Ranks.Value(ability.CriticalStrike); crit > 0 && rng.Float64() < crit {
			out.Crit = true
		}
	}
	if out.Crit {
		dmg *= critMultiplier
	}

	// Execute: bonus against low-health victims, judged pre-hit.
	if ws := attacker.Ranks.Value(ability.Weakspot); ws > 0 && victim.Health < victim.MaxHealth*executeThreshold {
		dmg *= 1.0 + ws
	}

	// Focus fire: bonus grows while repeatedly hitting the same target,
	// resets on target switch or at the stack cap.
	if perStack := attacker.Ranks.Value(ability.FocusFire); perStack > 0 {
		if attacker.FocusTarget != victim.Address {
			attacker.FocusTarget = victim.Address
			attacker.FocusStacks = 0
		}
		dmg *= 1.0 + perStack*float64(attacker.FocusStacks)
		attacker.FocusStacks++
		if attacker.FocusStacks > focusStackCap {
			attacker.FocusStacks = 0
		}
	}

	// Evasion: rolled after the attacker's offense so an evaded hit still
	// advances focus stacks.
	if evade := victim.Ranks.Value(ability.Evasion); evade > 0 && rng.Float64() < evade {
		out.Evaded = true
		return out
	}

	// Defender mitigation: flat percentage reduction, capped by catalog.
	if armor := victim.Ranks.Value(ability.Armor); armor > 0 {
		dmg *= 1.0 - armor
	}

	dmg = sanitizeDamage(dmg)

	// Shield absorbs before health.
	if victim.Shield > 0 {
		absorbed := math.Min(victim.Shield, dmg)
		victim.Shield -= absorbed
		dmg -= absorbed
		out.ShieldAbsorbed = absorbed
	}

	victim.Health -= dmg
	out.Damage = dmg

	// Deflect: chance-based counter, a fraction of the damage dealt.
	if def := victim.Ranks.Value(ability.Deflect); def > 0 && rng.Float64() < def {
		out.Reflected = dmg * deflectFraction
		attacker.Health -= out.Reflected
	}

	// Ricochet: chance-based arc to a nearby enemy with per-hop falloff.
	// Target selection needs spatial knowledge, so the caller aims it.
	if ric := attacker.Ranks.Value(ability.Ricochet); ric > 0 && rng.Float64() < ric {
		out.ChainDamage = dmg * chainFalloff
		out.ChainHops = chainMaxHops
	}

	// Lifesteal, capped per hit.
	if ls := attacker.Ranks.Value(ability.Lifesteal); ls > 0 && dmg > 0 && attacker.Alive {
		heal := math.Min(dmg*ls, attacker.MaxHealth*lifestealHealCap)
		attacker.Health = math.Min(attacker.Health+heal, attacker.MaxHealth)
		out.Lifesteal = heal
	}

	out.Lethal = victim.Health <= 0
	return out
}

// ApplyChainHit lands one ricochet arc on a secondary victim: mitigation
// and shield still apply, procs do not (chains never re-proc).
func ApplyChainHit(victim *arena.Combatant, dmg float64) (applied float64, lethal bool) {
	if !victim.Alive || victim.Ghost {
		return 0, false
	}
	dmg = sanitizeDamage(dmg)
	if armor := victim.Ranks.Value(ability.Armor); armor > 0 {
		dmg *= 1.0 - armor
	}
	if victim.Shield > 0 {
		absorbed := math.Min(victim.Shield, dmg)
		victim.Shield -= absorbed
		dmg -= absorbed
	}
	victim.Health -= dmg
	return dmg, victim.Health <= 0
}

// FireDamage is the projectile damage computed at fire time: attack power
// plus flat bonuses, execute-vs-low-HP and on-kill follow-up bonuses.
func FireDamage(attacker, target *arena.Combatant) float64 {
	dmg := attacker.AttackPower()

	// Weakspot also sharpens the initial aim against low targets.
	if ws := attacker.Ranks.Value(ability.Weakspot); ws > 0 && target != nil &&
		target.Health < target.MaxHealth*executeThreshold {
		dmg *= 1.0 + ws/2
	}

	// Rampage: follow-up shots after a kill hit harder, one charge each.
	if attacker.RampageShots > 0 {
		dmg *= 1.0 + attacker.Ranks.Value(ability.Rampage)
		attacker.RampageShots--
	}

	// Last stand: fighting from low health hits harder.
	if ls := attacker.Ranks.Value(ability.LastStand); ls > 0 &&
		attacker.Health < attacker.MaxHealth*lastStandThreshold {
		dmg *= 1.0 + ls
	}

	return sanitizeDamage(dmg)
}
