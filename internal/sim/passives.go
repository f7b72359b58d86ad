package sim

import (
	"math"
	"time"

	"github.com/hodlwarz/arena/internal/ability"
	"github.com/hodlwarz/arena/internal/arena"
	"github.com/hodlwarz/arena/internal/combat"
)

const (
	lastStandHealPerRank = 1.0 // hp per second
	lastStandThreshold   = 0.30
	shieldRechargeRate   = 1.0 // hp per second up to the absorb cap
	cloakCycle           = 12 * time.Second
	cloakBaseDuration    = 1 * time.Second
	cloakPerRank         = 500 * time.Millisecond
	frenzyBaseCycle      = 9 // seconds, minus one per rank
	frenzyShotCount      = 8
	frenzyDamageFraction = 0.6
)

// tickPassives evaluates per-tick abilities outside the hit pipeline:
// regeneration, last-stand, shield recharge, cloak phases, frenzy bursts.
func (e *Engine) tickPassives(dt float64, now time.Time) {
	for _, c := range e.arena.Sorted() {
		if !c.Alive || c.Ghost {
			continue
		}

		// Regeneration.
		if regen := c.Ranks.Value(ability.Regeneration); regen > 0 {
			c.Health = math.Min(c.Health+regen*dt, c.MaxHealth)
		}

		// Last stand: self-heal while below the threshold.
		if r := c.Ranks.Get(ability.LastStand); r > 0 && c.Health < c.MaxHealth*lastStandThreshold {
			c.Health = math.Min(c.Health+float64(r)*lastStandHealPerRank*dt, c.MaxHealth)
		}

		// Absorb shield slowly recharges toward its cap.
		if cap := c.Ranks.Value(ability.Absorb); cap > 0 && c.Shield < cap {
			c.Shield = math.Min(c.Shield+shieldRechargeRate*dt, cap)
		}

		// Cloak: periodic untargetable phase.
		if r := c.Ranks.Get(ability.Cloak); r > 0 {
			if c.NextCloakAt.IsZero() {
				c.NextCloakAt = now.Add(cloakCycle)
			} else if now.After(c.NextCloakAt) {
				c.CloakUntil = now.Add(cloakBaseDuration + time.Duration(r)*cloakPerRank)
				c.NextCloakAt = now.Add(cloakCycle)
			}
		}

		// Frenzy: burst projectiles in all directions on a timer.
		if r := c.Ranks.Get(ability.Frenzy); r > 0 {
			if c.NextFrenzyAt.IsZero() {
				c.NextFrenzyAt = now.Add(time.Duration(frenzyBaseCycle-r) * time.Second)
			} else if now.After(c.NextFrenzyAt) {
				dmg := combat.FireDamage(c, nil) * frenzyDamageFraction
				for i := 0; i < frenzyShotCount; i++ {
					angle := 2 * math.Pi * float64(i) / frenzyShotCount
					e.projectiles = append(e.projectiles, newBurstProjectile(c, angle, dmg, now))
				}
				c.NextFrenzyAt = now.Add(time.Duration(frenzyBaseCycle-r) * time.Second)
			}
		}
	}
}

// contactHook applies dash body-slam damage when an overlapping pair
// includes a slammer, before physics separates them. A short per-slammer
// cooldown keeps sustained contact from melting anyone instantly.
const slamCooldown = 1500 * time.Millisecond

func (e *Engine) contactHook(a, b *arena.Combatant, now time.Time) {
	e.trySlam(a, b, now)
	e.trySlam(b, a, now)
}

func (e *Engine) trySlam(slammer, victim *arena.Combatant, now time.Time) {
	dash := slammer.Ranks.Value(ability.Dash)
	if dash <= 0 || !slammer.Alive || !victim.Targetable(now) {
		return
	}
	if now.Sub(slammer.LastSlamAt) < slamCooldown {
		return
	}
	slammer.LastSlamAt = now

	dmg := slammer.AttackPower() * dash
	applied, lethal := combat.ApplyChainHit(victim, dmg)
	if applied > 0 {
		e.out.RecordDamage(slammer.Address, victim.Address, applied)
	}
	if lethal {
		e.handleKill(slammer, victim, now)
	}
}
