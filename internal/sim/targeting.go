package sim

import (
	"math"
	"time"

	"github.com/hodlwarz/arena/internal/ability"
	"github.com/hodlwarz/arena/internal/arena"
	"github.com/hodlwarz/arena/internal/combat"
)

const (
	baseFireCooldown  = 1200 * time.Millisecond
	fireCooldownFloor = 250 * time.Millisecond
	multiShotFraction = 0.5
	homingShotPeriod  = 7 // every (period - rank)th shot goes homing
)

// fireCooldown is the base cooldown reduced multiplicatively by rapid-fire
// and the momentum kill buff, clamped to an absolute floor.
func fireCooldown(c *arena.Combatant, now time.Time) time.Duration {
	cd := float64(baseFireCooldown)
	cd *= 1.0 - c.Ranks.Value(ability.RapidFire)
	if now.Before(c.MomentumTill) {
		cd *= 1.0 / (1.0 + c.Ranks.Value(ability.Momentum))
	}
	if cd < float64(fireCooldownFloor) {
		cd = float64(fireCooldownFloor)
	}
	return time.Duration(cd)
}

// nearestEnemy returns the closest targetable combatant to pos, excluding
// the owner. Iterates in address order so ties break deterministically.
func (e *Engine) nearestEnemy(owner string, pos arena.Vec2, now time.Time) *arena.Combatant {
	var best *arena.Combatant
	bestSq := math.MaxFloat64
	for _, c := range e.arena.Sorted() {
		if c.Address == owner || !c.Targetable(now) {
			continue
		}
		if d := c.Pos.Sub(pos).LenSq(); d < bestSq {
			bestSq = d
			best = c
		}
	}
	return best
}

// nearestTwoEnemies returns the two closest targetable combatants, for
// dual-cannon fire.
func (e *Engine) nearestTwoEnemies(owner string, pos arena.Vec2, now time.Time) (first, second *arena.Combatant) {
	firstSq, secondSq := math.MaxFloat64, math.MaxFloat64
	for _, c := range e.arena.Sorted() {
		if c.Address == owner || !c.Targetable(now) {
			continue
		}
		d := c.Pos.Sub(pos).LenSq()
		switch {
		case d < firstSq:
			second, secondSq = first, firstSq
			first, firstSq = c, d
		case d < secondSq:
			second, secondSq = c, d
		}
	}
	return first, second
}

// lowestHealthEnemy is the homing retarget rule.
func (e *Engine) lowestHealthEnemy(owner string, pos arena.Vec2, now time.Time) *arena.Combatant {
	var best *arena.Combatant
	bestHealth := math.MaxFloat64
	for _, c := range e.arena.Sorted() {
		if c.Address == owner || !c.Targetable(now) {
			continue
		}
		if c.Health < bestHealth {
			bestHealth = c.Health
			best = c
		}
	}
	return best
}

// fireAll lets every eligible combatant whose cooldown has elapsed pick a
// target and emit projectiles.
func (e *Engine) fireAll(now time.Time) {
	for _, c := range e.arena.Sorted() {
		if !c.Alive || c.Ghost {
			continue
		}
		if now.Sub(c.LastFireAt) < fireCooldown(c, now) {
			continue
		}
		target, second := e.nearestTwoEnemies(c.Address, c.Pos, now)
		if target == nil {
			continue
		}
		c.LastFireAt = now
		c.ShotCount++

		dmg := combat.FireDamage(c, target)

		// Every Nth shot converts to the high-damage homing variant.
		if hr := c.Ranks.Get(ability.Homing); hr > 0 && c.ShotCount%(homingShotPeriod-hr) == 0 {
			e.projectiles = append(e.projectiles, newHomingProjectile(c, target, dmg, now))
			continue
		}

		e.projectiles = append(e.projectiles, newCurvedProjectile(c, target, dmg, e.rng, now))

		// Multi-shot: chance-based second projectile at reduced damage.
		if ms := c.Ranks.Value(ability.MultiShot); ms > 0 && e.rng.Float64() < ms {
			e.projectiles = append(e.projectiles, newCurvedProjectile(c, target, dmg*multiShotFraction, e.rng, now))
		}

		// Dual cannon: a second barrel tracks the second-nearest target.
		if dc := c.Ranks.Value(ability.DualCannon); dc > 0 && second != nil {
			e.projectiles = append(e.projectiles, newCurvedProjectile(c, second, dmg*dc, e.rng, now))
		}
	}
}
