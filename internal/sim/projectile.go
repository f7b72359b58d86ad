package sim

import (
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/hodlwarz/arena/internal/ability"
	"github.com/hodlwarz/arena/internal/arena"
)

const (
	projectileSpeed   = 420.0 // px/sec along the curve
	burstSpeed        = 320.0
	projectileTimeout = 4 * time.Second
	hitForgiveness    = 4.0 // extra radius granted to every hit test
	curveOffsetMax    = 80.0
	homingDamageMult  = 2.0
)

// Projectile is transient: destroyed on hit, timeout, or leaving bounds.
type Projectile struct {
	ID     string
	Owner  string
	Target string // victim address; empty for burst shots

	Origin arena.Vec2
	Pos    arena.Vec2
	Ctrl   arena.Vec2 // quadratic Bézier control point (absolute)
	Dest   arena.Vec2 // last known target position
	T      float64    // curve parameter 0..1

	Vel arena.Vec2 // straight-line velocity for burst variants

	Damage    float64
	Homing    bool
	Burst     bool
	CreatedAt time.Time
}

// newCurvedProjectile builds the standard curved shot: a quadratic Bézier
// from origin to the target with a random perpendicular control offset
// for visual variety.
func newCurvedProjectile(owner *arena.Combatant, target *arena.Combatant, damage float64, rng *rand.Rand, now time.Time) *Projectile {
	mid := owner.Pos.Add(target.Pos).Scale(0.5)
	d := target.Pos.Sub(owner.Pos)
	dist := math.Sqrt(d.LenSq())
	var perp arena.Vec2
	if dist > 1e-9 {
		perp = arena.Vec2{X: -d.Y / dist, Y: d.X / dist}
	}
	offset := (rng.Float64()*2 - 1) * curveOffsetMax

	return &Projectile{
		ID:        uuid.NewString(),
		Owner:     owner.Address,
		Target:    target.Address,
		Origin:    owner.Pos,
		Pos:       owner.Pos,
		Ctrl:      mid.Add(perp.Scale(offset)),
		Dest:      target.Pos,
		Damage:    damage,
		CreatedAt: now,
	}
}

func newHomingProjectile(owner *arena.Combatant, target *arena.Combatant, damage float64, now time.Time) *Projectile {
	return &Projectile{
		ID:        uuid.NewString(),
		Owner:     owner.Address,
		Target:    target.Address,
		Origin:    owner.Pos,
		Pos:       owner.Pos,
		Ctrl:      owner.Pos.Add(target.Pos).Scale(0.5),
		Dest:      target.Pos,
		Damage:    damage * homingDamageMult,
		Homing:    true,
		CreatedAt: now,
	}
}

func newBurstProjectile(owner *arena.Combatant, angle float64, damage float64, now time.Time) *Projectile {
	return &Projectile{
		ID:     uuid.NewString(),
		Owner:  owner.Address,
		Origin: owner.Pos,
		Pos:    owner.Pos,
		Vel:    arena.Vec2{X: math.Cos(angle) * burstSpeed, Y: math.Sin(angle) * burstSpeed},
		Damage: damage,
		Burst:  true,

		CreatedAt: now,
	}
}

// bezier evaluates the quadratic curve at parameter t.
func (p *Projectile) bezier(t float64) arena.Vec2 {
	u := 1 - t
	return arena.Vec2{
		X: u*u*p.Origin.X + 2*u*t*p.Ctrl.X + t*t*p.Dest.X,
		Y: u*u*p.Origin.Y + 2*u*t*p.Ctrl.Y + t*t*p.Dest.Y,
	}
}

// hitRadius is the effective collision radius against a victim: target
// radius plus a small forgiveness margin, widened by the shooter's
// homing accuracy.
func hitRadius(victim *arena.Combatant, shooterRanks ability.Ranks) float64 {
	return victim.Radius + hitForgiveness + shooterRanks.Value(ability.Homing)
}

// projectileResult classifies one advancement step.
type projectileResult int

const (
	projectileFlying projectileResult = iota
	projectileHit
	projectileExpired
)

// advanceProjectile moves the projectile one step and reports whether it
// hit its target this step. The engine resolves the actual damage.
func (e *Engine) advanceProjectile(p *Projectile, dt float64, now time.Time) (projectileResult, *arena.Combatant) {
	if now.Sub(p.CreatedAt) > projectileTimeout {
		return projectileExpired, nil
	}

	owner, ownerOK := e.arena.Get(p.Owner)

	if p.Burst {
		p.Pos.X += p.Vel.X * dt
		p.Pos.Y += p.Vel.Y * dt
		if p.Pos.X < 0 || p.Pos.X > e.arena.Width || p.Pos.Y < 0 || p.Pos.Y > e.arena.Height {
			return projectileExpired, nil
		}
		// Burst shots hit the first combatant they cross.
		for _, c := range e.arena.Sorted() {
			if c.Address == p.Owner || !c.Targetable(now) {
				continue
			}
			var ranks ability.Ranks
			if ownerOK {
				ranks = owner.Ranks
			}
			r := hitRadius(c, ranks)
			if c.Pos.Sub(p.Pos).LenSq() < r*r {
				return projectileHit, c
			}
		}
		return projectileFlying, nil
	}

	target, ok := e.arena.Get(p.Target)
	if !ok || !target.Targetable(now) {
		if p.Homing {
			// Locked shots chase a new lowest-health victim instead of
			// fizzling.
			if next := e.lowestHealthEnemy(p.Owner, p.Pos, now); next != nil {
				p.Target = next.Address
				target = next
			} else {
				return projectileExpired, nil
			}
		} else {
			// Original target died mid-flight: re-aim at the nearest live
			// enemy and keep the curve.
			if next := e.nearestEnemy(p.Owner, p.Pos, now); next != nil {
				p.Target = next.Address
				target = next
			} else {
				return projectileExpired, nil
			}
		}
	}

	if p.Homing {
		// Homing re-targets the lowest-health enemy in range every tick.
		if next := e.lowestHealthEnemy(p.Owner, p.Pos, now); next != nil && next.Address != p.Target {
			p.Target = next.Address
			target = next
		}
	}

	// The destination tracks the current target position; the curve shape
	// follows the victim.
	p.Dest = target.Pos

	span := p.Dest.Sub(p.Origin)
	dist := math.Sqrt(span.LenSq())
	if dist < 1e-9 {
		dist = 1
	}
	p.T += projectileSpeed * dt / dist
	if p.T > 1 {
		p.T = 1
	}
	p.Pos = p.bezier(p.T)

	var ranks ability.Ranks
	if ownerOK {
		ranks = owner.Ranks
	}
	r := hitRadius(target, ranks)
	if target.Pos.Sub(p.Pos).LenSq() < r*r || p.T >= 1 {
		// On reaching the end of the curve, test against the current
		// target position; an overshoot without contact expires.
		if target.Pos.Sub(p.Pos).LenSq() < r*r {
			return projectileHit, target
		}
		return projectileExpired, nil
	}
	return projectileFlying, nil
}
