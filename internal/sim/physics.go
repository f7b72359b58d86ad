package sim

import (
	"math"
	"math/rand"
	"time"

	"github.com/hodlwarz/arena/internal/arena"
)

const (
	velocityDecay   = 0.995
	bounceDamping   = 0.85
	minSpeed        = 20.0
	maxSpeed        = 260.0
	repulsionBand   = 18.0 // gap under which soft repulsion kicks in
	repulsionForce  = 140.0
	impulseChance   = 0.004 // per combatant per tick
	impulseStrength = 90.0
)

// ContactHook gets first refusal on overlapping pairs, before the generic
// collision response pushes them apart. Used for body-slam damage.
type ContactHook func(a, b *arena.Combatant, now time.Time)

// Advance integrates one physics step for every live combatant: velocity
// integration, decay, boundary bounce, speed clamps, contact abilities,
// pairwise collisions, soft repulsion, and occasional random impulses.
// Purely numeric; caller holds the arena lock.
func Advance(a *arena.Arena, dt float64, now time.Time, rng *rand.Rand, contact ContactHook) {
	combatants := a.Sorted()

	for _, c := range combatants {
		if !c.Alive && !c.Ghost {
			continue
		}
		speedMult := c.MoveSpeedMult(now)
		c.Pos.X += c.Vel.X * speedMult * dt
		c.Pos.Y += c.Vel.Y * speedMult * dt

		c.Vel = c.Vel.Scale(velocityDecay)

		// Boundary reflection with damping.
		if c.Pos.X < c.Radius {
			c.Pos.X = c.Radius
			c.Vel.X = -c.Vel.X * bounceDamping
		} else if c.Pos.X > a.Width-c.Radius {
			c.Pos.X = a.Width - c.Radius
			c.Vel.X = -c.Vel.X * bounceDamping
		}
		if c.Pos.Y < c.Radius {
			c.Pos.Y = c.Radius
			c.Vel.Y = -c.Vel.Y * bounceDamping
		} else if c.Pos.Y > a.Height-c.Radius {
			c.Pos.Y = a.Height - c.Radius
			c.Vel.Y = -c.Vel.Y * bounceDamping
		}

		clampSpeed(c, rng)

		// Low-frequency random impulse keeps the arena from clustering.
		if rng.Float64() < impulseChance {
			angle := rng.Float64() * 2 * math.Pi
			c.Vel.X += math.Cos(angle) * impulseStrength
			c.Vel.Y += math.Sin(angle) * impulseStrength
		}
	}

	// Pairwise pass: contact abilities first, then impulse exchange, then
	// soft repulsion for near misses.
	for i := 0; i < len(combatants); i++ {
		for j := i + 1; j < len(combatants); j++ {
			p, q := combatants[i], combatants[j]
			if p.Ghost || q.Ghost {
				continue
			}
			d := q.Pos.Sub(p.Pos)
			distSq := d.LenSq()
			minDist := p.Radius + q.Radius

			if distSq < minDist*minDist {
				if contact != nil {
					contact(p, q, now)
				}
				resolveCollision(p, q, d, distSq, minDist)
			} else if distSq < (minDist+repulsionBand)*(minDist+repulsionBand) {
				applyRepulsion(p, q, d, distSq, minDist, dt)
			}
		}
	}
}

// resolveCollision separates an overlapping pair and exchanges impulse
// proportional to radius squared (area as mass proxy).
func resolveCollision(p, q *arena.Combatant, d arena.Vec2, distSq, minDist float64) {
	dist := math.Sqrt(distSq)
	var nx, ny float64
	if dist > 1e-9 {
		nx, ny = d.X/dist, d.Y/dist
	} else {
		nx, ny = 1, 0 // exactly stacked: pick an axis
	}

	// Positional correction: split the overlap by inverse mass.
	mp := p.Radius * p.Radius
	mq := q.Radius * q.Radius
	total := mp + mq
	overlap := minDist - dist
	p.Pos.X -= nx * overlap * (mq / total)
	p.Pos.Y -= ny * overlap * (mq / total)
	q.Pos.X += nx * overlap * (mp / total)
	q.Pos.Y += ny * overlap * (mp / total)

	// Elastic impulse along the collision normal.
	rvx := q.Vel.X - p.Vel.X
	rvy := q.Vel.Y - p.Vel.Y
	velAlongNormal := rvx*nx + rvy*ny
	if velAlongNormal > 0 {
		return // already separating
	}
	impulse := -2 * velAlongNormal / (1/mp + 1/mq)
	p.Vel.X -= impulse / mp * nx
	p.Vel.Y -= impulse / mp * ny
	q.Vel.X += impulse / mq * nx
	q.Vel.Y += impulse / mq * ny
}

// applyRepulsion nudges close-but-not-touching pairs apart, scaled by
// proximity.
func applyRepulsion(p, q *arena.Combatant, d arena.Vec2, distSq, minDist float64, dt float64) {
	dist := math.Sqrt(distSq)
	if dist < 1e-9 {
		return
	}
	gap := dist - minDist
	strength := repulsionForce * (1 - gap/repulsionBand) * dt
	nx, ny := d.X/dist, d.Y/dist
	p.Vel.X -= nx * strength
	p.Vel.Y -= ny * strength
	q.Vel.X += nx * strength
	q.Vel.Y += ny * strength
}

func clampSpeed(c *arena.Combatant, rng *rand.Rand) {
	speedSq := c.Vel.LenSq()
	if speedSq > maxSpeed*maxSpeed {
		speed := math.Sqrt(speedSq)
		c.Vel = c.Vel.Scale(maxSpeed / speed)
	} else if speedSq < minSpeed*minSpeed {
		if speedSq < 1e-9 {
			angle := rng.Float64() * 2 * math.Pi
			c.Vel = arena.Vec2{X: math.Cos(angle) * minSpeed, Y: math.Sin(angle) * minSpeed}
		} else {
			speed := math.Sqrt(speedSq)
			c.Vel = c.Vel.Scale(minSpeed / speed)
		}
	}
}
