package arena

import (
	"time"

	"github.com/hodlwarz/arena/internal/ability"
	"github.com/hodlwarz/arena/internal/ledger"
)

type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Add(o Vec2) Vec2      { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2      { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(s float64) Vec2 { return Vec2{v.X * s, v.Y * s} }

func (v Vec2) LenSq() float64 {
	return v.X*v.X + v.Y*v.Y
}

// Combatant is one simulated participant. The tick loop owns all writes
// during a tick; background merges touch it only between ticks through
// the arena lock.
type Combatant struct {
	Address string
	Pos     Vec2
	Vel     Vec2
	Radius  float64
	Color   string

	Health     float64
	MaxHealth  float64
	BaseAttack float64
	XP         uint64
	Kills      uint64
	Deaths     uint64

	Ranks       ability.Ranks
	ManualBuild bool

	Ghost      bool
	Alive      bool
	GhostUntil time.Time
	// RespawnedAt opens the grace window during which reconciliation must
	// not snap health/alive back to a stale ledger view.
	RespawnedAt time.Time

	Shield float64

	// Transient combat state, reset on death.
	LastFireAt   time.Time
	ShotCount    int
	FocusTarget  string
	FocusStacks  int
	MomentumTill time.Time
	RampageShots int
	CloakUntil   time.Time
	NextCloakAt  time.Time
	NextFrenzyAt time.Time
	LastSlamAt   time.Time
}

// Level is derived from experience, never stored.
func (c *Combatant) Level() int {
	return ability.Level(c.XP)
}

// SpendablePoints is the unallocated ability point balance.
func (c *Combatant) SpendablePoints() int {
	n := ability.Budget(c.Level()) - c.Ranks.Spent()
	if n < 0 {
		return 0
	}
	return n
}

// AttackPower is the firing-time base damage before per-shot modifiers.
func (c *Combatant) AttackPower() float64 {
	return c.BaseAttack + c.Ranks.Value(ability.HeavyHitter)
}

// MoveSpeedMult aggregates always-on and transient speed modifiers.
func (c *Combatant) MoveSpeedMult(now time.Time) float64 {
	m := 1.0 + c.Ranks.Value(ability.Swift)
	if now.Before(c.MomentumTill) {
		m *= 1.0 + c.Ranks.Value(ability.Momentum)
	}
	return m
}

// Cloaked reports whether the combatant is currently untargetable.
func (c *Combatant) Cloaked(now time.Time) bool {
	return now.Before(c.CloakUntil)
}

// Targetable is the single gate used by all targeting and hit resolution.
func (c *Combatant) Targetable(now time.Time) bool {
	return c.Alive && !c.Ghost && !c.Cloaked(now)
}

const (
	baseGhostDuration  = 5 * time.Second
	ghostPerLevel      = 200 * time.Millisecond
	ghostDoubleLevel   = 25
	defaultRadius      = 16.0
	medianSeedFraction = 1.0
)

// GhostDuration is how long a victim stays a ghost: linear in level, with
// levels past the threshold counting double, reduced by quick-respawn.
func GhostDuration(level int, ranks ability.Ranks) time.Duration {
	weighted := level
	if level > ghostDoubleLevel {
		weighted = ghostDoubleLevel + (level-ghostDoubleLevel)*2
	}
	d := baseGhostDuration + time.Duration(weighted)*ghostPerLevel
	reduction := ranks.Value(ability.QuickRespawn)
	return time.Duration(float64(d) * (1.0 - reduction))
}

// Die flips the combatant into ghost state and clears transient combat
// state. The attacker-side bookkeeping lives in the effect engine.
func (c *Combatant) Die(now time.Time) {
	c.Health = 0
	c.Alive = false
	c.Ghost = true
	c.GhostUntil = now.Add(GhostDuration(c.Level(), c.Ranks))
	c.Deaths++
	c.Shield = 0
	c.FocusTarget = ""
	c.FocusStacks = 0
	c.MomentumTill = time.Time{}
	c.RampageShots = 0
}

// Respawn exits ghost state at full health and opens the reconciliation
// grace window.
func (c *Combatant) Respawn(now time.Time) {
	c.Ghost = false
	c.Alive = true
	c.Health = c.MaxHealth
	c.Shield = c.Ranks.Value(ability.Absorb)
	c.GhostUntil = time.Time{}
	c.RespawnedAt = now
}

// ApplyRankStats rederives max health and attack from ranks, preserving
// the health deficit so allocation mid-fight is not a free heal.
func (c *Combatant) ApplyRankStats() {
	deficit := c.MaxHealth - c.Health
	c.MaxHealth = ledger.BaseHealth + c.Ranks.Value(ability.IronSkin)
	c.BaseAttack = ledger.BaseAttack
	if c.Alive {
		c.Health = c.MaxHealth - deficit
		if c.Health < 1 {
			c.Health = 1
		}
	}
}
