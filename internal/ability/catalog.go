package ability

import (
	"errors"
	"math/rand"
)

// Ability IDs match the ledger program's talent slots 0-24.
type ID uint8

const (
	// Strength
	IronSkin ID = iota
	HeavyHitter
	Regeneration
	Lifesteal
	Armor
	// Speed
	Swift
	RapidFire
	Evasion
	QuickRespawn
	Momentum
	// Precision
	Weakspot
	CriticalStrike
	FocusFire
	MultiShot
	DualCannon
	// Utility
	Deflect
	Absorb
	LastStand
	Cloak
	Dash
	// Chaos
	Rampage
	Homing
	Ricochet
	Deathbomb
	Frenzy

	Count = 25
)

type Tree int

const (
	TreeStrength Tree = iota
	TreeSpeed
	TreePrecision
	TreeUtility
	TreeChaos
)

func (t Tree) String() string {
	switch t {
	case TreeStrength:
		return "strength"
	case TreeSpeed:
		return "speed"
	case TreePrecision:
		return "precision"
	case TreeUtility:
		return "utility"
	case TreeChaos:
		return "chaos"
	default:
		return "unknown"
	}
}

// Kind is the closed set of effect shapes the engine knows how to apply.
type Kind int

const (
	KindFlat     Kind = iota // always-on numeric modifier
	KindChance               // rolls per hit
	KindStacking             // grows across consecutive hits
	KindPeriodic             // evaluated once per tick or on a timer
	KindOnKill               // triggered by a kill
	KindContact              // applied on physical overlap
)

type Def struct {
	ID       ID
	Name     string
	Tree     Tree
	Kind     Kind
	MaxRank  int
	PerRank  float64 // magnitude added per rank
	Cap      float64 // hard cap on the summed magnitude; 0 = uncapped
	Requires ID      // prerequisite ability, valid when ReqRank > 0
	ReqRank  int
	Capstone bool
}

// MaxCapstones is the cross-tree limit on capstone abilities with rank > 0.
const MaxCapstones = 2

const (
	maxLevel       = 100
	rankCapOld     = 5 // Strength / Speed / Precision (ids 0-14)
	rankCapNew     = 3 // Utility / Chaos (ids 15-24)
	xpLevelDivisor = 10
)

var catalog = [Count]Def{
	{ID: IronSkin, Name: "iron_skin", Tree: TreeStrength, Kind: KindFlat, MaxRank: rankCapOld, PerRank: 15},
	{ID: HeavyHitter, Name: "heavy_hitter", Tree: TreeStrength, Kind: KindFlat, MaxRank: rankCapOld, PerRank: 2},
	{ID: Regeneration, Name: "regeneration", Tree: TreeStrength, Kind: KindPeriodic, MaxRank: rankCapOld, PerRank: 0.5},
	{ID: Lifesteal, Name: "lifesteal", Tree: TreeStrength, Kind: KindFlat, MaxRank: rankCapOld, PerRank: 0.04, Cap: 0.20},
	{ID: Armor, Name: "armor", Tree: TreeStrength, Kind: KindFlat, MaxRank: rankCapOld, PerRank: 0.06, Cap: 0.30, Requires: Lifesteal, ReqRank: 1, Capstone: true},

	{ID: Swift, Name: "swift", Tree: TreeSpeed, Kind: KindFlat, MaxRank: rankCapOld, PerRank: 0.08},
	{ID: RapidFire, Name: "rapid_fire", Tree: TreeSpeed, Kind: KindFlat, MaxRank: rankCapOld, PerRank: 0.06, Cap: 0.30},
	{ID: Evasion, Name: "evasion", Tree: TreeSpeed, Kind: KindChance, MaxRank: rankCapOld, PerRank: 0.04, Cap: 0.20},
	{ID: QuickRespawn, Name: "quick_respawn", Tree: TreeSpeed, Kind: KindFlat, MaxRank: rankCapOld, PerRank: 0.10, Cap: 0.50},
	{ID: Momentum, Name: "momentum", Tree: TreeSpeed, Kind: KindOnKill, MaxRank: rankCapOld, PerRank: 0.12, Cap: 0.60, Requires: QuickRespawn, ReqRank: 1, Capstone: true},

	{ID: Weakspot, Name: "weakspot", Tree: TreePrecision, Kind: KindFlat, MaxRank: rankCapOld, PerRank: 0.10, Cap: 0.50},
	{ID: CriticalStrike, Name: "critical_strike", Tree: TreePrecision, Kind: KindChance, MaxRank: rankCapOld, PerRank: 0.05, Cap: 0.25},
	{ID: FocusFire, Name: "focus_fire", Tree: TreePrecision, Kind: KindStacking, MaxRank: rankCapOld, PerRank: 0.03},
	{ID: MultiShot, Name: "multi_shot", Tree: TreePrecision, Kind: KindChance, MaxRank: rankCapOld, PerRank: 0.08, Cap: 0.40},
	{ID: DualCannon, Name: "dual_cannon", Tree: TreePrecision, Kind: KindFlat, MaxRank: rankCapOld, PerRank: 0.15, Requires: MultiShot, ReqRank: 1, Capstone: true},

	{ID: Deflect, Name: "deflect", Tree: TreeUtility, Kind: KindChance, MaxRank: rankCapNew, PerRank: 0.07, Cap: 0.21},
	{ID: Absorb, Name: "absorb", Tree: TreeUtility, Kind: KindFlat, MaxRank: rankCapNew, PerRank: 12},
	{ID: LastStand, Name: "last_stand", Tree: TreeUtility, Kind: KindPeriodic, MaxRank: rankCapNew, PerRank: 0.10},
	{ID: Cloak, Name: "cloak", Tree: TreeUtility, Kind: KindPeriodic, MaxRank: rankCapNew, PerRank: 0.5},
	{ID: Dash, Name: "dash", Tree: TreeUtility, Kind: KindContact, MaxRank: rankCapNew, PerRank: 0.30, Requires: Cloak, ReqRank: 1, Capstone: true},

	{ID: Rampage, Name: "rampage", Tree: TreeChaos, Kind: KindOnKill, MaxRank: rankCapNew, PerRank: 0.15, Cap: 0.45},
	{ID: Homing, Name: "homing", Tree: TreeChaos, Kind: KindPeriodic, MaxRank: rankCapNew, PerRank: 2},
	{ID: Ricochet, Name: "ricochet", Tree: TreeChaos, Kind: KindChance, MaxRank: rankCapNew, PerRank: 0.10, Cap: 0.30},
	{ID: Deathbomb, Name: "deathbomb", Tree: TreeChaos, Kind: KindOnKill, MaxRank: rankCapNew, PerRank: 15},
	{ID: Frenzy, Name: "frenzy", Tree: TreeChaos, Kind: KindPeriodic, MaxRank: rankCapNew, PerRank: 1, Requires: Deathbomb, ReqRank: 1, Capstone: true},
}

// Get returns the definition for id. Panics on out-of-range ids; callers
// hold ids that came from this package or from validated ledger state.
func Get(id ID) Def {
	return catalog[id]
}

// All returns the full catalog in id order.
func All() []Def {
	out := make([]Def, Count)
	copy(out, catalog[:])
	return out
}

// Valid reports whether id names a catalog entry.
func Valid(id ID) bool {
	return id < Count
}

// ValueForRank is the summed magnitude at the given rank, clamped to the
// ability's hard cap.
func ValueForRank(id ID, rank int) float64 {
	d := catalog[id]
	if rank <= 0 {
		return 0
	}
	if rank > d.MaxRank {
		rank = d.MaxRank
	}
	v := d.PerRank * float64(rank)
	if d.Cap > 0 && v > d.Cap {
		v = d.Cap
	}
	return v
}

// Ranks holds one rank per catalog slot, indexed by ID.
type Ranks [Count]uint8

func (r Ranks) Get(id ID) int {
	if !Valid(id) {
		return 0
	}
	return int(r[id])
}

func (r *Ranks) Set(id ID, rank int) {
	if !Valid(id) {
		return
	}
	if rank < 0 {
		rank = 0
	}
	if max := catalog[id].MaxRank; rank > max {
		rank = max
	}
	r[id] = uint8(rank)
}

// Spent is the total points allocated across all abilities.
func (r Ranks) Spent() int {
	total := 0
	for _, v := range r {
		total += int(v)
	}
	return total
}

// Capstones counts capstone abilities with rank > 0.
func (r Ranks) Capstones() int {
	n := 0
	for i, v := range r {
		if v > 0 && catalog[i].Capstone {
			n++
		}
	}
	return n
}

// Value is shorthand for ValueForRank at this build's rank.
func (r Ranks) Value(id ID) float64 {
	return ValueForRank(id, r.Get(id))
}

// Level derives a combatant's level from experience: 1 + isqrt(xp/10),
// capped at 100. Mirrors the ledger's formula exactly.
func Level(xp uint64) int {
	lvl := 1 + isqrt(xp/xpLevelDivisor)
	if lvl > maxLevel {
		return maxLevel
	}
	return int(lvl)
}

// Budget is the number of allocatable points at a level.
func Budget(level int) int {
	if level <= 1 {
		return 0
	}
	return level - 1
}

var (
	ErrNoPoints       = errors.New("no ability points available")
	ErrMaxed          = errors.New("ability already at max rank")
	ErrPrerequisite   = errors.New("prerequisite not met")
	ErrCapstoneBudget = errors.New("capstone budget exceeded")
	ErrUnknownAbility = errors.New("unknown ability id")
)

// CanAllocate checks whether one more rank of id is legal for a build at
// the given level. Returns nil when the allocation is allowed.
func CanAllocate(ranks Ranks, id ID, level int) error {
	if !Valid(id) {
		return ErrUnknownAbility
	}
	d := catalog[id]
	if ranks.Spent() >= Budget(level) {
		return ErrNoPoints
	}
	if ranks.Get(id) >= d.MaxRank {
		return ErrMaxed
	}
	if d.ReqRank > 0 && ranks.Get(d.Requires) < d.ReqRank {
		return ErrPrerequisite
	}
	if d.Capstone && ranks.Get(id) == 0 && ranks.Capstones() >= MaxCapstones {
		return ErrCapstoneBudget
	}
	return nil
}

// RandomLegal picks uniformly among abilities that could legally take one
// more point. ok is false when no allocation is possible.
func RandomLegal(ranks Ranks, level int, rng *rand.Rand) (ID, bool) {
	var legal []ID
	for i := ID(0); i < Count; i++ {
		if CanAllocate(ranks, i, level) == nil {
			legal = append(legal, i)
		}
	}
	if len(legal) == 0 {
		return 0, false
	}
	return legal[rng.Intn(len(legal))], true
}

func isqrt(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}
