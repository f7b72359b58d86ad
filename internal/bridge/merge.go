package bridge

import (
	"time"

	"github.com/hodlwarz/arena/internal/ability"
	"github.com/hodlwarz/arena/internal/ledger"
)

// RespawnGrace suppresses ledger health/alive adoption right after a
// local respawn, so a stale snapshot cannot snap a freshly revived
// combatant back to dead.
const RespawnGrace = 3 * time.Second

// Local is the simulation-side view fed into Merge. A plain value so the
// merge stays pure and testable away from the arena lock.
type Local struct {
	XP          uint64
	Kills       uint64
	Deaths      uint64
	Health      float64
	Alive       bool
	Ranks       ability.Ranks
	ManualBuild bool
	RespawnedAt time.Time
}

// MergeResult is what the caller applies back to the combatant, plus the
// divergence signal the catch-up pass keys off.
type MergeResult struct {
	XP     uint64
	Kills  uint64
	Deaths uint64

	// AdoptVitals: health and alive come from the ledger this round.
	AdoptVitals bool
	Health      float64
	Alive       bool

	// AdoptRanks: the ledger's build replaces the local one wholesale.
	AdoptRanks bool
	Ranks      ability.Ranks

	// RanksDiverged: after the merge the local build still differs from
	// the ledger's, so a reset-then-reallocate rebuild is needed.
	RanksDiverged bool
}

// Merge resolves one combatant's two views under the deterministic rule:
// monotonic counters take the max; vitals follow the ledger only when it
// is caught up and outside the respawn grace window; ranks follow the
// ledger only when it has strictly more points spent and the owner never
// built manually. Pure function of its inputs.
func Merge(local Local, remote ledger.Snapshot, now time.Time) MergeResult {
	res := MergeResult{
		XP:     maxU64(local.XP, remote.XP),
		Kills:  maxU64(local.Kills, remote.Kills),
		Deaths: maxU64(local.Deaths, remote.Deaths),
	}

	caughtUp := remote.XP >= local.XP && remote.Kills >= local.Kills
	inGrace := !local.RespawnedAt.IsZero() && now.Sub(local.RespawnedAt) < RespawnGrace
	if caughtUp && !inGrace {
		res.AdoptVitals = true
		res.Health = float64(remote.Health)
		res.Alive = remote.Alive
	}

	res.Ranks = local.Ranks
	if !local.ManualBuild && remote.Ranks.Spent() > local.Ranks.Spent() {
		res.AdoptRanks = true
		res.Ranks = remote.Ranks
	}

	res.RanksDiverged = res.Ranks != remote.Ranks
	return res
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
