// Package ledger defines the contract with the authoritative system of
// record. The simulation is a fast local preview; everything here is the
// slow truth it must eventually agree with.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/hodlwarz/arena/internal/ability"
)

// Snapshot is the ledger's view of one combatant. Read-only for the
// simulation; never mutated locally.
type Snapshot struct {
	Address     string
	Health      int
	MaxHealth   int
	AttackPower int
	XP          uint64
	Kills       uint64
	Deaths      uint64
	Ranks       ability.Ranks
	Alive       bool
	ManualBuild bool
	RespawnAt   int64 // unix seconds; 0 when alive
}

// Base stats for a freshly registered combatant.
const (
	BaseHealth  = 100
	BaseAttack  = 10
	XPPerKill   = 25
	XPPerDeath  = 5
	RespawnSecs = 5
)

// Reason classifies validation rejections. These are expected outcomes,
// surfaced to callers as values, never retried automatically.
type Reason string

const (
	ReasonAlreadyExists  Reason = "already-exists"
	ReasonNotInitialized Reason = "not-initialized"
	ReasonAlreadyDead    Reason = "already-dead"
	ReasonAttackerDead   Reason = "attacker-dead"
	ReasonAlreadyAlive   Reason = "already-alive"
	ReasonCooldown       Reason = "cooldown-active"
	ReasonNoPoints       Reason = "no-points"
	ReasonPrerequisite   Reason = "prerequisite-unmet"
	ReasonMaxed          Reason = "maxed"
	ReasonCapstoneBudget Reason = "capstone-budget-exceeded"
	ReasonStaleReference Reason = "stale-reference"
	ReasonArenaInactive  Reason = "arena-inactive"
)

// Rejection is a structured validation outcome from the ledger. Anything
// that is not a Rejection is a transient infrastructure failure, left for
// the reconciler to absorb.
type Rejection struct {
	Reason Reason
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("ledger rejected: %s", r.Reason)
}

func Reject(reason Reason) error {
	return &Rejection{Reason: reason}
}

// RejectionReason extracts the reason when err is a validation rejection.
func RejectionReason(err error) (Reason, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}

// Client is the operation surface the simulation consumes. Implementations
// must keep per-combatant operations independently retryable: the caller
// never retries inline.
type Client interface {
	// Register creates the combatant record. Registering an existing
	// address rejects with ReasonAlreadyExists; callers treat that as
	// success (registration is idempotent per address).
	Register(ctx context.Context, addr string) error

	// ProcessAttack submits a hit count. The ledger computes the damage
	// from its own stored ability state, applies it, and resolves
	// death/XP itself. Returns a transaction reference.
	ProcessAttack(ctx context.Context, attacker, victim string, hits int) (string, error)

	// Respawn revives a dead combatant once its cooldown has elapsed.
	Respawn(ctx context.Context, addr string) (string, error)

	// AllocateAbility spends one point. Allocation is append-only: there
	// is no set-rank operation, only reset-then-reallocate.
	AllocateAbility(ctx context.Context, addr string, id ability.ID) error

	// ResetAbilities zeroes every rank, freeing all points.
	ResetAbilities(ctx context.Context, addr string) error

	// GetState fetches the ledger's current view of one combatant.
	GetState(ctx context.Context, addr string) (*Snapshot, error)

	// ListCombatants enumerates every address the ledger holds a record
	// for, including ones this process never saw.
	ListCombatants(ctx context.Context) ([]string, error)

	// ResetCombatant restores base stats and clears ranks (season reset).
	ResetCombatant(ctx context.Context, addr string) error

	// Commit checkpoints the fast layer's state back to the slow
	// authoritative layer. Must be called on graceful shutdown.
	Commit(ctx context.Context) error
}

// AttackDamage is the ledger-side damage formula: hit count times the
// attack power derived from stored ability state. Both implementations
// use it so the reference ledgers agree with each other.
func AttackDamage(hits int, ranks ability.Ranks) int {
	if hits <= 0 {
		return 0
	}
	power := BaseAttack + int(ranks.Value(ability.HeavyHitter))
	return hits * power
}

// KillXP is the experience bounty for killing a victim at the given
// level. High-level victims past the bounty threshold pay double.
func KillXP(victimLevel int) uint64 {
	xp := uint64(XPPerKill) * uint64(victimLevel)
	if victimLevel >= BountyLevelThreshold {
		xp *= 2
	}
	return xp
}

// BountyLevelThreshold is the victim level past which kill XP doubles.
const BountyLevelThreshold = 20
