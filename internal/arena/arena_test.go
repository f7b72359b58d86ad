package arena

import (
	"testing"
	"time"

	"github.com/hodlwarz/arena/internal/ability"
	"github.com/hodlwarz/arena/internal/ledger"
)

func TestEnsureIdempotent(t *testing.T) {
	a := New(800, 600, 1)
	now := time.Now()

	c1 := a.Ensure("alice", nil, now)
	c2 := a.Ensure("alice", nil, now)
	if c1 != c2 {
		t.Fatal("Ensure should return the existing combatant")
	}
	if a.Count() != 1 {
		t.Fatalf("count = %d, want 1", a.Count())
	}
}

func TestEnsureSeedsFromSnapshot(t *testing.T) {
	a := New(800, 600, 1)
	var ranks ability.Ranks
	ranks.Set(ability.IronSkin, 3)

	snap := &ledger.Snapshot{
		Address: "bob",
		XP:      640, // level 9
		Kills:   12,
		Deaths:  4,
		Ranks:   ranks,
		Alive:   true,
	}
	c := a.Ensure("bob", snap, time.Now())

	if c.XP != 640 || c.Kills != 12 || c.Deaths != 4 {
		t.Fatalf("counters not seeded: %+v", c)
	}
	if c.Level() != 9 {
		t.Fatalf("level = %d, want 9", c.Level())
	}
	if c.MaxHealth != ledger.BaseHealth+45 {
		t.Fatalf("iron skin not applied to max health: %v", c.MaxHealth)
	}
}

func TestEnsureMedianSeedForLateJoiner(t *testing.T) {
	a := New(800, 600, 1)
	now := time.Now()

	for addr, xp := range map[string]uint64{"a": 100, "b": 400, "c": 900} {
		c := a.Ensure(addr, nil, now)
		a.Lock()
		c.XP = xp
		a.Unlock()
	}

	late := a.Ensure("late", nil, now)
	if late.XP == 0 {
		t.Fatal("late joiner should be seeded with the population median, not zero")
	}
}

func TestGhostDurationMonotoneInLevel(t *testing.T) {
	var none ability.Ranks
	prev := time.Duration(0)
	for level := 1; level <= 100; level++ {
		d := GhostDuration(level, none)
		if d < prev {
			t.Fatalf("ghost duration decreased at level %d: %v < %v", level, d, prev)
		}
		prev = d
	}
}

func TestGhostDurationDoublesPastThreshold(t *testing.T) {
	var none ability.Ranks
	below := GhostDuration(ghostDoubleLevel, none) - GhostDuration(ghostDoubleLevel-1, none)
	above := GhostDuration(ghostDoubleLevel+2, none) - GhostDuration(ghostDoubleLevel+1, none)
	if above != 2*below {
		t.Fatalf("per-level increment past threshold = %v, want %v", above, 2*below)
	}
}

func TestGhostDurationQuickRespawn(t *testing.T) {
	var none, quick ability.Ranks
	quick.Set(ability.QuickRespawn, 5)
	if GhostDuration(10, quick) >= GhostDuration(10, none) {
		t.Fatal("quick respawn should shorten ghost duration")
	}
}

func TestDieAndRespawn(t *testing.T) {
	a := New(800, 600, 1)
	now := time.Now()
	c := a.Ensure("x", nil, now)

	c.Die(now)
	if c.Alive || !c.Ghost || c.Health != 0 || c.Deaths != 1 {
		t.Fatalf("death state wrong: %+v", c)
	}
	if !c.GhostUntil.After(now) {
		t.Fatal("ghost until should be in the future")
	}

	c.Respawn(c.GhostUntil)
	if !c.Alive || c.Ghost || c.Health != c.MaxHealth {
		t.Fatalf("respawn state wrong: %+v", c)
	}
	if c.RespawnedAt.IsZero() {
		t.Fatal("respawn must open the reconciliation grace window")
	}
}

func TestResetAllClearsEverything(t *testing.T) {
	a := New(800, 600, 1)
	now := time.Now()
	c := a.Ensure("x", nil, now)

	a.Lock()
	c.XP = 5000
	c.Kills = 10
	c.Deaths = 3
	c.Ranks.Set(ability.HeavyHitter, 4)
	c.ManualBuild = true
	c.Die(now)
	a.Unlock()

	a.ResetAll(now)

	if c.XP != 0 || c.Kills != 0 || c.Deaths != 0 {
		t.Fatalf("counters not reset: %+v", c)
	}
	if c.Ranks.Spent() != 0 || c.ManualBuild {
		t.Fatal("ranks and manual-build flag must clear on season reset")
	}
	if !c.Alive || c.Ghost {
		t.Fatal("season reset should revive everyone")
	}
	if len(a.KillFeed()) != 0 {
		t.Fatal("kill feed should clear")
	}
}

func TestKillFeedBounded(t *testing.T) {
	f := NewKillFeed(3)
	for i := 0; i < 10; i++ {
		f.Add(KillEvent{Attacker: "a", Victim: "b"})
	}
	if len(f.Recent()) != 3 {
		t.Fatalf("feed should cap at 3, got %d", len(f.Recent()))
	}
}
