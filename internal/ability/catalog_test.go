package ability

import (
	"math/rand"
	"testing"
)

func TestLevelCurve(t *testing.T) {
	cases := []struct {
		xp   uint64
		want int
	}{
		{0, 1},
		{9, 1},
		{10, 2},
		{40, 3},
		{90, 4},
		{250, 6},
		{1000, 11},
		{10_000_000, 100}, // capped
	}
	for _, c := range cases {
		if got := Level(c.xp); got != c.want {
			t.Errorf("Level(%d) = %d, want %d", c.xp, got, c.want)
		}
	}
}

func TestLevelMonotone(t *testing.T) {
	prev := 0
	for xp := uint64(0); xp < 50_000; xp += 37 {
		l := Level(xp)
		if l < prev {
			t.Fatalf("level decreased at xp=%d: %d < %d", xp, l, prev)
		}
		prev = l
	}
}

func TestBudget(t *testing.T) {
	if Budget(1) != 0 {
		t.Fatalf("level 1 should have no points, got %d", Budget(1))
	}
	if Budget(10) != 9 {
		t.Fatalf("level 10 budget = %d, want 9", Budget(10))
	}
}

func TestValueForRankCaps(t *testing.T) {
	// Armor: 6% per rank, capped at 30%
	if v := ValueForRank(Armor, 5); v != 0.30 {
		t.Errorf("armor rank 5 = %v, want 0.30", v)
	}
	// Rank beyond max clamps to max
	if v := ValueForRank(HeavyHitter, 99); v != ValueForRank(HeavyHitter, 5) {
		t.Errorf("over-rank should clamp to max rank value")
	}
	if v := ValueForRank(Lifesteal, 0); v != 0 {
		t.Errorf("rank 0 should be 0, got %v", v)
	}
}

func TestCanAllocateBudget(t *testing.T) {
	var r Ranks
	if err := CanAllocate(r, IronSkin, 1); err != ErrNoPoints {
		t.Fatalf("level 1 has no points, got %v", err)
	}
	if err := CanAllocate(r, IronSkin, 2); err != nil {
		t.Fatalf("level 2 should allow first point: %v", err)
	}
}

func TestCanAllocateMaxRank(t *testing.T) {
	var r Ranks
	r.Set(IronSkin, 5)
	if err := CanAllocate(r, IronSkin, 50); err != ErrMaxed {
		t.Fatalf("want ErrMaxed, got %v", err)
	}
	r.Set(Deflect, 3)
	if err := CanAllocate(r, Deflect, 50); err != ErrMaxed {
		t.Fatalf("utility tree caps at 3: got %v", err)
	}
}

func TestCanAllocatePrerequisite(t *testing.T) {
	var r Ranks
	if err := CanAllocate(r, Armor, 50); err != ErrPrerequisite {
		t.Fatalf("armor requires lifesteal, got %v", err)
	}
	r.Set(Lifesteal, 1)
	if err := CanAllocate(r, Armor, 50); err != nil {
		t.Fatalf("prerequisite met, got %v", err)
	}
}

func TestCanAllocateCapstoneBudget(t *testing.T) {
	var r Ranks
	r.Set(Lifesteal, 1)
	r.Set(QuickRespawn, 1)
	r.Set(MultiShot, 1)
	r.Set(Armor, 1)
	r.Set(Momentum, 1)
	if err := CanAllocate(r, DualCannon, 100); err != ErrCapstoneBudget {
		t.Fatalf("third capstone should be rejected, got %v", err)
	}
	// Raising an already-open capstone is still fine.
	if err := CanAllocate(r, Armor, 100); err != nil {
		t.Fatalf("raising existing capstone: %v", err)
	}
}

func TestRandomLegalRespectsInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var r Ranks
	level := 40

	for i := 0; i < Budget(level); i++ {
		id, ok := RandomLegal(r, level, rng)
		if !ok {
			break
		}
		if err := CanAllocate(r, id, level); err != nil {
			t.Fatalf("RandomLegal returned illegal pick %d: %v", id, err)
		}
		r.Set(id, r.Get(id)+1)
	}

	if r.Spent() > Budget(level) {
		t.Fatalf("spent %d exceeds budget %d", r.Spent(), Budget(level))
	}
	if r.Capstones() > MaxCapstones {
		t.Fatalf("capstone count %d exceeds limit %d", r.Capstones(), MaxCapstones)
	}
}

func TestRandomLegalExhausted(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var r Ranks
	if _, ok := RandomLegal(r, 1, rng); ok {
		t.Fatal("no points at level 1, should report no legal pick")
	}
}
