package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hodlwarz/arena/internal/ability"
)

func TestRegisterIdempotentPerAddress(t *testing.T) {
	ctx := context.Background()
	m := NewMemLedger()

	if err := m.Register(ctx, "alice"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := m.Register(ctx, "alice")
	reason, ok := RejectionReason(err)
	if !ok || reason != ReasonAlreadyExists {
		t.Fatalf("second register should reject already-exists, got %v", err)
	}

	s, err := m.GetState(ctx, "alice")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if s.Health != BaseHealth || s.AttackPower != BaseAttack || !s.Alive {
		t.Fatalf("unexpected base state: %+v", s)
	}
}

func TestProcessAttackRecomputesDamage(t *testing.T) {
	ctx := context.Background()
	m := NewMemLedger()
	mustRegister(t, m, "a", "b")

	// 3 hits at base attack 10 → 30 damage regardless of what the caller
	// thought the damage was.
	if _, err := m.ProcessAttack(ctx, "a", "b", 3); err != nil {
		t.Fatalf("attack: %v", err)
	}
	s, _ := m.GetState(ctx, "b")
	if s.Health != BaseHealth-30 {
		t.Fatalf("victim health = %d, want %d", s.Health, BaseHealth-30)
	}
}

func TestProcessAttackKillResolvesXP(t *testing.T) {
	ctx := context.Background()
	m := NewMemLedger()
	mustRegister(t, m, "a", "b")

	// 10 hits = 100 damage = exactly lethal at base health.
	if _, err := m.ProcessAttack(ctx, "a", "b", 10); err != nil {
		t.Fatalf("attack: %v", err)
	}
	atk, _ := m.GetState(ctx, "a")
	vic, _ := m.GetState(ctx, "b")

	if vic.Alive || vic.Health != 0 || vic.Deaths != 1 {
		t.Fatalf("victim should be dead: %+v", vic)
	}
	if vic.XP != XPPerDeath {
		t.Fatalf("victim consolation xp = %d, want %d", vic.XP, XPPerDeath)
	}
	if atk.Kills != 1 || atk.XP != KillXP(1) {
		t.Fatalf("attacker kills=%d xp=%d, want 1/%d", atk.Kills, atk.XP, KillXP(1))
	}

	// Further attacks on a corpse reject.
	_, err := m.ProcessAttack(ctx, "a", "b", 1)
	if reason, ok := RejectionReason(err); !ok || reason != ReasonAlreadyDead {
		t.Fatalf("want already-dead, got %v", err)
	}
}

func TestRespawnCooldown(t *testing.T) {
	ctx := context.Background()
	m := NewMemLedger()
	mustRegister(t, m, "a", "b")

	now := time.Unix(1000, 0)
	m.SetClock(func() time.Time { return now })

	if _, err := m.ProcessAttack(ctx, "a", "b", 10); err != nil {
		t.Fatalf("attack: %v", err)
	}

	_, err := m.Respawn(ctx, "b")
	if reason, ok := RejectionReason(err); !ok || reason != ReasonCooldown {
		t.Fatalf("respawn inside cooldown should reject, got %v", err)
	}

	now = now.Add(RespawnSecs * time.Second)
	if _, err := m.Respawn(ctx, "b"); err != nil {
		t.Fatalf("respawn after cooldown: %v", err)
	}
	s, _ := m.GetState(ctx, "b")
	if !s.Alive || s.Health != s.MaxHealth {
		t.Fatalf("respawned state wrong: %+v", s)
	}

	_, err = m.Respawn(ctx, "b")
	if reason, ok := RejectionReason(err); !ok || reason != ReasonAlreadyAlive {
		t.Fatalf("want already-alive, got %v", err)
	}
}

func TestAllocateValidation(t *testing.T) {
	ctx := context.Background()
	m := NewMemLedger()
	mustRegister(t, m, "a")

	err := m.AllocateAbility(ctx, "a", ability.IronSkin)
	if reason, ok := RejectionReason(err); !ok || reason != ReasonNoPoints {
		t.Fatalf("level 1 has no points, got %v", err)
	}

	// Hand the combatant enough xp for level 3 (2 points) by grinding
	// kills against a stream of victims.
	for i := 0; i < 2; i++ {
		victim := string(rune('x' + i))
		mustRegister(t, m, victim)
		if _, err := m.ProcessAttack(ctx, "a", victim, 10); err != nil {
			t.Fatalf("grind kill: %v", err)
		}
	}
	s, _ := m.GetState(ctx, "a")
	if ability.Level(s.XP) < 3 {
		t.Fatalf("grind did not reach level 3: xp=%d", s.XP)
	}

	if err := m.AllocateAbility(ctx, "a", ability.IronSkin); err != nil {
		t.Fatalf("allocate with points: %v", err)
	}
	s, _ = m.GetState(ctx, "a")
	if s.Ranks.Get(ability.IronSkin) != 1 || !s.ManualBuild {
		t.Fatalf("allocation not applied: %+v", s)
	}
	if s.MaxHealth != BaseHealth+15 {
		t.Fatalf("iron skin should raise max health, got %d", s.MaxHealth)
	}

	err = m.AllocateAbility(ctx, "a", ability.Armor)
	if reason, ok := RejectionReason(err); !ok || reason != ReasonPrerequisite {
		t.Fatalf("armor without lifesteal should reject, got %v", err)
	}
}

func TestResetAbilitiesFreesPoints(t *testing.T) {
	ctx := context.Background()
	m := NewMemLedger()
	mustRegister(t, m, "a", "v")

	now := time.Unix(1000, 0)
	m.SetClock(func() time.Time { return now })

	for i := 0; i < 4; i++ {
		if _, err := m.ProcessAttack(ctx, "a", "v", 10); err != nil {
			t.Fatalf("kill %d: %v", i, err)
		}
		now = now.Add(time.Hour)
		if _, err := m.Respawn(ctx, "v"); err != nil {
			t.Fatalf("respawn victim: %v", err)
		}
	}
	if err := m.AllocateAbility(ctx, "a", ability.Swift); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := m.ResetAbilities(ctx, "a"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	s, _ := m.GetState(ctx, "a")
	if s.Ranks.Spent() != 0 {
		t.Fatalf("ranks should be cleared, spent=%d", s.Ranks.Spent())
	}
	if err := m.AllocateAbility(ctx, "a", ability.IronSkin); err != nil {
		t.Fatalf("reallocate after reset: %v", err)
	}
}

func TestSeasonResetClearsEverything(t *testing.T) {
	ctx := context.Background()
	m := NewMemLedger()
	mustRegister(t, m, "a", "v")

	if _, err := m.ProcessAttack(ctx, "a", "v", 10); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if err := m.ResetCombatant(ctx, "a"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	s, _ := m.GetState(ctx, "a")
	if s.XP != 0 || s.Kills != 0 || s.Deaths != 0 || s.Ranks.Spent() != 0 || s.ManualBuild {
		t.Fatalf("reset left residue: %+v", s)
	}
}

func TestTransientFailureIsNotARejection(t *testing.T) {
	ctx := context.Background()
	m := NewMemLedger()
	mustRegister(t, m, "a")

	down := errors.New("connection refused")
	m.FailTransiently(down)
	_, err := m.GetState(ctx, "a")
	if err == nil {
		t.Fatal("expected failure")
	}
	if _, ok := RejectionReason(err); ok {
		t.Fatal("transient failure must not classify as a rejection")
	}

	m.FailTransiently(nil)
	if _, err := m.GetState(ctx, "a"); err != nil {
		t.Fatalf("recovered ledger: %v", err)
	}
}

func mustRegister(t *testing.T, m *MemLedger, addrs ...string) {
	t.Helper()
	for _, a := range addrs {
		if err := m.Register(context.Background(), a); err != nil {
			t.Fatalf("register %s: %v", a, err)
		}
	}
}
