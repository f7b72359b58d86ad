package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hodlwarz/arena/internal/ability"
	"github.com/hodlwarz/arena/internal/arena"
	"github.com/hodlwarz/arena/internal/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// countingLedger wraps the reference ledger to count operations.
type countingLedger struct {
	*ledger.MemLedger
	attacks atomic.Int32
}

func (c *countingLedger) ProcessAttack(ctx context.Context, attacker, victim string, hits int) (string, error) {
	c.attacks.Add(1)
	return c.MemLedger.ProcessAttack(ctx, attacker, victim, hits)
}

func mustRegister(t *testing.T, lc ledger.Client, addrs ...string) {
	t.Helper()
	ctx := context.Background()
	for _, addr := range addrs {
		if err := lc.Register(ctx, addr); err != nil {
			t.Fatalf("register %s: %v", addr, err)
		}
	}
}

func TestAggregatorCoalescesPerPair(t *testing.T) {
	lc := &countingLedger{MemLedger: ledger.NewMemLedger()}
	mustRegister(t, lc, "alice", "bob")

	agg := NewAggregator(lc, testLogger(), 0)
	agg.Record("alice", "bob", 11.5)
	agg.Record("alice", "bob", 9.0)
	agg.Record("alice", "bob", 10.0)

	agg.Flush(context.Background())

	if got := lc.attacks.Load(); got != 1 {
		t.Fatalf("ledger received %d attack ops, want exactly 1", got)
	}
	snap, err := lc.GetState(context.Background(), "bob")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	// Three coalesced hits at base attack power.
	want := ledger.BaseHealth - 3*ledger.BaseAttack
	if snap.Health != want {
		t.Fatalf("victim health = %d, want %d", snap.Health, want)
	}

	// A second flush with an empty accumulator sends nothing.
	agg.Flush(context.Background())
	if got := lc.attacks.Load(); got != 1 {
		t.Fatalf("empty flush sent %d extra ops", got-1)
	}
}

func TestAggregatorSurvivesTransientFailure(t *testing.T) {
	lc := ledger.NewMemLedger()
	mustRegister(t, lc, "alice", "bob")

	agg := NewAggregator(lc, testLogger(), 0)
	agg.Record("alice", "bob", 10)

	lc.FailTransiently(errors.New("network down"))
	agg.Flush(context.Background())

	_, _, failed := agg.Stats()
	if failed != 1 {
		t.Fatalf("failed counter = %d, want 1", failed)
	}
	// The batch is dropped, not retried inline.
	if agg.PendingPairs() != 0 {
		t.Fatal("failed batch must not be requeued")
	}
}

func TestRegistrationQueueDedupes(t *testing.T) {
	lc := ledger.NewMemLedger()
	q := NewRegistrationQueue(lc, testLogger(), 0)

	q.Enqueue("alice")
	q.Enqueue("alice")
	q.Enqueue("bob")
	if q.Len() != 2 {
		t.Fatalf("queue length = %d, want 2", q.Len())
	}

	q.Drain(context.Background())
	if q.Len() != 0 {
		t.Fatalf("queue not drained, %d left", q.Len())
	}
	for _, addr := range []string{"alice", "bob"} {
		if snap, err := lc.GetState(context.Background(), addr); err != nil || snap == nil {
			t.Fatalf("%s not registered: %v", addr, err)
		}
	}

	// A registered address never queues again.
	q.Enqueue("alice")
	if q.Len() != 0 {
		t.Fatal("completed registration re-queued")
	}
}

func TestSyncQueuePreservesOrder(t *testing.T) {
	lc := ledger.NewMemLedger()
	mustRegister(t, lc, "alice", "bob")
	grindLevels(t, lc, "alice", "bob", 4)

	q := NewSyncQueue(lc, testLogger(), 0)
	q.EnqueueAllocate("alice", ability.IronSkin)
	q.EnqueueAllocate("alice", ability.IronSkin)
	q.EnqueueReset("alice")
	q.EnqueueAllocate("alice", ability.HeavyHitter)

	if !q.Pending("alice") {
		t.Fatal("queued combatant not pending")
	}
	q.Drain(context.Background())
	if q.Pending("alice") {
		t.Fatal("drained combatant still pending")
	}

	snap, err := lc.GetState(context.Background(), "alice")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	// The reset landed between the allocations, so only the trailing
	// heavy-hitter point survives.
	if snap.Ranks.Get(ability.IronSkin) != 0 {
		t.Fatalf("iron skin rank = %d, want 0 after mid-queue reset", snap.Ranks.Get(ability.IronSkin))
	}
	if snap.Ranks.Get(ability.HeavyHitter) != 1 {
		t.Fatalf("heavy hitter rank = %d, want 1", snap.Ranks.Get(ability.HeavyHitter))
	}
}

func TestReconcilerAdoptsLedgerBuild(t *testing.T) {
	ctx := context.Background()
	lc := ledger.NewMemLedger()
	mustRegister(t, lc, "alice", "bob")
	grindLevels(t, lc, "alice", "bob", 2)
	if err := lc.AllocateAbility(ctx, "alice", ability.IronSkin); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	a := arena.New(800, 600, 1)
	reg := NewRegistrationQueue(lc, testLogger(), 0)
	sq := NewSyncQueue(lc, testLogger(), 0)
	rec := NewReconciler(lc, a, reg, sq, testLogger(), 30*time.Second)

	now := time.Unix(5000, 0)
	c := a.Ensure("alice", nil, now)

	rec.Poll(ctx, now)

	if c.Ranks.Get(ability.IronSkin) != 1 {
		t.Fatalf("iron skin rank = %d, want 1 adopted from ledger", c.Ranks.Get(ability.IronSkin))
	}
	snap, _ := lc.GetState(ctx, "alice")
	if c.XP != snap.XP {
		t.Fatalf("xp = %d, want ledger's %d", c.XP, snap.XP)
	}
	if rec.CachedSnapshot("alice") == nil {
		t.Fatal("poll did not cache the ledger view")
	}

	// Idempotence: a second poll changes nothing.
	ranksBefore, xpBefore := c.Ranks, c.XP
	rec.Poll(ctx, now.Add(time.Second))
	if c.Ranks != ranksBefore || c.XP != xpBefore {
		t.Fatal("second poll moved converged state")
	}
}

func TestReconcilerRespectsManualBuild(t *testing.T) {
	ctx := context.Background()
	lc := ledger.NewMemLedger()
	mustRegister(t, lc, "alice", "bob")
	grindLevels(t, lc, "alice", "bob", 2)
	if err := lc.AllocateAbility(ctx, "alice", ability.IronSkin); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	a := arena.New(800, 600, 1)
	reg := NewRegistrationQueue(lc, testLogger(), 0)
	sq := NewSyncQueue(lc, testLogger(), 0)
	rec := NewReconciler(lc, a, reg, sq, testLogger(), 30*time.Second)

	now := time.Unix(5000, 0)
	c := a.Ensure("alice", nil, now)
	c.ManualBuild = true
	c.Ranks.Set(ability.HeavyHitter, 1)

	rec.Poll(ctx, now)

	if c.Ranks.Get(ability.IronSkin) != 0 {
		t.Fatal("manual build overwritten by ledger ranks")
	}
	// The divergence instead queues a rebuild: reset plus the local build.
	if sq.Len() != 2 {
		t.Fatalf("sync queue length = %d, want reset + 1 allocation", sq.Len())
	}

	sq.Drain(ctx)
	snap, _ := lc.GetState(ctx, "alice")
	if snap.Ranks.Get(ability.HeavyHitter) != 1 || snap.Ranks.Get(ability.IronSkin) != 0 {
		t.Fatalf("ledger build after rebuild = %v, want the manual build", snap.Ranks)
	}
}

func TestReconcilerReenqueuesLostRegistration(t *testing.T) {
	ctx := context.Background()
	lc := ledger.NewMemLedger()

	a := arena.New(800, 600, 1)
	reg := NewRegistrationQueue(lc, testLogger(), 0)
	sq := NewSyncQueue(lc, testLogger(), 0)
	rec := NewReconciler(lc, a, reg, sq, testLogger(), 30*time.Second)

	now := time.Unix(5000, 0)
	a.Ensure("alice", nil, now)

	rec.Poll(ctx, now)
	if reg.Len() != 1 {
		t.Fatalf("registration queue length = %d, want 1 re-enqueued", reg.Len())
	}
}

func TestSeasonResetClearsEverything(t *testing.T) {
	ctx := context.Background()
	lc := ledger.NewMemLedger()
	mustRegister(t, lc, "alice", "bob")
	grindLevels(t, lc, "alice", "bob", 2)
	if err := lc.AllocateAbility(ctx, "alice", ability.IronSkin); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	a := arena.New(800, 600, 1)
	now := time.Unix(5000, 0)
	c := a.Ensure("alice", nil, now)
	c.XP = 999
	c.Kills = 5
	c.Deaths = 3
	c.Ranks.Set(ability.Swift, 2)
	c.ManualBuild = true

	agg := NewAggregator(lc, testLogger(), 0)
	agg.Record("alice", "bob", 10)
	reg := NewRegistrationQueue(lc, testLogger(), 0)
	sq := NewSyncQueue(lc, testLogger(), 0)
	sq.EnqueueAllocate("alice", ability.Swift)
	rec := NewReconciler(lc, a, reg, sq, testLogger(), 30*time.Second)
	rec.Poll(ctx, now)

	cleared := false
	sc := NewSeasonController(lc, a, agg, reg, sq, rec, testLogger(), func(context.Context) { cleared = true })

	resets, fails, err := sc.Reset(ctx, now)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if fails != 0 || resets != 2 {
		t.Fatalf("resets = %d fails = %d, want 2 and 0", resets, fails)
	}

	if c.XP != 0 || c.Kills != 0 || c.Deaths != 0 {
		t.Fatalf("local counters not zeroed: %d/%d/%d", c.XP, c.Kills, c.Deaths)
	}
	if c.Ranks != (ability.Ranks{}) || c.ManualBuild {
		t.Fatal("local build not cleared")
	}
	if agg.PendingPairs() != 0 || sq.Len() != 0 {
		t.Fatal("queues not cleared")
	}
	if rec.CachedSnapshot("alice") != nil {
		t.Fatal("snapshot cache not cleared")
	}
	if !cleared {
		t.Fatal("external reset hook not invoked")
	}

	snap, err := lc.GetState(ctx, "alice")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if snap.XP != 0 || snap.Kills != 0 || snap.Ranks != (ability.Ranks{}) {
		t.Fatalf("ledger state not reset: %+v", snap)
	}
}

// grindLevels kills the victim repeatedly so the attacker accumulates
// enough experience to spend points.
func grindLevels(t *testing.T, lc *ledger.MemLedger, attacker, victim string, kills int) {
	t.Helper()
	ctx := context.Background()
	now := time.Unix(1000, 0)
	lc.SetClock(func() time.Time { return now })
	for i := 0; i < kills; i++ {
		if _, err := lc.ProcessAttack(ctx, attacker, victim, 10); err != nil {
			t.Fatalf("attack %d: %v", i, err)
		}
		now = now.Add(time.Minute)
		if _, err := lc.Respawn(ctx, victim); err != nil {
			t.Fatalf("respawn %d: %v", i, err)
		}
	}
	lc.SetClock(time.Now)
}
