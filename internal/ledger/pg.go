package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hodlwarz/arena/internal/ability"
	"github.com/hodlwarz/arena/internal/store"
)

// PGLedger is the reference Client backed by Postgres. It mirrors the
// authoritative program's two-layer model: operations apply to an
// in-memory fast layer and Commit checkpoints dirty records back to the
// durable base layer. Registration writes through immediately so the
// record survives even if the process dies before the first commit.
type PGLedger struct {
	mu         sync.Mutex
	combatants *store.CombatantStore
	attacks    *store.AttackLog
	cache      map[string]*store.Combatant
	dirty      map[string]bool
	now        func() time.Time
	logger     *slog.Logger
}

func NewPGLedger(combatants *store.CombatantStore, attacks *store.AttackLog, logger *slog.Logger) *PGLedger {
	return &PGLedger{
		combatants: combatants,
		attacks:    attacks,
		cache:      make(map[string]*store.Combatant),
		dirty:      make(map[string]bool),
		now:        time.Now,
		logger:     logger,
	}
}

// load returns the cached record, filling the cache from the base layer
// on first access. Caller holds l.mu.
func (l *PGLedger) load(ctx context.Context, addr string) (*store.Combatant, error) {
	if c, ok := l.cache[addr]; ok {
		return c, nil
	}
	c, err := l.combatants.Get(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("load combatant: %w", err)
	}
	if c == nil {
		return nil, nil
	}
	l.cache[addr] = c
	return c, nil
}

func (l *PGLedger) Register(ctx context.Context, addr string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.load(ctx, addr)
	if err != nil {
		return err
	}
	if existing != nil {
		return Reject(ReasonAlreadyExists)
	}
	created, err := l.combatants.Insert(ctx, addr, BaseHealth, BaseAttack)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if !created {
		return Reject(ReasonAlreadyExists)
	}
	delete(l.cache, addr) // next load refetches the inserted row
	return nil
}

func (l *PGLedger) ProcessAttack(ctx context.Context, attacker, victim string, hits int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	atk, err := l.load(ctx, attacker)
	if err != nil {
		return "", err
	}
	vic, err := l.load(ctx, victim)
	if err != nil {
		return "", err
	}
	if atk == nil || vic == nil {
		return "", Reject(ReasonNotInitialized)
	}
	if !atk.Alive {
		return "", Reject(ReasonAttackerDead)
	}
	if !vic.Alive {
		return "", Reject(ReasonAlreadyDead)
	}

	dmg := AttackDamage(hits, atk.Ranks)
	lethal := vic.Health <= dmg
	if lethal {
		vic.Health = 0
		vic.Alive = false
		vic.Deaths++
		vic.XP += XPPerDeath
		vic.RespawnAt = l.now().Unix() + RespawnSecs

		atk.Kills++
		atk.XP += int64(KillXP(ability.Level(uint64(vic.XP))))
	} else {
		vic.Health -= dmg
	}
	l.dirty[attacker] = true
	l.dirty[victim] = true

	txRef := uuid.NewString()
	if err := l.attacks.Record(ctx, txRef, attacker, victim, hits, dmg, lethal); err != nil {
		l.logger.Warn("attack log write failed", "tx", txRef, "err", err)
	}
	return txRef, nil
}

func (l *PGLedger) Respawn(ctx context.Context, addr string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.load(ctx, addr)
	if err != nil {
		return "", err
	}
	if c == nil {
		return "", Reject(ReasonNotInitialized)
	}
	if c.Alive {
		return "", Reject(ReasonAlreadyAlive)
	}
	if l.now().Unix() < c.RespawnAt {
		return "", Reject(ReasonCooldown)
	}
	c.Health = c.MaxHealth
	c.Alive = true
	c.RespawnAt = 0
	l.dirty[addr] = true
	return uuid.NewString(), nil
}

func (l *PGLedger) AllocateAbility(ctx context.Context, addr string, id ability.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.load(ctx, addr)
	if err != nil {
		return err
	}
	if c == nil {
		return Reject(ReasonNotInitialized)
	}
	level := ability.Level(uint64(c.XP))
	switch err := ability.CanAllocate(c.Ranks, id, level); err {
	case nil:
	case ability.ErrNoPoints:
		return Reject(ReasonNoPoints)
	case ability.ErrMaxed:
		return Reject(ReasonMaxed)
	case ability.ErrPrerequisite:
		return Reject(ReasonPrerequisite)
	case ability.ErrCapstoneBudget:
		return Reject(ReasonCapstoneBudget)
	default:
		return Reject(ReasonStaleReference)
	}
	c.Ranks.Set(id, c.Ranks.Get(id)+1)
	c.ManualBuild = true
	applyRankStats(c)
	l.dirty[addr] = true
	return nil
}

func (l *PGLedger) ResetAbilities(ctx context.Context, addr string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.load(ctx, addr)
	if err != nil {
		return err
	}
	if c == nil {
		return Reject(ReasonNotInitialized)
	}
	c.Ranks = ability.Ranks{}
	applyRankStats(c)
	l.dirty[addr] = true
	return nil
}

func (l *PGLedger) GetState(ctx context.Context, addr string) (*Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.load(ctx, addr)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, Reject(ReasonNotInitialized)
	}
	return &Snapshot{
		Address:     c.Address,
		Health:      c.Health,
		MaxHealth:   c.MaxHealth,
		AttackPower: c.AttackPower,
		XP:          uint64(c.XP),
		Kills:       uint64(c.Kills),
		Deaths:      uint64(c.Deaths),
		Ranks:       c.Ranks,
		Alive:       c.Alive,
		ManualBuild: c.ManualBuild,
		RespawnAt:   c.RespawnAt,
	}, nil
}

func (l *PGLedger) ListCombatants(ctx context.Context) ([]string, error) {
	return l.combatants.List(ctx)
}

func (l *PGLedger) ResetCombatant(ctx context.Context, addr string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.load(ctx, addr)
	if err != nil {
		return err
	}
	if c == nil {
		return Reject(ReasonNotInitialized)
	}
	c.Health = BaseHealth
	c.MaxHealth = BaseHealth
	c.AttackPower = BaseAttack
	c.XP = 0
	c.Kills = 0
	c.Deaths = 0
	c.Alive = true
	c.RespawnAt = 0
	c.Ranks = ability.Ranks{}
	c.ManualBuild = false

	// Season resets are written through; they must not be lost to a crash
	// between commits.
	if err := l.combatants.Save(ctx, c); err != nil {
		return fmt.Errorf("persist reset: %w", err)
	}
	delete(l.dirty, addr)
	return nil
}

func (l *PGLedger) Commit(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	saved := 0
	for addr := range l.dirty {
		c, ok := l.cache[addr]
		if !ok {
			delete(l.dirty, addr)
			continue
		}
		if err := l.combatants.Save(ctx, c); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("commit %s: %w", addr, err)
			}
			continue
		}
		delete(l.dirty, addr)
		saved++
	}
	if saved > 0 {
		l.logger.Info("ledger committed", "records", saved, "pending", len(l.dirty))
	}
	return firstErr
}

func applyRankStats(c *store.Combatant) {
	deficit := c.MaxHealth - c.Health
	c.MaxHealth = BaseHealth + int(c.Ranks.Value(ability.IronSkin))
	c.AttackPower = BaseAttack + int(c.Ranks.Value(ability.HeavyHitter))
	if c.Alive {
		c.Health = c.MaxHealth - deficit
		if c.Health < 1 {
			c.Health = 1
		}
	}
}
