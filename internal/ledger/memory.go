package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hodlwarz/arena/internal/ability"
)

// MemLedger is an in-process reference implementation of Client. It keeps
// the same validation and arithmetic as the authoritative program, which
// makes it the collaborator of choice for tests and local preview mode.
type MemLedger struct {
	mu       sync.Mutex
	states   map[string]*Snapshot
	txSeq    uint64
	now      func() time.Time
	failWith error // when set, every call fails transiently
	commits  int
}

func NewMemLedger() *MemLedger {
	return &MemLedger{
		states: make(map[string]*Snapshot),
		now:    time.Now,
	}
}

// SetClock overrides the time source. Tests use it to step respawn
// cooldowns deterministically.
func (m *MemLedger) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// FailTransiently makes every subsequent call return err until cleared
// with a nil argument. Simulates an unreachable ledger.
func (m *MemLedger) FailTransiently(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Commits reports how many checkpoints were requested.
func (m *MemLedger) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

func (m *MemLedger) Register(ctx context.Context, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.states[addr]; ok {
		return Reject(ReasonAlreadyExists)
	}
	m.states[addr] = &Snapshot{
		Address:     addr,
		Health:      BaseHealth,
		MaxHealth:   BaseHealth,
		AttackPower: BaseAttack,
		Alive:       true,
	}
	return nil
}

func (m *MemLedger) ProcessAttack(ctx context.Context, attacker, victim string, hits int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return "", m.failWith
	}
	atk, ok := m.states[attacker]
	if !ok {
		return "", Reject(ReasonNotInitialized)
	}
	vic, ok := m.states[victim]
	if !ok {
		return "", Reject(ReasonNotInitialized)
	}
	if !atk.Alive {
		return "", Reject(ReasonAttackerDead)
	}
	if !vic.Alive {
		return "", Reject(ReasonAlreadyDead)
	}

	dmg := AttackDamage(hits, atk.Ranks)
	if vic.Health <= dmg {
		vic.Health = 0
		vic.Alive = false
		vic.Deaths++
		vic.XP += XPPerDeath
		vic.RespawnAt = m.now().Unix() + RespawnSecs

		atk.Kills++
		atk.XP += KillXP(ability.Level(vic.XP))
	} else {
		vic.Health -= dmg
	}
	return m.txRef(), nil
}

func (m *MemLedger) Respawn(ctx context.Context, addr string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return "", m.failWith
	}
	s, ok := m.states[addr]
	if !ok {
		return "", Reject(ReasonNotInitialized)
	}
	if s.Alive {
		return "", Reject(ReasonAlreadyAlive)
	}
	if m.now().Unix() < s.RespawnAt {
		return "", Reject(ReasonCooldown)
	}
	s.Health = s.MaxHealth
	s.Alive = true
	s.RespawnAt = 0
	return m.txRef(), nil
}

func (m *MemLedger) AllocateAbility(ctx context.Context, addr string, id ability.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	s, ok := m.states[addr]
	if !ok {
		return Reject(ReasonNotInitialized)
	}
	level := ability.Level(s.XP)
	switch err := ability.CanAllocate(s.Ranks, id, level); err {
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
	s.Ranks.Set(id, s.Ranks.Get(id)+1)
	s.ManualBuild = true
	m.applyRankStats(s)
	return nil
}

func (m *MemLedger) ResetAbilities(ctx context.Context, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	s, ok := m.states[addr]
	if !ok {
		return Reject(ReasonNotInitialized)
	}
	s.Ranks = ability.Ranks{}
	m.applyRankStats(s)
	return nil
}

func (m *MemLedger) GetState(ctx context.Context, addr string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	s, ok := m.states[addr]
	if !ok {
		return nil, Reject(ReasonNotInitialized)
	}
	cp := *s
	return &cp, nil
}

func (m *MemLedger) ListCombatants(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]string, 0, len(m.states))
	for addr := range m.states {
		out = append(out, addr)
	}
	return out, nil
}

func (m *MemLedger) ResetCombatant(ctx context.Context, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	s, ok := m.states[addr]
	if !ok {
		return Reject(ReasonNotInitialized)
	}
	*s = Snapshot{
		Address:     addr,
		Health:      BaseHealth,
		MaxHealth:   BaseHealth,
		AttackPower: BaseAttack,
		Alive:       true,
	}
	return nil
}

func (m *MemLedger) Commit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.commits++
	return nil
}

// applyRankStats rederives the stored max health and attack power from
// ranks, preserving the current health deficit.
func (m *MemLedger) applyRankStats(s *Snapshot) {
	deficit := s.MaxHealth - s.Health
	s.MaxHealth = BaseHealth + int(s.Ranks.Value(ability.IronSkin))
	s.AttackPower = BaseAttack + int(s.Ranks.Value(ability.HeavyHitter))
	if s.Alive {
		s.Health = s.MaxHealth - deficit
		if s.Health < 1 {
			s.Health = 1
		}
	}
}

func (m *MemLedger) txRef() string {
	m.txSeq++
	return fmt.Sprintf("memtx-%d", m.txSeq)
}
