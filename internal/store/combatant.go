package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hodlwarz/arena/internal/ability"
)

// Combatant is the durable ledger record for one participant address.
type Combatant struct {
	Address     string
	Health      int
	MaxHealth   int
	AttackPower int
	XP          int64
	Kills       int64
	Deaths      int64
	Alive       bool
	RespawnAt   int64
	Ranks       ability.Ranks
	ManualBuild bool
	CreatedAt   time.Time
}

type CombatantStore struct {
	db *pgxpool.Pool
}

func NewCombatantStore(db *pgxpool.Pool) *CombatantStore {
	return &CombatantStore{db: db}
}

const combatantColumns = `
	address, health, max_health, attack_power, xp, kills, deaths,
	alive, respawn_at, ranks, manual_build, created_at`

// Insert creates the record with base stats. Returns false if the address
// already exists.
func (s *CombatantStore) Insert(ctx context.Context, addr string, health, attack int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO combatants (address, health, max_health, attack_power, alive, ranks)
		VALUES ($1, $2, $2, $3, TRUE, $4)
		ON CONFLICT (address) DO NOTHING
	`, addr, health, attack, emptyRanks())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *CombatantStore) Get(ctx context.Context, addr string) (*Combatant, error) {
	row := s.db.QueryRow(ctx, `SELECT `+combatantColumns+` FROM combatants WHERE address = $1`, addr)
	c, err := scanCombatant(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (s *CombatantStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT address FROM combatants ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, rows.Err()
}

// Save writes the full mutable state back. The ledger owns the arithmetic;
// the store just persists whatever it decided.
func (s *CombatantStore) Save(ctx context.Context, c *Combatant) error {
	_, err := s.db.Exec(ctx, `
		UPDATE combatants SET
			health = $2, max_health = $3, attack_power = $4,
			xp = $5, kills = $6, deaths = $7,
			alive = $8, respawn_at = $9, ranks = $10, manual_build = $11
		WHERE address = $1
	`, c.Address, c.Health, c.MaxHealth, c.AttackPower,
		c.XP, c.Kills, c.Deaths,
		c.Alive, c.RespawnAt, ranksToArray(c.Ranks), c.ManualBuild)
	return err
}

// ResetAll restores every record to base stats in one statement. Used by
// season reset as a backstop after per-combatant resets.
func (s *CombatantStore) ResetAll(ctx context.Context, health, attack int) error {
	_, err := s.db.Exec(ctx, `
		UPDATE combatants SET
			health = $1, max_health = $1, attack_power = $2,
			xp = 0, kills = 0, deaths = 0,
			alive = TRUE, respawn_at = 0, ranks = $3, manual_build = FALSE
	`, health, attack, emptyRanks())
	return err
}

func scanCombatant(row pgx.Row) (*Combatant, error) {
	c := &Combatant{}
	var ranks []int32
	err := row.Scan(
		&c.Address, &c.Health, &c.MaxHealth, &c.AttackPower,
		&c.XP, &c.Kills, &c.Deaths,
		&c.Alive, &c.RespawnAt, &ranks, &c.ManualBuild, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Ranks = ranksFromArray(ranks)
	return c, nil
}

func ranksToArray(r ability.Ranks) []int32 {
	out := make([]int32, ability.Count)
	for i, v := range r {
		out[i] = int32(v)
	}
	return out
}

func ranksFromArray(a []int32) ability.Ranks {
	var r ability.Ranks
	for i := 0; i < len(a) && i < ability.Count; i++ {
		if a[i] > 0 {
			r[i] = uint8(a[i])
		}
	}
	return r
}

func emptyRanks() []int32 {
	return make([]int32, ability.Count)
}
