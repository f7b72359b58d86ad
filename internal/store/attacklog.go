package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AttackRecord is one flushed attack operation as the ledger applied it.
type AttackRecord struct {
	ID        int64
	TxRef     string
	Attacker  string
	Victim    string
	Hits      int
	Damage    int
	Lethal    bool
	CreatedAt time.Time
}

type AttackLog struct {
	db *pgxpool.Pool
}

func NewAttackLog(db *pgxpool.Pool) *AttackLog {
	return &AttackLog{db: db}
}

func (l *AttackLog) Record(ctx context.Context, txRef, attacker, victim string, hits, damage int, lethal bool) error {
	_, err := l.db.Exec(ctx, `
		INSERT INTO attack_log (tx_ref, attacker, victim, hits, damage, lethal)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, txRef, attacker, victim, hits, damage, lethal)
	return err
}

// Recent returns the newest records for one combatant, attacker or victim.
func (l *AttackLog) Recent(ctx context.Context, addr string, limit int) ([]AttackRecord, error) {
	rows, err := l.db.Query(ctx, `
		SELECT id, tx_ref, attacker, victim, hits, damage, lethal, created_at
		FROM attack_log WHERE attacker = $1 OR victim = $1
		ORDER BY created_at DESC LIMIT $2
	`, addr, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttackRecord
	for rows.Next() {
		var r AttackRecord
		if err := rows.Scan(&r.ID, &r.TxRef, &r.Attacker, &r.Victim, &r.Hits, &r.Damage, &r.Lethal, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
