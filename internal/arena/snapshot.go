package arena

import "time"

// CombatantView is the per-combatant slice of the outbound display
// snapshot.
type CombatantView struct {
	Address   string  `json:"address"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Radius    float64 `json:"radius"`
	Color     string  `json:"color"`
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"max_health"`
	Shield    float64 `json:"shield,omitempty"`
	Level     int     `json:"level"`
	XP        uint64  `json:"xp"`
	Kills     uint64  `json:"kills"`
	Deaths    uint64  `json:"deaths"`
	Ghost     bool    `json:"ghost"`
	Alive     bool    `json:"alive"`
	Cloaked   bool    `json:"cloaked,omitempty"`
	Ranks     []int   `json:"ranks"`
	Points    int     `json:"points"`
	Manual    bool    `json:"manual_build"`
}

// ProjectileView carries enough curve state for a client to interpolate.
type ProjectileView struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	FromX  float64 `json:"from_x"`
	FromY  float64 `json:"from_y"`
	CtrlX  float64 `json:"ctrl_x"`
	CtrlY  float64 `json:"ctrl_y"`
	Homing bool    `json:"homing,omitempty"`
	Burst  bool    `json:"burst,omitempty"`
}

type Snapshot struct {
	At          time.Time        `json:"at"`
	Width       float64          `json:"width"`
	Height      float64          `json:"height"`
	Combatants  []CombatantView  `json:"combatants"`
	Projectiles []ProjectileView `json:"projectiles"`
	KillFeed    []KillEvent      `json:"kill_feed"`
	Events      []Event          `json:"events"`
}

// SnapshotCombatants renders the combatant table. Takes its own read lock;
// intended for the snapshot broadcaster, not the tick loop.
func (a *Arena) SnapshotCombatants(now time.Time) []CombatantView {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]CombatantView, 0, len(a.combatants))
	for _, c := range a.Sorted() {
		ranks := make([]int, len(c.Ranks))
		for i, v := range c.Ranks {
			ranks[i] = int(v)
		}
		out = append(out, CombatantView{
			Address:   c.Address,
			X:         c.Pos.X,
			Y:         c.Pos.Y,
			Radius:    c.Radius,
			Color:     c.Color,
			Health:    c.Health,
			MaxHealth: c.MaxHealth,
			Shield:    c.Shield,
			Level:     c.Level(),
			XP:        c.XP,
			Kills:     c.Kills,
			Deaths:    c.Deaths,
			Ghost:     c.Ghost,
			Alive:     c.Alive,
			Cloaked:   c.Cloaked(now),
			Ranks:     ranks,
			Points:    c.SpendablePoints(),
			Manual:    c.ManualBuild,
		})
	}
	return out
}
