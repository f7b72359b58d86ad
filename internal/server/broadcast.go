package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hodlwarz/arena/internal/arena"
	"github.com/hodlwarz/arena/internal/cache"
	"github.com/hodlwarz/arena/internal/leaderboard"
	"github.com/hodlwarz/arena/internal/sim"
	"github.com/hodlwarz/arena/internal/store"
)

const leaderboardEvery = 30 // snapshot intervals between leaderboard pushes

// Broadcaster renders the display snapshot on a fixed interval, fans it
// out to websocket clients, caches it, and periodically refreshes the
// redis leaderboards from it.
type Broadcaster struct {
	engine      *sim.Engine
	hub         *Hub
	snapshots   *cache.Snapshots     // optional
	leaderboard *leaderboard.Service // optional
	seasons     *store.SeasonStore   // optional
	logger      *slog.Logger

	sends uint64
}

func NewBroadcaster(engine *sim.Engine, hub *Hub, snaps *cache.Snapshots, lb *leaderboard.Service, seasons *store.SeasonStore, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		engine:      engine,
		hub:         hub,
		snapshots:   snaps,
		leaderboard: lb,
		seasons:     seasons,
		logger:      logger,
	}
}

func (b *Broadcaster) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.broadcastOnce(ctx, time.Now())
		}
	}
}

func (b *Broadcaster) broadcastOnce(ctx context.Context, now time.Time) {
	snap := b.engine.Snapshot(now)

	payload, err := json.Marshal(snap)
	if err != nil {
		b.logger.Error("marshal snapshot", "err", err)
		return
	}
	b.hub.Broadcast(WSMessage{Type: "snapshot", Payload: payload})

	if b.snapshots != nil {
		if err := b.snapshots.Store(ctx, snap); err != nil {
			b.logger.Warn("cache snapshot", "err", err)
		}
	}

	b.sends++
	if b.leaderboard != nil && b.seasons != nil && b.sends%leaderboardEvery == 0 {
		b.pushLeaderboards(ctx, snap.Combatants)
	}
}

func (b *Broadcaster) pushLeaderboards(ctx context.Context, combatants []arena.CombatantView) {
	season, err := b.seasons.Active(ctx)
	if err != nil || season == nil {
		return
	}
	for _, c := range combatants {
		if err := b.leaderboard.UpdateKills(ctx, season.ID, c.Address, c.Kills); err != nil {
			b.logger.Warn("leaderboard kills", "err", err)
			return
		}
		if err := b.leaderboard.UpdateXP(ctx, season.ID, c.Address, c.XP); err != nil {
			b.logger.Warn("leaderboard xp", "err", err)
			return
		}
	}
}
