package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/hodlwarz/arena/internal/ability"
	"github.com/hodlwarz/arena/internal/ledger"
)

// Config carries the bridge's timing knobs, all sourced from the
// environment at startup.
type Config struct {
	FlushInterval  time.Duration
	QueueInterval  time.Duration
	QueuePacing    time.Duration
	PollInterval   time.Duration
	CatchUpEvery   time.Duration
	CommitInterval time.Duration
}

// Bridge is the facade the simulation talks to. It satisfies the
// engine's outbound contract; every method returns immediately.
type Bridge struct {
	ledger     ledger.Client
	logger     *slog.Logger
	cfg        Config
	Aggregator *Aggregator
	Registry   *RegistrationQueue
	SyncQueue  *SyncQueue

	respawns chan string
}

func New(lc ledger.Client, logger *slog.Logger, cfg Config) *Bridge {
	return &Bridge{
		ledger:     lc,
		logger:     logger,
		cfg:        cfg,
		Aggregator: NewAggregator(lc, logger, cfg.QueuePacing),
		Registry:   NewRegistrationQueue(lc, logger, cfg.QueuePacing),
		SyncQueue:  NewSyncQueue(lc, logger, cfg.QueuePacing),
		respawns:   make(chan string, 256),
	}
}

func (b *Bridge) RecordDamage(attacker, victim string, damage float64) {
	b.Aggregator.Record(attacker, victim, damage)
}

func (b *Bridge) EnqueueRegister(addr string) {
	b.Registry.Enqueue(addr)
}

func (b *Bridge) EnqueueAllocation(addr string, id ability.ID) {
	b.SyncQueue.EnqueueAllocate(addr, id)
}

// RequestRespawn hands the respawn to the drain worker. A full channel
// drops the request; the reconciler's next poll covers it.
func (b *Bridge) RequestRespawn(addr string) {
	select {
	case b.respawns <- addr:
	default:
		b.logger.Warn("respawn queue full, dropping", "addr", addr)
	}
}

// Run starts the background workers and blocks until the context ends.
func (b *Bridge) Run(ctx context.Context) {
	go b.Aggregator.Run(ctx, b.cfg.FlushInterval)
	go b.Registry.Run(ctx, b.cfg.QueueInterval)
	go b.SyncQueue.Run(ctx, b.cfg.QueueInterval)
	go b.commitLoop(ctx)
	b.drainRespawns(ctx)
}

func (b *Bridge) drainRespawns(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case addr := <-b.respawns:
			if _, err := b.ledger.Respawn(ctx, addr); err != nil {
				if reason, rejected := ledger.RejectionReason(err); rejected {
					// Cooldown races and already-alive are routine: the
					// local timer and the ledger clock disagree slightly.
					b.logger.Debug("respawn rejected", "addr", addr, "reason", string(reason))
				} else {
					b.logger.Warn("respawn failed", "addr", addr, "error", err)
				}
			}
			if !sleepCtx(ctx, b.cfg.QueuePacing) {
				return
			}
		}
	}
}

// commitLoop periodically checkpoints the ledger's fast layer so a crash
// loses at most one interval of progress.
func (b *Bridge) commitLoop(ctx context.Context) {
	if b.cfg.CommitInterval <= 0 {
		return
	}
	ticker := time.NewTicker(b.cfg.CommitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.ledger.Commit(ctx); err != nil {
				b.logger.Warn("ledger commit failed", "error", err)
			}
		}
	}
}

// Shutdown drains outstanding work and commits. Called once on graceful
// stop, after the tick loop has ended.
func (b *Bridge) Shutdown(ctx context.Context) {
	b.Aggregator.Flush(ctx)
	b.Registry.Drain(ctx)
	b.SyncQueue.Drain(ctx)
	if err := b.ledger.Commit(ctx); err != nil {
		b.logger.Error("final ledger commit failed", "error", err)
	}
}
