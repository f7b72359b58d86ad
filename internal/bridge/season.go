package bridge

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hodlwarz/arena/internal/arena"
	"github.com/hodlwarz/arena/internal/ledger"
)

// SeasonController orchestrates a full reset of ledger and local state at
// a season boundary.
type SeasonController struct {
	ledger     ledger.Client
	arena      *arena.Arena
	aggregator *Aggregator
	registry   *RegistrationQueue
	syncQueue  *SyncQueue
	reconciler *Reconciler
	logger     *slog.Logger

	// onReset clears process-external state (cached snapshots in redis,
	// leaderboards). Optional.
	onReset func(ctx context.Context)

	inFlight atomic.Bool
	resets   atomic.Uint64
}

func NewSeasonController(lc ledger.Client, a *arena.Arena, agg *Aggregator, reg *RegistrationQueue, sq *SyncQueue, rec *Reconciler, logger *slog.Logger, onReset func(ctx context.Context)) *SeasonController {
	return &SeasonController{
		ledger:     lc,
		arena:      a,
		aggregator: agg,
		registry:   reg,
		syncQueue:  sq,
		reconciler: rec,
		logger:     logger,
		onReset:    onReset,
	}
}

// Reset runs the full season boundary: ledger-side resets for every
// record the ledger holds (not just locally tracked ones), then local
// resets, queue and cache clears, and the season-start event. Individual
// ledger failures are counted, never fatal to the batch.
func (s *SeasonController) Reset(ctx context.Context, now time.Time) (resetCount, failCount int, err error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return 0, 0, nil
	}
	defer s.inFlight.Store(false)

	addrs, err := s.ledger.ListCombatants(ctx)
	if err != nil {
		// The ledger enumeration failing does not stop the season: fall
		// back to the locally tracked population.
		s.logger.Warn("season reset: ledger enumeration failed, using local set", "error", err)
		addrs = s.arena.Addresses()
	}

	for _, addr := range addrs {
		if rerr := s.ledger.ResetCombatant(ctx, addr); rerr != nil {
			failCount++
			s.logger.Warn("season reset: combatant reset failed", "addr", addr, "error", rerr)
			continue
		}
		resetCount++
	}

	s.arena.ResetAll(now)
	s.aggregator.Clear()
	s.registry.Clear()
	s.syncQueue.Clear()
	s.reconciler.ClearCache()
	if s.onReset != nil {
		s.onReset(ctx)
	}

	s.resets.Add(1)
	s.logger.Info("season reset complete",
		"ledger_resets", resetCount, "ledger_failures", failCount)
	return resetCount, failCount, nil
}

// Resets reports completed season resets since start.
func (s *SeasonController) Resets() uint64 {
	return s.resets.Load()
}
