package bridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hodlwarz/arena/internal/ability"
	"github.com/hodlwarz/arena/internal/ledger"
)

// RegistrationQueue serializes combatant registration: strict FIFO, one
// in-flight operation at a time, deduplicated per address at enqueue.
type RegistrationQueue struct {
	ledger ledger.Client
	logger *slog.Logger
	pacing time.Duration

	mu     sync.Mutex
	fifo   []string
	queued map[string]struct{}
	done   map[string]struct{}

	inFlight atomic.Bool
}

func NewRegistrationQueue(lc ledger.Client, logger *slog.Logger, pacing time.Duration) *RegistrationQueue {
	return &RegistrationQueue{
		ledger: lc,
		logger: logger,
		pacing: pacing,
		queued: make(map[string]struct{}),
		done:   make(map[string]struct{}),
	}
}

// Enqueue schedules a registration unless one already succeeded or is
// already waiting.
func (q *RegistrationQueue) Enqueue(addr string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.done[addr]; ok {
		return
	}
	if _, ok := q.queued[addr]; ok {
		return
	}
	q.queued[addr] = struct{}{}
	q.fifo = append(q.fifo, addr)
}

func (q *RegistrationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fifo)
}

// Clear drops everything, including the completion memory: after a season
// reset every address registers again.
func (q *RegistrationQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fifo = nil
	q.queued = make(map[string]struct{})
	q.done = make(map[string]struct{})
}

func (q *RegistrationQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.fifo) == 0 {
		return "", false
	}
	addr := q.fifo[0]
	q.fifo = q.fifo[1:]
	delete(q.queued, addr)
	return addr, true
}

// Drain processes the queue head to tail, one operation at a time with
// pacing gaps. Transient failures drop the item; the reconciler
// re-enqueues unregistered combatants on its next poll.
func (q *RegistrationQueue) Drain(ctx context.Context) {
	if !q.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer q.inFlight.Store(false)

	first := true
	for {
		addr, ok := q.pop()
		if !ok {
			return
		}
		if !first && !sleepCtx(ctx, q.pacing) {
			return
		}
		first = false

		err := q.ledger.Register(ctx, addr)
		if err != nil {
			if reason, rejected := ledger.RejectionReason(err); rejected {
				// Already-exists counts as success.
				if reason != ledger.ReasonAlreadyExists {
					q.logger.Debug("registration rejected", "addr", addr, "reason", string(reason))
					continue
				}
			} else {
				q.logger.Warn("registration failed", "addr", addr, "error", err)
				continue
			}
		}
		q.mu.Lock()
		q.done[addr] = struct{}{}
		q.mu.Unlock()
	}
}

func (q *RegistrationQueue) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Drain(ctx)
		}
	}
}

type syncKind int

const (
	opAllocate syncKind = iota
	opReset
)

func (k syncKind) String() string {
	if k == opReset {
		return "reset"
	}
	return "allocate"
}

type syncOp struct {
	Addr string
	Kind syncKind
	ID   ability.ID
}

// SyncQueue serializes ability operations. Ordering is the whole point:
// allocation is append-only on the ledger, so a rebuild is a reset
// followed by reallocations in a fixed order, and those must never
// interleave with other operations for the same combatant.
type SyncQueue struct {
	ledger ledger.Client
	logger *slog.Logger
	pacing time.Duration

	mu      sync.Mutex
	fifo    []syncOp
	pending map[string]int

	inFlight atomic.Bool

	applied  atomic.Uint64
	rejected atomic.Uint64
	failed   atomic.Uint64
}

func NewSyncQueue(lc ledger.Client, logger *slog.Logger, pacing time.Duration) *SyncQueue {
	return &SyncQueue{
		ledger:  lc,
		logger:  logger,
		pacing:  pacing,
		pending: make(map[string]int),
	}
}

func (q *SyncQueue) EnqueueAllocate(addr string, id ability.ID) {
	q.push(syncOp{Addr: addr, Kind: opAllocate, ID: id})
}

func (q *SyncQueue) EnqueueReset(addr string) {
	q.push(syncOp{Addr: addr, Kind: opReset})
}

func (q *SyncQueue) push(op syncOp) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fifo = append(q.fifo, op)
	q.pending[op.Addr]++
}

// Pending reports whether the combatant has queued operations. The
// reconciler's catch-up pass skips such combatants rather than piling a
// second rebuild on top of an unfinished one.
func (q *SyncQueue) Pending(addr string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending[addr] > 0
}

func (q *SyncQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fifo)
}

func (q *SyncQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fifo = nil
	q.pending = make(map[string]int)
}

func (q *SyncQueue) pop() (syncOp, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.fifo) == 0 {
		return syncOp{}, false
	}
	op := q.fifo[0]
	q.fifo = q.fifo[1:]
	q.pending[op.Addr]--
	if q.pending[op.Addr] <= 0 {
		delete(q.pending, op.Addr)
	}
	return op, true
}

// Drain sends queued operations strictly in order, one at a time.
// Validation rejections and transient failures both drop the item; the
// catch-up pass detects and repairs whatever state results.
func (q *SyncQueue) Drain(ctx context.Context) {
	if !q.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer q.inFlight.Store(false)

	first := true
	for {
		op, ok := q.pop()
		if !ok {
			return
		}
		if !first && !sleepCtx(ctx, q.pacing) {
			return
		}
		first = false

		var err error
		switch op.Kind {
		case opAllocate:
			err = q.ledger.AllocateAbility(ctx, op.Addr, op.ID)
		case opReset:
			err = q.ledger.ResetAbilities(ctx, op.Addr)
		}
		if err != nil {
			if reason, rejected := ledger.RejectionReason(err); rejected {
				q.rejected.Add(1)
				q.logger.Debug("ability sync rejected",
					"addr", op.Addr, "op", op.Kind, "ability", op.ID, "reason", string(reason))
			} else {
				q.failed.Add(1)
				q.logger.Warn("ability sync failed",
					"addr", op.Addr, "op", op.Kind, "ability", op.ID, "error", err)
			}
			continue
		}
		q.applied.Add(1)
	}
}

func (q *SyncQueue) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Drain(ctx)
		}
	}
}

// Stats reports drain outcome counters.
func (q *SyncQueue) Stats() (applied, rejected, failed uint64) {
	return q.applied.Load(), q.rejected.Load(), q.failed.Load()
}
