package service

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"driftbuy/internal/pipeline"
	"driftbuy/internal/storage"
)

// PlanExecutor runs one plan through the trade pipeline.
type PlanExecutor interface {
	Execute(ctx context.Context, plan storage.Plan) (pipeline.Result, error)
}

// Runner scans active plans on each scheduler tick and executes the due ones.
// Each plan runs on its own goroutine; an in-process map plus a storage
// advisory lock keep a plan from executing twice at once, whether the second
// attempt comes from an overlapping tick or from another instance.
type Runner struct {
	plans    storage.PlanStore
	locker   storage.AdvisoryLocker
	executor PlanExecutor
	logger   zerolog.Logger

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
	wg       sync.WaitGroup
}

// NewRunner constructs a Runner.
func NewRunner(plans storage.PlanStore, locker storage.AdvisoryLocker, executor PlanExecutor, logger zerolog.Logger) *Runner {
	return &Runner{
		plans:    plans,
		locker:   locker,
		executor: executor,
		logger:   logger.With().Str("component", "runner").Logger(),
		inflight: make(map[uuid.UUID]struct{}),
	}
}

// Tick scans for due plans and launches their executions. It returns once all
// launches are dispatched, not once they finish.
func (r *Runner) Tick(ctx context.Context, now time.Time) error {
	plans, err := r.plans.ListActivePlans(ctx)
	if err != nil {
		return err
	}

	for _, plan := range plans {
		if !plan.Due(now) {
			continue
		}
		if !r.claim(plan.ID) {
			r.logger.Debug().Str("plan_id", plan.ID.String()).Msg("plan already executing, skipping")
			continue
		}

		r.wg.Add(1)
		go func(plan storage.Plan) {
			defer r.wg.Done()
			defer r.release(plan.ID)
			r.execute(ctx, plan, now)
		}(plan)
	}
	return nil
}

// Wait blocks until all in-flight executions finish. Call after the scheduler
// stops to drain before shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) execute(ctx context.Context, plan storage.Plan, now time.Time) {
	logger := r.logger.With().Str("plan_id", plan.ID.String()).Logger()

	unlock, acquired, err := r.locker.TryAdvisoryLock(ctx, planLockKey(plan.ID))
	if err != nil {
		logger.Error().Err(err).Msg("advisory lock failed")
		return
	}
	if !acquired {
		logger.Debug().Msg("plan locked by another instance, skipping")
		return
	}
	defer unlock()

	result, execErr := r.executor.Execute(ctx, plan)
	if execErr != nil {
		logger.Error().Err(execErr).Msg("plan execution failed")
		return
	}

	switch result.Outcome {
	case pipeline.OutcomeCompleted, pipeline.OutcomePartial:
		if err := r.plans.AdvanceLastRun(ctx, plan.ID, now); err != nil {
			logger.Error().Err(err).Msg("failed to advance last run")
			return
		}
	}

	logger.Info().
		Str("outcome", string(result.Outcome)).
		Str("trade_size", result.TradeSize.String()).
		Msg("plan executed")
}

func (r *Runner) claim(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inflight[id]; busy {
		return false
	}
	r.inflight[id] = struct{}{}
	return true
}

func (r *Runner) release(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, id)
}

func planLockKey(id uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write(id[:])
	return int64(h.Sum64())
}
