package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftbuy/internal/pipeline"
	"driftbuy/internal/storage"
)

type scriptedExecutor struct {
	mu      sync.Mutex
	calls   int
	outcome pipeline.Outcome
	err     error
	block   chan struct{}
}

func (s *scriptedExecutor) Execute(context.Context, storage.Plan) (pipeline.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return pipeline.Result{Outcome: pipeline.OutcomeFailed}, s.err
	}
	return pipeline.Result{Outcome: s.outcome, TradeSize: decimal.NewFromInt(100)}, nil
}

func (s *scriptedExecutor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func seedPlan(t *testing.T, store *storage.Memory, created time.Time) storage.Plan {
	t.Helper()
	// Creation is backdated so the plan is due immediately.
	plan, err := store.CreatePlan(context.Background(), storage.Plan{
		UserID:      "user-1",
		AssetID:     "ethereum",
		Destination: "0xabc",
		Amount:      decimal.NewFromInt(100),
		Risk:        "no_risk",
		Every:       1,
		Unit:        storage.UnitHour,
		CreatedAt:   created,
	})
	require.NoError(t, err)
	return plan
}

func TestRunnerExecutesDuePlan(t *testing.T) {
	store := storage.NewMemory()
	exec := &scriptedExecutor{outcome: pipeline.OutcomeCompleted}
	runner := NewRunner(store, store, exec, zerolog.Nop())

	now := time.Now().UTC()
	plan := seedPlan(t, store, now.Add(-2*time.Hour))

	require.NoError(t, runner.Tick(context.Background(), now))
	runner.Wait()

	assert.Equal(t, 1, exec.callCount())

	got, err := store.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRun, "成功执行后 lastRun 应推进")
	assert.True(t, got.LastRun.Equal(now))
}

func TestRunnerAdvancesLastRunOnPartial(t *testing.T) {
	store := storage.NewMemory()
	exec := &scriptedExecutor{outcome: pipeline.OutcomePartial}
	runner := NewRunner(store, store, exec, zerolog.Nop())

	now := time.Now().UTC()
	plan := seedPlan(t, store, now.Add(-2*time.Hour))

	require.NoError(t, runner.Tick(context.Background(), now))
	runner.Wait()

	got, err := store.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRun, "部分完成也应推进 lastRun, 避免重复买入")
}

func TestRunnerKeepsPlanDueOnFailure(t *testing.T) {
	store := storage.NewMemory()
	exec := &scriptedExecutor{err: errors.New("convert failed")}
	runner := NewRunner(store, store, exec, zerolog.Nop())

	now := time.Now().UTC()
	plan := seedPlan(t, store, now.Add(-2*time.Hour))

	require.NoError(t, runner.Tick(context.Background(), now))
	runner.Wait()

	got, err := store.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastRun, "失败执行不应推进 lastRun")
	assert.True(t, got.Due(now), "失败的计划应保持到期状态以便重试")
}

func TestRunnerSkipsStoppedAndNotDuePlans(t *testing.T) {
	store := storage.NewMemory()
	exec := &scriptedExecutor{outcome: pipeline.OutcomeCompleted}
	runner := NewRunner(store, store, exec, zerolog.Nop())

	now := time.Now().UTC()

	stopped := seedPlan(t, store, now.Add(-2*time.Hour))
	require.NoError(t, store.StopPlan(context.Background(), stopped.ID))

	// Created just now, first run is an hour away.
	_, err := store.CreatePlan(context.Background(), storage.Plan{
		UserID:      "user-2",
		Destination: "0xdef",
		Amount:      decimal.NewFromInt(50),
		Risk:        "no_risk",
		Every:       1,
		Unit:        storage.UnitHour,
	})
	require.NoError(t, err)

	require.NoError(t, runner.Tick(context.Background(), now))
	runner.Wait()

	assert.Equal(t, 0, exec.callCount())
}

func TestRunnerSerialisesOverlappingTicks(t *testing.T) {
	store := storage.NewMemory()
	exec := &scriptedExecutor{outcome: pipeline.OutcomeCompleted, block: make(chan struct{})}
	runner := NewRunner(store, store, exec, zerolog.Nop())

	now := time.Now().UTC()
	seedPlan(t, store, now.Add(-2*time.Hour))

	require.NoError(t, runner.Tick(context.Background(), now))

	// Let the first execution start before the second tick scans.
	require.Eventually(t, func() bool { return exec.callCount() == 1 },
		time.Second, 5*time.Millisecond)

	// The second tick fires while the first execution is still running.
	require.NoError(t, runner.Tick(context.Background(), now.Add(time.Second)))

	close(exec.block)
	runner.Wait()

	assert.Equal(t, 1, exec.callCount(), "重叠的 tick 不应并发执行同一计划")
}
