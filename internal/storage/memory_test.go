package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlan(t *testing.T, m *Memory) Plan {
	t.Helper()
	plan, err := m.CreatePlan(context.Background(), Plan{
		UserID:      "user-1",
		AssetID:     "ethereum",
		Destination: "0xabc",
		Amount:      decimal.NewFromInt(100),
		Risk:        "no_risk",
		Every:       1,
		Unit:        UnitDay,
		AutoDeposit: true,
	})
	require.NoError(t, err)
	return plan
}

func TestMemoryPlanLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	plan := newTestPlan(t, m)
	assert.NotEqual(t, uuid.Nil, plan.ID)
	assert.Equal(t, PlanActive, plan.Status)

	got, err := m.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.ID, got.ID)

	active, err := m.ListActivePlans(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, m.StopPlan(ctx, plan.ID))
	active, err = m.ListActivePlans(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	// Stopped plans still show up in the owner's listing.
	mine, err := m.ListUserPlans(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, PlanStopped, mine[0].Status)

	_, err = m.GetPlan(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestMemoryAdvanceLastRun(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	plan := newTestPlan(t, m)

	ranAt := time.Now().UTC()
	require.NoError(t, m.AdvanceLastRun(ctx, plan.ID, ranAt))

	got, err := m.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRun)
	assert.True(t, got.LastRun.Equal(ranAt))
}

func TestMemoryAppendTransactionIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	plan := newTestPlan(t, m)

	first, err := m.AppendTransaction(ctx, Transaction{
		PlanID:         plan.ID,
		Phase:          PhaseConvert,
		Amount:         decimal.NewFromInt(100),
		IdempotencyKey: plan.ID.String() + ":convert:0",
	})
	require.NoError(t, err)
	assert.Equal(t, TxPending, first.Status)

	require.NoError(t, m.MarkTransactionCompleted(ctx, first.ID, decimal.NewFromInt(10), "0xhash", ""))

	// A second append with the same key returns the completed row untouched.
	second, err := m.AppendTransaction(ctx, Transaction{
		PlanID:         plan.ID,
		Phase:          PhaseConvert,
		Amount:         decimal.NewFromInt(999),
		IdempotencyKey: plan.ID.String() + ":convert:0",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, TxCompleted, second.Status)
	assert.True(t, second.Amount.Equal(decimal.NewFromInt(100)))
}

func TestMemoryTransactionTransitions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	plan := newTestPlan(t, m)

	tx, err := m.AppendTransaction(ctx, Transaction{
		PlanID:         plan.ID,
		Phase:          PhaseDeposit,
		Amount:         decimal.NewFromInt(10),
		IdempotencyKey: plan.ID.String() + ":deposit:0",
	})
	require.NoError(t, err)

	require.NoError(t, m.MarkTransactionFailed(ctx, tx.ID, "pool unreachable"))

	// Completed and failed rows reject further pending-only transitions.
	assert.ErrorIs(t, m.MarkTransactionCompleted(ctx, tx.ID, decimal.Zero, "", ""), ErrTransactionNotFound)
	assert.ErrorIs(t, m.MarkTransactionFailed(ctx, tx.ID, "again"), ErrTransactionNotFound)

	// Retry re-arms the failed row.
	require.NoError(t, m.RetryTransaction(ctx, tx.ID))
	require.NoError(t, m.MarkTransactionCompleted(ctx, tx.ID, decimal.NewFromInt(10), "0xhash", "pos-1"))
	assert.ErrorIs(t, m.RetryTransaction(ctx, tx.ID), ErrTransactionNotFound)
}

func TestMemorySumCompletedConverts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	plan := newTestPlan(t, m)

	appendWithStatus := func(phase TxPhase, amount int64, key string, complete bool) {
		tx, err := m.AppendTransaction(ctx, Transaction{
			PlanID:         plan.ID,
			Phase:          phase,
			Amount:         decimal.NewFromInt(amount),
			IdempotencyKey: key,
		})
		require.NoError(t, err)
		if complete {
			require.NoError(t, m.MarkTransactionCompleted(ctx, tx.ID, decimal.Zero, "0x", ""))
		}
	}

	appendWithStatus(PhaseConvert, 100, "k1", true)
	appendWithStatus(PhaseConvert, 120, "k2", true)
	appendWithStatus(PhaseConvert, 999, "k3", false)  // pending, excluded
	appendWithStatus(PhaseDeposit, 500, "k4", true)   // deposit phase, excluded

	total, err := m.SumCompletedConverts(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(220)), "总额 %s 应为 220", total)

	other, err := m.SumCompletedConverts(ctx, "user-2")
	require.NoError(t, err)
	assert.True(t, other.IsZero())
}

func TestMemoryAdvisoryLock(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	unlock, acquired, err := m.TryAdvisoryLock(ctx, 42)
	require.NoError(t, err)
	require.True(t, acquired)

	_, again, err := m.TryAdvisoryLock(ctx, 42)
	require.NoError(t, err)
	assert.False(t, again, "持有中的锁不应再次获取")

	unlock()

	unlock2, acquired, err := m.TryAdvisoryLock(ctx, 42)
	require.NoError(t, err)
	assert.True(t, acquired, "释放后应可重新获取")
	unlock2()
}

func TestPlanDueAndRunIndex(t *testing.T) {
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	plan := Plan{
		Status:    PlanActive,
		Every:     1,
		Unit:      UnitDay,
		CreatedAt: created,
	}

	assert.False(t, plan.Due(created.Add(12*time.Hour)), "未满一个周期不应到期")
	assert.True(t, plan.Due(created.Add(24*time.Hour)))

	lastRun := created.Add(24 * time.Hour)
	plan.LastRun = &lastRun
	assert.False(t, plan.Due(created.Add(36*time.Hour)), "lastRun 之后未满周期不应到期")
	assert.True(t, plan.Due(created.Add(48*time.Hour)))

	assert.Equal(t, int64(0), plan.RunIndex(created.Add(12*time.Hour)))
	assert.Equal(t, int64(1), plan.RunIndex(created.Add(24*time.Hour)))
	assert.Equal(t, int64(2), plan.RunIndex(created.Add(49*time.Hour)))

	plan.Status = PlanStopped
	assert.False(t, plan.Due(created.Add(72*time.Hour)), "已停止的计划不应到期")
}

func TestFrequencyUnitDuration(t *testing.T) {
	assert.Equal(t, time.Minute, UnitMinute.Duration())
	assert.Equal(t, time.Hour, UnitHour.Duration())
	assert.Equal(t, 24*time.Hour, UnitDay.Duration())
	assert.Equal(t, 7*24*time.Hour, UnitWeek.Duration())
	assert.False(t, FrequencyUnit("fortnight").Valid())
}
