package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftbuy/internal/chain"
	"driftbuy/internal/market"
	"driftbuy/internal/storage"
)

type stubRanker struct {
	entry market.CachedMarket
	err   error
}

func (s *stubRanker) Best(context.Context) (market.CachedMarket, error) {
	if s.err != nil {
		return market.CachedMarket{}, s.err
	}
	return s.entry, nil
}

func newTestService(t *testing.T) (*Service, *storage.Memory, *chain.Mock) {
	t.Helper()
	store := storage.NewMemory()
	executor := chain.NewMock()
	ranker := &stubRanker{entry: market.CachedMarket{
		Market:    market.Market{Asset: "USDC", TotalDepositAPY: 10.0},
		FetchedAt: time.Now().UTC(),
	}}
	return NewService(store, store, ranker, executor, zerolog.Nop()), store, executor
}

func validPlan() NewPlan {
	return NewPlan{
		UserID:      "user-1",
		AssetID:     "ethereum",
		Destination: "0xabc",
		Amount:      decimal.NewFromInt(100),
		Risk:        "low_risk",
		Every:       1,
		Unit:        "day",
		AutoDeposit: true,
	}
}

func TestCreatePlanValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*NewPlan)
	}{
		{"missing user", func(p *NewPlan) { p.UserID = "" }},
		{"missing destination", func(p *NewPlan) { p.Destination = "" }},
		{"zero amount", func(p *NewPlan) { p.Amount = decimal.Zero }},
		{"negative amount", func(p *NewPlan) { p.Amount = decimal.NewFromInt(-5) }},
		{"zero every", func(p *NewPlan) { p.Every = 0 }},
		{"bad unit", func(p *NewPlan) { p.Unit = "fortnight" }},
		{"bad risk", func(p *NewPlan) { p.Risk = "yolo" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validPlan()
			tc.mutate(&req)
			_, err := svc.CreatePlan(ctx, req)
			assert.ErrorIs(t, err, ErrInvalidPlan)
		})
	}

	plan, err := svc.CreatePlan(ctx, validPlan())
	require.NoError(t, err)
	assert.Equal(t, storage.PlanActive, plan.Status)
}

func TestStopPlanUnknownID(t *testing.T) {
	svc, _, _ := newTestService(t)

	plan, err := svc.CreatePlan(context.Background(), validPlan())
	require.NoError(t, err)
	require.NoError(t, svc.StopPlan(context.Background(), plan.ID))

	got, err := svc.UserPlans(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, storage.PlanStopped, got[0].Status)
}

func TestLendUsesBestMarket(t *testing.T) {
	svc, _, executor := newTestService(t)

	res, err := svc.Lend(context.Background(), decimal.NewFromInt(25))
	require.NoError(t, err)
	assert.NotEmpty(t, res.TxHash)
	assert.True(t, executor.Deposited().Equal(decimal.NewFromInt(25)))

	_, err = svc.Lend(context.Background(), decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestInterestReport(t *testing.T) {
	svc, _, _ := newTestService(t)

	since := time.Now().UTC().Add(-365 * 24 * time.Hour)
	report, err := svc.Interest(context.Background(), decimal.NewFromInt(1000), since)
	require.NoError(t, err)

	assert.Equal(t, 10.0, report.APY)
	// One year at 10% simple interest on 1000.
	assert.InDelta(t, 100.0, report.Interest.InexactFloat64(), 0.01)
	assert.InDelta(t, 1100.0, report.Total.InexactFloat64(), 0.01)
}
