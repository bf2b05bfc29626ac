package pricing

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestMomentumFactorBreakpoints(t *testing.T) {
	cases := []struct {
		pct  float64
		want float64
	}{
		{0, 1.0},
		{2, 1.2},
		{3, 1.4},
		{10, 1.7},
		{20, 1.9},
		{50, 1.9},
		{-2, 0.8},
		{-3, 0.7},
		{-10, 0.3},
		{-20, 0.1},
		{-50, 0.1},
	}

	for _, tc := range cases {
		got := MomentumFactor(tc.pct)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("MomentumFactor(%v) = %v, 期望 %v", tc.pct, got, tc.want)
		}
	}
}

func TestMomentumFactorMonotonic(t *testing.T) {
	prev := math.Inf(-1)
	for pct := -30.0; pct <= 30.0; pct += 0.25 {
		got := MomentumFactor(pct)
		if got < prev {
			t.Fatalf("factor decreased at pct=%v: %v < %v", pct, got, prev)
		}
		prev = got
	}
}

func TestMomentumFactorBounds(t *testing.T) {
	for pct := -500.0; pct <= 500.0; pct += 1.0 {
		got := MomentumFactor(pct)
		if got < 0.1-1e-9 || got > 1.9+1e-9 {
			t.Fatalf("factor %v out of [0.1, 1.9] at pct=%v", got, pct)
		}
	}
}

func TestPercentChange24hNearestSample(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	samples := []Sample{
		{Timestamp: t0, Price: 100},
		{Timestamp: t0.Add(23 * time.Hour), Price: 105},
		{Timestamp: t0.Add(24 * time.Hour), Price: 110},
	}

	got, err := PercentChange24h(samples)
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	// The reference is the sample at t0, exactly 24h before the latest.
	if math.Abs(got-10) > 1e-9 {
		t.Fatalf("PercentChange24h = %v, 期望 10", got)
	}
}

func TestPercentChange24hFirstMinimumWins(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	// Two samples equidistant from the 24h target; the earlier one must win.
	samples := []Sample{
		{Timestamp: t0.Add(-time.Hour), Price: 100},
		{Timestamp: t0.Add(time.Hour), Price: 200},
		{Timestamp: t0.Add(24 * time.Hour), Price: 300},
	}

	got, err := PercentChange24h(samples)
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if math.Abs(got-200) > 1e-9 {
		t.Fatalf("PercentChange24h = %v, 期望 200 (基于较早样本)", got)
	}
}

func TestPercentChange24hTooShort(t *testing.T) {
	_, err := PercentChange24h([]Sample{{Price: 1}})
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("单个样本应返回 ErrInsufficientHistory, 实际 %v", err)
	}
}

func TestMovingAverage(t *testing.T) {
	samples := make([]Sample, 0, 10)
	for i := 0; i < 10; i++ {
		samples = append(samples, Sample{Price: float64(i + 1)})
	}

	got, err := MovingAverage(samples, 4)
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	// Mean of the last four prices 7, 8, 9, 10.
	if math.Abs(got-8.5) > 1e-9 {
		t.Fatalf("MovingAverage = %v, 期望 8.5", got)
	}

	if _, err := MovingAverage(samples, 11); !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("样本不足应返回 ErrInsufficientHistory, 实际 %v", err)
	}
}

type stubHistoryFeed struct {
	samples []Sample
	err     error
}

func (s *stubHistoryFeed) HistoricalPrices(context.Context, string, int) ([]Sample, error) {
	return s.samples, s.err
}

func TestAnalyzeNeutralOnFeedError(t *testing.T) {
	a := NewAnalyzer(&stubHistoryFeed{err: errors.New("boom")}, 31, noopLogger())

	got := a.Analyze(context.Background(), "ethereum")
	if got != Neutral() {
		t.Fatalf("feed 失败应返回中性结果, 实际 %+v", got)
	}
}

func TestAnalyzeNeutralOnShortHistory(t *testing.T) {
	a := NewAnalyzer(&stubHistoryFeed{samples: []Sample{{Price: 1}, {Price: 2}}}, 31, noopLogger())

	got := a.Analyze(context.Background(), "ethereum")
	if got.Factor != 1.0 {
		t.Fatalf("历史太短应返回中性因子, 实际 %v", got.Factor)
	}
}

func TestAnalyzeShrinksLongWindow(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	samples := make([]Sample, 0, 10)
	for i := 0; i < 10; i++ {
		samples = append(samples, Sample{
			Timestamp: t0.Add(time.Duration(i) * 24 * time.Hour),
			Price:     100,
		})
	}

	a := NewAnalyzer(&stubHistoryFeed{samples: samples}, 31, noopLogger())
	got := a.Analyze(context.Background(), "ethereum")

	// Ten days of history is enough: the 30-day window shrinks to ten.
	if got.MA30 != 100 {
		t.Fatalf("MA30 = %v, 期望 100", got.MA30)
	}
	if got.Factor != 1.0 {
		t.Fatalf("平稳价格应得到因子 1.0, 实际 %v", got.Factor)
	}
	if got.TrendUp {
		t.Fatal("平稳价格不应判定为上升趋势")
	}
}
