package pricing

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// ErrInsufficientHistory indicates the price series is too short for the
// requested window.
var ErrInsufficientHistory = errors.New("pricing: insufficient price history")

// Sample is a single observed price point. Series are ordered by time but may
// contain gaps.
type Sample struct {
	Timestamp time.Time
	Price     float64
}

// Analysis is the sizing decision derived from recent price history. It is
// recomputed per execution and never persisted.
type Analysis struct {
	MA7       float64
	MA30      float64
	Change24h float64
	Factor    float64
	TrendUp   bool
}

// Neutral is the fallback analysis applied when history is unavailable: a
// factor of 1.0 leaves the plan amount unchanged.
func Neutral() Analysis {
	return Analysis{Factor: 1.0}
}

// MovingAverage returns the mean of the last period samples by recency.
func MovingAverage(samples []Sample, period int) (float64, error) {
	if period <= 0 || len(samples) < period {
		return 0, ErrInsufficientHistory
	}

	recent := samples[len(samples)-period:]
	sum := 0.0
	for _, s := range recent {
		sum += s.Price
	}
	return sum / float64(period), nil
}

// PercentChange24h computes the rolling 24h change against the sample whose
// timestamp is closest to 24 hours before the most recent one. The first
// minimum wins on ties.
func PercentChange24h(samples []Sample) (float64, error) {
	if len(samples) < 2 {
		return 0, ErrInsufficientHistory
	}

	sorted := make([]Sample, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	latest := sorted[len(sorted)-1]
	target := latest.Timestamp.Add(-24 * time.Hour)

	ref := sorted[0]
	smallest := absDuration(sorted[0].Timestamp.Sub(target))
	for _, s := range sorted[1:] {
		diff := absDuration(s.Timestamp.Sub(target))
		if diff < smallest {
			smallest = diff
			ref = s
		}
	}

	return (latest.Price - ref.Price) / ref.Price * 100, nil
}

// MomentumFactor maps a 24h percentage change onto a sizing scalar in roughly
// [0.1, 1.9]. The breakpoints are product parameters, not tunables.
func MomentumFactor(pct float64) float64 {
	if pct > 0 {
		switch {
		case pct < 3:
			return 1.0 + pct/10
		case pct < 10:
			return 1.4 + (pct-3)/23.33
		default:
			return 1.7 + math.Min((pct-10)/50, 0.2)
		}
	}

	a := math.Abs(pct)
	switch {
	case a < 3:
		return 1.0 - a/10
	case a < 10:
		return 0.7 - (a-3)/23.33
	default:
		return 0.3 - math.Min((a-10)/50, 0.2)
	}
}

// Analyzer derives sizing decisions from a history feed.
type Analyzer struct {
	feed       HistoryFeed
	windowDays int
	logger     zerolog.Logger
}

// NewAnalyzer constructs an Analyzer. windowDays should cover both averaging
// windows; 31 supports the 7-day and 30-day averages.
func NewAnalyzer(feed HistoryFeed, windowDays int, logger zerolog.Logger) *Analyzer {
	if windowDays < 2 {
		windowDays = 31
	}
	return &Analyzer{
		feed:       feed,
		windowDays: windowDays,
		logger:     logger.With().Str("component", "price_analyzer").Logger(),
	}
}

// Analyze computes the sizing decision for assetID. Any failure degrades to
// the neutral factor rather than blocking a scheduled contribution.
func (a *Analyzer) Analyze(ctx context.Context, assetID string) Analysis {
	samples, err := a.feed.HistoricalPrices(ctx, assetID, a.windowDays)
	if err != nil {
		a.logger.Warn().Err(err).Str("asset", assetID).Msg("price history unavailable, using neutral factor")
		return Neutral()
	}

	ma7, err := MovingAverage(samples, 7)
	if err != nil {
		a.logger.Warn().Err(err).Str("asset", assetID).Msg("history too short for 7-day average, using neutral factor")
		return Neutral()
	}

	// The 30-day window shrinks with short history instead of failing.
	ma30, err := MovingAverage(samples, min(30, len(samples)))
	if err != nil {
		return Neutral()
	}

	change, err := PercentChange24h(samples)
	if err != nil {
		a.logger.Warn().Err(err).Str("asset", assetID).Msg("cannot compute 24h change, using neutral factor")
		return Neutral()
	}

	factor := MomentumFactor(change)
	a.logger.Debug().
		Str("asset", assetID).
		Float64("ma7", ma7).
		Float64("ma30", ma30).
		Float64("change_24h", change).
		Float64("factor", factor).
		Msg("price analysis complete")

	return Analysis{
		MA7:       ma7,
		MA30:      ma30,
		Change24h: change,
		Factor:    factor,
		TrendUp:   change > 0,
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
