package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"driftbuy/internal/chain"
	"driftbuy/internal/market"
	"driftbuy/internal/pricing"
	"driftbuy/internal/storage"
)

// Outcome classifies a single plan execution.
type Outcome string

const (
	// OutcomeCompleted means both phases finished.
	OutcomeCompleted Outcome = "completed"
	// OutcomePartial means the conversion landed but the deposit did not.
	// The converted funds stay in the destination wallet.
	OutcomePartial Outcome = "partial"
	// OutcomeFailed means the conversion itself did not happen.
	OutcomeFailed Outcome = "failed"
)

// Momentum supplies the trend analysis driving trade sizing.
type Momentum interface {
	Analyze(ctx context.Context, assetID string) pricing.Analysis
}

// MarketSource picks the pool a deposit should land in.
type MarketSource interface {
	Best(ctx context.Context) (market.CachedMarket, error)
}

// Result carries the outcome of one execution together with its ledger rows.
type Result struct {
	Outcome    Outcome
	TradeSize  decimal.Decimal
	Factor     float64
	Multiplier float64
	Convert    *storage.Transaction
	Deposit    *storage.Transaction
}

// Options configure a Pipeline.
type Options struct {
	OpTimeout time.Duration
}

// Pipeline sizes and executes one two-phase trade per due plan. Every phase
// is journaled before submission so a crash between phases is recoverable on
// the next tick.
type Pipeline struct {
	momentum Momentum
	markets  MarketSource
	executor chain.Executor
	ledger   storage.LedgerStore
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

// New constructs a Pipeline.
func New(momentum Momentum, markets MarketSource, executor chain.Executor, ledger storage.LedgerStore, opts Options, logger zerolog.Logger) *Pipeline {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = 2 * time.Minute
	}
	return &Pipeline{
		momentum: momentum,
		markets:  markets,
		executor: executor,
		ledger:   ledger,
		opts:     opts,
		logger:   logger.With().Str("component", "pipeline").Logger(),
		now:      time.Now,
	}
}

// Execute runs one plan through sizing, conversion and the optional deposit.
// A deposit failure after a landed conversion returns OutcomePartial with a
// nil error so the caller advances the schedule rather than re-buying.
func (p *Pipeline) Execute(ctx context.Context, plan storage.Plan) (Result, error) {
	now := p.now().UTC()
	runIndex := plan.RunIndex(now)

	analysis := p.momentum.Analyze(ctx, plan.AssetID)
	multiplier := pricing.RiskTier(plan.Risk).Multiplier()
	tradeSize := plan.Amount.Mul(decimal.NewFromFloat(analysis.Factor * multiplier))

	result := Result{
		Outcome:    OutcomeFailed,
		TradeSize:  tradeSize,
		Factor:     analysis.Factor,
		Multiplier: multiplier,
	}

	logger := p.logger.With().
		Str("plan_id", plan.ID.String()).
		Int64("run_index", runIndex).
		Logger()

	logger.Info().
		Str("base_amount", plan.Amount.String()).
		Float64("factor", analysis.Factor).
		Float64("multiplier", multiplier).
		Str("trade_size", tradeSize.String()).
		Msg("sized trade")

	convert, err := p.ledger.AppendTransaction(ctx, storage.Transaction{
		PlanID:         plan.ID,
		Phase:          storage.PhaseConvert,
		Amount:         tradeSize,
		IdempotencyKey: idemKey(plan.ID.String(), storage.PhaseConvert, runIndex),
	})
	if err != nil {
		return result, fmt.Errorf("journal convert: %w", err)
	}

	if convert.Status == storage.TxFailed {
		// The previous tick's attempt failed inside this schedule slot.
		// Re-arm the row and try the buy again.
		if retryErr := p.ledger.RetryTransaction(ctx, convert.ID); retryErr != nil {
			return result, fmt.Errorf("re-arm convert: %w", retryErr)
		}
		convert.Status = storage.TxPending
		convert.Error = nil
	}

	received := convert.Received
	if convert.Status == storage.TxCompleted {
		// Crash recovery: the buy already landed in this slot.
		logger.Info().Str("tx", convert.TxHash).Msg("conversion already completed, skipping")
	} else {
		opCtx, cancel := context.WithTimeout(ctx, p.opts.OpTimeout)
		convRes, convErr := p.executor.Convert(opCtx, convert.Amount, plan.Destination)
		cancel()
		if convErr != nil {
			if markErr := p.ledger.MarkTransactionFailed(ctx, convert.ID, convErr.Error()); markErr != nil {
				logger.Error().Err(markErr).Msg("failed to record conversion failure")
			}
			failed := convert
			failed.Status = storage.TxFailed
			result.Convert = &failed
			return result, fmt.Errorf("convert: %w", convErr)
		}
		if markErr := p.ledger.MarkTransactionCompleted(ctx, convert.ID, convRes.Received, convRes.TxHash, ""); markErr != nil {
			return result, fmt.Errorf("record conversion: %w", markErr)
		}
		convert.Status = storage.TxCompleted
		convert.Received = convRes.Received
		convert.TxHash = convRes.TxHash
		received = convRes.Received
	}
	result.Convert = &convert

	if !plan.AutoDeposit {
		result.Outcome = OutcomeCompleted
		return result, nil
	}

	deposit, err := p.ledger.AppendTransaction(ctx, storage.Transaction{
		PlanID:         plan.ID,
		Phase:          storage.PhaseDeposit,
		Amount:         received,
		IdempotencyKey: idemKey(plan.ID.String(), storage.PhaseDeposit, runIndex),
	})
	if err != nil {
		return result, fmt.Errorf("journal deposit: %w", err)
	}

	switch deposit.Status {
	case storage.TxCompleted:
		result.Deposit = &deposit
		result.Outcome = OutcomeCompleted
		return result, nil
	case storage.TxFailed:
		result.Deposit = &deposit
		result.Outcome = OutcomePartial
		return result, nil
	}

	best, err := p.markets.Best(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("no market available, leaving funds in wallet")
		if markErr := p.ledger.MarkTransactionFailed(ctx, deposit.ID, err.Error()); markErr != nil {
			logger.Error().Err(markErr).Msg("failed to record deposit failure")
		}
		deposit.Status = storage.TxFailed
		result.Deposit = &deposit
		result.Outcome = OutcomePartial
		return result, nil
	}

	opCtx, cancel := context.WithTimeout(ctx, p.opts.OpTimeout)
	depRes, depErr := p.executor.Deposit(opCtx, deposit.Amount, best.Market)
	cancel()
	if depErr != nil {
		logger.Warn().Err(depErr).Msg("deposit failed, funds remain in wallet")
		if markErr := p.ledger.MarkTransactionFailed(ctx, deposit.ID, depErr.Error()); markErr != nil {
			logger.Error().Err(markErr).Msg("failed to record deposit failure")
		}
		deposit.Status = storage.TxFailed
		result.Deposit = &deposit
		result.Outcome = OutcomePartial
		return result, nil
	}

	if markErr := p.ledger.MarkTransactionCompleted(ctx, deposit.ID, deposit.Amount, depRes.TxHash, depRes.PositionRef); markErr != nil {
		return result, fmt.Errorf("record deposit: %w", markErr)
	}
	deposit.Status = storage.TxCompleted
	deposit.TxHash = depRes.TxHash
	deposit.PositionRef = depRes.PositionRef
	result.Deposit = &deposit
	result.Outcome = OutcomeCompleted

	logger.Info().
		Str("market", best.Market.Asset).
		Str("amount", deposit.Amount.String()).
		Msg("trade completed")

	return result, nil
}

func idemKey(planID string, phase storage.TxPhase, runIndex int64) string {
	return fmt.Sprintf("%s:%s:%d", planID, phase, runIndex)
}
