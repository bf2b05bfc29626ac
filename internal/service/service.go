package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"driftbuy/internal/chain"
	"driftbuy/internal/market"
	"driftbuy/internal/pipeline"
	"driftbuy/internal/pricing"
	"driftbuy/internal/storage"
)

var (
	// ErrInvalidPlan indicates the plan request failed validation.
	ErrInvalidPlan = errors.New("service: invalid plan")
)

// NewPlan carries the fields needed to register a recurring plan.
type NewPlan struct {
	UserID      string
	AssetID     string
	Destination string
	Amount      decimal.Decimal
	Risk        string
	Every       int
	Unit        string
	AutoDeposit bool
}

// PositionReport summarises a deposited position with accrued interest.
type PositionReport struct {
	Principal decimal.Decimal `json:"principal"`
	APY       float64         `json:"apy"`
	Since     time.Time       `json:"since"`
	Interest  decimal.Decimal `json:"interest"`
	Total     decimal.Decimal `json:"total"`
}

// Service exposes the operations shared by the HTTP API and the CLI.
type Service struct {
	plans    storage.PlanStore
	ledger   storage.LedgerStore
	ranker   pipeline.MarketSource
	executor chain.Executor
	logger   zerolog.Logger
}

// NewService wires stores and the chain executor into a Service.
func NewService(plans storage.PlanStore, ledger storage.LedgerStore, ranker pipeline.MarketSource, executor chain.Executor, logger zerolog.Logger) *Service {
	return &Service{
		plans:    plans,
		ledger:   ledger,
		ranker:   ranker,
		executor: executor,
		logger:   logger.With().Str("component", "service").Logger(),
	}
}

// CreatePlan validates and registers a recurring plan.
func (s *Service) CreatePlan(ctx context.Context, req NewPlan) (storage.Plan, error) {
	unit := storage.FrequencyUnit(req.Unit)
	switch {
	case req.UserID == "":
		return storage.Plan{}, fmt.Errorf("%w: user id is required", ErrInvalidPlan)
	case req.Destination == "":
		return storage.Plan{}, fmt.Errorf("%w: destination address is required", ErrInvalidPlan)
	case req.Amount.Sign() <= 0:
		return storage.Plan{}, fmt.Errorf("%w: amount must be positive", ErrInvalidPlan)
	case req.Every <= 0:
		return storage.Plan{}, fmt.Errorf("%w: every must be positive", ErrInvalidPlan)
	case !unit.Valid():
		return storage.Plan{}, fmt.Errorf("%w: unknown frequency unit %q", ErrInvalidPlan, req.Unit)
	case !pricing.RiskTier(req.Risk).Valid():
		return storage.Plan{}, fmt.Errorf("%w: unknown risk tier %q", ErrInvalidPlan, req.Risk)
	}

	plan := storage.Plan{
		UserID:      req.UserID,
		AssetID:     req.AssetID,
		Destination: req.Destination,
		Amount:      req.Amount,
		Risk:        req.Risk,
		Every:       req.Every,
		Unit:        unit,
		AutoDeposit: req.AutoDeposit,
		Status:      storage.PlanActive,
	}

	stored, err := s.plans.CreatePlan(ctx, plan)
	if err != nil {
		return storage.Plan{}, err
	}

	s.logger.Info().
		Str("plan_id", stored.ID.String()).
		Str("user_id", stored.UserID).
		Str("amount", stored.Amount.String()).
		Msg("plan created")

	return stored, nil
}

// StopPlan halts future executions of a plan.
func (s *Service) StopPlan(ctx context.Context, id uuid.UUID) error {
	if _, err := s.plans.GetPlan(ctx, id); err != nil {
		return err
	}
	if err := s.plans.StopPlan(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("plan_id", id.String()).Msg("plan stopped")
	return nil
}

// UserPlans lists all plans owned by a user.
func (s *Service) UserPlans(ctx context.Context, userID string) ([]storage.Plan, error) {
	return s.plans.ListUserPlans(ctx, userID)
}

// TotalInvestment sums the stable amount a user has invested through
// completed conversions.
func (s *Service) TotalInvestment(ctx context.Context, userID string) (decimal.Decimal, error) {
	return s.ledger.SumCompletedConverts(ctx, userID)
}

// PlanTransactions lists a plan's ledger rows, newest first.
func (s *Service) PlanTransactions(ctx context.Context, planID uuid.UUID, limit int) ([]storage.Transaction, error) {
	if _, err := s.plans.GetPlan(ctx, planID); err != nil {
		return nil, err
	}
	return s.ledger.ListPlanTransactions(ctx, planID, limit)
}

// RecentTransactions lists the latest ledger rows across all plans.
func (s *Service) RecentTransactions(ctx context.Context, limit int) ([]storage.Transaction, error) {
	return s.ledger.ListRecentTransactions(ctx, limit)
}

// BestMarket returns the current top-ranked yield market.
func (s *Service) BestMarket(ctx context.Context) (market.CachedMarket, error) {
	return s.ranker.Best(ctx)
}

// Lend deposits funds into the best market outside of any plan schedule.
// It is also the manual recovery path after a partial trade left converted
// funds sitting in the wallet.
func (s *Service) Lend(ctx context.Context, amount decimal.Decimal) (chain.DepositResult, error) {
	if amount.Sign() <= 0 {
		return chain.DepositResult{}, fmt.Errorf("%w: amount must be positive", ErrInvalidPlan)
	}
	best, err := s.ranker.Best(ctx)
	if err != nil {
		return chain.DepositResult{}, err
	}
	res, err := s.executor.Deposit(ctx, amount, best.Market)
	if err != nil {
		return chain.DepositResult{}, err
	}
	s.logger.Info().
		Str("tx", res.TxHash).
		Str("market", best.Market.Asset).
		Str("amount", amount.String()).
		Msg("manual deposit confirmed")
	return res, nil
}

// Withdraw pulls funds back out of a position.
func (s *Service) Withdraw(ctx context.Context, amount decimal.Decimal, positionRef string) (string, error) {
	if amount.Sign() <= 0 {
		return "", fmt.Errorf("%w: amount must be positive", ErrInvalidPlan)
	}
	best, err := s.ranker.Best(ctx)
	if err != nil {
		return "", err
	}
	return s.executor.Withdraw(ctx, amount, positionRef, best.Market)
}

// Balance reports an on-chain balance.
func (s *Service) Balance(ctx context.Context, address, asset string) (decimal.Decimal, error) {
	return s.executor.Balance(ctx, address, asset)
}

// Interest reports simple interest accrued on a principal at the current best
// market's total deposit APY.
func (s *Service) Interest(ctx context.Context, principal decimal.Decimal, since time.Time) (PositionReport, error) {
	best, err := s.ranker.Best(ctx)
	if err != nil {
		return PositionReport{}, err
	}

	now := time.Now().UTC()
	interest := market.AccruedInterest(principal, best.Market.TotalDepositAPY, since, now)

	return PositionReport{
		Principal: principal,
		APY:       best.Market.TotalDepositAPY,
		Since:     since,
		Interest:  interest,
		Total:     principal.Add(interest),
	}, nil
}
