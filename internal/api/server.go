package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"driftbuy/internal/service"
	"driftbuy/internal/storage"
)

const defaultTxLimit = 50

// Options tune the HTTP server.
type Options struct {
	Addr            string
	BodyLimit       string
	ShutdownTimeout time.Duration
}

// Server exposes plan management and pool operations over HTTP.
type Server struct {
	opts   Options
	svc    *service.Service
	logger zerolog.Logger
	echo   *echo.Echo
}

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// NewServer wires the service into an echo instance.
func NewServer(opts Options, svc *service.Service, logger zerolog.Logger) *Server {
	if opts.BodyLimit == "" {
		opts.BodyLimit = "1M"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(opts.BodyLimit))
	e.Use(middleware.CORS())
	e.Validator = &requestValidator{validate: validator.New()}

	s := &Server{
		opts:   opts,
		svc:    svc,
		logger: logger.With().Str("component", "api").Logger(),
		echo:   e,
	}

	e.GET("/healthz", s.health)

	e.POST("/plans", s.createPlan)
	e.POST("/plans/:id/stop", s.stopPlan)
	e.GET("/plans/:id/transactions", s.planTransactions)

	e.GET("/users/:id/plans", s.userPlans)
	e.GET("/users/:id/total-investment", s.totalInvestment)

	pool := e.Group("/pool")
	pool.GET("/best", s.bestMarket)
	pool.GET("/balance", s.balance)
	pool.POST("/lend", s.lend)
	pool.POST("/withdraw", s.withdraw)
	pool.POST("/interest", s.interest)

	return s
}

// Run serves until ctx is cancelled, then drains with a bounded shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.Addr).Msg("http server listening")
		if err := s.echo.Start(s.opts.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return <-errCh
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type createPlanRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	AssetID     string `json:"asset_id" validate:"required"`
	Destination string `json:"destination" validate:"required"`
	Amount      string `json:"amount" validate:"required"`
	Risk        string `json:"risk" validate:"required"`
	Every       int    `json:"every" validate:"gt=0"`
	Unit        string `json:"unit" validate:"required"`
	AutoDeposit bool   `json:"auto_deposit"`
}

func (s *Server) createPlan(c echo.Context) error {
	var req createPlanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "amount must be a decimal number")
	}

	plan, err := s.svc.CreatePlan(c.Request().Context(), service.NewPlan{
		UserID:      req.UserID,
		AssetID:     req.AssetID,
		Destination: req.Destination,
		Amount:      amount,
		Risk:        req.Risk,
		Every:       req.Every,
		Unit:        req.Unit,
		AutoDeposit: req.AutoDeposit,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidPlan) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error().Err(err).Msg("create plan failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create plan")
	}

	return c.JSON(http.StatusCreated, plan)
}

func (s *Server) stopPlan(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid plan id")
	}

	if err := s.svc.StopPlan(c.Request().Context(), id); err != nil {
		if errors.Is(err, storage.ErrPlanNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "plan not found")
		}
		s.logger.Error().Err(err).Str("plan_id", id.String()).Msg("stop plan failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to stop plan")
	}

	return c.NoContent(http.StatusOK)
}

func (s *Server) planTransactions(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid plan id")
	}

	limit := defaultTxLimit
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
	}

	txs, err := s.svc.PlanTransactions(c.Request().Context(), id, limit)
	if err != nil {
		if errors.Is(err, storage.ErrPlanNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "plan not found")
		}
		s.logger.Error().Err(err).Str("plan_id", id.String()).Msg("list transactions failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list transactions")
	}

	return c.JSON(http.StatusOK, txs)
}

func (s *Server) userPlans(c echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user id is required")
	}

	plans, err := s.svc.UserPlans(c.Request().Context(), userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("list plans failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list plans")
	}

	return c.JSON(http.StatusOK, plans)
}

func (s *Server) totalInvestment(c echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user id is required")
	}

	total, err := s.svc.TotalInvestment(c.Request().Context(), userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("total investment failed")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to compute total investment")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"user_id": userID,
		"total":   total.String(),
	})
}

func (s *Server) bestMarket(c echo.Context) error {
	best, err := s.svc.BestMarket(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("best market lookup failed")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no market data available")
	}
	return c.JSON(http.StatusOK, best)
}

func (s *Server) balance(c echo.Context) error {
	address := c.QueryParam("address")
	asset := c.QueryParam("asset")

	bal, err := s.svc.Balance(c.Request().Context(), address, asset)
	if err != nil {
		s.logger.Error().Err(err).Msg("balance lookup failed")
		return echo.NewHTTPError(http.StatusBadGateway, "failed to fetch balance")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"address": address,
		"asset":   asset,
		"balance": bal.String(),
	})
}

type amountRequest struct {
	Amount string `json:"amount" validate:"required"`
}

func (s *Server) lend(c echo.Context) error {
	var req amountRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "amount must be a decimal number")
	}

	res, err := s.svc.Lend(c.Request().Context(), amount)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPlan) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error().Err(err).Msg("lend failed")
		return echo.NewHTTPError(http.StatusBadGateway, "deposit failed")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"tx_hash":      res.TxHash,
		"position_ref": res.PositionRef,
	})
}

type withdrawRequest struct {
	Amount      string `json:"amount" validate:"required"`
	PositionRef string `json:"position_ref"`
}

func (s *Server) withdraw(c echo.Context) error {
	var req withdrawRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "amount must be a decimal number")
	}

	txHash, err := s.svc.Withdraw(c.Request().Context(), amount, req.PositionRef)
	if err != nil {
		if errors.Is(err, service.ErrInvalidPlan) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error().Err(err).Msg("withdraw failed")
		return echo.NewHTTPError(http.StatusBadGateway, "withdrawal failed")
	}

	return c.JSON(http.StatusOK, map[string]string{"tx_hash": txHash})
}

type interestRequest struct {
	Principal string    `json:"principal" validate:"required"`
	Since     time.Time `json:"since" validate:"required"`
}

func (s *Server) interest(c echo.Context) error {
	var req interestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	principal, err := decimal.NewFromString(req.Principal)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "principal must be a decimal number")
	}

	report, err := s.svc.Interest(c.Request().Context(), principal, req.Since)
	if err != nil {
		s.logger.Error().Err(err).Msg("interest calculation failed")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no market data available")
	}

	return c.JSON(http.StatusOK, report)
}
