package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"driftbuy/internal/api"
	"driftbuy/internal/chain"
	"driftbuy/internal/config"
	"driftbuy/internal/market"
	"driftbuy/internal/pipeline"
	"driftbuy/internal/pricing"
	"driftbuy/internal/scheduler"
	"driftbuy/internal/service"
	"driftbuy/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// stores bundles the persistence interfaces a command needs.
type stores struct {
	plans  storage.PlanStore
	ledger storage.LedgerStore
	locker storage.AdvisoryLocker
}

func (a *App) openStores(ctx context.Context) (stores, func(), error) {
	if a.Config.Database.DSN == "" {
		a.Logger.Warn().Msg("database.dsn not configured; using in-memory storage")
		mem := storage.NewMemory()
		return stores{plans: mem, ledger: mem, locker: mem}, func() {}, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return stores{}, nil, err
	}

	store := storage.NewStore(pool)
	return stores{plans: store, ledger: store, locker: store}, store.Close, nil
}

func (a *App) newExecutor() (chain.Executor, error) {
	if a.Config.Chain.Executor == "evm" {
		return chain.NewEVM(chain.EVMOptions{
			RPCURL:         a.Config.Chain.RPCURL,
			ChainID:        a.Config.Chain.ChainID,
			PrivateKey:     a.Config.Chain.PrivateKey,
			RouterAddress:  a.Config.Chain.RouterAddress,
			PoolAddress:    a.Config.Chain.PoolAddress,
			StableToken:    a.Config.Chain.StableToken,
			StableDecimals: int32(a.Config.Chain.StableDecimals),
			TargetToken:    a.Config.Chain.TargetToken,
			TargetDecimals: int32(a.Config.Chain.TargetDecimals),
			GasLimit:       a.Config.Chain.GasLimit,
			Timeout:        a.Config.Chain.RequestTimeout,
		}, a.Logger)
	}
	return chain.NewMock(), nil
}

func (a *App) newRanker(ctx context.Context) (*market.Ranker, func(), error) {
	feed := market.NewHTTPFeed(market.FeedOptions{
		BaseURL:   a.Config.Markets.BaseURL,
		Timeout:   a.Config.Markets.RequestTimeout,
		UserAgent: a.Config.Markets.UserAgent,
	}, a.Logger)

	var cache market.Cache
	closer := func() {}
	if a.Config.Markets.Redis.Addr != "" {
		redisCache, err := market.NewRedisCache(ctx, market.RedisOptions{
			Addr:     a.Config.Markets.Redis.Addr,
			Password: a.Config.Markets.Redis.Password,
			DB:       a.Config.Markets.Redis.DB,
			TTL:      a.Config.Markets.CacheTTL,
		})
		if err != nil {
			return nil, nil, err
		}
		cache = redisCache
		closer = func() {
			if err := redisCache.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("failed to close redis cache")
			}
		}
	} else {
		cache = market.NewMemoryCache()
	}

	return market.NewRanker(feed, cache, a.Config.Markets.CacheTTL, a.Logger), closer, nil
}

func (a *App) newAnalyzer() *pricing.Analyzer {
	feed := pricing.NewFeed(pricing.FeedOptions{
		BaseURL:    a.Config.Prices.BaseURL,
		VsCurrency: a.Config.Prices.VsCurrency,
		Timeout:    a.Config.Prices.RequestTimeout,
		UserAgent:  a.Config.Prices.UserAgent,
	}, a.Logger)
	return pricing.NewAnalyzer(feed, a.Config.Prices.WindowDays, a.Logger)
}

func (a *App) newService(ctx context.Context) (*service.Service, func(), error) {
	st, closeStores, err := a.openStores(ctx)
	if err != nil {
		return nil, nil, err
	}

	ranker, closeRanker, err := a.newRanker(ctx)
	if err != nil {
		closeStores()
		return nil, nil, err
	}

	executor, err := a.newExecutor()
	if err != nil {
		closeRanker()
		closeStores()
		return nil, nil, err
	}

	svc := service.NewService(st.plans, st.ledger, ranker, executor, a.Logger)
	closer := func() {
		closeRanker()
		closeStores()
	}
	return svc, closer, nil
}

// Run executes the long-running plan runner, plus the HTTP API when enabled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, closeStores, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer closeStores()

	ranker, closeRanker, err := a.newRanker(ctx)
	if err != nil {
		return err
	}
	defer closeRanker()

	executor, err := a.newExecutor()
	if err != nil {
		return err
	}

	pipe := pipeline.New(a.newAnalyzer(), ranker, executor, st.ledger, pipeline.Options{
		OpTimeout: a.Config.Chain.RequestTimeout,
	}, a.Logger)

	runner := service.NewRunner(st.plans, st.locker, pipe, a.Logger)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		err := sched.Run(groupCtx, runner.Tick)
		runner.Wait()
		return err
	})

	if a.Config.API.Enabled {
		svc := service.NewService(st.plans, st.ledger, ranker, executor, a.Logger)
		server := api.NewServer(api.Options{Addr: a.Config.API.Listen}, svc, a.Logger)
		group.Go(func() error {
			return server.Run(groupCtx)
		})
	}

	a.Logger.Info().Msg("starting plan runner")
	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("runner terminated with error")
		return err
	}

	a.Logger.Info().Msg("plan runner stopped")
	return nil
}

// ExportOptions hold parameters for exporting the transaction ledger.
type ExportOptions struct {
	PlanID    string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// InterestOptions configure the interest command.
type InterestOptions struct {
	Principal string
	Since     time.Time
}
