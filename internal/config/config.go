package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"driftbuy/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Prices    PricesConfig    `mapstructure:"prices"`
	Markets   MarketsConfig   `mapstructure:"markets"`
	API       APIConfig       `mapstructure:"api"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs the due-plan scan cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// ChainConfig covers on-chain execution.
type ChainConfig struct {
	Executor       string        `mapstructure:"executor"`
	RPCURL         string        `mapstructure:"rpc_url"`
	ChainID        int64         `mapstructure:"chain_id"`
	PrivateKey     string        `mapstructure:"private_key"`
	RouterAddress  string        `mapstructure:"router_address"`
	PoolAddress    string        `mapstructure:"pool_address"`
	StableToken    string        `mapstructure:"stable_token"`
	StableDecimals int           `mapstructure:"stable_decimals"`
	TargetToken    string        `mapstructure:"target_token"`
	TargetDecimals int           `mapstructure:"target_decimals"`
	GasLimit       uint64        `mapstructure:"gas_limit"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// PricesConfig captures historical price feed connectivity.
type PricesConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	AssetID        string        `mapstructure:"asset_id"`
	VsCurrency     string        `mapstructure:"vs_currency"`
	WindowDays     int           `mapstructure:"window_days"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// MarketsConfig captures lending market feed and cache behaviour.
type MarketsConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	Redis          RedisConfig   `mapstructure:"redis"`
}

// RedisConfig parameterises the optional Redis market cache backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// APIConfig sets the HTTP surface behaviour.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DRIFTBUY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "driftbuy")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "5s")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("chain.executor", "mock")
	v.SetDefault("chain.stable_decimals", 6)
	v.SetDefault("chain.target_decimals", 18)
	v.SetDefault("chain.gas_limit", uint64(400000))
	v.SetDefault("chain.request_timeout", "30s")

	v.SetDefault("prices.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("prices.asset_id", "ethereum")
	v.SetDefault("prices.vs_currency", "usd")
	v.SetDefault("prices.window_days", 31)
	v.SetDefault("prices.request_timeout", "10s")
	v.SetDefault("prices.user_agent", "driftbuy/1.0")

	v.SetDefault("markets.request_timeout", "10s")
	v.SetDefault("markets.user_agent", "driftbuy/1.0")
	v.SetDefault("markets.cache_ttl", "10m")

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.listen", ":8080")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Prices.WindowDays < 2 {
		return fmt.Errorf("prices.window_days must be at least 2")
	}
	if c.Markets.CacheTTL <= 0 {
		return fmt.Errorf("markets.cache_ttl must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	switch c.Chain.Executor {
	case "mock":
	case "evm":
		if c.Chain.RPCURL == "" {
			return fmt.Errorf("chain.rpc_url is required for the evm executor")
		}
		if c.Chain.PrivateKey == "" {
			return fmt.Errorf("chain.private_key is required for the evm executor")
		}
		if c.Chain.RouterAddress == "" || c.Chain.StableToken == "" || c.Chain.TargetToken == "" {
			return fmt.Errorf("chain.router_address, chain.stable_token and chain.target_token are required for the evm executor")
		}
	default:
		return fmt.Errorf("chain.executor must be one of mock, evm")
	}
	if c.API.Enabled && c.API.Listen == "" {
		return fmt.Errorf("api.listen must be set when api.enabled is true")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
