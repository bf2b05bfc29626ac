package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.App.Name != "driftbuy" {
		t.Errorf("app.name = %q", cfg.App.Name)
	}
	if cfg.Scheduler.Interval != 5*time.Second {
		t.Errorf("scheduler.interval = %s", cfg.Scheduler.Interval)
	}
	if cfg.Chain.Executor != "mock" {
		t.Errorf("chain.executor = %q", cfg.Chain.Executor)
	}
	if cfg.Prices.WindowDays != 31 {
		t.Errorf("prices.window_days = %d", cfg.Prices.WindowDays)
	}
	if cfg.Markets.CacheTTL != 10*time.Minute {
		t.Errorf("markets.cache_ttl = %s", cfg.Markets.CacheTTL)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Scheduler: SchedulerConfig{Interval: 5 * time.Second},
			Prices:    PricesConfig{WindowDays: 31},
			Markets:   MarketsConfig{CacheTTL: 10 * time.Minute},
			Export:    ExportConfig{MaxDataPoints: 1000},
			Chain:     ChainConfig{Executor: "mock"},
			API:       APIConfig{Enabled: false},
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("合法配置不应报错: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.Scheduler.Interval = 0 }},
		{"short window", func(c *Config) { c.Prices.WindowDays = 1 }},
		{"zero ttl", func(c *Config) { c.Markets.CacheTTL = 0 }},
		{"zero max points", func(c *Config) { c.Export.MaxDataPoints = 0 }},
		{"unknown executor", func(c *Config) { c.Chain.Executor = "solana" }},
		{"evm missing rpc", func(c *Config) { c.Chain.Executor = "evm" }},
		{"api without listen", func(c *Config) { c.API.Enabled = true; c.API.Listen = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("应返回校验错误")
			}
		})
	}
}
