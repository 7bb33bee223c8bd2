package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type ExchangeConfig struct {
	WsURL     string `toml:"ws_url"`
	RestURL   string `toml:"rest_url"`
	APIKey    string `toml:"api_key"`
	SecretKey string `toml:"secret_key"`
}

type Config struct {
	App struct {
		Coin             string `toml:"coin"`
		Quote            string `toml:"quote"`
		PrintEverySec    int    `toml:"print_every_sec"`
		ShutdownGraceSec int    `toml:"shutdown_grace_sec"`
	} `toml:"app"`

	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`

	Arbitrage struct {
		PriceDiffThreshold float64 `toml:"price_diff_threshold"`
		TradeCooldownSec   int     `toml:"trade_cooldown_sec"`
		AutoOpen           bool    `toml:"auto_open"`
	} `toml:"arbitrage"`

	Position struct {
		Size                 float64 `toml:"size"`
		QuantityStep         float64 `toml:"quantity_step"`
		TPPercent            float64 `toml:"tp_percent"`
		SLPercent            float64 `toml:"sl_percent"`
		MonitorIntervalMs    int     `toml:"monitor_interval_ms"`
		CloseMaxRetries      int     `toml:"close_max_retries"`
		CloseRetryDelayMs    int     `toml:"close_retry_delay_ms"`
		ReconcileIntervalSec int     `toml:"reconcile_interval_sec"`
		OrderTimeoutSec      int     `toml:"order_timeout_sec"`
	} `toml:"position"`

	WebSocket struct {
		TimeoutSec       int `toml:"timeout_sec"`
		ReconnectDelayMs int `toml:"reconnect_delay_ms"`
		PingIntervalSec  int `toml:"ping_interval_sec"`
		IdlePauseMs      int `toml:"idle_pause_ms"`
		QueueSoftLimit   int `toml:"queue_soft_limit"`
	} `toml:"websocket"`

	Exchange struct {
		Binance ExchangeConfig `toml:"binance"`
		BingX   ExchangeConfig `toml:"bingx"`
	} `toml:"exchange"`

	SQLite struct {
		Enabled bool   `toml:"enabled"`
		Path    string `toml:"path"`
	} `toml:"sqlite"`

	Redis struct {
		Enabled       bool   `toml:"enabled"`
		Addr          string `toml:"addr"`
		Password      string `toml:"password"`
		DB            int    `toml:"db"`
		Prefix        string `toml:"prefix"`
		TTLSeconds    int    `toml:"ttl_seconds"`
		SignalStream  string `toml:"signal_stream"`
		SignalChannel string `toml:"signal_channel"`
	} `toml:"redis"`

	Postgres struct {
		Enabled bool   `toml:"enabled"`
		DSN     string `toml:"dsn"`
	} `toml:"postgres"`

	Metrics struct {
		Listen string `toml:"listen"`
	} `toml:"metrics"`
}

// Load 读取 toml，加载 .env 并应用 MARKARB_* 环境变量，最后补默认值并校验
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// .env 不存在时忽略
	_ = godotenv.Load()
	applyEnvOverrides(&cfg)

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Exchange.BingX.APIKey, "MARKARB_BINGX_API_KEY")
	setStr(&cfg.Exchange.BingX.SecretKey, "MARKARB_BINGX_SECRET_KEY")
	setStr(&cfg.Exchange.BingX.RestURL, "MARKARB_BINGX_REST_URL")
	setStr(&cfg.App.Coin, "MARKARB_COIN")
	setFloat(&cfg.Arbitrage.PriceDiffThreshold, "MARKARB_PRICE_DIFF_THRESHOLD")
	setFloat(&cfg.Position.Size, "MARKARB_POSITION_SIZE")
	setBool(&cfg.Arbitrage.AutoOpen, "MARKARB_AUTO_OPEN")
	setStr(&cfg.Redis.Password, "MARKARB_REDIS_PASSWORD")
	setStr(&cfg.Postgres.DSN, "MARKARB_POSTGRES_DSN")
	setStr(&cfg.Log.Level, "MARKARB_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.App.Coin) == "" {
		cfg.App.Coin = "RARE"
	}
	if strings.TrimSpace(cfg.App.Quote) == "" {
		cfg.App.Quote = "USDT"
	}
	cfg.App.Coin = strings.ToUpper(strings.TrimSpace(cfg.App.Coin))
	cfg.App.Quote = strings.ToUpper(strings.TrimSpace(cfg.App.Quote))
	if cfg.App.PrintEverySec <= 0 {
		cfg.App.PrintEverySec = 1
	}
	if cfg.App.ShutdownGraceSec <= 0 {
		cfg.App.ShutdownGraceSec = 5
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	if cfg.Arbitrage.PriceDiffThreshold <= 0 {
		cfg.Arbitrage.PriceDiffThreshold = 5.0
	}
	if cfg.Arbitrage.TradeCooldownSec <= 0 {
		cfg.Arbitrage.TradeCooldownSec = 5
	}

	if cfg.Position.Size <= 0 {
		cfg.Position.Size = 400
	}
	if cfg.Position.TPPercent <= 0 {
		cfg.Position.TPPercent = 2
	}
	if cfg.Position.SLPercent <= 0 {
		cfg.Position.SLPercent = 1
	}
	if cfg.Position.MonitorIntervalMs <= 0 {
		cfg.Position.MonitorIntervalMs = 1000
	}
	if cfg.Position.CloseMaxRetries <= 0 {
		cfg.Position.CloseMaxRetries = 3
	}
	if cfg.Position.CloseRetryDelayMs <= 0 {
		cfg.Position.CloseRetryDelayMs = 2000
	}
	if cfg.Position.ReconcileIntervalSec <= 0 {
		cfg.Position.ReconcileIntervalSec = 5
	}
	if cfg.Position.OrderTimeoutSec <= 0 {
		cfg.Position.OrderTimeoutSec = 10
	}

	if cfg.WebSocket.TimeoutSec <= 0 {
		cfg.WebSocket.TimeoutSec = 30
	}
	if cfg.WebSocket.ReconnectDelayMs <= 0 {
		cfg.WebSocket.ReconnectDelayMs = 1000
	}
	if cfg.WebSocket.PingIntervalSec <= 0 {
		cfg.WebSocket.PingIntervalSec = 5
	}
	if cfg.WebSocket.IdlePauseMs <= 0 {
		cfg.WebSocket.IdlePauseMs = 5
	}
	if cfg.WebSocket.QueueSoftLimit <= 0 {
		cfg.WebSocket.QueueSoftLimit = 10000
	}

	if cfg.Exchange.Binance.WsURL == "" {
		cfg.Exchange.Binance.WsURL = "wss://fstream.binance.com"
	}
	if cfg.Exchange.BingX.WsURL == "" {
		cfg.Exchange.BingX.WsURL = "wss://open-api-swap.bingx.com/swap-market"
	}
	if cfg.Exchange.BingX.RestURL == "" {
		cfg.Exchange.BingX.RestURL = "https://open-api.bingx.com"
	}

	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "data/markarb.db"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "markarb"
	}
}

func validate(cfg *Config) error {
	if cfg.Position.TPPercent >= 100 || cfg.Position.SLPercent >= 100 {
		return errors.New("position.tp_percent and position.sl_percent must be below 100")
	}
	if strings.TrimSpace(cfg.Exchange.Binance.WsURL) == "" {
		return errors.New("exchange.binance.ws_url empty")
	}
	if strings.TrimSpace(cfg.Exchange.BingX.WsURL) == "" {
		return errors.New("exchange.bingx.ws_url empty")
	}
	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr empty but enabled")
	}
	if cfg.Postgres.Enabled && strings.TrimSpace(cfg.Postgres.DSN) == "" {
		return errors.New("postgres.dsn empty but enabled")
	}
	if cfg.WebSocket.PingIntervalSec >= cfg.WebSocket.TimeoutSec {
		return fmt.Errorf("websocket.ping_interval_sec (%d) must be below timeout_sec (%d)",
			cfg.WebSocket.PingIntervalSec, cfg.WebSocket.TimeoutSec)
	}
	return nil
}

// HasCredentials 是否配置了 BingX 下单凭证
func (c *Config) HasCredentials() bool {
	return strings.TrimSpace(c.Exchange.BingX.APIKey) != "" && strings.TrimSpace(c.Exchange.BingX.SecretKey) != ""
}

func (c *Config) TradeCooldown() time.Duration {
	return time.Duration(c.Arbitrage.TradeCooldownSec) * time.Second
}

func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Position.MonitorIntervalMs) * time.Millisecond
}

func (c *Config) CloseRetryDelay() time.Duration {
	return time.Duration(c.Position.CloseRetryDelayMs) * time.Millisecond
}

func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Position.ReconcileIntervalSec) * time.Second
}

func (c *Config) OrderTimeout() time.Duration {
	return time.Duration(c.Position.OrderTimeoutSec) * time.Second
}

func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.App.ShutdownGraceSec) * time.Second
}
