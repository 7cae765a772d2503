// Package config defines the top-level configuration for paperbot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PAPERBOT_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Trading    TradingConfig    `toml:"trading"`
	Portfolio  PortfolioConfig  `toml:"portfolio"`
	Poll       PollConfig       `toml:"poll"`
	Strategies StrategiesConfig `toml:"strategies"`
	Events     EventsConfig     `toml:"events"`
	Redis      RedisConfig      `toml:"redis"`
	Notify     NotifyConfig     `toml:"notify"`
	Server     ServerConfig     `toml:"server"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds Polymarket API endpoints.
type PolymarketConfig struct {
	GammaHost string `toml:"gamma_host"`
	ClobHost  string `toml:"clob_host"`
	DataHost  string `toml:"data_host"`
	// RatePerSecond caps requests per host; 0 disables limiting.
	RatePerSecond float64 `toml:"rate_per_second"`
	RateBurst     int     `toml:"rate_burst"`
}

// TradingConfig holds the validator thresholds shared by the arbitrage
// strategies.
type TradingConfig struct {
	MinProfitThresholdPct float64 `toml:"min_profit_threshold_pct"`
	MaxTradeSizeUSDC      float64 `toml:"max_trade_size_usdc"`
	SlippageTolerancePct  float64 `toml:"slippage_tolerance_pct"`
}

// PortfolioConfig sizes one strategy's paper portfolio. A strategy section
// may override any non-zero field.
type PortfolioConfig struct {
	Slots           int      `toml:"slots"`
	SlotBudgetUSDC  float64  `toml:"slot_budget_usdc"`
	StartingBalance float64  `toml:"starting_balance_usdc"`
	ResolvedLimit   int      `toml:"resolved_limit"`
	MarkInterval    duration `toml:"mark_interval"`
}

// PollConfig controls source polling, backoff and health thresholds.
type PollConfig struct {
	Interval       duration `toml:"interval"`
	Jitter         float64  `toml:"jitter"`
	BackoffFloor   duration `toml:"backoff_floor"`
	BackoffCap     duration `toml:"backoff_cap"`
	RateLimitPause duration `toml:"rate_limit_pause"`
	Timeout        duration `toml:"timeout"`
	YellowAfter    int      `toml:"yellow_after"`
	RedAfter       int      `toml:"red_after"`
}

// SourceConfig seeds one watched source at startup.
type SourceConfig struct {
	ID       string `toml:"id"`
	Nickname string `toml:"nickname"`
}

// StrategiesConfig enables and tunes the individual strategies.
type StrategiesConfig struct {
	Mirror   MirrorConfig   `toml:"mirror"`
	Sports   SportsConfig   `toml:"sports"`
	Crypto   CryptoConfig   `toml:"crypto"`
	Livefeed LivefeedConfig `toml:"livefeed"`
}

// StrategyBase is embedded by every strategy section.
type StrategyBase struct {
	Enabled   bool            `toml:"enabled"`
	Sources   []SourceConfig  `toml:"sources"`
	Portfolio PortfolioConfig `toml:"portfolio"`
	// PollInterval overrides poll.interval for this strategy.
	PollInterval duration `toml:"poll_interval"`
}

// MirrorConfig configures wallet mirroring.
type MirrorConfig struct {
	StrategyBase
}

// SportsConfig configures same-market YES+NO arbitrage.
type SportsConfig struct {
	StrategyBase
	PrescreenBuffer float64 `toml:"prescreen_buffer"`
	BookDepth       int     `toml:"book_depth"`
	Concurrency     int     `toml:"concurrency"`
}

// VenueFees are fractional fees, 0.006 meaning 0.6%.
type VenueFees struct {
	Taker float64 `toml:"taker"`
	Maker float64 `toml:"maker"`
}

// CryptoConfig configures Coinbase/Kraken cross-venue arbitrage.
type CryptoConfig struct {
	StrategyBase
	ThresholdPct  float64              `toml:"threshold_pct"`
	TradeSizeUSDC float64              `toml:"trade_size_usdc"`
	CoinbaseHost  string               `toml:"coinbase_host"`
	KrakenHost    string               `toml:"kraken_host"`
	BookDepth     int                  `toml:"book_depth"`
	RatePerSecond float64              `toml:"rate_per_second"`
	Fees          map[string]VenueFees `toml:"fees"`
}

// LivefeedConfig configures live-event trading off API-Football.
type LivefeedConfig struct {
	StrategyBase
	APIKey         string   `toml:"api_key"`
	BaseURL        string   `toml:"base_url"`
	RatePerMinute  int      `toml:"rate_per_minute"`
	MinEdgePct     float64  `toml:"min_edge_pct"`
	EntryWindow    duration `toml:"entry_window"`
	RedCardShift   float64  `toml:"red_card_shift"`
	MatchThreshold float64  `toml:"match_threshold"`
	// Edge-latency tracking of traded events.
	EdgePollInterval  duration `toml:"edge_poll_interval"`
	EdgeMoveThreshold float64  `toml:"edge_move_threshold"`
	EdgeMaxWindow     duration `toml:"edge_max_window"`
}

// EventsConfig sizes the event bus.
type EventsConfig struct {
	HistorySize      int `toml:"history_size"`
	SubscriberBuffer int `toml:"subscriber_buffer"`
}

// RedisConfig holds Redis connection parameters for the event relay.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// NotifyConfig holds chat notification settings. A channel is active when its
// credentials are set.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Enabled reports whether any notification channel is configured.
func (n NotifyConfig) Enabled() bool {
	return (n.TelegramToken != "" && n.TelegramChatID != "") || n.DiscordWebhookURL != ""
}

// ServerConfig holds HTTP API server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey, when set, is required on mutating admin requests.
	APIKey string `toml:"api_key"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "30s", "5m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so that BurntSushi/toml can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

var validModes = map[string]bool{
	"full":   true,
	"engine": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Defaults returns a Config populated with sensible default values.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost:     "https://gamma-api.polymarket.com",
			ClobHost:      "https://clob.polymarket.com",
			DataHost:      "https://data-api.polymarket.com",
			RatePerSecond: 5,
			RateBurst:     5,
		},
		Trading: TradingConfig{
			MinProfitThresholdPct: 1.5,
			MaxTradeSizeUSDC:      500,
			SlippageTolerancePct:  2,
		},
		Portfolio: PortfolioConfig{
			Slots:           40,
			SlotBudgetUSDC:  500,
			StartingBalance: 20000,
			ResolvedLimit:   200,
			MarkInterval:    duration{30 * time.Second},
		},
		Poll: PollConfig{
			Interval:       duration{30 * time.Second},
			Jitter:         0.2,
			BackoffFloor:   duration{1 * time.Second},
			BackoffCap:     duration{32 * time.Second},
			RateLimitPause: duration{60 * time.Second},
			Timeout:        duration{10 * time.Second},
			YellowAfter:    0,
			RedAfter:       4,
		},
		Strategies: StrategiesConfig{
			Mirror: MirrorConfig{StrategyBase: StrategyBase{Enabled: true}},
			Sports: SportsConfig{
				PrescreenBuffer: 0.02,
				BookDepth:       5,
				Concurrency:     10,
			},
			Crypto: CryptoConfig{
				ThresholdPct:  0.3,
				TradeSizeUSDC: 100,
				CoinbaseHost:  "https://api.exchange.coinbase.com",
				KrakenHost:    "https://api.kraken.com",
				BookDepth:     50,
				RatePerSecond: 3,
				Fees: map[string]VenueFees{
					"coinbase": {Taker: 0.006, Maker: 0.004},
					"kraken":   {Taker: 0.0026, Maker: 0.0016},
				},
			},
			Livefeed: LivefeedConfig{
				BaseURL:           "https://v3.football.api-sports.io",
				RatePerMinute:     10,
				MinEdgePct:        3,
				EntryWindow:       duration{45 * time.Second},
				RedCardShift:      0.12,
				MatchThreshold:    0.5,
				EdgePollInterval:  duration{3 * time.Second},
				EdgeMoveThreshold: 0.02,
				EdgeMaxWindow:     duration{2 * time.Minute},
			},
		},
		Events: EventsConfig{
			HistorySize:      500,
			SubscriberBuffer: 256,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     10,
			MaxRetries:   3,
			StreamMaxLen: 10000,
		},
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// PortfolioFor merges a strategy's portfolio overrides onto the global
// portfolio section.
func (c *Config) PortfolioFor(s StrategyBase) PortfolioConfig {
	out := c.Portfolio
	o := s.Portfolio
	if o.Slots > 0 {
		out.Slots = o.Slots
	}
	if o.SlotBudgetUSDC > 0 {
		out.SlotBudgetUSDC = o.SlotBudgetUSDC
	}
	if o.StartingBalance > 0 {
		out.StartingBalance = o.StartingBalance
	}
	if o.ResolvedLimit > 0 {
		out.ResolvedLimit = o.ResolvedLimit
	}
	if o.MarkInterval.Duration > 0 {
		out.MarkInterval = o.MarkInterval
	}
	return out
}

// PollFor applies a strategy's poll interval override.
func (c *Config) PollFor(s StrategyBase) PollConfig {
	out := c.Poll
	if s.PollInterval.Duration > 0 {
		out.Interval = s.PollInterval
	}
	return out
}

// Validate checks Config for obviously invalid or missing values and returns a
// single error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, engine)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Polymarket endpoints
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.DataHost == "" {
		errs = append(errs, "polymarket: data_host must not be empty")
	}
	if c.Polymarket.RatePerSecond < 0 {
		errs = append(errs, "polymarket: rate_per_second must be >= 0")
	}

	// Trading
	if c.Trading.MinProfitThresholdPct <= 0 {
		errs = append(errs, "trading: min_profit_threshold_pct must be > 0")
	}
	if c.Trading.MaxTradeSizeUSDC <= 0 {
		errs = append(errs, "trading: max_trade_size_usdc must be > 0")
	}
	if c.Trading.SlippageTolerancePct < 0 {
		errs = append(errs, "trading: slippage_tolerance_pct must be >= 0")
	}

	errs = append(errs, validatePortfolio("portfolio", c.Portfolio)...)

	// Poll
	if c.Poll.Interval.Duration <= 0 {
		errs = append(errs, "poll: interval must be > 0")
	}
	if c.Poll.Jitter < 0 || c.Poll.Jitter >= 1 {
		errs = append(errs, fmt.Sprintf("poll: jitter must be in [0, 1), got %g", c.Poll.Jitter))
	}
	if c.Poll.BackoffFloor.Duration <= 0 {
		errs = append(errs, "poll: backoff_floor must be > 0")
	}
	if c.Poll.BackoffCap.Duration < c.Poll.BackoffFloor.Duration {
		errs = append(errs, "poll: backoff_cap must not be below backoff_floor")
	}
	if c.Poll.Timeout.Duration <= 0 {
		errs = append(errs, "poll: timeout must be > 0")
	}
	if c.Poll.RedAfter < c.Poll.YellowAfter {
		errs = append(errs, "poll: red_after must not be below yellow_after")
	}

	// Strategies
	s := c.Strategies
	if !s.Mirror.Enabled && !s.Sports.Enabled && !s.Crypto.Enabled && !s.Livefeed.Enabled {
		errs = append(errs, "strategies: at least one strategy must be enabled")
	}
	for name, base := range map[string]StrategyBase{
		"mirror":   s.Mirror.StrategyBase,
		"sports":   s.Sports.StrategyBase,
		"crypto":   s.Crypto.StrategyBase,
		"livefeed": s.Livefeed.StrategyBase,
	} {
		if !base.Enabled {
			continue
		}
		errs = append(errs, validatePortfolio("strategies."+name+".portfolio", c.PortfolioFor(base))...)
		for i, src := range base.Sources {
			if strings.TrimSpace(src.ID) == "" {
				errs = append(errs, fmt.Sprintf("strategies.%s.sources[%d]: id must not be empty", name, i))
			}
		}
	}
	if s.Crypto.Enabled {
		if s.Crypto.ThresholdPct < 0 {
			errs = append(errs, "strategies.crypto: threshold_pct must be >= 0")
		}
		for _, venue := range []string{"coinbase", "kraken"} {
			if _, ok := s.Crypto.Fees[venue]; !ok {
				errs = append(errs, "strategies.crypto: fees."+venue+" must be set")
			}
		}
	}
	if s.Livefeed.Enabled {
		if s.Livefeed.APIKey == "" {
			errs = append(errs, "strategies.livefeed: api_key is required (or set PAPERBOT_LIVEFEED_API_KEY)")
		}
		if s.Livefeed.MatchThreshold <= 0 || s.Livefeed.MatchThreshold > 1 {
			errs = append(errs, "strategies.livefeed: match_threshold must be in (0, 1]")
		}
		if s.Livefeed.EdgeMoveThreshold <= 0 || s.Livefeed.EdgeMoveThreshold >= 1 {
			errs = append(errs, "strategies.livefeed: edge_move_threshold must be in (0, 1)")
		}
		if s.Livefeed.EdgePollInterval.Duration <= 0 || s.Livefeed.EdgeMaxWindow.Duration < s.Livefeed.EdgePollInterval.Duration {
			errs = append(errs, "strategies.livefeed: edge_max_window must be >= edge_poll_interval > 0")
		}
	}

	// Events
	if c.Events.HistorySize < 0 {
		errs = append(errs, "events: history_size must be >= 0")
	}
	if c.Events.SubscriberBuffer < 1 {
		errs = append(errs, "events: subscriber_buffer must be >= 1")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	// Server
	if strings.EqualFold(c.Mode, "full") {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validatePortfolio(section string, p PortfolioConfig) []string {
	var errs []string
	if p.Slots < 1 {
		errs = append(errs, section+": slots must be >= 1")
	}
	if p.SlotBudgetUSDC <= 0 {
		errs = append(errs, section+": slot_budget_usdc must be > 0")
	}
	if p.StartingBalance < float64(p.Slots)*p.SlotBudgetUSDC {
		errs = append(errs, fmt.Sprintf("%s: starting_balance_usdc %.2f cannot fund %d slots of %.2f",
			section, p.StartingBalance, p.Slots, p.SlotBudgetUSDC))
	}
	return errs
}
