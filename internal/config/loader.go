package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PAPERBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PAPERBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "PAPERBOT_MODE")
	setStr(&cfg.LogLevel, "PAPERBOT_LOG_LEVEL")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "PAPERBOT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.ClobHost, "PAPERBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.DataHost, "PAPERBOT_POLYMARKET_DATA_HOST")
	setFloat64(&cfg.Polymarket.RatePerSecond, "PAPERBOT_POLYMARKET_RATE_PER_SECOND")

	// ── Trading ──
	setFloat64(&cfg.Trading.MinProfitThresholdPct, "PAPERBOT_MIN_PROFIT_THRESHOLD_PCT")
	setFloat64(&cfg.Trading.MaxTradeSizeUSDC, "PAPERBOT_MAX_TRADE_SIZE_USDC")
	setFloat64(&cfg.Trading.SlippageTolerancePct, "PAPERBOT_SLIPPAGE_TOLERANCE_PCT")

	// ── Portfolio ──
	setInt(&cfg.Portfolio.Slots, "PAPERBOT_SLOTS")
	setFloat64(&cfg.Portfolio.SlotBudgetUSDC, "PAPERBOT_SLOT_SIZE_USDC")
	setFloat64(&cfg.Portfolio.StartingBalance, "PAPERBOT_STARTING_BALANCE")
	setDuration(&cfg.Portfolio.MarkInterval, "PAPERBOT_MARK_INTERVAL")

	// ── Poll ──
	setDuration(&cfg.Poll.Interval, "PAPERBOT_POLL_INTERVAL")
	setDuration(&cfg.Poll.Timeout, "PAPERBOT_POLL_TIMEOUT")

	// ── Strategies ──
	setBool(&cfg.Strategies.Mirror.Enabled, "PAPERBOT_MIRROR_ENABLED")
	setSources(&cfg.Strategies.Mirror.Sources, "PAPERBOT_MIRROR_SOURCES")
	setBool(&cfg.Strategies.Sports.Enabled, "PAPERBOT_SPORTS_ENABLED")
	setSources(&cfg.Strategies.Sports.Sources, "PAPERBOT_SPORTS_SOURCES")
	setBool(&cfg.Strategies.Crypto.Enabled, "PAPERBOT_CRYPTO_ENABLED")
	setSources(&cfg.Strategies.Crypto.Sources, "PAPERBOT_CRYPTO_SOURCES")
	setFloat64(&cfg.Strategies.Crypto.ThresholdPct, "PAPERBOT_CRYPTO_THRESHOLD_PCT")
	setBool(&cfg.Strategies.Livefeed.Enabled, "PAPERBOT_LIVEFEED_ENABLED")
	setSources(&cfg.Strategies.Livefeed.Sources, "PAPERBOT_LIVEFEED_SOURCES")
	setStr(&cfg.Strategies.Livefeed.APIKey, "API_FOOTBALL_KEY") // compatibility alias
	setStr(&cfg.Strategies.Livefeed.APIKey, "PAPERBOT_LIVEFEED_API_KEY")
	setStr(&cfg.Strategies.Livefeed.BaseURL, "PAPERBOT_LIVEFEED_BASE_URL")

	// ── Events ──
	setInt(&cfg.Events.HistorySize, "PAPERBOT_EVENTS_HISTORY_SIZE")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PAPERBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PAPERBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PAPERBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PAPERBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PAPERBOT_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "PAPERBOT_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, "PAPERBOT_REDIS_STREAM_MAX_LEN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PAPERBOT_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PAPERBOT_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PAPERBOT_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PAPERBOT_NOTIFY_EVENTS")

	// ── Server ──
	setInt(&cfg.Server.Port, "PAPERBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PAPERBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PAPERBOT_SERVER_API_KEY")
}

// setSources parses "id[:nickname],id[:nickname]" into source entries.
func setSources(dst *[]SourceConfig, key string) {
	var raw []string
	setStringSlice(&raw, key)
	if len(raw) == 0 {
		return
	}
	out := make([]SourceConfig, 0, len(raw))
	for _, r := range raw {
		id, nick, _ := strings.Cut(r, ":")
		out = append(out, SourceConfig{ID: strings.TrimSpace(id), Nickname: strings.TrimSpace(nick)})
	}
	*dst = out
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
