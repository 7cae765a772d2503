package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/paperbot/internal/cache/redis"
	"github.com/alanyoungcy/paperbot/internal/config"
	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/eventbus"
	"github.com/alanyoungcy/paperbot/internal/notify"
	"github.com/alanyoungcy/paperbot/internal/platform/exchange"
	"github.com/alanyoungcy/paperbot/internal/platform/football"
	"github.com/alanyoungcy/paperbot/internal/platform/polymarket"
	"github.com/alanyoungcy/paperbot/internal/poller"
	"github.com/alanyoungcy/paperbot/internal/portfolio"
	"github.com/alanyoungcy/paperbot/internal/strategy"
	"github.com/alanyoungcy/paperbot/internal/validator"
)

// Components bundles what the run modes start. It is constructed by Wire and
// torn down by the returned cleanup function.
type Components struct {
	Bus      *eventbus.Bus
	Registry *strategy.Registry
	// Relay is nil unless Redis is enabled.
	Relay *redis.Relay
	// Notifier is nil unless a chat channel is configured.
	Notifier *notify.Notifier
}

// Wire builds the platform clients, the event bus, one bot per enabled
// strategy with its seeded sources, the optional Redis relay and the optional
// chat notifier.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	bus := eventbus.New(eventbus.Config{
		HistorySize: cfg.Events.HistorySize,
		BufferSize:  cfg.Events.SubscriberBuffer,
	}, logger)
	comps := &Components{Bus: bus, Registry: strategy.NewRegistry()}

	// --- Polymarket ---
	opts := []polymarket.Option{
		polymarket.WithHTTPClient(&http.Client{Timeout: cfg.Poll.Timeout.Duration}),
	}
	if cfg.Polymarket.RatePerSecond > 0 {
		opts = append(opts, polymarket.WithRateLimit(cfg.Polymarket.RatePerSecond, cfg.Polymarket.RateBurst))
	}
	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost, opts...)
	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, opts...)
	data := polymarket.NewDataClient(cfg.Polymarket.DataHost, opts...)

	// --- Strategies ---
	s := cfg.Strategies
	if s.Mirror.Enabled {
		strat := strategy.NewMirror(data, gamma, logger)
		if err := addBot(comps, cfg, s.Mirror.StrategyBase, strat, logger); err != nil {
			cleanup()
			return nil, nil, err
		}
	}
	if s.Sports.Enabled {
		strat := strategy.NewSports(strategy.SportsConfig{
			SameMarketConfig: validator.SameMarketConfig{
				MinProfitThresholdPct: cfg.Trading.MinProfitThresholdPct,
				MaxTradeSizeUSDC:      cfg.Trading.MaxTradeSizeUSDC,
				SlippageTolerancePct:  cfg.Trading.SlippageTolerancePct,
			},
			PrescreenBuffer: s.Sports.PrescreenBuffer,
			BookDepth:       s.Sports.BookDepth,
			Concurrency:     s.Sports.Concurrency,
		}, gamma, clob, gamma, logger)
		if err := addBot(comps, cfg, s.Sports.StrategyBase, strat, logger); err != nil {
			cleanup()
			return nil, nil, err
		}
	}
	if s.Crypto.Enabled {
		venueCfg := func(host string) exchange.Config {
			return exchange.Config{
				BaseURL:       host,
				Depth:         s.Crypto.BookDepth,
				RatePerSecond: s.Crypto.RatePerSecond,
				Timeout:       cfg.Poll.Timeout.Duration,
			}
		}
		fees := make(map[string]strategy.VenueFees, len(s.Crypto.Fees))
		for venue, f := range s.Crypto.Fees {
			fees[venue] = strategy.VenueFees{Taker: f.Taker, Maker: f.Maker}
		}
		strat := strategy.NewCrypto(strategy.CryptoConfig{
			ThresholdPct:  s.Crypto.ThresholdPct,
			TradeSizeUSDC: s.Crypto.TradeSizeUSDC,
			Fees:          fees,
		}, []domain.VenueBookFetcher{
			exchange.NewCoinbase(venueCfg(s.Crypto.CoinbaseHost)),
			exchange.NewKraken(venueCfg(s.Crypto.KrakenHost)),
		}, logger)
		if err := addBot(comps, cfg, s.Crypto.StrategyBase, strat, logger); err != nil {
			cleanup()
			return nil, nil, err
		}
	}
	if s.Livefeed.Enabled {
		feed := football.NewClient(football.Config{
			BaseURL:       s.Livefeed.BaseURL,
			APIKey:        s.Livefeed.APIKey,
			RatePerMinute: s.Livefeed.RatePerMinute,
			Timeout:       cfg.Poll.Timeout.Duration,
		}, logger)
		strat := strategy.NewLiveEvents(strategy.LiveConfig{
			MinEdgePct:     s.Livefeed.MinEdgePct,
			EntryWindow:    s.Livefeed.EntryWindow.Duration,
			RedCardShift:   s.Livefeed.RedCardShift,
			MatchThreshold: s.Livefeed.MatchThreshold,
			Edge: strategy.EdgeConfig{
				PollInterval:  s.Livefeed.EdgePollInterval.Duration,
				MoveThreshold: s.Livefeed.EdgeMoveThreshold,
				MaxWindow:     s.Livefeed.EdgeMaxWindow.Duration,
			},
		}, feed, gamma, gamma, logger)
		if err := addBot(comps, cfg, s.Livefeed.StrategyBase, strat, logger); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	// --- Redis relay ---
	if cfg.Redis.Enabled {
		pub, err := redis.Dial(ctx, redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MaxRetries:   cfg.Redis.MaxRetries,
			TLSEnabled:   cfg.Redis.TLSEnabled,
			StreamMaxLen: cfg.Redis.StreamMaxLen,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = pub.Close() })
		comps.Relay = redis.NewRelay(bus, pub, logger)
	}

	// --- Notifications ---
	if n := cfg.Notify; n.Enabled() {
		var senders []notify.Sender
		if n.TelegramToken != "" && n.TelegramChatID != "" {
			senders = append(senders, notify.NewTelegramSender("", n.TelegramToken, n.TelegramChatID))
		}
		if n.DiscordWebhookURL != "" {
			senders = append(senders, notify.NewDiscordSender(n.DiscordWebhookURL))
		}
		comps.Notifier = notify.NewNotifier(bus, senders, n.Events, logger)
	}

	return comps, cleanup, nil
}

// addBot wraps strat in a Bot sized by the merged portfolio settings,
// registers it and seeds its configured sources.
func addBot(comps *Components, cfg *config.Config, base config.StrategyBase, strat strategy.Strategy, logger *slog.Logger) error {
	pc := cfg.PortfolioFor(base)
	pl := cfg.PollFor(base)
	bot := strategy.NewBot(strategy.BotConfig{
		Portfolio: portfolio.Config{
			Slots:           pc.Slots,
			SlotBudget:      pc.SlotBudgetUSDC,
			MaxTradeSize:    cfg.Trading.MaxTradeSizeUSDC,
			StartingBalance: pc.StartingBalance,
			ResolvedLimit:   pc.ResolvedLimit,
		},
		Poll: poller.Config{
			Interval:       pl.Interval.Duration,
			Jitter:         pl.Jitter,
			BackoffFloor:   pl.BackoffFloor.Duration,
			BackoffCap:     pl.BackoffCap.Duration,
			RateLimitPause: pl.RateLimitPause.Duration,
			Timeout:        pl.Timeout.Duration,
			YellowAfter:    pl.YellowAfter,
			RedAfter:       pl.RedAfter,
		},
		MarkInterval: pc.MarkInterval.Duration,
	}, strat, comps.Bus, logger)

	if err := comps.Registry.Register(bot); err != nil {
		return fmt.Errorf("wire: %w", err)
	}
	for _, src := range base.Sources {
		if _, err := bot.AddSource(src.ID, src.Nickname); err != nil {
			return fmt.Errorf("wire: %s: seed source: %w", bot.Name(), err)
		}
	}
	return nil
}
