package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/paperbot/internal/server"
	"github.com/alanyoungcy/paperbot/internal/server/handler"
	"github.com/alanyoungcy/paperbot/internal/server/ws"
)

const shutdownTimeout = 5 * time.Second

// EngineMode runs the strategy bots and the optional Redis relay, with no
// HTTP surface.
func (a *App) EngineMode(ctx context.Context, comps *Components) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startEngines(ctx, g, comps)
	return g.Wait()
}

// FullMode runs the engines plus the admin API, metrics and dashboard
// websocket.
func (a *App) FullMode(ctx context.Context, comps *Components) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startEngines(ctx, g, comps)
	a.startHTTPServer(ctx, g, comps)
	return g.Wait()
}

func (a *App) startEngines(ctx context.Context, g *errgroup.Group, comps *Components) {
	for _, bot := range comps.Registry.Bots() {
		g.Go(func() error {
			return bot.Run(ctx)
		})
	}
	if comps.Relay != nil {
		g.Go(func() error {
			return comps.Relay.Run(ctx)
		})
	}
	if comps.Notifier != nil {
		g.Go(func() error {
			return comps.Notifier.Run(ctx)
		})
	}
	a.logger.InfoContext(ctx, "engines started",
		slog.Any("strategies", comps.Registry.List()),
		slog.Bool("redis_relay", comps.Relay != nil),
		slog.Bool("notifier", comps.Notifier != nil),
	)
}

// startHTTPServer adds the HTTP server and websocket hub to g. The server is
// shut down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, comps *Components) {
	hub := ws.NewHub(comps.Bus, ws.Config{AllowedOrigins: a.cfg.Server.CORSOrigins}, a.logger)
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(comps.Registry, time.Now().UTC()),
		Snapshot: handler.NewSnapshotHandler(comps.Bus),
		Strategy: handler.NewStrategyHandler(comps.Registry, a.logger),
		Sources:  handler.NewSourceHandler(comps.Registry, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
