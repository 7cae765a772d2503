package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperbot/internal/config"
	"github.com/alanyoungcy/paperbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWireBuildsEnabledStrategies(t *testing.T) {
	cfg := config.Defaults()
	cfg.Strategies.Mirror.Sources = []config.SourceConfig{
		{ID: "0xAbC0000000000000000000000000000000000001", Nickname: "whale"},
	}
	cfg.Strategies.Sports.Enabled = true
	cfg.Strategies.Sports.Portfolio.Slots = 10
	cfg.Strategies.Crypto.Enabled = true
	require.NoError(t, cfg.Validate())

	comps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, []string{"mirror", "sports", "crypto"}, comps.Registry.List())
	assert.Nil(t, comps.Relay)
	assert.Nil(t, comps.Notifier)

	mirror, err := comps.Registry.Get("mirror")
	require.NoError(t, err)
	sources := mirror.Sources()
	require.Len(t, sources, 1)
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", sources[0].ID)
	assert.Equal(t, "whale", sources[0].Nickname)
	assert.Equal(t, 40, mirror.Portfolio().Overview().SlotsTotal)

	sports, err := comps.Registry.Get("sports")
	require.NoError(t, err)
	assert.Equal(t, 10, sports.Portfolio().Overview().SlotsTotal)

	snap := comps.Bus.Snapshot()
	assert.Len(t, snap.Strategies, 3)
}

func TestWireRejectsBadSeedSource(t *testing.T) {
	cfg := config.Defaults()
	cfg.Strategies.Mirror.Sources = []config.SourceConfig{{ID: "not-a-wallet"}}

	_, _, err := Wire(context.Background(), &cfg, testLogger())
	require.ErrorIs(t, err, domain.ErrInvalidSource)
}

func TestEngineModeStopsOnCancel(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "engine"

	a := New(&cfg, testLogger())
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine mode did not stop")
	}
}

func TestWireBuildsNotifier(t *testing.T) {
	cfg := config.Defaults()
	cfg.Notify.DiscordWebhookURL = "http://127.0.0.1:1/hook"

	comps, cleanup, err := Wire(context.Background(), &cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()
	assert.NotNil(t, comps.Notifier)
}
