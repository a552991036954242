// Command viewer-tracker watches a Discord channel for Twitch stream links and
// reports who took part in each linked stream's chat.
// It:
//   - Loads configuration and initializes structured logging.
//   - Loads the bot list once.
//   - Connects to the Discord gateway and Twitch chat, starting a tracking
//     session for every stream link posted to the monitored channel.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hzrd-media/viewer-tracker/botfilter"
	"github.com/hzrd-media/viewer-tracker/chat"
	"github.com/hzrd-media/viewer-tracker/config"
	"github.com/hzrd-media/viewer-tracker/discord"
	"github.com/hzrd-media/viewer-tracker/server"
	"github.com/hzrd-media/viewer-tracker/telemetry"
	"github.com/hzrd-media/viewer-tracker/tracker"
	"github.com/hzrd-media/viewer-tracker/twitchapi"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	// Config (also loads .env, so it must precede logger setup)
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdownTracing, err := telemetry.InitTracing(cfg.OTLPEndpoint, "viewer-tracker", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bots := loadBots(ctx, cfg)

	// Twitch: Helix for stream metadata, IRC for chat membership
	helix := &twitchapi.HelixClient{
		AppTokenSource: &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
		ClientID:       cfg.TwitchClientID,
	}
	fetcher := twitchapi.NewStreamFetcher(helix, twitchapi.DefaultBreakerSettings)
	observer := chat.NewObserver(cfg.TwitchNickname, cfg.TwitchOAuthToken)

	// Discord: notifier for reports, listener for link events
	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		slog.Error("discord session", slog.Any("err", err))
		os.Exit(1)
	}
	notifier := discord.NewNotifier(session, cfg.TrackChannelID)

	tr := tracker.New(observer, fetcher, notifier, tracker.Options{
		Interval: cfg.PollInterval,
		Bots:     bots,
	})
	router := tracker.NewRouter(tr, cfg.TrackChannelID)
	listener := discord.NewListener(session, router)

	deps := server.Deps{
		Status:       tr,
		CircuitState: fetcher.State,
		Checks: []server.Check{
			{Name: "discord", Fn: connectedCheck(listener.Connected, "discord gateway not connected")},
			{Name: "twitch_irc", Fn: connectedCheck(observer.Connected, "twitch chat not connected")},
			{Name: "metadata_circuit", Fn: func(context.Context) error {
				if fetcher.State() == "open" {
					return errors.New("circuit breaker open")
				}
				return nil
			}},
		},
	}

	slog.Info("starting",
		slog.String("version", version),
		slog.String("channel", cfg.TrackChannelID),
		slog.Duration("interval", cfg.PollInterval),
		slog.Bool("anonymous_chat", cfg.AnonymousChat()),
		slog.Int("bots", bots.Len()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return observer.Run(gctx) })
	g.Go(func() error { return listener.Run(gctx) })
	g.Go(func() error { return server.Start(gctx, cfg.HTTPAddr, deps) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := tr.Shutdown(shutdownCtx); err != nil {
			slog.Warn("sessions did not stop in time", slog.Any("err", err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("shutdown with error", slog.Any("err", err))
		shutdownTracing()
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

// setupLogging configures the default logger (level + format). Defaults: level=info, format=text.
func setupLogging(level, format string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", level))
	}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))
}

// loadBots picks the bot list source: a local file wins, then the builtin
// list when asked for, then the published URL.
func loadBots(ctx context.Context, cfg *config.Config) botfilter.Set {
	var src botfilter.Source
	switch {
	case cfg.BotUsernamesFile != "":
		src = botfilter.FileSource{Path: cfg.BotUsernamesFile}
	case cfg.BotUsernamesBuiltin:
		src = botfilter.StaticSource(botfilter.Builtin)
	default:
		src = botfilter.URLSource{URL: cfg.BotUsernamesURL}
	}
	lctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return botfilter.Load(lctx, src)
}

func connectedCheck(connected func() bool, msg string) func(context.Context) error {
	return func(context.Context) error {
		if !connected() {
			return errors.New(msg)
		}
		return nil
	}
}
