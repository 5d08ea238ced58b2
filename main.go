// Command twitchbot connects a command-driven chat bot to a single Twitch
// channel. It:
//   - Loads configuration and initializes structured logging.
//   - Keeps the user OAuth token fresh in the background.
//   - Drives the chat connection state machine (handshake, join, reconnect).
//   - Dispatches keyword commands with per-user and global cooldowns.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/twitchbot/bot"
	"github.com/onnwee/twitchbot/channel"
	"github.com/onnwee/twitchbot/client"
	"github.com/onnwee/twitchbot/commands"
	"github.com/onnwee/twitchbot/config"
	"github.com/onnwee/twitchbot/irc"
	"github.com/onnwee/twitchbot/oauth"
	"github.com/onnwee/twitchbot/server"
	"github.com/onnwee/twitchbot/telemetry"
	"github.com/onnwee/twitchbot/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Error("config incomplete", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("twitchbot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// User token refresher. Each reconnect re-reads the token, so a refresh
	// landing mid-session is picked up on the next handshake.
	refresher := oauth.New(oauth.Options{
		ClientID:     cfg.TwitchClientID,
		ClientSecret: cfg.TwitchClientSecret,
		AccessToken:  cfg.TwitchOAuthToken,
		RefreshToken: cfg.TwitchRefreshToken,
		Scopes:       cfg.ScopeList(),
	})
	refresher.Start(ctx)

	// Helix accessor for API-backed commands.
	var api *twitchapi.Client
	if cfg.TwitchClientID != "" {
		api = &twitchapi.Client{
			ClientID:  cfg.TwitchClientID,
			UserToken: refresher.Token,
		}
	}

	tracker := channel.New(cfg.TwitchChannel)
	cl := client.New(client.Options{
		Channel:              cfg.TwitchChannel,
		Username:             cfg.TwitchBotUsername,
		Token:                refresher.Token,
		Addr:                 cfg.ChatAddr,
		Caps:                 cfg.Capabilities,
		ExpectTimeout:        cfg.ExpectTimeout,
		BackoffBase:          cfg.BackoffBase,
		BackoffCap:           cfg.BackoffCap,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	}, tracker)

	registry := commands.NewRegistry()
	registerBuiltins(registry)
	cooldowns := commands.NewCooldownStore(cfg.UserCooldown, cfg.GlobalCooldown)

	b := bot.New(bot.Options{
		Registry:  registry,
		Cooldowns: cooldowns,
		API:       api,
		Tracker:   tracker,
		Sender:    cl,
	})

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/readiness/status/metrics)
	go func() {
		if err := server.Start(ctx, &server.Handlers{Client: cl, Tracker: tracker}, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	slog.Info("connecting to chat",
		slog.String("channel", cfg.TwitchChannel),
		slog.String("username", cfg.TwitchBotUsername))
	if err := cl.Run(ctx, b); err != nil {
		switch {
		case errors.Is(err, client.ErrAuthenticationFailed):
			slog.Error("chat authentication rejected; check TWITCH_OAUTH_TOKEN", slog.Any("err", err))
		case errors.Is(err, client.ErrReconnectExhausted):
			slog.Error("chat reconnect budget exhausted", slog.Any("err", err))
		default:
			slog.Error("chat client exited with error", slog.Any("err", err))
		}
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

// registerBuiltins installs the stock commands. Bots embedding these
// packages register their own instead.
func registerBuiltins(r *commands.Registry) {
	r.AddFunc("ping", commands.FirstWord{Word: "!ping"},
		func(_ context.Context, _ *twitchapi.Client, _ *channel.Channel, _ *irc.Message) (string, error) {
			return "pong", nil
		})

	r.AddFunc("lurkers", commands.FirstWord{Word: "!lurkers"},
		func(_ context.Context, _ *twitchapi.Client, ch *channel.Channel, _ *irc.Message) (string, error) {
			if ch == nil {
				return "", nil
			}
			return fmt.Sprintf("%d users in chat", ch.UserCount()), nil
		})

	r.AddFunc("game", commands.FirstWord{Word: "!game"},
		func(ctx context.Context, api *twitchapi.Client, ch *channel.Channel, _ *irc.Message) (string, error) {
			if api == nil || ch == nil {
				return "", nil
			}
			id := ch.BroadcasterID()
			if id == "" {
				u, err := api.GetUser(ctx, ch.Login())
				if err != nil {
					return "", err
				}
				id = u.ID
			}
			info, err := api.GetChannelInformation(ctx, id)
			if err != nil {
				return "", err
			}
			if info.GameName == "" {
				return "no game set", nil
			}
			return "current game: " + info.GameName, nil
		})

	// Mod-only: answers with the sender's recorded message count.
	r.AddFunc("seen", commands.And(commands.FirstWord{Word: "!seen"}, commands.SenderIsMod{}),
		func(_ context.Context, _ *twitchapi.Client, ch *channel.Channel, m *irc.Message) (string, error) {
			words := m.Words()
			if ch == nil || len(words) < 2 {
				return "", nil
			}
			target := strings.ToLower(strings.TrimPrefix(words[1], "@"))
			if ch.IsUserIn(target) {
				return target + " is here right now", nil
			}
			if last := ch.LatestMessage(target); last != nil {
				return target + " last spoke at " + last.At.Format(time.RFC3339), nil
			}
			return "no trace of " + target, nil
		})
}
