// Command songbird runs the Discord music bot together with its HTTP side
// channel (metrics, health probes and the live event stream).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/songbird/internal/config"
	"github.com/MrWong99/songbird/internal/discord"
	"github.com/MrWong99/songbird/internal/discord/commands"
	"github.com/MrWong99/songbird/internal/eventstream"
	"github.com/MrWong99/songbird/internal/health"
	"github.com/MrWong99/songbird/internal/history"
	"github.com/MrWong99/songbird/internal/observe"
	"github.com/MrWong99/songbird/internal/playback"
	"github.com/MrWong99/songbird/internal/resolver"
	"github.com/MrWong99/songbird/internal/transcode"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file (optional; SONGBIRD_* env vars override it)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "songbird: %v\n", err)
		return 1
	}

	// The watcher owns the config when a file is given so edits can be
	// applied live.
	var (
		cfg     *config.Config
		watcher *config.Watcher
		err     error
	)
	level := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var chain *resolver.Chain
	onChange := func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(d.NewLogLevel.Level())
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.RateLimitChanged && chain != nil {
			chain.SetRateLimit(d.NewRateLimit.PerSecond, d.NewRateLimit.Burst)
			slog.Info("resolver rate limit changed", "per_second", d.NewRateLimit.PerSecond, "burst", d.NewRateLimit.Burst)
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("config changes need a restart to take effect", "settings", d.RestartRequired)
		}
	}
	if *configPath != "" {
		watcher, err = config.NewWatcher(*configPath, onChange)
		if err == nil {
			cfg = watcher.Current()
		}
	} else {
		cfg, err = config.Load("")
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "songbird: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "songbird: %v\n", err)
		}
		return 1
	}
	level.Set(cfg.Server.LogLevel.Level())

	slog.Info("songbird starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics, err := observe.NewMetrics(telemetry.MeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── History ───────────────────────────────────────────────────────────────
	store, checkers, err := openHistory(ctx, cfg.History)
	if err != nil {
		slog.Error("failed to open play history", "err", err)
		return 1
	}
	defer store.Close()

	// ── Resolver chain: yt-dlp first, YouTube API as fallback ─────────────────
	yt, err := resolver.NewYouTube(cfg.Resolver.Proxy)
	if err != nil {
		slog.Error("failed to create youtube resolver", "err", err)
		return 1
	}
	chain, err = resolver.NewChain(resolver.Config{
		PerSecond:        cfg.Resolver.RateLimit.PerSecond,
		Burst:            cfg.Resolver.RateLimit.Burst,
		MaxPlaylistItems: cfg.Resolver.MaxPlaylistItems,
		Metrics:          metrics,
	},
		resolver.Named{Name: "yt-dlp", Source: resolver.NewYtDlp(resolver.YtDlpConfig{
			Path:          cfg.Resolver.YtDlpPath,
			SearchResults: cfg.Resolver.SearchResults,
			Proxy:         cfg.Resolver.Proxy,
		})},
		resolver.Named{Name: "youtube", Source: yt},
	)
	if err != nil {
		slog.Error("failed to build resolver chain", "err", err)
		return 1
	}

	// ── Discord ───────────────────────────────────────────────────────────────
	bot, err := discord.New(ctx, discord.Config{
		Token:      cfg.Discord.Token,
		GuildID:    cfg.Discord.GuildID,
		DJRoleID:   cfg.Discord.DJRoleID,
		SupportURL: cfg.Discord.SupportURL,
	})
	if err != nil {
		slog.Error("failed to create Discord bot", "err", err)
		return 1
	}
	defer func() {
		if err := bot.Close(); err != nil {
			slog.Warn("discord bot close error", "err", err)
		}
	}()

	// ── Playback ──────────────────────────────────────────────────────────────
	var hub *eventstream.Hub
	notifiers := playback.MultiNotifier{bot.Presenter(), history.NewRecorder(store)}
	if !cfg.Events.Disabled {
		hub = eventstream.New(eventstream.Config{
			OriginPatterns: cfg.Events.AllowedOrigins,
			Metrics:        metrics,
		})
		notifiers = append(notifiers, hub)
	}

	orch := playback.New(playback.Config{
		Platform:    bot.Platform(),
		Resolver:    chain,
		Transcoder:  transcode.New(transcode.Config{Path: cfg.Transcode.FFmpegPath}),
		Notifier:    notifiers,
		Metrics:     metrics,
		StopTimeout: cfg.Playback.StopTimeout,
	})
	commands.NewMusicCommands(bot, orch, store)

	// ── HTTP: /metrics, /healthz, /readyz, /ws/events ─────────────────────────
	checkers = append(checkers,
		health.Flag("discord", bot.Ready, "gateway not connected"),
		health.Binary("ffmpeg", cfg.Transcode.FFmpegPath),
		health.Binary("yt-dlp", cfg.Resolver.YtDlpPath),
	)
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", telemetry.Handler())
	health.New(checkers...).Register(mux)
	if hub != nil {
		hub.SetSnapshotSource(orch.Queue)
		mux.Handle("GET /ws/events", hub)
	}
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := bot.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := orch.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("playback shutdown: %w", err))
		}
		if hub != nil {
			hub.Close()
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		slog.Error("songbird stopped with error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// openHistory opens the PostgreSQL store when a DSN is configured and the
// in-memory store otherwise. The returned checkers probe the database.
func openHistory(ctx context.Context, cfg config.HistoryConfig) (history.Store, []health.Checker, error) {
	if cfg.PostgresDSN == "" {
		slog.Info("play history kept in memory", "capacity", cfg.MemoryCapacity)
		return history.NewMemoryStore(cfg.MemoryCapacity), nil, nil
	}
	pg, err := history.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("play history stored in postgres")
	return pg, []health.Checker{health.Ping("history", pg.Ping)}, nil
}
