// Package config provides the configuration schema, loader and hot-reload
// watcher for songbird.
//
// Configuration is read from a YAML file, then overridden from SONGBIRD_*
// environment variables (optionally seeded from a .env file), then
// defaulted and validated.
package config

import (
	"log/slog"
	"time"
)

// EnvPrefix prefixes every environment override, e.g. SONGBIRD_DISCORD_TOKEN.
const EnvPrefix = "SONGBIRD_"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a [slog.Level]. Unknown levels map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for songbird.
// It is typically loaded with [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Discord   DiscordConfig   `yaml:"discord" envPrefix:"DISCORD_"`
	Playback  PlaybackConfig  `yaml:"playback" envPrefix:"PLAYBACK_"`
	Resolver  ResolverConfig  `yaml:"resolver" envPrefix:"RESOLVER_"`
	Transcode TranscodeConfig `yaml:"transcode" envPrefix:"TRANSCODE_"`
	History   HistoryConfig   `yaml:"history" envPrefix:"HISTORY_"`
	Events    EventsConfig    `yaml:"events" envPrefix:"EVENTS_"`
}

// ServerConfig holds the HTTP listener (metrics, health, events) and logging
// settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on. Default ":8080".
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level" env:"LOG_LEVEL"`
}

// DiscordConfig holds bot credentials and guild-facing settings.
type DiscordConfig struct {
	// Token is the bot token. Required.
	Token string `yaml:"token" env:"TOKEN"`

	// GuildID registers commands to a single guild, which is instant.
	// Empty registers them globally.
	GuildID string `yaml:"guild_id" env:"GUILD_ID"`

	// SupportURL is linked from error messages.
	SupportURL string `yaml:"support_url" env:"SUPPORT_URL"`

	// DJRoleID restricts /stop and /clear to one role. Empty allows everyone.
	DJRoleID string `yaml:"dj_role_id" env:"DJ_ROLE_ID"`
}

// PlaybackConfig tunes the orchestrator.
type PlaybackConfig struct {
	// StopTimeout bounds how long Stop waits for playback to wind down.
	StopTimeout time.Duration `yaml:"stop_timeout" env:"STOP_TIMEOUT"`
}

// ResolverConfig configures query resolution.
type ResolverConfig struct {
	// YtDlpPath is the yt-dlp executable. Default "yt-dlp".
	YtDlpPath string `yaml:"ytdlp_path" env:"YTDLP_PATH"`

	// SearchResults is how many search candidates are ranked. Default 5.
	SearchResults int `yaml:"search_results" env:"SEARCH_RESULTS"`

	// MaxPlaylistItems caps playlist expansion. Default 50.
	MaxPlaylistItems int `yaml:"max_playlist_items" env:"MAX_PLAYLIST_ITEMS"`

	// Proxy is an http, https or socks5 URL used for all lookups.
	Proxy string `yaml:"proxy" env:"PROXY"`

	// RateLimit bounds lookups across all guilds. Hot-reloadable.
	RateLimit RateLimitConfig `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
}

// RateLimitConfig is a token bucket.
type RateLimitConfig struct {
	// PerSecond is the refill rate. Zero disables limiting.
	PerSecond float64 `yaml:"per_second" env:"PER_SECOND"`

	// Burst is the bucket size.
	Burst int `yaml:"burst" env:"BURST"`
}

// TranscodeConfig configures the ffmpeg transcoder.
type TranscodeConfig struct {
	// FFmpegPath is the ffmpeg executable. Default "ffmpeg".
	FFmpegPath string `yaml:"ffmpeg_path" env:"FFMPEG_PATH"`
}

// HistoryConfig configures the play history store.
type HistoryConfig struct {
	// PostgresDSN selects the PostgreSQL store. Empty keeps history in memory.
	PostgresDSN string `yaml:"postgres_dsn" env:"DSN"`

	// MemoryCapacity is the per-guild size of the in-memory store.
	// Default 100.
	MemoryCapacity int `yaml:"memory_capacity" env:"MEMORY_CAPACITY"`
}

// EventsConfig configures the websocket event stream.
type EventsConfig struct {
	// Disabled turns /ws/events off.
	Disabled bool `yaml:"disabled" env:"DISABLED"`

	// AllowedOrigins lists host patterns allowed to connect cross-origin.
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// Defaults.
const (
	DefaultListenAddr       = ":8080"
	DefaultStopTimeout      = 5 * time.Second
	DefaultYtDlpPath        = "yt-dlp"
	DefaultSearchResults    = 5
	DefaultMaxPlaylistItems = 50
	DefaultRatePerSecond    = 2
	DefaultRateBurst        = 5
	DefaultFFmpegPath       = "ffmpeg"
	DefaultMemoryCapacity   = 100
)

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Playback.StopTimeout == 0 {
		cfg.Playback.StopTimeout = DefaultStopTimeout
	}
	if cfg.Resolver.YtDlpPath == "" {
		cfg.Resolver.YtDlpPath = DefaultYtDlpPath
	}
	if cfg.Resolver.SearchResults == 0 {
		cfg.Resolver.SearchResults = DefaultSearchResults
	}
	if cfg.Resolver.MaxPlaylistItems == 0 {
		cfg.Resolver.MaxPlaylistItems = DefaultMaxPlaylistItems
	}
	if cfg.Resolver.RateLimit == (RateLimitConfig{}) {
		cfg.Resolver.RateLimit = RateLimitConfig{PerSecond: DefaultRatePerSecond, Burst: DefaultRateBurst}
	}
	if cfg.Transcode.FFmpegPath == "" {
		cfg.Transcode.FFmpegPath = DefaultFFmpegPath
	}
	if cfg.History.MemoryCapacity == 0 {
		cfg.History.MemoryCapacity = DefaultMemoryCapacity
	}
}
