package config

import "slices"

// ConfigDiff describes what changed between two configs. Only log level and
// rate limit changes are applied live; everything else is listed in
// RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	RateLimitChanged bool
	NewRateLimit     RateLimitConfig

	// RestartRequired names the changed settings that only take effect
	// after a restart.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.RateLimitChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Resolver.RateLimit != new.Resolver.RateLimit {
		d.RateLimitChanged = true
		d.NewRateLimit = new.Resolver.RateLimit
	}

	restart := func(name string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, name)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("discord", old.Discord != new.Discord)
	restart("playback", old.Playback != new.Playback)
	restart("resolver.ytdlp_path", old.Resolver.YtDlpPath != new.Resolver.YtDlpPath)
	restart("resolver.search_results", old.Resolver.SearchResults != new.Resolver.SearchResults)
	restart("resolver.max_playlist_items", old.Resolver.MaxPlaylistItems != new.Resolver.MaxPlaylistItems)
	restart("resolver.proxy", old.Resolver.Proxy != new.Resolver.Proxy)
	restart("transcode", old.Transcode != new.Transcode)
	restart("history", old.History != new.History)
	restart("events", old.Events.Disabled != new.Events.Disabled || !slices.Equal(old.Events.AllowedOrigins, new.Events.AllowedOrigins))

	return d
}
