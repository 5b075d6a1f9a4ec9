package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. An empty path builds the config from defaults and the
// environment alone.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromReader(strings.NewReader(""))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment
// overrides and defaults, and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Discord
	if cfg.Discord.Token == "" {
		errs = append(errs, fmt.Errorf("discord.token is required (or set %sDISCORD_TOKEN)", EnvPrefix))
	}
	if u := cfg.Discord.SupportURL; u != "" && !isHTTPURL(u) {
		errs = append(errs, fmt.Errorf("discord.support_url %q must be an http(s) URL", u))
	}

	// Playback
	if cfg.Playback.StopTimeout < 0 {
		errs = append(errs, fmt.Errorf("playback.stop_timeout %s must not be negative", cfg.Playback.StopTimeout))
	}

	// Resolver
	if n := cfg.Resolver.SearchResults; n < 1 || n > 25 {
		errs = append(errs, fmt.Errorf("resolver.search_results %d is out of range [1, 25]", n))
	}
	if cfg.Resolver.MaxPlaylistItems < 1 {
		errs = append(errs, fmt.Errorf("resolver.max_playlist_items %d must be at least 1", cfg.Resolver.MaxPlaylistItems))
	}
	if p := cfg.Resolver.Proxy; p != "" {
		u, err := url.Parse(p)
		if err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("resolver.proxy %q is not a valid URL", p))
		} else if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "socks5" {
			errs = append(errs, fmt.Errorf("resolver.proxy scheme %q is invalid; valid values: http, https, socks5", u.Scheme))
		}
	}
	rl := cfg.Resolver.RateLimit
	if rl.PerSecond < 0 {
		errs = append(errs, fmt.Errorf("resolver.rate_limit.per_second %g must not be negative", rl.PerSecond))
	}
	if rl.PerSecond > 0 && rl.Burst < 1 {
		errs = append(errs, fmt.Errorf("resolver.rate_limit.burst %d must be at least 1 when per_second is set", rl.Burst))
	}

	// History
	if cfg.History.MemoryCapacity < 0 {
		errs = append(errs, fmt.Errorf("history.memory_capacity %d must not be negative", cfg.History.MemoryCapacity))
	}

	return errors.Join(errs...)
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
