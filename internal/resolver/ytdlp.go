package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/songbird/internal/playback"
	"github.com/antzucaro/matchr"
	"github.com/lrstanley/go-ytdlp"
)

const (
	// audioFormat prefers m4a, which ffmpeg opens fastest over HTTP.
	audioFormat = "bestaudio[ext=m4a]/bestaudio/best"

	// trackTemplate prints one resolved entry per line.
	trackTemplate = "%(title)s\t%(duration)s\t%(thumbnail)s\t%(webpage_url)s\t%(url)s"

	// searchTemplate prints one flat search hit per line.
	searchTemplate = "%(url)s\t%(title)s\t%(duration)s"

	defaultSearchResults = 5
)

// YtDlpConfig configures a [YtDlp] source.
type YtDlpConfig struct {
	// Path to the yt-dlp binary. Looked up in $PATH when not absolute.
	// Default: "yt-dlp".
	Path string

	// SearchResults is how many search hits are ranked for a text query.
	// Default: 5.
	SearchResults int

	// Proxy is passed to yt-dlp's --proxy.
	Proxy string
}

// request is one yt-dlp invocation.
type request struct {
	target   string
	template string
	flat     bool
	playlist bool
	items    int
}

// YtDlp resolves URLs and search queries with the yt-dlp binary.
type YtDlp struct {
	path          string
	proxy         string
	searchResults int

	// run executes one request and returns stdout.
	run func(ctx context.Context, req request) (string, error)
}

var _ Source = (*YtDlp)(nil)

// NewYtDlp creates a yt-dlp source. It does not fail when the binary is
// missing; lookups then fail and the chain falls through.
func NewYtDlp(cfg YtDlpConfig) *YtDlp {
	if cfg.Path == "" {
		cfg.Path = "yt-dlp"
	}
	if p, err := exec.LookPath(cfg.Path); err == nil {
		cfg.Path = p
	} else {
		slog.Warn("resolver: yt-dlp not found", "path", cfg.Path, "err", err)
	}
	if cfg.SearchResults <= 0 {
		cfg.SearchResults = defaultSearchResults
	}
	y := &YtDlp{
		path:          cfg.Path,
		proxy:         cfg.Proxy,
		searchResults: cfg.SearchResults,
	}
	y.run = y.exec
	return y
}

// Path returns the yt-dlp binary the source runs.
func (y *YtDlp) Path() string { return y.path }

// Resolve implements [Source]. URLs are resolved directly, playlists
// included; anything else is searched on YouTube and the hit whose title is
// closest to the query wins.
func (y *YtDlp) Resolve(ctx context.Context, query string, max int) ([]playback.Track, error) {
	if isURL(query) {
		return y.resolveURL(ctx, query, max, true)
	}

	out, err := y.run(ctx, request{
		target:   fmt.Sprintf("ytsearch%d:%s", y.searchResults, query),
		template: searchTemplate,
		flat:     true,
	})
	if err != nil {
		return nil, err
	}
	hits := parseSearch(out)
	if len(hits) == 0 {
		return nil, fmt.Errorf("resolver: ytdlp: no search results for %q: %w", query, ErrNotFound)
	}
	best := rank(query, hits)
	tracks, err := y.resolveURL(ctx, best.url, 1, false)
	if err != nil {
		return nil, err
	}
	return tracks[:1], nil
}

func (y *YtDlp) resolveURL(ctx context.Context, u string, max int, playlist bool) ([]playback.Track, error) {
	out, err := y.run(ctx, request{
		target:   u,
		template: trackTemplate,
		playlist: playlist,
		items:    max,
	})
	if err != nil {
		return nil, err
	}
	tracks := parseTracks(out)
	if len(tracks) == 0 {
		return nil, fmt.Errorf("resolver: ytdlp: nothing playable at %s: %w", u, ErrNotFound)
	}
	return tracks, nil
}

// exec runs yt-dlp through go-ytdlp's command builder.
func (y *YtDlp) exec(ctx context.Context, req request) (string, error) {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig().
		NoCheckCertificates().
		Format(audioFormat).
		Print(req.template)
	if req.flat {
		cmd.FlatPlaylist()
	}
	if req.items > 0 {
		cmd.PlaylistItems(fmt.Sprintf("1-%d", req.items))
	}
	if y.proxy != "" {
		cmd.Proxy(y.proxy)
	}

	args := []string{req.target}
	if req.playlist {
		args = append([]string{"--yes-playlist", "--ignore-errors"}, args...)
	} else {
		cmd.NoPlaylist()
	}

	c := cmd.BuildCommand(ctx, args...)
	if filepath.IsAbs(y.path) {
		c.Path = y.path
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	if err != nil && (!req.playlist || stdout.Len() == 0) {
		return "", classify(ctx, err, stderr.String())
	}
	if err != nil {
		// --ignore-errors exits non-zero when some playlist entries fail.
		slog.Debug("resolver: yt-dlp skipped playlist entries", "target", req.target, "stderr", firstLine(stderr.String()))
	}
	return stdout.String(), nil
}

// classify maps a failed yt-dlp run onto the resolver's sentinels.
func classify(ctx context.Context, err error, stderr string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	msg := strings.ToLower(stderr)
	line := firstLine(stderr)
	switch {
	case strings.Contains(msg, "http error 429"), strings.Contains(msg, "too many requests"):
		return fmt.Errorf("resolver: ytdlp: %s: %w", line, ErrRateLimited)
	case strings.Contains(msg, "video unavailable"),
		strings.Contains(msg, "is not available"),
		strings.Contains(msg, "private video"),
		strings.Contains(msg, "unsupported url"),
		strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "http error 404"):
		return fmt.Errorf("resolver: ytdlp: %s: %w", line, ErrNotFound)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && line != "" {
		return fmt.Errorf("resolver: ytdlp: %s: %w", line, err)
	}
	return fmt.Errorf("resolver: ytdlp: %w", err)
}

// firstLine returns the first "ERROR:" line of yt-dlp's stderr, or its first
// non-empty line.
func firstLine(s string) string {
	var first string
	for l := range strings.Lines(s) {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if strings.HasPrefix(l, "ERROR:") {
			return l
		}
		if first == "" {
			first = l
		}
	}
	return first
}

// ─── Output parsing ───────────────────────────────────────────────────────────

type searchHit struct {
	url      string
	title    string
	duration time.Duration
}

func parseSearch(out string) []searchHit {
	var hits []searchHit
	for l := range strings.Lines(out) {
		f := strings.Split(strings.TrimRight(l, "\r\n"), "\t")
		if len(f) < 3 || f[0] == "" || f[0] == "NA" || f[1] == "NA" {
			continue
		}
		hits = append(hits, searchHit{url: f[0], title: f[1], duration: parseSeconds(f[2])})
	}
	return hits
}

func parseTracks(out string) []playback.Track {
	var tracks []playback.Track
	for l := range strings.Lines(out) {
		f := strings.Split(strings.TrimRight(l, "\r\n"), "\t")
		if len(f) < 5 || f[4] == "" || f[4] == "NA" {
			continue
		}
		tracks = append(tracks, playback.Track{
			Title:        orEmpty(f[0]),
			Duration:     parseSeconds(f[1]),
			ThumbnailURL: orEmpty(f[2]),
			Query:        orEmpty(f[3]),
			StreamURL:    f[4],
		})
	}
	return tracks
}

func parseSeconds(s string) time.Duration {
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func orEmpty(s string) string {
	if s == "NA" {
		return ""
	}
	return s
}

// rank returns the hit whose title is closest to query. Earlier hits win
// ties; YouTube's own ordering is a decent prior.
func rank(query string, hits []searchHit) searchHit {
	q := normalize(query)
	best, bestScore := hits[0], -1.0
	for i, h := range hits {
		score := matchr.JaroWinkler(q, normalize(h.title), true) - 0.01*float64(i)
		if score > bestScore {
			best, bestScore = h, score
		}
	}
	return best
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
