package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/songbird/internal/playback"
	"github.com/kkdai/youtube/v2"
)

// YouTube resolves YouTube video and playlist URLs with a pure-Go client.
// It cannot search; free-text queries fail with [ErrNotFound].
type YouTube struct {
	client *youtube.Client
}

var _ Source = (*YouTube)(nil)

// NewYouTube creates a YouTube source. proxy may be an http, https or
// socks5 URL; empty means direct.
func NewYouTube(proxy string) (*YouTube, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("resolver: parse proxy: %w", err)
		}
		switch u.Scheme {
		case "http", "https", "socks5":
			transport.Proxy = http.ProxyURL(u)
		default:
			return nil, fmt.Errorf("resolver: unsupported proxy scheme %q", u.Scheme)
		}
	}
	return &YouTube{client: &youtube.Client{
		HTTPClient: &http.Client{Timeout: 15 * time.Second, Transport: transport},
	}}, nil
}

// Resolve implements [Source].
func (y *YouTube) Resolve(ctx context.Context, query string, max int) ([]playback.Track, error) {
	if !isYouTubeURL(query) {
		return nil, fmt.Errorf("resolver: youtube: cannot search %q: %w", query, ErrNotFound)
	}
	if isPlaylistURL(query) {
		return y.resolvePlaylist(ctx, query, max)
	}

	video, err := y.client.GetVideoContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("resolver: youtube: get video: %w", err)
	}
	track, err := y.track(ctx, video)
	if err != nil {
		return nil, err
	}
	return []playback.Track{track}, nil
}

func (y *YouTube) resolvePlaylist(ctx context.Context, u string, max int) ([]playback.Track, error) {
	pl, err := y.client.GetPlaylistContext(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("resolver: youtube: get playlist: %w", err)
	}

	var tracks []playback.Track
	for _, entry := range pl.Videos {
		if len(tracks) >= max {
			break
		}
		video, err := y.client.VideoFromPlaylistEntryContext(ctx, entry)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Debug("resolver: youtube: skip playlist entry", "video_id", entry.ID, "err", err)
			continue
		}
		track, err := y.track(ctx, video)
		if err != nil {
			slog.Debug("resolver: youtube: skip playlist entry", "video_id", entry.ID, "err", err)
			continue
		}
		tracks = append(tracks, track)
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("resolver: youtube: playlist %q has no playable entries: %w", pl.Title, ErrNotFound)
	}
	return tracks, nil
}

func (y *YouTube) track(ctx context.Context, video *youtube.Video) (playback.Track, error) {
	format, ok := pickAudioFormat(video.Formats)
	if !ok {
		return playback.Track{}, fmt.Errorf("resolver: youtube: %s has no audio formats: %w", video.ID, ErrNotFound)
	}
	streamURL, err := y.client.GetStreamURLContext(ctx, video, &format)
	if err != nil {
		return playback.Track{}, fmt.Errorf("resolver: youtube: stream url for %s: %w", video.ID, err)
	}
	var thumb string
	if n := len(video.Thumbnails); n > 0 {
		thumb = video.Thumbnails[n-1].URL
	}
	return playback.Track{
		Title:        video.Title,
		Query:        "https://www.youtube.com/watch?v=" + video.ID,
		StreamURL:    streamURL,
		Duration:     video.Duration,
		ThumbnailURL: thumb,
	}, nil
}

// pickAudioFormat prefers the highest-bitrate audio-only format and falls
// back to any format carrying audio.
func pickAudioFormat(formats youtube.FormatList) (youtube.Format, bool) {
	withAudio := formats.WithAudioChannels()
	if len(withAudio) == 0 {
		return youtube.Format{}, false
	}
	best, found := youtube.Format{}, false
	for _, f := range withAudio {
		if !strings.HasPrefix(f.MimeType, "audio/") {
			continue
		}
		if !found || f.Bitrate > best.Bitrate {
			best, found = f, true
		}
	}
	if !found {
		return withAudio[0], true
	}
	return best, true
}

func isYouTubeURL(s string) bool {
	if !isURL(s) {
		return false
	}
	u, _ := url.Parse(s)
	switch strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.") {
	case "youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be":
		return true
	}
	return false
}

// isPlaylistURL reports whether u names a playlist rather than a video. A
// watch URL with a list parameter plays the video alone.
func isPlaylistURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, "/playlist") && u.Query().Get("list") != ""
}
