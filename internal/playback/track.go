package playback

import (
	"context"
	"io"
	"time"
)

// Requester identifies the user who asked for a track.
type Requester struct {
	ID   string
	Name string
}

// Track is a playable audio item. It is immutable once resolved.
type Track struct {
	// Title is the display title.
	Title string `json:"title"`

	// Query is the page URL of the track, or the search text it was found by.
	Query string `json:"query"`

	// StreamURL is the resolved media URL handed to the [Transcoder].
	StreamURL string `json:"-"`

	// Duration is zero when unknown (e.g. live streams).
	Duration time.Duration `json:"duration"`

	// ThumbnailURL may be empty.
	ThumbnailURL string `json:"thumbnail_url,omitempty"`

	// Requester is the user who enqueued the track.
	Requester Requester `json:"requester"`

	// Source names the resolver backend that produced the track.
	Source string `json:"source,omitempty"`
}

// Resolver turns a user query (a URL or free-text search) into one or more
// tracks. A playlist URL yields several. Implementations return an error
// wrapping [ErrNotFound] or [ErrRateLimited] for the expected failure modes.
type Resolver interface {
	Resolve(ctx context.Context, query string, requester Requester) ([]Track, error)
}

// Transcoder opens a stream URL as raw 48 kHz stereo signed 16-bit
// little-endian PCM. Cancelling ctx must abort the stream: pending and
// future reads return an error.
type Transcoder interface {
	Open(ctx context.Context, streamURL string) (io.ReadCloser, error)
}
