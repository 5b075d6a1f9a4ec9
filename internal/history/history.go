// Package history keeps a per-guild log of the tracks songbird played.
//
// A [Recorder] plugs into the playback notifier chain and writes one [Entry]
// per now-playing event to a [Store]. Two stores exist: an in-memory ring
// ([MemoryStore]) used when no database is configured, and a PostgreSQL
// store ([PostgresStore]) for persistent history.
package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/songbird/internal/playback"
)

// Entry is one played track.
type Entry struct {
	GuildID   string
	Title     string
	Query     string
	Duration  time.Duration
	Requester playback.Requester
	Source    string
	PlayedAt  time.Time
}

// Store persists history entries.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Record appends e to its guild's history.
	Record(ctx context.Context, e Entry) error

	// Recent returns at most limit entries of guildID, newest first.
	Recent(ctx context.Context, guildID string, limit int) ([]Entry, error)

	// Close releases the store's resources.
	Close()
}

var _ playback.Notifier = (*Recorder)(nil)

// Recorder records every now-playing event into a [Store]. It never
// returns a status ref.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Notify implements [playback.Notifier].
func (r *Recorder) Notify(ctx context.Context, ev playback.Event) (playback.StatusRef, error) {
	if ev.Type != playback.EventNowPlaying || ev.Track == nil {
		return playback.StatusRef{}, nil
	}
	e := Entry{
		GuildID:   ev.GuildID,
		Title:     ev.Track.Title,
		Query:     ev.Track.Query,
		Duration:  ev.Track.Duration,
		Requester: ev.Track.Requester,
		Source:    ev.Track.Source,
		PlayedAt:  r.now(),
	}
	if err := r.store.Record(ctx, e); err != nil {
		slog.Warn("history: record track", "guild_id", ev.GuildID, "title", e.Title, "err", err)
		return playback.StatusRef{}, err
	}
	return playback.StatusRef{}, nil
}
