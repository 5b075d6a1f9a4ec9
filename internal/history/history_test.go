package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/songbird/internal/playback"
)

func TestMemoryStore_RecentNewestFirst(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(0)
	ctx := context.Background()
	for i := range 5 {
		if err := s.Record(ctx, Entry{GuildID: "g1", Title: fmt.Sprintf("t%d", i)}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	_ = s.Record(ctx, Entry{GuildID: "g2", Title: "other"})

	got, err := s.Recent(ctx, "g1", 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	want := []string{"t4", "t3", "t2"}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for i, e := range got {
		if e.Title != want[i] {
			t.Errorf("entry %d = %q, want %q", i, e.Title, want[i])
		}
	}

	all, _ := s.Recent(ctx, "g1", 0)
	if len(all) != 5 {
		t.Errorf("Recent(0) = %d entries, want 5", len(all))
	}
	none, _ := s.Recent(ctx, "missing", 10)
	if len(none) != 0 {
		t.Errorf("unknown guild returned %d entries", len(none))
	}
}

func TestMemoryStore_Capacity(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(3)
	ctx := context.Background()
	for i := range 10 {
		_ = s.Record(ctx, Entry{GuildID: "g", Title: fmt.Sprintf("t%d", i)})
	}
	got, _ := s.Recent(ctx, "g", 100)
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	if got[0].Title != "t9" || got[2].Title != "t7" {
		t.Errorf("got %q..%q, want t9..t7", got[0].Title, got[2].Title)
	}
}

type failingStore struct{ MemoryStore }

func (*failingStore) Record(context.Context, Entry) error { return errors.New("disk full") }

func TestRecorder(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(10)
	r := NewRecorder(store)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.now = func() time.Time { return at }

	track := playback.Track{
		Title:     "Song",
		Query:     "https://example.com/watch?v=1",
		Duration:  3 * time.Minute,
		Requester: playback.Requester{ID: "u1", Name: "Ann"},
		Source:    "yt-dlp",
	}
	ctx := context.Background()
	for _, typ := range []playback.EventType{playback.EventTrackQueued, playback.EventTrackSkipped, playback.EventStopped} {
		if _, err := r.Notify(ctx, playback.Event{Type: typ, GuildID: "g", Track: &track}); err != nil {
			t.Fatalf("Notify(%s): %v", typ, err)
		}
	}
	ref, err := r.Notify(ctx, playback.Event{Type: playback.EventNowPlaying, GuildID: "g", Track: &track})
	if err != nil {
		t.Fatalf("Notify(now-playing): %v", err)
	}
	if !ref.IsZero() {
		t.Errorf("ref = %+v, want zero", ref)
	}

	got, _ := store.Recent(ctx, "g", 10)
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1", len(got))
	}
	e := got[0]
	if e.Title != "Song" || e.Requester.Name != "Ann" || e.Source != "yt-dlp" || !e.PlayedAt.Equal(at) || e.Duration != 3*time.Minute {
		t.Errorf("entry = %+v", e)
	}
}

func TestRecorder_StoreError(t *testing.T) {
	t.Parallel()

	r := NewRecorder(&failingStore{})
	track := playback.Track{Title: "x"}
	if _, err := r.Notify(context.Background(), playback.Event{Type: playback.EventNowPlaying, Track: &track}); err == nil {
		t.Fatal("expected the store error to be returned")
	}
}
