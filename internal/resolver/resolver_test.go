package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/songbird/internal/observe"
	"github.com/MrWong99/songbird/internal/playback"
	"go.opentelemetry.io/otel/metric/noop"
)

// stubSource returns fixed tracks or a fixed error and counts calls.
type stubSource struct {
	tracks []playback.Track
	err    error
	calls  atomic.Int32
	gotMax int
}

func (s *stubSource) Resolve(_ context.Context, _ string, max int) ([]playback.Track, error) {
	s.calls.Add(1)
	s.gotMax = max
	if s.err != nil {
		return nil, s.err
	}
	return append([]playback.Track(nil), s.tracks...), nil
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func tracks(n int) []playback.Track {
	out := make([]playback.Track, n)
	for i := range out {
		out[i] = playback.Track{Title: fmt.Sprintf("t%d", i), StreamURL: fmt.Sprintf("stream://%d", i)}
	}
	return out
}

func TestNewChain_RequiresSource(t *testing.T) {
	t.Parallel()
	if _, err := NewChain(Config{}); err == nil {
		t.Fatal("expected error without sources")
	}
}

func TestChain_Resolve(t *testing.T) {
	t.Parallel()
	req := playback.Requester{ID: "u1", Name: "alice"}

	tests := []struct {
		name       string
		primary    *stubSource
		fallback   *stubSource
		maxItems   int
		wantErr    error
		wantLen    int
		wantSource string
	}{
		{
			name:       "primary answers",
			primary:    &stubSource{tracks: tracks(1)},
			fallback:   &stubSource{tracks: tracks(1)},
			wantLen:    1,
			wantSource: "ytdlp",
		},
		{
			name:       "primary broken, fallback answers",
			primary:    &stubSource{err: errors.New("exec: yt-dlp: not found")},
			fallback:   &stubSource{tracks: tracks(2)},
			wantLen:    2,
			wantSource: "youtube",
		},
		{
			name:     "nothing anywhere",
			primary:  &stubSource{err: fmt.Errorf("no hits: %w", ErrNotFound)},
			fallback: &stubSource{tracks: nil},
			wantErr:  ErrNotFound,
		},
		{
			name:       "playlist capped",
			primary:    &stubSource{tracks: tracks(10)},
			fallback:   &stubSource{},
			maxItems:   3,
			wantLen:    3,
			wantSource: "ytdlp",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			chain, err := NewChain(Config{MaxPlaylistItems: tt.maxItems, Metrics: testMetrics(t)},
				Named{Name: "ytdlp", Source: tt.primary},
				Named{Name: "youtube", Source: tt.fallback},
			)
			if err != nil {
				t.Fatalf("NewChain: %v", err)
			}
			got, err := chain.Resolve(t.Context(), "  some song  ", req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
			for _, tr := range got {
				if tr.Source != tt.wantSource || tr.Requester != req || tr.Query != "some song" {
					t.Errorf("track = {source %q, requester %+v, query %q}", tr.Source, tr.Requester, tr.Query)
				}
			}
		})
	}
}

func TestChain_PassesPlaylistCap(t *testing.T) {
	t.Parallel()
	src := &stubSource{tracks: tracks(1)}
	chain, err := NewChain(Config{MaxPlaylistItems: 7, Metrics: testMetrics(t)}, Named{Name: "ytdlp", Source: src})
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	if _, err := chain.Resolve(t.Context(), "q", playback.Requester{}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if src.gotMax != 7 {
		t.Errorf("source max = %d, want 7", src.gotMax)
	}
}

func TestChain_EmptyQuery(t *testing.T) {
	t.Parallel()
	src := &stubSource{tracks: tracks(1)}
	chain, _ := NewChain(Config{Metrics: testMetrics(t)}, Named{Name: "ytdlp", Source: src})
	if _, err := chain.Resolve(t.Context(), "   ", playback.Requester{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if src.calls.Load() != 0 {
		t.Error("source called for an empty query")
	}
}

func TestChain_RateLimit(t *testing.T) {
	t.Parallel()
	src := &stubSource{tracks: tracks(1)}
	chain, err := NewChain(Config{PerSecond: 0.001, Burst: 2, Metrics: testMetrics(t)}, Named{Name: "ytdlp", Source: src})
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	for i := range 2 {
		if _, err := chain.Resolve(t.Context(), "q", playback.Requester{}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if _, err := chain.Resolve(t.Context(), "q", playback.Requester{}); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if !errors.Is(ErrRateLimited, playback.ErrRateLimited) {
		t.Error("resolver and playback sentinels diverged")
	}

	chain.SetRateLimit(0, 0)
	if _, err := chain.Resolve(t.Context(), "q", playback.Requester{}); err != nil {
		t.Fatalf("after lifting the limit: %v", err)
	}
}

func TestChain_NotFoundDoesNotTripBreaker(t *testing.T) {
	t.Parallel()
	primary := &stubSource{err: ErrNotFound}
	fallback := &stubSource{err: ErrNotFound}
	chain, _ := NewChain(Config{Metrics: testMetrics(t)},
		Named{Name: "ytdlp", Source: primary},
		Named{Name: "youtube", Source: fallback},
	)
	for range 10 {
		_, _ = chain.Resolve(t.Context(), "q", playback.Requester{})
	}
	if got := primary.calls.Load(); got != 10 {
		t.Errorf("primary calls = %d, want 10; not-found must not open the breaker", got)
	}
	if got := chain.Sources(); len(got) != 2 || got[0] != "ytdlp" {
		t.Errorf("Sources() = %v", got)
	}
}

func TestChain_CanceledContextStops(t *testing.T) {
	t.Parallel()
	primary := &stubSource{err: context.Canceled}
	fallback := &stubSource{tracks: tracks(1)}
	chain, _ := NewChain(Config{Metrics: testMetrics(t)},
		Named{Name: "ytdlp", Source: primary},
		Named{Name: "youtube", Source: fallback},
	)
	if _, err := chain.Resolve(t.Context(), "q", playback.Requester{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if fallback.calls.Load() != 0 {
		t.Error("fallback tried after cancellation")
	}
}
