package playback

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/songbird/internal/observe"
	"github.com/MrWong99/songbird/pkg/audio"
	audiomock "github.com/MrWong99/songbird/pkg/audio/mock"
	"go.opentelemetry.io/otel/metric/noop"
)

// ─── Interaction ──────────────────────────────────────────────────────────────

type fakeInteraction struct {
	kind    InteractionKind
	guild   string
	user    string
	text    string
	room    audio.Room
	inVoice bool
	acks    atomic.Int32
}

func (f *fakeInteraction) Kind() InteractionKind         { return f.kind }
func (f *fakeInteraction) GuildID() string               { return f.guild }
func (f *fakeInteraction) UserID() string                { return f.user }
func (f *fakeInteraction) UserName() string              { return "name-" + f.user }
func (f *fakeInteraction) TextChannelID() string         { return f.text }
func (f *fakeInteraction) VoiceRoom() (audio.Room, bool) { return f.room, f.inVoice }
func (f *fakeInteraction) Acknowledge(context.Context) error {
	f.acks.Add(1)
	return nil
}

// caller returns an invocation from a user sitting in guild's "voice" room.
func caller(guild string) *fakeInteraction {
	return &fakeInteraction{
		guild:   guild,
		user:    "user-1",
		text:    "text-1",
		room:    audio.Room{GuildID: guild, ChannelID: "voice", Occupants: 1},
		inVoice: true,
	}
}

// ─── Resolver ─────────────────────────────────────────────────────────────────

type fakeResolver struct {
	mu      sync.Mutex
	results map[string][]Track
	errs    map[string]error
}

func (r *fakeResolver) Resolve(_ context.Context, query string, req Requester) ([]Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.errs[query]; err != nil {
		return nil, err
	}
	if tracks, ok := r.results[query]; ok {
		return tracks, nil
	}
	return []Track{{Title: query, Query: query, StreamURL: "stream://" + query, Requester: req}}, nil
}

// ─── Transcoder ───────────────────────────────────────────────────────────────

// fakeStream produces silence until finished, then returns endErr (io.EOF by
// default). Cancelling the open context aborts reads unless the stream is
// blocking, in which case Read waits for finish alone.
type fakeStream struct {
	url      string
	ctx      context.Context
	blocking bool
	finished chan struct{}
	endErr   error
	closed   atomic.Bool
	once     sync.Once
}

func (s *fakeStream) Read(p []byte) (int, error) {
	if s.blocking {
		<-s.finished
		return 0, s.endErr
	}
	select {
	case <-s.ctx.Done():
		return 0, s.ctx.Err()
	case <-s.finished:
		return 0, s.endErr
	case <-time.After(time.Millisecond):
		clear(p)
		return len(p), nil
	}
}

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

// finish makes the stream end with err (nil means a clean EOF).
func (s *fakeStream) finish(err error) {
	s.once.Do(func() {
		if err != nil {
			s.endErr = err
		}
		close(s.finished)
	})
}

type fakeTranscoder struct {
	mu        sync.Mutex
	failOpen  map[string]error
	blocking  map[string]bool
	opened    chan *fakeStream
	history   []string
	active    int
	maxActive int
}

func newFakeTranscoder() *fakeTranscoder {
	return &fakeTranscoder{
		failOpen: make(map[string]error),
		blocking: make(map[string]bool),
		opened:   make(chan *fakeStream, 256),
	}
}

func (f *fakeTranscoder) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, url)
	if err := f.failOpen[url]; err != nil {
		return nil, err
	}
	f.active++
	f.maxActive = max(f.maxActive, f.active)
	s := &fakeStream{url: url, ctx: ctx, blocking: f.blocking[url], finished: make(chan struct{}), endErr: io.EOF}
	f.opened <- s
	return &trackedStream{fakeStream: s, t: f}, nil
}

// trackedStream decrements the active count on Close.
type trackedStream struct {
	*fakeStream
	t *fakeTranscoder
}

func (s *trackedStream) Close() error {
	if !s.closed.Swap(true) {
		s.t.mu.Lock()
		s.t.active--
		s.t.mu.Unlock()
	}
	return nil
}

func (f *fakeTranscoder) setFailOpen(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOpen[url] = err
}

// setBlocking makes streams for url ignore cancellation until finished.
func (f *fakeTranscoder) setBlocking(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocking[url] = true
}

func (f *fakeTranscoder) openedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.history...)
}

func (f *fakeTranscoder) peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

// next waits for the next opened stream.
func (f *fakeTranscoder) next(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-f.opened:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a stream to open")
		return nil
	}
}

// ─── Notifier ─────────────────────────────────────────────────────────────────

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
	seq    int
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{ch: make(chan Event, 1024)}
}

func (n *recordingNotifier) Notify(_ context.Context, ev Event) (StatusRef, error) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.seq++
	seq := n.seq
	n.mu.Unlock()
	n.ch <- ev
	if ev.Type == EventNowPlaying {
		return StatusRef{ChannelID: ev.TextChannelID, MessageID: fmt.Sprintf("msg-%d", seq)}, nil
	}
	return StatusRef{}, nil
}

// wait consumes events until one of type typ arrives.
func (n *recordingNotifier) wait(t *testing.T, typ EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-n.ch:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", typ)
			return Event{}
		}
	}
}

func (n *recordingNotifier) count(typ EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, ev := range n.events {
		if ev.Type == typ {
			c++
		}
	}
	return c
}

// of returns the recorded events of type typ in emission order.
func (n *recordingNotifier) of(typ EventType) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Event
	for _, ev := range n.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// ─── harness ──────────────────────────────────────────────────────────────────

type harness struct {
	orch       *Orchestrator
	platform   *audiomock.Platform
	resolver   *fakeResolver
	transcoder *fakeTranscoder
	notifier   *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	met, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	h := &harness{
		platform:   &audiomock.Platform{},
		resolver:   &fakeResolver{results: map[string][]Track{}, errs: map[string]error{}},
		transcoder: newFakeTranscoder(),
		notifier:   newRecordingNotifier(),
	}
	h.orch = New(Config{
		Platform:    h.platform,
		Resolver:    h.resolver,
		Transcoder:  h.transcoder,
		Notifier:    h.notifier,
		Metrics:     met,
		StopTimeout: 2 * time.Second,
		ChunkSize:   64,
	})
	t.Cleanup(func() { _ = h.orch.Shutdown(context.Background()) })
	return h
}

// snapshot returns the guild's snapshot or fails.
func (h *harness) snapshot(t *testing.T, guild string) Snapshot {
	t.Helper()
	snap, ok := h.orch.Queue(guild)
	if !ok {
		t.Fatalf("no session for guild %s", guild)
	}
	return snap
}

func titles(tracks []Track) string {
	out := make([]string, len(tracks))
	for i, tr := range tracks {
		out[i] = tr.Title
	}
	return strings.Join(out, ",")
}

// eventually polls cond until it holds or fails the test.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition never held: %s", what)
}
