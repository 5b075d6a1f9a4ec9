// Package eventstream publishes playback events to websocket clients.
//
// A [Hub] is a [playback.Notifier] and an http.Handler. Clients connect to
// it for one guild with ?guild=<id> and receive one JSON [Message] per
// event of that guild. Slow clients lose messages instead of slowing
// playback down.
package eventstream

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/songbird/internal/observe"
	"github.com/MrWong99/songbird/internal/playback"
)

const (
	defaultBuffer       = 64
	defaultWriteTimeout = 5 * time.Second
)

// MessageSnapshot is the type of the message sent right after a client
// subscribed to a guild with an active session.
const MessageSnapshot = "snapshot"

// Message is the JSON document sent to clients.
type Message struct {
	Type           string             `json:"type"`
	GuildID        string             `json:"guild_id"`
	TextChannelID  string             `json:"text_channel_id,omitempty"`
	VoiceChannelID string             `json:"voice_channel_id,omitempty"`
	Track          *playback.Track    `json:"track,omitempty"`
	NextTrack      *playback.Track    `json:"next_track,omitempty"`
	Queue          []playback.Track   `json:"queue,omitempty"`
	QueueLength    int                `json:"queue_length"`
	Removed        int                `json:"removed,omitempty"`
	State          string             `json:"state,omitempty"`
	ErrorKind      playback.ErrorKind `json:"error_kind,omitempty"`
	Detail         string             `json:"detail,omitempty"`
	At             time.Time          `json:"at"`
}

// Config configures a [Hub].
type Config struct {
	// Buffer is the per-client message backlog. Default: 64.
	Buffer int

	// WriteTimeout bounds one websocket write. Default: 5s.
	WriteTimeout time.Duration

	// OriginPatterns lists the host patterns allowed to connect cross-origin.
	OriginPatterns []string

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

type subscriber struct {
	guildID string
	ch      chan Message
}

// Hub fans playback events out to websocket subscribers.
// It is safe for concurrent use.
type Hub struct {
	buffer       int
	writeTimeout time.Duration
	origins      []string
	metrics      *observe.Metrics
	now          func() time.Time

	mu        sync.RWMutex
	subs      map[*subscriber]struct{}
	snapshots func(guildID string) (playback.Snapshot, bool)
	closed    bool
	done      chan struct{}
}

var (
	_ playback.Notifier = (*Hub)(nil)
	_ http.Handler      = (*Hub)(nil)
)

// New creates a Hub.
func New(cfg Config) *Hub {
	h := &Hub{
		buffer:       cfg.Buffer,
		writeTimeout: cfg.WriteTimeout,
		origins:      cfg.OriginPatterns,
		metrics:      cfg.Metrics,
		now:          time.Now,
		subs:         make(map[*subscriber]struct{}),
		done:         make(chan struct{}),
	}
	if h.buffer <= 0 {
		h.buffer = defaultBuffer
	}
	if h.writeTimeout <= 0 {
		h.writeTimeout = defaultWriteTimeout
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h
}

// SetSnapshotSource sets the lookup used to greet guild subscribers with
// the current queue. *playback.Orchestrator's Queue method fits.
func (h *Hub) SetSnapshotSource(fn func(guildID string) (playback.Snapshot, bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshots = fn
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Notify implements [playback.Notifier]. It never blocks on clients.
func (h *Hub) Notify(_ context.Context, ev playback.Event) (playback.StatusRef, error) {
	h.publish(Message{
		Type:           string(ev.Type),
		GuildID:        ev.GuildID,
		TextChannelID:  ev.TextChannelID,
		VoiceChannelID: ev.VoiceChannelID,
		Track:          ev.Track,
		NextTrack:      ev.NextTrack,
		QueueLength:    ev.QueueLength,
		Removed:        ev.Removed,
		ErrorKind:      ev.ErrKind,
		Detail:         ev.Detail,
		At:             h.now(),
	})
	return playback.StatusRef{}, nil
}

func (h *Hub) publish(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		if s.guildID != msg.GuildID {
			continue
		}
		select {
		case s.ch <- msg:
		default:
			slog.Debug("eventstream: subscriber too slow, dropping message", "guild_id", msg.GuildID, "type", msg.Type)
		}
	}
}

// ServeHTTP upgrades the request to a websocket and streams events until
// the client goes away or the hub is closed. Requests without a guild
// filter are rejected with 400.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	guildID := r.URL.Query().Get("guild")
	if guildID == "" {
		http.Error(w, "missing guild query parameter", http.StatusBadRequest)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Debug("eventstream: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	sub := &subscriber{guildID: guildID, ch: make(chan Message, h.buffer)}
	if !h.subscribe(sub) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.unsubscribe(sub)

	// Clients only listen; CloseRead handles their control frames.
	ctx := conn.CloseRead(r.Context())
	log := slog.With("guild_id", sub.guildID, "remote", r.RemoteAddr)
	log.Debug("eventstream: client connected")

	if msg, ok := h.greeting(sub.guildID); ok {
		if err := h.write(ctx, conn, msg); err != nil {
			log.Debug("eventstream: write snapshot", "err", err)
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug("eventstream: client disconnected")
			return
		case <-h.done:
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case msg := <-sub.ch:
			if err := h.write(ctx, conn, msg); err != nil {
				log.Debug("eventstream: write event", "err", err)
				return
			}
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

func (h *Hub) greeting(guildID string) (Message, bool) {
	h.mu.RLock()
	fn := h.snapshots
	h.mu.RUnlock()
	if fn == nil {
		return Message{}, false
	}
	snap, ok := fn(guildID)
	if !ok {
		return Message{}, false
	}
	msg := Message{
		Type:           MessageSnapshot,
		GuildID:        guildID,
		VoiceChannelID: snap.Room.ChannelID,
		Queue:          snap.Tracks,
		QueueLength:    max(len(snap.Tracks)-1, 0),
		State:          snap.State.String(),
		At:             h.now(),
	}
	if len(snap.Tracks) > 0 {
		msg.Track = &snap.Tracks[0]
	}
	return msg, true
}

func (h *Hub) subscribe(s *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.subs[s] = struct{}{}
	h.metrics.EventSubscribers.Add(context.Background(), 1)
	return true
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		h.metrics.EventSubscribers.Add(context.Background(), -1)
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
}
