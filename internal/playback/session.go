package playback

import (
	"sync"

	"github.com/MrWong99/songbird/pkg/audio"
)

// State is the lifecycle state of a [Session].
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateIdle
	StatePlaying
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// entry is a queued track. The id tells two queued copies of the same track
// apart so the loop only ever pops the entry it played.
type entry struct {
	id    uint64
	track Track
}

// Session is the mutable playback state of one guild. All fields below mu
// are guarded by it; the loop's byte copy runs without holding it.
type Session struct {
	guildID string
	ctrl    *Controller

	// connectMu serializes sink connects so concurrent Enqueues for a fresh
	// guild join the voice room once.
	connectMu sync.Mutex

	mu            sync.Mutex
	queue         []entry
	nextID        uint64
	conn          audio.Connection
	room          audio.Room
	streamID      string
	state         State
	firstTrack    bool
	status        StatusRef
	textChannelID string
	origin        Interaction // request whose reply the first now-playing answers
	looping       bool
	loopDone      chan struct{}
	closed        bool // torn down; a fresh Session takes over the guild
}

func newSession(guildID string) *Session {
	return &Session{
		guildID:    guildID,
		ctrl:       NewController(),
		state:      StateDisconnected,
		firstTrack: true,
	}
}

// GuildID returns the tenant the session belongs to.
func (s *Session) GuildID() string { return s.guildID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a consistent copy of the session's observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		GuildID:    s.guildID,
		State:      s.state,
		Room:       s.room,
		StreamID:   s.streamID,
		Generation: s.ctrl.Generation(),
		Tracks:     make([]Track, len(s.queue)),
	}
	for i, e := range s.queue {
		snap.Tracks[i] = e.track
	}
	return snap
}

// Snapshot is a read-only view of a [Session]. Tracks[0], if present, is the
// track currently playing or about to play.
type Snapshot struct {
	GuildID    string
	State      State
	Room       audio.Room
	StreamID   string
	Generation uint64
	Tracks     []Track
}

// inRoom reports whether room is the room the session's sink is connected
// to. Callers must hold s.mu.
func (s *Session) inRoom(room audio.Room, ok bool) bool {
	return ok && s.conn != nil && room.ChannelID == s.room.ChannelID
}

// release detaches the sink and empties the session. The caller must hold
// s.mu and becomes the sole owner of the returned connection, which it must
// disconnect. done is the running loop's completion channel, or nil.
func (s *Session) release() (conn audio.Connection, done chan struct{}, status StatusRef) {
	conn = s.conn
	s.conn = nil
	s.queue = nil
	s.ctrl.Cancel()
	s.state = StateDisconnected
	s.firstTrack = true
	s.origin = nil
	status = s.status
	s.status = StatusRef{}
	if s.looping {
		done = s.loopDone
	}
	return conn, done, status
}
