package discord

import (
	"log/slog"
	"sync"

	"github.com/MrWong99/songbird/pkg/audio"
	"github.com/bwmarrin/discordgo"
)

// Compile-time interface assertion.
var _ audio.Connection = (*Connection)(nil)

// frameBuffer is the number of PCM frames queued ahead of the encoder
// (16 × 20 ms = 320 ms).
const frameBuffer = 16

// Connection wraps a discordgo.VoiceConnection and adapts it to the
// [audio.Connection] interface. PCM passed to Write is cut into exact
// Opus frame-sized chunks, encoded, and sent to Discord.
//
// Connection is safe for concurrent use.
type Connection struct {
	vc       *discordgo.VoiceConnection
	session  *discordgo.Session
	guildID  string
	channel  string
	botID    string
	streamID string

	writeMu sync.Mutex
	pending []byte // partial frame carried between Write calls

	frames chan []byte

	destroyedCb func(string)
	destroyedMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	removeHandler func() // removes the VoiceStateUpdate handler

	// disconnectVC is called during Disconnect to tear down the voice connection.
	// Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error
}

// newConnection initialises a Connection for an already-joined voice channel
// and starts the send loop.
func newConnection(vc *discordgo.VoiceConnection, session *discordgo.Session, room audio.Room, botID, streamID string) (*Connection, error) {
	c := &Connection{
		vc:           vc,
		session:      session,
		guildID:      room.GuildID,
		channel:      room.ChannelID,
		botID:        botID,
		streamID:     streamID,
		frames:       make(chan []byte, frameBuffer),
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
	}

	// Watch voice states so we notice being kicked or left alone.
	c.removeHandler = session.AddHandler(c.handleVoiceStateUpdate)

	go c.sendLoop()

	return c, nil
}

// StreamID implements [audio.Connection].
func (c *Connection) StreamID() string { return c.streamID }

// Write cuts p into 20 ms frames and queues them for encoding. It blocks
// while the frame buffer is full, which paces callers at real time.
func (c *Connection) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return 0, audio.ErrClosed
	default:
	}

	c.pending = append(c.pending, p...)
	for len(c.pending) >= opusFrameBytes {
		frame := make([]byte, opusFrameBytes)
		copy(frame, c.pending[:opusFrameBytes])
		c.pending = c.pending[opusFrameBytes:]
		if err := c.push(frame); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush pads any partial frame with silence and queues it.
func (c *Connection) Flush() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if len(c.pending) == 0 {
		return nil
	}
	frame := make([]byte, opusFrameBytes)
	copy(frame, c.pending)
	c.pending = c.pending[:0]
	return c.push(frame)
}

func (c *Connection) push(frame []byte) error {
	select {
	case c.frames <- frame:
		return nil
	case <-c.done:
		return audio.ErrClosed
	}
}

// OnDestroyed registers cb as the callback for connection teardown.
// Only one callback may be registered; subsequent calls replace the previous
// one. If the connection is already gone, cb fires right away.
func (c *Connection) OnDestroyed(cb func(string)) {
	c.destroyedMu.Lock()
	defer c.destroyedMu.Unlock()
	c.destroyedCb = cb
	select {
	case <-c.done:
		if cb != nil {
			go cb(c.streamID)
		}
	default:
	}
}

// Disconnect leaves the voice channel and stops the send loop. It is safe to
// call more than once; subsequent calls return nil. The destroyed callback
// fires exactly once, on the first call.
func (c *Connection) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		if c.removeHandler != nil {
			c.removeHandler()
		}

		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}

		c.emitDestroyed()
	})
	return err
}

// sendLoop encodes queued PCM frames to Opus and hands them to the Discord
// voice connection.
func (c *Connection) sendLoop() {
	enc, err := newOpusEncoder()
	if err != nil {
		slog.Error("discord: failed to create opus encoder", "stream_id", c.streamID, "err", err)
		return
	}

	speaking := false
	defer func() {
		if speaking {
			c.setSpeaking(false)
		}
	}()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.frames:
			if !speaking {
				c.setSpeaking(true)
				speaking = true
			}

			opus, eErr := enc.encode(frame)
			if eErr != nil {
				slog.Warn("discord: opus encode error", "stream_id", c.streamID, "err", eErr)
				continue
			}

			select {
			case c.vc.OpusSend <- opus:
			case <-c.done:
				return
			}
		}
	}
}

// handleVoiceStateUpdate disconnects when the bot itself leaves or is moved
// out of the channel, or when the last other member leaves it.
func (c *Connection) handleVoiceStateUpdate(_ *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if vsu.GuildID != c.guildID {
		return
	}

	if vsu.UserID == c.botID {
		if vsu.ChannelID != c.channel {
			slog.Info("discord: bot left voice channel", "guild_id", c.guildID, "stream_id", c.streamID)
			_ = c.Disconnect()
		}
		return
	}

	left := vsu.BeforeUpdate != nil && vsu.BeforeUpdate.ChannelID == c.channel && vsu.ChannelID != c.channel
	if left && c.listeners() == 0 {
		slog.Info("discord: voice channel emptied", "guild_id", c.guildID, "stream_id", c.streamID)
		_ = c.Disconnect()
	}
}

// listeners counts the humans other than the bot in the connection's
// channel. It returns -1 when the guild is not in the state cache.
func (c *Connection) listeners() int {
	if c.session == nil || c.session.State == nil {
		return -1
	}
	st := c.session.State
	g, err := st.Guild(c.guildID)
	if err != nil {
		return -1
	}

	n := 0
	var unknown []string
	st.RLock()
	for _, vs := range g.VoiceStates {
		if vs.ChannelID != c.channel || vs.UserID == c.botID {
			continue
		}
		switch {
		case vs.Member == nil || vs.Member.User == nil:
			unknown = append(unknown, vs.UserID)
		case !vs.Member.User.Bot:
			n++
		}
	}
	st.RUnlock()

	// Members missing from the voice state are looked up separately; users
	// not cached at all count as humans.
	for _, id := range unknown {
		if m, err := st.Member(c.guildID, id); err == nil && m.User != nil && m.User.Bot {
			continue
		}
		n++
	}
	return n
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func (c *Connection) setSpeaking(b bool) {
	if err := c.vc.Speaking(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "err", err)
	}
}

// emitDestroyed invokes the registered destroyed callback on its own goroutine.
func (c *Connection) emitDestroyed() {
	c.destroyedMu.Lock()
	cb := c.destroyedCb
	c.destroyedMu.Unlock()
	if cb != nil {
		go cb(c.streamID)
	}
}
