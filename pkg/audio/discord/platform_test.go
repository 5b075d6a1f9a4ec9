package discord

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/songbird/pkg/audio"
	"github.com/bwmarrin/discordgo"
)

// ─── test helpers ─────────────────────────────────────────────────────────────

// newTestConnection creates a Connection suitable for unit testing without
// a real Discord voice connection. OpusSend is a plain buffered channel and
// the state cache holds a single guild with the given voice states.
func newTestConnection(t *testing.T, voiceStates ...*discordgo.VoiceState) *Connection {
	t.Helper()
	vc := &discordgo.VoiceConnection{
		OpusSend: make(chan []byte, 64),
	}
	state := discordgo.NewState()
	if err := state.GuildAdd(&discordgo.Guild{ID: "guild-test", VoiceStates: voiceStates}); err != nil {
		t.Fatalf("GuildAdd: %v", err)
	}
	c := &Connection{
		vc:           vc,
		session:      &discordgo.Session{State: state},
		guildID:      "guild-test",
		channel:      "voice-1",
		botID:        "bot",
		streamID:     "guild-test:voice-1:1",
		frames:       make(chan []byte, frameBuffer),
		done:         make(chan struct{}),
		disconnectVC: func() error { return nil }, // no-op for tests
	}
	// Start the loop like the real constructor (but without registering the
	// handler since session has no websocket).
	go c.sendLoop()
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

func waitDestroyed(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for destroyed callback")
		return ""
	}
}

// ─── Platform tests ──────────────────────────────────────────────────────────

func TestNewPlatform(t *testing.T) {
	t.Parallel()

	s := &discordgo.Session{}
	p := New(s)
	if p == nil {
		t.Fatal("New returned nil")
	}
	if p.session != s {
		t.Error("session not stored correctly")
	}
}

// ─── Connection tests ─────────────────────────────────────────────────────────

func TestConnection_WriteEncodesWholeFrames(t *testing.T) {
	t.Parallel()

	c := newTestConnection(t)

	// One and a half frames: exactly one packet goes out, the rest waits.
	n, err := c.Write(make([]byte, opusFrameBytes+opusFrameBytes/2))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != opusFrameBytes+opusFrameBytes/2 {
		t.Errorf("Write n = %d, want %d", n, opusFrameBytes+opusFrameBytes/2)
	}

	select {
	case opus := <-c.vc.OpusSend:
		if len(opus) == 0 {
			t.Error("OpusSend: received empty Opus packet")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Opus packet on OpusSend")
	}

	select {
	case <-c.vc.OpusSend:
		t.Fatal("partial frame was sent before Flush")
	case <-time.After(50 * time.Millisecond):
	}

	if err := c.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	select {
	case <-c.vc.OpusSend:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for flushed frame")
	}
}

func TestConnection_FlushEmptyIsNoop(t *testing.T) {
	t.Parallel()

	c := newTestConnection(t)
	if err := c.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	select {
	case <-c.vc.OpusSend:
		t.Fatal("Flush with nothing buffered sent a packet")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnection_WriteAfterDisconnect(t *testing.T) {
	t.Parallel()

	c := newTestConnection(t)
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, err := c.Write(make([]byte, 10)); !errors.Is(err, audio.ErrClosed) {
		t.Errorf("Write after Disconnect: err = %v, want ErrClosed", err)
	}
}

func TestConnection_DisconnectFiresDestroyedOnce(t *testing.T) {
	t.Parallel()

	c := newTestConnection(t)
	var calls atomic.Int32
	got := make(chan string, 4)
	c.OnDestroyed(func(id string) {
		calls.Add(1)
		got <- id
	})

	for i := range 3 {
		if err := c.Disconnect(); err != nil {
			t.Fatalf("Disconnect[%d]: unexpected error: %v", i, err)
		}
	}

	if id := waitDestroyed(t, got); id != "guild-test:voice-1:1" {
		t.Errorf("destroyed stream id = %q", id)
	}
	time.Sleep(50 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("destroyed callback calls = %d, want 1", n)
	}
}

func TestConnection_VoiceStateUpdates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		voiceStates []*discordgo.VoiceState
		update      *discordgo.VoiceStateUpdate
		wantDestroy bool
	}{
		{
			name: "bot disconnected",
			update: &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{
				GuildID: "guild-test", UserID: "bot", ChannelID: "",
			}},
			wantDestroy: true,
		},
		{
			name: "bot moved elsewhere",
			update: &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{
				GuildID: "guild-test", UserID: "bot", ChannelID: "voice-2",
			}},
			wantDestroy: true,
		},
		{
			name: "last listener left",
			voiceStates: []*discordgo.VoiceState{
				{UserID: "bot", ChannelID: "voice-1"},
			},
			update: &discordgo.VoiceStateUpdate{
				VoiceState:   &discordgo.VoiceState{GuildID: "guild-test", UserID: "u1", ChannelID: ""},
				BeforeUpdate: &discordgo.VoiceState{GuildID: "guild-test", UserID: "u1", ChannelID: "voice-1"},
			},
			wantDestroy: true,
		},
		{
			name: "listener left but others remain",
			voiceStates: []*discordgo.VoiceState{
				{UserID: "bot", ChannelID: "voice-1"},
				{UserID: "u2", ChannelID: "voice-1"},
			},
			update: &discordgo.VoiceStateUpdate{
				VoiceState:   &discordgo.VoiceState{GuildID: "guild-test", UserID: "u1", ChannelID: ""},
				BeforeUpdate: &discordgo.VoiceState{GuildID: "guild-test", UserID: "u1", ChannelID: "voice-1"},
			},
		},
		{
			name: "only another bot remains",
			voiceStates: []*discordgo.VoiceState{
				{UserID: "bot", ChannelID: "voice-1"},
				{UserID: "other-bot", ChannelID: "voice-1", Member: &discordgo.Member{User: &discordgo.User{ID: "other-bot", Bot: true}}},
			},
			update: &discordgo.VoiceStateUpdate{
				VoiceState:   &discordgo.VoiceState{GuildID: "guild-test", UserID: "u1", ChannelID: ""},
				BeforeUpdate: &discordgo.VoiceState{GuildID: "guild-test", UserID: "u1", ChannelID: "voice-1"},
			},
			wantDestroy: true,
		},
		{
			name: "other guild",
			update: &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{
				GuildID: "guild-other", UserID: "bot", ChannelID: "",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := newTestConnection(t, tt.voiceStates...)
			got := make(chan string, 1)
			c.OnDestroyed(func(id string) { got <- id })

			c.handleVoiceStateUpdate(nil, tt.update)

			select {
			case <-got:
				if !tt.wantDestroy {
					t.Error("connection destroyed unexpectedly")
				}
			case <-time.After(100 * time.Millisecond):
				if tt.wantDestroy {
					t.Error("connection was not destroyed")
				}
			}
		})
	}
}

// TestConnection_ConcurrentWriteDisconnect exercises Write and Disconnect from
// multiple goroutines to verify thread safety (run with -race).
func TestConnection_ConcurrentWriteDisconnect(t *testing.T) {
	t.Parallel()

	c := newTestConnection(t)
	go func() {
		for range c.vc.OpusSend {
		}
	}()

	var wg sync.WaitGroup
	for range 5 {
		wg.Go(func() {
			for range 10 {
				_, _ = c.Write(make([]byte, opusFrameBytes))
			}
		})
	}
	for range 5 {
		wg.Go(func() {
			_ = c.Disconnect()
		})
	}
	wg.Wait()
}
