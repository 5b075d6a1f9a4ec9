// Package discord provides an [audio.Platform] implementation backed by
// Discord voice channels via the bwmarrin/discordgo library. It bridges
// songbird's raw PCM output with Discord's Opus-based voice transport.
//
// The platform requires an active *discordgo.Session (owned by the bot layer).
// Each call to [Platform.Connect] joins the requested voice channel and
// returns a [Connection] that encodes written PCM to Opus and watches voice
// state updates so it can report when the bot is disconnected or the channel
// empties.
package discord

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/MrWong99/songbird/pkg/audio"
	"github.com/bwmarrin/discordgo"
)

// Compile-time interface assertion.
var _ audio.Platform = (*Platform)(nil)

// Platform implements [audio.Platform] using discordgo voice connections.
// A single Platform serves every guild the bot is a member of.
//
// Platform is safe for concurrent use.
type Platform struct {
	session *discordgo.Session
	seq     atomic.Uint64
}

// New creates a new Discord Platform for the given session.
func New(session *discordgo.Session) *Platform {
	return &Platform{session: session}
}

// Connect joins room's voice channel and returns an active
// [audio.Connection]. The supplied ctx governs the connection-setup phase
// only; once the Connection is returned it lives until it is disconnected.
func (p *Platform) Connect(ctx context.Context, room audio.Room) (audio.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", room.ChannelID, err)
	}

	// mute=false (we send audio), deaf=true (we never listen).
	vc, err := p.session.ChannelVoiceJoin(room.GuildID, room.ChannelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", room.ChannelID, err)
	}

	botID := ""
	if p.session.State != nil && p.session.State.User != nil {
		botID = p.session.State.User.ID
	}
	streamID := fmt.Sprintf("%s:%s:%d", room.GuildID, room.ChannelID, p.seq.Add(1))

	conn, err := newConnection(vc, p.session, room, botID, streamID)
	if err != nil {
		_ = vc.Disconnect()
		return nil, fmt.Errorf("discord: create connection: %w", err)
	}
	return conn, nil
}
