// Package audio defines the voice-output abstractions songbird streams music
// into.
//
// The two primary abstractions are:
//
//   - [Platform] joins a voice room and returns a [Connection].
//   - [Connection] is a live outbound audio stream (the "sink") for one room.
//     It accepts raw 48 kHz stereo signed 16-bit little-endian PCM and reports
//     when the underlying transport goes away.
//
// Implementations are provided by platform-specific adapter packages (e.g.,
// audio/discord). The interfaces are intentionally narrow so the playback
// orchestrator stays decoupled from the chat platform.
//
// This package lives under pkg/ because external code (third-party platform
// adapters) is expected to implement [Platform] and [Connection].
package audio

import (
	"context"
	"io"
)

// PCM format every [Connection] expects on Write.
const (
	SampleRate = 48000
	Channels   = 2

	// FrameBytes is the size of one 20 ms frame of PCM:
	// 960 samples/channel × 2 channels × 2 bytes/sample.
	FrameBytes = SampleRate / 50 * Channels * 2
)

// Room identifies a voice room and describes its occupancy.
type Room struct {
	// GuildID is the tenant (community) the room belongs to.
	GuildID string

	// ChannelID is the platform-specific voice channel identifier.
	ChannelID string

	// Capacity is the maximum number of occupants. Zero means unlimited.
	Capacity int

	// Occupants is the number of users currently in the room.
	Occupants int
}

// Full reports whether the room has no space left for another member.
func (r Room) Full() bool {
	return r.Capacity > 0 && r.Occupants >= r.Capacity
}

// Connection is a live outbound audio stream into one voice room.
//
// A Connection is obtained by calling [Platform.Connect] and remains valid
// until [Connection.Disconnect] is called or the platform tears it down.
//
// Implementations must be safe for concurrent use.
type Connection interface {
	// Writer accepts raw PCM (see [SampleRate], [Channels]). Writes may block
	// at real-time pace. After the connection is closed, Write returns
	// [ErrClosed].
	io.Writer

	// StreamID returns an identifier unique to this connection. It is the
	// value passed to OnDestroyed callbacks.
	StreamID() string

	// Flush pushes out any buffered partial frame, padded with silence.
	Flush() error

	// OnDestroyed registers cb to be called once when the connection ends,
	// whether by Disconnect, by the transport dropping, or by the room
	// emptying. Only one callback may be registered; later calls replace it.
	// The callback is invoked on an internal goroutine.
	OnDestroyed(cb func(streamID string))

	// Disconnect leaves the room and releases all resources. It is safe to
	// call Disconnect more than once; subsequent calls are no-ops and return nil.
	Disconnect() error
}

// Platform is the entry point for a voice provider.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Connect joins room and returns an active [Connection]. ctx governs the
	// connection attempt only.
	Connect(ctx context.Context, room Room) (Connection, error)
}
