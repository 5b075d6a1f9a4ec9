package playback

import (
	"errors"
	"fmt"
)

// Validation errors. They are returned to the caller with no side effect.
var (
	// ErrNoChannel means the caller is not in a voice room.
	ErrNoChannel = errors.New("playback: caller is not in a voice channel")

	// ErrChannelFull means the caller's room is at capacity and the bot is
	// not already in it.
	ErrChannelFull = errors.New("playback: voice channel is full")

	// ErrWrongChannel means the caller does not share the bot's voice room.
	ErrWrongChannel = errors.New("playback: caller is not in the bot's voice channel")

	// ErrNotPlaying means there is nothing to act on.
	ErrNotPlaying = errors.New("playback: nothing is playing")
)

// Resolver outcomes.
var (
	// ErrNotFound means the query matched no playable track.
	ErrNotFound = errors.New("playback: no tracks found")

	// ErrRateLimited means the resolver refused the query for now.
	ErrRateLimited = errors.New("playback: resolver rate limited")
)

// ErrInternal reports a broken internal invariant, for instance a session
// that vanished while an operation held it. It indicates a bug, not a user
// error; the operation fails without touching other sessions.
var ErrInternal = errors.New("playback: internal invariant violation")

// errSessionClosed is returned internally when a session was torn down while
// an Enqueue was working on it. Enqueue retries with a fresh session.
var errSessionClosed = errors.New("playback: session closed")

// ConnectionError wraps a failure to connect the voice sink.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("playback: connect: %v", e.Err) }

func (e *ConnectionError) Unwrap() error { return e.Err }

// ResolutionError wraps a failure to resolve a query into tracks.
type ResolutionError struct {
	Query string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("playback: resolve %q: %v", e.Query, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// TranscodeError wraps a transcoder failure for one track. It never escapes
// the playback loop; it is reported as an [EventError].
type TranscodeError struct {
	Track Track
	Err   error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("playback: transcode %q: %v", e.Track.Title, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// ErrorKind classifies [EventError] events.
type ErrorKind string

const (
	KindConnection ErrorKind = "connection"
	KindResolution ErrorKind = "resolution"
	KindTranscode  ErrorKind = "transcode"
	KindInternal   ErrorKind = "internal"
)

// resultOf maps an orchestrator error to a short metric label.
func resultOf(err error) string {
	var (
		connErr *ConnectionError
		resErr  *ResolutionError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoChannel):
		return "no_channel"
	case errors.Is(err, ErrChannelFull):
		return "channel_full"
	case errors.Is(err, ErrWrongChannel):
		return "wrong_channel"
	case errors.Is(err, ErrNotPlaying):
		return "not_playing"
	case errors.As(err, &connErr):
		return "connection_error"
	case errors.As(err, &resErr):
		return "resolution_error"
	default:
		return "internal"
	}
}
