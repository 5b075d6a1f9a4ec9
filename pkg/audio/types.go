package audio

import (
	"errors"
	"time"
)

// ErrClosed is returned by [Connection.Write] and [Connection.Flush] once the
// connection has been disconnected.
var ErrClosed = errors.New("audio: connection closed")

// DurationOf returns the playback length of n bytes of PCM in the format
// accepted by [Connection].
func DurationOf(n int64) time.Duration {
	const bytesPerSecond = SampleRate * Channels * 2
	return time.Duration(n) * time.Second / bytesPerSecond
}
