package playback

import (
	"context"
	"errors"
)

// EventType identifies an outbound playback event.
type EventType string

const (
	EventTrackQueued  EventType = "track-queued"
	EventNowPlaying   EventType = "now-playing"
	EventTrackSkipped EventType = "track-skipped"
	EventQueueCleared EventType = "queue-cleared"
	EventStopped      EventType = "stopped"
	EventError        EventType = "error"
)

// StatusRef is an opaque handle to a posted now-playing notification. The
// presentation layer returns it from [Notifier.Notify] and receives it back
// in [Event.Previous] so it can disable or update that notification later.
type StatusRef struct {
	ChannelID string
	MessageID string
}

// IsZero reports whether the ref points nowhere.
func (r StatusRef) IsZero() bool { return r.MessageID == "" }

// Event is structured data describing something that happened in a session.
// It never carries rendered text.
type Event struct {
	Type    EventType
	GuildID string

	// TextChannelID is where the session's notifications belong.
	TextChannelID string

	// VoiceChannelID is the voice room the session streams into.
	VoiceChannelID string

	// Interaction is the request that caused the event, if any. For the
	// first now-playing after a connect it is the request that connected.
	Interaction Interaction

	// Track is the subject of track-queued, now-playing, track-skipped and
	// transcode errors.
	Track *Track

	// NextTrack is the track after Track, if any (now-playing only).
	NextTrack *Track

	// QueueLength counts the tracks waiting behind the current one.
	QueueLength int

	// First is set on the first now-playing since the session connected.
	First bool

	// Previous is the most recent now-playing notification, if any.
	Previous StatusRef

	// Removed is the number of tracks dropped by queue-cleared.
	Removed int

	// ErrKind and Detail describe error events.
	ErrKind ErrorKind
	Detail  string
}

// Notifier consumes playback events. Notify returns a [StatusRef] for
// now-playing events that were posted somewhere addressable; for other
// events the ref is ignored.
type Notifier interface {
	Notify(ctx context.Context, ev Event) (StatusRef, error)
}

// NotifierFunc adapts a function to the [Notifier] interface.
type NotifierFunc func(ctx context.Context, ev Event) (StatusRef, error)

// Notify calls f(ctx, ev).
func (f NotifierFunc) Notify(ctx context.Context, ev Event) (StatusRef, error) {
	return f(ctx, ev)
}

// MultiNotifier delivers every event to each notifier in order. The first
// non-zero [StatusRef] wins; errors are joined.
type MultiNotifier []Notifier

// Notify implements [Notifier].
func (m MultiNotifier) Notify(ctx context.Context, ev Event) (StatusRef, error) {
	var (
		ref  StatusRef
		errs []error
	)
	for _, n := range m {
		r, err := n.Notify(ctx, ev)
		if err != nil {
			errs = append(errs, err)
		}
		if ref.IsZero() && !r.IsZero() {
			ref = r
		}
	}
	return ref, errors.Join(errs...)
}
