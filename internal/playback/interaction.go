package playback

import (
	"context"

	"github.com/MrWong99/songbird/pkg/audio"
)

// InteractionKind distinguishes the two ways a user can drive the orchestrator.
type InteractionKind int

const (
	// Invocation is an initial command such as /play.
	Invocation InteractionKind = iota

	// ComponentAction is a follow-up UI action such as a button press on a
	// now-playing message.
	ComponentAction
)

// String returns the human-readable name of the kind.
func (k InteractionKind) String() string {
	switch k {
	case Invocation:
		return "invocation"
	case ComponentAction:
		return "component"
	default:
		return "unknown"
	}
}

// Interaction is the capability surface of one user request. The
// orchestrator logic is written once against it, whether the request came
// from a command or a button.
//
// Responding with rendered content is deliberately absent: the orchestrator
// only acknowledges, and the presentation layer answers by reacting to the
// [Event] that carries the interaction.
type Interaction interface {
	Kind() InteractionKind

	// GuildID is the tenant the request belongs to.
	GuildID() string

	// UserID and UserName identify the caller.
	UserID() string
	UserName() string

	// TextChannelID is where the request was made; notifications for the
	// session are posted there.
	TextChannelID() string

	// VoiceRoom returns the voice room the caller is currently in, if any.
	VoiceRoom() (audio.Room, bool)

	// Acknowledge defers the response so slow work (resolving, connecting)
	// does not time out the request.
	Acknowledge(ctx context.Context) error
}
