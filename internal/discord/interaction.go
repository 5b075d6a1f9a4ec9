package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/songbird/internal/playback"
	"github.com/MrWong99/songbird/pkg/audio"
)

var _ playback.Interaction = (*Interaction)(nil)

// Reply is a message sent in answer to an interaction.
type Reply struct {
	Content    string
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent

	// Ephemeral is honoured only when the interaction has not been
	// acknowledged yet; a deferred reply is always public.
	Ephemeral bool
}

// Interaction adapts a Discord slash command or button press to
// [playback.Interaction] and tracks how it has been answered so far.
//
// The first answer either responds to the interaction or, once it has been
// acknowledged, replaces the "thinking" placeholder. Later answers are
// follow-up messages.
type Interaction struct {
	m     Messenger
	state *discordgo.State
	ic    *discordgo.InteractionCreate

	mu      sync.Mutex
	acked   bool
	replied bool
}

// NewInteraction wraps ic. state is used to look up the caller's voice room.
func NewInteraction(m Messenger, state *discordgo.State, ic *discordgo.InteractionCreate) *Interaction {
	return &Interaction{m: m, state: state, ic: ic}
}

// Raw returns the wrapped discordgo interaction.
func (i *Interaction) Raw() *discordgo.InteractionCreate { return i.ic }

// Kind implements [playback.Interaction].
func (i *Interaction) Kind() playback.InteractionKind {
	if i.ic.Type == discordgo.InteractionMessageComponent {
		return playback.ComponentAction
	}
	return playback.Invocation
}

// GuildID implements [playback.Interaction].
func (i *Interaction) GuildID() string { return i.ic.GuildID }

// TextChannelID implements [playback.Interaction].
func (i *Interaction) TextChannelID() string { return i.ic.ChannelID }

// UserID implements [playback.Interaction].
func (i *Interaction) UserID() string {
	if u := i.user(); u != nil {
		return u.ID
	}
	return ""
}

// UserName implements [playback.Interaction]. It prefers the guild nickname,
// then the global display name, then the username.
func (i *Interaction) UserName() string {
	if i.ic.Member != nil && i.ic.Member.Nick != "" {
		return i.ic.Member.Nick
	}
	u := i.user()
	switch {
	case u == nil:
		return ""
	case u.GlobalName != "":
		return u.GlobalName
	default:
		return u.Username
	}
}

// AvatarURL returns the caller's avatar, or "".
func (i *Interaction) AvatarURL() string {
	if u := i.user(); u != nil {
		return u.AvatarURL("64")
	}
	return ""
}

func (i *Interaction) user() *discordgo.User {
	if i.ic.Member != nil && i.ic.Member.User != nil {
		return i.ic.Member.User
	}
	return i.ic.User
}

// VoiceRoom implements [playback.Interaction]. It reports the caller's voice
// channel from the gateway state cache, with its user limit and how many
// members currently sit in it.
func (i *Interaction) VoiceRoom() (audio.Room, bool) {
	if i.state == nil {
		return audio.Room{}, false
	}
	vs, err := i.state.VoiceState(i.ic.GuildID, i.UserID())
	if err != nil || vs == nil || vs.ChannelID == "" {
		return audio.Room{}, false
	}
	room := audio.Room{GuildID: i.ic.GuildID, ChannelID: vs.ChannelID}
	if ch, err := i.state.Channel(vs.ChannelID); err == nil {
		room.Capacity = ch.UserLimit
	}
	if g, err := i.state.Guild(i.ic.GuildID); err == nil {
		i.state.RLock()
		for _, v := range g.VoiceStates {
			if v.ChannelID == vs.ChannelID {
				room.Occupants++
			}
		}
		i.state.RUnlock()
	}
	return room, true
}

// Acknowledge implements [playback.Interaction]. It shows Discord's
// "thinking" placeholder so slow lookups do not time the interaction out.
// Calling it again, or after a reply, does nothing.
func (i *Interaction) Acknowledge(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.acked || i.replied {
		return nil
	}
	err := i.m.InteractionRespond(i.ic.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: acknowledge interaction: %w", err)
	}
	i.acked = true
	return nil
}

// Reply answers the interaction. The returned message is nil when Discord
// does not hand one back, i.e. for an immediate response.
func (i *Interaction) Reply(ctx context.Context, r Reply) (*discordgo.Message, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var flags discordgo.MessageFlags
	if r.Ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}

	switch {
	case !i.acked && !i.replied:
		err := i.m.InteractionRespond(i.ic.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:    r.Content,
				Embeds:     r.Embeds,
				Components: r.Components,
				Flags:      flags,
			},
		}, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("discord: respond: %w", err)
		}
		i.replied = true
		return nil, nil

	case !i.replied:
		edit := &discordgo.WebhookEdit{Embeds: &r.Embeds, Components: &r.Components}
		if r.Content != "" {
			edit.Content = &r.Content
		}
		msg, err := i.m.InteractionResponseEdit(i.ic.Interaction, edit, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("discord: edit deferred reply: %w", err)
		}
		i.replied = true
		return msg, nil

	default:
		msg, err := i.m.FollowupMessageCreate(i.ic.Interaction, true, &discordgo.WebhookParams{
			Content:    r.Content,
			Embeds:     r.Embeds,
			Components: r.Components,
			Flags:      flags,
		}, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("discord: follow-up: %w", err)
		}
		return msg, nil
	}
}
