package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/songbird/internal/playback"
)

var _ playback.Notifier = (*Presenter)(nil)

// Presenter renders playback events as Discord messages. Events that carry
// the [Interaction] that caused them answer it; the rest are posted to the
// session's text channel.
//
// The now-playing message carries skip and clear buttons. When a newer
// now-playing message replaces it, or playback stops, its buttons are
// disabled.
type Presenter struct {
	m          Messenger
	supportURL string
	now        func() time.Time
}

// NewPresenter creates a Presenter. supportURL, if set, is linked from
// error messages.
func NewPresenter(m Messenger, supportURL string) *Presenter {
	return &Presenter{m: m, supportURL: supportURL, now: time.Now}
}

// Notify implements [playback.Notifier].
func (p *Presenter) Notify(ctx context.Context, ev playback.Event) (playback.StatusRef, error) {
	in, _ := ev.Interaction.(*Interaction)
	f := footerOf(in)
	now := p.now()

	switch ev.Type {
	case playback.EventNowPlaying:
		retireErr := p.retire(ctx, ev.Previous)
		msg, err := p.send(ctx, in, ev.TextChannelID, Reply{
			Embeds:     []*discordgo.MessageEmbed{nowPlayingEmbed(ev, f, now)},
			Components: playerButtons(false),
		})
		if err != nil || msg == nil {
			return playback.StatusRef{}, errors.Join(err, retireErr)
		}
		return playback.StatusRef{ChannelID: msg.ChannelID, MessageID: msg.ID}, retireErr

	case playback.EventTrackQueued:
		_, err := p.send(ctx, in, ev.TextChannelID, Reply{Embeds: []*discordgo.MessageEmbed{queuedEmbed(ev, f, now)}})
		return playback.StatusRef{}, err

	case playback.EventTrackSkipped:
		retireErr := p.retire(ctx, ev.Previous)
		_, err := p.send(ctx, in, ev.TextChannelID, Reply{Embeds: []*discordgo.MessageEmbed{skippedEmbed(ev, f, now)}})
		return playback.StatusRef{}, errors.Join(err, retireErr)

	case playback.EventQueueCleared:
		_, err := p.send(ctx, in, ev.TextChannelID, Reply{Embeds: []*discordgo.MessageEmbed{clearedEmbed(ev, f, now)}})
		return playback.StatusRef{}, err

	case playback.EventStopped:
		retireErr := p.retire(ctx, ev.Previous)
		_, err := p.send(ctx, in, ev.TextChannelID, Reply{Embeds: []*discordgo.MessageEmbed{stoppedEmbed(ev, f, now)}})
		return playback.StatusRef{}, errors.Join(err, retireErr)

	case playback.EventError:
		e := newEmbed(f, now)
		e.Title = "Something went wrong :("
		e.Description = "A song could not be played and was skipped."
		if ev.Track != nil {
			e.Description = fmt.Sprintf("Couldn't play %s, skipping it.", trackLink(*ev.Track))
		}
		if p.supportURL != "" {
			e.Fields = []*discordgo.MessageEmbedField{{Name: "Need help?", Value: p.supportURL}}
		}
		_, err := p.send(ctx, in, ev.TextChannelID, Reply{Embeds: []*discordgo.MessageEmbed{e}})
		return playback.StatusRef{}, err

	default:
		slog.Debug("discord: unhandled playback event", "event", ev.Type)
		return playback.StatusRef{}, nil
	}
}

// send answers in if set, otherwise posts r to channelID.
func (p *Presenter) send(ctx context.Context, in *Interaction, channelID string, r Reply) (*discordgo.Message, error) {
	if in != nil {
		return in.Reply(ctx, r)
	}
	if channelID == "" {
		return nil, nil
	}
	msg, err := p.m.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    r.Content,
		Embeds:     r.Embeds,
		Components: r.Components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: post to channel %s: %w", channelID, err)
	}
	return msg, nil
}

// retire disables the buttons of a previous now-playing message.
func (p *Presenter) retire(ctx context.Context, ref playback.StatusRef) error {
	if ref.IsZero() {
		return nil
	}
	components := playerButtons(true)
	_, err := p.m.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         ref.MessageID,
		Channel:    ref.ChannelID,
		Components: &components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: disable buttons on %s: %w", ref.MessageID, err)
	}
	return nil
}

// ReplyError answers in with the user-facing rendering of err.
func (p *Presenter) ReplyError(ctx context.Context, in *Interaction, err error) {
	_, rErr := in.Reply(ctx, Reply{
		Embeds:    []*discordgo.MessageEmbed{ErrorEmbed(err, p.supportURL, p.now())},
		Ephemeral: true,
	})
	if rErr != nil {
		slog.Warn("discord: failed to report error", "guild_id", in.GuildID(), "err", rErr, "cause", err)
	}
}

// ReplyQueue answers in with a listing of snap.
func (p *Presenter) ReplyQueue(ctx context.Context, in *Interaction, snap playback.Snapshot) error {
	_, err := in.Reply(ctx, Reply{
		Embeds:    []*discordgo.MessageEmbed{queueEmbed(snap, footerOf(in), p.now())},
		Ephemeral: true,
	})
	return err
}

// ReplyEmbed answers in with a single embed stamped like every other
// songbird message.
func (p *Presenter) ReplyEmbed(ctx context.Context, in *Interaction, build func(*discordgo.MessageEmbed), ephemeral bool) error {
	e := newEmbed(footerOf(in), p.now())
	build(e)
	_, err := in.Reply(ctx, Reply{Embeds: []*discordgo.MessageEmbed{e}, Ephemeral: ephemeral})
	return err
}

func footerOf(in *Interaction) footer {
	if in == nil {
		return footer{}
	}
	return footer{name: in.UserName(), avatar: in.AvatarURL()}
}
