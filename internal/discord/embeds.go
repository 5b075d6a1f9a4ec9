package discord

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/songbird/internal/playback"
)

// Component custom IDs of the now-playing buttons.
const (
	ButtonSkip  = "music_skip"
	ButtonClear = "music_clear"
)

// embedColor is the accent colour of every songbird embed.
const embedColor = 0xFFFB00

// maxQueueLines bounds how many tracks /queue and the queued embed list.
const maxQueueLines = 10

// footer describes who triggered a message.
type footer struct {
	name   string
	avatar string
}

func newEmbed(f footer, now time.Time) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Color:     embedColor,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	if f.name != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: f.name, IconURL: f.avatar}
	}
	return e
}

// formatDuration renders d as H:MM:SS or M:SS. Unknown durations render as
// "live".
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "live"
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// trackLink renders a track title, linked to its page when it has one.
func trackLink(t playback.Track) string {
	title := strings.ReplaceAll(t.Title, "]", "\\]")
	if strings.HasPrefix(t.Query, "http://") || strings.HasPrefix(t.Query, "https://") {
		return fmt.Sprintf("[%s](%s)", title, t.Query)
	}
	return title
}

func channelMention(id string) string {
	if id == "" {
		return "voice"
	}
	return "<#" + id + ">"
}

func nowPlayingEmbed(ev playback.Event, f footer, now time.Time) *discordgo.MessageEmbed {
	e := newEmbed(f, now)
	e.Author = &discordgo.MessageEmbedAuthor{Name: "Now playing"}
	e.Description = "in " + channelMention(ev.VoiceChannelID)
	if ev.Track != nil {
		e.Title = ev.Track.Title
		if strings.HasPrefix(ev.Track.Query, "http") {
			e.URL = ev.Track.Query
		}
		if ev.Track.ThumbnailURL != "" {
			e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: ev.Track.ThumbnailURL}
		}
		e.Fields = append(e.Fields,
			&discordgo.MessageEmbedField{Name: "Duration", Value: formatDuration(ev.Track.Duration), Inline: true},
			&discordgo.MessageEmbedField{Name: "Requested by", Value: orDash(ev.Track.Requester.Name), Inline: true},
		)
	}
	e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
		Name: "Songs in queue", Value: fmt.Sprint(ev.QueueLength), Inline: true,
	})
	if ev.NextTrack != nil {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: "Next in queue", Value: trackLink(*ev.NextTrack)})
	}
	return e
}

func queuedEmbed(ev playback.Event, f footer, now time.Time) *discordgo.MessageEmbed {
	e := newEmbed(f, now)
	e.Author = &discordgo.MessageEmbedAuthor{Name: "Added a new song to the queue"}
	if ev.Track != nil {
		e.Title = ev.Track.Title
		if strings.HasPrefix(ev.Track.Query, "http") {
			e.URL = ev.Track.Query
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name: "Duration", Value: formatDuration(ev.Track.Duration), Inline: true,
		})
	}
	e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
		Name: "Songs in queue", Value: fmt.Sprint(ev.QueueLength), Inline: true,
	})
	return e
}

func skippedEmbed(ev playback.Event, f footer, now time.Time) *discordgo.MessageEmbed {
	e := newEmbed(f, now)
	e.Title = "Song skipped"
	e.Description = "in " + channelMention(ev.VoiceChannelID)
	if ev.Track != nil {
		e.Description = trackLink(*ev.Track) + " skipped in " + channelMention(ev.VoiceChannelID)
	}
	return e
}

func clearedEmbed(ev playback.Event, f footer, now time.Time) *discordgo.MessageEmbed {
	e := newEmbed(f, now)
	e.Title = "Queue cleared"
	switch ev.Removed {
	case 0:
		e.Description = "The queue was already empty."
	case 1:
		e.Description = "Removed 1 song from the queue."
	default:
		e.Description = fmt.Sprintf("Removed %d songs from the queue.", ev.Removed)
	}
	return e
}

func stoppedEmbed(ev playback.Event, f footer, now time.Time) *discordgo.MessageEmbed {
	e := newEmbed(f, now)
	e.Title = "Stopped playing"
	e.Description = "Left " + channelMention(ev.VoiceChannelID) + "."
	return e
}

// queueEmbed lists a session snapshot for /queue.
func queueEmbed(snap playback.Snapshot, f footer, now time.Time) *discordgo.MessageEmbed {
	e := newEmbed(f, now)
	e.Title = "Queue"
	if len(snap.Tracks) == 0 {
		e.Description = "Nothing is playing."
		return e
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Now:** %s (%s)\n", trackLink(snap.Tracks[0]), formatDuration(snap.Tracks[0].Duration))
	rest := snap.Tracks[1:]
	for i, t := range rest[:min(len(rest), maxQueueLines)] {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, trackLink(t), formatDuration(t.Duration))
	}
	if n := len(rest) - maxQueueLines; n > 0 {
		fmt.Fprintf(&b, "... and %d more\n", n)
	}
	e.Description = b.String()
	e.Fields = []*discordgo.MessageEmbedField{
		{Name: "Songs in queue", Value: fmt.Sprint(len(rest)), Inline: true},
		{Name: "Channel", Value: channelMention(snap.Room.ChannelID), Inline: true},
	}
	return e
}

// ErrorEmbed renders err for the user who triggered it.
func ErrorEmbed(err error, supportURL string, now time.Time) *discordgo.MessageEmbed {
	title, desc := UserMessage(err)
	e := newEmbed(footer{}, now)
	e.Title = title
	e.Description = desc
	if supportURL != "" {
		e.Fields = []*discordgo.MessageEmbedField{{Name: "Need help?", Value: supportURL}}
	}
	return e
}

// UserMessage maps an orchestrator error to a title and description fit
// for chat.
func UserMessage(err error) (title, description string) {
	var (
		connErr *playback.ConnectionError
		resErr  *playback.ResolutionError
	)
	switch {
	case errors.Is(err, playback.ErrNoChannel):
		return "Couldn't find the voice channel", "Join a voice channel first, then try again."
	case errors.Is(err, playback.ErrChannelFull):
		return "Couldn't connect to the voice channel", "Your voice channel is full."
	case errors.Is(err, playback.ErrWrongChannel):
		return "Wrong voice channel", "You have to be in the same voice channel as the bot."
	case errors.Is(err, playback.ErrNotPlaying):
		return "Nothing is playing", "There is nothing to skip right now."
	case errors.Is(err, ErrNotDJ):
		return "Not allowed", "Only DJs can do that."
	case errors.As(err, &resErr) && errors.Is(err, playback.ErrRateLimited):
		return "Slow down", "Too many searches right now. Try again in a moment."
	case errors.As(err, &resErr) && errors.Is(err, playback.ErrNotFound):
		return "Nothing found", fmt.Sprintf("No playable song matches %q.", resErr.Query)
	case errors.As(err, &resErr):
		return "Something went wrong :(", "The song could not be looked up."
	case errors.As(err, &connErr):
		return "Couldn't connect to the voice channel", "Check that the bot may join and speak in it."
	default:
		return "Something went wrong :(", "Please try again later."
	}
}

// ErrNotDJ is reported when a member without the DJ role runs a DJ command.
var ErrNotDJ = errors.New("discord: caller lacks the DJ role")

// playerButtons are the controls attached to a now-playing message.
func playerButtons(disabled bool) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Skip",
				Style:    discordgo.SecondaryButton,
				CustomID: ButtonSkip,
				Emoji:    &discordgo.ComponentEmoji{Name: "⏭️"},
				Disabled: disabled,
			},
			discordgo.Button{
				Label:    "Clear queue",
				Style:    discordgo.SecondaryButton,
				CustomID: ButtonClear,
				Emoji:    &discordgo.ComponentEmoji{Name: "🗑️"},
				Disabled: disabled,
			},
		}},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
